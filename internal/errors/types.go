package errors

import (
	"errors"
	"fmt"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误
	ErrCodeInternalServer ErrorCode = "INTERNAL_SERVER_ERROR"
	ErrCodeInvalidInput   ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound       ErrorCode = "NOT_FOUND"
	ErrCodeAccessDenied   ErrorCode = "ACCESS_DENIED"

	// 检索核心错误
	ErrCodeConfiguration     ErrorCode = "CONFIGURATION_ERROR"
	ErrCodeDimensionMismatch ErrorCode = "DIMENSION_MISMATCH"
	ErrCodeEmbeddingFailed   ErrorCode = "EMBEDDING_FAILED"
	ErrCodeGenerationFailed  ErrorCode = "GENERATION_FAILED"
	ErrCodeStoreUnavailable  ErrorCode = "STORE_UNAVAILABLE"

	// 数据库错误
	ErrCodeDatabaseError ErrorCode = "DATABASE_ERROR"
)

// ErrorType 错误类型
type ErrorType int

const (
	ErrorTypeSystem ErrorType = iota
	ErrorTypeBusiness
	ErrorTypeValidation
	ErrorTypeExternal
)

// AppError 应用错误结构体
type AppError struct {
	Code      ErrorCode   `json:"code"`
	Message   string      `json:"message"`
	Type      ErrorType   `json:"type"`
	Retryable bool        `json:"-"`
	Details   interface{} `json:"details,omitempty"`
	Cause     error       `json:"-"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails 添加错误详情
func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

// WithCause 添加错误原因
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// 错误构造函数

// NewConfigurationError 创建配置错误（如 overlap >= size），不可重试
func NewConfigurationError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeConfiguration,
		Message: message,
		Type:    ErrorTypeValidation,
	}
}

// NewDimensionMismatchError 创建向量维度不匹配错误
func NewDimensionMismatchError(expected, actual int) *AppError {
	return &AppError{
		Code:    ErrCodeDimensionMismatch,
		Message: fmt.Sprintf("vector dimension %d does not match collection dimension %d", actual, expected),
		Type:    ErrorTypeValidation,
	}
}

// NewEmbeddingError 创建向量化失败错误，可重试
func NewEmbeddingError(cause error) *AppError {
	return &AppError{
		Code:      ErrCodeEmbeddingFailed,
		Message:   "embedding request failed",
		Type:      ErrorTypeExternal,
		Retryable: true,
		Cause:     cause,
	}
}

// NewGenerationError 创建文本生成失败错误，可重试
func NewGenerationError(cause error) *AppError {
	return &AppError{
		Code:      ErrCodeGenerationFailed,
		Message:   "generation request failed",
		Type:      ErrorTypeExternal,
		Retryable: true,
		Cause:     cause,
	}
}

// NewStoreUnavailableError 创建向量存储不可用错误，可重试
func NewStoreUnavailableError(op string, cause error) *AppError {
	return &AppError{
		Code:      ErrCodeStoreUnavailable,
		Message:   fmt.Sprintf("vector store %s failed", op),
		Type:      ErrorTypeExternal,
		Retryable: true,
		Cause:     cause,
	}
}

// NewSystemError 创建系统错误
func NewSystemError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Type:    ErrorTypeSystem,
	}
}

// NewNotFoundError 创建资源未找到错误
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Type:    ErrorTypeBusiness,
	}
}

// NewAccessDeniedError 创建访问拒绝错误
func NewAccessDeniedError() *AppError {
	return &AppError{
		Code:    ErrCodeAccessDenied,
		Message: "Access denied",
		Type:    ErrorTypeBusiness,
	}
}

// NewInvalidInputError 创建输入无效错误
func NewInvalidInputError(field, reason string) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidInput,
		Message: fmt.Sprintf("Invalid input for field '%s': %s", field, reason),
		Type:    ErrorTypeValidation,
	}
}

// IsRetryable 判断错误是否可重试（仅瞬时的外部调用失败可重试）
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// IsCode 判断错误是否携带指定错误码
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetAppError 获取AppError，如果不是则包装为系统错误
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewSystemError(ErrCodeInternalServer, "Internal server error").WithCause(err)
}

// BatchInsertError 批量写入部分失败错误，记录失败的记录下标
type BatchInsertError struct {
	Collection    string
	FailedIndexes []int
	Cause         error
}

func (e *BatchInsertError) Error() string {
	return fmt.Sprintf("batch insert into %s failed for %d records: %v", e.Collection, len(e.FailedIndexes), e.Cause)
}

func (e *BatchInsertError) Unwrap() error {
	return e.Cause
}
