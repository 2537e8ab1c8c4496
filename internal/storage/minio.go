package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aihub/chatbot-go/internal/config"
	"github.com/aihub/chatbot-go/internal/logger"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// MinioDocumentSource 基于MinIO的原始文档存储，实现interfaces.DocumentSource
type MinioDocumentSource struct {
	client *minio.Client
	bucket string
}

// NewMinioDocumentSource 创建MinIO文档源并确保bucket存在
func NewMinioDocumentSource(cfg *config.Config) (*MinioDocumentSource, error) {
	client, err := minio.New(cfg.Storage.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Storage.AccessKey, cfg.Storage.SecretKey, ""),
		Secure: cfg.Storage.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	source := &MinioDocumentSource{
		client: client,
		bucket: cfg.Storage.Bucket,
	}
	if err := source.ensureBucket(); err != nil {
		return nil, err
	}

	logger.GetLogger().Info("MinIO文档源初始化完成",
		zap.String("endpoint", cfg.Storage.Endpoint),
		zap.String("bucket", cfg.Storage.Bucket))
	return source, nil
}

func (s *MinioDocumentSource) ensureBucket() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// FetchText 读取对象文本
func (s *MinioDocumentSource) FetchText(ctx context.Context, key string) (string, error) {
	object, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return "", fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return string(data), nil
}

// StoreText 写入对象文本
func (s *MinioDocumentSource) StoreText(ctx context.Context, key, text string) error {
	reader := bytes.NewReader([]byte(text))
	_, err := s.client.PutObject(ctx, s.bucket, key, reader, int64(reader.Len()), minio.PutObjectOptions{
		ContentType: "text/plain; charset=utf-8",
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return nil
}

// Ready 检查存储是否可用
func (s *MinioDocumentSource) Ready() bool {
	if s.client == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	exists, err := s.client.BucketExists(ctx, s.bucket)
	return err == nil && exists
}
