package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/aihub/chatbot-go/internal/config"
	"github.com/aihub/chatbot-go/internal/logger"
	"go.uber.org/zap"
)

// Event 发往事件总线的消息体
type Event struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// Producer Kafka事件发布器，实现interfaces.EventPublisher
type Producer struct {
	producer sarama.SyncProducer
	topic    string
}

// NewProducer 创建Kafka同步生产者
func NewProducer(cfg *config.Config) (*Producer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Queue.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	logger.GetLogger().Info("Kafka生产者初始化完成",
		zap.Strings("brokers", cfg.Queue.Brokers),
		zap.String("topic", cfg.Queue.Topic))
	return &Producer{
		producer: producer,
		topic:    cfg.Queue.Topic,
	}, nil
}

// Publish 发布事件，事件类型作为消息键保证同类型事件有序
func (p *Producer) Publish(ctx context.Context, eventType string, payload interface{}) error {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Payload:   payload,
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(eventType),
		Value: sarama.ByteEncoder(value),
	}
	partition, offset, err := p.producer.SendMessage(message)
	if err != nil {
		return fmt.Errorf("failed to send event %s: %w", eventType, err)
	}

	logger.GetLogger().Debug("事件已发布",
		zap.String("type", eventType),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

// Close 关闭生产者
func (p *Producer) Close() error {
	if p.producer == nil {
		return nil
	}
	return p.producer.Close()
}

// NoopPublisher 队列未启用时的空发布器
type NoopPublisher struct{}

func (n *NoopPublisher) Publish(ctx context.Context, eventType string, payload interface{}) error {
	return nil
}

func (n *NoopPublisher) Close() error {
	return nil
}
