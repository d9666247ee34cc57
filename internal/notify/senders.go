package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/segmentio/kafka-go"
)

// LogSender only logs notifications. Used in development.
type LogSender struct {
	Log *slog.Logger
}

func (s LogSender) Name() string { return "log" }

func (s LogSender) Send(_ context.Context, n Notification) error {
	s.Log.Info("push notification",
		slog.String("title", n.Title),
		slog.Any("body", n.Body),
		slog.Int("recipients", len(n.Tokens)))
	return nil
}

// SNSPublisher is the part of the SNS client SNSSender uses.
type SNSPublisher interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSSender publishes to each device's platform endpoint ARN.
type SNSSender struct {
	Client SNSPublisher
}

func (s SNSSender) Name() string { return "sns" }

// Send attempts every device even when some fail and returns the joined errors.
func (s SNSSender) Send(ctx context.Context, n Notification) error {
	msg, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	var errs []error
	for _, endpoint := range n.Tokens {
		_, err := s.Client.Publish(ctx, &sns.PublishInput{
			TargetArn: aws.String(endpoint),
			Subject:   aws.String(n.Title),
			Message:   aws.String(string(msg)),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("publish to %s: %w", endpoint, err))
		}
	}
	return errors.Join(errs...)
}

// SQSAPI is the part of the SQS client SQSSender uses.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	GetQueueUrl(ctx context.Context, in *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
}

// SQSSender enqueues the notification for a downstream push worker.
type SQSSender struct {
	Client   SQSAPI
	QueueURL string
}

// NewSQSSender resolves the queue URL by name.
func NewSQSSender(ctx context.Context, client SQSAPI, queueName string) (*SQSSender, error) {
	out, err := client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(queueName)})
	if err != nil {
		return nil, fmt.Errorf("get queue url for %s: %w", queueName, err)
	}
	return &SQSSender{Client: client, QueueURL: aws.ToString(out.QueueUrl)}, nil
}

func (s *SQSSender) Name() string { return "sqs" }

func (s *SQSSender) Send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	_, err = s.Client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.QueueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("send to queue: %w", err)
	}
	return nil
}

// MessageWriter is the part of kafka.Writer KafkaSender uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSender writes one message per device token, keyed by token.
type KafkaSender struct {
	Writer MessageWriter
}

// NewKafkaWriter creates a writer balancing on partition size.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
}

func (s KafkaSender) Name() string { return "kafka" }

func (s KafkaSender) Send(ctx context.Context, n Notification) error {
	msgs := make([]kafka.Message, 0, len(n.Tokens))
	for _, token := range n.Tokens {
		value, err := json.Marshal(Notification{Title: n.Title, Body: n.Body, Tokens: []string{token}})
		if err != nil {
			return fmt.Errorf("encode notification: %w", err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(token), Value: value})
	}
	if err := s.Writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write to kafka: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (s KafkaSender) Close() error {
	return s.Writer.Close()
}
