// Package notify delivers job completion notifications.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/JonMunkholm/stockimport/internal/core"
)

// EventImportFinished is the event_type of every completion message.
const EventImportFinished = "import.finished"

// Message is the JSON body published for a finished job.
type Message struct {
	EventType    string         `json:"event_type"`
	JobID        string         `json:"jobId"`
	Status       core.JobStatus `json:"estado"`
	TotalRows    int            `json:"totalRegistros"`
	SuccessCount int            `json:"registrosExitosos"`
	ErrorCount   int            `json:"registrosConError"`
	SkippedCount int            `json:"registrosOmitidos"`
	Error        string         `json:"error,omitempty"`
	ElapsedMs    int64          `json:"transcurridoMs"`
}

// NewMessage summarizes a terminal snapshot.
func NewMessage(jobID string, s core.Snapshot) Message {
	return Message{
		EventType:    EventImportFinished,
		JobID:        jobID,
		Status:       s.Status,
		TotalRows:    s.TotalRows,
		SuccessCount: s.SuccessCount,
		ErrorCount:   s.ErrorCount,
		SkippedCount: s.SkippedCount,
		Error:        s.Error,
		ElapsedMs:    s.ElapsedMs,
	}
}

// LogNotifier writes completion notifications to the log. It is the
// default when no external channel is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier writing to logger, or slog.Default.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// NotifyJobComplete implements core.Notifier.
func (n *LogNotifier) NotifyJobComplete(ctx context.Context, jobID string, s core.Snapshot) error {
	n.logger.InfoContext(ctx, "import finished",
		"job_id", jobID,
		"status", s.Status,
		"total_rows", s.TotalRows,
		"success", s.SuccessCount,
		"errors", s.ErrorCount,
		"skipped", s.SkippedCount,
		"elapsed_ms", s.ElapsedMs,
	)
	return nil
}

// snsPublisher is the part of *sns.Client the notifier uses.
type snsPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSNotifier publishes completion notifications to an SNS topic.
type SNSNotifier struct {
	client   snsPublisher
	topicARN string
}

// NewSNSNotifier loads the default AWS configuration (environment, shared
// config, instance role) and returns a notifier for topicARN. A non-empty
// region overrides the configured one.
func NewSNSNotifier(ctx context.Context, topicARN, region string) (*SNSNotifier, error) {
	if topicARN == "" {
		return nil, errors.New("sns topic ARN is required")
	}

	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SNSNotifier{client: sns.NewFromConfig(cfg), topicARN: topicARN}, nil
}

// NotifyJobComplete implements core.Notifier.
func (n *SNSNotifier) NotifyJobComplete(ctx context.Context, jobID string, s core.Snapshot) error {
	msg := NewMessage(jobID, s)
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	_, err = n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(msg.EventType),
			},
			"status": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(msg.Status)),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("publish notification for job %s: %w", jobID, err)
	}
	return nil
}
