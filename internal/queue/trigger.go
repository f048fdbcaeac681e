// Package queue provides the SQS producer used to nudge the post worker
// ahead of its next cron tick.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"bannerly/internal/config"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// NudgeMessage wakes the post worker. PostID identifies the post that
// prompted the nudge; the worker still drains every due post, so a lost or
// duplicated message only shifts timing.
type NudgeMessage struct {
	NudgeID      string    `json:"nudge_id"`
	PostID       string    `json:"post_id"`
	ScheduledFor time.Time `json:"scheduled_for"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
}

// PostTrigger enqueues worker nudges. A nil-configured queue URL disables
// nudging entirely; the worker's cron trigger remains the backstop.
type PostTrigger struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewPostTrigger creates a PostTrigger reading the queue URL from AWSConfig.
func NewPostTrigger(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *PostTrigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostTrigger{
		client:   client,
		queueURL: awsCfg.PostQueueURL,
		logger:   logger,
	}
}

// Enabled reports whether nudging is configured.
func (t *PostTrigger) Enabled() bool {
	return t.queueURL != "" && t.client != nil
}

// TriggerProcessing enqueues a wake-up for the given post. Failures are
// returned for logging but callers must not fail the user-facing operation
// on them; the cron trigger will pick the post up regardless.
func (t *PostTrigger) TriggerProcessing(ctx context.Context, postID string, scheduledFor time.Time, reason string) error {
	if !t.Enabled() {
		return nil
	}

	msg := NudgeMessage{
		NudgeID:      uuid.New().String(),
		PostID:       postID,
		ScheduledFor: scheduledFor,
		EnqueuedAt:   time.Now().UTC(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal nudge message: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(t.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"reason": {
				DataType:    aws.String("String"),
				StringValue: aws.String(reason),
			},
		},
	}

	if _, err := t.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send nudge to %s: %w", t.queueURL, err)
	}

	t.logger.InfoContext(ctx, "post worker nudge sent",
		"queue_url", t.queueURL,
		"nudge_id", msg.NudgeID,
		"post_id", postID,
		"scheduled_for", scheduledFor,
		"reason", reason,
	)
	return nil
}
