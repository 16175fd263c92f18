package sqs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	awstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/ealebed/gh-backport-command/internal/queue"
)

// Handler is implemented by the processor layer.
// Return an HTTP-like status and an error (nil on success).
type Handler interface {
	HandleEvent(ctx context.Context, msg queue.Message) (int, error)
}

// API is the subset of *awssqs.Client the worker uses.
type API interface {
	ReceiveMessage(ctx context.Context, in *awssqs.ReceiveMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *awssqs.DeleteMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.DeleteMessageOutput, error)
}

var _ API = (*awssqs.Client)(nil)

// Worker polls SQS and hands each delivery to the Handler, one at a time.
type Worker struct {
	Client            API
	QueueURL          string
	MaxMessages       int32 // 1..10
	WaitTimeSeconds   int32 // 0..20
	VisibilityTimeout int32 // seconds
	DeleteOn4xx       bool

	Processor Handler

	retryDelay time.Duration // receive error backoff; 2s when zero
}

// Run starts a long-poll receive loop until ctx is canceled. Canceling ctx
// stops receiving; the message being handled still runs to completion and
// is deleted as usual.
func (w *Worker) Run(ctx context.Context) error {
	if w.Client == nil || w.QueueURL == "" || w.Processor == nil {
		return errors.New("sqs.Worker: missing Client, QueueURL or Processor")
	}
	slog.Info("sqs.worker.start",
		"queue", w.QueueURL,
		"maxMessages", w.vOrDefault(w.MaxMessages, 10),
		"waitSeconds", w.vOrDefault(w.WaitTimeSeconds, 10),
		"visibility", w.vOrDefault(w.VisibilityTimeout, 120),
		"deleteOn4xx", w.DeleteOn4xx,
	)

	for {
		select {
		case <-ctx.Done():
			slog.Info("sqs.worker.stop", "reason", "context_done")
			return ctx.Err()
		default:
		}

		out, err := w.Client.ReceiveMessage(ctx, &awssqs.ReceiveMessageInput{
			QueueUrl:              aws.String(w.QueueURL),
			MaxNumberOfMessages:   w.vOrDefault(w.MaxMessages, 10),
			WaitTimeSeconds:       w.vOrDefault(w.WaitTimeSeconds, 10),
			VisibilityTimeout:     w.vOrDefault(w.VisibilityTimeout, 120),
			MessageAttributeNames: []string{"All"},
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Error("sqs.receive.error", "err", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.backoff()):
			}
			continue
		}

		for _, m := range out.Messages {
			if ctx.Err() != nil {
				// Left for redelivery after the visibility timeout.
				slog.Info("sqs.worker.stop", "reason", "context_done", "unprocessed", aws.ToString(m.MessageId))
				return ctx.Err()
			}
			w.process(context.WithoutCancel(ctx), m)
		}
	}
}

func (w *Worker) process(ctx context.Context, m awstypes.Message) {
	msgID := aws.ToString(m.MessageId)
	if m.ReceiptHandle == nil {
		slog.Warn("sqs.message.missing_receipt_handle", "messageID", msgID)
		return
	}

	code, procErr := w.handleSQSMessage(ctx, m)
	shouldDelete := deletable(code, w.DeleteOn4xx)

	if procErr != nil {
		slog.Warn("sqs.message.process_error",
			"status", code,
			"err", procErr,
			"delete", shouldDelete,
			"messageID", msgID,
		)
	} else {
		slog.Info("sqs.message.processed",
			"status", code,
			"delete", shouldDelete,
			"messageID", msgID,
		)
	}

	if shouldDelete {
		if derr := w.deleteMessage(ctx, aws.ToString(m.ReceiptHandle)); derr != nil {
			slog.Error("sqs.message.delete_error", "err", derr, "messageID", msgID)
		}
	}
}

// deletable decides whether a handled message leaves the queue. 5xx and
// unknown codes stay for redelivery once the visibility timeout expires.
func deletable(code int, deleteOn4xx bool) bool {
	switch {
	case code >= 200 && code < 300:
		return true
	case code >= 400 && code < 500:
		return deleteOn4xx
	default:
		return false
	}
}

// handleSQSMessage parses the message and dispatches it to the Processor.
// It does not touch SQS; the caller controls deletion based on the code.
func (w *Worker) handleSQSMessage(ctx context.Context, m awstypes.Message) (int, error) {
	msgID := aws.ToString(m.MessageId)
	msg, err := queue.ParseSQSBody([]byte(aws.ToString(m.Body)))
	if err != nil {
		if errors.Is(err, queue.ErrUnknownEvent) {
			slog.Info("sqs.message.unknown_event", "messageID", msgID)
			return 204, nil
		}
		slog.Error("sqs.message.bad_envelope", "err", err, "messageID", msgID)
		return 400, err
	}
	fillFromAttributes(&msg, m.MessageAttributes)
	if msg.Delivery == "" {
		msg.Delivery = msgID
	}
	if len(msg.Payload) == 0 {
		return 204, nil
	}

	code, perr := w.Processor.HandleEvent(ctx, msg)
	if code == 0 {
		if perr == nil {
			code = 200
		} else {
			code = 500
		}
	}
	return code, perr
}

// fillFromAttributes completes headers that a raw-body publisher sent as
// SQS message attributes instead of an envelope.
func fillFromAttributes(msg *queue.Message, attrs map[string]awstypes.MessageAttributeValue) {
	get := func(k string) string {
		if v, ok := attrs[k]; ok {
			return aws.ToString(v.StringValue)
		}
		return ""
	}
	if msg.Delivery == "" {
		msg.Delivery = get("X-GitHub-Delivery")
	}
	if msg.Signature == "" {
		msg.Signature = get("X-Hub-Signature-256")
	}
}

func (w *Worker) deleteMessage(ctx context.Context, receipt string) error {
	_, err := w.Client.DeleteMessage(ctx, &awssqs.DeleteMessageInput{
		QueueUrl:      aws.String(w.QueueURL),
		ReceiptHandle: aws.String(receipt),
	})
	return err
}

func (w *Worker) backoff() time.Duration {
	if w.retryDelay > 0 {
		return w.retryDelay
	}
	return 2 * time.Second
}

func (w *Worker) vOrDefault(v, def int32) int32 {
	if v <= 0 {
		return def
	}
	return v
}
