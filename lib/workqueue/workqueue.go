// Package workqueue hands serialized work batches to SQS and reads them
// back on the worker side. Delivery and ordering are the queue's
// problem, the crawler fires and forgets.
package workqueue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQS caps SendMessageBatch at 10 entries.
const maxBatchEntries = 10

type Queue struct {
	client   *sqs.Client
	queueURL string
}

type Config struct {
	QueueURL string `json:"queue_url"`
	Region   string `json:"region"`
	Endpoint string `json:"endpoint"`
}

func New(ctx context.Context, cfg Config) (*Queue, error) {
	if cfg.QueueURL == "" {
		return nil, fmt.Errorf("sqs queue url required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &Queue{client: client, queueURL: cfg.QueueURL}, nil
}

func (q *Queue) Enqueue(ctx context.Context, messages []string) error {
	for start := 0; start < len(messages); start += maxBatchEntries {
		end := min(start+maxBatchEntries, len(messages))

		entries := make([]types.SendMessageBatchRequestEntry, 0, end-start)
		for i, body := range messages[start:end] {
			entries = append(entries, types.SendMessageBatchRequestEntry{
				Id:          aws.String(fmt.Sprintf("msg-%d", start+i)),
				MessageBody: aws.String(body),
			})
		}

		out, err := q.client.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
			QueueUrl: &q.queueURL,
			Entries:  entries,
		})
		if err != nil {
			return err
		}
		for _, failed := range out.Failed {
			return fmt.Errorf(
				"enqueue message %s: %s",
				aws.ToString(failed.Id),
				aws.ToString(failed.Message),
			)
		}
		slog.DebugContext(ctx, "enqueued batch messages", "count", len(entries))
	}
	return nil
}

// Message is one received queue entry. Receipt is what Delete needs to
// acknowledge it; until then the message stays invisible only for the
// queue's visibility timeout.
type Message struct {
	Receipt string
	Body    string
}

// Receive long-polls for up to max messages.
func (q *Queue) Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	if max <= 0 || max > maxBatchEntries {
		max = maxBatchEntries
	}
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            &q.queueURL,
		MaxNumberOfMessages: int32(max),
		WaitTimeSeconds:     int32(wait / time.Second),
	})
	if err != nil {
		return nil, err
	}

	messages := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		messages = append(messages, Message{
			Receipt: aws.ToString(m.ReceiptHandle),
			Body:    aws.ToString(m.Body),
		})
	}
	return messages, nil
}

func (q *Queue) Delete(ctx context.Context, receipt string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &q.queueURL,
		ReceiptHandle: &receipt,
	})
	return err
}
