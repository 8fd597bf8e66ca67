package cron

import (
	"context"
	"time"

	"github.com/gritlabs/backend/internal/repository"
	"github.com/gritlabs/backend/pkg/pubsub"
	"github.com/gritlabs/backend/pkg/xcontext"
)

const (
	outboxBatchSize = 100
	outboxMaxRetry  = 10
)

// OutboxSenderCronJob drains pending outbox rows to the broker. Rows are
// written in the same transaction as the change they announce, so the portal
// never loses an event to a broker outage, it just delivers late.
type OutboxSenderCronJob struct {
	outboxRepo repository.OutboxRepository
	publisher  pubsub.Publisher
}

func NewOutboxSenderCronJob(
	outboxRepo repository.OutboxRepository, publisher pubsub.Publisher,
) *OutboxSenderCronJob {
	return &OutboxSenderCronJob{outboxRepo: outboxRepo, publisher: publisher}
}

func (job *OutboxSenderCronJob) Do(ctx context.Context) {
	messages, err := job.outboxRepo.GetPending(ctx, outboxBatchSize)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot load pending outbox messages: %v", err)
		return
	}

	for i := range messages {
		message := &messages[i]
		err := job.publisher.Publish(ctx, message.Topic, &pubsub.Pack{
			Key: []byte(message.Key),
			Msg: message.Payload,
		})
		if err != nil {
			xcontext.Logger(ctx).Warnf("Cannot publish outbox message %s: %v", message.ID, err)
			if err := job.outboxRepo.MarkFailed(ctx, message.ID, outboxMaxRetry); err != nil {
				xcontext.Logger(ctx).Errorf("Cannot mark outbox message failed: %v", err)
			}

			continue
		}

		if err := job.outboxRepo.MarkSent(ctx, message.ID); err != nil {
			xcontext.Logger(ctx).Errorf("Cannot mark outbox message sent: %v", err)
		}
	}
}

func (job *OutboxSenderCronJob) RunNow() bool {
	return true
}

func (job *OutboxSenderCronJob) Next() time.Time {
	return time.Now().Add(time.Minute)
}
