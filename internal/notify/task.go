package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/coastmedia-api/internal/events"
)

// TypeEmail is the asynq task type handled by EmailHandler.
const TypeEmail = "notify:email"

// EmailTask is the payload of a TypeEmail task.
type EmailTask struct {
	EventID     string          `json:"event_id"`
	Topic       string          `json:"topic"`
	AggregateID string          `json:"aggregate_id,omitempty"`
	Data        json.RawMessage `json:"data"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// Enqueuer is the subset of *asynq.Client used here.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskNotifier turns domain events into email tasks. The event id is used as
// the task id so an event is enqueued at most once.
type TaskNotifier struct {
	Client   Enqueuer
	Topics   []string
	Queue    string
	MaxRetry int
}

// Notify implements events.Notifier.
func (n TaskNotifier) Notify(ctx context.Context, ev events.Event) error {
	if n.Client == nil || !n.wants(ev.Type) {
		return nil
	}
	payload, err := json.Marshal(EmailTask{
		EventID:     ev.ID.String(),
		Topic:       ev.Type,
		AggregateID: ev.AggregateID,
		Data:        ev.Data,
		OccurredAt:  ev.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("notify: encode task: %w", err)
	}
	opts := []asynq.Option{asynq.TaskID(ev.ID.String())}
	if n.Queue != "" {
		opts = append(opts, asynq.Queue(n.Queue))
	}
	if n.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(n.MaxRetry))
	}
	if _, err := n.Client.EnqueueContext(ctx, asynq.NewTask(TypeEmail, payload), opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("notify: enqueue %s: %w", ev.Type, err)
	}
	return nil
}

func (n TaskNotifier) wants(topic string) bool {
	topics := n.Topics
	if topics == nil {
		topics = events.NotifyTopics()
	}
	for _, t := range topics {
		if t == topic {
			return true
		}
	}
	return false
}
