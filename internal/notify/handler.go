package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/coastmedia-api/internal/lock"
	"github.com/noah-isme/coastmedia-api/internal/obs"
)

// EmailHandler processes TypeEmail tasks. A per-event lock serialises
// concurrent deliveries and a Redis set of recipients already mailed keeps
// retries from sending twice.
type EmailHandler struct {
	Mail       Mailer
	Locker     lock.Locker
	Redis      *redis.Client
	AdminEmail string
	LockTTL    time.Duration
	SentTTL    time.Duration
	Logger     zerolog.Logger
}

func sentKey(eventID string) string { return "notify:sent:" + eventID }

// ProcessTask implements asynq.Handler.
func (h EmailHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if h.Mail == nil || h.Redis == nil {
		return errors.New("notify: email handler not configured")
	}
	var task EmailTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil || task.EventID == "" {
		return fmt.Errorf("notify: bad payload: %v: %w", err, asynq.SkipRetry)
	}
	msgs, err := Render(task, h.AdminEmail)
	if err != nil {
		obs.Inc(obs.NotifyEmailTotal, task.Topic, "invalid")
		return fmt.Errorf("notify: %v: %w", err, asynq.SkipRetry)
	}
	if len(msgs) == 0 {
		return nil
	}
	return h.Locker.Do(ctx, "notify:"+task.EventID, h.LockTTL, func(ctx context.Context) error {
		return h.deliver(ctx, task, msgs)
	})
}

func (h EmailHandler) deliver(ctx context.Context, task EmailTask, msgs []Message) error {
	key := sentKey(task.EventID)
	ttl := h.SentTTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	for _, m := range msgs {
		done, err := h.Redis.SIsMember(ctx, key, m.To).Result()
		if err != nil {
			return fmt.Errorf("notify: check sent marker: %w", err)
		}
		if done {
			obs.Inc(obs.NotifyEmailTotal, task.Topic, "duplicate")
			continue
		}
		if err := h.Mail.Send(ctx, m); err != nil {
			obs.Inc(obs.NotifyEmailTotal, task.Topic, "error")
			return fmt.Errorf("notify: send to %s: %w", m.To, err)
		}
		pipe := h.Redis.TxPipeline()
		pipe.SAdd(ctx, key, m.To)
		pipe.Expire(ctx, key, ttl)
		if _, err := pipe.Exec(ctx); err != nil {
			h.Logger.Warn().Err(err).Str("event_id", task.EventID).Msg("record sent marker")
		}
		obs.Inc(obs.NotifyEmailTotal, task.Topic, "sent")
		h.Logger.Info().Str("event_id", task.EventID).Str("topic", task.Topic).Str("to", m.To).Msg("notification_sent")
	}
	return nil
}

// NewServeMux registers the notification handlers.
func NewServeMux(h EmailHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeEmail, h)
	return mux
}
