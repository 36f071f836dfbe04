package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/coastmedia-api/internal/events"
	"github.com/noah-isme/coastmedia-api/internal/lock"
	"github.com/noah-isme/coastmedia-api/internal/notify"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	seen  map[string]bool
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	var id string
	for _, o := range opts {
		if o.Type() == asynq.TaskIDOpt {
			id = o.Value().(string)
		}
	}
	if f.seen[id] {
		return nil, asynq.ErrTaskIDConflict
	}
	f.seen[id] = true
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: id}, nil
}

func paidEvent(t *testing.T) events.Event {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"order_id":    "order-1",
		"email":       "jane@example.com",
		"name":        "Jane",
		"plan":        "one_time",
		"total_cents": 60000,
	})
	require.NoError(t, err)
	return events.Event{ID: uuid.New(), Type: events.TopicCheckoutPaid, AggregateID: "order-1", Data: data, OccurredAt: time.Now()}
}

func TestTaskNotifierEnqueuesOncePerEvent(t *testing.T) {
	q := &fakeEnqueuer{}
	n := notify.TaskNotifier{Client: q}
	ev := paidEvent(t)

	require.NoError(t, n.Notify(context.Background(), ev))
	require.NoError(t, n.Notify(context.Background(), ev))
	require.Len(t, q.tasks, 1)
	require.Equal(t, notify.TypeEmail, q.tasks[0].Type())

	var task notify.EmailTask
	require.NoError(t, json.Unmarshal(q.tasks[0].Payload(), &task))
	require.Equal(t, ev.ID.String(), task.EventID)
	require.Equal(t, events.TopicCheckoutPaid, task.Topic)
}

func TestTaskNotifierIgnoresOtherTopics(t *testing.T) {
	q := &fakeEnqueuer{}
	n := notify.TaskNotifier{Client: q}
	require.NoError(t, n.Notify(context.Background(), events.Event{ID: uuid.New(), Type: events.TopicPageview}))
	require.Empty(t, q.tasks)
}

func TestRenderPaidOrder(t *testing.T) {
	ev := paidEvent(t)
	msgs, err := notify.Render(notify.EmailTask{EventID: ev.ID.String(), Topic: ev.Type, Data: ev.Data}, "ops@example.com")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "jane@example.com", msgs[0].To)
	require.Contains(t, msgs[0].HTML, "$600.00")
	require.NotContains(t, msgs[0].HTML, "per month")
	require.Equal(t, "ops@example.com", msgs[1].To)
	require.Contains(t, msgs[1].Subject, "order-1")
}

func TestRenderLeadEscapesMessage(t *testing.T) {
	data, _ := json.Marshal(map[string]any{"name": "Bob", "email": "bob@example.com", "message": "<script>x</script>"})
	msgs, err := notify.Render(notify.EmailTask{EventID: "e1", Topic: events.TopicLeadReceived, Data: data}, "ops@example.com")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.NotContains(t, msgs[0].HTML, "<script>")

	msgs, err = notify.Render(notify.EmailTask{EventID: "e1", Topic: events.TopicLeadReceived, Data: data}, "")
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func newHandler(t *testing.T, mail notify.Mailer) (notify.EmailHandler, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return notify.EmailHandler{
		Mail:       mail,
		Locker:     lock.Locker{R: client, Prefix: "lock:"},
		Redis:      client,
		AdminEmail: "ops@example.com",
		Logger:     zerolog.Nop(),
	}, mr
}

func taskFor(t *testing.T, ev events.Event) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(notify.EmailTask{EventID: ev.ID.String(), Topic: ev.Type, AggregateID: ev.AggregateID, Data: ev.Data})
	require.NoError(t, err)
	return asynq.NewTask(notify.TypeEmail, payload)
}

func TestEmailHandlerSendsOnce(t *testing.T) {
	mail := &outbox{}
	h, mr := newHandler(t, mail)
	task := taskFor(t, paidEvent(t))

	require.NoError(t, h.ProcessTask(context.Background(), task))
	require.NoError(t, h.ProcessTask(context.Background(), task))
	require.Len(t, mail.Sent(), 2)

	var ev notify.EmailTask
	require.NoError(t, json.Unmarshal(task.Payload(), &ev))
	members, err := mr.Members("notify:sent:" + ev.EventID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"jane@example.com", "ops@example.com"}, members)
}

type outbox struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (o *outbox) Send(_ context.Context, m notify.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, m)
	return nil
}

func (o *outbox) Sent() []notify.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]notify.Message(nil), o.sent...)
}

type flakyMail struct {
	outbox
	failTo string
}

func (f *flakyMail) Send(ctx context.Context, m notify.Message) error {
	if m.To == f.failTo {
		f.failTo = ""
		return errors.New("smtp down")
	}
	return f.outbox.Send(ctx, m)
}

func TestEmailHandlerRetryResumesAfterPartialSend(t *testing.T) {
	mail := &flakyMail{failTo: "ops@example.com"}
	h, _ := newHandler(t, mail)
	task := taskFor(t, paidEvent(t))

	require.Error(t, h.ProcessTask(context.Background(), task))
	require.Len(t, mail.Sent(), 1)

	require.NoError(t, h.ProcessTask(context.Background(), task))
	sent := mail.Sent()
	require.Len(t, sent, 2)
	require.Equal(t, "jane@example.com", sent[0].To)
	require.Equal(t, "ops@example.com", sent[1].To)
}

func TestEmailHandlerBadPayloadSkipsRetry(t *testing.T) {
	h, _ := newHandler(t, &outbox{})
	err := h.ProcessTask(context.Background(), asynq.NewTask(notify.TypeEmail, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestEmailHandlerBusyLock(t *testing.T) {
	mail := &outbox{}
	h, mr := newHandler(t, mail)
	ev := paidEvent(t)
	require.NoError(t, mr.Set("lock:notify:"+ev.ID.String(), "other"))

	err := h.ProcessTask(context.Background(), taskFor(t, ev))
	require.ErrorIs(t, err, lock.ErrNotAcquired)
	require.Empty(t, mail.Sent())
}
