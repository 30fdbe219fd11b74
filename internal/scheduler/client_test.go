package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type testSchedulerCfg struct {
	redisURL string
}

func (c testSchedulerCfg) GetRedisURL() string                    { return c.redisURL }
func (c testSchedulerCfg) GetRedisTLSInsecure() bool              { return false }
func (c testSchedulerCfg) GetAsynqQueueName() string              { return "test" }
func (c testSchedulerCfg) GetAsynqConcurrency() int               { return 1 }
func (c testSchedulerCfg) GetOverdueSweepInterval() time.Duration { return time.Minute }

func TestNewClientRequiresRedisURL(t *testing.T) {
	if _, err := NewClient(testSchedulerCfg{}); err == nil {
		t.Fatal("expected error for missing redis url")
	}
}

func TestEnqueueOutboxDueWritesTask(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewClient(testSchedulerCfg{redisURL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	outboxID := uuid.New().String()
	if err := client.EnqueueOutboxDue(context.Background(), outboxID, time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("EnqueueOutboxDue: %v", err)
	}

	if len(mr.Keys()) == 0 {
		t.Fatal("expected asynq to write task state to redis")
	}
}

func TestOutboxDuePayloadRoundTrip(t *testing.T) {
	id := uuid.New().String()
	task, err := NewNotificationOutboxDueTask(NotificationOutboxDuePayload{OutboxID: id})
	if err != nil {
		t.Fatalf("NewNotificationOutboxDueTask: %v", err)
	}
	if task.Type() != TaskNotificationOutboxDue {
		t.Errorf("task type = %q", task.Type())
	}

	payload, err := ParseNotificationOutboxDuePayload(task)
	if err != nil {
		t.Fatalf("ParseNotificationOutboxDuePayload: %v", err)
	}
	if payload.OutboxID != id {
		t.Errorf("outbox id = %q, want %q", payload.OutboxID, id)
	}
}

func TestParseRejectsMalformedPayload(t *testing.T) {
	task := asynq.NewTask(TaskNotificationOutboxDue, []byte("not json"))
	if _, err := ParseNotificationOutboxDuePayload(task); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}
