package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Proton-105/nudge-bot/internal/domain"
)

const (
	TaskTypeReminderDeliver = "reminder:deliver"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
)

// Queues is the priority map the worker consumes.
var Queues = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
}

// ReminderPayload is the wire form of a reminder delivery.
type ReminderPayload struct {
	UserID  int64     `json:"user_id"`
	Gender  string    `json:"gender"`
	FiredAt time.Time `json:"fired_at"`
}

// TaskOptions bound retries and run time of delivery tasks.
type TaskOptions struct {
	MaxRetry int
	Timeout  time.Duration
}

// NewReminderTask builds a delivery task. The task id is derived from the
// user and fire time so a tick is enqueued at most once.
func NewReminderTask(r domain.Reminder, opts TaskOptions) (*asynq.Task, error) {
	payload, err := json.Marshal(ReminderPayload{
		UserID:  r.UserID,
		Gender:  string(r.Gender),
		FiredAt: r.FiredAt.UTC(),
	})
	if err != nil {
		return nil, err
	}

	taskOpts := []asynq.Option{
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(opts.MaxRetry),
		asynq.TaskID(fmt.Sprintf("reminder:%d:%d", r.UserID, r.FiredAt.Unix())),
	}
	if opts.Timeout > 0 {
		taskOpts = append(taskOpts, asynq.Timeout(opts.Timeout))
	}

	return asynq.NewTask(TaskTypeReminderDeliver, payload, taskOpts...), nil
}

// DecodeReminder reads the payload of a delivery task.
func DecodeReminder(t *asynq.Task) (domain.Reminder, error) {
	var payload ReminderPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return domain.Reminder{}, fmt.Errorf("decode %s payload: %w", t.Type(), err)
	}

	gender, err := domain.ParseGender(payload.Gender)
	if err != nil {
		return domain.Reminder{}, fmt.Errorf("decode %s payload: %w", t.Type(), err)
	}

	if payload.UserID == 0 {
		return domain.Reminder{}, fmt.Errorf("decode %s payload: missing user_id", t.Type())
	}

	return domain.Reminder{
		UserID:  payload.UserID,
		Gender:  gender,
		FiredAt: payload.FiredAt,
	}, nil
}
