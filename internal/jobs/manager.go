package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/Proton-105/nudge-bot/internal/domain"
)

// Manager describes the minimal queue operations needed by the application.
type Manager interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type manager struct {
	client *asynq.Client
	log    *slog.Logger
}

// NewManager builds a Manager backed by an asynq client.
func NewManager(redisOpt asynq.RedisConnOpt, log *slog.Logger) Manager {
	if log == nil {
		log = slog.Default()
	}

	return &manager{
		client: asynq.NewClient(redisOpt),
		log:    log,
	}
}

func (m *manager) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	return m.client.EnqueueContext(ctx, task, opts...)
}

func (m *manager) Close() error {
	m.log.Info("jobs client: closing")
	return m.client.Close()
}

// QueueNotifier hands reminders to the delivery queue instead of sending
// them inline.
type QueueNotifier struct {
	manager Manager
	opts    TaskOptions
	log     *slog.Logger
}

// NewQueueNotifier builds a QueueNotifier.
func NewQueueNotifier(m Manager, opts TaskOptions, log *slog.Logger) *QueueNotifier {
	if log == nil {
		log = slog.Default()
	}

	return &QueueNotifier{manager: m, opts: opts, log: log}
}

// NotifyReminder enqueues one delivery. A duplicate of an already queued
// tick is not an error.
func (n *QueueNotifier) NotifyReminder(ctx context.Context, r domain.Reminder) error {
	task, err := NewReminderTask(r, n.opts)
	if err != nil {
		return err
	}

	info, err := n.manager.Enqueue(ctx, task)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			n.log.Debug("reminder already queued", slog.Int64("user_id", r.UserID))
			return nil
		}
		return err
	}

	n.log.Debug("reminder queued",
		slog.Int64("user_id", r.UserID),
		slog.String("task_id", info.ID),
		slog.String("queue", info.Queue),
	)
	return nil
}
