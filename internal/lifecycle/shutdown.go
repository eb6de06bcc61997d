package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type hook struct {
	name string
	fn   func(ctx context.Context) error
}

// Shutdown runs cleanup hooks grouped in stages. Stages run in registration
// order; hooks within a stage run in parallel.
type Shutdown struct {
	mu     sync.Mutex
	stages [][]hook
	log    *slog.Logger
}

// NewShutdown constructs a Shutdown with one open stage.
func NewShutdown(log *slog.Logger) *Shutdown {
	if log == nil {
		log = slog.Default()
	}

	return &Shutdown{log: log, stages: [][]hook{nil}}
}

// Register adds a named hook to the current stage.
func (s *Shutdown) Register(name string, fn func(context.Context) error) {
	if fn == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	last := len(s.stages) - 1
	s.stages[last] = append(s.stages[last], hook{name: name, fn: fn})
}

// NextStage starts a new stage; later hooks run after earlier stages finish.
func (s *Shutdown) NextStage() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.stages[len(s.stages)-1]) > 0 {
		s.stages = append(s.stages, nil)
	}
}

// Execute runs every stage and joins the hook failures. A failing hook does
// not stop later stages.
func (s *Shutdown) Execute(ctx context.Context) error {
	s.mu.Lock()
	stages := make([][]hook, 0, len(s.stages))
	for _, stage := range s.stages {
		if len(stage) > 0 {
			stages = append(stages, append([]hook(nil), stage...))
		}
	}
	s.mu.Unlock()

	start := time.Now()
	s.log.Info("shutdown sequence started", slog.Int("stages", len(stages)))

	var errs []error
	for i, stage := range stages {
		errs = append(errs, s.runStage(ctx, i+1, stage)...)
	}

	s.log.Info("shutdown sequence finished", slog.Duration("elapsed", time.Since(start)), slog.Int("failed", len(errs)))

	return errors.Join(errs...)
}

func (s *Shutdown) runStage(ctx context.Context, n int, hooks []hook) []error {
	errs := make([]error, len(hooks))

	var wg sync.WaitGroup
	for i, h := range hooks {
		wg.Add(1)
		go func() {
			defer wg.Done()

			started := time.Now()
			if err := h.fn(ctx); err != nil {
				s.log.Error("shutdown hook failed", slog.Int("stage", n), slog.String("hook", h.name), slog.Any("error", err))
				errs[i] = fmt.Errorf("%s: %w", h.name, err)
				return
			}
			s.log.Info("shutdown hook completed", slog.Int("stage", n), slog.String("hook", h.name), slog.Duration("elapsed", time.Since(started)))
		}()
	}
	wg.Wait()

	failed := errs[:0]
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	return failed
}
