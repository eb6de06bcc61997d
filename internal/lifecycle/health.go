// Package lifecycle coordinates probes and the ordered shutdown of the
// process.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
)

// ErrShuttingDown is reported by the probes once shutdown has begun.
var ErrShuttingDown = errors.New("shutting down")

// HealthChecker exposes liveness and readiness probes.
type HealthChecker interface {
	Liveness(ctx context.Context) error
	Readiness(ctx context.Context) error
}

// ReadinessSource reports whether dependencies are usable.
type ReadinessSource interface {
	Ready(ctx context.Context) error
}

// Probes answers liveness from process state and readiness from the
// component checks.
type Probes struct {
	log      *slog.Logger
	deps     ReadinessSource
	started  atomic.Bool
	stopping atomic.Bool
}

var _ HealthChecker = (*Probes)(nil)

// NewProbes creates a new Probes instance.
func NewProbes(deps ReadinessSource, log *slog.Logger) *Probes {
	if log == nil {
		log = slog.Default()
	}
	return &Probes{log: log, deps: deps}
}

// MarkStarted flips readiness on once restore and startup are complete.
func (p *Probes) MarkStarted() {
	p.started.Store(true)
}

// MarkShuttingDown makes readiness fail so traffic drains.
func (p *Probes) MarkShuttingDown() {
	p.stopping.Store(true)
}

// Liveness fails only while shutting down.
func (p *Probes) Liveness(_ context.Context) error {
	if p.stopping.Load() {
		return ErrShuttingDown
	}
	return nil
}

// Readiness requires startup to have finished and every dependency to pass.
func (p *Probes) Readiness(ctx context.Context) error {
	if p.stopping.Load() {
		return ErrShuttingDown
	}
	if !p.started.Load() {
		return errors.New("starting")
	}
	if p.deps == nil {
		return nil
	}

	if err := p.deps.Ready(ctx); err != nil {
		p.log.Debug("readiness probe failed", slog.Any("error", err))
		return err
	}
	return nil
}
