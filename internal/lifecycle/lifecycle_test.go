package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type readyFunc func(ctx context.Context) error

func (f readyFunc) Ready(ctx context.Context) error { return f(ctx) }

func TestShutdown_StagesRunInOrder(t *testing.T) {
	s := NewShutdown(testLogger())

	var mu sync.Mutex
	var order []string
	record := func(name string, err error) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return err
		}
	}

	s.Register("bot", record("bot", nil))
	s.Register("scheduler", record("scheduler", errors.New("timeout")))
	s.NextStage()
	s.NextStage()
	s.Register("store", record("store", nil))
	s.NextStage()
	s.Register("redis", record("redis", nil))

	err := s.Execute(context.Background())
	require.Error(t, err)
	assert.Equal(t, "scheduler: timeout", err.Error())

	require.Len(t, order, 4)
	assert.ElementsMatch(t, []string{"bot", "scheduler"}, order[:2])
	assert.Equal(t, []string{"store", "redis"}, order[2:])
}

func TestProbes(t *testing.T) {
	depsErr := error(nil)
	p := NewProbes(readyFunc(func(context.Context) error { return depsErr }), testLogger())
	ctx := context.Background()

	assert.NoError(t, p.Liveness(ctx))
	assert.Error(t, p.Readiness(ctx), "not ready before start")

	p.MarkStarted()
	assert.NoError(t, p.Readiness(ctx))

	depsErr = errors.New("redis: down")
	assert.EqualError(t, p.Readiness(ctx), "redis: down")

	p.MarkShuttingDown()
	assert.ErrorIs(t, p.Liveness(ctx), ErrShuttingDown)
	assert.ErrorIs(t, p.Readiness(ctx), ErrShuttingDown)
}

func TestNewMux(t *testing.T) {
	p := NewProbes(nil, testLogger())
	mux := NewMux(p, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"store":"OK"}`))
	}))

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	assert.Equal(t, http.StatusOK, get("/livez").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get("/readyz").Code)
	p.MarkStarted()
	assert.Equal(t, http.StatusOK, get("/readyz").Code)
	assert.Equal(t, `{"store":"OK"}`, get("/healthz").Body.String())
	assert.Equal(t, http.StatusOK, get("/metrics").Code)
}
