package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Proton-105/nudge-bot/internal/bot"
	"github.com/Proton-105/nudge-bot/internal/bot/messages"
	"github.com/Proton-105/nudge-bot/internal/clock"
	"github.com/Proton-105/nudge-bot/internal/database"
	"github.com/Proton-105/nudge-bot/internal/domain"
	apperrors "github.com/Proton-105/nudge-bot/internal/errors"
	"github.com/Proton-105/nudge-bot/internal/health"
	"github.com/Proton-105/nudge-bot/internal/i18n"
	"github.com/Proton-105/nudge-bot/internal/idempotency"
	"github.com/Proton-105/nudge-bot/internal/jobs"
	jobhandlers "github.com/Proton-105/nudge-bot/internal/jobs/handlers"
	"github.com/Proton-105/nudge-bot/internal/lifecycle"
	"github.com/Proton-105/nudge-bot/internal/middleware"
	"github.com/Proton-105/nudge-bot/internal/ratelimit"
	"github.com/Proton-105/nudge-bot/internal/reminder"
	"github.com/Proton-105/nudge-bot/internal/scheduler"
	"github.com/Proton-105/nudge-bot/internal/state"
	"github.com/Proton-105/nudge-bot/internal/store"
	"github.com/Proton-105/nudge-bot/pkg/config"
	"github.com/Proton-105/nudge-bot/pkg/graceful"
	"github.com/Proton-105/nudge-bot/pkg/logger"
	"github.com/Proton-105/nudge-bot/pkg/metrics"
	redisclient "github.com/Proton-105/nudge-bot/pkg/redis"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, v, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: sentryEnvironment(cfg),
			SampleRate:  cfg.Sentry.SampleRate,
		}); err != nil {
			slog.Error("failed to init sentry", slog.Any("error", err))
			cfg.Sentry.Enabled = false
		}
	}

	log, level := logger.New(*cfg)
	slog.SetDefault(log)
	config.WatchLogLevel(v, level, log)

	log.Info("starting nudge bot",
		slog.String("bot_mode", cfg.Bot.Mode),
		slog.String("storage", cfg.Storage.Backend),
		slog.String("delivery", cfg.Delivery.Mode),
		slog.String("http_port", cfg.Server.Port),
	)

	if err := run(ctx, cfg, log); err != nil {
		log.Error("nudge bot stopped with error", slog.Any("error", err))
		sentry.Flush(2 * time.Second)
		os.Exit(1)
	}

	log.Info("nudge bot shut down")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	shutdown := lifecycle.NewShutdown(log)
	checker := health.NewChecker(log)

	state.RegisterTransitionRecorder(metrics.RecordStateTransition)

	var rdb *redisclient.Client
	if cfg.NeedsRedis() {
		client, err := redisclient.New(ctx, redisclient.FromConfig(cfg.Redis))
		if err != nil {
			return err
		}
		rdb = client
		checker.AddCheck("redis", health.NewRedisChecker(rdb))
	}

	backend, db, err := openBackend(ctx, cfg, rdb, log)
	if err != nil {
		releaseConns(nil, rdb, log)
		return err
	}

	// Until the shutdown stages own them, failed startup closes the
	// connections here.
	started := false
	defer func() {
		if !started {
			releaseConns(db, rdb, log)
		}
	}()
	if db != nil {
		checker.AddCheck("postgres", health.NewDBChecker(db))
	}

	st := store.New(backend, log.With(slog.String("component", "store")))
	if err := st.Load(ctx); err != nil {
		log.Warn("snapshot could not be restored, starting with empty state", slog.Any("error", err))
	}
	checker.AddCheck("store", st)

	catalog, err := i18n.Load(cfg.Bot.Language)
	if err != nil {
		return fmt.Errorf("load translations: %w", err)
	}
	texts := catalog.Translator(cfg.Bot.Language)
	renderer := messages.NewRenderer(texts)
	errHandler := apperrors.NewHandler(log, cfg.Sentry.Enabled)

	relay := &notifierRelay{}
	sched := scheduler.New(st, relay, clock.System{}, scheduler.Options{RestoreDelay: cfg.Scheduler.RestoreDelay}, log)
	svc := reminder.NewService(st, sched, clock.System{}, log)

	opts := bot.Options{
		Service:    svc,
		States:     st,
		Renderer:   renderer,
		ErrHandler: errHandler,
	}

	var sweeper *ratelimit.Cleaner
	if cfg.RateLimit.Enabled {
		rules, err := ratelimit.NewRules(cfg.RateLimit)
		if err != nil {
			return err
		}
		limiter, memory := ratelimit.New(cfg.RateLimit, redisClient(rdb), log)
		opts.RateLimit = middleware.NewRateLimitMiddleware(limiter, rules, texts.T("errors.rate_limited"), log)
		sweeper = ratelimit.NewCleaner(memory, log, time.Minute, 10*time.Minute)
	}
	if rdb != nil {
		opts.Dedup = idempotency.NewGuard(idempotency.NewRedisStore(rdb.Client, log), idempotency.DefaultTTL, log)
	}

	b, err := bot.New(cfg.Bot, opts, log)
	if err != nil {
		return err
	}
	checker.AddCheck("telegram", health.NewTelegramChecker(b.Telebot()))

	var (
		queue  jobs.Manager
		worker jobs.Worker
	)
	switch cfg.Delivery.Mode {
	case "queue":
		redisOpt := redisclient.FromConfig(cfg.Redis).AsynqOpt()
		queue = jobs.NewManager(redisOpt, log)
		relay.set(jobs.NewQueueNotifier(queue, jobs.TaskOptions{
			MaxRetry: cfg.Delivery.MaxRetry,
			Timeout:  cfg.Delivery.Timeout,
		}, log))

		worker = jobs.NewWorker(redisOpt, cfg.Delivery.Concurrency, log)
		worker.RegisterHandler(jobs.TaskTypeReminderDeliver, jobhandlers.NewReminderDeliverHandler(b.Notifier(), st, log))
		if err := worker.Start(); err != nil {
			_ = queue.Close()
			return fmt.Errorf("start delivery worker: %w", err)
		}
	default:
		relay.set(b.Notifier())
	}

	restored := svc.RestoreJobs(ctx)
	log.Info("reminder jobs restored", slog.Int("count", restored))
	sched.Start()

	probes := lifecycle.NewProbes(checker, log)
	httpServer := graceful.NewServer(log, &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           middleware.New(log)(lifecycle.NewMux(probes, checker)),
		ReadHeaderTimeout: 5 * time.Second,
	}, cfg.Server.ShutdownTimeout)

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	var wg sync.WaitGroup
	spawn := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	serveErr := make(chan error, 1)
	spawn(func() {
		if err := httpServer.ListenAndServe(runCtx); err != nil {
			serveErr <- err
		}
	})
	spawn(func() {
		metrics.NewStateCollector(st, stateNames()).Run(runCtx)
	})
	if sweeper != nil {
		spawn(func() { sweeper.Run(runCtx) })
	}
	spawn(b.Start)

	started = true
	probes.MarkStarted()
	log.Info("nudge bot started", slog.String("addr", cfg.Server.Addr()))

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serveErr:
		log.Error("http server failed", slog.Any("error", err))
	}

	shutdown.Register("probes", func(context.Context) error {
		probes.MarkShuttingDown()
		return nil
	})
	shutdown.Register("telegram", func(context.Context) error {
		b.Stop()
		return nil
	})
	shutdown.Register("scheduler", sched.Stop)
	if worker != nil {
		shutdown.Register("delivery worker", func(context.Context) error {
			worker.Shutdown()
			return nil
		})
	}

	shutdown.NextStage()
	shutdown.Register("store", st.Flush)
	shutdown.Register("background", func(context.Context) error {
		cancelRun()
		wg.Wait()
		return nil
	})

	shutdown.NextStage()
	if queue != nil {
		shutdown.Register("delivery queue", func(context.Context) error { return queue.Close() })
	}
	if db != nil {
		shutdown.Register("postgres", func(context.Context) error { return db.Close() })
	}
	if rdb != nil {
		shutdown.Register("redis", func(context.Context) error { return rdb.Close() })
	}
	shutdown.Register("sentry", func(context.Context) error {
		sentry.Flush(2 * time.Second)
		return nil
	})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	return shutdown.Execute(shutdownCtx)
}

// openBackend builds the snapshot backend. The returned db is non-nil only
// for the postgres backend.
func openBackend(ctx context.Context, cfg *config.Config, rdb *redisclient.Client, log *slog.Logger) (store.Backend, *sql.DB, error) {
	switch cfg.Storage.Backend {
	case "redis":
		if rdb == nil {
			return nil, nil, errors.New("redis storage backend requires a redis client")
		}
		return store.NewRedisBackend(redisclient.NewMetricsClient(rdb), cfg.Storage.RedisKey, log), nil, nil

	case "postgres":
		db, err := database.Open(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}

		applied, err := database.NewMigrator(db, log).Apply(ctx)
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("apply migrations: %w", err)
		}
		log.Info("database migrations applied", slog.Int("applied", applied))

		return store.NewPostgresBackend(db), db, nil

	default:
		return store.NewFileBackend(cfg.Storage.Path), nil, nil
	}
}

// notifierRelay lets the scheduler be built before the transport it
// delivers through. set must be called before the scheduler starts.
type notifierRelay struct {
	mu     sync.RWMutex
	target scheduler.Notifier
}

func (r *notifierRelay) set(n scheduler.Notifier) {
	r.mu.Lock()
	r.target = n
	r.mu.Unlock()
}

func (r *notifierRelay) NotifyReminder(ctx context.Context, rem domain.Reminder) error {
	r.mu.RLock()
	target := r.target
	r.mu.RUnlock()

	if target == nil {
		return errors.New("reminder delivery is not configured")
	}
	return target.NotifyReminder(ctx, rem)
}

func stateNames() []string {
	names := make([]string, 0, len(state.States))
	for _, s := range state.States {
		names = append(names, string(s))
	}
	return names
}

func sentryEnvironment(cfg *config.Config) string {
	if cfg.Sentry.Environment != "" {
		return cfg.Sentry.Environment
	}
	return cfg.AppEnv
}

func redisClient(rdb *redisclient.Client) *goredis.Client {
	if rdb == nil {
		return nil
	}
	return rdb.Client
}

// releaseConns closes whichever of db and rdb were opened.
func releaseConns(db *sql.DB, rdb *redisclient.Client, log *slog.Logger) {
	if db != nil {
		if err := db.Close(); err != nil {
			log.Warn("failed to close postgres", slog.Any("error", err))
		}
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			log.Warn("failed to close redis", slog.Any("error", err))
		}
	}
}
