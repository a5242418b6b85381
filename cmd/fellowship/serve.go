package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"

	"fellowship/internal/adapters/auditstream"
	"fellowship/internal/adapters/auth"
	"fellowship/internal/adapters/email"
	web "fellowship/internal/adapters/http"
	"fellowship/internal/adapters/http/middleware"
	"fellowship/internal/adapters/http/perf"
	"fellowship/internal/adapters/metrics"
	"fellowship/internal/adapters/push"
	"fellowship/internal/adapters/storage"
	"fellowship/internal/adapters/telemetry"
	"fellowship/internal/application/notify"
	"fellowship/internal/application/orchestrators"
	"fellowship/internal/config"
)

const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 60 * time.Second
	idleTimeout       = 120 * time.Second

	// login, register and refresh share this stricter budget per client
	authRequestsPerMinute = 10
	authBurst             = 5

	reminderJobTimeout = 2 * time.Minute
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveRun(cmd)
		},
	}
}

func serveRun(cmd *cobra.Command) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if _, err := maxprocs.Set(maxprocs.Logger(log.Infof)); err != nil {
		log.Warnw("startup_event", "event", "maxprocs_failed", "error", err)
	}
	log.Infow("startup_event", "event", "starting", "version", version, "mode", cfg.Mode, "addr", cfg.ListenAddr)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	collector := perf.NewCollector(perf.DefaultRingSize)
	tracing, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: programName,
		Version:     version,
	})
	if err != nil {
		return err
	}

	db, err := openDB(cfg, log, storage.QueryTimer{Collector: collector, Observer: m})
	if err != nil {
		return err
	}
	defer func() { _ = storage.Close(db) }()
	if err := tracing.InstrumentDB(db); err != nil {
		return fmt.Errorf("failed to instrument database: %w", err)
	}
	stores := newStores(db)

	auditor := &orchestrators.Auditor{Store: stores.Audit, Log: log, OnMirrorFailure: m.AuditStreamFailed}
	limiter, authLimiter := middleware.Limiter(middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)),
		middleware.Limiter(middleware.NewRateLimiter(authRequestsPerMinute/60.0, authBurst))
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = auditstream.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
		auditor.Mirror = auditstream.NewPublisher(rdb, cfg.AuditStream)
		limiter = middleware.NewRedisLimiter(rdb, "fellowship:rl:global", int(cfg.RateLimitRPS*60), time.Minute, log)
		authLimiter = middleware.NewRedisLimiter(rdb, "fellowship:rl:auth", authRequestsPerMinute, time.Minute, log)
		log.Infow("startup_event", "event", "redis_connected", "audit_stream", cfg.AuditStream)
	}

	if err := seedAdmin(ctx, cfg, stores, auditor, log); err != nil {
		return err
	}

	dispatcher := notify.NewDispatcher(notify.Config{}, notify.Deps{
		Subscriptions: stores.Push,
		Push:          pushSender(cfg, log),
		Email: email.New(email.Settings{
			ResendAPIKey: cfg.ResendAPIKey,
			SMTPHost:     cfg.SMTPHost,
			SMTPPort:     cfg.SMTPPort,
			SMTPUser:     cfg.SMTPUser,
			SMTPPassword: cfg.SMTPPassword,
			From:         cfg.EmailFrom,
		}, log),
		Metrics: m,
		Log:     log,
	})
	dispatcher.Start()

	scheduler := notify.NewScheduler(log, reminderJobTimeout)
	reminders := orchestrators.EventRemindersDeps{
		Events:   stores.Events,
		RSVPs:    stores.RSVPs,
		Members:  stores.Members,
		Notifier: dispatcher,
		Sent:     orchestrators.NewReminderLog(),
		BaseURL:  cfg.APIBaseURL,
		Now:      time.Now,
		Log:      log,
	}
	if err := scheduler.Add("event_reminders", cfg.ReminderCron, func(ctx context.Context) error {
		n, err := orchestrators.ExecuteSendEventReminders(ctx, reminders)
		if n > 0 {
			log.Infow("reminder_event", "event", "reminders_queued", "members", n)
		}
		return err
	}); err != nil {
		return err
	}
	scheduler.Start()

	handler := web.NewMux(web.Deps{
		Stores:         stores,
		Ping:           func(ctx context.Context) error { return storage.Ping(ctx, db) },
		Tokens:         auth.NewIssuer(cfg.JWTSecret, cfg.JWTRefreshSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL),
		Auditor:        auditor,
		Notifier:       dispatcher,
		Metrics:        m,
		Perf:           collector,
		Telemetry:      tracing,
		Limiter:        limiter,
		AuthLimiter:    authLimiter,
		BaseURL:        cfg.APIBaseURL,
		StaticDir:      cfg.StaticDir,
		VAPIDPublicKey: cfg.VAPIDPublicKey,
		GenerateID:     uuid.NewString,
		Now:            time.Now,
		Log:            log,
	})
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ErrorLog:          zap.NewStdLog(log.Desugar()),
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Infow("startup_event", "event", "listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}
	return shutdown(cfg, log, srv, scheduler, dispatcher, tracing)
}

// shutdown stops accepting requests, then drains background work. Every
// step shares one SHUTDOWN_TIMEOUT budget.
func shutdown(cfg *config.Config, log *zap.SugaredLogger, srv *http.Server, scheduler *notify.Scheduler, dispatcher *notify.Dispatcher, tracing *telemetry.Provider) error {
	log.Infow("shutdown_event", "event", "shutting_down", "timeout", cfg.ShutdownTimeout)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http: %w", err))
	}
	if err := scheduler.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("scheduler: %w", err))
	}
	if err := dispatcher.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("dispatcher: %w", err))
	}
	if err := tracing.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		log.Errorw("shutdown_event", "event", "shutdown_incomplete", "error", err)
		return err
	}
	log.Infow("shutdown_event", "event", "stopped")
	return nil
}

func pushSender(cfg *config.Config, log *zap.SugaredLogger) push.Sender {
	if !cfg.PushEnabled() {
		log.Infow("startup_event", "event", "push_disabled")
		return push.NewNoopSender(log)
	}
	return push.NewWebPushSender(push.VAPID{
		PublicKey:  cfg.VAPIDPublicKey,
		PrivateKey: cfg.VAPIDPrivateKey,
		Subject:    cfg.VAPIDSubject,
	}, nil, log)
}
