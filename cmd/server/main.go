package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/sobernest/pkg/config"
	"github.com/dmitrymomot/sobernest/pkg/email"
	"github.com/dmitrymomot/sobernest/pkg/httpserver"
	"github.com/dmitrymomot/sobernest/pkg/listing"
	"github.com/dmitrymomot/sobernest/pkg/lock"
	"github.com/dmitrymomot/sobernest/pkg/logger"
	"github.com/dmitrymomot/sobernest/pkg/metrics"
	"github.com/dmitrymomot/sobernest/pkg/notifications"
	"github.com/dmitrymomot/sobernest/pkg/pg"
	"github.com/dmitrymomot/sobernest/pkg/redis"
	"github.com/dmitrymomot/sobernest/pkg/subscription"
	"github.com/dmitrymomot/sobernest/pkg/user"
	"github.com/dmitrymomot/sobernest/pkg/workflow"
	"github.com/dmitrymomot/sobernest/svc/billing"
	"github.com/dmitrymomot/sobernest/svc/enrollment"
	"github.com/dmitrymomot/sobernest/svc/lifecycle"
	"github.com/dmitrymomot/sobernest/svc/mailer"
	"github.com/dmitrymomot/sobernest/svc/pgstore"
)

type appConfig struct {
	Env               string        `env:"APP_ENV" envDefault:"development"`
	ServiceName       string        `env:"SERVICE_NAME" envDefault:"sobernest"`
	WorkflowsSeedFile string        `env:"WORKFLOWS_SEED_FILE"`
	ReadinessTimeout  time.Duration `env:"READINESS_TIMEOUT" envDefault:"3s"`
	EnrollmentToken   string        `env:"ENROLLMENT_API_TOKEN"` // empty disables the enrollment endpoint
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var app appConfig
	config.MustLoad(&app)

	log := logger.New(
		logger.WithEnvironment(app.Env, app.ServiceName),
		logger.WithContextValue("request_id", middleware.RequestIDKey),
	)
	logger.SetAsDefault(log)

	if err := run(ctx, app, log); err != nil {
		log.Error("server exited", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, app appConfig, log *slog.Logger) error {
	var (
		pgCfg     pg.Config
		redisCfg  redis.Config
		emailCfg  email.Config
		mailerCfg mailer.Config
		subCfg    subscription.Config
		stripeCfg subscription.StripeConfig
		paddleCfg subscription.PaddleConfig
		cycleCfg  lifecycle.Config
		httpCfg   httpserver.Config
	)
	for _, load := range []func() error{
		func() error { return config.Load(&pgCfg) },
		func() error { return config.Load(&redisCfg) },
		func() error { return config.Load(&emailCfg) },
		func() error { return config.Load(&mailerCfg) },
		func() error { return config.Load(&subCfg) },
		func() error { return config.Load(&stripeCfg) },
		func() error { return config.Load(&paddleCfg) },
		func() error { return config.Load(&cycleCfg) },
		func() error { return config.Load(&httpCfg) },
	} {
		if err := load(); err != nil {
			return err
		}
	}

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, pgCfg, pgstore.Migrations, pgstore.MigrationsDir, log); err != nil {
		return err
	}

	checks := []httpserver.Check{{Name: "postgres", Fn: pg.Healthcheck(pool)}}

	var (
		locker   lock.Locker
		eventLog subscription.EventLog
	)
	if redisCfg.Enabled() {
		client, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			return err
		}
		defer client.Close()
		locker = lock.NewRedisLocker(client)
		eventLog = subscription.NewRedisEventLog(client, subCfg.EventRetention)
		checks = append(checks, httpserver.Check{Name: "redis", Fn: redis.Healthcheck(client)})
	} else {
		locker, eventLog = postgresCoordination(ctx, pool, subCfg, log)
	}

	sender, err := email.New(emailCfg)
	if err != nil {
		return err
	}

	reg, m := metrics.NewRegistry()

	users := pgstore.NewUserStore(pool)
	subs := pgstore.NewSubscriptionStore(pool)
	listings := pgstore.NewListingStore(pool)
	apps := pgstore.NewApplicationStore(pool)
	workflows := pgstore.NewWorkflowStore(pool)

	gate := listing.NewGate(listings, listing.WithLogger(log), listing.WithMetrics(m))
	mail := mailer.New(sender, mailerCfg, mailer.WithLogger(log))

	notifier := notifications.NewNotifier(
		notifications.NewMultiDeliverer([]notifications.Deliverer{
			notifications.NewEmailDeliverer(sender, user.AdminEmails(users),
				notifications.WithRenderer(mail.RenderAdmin),
				notifications.WithConcurrency(emailCfg.BroadcastConcurrency),
			),
			notifications.NewLogDeliverer(log),
		}, notifications.WithMultiDelivererLogger(log)),
		notifications.WithLogger(log),
	)

	engine := workflow.NewEngine(workflows, users, sender, workflow.WithLogger(log))
	if app.WorkflowsSeedFile != "" {
		seed, err := workflow.LoadSeedFile(app.WorkflowsSeedFile)
		if err != nil {
			return err
		}
		if err := workflow.Seed(ctx, workflows, seed); err != nil {
			return err
		}
		log.InfoContext(ctx, "workflows seeded", logger.Count(len(seed)))
	}

	reconciler := subscription.NewReconciler(subs, users, gate,
		subscription.WithLogger(log),
		subscription.WithGracePeriod(subCfg.GracePeriod),
		subscription.WithEventLog(eventLog),
		subscription.WithLocker(locker, subCfg.LockTTL),
		subscription.WithMailer(mail),
		subscription.WithNotifier(notifier),
		subscription.WithEnroller(engine),
		subscription.WithPublishedCounter(listings),
		subscription.WithMetrics(m),
	)

	provider, err := subscription.NewProvider(subCfg, stripeCfg, paddleCfg)
	if err != nil {
		return err
	}

	scheduler := lifecycle.NewScheduler(cycleCfg, subs, apps, users, gate, mail,
		lifecycle.WithLogger(log),
		lifecycle.WithLocker(locker),
		lifecycle.WithNotifier(notifier),
		lifecycle.WithWorkflows(engine),
		lifecycle.WithMetrics(m),
	)
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	// Covers a failed listen, where shutdown hooks never run.
	defer func() { _ = scheduler.Stop(context.WithoutCancel(ctx)) }()

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)
	billing.NewHandler(provider, reconciler, billing.WithLogger(log), billing.WithMetrics(m)).Mount(r)
	if app.EnrollmentToken != "" {
		enrollment.NewHandler(engine, users, app.EnrollmentToken, log).Mount(r)
	}
	r.Get("/health/live", httpserver.LivenessHandler())
	r.Get("/health/ready", httpserver.ReadinessHandler(log, app.ReadinessTimeout, checks...))
	r.Handle("/metrics", metrics.Handler(reg))

	srv := httpserver.NewFromConfig(httpCfg,
		httpserver.WithLogger(log),
		httpserver.WithShutdownHook("scheduler", scheduler.Stop),
	)
	return srv.Run(ctx, r)
}

// postgresCoordination is the single-store fallback when Redis is not
// configured: advisory locks and the processed_billing_events table.
func postgresCoordination(ctx context.Context, pool *pgxpool.Pool, cfg subscription.Config, log *slog.Logger) (lock.Locker, subscription.EventLog) {
	events := pgstore.NewEventLog(pool)
	n, err := events.Purge(ctx, cfg.EventRetention)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.WarnContext(ctx, "purge processed billing events", logger.Error(err))
	} else if n > 0 {
		log.InfoContext(ctx, "purged processed billing events", logger.Count(n))
	}
	return lock.NewPGAdvisoryLocker(pool), events
}
