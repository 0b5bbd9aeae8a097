package main

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ericfisherdev/notipi/internal/adapter/driven/channel"
	"github.com/ericfisherdev/notipi/internal/adapter/driven/memory"
	sqliteadapter "github.com/ericfisherdev/notipi/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/notipi/internal/adapter/driven/templateapi"
	httphandler "github.com/ericfisherdev/notipi/internal/adapter/driving/http"
	"github.com/ericfisherdev/notipi/internal/application"
	"github.com/ericfisherdev/notipi/internal/config"
	"github.com/ericfisherdev/notipi/internal/domain/model"
	"github.com/ericfisherdev/notipi/internal/domain/port/driven"
)

// app is the composition root shared by every subcommand.
type app struct {
	cfg      *config.Config
	db       *sqliteadapter.DB
	registry *prometheus.Registry
	metrics  *application.Metrics

	credentials *sqliteadapter.CredentialRepo
	owners      *sqliteadapter.OwnerRepo
	quotas      *sqliteadapter.QuotaRepo
	queue       *sqliteadapter.JobQueue
	counters    driven.CounterStore
}

// openApp loads configuration, opens the database and applies migrations.
func openApp(envFile string) (*app, error) {
	var files []string
	if envFile != "" {
		files = []string{envFile}
	}
	if err := config.LoadDotEnv(files...); err != nil {
		return nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	slog.Info("config loaded",
		"env", cfg.Env,
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"credential_lookup", cfg.LookupMode,
		"counter_store", cfg.CounterStore,
		"email_driver", cfg.EmailDriver,
	)

	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	slog.Info("database opened", "path", cfg.DBPath)

	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		return nil, err
	}
	version, err := sqliteadapter.SchemaVersion(db.Writer)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("schema ready", "version", version)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &app{
		cfg:         cfg,
		db:          db,
		registry:    registry,
		metrics:     application.NewMetrics(registry),
		credentials: sqliteadapter.NewCredentialRepo(db),
		owners:      sqliteadapter.NewOwnerRepo(db),
		quotas:      sqliteadapter.NewQuotaRepo(db),
		queue:       sqliteadapter.NewJobQueue(db),
		counters:    counterStore(cfg, db),
	}, nil
}

// counterStore picks where rate windows and sent markers live. The memory
// store only holds while a single process serves and works the queue.
func counterStore(cfg *config.Config, db *sqliteadapter.DB) driven.CounterStore {
	if cfg.CounterStore == "memory" {
		return memory.NewCounterStore()
	}
	return sqliteadapter.NewCounterRepo(db)
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

func (a *app) rateLimits() application.RateLimits {
	return application.RateLimits{
		Window:  a.cfg.RateWindow,
		Global:  a.cfg.RateGlobal,
		PerUser: a.cfg.RatePerUser,
		Bulk:    a.cfg.RateBulk,
	}
}

func (a *app) queuePolicy() application.QueuePolicy {
	return application.QueuePolicy{
		MaxAttempts: a.cfg.MaxAttempts,
		BackoffBase: a.cfg.BackoffBase,
		Retention: model.RetentionPolicy{
			CompletedCount:  a.cfg.RetentionCompleted,
			CompletedMaxAge: a.cfg.RetentionMaxAge,
			FailedCount:     a.cfg.RetentionFailed,
		},
	}
}

func (a *app) templateStore() (driven.TemplateStore, error) {
	if !a.cfg.HasTemplateAPI() {
		return sqliteadapter.NewTemplateRepo(a.db), nil
	}
	client, err := templateapi.NewClient(a.cfg.TemplateAPIURL, a.cfg.TemplateAPIToken)
	if err != nil {
		return nil, err
	}
	slog.Info("using remote template service", "url", a.cfg.TemplateAPIURL)
	return client, nil
}

// httpHandler assembles the ingress pipeline behind the HTTP routes.
func (a *app) httpHandler() (http.Handler, error) {
	templates, err := a.templateStore()
	if err != nil {
		return nil, err
	}

	gate := application.NewCredentialGate(
		a.credentials,
		application.NewSessionVerifier(a.cfg.SessionSecret),
		application.LookupMode(a.cfg.LookupMode),
	)
	limiter := application.NewRateLimiter(a.counters, a.rateLimits(), a.metrics)
	guard := application.NewQuotaGuard(a.quotas, a.owners, a.cfg.Plans, a.metrics)
	dispatcher := application.NewDispatcher(a.queue, a.queuePolicy(), a.cfg.BulkConcurrency, a.metrics)
	sends := application.NewSendService(guard, application.NewTemplateRenderer(templates), dispatcher, a.queue)

	h := httphandler.NewHandler(gate, limiter, sends, httphandler.Options{
		TrustProxy:           a.cfg.TrustProxy,
		ExposeInternalErrors: a.cfg.IsDevelopment(),
	}, slog.Default())

	return httphandler.NewServeMux(h, promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}), slog.Default()), nil
}

// sender routes each channel to its configured transport. Channels without a
// transport fall back to the log sender in development and otherwise fail
// permanently.
func (a *app) sender() (*channel.Router, error) {
	router := channel.NewRouter()

	switch a.cfg.EmailDriver {
	case "smtp":
		router.Register(model.ChannelEmail, channel.NewSMTPSender(channel.SMTPConfig{
			Host:     a.cfg.SMTPHost,
			Port:     a.cfg.SMTPPort,
			Username: a.cfg.SMTPUsername,
			Password: a.cfg.SMTPPassword,
			From:     a.cfg.SMTPFrom,
		}))
	case "log":
		router.Register(model.ChannelEmail, channel.LogSender{})
	default:
		return nil, fmt.Errorf("unknown email driver %q", a.cfg.EmailDriver)
	}

	webhooks := map[model.Channel]string{
		model.ChannelSMS:  a.cfg.SMSWebhookURL,
		model.ChannelPush: a.cfg.PushWebhookURL,
	}
	for ch, url := range webhooks {
		switch {
		case url != "":
			router.Register(ch, channel.NewWebhookSender(url, a.cfg.WebhookToken, a.cfg.WebhookTimeout))
		case a.cfg.IsDevelopment():
			router.Register(ch, channel.LogSender{})
		default:
			slog.Warn("no gateway configured, jobs on this channel will fail", "channel", ch)
		}
	}
	return router, nil
}

func (a *app) workerPool() (*application.WorkerPool, error) {
	sender, err := a.sender()
	if err != nil {
		return nil, err
	}
	return application.NewWorkerPool(
		a.queue,
		sender,
		sqliteadapter.NewUsageLedger(a.db),
		sqliteadapter.NewAuditRepo(a.db),
		a.counters,
		a.queuePolicy(),
		application.WorkerConfig{
			Concurrency:  a.cfg.Workers,
			Lease:        a.cfg.WorkerLease,
			PollInterval: a.cfg.WorkerPollInterval,
			DrainTimeout: a.cfg.WorkerDrainTimeout,
			SendRate:     a.cfg.SendRatePerSecond,
			SendBurst:    a.cfg.SendBurst,
			MarkerTTL:    a.cfg.SentMarkerTTL,
		},
		a.metrics,
	), nil
}

func (a *app) retention() *application.RetentionService {
	return application.NewRetentionService(a.queue, a.counters, a.queuePolicy(), a.cfg.RateWindow, a.cfg.RetentionSchedule, a.metrics)
}
