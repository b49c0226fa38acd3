// Package app wires the service together: store, queue, reminder engine,
// interpreter, dispatcher and webhook server.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/chattask/internal/credential"
	"github.com/nhle/chattask/internal/dispatcher"
	"github.com/nhle/chattask/internal/interpreter"
	"github.com/nhle/chattask/internal/llm"
	"github.com/nhle/chattask/internal/messaging"
	"github.com/nhle/chattask/internal/model"
	"github.com/nhle/chattask/internal/queue"
	"github.com/nhle/chattask/internal/reminder"
	"github.com/nhle/chattask/internal/store"
	"github.com/nhle/chattask/internal/temporal"
	"github.com/nhle/chattask/internal/webhook"
	"github.com/nhle/chattask/internal/whatsapp"
)

// Secrets resolves named secrets. *credential.Store implements it.
type Secrets interface {
	Lookup(key string) (string, error)
	Optional(key string) (string, error)
}

// App is the assembled service.
type App struct {
	cfg    *model.AppConfig
	logger *zap.Logger

	Store      *store.SQLStore
	Queue      *queue.Queue
	Engine     *reminder.Engine
	Sweeper    *reminder.Sweeper
	Dispatcher *dispatcher.Dispatcher
	Webhook    *webhook.Server
	Registry   *prometheus.Registry
}

// New opens the store and builds every component. The caller must Close the
// returned App.
func New(ctx context.Context, cfg *model.AppConfig, secrets Secrets, logger *zap.Logger) (*App, error) {
	token, err := secrets.Lookup(credential.WhatsAppAccessToken)
	if err != nil {
		return nil, err
	}
	appSecret, err := secrets.Optional(credential.WhatsAppAppSecret)
	if err != nil {
		return nil, err
	}

	s, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	messenger := whatsapp.NewClient(cfg.WhatsApp.BaseURL, cfg.WhatsApp.PhoneNumberID, token)
	a, err := build(ctx, cfg, s, messenger, secrets, appSecret, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	return a, nil
}

// build assembles the components on an open store.
func build(ctx context.Context, cfg *model.AppConfig, s *store.SQLStore, messenger messaging.Messenger, secrets Secrets, appSecret string, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	q := queue.New(s, cfg.Queue, logger.Named("queue"), queue.NewMetrics(reg))
	reg.MustRegister(queue.NewStatsCollector(q))

	engine := reminder.NewEngine(s, q, messenger, reminder.Config{
		ReminderConfig:   cfg.Reminders,
		Template:         cfg.WhatsApp.ReminderTemplate,
		TemplateLanguage: cfg.WhatsApp.TemplateLanguage,
	}, logger, reminder.NewMetrics(reg))

	completer, err := newCompleter(ctx, cfg.LLM, secrets)
	if err != nil {
		return nil, err
	}
	defaults := temporal.DefaultTime{Hour: cfg.Reminders.DefaultHour, Minute: cfg.Reminders.DefaultMinute}
	parser := interpreter.New(
		interpreter.WithCompleter(completer),
		interpreter.WithDefaultTime(defaults),
		interpreter.WithEscalationThreshold(cfg.Interpreter.EscalationThreshold),
		interpreter.WithLogger(logger.Named("interpreter")),
	)

	d := dispatcher.New(s, engine, messenger, parser, dispatcher.Config{
		DashboardURL: cfg.Dashboard.URL,
		DefaultTime:  defaults,
	}, logger)

	hook, err := webhook.New(webhook.Config{
		Addr:        cfg.Server.Addr,
		VerifyToken: cfg.WhatsApp.VerifyToken,
		AppSecret:   appSecret,
	}, d, s, reg, reg, logger)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:        cfg,
		logger:     logger,
		Store:      s,
		Queue:      q,
		Engine:     engine,
		Sweeper:    reminder.NewSweeper(engine, q, cfg.Reminders.SweepInterval, logger),
		Dispatcher: d,
		Webhook:    hook,
		Registry:   reg,
	}, nil
}

// newCompleter returns nil when no provider is configured.
func newCompleter(ctx context.Context, cfg model.LLMConfig, secrets Secrets) (llm.Completer, error) {
	if cfg.Provider == "" {
		return nil, nil
	}
	key, err := secrets.Lookup(credential.LLMAPIKey)
	if err != nil {
		return nil, fmt.Errorf("llm provider %s: %w", cfg.Provider, err)
	}
	return llm.New(ctx, cfg, key)
}

// Run serves webhooks, processes delivery jobs and sweeps until ctx is
// cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Queue.Run(ctx, a.Engine.HandleJob) })
	g.Go(func() error { return a.Sweeper.Run(ctx) })
	g.Go(func() error { return a.Webhook.Run(ctx) })

	a.logger.Info("chattask running", zap.String("addr", a.cfg.Server.Addr))
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}
