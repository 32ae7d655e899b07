package main

import (
	"database/sql"
	"fmt"

	"xpromo/internal/promoter"
	"xpromo/pkg/account"
	"xpromo/pkg/agenda"
	"xpromo/pkg/auth"
	"xpromo/pkg/config"
	"xpromo/pkg/dispatcher"
	"xpromo/pkg/logger"
	"xpromo/pkg/ratelimit"
	"xpromo/pkg/scheduler"
	"xpromo/pkg/textgen"
	"xpromo/pkg/twitter"
)

// app wires every component over one database handle.
type app struct {
	cfg *config.Config
	log logger.Logger
	db  *sql.DB

	accounts   *account.SQLiteStore
	agendas    *agenda.Store
	jobs       *scheduler.SQLiteJobStore
	scheduler  *scheduler.Scheduler
	dispatcher *dispatcher.Dispatcher
	promoter   *promoter.Promoter
}

// buildApp constructs the full component graph used by promote and run.
func buildApp() (*app, error) {
	cfg, log, db, err := setup()
	if err != nil {
		return nil, err
	}

	accounts, err := account.NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	agendas, err := agenda.NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	jobs, err := scheduler.NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	pool := account.NewPool(accounts, log)
	client := twitter.NewClient(&cfg.Twitter, log)
	disp := dispatcher.New(pool, accounts, client, &cfg.Pool, log)
	sched := scheduler.New(jobs, &cfg.Scheduler, log)

	apiKey, err := resolveTextGenKey(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	generator := textgen.NewOpenAI(&config.TextGenConfig{APIKey: apiKey, Model: cfg.TextGen.Model}, log)

	limiter := ratelimit.PerMinute(cfg.RateLimit.RequestsPerMinute)

	prom := promoter.New(disp, generator, agendas, sched, limiter, &cfg.Scheduler, log)
	prom.RegisterHandlers(sched)

	return &app{
		cfg:        cfg,
		log:        log,
		db:         db,
		accounts:   accounts,
		agendas:    agendas,
		jobs:       jobs,
		scheduler:  sched,
		dispatcher: disp,
		promoter:   prom,
	}, nil
}

func (a *app) Close() {
	a.db.Close()
}

// resolveTextGenKey prefers the configured key, then the secret store.
func resolveTextGenKey(cfg *config.Config) (string, error) {
	if cfg.TextGen.APIKey != "" {
		return cfg.TextGen.APIKey, nil
	}

	manager, err := auth.NewManager()
	if err != nil {
		return "", fmt.Errorf("failed to open secret store: %w", err)
	}
	secret, err := manager.Retrieve(auth.SecretTextGenAPIKey)
	if err != nil {
		return "", fmt.Errorf("no text-generation API key configured: set XPROMO_TEXTGEN_API_KEY or run 'xpromo auth set-key'")
	}
	return secret.Value, nil
}
