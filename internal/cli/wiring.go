package cli

import (
	"log/slog"
	"os"

	"github.com/clubejota/clube/internal/app/cashback"
	"github.com/clubejota/clube/internal/app/executor"
	"github.com/clubejota/clube/internal/app/importer"
	"github.com/clubejota/clube/internal/app/ledger"
	"github.com/clubejota/clube/internal/app/notifier"
	"github.com/clubejota/clube/internal/app/tier"
	"github.com/clubejota/clube/internal/daemon"
	"github.com/clubejota/clube/internal/infra/observability"
	"github.com/clubejota/clube/internal/infra/sqlite"
)

// ─── Wiring ─────────────────────────────────────────────────────────────────
// app bundles the components every command needs, built from one config.

type app struct {
	cfg      daemon.Config
	log      *slog.Logger
	db       *sqlite.DB
	tracer   *observability.Tracer
	executor *executor.Executor
	notifier *notifier.Notifier
	ledger   *ledger.Ledger
	importer *importer.Importer
}

func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := daemon.NewLogger(cfg.Log, os.Stderr)

	rate, err := cfg.Policy.Rate()
	if err != nil {
		return nil, err
	}
	tiers, err := tier.NewEngine(cfg.Policy.Tiers)
	if err != nil {
		return nil, err
	}

	db, err := sqlite.Open(cfg.DataDir())
	if err != nil {
		return nil, err
	}

	gate := ledger.NewStaticGate(cfg.Auth.Admins...)
	n := notifier.New(db, tiers, logger)

	calc, err := cashback.New(rate)
	if err != nil {
		db.Close()
		return nil, err
	}
	l, err := ledger.New(ledger.Config{
		ResetOnReactivate: cfg.Policy.ResetOnReactivate,
		HistoryPageSize:   ledger.DefaultConfig().HistoryPageSize,
	}, ledger.Deps{
		Store:     db,
		Directory: db,
		Gate:      gate,
		Cashback:  &calc,
		Tiers:     tiers,
		Observer:  n,
		Logger:    logger,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	tracer := observability.NewTracer(observability.DefaultTracerConfig())
	exec := executor.New(executor.Config{
		MaxConcurrent:  cfg.Import.MaxConcurrent,
		DefaultTimeout: cfg.Import.Timeout(),
	}, logger)

	im, err := importer.New(importer.Config{ApprovedStatuses: cfg.Import.ApprovedStatuses}, importer.Deps{
		Ledger:    l,
		Directory: db,
		Gate:      gate,
		Executor:  exec,
		Tracer:    tracer,
		Logger:    logger,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		log:      logger,
		db:       db,
		tracer:   tracer,
		executor: exec,
		notifier: n,
		ledger:   l,
		importer: im,
	}, nil
}

func (a *app) Close() error { return a.db.Close() }
