package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/zjrosen/refcheck/internal/api"
	"github.com/zjrosen/refcheck/internal/flags"
	"github.com/zjrosen/refcheck/internal/infrastructure/sqlite"
	"github.com/zjrosen/refcheck/internal/log"
	"github.com/zjrosen/refcheck/internal/tracing"
	"github.com/zjrosen/refcheck/internal/tracker"
	"github.com/zjrosen/refcheck/internal/transport"
)

// env is the wired client used by commands.
type env struct {
	client *api.Client
	// db is nil when session persistence is disabled.
	db      *sqlite.DB
	tracing *tracing.Provider
	tracker *tracker.Tracker
}

type envOptions struct {
	// live opens progress channels; without it the tracker only records
	// sessions so a later run can rediscover them.
	live bool
}

func newClient() *api.Client {
	return api.New(cfg.Server.BaseURL).WithUnaryTimeout(cfg.Server.Timeout)
}

func newEnv(ctx context.Context, opts envOptions) (*env, error) {
	e := &env{client: newClient()}

	provider, err := tracing.NewProvider(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}
	e.tracing = provider

	tcfg := tracker.Config{
		Backend:      e.client,
		Tracer:       provider.Tracer(),
		HistoryLimit: cfg.History.Limit,
		DetailTTL:    cfg.Cache.DetailTTL,
		Model:        cfg.Model,
	}
	if flags.New(cfg.Flags).Enabled(flags.FlagSessionPersistence) {
		db, err := sqlite.NewDB(cfg.State.DBPath)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("opening state database: %w", err)
		}
		e.db = db
		tcfg.Store = db.SessionStore()
	}
	if opts.live {
		wsURL, err := cfg.Server.WebSocketURL()
		if err != nil {
			e.Close()
			return nil, err
		}
		tcfg.NewTransport = func(h transport.Handler) tracker.Transport {
			return transport.NewManager(transport.Config{
				WSURL:        wsURL,
				PingInterval: cfg.Server.PingInterval,
			}, h)
		}
	}
	e.tracker = tracker.New(tcfg)
	return e, nil
}

// Close releases everything in reverse order of construction.
func (e *env) Close() {
	if e.tracker != nil {
		e.tracker.Close()
	}
	if e.db != nil {
		if err := e.db.Close(); err != nil {
			log.ErrorErr(log.CatStore, "closing state database", err)
		}
	}
	if e.tracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.tracing.Shutdown(ctx); err != nil {
			log.ErrorErr(log.CatTracker, "flushing traces", err)
		}
	}
}
