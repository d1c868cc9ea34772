// Package app wires configuration, the NuageX client, the reconciler and the
// optional run journal together for the command-line, server and tool
// entry points.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/michaelbrown/nuxlab/internal/config"
	"github.com/michaelbrown/nuxlab/internal/lablock"
	"github.com/michaelbrown/nuxlab/internal/metrics"
	"github.com/michaelbrown/nuxlab/internal/nuagex"
	"github.com/michaelbrown/nuxlab/internal/reconcile"
	"github.com/michaelbrown/nuxlab/internal/storage"
	"github.com/michaelbrown/nuxlab/internal/storage/sqlite"
)

// App is a configured nuxlab instance.
type App struct {
	Config *config.Config
	Client *nuagex.Client
	// Store is nil when the journal is disabled.
	Store storage.Store
	Log   *slog.Logger
}

// New builds an App from cfg. The journal database is opened only when
// enabled in the config.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{
		Config: cfg,
		Log:    logger,
		Client: nuagex.New(nuagex.Config{
			BaseURL: cfg.API.URL,
			Credentials: nuagex.Credentials{
				Username: cfg.Auth.Username,
				Password: cfg.Auth.Password,
			},
			Timeout: cfg.API.Timeout,
			Logger:  logger,
		}),
	}

	if cfg.Journal.Enabled {
		store, err := sqlite.Open(cfg.Journal.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening journal: %w", err)
		}
		a.Store = store
	}
	return a, nil
}

// Reconciler returns a reconciler configured with the app's wait budget.
// onPoll may be nil.
func (a *App) Reconciler(onPoll func(attempt int, lab *nuagex.Lab)) *reconcile.Reconciler {
	r := reconcile.New(a.Client,
		reconcile.WithWait(a.Config.Wait.Attempts, a.Config.Wait.Interval),
		reconcile.WithLogger(a.Log),
	)
	r.OnPoll = onPoll
	return r
}

// Ensure runs one reconciliation and records it in the journal when enabled.
// A journal failure is logged but does not fail the reconciliation.
func (a *App) Ensure(ctx context.Context, p reconcile.Params, onPoll func(attempt int, lab *nuagex.Lab)) (*reconcile.Result, error) {
	run := storage.NewRun(p)
	res, err := a.reconcileLocked(ctx, p, onPoll)
	run.Finish(res, err)
	metrics.RecordReconcile(string(run.DesiredState), string(run.Action), run.Changed, ErrorKind(err), run.FinishedAt.Sub(run.StartedAt))

	if a.Store != nil {
		if jerr := a.Store.RecordRun(context.WithoutCancel(ctx), run); jerr != nil {
			a.Log.Warn("recording run", "run", run.ID, "error", jerr)
		}
	}
	if err != nil {
		return nil, err
	}
	a.Log.Info("reconciled lab", "lab", p.Name, "action", res.Action, "changed", res.Changed, "run", run.ID)
	return res, nil
}

// reconcileLocked holds the lab's lock file for the duration of the
// reconciliation. Check mode changes nothing and skips the lock.
func (a *App) reconcileLocked(ctx context.Context, p reconcile.Params, onPoll func(attempt int, lab *nuagex.Lab)) (*reconcile.Result, error) {
	if !p.CheckMode && strings.TrimSpace(p.Name) != "" {
		unlock, err := lablock.Acquire(ctx, a.Config.Locks.Dir, strings.TrimSpace(p.Name))
		if err != nil {
			return nil, err
		}
		defer unlock()
	}
	return a.Reconciler(onPoll).Reconcile(ctx, p)
}

// Close releases the journal, if open.
func (a *App) Close() error {
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}
