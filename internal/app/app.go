package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/aretw0/introspection"

	"notesync/internal/config"
	"notesync/internal/connectivity"
	"notesync/internal/db"
	"notesync/internal/localstore"
	"notesync/internal/model"
	"notesync/internal/notelist"
	"notesync/internal/reconcile"
	"notesync/internal/remote"
)

// App is the client-side aggregate: local replica, remote client,
// connectivity monitor, reconciler and note list, wired together once.
type App struct {
	Config     config.Client
	Store      *localstore.Store
	Remote     *remote.Client
	Monitor    *connectivity.Monitor
	Reconciler *reconcile.Reconciler
	List       *notelist.Engine

	db  *sql.DB
	log *slog.Logger
}

// Open validates cfg, opens the local replica and wires the components.
func Open(ctx context.Context, cfg config.Client, log *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}

	database, err := db.OpenSQLite(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}

	store := localstore.New(database, cfg.OwnerID)
	if err := store.EnsureSchema(ctx); err != nil {
		database.Close()
		return nil, err
	}

	rc, err := remote.NewClient(cfg.ServerURL, cfg.Token, cfg.RequestTimeout)
	if err != nil {
		database.Close()
		return nil, err
	}

	monitor, err := connectivity.NewMonitor(rc, cfg.ProbeInterval, log.With("component", "connectivity"))
	if err != nil {
		database.Close()
		return nil, err
	}

	rec := reconcile.New(store, rc, reconcile.WithLogger(log.With("component", "reconciler")))
	list := notelist.New(rc, store, rec, cfg.OwnerID, cfg.PageSize, log.With("component", "note_list"))
	rec.OnSynced(list.Reseed)

	return &App{
		Config:     cfg,
		Store:      store,
		Remote:     rc,
		Monitor:    monitor,
		Reconciler: rec,
		List:       list,
		db:         database,
		log:        log,
	}, nil
}

// Run probes connectivity and syncs on every reconnect until ctx is done.
// It returns only after any background sync run has finished, so Close is
// safe to call afterwards.
func (a *App) Run(ctx context.Context) error {
	stop := a.Reconciler.Start(ctx, a.Monitor)

	a.log.Info("client running", "server", a.Config.ServerURL, "owner_id", a.Config.OwnerID)
	err := a.Monitor.Run(ctx)

	stop()
	a.Reconciler.Wait()
	return err
}

// Sync drains pending notes once. The note list is reseeded with the result.
func (a *App) Sync(ctx context.Context) ([]model.Note, error) {
	return a.Reconciler.SyncPending(ctx)
}

// Components lists the introspectable parts of the app.
func (a *App) Components() []introspection.Introspectable {
	return []introspection.Introspectable{a.Reconciler, a.List}
}

func (a *App) Close() error {
	return a.db.Close()
}
