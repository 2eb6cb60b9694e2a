package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	movingaverage "github.com/RobinUS2/golang-moving-average"
	"github.com/aretw0/introspection"
	"github.com/aretw0/lifecycle"
	"github.com/google/uuid"

	"notesync/internal/connectivity"
	"notesync/internal/model"
	"notesync/internal/remote"
)

var (
	ErrSyncInProgress = errors.New("sync already in progress")
)

type (
	// LocalStore is the part of the local replica the reconciler writes to.
	LocalStore interface {
		Put(ctx context.Context, n model.Note) error
		Replace(ctx context.Context, oldID string, n model.Note) error
		FindPending(ctx context.Context) ([]model.Note, error)
		AllOrderedByCreatedAtDesc(ctx context.Context) ([]model.Note, error)
	}

	// Remote confirms notes on the server.
	Remote interface {
		CreateNote(ctx context.Context, idempotencyKey, title, content string) (model.Note, error)
	}

	// Connectivity is the online/offline event source that drives sync runs.
	Connectivity interface {
		Online() bool
		OnChange(h connectivity.Handler) (unsubscribe func())
	}

	// Stats summarizes reconciler activity.
	Stats struct {
		Runs            int       `json:"runs"`
		Synced          int       `json:"synced"`
		Failed          int       `json:"failed"`
		LastRunAt       time.Time `json:"last_run_at"`
		LastError       string    `json:"last_error,omitempty"`
		AvgRemoteMillis float64   `json:"avg_remote_ms"`
	}

	Option func(*Reconciler)
)

// Reconciler turns optimistic local writes into confirmed remote ones.
type Reconciler struct {
	store  LocalStore
	remote Remote
	log    *slog.Logger
	now    func() time.Time
	newID  func() string

	running atomic.Bool
	bg      sync.WaitGroup

	mu        sync.Mutex
	inflight  map[string]struct{}
	triggered bool
	rerun     bool
	listeners []func([]model.Note)
	stats     Stats
	latency   *movingaverage.MovingAverage
}

func WithLogger(log *slog.Logger) Option {
	return func(r *Reconciler) { r.log = log }
}

func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(r *Reconciler) { r.newID = newID }
}

func New(store LocalStore, rem Remote, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:    store,
		remote:   rem,
		log:      slog.Default(),
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
		inflight: make(map[string]struct{}),
		latency:  movingaverage.New(10),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnSynced registers fn to receive the full local replica after every sync run.
func (r *Reconciler) OnSynced(fn func([]model.Note)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// CreateNote saves an optimistic note locally and then tries to confirm it remotely.
// Remote failures leave the note pending and are not returned as errors; the
// returned note is the canonical one when confirmation succeeded.
func (r *Reconciler) CreateNote(ctx context.Context, title, content, ownerID string) (model.Note, error) {
	n := model.Note{
		ID:          r.newID(),
		Title:       title,
		Content:     content,
		OwnerID:     ownerID,
		CreatedAt:   r.now().UTC(),
		PendingSync: true,
	}

	// claimed before it becomes visible to FindPending, so a concurrent run skips it
	r.claim(n.ID)
	defer r.release(n.ID)

	if err := r.store.Put(ctx, n); err != nil {
		return model.Note{}, fmt.Errorf("save optimistic note: %w", err)
	}

	canonical, ok, err := r.submit(ctx, n)
	if err != nil {
		return n, err
	}
	if !ok {
		return n, nil
	}
	return canonical, nil
}

// SyncPending submits every pending note, oldest first, one at a time.
// Remote failures are logged and skipped; local-store failures abort the run.
// It returns the whole replica newest first.
func (r *Reconciler) SyncPending(ctx context.Context) ([]model.Note, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer r.running.Store(false)

	started := r.now()
	synced, failed, err := r.drain(ctx)
	if err == nil {
		var notes []model.Note
		notes, err = r.store.AllOrderedByCreatedAtDesc(ctx)
		if err == nil {
			r.finishRun(started, synced, failed, nil)
			r.notify(notes)
			return notes, nil
		}
		err = fmt.Errorf("load local notes: %w", err)
	}

	r.finishRun(started, synced, failed, err)
	return nil, err
}

func (r *Reconciler) drain(ctx context.Context) (synced, failed int, err error) {
	pending, err := r.store.FindPending(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("find pending notes: %w", err)
	}
	if len(pending) > 0 {
		r.log.Info("syncing pending notes", "count", len(pending))
	}

	for _, n := range pending {
		if err := ctx.Err(); err != nil {
			return synced, failed, err
		}
		// CreateNote is still submitting this one
		if !r.claim(n.ID) {
			continue
		}

		_, ok, err := r.submit(ctx, n)
		r.release(n.ID)
		if err != nil {
			return synced, failed, err
		}
		if ok {
			synced++
		} else {
			failed++
		}
	}
	return synced, failed, nil
}

// submit sends n to the remote and replaces the optimistic record on success.
// ok is false when the remote failed; err is only set for local-store failures.
func (r *Reconciler) submit(ctx context.Context, n model.Note) (canonical model.Note, ok bool, err error) {
	start := time.Now()
	canonical, remoteErr := r.remote.CreateNote(ctx, n.ID, n.Title, n.Content)
	r.observeLatency(time.Since(start))

	if remoteErr != nil {
		switch {
		case errors.Is(remoteErr, remote.ErrMalformedResponse):
			r.log.Warn("remote returned malformed note", "id", n.ID, "error", remoteErr)
		case ctx.Err() != nil:
			r.log.Debug("remote create abandoned", "id", n.ID, "error", remoteErr)
		default:
			r.log.Info("remote create failed, note stays pending", "id", n.ID, "error", remoteErr)
		}
		return model.Note{}, false, nil
	}

	canonical.PendingSync = false
	if canonical.OwnerID == "" {
		canonical.OwnerID = n.OwnerID
	}

	// the server has the note now, so the swap must land even if the caller gave up
	if err := r.store.Replace(context.WithoutCancel(ctx), n.ID, canonical); err != nil {
		return model.Note{}, false, fmt.Errorf("replace note %s with %s: %w", n.ID, canonical.ID, err)
	}

	r.log.Debug("note confirmed", "local_id", n.ID, "id", canonical.ID)
	return canonical, true, nil
}

// Start runs a sync now if conn is online and again on every transition to online.
// The returned function stops listening.
func (r *Reconciler) Start(ctx context.Context, conn Connectivity) (stop func()) {
	unsubscribe := conn.OnChange(func(online bool) {
		if online {
			r.Trigger(ctx)
		}
	})
	if conn.Online() {
		r.Trigger(ctx)
	}
	return unsubscribe
}

// Trigger runs SyncPending in the background. Triggers that arrive during a run
// are folded into a single follow-up run.
func (r *Reconciler) Trigger(ctx context.Context) {
	r.mu.Lock()
	if r.triggered {
		r.rerun = true
		r.mu.Unlock()
		return
	}
	r.triggered = true
	r.bg.Add(1)
	r.mu.Unlock()

	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer r.bg.Done()
		defer r.clearTrigger()
		for {
			if _, err := r.SyncPending(ctx); err != nil && !errors.Is(err, ErrSyncInProgress) && ctx.Err() == nil {
				r.log.Error("background sync failed", "error", err)
			}
			if !r.takeRerun() || ctx.Err() != nil {
				return nil
			}
		}
	}, lifecycle.WithErrorHandler(func(err error) {
		r.log.Error("background sync panic", "error", err)
	}))
}

func (r *Reconciler) takeRerun() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rerun := r.rerun
	r.rerun = false
	return rerun
}

func (r *Reconciler) clearTrigger() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggered = false
	r.rerun = false
}

// Wait blocks until background runs started by Trigger have returned.
func (r *Reconciler) Wait() {
	r.bg.Wait()
}

// Syncing reports whether a sync run is in flight.
func (r *Reconciler) Syncing() bool {
	return r.running.Load()
}

// Stats returns a snapshot of reconciler counters.
func (r *Reconciler) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stats
	s.AvgRemoteMillis = r.latency.Avg()
	return s
}

// State implements introspection.Introspectable.
func (r *Reconciler) State() any {
	return r.Stats()
}

// ComponentType implements introspection.Component.
func (r *Reconciler) ComponentType() string {
	return "reconciler"
}

var _ introspection.Introspectable = (*Reconciler)(nil)
var _ introspection.Component = (*Reconciler)(nil)

func (r *Reconciler) claim(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.inflight[id]; busy {
		return false
	}
	r.inflight[id] = struct{}{}
	return true
}

func (r *Reconciler) release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, id)
}

func (r *Reconciler) observeLatency(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latency.Add(float64(d/time.Microsecond) / 1000.0)
}

func (r *Reconciler) finishRun(started time.Time, synced, failed int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stats.Runs++
	r.stats.Synced += synced
	r.stats.Failed += failed
	r.stats.LastRunAt = started
	r.stats.LastError = ""
	if err != nil {
		r.stats.LastError = err.Error()
	}

	if synced > 0 || failed > 0 {
		r.log.Info("sync run finished", "synced", synced, "failed", failed)
	}
}

func (r *Reconciler) notify(notes []model.Note) {
	r.mu.Lock()
	listeners := make([]func([]model.Note), len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(notes)
	}
}
