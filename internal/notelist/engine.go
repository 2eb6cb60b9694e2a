package notelist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/aretw0/introspection"

	"notesync/internal/model"
)

const DefaultPageSize = 20

var (
	ErrLoadInFlight = errors.New("page load already in flight")
	ErrInvalidNote  = errors.New("invalid note")
)

type (
	// Remote serves the paginated note listing.
	Remote interface {
		ListNotes(ctx context.Context, page, limit int) (model.Page, error)
	}

	// Replica is the local copy of the notes. Loaded pages are written to it
	// and it is the fallback when the remote cannot be reached.
	Replica interface {
		BulkPut(ctx context.Context, notes []model.Note) error
		AllOrderedByCreatedAtDesc(ctx context.Context) ([]model.Note, error)
	}

	// Creator performs the optimistic create; the reconciler implements it.
	Creator interface {
		CreateNote(ctx context.Context, title, content, ownerID string) (model.Note, error)
	}
)

// Engine keeps the deduplicated, newest-first note list across page loads.
type Engine struct {
	remote   Remote
	replica  Replica
	creator  Creator
	ownerID  string
	pageSize int
	log      *slog.Logger

	mu      sync.Mutex
	state   State
	loading bool
}

func New(remote Remote, replica Replica, creator Creator, ownerID string, pageSize int, log *slog.Logger) *Engine {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		remote:   remote,
		replica:  replica,
		creator:  creator,
		ownerID:  ownerID,
		pageSize: pageSize,
		log:      log,
		state:    State{Notes: []model.Note{}, Status: StatusIdle},
	}
}

func (e *Engine) dispatch(ev event) {
	e.state = ev.apply(e.state)
}

// LoadPage fetches page from the remote and merges it into the list. When the
// remote fails the list falls back to the local replica and nil is returned;
// the reason is kept in State.Error. Only a local-store failure is returned.
func (e *Engine) LoadPage(ctx context.Context, page int) error {
	if page < 1 {
		return fmt.Errorf("%s: must be GT 0", "page")
	}

	e.mu.Lock()
	if e.loading {
		e.mu.Unlock()
		return ErrLoadInFlight
	}
	prev := e.begin()
	e.mu.Unlock()

	return e.load(ctx, page, prev)
}

// LoadMore requests the page after the current one. It does nothing while a
// load is in flight or when there are no more pages.
func (e *Engine) LoadMore(ctx context.Context) error {
	e.mu.Lock()
	if e.loading || !e.state.HasMore {
		e.mu.Unlock()
		return nil
	}
	next := e.state.CurrentPage + 1
	prev := e.begin()
	e.mu.Unlock()

	return e.load(ctx, next, prev)
}

// begin must be called with e.mu held. It returns the status before the load.
func (e *Engine) begin() Status {
	prev := e.state.Status
	e.loading = true
	e.dispatch(loadStarted{})
	return prev
}

func (e *Engine) load(ctx context.Context, page int, prev Status) error {
	p, err := e.remote.ListNotes(ctx, page, e.pageSize)
	if err == nil {
		e.finish(pageLoaded{requested: page, page: p})
		e.log.Debug("notes page loaded", "page", p.CurrentPage, "total_pages", p.TotalPages, "count", len(p.Notes))

		if err := e.replica.BulkPut(ctx, p.Notes); err != nil {
			return fmt.Errorf("save page %d locally: %w", p.CurrentPage, err)
		}
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		e.finish(loadAborted{prev: prev})
		return ctxErr
	}

	e.log.Info("remote page load failed, using local notes", "page", page, "error", err)
	local, localErr := e.replica.AllOrderedByCreatedAtDesc(ctx)
	if localErr != nil {
		e.finish(loadAborted{reason: localErr.Error()})
		return fmt.Errorf("load local notes: %w", localErr)
	}

	e.finish(loadFailed{local: local, reason: err.Error()})
	return nil
}

func (e *Engine) finish(ev event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dispatch(ev)
	e.loading = false
}

// AddNote creates a note through the reconciler and puts it at the head of the
// list unless a concurrent load already brought it in.
func (e *Engine) AddNote(ctx context.Context, title, content string) (model.Note, error) {
	if strings.TrimSpace(title) == "" {
		return model.Note{}, fmt.Errorf("%w: title is required", ErrInvalidNote)
	}
	if strings.TrimSpace(content) == "" {
		return model.Note{}, fmt.Errorf("%w: content is required", ErrInvalidNote)
	}

	n, err := e.creator.CreateNote(ctx, strings.TrimSpace(title), content, e.ownerID)
	if err != nil {
		return model.Note{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.dispatch(noteAdded{note: n})
	return n, nil
}

// Reseed replaces the list with notes, typically the result of a sync run.
func (e *Engine) Reseed(notes []model.Note) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dispatch(reseeded{notes: notes})
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.state
	s.Notes = append(make([]model.Note, 0, len(e.state.Notes)), e.state.Notes...)
	return s
}

func (e *Engine) State() any {
	s := e.Snapshot()
	return map[string]any{
		"notes":        len(s.Notes),
		"current_page": s.CurrentPage,
		"total_pages":  s.TotalPages,
		"has_more":     s.HasMore,
		"status":       s.Status,
		"error":        s.Error,
	}
}

func (e *Engine) ComponentType() string {
	return "note_list"
}

var _ introspection.Introspectable = (*Engine)(nil)
var _ introspection.Component = (*Engine)(nil)
