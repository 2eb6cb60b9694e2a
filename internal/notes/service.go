package notes

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/yuin/goldmark"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"notesync/internal/pagecache"
)

var ErrInvalidNote = errors.New("invalid note")

// Store is the durable note storage. *Repo implements it.
type Store interface {
	Insert(ctx context.Context, n *Note) error
	FindByID(ctx context.Context, ownerID string, id primitive.ObjectID) (*Note, error)
	FindByClientRef(ctx context.Context, ownerID, ref string) (*Note, error)
	ListByOwner(ctx context.Context, ownerID string, offset, limit int) ([]*Note, error)
	CountByOwner(ctx context.Context, ownerID string) (int64, error)
}

type Service struct {
	store Store
	cache *pagecache.Cache[PageResult]
	md    goldmark.Markdown
	log   *slog.Logger
}

func NewService(store Store, cache *pagecache.Cache[PageResult], log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store: store,
		cache: cache,
		md:    goldmark.New(),
		log:   log,
	}
}

// Create stores a new note for ownerID and invalidates the owner's cached pages
// before returning. A repeated clientRef returns the note created the first
// time; created is false in that case.
func (s *Service) Create(ctx context.Context, ownerID string, input CreateNoteInput, clientRef string) (note *Note, created bool, err error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, false, fmt.Errorf("%w: title is required", ErrInvalidNote)
	}
	if strings.TrimSpace(input.Content) == "" {
		return nil, false, fmt.Errorf("%w: content is required", ErrInvalidNote)
	}

	if clientRef != "" {
		existing, err := s.store.FindByClientRef(ctx, ownerID, clientRef)
		if err == nil {
			return existing, false, s.invalidate(ctx, ownerID)
		}
		if !errors.Is(err, ErrNoteNotFound) {
			return nil, false, err
		}
	}

	note = &Note{
		Title:     title,
		Content:   input.Content,
		OwnerID:   ownerID,
		ClientRef: clientRef,
	}

	err = s.store.Insert(ctx, note)
	if errors.Is(err, ErrDuplicateNote) {
		// a concurrent request with the same key won
		existing, err := s.store.FindByClientRef(ctx, ownerID, clientRef)
		if err != nil {
			return nil, false, fmt.Errorf("find deduplicated note: %w", err)
		}
		return existing, false, s.invalidate(ctx, ownerID)
	}
	if err != nil {
		return nil, false, err
	}

	if err := s.invalidate(ctx, ownerID); err != nil {
		return nil, false, err
	}
	return note, true, nil
}

func (s *Service) invalidate(ctx context.Context, ownerID string) error {
	if err := s.cache.InvalidateUser(ctx, ownerID); err != nil {
		return fmt.Errorf("invalidate cached pages: %w", err)
	}
	return nil
}

// GetPage returns one page of the owner's notes, newest first, through the cache.
func (s *Service) GetPage(ctx context.Context, ownerID string, q PageQuery) (*PageResult, error) {
	q = q.normalize()
	key := pagecache.Key{UserID: ownerID, Page: q.Page, Limit: q.Limit}

	page, hit, err := s.cache.Get(ctx, key, func(ctx context.Context) (PageResult, error) {
		return s.loadPage(ctx, ownerID, q)
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("notes page served", "user_id", ownerID, "page", q.Page, "limit", q.Limit, "cache_hit", hit)
	return &page, nil
}

func (s *Service) loadPage(ctx context.Context, ownerID string, q PageQuery) (PageResult, error) {
	total, err := s.store.CountByOwner(ctx, ownerID)
	if err != nil {
		return PageResult{}, err
	}
	notes, err := s.store.ListByOwner(ctx, ownerID, (q.Page-1)*q.Limit, q.Limit)
	if err != nil {
		return PageResult{}, err
	}
	if notes == nil {
		notes = []*Note{}
	}

	return PageResult{
		Notes:       notes,
		CurrentPage: q.Page,
		TotalPages:  int((total + int64(q.Limit) - 1) / int64(q.Limit)),
		TotalNotes:  total,
	}, nil
}

// GetByID retrieves one of the owner's notes by ID
func (s *Service) GetByID(ctx context.Context, ownerID, id string) (*Note, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed id %q", ErrInvalidNote, id)
	}
	return s.store.FindByID(ctx, ownerID, oid)
}

// RenderMarkdown converts markdown content to HTML
func (s *Service) RenderMarkdown(content string) string {
	var buf bytes.Buffer
	if err := s.md.Convert([]byte(content), &buf); err != nil {
		return content // Return raw content on error
	}
	return buf.String()
}
