package notes

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"notesync/internal/pagecache"
)

// memStore is an in-memory Store with the same ordering and uniqueness rules as Repo.
type memStore struct {
	mu     sync.Mutex
	notes  []*Note
	clock  time.Time
	lists  int
	failOn error
}

func newMemStore() *memStore {
	return &memStore{clock: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)}
}

func (m *memStore) Insert(ctx context.Context, n *Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != nil {
		return m.failOn
	}
	for _, existing := range m.notes {
		if n.ClientRef != "" && existing.OwnerID == n.OwnerID && existing.ClientRef == n.ClientRef {
			return ErrDuplicateNote
		}
	}
	m.clock = m.clock.Add(time.Second)
	n.ID = primitive.NewObjectID()
	n.CreatedAt = m.clock
	cp := *n
	m.notes = append(m.notes, &cp)
	return nil
}

func (m *memStore) FindByID(ctx context.Context, ownerID string, id primitive.ObjectID) (*Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.notes {
		if n.ID == id && n.OwnerID == ownerID {
			cp := *n
			return &cp, nil
		}
	}
	return nil, ErrNoteNotFound
}

func (m *memStore) FindByClientRef(ctx context.Context, ownerID, ref string) (*Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.notes {
		if n.OwnerID == ownerID && n.ClientRef == ref {
			cp := *n
			return &cp, nil
		}
	}
	return nil, ErrNoteNotFound
}

func (m *memStore) ListByOwner(ctx context.Context, ownerID string, offset, limit int) ([]*Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++

	var owned []*Note
	for _, n := range m.notes {
		if n.OwnerID == ownerID {
			cp := *n
			owned = append(owned, &cp)
		}
	}
	sort.SliceStable(owned, func(i, j int) bool { return owned[i].CreatedAt.After(owned[j].CreatedAt) })

	if offset >= len(owned) {
		return []*Note{}, nil
	}
	end := min(offset+limit, len(owned))
	return owned[offset:end], nil
}

func (m *memStore) CountByOwner(ctx context.Context, ownerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, note := range m.notes {
		if note.OwnerID == ownerID {
			n++
		}
	}
	return n, nil
}

func (m *memStore) listCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lists
}

func newTestService(t *testing.T) (*Service, *memStore, *pagecache.MemoryBackend) {
	t.Helper()
	store := newMemStore()
	backend := pagecache.NewMemoryBackend()
	cache := pagecache.New[PageResult](backend, time.Hour, nil)
	return NewService(store, cache, nil), store, backend
}

func titles(notes []*Note) []string {
	out := make([]string, len(notes))
	for i, n := range notes {
		out[i] = n.Title
	}
	return out
}

func TestService_Create_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Create(ctx, "u1", CreateNoteInput{Title: "  ", Content: "body"}, "")
	assert.ErrorIs(t, err, ErrInvalidNote)

	_, _, err = svc.Create(ctx, "u1", CreateNoteInput{Title: "t", Content: ""}, "")
	assert.ErrorIs(t, err, ErrInvalidNote)

	n, created, err := svc.Create(ctx, "u1", CreateNoteInput{Title: "  padded  ", Content: "body"}, "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "padded", n.Title)
	assert.Equal(t, "u1", n.OwnerID)
	assert.False(t, n.ID.IsZero())
}

func TestService_GetPage_Pagination(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for _, title := range []string{"n1", "n2", "n3", "n4", "n5"} {
		_, _, err := svc.Create(ctx, "u1", CreateNoteInput{Title: title, Content: "c"}, "")
		require.NoError(t, err)
	}
	_, _, err := svc.Create(ctx, "u2", CreateNoteInput{Title: "other", Content: "c"}, "")
	require.NoError(t, err)

	p, err := svc.GetPage(ctx, "u1", PageQuery{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"n5", "n4"}, titles(p.Notes))
	assert.Equal(t, 1, p.CurrentPage)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, int64(5), p.TotalNotes)

	p, err = svc.GetPage(ctx, "u1", PageQuery{Page: 3, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"n1"}, titles(p.Notes))

	p, err = svc.GetPage(ctx, "u1", PageQuery{Page: 9, Limit: 2})
	require.NoError(t, err)
	assert.NotNil(t, p.Notes)
	assert.Empty(t, p.Notes)
	assert.Equal(t, 3, p.TotalPages)
}

func TestService_GetPage_EmptyUser(t *testing.T) {
	svc, _, _ := newTestService(t)

	p, err := svc.GetPage(context.Background(), "nobody", PageQuery{})
	require.NoError(t, err)
	assert.NotNil(t, p.Notes)
	assert.Equal(t, 1, p.CurrentPage)
	assert.Equal(t, 0, p.TotalPages)
	assert.Equal(t, int64(0), p.TotalNotes)
}

func TestPageQuery_Normalize(t *testing.T) {
	assert.Equal(t, PageQuery{Page: 1, Limit: 20}, PageQuery{}.normalize())
	assert.Equal(t, PageQuery{Page: 1, Limit: 20}, PageQuery{Page: -3, Limit: -1}.normalize())
	assert.Equal(t, PageQuery{Page: 2, Limit: 100}, PageQuery{Page: 2, Limit: 5000}.normalize())
}

func TestService_WriteInvalidatesCachedPages(t *testing.T) {
	svc, store, backend := newTestService(t)
	ctx := context.Background()

	for _, title := range []string{"n1", "n2", "n3"} {
		_, _, err := svc.Create(ctx, "u1", CreateNoteInput{Title: title, Content: "c"}, "")
		require.NoError(t, err)
	}

	p, err := svc.GetPage(ctx, "u1", PageQuery{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"n3", "n2"}, titles(p.Notes))
	assert.Equal(t, 1, store.listCalls())

	_, err = svc.GetPage(ctx, "u1", PageQuery{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, store.listCalls(), "second read is served from cache")
	assert.Equal(t, 1, backend.Len())

	_, _, err = svc.Create(ctx, "u1", CreateNoteInput{Title: "n4", Content: "c"}, "")
	require.NoError(t, err)
	assert.Equal(t, 0, backend.Len())

	p, err = svc.GetPage(ctx, "u1", PageQuery{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"n4", "n3"}, titles(p.Notes))
	assert.Equal(t, int64(4), p.TotalNotes)
	assert.Equal(t, 2, p.TotalPages)
}

func TestService_Create_IdempotencyKey(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	first, created, err := svc.Create(ctx, "u1", CreateNoteInput{Title: "A", Content: "B"}, "tmp-1")
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := svc.Create(ctx, "u1", CreateNoteInput{Title: "A", Content: "B"}, "tmp-1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	// the key is scoped to its owner
	_, created, err = svc.Create(ctx, "u2", CreateNoteInput{Title: "A", Content: "B"}, "tmp-1")
	require.NoError(t, err)
	assert.True(t, created)

	count, err := store.CountByOwner(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

type failingBackend struct {
	*pagecache.MemoryBackend
}

func (failingBackend) DeletePrefix(context.Context, string) (int, error) {
	return 0, errors.New("connection refused")
}

func TestService_Create_InvalidationFailureFailsWrite(t *testing.T) {
	cache := pagecache.New[PageResult](failingBackend{pagecache.NewMemoryBackend()}, time.Hour, nil)
	svc := NewService(newMemStore(), cache, nil)

	_, _, err := svc.Create(context.Background(), "u1", CreateNoteInput{Title: "A", Content: "B"}, "")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidNote)
}

func TestService_GetByID(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	n, _, err := svc.Create(ctx, "u1", CreateNoteInput{Title: "A", Content: "# Heading"}, "")
	require.NoError(t, err)

	got, err := svc.GetByID(ctx, "u1", n.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, "A", got.Title)

	_, err = svc.GetByID(ctx, "u2", n.ID.Hex())
	assert.ErrorIs(t, err, ErrNoteNotFound)

	_, err = svc.GetByID(ctx, "u1", "not-hex")
	assert.ErrorIs(t, err, ErrInvalidNote)

	assert.Contains(t, svc.RenderMarkdown(got.Content), "<h1>Heading</h1>")
}
