package notes

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Note is a user's note as stored in MongoDB and returned by the API.
type Note struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title     string             `bson:"title" json:"title"`
	Content   string             `bson:"content" json:"content"` // markdown
	OwnerID   string             `bson:"owner_id" json:"ownerId"`
	ClientRef string             `bson:"client_ref,omitempty" json:"-"` // Idempotency-Key of the create request
	CreatedAt time.Time          `bson:"created_at" json:"createdAt"`
}

// CreateNoteInput is the input for creating a note
type CreateNoteInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// PageResult is one page of a user's notes, newest first.
type PageResult struct {
	Notes       []*Note `json:"notes"`
	CurrentPage int     `json:"currentPage"`
	TotalPages  int     `json:"totalPages"`
	TotalNotes  int64   `json:"totalNotes"`
}

// PageQuery represents list parameters
type PageQuery struct {
	Page  int
	Limit int
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// normalize applies defaults and clamps the limit.
func (q PageQuery) normalize() PageQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = DefaultPageLimit
	}
	if q.Limit > MaxPageLimit {
		q.Limit = MaxPageLimit
	}
	return q
}
