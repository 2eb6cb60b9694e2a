package model

import (
	"sort"
	"time"
)

// Note is the client-side view of a note, shared by the local replica,
// the remote client and the in-memory list.
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`

	// PendingSync is only meaningful in the local replica
	PendingSync bool `json:"-"`
}

// Page is one page of the remote note listing.
type Page struct {
	Notes       []Note `json:"notes"`
	CurrentPage int    `json:"currentPage"`
	TotalPages  int    `json:"totalPages"`
	TotalNotes  int64  `json:"totalNotes"`
}

// SortNewestFirst orders notes by creation time descending, keeping the
// relative order of notes created at the same instant.
func SortNewestFirst(notes []Note) {
	sort.SliceStable(notes, func(i, j int) bool {
		return notes[i].CreatedAt.After(notes[j].CreatedAt)
	})
}
