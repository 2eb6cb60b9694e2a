package notelist

import (
	"notesync/internal/model"
)

type Status string

const (
	StatusIdle      Status = "idle"
	StatusLoading   Status = "loading"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// State is the in-memory note list shown to the user.
type State struct {
	Notes       []model.Note `json:"notes"`
	CurrentPage int          `json:"current_page"`
	TotalPages  int          `json:"total_pages"`
	HasMore     bool         `json:"has_more"`
	Status      Status       `json:"status"`
	Error       string       `json:"error,omitempty"`
}

// event is one state transition of the list.
type event interface {
	apply(s State) State
}

type loadStarted struct{}

func (loadStarted) apply(s State) State {
	s.Status = StatusLoading
	s.Error = ""
	return s
}

type pageLoaded struct {
	requested int
	page      model.Page
}

func (e pageLoaded) apply(s State) State {
	if e.requested == 1 {
		s.Notes = mergeUnique(nil, e.page.Notes)
	} else {
		s.Notes = mergeUnique(s.Notes, e.page.Notes)
	}
	model.SortNewestFirst(s.Notes)

	s.CurrentPage = e.page.CurrentPage
	s.TotalPages = e.page.TotalPages
	s.HasMore = s.CurrentPage < s.TotalPages
	s.Status = StatusSucceeded
	s.Error = ""
	return s
}

// loadFailed replaces the list with the local replica. Pagination stops
// because the remote page count can no longer be trusted.
type loadFailed struct {
	local  []model.Note
	reason string
}

func (e loadFailed) apply(s State) State {
	s.Notes = mergeUnique(nil, e.local)
	model.SortNewestFirst(s.Notes)
	s.HasMore = false
	s.Status = StatusFailed
	s.Error = e.reason
	return s
}

// loadAborted ends a load that produced nothing usable, keeping the list as it was.
type loadAborted struct {
	prev   Status
	reason string
}

func (e loadAborted) apply(s State) State {
	s.Status = e.prev
	if e.reason != "" {
		s.Status = StatusFailed
		s.Error = e.reason
	}
	return s
}

type noteAdded struct {
	note model.Note
}

func (e noteAdded) apply(s State) State {
	if contains(s.Notes, e.note.ID) {
		return s
	}
	notes := make([]model.Note, 0, len(s.Notes)+1)
	notes = append(notes, e.note)
	s.Notes = append(notes, s.Notes...)
	model.SortNewestFirst(s.Notes)
	return s
}

// reseeded replaces the list after a sync run rewrote local identifiers.
type reseeded struct {
	notes []model.Note
}

func (e reseeded) apply(s State) State {
	s.Notes = mergeUnique(nil, e.notes)
	model.SortNewestFirst(s.Notes)
	return s
}

// mergeUnique appends every note of add whose id is not yet in dst, to a copy of dst.
func mergeUnique(dst, add []model.Note) []model.Note {
	out := make([]model.Note, 0, len(dst)+len(add))
	seen := make(map[string]struct{}, len(dst)+len(add))
	for _, list := range [][]model.Note{dst, add} {
		for _, n := range list {
			if _, dup := seen[n.ID]; dup {
				continue
			}
			seen[n.ID] = struct{}{}
			out = append(out, n)
		}
	}
	return out
}

func contains(notes []model.Note, id string) bool {
	for _, n := range notes {
		if n.ID == id {
			return true
		}
	}
	return false
}
