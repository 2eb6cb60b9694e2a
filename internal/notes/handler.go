package notes

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	svc *Service
	log *slog.Logger
}

func NewHandler(svc *Service, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Routes registers the note API on mux behind bearer authentication.
func (h *Handler) Routes(mux *http.ServeMux, tokens map[string]string) {
	mux.Handle("POST /api/notes", RequireUser(tokens, http.HandlerFunc(h.CreateNote)))
	mux.Handle("GET /api/notes", RequireUser(tokens, http.HandlerFunc(h.ListNotes)))
	mux.Handle("GET /api/notes/{id}", RequireUser(tokens, http.HandlerFunc(h.GetNote)))
}

// CreateNote handles POST /api/notes
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFrom(r.Context())
	if !ok {
		h.jsonError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var input CreateNoteInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&input); err != nil {
		h.jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	note, created, err := h.svc.Create(r.Context(), user, input, strings.TrimSpace(r.Header.Get("Idempotency-Key")))
	if errors.Is(err, ErrInvalidNote) {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		h.log.Error("failed to create note", "user_id", user, "error", err)
		h.jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	h.jsonResponse(w, note, status)
}

// GetNote handles GET /api/notes/{id}
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFrom(r.Context())
	if !ok {
		h.jsonError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	note, err := h.svc.GetByID(r.Context(), user, r.PathValue("id"))
	if errors.Is(err, ErrInvalidNote) {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if errors.Is(err, ErrNoteNotFound) {
		h.jsonError(w, "note not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error("failed to get note", "error", err)
		h.jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	if r.URL.Query().Get("format") == "html" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(h.svc.RenderMarkdown(note.Content)))
		return
	}
	h.jsonResponse(w, note, http.StatusOK)
}

// ListNotes handles GET /api/notes
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFrom(r.Context())
	if !ok {
		h.jsonError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	q := PageQuery{
		Page:  h.parseInt(r.URL.Query().Get("page"), 1),
		Limit: h.parseInt(r.URL.Query().Get("limit"), DefaultPageLimit),
	}

	page, err := h.svc.GetPage(r.Context(), user, q)
	if err != nil {
		h.log.Error("failed to list notes", "user_id", user, "error", err)
		h.jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.jsonResponse(w, page, http.StatusOK)
}

// --- Helper methods ---

func (h *Handler) jsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func (h *Handler) parseInt(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
