package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"notesync/internal/model"
)

var (
	// ErrUnavailable covers transport failures: refused connections, DNS, timeouts.
	ErrUnavailable = errors.New("remote unavailable")
	// ErrMalformedResponse means the server answered 2xx with an unexpected body.
	ErrMalformedResponse = errors.New("malformed remote response")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote status %d", e.Code)
	}
	return fmt.Sprintf("remote status %d: %s", e.Code, e.Message)
}

// Client talks to the notes REST API.
type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("server url %q: must be absolute", baseURL)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("%s: must be GT 0", "timeout")
	}

	return &Client{
		baseURL: u,
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

type createNoteRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// CreateNote handles POST /api/notes. idempotencyKey lets the server collapse
// retries of the same optimistic note.
func (c *Client) CreateNote(ctx context.Context, idempotencyKey, title, content string) (model.Note, error) {
	body, err := json.Marshal(createNoteRequest{Title: title, Content: content})
	if err != nil {
		return model.Note{}, fmt.Errorf("encode note: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "api/notes", nil, bytes.NewReader(body))
	if err != nil {
		return model.Note{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	var note model.Note
	if err := c.do(req, &note); err != nil {
		return model.Note{}, err
	}
	if note.ID == "" || note.CreatedAt.IsZero() {
		return model.Note{}, fmt.Errorf("%w: created note lacks id or createdAt", ErrMalformedResponse)
	}
	return note, nil
}

// ListNotes handles GET /api/notes?page=P&limit=L.
func (c *Client) ListNotes(ctx context.Context, page, limit int) (model.Page, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	req, err := c.newRequest(ctx, http.MethodGet, "api/notes", q, nil)
	if err != nil {
		return model.Page{}, err
	}

	var p model.Page
	if err := c.do(req, &p); err != nil {
		return model.Page{}, err
	}
	if p.Notes == nil || p.CurrentPage < 1 || p.TotalPages < 0 {
		return model.Page{}, fmt.Errorf("%w: page %d of %d without notes array", ErrMalformedResponse, p.CurrentPage, p.TotalPages)
	}
	return p, nil
}

// Ping handles GET /health.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "health", nil, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

func (c *Client) newRequest(ctx context.Context, method, path string, q url.Values, body io.Reader) (*http.Request, error) {
	u := c.baseURL.JoinPath(path)
	if q != nil {
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		// the caller abandoning the request is not a connectivity problem
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrMalformedResponse, req.URL.Path, err)
	}
	return nil
}

func readErrorMessage(r io.Reader) string {
	var body struct {
		Error string `json:"error"`
	}
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return ""
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		return body.Error
	}
	return string(bytes.TrimSpace(raw))
}

// IsRemoteFailure reports whether err is a recoverable remote-side failure,
// as opposed to a cancelled context.
func IsRemoteFailure(err error) bool {
	var statusErr *StatusError
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrMalformedResponse) || errors.As(err, &statusErr)
}
