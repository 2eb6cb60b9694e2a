package notes

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	svc, _, _ := newTestService(t)
	h := NewHandler(svc, slog.Default())

	mux := http.NewServeMux()
	h.Routes(mux, map[string]string{"tok-1": "u1", "tok-2": "u2"})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func doRequest(t *testing.T, method, url, token, body string, headers ...string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHandler_RequiresToken(t *testing.T) {
	srv := newTestServer(t)

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/notes", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doRequest(t, http.MethodPost, srv.URL+"/api/notes", "wrong", `{"title":"A","content":"B"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_CreateNote(t *testing.T) {
	srv := newTestServer(t)

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/notes", "tok-1", `{"title":"A","content":"B"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decode[map[string]any](t, resp)
	assert.Equal(t, "A", body["title"])
	assert.Equal(t, "B", body["content"])
	assert.Equal(t, "u1", body["ownerId"])
	assert.NotEmpty(t, body["id"])
	assert.NotEmpty(t, body["createdAt"])
	assert.NotContains(t, body, "client_ref")
}

func TestHandler_CreateNote_BadInput(t *testing.T) {
	srv := newTestServer(t)

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/notes", "tok-1", `{"title":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doRequest(t, http.MethodPost, srv.URL+"/api/notes", "tok-1", `{"title":"","content":"B"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode[map[string]string](t, resp)["error"], "title is required")
}

func TestHandler_CreateNote_IdempotencyKey(t *testing.T) {
	srv := newTestServer(t)

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/notes", "tok-1", `{"title":"A","content":"B"}`, "Idempotency-Key", "tmp-1")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	first := decode[map[string]any](t, resp)

	resp = doRequest(t, http.MethodPost, srv.URL+"/api/notes", "tok-1", `{"title":"A","content":"B"}`, "Idempotency-Key", "tmp-1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, first["id"], decode[map[string]any](t, resp)["id"])

	resp = doRequest(t, http.MethodGet, srv.URL+"/api/notes", "tok-1", "")
	assert.Equal(t, float64(1), decode[map[string]any](t, resp)["totalNotes"])
}

func TestHandler_ListNotes_ReadAfterWrite(t *testing.T) {
	srv := newTestServer(t)

	for _, title := range []string{"n1", "n2", "n3"} {
		resp := doRequest(t, http.MethodPost, srv.URL+"/api/notes", "tok-1", `{"title":"`+title+`","content":"c"}`)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	type page struct {
		Notes       []Note `json:"notes"`
		CurrentPage int    `json:"currentPage"`
		TotalPages  int    `json:"totalPages"`
		TotalNotes  int64  `json:"totalNotes"`
	}

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/notes?page=1&limit=2", "tok-1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	p := decode[page](t, resp)
	require.Len(t, p.Notes, 2)
	assert.Equal(t, "n3", p.Notes[0].Title)
	assert.Equal(t, 2, p.TotalPages)

	// warm cache, then write
	doRequest(t, http.MethodGet, srv.URL+"/api/notes?page=1&limit=2", "tok-1", "")
	resp = doRequest(t, http.MethodPost, srv.URL+"/api/notes", "tok-1", `{"title":"n4","content":"c"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doRequest(t, http.MethodGet, srv.URL+"/api/notes?page=1&limit=2", "tok-1", "")
	p = decode[page](t, resp)
	require.Len(t, p.Notes, 2)
	assert.Equal(t, "n4", p.Notes[0].Title)
	assert.Equal(t, int64(4), p.TotalNotes)
	assert.Equal(t, 2, p.TotalPages)

	// other users see only their own notes
	resp = doRequest(t, http.MethodGet, srv.URL+"/api/notes", "tok-2", "")
	p = decode[page](t, resp)
	assert.Empty(t, p.Notes)
	assert.NotNil(t, p.Notes)
}

func TestHandler_ListNotes_DefaultsOnGarbage(t *testing.T) {
	srv := newTestServer(t)

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/notes?page=abc&limit=-4", "tok-1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), decode[map[string]any](t, resp)["currentPage"])
}

func TestHandler_GetNote(t *testing.T) {
	srv := newTestServer(t)

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/notes", "tok-1", `{"title":"A","content":"*hi*"}`)
	id := decode[map[string]any](t, resp)["id"].(string)

	resp = doRequest(t, http.MethodGet, srv.URL+"/api/notes/"+id, "tok-1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "A", decode[map[string]any](t, resp)["title"])

	resp = doRequest(t, http.MethodGet, srv.URL+"/api/notes/"+id+"?format=html", "tok-1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	resp = doRequest(t, http.MethodGet, srv.URL+"/api/notes/"+id, "tok-2", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doRequest(t, http.MethodGet, srv.URL+"/api/notes/zzz", "tok-1", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestParseTokens(t *testing.T) {
	tokens, err := ParseTokens("a=u1, b = u2 ,")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "u1", "b": "u2"}, tokens)

	_, err = ParseTokens("a")
	assert.Error(t, err)

	tokens, err = ParseTokens("")
	require.NoError(t, err)
	assert.Empty(t, tokens)
}
