package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notesync/internal/notes"
	"notesync/internal/pagecache"
)

func TestRouter_RequiresTokenOnEveryNoteSurface(t *testing.T) {
	cache := pagecache.New[notes.PageResult](pagecache.NewMemoryBackend(), time.Hour, nil)
	svc := notes.NewService(nil, cache, nil)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv := httptest.NewServer(newRouter(svc, map[string]string{"secret": "alice"}, logger))
	defer srv.Close()

	for _, tc := range []struct {
		method, path, body string
	}{
		{http.MethodGet, "/api/notes", ""},
		{http.MethodPost, "/api/notes", `{"title":"A","content":"B"}`},
		{http.MethodPost, "/mcp", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"list_notes","arguments":{}}}`},
		{http.MethodGet, "/mcp", ""},
		{http.MethodDelete, "/mcp", ""},
	} {
		req, err := http.NewRequest(tc.method, srv.URL+tc.path, strings.NewReader(tc.body))
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, tc.method+" "+tc.path)
	}

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
