package loader

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvironment_RemoveStale(t *testing.T) {
	e := newEnvironment()
	done := e.add("a")
	e.add("b")
	e.markLoaded(done)

	assert.Equal(t, 1, e.removeStale())
	tags := e.Tags()
	require.Len(t, tags, 1)
	assert.Equal(t, "a", tags[0].Source)
	assert.Equal(t, TagLoaded, tags[0].State)
}

func TestLoad_RemovesStaleTagsFirst(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "var LIB = { ok: true };")
	}))
	defer srv.Close()

	cfg := Config{
		Sources:         []string{srv.URL},
		PrimaryTimeout:  DefaultConfig().PrimaryTimeout,
		FallbackTimeout: DefaultConfig().FallbackTimeout,
		Global:          "LIB",
		Required:        []string{"ok"},
	}
	l := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	l.env.add("https://stale.example/lib.js")

	_, err := l.EnsureLoaded(context.Background())
	require.NoError(t, err)

	tags := l.Environment().Tags()
	require.Len(t, tags, 1)
	assert.Equal(t, srv.URL, tags[0].Source)
}
