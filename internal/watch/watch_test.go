package watch

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestRun_DebouncesEdits(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	file := filepath.Join(dir, "sketch.js")
	require.NoError(t, os.WriteFile(file, []byte("v0"), 0o600))

	w, err := New(file, 50*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	var (
		mu   sync.Mutex
		runs []string
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(_ context.Context, code string) {
			mu.Lock()
			runs = append(runs, code)
			mu.Unlock()
		})
	}()

	snapshot := func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), runs...)
	}
	require.Eventually(t, func() bool { return len(snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	// A burst of edits becomes one run with the final contents.
	for _, v := range []string{"v1", "v2", "v3"} {
		require.NoError(t, os.WriteFile(file, []byte(v), 0o600))
		time.Sleep(5 * time.Millisecond)
	}
	// Edits to other files in the directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))

	require.Eventually(t, func() bool { return len(snapshot()) == 2 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, []string{"v0", "v3"}, snapshot())

	cancel()
	require.NoError(t, <-done)
}

func TestRun_MissingDirectory(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "absent", "x.js"), 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.Error(t, w.Run(context.Background(), func(context.Context, string) {}))
}
