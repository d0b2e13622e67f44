package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileWatcher_Changed(t *testing.T) {
	w, err := New("plan.yaml", func(context.Context, []byte) error { return nil }, nil)
	require.NoError(t, err)

	assert.True(t, w.changed([]byte("a")))
	assert.False(t, w.changed([]byte("a")))
	assert.True(t, w.changed([]byte("b")))
}

func TestFileWatcher_Run(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	got := make(chan string, 8)
	w, err := New(path, func(_ context.Context, data []byte) error {
		got <- string(data)
		return nil
	}, nil)
	require.NoError(t, err)
	w.SetDelay(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case v := <-got:
		assert.Equal(t, "v1", v)
	case <-time.After(5 * time.Second):
		t.Fatal("initial content was not handled")
	}

	// Other files in the directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o644))

	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("v2"), 0o644)
		select {
		case v := <-got:
			return v == "v2"
		case <-time.After(200 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
