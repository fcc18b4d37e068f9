package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAllowlist(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

// replaceAllowlist swaps the file in with a rename so a watcher never sees
// it half written
func replaceAllowlist(t *testing.T, path, body string) {
	t.Helper()
	tmp := path + ".tmp"
	writeAllowlist(t, tmp, body)
	require.NoError(t, os.Rename(tmp, path))
}

func TestStaticAllowlist_Contains(t *testing.T) {
	list := StaticAllowlist{"alice": "x", "": "y"}

	assert.True(t, list.Contains("alice"))
	assert.False(t, list.Contains("Alice"))
	assert.False(t, list.Contains("alice "))
	assert.False(t, list.Contains(""))
	assert.False(t, StaticAllowlist(nil).Contains("alice"))
}

func TestLoadAllowlistFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid", func(t *testing.T) {
		path := filepath.Join(dir, "valid.yaml")
		writeAllowlist(t, path, "users:\n  alice: \"$2y$10$abc\"\n  bob: \"\"\n")

		list, err := LoadAllowlistFile(path)
		require.NoError(t, err)
		assert.Len(t, list, 2)
		assert.True(t, list.Contains("bob"))
	})

	t.Run("malformed", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		writeAllowlist(t, path, "users: [alice\n")

		_, err := LoadAllowlistFile(path)
		assert.Error(t, err)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := LoadAllowlistFile(filepath.Join(dir, "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestFileAllowlist_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "allowlist.yaml")
	writeAllowlist(t, path, "users:\n  alice: x\n")

	log, _ := test.NewNullLogger()
	list, err := NewFileAllowlist(path, log)
	require.NoError(t, err)
	assert.Equal(t, 1, list.Len())

	writeAllowlist(t, path, "users:\n  alice: x\n  bob: y\n")
	require.NoError(t, list.Reload())
	assert.True(t, list.Contains("bob"))

	writeAllowlist(t, path, "users: [broken\n")
	assert.Error(t, list.Reload())
	assert.True(t, list.Contains("bob"), "previous list survives a bad reload")
}

func TestFileAllowlist_Watch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "allowlist.yaml")
	writeAllowlist(t, path, "users:\n  alice: x\n")

	log, hook := test.NewNullLogger()
	list, err := NewFileAllowlist(path, log)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- list.Watch(ctx) }()

	// fsnotify needs the watch registered before the write lands
	require.Eventually(t, func() bool {
		replaceAllowlist(t, path, "users:\n  alice: x\n  carol: z\n")
		return list.Contains("carol")
	}, 5*time.Second, 50*time.Millisecond)

	replaceAllowlist(t, path, "users: [broken\n")
	require.Eventually(t, func() bool {
		for _, e := range hook.AllEntries() {
			if e.Message == "allowlist reload failed, keeping previous list" {
				return true
			}
		}
		return false
	}, 5*time.Second, 50*time.Millisecond)
	assert.True(t, list.Contains("carol"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
