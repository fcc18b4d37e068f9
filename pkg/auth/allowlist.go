package auth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Allowlist answers whether a username may log in through the identity
// provider. Matching is exact and case-sensitive.
type Allowlist interface {
	Contains(username string) bool
}

// StaticAllowlist maps usernames to their local credential placeholder.
// Only membership is consulted.
type StaticAllowlist map[string]string

// Contains implements Allowlist
func (a StaticAllowlist) Contains(username string) bool {
	if username == "" {
		return false
	}
	_, ok := a[username]
	return ok
}

type allowlistDocument struct {
	Users map[string]string `yaml:"users"`
}

// LoadAllowlistFile reads a YAML document of the form
//
//	users:
//	  alice: "<placeholder>"
func LoadAllowlistFile(path string) (StaticAllowlist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read allowlist: %w", err)
	}

	var doc allowlistDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse allowlist %s: %w", path, err)
	}

	list := make(StaticAllowlist, len(doc.Users))
	for user, placeholder := range doc.Users {
		list[user] = placeholder
	}
	return list, nil
}

// FileAllowlist serves a YAML allowlist and reloads it when the file
// changes. A file that fails to parse leaves the previous list in place.
type FileAllowlist struct {
	path string
	log  *logrus.Logger

	mu      sync.RWMutex
	current StaticAllowlist
}

// NewFileAllowlist loads path. The initial load must succeed.
func NewFileAllowlist(path string, log *logrus.Logger) (*FileAllowlist, error) {
	list, err := LoadAllowlistFile(path)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &FileAllowlist{path: path, log: log, current: list}, nil
}

// Contains implements Allowlist
func (f *FileAllowlist) Contains(username string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current.Contains(username)
}

// Len returns the number of allowlisted users
func (f *FileAllowlist) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.current)
}

// Reload re-reads the file
func (f *FileAllowlist) Reload() error {
	list, err := LoadAllowlistFile(f.path)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.current = list
	f.mu.Unlock()

	f.log.WithField("users", len(list)).Info("allowlist reloaded")
	return nil
}

// Watch reloads the allowlist on every change until ctx is cancelled. The
// parent directory is watched so that editors replacing the file by rename
// are noticed.
func (f *FileAllowlist) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(f.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target := filepath.Clean(f.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := f.Reload(); err != nil {
				f.log.WithError(err).Warn("allowlist reload failed, keeping previous list")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.log.WithError(err).Warn("allowlist watcher error")
		}
	}
}
