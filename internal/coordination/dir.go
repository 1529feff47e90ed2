package coordination

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Dir is a directory-backed lock table: one file per held key, whose
// content is the owner id. File creation with O_EXCL provides the atomic
// claim, so workers in separate processes on one machine can share it.
type Dir struct {
	root string
}

// NewDir creates a directory backend rooted at the given path, creating
// the directory if needed.
func NewDir(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	return &Dir{root: root}, nil
}

// keyPath maps a lock key to its file. Keys carry ':' and '/' freely, so
// the filename is the escaped key with a .lock suffix.
func (d *Dir) keyPath(key string) string {
	return filepath.Join(d.root, url.QueryEscape(key)+".lock")
}

func keyFromFilename(name string) (string, bool) {
	if !strings.HasSuffix(name, ".lock") {
		return "", false
	}
	key, err := url.QueryUnescape(strings.TrimSuffix(name, ".lock"))
	if err != nil {
		return "", false
	}
	return key, true
}

// Acquire atomically claims a key via exclusive file creation.
func (d *Dir) Acquire(owner, key string) error {
	path := d.keyPath(key)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, os.ErrExist) {
		holder, ok := d.Holder(key)
		if ok && holder == owner {
			return nil // idempotent
		}
		return fmt.Errorf("%w: %s holds %s", ErrAlreadyHeld, holder, key)
	}
	if err != nil {
		return fmt.Errorf("acquire %s: %w", key, err)
	}
	defer f.Close()

	if _, err := f.WriteString(owner); err != nil {
		os.Remove(path)
		return fmt.Errorf("acquire %s: %w", key, err)
	}
	return nil
}

// AcquireAll claims keys in order, rolling back the batch on failure.
func (d *Dir) AcquireAll(owner string, keys []string) error {
	var acquired []string
	for _, key := range keys {
		if err := d.Acquire(owner, key); err != nil {
			for _, k := range acquired {
				_ = d.Release(owner, k) // best-effort rollback
			}
			return err
		}
		acquired = append(acquired, key)
	}
	return nil
}

// Release relinquishes one key.
func (d *Dir) Release(owner, key string) error {
	holder, ok := d.Holder(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotHeld, key)
	}
	if holder != owner {
		return fmt.Errorf("%w: %s holds %s", ErrNotOwner, holder, key)
	}
	if err := os.Remove(d.keyPath(key)); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}

// ReleaseAll relinquishes every key the owner holds.
func (d *Dir) ReleaseAll(owner string) error {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return fmt.Errorf("scan lock dir: %w", err)
	}

	var keys []string
	for _, entry := range entries {
		key, ok := keyFromFilename(entry.Name())
		if !ok {
			continue
		}
		if holder, held := d.Holder(key); held && holder == owner {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := d.Release(owner, key); err != nil && !errors.Is(err, ErrNotHeld) {
			return err
		}
	}
	return nil
}

// Holder returns the owner of a key, or ("", false) if unheld.
func (d *Dir) Holder(key string) (string, bool) {
	data, err := os.ReadFile(d.keyPath(key))
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

// Pause publishes the feature's pause sentinel.
func (d *Dir) Pause(featureID, owner string) error {
	return d.Acquire(owner, pauseKey(featureID))
}

// Resume clears the feature's pause sentinel; clearing an inactive pause
// is a no-op.
func (d *Dir) Resume(featureID string) error {
	err := os.Remove(d.keyPath(pauseKey(featureID)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("resume %s: %w", featureID, err)
	}
	return nil
}

// PauseActive reports whether the feature's pause sentinel is held.
func (d *Dir) PauseActive(featureID string) bool {
	_, held := d.Holder(pauseKey(featureID))
	return held
}

// WatchPause reports pause sentinel transitions for a feature over the
// returned channel until the context is cancelled. The current state is
// sent immediately, then an update on every transition. The channel is
// closed when watching stops.
func (d *Dir) WatchPause(ctx context.Context, featureID string) (<-chan bool, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch lock dir: %w", err)
	}
	if err := watcher.Add(d.root); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch lock dir: %w", err)
	}

	sentinel := d.keyPath(pauseKey(featureID))
	ch := make(chan bool, 1)
	ch <- d.PauseActive(featureID)

	go func() {
		defer close(ch)
		defer watcher.Close()

		last := d.PauseActive(featureID)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != sentinel {
					continue
				}
				now := d.PauseActive(featureID)
				if now != last {
					last = now
					select {
					case ch <- now:
					case <-ctx.Done():
						return
					}
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return ch, nil
}
