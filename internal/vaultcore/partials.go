package vaultcore

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// partialSuffix marks an in-flight transfer's local disk file: upload bytes
// staged before the encrypting reader ships them, or download bytes staged
// before the decrypting reader is drained by the caller. A file still
// carrying this suffix after a crash is a resumable partial.
const partialSuffix = ".partial"

// FsWatcher abstracts filesystem event monitoring, satisfied by
// *fsnotify.Watcher; tests inject a fake implementation instead of touching
// a real directory.
type FsWatcher interface {
	Add(name string) error
	Remove(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

type fsnotifyWatcher struct {
	w *fsnotify.Watcher
}

func (fw *fsnotifyWatcher) Add(name string) error         { return fw.w.Add(name) }
func (fw *fsnotifyWatcher) Remove(name string) error      { return fw.w.Remove(name) }
func (fw *fsnotifyWatcher) Close() error                  { return fw.w.Close() }
func (fw *fsnotifyWatcher) Events() <-chan fsnotify.Event { return fw.w.Events }
func (fw *fsnotifyWatcher) Errors() <-chan error          { return fw.w.Errors }

// PartialCache tracks `*.partial` files in a local warm-cache directory so a
// crashed vaultd process can discover resumable transfers on restart instead
// of re-staging every in-flight upload/download from byte zero. Optional:
// when dir is empty, NewPartialCache returns a no-op cache.
type PartialCache struct {
	dir     string
	logger  *slog.Logger
	watcher FsWatcher

	mu    sync.Mutex
	sizes map[string]int64 // basename (without suffix) -> bytes staged so far
}

// newFsWatcher is overridden in tests so they never touch a real directory.
var newFsWatcher = func() (FsWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &fsnotifyWatcher{w: w}, nil
}

// NewPartialCache scans dir for existing `*.partial` files and starts
// watching it for further writes/removals. Passing an empty dir disables
// the cache: Resumable always reports none, and Close is a no-op.
func NewPartialCache(dir string, logger *slog.Logger) (*PartialCache, error) {
	c := &PartialCache{
		dir:    dir,
		logger: logger,
		sizes:  make(map[string]int64),
	}

	if dir == "" {
		return c, nil
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), partialSuffix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		c.sizes[strings.TrimSuffix(entry.Name(), partialSuffix)] = info.Size()
	}

	w, err := newFsWatcher()
	if err != nil {
		return nil, err
	}

	if err := w.Add(dir); err != nil {
		w.Close()

		return nil, err
	}

	c.watcher = w

	go c.watch()

	return c, nil
}

func (c *PartialCache) watch() {
	for {
		select {
		case ev, ok := <-c.watcher.Events():
			if !ok {
				return
			}

			c.handle(ev)
		case err, ok := <-c.watcher.Errors():
			if !ok {
				return
			}

			c.logger.Warn("partial cache watch error", slog.String("error", err.Error()))
		}
	}
}

func (c *PartialCache) handle(ev fsnotify.Event) {
	name := filepath.Base(ev.Name)
	if !strings.HasSuffix(name, partialSuffix) {
		return
	}

	key := strings.TrimSuffix(name, partialSuffix)

	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		delete(c.sizes, key)
	case ev.Has(fsnotify.Write), ev.Has(fsnotify.Create):
		info, err := os.Stat(ev.Name)
		if err != nil {
			return
		}

		c.sizes[key] = info.Size()
	}
}

// Resumable returns the bytes already staged on disk for key (the transfer's
// target name), or (0, false) if no resumable partial exists.
func (c *PartialCache) Resumable(key string) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	size, ok := c.sizes[key]

	return size, ok
}

// PartialPath returns the staging path a runner should write key's bytes to
// while the transfer is in flight.
func (c *PartialCache) PartialPath(key string) string {
	return filepath.Join(c.dir, key+partialSuffix)
}

// Close stops watching the cache directory. Safe to call on a disabled
// (dir == "") cache.
func (c *PartialCache) Close() error {
	if c.watcher == nil {
		return nil
	}

	return c.watcher.Close()
}
