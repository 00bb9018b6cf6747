// Package watcher watches a single file and reports debounced changes and
// deletions. The rule table file is watched this way for hot reload.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher monitors a file for changes and deletion.
// It watches the parent directory since editors often replace files by rename,
// and fsnotify cannot watch non-existent files.
type Watcher struct {
	targetPath string
	parentPath string
	onChange   func()
	onDelete   func()
	watcher    *fsnotify.Watcher
	ctx        context.Context
	cancel     context.CancelFunc
	mu         sync.Mutex
	running    bool
	debounce   time.Duration
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long events are coalesced before a callback fires.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// OnDelete sets the callback for when the target is removed and not recreated
// within the debounce window.
func OnDelete(fn func()) Option {
	return func(w *Watcher) { w.onDelete = fn }
}

// New creates a Watcher for targetPath. onChange is called after the file is
// written, created or replaced.
func New(targetPath string, onChange func(), opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	target := filepath.Clean(targetPath)
	w := &Watcher{
		targetPath: target,
		parentPath: filepath.Dir(target),
		onChange:   onChange,
		watcher:    fsw,
		ctx:        ctx,
		cancel:     cancel,
		debounce:   200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start begins watching.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addWatch(); err != nil {
		return err
	}

	go w.watchLoop()
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	w.running = false
	w.cancel()
	return w.watcher.Close()
}

func (w *Watcher) addWatch() error {
	if _, err := os.Stat(w.parentPath); err != nil {
		return err
	}
	return w.watcher.Add(w.parentPath)
}

type pending int

const (
	pendingNone pending = iota
	pendingChange
	pendingDelete
)

func (w *Watcher) watchLoop() {
	var (
		timer *time.Timer
		state pending
		mu    sync.Mutex
	)

	schedule := func(next pending) {
		mu.Lock()
		defer mu.Unlock()
		state = next
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(w.debounce, func() {
			mu.Lock()
			s := state
			state = pendingNone
			mu.Unlock()
			w.fire(s)
		})
	}

	for {
		select {
		case <-w.ctx.Done():
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			mu.Unlock()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.targetPath {
				continue
			}

			switch {
			case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
				// A create after a pending delete is a replace, not a deletion.
				schedule(pendingChange)
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				schedule(pendingDelete)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (w *Watcher) fire(s pending) {
	switch s {
	case pendingChange:
		log.Info().Str("path", w.targetPath).Msg("Watched file changed")
		if w.onChange != nil {
			w.onChange()
		}
	case pendingDelete:
		log.Info().Str("path", w.targetPath).Msg("Watched file deleted")
		if w.onDelete != nil {
			w.onDelete()
		}
	}
}
