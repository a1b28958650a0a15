// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package watch runs the pipeline over files as they appear in or change
// within a source directory.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/pdiddy/docx-templater/internal/scan"
)

const (
	defaultDebounce = 500 * time.Millisecond
	tickInterval    = 100 * time.Millisecond

	// queueSize bounds the settled paths waiting for a handler.
	queueSize = 64
)

// Handler receives a settled legacy or docx path.
type Handler func(ctx context.Context, path string)

// Stats counts watcher activity.
type Stats struct {
	Events     int
	Dispatched int
	Errors     int
}

// Watcher debounces filesystem events in one directory and hands settled
// input files to its handlers.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	dir      string
	opts     scan.Options
	debounce time.Duration
	pending  map[string]time.Time
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	stats    Stats

	// OnLegacy is called for .doc files, OnContainer for .docx files.
	OnLegacy    Handler
	OnContainer Handler
}

// New creates a watcher for dir. A debounce of zero uses the default. Paths
// handed to the handlers are absolute.
func New(dir string, opts scan.Options, debounce time.Duration) (*Watcher, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", dir, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{
		watcher:  fw,
		dir:      abs,
		opts:     opts,
		debounce: debounce,
		pending:  make(map[string]time.Time),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start adds the directory and begins the event loop. It does not block.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	w.running = true
	zerolog.Ctx(ctx).Info().Str("dir", w.dir).Dur("debounce", w.debounce).Msg("watching")
	go w.run(ctx)
	return nil
}

// Stop ends the event loop, waits for it to exit, and releases the watcher.
// Stop is safe to call when the loop already ended through its context.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	wasRunning := w.running
	w.running = false
	w.mu.Unlock()

	if wasRunning {
		close(w.stopCh)
		<-w.doneCh
	}
	return w.watcher.Close()
}

// Stats returns a snapshot of the watcher counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// run reads filesystem events and hands settled paths to a single worker,
// so a slow handler never stalls event delivery.
func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	queue := make(chan string, queueSize)
	workerDone := make(chan struct{})
	go w.work(ctx, queue, workerDone)
	defer func() {
		close(queue)
		<-workerDone
	}()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	log := zerolog.Ctx(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("watch error")
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
		case <-ticker.C:
			w.dispatch(queue)
		}
	}
}

// work calls the handler for each queued path in order. Paths still queued
// once the watcher is stopping are dropped.
func (w *Watcher) work(ctx context.Context, queue <-chan string, done chan<- struct{}) {
	defer close(done)
	for p := range queue {
		select {
		case <-ctx.Done():
			continue
		case <-w.stopCh:
			continue
		default:
		}
		w.deliver(ctx, p)
	}
}

// handleEvent queues create and write events on eligible inputs. Output
// files never qualify, so the tool does not react to its own writes.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if !w.accepts(event.Name) {
		return
	}
	w.mu.Lock()
	w.stats.Events++
	w.pending[event.Name] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) accepts(name string) bool {
	if !scan.Eligible(name, w.opts) {
		return false
	}
	return scan.IsLegacy(name) || scan.IsContainer(name)
}

// dispatch queues every path quiet for at least the debounce window, in name
// order. A path that does not fit in the queue stays pending for the next tick.
func (w *Watcher) dispatch(queue chan<- string) {
	now := time.Now()
	w.mu.Lock()
	defer w.mu.Unlock()

	var settled []string
	for p, at := range w.pending {
		if now.Sub(at) >= w.debounce {
			settled = append(settled, p)
		}
	}
	sort.Strings(settled)

	for _, p := range settled {
		select {
		case queue <- p:
			delete(w.pending, p)
		default:
			return
		}
	}
}

func (w *Watcher) deliver(ctx context.Context, p string) {
	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	h := w.OnContainer
	if scan.IsLegacy(p) {
		h = w.OnLegacy
	}
	if h == nil {
		return
	}
	zerolog.Ctx(ctx).Debug().Str("path", p).Msg("settled")
	h(ctx, p)
	w.mu.Lock()
	w.stats.Dispatched++
	w.mu.Unlock()
}
