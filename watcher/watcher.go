// Package watcher discovers files in the sender's source directory and
// feeds them, one at a time and in name order, to a handler.
//
// Discovery is a directory listing. A fallback poll ticker drives it; when
// fsnotify is enabled, change events in the directory trigger an earlier
// scan. Either way each scan processes every entry present at list time.
package watcher

import (
	"context"
	"errors"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/pithecene-io/courier/iox"
	"github.com/pithecene-io/courier/log"
	"github.com/pithecene-io/courier/spool"
)

// DefaultPollInterval is the scan period when none is configured.
const DefaultPollInterval = time.Second

// debounce coalesces bursts of fsnotify events into one scan.
const debounce = 100 * time.Millisecond

// Handler processes one discovered filename. It must bring the file to a
// terminal state (moved out of the directory) before returning.
type Handler func(ctx context.Context, filename string)

// Config controls how the directory is observed.
type Config struct {
	// Dir is the directory to scan.
	Dir string
	// PollInterval is the fallback scan period.
	PollInterval time.Duration
	// Notify enables fsnotify wake-ups in addition to polling.
	Notify bool
}

// Watcher runs the discovery loop.
type Watcher struct {
	cfg     Config
	handler Handler
	logger  *log.Logger
}

// New creates a Watcher. logger may be nil.
func New(cfg Config, handler Handler, logger *log.Logger) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, errors.New("watcher requires a directory")
	}
	if handler == nil {
		return nil, errors.New("watcher requires a handler")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Watcher{cfg: cfg, handler: handler, logger: logger}, nil
}

// Scan lists the directory once and hands every entry to the handler in
// sorted order. It stops early, between files, when ctx is done. It
// returns the number of files handled.
func (w *Watcher) Scan(ctx context.Context) (int, error) {
	names, err := spool.List(w.cfg.Dir)
	if err != nil {
		return 0, err
	}
	handled := 0
	for _, name := range names {
		if ctx.Err() != nil {
			return handled, ctx.Err()
		}
		w.handler(ctx, name)
		handled++
	}
	return handled, nil
}

// Run scans until ctx is done. Listing failures are logged and retried on
// the next tick. Run returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("Waiting for json files...", map[string]any{"dir": w.cfg.Dir})
	w.scanAndLog(ctx)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	var events <-chan fsnotify.Event
	var errs <-chan error
	if w.cfg.Notify {
		fw := w.initNotify()
		if fw != nil {
			defer iox.DiscardClose(fw)
			events = fw.Events
			errs = fw.Errors
		}
	}

	timer := newStoppedTimer()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.scanAndLog(ctx)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename) {
				resetTimer(timer, debounce)
			}
		case <-timer.C:
			w.scanAndLog(ctx)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Warn("fsnotify error", map[string]any{"error": err})
		}
	}
}

func (w *Watcher) scanAndLog(ctx context.Context) {
	n, err := w.Scan(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("could not list source directory", map[string]any{
				"dir":   w.cfg.Dir,
				"error": err,
			})
		}
		return
	}
	if n > 0 {
		w.logger.Info("Waiting for json files...", map[string]any{"handled": n})
	}
}

// initNotify returns a watcher on the source directory, or nil when
// fsnotify is unavailable. Polling continues either way.
func (w *Watcher) initNotify() *fsnotify.Watcher {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("fsnotify unavailable, polling only", map[string]any{"error": err})
		return nil
	}
	if err := fw.Add(w.cfg.Dir); err != nil {
		iox.DiscardClose(fw)
		w.logger.Warn("fsnotify watch failed, polling only", map[string]any{
			"dir":   w.cfg.Dir,
			"error": err,
		})
		return nil
	}
	return fw
}

func newStoppedTimer() *time.Timer {
	t := time.NewTimer(0)
	if !t.Stop() {
		<-t.C
	}
	return t
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
