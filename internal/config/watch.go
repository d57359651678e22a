package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "blastbot/pkg/logx"
)

// Watcher re-reads the config file when it changes on disk and hands the
// parsed result to an apply callback. Invalid content is logged and skipped;
// the previously committed config stays in effect.
type Watcher struct {
	path  string
	log   logx.Logger
	apply func(*Config)
}

func NewWatcher(path string, log logx.Logger, apply func(*Config)) *Watcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Watcher{path: path, log: log, apply: apply}
}

// Run blocks until ctx is done. Editors often emit several write/rename
// events per save, so changes are debounced before re-parsing.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	// Watch the directory, not the file: many editors replace the file on
	// save, which drops a direct file watch.
	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return err
	}

	const debounce = 300 * time.Millisecond
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(debounce)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("config watch error", logx.Err(err))
		case <-timerC:
			timer = nil
			timerC = nil
			cfg, err := Load(w.path)
			if err != nil {
				w.log.Warn("config reload rejected", logx.String("path", w.path), logx.Err(err))
				continue
			}
			w.log.Info("config reloaded", logx.String("path", w.path))
			if w.apply != nil {
				w.apply(cfg)
			}
		}
	}
}
