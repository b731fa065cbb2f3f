package config

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"lautenbacher.net/spidev/util"
)

// Watcher re-reads the configuration whenever the file changes on disk
// and publishes the result. Consumers select on Updates().Channel()
// and pick up the latest config with Updates().Get(); intermediate
// edits that were never consumed are dropped.
type Watcher struct {
	fsw     *fsnotify.Watcher
	cfile   string
	updates *util.Latest[*Config]
	done    chan struct{}
}

// NewWatcher starts watching the directory containing cfile. Watching
// the directory rather than the file survives the rename-over-save
// pattern editors use.
func NewWatcher(cfile string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(cfile)); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		fsw:     fsw,
		cfile:   cfile,
		updates: util.NewLatest[*Config](),
		done:    make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Updates returns the holder of the most recently reloaded config.
func (w *Watcher) Updates() *util.Latest[*Config] {
	return w.updates
}

// Close stops the watcher. It is safe to call once.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.cfile) {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			conf, err := ReadConfig(w.cfile)
			if err != nil {
				// Keep running with the previous config; a half-saved
				// file often triggers a failed read first.
				slog.Warn("Ignoring config change", "file", w.cfile, "error", err)
				continue
			}
			slog.Info("Configuration file reloaded", "file", w.cfile)
			w.updates.Set(conf)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Error("Config watcher error", "error", err)
		}
	}
}
