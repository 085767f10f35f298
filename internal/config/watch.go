package config

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/kestrelworks/triage/internal/logging"
)

// Watcher re-reads the layered configuration whenever the watched config
// file changes and hands the result to an apply callback. Only tunable
// values (scoring weights, thresholds, overload factor) take effect at
// runtime; structural keys such as database paths or the embedding provider
// require a restart.
type Watcher struct {
	path    string
	load    func() (*Config, error)
	apply   func(*Config)
	watcher *fsnotify.Watcher
	done    chan struct{}
	log     zerolog.Logger
}

// Watch starts watching the given config file and calls apply with the
// freshly loaded configuration after each change.
func Watch(path string, apply func(*Config)) (*Watcher, error) {
	return newWatcher(path, Load, apply)
}

func newWatcher(path string, load func() (*Config, error), apply func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}

	// Watch the directory; editors replace the file on save, which would
	// silently drop a watch bound to the file itself.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}

	w := &Watcher{
		path:    path,
		load:    load,
		apply:   apply,
		watcher: fw,
		done:    make(chan struct{}),
		log:     logging.Component("config"),
	}

	go w.loop()

	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("config watch error")
		}
	}
}

// reload re-reads the configuration. A file that fails to load or validate
// leaves the running values untouched.
func (w *Watcher) reload() {
	cfg, err := w.load()
	if err != nil {
		w.log.Warn().Err(err).Str("path", w.path).Msg("config reload skipped")
		return
	}
	w.apply(cfg)
	w.log.Info().Str("path", w.path).Msg("config reloaded")
}

// Close stops the watcher.
func (w *Watcher) Close() {
	close(w.done)
	w.watcher.Close()
}
