package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/pawwatch/internal/detector"
	"github.com/good-yellow-bee/pawwatch/internal/logger"
)

// reloadDebounce coalesces the burst of events editors emit on save.
const reloadDebounce = 250 * time.Millisecond

// optionsSetter is satisfied by *detector.Detector.
type optionsSetter interface {
	SetOptions(opts detector.Options) error
}

// configWatcher reloads the detection section when the config file changes.
// Other sections need a restart.
type configWatcher struct {
	path     string
	target   optionsSetter
	debounce time.Duration
	log      zerolog.Logger
	// reloaded, when set, is signaled after each successful reload.
	reloaded chan<- detector.Options
}

func newConfigWatcher(path string, target optionsSetter) (*configWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	return &configWatcher{
		path:     abs,
		target:   target,
		debounce: reloadDebounce,
		log:      logger.WithComponent("config"),
	}, nil
}

// Run watches the config directory until ctx is canceled. The directory is
// watched so that files replaced by rename are still seen.
func (w *configWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch config directory: %w", err)
	}
	w.log.Info().Str("path", w.path).Msg("watching config for detection changes")

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != w.path || (!event.Has(fsnotify.Write) && !event.Has(fsnotify.Create)) {
				continue
			}
			timer.Reset(w.debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("config watcher error")
		case <-timer.C:
			w.reload()
		}
	}
}

// reload applies the detection section of the file. An invalid file leaves
// the running options untouched.
func (w *configWatcher) reload() {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		w.log.Error().Err(err).Msg("config reload rejected")
		return
	}
	opts := cfg.Detection.Options()
	if err := w.target.SetOptions(opts); err != nil {
		w.log.Error().Err(err).Msg("detection options rejected")
		return
	}
	w.log.Info().
		Int("analysis_window_days", opts.AnalysisWindowDays).
		Int("baseline_window_days", opts.BaselineWindowDays).
		Msg("detection options reloaded")
	if w.reloaded != nil {
		select {
		case w.reloaded <- opts:
		default:
		}
	}
}
