package syncer

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/spetr/aethersync/pkg/types"
)

// DefaultPollInterval is the pause between drains in follow mode.
const DefaultPollInterval = 30 * time.Second

// FollowSettings are the parts of the configuration follow mode reloads.
type FollowSettings struct {
	Queues   []types.Entity
	Interval time.Duration
}

// FollowConfig contains follow mode configuration.
type FollowConfig struct {
	Settings FollowSettings

	// ConfigPath is watched for changes; empty disables reloading.
	ConfigPath string
	Reload     func() (FollowSettings, error)

	OnDrain      func([]*DrainReport)
	DebounceTime time.Duration // Default: 500ms
}

// Follow drains the configured queues every interval until ctx is
// cancelled. Drain errors are logged and retried on the next tick.
func (s *Syncer) Follow(ctx context.Context, cfg FollowConfig) error {
	settings := cfg.Settings
	if settings.Interval <= 0 {
		settings.Interval = DefaultPollInterval
	}
	debounce := cfg.DebounceTime
	if debounce == 0 {
		debounce = 500 * time.Millisecond
	}

	var events <-chan fsnotify.Event
	var errs <-chan error
	path := ""
	if cfg.ConfigPath != "" && cfg.Reload != nil {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return err
		}
		defer w.Close()

		path = filepath.Clean(cfg.ConfigPath)
		// Editors replace files by rename, so watch the directory.
		if err := w.Add(filepath.Dir(path)); err != nil {
			return err
		}
		events, errs = w.Events, w.Errors
	}

	slog.Info("following sync queues",
		"queues", settings.Queues,
		"interval", settings.Interval,
		"worker", s.workerID)

	s.tick(ctx, settings.Queues, cfg.OnDrain)

	ticker := time.NewTicker(settings.Interval)
	defer ticker.Stop()

	var reload <-chan time.Time
	var reloadTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping follower")
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			return nil

		case <-ticker.C:
			s.tick(ctx, settings.Queues, cfg.OnDrain)

		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if reloadTimer == nil {
				reloadTimer = time.NewTimer(debounce)
			} else {
				reloadTimer.Reset(debounce)
			}
			reload = reloadTimer.C

		case <-reload:
			reload = nil
			next, err := cfg.Reload()
			if err != nil {
				slog.Warn("config reload failed, keeping previous settings", "error", err)
				continue
			}
			if next.Interval <= 0 {
				next.Interval = DefaultPollInterval
			}
			if next.Interval != settings.Interval {
				ticker.Reset(next.Interval)
			}
			settings = next
			slog.Info("config reloaded", "queues", settings.Queues, "interval", settings.Interval)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("config watcher error", "error", err)
		}
	}
}

func (s *Syncer) tick(ctx context.Context, queues []types.Entity, onDrain func([]*DrainReport)) {
	reports, err := s.DrainAll(ctx, queues)
	if err != nil && ctx.Err() == nil {
		slog.Error("drain failed", "error", err)
	}
	if onDrain != nil {
		onDrain(reports)
	}
}
