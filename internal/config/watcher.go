package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/muurk/scenebridge/internal/logging"
)

// reloadDelay coalesces the burst of events editors produce for one save.
const reloadDelay = 100 * time.Millisecond

// Watcher reloads a config file when it changes on disk.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onChange func(*Config)

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Watch starts watching path and calls onChange with each successfully
// loaded and validated new configuration. Invalid files are logged and
// ignored, leaving the previous configuration in effect.
//
// The parent directory is watched rather than the file itself so that
// editors which save by renaming a temporary file are picked up.
func Watch(path string, onChange func(*Config)) (*Watcher, error) {
	path, err := ResolvePath(path)
	if err != nil {
		return nil, err
	}
	path = filepath.Clean(path)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	w := &Watcher{
		path:     path,
		watcher:  fw,
		onChange: onChange,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.run()

	logging.Info("Watching config file for changes", zap.String("path", path))
	return w, nil
}

func (w *Watcher) run() {
	defer close(w.done)

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-w.stop:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDelay)
			} else {
				timer.Reset(reloadDelay)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn("Config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	if _, err := os.Stat(w.path); err != nil {
		logging.Debug("Config file not present, keeping current config", zap.String("path", w.path))
		return
	}
	cfg, err := Load(w.path)
	if err != nil {
		logging.Warn("Ignoring config change",
			zap.String("path", w.path),
			zap.Error(err),
		)
		return
	}
	logging.Info("Config reloaded", zap.String("path", w.path))
	w.onChange(cfg)
}

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stop)
		<-w.done
		err = w.watcher.Close()
	})
	return err
}
