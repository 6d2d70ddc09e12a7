package loop

import (
	"time"

	"github.com/fsnotify/fsnotify"

	"tusk/internal/config"
	"tusk/internal/logging"
)

// ConfigWatcher watches config.json for edits during a long-running loop
// run and reloads the Dispatcher's Config in place, so an operator can
// adjust max_tasks/on_failure/agent_binary without restarting the loop.
// Grounded on the teacher's explorer-panel file watcher: a debounced
// fsnotify.Watcher feeding a single background goroutine, failing silent
// (watching is a convenience, never a requirement for the loop to run).
type ConfigWatcher struct {
	watcher  *fsnotify.Watcher
	loader   *config.Loader
	dispatch *Dispatcher
	log      *logging.Logger
	stop     chan struct{}
	debounce time.Duration
}

// WatchConfig starts watching the config file backing loader for
// changes, reloading and atomically swapping it into dispatch via
// Dispatcher.SetConfig on each settled edit. Returns nil (no watcher, no
// error) if the underlying
// fsnotify watcher can't be created, mirroring the teacher's
// "silently fail - watcher is optional" treatment.
func WatchConfig(loader *config.Loader, dispatch *Dispatcher, log *logging.Logger) *ConfigWatcher {
	if log == nil {
		log = logging.NewNop()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn("config watcher disabled", "error", err)
		return nil
	}
	path := loader.ConfigFile()
	if path == "" {
		_ = w.Close()
		return nil
	}
	if err := w.Add(path); err != nil {
		log.Warn("config watcher disabled", "path", path, "error", err)
		_ = w.Close()
		return nil
	}

	cw := &ConfigWatcher{
		watcher:  w,
		loader:   loader,
		dispatch: dispatch,
		log:      log,
		stop:     make(chan struct{}),
		debounce: 200 * time.Millisecond,
	}
	go cw.watchLoop()
	return cw
}

// Close stops the watcher goroutine and releases the fsnotify watcher.
func (cw *ConfigWatcher) Close() {
	if cw == nil {
		return
	}
	close(cw.stop)
	_ = cw.watcher.Close()
}

func (cw *ConfigWatcher) watchLoop() {
	var timer *time.Timer
	for {
		select {
		case <-cw.stop:
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(cw.debounce, cw.reload)
		case _, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			// Ignored: a watch error never aborts the loop it's assisting.
		}
	}
}

func (cw *ConfigWatcher) reload() {
	cfg, err := cw.loader.Load()
	if err != nil {
		cw.log.Warn("config reload failed, keeping previous config", "error", err)
		return
	}
	cw.dispatch.SetConfig(cfg)
	cw.log.Info("reloaded config", "max_tasks", cfg.Loop.MaxTasks, "on_failure", cfg.Loop.OnFailure)
}
