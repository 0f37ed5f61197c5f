package config

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/golang/glog"
)

// Watcher reloads a BridgeConfig whenever the file at path changes on
// disk and hands the new value to OnReload. Parse failures are
// reported to OnError and the previously loaded config is left in
// place, since a bridge mid-flight should never be torn down by a
// transient editor save.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	OnReload func(*BridgeConfig)
	OnError  func(error)
	done     chan struct{}
}

// NewWatcher starts watching the directory containing path (fsnotify
// watches directories, not bare files, to survive editors that
// replace a file via rename-over-write).
func NewWatcher(path string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{path: path, watcher: fsw, done: make(chan struct{})}, nil
}

// Run blocks, dispatching OnReload/OnError until Close is called.
func (w *Watcher) Run() {
	target := filepath.Clean(w.path)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				glog.Warningf("config watcher: reload of %s failed: %v", w.path, err)
				if w.OnError != nil {
					w.OnError(err)
				}
				continue
			}
			if w.OnReload != nil {
				w.OnReload(cfg)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			glog.Warningf("config watcher: %v", err)
			if w.OnError != nil {
				w.OnError(err)
			}
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher and releases the underlying inotify handle.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
