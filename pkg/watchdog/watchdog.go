// Package watchdog notices files that other workers rename into shared
// directories and forwards their paths to a channel. The corpus store
// commits seeds by atomic rename, which arrives here as a create event for
// the final name; writes, chmods and removals are ignored.
package watchdog

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FilterFunc selects which created paths are forwarded. Paths it rejects
// are dropped silently.
type FilterFunc func(path string) bool

type WatchDogFactory struct {
	logger *zap.Logger
}

func NewWatchDogFactory(logger *zap.Logger) *WatchDogFactory {
	return &WatchDogFactory{logger: logger.Named("watchdog")}
}

// WatchDog owns one fsnotify watcher. It runs until its context is done and
// closes the sink channel on the way out, so receivers drain naturally.
type WatchDog struct {
	ctx    context.Context
	sink   chan<- string
	filter FilterFunc
	logger *zap.Logger

	watcher *fsnotify.Watcher
}

// New starts a watchdog forwarding created-file paths to sink. A nil filter
// forwards everything.
func (f *WatchDogFactory) New(ctx context.Context, sink chan<- string, filter FilterFunc) *WatchDog {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		f.logger.Fatal("Failed to create fsnotify watcher", zap.Error(err))
	}

	wd := &WatchDog{
		ctx,
		sink,
		filter,
		f.logger,
		watcher,
	}

	go wd.watch()

	return wd
}

// AddDir puts a directory on the watch list. An inaccessible directory is
// reported and skipped; the watchdog keeps running with whatever it has.
func (wd *WatchDog) AddDir(dir string) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		wd.logger.Error("Failed to resolve watch dir", zap.String("dir", dir), zap.Error(err))
		return
	}
	if _, err := os.Stat(abs); err != nil {
		wd.logger.Error("Watch dir is not accessible", zap.String("dir", abs), zap.Error(err))
		return
	}
	if err := wd.watcher.Add(abs); err != nil {
		wd.logger.Error("Failed to watch dir", zap.String("dir", abs), zap.Error(err))
		return
	}
	wd.logger.Debug("Watching dir", zap.String("dir", abs))
}

func (wd *WatchDog) watch() {
	defer wd.watcher.Close()
	defer close(wd.sink)
	for {
		select {
		case <-wd.ctx.Done():
			return
		case event, ok := <-wd.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			if wd.filter != nil && !wd.filter(event.Name) {
				wd.logger.Debug("Path ignored by filter", zap.String("path", event.Name))
				continue
			}
			select {
			case wd.sink <- event.Name:
			case <-wd.ctx.Done():
				return
			}
		case err, ok := <-wd.watcher.Errors:
			if !ok {
				return
			}
			wd.logger.Warn("Watcher error", zap.Error(err))
		}
	}
}
