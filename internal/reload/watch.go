package reload

import (
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatchFile watches path for writes and calls n.Notify on each one, so
// editing the config file on disk has the same effect as a SIGUSR2 or a
// management API reload request. The returned stop function closes the
// underlying watcher.
func WatchFile(path string, n Notifier, log *zap.Logger) (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(path); err != nil {
		_ = w.Close()
		return nil, err
	}
	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					log.Info("config file changed", zap.String("path", path))
					n.Notify()
				}
			case werr, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("watch error", zap.Error(werr))
			case <-done:
				return
			}
		}
	}()
	return func() {
		close(done)
		_ = w.Close()
	}, nil
}
