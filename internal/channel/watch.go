package channel

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Watch reloads profile overrides from dir whenever a YAML file in it is
// written or created. A profile that fails to parse or validate is logged
// and the previous version stays active. Watch blocks until ctx is done.
func (r *Registry) Watch(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return eris.Wrap(err, "channel: new watcher")
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return eris.Wrapf(err, "channel: watch %s", dir)
	}
	log := zap.L().With(zap.String("dir", dir))
	log.Info("channel: watching profile overrides")

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			switch filepath.Ext(event.Name) {
			case ".yaml", ".yml":
			default:
				continue
			}

			p, err := LoadFile(event.Name)
			if err != nil {
				log.Warn("channel: reload failed, keeping previous profile",
					zap.String("file", event.Name), zap.Error(err))
				continue
			}
			if err := r.Put(p); err != nil {
				log.Warn("channel: rejected profile", zap.String("file", event.Name), zap.Error(err))
				continue
			}
			log.Info("channel: profile reloaded", zap.String("channel", p.ID))

			// An atomic save may replace the directory entry.
			_ = watcher.Add(dir)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("channel: watcher error", zap.Error(err))
		}
	}
}
