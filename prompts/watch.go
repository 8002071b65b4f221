package prompts

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch invalidates cached templates when files in the override directory
// change. It returns once the watch is established; the watch stops when
// ctx is done.
func (l *Library) Watch(ctx context.Context) error {
	if l.dir == "" {
		return fmt.Errorf("no prompt directory to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(l.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch prompt directory: %w", err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				name := filepath.Base(event.Name)
				l.Invalidate(name)
				l.logger.Info("prompt template changed",
					zap.String("template", name),
					zap.String("op", event.Op.String()),
				)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Error("prompt watcher error", zap.Error(err))
			}
		}
	}()

	return nil
}
