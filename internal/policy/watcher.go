package policy

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// watchVocabulary reloads the vocabulary file when it changes on disk, so
// term-list updates do not require a restart. A bad file keeps the previous
// vocabulary active.
func watchVocabulary(ctx context.Context, engine *Engine, path string, log *zap.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return err
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
				if event.Name != path || !event.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				vocab, err := LoadVocabularyFile(path)
				if err != nil {
					log.Warn("vocabulary reload failed", zap.String("path", path), zap.Error(err))
					continue
				}
				if err := engine.SetVocabulary(vocab); err != nil {
					log.Warn("vocabulary rejected", zap.String("path", path), zap.Error(err))
					continue
				}
				log.Info("vocabulary reloaded", zap.String("path", path))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("vocabulary watcher error", zap.Error(err))
			}
		}
	}()

	return nil
}
