package kv

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"intel-mcp/internal/logger"
)

var log = logger.ForComponent("kv")

// Watch re-imports path into w whenever the file changes, until ctx is
// done. Bursts of events within debounce collapse into one import. The
// parent directory is watched so editors that replace the file on save are
// handled.
func Watch(ctx context.Context, w Writer, path string, opts Options, debounce time.Duration) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		return err
	}
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				timer.Reset(debounce)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch error", "path", abs, "error", err)
		case <-timer.C:
			n, err := Import(ctx, w, abs, opts)
			if err != nil {
				log.Error("re-import failed", "path", abs, "error", err)
				continue
			}
			log.Info("re-imported source", "path", abs, "records", n)
		}
	}
}
