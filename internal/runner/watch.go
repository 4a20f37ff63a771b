package runner

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/banksean/toast/internal/archiver"
	"github.com/banksean/toast/internal/container"
	"github.com/banksean/toast/internal/recipe"
)

const watchDebounce = 200 * time.Millisecond

// watchInputs re-syncs a task's input paths into containerID whenever one
// of them changes on the host, debouncing bursts of events (e.g. a
// recursive `git checkout`) into a single resync. It runs until ctx is
// canceled.
func watchInputs(ctx context.Context, driver container.Driver, containerID string, task *recipe.Task, sourceDir, destDir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	for _, p := range task.InputPaths {
		if err := addWatchRecursive(watcher, sourceDir, p); err != nil {
			watcher.Close()
			return err
		}
	}

	go func() {
		defer watcher.Close()

		var timer *time.Timer
		resync := make(chan struct{}, 1)

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op == 0 {
					continue
				}
				if timer == nil {
					timer = time.AfterFunc(watchDebounce, func() {
						select {
						case resync <- struct{}{}:
						default:
						}
					})
				} else {
					timer.Reset(watchDebounce)
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.ErrorContext(ctx, "filesystem watcher error", "error", err)

			case <-resync:
				if err := syncInputs(ctx, driver, containerID, task, sourceDir, destDir); err != nil {
					slog.ErrorContext(ctx, "failed to sync files into container", "error", err)
					continue
				}
				slog.InfoContext(ctx, "files synced")
			}
		}
	}()

	return nil
}

func syncInputs(ctx context.Context, driver container.Driver, containerID string, task *recipe.Task, sourceDir, destDir string) error {
	r, w := io.Pipe()
	errCh := make(chan error, 1)
	go func() {
		_, err := archiver.Create(w, task.InputPaths, task.ExcludedInputPaths, sourceDir, destDir, ctx.Done())
		w.Close()
		errCh <- err
	}()

	if err := driver.CopyInto(ctx, containerID, r); err != nil {
		return err
	}
	return <-errCh
}

// addWatchRecursive registers inputPath (and, if it's a directory, every
// subdirectory beneath it) with watcher, since fsnotify only watches a
// single directory level at a time.
func addWatchRecursive(watcher *fsnotify.Watcher, sourceDir, inputPath string) error {
	full := filepath.Join(sourceDir, filepath.FromSlash(inputPath))

	info, err := os.Stat(full)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return watcher.Add(filepath.Dir(full))
	}

	return filepath.WalkDir(full, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(p)
		}
		return nil
	})
}
