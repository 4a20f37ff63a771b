package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/banksean/toast/internal/archiver"
	"github.com/banksean/toast/internal/cachekey"
	"github.com/banksean/toast/internal/container"
	"github.com/banksean/toast/internal/recipe"
	"github.com/banksean/toast/internal/runner"
)

// maxConcurrentPulls bounds the pre-warm pull pool, the Go analogue of
// the teacher pack's bounded worker patterns (golang.org/x/sync/semaphore,
// already present in the teacher's go.mod for unrelated concurrency).
const maxConcurrentPulls = 5

// cacheablePrefixTags predicts the image tag each task along the
// cacheable prefix of the schedule will read or write, by replaying the
// same archive-then-cachekey computation the Runner performs, stopping
// at (not including) the first task with cache:false.
func cacheablePrefixTags(toastfileDir string, rec *recipe.Recipe, env map[string]string, schedule []string) []string {
	var tags []string
	prevKey := cachekey.InitialKey(rec.Image)

	for _, name := range schedule {
		task := rec.Tasks[name]
		if !task.CacheEnabled() {
			break
		}

		location := rec.Location(task)
		hash, err := archiver.Create(io.Discard, task.InputPaths, task.ExcludedInputPaths, toastfileDir, location, nil)
		if err != nil {
			slog.Warn("pre-warm: unable to predict cache tag, skipping remaining prefix", "task", name, "error", err)
			break
		}

		prevKey = cachekey.Next(prevKey, task, location, rec.User(task), rec.Command(task), env, hash)
		tags = append(tags, prevKey)
	}

	return tags
}

// preWarmImages pulls the recipe's base image and, if readRemoteCache is
// set, every prospective cache tag along the cacheable prefix,
// concurrently with a fixed maximum degree. Individual failures are
// logged and ignored: pre-warming is an optimization, not a requirement,
// and the Runner will retry each pull itself when it actually needs the
// image.
func preWarmImages(ctx context.Context, driver container.Driver, settings runner.Settings, baseImage string, tags []string) {
	sem := semaphore.NewWeighted(maxConcurrentPulls)
	var wg sync.WaitGroup

	pull := func(image string) {
		defer wg.Done()
		if err := sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer sem.Release(1)

		if exists, _ := driver.ImageExists(ctx, image); exists {
			return
		}
		if err := driver.PullImage(ctx, image); err != nil {
			slog.DebugContext(ctx, "pre-warm pull failed, ignoring", "image", image, "error", err)
		}
	}

	wg.Add(1)
	go pull(baseImage)

	if settings.ReadRemoteCache {
		for _, tag := range tags {
			wg.Add(1)
			go pull(fmt.Sprintf("%s:%s", settings.ContainerRepo, tag))
		}
	}

	wg.Wait()
}
