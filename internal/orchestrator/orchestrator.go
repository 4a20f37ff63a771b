// Package orchestrator drives a whole recipe run: it validates and
// schedules, pre-warms images, walks the schedule serially threading a
// runner.Context from task to task, and handles interrupt signals and
// cleanup, the way the teacher's sand/mux.go drives a server's
// lifecycle around request handling.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/banksean/toast/internal/cachekey"
	"github.com/banksean/toast/internal/container"
	"github.com/banksean/toast/internal/recipe"
	"github.com/banksean/toast/internal/runner"
	"github.com/banksean/toast/internal/schedule"
	"github.com/banksean/toast/internal/spinner"
	"github.com/banksean/toast/internal/telemetry"
	"github.com/banksean/toast/internal/toasterr"
)

// animateProgress gates the per-task spinner on stdout actually being a
// terminal: piped or logged output has no cursor to animate, and a raw
// escape sequence there would just be noise.
var animateProgress = term.IsTerminal(int(os.Stdout.Fd()))

// Options configures a single orchestrated run of a recipe.
type Options struct {
	Driver   container.Driver
	Recipe   *recipe.Recipe
	Roots    []string
	Settings runner.Settings
	// Shell, if set, opens an interactive shell against the final image
	// once the schedule completes successfully.
	Shell bool
}

// Run validates and schedules opts.Recipe, pre-warms the images it
// expects to need, and executes the schedule serially. It returns a
// toasterr-classified error on any failure, already attributed to the
// task that produced it where applicable.
func Run(ctx context.Context, opts Options) error {
	if err := opts.Recipe.Validate(); err != nil {
		return err
	}

	roots, err := resolveRoots(opts.Recipe, opts.Roots)
	if err != nil {
		return err
	}

	sched := computeSchedule(opts.Recipe, roots)

	env, err := opts.Recipe.ResolveScheduleEnvironment(sched)
	if err != nil {
		return err
	}

	stopSignalHandler := installSignalHandler(ctx)
	defer stopSignalHandler()

	tags := cacheablePrefixTags(opts.Settings.ToastfileDir, opts.Recipe, env, sched)
	preWarmImages(ctx, opts.Driver, opts.Settings, opts.Recipe.Image, tags)

	active := container.NewActiveSet()
	rctx := runner.ImageContext(opts.Recipe.Image)
	prevKey := cachekey.InitialKey(opts.Recipe.Image)
	cachingEnabled := true

	for _, name := range sched {
		task := opts.Recipe.Tasks[name]
		location := opts.Recipe.Location(task)
		user := opts.Recipe.User(task)
		command := opts.Recipe.Command(task)

		slog.InfoContext(ctx, "running task", "task", name)

		spec := runner.Spec{
			Name:        name,
			Task:        task,
			Location:    location,
			User:        user,
			Command:     command,
			Environment: env,
		}

		// A task whose own cache is disabled never reads or writes a
		// cache entry regardless of the schedule-wide flag below; once
		// any task disables caching, every later task is forced uncached
		// too (spec.md §4.7 monotonicity), because its cache key chains
		// off state that is no longer reproducible from a clean image.
		effectiveCaching := cachingEnabled && task.CacheEnabled()

		var stopSpinner func()
		if animateProgress {
			stopSpinner = spinner.Spin(fmt.Sprintf("running %s", name))
		}
		key, newCtx, runErr := runner.Run(ctx, opts.Driver, active, opts.Settings, spec, prevKey, effectiveCaching, rctx)
		if stopSpinner != nil {
			stopSpinner()
		}
		if runErr != nil {
			newCtx.Release(ctx)
			return annotateTaskError(name, runErr)
		}

		rctx = newCtx
		prevKey = key

		if !task.CacheEnabled() {
			cachingEnabled = false
		}
	}

	if opts.Shell {
		if err := spawnFinalShell(ctx, opts.Driver, opts.Recipe, opts.Settings.ContainerRepo, rctx); err != nil {
			rctx.Release(ctx)
			return err
		}
	}

	rctx.Release(ctx)
	return nil
}

// annotateTaskError attributes a failure to the task that produced it,
// preserving Interrupted as-is (spec.md §7: it is not a failure of
// anything, and unwinds with its own bare message) while wrapping User
// and System failures with the task name.
func annotateTaskError(task string, err error) error {
	if toasterr.IsInterrupted(err) {
		return err
	}

	var userErr *toasterr.UserError
	if errors.As(err, &userErr) {
		return toasterr.User(fmt.Sprintf("Task `%s` failed.", task), userErr)
	}
	return toasterr.System(fmt.Sprintf("Task `%s` failed.", task), err)
}

// spawnFinalShell opens an interactive shell against the schedule's
// final result. If the result is a running container rather than a
// plain image, it is committed to a throwaway tag first, since RunShell
// always launches a fresh ephemeral container from an image.
func spawnFinalShell(ctx context.Context, driver container.Driver, rec *recipe.Recipe, repo string, rctx runner.Context) error {
	ctx, span := telemetry.StartSpan(ctx, "orchestrator.spawnFinalShell", "")
	defer span.End()

	image := rctx.Image
	if rctx.Kind == runner.KindContainer {
		tempImage := fmt.Sprintf("%s:%s", repo, container.RandomTag(repo))
		if err := driver.CommitContainer(ctx, rctx.Container, tempImage); err != nil {
			return err
		}
		defer driver.DeleteImage(ctx, tempImage)
		image = tempImage
	}

	return driver.RunShell(ctx, container.ShellSpec{
		Image:    image,
		Location: rec.Location,
		User:     rec.User,
	})
}

// resolveRoots applies the root-selection policy: use the caller's
// requested tasks if any were given (after checking each one exists),
// else the recipe's declared default task, else every task in the
// recipe.
func resolveRoots(rec *recipe.Recipe, requested []string) ([]string, error) {
	if len(requested) > 0 {
		for _, name := range requested {
			if _, ok := rec.Tasks[name]; !ok {
				return nil, toasterr.User(fmt.Sprintf("Task `%s` does not exist.", name), nil)
			}
		}
		return requested, nil
	}

	if rec.Default != nil {
		return []string{*rec.Default}, nil
	}

	all := make([]string, 0, len(rec.Tasks))
	for name := range rec.Tasks {
		all = append(all, name)
	}
	return all, nil
}

// computeSchedule resolves roots against the recipe's dependency graph
// into a deterministic linear order.
func computeSchedule(rec *recipe.Recipe, roots []string) []string {
	return schedule.Compute(roots, func(task string) []string {
		t, ok := rec.Tasks[task]
		if !ok {
			return nil
		}
		return t.Dependencies
	})
}
