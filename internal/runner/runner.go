// Package runner executes a single task: it builds the task's input
// archive, derives the cache key, decides whether the task is cached,
// and otherwise runs the task's command in a container, committing and
// pushing the result according to the configured cache-write switches.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/banksean/toast/internal/archiver"
	"github.com/banksean/toast/internal/cachekey"
	"github.com/banksean/toast/internal/container"
	"github.com/banksean/toast/internal/recipe"
	"github.com/banksean/toast/internal/telemetry"
	"github.com/banksean/toast/internal/toasterr"
)

// Settings configures how a task is run, independent of the task itself.
type Settings struct {
	ToastfileDir     string
	ContainerRepo    string
	ReadLocalCache   bool
	WriteLocalCache  bool
	ReadRemoteCache  bool
	WriteRemoteCache bool
}

// Spec is everything about a single task's invocation that Run needs,
// beyond the recipe Task itself: its inherited location, user, and fully
// assembled command text, plus the environment variables it resolved
// against the host.
type Spec struct {
	Name        string
	Task        *recipe.Task
	Location    string
	User        string
	Command     string
	Environment map[string]string
}

// Run executes one task and returns its new cache key and the Context to
// hand off to the next task in the schedule. On error, the Context
// returned is still valid and must still eventually be released by the
// caller.
func Run(ctx context.Context, driver container.Driver, active *container.ActiveSet, settings Settings, spec Spec, previousCacheKey string, cachingEnabled bool, rctx Context) (string, Context, error) {
	ctx, span := telemetry.StartSpan(ctx, "runner.Run", spec.Name)
	defer span.End()

	tarFile, err := os.CreateTemp("", "toast-archive-")
	if err != nil {
		return "", rctx, toasterr.System("Unable to create temporary file.", err)
	}
	defer os.Remove(tarFile.Name())
	defer tarFile.Close()

	inputHash, err := archiver.Create(tarFile, spec.Task.InputPaths, spec.Task.ExcludedInputPaths, settings.ToastfileDir, spec.Location, ctx.Done())
	if err != nil {
		return "", rctx, err
	}
	if _, err := tarFile.Seek(0, 0); err != nil {
		return "", rctx, toasterr.System("Unable to seek temporary file.", err)
	}

	cacheKey := cachekey.Next(previousCacheKey, spec.Task, spec.Location, spec.User, spec.Command, spec.Environment, inputHash)
	image := fmt.Sprintf("%s:%s", settings.ContainerRepo, cacheKey)

	cached, err := checkCache(ctx, driver, settings, cachingEnabled, image)
	if err != nil {
		return "", rctx, err
	}

	if cached {
		return runCached(ctx, driver, active, settings, spec, cacheKey, image, rctx)
	}

	return runUncached(ctx, driver, active, settings, spec, tarFile, cacheKey, image, cachingEnabled, rctx)
}

func checkCache(ctx context.Context, driver container.Driver, settings Settings, cachingEnabled bool, image string) (bool, error) {
	if !cachingEnabled {
		return false, nil
	}

	if settings.ReadLocalCache {
		exists, err := driver.ImageExists(ctx, image)
		if err != nil {
			return false, err
		}
		if exists {
			return true, nil
		}
	}

	if settings.ReadRemoteCache {
		if err := driver.PullImage(ctx, image); err != nil {
			if toasterr.IsInterrupted(err) {
				return false, err
			}
			return false, nil
		}
		return true, nil
	}

	return false, nil
}

// runCached hands back a Context for an already-cached task, always
// discarding rctx (the context handed down from the previous task) in
// favor of a freshly established one: the previous container, if any,
// must be released here since the caller only ever holds the Context
// this function returns from now on.
func runCached(ctx context.Context, driver container.Driver, active *container.ActiveSet, settings Settings, spec Spec, cacheKey, image string, rctx Context) (string, Context, error) {
	if len(spec.Task.OutputPaths) == 0 {
		rctx.Release(ctx)
		return cacheKey, ImageContext(image), nil
	}

	containerID, err := driver.CreateContainer(ctx, container.ContainerSpec{
		Image:    image,
		Location: spec.Location,
		User:     spec.User,
		Command:  "true",
		Ports:    spec.Task.Ports,
	})
	if err != nil {
		rctx.Release(ctx)
		return "", ImageContext(image), err
	}
	cctx := ContainerContext(driver, active, containerID, spec.Task.Ports)
	rctx.Release(ctx)

	if err := driver.CopyOut(ctx, containerID, spec.Task.OutputPaths, spec.Location, settings.ToastfileDir); err != nil {
		return "", cctx, err
	}

	return cacheKey, cctx, nil
}

func runUncached(
	ctx context.Context,
	driver container.Driver,
	active *container.ActiveSet,
	settings Settings,
	spec Spec,
	tarFile *os.File,
	cacheKey, image string,
	cachingEnabled bool,
	rctx Context,
) (string, Context, error) {
	commandScript := buildCommandScript(spec)

	containerID, newCtx, reused, err := obtainContainer(ctx, driver, active, settings, spec, commandScript, rctx)
	if err != nil {
		return "", newCtx, err
	}

	if err := driver.CopyInto(ctx, containerID, tarFile); err != nil {
		return "", newCtx, err
	}

	if spec.Task.Watch {
		if err := watchInputs(ctx, driver, containerID, spec.Task, settings.ToastfileDir, spec.Location); err != nil {
			return "", newCtx, toasterr.System("Unable to initialize filesystem watcher.", err)
		}
	}

	if err := runCommand(ctx, driver, containerID, commandScript, spec.User, reused); err != nil {
		if len(spec.Task.OutputPathsOnFailure) > 0 {
			if copyErr := driver.CopyOut(ctx, containerID, spec.Task.OutputPathsOnFailure, spec.Location, settings.ToastfileDir); copyErr != nil {
				slog.ErrorContext(ctx, "failed to extract output_paths_on_failure", "error", copyErr)
			}
		}
		return "", newCtx, err
	}

	if len(spec.Task.OutputPaths) > 0 {
		if err := driver.CopyOut(ctx, containerID, spec.Task.OutputPaths, spec.Location, settings.ToastfileDir); err != nil {
			return "", newCtx, err
		}
	}

	if cachingEnabled {
		if err := writeCache(ctx, driver, settings, containerID, image); err != nil {
			return "", newCtx, err
		}
	}

	return cacheKey, newCtx, nil
}

// obtainContainer decides whether to reuse the container already referenced
// by rctx (same ports, just exec a new command in it), recreate one from a
// committed snapshot of it (ports changed), or create a fresh one from an
// image (no container inherited at all).
func obtainContainer(ctx context.Context, driver container.Driver, active *container.ActiveSet, settings Settings, spec Spec, commandScript string, rctx Context) (string, Context, bool, error) {
	switch rctx.Kind {
	case KindContainer:
		if portsEqual(rctx.Ports, spec.Task.Ports) {
			return rctx.Container, rctx, true, nil
		}

		tempImage := fmt.Sprintf("%s:%s", settings.ContainerRepo, container.RandomTag(settings.ContainerRepo))
		if err := driver.CommitContainer(ctx, rctx.Container, tempImage); err != nil {
			return "", rctx, false, err
		}

		containerID, err := driver.CreateContainer(ctx, containerSpecFor(spec, tempImage, commandScript))
		if err != nil {
			driver.DeleteImage(ctx, tempImage)
			return "", rctx, false, err
		}
		// The temporary tag only existed to seed containerID; once it has,
		// the tag itself is disposable.
		if err := driver.DeleteImage(ctx, tempImage); err != nil {
			slog.WarnContext(ctx, "failed to delete temporary snapshot image", "image", tempImage, "error", err)
		}
		newCtx := ContainerContext(driver, active, containerID, spec.Task.Ports)
		rctx.Release(ctx)
		return containerID, newCtx, false, nil

	default: // KindImage
		exists, err := driver.ImageExists(ctx, rctx.Image)
		if err != nil {
			return "", rctx, false, err
		}
		if !exists {
			if err := driver.PullImage(ctx, rctx.Image); err != nil {
				return "", rctx, false, err
			}
		}

		containerID, err := driver.CreateContainer(ctx, containerSpecFor(spec, rctx.Image, commandScript))
		if err != nil {
			return "", rctx, false, err
		}
		return containerID, ContainerContext(driver, active, containerID, spec.Task.Ports), false, nil
	}
}

func containerSpecFor(spec Spec, image, commandScript string) container.ContainerSpec {
	return container.ContainerSpec{
		Image:         image,
		SourceDir:     "",
		Environment:   nil,
		MountPaths:    spec.Task.MountPaths,
		MountReadonly: spec.Task.MountReadonly,
		Ports:         spec.Task.Ports,
		Location:      spec.Location,
		User:          spec.User,
		Command:       commandScript,
		ExtraArgs:     spec.Task.ExtraContainerArgs,
	}
}

// runCommand either execs the command in an already-running container
// (the reuse path, when the inherited container already exposes the
// right ports) or starts a freshly created one whose command was baked
// in at creation time.
func runCommand(ctx context.Context, driver container.Driver, containerID, commandScript, user string, reused bool) error {
	if reused {
		return driver.ExecContainer(ctx, containerID, commandScript, user)
	}
	return driver.StartContainer(ctx, containerID)
}

func writeCache(ctx context.Context, driver container.Driver, settings Settings, containerID, image string) error {
	switch {
	case settings.WriteLocalCache && settings.WriteRemoteCache:
		if err := driver.CommitContainer(ctx, containerID, image); err != nil {
			return err
		}
		return driver.PushImage(ctx, image)

	case settings.WriteLocalCache:
		return driver.CommitContainer(ctx, containerID, image)

	case settings.WriteRemoteCache:
		tempImage := fmt.Sprintf("%s:%s", settings.ContainerRepo, container.RandomTag(settings.ContainerRepo))
		if err := driver.CommitContainer(ctx, containerID, tempImage); err != nil {
			return err
		}
		pushErr := driver.PushImage(ctx, tempImage)
		if err := driver.DeleteImage(ctx, tempImage); err != nil {
			// Best-effort cleanup; the push result is what matters.
			_ = err
		}
		return pushErr

	default:
		return nil
	}
}

// buildCommandScript assembles the `cd`/`export`/`su -c` shell script run
// inside the container, with every interpolated value shell-escaped.
func buildCommandScript(spec Spec) string {
	var lines []string
	lines = append(lines, fmt.Sprintf("cd %s", shellEscape(spec.Location)))

	names := make([]string, 0, len(spec.Task.Environment))
	for name := range spec.Task.Environment {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("export %s=%s", shellEscape(name), shellEscape(spec.Environment[name])))
	}

	lines = append(lines, fmt.Sprintf("su -c %s %s", shellEscape(spec.Command), shellEscape(spec.User)))
	return strings.Join(lines, " && ")
}

func portsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
