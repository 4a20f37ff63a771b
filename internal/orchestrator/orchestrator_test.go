package orchestrator

import (
	"context"
	"io"
	"testing"

	"github.com/banksean/toast/internal/container"
	"github.com/banksean/toast/internal/recipe"
	"github.com/banksean/toast/internal/runner"
	"github.com/banksean/toast/internal/toasterr"
)

func TestComputeSchedule(t *testing.T) {
	rec := &recipe.Recipe{
		Image: "base",
		Tasks: map[string]*recipe.Task{
			"a": {},
			"b": {Dependencies: []string{"a"}},
			"c": {Dependencies: []string{"a"}},
			"d": {Dependencies: []string{"b", "c"}},
		},
	}

	got := computeSchedule(rec, []string{"d"})
	want := []string{"a", "b", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("computeSchedule() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("computeSchedule() = %v, want %v", got, want)
		}
	}
}

func TestResolveRootsUsesRequestedTasks(t *testing.T) {
	rec := &recipe.Recipe{Tasks: map[string]*recipe.Task{"a": {}, "b": {}}}

	got, err := resolveRoots(rec, []string{"b"})
	if err != nil {
		t.Fatalf("resolveRoots() error = %v", err)
	}
	if len(got) != 1 || got[0] != "b" {
		t.Errorf("resolveRoots() = %v, want [b]", got)
	}
}

func TestResolveRootsRejectsUnknownRequestedTask(t *testing.T) {
	rec := &recipe.Recipe{Tasks: map[string]*recipe.Task{"a": {}}}

	if _, err := resolveRoots(rec, []string{"missing"}); err == nil {
		t.Fatal("expected an error for a nonexistent requested task")
	}
}

func TestResolveRootsFallsBackToDefaultTask(t *testing.T) {
	def := "a"
	rec := &recipe.Recipe{Default: &def, Tasks: map[string]*recipe.Task{"a": {}, "b": {}}}

	got, err := resolveRoots(rec, nil)
	if err != nil {
		t.Fatalf("resolveRoots() error = %v", err)
	}
	if len(got) != 1 || got[0] != "a" {
		t.Errorf("resolveRoots() = %v, want [a]", got)
	}
}

func TestResolveRootsFallsBackToEveryTask(t *testing.T) {
	rec := &recipe.Recipe{Tasks: map[string]*recipe.Task{"a": {}, "b": {}}}

	got, err := resolveRoots(rec, nil)
	if err != nil {
		t.Fatalf("resolveRoots() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("resolveRoots() = %v, want both tasks", got)
	}
}

func TestAnnotateTaskErrorPreservesInterrupted(t *testing.T) {
	if got := annotateTaskError("build", toasterr.Interrupted); got != toasterr.Interrupted {
		t.Errorf("annotateTaskError() = %v, want toasterr.Interrupted unchanged", got)
	}
}

func TestAnnotateTaskErrorWrapsUserFailure(t *testing.T) {
	err := annotateTaskError("build", toasterr.User("the command failed", nil))
	if _, ok := err.(*toasterr.UserError); !ok {
		t.Fatalf("annotateTaskError() = %T, want *toasterr.UserError", err)
	}
	if got := err.Error(); got == "" {
		t.Error("expected a non-empty error message")
	}
}

func TestAnnotateTaskErrorWrapsSystemFailure(t *testing.T) {
	err := annotateTaskError("build", toasterr.System("disk exploded", nil))
	if _, ok := err.(*toasterr.SystemError); !ok {
		t.Fatalf("annotateTaskError() = %T, want *toasterr.SystemError", err)
	}
}

// fakeDriver is a minimal Driver fake exercising just enough of the
// surface for a full schedule walk, in the style of the teacher's
// hand-written mocks.
type fakeDriver struct {
	images     map[string]bool
	created    int
	committed  []string
	deletedImg []string
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{images: map[string]bool{}}
}

func (f *fakeDriver) ImageExists(ctx context.Context, image string) (bool, error) {
	return f.images[image], nil
}
func (f *fakeDriver) PullImage(ctx context.Context, image string) error { return nil }
func (f *fakeDriver) PushImage(ctx context.Context, image string) error { return nil }
func (f *fakeDriver) DeleteImage(ctx context.Context, image string) error {
	f.deletedImg = append(f.deletedImg, image)
	delete(f.images, image)
	return nil
}
func (f *fakeDriver) CreateContainer(ctx context.Context, spec container.ContainerSpec) (string, error) {
	f.created++
	return spec.Image + "-container", nil
}
func (f *fakeDriver) CopyInto(ctx context.Context, containerID string, tar io.Reader) error {
	_, err := io.Copy(io.Discard, tar)
	return err
}
func (f *fakeDriver) CopyOut(ctx context.Context, containerID string, paths []string, sourceDir, destDir string) error {
	return nil
}
func (f *fakeDriver) StartContainer(ctx context.Context, containerID string) error { return nil }
func (f *fakeDriver) ExecContainer(ctx context.Context, containerID, command, user string) error {
	return nil
}
func (f *fakeDriver) StopContainer(ctx context.Context, containerID string) error { return nil }
func (f *fakeDriver) CommitContainer(ctx context.Context, containerID, image string) error {
	f.committed = append(f.committed, image)
	f.images[image] = true
	return nil
}
func (f *fakeDriver) DeleteContainer(ctx context.Context, containerID string) error { return nil }
func (f *fakeDriver) RunShell(ctx context.Context, spec container.ShellSpec) error  { return nil }

func TestRunWalksScheduleReusingOneContainer(t *testing.T) {
	dir := t.TempDir()
	rec := &recipe.Recipe{
		Image:    "base",
		Location: "/scratch",
		User:     "root",
		Tasks: map[string]*recipe.Task{
			"a": {Command: "echo a"},
			"b": {Command: "echo b", Dependencies: []string{"a"}},
		},
	}
	driver := newFakeDriver()

	err := Run(context.Background(), Options{
		Driver: driver,
		Recipe: rec,
		Roots:  []string{"b"},
		Settings: runner.Settings{
			ToastfileDir:  dir,
			ContainerRepo: "toast",
		},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// Neither task declares ports, so once "a" creates the first
	// container, "b" reuses it directly (spec.md §4.7.b) rather than
	// creating a second one.
	if driver.created != 1 {
		t.Errorf("created = %d containers, want 1 (reused across both tasks)", driver.created)
	}
}

func TestRunWithCacheDisabledCreatesNoImages(t *testing.T) {
	dir := t.TempDir()
	disabled := false
	rec := &recipe.Recipe{
		Image:    "base",
		Location: "/scratch",
		User:     "root",
		Tasks: map[string]*recipe.Task{
			"a": {Command: "echo a", Cache: &disabled},
			"b": {Command: "echo b", Dependencies: []string{"a"}, Cache: &disabled},
		},
	}
	driver := newFakeDriver()

	err := Run(context.Background(), Options{
		Driver: driver,
		Recipe: rec,
		Roots:  []string{"b"},
		Settings: runner.Settings{
			ToastfileDir:  dir,
			ContainerRepo: "toast",
		},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// Neither task declares ports, so "b" reuses "a"'s still-running
	// container throughout; with no write-cache switches set, nothing is
	// ever committed to an image, so there is nothing to delete either.
	if len(driver.committed) != 0 {
		t.Errorf("committed = %v, want none", driver.committed)
	}
	if len(driver.deletedImg) != 0 {
		t.Errorf("deletedImg = %v, want none", driver.deletedImg)
	}
}

func TestRunPropagatesValidationFailure(t *testing.T) {
	rec := &recipe.Recipe{
		Image: "base",
		Tasks: map[string]*recipe.Task{
			"a": {Dependencies: []string{"missing"}},
		},
	}
	driver := newFakeDriver()

	err := Run(context.Background(), Options{
		Driver:   driver,
		Recipe:   rec,
		Roots:    []string{"a"},
		Settings: runner.Settings{ContainerRepo: "toast"},
	})
	if err == nil {
		t.Fatal("expected a validation error")
	}
}
