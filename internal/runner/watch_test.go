package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/banksean/toast/internal/recipe"
)

func TestAddWatchRecursiveFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "input.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		t.Fatal(err)
	}
	defer watcher.Close()

	if err := addWatchRecursive(watcher, dir, "input.txt"); err != nil {
		t.Fatalf("addWatchRecursive() error = %v", err)
	}
	if len(watcher.WatchList()) != 1 {
		t.Errorf("WatchList() = %v, want the file's parent directory watched", watcher.WatchList())
	}
}

func TestAddWatchRecursiveDirectory(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "src", "nested")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		t.Fatal(err)
	}
	defer watcher.Close()

	if err := addWatchRecursive(watcher, dir, "src"); err != nil {
		t.Fatalf("addWatchRecursive() error = %v", err)
	}
	// "src" itself plus "src/nested".
	if len(watcher.WatchList()) != 2 {
		t.Errorf("WatchList() = %v, want both src and src/nested watched", watcher.WatchList())
	}
}

func TestSyncInputsCopiesIntoContainer(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	driver := newFakeDriver()
	task := &recipe.Task{InputPaths: []string{"a.txt"}}

	if err := syncInputs(context.Background(), driver, "c1", task, dir, "/scratch"); err != nil {
		t.Fatalf("syncInputs() error = %v", err)
	}
	if len(driver.copiedIn) != 1 || driver.copiedIn[0] != "c1" {
		t.Errorf("copiedIn = %v, want [c1]", driver.copiedIn)
	}
}

func TestWatchInputsResyncsOnChange(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(target, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}

	driver := newFakeDriver()
	task := &recipe.Task{InputPaths: []string{"a.txt"}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := watchInputs(ctx, driver, "c1", task, dir, "/scratch"); err != nil {
		t.Fatalf("watchInputs() error = %v", err)
	}

	if err := os.WriteFile(target, []byte("v2"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(driver.copiedIn) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if len(driver.copiedIn) == 0 {
		t.Fatal("watchInputs() never resynced after a file change")
	}
}
