package runner

import (
	"context"
	"log/slog"

	"github.com/banksean/toast/internal/container"
)

// Kind distinguishes the two states a task can hand off to the next task
// in the schedule: a plain image, or a container already holding the
// result of running the task.
type Kind int

const (
	// KindImage means the context is just an image name; no container
	// is currently running.
	KindImage Kind = iota
	// KindContainer means the context owns a running container, which
	// must eventually be released.
	KindContainer
)

// Context is the state threaded from one task to the next in a
// schedule. A Container context "owns" its container: Release deletes it,
// mirroring the original implementation's Drop impl for its Context enum
// (Go has no destructors, so callers must call Release explicitly at
// every point where a Context is discarded or replaced).
type Context struct {
	Kind      Kind
	Image     string
	Container string
	Ports     []string

	driver container.Driver
	active *container.ActiveSet
}

// ImageContext returns a Context that is just an image; it owns nothing
// and Release is a no-op.
func ImageContext(image string) Context {
	return Context{Kind: KindImage, Image: image}
}

// ContainerContext returns a Context that owns containerID, registering
// it in active until Release removes it.
func ContainerContext(driver container.Driver, active *container.ActiveSet, containerID string, ports []string) Context {
	active.Add(containerID)
	return Context{
		Kind:      KindContainer,
		Container: containerID,
		Ports:     ports,
		driver:    driver,
		active:    active,
	}
}

// Release deletes the owned container, if any, and stops tracking it as
// active. It is safe to call on an Image context (a no-op) and safe to
// call more than once.
func (c Context) Release(ctx context.Context) {
	if c.Kind != KindContainer || c.Container == "" {
		return
	}
	c.active.Remove(c.Container)
	if err := c.driver.DeleteContainer(ctx, c.Container); err != nil {
		slog.ErrorContext(ctx, "failed to delete container", "container", c.Container, "error", err)
	}
}
