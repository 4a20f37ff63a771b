// Package container adapts the container engine CLI (Docker, Podman, or
// anything speaking the same command surface) as a subprocess, the way
// banksean-sand's applecontainer package wraps the `container` binary.
package container

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/term"

	"github.com/banksean/toast/internal/interrupt"
	"github.com/banksean/toast/internal/recipe"
	"github.com/banksean/toast/internal/toasterr"
)

// Driver is the set of container engine operations a task runner needs.
// It is implemented by CLIDriver in production and can be faked in tests.
type Driver interface {
	ImageExists(ctx context.Context, image string) (bool, error)
	PullImage(ctx context.Context, image string) error
	PushImage(ctx context.Context, image string) error
	DeleteImage(ctx context.Context, image string) error

	CreateContainer(ctx context.Context, spec ContainerSpec) (string, error)
	CopyInto(ctx context.Context, containerID string, tar io.Reader) error
	CopyOut(ctx context.Context, containerID string, paths []string, sourceDir, destDir string) error
	StartContainer(ctx context.Context, containerID string) error
	// ExecContainer runs command as user in an already-started container,
	// for reusing a container across tasks instead of recreating it.
	ExecContainer(ctx context.Context, containerID, command, user string) error
	StopContainer(ctx context.Context, containerID string) error
	CommitContainer(ctx context.Context, containerID, image string) error
	DeleteContainer(ctx context.Context, containerID string) error

	RunShell(ctx context.Context, spec ShellSpec) error
}

// ContainerSpec holds everything needed to create a container for a task.
type ContainerSpec struct {
	Image         string
	SourceDir     string
	Environment   map[string]string
	MountPaths    []recipe.MappingPath
	MountReadonly bool
	Ports         []string
	Location      string
	User          string
	Command       string
	ExtraArgs     []string
}

// ShellSpec holds everything needed to spawn an interactive shell container.
type ShellSpec struct {
	Image         string
	SourceDir     string
	Environment   map[string]string
	Location      string
	MountPaths    []recipe.MappingPath
	MountReadonly bool
	Ports         []string
	User          string
	ExtraArgs     []string
}

// CLIDriver implements Driver by shelling out to a container engine binary.
type CLIDriver struct {
	// Engine is the name or path of the container engine binary, e.g.
	// "docker" or "podman".
	Engine string
}

// NewCLIDriver returns a Driver backed by the given container engine binary.
func NewCLIDriver(engine string) *CLIDriver {
	return &CLIDriver{Engine: engine}
}

func (d *CLIDriver) command(ctx context.Context, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, d.Engine, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	return cmd
}

func (d *CLIDriver) runQuiet(ctx context.Context, errMsg string, userCommand bool, args ...string) (string, error) {
	cmd := d.command(ctx, args...)
	slog.DebugContext(ctx, "container.runQuiet", "cmd", strings.Join(cmd.Args, " "))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", classifyExecError(ctx, err, errMsg, stderr.String(), userCommand)
	}
	return stdout.String(), nil
}

func (d *CLIDriver) runLoud(ctx context.Context, errMsg string, userCommand bool, args ...string) error {
	cmd := d.command(ctx, args...)
	slog.DebugContext(ctx, "container.runLoud", "cmd", strings.Join(cmd.Args, " "))
	cmd.Stdin = nil
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return classifyExecError(ctx, err, errMsg, "", userCommand)
	}
	return nil
}

func (d *CLIDriver) runAttach(ctx context.Context, errMsg string, userCommand bool, args ...string) error {
	cmd := d.command(ctx, args...)
	slog.DebugContext(ctx, "container.runAttach", "cmd", strings.Join(cmd.Args, " "))

	if term.IsTerminal(int(os.Stdin.Fd())) {
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			return classifyExecError(ctx, err, errMsg, "", userCommand)
		}
		return nil
	}

	// Stdin isn't a real terminal (e.g. it's been redirected from a
	// pipe), so the engine's own `--tty` flag has nothing to attach to.
	// Run the shell behind a pseudo-terminal instead.
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return classifyExecError(ctx, err, errMsg, "", userCommand)
	}
	defer ptmx.Close()

	stdinState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err == nil {
		defer term.Restore(int(os.Stdin.Fd()), stdinState)
	}

	go io.Copy(ptmx, os.Stdin)
	go io.Copy(os.Stdout, ptmx)

	if err := cmd.Wait(); err != nil {
		return classifyExecError(ctx, err, errMsg, "", userCommand)
	}
	return nil
}

func classifyExecError(ctx context.Context, err error, errMsg, stderr string, userCommand bool) error {
	if ctx.Err() != nil || interrupt.IsSet() {
		return toasterr.Interrupted
	}

	message := errMsg
	if stderr != "" {
		message = fmt.Sprintf("%s\n%s", errMsg, stderr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// A child terminated by a signal has no exit status.
		if exitErr.ExitCode() == -1 {
			return toasterr.Interrupted
		}
		if userCommand {
			return toasterr.User(message, nil)
		}
		return toasterr.System(message, nil)
	}

	return toasterr.System(fmt.Sprintf("%s Perhaps the container engine isn't installed.", errMsg), err)
}

func (d *CLIDriver) ImageExists(ctx context.Context, image string) (bool, error) {
	_, err := d.runQuiet(ctx, "The image doesn't exist.", false, "image", "inspect", image)
	if err == nil {
		return true, nil
	}
	if toasterr.IsInterrupted(err) {
		return false, err
	}
	return false, nil
}

func (d *CLIDriver) PullImage(ctx context.Context, image string) error {
	_, err := d.runQuiet(ctx, "Unable to pull image.", false, "image", "pull", image)
	return err
}

func (d *CLIDriver) PushImage(ctx context.Context, image string) error {
	_, err := d.runQuiet(ctx, "Unable to push image.", false, "image", "push", image)
	return err
}

func (d *CLIDriver) DeleteImage(ctx context.Context, image string) error {
	_, err := d.runQuiet(ctx, "Unable to delete image.", false, "image", "rm", "--force", image)
	return err
}

func (d *CLIDriver) CreateContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	args := []string{"container", "create"}
	containerArgs, err := buildContainerArgs(
		spec.SourceDir, spec.Environment, spec.Location, spec.MountPaths,
		spec.MountReadonly, spec.Ports, spec.ExtraArgs,
	)
	if err != nil {
		return "", err
	}
	args = append(args, containerArgs...)
	args = append(args, spec.Image, "/bin/su", "-c", spec.Command, spec.User)

	out, err := d.runQuiet(ctx, "Unable to create container.", false, args...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (d *CLIDriver) CopyInto(ctx context.Context, containerID string, tar io.Reader) error {
	cmd := d.command(ctx, "container", "cp", "-", fmt.Sprintf("%s:/", containerID))
	slog.DebugContext(ctx, "container.CopyInto", "cmd", strings.Join(cmd.Args, " "))

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return toasterr.System("Unable to copy files into the container.", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return toasterr.System("Unable to copy files into the container. Perhaps the container engine isn't installed.", err)
	}

	copyErr := func() error {
		_, err := io.Copy(stdin, tar)
		closeErr := stdin.Close()
		if err != nil {
			return toasterr.System("Unable to copy files into the container.", err)
		}
		if closeErr != nil {
			return toasterr.System("Unable to copy files into the container.", closeErr)
		}
		return nil
	}()

	waitErr := cmd.Wait()
	if copyErr != nil {
		return copyErr
	}
	if waitErr != nil {
		return classifyExecError(ctx, waitErr, "Unable to copy files into the container.", stderr.String(), false)
	}
	return nil
}

// CopyOut copies each of paths from inside the container at sourceDir to
// destDir on the host. Each path is staged into a fresh temporary
// directory first, since `container cp` is not idempotent: copying a
// directory into an existing destination nests it instead of replacing
// its contents.
func (d *CLIDriver) CopyOut(ctx context.Context, containerID string, paths []string, sourceDir, destDir string) error {
	for _, p := range paths {
		stagingDir, err := os.MkdirTemp("", "toast-copy-out-")
		if err != nil {
			return toasterr.System("Unable to create a temporary directory.", err)
		}

		intermediate := filepath.Join(stagingDir, "data")
		source := joinUnixPaths(sourceDir, p)

		if _, err := d.runQuiet(ctx, "Unable to copy files from the container.", true,
			"container", "cp", fmt.Sprintf("%s:%s", containerID, source), intermediate); err != nil {
			os.RemoveAll(stagingDir)
			return err
		}

		destination := filepath.Join(destDir, filepath.FromSlash(p))
		if err := placeStagedPath(intermediate, destination); err != nil {
			os.RemoveAll(stagingDir)
			return err
		}

		os.RemoveAll(stagingDir)
	}
	return nil
}

func (d *CLIDriver) StartContainer(ctx context.Context, containerID string) error {
	return d.runLoud(ctx, "Unable to start container.", true, "container", "start", "--attach", containerID)
}

func (d *CLIDriver) ExecContainer(ctx context.Context, containerID, command, user string) error {
	return d.runLoud(ctx, "Command failed.", true, "container", "exec", containerID, "/bin/su", "-c", command, user)
}

func (d *CLIDriver) StopContainer(ctx context.Context, containerID string) error {
	_, err := d.runQuiet(ctx, "Unable to stop container.", false, "container", "stop", containerID)
	return err
}

func (d *CLIDriver) CommitContainer(ctx context.Context, containerID, image string) error {
	_, err := d.runQuiet(ctx, "Unable to commit container.", false, "container", "commit", containerID, image)
	return err
}

func (d *CLIDriver) DeleteContainer(ctx context.Context, containerID string) error {
	_, err := d.runQuiet(ctx, "Unable to delete container.", false, "container", "rm", "--force", containerID)
	return err
}

func (d *CLIDriver) RunShell(ctx context.Context, spec ShellSpec) error {
	args := []string{"container", "run", "--rm", "--interactive", "--tty"}
	containerArgs, err := buildContainerArgs(
		spec.SourceDir, spec.Environment, spec.Location, spec.MountPaths,
		spec.MountReadonly, spec.Ports, spec.ExtraArgs,
	)
	if err != nil {
		return err
	}
	args = append(args, containerArgs...)
	args = append(args, spec.Image, "/bin/su", spec.User)

	return d.runAttach(ctx, "The shell exited with a failure.", true, args...)
}

// buildContainerArgs returns the flags shared by `container create` and
// `container run` for spawning a task's or a shell's container.
func buildContainerArgs(sourceDir string, environment map[string]string, location string, mountPaths []recipe.MappingPath, mountReadonly bool, ports, extraArgs []string) ([]string, error) {
	args := []string{"--init", "--user", "root"}

	for _, name := range sortedKeys(environment) {
		args = append(args, "--env", fmt.Sprintf("%s=%s", name, environment[name]))
	}

	args = append(args, "--workdir", location)

	absoluteSourceDir, err := filepath.Abs(sourceDir)
	if err != nil {
		return nil, toasterr.User("Unable to determine the current working directory.", err)
	}

	for _, mp := range mountPaths {
		spec := fmt.Sprintf(
			"type=bind,source=%s,target=%s",
			filepath.Join(absoluteSourceDir, filepath.FromSlash(mp.HostPath)),
			joinUnixPaths(location, mp.ContainerPath),
		)
		if mountReadonly {
			spec += ",readonly"
		}
		args = append(args, "--mount", spec)
	}

	for _, port := range ports {
		args = append(args, "--publish", port)
	}

	args = append(args, extraArgs...)
	return args, nil
}

func joinUnixPaths(base, rel string) string {
	if rel == "" {
		return base
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(rel, "/")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
