package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banksean/toast/internal/container"
	"github.com/banksean/toast/internal/orchestrator"
	"github.com/banksean/toast/internal/recipe"
	"github.com/banksean/toast/internal/runner"
	"github.com/banksean/toast/internal/telemetry"
)

// RunContext is passed to every subcommand's Run method, the way the
// teacher's cmd/sand/main.go passes its own *Context.
type RunContext struct {
	CLI *CLI
}

// RunCmd is the default command: parse the recipe, resolve roots from
// the positional task names, and hand the whole run to the orchestrator.
type RunCmd struct {
	Shell bool     `short:"s" help:"open an interactive shell against the final image on success"`
	Tasks []string `arg:"" optional:"" help:"root task names (defaults to the recipe's default task, or every task)"`
}

func (r *RunCmd) Run(rctx *RunContext) error {
	ctx := context.Background()

	shutdown, err := telemetry.Setup(ctx)
	if err != nil {
		return fmt.Errorf("unable to set up tracing: %w", err)
	}
	defer shutdown(ctx)

	cli := rctx.CLI

	data, err := os.ReadFile(cli.File)
	if err != nil {
		return fmt.Errorf("unable to read %s: %w", cli.File, err)
	}

	rec, err := recipe.Parse(data)
	if err != nil {
		return err
	}

	toastfileDir, err := filepath.Abs(filepath.Dir(cli.File))
	if err != nil {
		return err
	}

	driver := container.NewCLIDriver(cli.Engine)

	return orchestrator.Run(ctx, orchestrator.Options{
		Driver: driver,
		Recipe: rec,
		Roots:  r.Tasks,
		Settings: runner.Settings{
			ToastfileDir:     toastfileDir,
			ContainerRepo:    cli.Repo,
			ReadLocalCache:   cli.ReadLocalCache,
			WriteLocalCache:  cli.WriteLocalCache,
			ReadRemoteCache:  cli.ReadRemoteCache,
			WriteRemoteCache: cli.WriteRemoteCache,
		},
		Shell: r.Shell,
	})
}
