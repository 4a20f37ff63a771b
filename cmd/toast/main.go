// Command toast runs the tasks declared in a recipe file inside
// containers, caching each task's result by the content it depends on.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
	kongyaml "github.com/alecthomas/kong-yaml"
	"github.com/jotaen/kong-completion"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/banksean/toast/internal/config"
)

// CLI is the root command set, following the teacher's cmd/sand/main.go
// shape: global flags plus one struct per subcommand, with Run as the
// default/root behavior for bare positional task names. Repo, Engine,
// and the four cache switches take their defaults from the user's
// config file (see validateConfigFile and kong.Configuration below);
// any value actually passed on the command line wins over either.
type CLI struct {
	File             string `short:"f" default:"toast.yml" placeholder:"<path>" help:"recipe file path"`
	Repo             string `short:"r" default:"toast" placeholder:"<name>" help:"image tag prefix"`
	Engine           string `default:"docker" placeholder:"<name>" help:"container engine binary (docker, podman, container, ...)"`
	ReadLocalCache   bool   `negatable:"" default:"true" help:"read cached results from the local image store"`
	WriteLocalCache  bool   `negatable:"" default:"true" help:"write results to the local image store"`
	ReadRemoteCache  bool   `negatable:"" help:"read cached results from the configured remote registry"`
	WriteRemoteCache bool   `negatable:"" help:"push results to the configured remote registry"`
	LogFile          string `default:"" placeholder:"<path>" help:"location of the log file (leave empty for a random tmp/ path)"`
	LogLevel         string `default:"info" placeholder:"<debug|info|warn|error>" help:"the logging level"`
	// Note: the Repo, Engine and four cache-switch flag names (kebab-cased
	// by kong automatically, e.g. ReadLocalCache -> read-local-cache)
	// match keys in internal/config.Config by design, so ~/.toastrc.yml
	// can supply those flags' defaults (via kongyaml.Loader below) and
	// pass config.Parse's own strict validation. File, LogFile and
	// LogLevel have no config key.

	Run     RunCmd     `cmd:"" default:"withargs" help:"run a recipe's tasks (the default command)"`
	Version VersionCmd `cmd:"" help:"print version information about this command"`
}

func (c *CLI) initSlog() {
	var level slog.Level
	switch c.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// With no explicit log file, fall back to a plain temp file: there's
	// nothing long-lived to rotate. An explicit --log-file is assumed to
	// be a persistent location across many invocations, so it's rotated
	// through lumberjack to keep it from growing without bound.
	var out io.Writer
	var name string
	if c.LogFile == "" {
		f, err := os.CreateTemp("", "toast-log")
		if err != nil {
			panic(err)
		}
		out = f
		name = f.Name()
	} else {
		if err := os.MkdirAll(filepath.Dir(c.LogFile), 0o755); err != nil {
			panic(err)
		}
		out = &lumberjack.Logger{
			Filename:   c.LogFile,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     28,
		}
		name = c.LogFile
	}

	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	slog.Debug("slog initialized", "logFile", name)
}

const description = `Run a recipe's tasks inside containers, caching each task's result.`

const configFileName = ".toastrc.yml"

func main() {
	var cli CLI

	if err := validateConfigFile(); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}

	parser := kong.Must(&cli,
		kong.Name("toast"),
		kong.Description(description),
		kong.Configuration(kongyaml.Loader, configFileName, "~/"+configFileName),
		kong.UsageOnError(),
	)
	kongcompletion.Register(parser)

	kctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	cli.initSlog()

	if err := kctx.Run(&RunContext{CLI: &cli}); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// validateConfigFile rejects an unknown key in ~/.toastrc.yml before
// kong's own config loader gets to it: kongyaml.Loader only feeds flag
// defaults and silently ignores keys with no matching flag, so a typo'd
// config key would otherwise pass through unnoticed.
func validateConfigFile() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}

	data, err := os.ReadFile(filepath.Join(home, configFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	_, err = config.Parse(data)
	return err
}
