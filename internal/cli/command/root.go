package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/restorepoint-go/internal/cli/output"
	"github.com/yndnr/restorepoint-go/internal/config"
	"github.com/yndnr/restorepoint-go/internal/core/domain"
	"github.com/yndnr/restorepoint-go/internal/core/service"
	"github.com/yndnr/restorepoint-go/internal/infra/buildinfo"
	"github.com/yndnr/restorepoint-go/internal/infra/confloader"
	"github.com/yndnr/restorepoint-go/internal/project"
	"github.com/yndnr/restorepoint-go/internal/storage/capability"
	"github.com/yndnr/restorepoint-go/internal/storage/legacy"
	"github.com/yndnr/restorepoint-go/internal/telemetry/logger"
)

const envKey = "env"

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "restorepoint-cli",
		Usage:   "Inspect and manage document restore points",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			ListCommand(),
			ShowCommand(),
			CreateCommand(),
			ImportCommand(),
			ExportCommand(),
			RestoreCommand(),
			DeleteCommand(),
			PurgeCommand(),
			LegacyCommand(),
			StatusCommand(),
			ConfigCommand(),
		},
		Before: setup,
		After:  teardown,
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Configuration file (YAML)",
			EnvVars: []string{confloader.DefaultEnvPrefix + "CONFIG"},
		},
		&cli.StringFlag{
			Name:  "storage-dir",
			Usage: "Restore point storage directory (storage.dir)",
		},
		&cli.StringFlag{
			Name:  "backend",
			Usage: "Storage backend: auto, fs, kv (storage.backend)",
		},
		&cli.StringFlag{
			Name:    "document-dir",
			Aliases: []string{"d"},
			Usage:   "Document directory (document.dir)",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   string(output.FormatTable),
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Log at debug level",
		},
	}
}

// flagOverrides maps global flags set on the command line to config keys.
var flagOverrides = map[string]string{
	"storage-dir":  "storage.dir",
	"backend":      "storage.backend",
	"document-dir": "document.dir",
}

// env is the per-invocation state shared by the commands.
type env struct {
	cfg    *config.Config
	loader *confloader.Loader
	logger *slog.Logger
	format output.Format
	out    io.Writer
	errOut io.Writer

	handle *capability.Handle
}

func setup(c *cli.Context) error {
	format, err := output.ParseFormat(c.String("output"))
	if err != nil {
		return err
	}

	overrides := make(map[string]any)
	for flag, key := range flagOverrides {
		if c.IsSet(flag) {
			overrides[key] = c.String(flag)
		}
	}
	cfg, loader, err := config.Load(c.String("config"), overrides)
	if err != nil {
		return err
	}

	errOut := c.App.ErrWriter
	if errOut == nil {
		errOut = os.Stderr
	}
	level := "warn"
	if c.Bool("verbose") {
		level = "debug"
	}
	log, err := logger.New(logger.Config{Level: level, Format: "text", Output: errOut})
	if err != nil {
		return err
	}

	out := c.App.Writer
	if out == nil {
		out = os.Stdout
	}

	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]any)
	}
	c.App.Metadata[envKey] = &env{
		cfg:    cfg,
		loader: loader,
		logger: log,
		format: format,
		out:    out,
		errOut: errOut,
	}
	c.Context = logger.WithOperationID(c.Context)
	return nil
}

func teardown(c *cli.Context) error {
	e, ok := c.App.Metadata[envKey].(*env)
	if !ok || e.handle == nil {
		return nil
	}
	err := e.handle.Close()
	e.handle = nil
	return err
}

func getEnv(c *cli.Context) *env {
	e, _ := c.App.Metadata[envKey].(*env)
	return e
}

// restorePoints opens the storage and returns the facade for it. deserializer
// overrides the configured document directory as the restore target when
// non-nil. The storage is closed by the After hook.
func (e *env) restorePoints(ctx context.Context, deserializer service.Deserializer) (*service.RestorePoints, error) {
	if e.handle == nil {
		var secret []byte
		if e.cfg.Storage.SealSecret != "" {
			secret = []byte(e.cfg.Storage.SealSecret)
		}
		h, err := capability.Open(ctx, capability.Options{
			Kind:       e.cfg.Storage.Backend,
			Dir:        e.cfg.Storage.Dir,
			SealSecret: secret,
			Logger:     e.logger,
		})
		if err != nil {
			return nil, err
		}
		e.handle = h
	}

	doc := project.NewDir(e.cfg.Document.Dir, project.WithLogger(e.logger))
	if deserializer == nil {
		deserializer = doc
	}
	rp := service.NewRestorePoints(e.handle, service.Config{
		MaxRetained:       e.cfg.Storage.MaxRetained,
		MinCreateDuration: e.cfg.Scheduler.ServiceMinCreateDuration(),
		Serializer:        doc,
		Deserializer:      deserializer,
		Legacy:            legacy.File(e.cfg.Legacy.Path),
		Logger:            e.logger,
	})
	if !rp.IsSupported() {
		return nil, e.handle.Err()
	}
	return rp, nil
}

func (e *env) print(data any) error {
	return output.NewFormatter(e.format).Format(e.out, data)
}

// interactive reports whether progress output should be drawn.
func (e *env) interactive() bool {
	return e.format == output.FormatTable
}

func requireArg(c *cli.Context, name string) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("%w: expected exactly one %s argument", errUsage, name)
	}
	return c.Args().First(), nil
}

// Exit codes returned by ExitCode.
const (
	ExitOK          = 0
	ExitError       = 1
	ExitUsage       = 2
	ExitNotFound    = 3
	ExitUnsupported = 4
	ExitCorrupted   = 5
)

// ExitCode maps an error returned by the app to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrMigration):
		return ExitNotFound
	case errors.Is(err, domain.ErrUnsupported):
		return ExitUnsupported
	case errors.Is(err, domain.ErrCorruptedSnapshot):
		return ExitCorrupted
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, errUsage):
		return ExitUsage
	default:
		return ExitError
	}
}

var errUsage = errors.New("usage")

// PrintError prints an error message to w.
func PrintError(w io.Writer, err error) {
	fmt.Fprintf(w, "error: %v\n", err)
}
