package command

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/restorepoint-go/internal/cli/output"
	"github.com/yndnr/restorepoint-go/internal/core/domain"
	"github.com/yndnr/restorepoint-go/internal/core/service"
	"github.com/yndnr/restorepoint-go/internal/project"
)

// ExportCommand returns the export command.
func ExportCommand() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Write a restore point to a zip archive",
		ArgsUsage: "ID",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "out",
				Usage:    "Archive path",
				Required: true,
			},
		},
		Action: exportAction,
	}
}

func exportAction(c *cli.Context) error {
	id, err := requireArg(c, "ID")
	if err != nil {
		return err
	}
	e := getEnv(c)
	rp, err := e.restorePoints(c.Context, nil)
	if err != nil {
		return err
	}
	rec, err := rp.Get(c.Context, id)
	if err != nil {
		return err
	}
	pkg, err := rp.Load(c.Context, id)
	if err != nil {
		return err
	}

	out := c.String("out")
	n, err := e.writeArchive(out, pkg, time.Unix(rec.CreatedAt, 0))
	if err != nil {
		return err
	}
	e.logger.DebugContext(c.Context, "restore point exported", "id", id, "path", out, "bytes", n)
	return e.print(fmt.Sprintf("exported %s to %s (%s)", id, out, output.Bytes(n)))
}

// writeArchive writes pkg to path through a temporary file and returns the
// archive size.
func (e *env) writeArchive(path string, pkg *domain.Package, modTime time.Time) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	total := int64(len(pkg.Main))
	for _, data := range pkg.Assets {
		total += int64(len(data))
	}
	counter := &countingWriter{}
	writers := []io.Writer{tmp, counter}
	var bar *output.ProgressBar
	if e.interactive() {
		bar = output.NewProgressBar(e.errOut, "export", total)
		writers = append(writers, bar)
	}

	if err := project.WriteArchive(io.MultiWriter(writers...), pkg, modTime); err != nil {
		tmp.Close()
		return 0, err
	}
	if bar != nil {
		bar.Finish()
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, err
	}
	return counter.n, nil
}

type countingWriter struct{ n int64 }

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n += int64(len(p))
	return len(p), nil
}

// RestoreCommand returns the restore command.
func RestoreCommand() *cli.Command {
	return &cli.Command{
		Name:      "restore",
		Usage:     "Replace the document with a restore point",
		ArgsUsage: "ID",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "dir",
				Usage: "Restore into this directory instead of the document directory",
			},
		},
		Action: restoreAction,
	}
}

func restoreAction(c *cli.Context) error {
	id, err := requireArg(c, "ID")
	if err != nil {
		return err
	}
	e := getEnv(c)

	var target service.Deserializer
	dir := e.cfg.Document.Dir
	if c.IsSet("dir") {
		dir = c.String("dir")
		target = project.NewDir(dir, project.WithLogger(e.logger))
	}
	rp, err := e.restorePoints(c.Context, target)
	if err != nil {
		return err
	}
	if err := rp.Restore(c.Context, id); err != nil {
		return err
	}
	return e.print(fmt.Sprintf("restored %s into %s", id, dir))
}
