package command

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/restorepoint-go/internal/cli/output"
	"github.com/yndnr/restorepoint-go/internal/core/domain"
	"github.com/yndnr/restorepoint-go/internal/project"
)

// CreateCommand returns the create command.
func CreateCommand() *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "Store the document as a manual restore point",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "title",
				Aliases: []string{"t"},
				Usage:   "Restore point title (default: document directory name)",
			},
		},
		Action: createAction,
	}
}

func createAction(c *cli.Context) error {
	e := getEnv(c)
	rp, err := e.restorePoints(c.Context, nil)
	if err != nil {
		return err
	}
	title := c.String("title")
	if !c.IsSet("title") {
		title = project.NewDir(e.cfg.Document.Dir).Title()
	}

	var spinner *output.Spinner
	if e.interactive() {
		spinner = output.NewSpinner(e.errOut, "Creating restore point")
		spinner.Start()
	}
	rec, err := rp.CreateManual(c.Context, title)
	if spinner != nil {
		if err != nil {
			spinner.Fail("Create failed")
		} else {
			spinner.Success("Created restore point " + rec.ID)
		}
	}
	if err != nil {
		return err
	}
	return e.print(newRecordView(rec))
}

// ImportCommand returns the import command.
func ImportCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Store an exported archive as a manual restore point",
		ArgsUsage: "FILE.zip",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "title",
				Aliases: []string{"t"},
				Usage:   "Restore point title (default: archive file name)",
			},
		},
		Action: importAction,
	}
}

func importAction(c *cli.Context) error {
	path, err := requireArg(c, "FILE")
	if err != nil {
		return err
	}
	pkg, err := readArchiveFile(path)
	if err != nil {
		return err
	}
	title := c.String("title")
	if !c.IsSet("title") {
		title = project.NewDir(path).Title()
	}

	e := getEnv(c)
	rp, err := e.restorePoints(c.Context, nil)
	if err != nil {
		return err
	}
	rec, err := rp.Import(c.Context, pkg, title)
	if err != nil {
		return err
	}
	return e.print(newRecordView(rec))
}

func readArchiveFile(path string) (*domain.Package, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	pkg, err := project.ReadArchive(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return pkg, nil
}
