package command

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
)

// LegacyTitle is the title of restore points imported from the legacy store.
const LegacyTitle = "Legacy autosave"

// LegacyCommand returns the legacy command.
func LegacyCommand() *cli.Command {
	return &cli.Command{
		Name:  "legacy",
		Usage: "Recover the document kept by the previous autosave store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "path",
				Usage: "Legacy database (legacy.path)",
			},
			&cli.StringFlag{
				Name:  "out",
				Usage: "Write the recovered document to this zip archive",
			},
			&cli.BoolFlag{
				Name:  "import",
				Usage: "Store the recovered document as a manual restore point",
			},
		},
		Action: legacyAction,
	}
}

func legacyAction(c *cli.Context) error {
	out, doImport := c.String("out"), c.Bool("import")
	if out == "" && !doImport {
		return fmt.Errorf("%w: legacy needs --out, --import or both", errUsage)
	}
	e := getEnv(c)
	if c.IsSet("path") {
		e.cfg.Legacy.Path = c.String("path")
	}
	rp, err := e.restorePoints(c.Context, nil)
	if err != nil {
		return err
	}
	pkg, err := rp.LoadLegacy(c.Context)
	if err != nil {
		return err
	}

	if out != "" {
		if _, err := e.writeArchive(out, pkg, time.Now()); err != nil {
			return err
		}
	}
	if !doImport {
		return e.print("wrote legacy document to " + out)
	}
	rec, err := rp.Import(c.Context, pkg, LegacyTitle)
	if err != nil {
		return err
	}
	return e.print(newRecordView(rec))
}
