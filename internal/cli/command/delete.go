package command

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// DeleteCommand returns the delete command.
func DeleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Aliases:   []string{"rm"},
		Usage:     "Delete a restore point",
		ArgsUsage: "ID",
		Action:    deleteAction,
	}
}

func deleteAction(c *cli.Context) error {
	id, err := requireArg(c, "ID")
	if err != nil {
		return err
	}
	e := getEnv(c)
	rp, err := e.restorePoints(c.Context, nil)
	if err != nil {
		return err
	}
	if err := rp.Delete(c.Context, id); err != nil {
		return err
	}
	return e.print("deleted " + id)
}

// PurgeCommand returns the purge command.
func PurgeCommand() *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "Delete every restore point and stored blob",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "force",
				Aliases: []string{"f"},
				Usage:   "Confirm the purge",
			},
		},
		Action: purgeAction,
	}
}

func purgeAction(c *cli.Context) error {
	if !c.Bool("force") {
		return fmt.Errorf("%w: purge deletes every restore point; pass --force to confirm", errUsage)
	}
	e := getEnv(c)
	rp, err := e.restorePoints(c.Context, nil)
	if err != nil {
		return err
	}
	if err := rp.DeleteAll(c.Context); err != nil {
		return err
	}
	return e.print("purged all restore points")
}
