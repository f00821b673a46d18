package command

import (
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/restorepoint-go/internal/cli/output"
	"github.com/yndnr/restorepoint-go/internal/config"
)

// statusView summarizes the storage.
type statusView struct {
	Supported   bool   `json:"supported" yaml:"supported"`
	Backend     string `json:"backend" yaml:"backend"`
	Dir         string `json:"dir" yaml:"dir"`
	Document    string `json:"document" yaml:"document"`
	RestorePts  int    `json:"restore_points" yaml:"restore_points"`
	MaxRetained int    `json:"max_retained" yaml:"max_retained"`
	Error       string `json:"error,omitempty" yaml:"error,omitempty"`
}

func (s statusView) Table() *output.Table {
	t := output.NewTable("FIELD", "VALUE")
	t.AddRow("supported", strconv.FormatBool(s.Supported))
	t.AddRow("backend", s.Backend)
	t.AddRow("storage dir", s.Dir)
	t.AddRow("document dir", s.Document)
	t.AddRow("restore points", strconv.Itoa(s.RestorePts)+" of "+strconv.Itoa(s.MaxRetained))
	if s.Error != "" {
		t.AddRow("error", s.Error)
	}
	return t
}

// StatusCommand returns the status command.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show whether restore points work here and how many are kept",
		Action: statusAction,
	}
}

func statusAction(c *cli.Context) error {
	e := getEnv(c)
	s := statusView{
		Dir:         e.cfg.Storage.Dir,
		Document:    e.cfg.Document.Dir,
		MaxRetained: e.cfg.Storage.MaxRetained,
	}
	rp, err := e.restorePoints(c.Context, nil)
	if err != nil {
		s.Error = err.Error()
		return e.print(s)
	}
	s.Supported = true
	s.Backend = e.handle.Kind()
	records, err := rp.List(c.Context)
	if err != nil {
		return err
	}
	s.RestorePts = len(records)
	return e.print(s)
}

// ConfigCommand returns the config command group.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show the effective configuration with secrets masked",
				Action: configShowAction,
			},
		},
	}
}

func configShowAction(c *cli.Context) error {
	e := getEnv(c)
	format := e.format
	if format == output.FormatTable {
		format = output.FormatYAML
	}
	return output.NewFormatter(format).Format(e.out, config.Sanitize(e.cfg))
}
