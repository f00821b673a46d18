package command

import (
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/restorepoint-go/internal/cli/output"
	"github.com/yndnr/restorepoint-go/internal/core/domain"
	"github.com/yndnr/restorepoint-go/internal/project"
)

// recordView is the printed form of a restore point.
type recordView struct {
	ID      string    `json:"id" yaml:"id"`
	Title   string    `json:"title" yaml:"title"`
	Type    string    `json:"type" yaml:"type"`
	Created time.Time `json:"created" yaml:"created"`
	Assets  []string  `json:"assets" yaml:"assets"`
}

func newRecordView(r domain.Record) recordView {
	assets := make([]string, len(r.Assets))
	for i, key := range r.Assets {
		assets[i] = project.AssetName(key)
	}
	return recordView{
		ID:      r.ID,
		Title:   r.Title,
		Type:    r.Type.String(),
		Created: time.Unix(r.CreatedAt, 0),
		Assets:  assets,
	}
}

type recordList []recordView

func (l recordList) Table() *output.Table {
	now := time.Now()
	t := output.NewTable("ID", "TYPE", "TITLE", "CREATED", "ASSETS")
	for _, r := range l {
		t.AddRow(r.ID, r.Type, r.Title, output.RelativeTime(r.Created, now), strconv.Itoa(len(r.Assets)))
	}
	return t
}

// detailView adds the stored sizes of one restore point.
type detailView struct {
	recordView `yaml:",inline"`
	MainSize   int64 `json:"main_size" yaml:"main_size"`
	AssetSize  int64 `json:"asset_size" yaml:"asset_size"`
}

func (d detailView) Table() *output.Table {
	t := output.NewTable("FIELD", "VALUE")
	t.AddRow("id", d.ID)
	t.AddRow("title", d.Title)
	t.AddRow("type", d.Type)
	t.AddRow("created", d.Created.Format(time.RFC3339)+" ("+output.RelativeTime(d.Created, time.Now())+")")
	t.AddRow("main document", output.Bytes(d.MainSize))
	t.AddRow("assets", output.Count(len(d.Assets))+" ("+output.Bytes(d.AssetSize)+")")
	for _, a := range d.Assets {
		t.AddRow("", a)
	}
	return t
}

// ListCommand returns the list command.
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List restore points, newest first",
		Action:  listAction,
	}
}

func listAction(c *cli.Context) error {
	e := getEnv(c)
	rp, err := e.restorePoints(c.Context, nil)
	if err != nil {
		return err
	}
	records, err := rp.List(c.Context)
	if err != nil {
		return err
	}
	views := make(recordList, len(records))
	for i, r := range records {
		views[i] = newRecordView(r)
	}
	return e.print(views)
}

// ShowCommand returns the show command.
func ShowCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show one restore point and check that it loads",
		ArgsUsage: "ID",
		Action:    showAction,
	}
}

func showAction(c *cli.Context) error {
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

	d := detailView{recordView: newRecordView(rec), MainSize: int64(len(pkg.Main))}
	for _, data := range pkg.Assets {
		d.AssetSize += int64(len(data))
	}
	return e.print(d)
}
