package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yndnr/restorepoint-go/internal/core/domain"
	"github.com/yndnr/restorepoint-go/internal/storage/legacy"
)

type fixture struct {
	t       *testing.T
	doc     string
	storage string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	t.Setenv("RESTOREPOINT_SCHEDULER_MIN_CREATE_DURATION", "0")
	f := &fixture{
		t:       t,
		doc:     filepath.Join(t.TempDir(), "My Project"),
		storage: t.TempDir(),
	}
	if err := os.MkdirAll(f.doc, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	f.write("project.json", `{"targets":[]}`)
	f.write("cat.svg", "<svg/>")
	return f
}

func (f *fixture) write(name, data string) {
	f.t.Helper()
	if err := os.WriteFile(filepath.Join(f.doc, name), []byte(data), 0644); err != nil {
		f.t.Fatalf("WriteFile() error = %v", err)
	}
}

func (f *fixture) read(name string) string {
	f.t.Helper()
	data, err := os.ReadFile(filepath.Join(f.doc, name))
	if err != nil {
		f.t.Fatalf("ReadFile() error = %v", err)
	}
	return string(data)
}

// run executes the CLI and returns stdout.
func (f *fixture) run(args ...string) (string, error) {
	f.t.Helper()
	app := App()
	var out, errOut bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &errOut
	full := append([]string{"restorepoint-cli", "--storage-dir", f.storage, "--document-dir", f.doc}, args...)
	err := app.Run(full)
	return out.String(), err
}

func (f *fixture) mustRun(args ...string) string {
	f.t.Helper()
	out, err := f.run(args...)
	if err != nil {
		f.t.Fatalf("run(%v) error = %v", args, err)
	}
	return out
}

func (f *fixture) create(title string) recordView {
	f.t.Helper()
	var rec recordView
	out := f.mustRun("-o", "json", "create", "--title", title)
	if err := json.Unmarshal([]byte(out), &rec); err != nil {
		f.t.Fatalf("Unmarshal(%q) error = %v", out, err)
	}
	return rec
}

func (f *fixture) list() []recordView {
	f.t.Helper()
	var recs []recordView
	out := f.mustRun("-o", "json", "list")
	if err := json.Unmarshal([]byte(out), &recs); err != nil {
		f.t.Fatalf("Unmarshal(%q) error = %v", out, err)
	}
	return recs
}

func TestApp(t *testing.T) {
	app := App()
	if app.Name != "restorepoint-cli" {
		t.Errorf("Name = %q, want restorepoint-cli", app.Name)
	}
	names := make(map[string]bool)
	for _, cmd := range app.Commands {
		names[cmd.Name] = true
	}
	for _, want := range []string{"list", "show", "create", "import", "export", "restore", "delete", "purge", "legacy", "status", "config"} {
		if !names[want] {
			t.Errorf("missing command %q", want)
		}
	}
}

func TestCreateAndList(t *testing.T) {
	f := newFixture(t)

	rec := f.create("first")
	if rec.Title != "first" || rec.Type != "manual" {
		t.Errorf("create = %+v", rec)
	}
	if len(rec.Assets) != 1 || rec.Assets[0] != "cat.svg" {
		t.Errorf("create assets = %v, want [cat.svg]", rec.Assets)
	}

	f.write("project.json", `{"targets":[1]}`)
	out := f.mustRun("-o", "json", "create")
	var second recordView
	if err := json.Unmarshal([]byte(out), &second); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if second.Title != "My Project" {
		t.Errorf("default title = %q, want directory name", second.Title)
	}

	recs := f.list()
	if len(recs) != 2 {
		t.Fatalf("list = %d records, want 2", len(recs))
	}
	ids := map[string]bool{recs[0].ID: true, recs[1].ID: true}
	if !ids[rec.ID] || !ids[second.ID] {
		t.Errorf("list ids = %v, want %s and %s", ids, rec.ID, second.ID)
	}

	table := f.mustRun("list")
	if !strings.Contains(table, "TITLE") || !strings.Contains(table, "first") {
		t.Errorf("table output = %q", table)
	}
}

func TestShow(t *testing.T) {
	f := newFixture(t)
	rec := f.create("snap")

	out := f.mustRun("-o", "json", "show", rec.ID)
	var d struct {
		ID        string `json:"id"`
		MainSize  int64  `json:"main_size"`
		AssetSize int64  `json:"asset_size"`
	}
	if err := json.Unmarshal([]byte(out), &d); err != nil {
		t.Fatalf("Unmarshal(%q) error = %v", out, err)
	}
	if d.ID != rec.ID || d.MainSize != int64(len(`{"targets":[]}`)) || d.AssetSize != int64(len("<svg/>")) {
		t.Errorf("show = %+v", d)
	}

	_, err := f.run("show", "404")
	if !errors.Is(err, domain.ErrNotFound) || ExitCode(err) != ExitNotFound {
		t.Errorf("show unknown = %v (exit %d), want ErrNotFound", err, ExitCode(err))
	}
}

func TestRestore(t *testing.T) {
	f := newFixture(t)
	rec := f.create("before")

	f.write("project.json", "changed")
	f.write("extra.png", "new asset")
	if err := os.Remove(filepath.Join(f.doc, "cat.svg")); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	f.mustRun("restore", rec.ID)

	if got := f.read("project.json"); got != `{"targets":[]}` {
		t.Errorf("project.json = %q after restore", got)
	}
	if got := f.read("cat.svg"); got != "<svg/>" {
		t.Errorf("cat.svg = %q after restore", got)
	}
	if _, err := os.Stat(filepath.Join(f.doc, "extra.png")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("extra.png still present after restore: %v", err)
	}
}

func TestRestore_OtherDir(t *testing.T) {
	f := newFixture(t)
	rec := f.create("snap")
	target := t.TempDir()

	f.mustRun("restore", "--dir", target, rec.ID)

	data, err := os.ReadFile(filepath.Join(target, "cat.svg"))
	if err != nil || string(data) != "<svg/>" {
		t.Errorf("cat.svg in target = %q, %v", data, err)
	}
}

func TestExportImport(t *testing.T) {
	f := newFixture(t)
	rec := f.create("exported")
	archive := filepath.Join(t.TempDir(), "snap.zip")

	f.mustRun("-o", "json", "export", "--out", archive, rec.ID)
	if _, err := os.Stat(archive); err != nil {
		t.Fatalf("archive not written: %v", err)
	}

	out := f.mustRun("-o", "json", "import", archive)
	var imported recordView
	if err := json.Unmarshal([]byte(out), &imported); err != nil {
		t.Fatalf("Unmarshal(%q) error = %v", out, err)
	}
	if imported.ID == rec.ID || imported.Title != "snap.zip" || imported.Type != "manual" {
		t.Errorf("import = %+v", imported)
	}
	if len(imported.Assets) != 1 || imported.Assets[0] != "cat.svg" {
		t.Errorf("import assets = %v", imported.Assets)
	}
	if n := len(f.list()); n != 2 {
		t.Errorf("list after import = %d, want 2", n)
	}
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	rec := f.create("doomed")

	f.mustRun("delete", rec.ID)
	if n := len(f.list()); n != 0 {
		t.Errorf("list after delete = %d, want 0", n)
	}

	_, err := f.run("delete", rec.ID)
	if ExitCode(err) != ExitNotFound {
		t.Errorf("delete again = %v (exit %d), want not found", err, ExitCode(err))
	}
	_, err = f.run("delete")
	if ExitCode(err) != ExitUsage {
		t.Errorf("delete without id = %v (exit %d), want usage", err, ExitCode(err))
	}
}

func TestPurge(t *testing.T) {
	f := newFixture(t)
	f.create("one")
	f.create("two")

	_, err := f.run("purge")
	if ExitCode(err) != ExitUsage {
		t.Errorf("purge without --force = %v (exit %d), want usage", err, ExitCode(err))
	}
	if n := len(f.list()); n != 2 {
		t.Fatalf("list after refused purge = %d, want 2", n)
	}

	f.mustRun("purge", "--force")
	if n := len(f.list()); n != 0 {
		t.Errorf("list after purge = %d, want 0", n)
	}
}

func TestRetention(t *testing.T) {
	f := newFixture(t)
	for i := 1; i <= 6; i++ {
		f.write("project.json", fmt.Sprintf(`{"n":%d}`, i))
		f.create(fmt.Sprintf("v%d", i))
	}
	recs := f.list()
	if len(recs) != domain.MaxRetained {
		t.Fatalf("list = %d records, want %d", len(recs), domain.MaxRetained)
	}
	for _, r := range recs {
		if r.Title == "v1" {
			t.Error("oldest restore point was not evicted")
		}
	}
}

func TestLegacy(t *testing.T) {
	f := newFixture(t)
	db := filepath.Join(t.TempDir(), "autosave.db")
	src, err := legacy.Open(db, legacy.WithCreate())
	if err != nil {
		t.Fatalf("legacy.Open() error = %v", err)
	}
	ctx := context.Background()
	src.Put(ctx, "project.json", []byte(`{"legacy":true}`))
	src.Put(ctx, "old.wav", []byte("RIFF"))
	src.Close()

	archive := filepath.Join(t.TempDir(), "legacy.zip")
	out := f.mustRun("-o", "json", "legacy", "--path", db, "--out", archive, "--import")

	var rec recordView
	if err := json.Unmarshal([]byte(out), &rec); err != nil {
		t.Fatalf("Unmarshal(%q) error = %v", out, err)
	}
	if rec.Title != LegacyTitle || len(rec.Assets) != 1 || rec.Assets[0] != "old.wav" {
		t.Errorf("legacy import = %+v", rec)
	}
	if _, err := os.Stat(archive); err != nil {
		t.Errorf("legacy archive not written: %v", err)
	}

	_, err = f.run("legacy", "--path", filepath.Join(t.TempDir(), "absent.db"), "--import")
	if !errors.Is(err, domain.ErrMigration) {
		t.Errorf("legacy absent = %v, want ErrMigration", err)
	}
	_, err = f.run("legacy")
	if ExitCode(err) != ExitUsage {
		t.Errorf("legacy without flags = %v, want usage", err)
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	f.create("one")

	out := f.mustRun("-o", "json", "status")
	var s statusView
	if err := json.Unmarshal([]byte(out), &s); err != nil {
		t.Fatalf("Unmarshal(%q) error = %v", out, err)
	}
	if !s.Supported || s.Backend != "fs" || s.RestorePts != 1 || s.MaxRetained != domain.MaxRetained {
		t.Errorf("status = %+v", s)
	}
}

func TestConfigShow(t *testing.T) {
	f := newFixture(t)
	t.Setenv("RESTOREPOINT_STORAGE_SEAL_SECRET", "rpsk_0123456789abcdef")

	out := f.mustRun("config", "show")
	if strings.Contains(out, "rpsk_0123456789abcdef") {
		t.Errorf("config show leaked the seal secret:\n%s", out)
	}
	if !strings.Contains(out, "max_retained: 5") {
		t.Errorf("config show output:\n%s", out)
	}
}

func TestBadOutputFormat(t *testing.T) {
	f := newFixture(t)
	if _, err := f.run("-o", "xml", "list"); err == nil {
		t.Error("run(-o xml) expected error")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{domain.ErrNotFound.WithDetails("7"), ExitNotFound},
		{domain.ErrMigration, ExitNotFound},
		{domain.ErrUnsupported, ExitUnsupported},
		{fmt.Errorf("load: %w", domain.ErrCorruptedSnapshot), ExitCorrupted},
		{domain.ErrInvalidArgument, ExitUsage},
		{errors.New("disk on fire"), ExitError},
	}
	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
