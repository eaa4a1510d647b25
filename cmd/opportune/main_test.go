package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"
	serveradapter "github.com/hylla/opportune/internal/adapters/server"
	"github.com/hylla/opportune/internal/config"
	"github.com/hylla/opportune/internal/domain"
	"github.com/hylla/opportune/internal/tui"
)

// TestMain pins dev mode off so CLI tests never write dev log files.
func TestMain(m *testing.M) {
	_ = os.Setenv("OPPORTUNE_DEV_MODE", "false")
	os.Exit(m.Run())
}

type fakeProgram struct {
	model  tea.Model
	runErr error
}

func (f fakeProgram) Run() (tea.Model, error) {
	return f.model, f.runErr
}

// isolateHome points user config and data dirs at a temp dir.
func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(home, ".local", "share"))
	return home
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCommand(&stdout, &stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), err
}

func mustRunCLI(t *testing.T, args ...string) string {
	t.Helper()
	out, err := runCLI(t, args...)
	if err != nil {
		t.Fatalf("opportune %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func createOpportunity(t *testing.T, dbPath, title string) domain.Opportunity {
	t.Helper()
	out := mustRunCLI(t, "--db", dbPath, "--actor", "sm-1", "--json", "create",
		"--title", title,
		"--customer-id", "c-1",
		"--customer-name", "Acme",
		"--description", "Move workloads",
		"--priority", "high",
		"--arr", "250000",
		"--region-id", "eu-west",
		"--region-name", "EU West",
		"--remote",
	)
	var opp domain.Opportunity
	if err := json.Unmarshal([]byte(out), &opp); err != nil {
		t.Fatalf("decode create output %q: %v", out, err)
	}
	return opp
}

func TestLifecycleCommands(t *testing.T) {
	isolateHome(t)
	db := filepath.Join(t.TempDir(), "opportune.db")

	opp := createOpportunity(t, db, "Cloud Migration")
	if opp.ID == "" || opp.Status != domain.StatusDraft || opp.SalesManagerID != "sm-1" {
		t.Fatalf("unexpected created opportunity %#v", opp)
	}

	if _, err := runCLI(t, "--db", db, "--actor", "sm-1", "submit", opp.ID); err == nil {
		t.Fatal("expected submit of an incomplete draft to fail")
	}
	if _, err := runCLI(t, "--db", db, "submit", opp.ID); err == nil {
		t.Fatal("expected submit without an actor to fail")
	}

	out := mustRunCLI(t, "--db", db, "--actor", "sm-1", "cancel", opp.ID, "--reason", "budget freeze")
	if !strings.Contains(out, opp.ID+": Cancelled") {
		t.Fatalf("cancel output = %q", out)
	}
	out = mustRunCLI(t, "--db", db, "--actor", "sm-1", "reactivate", opp.ID)
	if !strings.Contains(out, opp.ID+": Draft") {
		t.Fatalf("reactivate output = %q", out)
	}

	out = mustRunCLI(t, "--db", db, "history", opp.ID)
	for _, want := range []string{"Status history", "Cancelled", "budget freeze", "sm-1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("history output missing %q:\n%s", want, out)
		}
	}

	out = mustRunCLI(t, "--db", db, "list", "--status", "draft")
	for _, want := range []string{"Cloud Migration", "Acme", "USD 250,000.00"} {
		if !strings.Contains(out, want) {
			t.Fatalf("list output missing %q:\n%s", want, out)
		}
	}
	out = mustRunCLI(t, "--db", db, "list", "--status", "cancelled")
	if !strings.Contains(out, "no opportunities") {
		t.Fatalf("cancelled list output = %q", out)
	}

	out = mustRunCLI(t, "--db", db, "show", opp.ID)
	if !strings.Contains(out, "Cloud Migration") {
		t.Fatalf("show output = %q", out)
	}

	out = mustRunCLI(t, "--db", db, "--actor", "sm-1", "dashboard")
	if !strings.Contains(out, "Pipeline for sm-1") {
		t.Fatalf("dashboard output = %q", out)
	}
}

func TestListJSONAndFilter(t *testing.T) {
	isolateHome(t)
	db := filepath.Join(t.TempDir(), "opportune.db")
	createOpportunity(t, db, "Small Deal")

	out := mustRunCLI(t, "--db", db, "--json", "list", "--filter", "annual_recurring_revenue > 100000.0")
	var items []domain.Opportunity
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		t.Fatalf("decode list output %q: %v", out, err)
	}
	if len(items) != 1 || items[0].Title != "Small Deal" {
		t.Fatalf("unexpected list items %#v", items)
	}

	if _, err := runCLI(t, "--db", db, "list", "--filter", "title ="); err == nil {
		t.Fatal("expected malformed filter to fail")
	}
}

func TestShowMissingOpportunity(t *testing.T) {
	isolateHome(t)
	db := filepath.Join(t.TempDir(), "opportune.db")
	if _, err := runCLI(t, "--db", db, "show", "missing"); err == nil {
		t.Fatal("expected not found error")
	}
}

func TestExportImportSnapshot(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "src.db")
	dst := filepath.Join(dir, "dst.db")
	snapshotPath := filepath.Join(dir, "out", "snapshot.json")

	opp := createOpportunity(t, src, "Data Platform")
	mustRunCLI(t, "--db", src, "--actor", "sm-1", "cancel", opp.ID, "--reason", "paused")
	mustRunCLI(t, "--db", src, "export", "--out", snapshotPath)

	out := mustRunCLI(t, "--db", dst, "import", "--in", snapshotPath)
	if !strings.Contains(out, "imported 1 opportunities") {
		t.Fatalf("import output = %q", out)
	}
	out = mustRunCLI(t, "--db", dst, "--json", "show", opp.ID)
	var got domain.Opportunity
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode show output: %v", err)
	}
	if got.Status != domain.StatusCancelled || got.PreviousStatus != domain.StatusDraft || len(got.StatusHistory) != 2 {
		t.Fatalf("imported opportunity lost lifecycle state: %#v", got)
	}

	if _, err := runCLI(t, "--db", dst, "import"); err == nil {
		t.Fatal("expected --in to be required")
	}
}

func TestServeCommandUsesConfig(t *testing.T) {
	isolateHome(t)
	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := "[database]\nbackend = \"memory\"\n\n[server]\nhttp_bind = \"127.0.0.1:9999\"\nshutdown_timeout = \"3s\"\nenable_mcp = false\n"
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	orig := serveCommandRunner
	t.Cleanup(func() { serveCommandRunner = orig })
	var (
		gotCfg  serveradapter.Config
		gotDeps serveradapter.Dependencies
	)
	serveCommandRunner = func(_ context.Context, cfg serveradapter.Config, deps serveradapter.Dependencies) error {
		gotCfg, gotDeps = cfg, deps
		return nil
	}

	mustRunCLI(t, "--config", configPath, "serve", "--api-endpoint", "/api/v2")
	if gotCfg.HTTPBind != "127.0.0.1:9999" || gotCfg.APIEndpoint != "/api/v2" || !gotCfg.DisableMCP {
		t.Fatalf("unexpected serve config %#v", gotCfg)
	}
	if gotCfg.ShutdownTimeout.String() != "3s" || gotCfg.ServerName != "opportune" {
		t.Fatalf("unexpected serve config %#v", gotCfg)
	}
	if gotDeps.Service == nil {
		t.Fatal("expected service dependency")
	}

	mustRunCLI(t, "--config", configPath, "serve", "--http", "127.0.0.1:7000")
	if gotCfg.HTTPBind != "127.0.0.1:7000" {
		t.Fatalf("--http override ignored: %#v", gotCfg)
	}
}

func TestServeCommandPropagatesRunnerError(t *testing.T) {
	isolateHome(t)
	orig := serveCommandRunner
	t.Cleanup(func() { serveCommandRunner = orig })
	serveCommandRunner = func(context.Context, serveradapter.Config, serveradapter.Dependencies) error {
		return errors.New("bind failed")
	}
	db := filepath.Join(t.TempDir(), "opportune.db")
	if _, err := runCLI(t, "--db", db, "serve"); err == nil || !strings.Contains(err.Error(), "bind failed") {
		t.Fatalf("expected runner error, got %v", err)
	}
}

func TestTUICommandRunsProgram(t *testing.T) {
	isolateHome(t)
	orig := programFactory
	t.Cleanup(func() { programFactory = orig })
	var got tea.Model
	programFactory = func(m tea.Model) program {
		got = m
		return fakeProgram{model: m}
	}

	db := filepath.Join(t.TempDir(), "opportune.db")
	mustRunCLI(t, "--db", db, "--actor", "sm-1", "tui", "--sales-manager", "sm-1")
	if _, ok := got.(tui.Model); !ok {
		t.Fatalf("program model = %T, want tui.Model", got)
	}

	programFactory = func(m tea.Model) program {
		return fakeProgram{runErr: errors.New("no tty")}
	}
	if _, err := runCLI(t, "--db", db, "tui"); err == nil || !strings.Contains(err.Error(), "no tty") {
		t.Fatalf("expected program error, got %v", err)
	}
}

func TestPathsCommand(t *testing.T) {
	home := isolateHome(t)
	out := mustRunCLI(t, "--app", "pipeline", "paths")
	for _, want := range []string{"app: pipeline", "dev_mode: false", "db: " + home} {
		if !strings.Contains(out, want) {
			t.Fatalf("paths output missing %q:\n%s", want, out)
		}
	}

	out = mustRunCLI(t, "--app", "pipeline", "--dev", "paths")
	if !strings.Contains(out, "dev_mode: true") || !strings.Contains(out, "pipeline-dev") {
		t.Fatalf("dev paths output = %q", out)
	}
}

func TestInvalidConfigFailsFast(t *testing.T) {
	isolateHome(t)
	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte("[logging]\nlevel = \"loud\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := runCLI(t, "--config", configPath, "list"); err == nil {
		t.Fatal("expected invalid config error")
	}
}

func TestCatalogSkills(t *testing.T) {
	got := catalogSkills([]config.SkillConfig{
		{ID: "go", Name: "Go", Type: "technical"},
		{ID: "cobol", Name: "COBOL", Type: "technical", Inactive: true},
	})
	if len(got) != 2 || got[0].Type != domain.SkillTypeTechnical || !got[0].Active || got[1].Active {
		t.Fatalf("catalogSkills() = %#v", got)
	}
}

func TestDescribeViolations(t *testing.T) {
	single := domain.NewValidationError([]string{"title is required"})
	if got := describeViolations(single); got != single {
		t.Fatalf("single violation rewrapped: %v", got)
	}
	multi := domain.NewValidationError([]string{"title is required", "customer is required"})
	got := describeViolations(multi)
	if !errors.Is(got, domain.ErrValidation) || !strings.Contains(got.Error(), "\n  - customer is required") {
		t.Fatalf("describeViolations() = %v", got)
	}
}

func TestSanitizeLogFileStem(t *testing.T) {
	cases := map[string]string{
		"":             "opportune",
		"  ":           "opportune",
		"a/b":          "a-b",
		" my app ":     "my-app",
		"-pipeline:x-": "pipeline-x",
	}
	for in, want := range cases {
		if got := sanitizeLogFileStem(in); got != want {
			t.Fatalf("sanitizeLogFileStem(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRuntimeLoggerSinks(t *testing.T) {
	dir := t.TempDir()
	now := func() time.Time { return time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC) }
	var console bytes.Buffer
	logger, err := newRuntimeLogger(&console, "opportune", true, config.LoggingConfig{
		Level:   "info",
		DevFile: config.DevFileConfig{Enabled: true, Dir: dir},
	}, "", now)
	if err != nil {
		t.Fatalf("newRuntimeLogger() error = %v", err)
	}
	t.Cleanup(func() { _ = logger.Close() })

	if want := filepath.Join(dir, "opportune-20250304.log"); logger.DevLogPath() != want {
		t.Fatalf("DevLogPath() = %q, want %q", logger.DevLogPath(), want)
	}
	logger.Info("visible", "k", "v")
	logger.Debug("filtered")
	logger.SetConsoleEnabled(false)
	logger.Warn("file only")

	if out := console.String(); !strings.Contains(out, "visible") || strings.Contains(out, "file only") || strings.Contains(out, "filtered") {
		t.Fatalf("console output = %q", out)
	}
	content, err := os.ReadFile(logger.DevLogPath())
	if err != nil {
		t.Fatalf("read dev log: %v", err)
	}
	if !strings.Contains(string(content), "visible") || !strings.Contains(string(content), "file only") {
		t.Fatalf("dev log content = %q", content)
	}

	if _, err := newRuntimeLogger(&console, "opportune", false, config.LoggingConfig{Level: "loud"}, "", now); err == nil {
		t.Fatal("expected invalid level error")
	}
}
