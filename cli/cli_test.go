package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/AndurilCode/mcp-apps-kit-sub001/config"
	"github.com/AndurilCode/mcp-apps-kit-sub001/invoke"
)

// newTestRoot creates a fresh cobra root command wired to all subcommands.
// Each test gets an isolated command tree to avoid shared state.
func newTestRoot() *cobra.Command {
	root := &cobra.Command{
		Use:          "appskit",
		SilenceUsage: true,
	}
	root.AddCommand(NewServeCmd())
	root.AddCommand(NewToolsCmd())
	root.AddCommand(NewValidateCmd())
	return root
}

// executeCommand runs a cobra command with the given args and captures stdout/stderr.
func executeCommand(root *cobra.Command, args ...string) (stdout, stderr string, err error) {
	var outBuf, errBuf bytes.Buffer
	root.SetOut(&outBuf)
	root.SetErr(&errBuf)
	root.SetArgs(args)
	err = root.Execute()
	return outBuf.String(), errBuf.String(), err
}

// writeTestFile creates a temporary file with the given content and returns its path.
func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestToolsList(t *testing.T) {
	stdout, _, err := executeCommand(newTestRoot(), "tools", "list")
	if err != nil {
		t.Fatalf("tools list: %v", err)
	}
	for _, want := range []string{"echo", "system.time", "system.uuid"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("output missing %q:\n%s", want, stdout)
		}
	}
}

func TestValidate_OK(t *testing.T) {
	path := writeTestFile(t, "appskit.yaml", `
name: demo
schedules:
  - cron: "*/5 * * * *"
    tool: system.time
`)
	stdout, _, err := executeCommand(newTestRoot(), "validate", path)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(stdout, "OK") {
		t.Errorf("output = %q", stdout)
	}
}

func TestValidate_BadConfig(t *testing.T) {
	path := writeTestFile(t, "appskit.yaml", "name: \"\"\n")
	_, _, err := executeCommand(newTestRoot(), "validate", path)
	exitErr, ok := err.(*ExitError)
	if !ok || exitErr.Code != exitValidation {
		t.Fatalf("err = %v, want ExitError with code %d", err, exitValidation)
	}
}

func TestValidate_BadCron(t *testing.T) {
	path := writeTestFile(t, "appskit.yaml", `
name: demo
schedules:
  - cron: "CRON_TZ=UTC * * * * *"
    tool: system.time
`)
	_, _, err := executeCommand(newTestRoot(), "validate", path)
	exitErr, ok := err.(*ExitError)
	if !ok || exitErr.Code != exitValidation {
		t.Fatalf("err = %v, want ExitError with code %d", err, exitValidation)
	}
}

func TestValidate_MissingFile(t *testing.T) {
	_, _, err := executeCommand(newTestRoot(), "validate", filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("validate accepted a missing file")
	}
}

func TestBuildApp(t *testing.T) {
	cfg := config.Default()
	cfg.Audit = &config.AuditConfig{Path: filepath.Join(t.TempDir(), "audit.db")}
	cfg.Auth = &config.AuthConfig{Keys: map[string]string{"k1": "secret"}}

	app, cleanup, err := buildApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	defer cleanup()

	if app.Name() != "appskit" {
		t.Errorf("Name = %q", app.Name())
	}
	if app.Verifier() == nil {
		t.Error("verifier not configured")
	}
	if len(app.Tools()) == 0 {
		t.Error("no built-in tools registered")
	}

	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := app.CallTool(ctx, "system.uuid", nil, invoke.Metadata{}); err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if err := app.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestStartScheduler(t *testing.T) {
	cfg := config.Default()
	app, cleanup, err := buildApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	defer cleanup()

	scheduler, err := startScheduler(app, cfg)
	if err != nil {
		t.Fatalf("startScheduler: %v", err)
	}
	if scheduler != nil {
		t.Error("scheduler created without schedules")
	}

	cfg.Schedules = []config.Schedule{{Cron: "*/5 * * * *", Tool: "system.time"}}
	scheduler, err = startScheduler(app, cfg)
	if err != nil {
		t.Fatalf("startScheduler: %v", err)
	}
	if scheduler == nil {
		t.Fatal("no scheduler for configured schedules")
	}
	if err := scheduler.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
