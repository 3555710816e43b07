package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"firmwared/internal/testsupport"
)

type cliEnv struct {
	sysfs       *testsupport.Sysfs
	firmwareDir string
	configPath  string
}

func setupCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	t.Setenv("FIRMWARED_DIRS", "")

	base := t.TempDir()
	sysfs := testsupport.NewSysfs(t)
	fwDir := filepath.Join(base, "fw")
	if err := os.MkdirAll(fwDir, 0o755); err != nil {
		t.Fatal(err)
	}
	configPath := filepath.Join(base, "config.toml")
	content := fmt.Sprintf(`[firmware]
dirs = %q
default_dirs = []
release = "1.0-test"

[sysfs]
root = %q

[logging]
format = "json"

[daemon]
lock_file = %q
`, fwDir, sysfs.Root, filepath.Join(base, "firmwared.lock"))
	testsupport.WriteBytes(t, configPath, []byte(content))

	return &cliEnv{sysfs: sysfs, firmwareDir: fwDir, configPath: configPath}
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q:\n%s", needle, haystack)
	}
}

func TestConfigInitWritesSampleOnce(t *testing.T) {
	target := filepath.Join(t.TempDir(), "etc", "config.toml")

	out, err := runCLI(t, "config", "init", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration to "+target)
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, err := runCLI(t, "config", "init", target); err == nil {
		t.Fatal("expected second init to refuse overwriting")
	}
}

func TestConfigShowAppliesFlags(t *testing.T) {
	env := setupCLIEnv(t)

	out, err := runCLI(t, "config", "show", "-c", env.configPath, "-t", "-d", "/opt/extra", "--log-level", "DEBUG")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "# source: "+env.configPath)
	requireContains(t, out, "tentative = true")
	requireContains(t, out, "/opt/extra")
	requireContains(t, out, "debug")
	if strings.Contains(out, env.firmwareDir) {
		t.Fatalf("--dirs should replace the file's dirs:\n%s", out)
	}
}

func TestInvalidFlagValueFails(t *testing.T) {
	env := setupCLIEnv(t)
	if _, err := runCLI(t, "config", "show", "-c", env.configPath, "--log-format", "xml"); err == nil {
		t.Fatal("expected invalid --log-format to fail")
	}
}

func TestResolveCommand(t *testing.T) {
	env := setupCLIEnv(t)
	testsupport.WriteFile(t, filepath.Join(env.firmwareDir, "x.bin"), 300)
	testsupport.WriteFile(t, filepath.Join(env.firmwareDir, "1.0-test", "r.bin"), 10)

	out, err := runCLI(t, "resolve", "-c", env.configPath, "x.bin", "r.bin")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	requireContains(t, out, "Kernel release: 1.0-test")
	requireContains(t, out, filepath.Join(env.firmwareDir, "x.bin"))
	requireContains(t, out, filepath.Join(env.firmwareDir, "1.0-test", "r.bin"))
	requireContains(t, out, "300")

	out, err = runCLI(t, "resolve", "-c", env.configPath, "x.bin", "absent.bin")
	if err == nil || !strings.Contains(err.Error(), "absent.bin") {
		t.Fatalf("expected not-found error naming absent.bin, got %v", err)
	}
	requireContains(t, out, missingSource)
}

func TestRequestsCommand(t *testing.T) {
	env := setupCLIEnv(t)

	out, err := runCLI(t, "requests", "-c", env.configPath)
	if err != nil {
		t.Fatalf("requests: %v", err)
	}
	requireContains(t, out, "No outstanding firmware requests")

	testsupport.WriteFile(t, filepath.Join(env.firmwareDir, "a.bin"), 64)
	present := testsupport.DevPath("a.bin")
	absent := testsupport.DevPath("b.bin")
	env.sysfs.AddRequest(present, "a.bin")
	env.sysfs.AddRequest(absent, "b.bin")

	out, err = runCLI(t, "requests", "-c", env.configPath, "--tentative")
	if err != nil {
		t.Fatalf("requests: %v", err)
	}
	requireContains(t, out, "Tentative mode: yes")
	requireContains(t, out, present)
	requireContains(t, out, absent)
	requireContains(t, out, filepath.Join(env.firmwareDir, "a.bin"))
	requireContains(t, out, missingSource)

	if got := env.sysfs.Loading(present); got != "" {
		t.Fatalf("requests must not touch sysfs, loading = %q", got)
	}
}

func TestRootRejectsArguments(t *testing.T) {
	env := setupCLIEnv(t)
	if _, err := runCLI(t, "-c", env.configPath, "stray"); err == nil {
		t.Fatal("expected error for unexpected argument")
	}
}

func TestCheckCommand(t *testing.T) {
	env := setupCLIEnv(t)

	out, err := runCLI(t, "check", "-c", env.configPath, "--skip-bus")
	if err != nil {
		t.Fatalf("check: %v\n%s", err, out)
	}
	requireContains(t, out, "[OK] "+filepath.Join(env.sysfs.Root, "class", "firmware"))
	requireContains(t, out, "[OK] "+env.firmwareDir)

	out, err = runCLI(t, "check", "-c", env.configPath, "--skip-bus", "-d", "/nonexistent/firmware")
	if err != nil {
		t.Fatalf("missing firmware dir should only warn: %v", err)
	}
	requireContains(t, out, "[WARN] /nonexistent/firmware")
}

func TestCheckCommandFailsWithoutFirmwareClass(t *testing.T) {
	env := setupCLIEnv(t)
	if err := os.RemoveAll(filepath.Join(env.sysfs.Root, "class")); err != nil {
		t.Fatal(err)
	}
	out, err := runCLI(t, "check", "-c", env.configPath, "--skip-bus")
	if err == nil {
		t.Fatalf("expected failure:\n%s", out)
	}
	requireContains(t, out, "[ERROR]")
}
