package preflight

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"firmwared/internal/testsupport"
)

func TestCheckDirectoryAccess(t *testing.T) {
	dir := t.TempDir()
	if result := CheckDirectoryAccess("test", dir); !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}

	result := CheckDirectoryAccess("test", filepath.Join(dir, "nope"))
	if result.Passed || result.Detail == "" {
		t.Fatalf("expected failure with detail for missing dir, got %+v", result)
	}

	f := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckDirectoryAccess("test", f); result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckSysfs(t *testing.T) {
	sysfs := testsupport.NewSysfs(t)
	result := CheckSysfs(sysfs.Root)
	if !result.Passed {
		t.Fatalf("expected pass, got %s", result.Detail)
	}
	if !strings.Contains(result.Detail, "fallback timeout 60s") {
		t.Fatalf("detail = %q", result.Detail)
	}

	if result := CheckSysfs(t.TempDir()); result.Passed {
		t.Fatal("expected failure without class/firmware")
	}
}

func TestRunAllMarksSearchDirectoriesOptional(t *testing.T) {
	sysfs := testsupport.NewSysfs(t)
	cfg := testsupport.NewConfig(t, sysfs)

	results := RunAll(cfg, false)
	if len(results) != 3 {
		t.Fatalf("results = %+v", results)
	}
	dir := results[1]
	if dir.Passed || !dir.Optional {
		t.Fatalf("missing firmware dir should be an optional failure: %+v", dir)
	}
	if Failed(results) {
		t.Fatalf("optional failures must not fail the run: %+v", results)
	}

	cfg.Sysfs.Root = t.TempDir()
	if !Failed(RunAll(cfg, false)) {
		t.Fatal("missing firmware class must fail the run")
	}
}

func TestCheckLockDirectory(t *testing.T) {
	dir := t.TempDir()
	if result := CheckLockDirectory(filepath.Join(dir, "firmwared.lock")); !result.Passed {
		t.Fatalf("expected pass, got %s", result.Detail)
	}
	if result := CheckLockDirectory(filepath.Join(dir, "run", "firmwared", "firmwared.lock")); !result.Passed {
		t.Fatalf("missing parents are created by the daemon, got %s", result.Detail)
	}

	file := filepath.Join(dir, "plain")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckLockDirectory(filepath.Join(file, "firmwared.lock")); result.Passed {
		t.Fatal("expected failure when the parent is a file")
	}
}
