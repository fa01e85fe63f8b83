package sysops

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveRepoRejectsDisallowedPath(t *testing.T) {
	if _, err := SaveRepo("/etc/passwd", []byte("x")); err == nil {
		t.Fatal("expected a security error for /etc/passwd")
	}
}

func TestSaveRepoRejectsTraversalOutOfSourcesListDir(t *testing.T) {
	dir := t.TempDir()
	// Writing to the real /etc/apt/sources.list.d needs root, so the
	// allowed branch is not exercised here. This test checks that a path
	// which starts under sources.list.d but resolves outside /etc/apt/ is
	// rejected.
	path := filepath.Join(dir, "test.list")
	if err := os.WriteFile(path, []byte("existing"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	if _, err := SaveRepo("/etc/apt/sources.list.d/../../../../etc/shadow", []byte("x")); err == nil {
		t.Fatal("expected traversal outside /etc/apt/ to be rejected")
	}
}

func TestListUpgradableParsesLines(t *testing.T) {
	packages := parseUpgradableOutput("Listing...\nbash/stable 5.1-2 amd64 [upgradable from: 5.1-1]\ncurl/stable 7.74.0-1 amd64\n")
	if len(packages) != 2 {
		t.Fatalf("got %d packages, want 2", len(packages))
	}
	if packages[0].Name != "bash" || packages[0].NewVersion != "5.1-2" || packages[0].CurrentVersion != "5.1-1" {
		t.Errorf("unexpected first package: %+v", packages[0])
	}
	if packages[1].Name != "curl" || packages[1].CurrentVersion != "N/A" {
		t.Errorf("unexpected second package: %+v", packages[1])
	}
}
