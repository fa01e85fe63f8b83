// Package sysops implements package/system operations (spec §4.8, C8):
// APT repository read/write with the /etc/apt path guard, upgradable
// package enumeration, streamed command output, self-update via a
// detached installer, and shutdown/reboot. Grounded on
// original_source's command_handler.py apt:* branch and install_package
// branch.
package sysops

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gr4shin/astra-monitor/internal/wire"
)

const (
	aptMainList = "/etc/apt/sources.list"
	aptListDir  = "/etc/apt/sources.list.d"
)

// GetRepos reads /etc/apt/sources.list and every *.list under
// /etc/apt/sources.list.d, returning path -> content (spec §4.8).
func GetRepos() (map[string]string, error) {
	repos := make(map[string]string)

	if content, err := os.ReadFile(aptMainList); err == nil {
		repos[aptMainList] = string(content)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", aptMainList, err)
	}

	entries, err := os.ReadDir(aptListDir)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read dir %s: %w", aptListDir, err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".list") {
			continue
		}
		path := filepath.Join(aptListDir, e.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		repos[path] = string(content)
	}
	return repos, nil
}

// SaveRepo writes content to path after verifying it resolves under
// /etc/apt/sources.list.d/ or is exactly /etc/apt/sources.list (spec
// §4.8, §8 S6: "requires the resolved absolute path to lie under
// /etc/apt/sources.list.d/ OR be exactly /etc/apt/sources.list; any other
// path returns a security error").
func SaveRepo(path string, content []byte) (string, error) {
	resolved, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	allowed := resolved == aptMainList || strings.HasPrefix(resolved, aptListDir+string(filepath.Separator))
	if !allowed {
		return "", fmt.Errorf("security error: writes are only permitted under /etc/apt/")
	}
	if err := os.WriteFile(resolved, content, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", resolved, err)
	}
	return resolved, nil
}

var upgradableFromRegex = regexp.MustCompile(`\[upgradable from:\s*(.*?)\]`)

// ListUpgradable runs `apt list --upgradable` and parses its output (spec
// §4.8's apt:list_upgradable).
func ListUpgradable(ctx context.Context) ([]wire.UpgradablePackage, error) {
	cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	out, err := exec.CommandContext(cctx, "apt", "list", "--upgradable").Output()
	if err != nil {
		return nil, fmt.Errorf("apt list --upgradable: %w", err)
	}
	return parseUpgradableOutput(string(out)), nil
}

// parseUpgradableOutput parses `apt list --upgradable`'s stdout, skipping
// its "Listing..." header line.
func parseUpgradableOutput(output string) []wire.UpgradablePackage {
	var packages []wire.UpgradablePackage
	lines := strings.Split(strings.TrimSpace(output), "\n")
	for i, line := range lines {
		if i == 0 {
			continue // "Listing..." header
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		name := strings.SplitN(fields[0], "/", 2)[0]
		newVersion := fields[1]
		current := "N/A"
		if m := upgradableFromRegex.FindStringSubmatch(line); len(m) == 2 {
			current = m[1]
		}
		packages = append(packages, wire.UpgradablePackage{
			Name:           name,
			NewVersion:     newVersion,
			CurrentVersion: current,
		})
	}
	return packages
}
