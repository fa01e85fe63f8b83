package dispatch

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"github.com/gr4shin/astra-monitor/internal/compressenc"
	"github.com/gr4shin/astra-monitor/internal/sysops"
	"github.com/gr4shin/astra-monitor/internal/wire"
)

// handleAptGetRepos implements apt:get_repos (spec §4.3.1, §4.8).
func (d *Dispatcher) handleAptGetRepos(cid string) (any, error) {
	repos, err := sysops.GetRepos()
	if err != nil {
		return nil, fmt.Errorf("read apt repos: %w", err)
	}
	payload, compressed, err := compressenc.MaybeCompress(repos)
	if err != nil {
		return nil, fmt.Errorf("compress apt_repo_data: %w", err)
	}
	return wire.AptRepoDataResult{AptRepoData: payload, Compressed: compressed, CommandID: cid}, nil
}

// handleAptSaveRepo implements apt:save_repo, args shaped "path:b64"
// (spec §4.3.1, §4.8's path guard).
func (d *Dispatcher) handleAptSaveRepo(args string, cid string) wire.AptCommandResult {
	idx := strings.IndexByte(args, ':')
	if idx < 0 {
		return wire.AptCommandResult{AptCommandResult: "❌ malformed apt:save_repo args, want path:b64", ExitCode: 1, CommandID: cid}
	}
	path, encoded := args[:idx], args[idx+1:]
	content, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return wire.AptCommandResult{AptCommandResult: fmt.Sprintf("❌ decode repo content: %v", err), ExitCode: 1, CommandID: cid}
	}
	saved, err := sysops.SaveRepo(path, content)
	if err != nil {
		return wire.AptCommandResult{AptCommandResult: fmt.Sprintf("❌ %v", err), ExitCode: 1, CommandID: cid}
	}
	return wire.AptCommandResult{AptCommandResult: "✅ saved " + saved, CommandID: cid}
}

// handleAptUpdate streams `apt-get update` (spec §4.3.1, §4.8's
// "Streaming helpers").
func (d *Dispatcher) handleAptUpdate(ctx context.Context) error {
	return sysops.StreamCommand(ctx, "sudo apt-get update", "apt_command_output", "apt_command_result", d.Send)
}

// handleAptListUpgradable implements apt:list_upgradable (spec §4.3.1,
// §4.8).
func (d *Dispatcher) handleAptListUpgradable(ctx context.Context, cid string) (any, error) {
	packages, err := sysops.ListUpgradable(ctx)
	if err != nil {
		return nil, fmt.Errorf("list upgradable packages: %w", err)
	}
	return wire.AptUpgradableListResult{AptUpgradableList: packages, CommandID: cid}, nil
}

// packageNameRegex restricts apt:upgrade_packages arguments to
// shell-metacharacter-free package name tokens before they reach a shell
// command line.
var packageNameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9+.:_-]*$`)

// handleAptUpgradePackages streams an upgrade of a space-separated
// package list (spec §4.3.1). Names failing packageNameRegex are
// rejected rather than silently dropped, since passing them through
// would hand arbitrary text to `sh -c`.
func (d *Dispatcher) handleAptUpgradePackages(ctx context.Context, args string) error {
	names := strings.Fields(args)
	if len(names) == 0 {
		return fmt.Errorf("apt:upgrade_packages requires at least one package name")
	}
	for _, n := range names {
		if !packageNameRegex.MatchString(n) {
			return fmt.Errorf("rejected package name %q", n)
		}
	}
	command := "sudo apt-get install --only-upgrade -y " + strings.Join(names, " ")
	return sysops.StreamCommand(ctx, command, "apt_command_output", "apt_command_result", d.Send)
}

// handleAptFullUpgrade streams a full dist-upgrade (spec §4.3.1, §4.8).
func (d *Dispatcher) handleAptFullUpgrade(ctx context.Context) error {
	return sysops.StreamCommand(ctx, "sudo apt update && sudo apt-get dist-upgrade -y", "apt_command_output", "apt_command_result", d.Send)
}
