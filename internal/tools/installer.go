// Package tools checks for the external tools the orchestration shells out
// to, installing missing ones through the host package manager.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"
)

// ErrToolMissing means a required tool is absent and the single install
// attempt did not produce it.
var ErrToolMissing = errors.New("required tool not available")

// lookPath is swapped out in tests.
var lookPath = exec.LookPath

// commandContext is swapped out in tests.
var commandContext = exec.CommandContext

// ToolInstaller ensures an external tool is runnable before the run starts.
type ToolInstaller interface {
	Ensure(ctx context.Context, tool string) error
}

// packageManagers in probe order. The first one present on the host is used.
var packageManagers = []struct {
	bin  string
	args []string
}{
	{"apt-get", []string{"install", "-y"}},
	{"dnf", []string{"install", "-y"}},
	{"yum", []string{"install", "-y"}},
}

// PackageInstaller resolves tools via PATH and attempts exactly one install
// through the host package manager before giving up.
type PackageInstaller struct{}

func NewPackageInstaller() *PackageInstaller {
	return &PackageInstaller{}
}

func (p *PackageInstaller) Ensure(ctx context.Context, tool string) error {
	if _, err := lookPath(tool); err == nil {
		return nil
	}

	log.Printf("[tools] %s not found, attempting install", tool)
	if err := p.install(ctx, tool); err != nil {
		return fmt.Errorf("%w: %s (%v)", ErrToolMissing, tool, err)
	}

	// One remediation, one recheck.
	if _, err := lookPath(tool); err != nil {
		return fmt.Errorf("%w: %s still missing after install", ErrToolMissing, tool)
	}
	return nil
}

func (p *PackageInstaller) install(ctx context.Context, tool string) error {
	for _, pm := range packageManagers {
		if _, err := lookPath(pm.bin); err != nil {
			continue
		}
		args := append(append([]string{}, pm.args...), tool)
		cmd := commandContext(ctx, pm.bin, args...)
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("%s install failed: %v", pm.bin, err)
		}
		return nil
	}
	return errors.New("no supported package manager found")
}
