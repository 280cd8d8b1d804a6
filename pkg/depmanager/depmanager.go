// Package depmanager checks and installs the per-block package
// requirements declared in a block's Contract.Dependencies.
package depmanager

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/codeready-toolchain/datagenflow/pkg/engineerr"
)

// DefaultInstallTimeout matches the spec's 300s default for Install.
const DefaultInstallTimeout = 300 * time.Second

// cutset is every operator a requirement string may be cut at.
// ParseRequirement cuts at whichever occurs earliest in the string, so the
// order of this list does not matter.
var cutset = []string{">=", "<=", "==", "!=", "~=", ">", "<", "["}

// ParseRequirement strips a requirement string down to its bare package
// name by cutting at the first occurrence of any of >= <= == > < != ~= [.
func ParseRequirement(requirement string) string {
	cut := len(requirement)
	for _, op := range cutset {
		if idx := strings.Index(requirement, op); idx != -1 && idx < cut {
			cut = idx
		}
	}
	return strings.TrimSpace(requirement[:cut])
}

// Info is the per-requirement status returned by GetDependencyInfo.
type Info struct {
	Requirement      string `json:"requirement"`
	Name             string `json:"name"`
	InstalledVersion string `json:"installed_version,omitempty"`
	Status           Status `json:"status"`
}

type Status string

const (
	StatusOK          Status = "ok"
	StatusNotInstalled Status = "not_installed"
)

// Checker reports whether a package name is importable/installed, and its
// version if known. The default implementation shells out to the
// configured package manager; tests substitute a stub.
type Checker interface {
	Check(ctx context.Context, name string) (installed bool, version string)
}

// Manager checks and installs declared block dependencies.
type Manager struct {
	checker       Checker
	installerName string // e.g. "pip"
}

// New returns a Manager using the given checker and installer command name.
func New(checker Checker, installerName string) *Manager {
	return &Manager{checker: checker, installerName: installerName}
}

// CheckMissing filters requirements down to those not currently installed.
func (m *Manager) CheckMissing(ctx context.Context, requirements []string) []string {
	var missing []string
	for _, req := range requirements {
		name := ParseRequirement(req)
		if installed, _ := m.checker.Check(ctx, name); !installed {
			missing = append(missing, req)
		}
	}
	return missing
}

// GetDependencyInfo returns per-requirement status for display.
func (m *Manager) GetDependencyInfo(ctx context.Context, requirements []string) []Info {
	out := make([]Info, 0, len(requirements))
	for _, req := range requirements {
		name := ParseRequirement(req)
		installed, version := m.checker.Check(ctx, name)
		status := StatusNotInstalled
		if installed {
			status = StatusOK
		}
		out = append(out, Info{Requirement: req, Name: name, InstalledVersion: version, Status: status})
	}
	return out
}

// Install shells out to the configured package installer with a default
// 300s timeout. Fails with DependencyError on non-zero exit, timeout, or a
// missing installer binary.
func (m *Manager) Install(ctx context.Context, requirements []string, timeout time.Duration) error {
	if len(requirements) == 0 {
		return nil
	}
	if timeout <= 0 {
		timeout = DefaultInstallTimeout
	}
	if _, err := exec.LookPath(m.installerName); err != nil {
		return engineerr.NewDependencyError("package installer not found: "+m.installerName, err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append([]string{"install"}, requirements...)
	cmd := exec.CommandContext(ctx, m.installerName, args...)
	out, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return engineerr.NewDependencyError("dependency install timed out", ctx.Err())
	}
	if err != nil {
		return engineerr.NewDependencyError("dependency install failed: "+string(out), err)
	}
	return nil
}

// ExecChecker is the default Checker: shells out to `<installer> show
// <name>` and treats exit code 0 as "installed".
type ExecChecker struct {
	InstallerName string
}

func (c ExecChecker) Check(ctx context.Context, name string) (bool, string) {
	cmd := exec.CommandContext(ctx, c.InstallerName, "show", name)
	out, err := cmd.Output()
	if err != nil {
		return false, ""
	}
	return true, parseVersionFromShowOutput(string(out))
}

func parseVersionFromShowOutput(output string) string {
	for _, line := range strings.Split(output, "\n") {
		if strings.HasPrefix(line, "Version:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "Version:"))
		}
	}
	return ""
}
