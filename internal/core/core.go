// Package core implements the bespoke test execution state machine: the
// resource-locked systems under test, the test unit variants, and the
// TestCase/TestPlan/TestRun containers that aggregate their outcomes.
package core

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/fancylads/bespoke/pkg/remote"
)

const (
	// MaxCheckoutTime is the longest a SUT lock may be held, in seconds.
	MaxCheckoutTime = 7200
	// DefaultBootWait is how long to wait after powering on a machine
	// before its agent is expected to answer, in seconds.
	DefaultBootWait = 30
	// PingRetryCount bounds agent liveness probes before giving up.
	PingRetryCount = 5
	// PingRetryDelay separates consecutive liveness probes.
	PingRetryDelay = time.Second
	// PowerCommandTimeout bounds remote shutdown commands, in seconds.
	// The connection may drop mid-command, a short leash keeps power
	// events from stalling the whole run.
	PowerCommandTimeout = 10
)

// Directory names of the on-SUT layout created under the install root.
const (
	DirBuilds    = "builds"
	DirConfigs   = "configs"
	DirResults   = "results"
	DirTestPlans = "testplans"
	DirTests     = "tests"
	DirTools     = "tools"
)

func layoutDirs() []string {
	return []string{DirBuilds, DirConfigs, DirResults, DirTestPlans, DirTests, DirTools}
}

// Environment carries the process-wide context test units need: local
// storage roots, the orchestrator's own hostname, and the dialer that
// reaches SUT agents. It replaces ambient global state; every constructor
// takes it explicitly.
type Environment struct {
	// LocalResults is the root directory results are pulled back into.
	LocalResults string
	// LocalTools is the root directory staged tools and builds live in.
	LocalTools string
	// LocalTests is the root directory holding test script directories.
	LocalTests string
	// ServerHostname is the name SUTs use to reach this host.
	ServerHostname string
	// BootWait is the boot settle time in seconds.
	BootWait int
	// Dialer hands out per-unit agent sessions.
	Dialer remote.Dialer
	// Fs is the local filesystem used for staging checks.
	Fs afero.Fs
}

// NewEnvironment fills in the defaults a zero Environment lacks.
func NewEnvironment(env Environment) *Environment {
	if env.BootWait == 0 {
		env.BootWait = DefaultBootWait
	}
	if env.Fs == nil {
		env.Fs = afero.NewOsFs()
	}
	return &env
}

// remotePath joins path segments with forward slashes. Agents accept
// forward slashes on every supported OS.
func remotePath(parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		cleaned = append(cleaned, strings.TrimRight(strings.ReplaceAll(p, "\\", "/"), "/"))
	}
	return strings.Join(cleaned, "/")
}

// sleepSeconds blocks for the given number of seconds or until ctx is
// cancelled.
func sleepSeconds(ctx context.Context, seconds int) {
	if seconds <= 0 {
		return
	}
	select {
	case <-time.After(time.Duration(seconds) * time.Second):
	case <-ctx.Done():
	}
}
