package executor

import (
	"context"

	"github.com/resurrectci/resurrectci/internal/logger"
)

// SelectOptions feeds the backend selection ladder.
type SelectOptions struct {
	ProjectKey  string
	ProjectPath string

	// ExecutorURL enables the two remote variants when non-empty.
	ExecutorURL string

	// SandboxEnabled plus the image/checkout settings enable the
	// container-backed variant.
	SandboxEnabled bool
	SandboxImage   string
	CheckoutDir    string
	DevServerPorts []int
}

// Select attempts the backend variants in order: remote session, remote
// stateless, sandboxed runtime, simulated. The first variant whose setup
// succeeds wins and is used until teardown; selection never re-runs
// mid-session. The simulated variant cannot fail, so Select always returns
// a backend.
func Select(ctx context.Context, opts SelectOptions) Backend {
	if opts.ExecutorURL != "" {
		if backend, err := NewSessionExecutor(ctx, opts.ExecutorURL, opts.ProjectKey, opts.ProjectPath); err == nil {
			return backend
		} else {
			logger.Warnf("Remote session executor unavailable for %s: %v", opts.ProjectKey, err)
		}

		if backend, err := NewStatelessExecutor(ctx, opts.ExecutorURL, opts.ProjectPath); err == nil {
			return backend
		} else {
			logger.Warnf("Remote stateless executor unavailable for %s: %v", opts.ProjectKey, err)
		}
	}

	if opts.SandboxEnabled && opts.CheckoutDir != "" {
		backend, err := NewSandboxExecutor(ctx, opts.ProjectKey, SandboxOptions{
			Image:          opts.SandboxImage,
			CheckoutDir:    opts.CheckoutDir,
			DevServerPorts: opts.DevServerPorts,
		})
		if err == nil {
			return backend
		}
		logger.Warnf("Sandbox executor unavailable for %s: %v", opts.ProjectKey, err)
	}

	logger.Warnf("No real execution backend reachable for %s, falling back to simulated mode", opts.ProjectKey)
	return NewSimulatedExecutor()
}
