package deploy

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/jguan/chatstack/pkg/infra/logger"
)

// Runner applies a topology spec to the container runtime. The orchestrator
// decides which of the three operations a transition needs; the runner only
// executes them.
type Runner interface {
	// Deploy pulls images and brings the stack up from scratch.
	Deploy(ctx context.Context, dir string) error

	// Reload re-applies the current topology without fetching images.
	// Compose recreates only the services whose definition changed and
	// never touches named volumes.
	Reload(ctx context.Context, dir string) error

	// Stop brings the stack down, keeping volumes. Used both for explicit
	// teardown and for rollback after a failed reload.
	Stop(ctx context.Context, dir string) error
}

// ComposeRunner implements Runner by executing the docker compose CLI.
type ComposeRunner struct {
	// Bin is the container CLI, default "docker".
	Bin string
	// Timeout bounds each compose invocation.
	Timeout time.Duration
}

var _ Runner = (*ComposeRunner)(nil)

// NewComposeRunner creates a runner using the docker CLI from PATH.
func NewComposeRunner() *ComposeRunner {
	return &ComposeRunner{
		Bin:     "docker",
		Timeout: 15 * time.Minute,
	}
}

func (r *ComposeRunner) Deploy(ctx context.Context, dir string) error {
	if err := r.run(ctx, dir, "pull"); err != nil {
		return err
	}
	return r.run(ctx, dir, "up", "-d")
}

func (r *ComposeRunner) Reload(ctx context.Context, dir string) error {
	return r.run(ctx, dir, "up", "-d")
}

func (r *ComposeRunner) Stop(ctx context.Context, dir string) error {
	// Never "--volumes": data survives every stop.
	return r.run(ctx, dir, "down")
}

// ModelPuller fetches models into the running inference backend by
// executing `ollama pull` inside its container. Pull failures are per-model
// and non-fatal to the stack itself.
type ModelPuller struct {
	Bin     string
	Timeout time.Duration
}

// NewModelPuller creates a puller using the docker CLI from PATH.
func NewModelPuller() *ModelPuller {
	return &ModelPuller{
		Bin:     "docker",
		Timeout: 2 * time.Hour,
	}
}

// Pull downloads one model into the backend's model volume.
func (p *ModelPuller) Pull(ctx context.Context, model string) error {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.Bin, "exec", ContainerPrefix+ServiceBackend, "ollama", "pull", model)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("pull model %s: %w: %s", model, err, stderr.String())
	}
	return nil
}

func (r *ComposeRunner) run(ctx context.Context, dir string, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	full := append([]string{"compose", "-f", filepath.Join(dir, ComposeFileName)}, args...)
	logger.Debug("running compose", "bin", r.Bin, "args", full)

	cmd := exec.CommandContext(ctx, r.Bin, full...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s compose %s: %w: %s", r.Bin, args[0], err, stderr.String())
	}
	return nil
}
