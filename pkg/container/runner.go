// Package container runs simulation images through the docker CLI.
package container

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"time"

	"github.com/dukex/goalgate/pkg/models"
)

const (
	DefaultBinary  = "docker"
	DefaultTimeout = 10 * time.Minute

	// WorkspacePath is where the run directory is mounted inside the container.
	WorkspacePath = "/workspace"

	killTimeout = 10 * time.Second
	waitDelay   = 5 * time.Second
)

// Spec describes one container invocation.
type Spec struct {
	Name    string
	Image   string
	WorkDir string // host directory mounted at WorkspacePath
	Env     map[string]string
}

// Output is what a finished container produced.
type Output struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
}

// Runner executes a container to completion.
type Runner interface {
	Run(ctx context.Context, spec Spec) (*Output, error)
}

// DockerRunner shells out to a docker-compatible CLI.
type DockerRunner struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

func NewDockerRunner(binary string, timeout time.Duration, logger *slog.Logger) *DockerRunner {
	if binary == "" {
		binary = DefaultBinary
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &DockerRunner{
		binary:  binary,
		timeout: timeout,
		logger:  logger.With("module", "container_runner"),
	}
}

// Args builds the CLI arguments for spec. Environment variables are emitted
// in key order.
func (r *DockerRunner) Args(spec Spec) []string {
	args := []string{"run", "--rm"}

	if spec.Name != "" {
		args = append(args, "--name", spec.Name)
	}

	if spec.WorkDir != "" {
		args = append(args, "-v", spec.WorkDir+":"+WorkspacePath)
	}

	keys := make([]string, 0, len(spec.Env))
	for k := range spec.Env {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	for _, k := range keys {
		args = append(args, "-e", k+"="+spec.Env[k])
	}

	return append(args, spec.Image)
}

// Run starts the container and waits for it. A non-zero exit code is not an
// error; callers inspect Output.ExitCode. When the timeout elapses the
// container is killed by name and ErrContainerTimeout is returned.
func (r *DockerRunner) Run(ctx context.Context, spec Spec) (*Output, error) {
	if spec.Image == "" {
		return nil, errors.New("container image is required")
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	args := r.Args(spec)

	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(runCtx, r.binary, args...) // #nosec G204 -- binary and image come from operator configuration
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	r.logger.InfoContext(ctx, "Starting container", "image", spec.Image, "name", spec.Name)

	started := time.Now()
	err := cmd.Run()
	out := &Output{
		ExitCode: -1,
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(started),
	}

	if cmd.ProcessState != nil {
		out.ExitCode = cmd.ProcessState.ExitCode()
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		r.kill(spec.Name)

		return out, fmt.Errorf("%w after %s", models.ErrContainerTimeout, r.timeout)
	}

	if ctx.Err() != nil {
		r.kill(spec.Name)

		return out, ctx.Err()
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			r.logger.WarnContext(ctx, "Container exited with non-zero status", "image", spec.Image, "exit_code", out.ExitCode)

			return out, nil
		}

		return out, fmt.Errorf("failed to run container %s: %w", spec.Image, err)
	}

	r.logger.InfoContext(ctx, "Container finished", "image", spec.Image, "duration", out.Duration)

	return out, nil
}

func (r *DockerRunner) kill(name string) {
	if name == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), killTimeout)
	defer cancel()

	if err := exec.CommandContext(ctx, r.binary, "kill", name).Run(); err != nil { // #nosec G204
		r.logger.Warn("Failed to kill container", "name", name, "error", err)
	}
}
