// Package engine is the thin facade over the container engine CLI (docker
// or podman) that every other component shells out through. The spec
// treats the engine as an external CLI, never a Go SDK client (spec.md
// §1), so this package wraps os/exec rather than github.com/docker/docker.
package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/agentfw/awf/internal/errs"
)

// Engine runs container-engine CLI commands on behalf of the components
// that provision networks, build compose specs, and drive the agent's
// lifecycle.
type Engine struct {
	// Path is the resolved absolute path to the engine binary.
	Path string
	// Name is "docker" or "podman", as configured.
	Name string
}

// Detect resolves name ("docker", "podman", or "" to try docker then
// podman) against PATH.
func Detect(name string) (*Engine, error) {
	candidates := []string{name}
	if name == "" {
		candidates = []string{"docker", "podman"}
	}
	var lastErr error
	for _, c := range candidates {
		if c == "" {
			continue
		}
		path, err := exec.LookPath(c)
		if err == nil {
			return &Engine{Path: path, Name: c}, nil
		}
		lastErr = err
	}
	return nil, errs.Wrap(errs.KindEngineUnavailable, "no container engine found in PATH", lastErr)
}

// Run executes the engine binary with args, returning its stdout on
// success or a wrapped KindEngineUnavailable error with stderr attached.
func (e *Engine) Run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, e.Path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", errs.Wrap(errs.KindEngineUnavailable,
			fmt.Sprintf("%s %s: %s", e.Name, strings.Join(args, " "), strings.TrimSpace(stderr.String())), err)
	}
	return stdout.String(), nil
}

// RunAttached runs the engine binary with the calling process's stdio
// attached — used for `compose up` and `compose logs -f` streaming.
func (e *Engine) RunAttached(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, e.Path, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	return cmd.Run()
}

// NetworkExists reports whether a network named name is known to the
// engine.
func (e *Engine) NetworkExists(ctx context.Context, name string) bool {
	_, err := e.Run(ctx, "network", "inspect", name)
	return err == nil
}

// NetworkCreate creates a bridge network with the given subnet and
// bridge device name.
func (e *Engine) NetworkCreate(ctx context.Context, name, subnet, bridgeName string) error {
	_, err := e.Run(ctx, "network", "create",
		"--driver", "bridge",
		"--subnet", subnet,
		"--opt", "com.docker.network.bridge.name="+bridgeName,
		name)
	return err
}

// NetworkRemove best-effort removes a network by name.
func (e *Engine) NetworkRemove(ctx context.Context, name string) error {
	_, err := e.Run(ctx, "network", "rm", name)
	return err
}

// ComposeUp runs `compose -f file up -d --build` through the engine
// binary, the same subcommand for docker and podman alike.
func (e *Engine) ComposeUp(ctx context.Context, composeFile string) error {
	return e.RunAttached(ctx, "compose", "-f", composeFile, "up", "-d", "--build")
}

// ComposeDown runs `compose -f file down --volumes`.
func (e *Engine) ComposeDown(ctx context.Context, composeFile string) error {
	_, err := e.Run(ctx, "compose", "-f", composeFile, "down", "--volumes")
	return err
}

// ComposeLogsFollow streams logs for service to this process's stdout and
// stderr until the context is cancelled or the process exits.
func (e *Engine) ComposeLogsFollow(ctx context.Context, composeFile, service string) error {
	return e.RunAttached(ctx, "compose", "-f", composeFile, "logs", "-f", "--no-log-prefix", service)
}

// Wait blocks until the named container exits and returns its exit code.
func (e *Engine) Wait(ctx context.Context, containerName string) (int, error) {
	out, err := e.Run(ctx, "wait", containerName)
	if err != nil {
		return -1, err
	}
	var code int
	if _, scanErr := fmt.Sscanf(strings.TrimSpace(out), "%d", &code); scanErr != nil {
		return -1, errs.Wrap(errs.KindEngineUnavailable, "parsing exit code from engine wait", scanErr)
	}
	return code, nil
}

// ContainerState returns the engine's reported status string
// ("running", "exited", ...) or "not-found".
func (e *Engine) ContainerState(ctx context.Context, name string) string {
	out, err := e.Run(ctx, "inspect", "--format", "{{.State.Status}}", name)
	if err != nil {
		return "not-found"
	}
	return strings.TrimSpace(out)
}

// ContainerRemoveForce force-removes a container by name, ignoring the
// error when it does not exist — used to clear stale containers left by
// a crashed prior invocation before compose-up (spec §4.6, "Startup
// ordering").
func (e *Engine) ContainerRemoveForce(ctx context.Context, name string) {
	if e.ContainerState(ctx, name) == "not-found" {
		return
	}
	if _, err := e.Run(ctx, "rm", "-f", name); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to force-remove stale container %s: %v\n", name, err)
	}
}
