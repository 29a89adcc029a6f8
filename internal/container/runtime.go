// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package container runs one-shot conversion containers through docker or
// podman. Documents go in on stdin and text comes back on stdout.
package container

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

const (
	binDocker = "docker"
	binPodman = "podman"
)

// Runtime is a container engine able to run an image as a stdin/stdout filter.
type Runtime interface {
	// Name returns the engine binary ("docker" or "podman").
	Name() string

	// Available reports whether the binary is on PATH and its daemon answers.
	Available(ctx context.Context) bool

	// ImageExists returns nil when image is present locally.
	ImageExists(ctx context.Context, image string) error

	// Run starts image with networking disabled, pipes stdin into it and
	// copies its stdout to stdout. Stderr output is included in the error.
	Run(ctx context.Context, image string, stdin io.Reader, stdout io.Writer) error
}

// executor abstracts command execution for testing.
type executor interface {
	LookPath(file string) (string, error)
	Run(ctx context.Context, name string, args []string, stdin io.Reader, stdout, stderr io.Writer) error
}

type osExecutor struct{}

func (osExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (osExecutor) Run(ctx context.Context, name string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd.Run()
}

// engine implements Runtime. Docker and podman accept the same run flags
// and differ only in how an image is checked.
type engine struct {
	bin        string
	imageCheck []string
	exec       executor
}

func (e *engine) Name() string { return e.bin }

func (e *engine) Available(ctx context.Context) bool {
	if _, err := e.exec.LookPath(e.bin); err != nil {
		return false
	}
	return e.exec.Run(ctx, e.bin, []string{"info"}, nil, io.Discard, io.Discard) == nil
}

func (e *engine) ImageExists(ctx context.Context, image string) error {
	args := append(append([]string{}, e.imageCheck...), image)
	var stderr bytes.Buffer
	if err := e.exec.Run(ctx, e.bin, args, nil, io.Discard, &stderr); err != nil {
		return fmt.Errorf("image %s not found in %s: %w", image, e.bin, withStderr(err, &stderr))
	}
	return nil
}

func (e *engine) Run(ctx context.Context, image string, stdin io.Reader, stdout io.Writer) error {
	args := []string{"run", "--rm", "-i", "--network", "none", image}
	var stderr bytes.Buffer
	if err := e.exec.Run(ctx, e.bin, args, stdin, stdout, &stderr); err != nil {
		return fmt.Errorf("running %s in %s: %w", image, e.bin, withStderr(err, &stderr))
	}
	return nil
}

func withStderr(err error, stderr *bytes.Buffer) error {
	msg := strings.TrimSpace(stderr.String())
	if msg == "" {
		return err
	}
	if len(msg) > 500 {
		msg = msg[:500] + "..."
	}
	return fmt.Errorf("%w: %s", err, msg)
}

func newDocker(x executor) *engine {
	return &engine{bin: binDocker, imageCheck: []string{"image", "inspect"}, exec: x}
}

func newPodman(x executor) *engine {
	return &engine{bin: binPodman, imageCheck: []string{"image", "exists"}, exec: x}
}

// Detect returns the named runtime, or the first available of docker and
// podman when name is empty.
func Detect(ctx context.Context, name string) (Runtime, error) {
	return detect(ctx, name, osExecutor{})
}

func detect(ctx context.Context, name string, x executor) (Runtime, error) {
	candidates := []*engine{newDocker(x), newPodman(x)}
	for _, e := range candidates {
		if name != "" && e.bin != name {
			continue
		}
		if e.Available(ctx) {
			return e, nil
		}
	}
	if name != "" {
		return nil, fmt.Errorf("container runtime %s is not available", name)
	}
	return nil, fmt.Errorf("no container runtime available: neither %s nor %s found or operational", binDocker, binPodman)
}
