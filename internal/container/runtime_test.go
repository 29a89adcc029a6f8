// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package container

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

// fakeExecutor answers LookPath from a set of installed binaries and Run
// from a set of succeeding command lines. A handler, when set, serves
// "run" invocations.
type fakeExecutor struct {
	installed map[string]bool
	succeeds  map[string]bool
	handler   func(args []string, stdin io.Reader, stdout, stderr io.Writer) error
	lines     []string
}

func (f *fakeExecutor) LookPath(file string) (string, error) {
	if f.installed[file] {
		return "/usr/bin/" + file, nil
	}
	return "", errors.New("not found: " + file)
}

func (f *fakeExecutor) Run(_ context.Context, name string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	line := name + " " + strings.Join(args, " ")
	f.lines = append(f.lines, line)
	if len(args) > 0 && args[0] == "run" && f.handler != nil {
		return f.handler(args, stdin, stdout, stderr)
	}
	if f.succeeds[line] {
		return nil
	}
	return errors.New("exit status 1")
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name     string
		want     string
		exec     *fakeExecutor
		wantName string
		wantErr  string
	}{
		{
			name:     "docker preferred",
			exec:     &fakeExecutor{installed: map[string]bool{"docker": true, "podman": true}, succeeds: map[string]bool{"docker info": true, "podman info": true}},
			wantName: "docker",
		},
		{
			name:     "podman when docker daemon is down",
			exec:     &fakeExecutor{installed: map[string]bool{"docker": true, "podman": true}, succeeds: map[string]bool{"podman info": true}},
			wantName: "podman",
		},
		{
			name:     "explicit podman",
			want:     "podman",
			exec:     &fakeExecutor{installed: map[string]bool{"docker": true, "podman": true}, succeeds: map[string]bool{"docker info": true, "podman info": true}},
			wantName: "podman",
		},
		{
			name:    "explicit runtime missing",
			want:    "podman",
			exec:    &fakeExecutor{installed: map[string]bool{"docker": true}, succeeds: map[string]bool{"docker info": true}},
			wantErr: "podman is not available",
		},
		{
			name:    "nothing installed",
			exec:    &fakeExecutor{},
			wantErr: "no container runtime available",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt, err := detect(context.Background(), tt.want, tt.exec)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rt.Name() != tt.wantName {
				t.Errorf("runtime = %q, want %q", rt.Name(), tt.wantName)
			}
		})
	}
}

func TestImageExists(t *testing.T) {
	ctx := context.Background()
	x := &fakeExecutor{succeeds: map[string]bool{
		"docker image inspect markitdown:latest": true,
		"podman image exists markitdown:latest":  true,
	}}

	if err := newDocker(x).ImageExists(ctx, "markitdown:latest"); err != nil {
		t.Errorf("docker: %v", err)
	}
	if err := newPodman(x).ImageExists(ctx, "markitdown:latest"); err != nil {
		t.Errorf("podman: %v", err)
	}
	err := newDocker(x).ImageExists(ctx, "missing:1")
	if err == nil || !strings.Contains(err.Error(), "missing:1") {
		t.Errorf("err = %v, want mention of image", err)
	}
}

func TestRunPipesDocument(t *testing.T) {
	x := &fakeExecutor{handler: func(args []string, stdin io.Reader, stdout, _ io.Writer) error {
		data, _ := io.ReadAll(stdin)
		_, _ = stdout.Write([]byte("text: " + string(data)))
		return nil
	}}

	var out bytes.Buffer
	if err := newDocker(x).Run(context.Background(), "markitdown:latest", strings.NewReader("%PDF"), &out); err != nil {
		t.Fatal(err)
	}
	if out.String() != "text: %PDF" {
		t.Errorf("output = %q", out.String())
	}
	want := "docker run --rm -i --network none markitdown:latest"
	if x.lines[0] != want {
		t.Errorf("command = %q, want %q", x.lines[0], want)
	}
}

func TestRunReportsStderr(t *testing.T) {
	x := &fakeExecutor{handler: func(_ []string, _ io.Reader, _, stderr io.Writer) error {
		_, _ = stderr.Write([]byte("unsupported file type\n"))
		return errors.New("exit status 2")
	}}

	err := newPodman(x).Run(context.Background(), "markitdown:latest", strings.NewReader(""), io.Discard)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "unsupported file type") {
		t.Errorf("error does not carry stderr: %v", err)
	}
}
