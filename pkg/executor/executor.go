// Package executor runs a single job to completion inside a containerd
// container and reports its exit code and combined output.
package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	"github.com/google/uuid"

	"github.com/ridgeline/foreman/pkg/types"
)

const (
	// Namespace is the containerd namespace jobs run under.
	Namespace = "foreman"

	// DefaultSocketPath is the default containerd socket.
	DefaultSocketPath = "/run/containerd/containerd.sock"

	// stopGrace is how long a container is given to exit after its
	// context is cancelled before it is force-killed.
	stopGrace = 10 * time.Second
)

// Executor runs jobs as containerd containers.
type Executor struct {
	client    *containerd.Client
	namespace string
}

// New connects to the containerd socket at socketPath and scopes all
// containers it creates to namespace (defaults to Namespace).
func New(socketPath, namespace string) (*Executor, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	if namespace == "" {
		namespace = Namespace
	}
	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to containerd: %w", err)
	}
	return &Executor{client: client, namespace: namespace}, nil
}

func (e *Executor) Close() error {
	if e.client == nil {
		return nil
	}
	return e.client.Close()
}

// Run pulls image and creates a container that executes either command or,
// if script is non-empty, a Python interpreter reading script on its
// standard input (python -), mirroring how the original worker ran ad hoc
// scripts. It waits for the container to exit and returns its exit code and
// combined stdout+stderr, capped at types.ResultCap bytes.
//
// Internal failures (pull, container/task setup, a non-zero exit) are
// reported as (non-zero, descriptive text, nil): err is reserved for ctx
// cancellation, so callers can distinguish "the job failed" from "we were
// asked to stop" without inspecting error text.
func (e *Executor) Run(ctx context.Context, image string, command []string, script string) (int, string, error) {
	ctx = namespaces.WithNamespace(ctx, e.namespace)

	img, err := e.client.Pull(ctx, image, containerd.WithPullUnpack)
	if err != nil {
		return 1, fmt.Sprintf("pull image %s: %v", image, err), nil
	}

	var args []string
	var stdin io.Reader
	switch {
	case script != "":
		args = []string{"python", "-"}
		stdin = strings.NewReader(script)
	case len(command) > 0:
		args = command
	}

	id := "job-" + uuid.NewString()

	opts := []oci.SpecOpts{oci.WithImageConfig(img)}
	if len(args) > 0 {
		opts = append(opts, oci.WithProcessArgs(args...))
	}

	container, err := e.client.NewContainer(
		ctx,
		id,
		containerd.WithImage(img),
		containerd.WithNewSnapshot(id+"-snapshot", img),
		containerd.WithNewSpec(opts...),
	)
	if err != nil {
		return 1, fmt.Sprintf("create container: %v", err), nil
	}
	defer func() {
		delCtx, cancel := context.WithTimeout(context.Background(), stopGrace)
		defer cancel()
		_ = container.Delete(delCtx, containerd.WithSnapshotCleanup)
	}()

	var out bytes.Buffer
	task, err := container.NewTask(ctx, cio.NewCreator(cio.WithStreams(stdin, &out, &out)))
	if err != nil {
		return 1, fmt.Sprintf("create task: %v", err), nil
	}
	defer func() {
		delCtx, cancel := context.WithTimeout(context.Background(), stopGrace)
		defer cancel()
		_, _ = task.Delete(delCtx)
	}()

	statusC, err := task.Wait(ctx)
	if err != nil {
		return 1, fmt.Sprintf("wait on task: %v", err), nil
	}

	if err := task.Start(ctx); err != nil {
		return 1, fmt.Sprintf("start task: %v", err), nil
	}

	select {
	case status := <-statusC:
		code, _, werr := status.Result()
		if werr != nil {
			return 1, fmt.Sprintf("task exited with error: %v; output: %s", werr, truncate(out.String())), nil
		}
		return int(code), truncate(out.String()), nil
	case <-ctx.Done():
		killCtx, cancel := context.WithTimeout(context.Background(), stopGrace)
		defer cancel()
		_ = task.Kill(killCtx, 9)
		<-statusC
		return 0, truncate(out.String()), ctx.Err()
	}
}

func truncate(s string) string {
	if len(s) <= types.ResultCap {
		return s
	}
	return s[:types.ResultCap]
}
