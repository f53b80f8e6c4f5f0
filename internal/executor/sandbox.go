package executor

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-units"

	"github.com/resurrectci/resurrectci/internal/logger"
	"github.com/resurrectci/resurrectci/internal/models"
)

const sandboxWorkdir = "/workspace"

// SandboxExecutor runs commands inside a long-lived container dedicated to
// one project. Output streams incrementally; while a command runs, candidate
// dev-server ports are polled so a server coming up surfaces as a PortOpened
// side-channel event.
type SandboxExecutor struct {
	cli         *client.Client
	containerID string
	projectKey  string
	ports       []int
}

// SandboxOptions configures sandbox creation.
type SandboxOptions struct {
	Image string
	// CheckoutDir is the host directory bind-mounted at /workspace.
	CheckoutDir string
	// DevServerPorts are polled during command execution.
	DevServerPorts []int
}

// NewSandboxExecutor boots a container for projectKey. Any failure (no
// daemon, image pull error) means the variant is unavailable.
func NewSandboxExecutor(ctx context.Context, projectKey string, opts SandboxOptions) (*SandboxExecutor, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("%w: docker daemon: %v", ErrUnreachable, err)
	}

	if err := ensureImage(ctx, cli, opts.Image); err != nil {
		return nil, err
	}

	containerConfig := &container.Config{
		Image:      opts.Image,
		Cmd:        []string{"sleep", "infinity"},
		WorkingDir: sandboxWorkdir,
	}

	hostConfig := &container.HostConfig{
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: opts.CheckoutDir,
				Target: sandboxWorkdir,
			},
		},
		// Host networking so dev servers started inside the sandbox are
		// reachable on localhost for port detection and live preview.
		NetworkMode: "host",
		Resources: container.Resources{
			Memory:   2 * 1024 * 1024 * 1024,
			NanoCPUs: 2e9,
			Ulimits: []*units.Ulimit{
				{Name: "nofile", Soft: 4096, Hard: 4096},
			},
		},
		SecurityOpt: []string{"no-new-privileges"},
	}

	created, err := cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("%w: creating sandbox container: %v", ErrUnreachable, err)
	}

	if err := cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		removeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = cli.ContainerRemove(removeCtx, created.ID, container.RemoveOptions{Force: true})
		return nil, fmt.Errorf("%w: starting sandbox container: %v", ErrUnreachable, err)
	}

	logger.Infof("Sandbox container %s ready for %s", created.ID[:12], projectKey)
	return &SandboxExecutor{
		cli:         cli,
		containerID: created.ID,
		projectKey:  projectKey,
		ports:       opts.DevServerPorts,
	}, nil
}

func ensureImage(ctx context.Context, cli *client.Client, imageName string) error {
	if _, _, err := cli.ImageInspectWithRaw(ctx, imageName); err == nil {
		return nil
	}

	reader, err := cli.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("%w: pulling image %s: %v", ErrUnreachable, imageName, err)
	}
	defer reader.Close()

	buf := make([]byte, 32*1024)
	for {
		if _, err := reader.Read(buf); err != nil {
			break
		}
	}
	return nil
}

func (e *SandboxExecutor) Mode() models.ExecutionMode {
	return models.ModeSandbox
}

func (e *SandboxExecutor) Execute(ctx context.Context, req Request, sink Sink) (Result, error) {
	workdir := req.WorkingDirectory
	if workdir == "" {
		workdir = sandboxWorkdir
	}

	execResp, err := e.cli.ContainerExecCreate(ctx, e.containerID, container.ExecOptions{
		Cmd:          []string{"/bin/sh", "-lc", req.Command},
		WorkingDir:   workdir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: exec create: %v", ErrUnreachable, err)
	}

	attach, err := e.cli.ContainerExecAttach(ctx, execResp.ID, container.ExecAttachOptions{})
	if err != nil {
		return Result{}, fmt.Errorf("%w: exec attach: %v", ErrUnreachable, err)
	}
	defer attach.Close()

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go e.watchPorts(watchCtx, sink)

	// Close the attached stream when the caller cancels so the copy loop
	// below unblocks; the process itself is then terminated best-effort.
	go func() {
		<-ctx.Done()
		attach.Close()
	}()

	copyErr := demuxStream(attach, sink)

	if ctx.Err() != nil {
		e.killCommand(req.Command)
		return Result{}, ctx.Err()
	}
	if copyErr != nil {
		return Result{}, fmt.Errorf("%w: streaming output: %v", ErrUnreachable, copyErr)
	}

	inspect, err := e.cli.ContainerExecInspect(context.Background(), execResp.ID)
	if err != nil {
		return Result{}, fmt.Errorf("%w: exec inspect: %v", ErrUnreachable, err)
	}

	return Result{Success: inspect.ExitCode == 0, ExitCode: inspect.ExitCode}, nil
}

// demuxStream splits the multiplexed exec stream into stdout/stderr sink
// calls. Docker frames carry a stream-type header; stdcopy handles the
// demultiplexing into the two writers.
func demuxStream(attach types.HijackedResponse, sink Sink) error {
	_, err := stdcopy.StdCopy(sinkWriter{sink: sink}, sinkWriter{sink: sink, stderr: true}, attach.Reader)
	return err
}

type sinkWriter struct {
	sink   Sink
	stderr bool
}

func (w sinkWriter) Write(p []byte) (int, error) {
	if w.stderr {
		w.sink.ErrorOutput(string(p))
	} else {
		w.sink.Output(string(p))
	}
	return len(p), nil
}

// watchPorts polls the candidate dev-server ports while a command runs.
// Ports already listening before the command started are not reported, and
// each port is reported at most once per command.
func (e *SandboxExecutor) watchPorts(ctx context.Context, sink Sink) {
	baseline := make(map[int]bool)
	for _, port := range e.ports {
		if portListening(port) {
			baseline[port] = true
		}
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	reported := make(map[int]bool)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, port := range e.ports {
				if baseline[port] || reported[port] {
					continue
				}
				if portListening(port) {
					reported[port] = true
					sink.PortOpened(port)
				}
			}
		}
	}
}

func portListening(port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), 250*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// killCommand terminates a cancelled command's process tree inside the
// container. Exec instances cannot be killed through the API directly, so
// this matches on the command line.
func (e *SandboxExecutor) killCommand(command string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	execResp, err := e.cli.ContainerExecCreate(ctx, e.containerID, container.ExecOptions{
		Cmd: []string{"/bin/sh", "-c", fmt.Sprintf("pkill -TERM -f %q || true", command)},
	})
	if err != nil {
		logger.Debugf("Failed to create kill exec in sandbox: %v", err)
		return
	}
	if err := e.cli.ContainerExecStart(ctx, execResp.ID, container.ExecStartOptions{}); err != nil {
		logger.Debugf("Failed to kill sandbox command: %v", err)
	}
}

func (e *SandboxExecutor) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := e.cli.ContainerRemove(ctx, e.containerID, container.RemoveOptions{Force: true})
	if err != nil {
		return fmt.Errorf("failed to remove sandbox container: %w", err)
	}
	logger.Infof("Removed sandbox container for %s", e.projectKey)
	return nil
}
