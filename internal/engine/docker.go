package engine

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
)

// Docker implements Engine using the Docker SDK.
type Docker struct {
	cli *client.Client
}

var _ Engine = (*Docker)(nil)

// NewDocker creates a Docker engine from the standard environment variables
// (DOCKER_HOST, etc.).
func NewDocker() (*Docker, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	return &Docker{cli: cli}, nil
}

func (d *Docker) BuildImage(ctx context.Context, opts BuildOptions) (io.ReadCloser, error) {
	buildContext, err := tarDirectory(opts.ContextDir)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare build context: %w", err)
	}
	resp, err := d.cli.ImageBuild(ctx, buildContext, types.ImageBuildOptions{
		Tags:        []string{opts.Tag},
		Dockerfile:  opts.SpecFile,
		Remove:      true,
		ForceRemove: true,
		PullParent:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start image build: %w", err)
	}
	return resp.Body, nil
}

func (d *Docker) ImageExists(ctx context.Context, imageID string) (bool, error) {
	if imageID == "" {
		return false, nil
	}
	_, _, err := d.cli.ImageInspectWithRaw(ctx, imageID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (d *Docker) RemoveImage(ctx context.Context, imageID string) error {
	_, err := d.cli.ImageRemove(ctx, imageID, image.RemoveOptions{})
	if err != nil && !errdefs.IsNotFound(err) {
		return err
	}
	return nil
}

func (d *Docker) RunContainer(ctx context.Context, opts RunOptions) (string, error) {
	config := &container.Config{
		Image:        opts.Image,
		Cmd:          opts.Command,
		AttachStdout: true,
		AttachStderr: true,
	}
	hostConfig := &container.HostConfig{}
	if opts.BindSource != "" {
		hostConfig.Mounts = []mount.Mount{{
			Type:     mount.TypeBind,
			Source:   opts.BindSource,
			Target:   opts.BindTarget,
			ReadOnly: true,
		}}
	}
	created, err := d.cli.ContainerCreate(ctx, config, hostConfig, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}
	if err := d.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("failed to start container: %w", err)
	}
	return created.ID, nil
}

func (d *Docker) StreamOutput(ctx context.Context, containerID string) (io.ReadCloser, error) {
	raw, err := d.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to attach to container logs: %w", err)
	}
	// The log stream is multiplexed; demux stdout and stderr into one plain
	// text stream.
	pr, pw := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(pw, pw, raw)
		raw.Close()
		pw.CloseWithError(err)
	}()
	return pr, nil
}

func (d *Docker) KillContainer(ctx context.Context, containerID string) error {
	err := d.cli.ContainerKill(ctx, containerID, "KILL")
	if err != nil && !errdefs.IsNotFound(err) {
		return err
	}
	return nil
}

func (d *Docker) RemoveContainer(ctx context.Context, containerID string) error {
	err := d.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
	if err != nil && !errdefs.IsNotFound(err) {
		return err
	}
	return nil
}

// tarDirectory packs dir into an in-memory tar archive for use as a build
// context.
func tarDirectory(dir string) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}
