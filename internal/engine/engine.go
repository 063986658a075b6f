// Package engine abstracts the container runtime behind the small contract
// the orchestrators need: build an image from a context directory, run a
// container with a bind-mounted script, follow its output, and clean up.
package engine

import (
	"context"
	"io"
)

// BuildOptions describes one image build.
type BuildOptions struct {
	// ContextDir is the build context containing the specification file and
	// any supporting files.
	ContextDir string
	// SpecFile is the build specification filename relative to ContextDir.
	SpecFile string
	// Tag is applied to the resulting image.
	Tag string
}

// RunOptions describes one container run.
type RunOptions struct {
	// Image is the engine-side image identifier to run.
	Image string
	// Command overrides the image entrypoint.
	Command []string
	// BindSource is a host path mounted read-only at BindTarget.
	BindSource string
	BindTarget string
}

// Engine is the container runtime contract. Kill and Remove operations
// tolerate already-absent containers and images: absence is a no-op, not an
// error.
type Engine interface {
	// BuildImage starts an image build and returns the engine's raw build
	// output stream: newline-delimited JSON messages carrying log lines and,
	// on success, the final image identifier.
	BuildImage(ctx context.Context, opts BuildOptions) (io.ReadCloser, error)

	// ImageExists reports whether the engine knows an image with this id.
	ImageExists(ctx context.Context, imageID string) (bool, error)

	// RemoveImage deletes an image from the engine.
	RemoveImage(ctx context.Context, imageID string) error

	// RunContainer creates and starts a detached container with output
	// capture enabled, returning its id.
	RunContainer(ctx context.Context, opts RunOptions) (string, error)

	// StreamOutput follows a container's combined stdout/stderr. The stream
	// is finite, ending when the container exits, and is not restartable.
	StreamOutput(ctx context.Context, containerID string) (io.ReadCloser, error)

	// KillContainer sends a kill signal to a running container.
	KillContainer(ctx context.Context, containerID string) error

	// RemoveContainer force-removes a container.
	RemoveContainer(ctx context.Context, containerID string) error
}

// BuildMessage is one decoded message of a build output stream.
type BuildMessage struct {
	Stream      string `json:"stream"`
	Status      string `json:"status"`
	ErrorDetail struct {
		Message string `json:"message"`
	} `json:"errorDetail"`
}

// Line returns the printable content of the message, or "" if it has none.
func (m BuildMessage) Line() string {
	switch {
	case m.Stream != "":
		return m.Stream
	case m.Status != "":
		return m.Status
	case m.ErrorDetail.Message != "":
		return m.ErrorDetail.Message
	}
	return ""
}
