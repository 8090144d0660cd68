package render

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Backend names a Renderer implementation.
type Backend uint8

const (
	// BackendHardware decodes through a platform frame object.
	BackendHardware Backend = iota
	// BackendShader converts YUV→RGB in a GPU program.
	BackendShader
)

// String returns a string representation of the backend.
func (b Backend) String() string {
	switch b {
	case BackendHardware:
		return "hardware"
	case BackendShader:
		return "shader"
	default:
		return fmt.Sprintf("backend(%d)", uint8(b))
	}
}

// ParseBackend converts a configuration string to a Backend.
func ParseBackend(s string) (Backend, error) {
	switch s {
	case "hardware", "":
		return BackendHardware, nil
	case "shader":
		return BackendShader, nil
	default:
		return BackendHardware, fmt.Errorf("%w: %q", ErrUnknownBackend, s)
	}
}

// Sample brackets one draw call.
type Sample struct {
	BeforeDraw time.Time
	AfterDraw  time.Time
}

// Duration returns the time spent drawing.
func (s Sample) Duration() time.Duration {
	return s.AfterDraw.Sub(s.BeforeDraw)
}

// Renderer draws planar 4:2:0 frames onto surfaces.
type Renderer interface {
	// Draw renders one frame, resizing the surface to width×height first if
	// needed. Failures are reported without affecting later draws.
	Draw(surface *Surface, y, u, v []byte, width, height int, captureTimestamp uint64) (Sample, error)
	// Backend identifies the implementation.
	Backend() Backend
	// Close releases every resource the renderer still holds.
	Close() error
}

// Config configures a Renderer.
type Config struct {
	// Range is the YUV value range of incoming frames.
	Range ColorRange
	// Device backs the shader renderer. Nil uses a SoftDevice.
	Device Device
	// Now supplies draw timestamps. Nil uses time.Now.
	Now func() time.Time
}

func (c Config) now() func() time.Time {
	if c.Now != nil {
		return c.Now
	}
	return time.Now
}

// New creates the renderer for a deployment-time backend choice.
func New(backend Backend, cfg Config) (Renderer, error) {
	logrus.WithFields(logrus.Fields{
		"function": "render.New",
		"backend":  backend.String(),
		"range":    cfg.Range.String(),
	}).Info("Creating renderer")

	switch backend {
	case BackendHardware:
		return NewHardwareRenderer(cfg), nil
	case BackendShader:
		return NewShaderRenderer(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, backend)
	}
}

// chromaSize returns the chroma plane dimensions used on the wire.
func chromaSize(width, height int) (cw, ch int) {
	return width / 2, height / 2
}

// validatePlanes checks plane lengths against the frame dimensions.
func validatePlanes(y, u, v []byte, width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrPlaneSize, width, height)
	}
	cw, ch := chromaSize(width, height)
	if cw == 0 || ch == 0 {
		return fmt.Errorf("%w: %dx%d has no chroma samples", ErrPlaneSize, width, height)
	}
	if len(y) < width*height {
		return fmt.Errorf("%w: Y has %d bytes, need %d", ErrPlaneSize, len(y), width*height)
	}
	if len(u) < cw*ch || len(v) < cw*ch {
		return fmt.Errorf("%w: U/V have %d/%d bytes, need %d", ErrPlaneSize, len(u), len(v), cw*ch)
	}
	return nil
}
