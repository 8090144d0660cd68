package render

import "errors"

// Sentinel errors for rendering.
// These errors enable reliable error classification using errors.Is().
var (
	// ErrPlaneSize indicates a plane shorter than the frame dimensions require.
	ErrPlaneSize = errors.New("plane too small for frame dimensions")

	// ErrSurfaceDestroyed indicates a draw on a torn-down surface.
	ErrSurfaceDestroyed = errors.New("surface destroyed")

	// ErrContextLost indicates the GPU context is unavailable.
	ErrContextLost = errors.New("gpu context lost")

	// ErrShaderCompile indicates the YUV program failed to compile or link.
	ErrShaderCompile = errors.New("shader compile failed")

	// ErrInvalidHandle indicates a GPU object handle that does not exist.
	ErrInvalidHandle = errors.New("invalid gpu object handle")

	// ErrDrawFailed indicates the draw itself failed after setup succeeded.
	ErrDrawFailed = errors.New("draw failed")

	// ErrUnknownBackend indicates an unrecognised backend name.
	ErrUnknownBackend = errors.New("unknown render backend")
)
