package renderer

import "errors"

var (
	// ErrPipelineNotFound is returned when a dispatch names a pipeline that was never registered.
	ErrPipelineNotFound = errors.New("renderer: pipeline not found")

	// ErrNoComputeFrame is returned when a dispatch is issued outside BeginComputeFrame/EndComputeFrame.
	ErrNoComputeFrame = errors.New("renderer: no compute frame in progress")

	// ErrNoKernel is returned by the CPU backend for a pipeline without a CPU kernel.
	ErrNoKernel = errors.New("renderer: pipeline has no CPU kernel")

	// ErrNoShader is returned when a pipeline without a shader variant is registered.
	ErrNoShader = errors.New("renderer: pipeline has no compute shader")

	// ErrBackendUnavailable is returned when the requested backend cannot be created.
	ErrBackendUnavailable = errors.New("renderer: backend unavailable")

	// ErrReleased is returned by every operation after Release.
	ErrReleased = errors.New("renderer: released")
)
