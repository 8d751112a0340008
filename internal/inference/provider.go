package inference

import (
	"strings"

	"github.com/adam-mcguinness/sup-linux/internal/logging"
	ort "github.com/yalue/onnxruntime_go"
)

// buildSessionOptions translates the configured execution provider name into ONNX Runtime
// session options. Unrecognized or unavailable providers fall back to CPU rather than
// failing session construction, matching the fallback-to-CPU posture of the acceleration
// backend this is adapted from.
func buildSessionOptions(executionProvider string) (*ort.SessionOptions, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(strings.TrimSpace(executionProvider)) {
	case "", "cpu", "auto":
		// CPU execution provider is always present; nothing further to configure.
	case "cuda":
		cudaOpts, err := ort.NewCUDAProviderOptions()
		if err != nil {
			logging.Component("inference").WithError(err).Warn("CUDA provider unavailable, falling back to CPU")
			break
		}
		defer cudaOpts.Destroy()
		if err := opts.AppendExecutionProviderCUDA(cudaOpts); err != nil {
			logging.Component("inference").WithError(err).Warn("failed to append CUDA provider, falling back to CPU")
		}
	case "coreml":
		if err := opts.AppendExecutionProviderCoreML(0); err != nil {
			logging.Component("inference").WithError(err).Warn("failed to append CoreML provider, falling back to CPU")
		}
	default:
		logging.Component("inference").Warnf("unrecognized execution_provider %q, using CPU", executionProvider)
	}

	return opts, nil
}
