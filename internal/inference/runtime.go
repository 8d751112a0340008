// Package inference wraps the two ONNX Runtime sessions at the heart of the pipeline: a
// YOLO-style face detector and a single-channel face recognizer/embedder. Both are built
// once at daemon startup and shared read-only across requests.
package inference

import (
	"sync"

	"github.com/adam-mcguinness/sup-linux/internal/apperror"
	"github.com/adam-mcguinness/sup-linux/internal/logging"
	ort "github.com/yalue/onnxruntime_go"
)

var (
	runtimeOnce sync.Once
	runtimeErr  error
	refCount    int
	mu          sync.Mutex
)

// Init loads the ONNX Runtime shared library and initializes the global environment.
// libraryPath may be empty to use the platform default search path. Safe to call once at
// service startup; Shutdown releases the environment when the last session using it closes.
func Init(libraryPath string) error {
	mu.Lock()
	defer mu.Unlock()

	runtimeOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			runtimeErr = apperror.New(apperror.CodeModel, err)
			return
		}
		logging.Component("inference").Info("onnxruntime environment initialized")
	})
	if runtimeErr == nil {
		refCount++
	}
	return runtimeErr
}

// Shutdown tears down the ONNX Runtime environment once every session that called Init has
// released it.
func Shutdown() error {
	mu.Lock()
	defer mu.Unlock()

	if refCount == 0 {
		return nil
	}
	refCount--
	if refCount > 0 {
		return nil
	}
	if err := ort.DestroyEnvironment(); err != nil {
		return apperror.New(apperror.CodeModel, err)
	}
	logging.Component("inference").Info("onnxruntime environment shut down")
	return nil
}
