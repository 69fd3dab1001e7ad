// Package onnx wraps ONNX Runtime environment setup shared by both models.
package onnx

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/krau/konarate/config"
	ort "github.com/yalue/onnxruntime_go"
)

const libEnv = "ONNXRUNTIME_LIB"

// LibPath picks the ONNX Runtime shared library: explicit config first, then
// $ONNXRUNTIME_LIB, then the usual install location for the OS.
func LibPath(configured string) string {
	if configured != "" {
		return configured
	}
	if p := os.Getenv(libEnv); p != "" {
		return p
	}
	switch runtime.GOOS {
	case "linux":
		return "/usr/local/lib/libonnxruntime.so"
	case "darwin":
		return "/usr/local/lib/libonnxruntime.dylib"
	case "windows":
		return "onnxruntime.dll"
	default:
		return ""
	}
}

var destroyOnce sync.Once

func Init(libPath string) error {
	if libPath == "" {
		return fmt.Errorf("onnx runtime library path could not be determined for %s", runtime.GOOS)
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime environment: %w", err)
	}
	return nil
}

func Destroy() {
	destroyOnce.Do(func() {
		if ort.IsInitialized() {
			_ = ort.DestroyEnvironment()
		}
	})
}

// SessionOptions builds options for device. Requesting cuda without a working
// CUDA execution provider is an error rather than a silent CPU fallback.
func SessionOptions(device string, threads int) (*ort.SessionOptions, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	if threads > 0 {
		if err := opts.SetIntraOpNumThreads(threads); err != nil {
			opts.Destroy()
			return nil, fmt.Errorf("failed to set intra-op threads: %w", err)
		}
	}
	switch device {
	case config.DeviceCPU, "":
	case config.DeviceCUDA:
		cudaOpts, err := ort.NewCUDAProviderOptions()
		if err != nil {
			opts.Destroy()
			return nil, fmt.Errorf("cuda provider unavailable: %w", err)
		}
		defer cudaOpts.Destroy()
		if err := cudaOpts.Update(map[string]string{"device_id": "0"}); err != nil {
			opts.Destroy()
			return nil, fmt.Errorf("failed to configure cuda provider: %w", err)
		}
		if err := opts.AppendExecutionProviderCUDA(cudaOpts); err != nil {
			opts.Destroy()
			return nil, fmt.Errorf("failed to enable cuda provider: %w", err)
		}
	default:
		opts.Destroy()
		return nil, fmt.Errorf("unsupported device %q", device)
	}
	return opts, nil
}

// InputOutput returns the first input and output of the model at path.
func InputOutput(path string) (ort.InputOutputInfo, ort.InputOutputInfo, error) {
	var none ort.InputOutputInfo
	if _, err := os.Stat(path); err != nil {
		return none, none, fmt.Errorf("model file not found: %w", err)
	}
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return none, none, fmt.Errorf("failed to get model input/output info: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return none, none, fmt.Errorf("model %s has no inputs or outputs", path)
	}
	return inputs[0], outputs[0], nil
}
