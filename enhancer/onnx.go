package enhancer

import (
	"fmt"

	"github.com/krau/konarate/onnx"
	ort "github.com/yalue/onnxruntime_go"
)

// ONNXUpscaler runs a fully convolutional super-resolution model whose
// spatial dimensions are dynamic, so any tile size can be fed.
type ONNXUpscaler struct {
	session *ort.DynamicAdvancedSession
	scale   int
}

func NewONNXUpscaler(modelPath string, scale int, device string) (*ONNXUpscaler, error) {
	in, out, err := onnx.InputOutput(modelPath)
	if err != nil {
		return nil, err
	}
	opts, err := onnx.SessionOptions(device, 0)
	if err != nil {
		return nil, err
	}
	defer opts.Destroy()

	session, err := ort.NewDynamicAdvancedSession(modelPath, []string{in.Name}, []string{out.Name}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX Runtime session: %w", err)
	}
	return &ONNXUpscaler{session: session, scale: scale}, nil
}

func (u *ONNXUpscaler) Scale() int { return u.scale }

// Upscale wraps input and out as tensors for the duration of one Run; both
// are released before returning on every path.
func (u *ONNXUpscaler) Upscale(input []float32, width, height int, out []float32) error {
	s := int64(u.scale)
	w, h := int64(width), int64(height)
	if want := 3 * w * h * s * s; int64(len(out)) != want {
		return fmt.Errorf("output buffer has %d values, want %d", len(out), want)
	}

	inTensor, err := ort.NewTensor(ort.NewShape(1, 3, h, w), input)
	if err != nil {
		return fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inTensor.Destroy()

	outTensor, err := ort.NewTensor(ort.NewShape(1, 3, h*s, w*s), out)
	if err != nil {
		return fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outTensor.Destroy()

	return u.session.Run([]ort.Value{inTensor}, []ort.Value{outTensor})
}

func (u *ONNXUpscaler) Close() error {
	return u.session.Destroy()
}
