package scorer

import (
	"errors"
	"fmt"

	"github.com/krau/konarate/onnx"
	ort "github.com/yalue/onnxruntime_go"
)

type session struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

func (s *session) destroy() error {
	var errs []error
	if s.session != nil {
		errs = append(errs, s.session.Destroy())
	}
	if s.input != nil {
		errs = append(errs, s.input.Destroy())
	}
	if s.output != nil {
		errs = append(errs, s.output.Destroy())
	}
	return errors.Join(errs...)
}

// ONNXNetwork keeps one preallocated session per worker so concurrent
// predictions never share tensors.
type ONNXNetwork struct {
	pool     chan *session
	sessions []*session
}

func NewONNXNetwork(modelPath string, inputSize, workers int, device string) (*ONNXNetwork, error) {
	in, out, err := onnx.InputOutput(modelPath)
	if err != nil {
		return nil, err
	}
	workers = max(workers, 1)
	n := &ONNXNetwork{pool: make(chan *session, workers)}
	for range workers {
		s, err := newSession(modelPath, in.Name, out.Name, inputSize, device)
		if err != nil {
			_ = n.Close()
			return nil, err
		}
		n.sessions = append(n.sessions, s)
		n.pool <- s
	}
	return n, nil
}

func newSession(modelPath, inputName, outputName string, size int, device string) (*session, error) {
	opts, err := onnx.SessionOptions(device, 0)
	if err != nil {
		return nil, err
	}
	defer opts.Destroy()

	s := &session{}
	s.input, err = ort.NewTensor(ort.NewShape(1, 3, int64(size), int64(size)), make([]float32, 3*size*size))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	s.output, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		_ = s.destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	s.session, err = ort.NewAdvancedSession(
		modelPath,
		[]string{inputName},
		[]string{outputName},
		[]ort.Value{s.input},
		[]ort.Value{s.output},
		opts,
	)
	if err != nil {
		_ = s.destroy()
		return nil, fmt.Errorf("failed to create ONNX Runtime session: %w", err)
	}
	return s, nil
}

func (n *ONNXNetwork) Predict(input []float32) (float32, error) {
	m := <-n.pool
	defer func() { n.pool <- m }()

	data := m.input.GetData()
	if len(input) != len(data) {
		return 0, fmt.Errorf("input has %d values, model expects %d", len(input), len(data))
	}
	copy(data, input)
	if err := m.session.Run(); err != nil {
		return 0, err
	}
	return m.output.GetData()[0], nil
}

func (n *ONNXNetwork) Close() error {
	var errs []error
	for _, s := range n.sessions {
		errs = append(errs, s.destroy())
	}
	n.sessions = nil
	return errors.Join(errs...)
}
