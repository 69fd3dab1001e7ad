// Package scorer rates perceived image quality on a 0..10 scale.
package scorer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/krau/konarate/codec"
)

var ErrInference = errors.New("quality inference failed")

// Network runs the regression model on one preprocessed CHW tensor.
type Network interface {
	Predict(input []float32) (float32, error)
	Close() error
}

type Options struct {
	InputSize int
	MaxPixels int
	Device    string
}

type Scorer struct {
	net  Network
	opts Options
}

func New(net Network, opts Options) *Scorer {
	if opts.InputSize <= 0 {
		opts.InputSize = 224
	}
	return &Scorer{net: net, opts: opts}
}

// Score decodes data and rates it. ctx is only checked before work starts;
// a running inference always finishes.
func (s *Scorer) Score(ctx context.Context, data []byte) (*Result, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	decoded, err := codec.Decode(data, s.opts.MaxPixels)
	if err != nil {
		return nil, err
	}
	input := Preprocess(decoded.Image, s.opts.InputSize)

	inferStart := time.Now()
	raw, err := s.net.Predict(input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInference, err)
	}
	if math.IsNaN(float64(raw)) || math.IsInf(float64(raw), 0) {
		return nil, fmt.Errorf("%w: model returned %v", ErrInference, raw)
	}
	now := time.Now()

	return &Result{
		RawScore:       float64(raw),
		ScaledScore:    ScaleScore(float64(raw)),
		InferenceTime:  now.Sub(inferStart),
		ProcessingTime: now.Sub(start),
		Image:          decoded.Info,
	}, nil
}

func (s *Scorer) Info() ModelInfo {
	return ModelInfo{
		ModelType:      "ResNet18 Image Quality Scorer",
		InputSize:      fmt.Sprintf("(%d, %d)", s.opts.InputSize, s.opts.InputSize),
		Device:         s.opts.Device,
		OutputRange:    "0-10 (scaled)",
		ScalingFormula: "(1.5 * raw_score + 1) * 4",
	}
}

func (s *Scorer) Close() error {
	return s.net.Close()
}
