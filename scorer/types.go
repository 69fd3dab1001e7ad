package scorer

import (
	"time"

	"github.com/krau/konarate/codec"
)

// Result is the outcome of one quality rating.
type Result struct {
	RawScore       float64
	ScaledScore    float64
	InferenceTime  time.Duration
	ProcessingTime time.Duration
	Image          codec.Info
}

type ModelInfo struct {
	ModelType      string `json:"model_type"`
	InputSize      string `json:"input_size"`
	Device         string `json:"device"`
	OutputRange    string `json:"output_range"`
	ScalingFormula string `json:"scaling_formula"`
}
