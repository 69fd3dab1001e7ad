package service

import (
	"time"

	"github.com/krau/konarate/enhancer"
	"github.com/krau/konarate/scorer"
	"github.com/krau/konarate/workpool"
)

// Improvement compares the rating of the enhanced image to the original.
type Improvement struct {
	ScoreImprovement      float64 `json:"score_improvement"`
	PercentageImprovement float64 `json:"percentage_improvement"`
	Improved              bool    `json:"improved"`
}

// NewImprovement derives the improvement record. The percentage is 0 when the
// original score is not positive.
func NewImprovement(original, enhanced float64) Improvement {
	delta := enhanced - original
	pct := 0.0
	if original > 0 {
		pct = delta / original * 100
	}
	return Improvement{
		ScoreImprovement:      delta,
		PercentageImprovement: pct,
		Improved:              delta > 0,
	}
}

// PipelineResult is the all-or-nothing outcome of rate, enhance, re-rate.
type PipelineResult struct {
	Original       *scorer.Result
	Enhancement    *enhancer.Result
	Enhanced       *scorer.Result
	Improvement    Improvement
	ProcessingTime time.Duration
}

type Health struct {
	Status        string           `json:"status"`
	ScoreDetector string           `json:"score_detector"`
	ImageEnhancer string           `json:"image_enhancer"`
	Device        string           `json:"device"`
	Pools         []workpool.Stats `json:"pools"`
}

type ModelsInfo struct {
	ScoreModel       *scorer.ModelInfo   `json:"score_model,omitempty"`
	EnhancementModel *enhancer.ModelInfo `json:"enhancement_model,omitempty"`
	Device           string              `json:"device"`
}
