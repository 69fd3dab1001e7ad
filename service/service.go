// Package service sequences the scorer and enhancer behind bounded worker pools.
package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/krau/konarate/enhancer"
	"github.com/krau/konarate/logging"
	"github.com/krau/konarate/scorer"
	"github.com/krau/konarate/workpool"
)

var ErrModelNotLoaded = errors.New("model not loaded")

type Scorer interface {
	Score(ctx context.Context, data []byte) (*scorer.Result, error)
	Info() scorer.ModelInfo
	Close() error
}

type Enhancer interface {
	Enhance(ctx context.Context, data []byte) (*enhancer.Result, error)
	Info() enhancer.ModelInfo
	Close() error
}

type Options struct {
	ScorerWorkers   int
	EnhancerWorkers int
	Device          string
}

// Service is built once at startup and shared by every request. A nil model
// is reported as not loaded.
type Service struct {
	scorer      Scorer
	enhancer    Enhancer
	scorePool   *workpool.Pool
	enhancePool *workpool.Pool
	device      string
	logger      *zap.Logger

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func New(opts Options, sc Scorer, en Enhancer, logger *zap.Logger) *Service {
	if opts.ScorerWorkers < 1 {
		opts.ScorerWorkers = 2
	}
	if opts.EnhancerWorkers < 1 {
		opts.EnhancerWorkers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		scorer:      sc,
		enhancer:    en,
		scorePool:   workpool.New("scorer", opts.ScorerWorkers),
		enhancePool: workpool.New("enhancer", opts.EnhancerWorkers),
		device:      opts.Device,
		logger:      logger.Named("service"),
	}
}

func (s *Service) ScorerLoaded() bool   { return s.scorer != nil && !s.closed.Load() }
func (s *Service) EnhancerLoaded() bool { return s.enhancer != nil && !s.closed.Load() }

// Rate scores data on the scorer pool.
func (s *Service) Rate(ctx context.Context, data []byte) (*scorer.Result, error) {
	res, err := s.rate(ctx, data)
	if err != nil {
		return nil, s.fail(ctx, "service.rate", err)
	}
	return res, nil
}

// Upscale enhances data on the enhancer pool.
func (s *Service) Upscale(ctx context.Context, data []byte) (*enhancer.Result, error) {
	res, err := s.upscale(ctx, data)
	if err != nil {
		return nil, s.fail(ctx, "service.upscale", err)
	}
	return res, nil
}

// RateEnhanceRate rates data, enhances it, and rates the enhanced image.
// The first rating runs alongside the enhancement; the second waits for it.
// Any failure aborts the whole pipeline.
func (s *Service) RateEnhanceRate(ctx context.Context, data []byte) (*PipelineResult, error) {
	if !s.ScorerLoaded() || !s.EnhancerLoaded() {
		return nil, s.fail(ctx, "pipeline", ErrModelNotLoaded)
	}
	start := time.Now()
	log := logging.WithOperation(s.logger, "pipeline", logging.RequestID(ctx))

	var (
		original    *scorer.Result
		enhancement *enhancer.Result
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := s.rate(gctx, data)
		if err != nil {
			return logging.WrapStage("pipeline.rate_original", logging.RequestID(ctx), err)
		}
		original = r
		return nil
	})
	g.Go(func() error {
		r, err := s.upscale(gctx, data)
		if err != nil {
			return logging.WrapStage("pipeline.enhance", logging.RequestID(ctx), err)
		}
		enhancement = r
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, s.fail(ctx, "pipeline", err)
	}
	log.Debug("original rated and enhanced",
		zap.Float64("original_score", original.ScaledScore),
		zap.Duration("enhance_time", enhancement.ProcessingTime))

	enhanced, err := s.rate(ctx, enhancement.Image)
	if err != nil {
		return nil, s.fail(ctx, "pipeline", logging.WrapStage("pipeline.rate_enhanced", logging.RequestID(ctx), err))
	}

	res := &PipelineResult{
		Original:       original,
		Enhancement:    enhancement,
		Enhanced:       enhanced,
		Improvement:    NewImprovement(original.ScaledScore, enhanced.ScaledScore),
		ProcessingTime: time.Since(start),
	}
	log.Info("pipeline completed",
		zap.Float64("original_score", original.ScaledScore),
		zap.Float64("enhanced_score", enhanced.ScaledScore),
		zap.Duration("elapsed", res.ProcessingTime))
	return res, nil
}

func (s *Service) rate(ctx context.Context, data []byte) (*scorer.Result, error) {
	if !s.ScorerLoaded() {
		return nil, ErrModelNotLoaded
	}
	res, err := workpool.Submit(ctx, s.scorePool, func() (*scorer.Result, error) {
		return s.scorer.Score(ctx, data)
	})
	if errors.Is(err, workpool.ErrClosed) {
		return nil, ErrModelNotLoaded
	}
	return res, err
}

func (s *Service) upscale(ctx context.Context, data []byte) (*enhancer.Result, error) {
	if !s.EnhancerLoaded() {
		return nil, ErrModelNotLoaded
	}
	res, err := workpool.Submit(ctx, s.enhancePool, func() (*enhancer.Result, error) {
		return s.enhancer.Enhance(ctx, data)
	})
	if errors.Is(err, workpool.ErrClosed) {
		return nil, ErrModelNotLoaded
	}
	return res, err
}

// fail tags err with op unless an inner stage already claimed it. Logging is
// left to the transport, which knows the route.
func (s *Service) fail(ctx context.Context, op string, err error) error {
	return logging.WrapStage(op, logging.RequestID(ctx), err)
}

func (s *Service) Health() Health {
	h := Health{
		Status:        "healthy",
		ScoreDetector: loadedString(s.ScorerLoaded()),
		ImageEnhancer: loadedString(s.EnhancerLoaded()),
		Device:        s.device,
		Pools:         []workpool.Stats{s.scorePool.Stats(), s.enhancePool.Stats()},
	}
	if s.closed.Load() {
		h.Status = "shutting down"
	}
	return h
}

func (s *Service) ModelsInfo() ModelsInfo {
	info := ModelsInfo{Device: s.device}
	if s.ScorerLoaded() {
		si := s.scorer.Info()
		info.ScoreModel = &si
	}
	if s.EnhancerLoaded() {
		ei := s.enhancer.Info()
		info.EnhancementModel = &ei
	}
	return info
}

// Close stops admitting work, waits for running inferences and releases
// both models. Safe to call more than once.
func (s *Service) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		var errs []error
		errs = append(errs, s.scorePool.Close(ctx), s.enhancePool.Close(ctx))
		if err := errors.Join(errs...); err != nil {
			// inferences are still running; leave the models to process exit
			s.closeErr = err
			return
		}
		if s.scorer != nil {
			errs = append(errs, s.scorer.Close())
		}
		if s.enhancer != nil {
			errs = append(errs, s.enhancer.Close())
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

func loadedString(ok bool) string {
	if ok {
		return "loaded"
	}
	return "not loaded"
}
