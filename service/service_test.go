package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krau/konarate/codec"
	"github.com/krau/konarate/enhancer"
	"github.com/krau/konarate/logging"
	"github.com/krau/konarate/scorer"
)

type stubScorer struct {
	scores  map[string]float64
	errFor  map[string]error
	hold    time.Duration
	calls   atomic.Int64
	running atomic.Int64
	peak    atomic.Int64
	closed  atomic.Bool
}

func (s *stubScorer) Score(ctx context.Context, data []byte) (*scorer.Result, error) {
	s.calls.Add(1)
	n := s.running.Add(1)
	defer s.running.Add(-1)
	trackPeak(&s.peak, n)
	time.Sleep(s.hold)
	if err := s.errFor[string(data)]; err != nil {
		return nil, err
	}
	v := s.scores[string(data)]
	return &scorer.Result{ScaledScore: v, RawScore: v/6 - 1.0/1.5}, nil
}

func (s *stubScorer) Info() scorer.ModelInfo { return scorer.ModelInfo{ModelType: "stub"} }
func (s *stubScorer) Close() error           { s.closed.Store(true); return nil }

type stubEnhancer struct {
	out     []byte
	err     error
	hold    time.Duration
	running atomic.Int64
	peak    atomic.Int64
	closed  atomic.Bool
}

func (e *stubEnhancer) Enhance(ctx context.Context, data []byte) (*enhancer.Result, error) {
	n := e.running.Add(1)
	defer e.running.Add(-1)
	trackPeak(&e.peak, n)
	time.Sleep(e.hold)
	if e.err != nil {
		return nil, e.err
	}
	return &enhancer.Result{
		Image:        e.out,
		OriginalSize: enhancer.Size{Width: 10, Height: 10},
		EnhancedSize: enhancer.Size{Width: 40, Height: 40},
		ScaleFactor:  4,
		SizeIncrease: 16,
	}, nil
}

func (e *stubEnhancer) Info() enhancer.ModelInfo { return enhancer.ModelInfo{ScaleFactor: 4} }
func (e *stubEnhancer) Close() error             { e.closed.Store(true); return nil }

func trackPeak(peak *atomic.Int64, n int64) {
	for {
		p := peak.Load()
		if n <= p || peak.CompareAndSwap(p, n) {
			return
		}
	}
}

func TestNewImprovement(t *testing.T) {
	imp := NewImprovement(4, 6)
	assert.Equal(t, 2.0, imp.ScoreImprovement)
	assert.Equal(t, 50.0, imp.PercentageImprovement)
	assert.True(t, imp.Improved)

	imp = NewImprovement(5, 5)
	assert.Equal(t, 0.0, imp.ScoreImprovement)
	assert.False(t, imp.Improved)

	imp = NewImprovement(8, 2)
	assert.Equal(t, -6.0, imp.ScoreImprovement)
	assert.Equal(t, -75.0, imp.PercentageImprovement)
	assert.False(t, imp.Improved)

	imp = NewImprovement(0, 7.5)
	assert.Equal(t, 7.5, imp.ScoreImprovement)
	assert.Equal(t, 0.0, imp.PercentageImprovement)
	assert.True(t, imp.Improved)
}

func TestRateEnhanceRate(t *testing.T) {
	sc := &stubScorer{scores: map[string]float64{"input": 3.25, "enhanced": 6.5}}
	en := &stubEnhancer{out: []byte("enhanced")}
	svc := New(Options{Device: "cpu"}, sc, en, nil)

	res, err := svc.RateEnhanceRate(context.Background(), []byte("input"))
	require.NoError(t, err)
	assert.Equal(t, 3.25, res.Original.ScaledScore)
	assert.Equal(t, 6.5, res.Enhanced.ScaledScore)
	assert.Equal(t, res.Enhanced.ScaledScore-res.Original.ScaledScore, res.Improvement.ScoreImprovement)
	assert.Equal(t, res.Improvement.ScoreImprovement > 0, res.Improvement.Improved)
	assert.Equal(t, 100.0, res.Improvement.PercentageImprovement)
	assert.Equal(t, []byte("enhanced"), res.Enhancement.Image)
	assert.EqualValues(t, 2, sc.calls.Load())
}

func TestRateEnhanceRateZeroOriginal(t *testing.T) {
	sc := &stubScorer{scores: map[string]float64{"input": 0, "enhanced": 2}}
	svc := New(Options{}, sc, &stubEnhancer{out: []byte("enhanced")}, nil)

	res, err := svc.RateEnhanceRate(context.Background(), []byte("input"))
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Improvement.PercentageImprovement)
	assert.Equal(t, 2.0, res.Improvement.ScoreImprovement)
}

func TestRateEnhanceRateAllOrNothing(t *testing.T) {
	t.Run("enhancer fails", func(t *testing.T) {
		sc := &stubScorer{scores: map[string]float64{"input": 5}}
		en := &stubEnhancer{err: enhancer.ErrEnhancement}
		res, err := New(Options{}, sc, en, nil).RateEnhanceRate(context.Background(), []byte("input"))
		assert.Nil(t, res)
		assert.ErrorIs(t, err, enhancer.ErrEnhancement)
		assert.Equal(t, "pipeline.enhance", logging.StageOf(err))
	})

	t.Run("second rating fails", func(t *testing.T) {
		sc := &stubScorer{
			scores: map[string]float64{"input": 5},
			errFor: map[string]error{"enhanced": scorer.ErrInference},
		}
		res, err := New(Options{}, sc, &stubEnhancer{out: []byte("enhanced")}, nil).RateEnhanceRate(context.Background(), []byte("input"))
		assert.Nil(t, res)
		assert.ErrorIs(t, err, scorer.ErrInference)
		assert.Equal(t, "pipeline.rate_enhanced", logging.StageOf(err))
	})

	t.Run("decode error on first rating", func(t *testing.T) {
		sc := &stubScorer{errFor: map[string]error{"input": codec.ErrDecode}}
		res, err := New(Options{}, sc, &stubEnhancer{out: []byte("enhanced")}, nil).RateEnhanceRate(context.Background(), []byte("input"))
		assert.Nil(t, res)
		assert.ErrorIs(t, err, codec.ErrDecode)
	})
}

func TestModelNotLoaded(t *testing.T) {
	svc := New(Options{}, nil, nil, nil)
	_, err := svc.Rate(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrModelNotLoaded)
	_, err = svc.Upscale(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrModelNotLoaded)
	_, err = svc.RateEnhanceRate(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrModelNotLoaded)

	h := svc.Health()
	assert.Equal(t, "not loaded", h.ScoreDetector)
	assert.Equal(t, "not loaded", h.ImageEnhancer)
	info := svc.ModelsInfo()
	assert.Nil(t, info.ScoreModel)
	assert.Nil(t, info.EnhancementModel)
}

func TestEnhancementSerializedScoringOverlaps(t *testing.T) {
	sc := &stubScorer{scores: map[string]float64{}, hold: 30 * time.Millisecond}
	en := &stubEnhancer{out: []byte("x"), hold: 15 * time.Millisecond}
	svc := New(Options{ScorerWorkers: 2, EnhancerWorkers: 1}, sc, en, nil)

	var wg sync.WaitGroup
	for range 6 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := svc.Upscale(context.Background(), []byte("img"))
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := svc.Rate(context.Background(), []byte("img"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, en.peak.Load())
	assert.EqualValues(t, 2, sc.peak.Load())
	assert.EqualValues(t, 1, svc.Health().Pools[1].Peak)
}

func TestQueuedRequestCancelled(t *testing.T) {
	en := &stubEnhancer{out: []byte("x"), hold: 100 * time.Millisecond}
	svc := New(Options{}, &stubScorer{}, en, nil)

	go func() { _, _ = svc.Upscale(context.Background(), []byte("first")) }()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := svc.Upscale(ctx, []byte("second"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCloseMarksModelsUnavailable(t *testing.T) {
	sc := &stubScorer{scores: map[string]float64{}}
	en := &stubEnhancer{}
	svc := New(Options{}, sc, en, nil)

	require.NoError(t, svc.Close(context.Background()))
	require.NoError(t, svc.Close(context.Background()))
	assert.True(t, sc.closed.Load())
	assert.True(t, en.closed.Load())

	_, err := svc.Rate(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrModelNotLoaded)
	assert.Equal(t, "shutting down", svc.Health().Status)
}

func TestRateWrapsOperation(t *testing.T) {
	boom := errors.New("boom")
	sc := &stubScorer{errFor: map[string]error{"x": boom}}
	ctx := logging.ContextWithRequestID(context.Background(), "req-9")
	_, err := New(Options{}, sc, nil, nil).Rate(ctx, []byte("x"))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "service.rate [req-9]: boom", err.Error())
}
