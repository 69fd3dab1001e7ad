// Package enhancer upscales images with a super-resolution network.
package enhancer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/krau/konarate/codec"
)

var ErrEnhancement = errors.New("image enhancement failed")

// Upscaler runs the super-resolution network on one CHW tile. out has room
// for exactly 3 x height*Scale() x width*Scale() samples.
type Upscaler interface {
	Upscale(input []float32, width, height int, out []float32) error
	Scale() int
	Close() error
}

type Options struct {
	ScaleFactor  int
	MaxImageSize int
	TileSize     int
	TilePad      int
	MaxPixels    int
	Device       string
}

type Enhancer struct {
	net    Upscaler
	opts   Options
	logger *zap.Logger
}

func New(net Upscaler, opts Options, logger *zap.Logger) (*Enhancer, error) {
	if opts.ScaleFactor <= 0 {
		opts.ScaleFactor = 4
	}
	if opts.MaxImageSize <= 0 {
		opts.MaxImageSize = 512
	}
	if net.Scale() != opts.ScaleFactor {
		return nil, fmt.Errorf("network upscales x%d but scale factor is %d", net.Scale(), opts.ScaleFactor)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enhancer{net: net, opts: opts, logger: logger.Named("enhancer")}, nil
}

// Enhance decodes data, bounds it to MaxImageSize, upscales it and returns
// the result as PNG. Every failure matches ErrEnhancement.
func (e *Enhancer) Enhance(ctx context.Context, data []byte) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := e.enhance(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEnhancement, err)
	}
	return res, nil
}

func (e *Enhancer) enhance(data []byte) (*Result, error) {
	start := time.Now()
	decoded, err := codec.Decode(data, e.opts.MaxPixels)
	if err != nil {
		return nil, err
	}
	img, resized := codec.FitWithin(decoded.Image, e.opts.MaxImageSize)
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if resized {
		e.logger.Info("downscaled input",
			zap.Int("from_width", decoded.Info.Width), zap.Int("from_height", decoded.Info.Height),
			zap.Int("to_width", w), zap.Int("to_height", h))
	}

	t := tiler{net: e.net, scale: e.opts.ScaleFactor, tile: e.opts.TileSize, pad: e.opts.TilePad}
	inferStart := time.Now()
	upscaled, err := t.run(toCHW(img), w, h)
	if err != nil {
		return nil, err
	}
	inference := time.Since(inferStart)

	s := e.opts.ScaleFactor
	encoded, err := codec.EncodePNG(fromCHW(upscaled, w*s, h*s))
	if err != nil {
		return nil, err
	}

	original := Size{Width: w, Height: h}
	enhanced := Size{Width: w * s, Height: h * s}
	return &Result{
		Image: encoded,
		Source: SourceInfo{
			OriginalWidth:   decoded.Info.Width,
			OriginalHeight:  decoded.Info.Height,
			Format:          decoded.Info.Format,
			Mode:            decoded.Info.Mode,
			Channels:        decoded.Info.Channels,
			ProcessedWidth:  w,
			ProcessedHeight: h,
			WasResized:      resized,
		},
		OriginalSize:   original,
		EnhancedSize:   enhanced,
		ScaleFactor:    s,
		SizeIncrease:   float64(enhanced.Area()) / float64(original.Area()),
		InferenceTime:  inference,
		ProcessingTime: time.Since(start),
	}, nil
}

func (e *Enhancer) Info() ModelInfo {
	return ModelInfo{
		ModelType:      "Real-ESRGAN",
		Architecture:   "RRDBNet (6 blocks)",
		ScaleFactor:    e.opts.ScaleFactor,
		Device:         e.opts.Device,
		TileProcessing: e.opts.TileSize > 0,
		TileSize:       e.opts.TileSize,
		TilePad:        e.opts.TilePad,
		MaxInputSize:   e.opts.MaxImageSize,
		OutputFormat:   "PNG",
	}
}

func (e *Enhancer) Close() error {
	return e.net.Close()
}
