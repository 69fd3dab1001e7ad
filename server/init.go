package server

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/krau/konarate/config"
	"github.com/krau/konarate/enhancer"
	"github.com/krau/konarate/scorer"
	"github.com/krau/konarate/service"
)

// modelLoaders builds the raw networks behind the scorer and enhancer.
type modelLoaders struct {
	network  func(cfg config.Config) (scorer.Network, error)
	upscaler func(cfg config.Config) (enhancer.Upscaler, error)
}

var onnxLoaders = modelLoaders{
	network: func(cfg config.Config) (scorer.Network, error) {
		return scorer.NewONNXNetwork(cfg.Scorer.ModelPath, cfg.Scorer.InputSize, cfg.Scorer.Workers, cfg.Device)
	},
	upscaler: func(cfg config.Config) (enhancer.Upscaler, error) {
		return enhancer.NewONNXUpscaler(cfg.Enhancer.ModelPath, cfg.Enhancer.ScaleFactor, cfg.Device)
	},
}

// Init loads both models and builds the shared service. Any error means the
// model set is incomplete and the process must not serve.
func Init(cfg config.Config, logger *zap.Logger) (*service.Service, error) {
	return initWith(cfg, logger, onnxLoaders)
}

func initWith(cfg config.Config, logger *zap.Logger, load modelLoaders) (*service.Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	net, err := load.network(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load scoring model: %w", err)
	}
	sc := scorer.New(net, scorer.Options{
		InputSize: cfg.Scorer.InputSize,
		MaxPixels: cfg.MaxImagePixels,
		Device:    cfg.Device,
	})
	logger.Info("Loaded image scoring model", zap.String("path", cfg.Scorer.ModelPath), zap.Int("workers", cfg.Scorer.Workers))

	up, err := load.upscaler(cfg)
	if err != nil {
		_ = sc.Close()
		return nil, fmt.Errorf("failed to load enhancement model: %w", err)
	}
	tile := cfg.Enhancer.EffectiveTileSize(cfg.Device)
	en, err := enhancer.New(up, enhancer.Options{
		ScaleFactor:  cfg.Enhancer.ScaleFactor,
		MaxImageSize: cfg.Enhancer.MaxImageSize,
		TileSize:     tile,
		TilePad:      cfg.Enhancer.TilePad,
		MaxPixels:    cfg.MaxImagePixels,
		Device:       cfg.Device,
	}, logger)
	if err != nil {
		_ = up.Close()
		_ = sc.Close()
		return nil, fmt.Errorf("failed to load enhancement model: %w", err)
	}
	logger.Info("Loaded enhancement model", zap.String("path", cfg.Enhancer.ModelPath), zap.Int("tile_size", tile))

	return service.New(service.Options{
		ScorerWorkers:   cfg.Scorer.Workers,
		EnhancerWorkers: cfg.Enhancer.Workers,
		Device:          cfg.Device,
	}, sc, en, logger), nil
}
