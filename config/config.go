package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

const (
	DeviceCPU  = "cpu"
	DeviceCUDA = "cuda"
)

type ScorerConfig struct {
	ModelPath string `toml:"model_path" mapstructure:"model_path"`
	Workers   int    `toml:"workers" mapstructure:"workers"`
	InputSize int    `toml:"input_size" mapstructure:"input_size"`
}

type EnhancerConfig struct {
	ModelPath    string `toml:"model_path" mapstructure:"model_path"`
	Workers      int    `toml:"workers" mapstructure:"workers"`
	ScaleFactor  int    `toml:"scale_factor" mapstructure:"scale_factor"`
	MaxImageSize int    `toml:"max_image_size" mapstructure:"max_image_size"`
	TileSize     int    `toml:"tile_size" mapstructure:"tile_size"`
	TilePad      int    `toml:"tile_pad" mapstructure:"tile_pad"`
}

// EffectiveTileSize resolves tile_size = 0 to a per-device default.
// CPU inference gets smaller tiles to keep peak memory low.
func (e EnhancerConfig) EffectiveTileSize(device string) int {
	if e.TileSize > 0 {
		return e.TileSize
	}
	if device == DeviceCUDA {
		return 512
	}
	return 256
}

type Config struct {
	Token     string `toml:"token" mapstructure:"token"`
	JWTSecret string `toml:"jwt_secret" mapstructure:"jwt_secret"`
	Host      string `toml:"host" mapstructure:"host"`
	Port      string `toml:"port" mapstructure:"port"`
	Libonnx   string `toml:"libonnx" mapstructure:"libonnx"`
	Device    string `toml:"device" mapstructure:"device"`
	LogLevel  string `toml:"log_level" mapstructure:"log_level"`

	AllowOrigins           []string `toml:"allow_origins" mapstructure:"allow_origins"`
	MaxUploadSize          int64    `toml:"max_upload_size" mapstructure:"max_upload_size"`
	MaxImagePixels         int      `toml:"max_image_pixels" mapstructure:"max_image_pixels"`
	RequestTimeoutSeconds  int      `toml:"request_timeout_seconds" mapstructure:"request_timeout_seconds"`
	ShutdownTimeoutSeconds int      `toml:"shutdown_timeout_seconds" mapstructure:"shutdown_timeout_seconds"`

	Scorer   ScorerConfig   `toml:"scorer" mapstructure:"scorer"`
	Enhancer EnhancerConfig `toml:"enhancer" mapstructure:"enhancer"`
}

// Default returns the compiled-in configuration.
func Default() Config {
	return Config{
		Host:                   "0.0.0.0",
		Port:                   "8000",
		Device:                 DeviceCPU,
		LogLevel:               "info",
		AllowOrigins:           []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		MaxUploadSize:          32 << 20,
		MaxImagePixels:         40_000_000,
		RequestTimeoutSeconds:  300,
		ShutdownTimeoutSeconds: 15,
		Scorer: ScorerConfig{
			ModelPath: "models/quality_resnet18.onnx",
			Workers:   2,
			InputSize: 224,
		},
		Enhancer: EnhancerConfig{
			ModelPath:    "models/realesrgan_x4plus_anime_6b.onnx",
			Workers:      1,
			ScaleFactor:  4,
			MaxImageSize: 512,
			TilePad:      10,
		},
	}
}

func (c Config) Addr() string {
	return c.Host + ":" + c.Port
}

func (c Config) Validate() error {
	if c.Device != DeviceCPU && c.Device != DeviceCUDA {
		return fmt.Errorf("unsupported device %q, want %q or %q", c.Device, DeviceCPU, DeviceCUDA)
	}
	if c.Scorer.ModelPath == "" {
		return fmt.Errorf("scorer.model_path is required")
	}
	if c.Enhancer.ModelPath == "" {
		return fmt.Errorf("enhancer.model_path is required")
	}
	if c.Scorer.Workers < 1 {
		return fmt.Errorf("scorer.workers must be positive, got %d", c.Scorer.Workers)
	}
	if c.Scorer.InputSize < 1 {
		return fmt.Errorf("scorer.input_size must be positive, got %d", c.Scorer.InputSize)
	}
	if c.Enhancer.Workers < 1 {
		return fmt.Errorf("enhancer.workers must be positive, got %d", c.Enhancer.Workers)
	}
	if c.Enhancer.ScaleFactor < 1 {
		return fmt.Errorf("enhancer.scale_factor must be at least 1, got %d", c.Enhancer.ScaleFactor)
	}
	if c.Enhancer.MaxImageSize < 1 {
		return fmt.Errorf("enhancer.max_image_size must be positive, got %d", c.Enhancer.MaxImageSize)
	}
	if c.Enhancer.TileSize < 0 || c.Enhancer.TilePad < 0 {
		return fmt.Errorf("enhancer tile_size and tile_pad must not be negative")
	}
	if c.MaxImagePixels < 0 || c.MaxUploadSize < 0 {
		return fmt.Errorf("max_image_pixels and max_upload_size must not be negative")
	}
	return nil
}

// Load reads a TOML file on top of Default. A missing file yields the defaults.
func Load(path string) (Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return c, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return c, nil
}

var (
	cfg      Config
	loadOnce sync.Once
)

func C() Config {
	loadOnce.Do(func() {
		path := os.Getenv("KONARATE_CONFIG")
		if path == "" {
			path = "config.toml"
		}
		c, err := Load(path)
		if err != nil {
			panic(err)
		}
		cfg = c
	})
	return cfg
}
