package enhancer

import "time"

type Size struct {
	Width  int
	Height int
}

func (s Size) Area() int { return s.Width * s.Height }

// SourceInfo describes the upload and what was actually fed to the network.
type SourceInfo struct {
	OriginalWidth   int    `json:"original_width"`
	OriginalHeight  int    `json:"original_height"`
	Format          string `json:"format"`
	Mode            string `json:"mode"`
	Channels        int    `json:"channels"`
	ProcessedWidth  int    `json:"processed_width"`
	ProcessedHeight int    `json:"processed_height"`
	WasResized      bool   `json:"was_resized"`
}

// Result of one enhancement. OriginalSize is the network input, after any
// downscale, so EnhancedSize is always OriginalSize times ScaleFactor.
type Result struct {
	Image          []byte
	Source         SourceInfo
	OriginalSize   Size
	EnhancedSize   Size
	ScaleFactor    int
	SizeIncrease   float64
	InferenceTime  time.Duration
	ProcessingTime time.Duration
}

type ModelInfo struct {
	ModelType      string `json:"model_type"`
	Architecture   string `json:"architecture"`
	ScaleFactor    int    `json:"scale_factor"`
	Device         string `json:"device"`
	TileProcessing bool   `json:"tile_processing"`
	TileSize       int    `json:"tile_size"`
	TilePad        int    `json:"tile_pad"`
	MaxInputSize   int    `json:"max_input_size"`
	OutputFormat   string `json:"output_format"`
}
