// Package codec turns uploaded bytes into RGB pixel grids and back.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"

	"github.com/disintegration/imaging"
	_ "github.com/gen2brain/avif"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	ErrDecode        = errors.New("invalid image data")
	ErrImageTooLarge = errors.New("image exceeds pixel limit")
)

// Info describes a decoded image as it was uploaded.
type Info struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Format   string `json:"format"`
	Mode     string `json:"mode"`
	Channels int    `json:"channels"`
}

// Decoded is a three channel pixel grid. Alpha is always opaque.
type Decoded struct {
	Image *image.NRGBA
	Info  Info
}

// Decode parses data into an RGB grid. maxPixels <= 0 disables the size guard.
func Decode(data []byte, maxPixels int) (*Decoded, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty image %dx%d", ErrDecode, cfg.Width, cfg.Height)
	}
	if maxPixels > 0 && cfg.Width*cfg.Height > maxPixels {
		return nil, fmt.Errorf("%w: %dx%d > %d pixels", ErrImageTooLarge, cfg.Width, cfg.Height, maxPixels)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	b := img.Bounds()
	return &Decoded{
		Image: ToRGB(img),
		Info: Info{
			Width:    b.Dx(),
			Height:   b.Dy(),
			Format:   strings.ToUpper(format),
			Mode:     colorMode(img),
			Channels: 3,
		},
	}, nil
}

// ToRGB copies img into a zero-origin NRGBA with alpha dropped.
func ToRGB(img image.Image) *image.NRGBA {
	out := imaging.Clone(img)
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = 0xff
	}
	return out
}

// FitWithin downscales img proportionally so that neither side exceeds ceiling.
func FitWithin(img *image.NRGBA, ceiling int) (*image.NRGBA, bool) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	longest := max(w, h)
	if ceiling <= 0 || longest <= ceiling {
		return img, false
	}
	ratio := float64(ceiling) / float64(longest)
	nw, nh := ceiling, ceiling
	if w >= h {
		nh = max(int(float64(h)*ratio), 1)
	} else {
		nw = max(int(float64(w)*ratio), 1)
	}
	return imaging.Resize(img, nw, nh, imaging.Lanczos), true
}

// EncodePNG writes img as a maximally compressed PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression)); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// colorMode names the source color model the way image tooling usually does.
func colorMode(img image.Image) string {
	if _, ok := img.ColorModel().(color.Palette); ok {
		return "P"
	}
	switch img.ColorModel() {
	case color.GrayModel:
		return "L"
	case color.Gray16Model:
		return "I;16"
	case color.CMYKModel:
		return "CMYK"
	case color.YCbCrModel:
		return "RGB"
	case color.NYCbCrAModel:
		return "RGBA"
	case color.AlphaModel, color.Alpha16Model:
		return "A"
	}
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return "RGB"
	}
	return "RGBA"
}
