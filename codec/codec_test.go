package codec

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeTestImage(t *testing.T, img image.Image, format string) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	var err error
	switch format {
	case "png":
		err = png.Encode(buf, img)
	case "jpeg":
		err = jpeg.Encode(buf, img, nil)
	default:
		t.Fatalf("unsupported format: %s", format)
	}
	require.NoError(t, err)
	return buf.Bytes()
}

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestDecode(t *testing.T) {
	t.Run("png with alpha", func(t *testing.T) {
		data := encodeTestImage(t, solid(12, 7, color.NRGBA{200, 100, 50, 128}), "png")
		d, err := Decode(data, 0)
		require.NoError(t, err)
		assert.Equal(t, Info{Width: 12, Height: 7, Format: "PNG", Mode: "RGBA", Channels: 3}, d.Info)
		assert.Equal(t, image.Rect(0, 0, 12, 7), d.Image.Bounds())
		assert.Equal(t, color.NRGBA{200, 100, 50, 255}, d.Image.NRGBAAt(3, 3))
	})

	t.Run("jpeg", func(t *testing.T) {
		data := encodeTestImage(t, solid(16, 16, color.NRGBA{255, 0, 0, 255}), "jpeg")
		d, err := Decode(data, 0)
		require.NoError(t, err)
		assert.Equal(t, "JPEG", d.Info.Format)
		assert.Equal(t, "RGB", d.Info.Mode)
	})

	t.Run("grayscale", func(t *testing.T) {
		data := encodeTestImage(t, image.NewGray(image.Rect(0, 0, 4, 4)), "png")
		d, err := Decode(data, 0)
		require.NoError(t, err)
		assert.Equal(t, "L", d.Info.Mode)
		assert.Equal(t, 3, d.Info.Channels)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := Decode([]byte("this is not an image"), 0)
		assert.ErrorIs(t, err, ErrDecode)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := Decode(nil, 0)
		assert.ErrorIs(t, err, ErrDecode)
	})

	t.Run("pixel limit", func(t *testing.T) {
		data := encodeTestImage(t, solid(100, 100, color.NRGBA{A: 255}), "png")
		_, err := Decode(data, 9_999)
		assert.ErrorIs(t, err, ErrImageTooLarge)
		_, err = Decode(data, 10_000)
		assert.NoError(t, err)
	})
}

func TestFitWithin(t *testing.T) {
	tests := []struct {
		name         string
		w, h         int
		ceiling      int
		wantW, wantH int
		resized      bool
	}{
		{"below", 300, 200, 512, 300, 200, false},
		{"exact", 512, 100, 512, 512, 100, false},
		{"wide", 1024, 600, 512, 512, 300, true},
		{"tall", 333, 1000, 512, 170, 512, true},
		{"sliver", 5000, 2, 512, 512, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, resized := FitWithin(solid(tt.w, tt.h, color.NRGBA{A: 255}), tt.ceiling)
			assert.Equal(t, tt.resized, resized)
			assert.Equal(t, tt.wantW, out.Bounds().Dx())
			assert.Equal(t, tt.wantH, out.Bounds().Dy())
		})
	}
}

func TestEncodePNGRoundTrip(t *testing.T) {
	src := solid(9, 5, color.NRGBA{1, 2, 3, 255})
	data, err := EncodePNG(src)
	require.NoError(t, err)

	d, err := Decode(data, 0)
	require.NoError(t, err)
	assert.Equal(t, "PNG", d.Info.Format)
	assert.Equal(t, 9, d.Info.Width)
	assert.Equal(t, 5, d.Info.Height)
	assert.Equal(t, src.Pix, d.Image.Pix)
}
