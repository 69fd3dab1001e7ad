package enhancer

import (
	"fmt"
	"image"
	"math"
)

// tiler splits a CHW image into tile x tile blocks, runs each block with pad
// pixels of context on every side and stitches the un-padded centres back.
type tiler struct {
	net   Upscaler
	scale int
	tile  int
	pad   int
}

func (t tiler) run(src []float32, w, h int) ([]float32, error) {
	s := t.scale
	tile := t.tile
	if tile <= 0 {
		tile = max(w, h)
	}
	maxW := min(tile+2*t.pad, w)
	maxH := min(tile+2*t.pad, h)
	inBuf := make([]float32, 3*maxW*maxH)
	outBuf := make([]float32, 3*maxW*s*maxH*s)

	ow, oh := w*s, h*s
	dst := make([]float32, 3*ow*oh)

	for y0 := 0; y0 < h; y0 += tile {
		for x0 := 0; x0 < w; x0 += tile {
			x1, y1 := min(x0+tile, w), min(y0+tile, h)
			px0, py0 := max(x0-t.pad, 0), max(y0-t.pad, 0)
			px1, py1 := min(x1+t.pad, w), min(y1+t.pad, h)
			pw, ph := px1-px0, py1-py0

			in := inBuf[:3*pw*ph]
			for c := range 3 {
				for y := range ph {
					srcRow := src[c*w*h+(py0+y)*w+px0:]
					copy(in[c*pw*ph+y*pw:c*pw*ph+(y+1)*pw], srcRow[:pw])
				}
			}

			out := outBuf[:3*pw*s*ph*s]
			if err := t.net.Upscale(in, pw, ph, out); err != nil {
				return nil, fmt.Errorf("tile at (%d,%d): %w", x0, y0, err)
			}

			tw, th := pw*s, ph*s
			offX, offY := (x0-px0)*s, (y0-py0)*s
			cw, ch := (x1-x0)*s, (y1-y0)*s
			for c := range 3 {
				for y := range ch {
					from := out[c*tw*th+(offY+y)*tw+offX:]
					to := dst[c*ow*oh+(y0*s+y)*ow+x0*s:]
					copy(to[:cw], from[:cw])
				}
			}
		}
	}
	return dst, nil
}

// toCHW converts an opaque NRGBA image into planar RGB samples in [0,1].
func toCHW(img *image.NRGBA) []float32 {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	plane := w * h
	out := make([]float32, 3*plane)
	for y := range h {
		row := img.Pix[y*img.Stride:]
		for x := range w {
			for c := range 3 {
				out[c*plane+y*w+x] = float32(row[x*4+c]) / 255.0
			}
		}
	}
	return out
}

// fromCHW quantises planar samples back to 8 bit, clamping to [0,1] first.
func fromCHW(data []float32, w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	plane := w * h
	for y := range h {
		row := img.Pix[y*img.Stride:]
		for x := range w {
			for c := range 3 {
				row[x*4+c] = quantize(data[c*plane+y*w+x])
			}
			row[x*4+3] = 0xff
		}
	}
	return img
}

func quantize(v float32) uint8 {
	if math.IsNaN(float64(v)) || v <= 0 {
		return 0
	}
	if v >= 1 {
		return 0xff
	}
	return uint8(math.Round(float64(v) * 255))
}
