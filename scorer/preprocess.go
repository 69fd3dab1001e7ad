package scorer

import (
	"image"

	"github.com/disintegration/imaging"
)

// Normalisation constants the scoring model was trained with.
var (
	ImageNetMean = [3]float32{0.485, 0.456, 0.406}
	ImageNetStd  = [3]float32{0.229, 0.224, 0.225}
)

// ScaleScore maps the raw regression output onto 0..10.
func ScaleScore(raw float64) float64 {
	return min(max((1.5*raw+1)*4, 0), 10)
}

// Preprocess squashes img to size x size and returns a normalised CHW tensor.
func Preprocess(img image.Image, size int) []float32 {
	resized := imaging.Resize(img, size, size, imaging.Linear)

	plane := size * size
	out := make([]float32, 3*plane)
	for y := range size {
		row := resized.Pix[y*resized.Stride:]
		for x := range size {
			px := row[x*4 : x*4+3]
			i := y*size + x
			for c := range 3 {
				out[c*plane+i] = (float32(px[c])/255.0 - ImageNetMean[c]) / ImageNetStd[c]
			}
		}
	}
	return out
}
