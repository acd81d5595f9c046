package descriptor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// LocalProvider computes a frequency-domain descriptor without any external
// service: the image is scaled down, converted to grayscale and transformed
// with a DCT; the low-frequency coefficients (which survive re-encoding,
// scaling and mild cropping) form the feature vector.
type LocalProvider struct{}

func NewLocalProvider() *LocalProvider {
	return &LocalProvider{}
}

func (p *LocalProvider) Name() string {
	return "local-dct"
}

const (
	dctInputSize = 32 // images are scaled to dctInputSize x dctInputSize before the transform
	dctBlockSize = 8  // low-frequency block kept as the descriptor
)

// Vector decodes the image and returns its normalized DCT descriptor.
func (p *LocalProvider) Vector(_ context.Context, imageData []byte) ([]float32, error) {
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	gray := toGrayscale(resizeImage(img, dctInputSize, dctInputSize))
	dct := computeDCT(gray)

	// Low-frequency block, skipping the DC component (0,0): it only encodes
	// overall brightness and would dominate the cosine.
	vec := make([]float32, 0, dctBlockSize*dctBlockSize-1)
	for u := range dctBlockSize {
		for v := range dctBlockSize {
			if u == 0 && v == 0 {
				continue
			}
			vec = append(vec, float32(dct[u][v]))
		}
	}

	normalize(vec)
	return vec, nil
}

// resizeImage scales an image to the specified dimensions.
func resizeImage(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// toGrayscale converts an image to a 2D array of grayscale values (0-255).
func toGrayscale(img *image.RGBA) [][]float64 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	gray := make([][]float64, width)
	for x := range width {
		gray[x] = make([]float64, height)
		for y := range height {
			r, g, b, _ := img.At(x, y).RGBA()
			// ITU-R BT.601 luma formula.
			luma := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
			gray[x][y] = luma
		}
	}

	return gray
}

// computeDCT computes the Discrete Cosine Transform of a grayscale image.
func computeDCT(gray [][]float64) [][]float64 {
	size := len(gray)
	dct := make([][]float64, size)
	for i := range dct {
		dct[i] = make([]float64, size)
	}

	// Precompute cosine values for efficiency.
	cosTable := make([][]float64, size)
	for i := range cosTable {
		cosTable[i] = make([]float64, size)
		for j := range size {
			cosTable[i][j] = math.Cos(math.Pi * float64(i) * (2*float64(j) + 1) / (2 * float64(size)))
		}
	}

	// DCT-II formula.
	for u := range size {
		for v := range size {
			var sum float64
			for x := range size {
				for y := range size {
					sum += gray[x][y] * cosTable[u][x] * cosTable[v][y]
				}
			}
			dct[u][v] = sum
		}
	}

	return dct
}
