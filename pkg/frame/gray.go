// Package frame holds single-channel intensity planes derived from video
// frames, and the small statistics the feed-trust checks need from them.
package frame

import (
	"errors"
	"math"
)

// ErrEmptyFrame is returned when a frame has no pixels.
var ErrEmptyFrame = errors.New("frame: empty frame")

// Gray is an 8-bit intensity plane in row-major order.
type Gray struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewGray wraps pix as a width x height plane.
func NewGray(width, height int, pix []uint8) (*Gray, error) {
	if width <= 0 || height <= 0 || len(pix) < width*height {
		return nil, ErrEmptyFrame
	}
	return &Gray{Width: width, Height: height, Pix: pix[:width*height]}, nil
}

// At returns the intensity at (x, y).
func (g *Gray) At(x, y int) uint8 {
	return g.Pix[y*g.Width+x]
}

// Resize scales the plane to width x height with bilinear interpolation.
func (g *Gray) Resize(width, height int) *Gray {
	out := &Gray{Width: width, Height: height, Pix: make([]uint8, width*height)}
	sx := float64(g.Width) / float64(width)
	sy := float64(g.Height) / float64(height)

	for y := 0; y < height; y++ {
		fy := (float64(y)+0.5)*sy - 0.5
		y0, wy := splitCoord(fy, g.Height)
		y1 := min(y0+1, g.Height-1)
		for x := 0; x < width; x++ {
			fx := (float64(x)+0.5)*sx - 0.5
			x0, wx := splitCoord(fx, g.Width)
			x1 := min(x0+1, g.Width-1)

			top := float64(g.At(x0, y0))*(1-wx) + float64(g.At(x1, y0))*wx
			bottom := float64(g.At(x0, y1))*(1-wx) + float64(g.At(x1, y1))*wx
			out.Pix[y*width+x] = uint8(math.Round(top*(1-wy) + bottom*wy))
		}
	}
	return out
}

func splitCoord(f float64, size int) (int, float64) {
	if f <= 0 {
		return 0, 0
	}
	i := int(f)
	if i >= size-1 {
		return size - 1, 0
	}
	return i, f - float64(i)
}

// Histogram returns the 256-bin intensity histogram.
func (g *Gray) Histogram() [256]int {
	var h [256]int
	for _, v := range g.Pix {
		h[v]++
	}
	return h
}

// MeanAbsDiff returns the mean absolute per-pixel difference between two
// planes of equal size. Planes of different size are compared after resizing
// other to g's dimensions.
func (g *Gray) MeanAbsDiff(other *Gray) float64 {
	if other.Width != g.Width || other.Height != g.Height {
		other = other.Resize(g.Width, g.Height)
	}
	if len(g.Pix) == 0 {
		return 0
	}

	var sum int
	for i, v := range g.Pix {
		d := int(v) - int(other.Pix[i])
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return float64(sum) / float64(len(g.Pix))
}

// Clone returns a deep copy.
func (g *Gray) Clone() *Gray {
	pix := make([]uint8, len(g.Pix))
	copy(pix, g.Pix)
	return &Gray{Width: g.Width, Height: g.Height, Pix: pix}
}
