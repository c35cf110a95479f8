// Package frametest builds synthetic intensity planes for tests.
package frametest

import "github.com/teslashibe/go-intent/pkg/frame"

// Uniform returns a plane filled with a single intensity.
func Uniform(width, height int, v uint8) *frame.Gray {
	pix := make([]uint8, width*height)
	for i := range pix {
		pix[i] = v
	}
	g, err := frame.NewGray(width, height, pix)
	if err != nil {
		panic(err)
	}
	return g
}

// Ramp returns a plane whose pixels count up from offset, wrapping at 256.
// Different offsets give distinct, high-entropy frames.
func Ramp(width, height, offset int) *frame.Gray {
	g := Uniform(width, height, 0)
	for i := range g.Pix {
		g.Pix[i] = uint8((i + offset) % 256)
	}
	return g
}
