package detection

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// HOG uses OpenCV's default people detector. It needs no model file and
// reports a fixed confidence.
type HOG struct {
	mu  sync.Mutex
	hog gocv.HOGDescriptor
}

// hogConfidence is reported for every HOG hit; the descriptor does not
// expose per-box weights.
const hogConfidence = 0.6

// NewHOG creates a HOG people detector.
func NewHOG() *HOG {
	hog := gocv.NewHOGDescriptor()
	hog.SetSVMDetector(gocv.HOGDefaultPeopleDetector())
	return &HOG{hog: hog}
}

// Detect returns the people found in img.
func (d *HOG) Detect(img gocv.Mat) ([]Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if img.Empty() {
		return nil, fmt.Errorf("detection: empty image")
	}

	rects := d.hog.DetectMultiScale(img)
	w, h := float64(img.Cols()), float64(img.Rows())

	dets := make([]Detection, 0, len(rects))
	for _, r := range rects {
		dets = append(dets, normalize(r, hogConfidence, w, h))
	}
	return dets, nil
}

// Close releases the descriptor.
func (d *HOG) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hog.Close()
}
