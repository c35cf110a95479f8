// Package detection finds people in camera frames and reduces the best
// detection to the single subject position tracked by the core.
package detection

import (
	"errors"
	"fmt"
	"io"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-intent/pkg/perimeter"
)

// ErrModelNotFound is returned when the configured model file is missing.
var ErrModelNotFound = errors.New("detection: model file not found")

// ShoulderLine is the fraction of box height, from the top, where the
// shoulders of an upright person sit. The subject position is taken there.
const ShoulderLine = 0.2

// Detection is a bounding box normalized to the frame (0-1).
type Detection struct {
	X, Y       float64 // top-left corner
	W, H       float64
	Confidence float64
}

// Center returns the center point of the detection
func (d Detection) Center() (x, y float64) {
	return d.X + d.W/2, d.Y + d.H/2
}

// Area returns the area of the bounding box
func (d Detection) Area() float64 {
	return d.W * d.H
}

// Detector finds people in a BGR frame.
type Detector interface {
	Detect(img gocv.Mat) ([]Detection, error)
	io.Closer
}

// Config selects and tunes the detector backend.
type Config struct {
	Kind       string  `koanf:"kind" validate:"oneof=yolo hog"`
	ModelPath  string  `koanf:"model_path"`
	Confidence float32 `koanf:"confidence" validate:"gt=0,lte=1"`
	NMS        float32 `koanf:"nms" validate:"gt=0,lte=1"`
	InputSize  int     `koanf:"input_size" validate:"gte=32"`
}

// DefaultConfig uses YOLOv8n at 640x640.
func DefaultConfig() Config {
	return Config{
		Kind:       "yolo",
		ModelPath:  "models/yolov8n.onnx",
		Confidence: 0.5,
		NMS:        0.45,
		InputSize:  640,
	}
}

// New builds the detector named by cfg.Kind.
func New(cfg Config) (Detector, error) {
	switch cfg.Kind {
	case "yolo":
		return NewYOLO(cfg)
	case "hog":
		return NewHOG(), nil
	default:
		return nil, fmt.Errorf("detection: unknown detector kind %q", cfg.Kind)
	}
}

// SelectBest picks the most likely subject among detections.
// Priority: confidence * 0.7 + relative area * 0.3
func SelectBest(dets []Detection) *Detection {
	if len(dets) == 0 {
		return nil
	}

	if len(dets) == 1 {
		return &dets[0]
	}

	maxArea := 0.0
	for _, d := range dets {
		if d.Area() > maxArea {
			maxArea = d.Area()
		}
	}

	bestScore := -1.0
	var best *Detection

	for i := range dets {
		score := dets[i].Confidence * 0.7
		if maxArea > 0 {
			score += (dets[i].Area() / maxArea) * 0.3
		}
		if score > bestScore {
			bestScore = score
			best = &dets[i]
		}
	}

	return best
}

// BodyCenter returns the upper-body center of the best detection in pixel
// coordinates of a width x height frame, or perimeter.Absent when there are
// no detections. Coordinates are truncated to whole pixels.
func BodyCenter(dets []Detection, width, height int) perimeter.Position {
	best := SelectBest(dets)
	if best == nil {
		return perimeter.Absent
	}
	x := float64(int((best.X + best.W/2) * float64(width)))
	y := float64(int((best.Y + best.H*ShoulderLine) * float64(height)))
	return perimeter.At(x, y)
}

// Locator reduces a Detector's output to one subject position per frame.
type Locator struct {
	detector Detector
}

// NewLocator wraps d.
func NewLocator(d Detector) *Locator {
	return &Locator{detector: d}
}

// Locate runs the detector on img and returns the subject position.
func (l *Locator) Locate(img gocv.Mat) (perimeter.Position, error) {
	if img.Empty() {
		return perimeter.Absent, nil
	}
	dets, err := l.detector.Detect(img)
	if err != nil {
		return perimeter.Absent, err
	}
	return BodyCenter(dets, img.Cols(), img.Rows()), nil
}

// Close releases the underlying detector.
func (l *Locator) Close() error {
	return l.detector.Close()
}
