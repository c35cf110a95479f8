package detection

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// personClass is the COCO index of "person"; YOLOv8 emits its score in the
// first class row after the four box rows.
const personClass = 0

// boxRows precede the class scores in each YOLOv8 candidate column.
const boxRows = 4

// YOLO runs a YOLOv8 ONNX model and keeps only person detections.
type YOLO struct {
	mu     sync.Mutex
	model  gocv.Net
	config Config
	input  image.Point
}

// NewYOLO loads the model at cfg.ModelPath.
func NewYOLO(cfg Config) (*YOLO, error) {
	if _, err := os.Stat(cfg.ModelPath); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, cfg.ModelPath)
	}

	model := gocv.ReadNetFromONNX(cfg.ModelPath)
	if model.Empty() {
		return nil, fmt.Errorf("detection: cannot load onnx model %s", cfg.ModelPath)
	}
	model.SetPreferableBackend(gocv.NetBackendDefault)
	model.SetPreferableTarget(gocv.NetTargetCPU)

	return &YOLO{
		model:  model,
		config: cfg,
		input:  image.Pt(cfg.InputSize, cfg.InputSize),
	}, nil
}

// Detect returns the people found in img, after non-maximum suppression.
func (y *YOLO) Detect(img gocv.Mat) ([]Detection, error) {
	if img.Empty() {
		return nil, errors.New("detection: empty image")
	}

	y.mu.Lock()
	defer y.mu.Unlock()

	blob := gocv.BlobFromImage(img, 1.0/255.0, y.input, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()
	y.model.SetInput(blob, "")

	out := y.model.Forward("")
	defer out.Close()

	t, err := newTensor(out)
	if err != nil {
		return nil, err
	}
	return y.people(t, img.Cols(), img.Rows()), nil
}

// tensor views a [1, 4+classes, candidates] output as rows of candidates.
type tensor struct {
	data       []float32
	candidates int
}

func newTensor(out gocv.Mat) (tensor, error) {
	data, err := out.DataPtrFloat32()
	if err != nil {
		return tensor{}, fmt.Errorf("detection: read yolo output: %w", err)
	}
	return tensor{data: data, candidates: out.Cols()}, nil
}

func (t tensor) at(row, candidate int) float32 {
	return t.data[row*t.candidates+candidate]
}

// people scales every confident person box back to frame pixels and runs NMS.
func (y *YOLO) people(t tensor, width, height int) []Detection {
	sx := float32(width) / float32(y.config.InputSize)
	sy := float32(height) / float32(y.config.InputSize)

	var boxes []image.Rectangle
	var scores []float32
	for i := 0; i < t.candidates; i++ {
		score := t.at(boxRows+personClass, i)
		if score < y.config.Confidence {
			continue
		}
		cx, cy := t.at(0, i), t.at(1, i)
		bw, bh := t.at(2, i), t.at(3, i)

		boxes = append(boxes, image.Rect(
			int((cx-bw/2)*sx), int((cy-bh/2)*sy),
			int((cx+bw/2)*sx), int((cy+bh/2)*sy),
		))
		scores = append(scores, score)
	}
	if len(boxes) == 0 {
		return nil
	}

	keep := gocv.NMSBoxes(boxes, scores, y.config.Confidence, y.config.NMS)
	dets := make([]Detection, 0, len(keep))
	for _, k := range keep {
		dets = append(dets, normalize(boxes[k], float64(scores[k]), float64(width), float64(height)))
	}
	return dets
}

// Close releases the network.
func (y *YOLO) Close() error {
	y.mu.Lock()
	defer y.mu.Unlock()
	return y.model.Close()
}

// normalize converts a pixel box to frame-relative coordinates.
func normalize(box image.Rectangle, confidence, width, height float64) Detection {
	return Detection{
		X:          float64(box.Min.X) / width,
		Y:          float64(box.Min.Y) / height,
		W:          float64(box.Dx()) / width,
		H:          float64(box.Dy()) / height,
		Confidence: confidence,
	}
}
