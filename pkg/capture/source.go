package capture

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-intent/pkg/frame"
)

// ErrSourceClosed is returned by Read once the source is exhausted or closed.
var ErrSourceClosed = errors.New("capture: source closed")

// Frame is one captured BGR image plus its intensity plane. The caller owns
// it and must Close it after the cycle.
type Frame struct {
	Mat   gocv.Mat
	Index int
	At    time.Time

	gray *frame.Gray
}

// Intensity returns the single-channel plane used by the trust analyzer.
func (f *Frame) Intensity() *frame.Gray {
	return f.gray
}

// Time returns the capture timestamp.
func (f *Frame) Time() time.Time {
	return f.At
}

// Size returns the frame width and height in pixels.
func (f *Frame) Size() (int, int) {
	return f.Mat.Cols(), f.Mat.Rows()
}

// Close releases the underlying Mat.
func (f *Frame) Close() error {
	return f.Mat.Close()
}

// Source wraps a gocv VideoCapture.
type Source struct {
	config Config
	mu     sync.Mutex
	cap    *gocv.VideoCapture
	file   bool
	start  time.Time
	index  int
	closed bool
}

// Open starts capturing from cfg.Source.
func Open(cfg Config) (*Source, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("capture: invalid config: %v", errs)
	}

	var (
		vc  *gocv.VideoCapture
		err error
	)
	id, device := cfg.Device()
	if device {
		vc, err = gocv.VideoCaptureDevice(id)
	} else {
		vc, err = gocv.VideoCaptureFile(cfg.Source)
	}
	if err != nil {
		return nil, fmt.Errorf("capture: open %s: %w", cfg.Source, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("capture: cannot open %s", cfg.Source)
	}

	if device && cfg.Width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}

	return &Source{
		config: cfg,
		cap:    vc,
		file:   !device,
		start:  time.Now(),
	}, nil
}

// FPS returns the source frame rate, or fallback when the backend does not
// report one.
func (s *Source) FPS(fallback float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fps := s.cap.Get(gocv.VideoCaptureFPS); fps > 0 {
		return fps
	}
	return fallback
}

// Read grabs the next frame. File sources are timestamped from the stream
// position so replays are reproducible.
func (s *Source) Read() (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSourceClosed
	}

	img := gocv.NewMat()
	if ok := s.cap.Read(&img); !ok || img.Empty() {
		if s.file && s.config.Loop {
			s.cap.Set(gocv.VideoCapturePosFrames, 0)
			if ok := s.cap.Read(&img); ok && !img.Empty() {
				return s.wrap(img)
			}
		}
		img.Close()
		return nil, ErrSourceClosed
	}
	return s.wrap(img)
}

func (s *Source) wrap(img gocv.Mat) (*Frame, error) {
	at := time.Now()
	if s.file {
		ms := s.cap.Get(gocv.VideoCapturePosMsec)
		at = s.start.Add(time.Duration(ms * float64(time.Millisecond)))
	}

	f, err := NewFrame(img, s.index+1, at)
	if err != nil {
		img.Close()
		return nil, err
	}
	s.index++
	return f, nil
}

// NewFrame wraps img, which the frame takes ownership of, and computes its
// intensity plane.
func NewFrame(img gocv.Mat, index int, at time.Time) (*Frame, error) {
	gray, err := Intensity(img)
	if err != nil {
		return nil, err
	}
	return &Frame{Mat: img, Index: index, At: at, gray: gray}, nil
}

// Intensity converts a BGR Mat to a luma plane.
func Intensity(img gocv.Mat) (*frame.Gray, error) {
	if img.Empty() {
		return nil, frame.ErrEmptyFrame
	}

	g := gocv.NewMat()
	defer g.Close()
	gocv.CvtColor(img, &g, gocv.ColorBGRToGray)

	return frame.NewGray(g.Cols(), g.Rows(), g.ToBytes())
}

// Close stops the capture. Further reads return ErrSourceClosed.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.cap.Close()
}
