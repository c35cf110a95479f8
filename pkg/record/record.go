// Package record writes a video clip for every alert episode.
package record

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-intent/pkg/alert"
)

// Config controls alert clip recording.
type Config struct {
	Enabled bool    `koanf:"enabled"`
	Dir     string  `koanf:"dir" validate:"required_if=Enabled true"`
	FPS     float64 `koanf:"fps" validate:"gt=0"`
	Codec   string  `koanf:"codec" validate:"len=4"`
}

// DefaultConfig records mp4v clips at 20 fps into ./recordings.
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Dir:     "recordings",
		FPS:     20,
		Codec:   "mp4v",
	}
}

// Writer is the part of gocv.VideoWriter the recorder uses.
type Writer interface {
	Write(img gocv.Mat) error
	Close() error
}

// OpenFunc opens a clip writer.
type OpenFunc func(path, codec string, fps float64, width, height int) (Writer, error)

func openVideoWriter(path, codec string, fps float64, width, height int) (Writer, error) {
	w, err := gocv.VideoWriterFile(path, codec, fps, width, height, true)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Recorder starts a clip when an alert is raised, appends every frame while
// it is active and closes the clip when the alert clears.
type Recorder struct {
	config Config
	logger *slog.Logger
	open   OpenFunc

	mu     sync.Mutex
	writer Writer
	path   string
	frames int
}

// New creates the output directory and returns a recorder.
func New(cfg Config, logger *slog.Logger) (*Recorder, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("record: create %s: %w", cfg.Dir, err)
	}
	return &Recorder{config: cfg, logger: logger, open: openVideoWriter}, nil
}

// WithOpener replaces the writer factory.
func (r *Recorder) WithOpener(open OpenFunc) *Recorder {
	r.open = open
	return r
}

// ClipPath returns the file name used for an alert started at t.
func (r *Recorder) ClipPath(id string, t time.Time) string {
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	return filepath.Join(r.config.Dir, fmt.Sprintf("alert_%s_%s.mp4", t.Format("20060102_150405"), short))
}

// Observe reacts to one cycle: the optional alert event, whether an alert is
// active and the frame to append.
func (r *Recorder) Observe(ev *alert.Event, active bool, img gocv.Mat) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ev != nil && ev.Kind == alert.Entered {
		r.start(ev, img)
	}

	if active && r.writer != nil && !img.Empty() {
		if err := r.writer.Write(img); err != nil {
			r.logger.Warn("clip write failed", "path", r.path, "error", err)
		} else {
			r.frames++
		}
	}

	if ev != nil && ev.Kind == alert.Exited {
		r.stop()
	}
}

func (r *Recorder) start(ev *alert.Event, img gocv.Mat) {
	if r.writer != nil {
		r.stop()
	}
	if img.Empty() {
		return
	}

	path := r.ClipPath(ev.ID, ev.StartedAt)
	w, err := r.open(path, r.config.Codec, r.config.FPS, img.Cols(), img.Rows())
	if err != nil {
		r.logger.Error("clip open failed", "path", path, "error", err)
		return
	}
	r.writer, r.path, r.frames = w, path, 0
	r.logger.Info("recording started", "path", path)
}

func (r *Recorder) stop() {
	if r.writer == nil {
		return
	}
	if err := r.writer.Close(); err != nil {
		r.logger.Warn("clip close failed", "path", r.path, "error", err)
	}
	r.logger.Info("recording stopped", "path", r.path, "frames", r.frames)
	r.writer, r.path = nil, ""
}

// Recording reports whether a clip is open.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writer != nil
}

// Close finishes any open clip.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stop()
	return nil
}
