package record

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-intent/pkg/alert"
)

type fakeWriter struct {
	writes int
	closed bool
}

func (w *fakeWriter) Write(gocv.Mat) error { w.writes++; return nil }
func (w *fakeWriter) Close() error         { w.closed = true; return nil }

func newTestRecorder(t *testing.T) (*Recorder, *[]*fakeWriter, *[]string) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Dir = t.TempDir()

	r, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var writers []*fakeWriter
	var paths []string
	r.WithOpener(func(path, codec string, fps float64, width, height int) (Writer, error) {
		if codec != "mp4v" || fps != 20 || width != 64 || height != 48 {
			t.Errorf("open(%s, %v, %dx%d): unexpected parameters", codec, fps, width, height)
		}
		w := &fakeWriter{}
		writers = append(writers, w)
		paths = append(paths, path)
		return w, nil
	})
	return r, &writers, &paths
}

func TestRecorder_EpisodeLifecycle(t *testing.T) {
	r, writers, paths := newTestRecorder(t)

	img := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer img.Close()

	start := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	r.Observe(nil, false, img)
	if r.Recording() {
		t.Fatal("should not record before an alert")
	}

	r.Observe(&alert.Event{ID: "0123456789abcdef", Kind: alert.Entered, StartedAt: start}, true, img)
	r.Observe(nil, true, img)
	r.Observe(nil, true, img)
	if !r.Recording() {
		t.Fatal("should be recording during an alert")
	}

	r.Observe(&alert.Event{ID: "0123456789abcdef", Kind: alert.Exited}, false, img)
	if r.Recording() {
		t.Error("should stop recording after the alert clears")
	}

	if len(*writers) != 1 {
		t.Fatalf("got %d clips, want 1", len(*writers))
	}
	w := (*writers)[0]
	if w.writes != 3 || !w.closed {
		t.Errorf("got %d writes closed=%v, want 3 true", w.writes, w.closed)
	}
	if got := filepath.Base((*paths)[0]); got != "alert_20260506_070809_01234567.mp4" {
		t.Errorf("clip name = %s", got)
	}
}

func TestRecorder_CloseFinishesClip(t *testing.T) {
	r, writers, _ := newTestRecorder(t)

	img := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer img.Close()

	r.Observe(&alert.Event{ID: "a", Kind: alert.Entered, StartedAt: time.Now()}, true, img)
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !(*writers)[0].closed {
		t.Error("Close should finish the open clip")
	}
}
