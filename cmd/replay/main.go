// replay: runs the intent pipeline over a recorded video as fast as it can
// decode and prints every alert, for tuning thresholds offline.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/teslashibe/go-intent/internal/config"
	"github.com/teslashibe/go-intent/internal/log"
	"github.com/teslashibe/go-intent/pkg/alert"
	"github.com/teslashibe/go-intent/pkg/capture"
	"github.com/teslashibe/go-intent/pkg/detection"
	"github.com/teslashibe/go-intent/pkg/perimeter"
	"github.com/teslashibe/go-intent/pkg/pipeline"
)

func main() {
	configPath := flag.String("config", "", "Config file for thresholds and detector")
	detector := flag.String("detector", "", "Person detector: yolo or hog")
	every := flag.Int("every", 0, "Print a status line every N frames (0 = alerts only)")
	asJSON := flag.Bool("json", false, "Emit one JSON result per printed line")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: replay [flags] <video>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	if err := run(flag.Arg(0), *configPath, *detector, *every, *asJSON); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func run(path, configPath, detector string, every int, asJSON bool) error {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}
	if detector != "" {
		cfg.Detector.Kind = detector
	}
	log.Init(cfg.Log.Level)

	src, err := capture.Open(capture.Config{Source: path})
	if err != nil {
		return err
	}
	defer src.Close()

	det, err := detection.New(cfg.Detector)
	if err != nil {
		return err
	}
	locator := detection.NewLocator(det)
	defer locator.Close()

	first, err := src.Read()
	if err != nil {
		return fmt.Errorf("read first frame: %w", err)
	}
	width, height := first.Size()
	videoStart := first.Time()
	per := perimeter.New(width, height, cfg.Perimeter)

	enc := json.NewEncoder(os.Stdout)
	emit := func(r pipeline.Result) {
		if asJSON {
			enc.Encode(r)
			return
		}
		fmt.Println(describe(r))
	}

	pipe := pipeline.New(cfg.Pipeline(),
		pipeline.DetectorFunc[*capture.Frame](func(f *capture.Frame) (perimeter.Position, error) {
			return locator.Locate(f.Mat)
		}),
		per,
		pipeline.WithLogger[*capture.Frame](log.Component("pipeline")),
		pipeline.WithSinks[*capture.Frame](pipeline.SinkFunc[*capture.Frame](func(f *capture.Frame, r pipeline.Result) {
			// Finish reports with a nil frame, always with an event.
			if r.Event != nil || (every > 0 && f.Index%every == 0) {
				emit(r)
			}
		})),
	)

	started := time.Now()
	for f := first; ; {
		if _, err := pipe.Process(f); err != nil {
			log.Warn("frame skipped", "index", f.Index, "error", err)
		}
		f.Close()

		f, err = src.Read()
		if errors.Is(err, capture.ErrSourceClosed) {
			break
		}
		if err != nil {
			return err
		}
	}

	videoEnd := pipe.Latest().Timestamp
	pipe.Finish()

	st := pipe.Stats()
	wall := time.Since(started)
	fmt.Fprintf(os.Stderr, "\n📊 %d frames (%.1f fps), %d detections, %d alerts, %s of video\n",
		st.Frames, float64(st.Frames)/wall.Seconds(), st.Detections, st.Alerts,
		videoEnd.Sub(videoStart).Round(time.Second))
	return nil
}

func describe(r pipeline.Result) string {
	at := r.Timestamp.Format("15:04:05.000")
	if ev := r.Event; ev != nil {
		switch ev.Kind {
		case alert.Entered:
			return fmt.Sprintf("🚨 %s ALERT #%d risk=%d zone=%s id=%s", at, ev.Count, ev.Risk, r.Zone, ev.ID)
		case alert.Exited:
			return fmt.Sprintf("✅ %s CLEAR risk=%d peak=%d after %s", at, ev.Risk, ev.PeakRisk, ev.Duration.Round(100*time.Millisecond))
		}
	}
	return fmt.Sprintf("   %s risk=%3d %-8s zone=%-9s behavior=%3d trust=%3d",
		at, r.Risk, r.Level, r.Zone, r.Behavior.OverallSuspicion, r.Trust.OverallTrust)
}
