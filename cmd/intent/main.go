// intent: watches a camera or video file and raises an alert when a person
// near the protected perimeter behaves like an intruder.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/teslashibe/go-intent/internal/config"
	"github.com/teslashibe/go-intent/internal/log"
	"github.com/teslashibe/go-intent/internal/monitor"
	"github.com/teslashibe/go-intent/pkg/capture"
	"github.com/teslashibe/go-intent/pkg/detection"
	"github.com/teslashibe/go-intent/pkg/journal"
	"github.com/teslashibe/go-intent/pkg/metrics"
	"github.com/teslashibe/go-intent/pkg/overlay"
	"github.com/teslashibe/go-intent/pkg/perimeter"
	"github.com/teslashibe/go-intent/pkg/pipeline"
	"github.com/teslashibe/go-intent/pkg/publish"
	"github.com/teslashibe/go-intent/pkg/record"
	"github.com/teslashibe/go-intent/pkg/web"
)

const statusPublishHz = 2

var (
	version    = "0.1.0"
	configPath = flag.String("config", "", "Config file (default: $CONFIG_PATH, then ./intent.yaml)")
	source     = flag.String("source", "", "Camera index or video file (overrides capture.source)")
	loop       = flag.Bool("loop", false, "Loop a video file")
	detector   = flag.String("detector", "", "Person detector: yolo or hog")
	model      = flag.String("model", "", "YOLO ONNX model path")
	port       = flag.Int("port", 0, "Dashboard port (0 keeps the configured port)")
	noWeb      = flag.Bool("no-web", false, "Disable the dashboard")
	noRecord   = flag.Bool("no-record", false, "Disable alert clip recording")
	debug      = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if *source != "" {
		cfg.Capture.Source = *source
		if _, ok := cfg.Capture.Device(); !ok {
			cfg.Capture.Width, cfg.Capture.Height = 0, 0
		}
	}
	if *loop {
		cfg.Capture.Loop = true
	}
	if *detector != "" {
		cfg.Detector.Kind = *detector
	}
	if *model != "" {
		cfg.Detector.ModelPath = *model
	}
	if *port != 0 {
		cfg.Web.Port = *port
	}
	if *noWeb {
		cfg.Web.Enabled = false
	}
	if *noRecord {
		cfg.Record.Enabled = false
	}
	if *debug {
		cfg.Log.Level = "debug"
	}
	return cfg, cfg.Validate()
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log.Init(cfg.Log.Level)
	logger := log.Component("intent")

	fmt.Println()
	fmt.Println("🛡️  Intent v" + version)
	fmt.Println("   Perimeter intrusion risk monitor")
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := capture.Open(cfg.Capture)
	if err != nil {
		return err
	}
	defer src.Close()

	first, err := src.Read()
	if err != nil {
		return fmt.Errorf("read first frame: %w", err)
	}
	width, height := first.Size()
	logger.Info("video source open", "source", cfg.Capture.Source, "width", width, "height", height, "fps", src.FPS(0))

	det, err := detection.New(cfg.Detector)
	if err != nil {
		first.Close()
		return err
	}
	locator := detection.NewLocator(det)
	defer locator.Close()
	logger.Info("person detector ready", "kind", cfg.Detector.Kind)

	per := perimeter.New(width, height, cfg.Perimeter)

	var store monitor.EventStore
	var alerts *journal.Journal
	if cfg.Journal.Enabled {
		alerts, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			first.Close()
			return err
		}
		defer alerts.Close()
		store = alerts
		logger.Info("alert journal open", "path", cfg.Journal.Path)
	}

	var bus monitor.Announcer
	if cfg.Redis.Enabled {
		host, _ := os.Hostname()
		pub, err := publish.New(ctx, cfg.Redis, host, log.Component("publish"))
		if err != nil {
			// Alerts still reach the journal and the dashboard.
			logger.Warn("redis unavailable, publishing disabled", "error", err)
		} else {
			defer pub.Close()
			bus = pub
			logger.Info("publishing to redis", "addr", cfg.Redis.Addr, "channel", cfg.Redis.Channel)
		}
	}

	forwarder := monitor.NewForwarder(store, bus, statusPublishHz, log.Component("forward"))

	sinks := []pipeline.Sink[*capture.Frame]{
		metrics.Sink[*capture.Frame](),
		monitor.Sink[*capture.Frame](forwarder),
	}

	pipe := pipeline.New(cfg.Pipeline(),
		pipeline.DetectorFunc[*capture.Frame](func(f *capture.Frame) (perimeter.Position, error) {
			return locator.Locate(f.Mat)
		}),
		per,
		pipeline.WithLogger[*capture.Frame](log.Component("pipeline")),
		pipeline.WithSinks(sinks...),
	)

	var opts []monitor.Option
	if cfg.Record.Enabled {
		rec, err := record.New(cfg.Record, log.Component("record"))
		if err != nil {
			first.Close()
			return err
		}
		defer rec.Close()
		opts = append(opts, monitor.WithRecorder(rec))
	}

	sup := suture.New("intent", suture.Spec{
		EventHook: (&sutureslog.Handler{Logger: logger}).MustHook(),
		Timeout:   10 * time.Second,
	})

	if cfg.Web.Enabled {
		var webOpts []web.Option
		if alerts != nil {
			webOpts = append(webOpts, web.WithAlerts(alerts))
		}
		srv := web.New(cfg.Web, pipe, log.Component("web"), webOpts...)
		pipe.AddSink(web.Sink[*capture.Frame](srv))
		opts = append(opts, monitor.WithView(srv))

		sup.Add(srv)
		for _, h := range srv.Hubs() {
			sup.Add(h)
		}
		fmt.Printf("🌐 Dashboard: http://localhost:%d\n", cfg.Web.Port)
	}

	mon := monitor.New(&primed{first: first, src: src}, pipe, overlay.New(per, cfg.Alert.Enter), log.Component("monitor"), opts...)
	sup.Add(mon)
	sup.Add(forwarder)

	logger.Info("monitoring",
		"enter_threshold", cfg.Alert.Enter,
		"exit_threshold", cfg.Alert.Exit,
		"trust_threshold", cfg.Trust.Threshold,
	)

	err = sup.Serve(ctx)
	// The monitor closes any open alert as it stops; make sure that exit
	// reaches the journal even if the forwarder stopped first.
	forwarder.Flush()
	summarize(logger, pipe.Stats())

	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, suture.ErrTerminateSupervisorTree) {
		return nil
	}
	return err
}

// primed replays the frame used to size the perimeter before reading on.
type primed struct {
	first *capture.Frame
	src   *capture.Source
}

func (p *primed) Read() (*capture.Frame, error) {
	if f := p.first; f != nil {
		p.first = nil
		return f, nil
	}
	return p.src.Read()
}

func summarize(logger *slog.Logger, st pipeline.Stats) {
	elapsed := st.Elapsed(time.Now())
	fps := 0.0
	if s := elapsed.Seconds(); s > 0 {
		fps = float64(st.Frames) / s
	}
	logger.Info("session summary",
		"duration", elapsed.Round(time.Second),
		"frames", st.Frames,
		"detections", st.Detections,
		"alerts", st.Alerts,
		"fps", fmt.Sprintf("%.1f", fps),
	)
	fmt.Println("👋 Goodbye!")
}
