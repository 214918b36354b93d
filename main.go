package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"sensornode-go/logging"
	"sensornode-go/pipeline"
	"sensornode-go/services/config"
	"sensornode-go/services/gpio"
	"sensornode-go/services/gpio/chip"
	"sensornode-go/services/heartbeat"
	"sensornode-go/types"
)

type options struct {
	Config      string `short:"c" long:"config" description:"YAML config file; defaults to the embedded config for --device"`
	Device      string `short:"d" long:"device" default:"sim" description:"device name selecting the embedded config"`
	LogLevel    string `long:"log-level" description:"override log level (debug, info, warn, error)"`
	Dev         bool   `long:"dev" description:"human-readable development logging"`
	Sim         bool   `long:"sim" description:"use the simulated chip and generate edges"`
	PrintConfig bool   `long:"print-config" description:"print the effective config and exit"`
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(2)
	}
	os.Exit(run(opts))
}

func run(opts options) int {
	cfg, err := config.Load(opts.Config, opts.Device)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return 2
	}
	if opts.Sim {
		cfg.Chip.Sim = true
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if opts.Dev {
		cfg.Log.Development = true
	}
	if opts.PrintConfig {
		out, err := config.Dump(cfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, "config:", err)
			return 1
		}
		os.Stdout.Write(out)
		return 0
	}

	log, err := logging.New(logging.Config{Level: cfg.Log.Level, Development: cfg.Log.Development})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		return 2
	}
	defer log.Sync()
	log = log.With(zap.String("device", cfg.Device))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		c   chip.Chip
		sim *chip.Sim
	)
	if cfg.Chip.Sim {
		sim = chip.NewSim(cfg.Device, cfg.Chip.SimLines)
		c = sim
	} else if c, err = chip.Open(cfg.Chip.Path, cfg.Chip.Consumer); err != nil {
		return log.Abort("cannot open gpio chip", 1, zap.String("path", cfg.Chip.Path), zap.Error(err))
	}
	defer c.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	events := newEventSinks(log.Named("events").Logger, reg, cfg.Pipeline)
	events.logger.Start()

	pipe := gpio.New(c,
		gpio.WithLogger(log.Named("gpio").Logger),
		gpio.WithMetrics(gpio.NewMetrics(reg, c.Name())),
		gpio.WithContext(ctx),
		gpio.WithWaitSlice(cfg.Pipeline.WaitSlice),
		gpio.WithRateWindow(cfg.Pipeline.RateSamples, cfg.Pipeline.RateSpan),
		gpio.WithPacing(gpio.Pacing{
			MaxTimeout: cfg.Pipeline.MaxTimeout,
			LowRate:    cfg.Pipeline.LowRate,
			HighRate:   cfg.Pipeline.HighRate,
		}),
		gpio.WithEventSink(events.fanout),
	)
	if err := registerPins(pipe, cfg.Pins, log.Named("pins")); err != nil {
		return log.Abort("gpio registration failed", 1, zap.Error(err))
	}

	hb := heartbeat.New(cfg.Heartbeat.Interval, pipe,
		heartbeat.WithLogger(log.Named("heartbeat").Logger),
		heartbeat.WithContext(ctx))

	srv := serveMetrics(cfg.Metrics.Addr, reg, log.Named("metrics"))

	pipe.Start()
	hb.Start()
	if sim != nil {
		go simulate(ctx, sim, cfg.Pins)
	}
	log.Info("sensor node running", zap.Strings("pins", pinNames(cfg.Pins)))

	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
	case <-pipe.Done():
		log.Warn("gpio pipeline exited", zap.Int("exit_code", pipe.ExitCode()))
	}

	hb.Stop(0)
	pipe.Stop(0)
	code := pipe.Wait()
	hb.Wait()
	events.logger.Stop(0)
	events.logger.Wait()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("metrics server shutdown", zap.Error(err))
		}
	}
	log.Info("sensor node stopped", zap.Int("exit_code", code),
		zap.Uint64("events_not_logged", events.throttle.Dropped()))
	return code
}

func serveMetrics(addr string, reg *prometheus.Registry, log *logging.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.String("addr", addr), zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", addr))
	return srv
}

// eventSinks fans dispatched events out to a per-pin counter and a
// throttled logger running on its own goroutine.
type eventSinks struct {
	fanout   *pipeline.CollectionSink[types.Event]
	throttle *pipeline.ThrottledSink[types.Event]
	logger   *pipeline.ThreadedSink[types.Event]
}

func newEventSinks(log *zap.Logger, reg prometheus.Registerer, pc config.PipelineConfig) *eventSinks {
	edges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sensornode", Subsystem: "gpio", Name: "edges_total",
		Help: "Dispatched edge events by pin and edge.",
	}, []string{"pin", "edge"})
	reg.MustRegister(edges)

	logger := pipeline.NewThreadedSink[types.Event]("event-log",
		pipeline.HandlerFunc[types.Event](func(ev types.Event) {
			log.Info("edge", zap.Stringer("event", ev))
		}),
		pipeline.WithSinkLogger(log))
	throttle := pipeline.NewThrottledSink[types.Event](logger, pc.LogRate, pc.LogBurst)

	fanout := pipeline.NewCollectionSink[types.Event]()
	fanout.Add(pipeline.SinkFunc[types.Event](func(ev types.Event) {
		edges.WithLabelValues(fmt.Sprint(ev.Pin), ev.Edge.String()).Inc()
	}))
	fanout.Add(throttle)
	return &eventSinks{fanout: fanout, throttle: throttle, logger: logger}
}

func pinNames(pins []config.Pin) []string {
	out := make([]string, 0, len(pins))
	for _, p := range pins {
		out = append(out, fmt.Sprintf("%s:%d:%s", p.Name, p.Line, p.Mode))
	}
	return out
}
