package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"

	"github.com/linuxmatters/pulsetrace/internal/cli"
	"github.com/linuxmatters/pulsetrace/internal/detector"
	"github.com/linuxmatters/pulsetrace/internal/logging"
	"github.com/linuxmatters/pulsetrace/internal/observability"
	"github.com/linuxmatters/pulsetrace/internal/simulation"
	"github.com/linuxmatters/pulsetrace/internal/transport"
)

// version is set via ldflags at build time
// Local dev builds: "dev"
// Release builds: git tag (e.g. "0.1.0")
var version = "dev"

// CLI defines the command-line interface. Global flags configure the
// transport boundary shared by every detector; each subcommand carries the
// parameters of its event-formation strategy.
type CLI struct {
	Broker                  string `help:"Broker address (host:port). When unset, traces are read from stdin and event lists written to stdout."`
	ConsumerGroup           string `default:"pulsetrace" help:"Consumer group announced to the broker."`
	TraceTopic              string `default:"daq-traces" help:"Topic trace messages are consumed from."`
	EventTopic              string `default:"daq-events" help:"Topic event-list messages are published to."`
	Polarity                string `default:"positive" enum:"positive,negative" help:"Whether physical pulses register as positive or negative signals."`
	Baseline                int    `default:"0" help:"Intensity baseline subtracted from every sample."`
	SendEventlistBufferSize int    `default:"1024" help:"Capacity of the outbound event-list queue. Overflow is fatal."`
	ObservabilityAddress    string `default:"127.0.0.1:9090" help:"Endpoint OpenMetrics counters are served on."`
	OtelEndpoint            string `help:"OpenTelemetry collector URL. Accepted for deployment compatibility; span export is not wired in this build."`
	OtelNamespace           string `help:"Value for the service.namespace property of emitted telemetry."`
	Debug                   bool   `short:"d" help:"Enable debug logging."`

	Version kong.VersionFlag `short:"v" help:"Show version information."`

	FixedThresholdDiscriminator        FixedThresholdCmd `cmd:"" help:"Detect events with a fixed threshold discriminator."`
	DifferentialThresholdDiscriminator DifferentialCmd   `cmd:"" help:"Detect events with a differential threshold discriminator."`
	AdvancedMuonDetector               AdvancedMuonCmd   `cmd:"" help:"Detect muon pulses with the multi-stage differential detector."`
	Simulate                           SimulateCmd       `cmd:"" help:"Synthesise traces from a simulation configuration."`
}

// FixedThresholdCmd holds the fixed-threshold discriminator parameters.
type FixedThresholdCmd struct {
	Threshold float64 `required:"" help:"Trace level an event must exceed."`
	Duration  int     `default:"1" help:"Samples the trace must stay above the threshold."`
	CoolOff   int     `default:"0" help:"Samples the detector disarms for after an event."`
}

// Run implements the subcommand.
func (c *FixedThresholdCmd) Run(g *CLI) error {
	return runDetector(g, detector.FixedThresholdMode{
		Params: detector.ThresholdParams{
			Threshold: c.Threshold,
			Duration:  c.Duration,
			CoolOff:   c.CoolOff,
		},
	})
}

// DifferentialCmd holds the differential-threshold discriminator
// parameters.
type DifferentialCmd struct {
	BeginThreshold  float64 `required:"" help:"Derivative level at which a detection begins."`
	BeginDuration   float64 `default:"0" help:"Samples the derivative must stay above the begin threshold."`
	EndThreshold    float64 `required:"" help:"Derivative level below which a detection ends."`
	EndDuration     float64 `default:"0" help:"Samples the derivative must stay below the end threshold."`
	CoolOff         float64 `default:"0" help:"Minimum samples between the end of one detection and the next."`
	PeakHeightMode  string  `default:"max-value" enum:"max-value,value-at-end-trigger" help:"How the peak height is computed."`
	PeakHeightBasis string  `default:"trace-baseline" enum:"trace-baseline,pulse-baseline" help:"What the peak height is measured against."`
}

// Run implements the subcommand.
func (c *DifferentialCmd) Run(g *CLI) error {
	mode := detector.MaxValue
	if c.PeakHeightMode == "value-at-end-trigger" {
		mode = detector.ValueAtEndTrigger
	}
	basis := detector.TraceBaseline
	if c.PeakHeightBasis == "pulse-baseline" {
		basis = detector.PulseBaseline
	}
	return runDetector(g, detector.DifferentialMode{
		Params: detector.DifferentialParams{
			BeginThreshold: c.BeginThreshold,
			BeginDuration:  c.BeginDuration,
			EndThreshold:   c.EndThreshold,
			EndDuration:    c.EndDuration,
			CoolOff:        c.CoolOff,
		},
		Mode:  mode,
		Basis: basis,
	})
}

// AdvancedMuonCmd holds the advanced muon detector parameters.
type AdvancedMuonCmd struct {
	MuonOnset           float64  `required:"" help:"Differential threshold for detecting muon onset."`
	MuonFall            float64  `required:"" help:"Differential threshold for detecting the muon peak."`
	MuonTermination     float64  `required:"" help:"Differential threshold for detecting muon termination."`
	Duration            float64  `default:"0" help:"Samples each threshold must hold to register."`
	BaselineLength      int      `default:"0" help:"Size of the event-free initial portion used for baseline estimation."`
	SmoothingWindowSize int      `default:"1" help:"Size of the moving-average window applied before detection."`
	MinAmplitude        *float64 `help:"Drop pulses whose peak is below this value."`
	MaxAmplitude        *float64 `help:"Drop pulses whose peak is above this value."`
}

// Run implements the subcommand.
func (c *AdvancedMuonCmd) Run(g *CLI) error {
	return runDetector(g, detector.AdvancedMuonMode{
		Params: detector.MuonParams{
			Onset:       c.MuonOnset,
			Fall:        c.MuonFall,
			Termination: c.MuonTermination,
			Duration:    c.Duration,
		},
		BaselineLength:      c.BaselineLength,
		SmoothingWindowSize: c.SmoothingWindowSize,
		MinAmplitude:        c.MinAmplitude,
		MaxAmplitude:        c.MaxAmplitude,
	})
}

// SimulateCmd runs the trace simulator.
type SimulateCmd struct {
	Config string `arg:"" type:"existingfile" help:"Simulation configuration JSON."`
	Seed   uint64 `default:"0" help:"Master seed for reproducible runs. Zero derives a seed from the clock."`
}

// Run implements the subcommand.
func (c *SimulateCmd) Run(g *CLI) error {
	logger := newLogger(g)

	f, err := os.Open(c.Config)
	if err != nil {
		return err
	}
	sim, err := simulation.Load(f)
	f.Close()
	if err != nil {
		return err
	}

	seed := c.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
		logger.Info("derived master seed from clock", "seed", seed)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out, closeOut, err := openSink(g)
	if err != nil {
		return err
	}
	defer closeOut()

	publisher := transport.NewPublisher(out, g.SendEventlistBufferSize)
	engine, err := simulation.NewEngine(sim, publisher, seed, logger)
	if err != nil {
		publisher.Close()
		return err
	}

	started := time.Now()
	runErr := engine.Run(ctx)
	if flushErr := publisher.Close(); runErr == nil {
		runErr = flushErr
	}

	stats := engine.Stats()
	cli.PrintSummary(logging.SimulationSummary{
		Started:       started,
		Finished:      time.Now(),
		Frames:        stats.Frames,
		MessagesSent:  stats.MessagesSent,
		FrameFailures: stats.FrameFailures,
	}.Render())
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

func main() {
	cliArgs := &CLI{}
	ctx := kong.Parse(cliArgs,
		kong.Name("pulsetrace"),
		kong.Description("Neutron and muon trace-processing pipeline"),
		kong.UsageOnError(),
		kong.Vars{"version": version},
		kong.Help(cli.StyledHelpPrinter(kong.HelpOptions{Compact: true})),
	)

	if err := ctx.Run(cliArgs); err != nil {
		cli.PrintError(err.Error())
		os.Exit(1)
	}
}

func newLogger(g *CLI) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "pulsetrace",
	})
	if g.Debug {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

// openSource returns the byte stream traces are read from: a broker
// connection announced with a Hello frame, or stdin.
func openSource(g *CLI) (io.Reader, func(), error) {
	if g.Broker == "" {
		return os.Stdin, func() {}, nil
	}
	conn, err := net.Dial("tcp", g.Broker)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to broker: %w", err)
	}
	hello, err := transport.Encode(&transport.Hello{
		ConsumerGroup: g.ConsumerGroup,
		Topic:         g.TraceTopic,
	})
	if err == nil {
		_, err = conn.Write(hello)
	}
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("announce to broker: %w", err)
	}
	return conn, func() { conn.Close() }, nil
}

// openSink returns the byte stream event lists are written to: a broker
// connection announced with a Hello frame, or stdout.
func openSink(g *CLI) (io.Writer, func(), error) {
	if g.Broker == "" {
		return os.Stdout, func() {}, nil
	}
	conn, err := net.Dial("tcp", g.Broker)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to broker: %w", err)
	}
	hello, err := transport.Encode(&transport.Hello{
		ConsumerGroup: g.ConsumerGroup,
		Topic:         g.EventTopic,
	})
	if err == nil {
		_, err = conn.Write(hello)
	}
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("announce to broker: %w", err)
	}
	return conn, func() { conn.Close() }, nil
}

// runDetector is the shared ingress loop of the three detector
// subcommands: read trace messages, extract each channel's events, publish
// event-list messages through the bounded queue.
func runDetector(g *CLI, mode detector.Mode) error {
	logger := newLogger(g)
	if g.OtelEndpoint != "" {
		logger.Warn("otel-endpoint set but span export is not wired in this build", "endpoint", g.OtelEndpoint)
	}

	polarity := detector.Positive
	if g.Polarity == "negative" {
		polarity = detector.Negative
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.New()
	go func() {
		if err := metrics.Serve(ctx, g.ObservabilityAddress); err != nil {
			logger.Error("observability endpoint failed", "addr", g.ObservabilityAddress, "err", err)
		}
	}()

	in, closeIn, err := openSource(g)
	if err != nil {
		return err
	}
	defer closeIn()
	out, closeOut, err := openSink(g)
	if err != nil {
		return err
	}
	defer closeOut()

	// A reader blocked on a quiet stream only notices cancellation when
	// the stream closes, so close it as soon as the signal lands.
	go func() {
		<-ctx.Done()
		closeIn()
	}()

	publisher := transport.NewPublisher(out, g.SendEventlistBufferSize)
	summary := logging.DetectorSummary{Started: time.Now()}
	source := transport.NewSource(in)

	runErr := func() error {
		for {
			if ctx.Err() != nil {
				return nil
			}
			msg, err := source.Next()
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if errors.Is(err, transport.ErrDecode) {
				logger.Warn("failed to parse message", "err", err)
				metrics.Failures.WithLabelValues(observability.FailureDecode).Inc()
				summary.DecodeFailures++
				continue
			}
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("read trace stream: %w", err)
			}

			trace, ok := msg.(*transport.TraceMessage)
			if !ok {
				logger.Warn("unexpected message type on trace stream", "type", fmt.Sprintf("%T", msg))
				metrics.MessagesReceived.WithLabelValues(observability.MessageUnexpected).Inc()
				continue
			}

			metrics.MessagesReceived.WithLabelValues(observability.MessageTrace).Inc()
			summary.MessagesReceived++
			if err := processTrace(g, mode, polarity, trace, publisher, metrics, &summary, logger); err != nil {
				return err
			}
		}
	}()

	//  Wait for the queue to drain before reporting.
	if flushErr := publisher.Close(); runErr == nil && flushErr != nil {
		metrics.Failures.WithLabelValues(observability.FailurePublish).Inc()
		summary.PublishFailures++
		runErr = fmt.Errorf("flush event lists: %w", flushErr)
	}

	summary.Finished = time.Now()
	cli.PrintSummary(summary.Render())
	return runErr
}

// processTrace runs the detector over every channel of one trace message
// and enqueues the resulting event list. Queue overflow is fatal so that
// upstream backpressure is visible.
func processTrace(
	g *CLI,
	mode detector.Mode,
	polarity detector.Polarity,
	trace *transport.TraceMessage,
	publisher *transport.Publisher,
	metrics *observability.Metrics,
	summary *logging.DetectorSummary,
	logger *log.Logger,
) error {
	sampleTime := 1.0
	if trace.SampleRate > 0 {
		sampleTime = 1e9 / float64(trace.SampleRate)
	}

	msg := &transport.EventListMessage{
		DigitiserID: trace.DigitiserID,
		Metadata:    trace.Metadata,
	}
	digitiserLabel := fmt.Sprintf("%d", trace.DigitiserID)
	for _, channel := range trace.Channels {
		times, intensities := detector.FindChannelEvents(
			channel.Voltages, sampleTime, mode, polarity, float64(g.Baseline))
		msg.Channels = append(msg.Channels, transport.ChannelEvents{
			Channel:     channel.Channel,
			Times:       times,
			Intensities: intensities,
		})
		metrics.EventsFound.WithLabelValues(digitiserLabel).Add(float64(len(times)))
		summary.EventsFound += len(times)
	}

	logger.Debug("processed trace",
		"digitiser", trace.DigitiserID,
		"frame", trace.Metadata.FrameNumber,
		"channels", len(msg.Channels))

	if err := publisher.TrySend(msg); err != nil {
		if errors.Is(err, transport.ErrQueueFull) {
			metrics.Failures.WithLabelValues(observability.FailureQueueOverflow).Inc()
			summary.PublishFailures++
			return fmt.Errorf("event-list queue overflowed: %w", err)
		}
		metrics.Failures.WithLabelValues(observability.FailurePublish).Inc()
		summary.PublishFailures++
		return err
	}
	metrics.MessagesProcessed.Inc()
	summary.MessagesProcessed++
	return nil
}
