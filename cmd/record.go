package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/babelcloud/gbox/packages/recorder/config"
	"github.com/babelcloud/gbox/packages/recorder/internal/container"
	"github.com/babelcloud/gbox/packages/recorder/internal/media"
	"github.com/babelcloud/gbox/packages/recorder/internal/metrics"
	"github.com/babelcloud/gbox/packages/recorder/internal/source"
	"github.com/babelcloud/gbox/packages/recorder/internal/timecode"
	"github.com/babelcloud/gbox/packages/recorder/internal/trackconfig"
	"github.com/babelcloud/gbox/packages/recorder/internal/writer"
)

// RecordOptions holds command options
type RecordOptions struct {
	Duration    time.Duration
	Output      string
	Format      string
	Video       string
	VideoCodec  string
	Preset      string
	Loop        bool
	AudioCodec  string
	AudioMode   string
	Channels    int
	Reverse     bool
	Bits        int
	NoAudio     bool
	Timecode    bool
	StartTC     string
	MetricsAddr string
}

// NewRecordCommand creates the record command
func NewRecordCommand() *cobra.Command {
	return newRecordCommand(&RecordOptions{})
}

func newRecordCommand(opts *RecordOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record the synthetic capture source to a file",
		Long: `Record a multichannel test tone, optionally with a running timecode and an H.264/H.265
elementary stream, into one MP4 or Matroska file.

Recording stops after --duration or on Ctrl+C. Defaults come from the config file
(config.yaml in ., $HOME/.recorder or /etc/recorder) and RECORDER_* environment variables.`,
		Example: `  recorder record --duration 10s
  recorder record --channels 6 --reverse --format mkv --timecode -o take1.mkv
  recorder record --video clip.h264 --preset 1080p25 --loop --duration 1m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := recorderConfig(cmd, opts)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runRecord(ctx, cmd.OutOrStdout(), cfg, opts)
		},
	}

	flags := cmd.Flags()
	flags.DurationVarP(&opts.Duration, "duration", "d", 0, "Stop after this long (0 records until interrupted)")
	flags.StringVarP(&opts.Output, "output", "o", "", "Output file (default: auto-named in the output directory)")
	flags.StringVar(&opts.Format, "format", "", "Container format: mp4 or mkv")
	flags.StringVar(&opts.Video, "video", "", "Annex-B elementary stream file to record as video")
	flags.StringVar(&opts.VideoCodec, "video-codec", "", "Codec of the video file: h264 or h265")
	flags.StringVar(&opts.Preset, "preset", "", "Video preset, e.g. 1080p29.97")
	flags.BoolVar(&opts.Loop, "loop", false, "Loop the video file")
	flags.StringVar(&opts.AudioCodec, "audio-codec", "", "Audio codec: lpcm, or aac/heaac when an encoder is available")
	flags.StringVar(&opts.AudioMode, "audio-mode", "", "Channel layout of lossy audio: auto, compact or wide")
	flags.IntVar(&opts.Channels, "channels", 2, "Number of valid tone channels (1-8)")
	flags.BoolVar(&opts.Reverse, "reverse", false, "Use the reverse hardware channel order")
	flags.IntVar(&opts.Bits, "bits", 16, "Tone sample size: 16 or 32")
	flags.BoolVar(&opts.NoAudio, "no-audio", false, "Do not record audio")
	flags.BoolVar(&opts.Timecode, "timecode", false, "Record a timecode track (mkv only)")
	flags.StringVar(&opts.StartTC, "start", "00:00:00:00", "Start timecode")
	flags.StringVar(&opts.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	return cmd
}

// recorderConfig overlays changed flags on the loaded configuration.
func recorderConfig(cmd *cobra.Command, opts *RecordOptions) (config.Recorder, error) {
	cfg := config.Load()
	changed := cmd.Flags().Changed

	if changed("output") {
		cfg.OutputPath = opts.Output
	}
	if changed("format") {
		cfg.OutputFormat = opts.Format
	}
	if changed("video") {
		cfg.RecordVideo = opts.Video != ""
	}
	if changed("video-codec") {
		cfg.VideoCodec = opts.VideoCodec
	}
	if changed("preset") {
		cfg.VideoPreset = opts.Preset
	}
	if changed("audio-codec") {
		cfg.AudioCodec = opts.AudioCodec
	}
	if changed("audio-mode") {
		cfg.AudioMode = opts.AudioMode
	}
	if opts.NoAudio {
		cfg.RecordAudio = false
	}
	if changed("timecode") {
		cfg.RecordTimecode = opts.Timecode
	}
	if changed("metrics-addr") {
		cfg.MetricsAddr = opts.MetricsAddr
	}
	if cfg.RecordVideo && opts.Video == "" {
		return cfg, errors.New("video recording needs --video")
	}
	return cfg, nil
}

// writerConfig maps the typed configuration onto a session config.
func writerConfig(cfg config.Recorder) (writer.Config, error) {
	format, err := container.ParseFormat(cfg.OutputFormat)
	if err != nil {
		return writer.Config{}, err
	}
	videoCodec, err := media.ParseVideoCodec(cfg.VideoCodec)
	if err != nil {
		return writer.Config{}, err
	}
	audioCodec, err := media.ParseAudioCodec(cfg.AudioCodec)
	if err != nil {
		return writer.Config{}, err
	}
	mode := writer.AudioMode(cfg.AudioMode)
	switch mode {
	case "", writer.AudioModeAuto, writer.AudioModeCompact, writer.AudioModeWide:
	default:
		return writer.Config{}, errors.Errorf("unknown audio mode %q", cfg.AudioMode)
	}

	return writer.Config{
		RecordVideo:    cfg.RecordVideo,
		RecordAudio:    cfg.RecordAudio,
		RecordTimecode: cfg.RecordTimecode,
		VideoCodec:     videoCodec,
		VideoPreset:    cfg.VideoPreset,
		VideoBitrate:   cfg.VideoBitrate,
		AudioCodec:     audioCodec,
		AudioBitrate:   cfg.AudioBitrate,
		AudioMode:      mode,
		Format:         format,
		Path:           cfg.OutputPath,
		Dir:            cfg.OutputDir,
		Prefix:         cfg.OutputPrefix,
		Timescale:      cfg.Timescale,
		QueueDepth:     cfg.QueueDepth,
		PartDuration:   cfg.PartDuration,
	}, nil
}

type producer interface {
	Run(ctx context.Context, clk clock.WithTicker, sink source.Sink) error
}

// sources builds the producers for every enabled kind and the hints that
// describe them.
func sources(wcfg writer.Config, opts *RecordOptions) ([]producer, writer.SourceHints, error) {
	var (
		prods []producer
		hints writer.SourceHints
	)

	preset := wcfg.VideoPreset
	if preset == "" {
		preset = writer.DefaultVideoPreset
	}
	p, ok := trackconfig.LookupPreset(preset)
	if !ok {
		return nil, hints, errors.Errorf("unknown video preset %q", preset)
	}
	rate := p.FrameRate

	if wcfg.RecordVideo {
		f, err := source.OpenAnnexB(opts.Video, wcfg.VideoCodec, rate)
		if err != nil {
			return nil, hints, err
		}
		f.Loop = opts.Loop
		hints.Video = f.Hint()
		prods = append(prods, f)
	}
	if wcfg.RecordAudio {
		tone, err := source.NewTone(source.ToneConfig{Valid: opts.Channels, Reverse: opts.Reverse, Bits: opts.Bits})
		if err != nil {
			return nil, hints, err
		}
		hints.Audio = tone.Hint()
		prods = append(prods, tone)
	}
	if wcfg.RecordTimecode {
		start, err := timecode.Parse(opts.StartTC)
		if err != nil {
			return nil, hints, err
		}
		tc, err := source.NewTimecode(rate, rate.IsNTSC(), start)
		if err != nil {
			return nil, hints, err
		}
		hints.Timecode = tc.Hint()
		prods = append(prods, tc)
	}
	return prods, hints, nil
}

func runRecord(ctx context.Context, out io.Writer, cfg config.Recorder, opts *RecordOptions) error {
	logger := slog.With("component", "record")

	wcfg, err := writerConfig(cfg)
	if err != nil {
		return err
	}
	prods, hints, err := sources(wcfg, opts)
	if err != nil {
		return err
	}

	m := metrics.New()
	session := writer.New(wcfg, writer.Options{
		Logger:  slog.With("component", "writer"),
		Metrics: m,
	})
	defer session.Close()

	if err := session.SetSourceHints(ctx, hints); err != nil {
		return err
	}
	if err := session.OpenSession(ctx); err != nil {
		return errors.Wrap(err, "failed to start recording")
	}
	fmt.Fprintf(out, "🎬 Recording to %s\n", color.CyanString(session.Status().Path))
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	} else {
		fmt.Fprintf(out, "(Press %s to stop.)\n", color.New(color.FgYellow, color.Bold).Sprint("Ctrl+C"))
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		g.Go(func() error {
			logger.Info("Metrics server listening", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "metrics server")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	sink := func(ctx context.Context, kind media.Kind, s *media.Sample) error {
		err := session.AppendSample(ctx, kind, s)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, writer.ErrNotReady):
			logger.Debug("Writer busy, sample dropped", "kind", kind.String(), "pts", s.PTS)
			return nil
		case errors.Is(err, writer.ErrWriterUnavailable), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return err
		default:
			logger.Warn("Sample dropped", "kind", kind.String(), "pts", s.PTS, "error", err)
			return nil
		}
	}
	for _, p := range prods {
		g.Go(func() error {
			err := p.Run(gctx, clock.RealClock{}, sink)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		})
	}

	runErr := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sum, closeErr := session.CloseSession(closeCtx)
	printSummary(out, sum, closeErr)
	if runErr != nil {
		return runErr
	}
	return closeErr
}

func printSummary(out io.Writer, sum writer.Summary, err error) {
	if err != nil {
		fmt.Fprintf(out, "\n%s %v\n", color.RedString("❌ Recording failed:"), err)
		if sum.Path == "" {
			return
		}
	} else {
		fmt.Fprintf(out, "\n%s\n", color.GreenString("✅ Recording complete"))
	}

	label := color.New(color.Bold)
	fmt.Fprintf(out, "%s %s\n", label.Sprint("File:    "), sum.Path)
	fmt.Fprintf(out, "%s %s\n", label.Sprint("Duration:"), sum.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "%s %s\n", label.Sprint("Status:  "), sum.Status)

	kinds := make([]media.Kind, 0, len(sum.Appended))
	for k := range sum.Appended {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, k := range kinds {
		line := fmt.Sprintf("%d samples", sum.Appended[k])
		if d := sum.Dropped[k]; d > 0 {
			line += color.YellowString(", %d dropped", d)
		}
		fmt.Fprintf(out, "%s %s\n", label.Sprintf("%-9s", k.String()+":"), line)
	}
}
