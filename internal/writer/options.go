package writer

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/babelcloud/gbox/packages/recorder/internal/chanlayout"
	"github.com/babelcloud/gbox/packages/recorder/internal/container"
	"github.com/babelcloud/gbox/packages/recorder/internal/media"
	"github.com/babelcloud/gbox/packages/recorder/internal/metrics"
	"github.com/babelcloud/gbox/packages/recorder/internal/remap"
	"github.com/babelcloud/gbox/packages/recorder/internal/trackconfig"
)

// Auto-generated file names are <prefix><MMddHHmmss>.<ext>.
const (
	DefaultPrefix    = "capture-"
	pathTimestampFmt = "0102150405"
)

// AudioMode selects how lossy audio channels are laid out.
type AudioMode string

const (
	AudioModeAuto    AudioMode = "auto"
	AudioModeCompact AudioMode = "compact"
	AudioModeWide    AudioMode = "wide"
)

// Config is the recording configuration of a Session.
type Config struct {
	RecordVideo    bool
	RecordAudio    bool
	RecordTimecode bool

	VideoCodec  media.VideoCodec
	VideoPreset string
	// VideoBitrate in bits per second; zero derives one from the preset.
	VideoBitrate int
	AudioCodec   media.AudioCodec
	AudioBitrate int
	AudioMode    AudioMode

	Format container.Format
	// Path is the output file. When empty a name is generated in Dir.
	Path   string
	Dir    string
	Prefix string
	// Timescale is the preferred video timebase, zero to derive it from
	// the frame rate.
	Timescale uint32

	QueueDepth   int
	PartDuration time.Duration

	Hooks trackconfig.Hooks
	// AudioEncoder builds the encoder of lossy audio tracks.
	AudioEncoder func(trackconfig.AudioSettings) (container.Encoder, error)
	// VideoEncoder builds the encoder used when the source delivers raw or
	// differently coded frames.
	VideoEncoder func(trackconfig.VideoSettings) (container.Encoder, error)
}

// AudioHint is the out-of-band description of the audio source.
type AudioHint struct {
	Stream media.StreamDescription
	Layout chanlayout.Layout
}

// SourceHints describe the capture source before recording starts. Nil
// fields are unknown.
type SourceHints struct {
	Audio    *AudioHint
	Video    *media.VideoFormat
	Timecode *media.TimecodeFormat
}

// ContainerWriter is the container writer a Session drives.
type ContainerWriter interface {
	AddTrack(spec container.TrackSpec) (container.Track, error)
	StartWriting() error
	StartSession(at time.Duration)
	EndSession(at time.Duration)
	Finish(ctx context.Context) error
	Cancel()
	Status() container.Status
	Err() error
	Path() string
}

// CreateFunc opens a container writer at path.
type CreateFunc func(path string, format container.Format, opts container.Options) (ContainerWriter, error)

func createContainer(path string, format container.Format, opts container.Options) (ContainerWriter, error) {
	w, err := container.Create(path, format, opts)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Options carry the collaborators of a Session. Zero values select the
// defaults.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Clock   clock.PassiveClock
	Create  CreateFunc
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.With("component", "writer")
	}
	if o.Clock == nil {
		o.Clock = clock.RealClock{}
	}
	if o.Create == nil {
		o.Create = createContainer
	}
	return o
}

func (c Config) remapMode() (*remap.Mode, error) {
	switch c.AudioMode {
	case "", AudioModeAuto:
		return nil, nil
	case AudioModeCompact:
		m := remap.ModeCompact
		return &m, nil
	case AudioModeWide:
		m := remap.ModeWide
		return &m, nil
	}
	return nil, errors.Errorf("unknown audio mode %q", c.AudioMode)
}

// DefaultDir is the platform movies directory, falling back to the working
// directory.
func DefaultDir() string {
	if dir := xdg.UserDirs.Videos; dir != "" {
		return dir
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

// ResolvePath returns the configured output path or synthesizes one from
// the clock.
func ResolvePath(c Config, clk clock.PassiveClock) string {
	if c.Path != "" {
		return c.Path
	}
	dir := c.Dir
	if dir == "" {
		dir = DefaultDir()
	}
	prefix := c.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	name := prefix + clk.Now().Format(pathTimestampFmt) + "." + c.Format.Extension()
	return filepath.Join(dir, name)
}
