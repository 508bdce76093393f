// Package container multiplexes timestamped samples into a single movie
// file. Appends are queued per track and written by one worker goroutine,
// so the capture side never waits on disk I/O.
package container

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/babelcloud/gbox/packages/recorder/internal/media"
	"github.com/babelcloud/gbox/packages/recorder/internal/trackconfig"
)

var (
	ErrNotReady          = errors.New("track not ready for more data")
	ErrNotWriting        = errors.New("writer is not writing")
	ErrTrackFinished     = errors.New("track marked finished")
	ErrUnsupportedTrack  = errors.New("track not supported by container")
	ErrEncoderRequired   = errors.New("codec requires an encoder")
	ErrMissingParameters = errors.New("video parameter sets not found")
	ErrAlreadyStarted    = errors.New("writer already started")
)

// Format selects the container backend.
type Format int

const (
	FormatMP4 Format = iota
	FormatMatroska
)

func (f Format) String() string {
	switch f {
	case FormatMP4:
		return "mp4"
	case FormatMatroska:
		return "mkv"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// Extension returns the file extension without the dot.
func (f Format) Extension() string {
	return f.String()
}

// ParseFormat maps a configuration string to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mp4", "fmp4", "mov":
		return FormatMP4, nil
	case "mkv", "matroska":
		return FormatMatroska, nil
	}
	return 0, errors.Errorf("unknown container format %q", s)
}

// Status is the lifecycle state of a Writer.
type Status int

const (
	StatusUnknown Status = iota
	StatusWriting
	StatusCompleted
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusWriting:
		return "writing"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Encoder converts appended samples into the track codec. It runs on the
// writer's worker goroutine and may buffer: Encode can return zero or more
// samples, and Flush drains whatever is left at the end.
type Encoder interface {
	Encode(s *media.Sample) ([]*media.Sample, error)
	Flush() ([]*media.Sample, error)
}

// TrackSpec describes one track. Exactly one settings pointer matching Kind
// must be set.
type TrackSpec struct {
	Kind     media.Kind
	Audio    *trackconfig.AudioSettings
	Video    *trackconfig.VideoSettings
	Timecode *trackconfig.TimecodeSettings
	// Encoder is required for lossy audio and for raw video input.
	Encoder Encoder
}

func (s TrackSpec) validate() error {
	switch s.Kind {
	case media.KindAudio:
		if s.Audio == nil {
			return errors.Wrap(trackconfig.ErrInvalidAudio, "missing audio settings")
		}
		if s.Audio.Codec.IsLossy() && s.Encoder == nil {
			return errors.Wrapf(ErrEncoderRequired, "audio codec %s", s.Audio.Codec)
		}
	case media.KindVideo:
		if s.Video == nil {
			return errors.Wrap(trackconfig.ErrInvalidVideo, "missing video settings")
		}
	case media.KindTimecode:
		if s.Timecode == nil {
			return errors.Wrap(trackconfig.ErrInvalidTimecode, "missing timecode settings")
		}
	default:
		return errors.Errorf("invalid track kind %d", int(s.Kind))
	}
	return nil
}

// Track accepts samples for one stream of the container.
type Track interface {
	Kind() media.Kind
	// ReadyForMoreData reports whether Append would accept a sample now.
	ReadyForMoreData() bool
	// Append queues s without blocking. It fails with ErrNotReady when the
	// track queue is full.
	Append(s *media.Sample) error
	// MarkFinished rejects further appends.
	MarkFinished()
}
