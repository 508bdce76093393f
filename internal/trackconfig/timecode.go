package trackconfig

import (
	"github.com/pkg/errors"

	"github.com/babelcloud/gbox/packages/recorder/internal/media"
	"github.com/babelcloud/gbox/packages/recorder/internal/timecode"
)

// DefaultTimecodeSource names the timecode track when the request has none.
const DefaultTimecodeSource = "recorder"

// TimecodeRequest is the user side of the timecode configuration.
type TimecodeRequest struct {
	Timescale uint32
	Source    string
}

// TimecodeSettings is the output configuration of the timecode track.
type TimecodeSettings struct {
	FrameRate media.Rational
	Quanta    int
	DropFrame bool
	Timescale uint32
	// FrameTicks is the duration of one frame in Timescale units.
	FrameTicks uint32
	Source     string
}

// Format returns the format the track must be primed with.
func (s TimecodeSettings) Format() *media.TimecodeFormat {
	return &media.TimecodeFormat{FrameRate: s.FrameRate, DropFrame: s.DropFrame, Source: s.Source}
}

// Validate checks the settings after construction and after hooks.
func (s TimecodeSettings) Validate() error {
	if !s.FrameRate.Valid() || s.Quanta <= 0 {
		return errors.Wrapf(ErrInvalidTimecode, "frame rate %s", s.FrameRate)
	}
	if s.DropFrame && !(s.FrameRate.IsNTSC() && timecode.SupportsDropFrame(s.Quanta)) {
		return errors.Wrapf(ErrInvalidTimecode, "drop frame at %s", s.FrameRate)
	}
	if s.Timescale == 0 || s.FrameTicks == 0 {
		return errors.Wrapf(ErrInvalidTimecode, "timescale %d", s.Timescale)
	}
	if uint64(s.FrameTicks)*uint64(s.FrameRate.Num) != uint64(s.Timescale)*uint64(s.FrameRate.Den) {
		return errors.Wrapf(ErrInvalidTimecode, "%s does not divide timescale %d", s.FrameRate, s.Timescale)
	}
	return nil
}

// BuildTimecodeOutputSettings derives the timecode track settings from the
// format delivered by the source.
func BuildTimecodeOutputSettings(format media.TimecodeFormat, req TimecodeRequest) (TimecodeSettings, error) {
	s := TimecodeSettings{
		FrameRate: format.FrameRate,
		Quanta:    format.FrameRate.Quanta(),
		DropFrame: format.DropFrame,
		Timescale: req.Timescale,
		Source:    req.Source,
	}
	if s.Source == "" {
		s.Source = format.Source
	}
	if s.Source == "" {
		s.Source = DefaultTimecodeSource
	}
	if s.Timescale == 0 {
		s.Timescale = FrameTimescale(s.FrameRate)
	}
	if s.FrameRate.Valid() {
		s.FrameTicks = uint32(uint64(s.Timescale) * uint64(s.FrameRate.Den) / uint64(s.FrameRate.Num))
	}
	return s, s.Validate()
}
