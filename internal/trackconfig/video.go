package trackconfig

import (
	"github.com/pkg/errors"

	"github.com/babelcloud/gbox/packages/recorder/internal/media"
)

// FieldDetail describes how interlaced fields are ordered.
type FieldDetail int

const (
	Progressive FieldDetail = iota
	TopFieldFirst
	BottomFieldFirst
)

func (f FieldDetail) String() string {
	switch f {
	case TopFieldFirst:
		return "top-first"
	case BottomFieldFirst:
		return "bottom-first"
	default:
		return "progressive"
	}
}

// VideoRequest is the user side of the video configuration.
type VideoRequest struct {
	Codec media.VideoCodec
	// Bitrate in bits per second, 0 for the default.
	Bitrate int
	// KeyFrameInterval in frames, 0 for two seconds worth.
	KeyFrameInterval int
	// Timescale is the preferred track timescale, 0 to derive it from the
	// frame rate.
	Timescale uint32
	Profile   string
}

// VideoSettings is the output configuration of the video track.
type VideoSettings struct {
	Codec            media.VideoCodec
	Width            int
	Height           int
	FrameRate        media.Rational
	PixelAspect      PixelAspect
	CleanAperture    CleanAperture
	FieldDetail      FieldDetail
	Profile          string
	Bitrate          int
	KeyFrameInterval int
	Timescale        uint32
	Params           media.ParameterSets
}

// Format returns the format the track must be primed with.
func (s VideoSettings) Format() *media.VideoFormat {
	return &media.VideoFormat{
		Codec:      s.Codec,
		Width:      s.Width,
		Height:     s.Height,
		FrameRate:  s.FrameRate,
		Interlaced: s.FieldDetail != Progressive,
		Params:     s.Params,
	}
}

// Validate checks the settings after construction and after hooks.
func (s VideoSettings) Validate() error {
	if s.Codec != media.VideoCodecH264 && s.Codec != media.VideoCodecH265 {
		return errors.Wrapf(ErrInvalidVideo, "codec %s", s.Codec)
	}
	if s.Width <= 0 || s.Height <= 0 || s.Width%2 != 0 || s.Height%2 != 0 {
		return errors.Wrapf(ErrInvalidVideo, "dimensions %dx%d", s.Width, s.Height)
	}
	if !s.FrameRate.Valid() {
		return errors.Wrapf(ErrInvalidVideo, "frame rate %s", s.FrameRate)
	}
	if s.PixelAspect.H <= 0 || s.PixelAspect.V <= 0 {
		return errors.Wrapf(ErrInvalidVideo, "pixel aspect %d:%d", s.PixelAspect.H, s.PixelAspect.V)
	}
	if s.CleanAperture.Width <= 0 || s.CleanAperture.Width > s.Width ||
		s.CleanAperture.Height <= 0 || s.CleanAperture.Height > s.Height {
		return errors.Wrapf(ErrInvalidVideo, "clean aperture %dx%d", s.CleanAperture.Width, s.CleanAperture.Height)
	}
	if s.Bitrate <= 0 {
		return errors.Wrapf(ErrInvalidVideo, "bitrate %d", s.Bitrate)
	}
	if s.KeyFrameInterval <= 0 {
		return errors.Wrapf(ErrInvalidVideo, "key frame interval %d", s.KeyFrameInterval)
	}
	if s.Timescale == 0 {
		return errors.Wrap(ErrInvalidVideo, "zero timescale")
	}
	return nil
}

var defaultProfiles = map[media.VideoCodec]string{
	media.VideoCodecH264: "high",
	media.VideoCodecH265: "main",
}

// bits per pixel per frame used for the default bitrate
var defaultDensity = map[media.VideoCodec]float64{
	media.VideoCodecH264: 0.1,
	media.VideoCodecH265: 0.06,
}

// BuildVideoOutputSettings maps a preset, the source hint and the request
// to track settings. The hint wins over the preset for dimensions and frame
// rate when it carries them.
func BuildVideoOutputSettings(preset VideoPreset, hint media.VideoFormat, req VideoRequest) (VideoSettings, error) {
	s := VideoSettings{
		Codec:            req.Codec,
		Width:            preset.Width,
		Height:           preset.Height,
		FrameRate:        preset.FrameRate,
		PixelAspect:      preset.PixelAspect,
		CleanAperture:    preset.CleanAperture,
		Profile:          req.Profile,
		Bitrate:          req.Bitrate,
		KeyFrameInterval: req.KeyFrameInterval,
		Timescale:        req.Timescale,
		Params:           hint.Params,
	}
	if hint.Width > 0 && hint.Height > 0 && (hint.Width != s.Width || hint.Height != s.Height) {
		s.Width, s.Height = hint.Width, hint.Height
		s.CleanAperture = CleanAperture{Width: hint.Width, Height: hint.Height}
	}
	if hint.FrameRate.Valid() {
		s.FrameRate = hint.FrameRate
	}
	if s.PixelAspect == (PixelAspect{}) {
		s.PixelAspect = square
	}
	if s.CleanAperture == (CleanAperture{}) {
		s.CleanAperture = CleanAperture{Width: s.Width, Height: s.Height}
	}

	if hint.Interlaced || preset.Interlaced {
		s.FieldDetail = TopFieldFirst
		// NTSC SD is the one common bottom-first format.
		if s.Height == 486 || s.Height == 480 {
			s.FieldDetail = BottomFieldFirst
		}
	}

	if s.Profile == "" {
		s.Profile = defaultProfiles[s.Codec]
	}
	if s.Bitrate <= 0 && s.FrameRate.Valid() {
		s.Bitrate = int(float64(s.Width*s.Height) * s.FrameRate.Float64() * defaultDensity[s.Codec])
	}
	if s.KeyFrameInterval <= 0 {
		s.KeyFrameInterval = 2 * s.FrameRate.Quanta()
	}
	if s.Timescale == 0 {
		s.Timescale = FrameTimescale(s.FrameRate)
	}
	return s, s.Validate()
}

// FrameTimescale derives a track timescale in which every frame of rate
// lasts a whole number of ticks.
func FrameTimescale(rate media.Rational) uint32 {
	if !rate.Valid() {
		return 0
	}
	if rate.Num >= 1000 {
		return uint32(rate.Num)
	}
	return uint32(rate.Num * 1000)
}
