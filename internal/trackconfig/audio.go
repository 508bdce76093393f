// Package trackconfig turns user configuration and source format hints into
// per-track output settings for the container writer.
package trackconfig

import (
	"github.com/pkg/errors"

	"github.com/babelcloud/gbox/packages/recorder/internal/chanlayout"
	"github.com/babelcloud/gbox/packages/recorder/internal/media"
	"github.com/babelcloud/gbox/packages/recorder/internal/remap"
)

var (
	ErrInvalidAudio    = errors.New("invalid audio settings")
	ErrInvalidVideo    = errors.New("invalid video settings")
	ErrInvalidTimecode = errors.New("invalid timecode settings")
)

// MaxLossySampleRate is the highest output rate of the lossy codecs.
const MaxLossySampleRate = 48000

// AudioSettings is the output configuration of the audio track.
type AudioSettings struct {
	Codec media.AudioCodec
	// SampleRate is the encoded rate, clipped for lossy codecs.
	SampleRate int
	// Channels is the number of channels the track declares.
	Channels int
	// ActiveChannels is the number of channels that carry audio.
	ActiveChannels int
	// Bitrate in bits per second. Zero for LPCM.
	Bitrate int
	// Stream is the PCM format fed to the encoder, after any remap.
	Stream media.StreamDescription
	Layout chanlayout.Layout
	Mode   remap.Mode
	// Remap is set when samples must be reordered before encoding.
	Remap *remap.Plan
}

// Format returns the format the track must be primed with.
func (s AudioSettings) Format() *media.AudioFormat {
	return &media.AudioFormat{Stream: s.Stream, Layout: s.Layout}
}

// Validate checks the settings after construction and after hooks.
func (s AudioSettings) Validate() error {
	switch s.Codec {
	case media.AudioCodecLPCM:
		if err := s.Stream.Validate(); err != nil {
			return errors.Wrap(ErrInvalidAudio, err.Error())
		}
	case media.AudioCodecAAC, media.AudioCodecHEAAC:
		if s.SampleRate <= 0 || s.SampleRate > MaxLossySampleRate {
			return errors.Wrapf(ErrInvalidAudio, "sample rate %d", s.SampleRate)
		}
		if s.ActiveChannels <= 0 || s.ActiveChannels > s.Channels {
			return errors.Wrapf(ErrInvalidAudio, "%d active of %d channels", s.ActiveChannels, s.Channels)
		}
		lo, hi := BitrateRange(s.Codec, s.ActiveChannels)
		if s.Bitrate < lo || s.Bitrate > hi {
			return errors.Wrapf(ErrInvalidAudio, "bitrate %d outside [%d, %d]", s.Bitrate, lo, hi)
		}
	default:
		return errors.Wrapf(ErrInvalidAudio, "codec %s", s.Codec)
	}
	if s.Channels <= 0 {
		return errors.Wrapf(ErrInvalidAudio, "%d channels", s.Channels)
	}
	if s.Remap != nil && s.Remap.OutputChannels() != s.Channels {
		return errors.Wrapf(ErrInvalidAudio, "remap emits %d channels, track declares %d",
			s.Remap.OutputChannels(), s.Channels)
	}
	return nil
}

// BuildAudioOutputSettings derives the audio track settings for a source.
// LPCM passes the source through unchanged. The lossy codecs get a remap
// into codec channel order: compact for 2, 3, 6 and 8 valid channels, wide
// for any other count. A non-positive bitrate selects the codec default.
func BuildAudioOutputSettings(src media.StreamDescription, layout chanlayout.Layout, codec media.AudioCodec, bitrate int) (AudioSettings, error) {
	return buildAudio(src, layout, codec, bitrate, nil)
}

// BuildAudioOutputSettingsForMode is BuildAudioOutputSettings with the remap
// mode chosen by the caller. Compact mode fails for channel counts that have
// no compact layout.
func BuildAudioOutputSettingsForMode(src media.StreamDescription, layout chanlayout.Layout, codec media.AudioCodec, bitrate int, mode remap.Mode) (AudioSettings, error) {
	return buildAudio(src, layout, codec, bitrate, &mode)
}

func buildAudio(src media.StreamDescription, layout chanlayout.Layout, codec media.AudioCodec, bitrate int, forced *remap.Mode) (AudioSettings, error) {
	if err := src.Validate(); err != nil {
		return AudioSettings{}, errors.Wrap(ErrInvalidAudio, err.Error())
	}

	if !codec.IsLossy() {
		if codec != media.AudioCodecLPCM {
			return AudioSettings{}, errors.Wrapf(ErrInvalidAudio, "codec %s", codec)
		}
		active := chanlayout.CountValidChannels(layout)
		if active == 0 {
			active = src.ChannelCount
		}
		s := AudioSettings{
			Codec:          codec,
			SampleRate:     src.SampleRate,
			Channels:       src.ChannelCount,
			ActiveChannels: active,
			Stream:         src,
			Layout:         layout,
		}
		return s, s.Validate()
	}

	a := chanlayout.Analyze(layout)
	if a.Valid == 0 {
		return AudioSettings{}, errors.Wrapf(ErrInvalidAudio, "no valid channels in %v", layout)
	}
	mode := remap.ModeCompact
	switch {
	case forced != nil:
		mode = *forced
	case !remap.Supported(a.Valid):
		mode = remap.ModeWide
	}
	plan, ok := remap.NewPlan(src, layout, mode)
	if !ok {
		return AudioSettings{}, errors.Wrapf(ErrInvalidAudio, "cannot remap %d of %d channels (%s, %d bit)",
			a.Valid, src.ChannelCount, src.Codec, src.BitsPerChannel)
	}

	rate := src.SampleRate
	if rate > MaxLossySampleRate {
		rate = MaxLossySampleRate
	}
	if bitrate <= 0 {
		bitrate = DefaultBitrate(codec, a.Valid)
	}

	s := AudioSettings{
		Codec:          codec,
		SampleRate:     rate,
		Channels:       plan.OutputChannels(),
		ActiveChannels: a.Valid,
		Bitrate:        ClipBitrate(codec, a.Valid, bitrate),
		Stream:         plan.Output,
		Layout:         plan.Layout,
		Mode:           mode,
	}
	if plan.Reorders() {
		s.Remap = plan
	}
	return s, s.Validate()
}

// EffectiveChannels returns the channel count used for bitrate ranges. The
// LFE channel is not counted once there are more than five channels.
func EffectiveChannels(channels int) int {
	if channels > 5 {
		return channels - 1
	}
	return channels
}

// BitrateRange returns the inclusive bitrate bounds for codec at the given
// number of active channels.
func BitrateRange(codec media.AudioCodec, channels int) (lo, hi int) {
	if channels <= 2 {
		switch codec {
		case media.AudioCodecAAC:
			return 32_000, 320_000
		case media.AudioCodecHEAAC:
			return 24_000, 128_000
		}
		return 0, 0
	}
	eff := EffectiveChannels(channels)
	switch codec {
	case media.AudioCodecAAC:
		return 40_000 * eff, 160_000 * eff
	case media.AudioCodecHEAAC:
		return 20_000 * eff, 64_000 * eff
	}
	return 0, 0
}

// ClipBitrate clamps requested into the valid range of codec. Codecs
// without a range return requested unchanged.
func ClipBitrate(codec media.AudioCodec, channels, requested int) int {
	lo, hi := BitrateRange(codec, channels)
	if hi == 0 {
		return requested
	}
	if requested < lo {
		return lo
	}
	if requested > hi {
		return hi
	}
	return requested
}

// DefaultBitrate is the bitrate used when none is configured.
func DefaultBitrate(codec media.AudioCodec, channels int) int {
	switch codec {
	case media.AudioCodecAAC:
		if channels <= 2 {
			return 192_000
		}
		return 96_000 * EffectiveChannels(channels)
	case media.AudioCodecHEAAC:
		if channels <= 2 {
			return 64_000
		}
		return 32_000 * EffectiveChannels(channels)
	}
	return 0
}
