package media

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/babelcloud/gbox/packages/recorder/internal/chanlayout"
)

// Format describes how a sample payload is encoded.
type Format interface {
	Kind() Kind
	isFormat()
}

// AudioCodec is the codec of an audio stream.
type AudioCodec int

const (
	AudioCodecUnknown AudioCodec = iota
	AudioCodecLPCM
	AudioCodecAAC
	AudioCodecHEAAC
)

func (c AudioCodec) String() string {
	switch c {
	case AudioCodecLPCM:
		return "lpcm"
	case AudioCodecAAC:
		return "aac"
	case AudioCodecHEAAC:
		return "he-aac"
	default:
		return "unknown"
	}
}

// IsLossy reports whether c belongs to the perceptual codec family.
func (c AudioCodec) IsLossy() bool {
	return c == AudioCodecAAC || c == AudioCodecHEAAC
}

// ParseAudioCodec maps a configuration string to an AudioCodec.
func ParseAudioCodec(s string) (AudioCodec, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lpcm", "pcm":
		return AudioCodecLPCM, nil
	case "aac", "aac-lc":
		return AudioCodecAAC, nil
	case "he-aac", "heaac", "aac-he":
		return AudioCodecHEAAC, nil
	}
	return AudioCodecUnknown, errors.Errorf("unknown audio codec %q", s)
}

// VideoCodec is the codec of a video stream.
type VideoCodec int

const (
	VideoCodecUnknown VideoCodec = iota
	VideoCodecRaw
	VideoCodecH264
	VideoCodecH265
)

func (c VideoCodec) String() string {
	switch c {
	case VideoCodecRaw:
		return "raw"
	case VideoCodecH264:
		return "h264"
	case VideoCodecH265:
		return "h265"
	default:
		return "unknown"
	}
}

// ParseVideoCodec maps a configuration string to a VideoCodec.
func ParseVideoCodec(s string) (VideoCodec, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "h264", "avc":
		return VideoCodecH264, nil
	case "h265", "hevc":
		return VideoCodecH265, nil
	case "raw":
		return VideoCodecRaw, nil
	}
	return VideoCodecUnknown, errors.Errorf("unknown video codec %q", s)
}

// StreamDescription describes an audio stream, one packet of
// FramesPerPacket frames at a time.
type StreamDescription struct {
	Codec           AudioCodec
	SampleRate      int
	ChannelCount    int
	BitsPerChannel  int
	BytesPerFrame   int
	FramesPerPacket int
	BytesPerPacket  int
	Float           bool
	BigEndian       bool
	NonInterleaved  bool
}

// PCMDescription returns an interleaved little-endian integer PCM
// description.
func PCMDescription(sampleRate, channels, bits int) StreamDescription {
	bytesPerFrame := channels * bits / 8
	return StreamDescription{
		Codec:           AudioCodecLPCM,
		SampleRate:      sampleRate,
		ChannelCount:    channels,
		BitsPerChannel:  bits,
		BytesPerFrame:   bytesPerFrame,
		FramesPerPacket: 1,
		BytesPerPacket:  bytesPerFrame,
	}
}

// SampleWidth returns the size in bytes of one channel sample.
func (d StreamDescription) SampleWidth() int {
	return d.BitsPerChannel / 8
}

// FrameCount returns the number of frames in a payload of n bytes.
func (d StreamDescription) FrameCount(n int) int {
	if d.BytesPerFrame <= 0 {
		return 0
	}
	return n / d.BytesPerFrame
}

// Validate checks internal consistency of an LPCM description.
func (d StreamDescription) Validate() error {
	if d.SampleRate <= 0 {
		return errors.Errorf("invalid sample rate %d", d.SampleRate)
	}
	if d.ChannelCount <= 0 {
		return errors.Errorf("invalid channel count %d", d.ChannelCount)
	}
	if d.Codec != AudioCodecLPCM {
		return nil
	}
	if d.BitsPerChannel <= 0 || d.BitsPerChannel%8 != 0 {
		return errors.Errorf("invalid bits per channel %d", d.BitsPerChannel)
	}
	if !d.NonInterleaved && d.BytesPerFrame != d.ChannelCount*d.SampleWidth() {
		return errors.Errorf("bytes per frame %d does not match %d channels of %d bits",
			d.BytesPerFrame, d.ChannelCount, d.BitsPerChannel)
	}
	return nil
}

// Rational is an exact frame rate, e.g. 30000/1001.
type Rational struct {
	Num int
	Den int
}

// Float64 returns r as a floating point value.
func (r Rational) Float64() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// Valid reports whether both terms are positive.
func (r Rational) Valid() bool {
	return r.Num > 0 && r.Den > 0
}

// IsNTSC reports whether r is one of the 1000/1001 pulled-down rates.
func (r Rational) IsNTSC() bool {
	return r.Den == 1001 && r.Num%1000 == 0
}

// Quanta returns the nominal integer frame count per second (30 for 29.97).
func (r Rational) Quanta() int {
	return int(math.Round(r.Float64()))
}

// FrameDuration returns the duration of a single frame, truncated to the
// nanosecond.
func (r Rational) FrameDuration() time.Duration {
	if !r.Valid() {
		return 0
	}
	return time.Duration(int64(time.Second) * int64(r.Den) / int64(r.Num))
}

// FrameTime returns the presentation time of frame n without accumulating
// rounding error.
func (r Rational) FrameTime(n int64) time.Duration {
	if !r.Valid() {
		return 0
	}
	return time.Duration(n * int64(time.Second) * int64(r.Den) / int64(r.Num))
}

func (r Rational) String() string {
	if r.Den == 1 {
		return fmt.Sprintf("%d", r.Num)
	}
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// AudioFormat describes an audio sample payload.
type AudioFormat struct {
	Stream StreamDescription
	Layout chanlayout.Layout
}

func (*AudioFormat) Kind() Kind { return KindAudio }
func (*AudioFormat) isFormat()  {}

// ParameterSets carries out-of-band codec configuration for video.
type ParameterSets struct {
	VPS []byte
	SPS []byte
	PPS []byte
}

// VideoFormat describes a video sample payload.
type VideoFormat struct {
	Codec      VideoCodec
	Width      int
	Height     int
	FrameRate  Rational
	Interlaced bool
	Params     ParameterSets
}

func (*VideoFormat) Kind() Kind { return KindVideo }
func (*VideoFormat) isFormat()  {}

// TimecodeFormat describes timecode sample payloads, each a 4-byte
// big-endian frame number.
type TimecodeFormat struct {
	FrameRate Rational
	DropFrame bool
	Source    string
}

func (*TimecodeFormat) Kind() Kind { return KindTimecode }
func (*TimecodeFormat) isFormat()  {}
