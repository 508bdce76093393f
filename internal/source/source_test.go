package source

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babelcloud/gbox/packages/recorder/internal/chanlayout"
	"github.com/babelcloud/gbox/packages/recorder/internal/media"
	"github.com/babelcloud/gbox/packages/recorder/internal/timecode"
)

var (
	sps = []byte{
		0x67, 0x42, 0xc0, 0x28, 0xd9, 0x00, 0x78, 0x02,
		0x27, 0xe5, 0x84, 0x00, 0x00, 0x03, 0x00, 0x04,
		0x00, 0x00, 0x03, 0x00, 0xf0, 0x3c, 0x60, 0xc9,
		0x20,
	}
	pps    = []byte{0x68, 0xce, 0x38, 0x80}
	idr    = []byte{0x65, 0x88, 0x84, 0x00, 0x10}
	pframe = []byte{0x41, 0x9a, 0x24, 0x8c, 0x09}
)

func annexB(nalus ...[]byte) []byte {
	var buf bytes.Buffer
	for _, n := range nalus {
		buf.Write([]byte{0, 0, 0, 1})
		buf.Write(n)
	}
	return buf.Bytes()
}

func TestToneLayout(t *testing.T) {
	tests := []struct {
		name    string
		valid   int
		reverse bool
	}{
		{"stereo", 2, false},
		{"5.1", 6, false},
		{"5.1 reverse", 6, true},
		{"3.0 reverse", 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tone, err := NewTone(ToneConfig{Valid: tt.valid, Reverse: tt.reverse})
			require.NoError(t, err)

			hint := tone.Hint()
			assert.Equal(t, chanlayout.HardwareSlots, hint.Stream.ChannelCount)
			assert.Equal(t, 16, hint.Stream.BitsPerChannel)
			assert.Equal(t, chanlayout.HardwareLabels(tt.valid, tt.reverse), hint.Layout)
			assert.Equal(t, tt.valid, chanlayout.CountValidChannels(hint.Layout))
		})
	}
}

func TestToneSamples(t *testing.T) {
	tone, err := NewTone(ToneConfig{Valid: 2, Amplitude: 0.5})
	require.NoError(t, err)

	first := tone.Next()
	second := tone.Next()

	const frames = 960
	assert.Equal(t, media.KindAudio, first.Kind)
	assert.Len(t, first.Payload, frames*8*2)
	assert.Zero(t, first.PTS)
	assert.Equal(t, 20*time.Millisecond, first.Duration)
	assert.Equal(t, 20*time.Millisecond, second.PTS)
	require.NoError(t, first.Validate())

	var loud bool
	for f := 0; f < frames; f++ {
		frame := first.Payload[f*16 : (f+1)*16]
		for slot := 2; slot < 8; slot++ {
			require.Zero(t, binary.LittleEndian.Uint16(frame[slot*2:]), "slot %d of frame %d", slot, f)
		}
		if int16(binary.LittleEndian.Uint16(frame)) > 8000 {
			loud = true
		}
	}
	assert.True(t, loud, "left channel carries the tone")
}

func TestTone32Bit(t *testing.T) {
	tone, err := NewTone(ToneConfig{Bits: 32, Valid: 8, Period: 10 * time.Millisecond})
	require.NoError(t, err)

	s := tone.Next()
	assert.Len(t, s.Payload, 480*8*4)
	assert.Equal(t, 32, tone.Hint().Stream.BitsPerChannel)
	assert.Equal(t, 10*time.Millisecond, tone.Period())
}

func TestToneConfigErrors(t *testing.T) {
	for _, cfg := range []ToneConfig{
		{Bits: 24},
		{Valid: 9},
		{Amplitude: 2},
		{Period: time.Microsecond, SampleRate: 8000},
	} {
		_, err := NewTone(cfg)
		assert.Error(t, err, "%+v", cfg)
	}
}

func decodeLabel(t *testing.T, s *media.Sample, quanta int, drop bool) string {
	t.Helper()
	n, err := timecode.Decode(s.Payload)
	require.NoError(t, err)
	return timecode.FromFrame(int64(n), quanta, drop).String()
}

func TestTimecodeSource(t *testing.T) {
	start, err := timecode.Parse("00:59:59:24")
	require.NoError(t, err)
	src, err := NewTimecode(media.Rational{Num: 25, Den: 1}, false, start)
	require.NoError(t, err)

	assert.Equal(t, "00:59:59:24", src.Current().String())
	first := src.Next()
	second := src.Next()
	assert.Equal(t, "00:59:59:24", decodeLabel(t, first, 25, false))
	assert.Equal(t, "01:00:00:00", decodeLabel(t, second, 25, false))
	assert.Zero(t, first.PTS)
	assert.Equal(t, 40*time.Millisecond, first.Duration)
	assert.Equal(t, 40*time.Millisecond, second.PTS)

	hint := src.Hint()
	assert.False(t, hint.DropFrame)
	assert.Equal(t, media.Rational{Num: 25, Den: 1}, hint.FrameRate)
}

func TestTimecodeSourceDropFrame(t *testing.T) {
	rate := media.Rational{Num: 30000, Den: 1001}
	start, err := timecode.Parse("00:00:59;29")
	require.NoError(t, err)
	src, err := NewTimecode(rate, true, start)
	require.NoError(t, err)
	require.True(t, src.Hint().DropFrame)

	assert.Equal(t, "00:00:59;29", decodeLabel(t, src.Next(), 30, true))
	assert.Equal(t, "00:01:00;02", decodeLabel(t, src.Next(), 30, true))

	_, err = NewTimecode(media.Rational{Num: 25, Den: 1}, true, timecode.Timecode{Frames: 30})
	assert.Error(t, err)
	_, err = NewTimecode(media.Rational{}, false, timecode.Timecode{})
	assert.Error(t, err)
}

func TestParseAnnexB(t *testing.T) {
	rate := media.Rational{Num: 30, Den: 1}
	f, err := ParseAnnexB(annexB(sps, pps, idr, pframe, pframe), media.VideoCodecH264, rate)
	require.NoError(t, err)
	require.Equal(t, 3, f.Len())

	hint := f.Hint()
	assert.Equal(t, media.VideoCodecH264, hint.Codec)
	assert.Equal(t, sps, hint.Params.SPS)
	assert.Equal(t, pps, hint.Params.PPS)

	first := f.Next()
	require.NotNil(t, first)
	assert.True(t, first.KeyFrame)
	assert.Equal(t, annexB(sps, pps, idr), first.Payload)

	second := f.Next()
	assert.False(t, second.KeyFrame)
	assert.Equal(t, annexB(pframe), second.Payload)
	assert.Equal(t, rate.FrameTime(1), second.PTS)

	assert.NotNil(t, f.Next())
	assert.Nil(t, f.Next(), "end of stream")
}

func TestParseAnnexBLoop(t *testing.T) {
	f, err := ParseAnnexB(annexB(sps, pps, idr, pframe), media.VideoCodecH264, media.Rational{Num: 25, Den: 1})
	require.NoError(t, err)
	f.Loop = true

	var pts []time.Duration
	for i := 0; i < 5; i++ {
		s := f.Next()
		require.NotNil(t, s)
		pts = append(pts, s.PTS)
	}
	assert.Equal(t, []time.Duration{0, 40 * time.Millisecond, 80 * time.Millisecond, 120 * time.Millisecond, 160 * time.Millisecond}, pts)
}

func TestParseAnnexBErrors(t *testing.T) {
	rate := media.Rational{Num: 30, Den: 1}

	_, err := ParseAnnexB(annexB(sps, pps), media.VideoCodecH264, rate)
	assert.Error(t, err, "no pictures")

	_, err = ParseAnnexB([]byte{1, 2, 3}, media.VideoCodecH264, rate)
	assert.Error(t, err)

	_, err = ParseAnnexB(annexB(idr), media.VideoCodecUnknown, rate)
	assert.Error(t, err)

	_, err = OpenAnnexB(filepath.Join(t.TempDir(), "missing.h264"), media.VideoCodecH264, rate)
	assert.Error(t, err)
}

func TestOpenAnnexB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.h264")
	require.NoError(t, os.WriteFile(path, annexB(sps, pps, idr, pframe), 0o644))

	f, err := OpenAnnexB(path, media.VideoCodecH264, media.Rational{Num: 30, Den: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, f.Len())
}

func TestRunDeliversUntilEnd(t *testing.T) {
	f, err := ParseAnnexB(annexB(sps, pps, idr, pframe, pframe), media.VideoCodecH264, media.Rational{Num: 1000, Den: 1})
	require.NoError(t, err)

	var got []*media.Sample
	err = f.Run(context.Background(), nil, func(_ context.Context, kind media.Kind, s *media.Sample) error {
		assert.Equal(t, media.KindVideo, kind)
		got = append(got, s)
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestRunStopsOnCancel(t *testing.T) {
	tone, err := NewTone(ToneConfig{Period: time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	calls := 0
	err = tone.Run(ctx, nil, func(context.Context, media.Kind, *media.Sample) error {
		calls++
		if calls == 3 {
			cancel()
		}
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, calls, 3)
}

func TestRunStopsOnSinkError(t *testing.T) {
	rate := media.Rational{Num: 1000, Den: 1}
	src, err := NewTimecode(rate, false, timecode.Timecode{})
	require.NoError(t, err)

	boom := errors.New("writer gone")
	err = src.Run(context.Background(), nil, func(context.Context, media.Kind, *media.Sample) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}
