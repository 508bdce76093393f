package trackconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babelcloud/gbox/packages/recorder/internal/chanlayout"
	"github.com/babelcloud/gbox/packages/recorder/internal/media"
	"github.com/babelcloud/gbox/packages/recorder/internal/remap"
)

func TestClipBitrate(t *testing.T) {
	tests := []struct {
		name      string
		codec     media.AudioCodec
		channels  int
		requested int
		want      int
	}{
		{"5.1 aac ceiling", media.AudioCodecAAC, 6, 1_000_000, 800_000},
		{"5.1 aac floor", media.AudioCodecAAC, 6, 1_000, 200_000},
		{"5.1 aac in range", media.AudioCodecAAC, 6, 384_000, 384_000},
		{"7.1 aac ceiling", media.AudioCodecAAC, 8, 2_000_000, 1_120_000},
		{"3.0 aac keeps all channels", media.AudioCodecAAC, 3, 1_000_000, 480_000},
		{"5ch aac keeps all channels", media.AudioCodecAAC, 5, 1, 200_000},
		{"stereo aac ceiling", media.AudioCodecAAC, 2, 500_000, 320_000},
		{"stereo aac floor", media.AudioCodecAAC, 2, 8_000, 32_000},
		{"mono he-aac", media.AudioCodecHEAAC, 1, 8_000, 24_000},
		{"stereo he-aac ceiling", media.AudioCodecHEAAC, 2, 256_000, 128_000},
		{"5.1 he-aac ceiling", media.AudioCodecHEAAC, 6, 1_000_000, 320_000},
		{"5.1 he-aac floor", media.AudioCodecHEAAC, 6, 0, 100_000},
		{"lpcm untouched", media.AudioCodecLPCM, 6, 1_000, 1_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClipBitrate(tt.codec, tt.channels, tt.requested))
		})
	}
}

func hardware16() media.StreamDescription {
	return media.PCMDescription(48000, chanlayout.HardwareSlots, 16)
}

func TestBuildAudioOutputSettingsCompact(t *testing.T) {
	for _, valid := range []int{2, 3, 6, 8} {
		s, err := BuildAudioOutputSettings(hardware16(), chanlayout.HardwareLabels(valid, false), media.AudioCodecAAC, 1_000_000)
		require.NoError(t, err, "valid=%d", valid)

		tag, ok := chanlayout.CompactTag(valid)
		require.True(t, ok)
		assert.Equal(t, remap.ModeCompact, s.Mode)
		assert.Equal(t, valid, s.Channels)
		assert.Equal(t, valid, s.ActiveChannels)
		assert.Equal(t, chanlayout.TagLayout(tag), s.Layout)
		assert.Equal(t, valid, s.Stream.ChannelCount)
		require.NotNil(t, s.Remap, "8 slots always need a remap")
		assert.Equal(t, valid, s.Remap.OutputChannels())
	}
}

func TestBuildAudioOutputSettingsBitrate(t *testing.T) {
	s, err := BuildAudioOutputSettings(hardware16(), chanlayout.HardwareLabels(6, true), media.AudioCodecAAC, 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, 800_000, s.Bitrate)

	s, err = BuildAudioOutputSettings(hardware16(), chanlayout.HardwareLabels(6, true), media.AudioCodecAAC, 1_000)
	require.NoError(t, err)
	assert.Equal(t, 200_000, s.Bitrate)

	s, err = BuildAudioOutputSettings(hardware16(), chanlayout.HardwareLabels(2, false), media.AudioCodecHEAAC, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultBitrate(media.AudioCodecHEAAC, 2), s.Bitrate)
}

func TestBuildAudioOutputSettingsClipsSampleRate(t *testing.T) {
	src := media.PCMDescription(96000, 2, 32)
	s, err := BuildAudioOutputSettings(src, chanlayout.TagLayout(chanlayout.TagStereo), media.AudioCodecAAC, 0)
	require.NoError(t, err)
	assert.Equal(t, MaxLossySampleRate, s.SampleRate)
	assert.Equal(t, 96000, s.Stream.SampleRate, "encoder input keeps the source rate")
	assert.Nil(t, s.Remap, "plain stereo needs no reorder")
}

func TestBuildAudioOutputSettingsWideFallback(t *testing.T) {
	s, err := BuildAudioOutputSettings(hardware16(), chanlayout.HardwareLabels(5, false), media.AudioCodecAAC, 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, remap.ModeWide, s.Mode)
	assert.Equal(t, remap.WideChannels, s.Channels)
	assert.Equal(t, 5, s.ActiveChannels)
	assert.Equal(t, 800_000, s.Bitrate)
	assert.Equal(t, chanlayout.HardwareLabels(5, false), s.Layout)
	assert.Nil(t, s.Remap, "pass-through of 8 slots into 8 channels")
}

func TestBuildAudioOutputSettingsForMode(t *testing.T) {
	s, err := BuildAudioOutputSettingsForMode(hardware16(), chanlayout.HardwareLabels(6, false), media.AudioCodecAAC, 0, remap.ModeWide)
	require.NoError(t, err)
	assert.Equal(t, remap.ModeWide, s.Mode)
	assert.Equal(t, remap.WideChannels, s.Channels)
	assert.Equal(t, 6, s.ActiveChannels)
	require.NotNil(t, s.Remap)
	assert.Equal(t, remap.WideChannels, s.Remap.OutputChannels())

	_, err = BuildAudioOutputSettingsForMode(hardware16(), chanlayout.HardwareLabels(5, false), media.AudioCodecAAC, 0, remap.ModeCompact)
	assert.ErrorIs(t, err, ErrInvalidAudio)
}

func TestBuildAudioOutputSettingsLPCM(t *testing.T) {
	layout := chanlayout.HardwareLabels(6, true)
	s, err := BuildAudioOutputSettings(hardware16(), layout, media.AudioCodecLPCM, 1_000)
	require.NoError(t, err)
	assert.Equal(t, hardware16(), s.Stream)
	assert.Equal(t, layout, s.Layout)
	assert.Equal(t, 8, s.Channels)
	assert.Equal(t, 0, s.Bitrate)
	assert.Nil(t, s.Remap)
}

func TestBuildAudioOutputSettingsErrors(t *testing.T) {
	_, err := BuildAudioOutputSettings(hardware16(), chanlayout.Labels{chanlayout.LabelUnused}, media.AudioCodecAAC, 0)
	assert.ErrorIs(t, err, ErrInvalidAudio)

	_, err = BuildAudioOutputSettings(media.PCMDescription(48000, 8, 24), chanlayout.HardwareLabels(6, false), media.AudioCodecAAC, 0)
	assert.ErrorIs(t, err, ErrInvalidAudio, "24-bit cannot be remapped")

	_, err = BuildAudioOutputSettings(media.StreamDescription{}, nil, media.AudioCodecLPCM, 0)
	assert.ErrorIs(t, err, ErrInvalidAudio)

	_, err = BuildAudioOutputSettings(hardware16(), chanlayout.HardwareLabels(2, false), media.AudioCodecUnknown, 0)
	assert.ErrorIs(t, err, ErrInvalidAudio)
}

func TestBuildVideoOutputSettings(t *testing.T) {
	preset, ok := LookupPreset("1080i59.94")
	require.True(t, ok)

	s, err := BuildVideoOutputSettings(preset, media.VideoFormat{}, VideoRequest{Codec: media.VideoCodecH264})
	require.NoError(t, err)
	assert.Equal(t, 1920, s.Width)
	assert.Equal(t, 1080, s.Height)
	assert.Equal(t, TopFieldFirst, s.FieldDetail)
	assert.Equal(t, "high", s.Profile)
	assert.Equal(t, uint32(30000), s.Timescale)
	assert.Equal(t, 60, s.KeyFrameInterval)
	assert.Positive(t, s.Bitrate)

	ntsc, ok := LookupPreset("ntsc")
	require.True(t, ok)
	s, err = BuildVideoOutputSettings(ntsc, media.VideoFormat{}, VideoRequest{Codec: media.VideoCodecH265, Timescale: 90000, Bitrate: 5_000_000})
	require.NoError(t, err)
	assert.Equal(t, BottomFieldFirst, s.FieldDetail)
	assert.Equal(t, PixelAspect{H: 10, V: 11}, s.PixelAspect)
	assert.Equal(t, CleanAperture{Width: 704, Height: 480}, s.CleanAperture)
	assert.Equal(t, uint32(90000), s.Timescale)
	assert.Equal(t, 5_000_000, s.Bitrate)
	assert.Equal(t, "main", s.Profile)
}

func TestBuildVideoOutputSettingsHint(t *testing.T) {
	preset, _ := LookupPreset("1080p25")
	hint := media.VideoFormat{Width: 1280, Height: 720, FrameRate: media.Rational{Num: 50, Den: 1}, Interlaced: true}

	s, err := BuildVideoOutputSettings(preset, hint, VideoRequest{Codec: media.VideoCodecH264})
	require.NoError(t, err)
	assert.Equal(t, 1280, s.Width)
	assert.Equal(t, CleanAperture{Width: 1280, Height: 720}, s.CleanAperture)
	assert.Equal(t, uint32(50000), s.Timescale)
	assert.Equal(t, TopFieldFirst, s.FieldDetail)
	assert.True(t, s.Format().Interlaced)
}

func TestBuildVideoOutputSettingsErrors(t *testing.T) {
	preset, _ := LookupPreset("1080p30")

	_, err := BuildVideoOutputSettings(preset, media.VideoFormat{}, VideoRequest{Codec: media.VideoCodecRaw})
	assert.ErrorIs(t, err, ErrInvalidVideo)

	_, err = BuildVideoOutputSettings(VideoPreset{}, media.VideoFormat{}, VideoRequest{Codec: media.VideoCodecH264})
	assert.ErrorIs(t, err, ErrInvalidVideo)
}

func TestBuildTimecodeOutputSettings(t *testing.T) {
	s, err := BuildTimecodeOutputSettings(media.TimecodeFormat{FrameRate: media.Rational{Num: 30000, Den: 1001}, DropFrame: true}, TimecodeRequest{})
	require.NoError(t, err)
	assert.Equal(t, 30, s.Quanta)
	assert.True(t, s.DropFrame)
	assert.Equal(t, uint32(30000), s.Timescale)
	assert.Equal(t, uint32(1001), s.FrameTicks)
	assert.Equal(t, DefaultTimecodeSource, s.Source)

	s, err = BuildTimecodeOutputSettings(media.TimecodeFormat{FrameRate: media.Rational{Num: 25, Den: 1}, Source: "deck"}, TimecodeRequest{})
	require.NoError(t, err)
	assert.Equal(t, uint32(25000), s.Timescale)
	assert.Equal(t, uint32(1000), s.FrameTicks)
	assert.Equal(t, "deck", s.Source)

	_, err = BuildTimecodeOutputSettings(media.TimecodeFormat{FrameRate: media.Rational{Num: 25, Den: 1}, DropFrame: true}, TimecodeRequest{})
	assert.ErrorIs(t, err, ErrInvalidTimecode)

	_, err = BuildTimecodeOutputSettings(media.TimecodeFormat{FrameRate: media.Rational{Num: 30000, Den: 1001}}, TimecodeRequest{Timescale: 600})
	assert.ErrorIs(t, err, ErrInvalidTimecode, "29.97 does not divide 600")

	_, err = BuildTimecodeOutputSettings(media.TimecodeFormat{}, TimecodeRequest{})
	assert.ErrorIs(t, err, ErrInvalidTimecode)
}

func TestHooks(t *testing.T) {
	s, err := BuildAudioOutputSettings(hardware16(), chanlayout.HardwareLabels(6, false), media.AudioCodecAAC, 0)
	require.NoError(t, err)

	h := Hooks{Audio: func(in AudioSettings) AudioSettings {
		in.Bitrate = 256_000
		return in
	}}
	out, err := h.ApplyAudio(s)
	require.NoError(t, err)
	assert.Equal(t, 256_000, out.Bitrate)

	h.Audio = func(in AudioSettings) AudioSettings {
		in.Bitrate = 5_000_000
		return in
	}
	_, err = h.ApplyAudio(s)
	assert.ErrorIs(t, err, ErrInvalidAudio, "hook output is re-validated")

	preset, _ := LookupPreset("720p60")
	v, err := BuildVideoOutputSettings(preset, media.VideoFormat{}, VideoRequest{Codec: media.VideoCodecH264})
	require.NoError(t, err)
	h.Video = func(in VideoSettings) VideoSettings {
		in.Width = 0
		return in
	}
	_, err = h.ApplyVideo(v)
	assert.ErrorIs(t, err, ErrInvalidVideo)

	var none Hooks
	tc := TimecodeSettings{Quanta: 1}
	got, err := none.ApplyTimecode(tc)
	require.NoError(t, err, "nil hook skips validation")
	assert.Equal(t, tc, got)
}

func TestPresetNames(t *testing.T) {
	names := PresetNames()
	require.Len(t, names, len(Presets))
	for i := 1; i < len(names); i++ {
		assert.Less(t, names[i-1], names[i])
	}
	for _, name := range names {
		p, _ := LookupPreset(name)
		assert.Equal(t, name, p.Name)
	}
}
