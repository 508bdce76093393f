package remap

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babelcloud/gbox/packages/recorder/internal/chanlayout"
	"github.com/babelcloud/gbox/packages/recorder/internal/media"
)

func pcm16(values ...int16) []byte {
	out := make([]byte, 2*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}

func readPCM16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
	}
	return out
}

func TestBuildPermutation(t *testing.T) {
	for _, valid := range []int{2, 3, 6, 8} {
		for _, reverse := range []bool{false, true} {
			p := BuildPermutation(valid, reverse)
			require.Len(t, p, valid, "valid=%d reverse=%v", valid, reverse)

			seen := map[int]bool{}
			for _, src := range p {
				assert.GreaterOrEqual(t, src, 0)
				assert.Less(t, src, chanlayout.HardwareSlots)
				assert.False(t, seen[src], "duplicate source %d in %v", src, p)
				seen[src] = true
			}
			assert.True(t, p.Valid(chanlayout.HardwareSlots))
		}
	}

	for _, valid := range []int{0, 1, 4, 5, 7, 9} {
		assert.Empty(t, BuildPermutation(valid, false), "valid=%d", valid)
		assert.False(t, Supported(valid))
	}
}

func TestBuildPermutationReturnsCopy(t *testing.T) {
	p := BuildPermutation(6, false)
	p[0] = 7
	assert.Equal(t, Permutation{2, 0, 1, 4, 5, 3}, BuildPermutation(6, false))
}

func TestPermutationHelpers(t *testing.T) {
	p := Permutation{2, 0, 1}
	assert.Equal(t, 2, p.MaxSource())
	assert.Equal(t, Permutation{2, 0, 1, Silence, Silence}, p.Widen(5))
	assert.False(t, p.Valid(2))
	assert.False(t, Permutation(nil).Valid(2))
	assert.Equal(t, Permutation{0, 1, 2}, Identity(3))
}

func TestRemapBuffer(t *testing.T) {
	t.Run("3ch reorder", func(t *testing.T) {
		in := pcm16(10, 20, 30)
		out, err := RemapBuffer(in, 3, 2, BuildPermutation(3, false), 3)
		require.NoError(t, err)
		assert.Equal(t, []int16{30, 10, 20}, readPCM16(out))
		assert.Equal(t, []int16{10, 20, 30}, readPCM16(in), "input must not change")
	})

	t.Run("same input twice gives the same bytes", func(t *testing.T) {
		in := pcm16(1, 2, 3, 4, 5, 6, 7, 8, 11, 12, 13, 14, 15, 16, 17, 18)
		p := BuildPermutation(8, true)
		first, err := RemapBuffer(in, 8, 2, p, 8)
		require.NoError(t, err)
		second, err := RemapBuffer(in, 8, 2, p, 8)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Equal(t, []int16{4, 7, 8, 1, 2, 5, 6, 3, 14, 17, 18, 11, 12, 15, 16, 13}, readPCM16(first))
	})

	t.Run("identity copies", func(t *testing.T) {
		in := pcm16(1, 2, 3, 4, 5, 6, 7, 8)
		out, err := RemapBuffer(in, 2, 2, Identity(2), 2)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	})

	t.Run("wide output zero fills", func(t *testing.T) {
		in := pcm16(1, 2, 3, 4, 5, 6, 7, 8)
		out, err := RemapBuffer(in, 8, 2, BuildPermutation(2, false).Widen(8), 8)
		require.NoError(t, err)
		assert.Equal(t, []int16{1, 2, 0, 0, 0, 0, 0, 0}, readPCM16(out))
	})

	t.Run("32-bit samples", func(t *testing.T) {
		in := make([]byte, 12)
		for i := 0; i < 3; i++ {
			binary.LittleEndian.PutUint32(in[4*i:], uint32(100+i))
		}
		out, err := RemapBuffer(in, 3, 4, BuildPermutation(3, false), 3)
		require.NoError(t, err)
		assert.Equal(t, uint32(102), binary.LittleEndian.Uint32(out[0:]))
		assert.Equal(t, uint32(100), binary.LittleEndian.Uint32(out[4:]))
		assert.Equal(t, uint32(101), binary.LittleEndian.Uint32(out[8:]))
	})

	t.Run("multiple frames", func(t *testing.T) {
		in := pcm16(1, 2, 3, 11, 12, 13)
		out, err := RemapBuffer(in, 3, 2, BuildPermutation(3, false), 3)
		require.NoError(t, err)
		assert.Equal(t, []int16{3, 1, 2, 13, 11, 12}, readPCM16(out))
	})
}

func TestRemapBufferErrors(t *testing.T) {
	_, err := RemapBuffer(make([]byte, 9), 3, 3, Identity(3), 3)
	assert.ErrorIs(t, err, ErrUnsupportedSampleWidth)

	_, err = RemapBuffer(nil, 2, 2, Identity(2), 2)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = RemapBuffer(make([]byte, 5), 2, 2, Identity(2), 2)
	assert.ErrorIs(t, err, ErrMisalignedInput)

	_, err = RemapBuffer(make([]byte, 4), 2, 2, Permutation{0, 5}, 2)
	assert.ErrorIs(t, err, ErrInvalidPermutation)

	_, err = RemapBuffer(make([]byte, 4), 2, 2, Identity(2), 1)
	assert.ErrorIs(t, err, ErrInvalidPermutation)
}

func hardwareSource(bits int) media.StreamDescription {
	return media.PCMDescription(48000, chanlayout.HardwareSlots, bits)
}

func TestCreateRemappedFormatCompact(t *testing.T) {
	desc, layout, ok := CreateRemappedFormat(hardwareSource(16), chanlayout.HardwareLabels(6, false), ModeCompact)
	require.True(t, ok)
	assert.Equal(t, 6, desc.ChannelCount)
	assert.Equal(t, 12, desc.BytesPerFrame)
	assert.Equal(t, 12, desc.BytesPerPacket)
	assert.Equal(t, 48000, desc.SampleRate)
	assert.Equal(t, 16, desc.BitsPerChannel)
	assert.Equal(t, chanlayout.TagLayout(chanlayout.TagMPEG51D), layout)

	desc, layout, ok = CreateRemappedFormat(hardwareSource(32), chanlayout.HardwareLabels(8, true), ModeCompact)
	require.True(t, ok)
	assert.Equal(t, 8, desc.ChannelCount)
	assert.Equal(t, 32, desc.BytesPerFrame)
	assert.Equal(t, chanlayout.TagLayout(chanlayout.TagMPEG71B), layout)
}

func TestCreateRemappedFormatWide(t *testing.T) {
	desc, layout, ok := CreateRemappedFormat(hardwareSource(16), chanlayout.HardwareLabels(6, true), ModeWide)
	require.True(t, ok)
	assert.Equal(t, WideChannels, desc.ChannelCount)
	assert.Equal(t, 16, desc.BytesPerFrame)
	assert.Equal(t, chanlayout.Labels{
		chanlayout.LabelCenter, chanlayout.LabelLeft, chanlayout.LabelRight,
		chanlayout.LabelLeftSurround, chanlayout.LabelRightSurround, chanlayout.LabelLFEScreen,
		chanlayout.LabelUnused, chanlayout.LabelUnused,
	}, layout)

	// 5 valid channels have no table and pass through with their labels.
	desc, layout, ok = CreateRemappedFormat(hardwareSource(16), chanlayout.HardwareLabels(5, false), ModeWide)
	require.True(t, ok)
	assert.Equal(t, WideChannels, desc.ChannelCount)
	assert.Equal(t, chanlayout.HardwareLabels(5, false), layout)
}

func TestCreateRemappedFormatRejects(t *testing.T) {
	labels := chanlayout.HardwareLabels(6, false)

	float := hardwareSource(32)
	float.Float = true
	_, _, ok := CreateRemappedFormat(float, labels, ModeCompact)
	assert.False(t, ok)

	planar := hardwareSource(16)
	planar.NonInterleaved = true
	_, _, ok = CreateRemappedFormat(planar, labels, ModeCompact)
	assert.False(t, ok)

	_, _, ok = CreateRemappedFormat(hardwareSource(24), labels, ModeCompact)
	assert.False(t, ok, "24-bit samples are not remapped")

	aac := hardwareSource(16)
	aac.Codec = media.AudioCodecAAC
	_, _, ok = CreateRemappedFormat(aac, labels, ModeCompact)
	assert.False(t, ok)

	_, _, ok = CreateRemappedFormat(hardwareSource(16), chanlayout.HardwareLabels(5, false), ModeCompact)
	assert.False(t, ok, "no compact tag for 5 channels")

	// The reverse 3ch variant reads slot 3, which a 3-slot source lacks.
	_, _, ok = CreateRemappedFormat(media.PCMDescription(48000, 3, 16), chanlayout.Labels{
		chanlayout.LabelLeft, chanlayout.LabelRight, chanlayout.LabelUnused, chanlayout.LabelCenter,
	}, ModeCompact)
	assert.False(t, ok)

	_, _, ok = CreateRemappedFormat(hardwareSource(16), nil, ModeCompact)
	assert.False(t, ok)
}

func TestPlanApply(t *testing.T) {
	plan, ok := NewPlan(hardwareSource(16), chanlayout.HardwareLabels(6, true), ModeCompact)
	require.True(t, ok)
	assert.Equal(t, 8, plan.InputChannels())
	assert.Equal(t, 6, plan.OutputChannels())
	assert.Equal(t, 2, plan.SampleWidth())

	in := &media.Sample{
		Kind:     media.KindAudio,
		Payload:  pcm16(1, 2, 3, 4, 5, 6, 7, 8),
		Format:   &media.AudioFormat{Stream: hardwareSource(16), Layout: chanlayout.HardwareLabels(6, true)},
		PTS:      time.Second,
		Duration: time.Second / 48000,
	}
	out, err := plan.Apply(in)
	require.NoError(t, err)

	// reverse 5.1: C sits in slot 3 and LFE in slot 2
	assert.Equal(t, []int16{4, 1, 2, 5, 6, 3}, readPCM16(out.Payload))
	assert.Equal(t, in.PTS, out.PTS)
	assert.Equal(t, in.Duration, out.Duration)
	assert.Same(t, plan.Format(), out.Format)
	assert.Equal(t, []int16{1, 2, 3, 4, 5, 6, 7, 8}, readPCM16(in.Payload))
}

func TestPlanApplyRejectsMismatch(t *testing.T) {
	plan, ok := NewPlan(hardwareSource(16), chanlayout.HardwareLabels(2, false), ModeCompact)
	require.True(t, ok)

	_, err := plan.Apply(&media.Sample{
		Kind:    media.KindAudio,
		Payload: pcm16(1, 2),
		Format:  &media.AudioFormat{Stream: media.PCMDescription(48000, 2, 16)},
	})
	assert.ErrorIs(t, err, ErrFormatMismatch)

	_, err = plan.Apply(&media.Sample{Kind: media.KindVideo, Payload: []byte{1}})
	assert.ErrorIs(t, err, ErrFormatMismatch)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("Wide")
	require.NoError(t, err)
	assert.Equal(t, ModeWide, m)
	assert.Equal(t, "compact", ModeCompact.String())

	_, err = ParseMode("auto")
	assert.Error(t, err)
}

func TestPlanReorders(t *testing.T) {
	stereo := media.PCMDescription(48000, 2, 16)
	plan, ok := NewPlan(stereo, chanlayout.Labels{chanlayout.LabelLeft, chanlayout.LabelRight}, ModeCompact)
	require.True(t, ok)
	assert.False(t, plan.Reorders())

	plan, ok = NewPlan(hardwareSource(16), chanlayout.HardwareLabels(2, false), ModeCompact)
	require.True(t, ok)
	assert.True(t, plan.Reorders(), "8 slots shrink to 2")

	plan, ok = NewPlan(stereo, chanlayout.Labels{chanlayout.LabelLeft, chanlayout.LabelRight}, ModeWide)
	require.True(t, ok)
	assert.True(t, plan.Reorders())
}
