package chanlayout

import (
	"strconv"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountValidChannels(t *testing.T) {
	tests := []struct {
		name   string
		layout Layout
		want   int
	}{
		{"bitmap stereo", Bitmap(BitLeft | BitRight), 2},
		{"bitmap 5.1", Bitmap(BitLeft | BitRight | BitCenter | BitLFEScreen | BitLeftSurround | BitRightSurround), 6},
		{"labels with placeholders", Labels{LabelLeft, LabelRight, LabelCenter, LabelUnused, LabelUnknown, LabelUnused}, 3},
		{"labels all unused", Labels{LabelUnused, LabelUnused}, 0},
		{"tag stereo", TagLayout(TagStereo), 2},
		{"tag 7.1", TagLayout(TagMPEG71B), 8},
		{"tag discrete", TagLayout(TagDiscreteInOrder(5)), 5},
		{"unknown tag", TagLayout(Tag(0x12340004)), 0},
		{"nil layout", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CountValidChannels(tt.layout))
		})
	}
}

func TestDetectReverseVariant(t *testing.T) {
	t.Run("3ch reverse", func(t *testing.T) {
		l := Labels{LabelLeft, LabelRight, LabelUnused, LabelCenter, LabelUnused, LabelUnused, LabelUnused, LabelUnused}
		assert.True(t, DetectReverseVariant(l, 3))
	})

	t.Run("3ch canonical", func(t *testing.T) {
		l := Labels{LabelLeft, LabelRight, LabelCenter, LabelUnused, LabelUnused, LabelUnused, LabelUnused, LabelUnused}
		assert.False(t, DetectReverseVariant(l, 3))
	})

	t.Run("6ch reverse", func(t *testing.T) {
		l := HardwareLabels(6, true)
		require.Equal(t, LabelLFEScreen, l[2])
		require.Equal(t, LabelCenter, l[3])
		assert.True(t, DetectReverseVariant(l, 6))
	})

	t.Run("8ch canonical", func(t *testing.T) {
		assert.False(t, DetectReverseVariant(HardwareLabels(8, false), 8))
	})

	t.Run("8ch reverse", func(t *testing.T) {
		assert.True(t, DetectReverseVariant(HardwareLabels(8, true), 8))
	})

	t.Run("not applicable for other counts", func(t *testing.T) {
		l := Labels{LabelLeft, LabelRight, LabelLFEScreen, LabelCenter, LabelLeftSurround}
		assert.False(t, DetectReverseVariant(l, 5))
		assert.False(t, DetectReverseVariant(l, 2))
	})

	t.Run("bitmap and tag never reverse", func(t *testing.T) {
		assert.False(t, DetectReverseVariant(Bitmap(0xff), 8))
		assert.False(t, DetectReverseVariant(TagLayout(TagMPEG71B), 8))
	})
}

func TestAnalyzeHardwareLayouts(t *testing.T) {
	for _, valid := range []int{2, 3, 6, 8} {
		for _, reverse := range []bool{false, true} {
			labels := HardwareLabels(valid, reverse)
			a := Analyze(labels)
			assert.Equal(t, valid, a.Valid, "valid=%d reverse=%v", valid, reverse)
			assert.Equal(t, HardwareSlots, a.Physical)
			wantReverse := reverse && valid != 2
			assert.Equal(t, wantReverse, a.Reverse, "valid=%d reverse=%v", valid, reverse)
		}
	}
}

func TestParseLayout(t *testing.T) {
	l, err := ParseLayout("labels:L,R,-,C")
	require.NoError(t, err)
	assert.Equal(t, Labels{LabelLeft, LabelRight, LabelUnused, LabelCenter}, l)

	l, err = ParseLayout("bitmap:0x3f")
	require.NoError(t, err)
	assert.Equal(t, 6, CountValidChannels(l))

	l, err = ParseLayout("tag:5.1")
	require.NoError(t, err)
	assert.Equal(t, TagLayout(TagMPEG51D), l)
	assert.Equal(t, "tag:5.1", l.String())

	l, err = ParseLayout("tag:discrete-4")
	require.NoError(t, err)
	assert.Equal(t, 4, CountValidChannels(l))

	_, err = ParseLayout("5.1")
	assert.Error(t, err)
	_, err = ParseLayout("labels:L,Q")
	assert.Error(t, err)

	_, err = ParseLayout("bitmap:zz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `layout "bitmap:zz"`)
	var numErr *strconv.NumError
	assert.True(t, errors.As(err, &numErr), "cause is kept")
	assert.Equal(t, "strconv.ParseUint: parsing \"zz\": invalid syntax", errors.Cause(err).Error())
}

func TestExpandLabels(t *testing.T) {
	assert.Equal(t, Labels{LabelLeft, LabelRight, LabelCenter}, ExpandLabels(Bitmap(BitLeft|BitRight|BitCenter)))
	assert.Equal(t, Labels{LabelCenter, LabelLeft, LabelRight}, ExpandLabels(TagLayout(TagMPEG30B)))
	assert.Nil(t, ExpandLabels(nil))
}
