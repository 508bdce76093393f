package remap

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/babelcloud/gbox/packages/recorder/internal/chanlayout"
	"github.com/babelcloud/gbox/packages/recorder/internal/media"
)

// Mode selects the shape of the remapped output.
type Mode int

const (
	// ModeCompact emits exactly the valid channel count (2, 3, 6 or 8)
	// tagged with a single well-known layout tag.
	ModeCompact Mode = iota
	// ModeWide always emits 8 channels with explicit per-channel labels.
	// Channels without a source are silent.
	ModeWide
)

// WideChannels is the channel count of ModeWide output.
const WideChannels = 8

func (m Mode) String() string {
	switch m {
	case ModeCompact:
		return "compact"
	case ModeWide:
		return "wide"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode maps a configuration string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "compact":
		return ModeCompact, nil
	case "wide":
		return ModeWide, nil
	}
	return 0, errors.Errorf("unknown remap mode %q", s)
}

// remapSource reports whether src can be remapped at all.
func remapSource(src media.StreamDescription) bool {
	return src.Codec == media.AudioCodecLPCM &&
		!src.Float &&
		!src.NonInterleaved &&
		SupportedSampleWidth(src.SampleWidth()) &&
		src.Validate() == nil
}

// derive computes the permutation and output layout for one source.
func derive(src media.StreamDescription, layout chanlayout.Layout, mode Mode) (Permutation, chanlayout.Layout, bool) {
	if !remapSource(src) || layout == nil {
		return nil, nil, false
	}
	a := chanlayout.Analyze(layout)
	if a.Valid == 0 {
		return nil, nil, false
	}

	switch mode {
	case ModeCompact:
		tag, ok := chanlayout.CompactTag(a.Valid)
		if !ok {
			return nil, nil, false
		}
		p := BuildPermutation(a.Valid, a.Reverse)
		if !p.Valid(src.ChannelCount) {
			return nil, nil, false
		}
		return p, chanlayout.TagLayout(tag), true

	case ModeWide:
		if Supported(a.Valid) {
			p := BuildPermutation(a.Valid, a.Reverse)
			if !p.Valid(src.ChannelCount) {
				return nil, nil, false
			}
			return p.Widen(WideChannels), padLabels(outputLabels[a.Valid]), true
		}
		// Counts without a table pass the physical channels through in
		// their original order, labels included.
		if src.ChannelCount > WideChannels {
			return nil, nil, false
		}
		labels := chanlayout.ExpandLabels(layout)
		for i, label := range labels {
			if label.IsPlaceholder() {
				labels[i] = chanlayout.LabelUnused
			}
		}
		if len(labels) > src.ChannelCount {
			labels = labels[:src.ChannelCount]
		}
		return Identity(src.ChannelCount).Widen(WideChannels), padLabels(labels), true
	}
	return nil, nil, false
}

func padLabels(in chanlayout.Labels) chanlayout.Labels {
	out := make(chanlayout.Labels, WideChannels)
	for i := range out {
		out[i] = chanlayout.LabelUnused
	}
	copy(out, in)
	return out
}

// CreateRemappedFormat derives the stream description and layout that
// RemapBuffer output will have for src in the given mode. The returned
// description keeps the sample rate and sample width and scales the frame
// and packet sizes to the new channel count. ok is false when src cannot be
// remapped.
func CreateRemappedFormat(src media.StreamDescription, layout chanlayout.Layout, mode Mode) (media.StreamDescription, chanlayout.Layout, bool) {
	p, outLayout, ok := derive(src, layout, mode)
	if !ok {
		return media.StreamDescription{}, nil, false
	}
	return scaleDescription(src, len(p)), outLayout, true
}

func scaleDescription(src media.StreamDescription, channels int) media.StreamDescription {
	out := src
	out.ChannelCount = channels
	out.BytesPerFrame = channels * src.SampleWidth()
	framesPerPacket := src.FramesPerPacket
	if framesPerPacket <= 0 {
		framesPerPacket = 1
	}
	out.FramesPerPacket = framesPerPacket
	out.BytesPerPacket = out.BytesPerFrame * framesPerPacket
	return out
}
