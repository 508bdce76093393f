package chanlayout

import "math/bits"

// HardwareSlots is the number of slots in the capture device's native
// audio frame.
const HardwareSlots = 8

// nativeOrder is the canonical slot order of the capture device.
var nativeOrder = Labels{
	LabelLeft, LabelRight, LabelCenter, LabelLFEScreen,
	LabelLeftSurround, LabelRightSurround, LabelLeftCenter, LabelRightCenter,
}

// Analysis is the result of inspecting a source layout.
type Analysis struct {
	// Valid is the number of channels that carry audio.
	Valid int
	// Physical is the number of slots in each frame, placeholders included.
	Physical int
	// Reverse is set when the hardware swapped slots 2 and 3.
	Reverse bool
}

// CountValidChannels returns the number of channels that carry audio:
// popcount for a bitmap, non-placeholder labels for an explicit list and the
// table count for a tag. It returns 0 when none of these yields a count.
func CountValidChannels(l Layout) int {
	switch v := l.(type) {
	case Bitmap:
		return bits.OnesCount32(uint32(v))
	case Labels:
		n := 0
		for _, label := range v {
			if !label.IsPlaceholder() {
				n++
			}
		}
		return n
	case TagLayout:
		return Tag(v).ChannelCount()
	}
	return 0
}

// PhysicalChannels returns the number of slots the layout occupies.
func PhysicalChannels(l Layout) int {
	switch v := l.(type) {
	case Labels:
		return len(v)
	default:
		return CountValidChannels(l)
	}
}

// DetectReverseVariant reports whether the hardware emitted the variant
// with slots 2 and 3 swapped. Only explicit label lists can carry it.
//
// 3 channels: slot 2 Unused and slot 3 Center (canonical is the opposite).
// 6 or more:  slot 2 LFE and slot 3 Center (canonical is Center then LFE).
func DetectReverseVariant(l Layout, valid int) bool {
	labels, ok := l.(Labels)
	if !ok || len(labels) < 4 {
		return false
	}
	switch {
	case valid == 3:
		return labels[2] == LabelUnused && labels[3] == LabelCenter
	case valid >= 6:
		return labels[2] == LabelLFEScreen && labels[3] == LabelCenter
	}
	return false
}

// Analyze runs both inspections over l.
func Analyze(l Layout) Analysis {
	valid := CountValidChannels(l)
	return Analysis{
		Valid:    valid,
		Physical: PhysicalChannels(l),
		Reverse:  DetectReverseVariant(l, valid),
	}
}

// HardwareLabels returns the 8-slot label list the capture device reports
// for valid channels, optionally in the reverse variant.
func HardwareLabels(valid int, reverse bool) Labels {
	out := make(Labels, HardwareSlots)
	for i := range out {
		out[i] = LabelUnused
	}
	switch {
	case valid == 2:
		copy(out, nativeOrder[:2])
	case valid == 3:
		copy(out, nativeOrder[:3])
		if reverse {
			out[2], out[3] = LabelUnused, LabelCenter
		}
	case valid >= 6 && valid <= HardwareSlots:
		copy(out, nativeOrder[:valid])
		if reverse {
			out[2], out[3] = out[3], out[2]
		}
	case valid > 0 && valid <= HardwareSlots:
		copy(out, nativeOrder[:valid])
	}
	return out
}
