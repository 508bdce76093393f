package chanlayout

import (
	"fmt"

	"github.com/pkg/errors"
)

// Tag names a well-known layout. The low 16 bits hold the channel count,
// following the CoreAudio layout tag encoding.
type Tag uint32

const (
	TagMono   Tag = 100<<16 | 1
	TagStereo Tag = 101<<16 | 2
	// C L R
	TagMPEG30B Tag = 114<<16 | 3
	// C L R Ls Rs LFE
	TagMPEG51D Tag = 124<<16 | 6
	// C Lc Rc L R Ls Rs LFE
	TagMPEG71B Tag = 127<<16 | 8

	tagDiscreteInOrder Tag = 147 << 16
)

// TagDiscreteInOrder returns the tag for n unlabelled channels in order.
func TagDiscreteInOrder(n int) Tag {
	return tagDiscreteInOrder | Tag(uint16(n))
}

var tagLabels = map[Tag][]Label{
	TagMono:    {LabelMono},
	TagStereo:  {LabelLeft, LabelRight},
	TagMPEG30B: {LabelCenter, LabelLeft, LabelRight},
	TagMPEG51D: {LabelCenter, LabelLeft, LabelRight, LabelLeftSurround, LabelRightSurround, LabelLFEScreen},
	TagMPEG71B: {LabelCenter, LabelLeftCenter, LabelRightCenter, LabelLeft, LabelRight,
		LabelLeftSurround, LabelRightSurround, LabelLFEScreen},
}

var tagNames = map[Tag]string{
	TagMono:    "mono",
	TagStereo:  "stereo",
	TagMPEG30B: "3.0",
	TagMPEG51D: "5.1",
	TagMPEG71B: "7.1",
}

// IsDiscrete reports whether t is a discrete-in-order tag.
func (t Tag) IsDiscrete() bool {
	return t&0xFFFF0000 == tagDiscreteInOrder
}

// ChannelCount consults the tag table. Unknown tags count as zero.
func (t Tag) ChannelCount() int {
	if t.IsDiscrete() {
		return int(t & 0xFFFF)
	}
	if labels, ok := tagLabels[t]; ok {
		return len(labels)
	}
	return 0
}

// Labels returns the per-channel roles of t, or nil for tags that do not
// assign roles.
func (t Tag) Labels() []Label {
	if t.IsDiscrete() {
		n := t.ChannelCount()
		out := make([]Label, n)
		for i := range out {
			out[i] = LabelDiscrete
		}
		return out
	}
	labels, ok := tagLabels[t]
	if !ok {
		return nil
	}
	return append([]Label(nil), labels...)
}

func (t Tag) String() string {
	if t.IsDiscrete() {
		return fmt.Sprintf("discrete-%d", t.ChannelCount())
	}
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tag(0x%08x)", uint32(t))
}

// CompactTag returns the tag used for compact output of n channels.
func CompactTag(n int) (Tag, bool) {
	switch n {
	case 2:
		return TagStereo, true
	case 3:
		return TagMPEG30B, true
	case 6:
		return TagMPEG51D, true
	case 8:
		return TagMPEG71B, true
	}
	return 0, false
}

func parseTag(s string) (Tag, error) {
	for t, name := range tagNames {
		if name == s {
			return t, nil
		}
	}
	var n int
	if _, err := fmt.Sscanf(s, "discrete-%d", &n); err == nil && n > 0 && n <= 0xFFFF {
		return TagDiscreteInOrder(n), nil
	}
	return 0, errors.Errorf("unknown layout tag %q", s)
}
