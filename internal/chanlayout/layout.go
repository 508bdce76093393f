package chanlayout

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Layout describes N physical channels using exactly one of three
// representations: Bitmap, Labels or TagLayout.
type Layout interface {
	fmt.Stringer
	isLayout()
}

// Bitmap marks the active channel positions, see the Bit constants.
type Bitmap uint32

// Labels lists the role of each physical channel in order. Placeholder
// entries (Unknown, Unused) occupy a slot without carrying audio.
type Labels []Label

// TagLayout refers to a well-known layout.
type TagLayout Tag

func (Bitmap) isLayout()    {}
func (Labels) isLayout()    {}
func (TagLayout) isLayout() {}

func (b Bitmap) String() string {
	return fmt.Sprintf("bitmap:0x%x", uint32(b))
}

func (l Labels) String() string {
	parts := make([]string, len(l))
	for i, label := range l {
		parts[i] = label.String()
	}
	return "labels:" + strings.Join(parts, ",")
}

func (t TagLayout) String() string {
	return "tag:" + Tag(t).String()
}

// Expand returns the ordered roles of the bitmap's active positions.
func (b Bitmap) Expand() Labels {
	var out Labels
	for _, entry := range bitmapOrder {
		if uint32(b)&entry.bit != 0 {
			out = append(out, entry.label)
		}
	}
	return out
}

// ExpandLabels returns the per-slot labels of any layout. Bitmaps expand in
// bit order; tags use the tag table.
func ExpandLabels(l Layout) Labels {
	switch v := l.(type) {
	case Labels:
		return append(Labels(nil), v...)
	case Bitmap:
		return v.Expand()
	case TagLayout:
		return Labels(Tag(v).Labels())
	}
	return nil
}

// ParseLayout reads the textual forms produced by String:
// "labels:L,R,C,LFE", "bitmap:0x3f" and "tag:5.1".
func ParseLayout(s string) (Layout, error) {
	kind, value, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return nil, errors.Errorf("layout %q: missing kind prefix", s)
	}
	switch strings.ToLower(kind) {
	case "labels":
		var out Labels
		for _, part := range strings.Split(value, ",") {
			label, err := ParseLabel(part)
			if err != nil {
				return nil, err
			}
			out = append(out, label)
		}
		return out, nil
	case "bitmap":
		v, err := strconv.ParseUint(value, 0, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "layout %q", s)
		}
		return Bitmap(v), nil
	case "tag":
		t, err := parseTag(value)
		if err != nil {
			return nil, err
		}
		return TagLayout(t), nil
	}
	return nil, errors.Errorf("layout %q: unknown kind %q", s, kind)
}
