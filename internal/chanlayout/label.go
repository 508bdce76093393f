// Package chanlayout describes multichannel audio layouts and inspects the
// layouts emitted by the capture hardware.
package chanlayout

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Label is the role of one physical channel.
type Label int

const (
	LabelUnknown Label = iota
	LabelUnused
	LabelLeft
	LabelRight
	LabelCenter
	LabelLFEScreen
	LabelLeftSurround
	LabelRightSurround
	LabelLeftCenter
	LabelRightCenter
	LabelCenterSurround
	LabelLeftSurroundDirect
	LabelRightSurroundDirect
	LabelRearSurroundLeft
	LabelRearSurroundRight
	LabelMono
	LabelDiscrete
)

var labelNames = map[Label]string{
	LabelUnknown:             "Unknown",
	LabelUnused:              "Unused",
	LabelLeft:                "L",
	LabelRight:               "R",
	LabelCenter:              "C",
	LabelLFEScreen:           "LFE",
	LabelLeftSurround:        "Ls",
	LabelRightSurround:       "Rs",
	LabelLeftCenter:          "Lc",
	LabelRightCenter:         "Rc",
	LabelCenterSurround:      "Cs",
	LabelLeftSurroundDirect:  "Lsd",
	LabelRightSurroundDirect: "Rsd",
	LabelRearSurroundLeft:    "Rls",
	LabelRearSurroundRight:   "Rrs",
	LabelMono:                "M",
	LabelDiscrete:            "D",
}

func (l Label) String() string {
	if name, ok := labelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("Label(%d)", int(l))
}

// IsPlaceholder reports whether l does not carry audio.
func (l Label) IsPlaceholder() bool {
	return l == LabelUnknown || l == LabelUnused
}

// ParseLabel accepts the short names produced by Label.String, case
// insensitively, plus a few long aliases.
func ParseLabel(s string) (Label, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for l, name := range labelNames {
		if strings.ToLower(name) == key {
			return l, nil
		}
	}
	switch key {
	case "left":
		return LabelLeft, nil
	case "right":
		return LabelRight, nil
	case "center", "centre":
		return LabelCenter, nil
	case "lfe-screen", "lfescreen", "sub":
		return LabelLFEScreen, nil
	case "-", "none", "":
		return LabelUnused, nil
	}
	return LabelUnknown, errors.Errorf("unknown channel label %q", s)
}

// Bitmap bit positions for the channels that can be expressed as a bitmap.
const (
	BitLeft uint32 = 1 << iota
	BitRight
	BitCenter
	BitLFEScreen
	BitLeftSurround
	BitRightSurround
	BitLeftCenter
	BitRightCenter
	BitCenterSurround
	BitLeftSurroundDirect
	BitRightSurroundDirect
)

var bitmapOrder = []struct {
	bit   uint32
	label Label
}{
	{BitLeft, LabelLeft},
	{BitRight, LabelRight},
	{BitCenter, LabelCenter},
	{BitLFEScreen, LabelLFEScreen},
	{BitLeftSurround, LabelLeftSurround},
	{BitRightSurround, LabelRightSurround},
	{BitLeftCenter, LabelLeftCenter},
	{BitRightCenter, LabelRightCenter},
	{BitCenterSurround, LabelCenterSurround},
	{BitLeftSurroundDirect, LabelLeftSurroundDirect},
	{BitRightSurroundDirect, LabelRightSurroundDirect},
}
