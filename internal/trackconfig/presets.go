package trackconfig

import (
	"sort"

	"github.com/babelcloud/gbox/packages/recorder/internal/media"
)

// PixelAspect is the pixel aspect ratio, horizontal to vertical spacing.
type PixelAspect struct {
	H int
	V int
}

// CleanAperture is the picture area free of edge artifacts, centred on the
// encoded frame and shifted by the offsets.
type CleanAperture struct {
	Width   int
	Height  int
	HOffset int
	VOffset int
}

// VideoPreset is one entry of the video format table.
type VideoPreset struct {
	Name          string
	Width         int
	Height        int
	FrameRate     media.Rational
	Interlaced    bool
	PixelAspect   PixelAspect
	CleanAperture CleanAperture
}

var (
	ntsc2997 = media.Rational{Num: 30000, Den: 1001}
	ntsc5994 = media.Rational{Num: 60000, Den: 1001}
	film2398 = media.Rational{Num: 24000, Den: 1001}
	square   = PixelAspect{H: 1, V: 1}
)

func hd(name string, w, h int, rate media.Rational, interlaced bool) VideoPreset {
	return VideoPreset{
		Name:          name,
		Width:         w,
		Height:        h,
		FrameRate:     rate,
		Interlaced:    interlaced,
		PixelAspect:   square,
		CleanAperture: CleanAperture{Width: w, Height: h},
	}
}

// Presets lists the built-in video formats by name.
var Presets = map[string]VideoPreset{
	"2160p23.98": hd("2160p23.98", 3840, 2160, film2398, false),
	"2160p24":    hd("2160p24", 3840, 2160, media.Rational{Num: 24, Den: 1}, false),
	"2160p25":    hd("2160p25", 3840, 2160, media.Rational{Num: 25, Den: 1}, false),
	"2160p29.97": hd("2160p29.97", 3840, 2160, ntsc2997, false),
	"2160p30":    hd("2160p30", 3840, 2160, media.Rational{Num: 30, Den: 1}, false),
	"2160p50":    hd("2160p50", 3840, 2160, media.Rational{Num: 50, Den: 1}, false),
	"2160p59.94": hd("2160p59.94", 3840, 2160, ntsc5994, false),
	"2160p60":    hd("2160p60", 3840, 2160, media.Rational{Num: 60, Den: 1}, false),
	"1080p23.98": hd("1080p23.98", 1920, 1080, film2398, false),
	"1080p24":    hd("1080p24", 1920, 1080, media.Rational{Num: 24, Den: 1}, false),
	"1080p25":    hd("1080p25", 1920, 1080, media.Rational{Num: 25, Den: 1}, false),
	"1080p29.97": hd("1080p29.97", 1920, 1080, ntsc2997, false),
	"1080p30":    hd("1080p30", 1920, 1080, media.Rational{Num: 30, Den: 1}, false),
	"1080p50":    hd("1080p50", 1920, 1080, media.Rational{Num: 50, Den: 1}, false),
	"1080p59.94": hd("1080p59.94", 1920, 1080, ntsc5994, false),
	"1080p60":    hd("1080p60", 1920, 1080, media.Rational{Num: 60, Den: 1}, false),
	"1080i50":    hd("1080i50", 1920, 1080, media.Rational{Num: 25, Den: 1}, true),
	"1080i59.94": hd("1080i59.94", 1920, 1080, ntsc2997, true),
	"720p50":     hd("720p50", 1280, 720, media.Rational{Num: 50, Den: 1}, false),
	"720p59.94":  hd("720p59.94", 1280, 720, ntsc5994, false),
	"720p60":     hd("720p60", 1280, 720, media.Rational{Num: 60, Den: 1}, false),
	"ntsc": {
		Name:          "ntsc",
		Width:         720,
		Height:        486,
		FrameRate:     ntsc2997,
		Interlaced:    true,
		PixelAspect:   PixelAspect{H: 10, V: 11},
		CleanAperture: CleanAperture{Width: 704, Height: 480},
	},
	"pal": {
		Name:          "pal",
		Width:         720,
		Height:        576,
		FrameRate:     media.Rational{Num: 25, Den: 1},
		Interlaced:    true,
		PixelAspect:   PixelAspect{H: 59, V: 54},
		CleanAperture: CleanAperture{Width: 702, Height: 576},
	},
}

// LookupPreset returns the named preset.
func LookupPreset(name string) (VideoPreset, bool) {
	p, ok := Presets[name]
	return p, ok
}

// PresetNames returns the preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
