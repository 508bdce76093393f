package source

import (
	"context"
	"encoding/binary"
	"math"
	"time"

	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/babelcloud/gbox/packages/recorder/internal/chanlayout"
	"github.com/babelcloud/gbox/packages/recorder/internal/media"
	"github.com/babelcloud/gbox/packages/recorder/internal/writer"
)

// ToneConfig configures a Tone. Zero fields take the defaults.
type ToneConfig struct {
	SampleRate int
	// Bits per sample, 16 or 32.
	Bits int
	// Valid is the number of slots carrying audio, 1 to 8.
	Valid int
	// Reverse selects the reverse hardware label variant.
	Reverse   bool
	Period    time.Duration
	Frequency float64
	// Amplitude in full scale, 0 to 1.
	Amplitude float64
}

func (c ToneConfig) withDefaults() ToneConfig {
	if c.SampleRate == 0 {
		c.SampleRate = 48000
	}
	if c.Bits == 0 {
		c.Bits = 16
	}
	if c.Valid == 0 {
		c.Valid = 2
	}
	if c.Period == 0 {
		c.Period = 20 * time.Millisecond
	}
	if c.Frequency == 0 {
		c.Frequency = 440
	}
	if c.Amplitude == 0 {
		c.Amplitude = 0.25
	}
	return c
}

// Tone generates interleaved PCM in the 8-slot layout of a capture device.
// Slot i of the valid channels plays Frequency*(i+1); unused slots are
// silent.
type Tone struct {
	cfg    ToneConfig
	layout chanlayout.Labels
	slots  []int
	format *media.AudioFormat
	frames int
	n      int64
}

// NewTone validates cfg and builds the generator.
func NewTone(cfg ToneConfig) (*Tone, error) {
	cfg = cfg.withDefaults()
	if cfg.Bits != 16 && cfg.Bits != 32 {
		return nil, errors.Errorf("unsupported tone sample size %d", cfg.Bits)
	}
	if cfg.Valid < 1 || cfg.Valid > chanlayout.HardwareSlots {
		return nil, errors.Errorf("valid channel count %d outside 1..%d", cfg.Valid, chanlayout.HardwareSlots)
	}
	if cfg.Amplitude < 0 || cfg.Amplitude > 1 {
		return nil, errors.Errorf("amplitude %.2f outside 0..1", cfg.Amplitude)
	}
	frames := int(int64(cfg.SampleRate) * int64(cfg.Period) / int64(time.Second))
	if frames <= 0 {
		return nil, errors.Errorf("period %s is shorter than one frame", cfg.Period)
	}

	layout := chanlayout.HardwareLabels(cfg.Valid, cfg.Reverse)
	var slots []int
	for i, l := range layout {
		if !l.IsPlaceholder() {
			slots = append(slots, i)
		}
	}
	stream := media.PCMDescription(cfg.SampleRate, chanlayout.HardwareSlots, cfg.Bits)
	return &Tone{
		cfg:    cfg,
		layout: layout,
		slots:  slots,
		format: &media.AudioFormat{Stream: stream, Layout: layout},
		frames: frames,
	}, nil
}

// Hint describes the generated stream for writer.Session.SetSourceHints.
func (t *Tone) Hint() *writer.AudioHint {
	return &writer.AudioHint{Stream: t.format.Stream, Layout: t.layout}
}

// Period is the duration of one sample.
func (t *Tone) Period() time.Duration { return t.cfg.Period }

// Next returns the next block of audio.
func (t *Tone) Next() *media.Sample {
	width := t.cfg.Bits / 8
	stride := chanlayout.HardwareSlots * width
	buf := make([]byte, t.frames*stride)
	first := t.n * int64(t.frames)

	for f := 0; f < t.frames; f++ {
		at := float64(first+int64(f)) / float64(t.cfg.SampleRate)
		for i, slot := range t.slots {
			v := t.cfg.Amplitude * math.Sin(2*math.Pi*t.cfg.Frequency*float64(i+1)*at)
			off := f*stride + slot*width
			if width == 2 {
				binary.LittleEndian.PutUint16(buf[off:], uint16(int16(v*math.MaxInt16)))
			} else {
				binary.LittleEndian.PutUint32(buf[off:], uint32(int32(v*math.MaxInt32)))
			}
		}
	}

	pts := ptsOf(first, t.cfg.SampleRate)
	end := ptsOf(first+int64(t.frames), t.cfg.SampleRate)
	t.n++
	return &media.Sample{
		Kind:     media.KindAudio,
		Payload:  buf,
		Format:   t.format,
		PTS:      pts,
		Duration: end - pts,
		KeyFrame: true,
	}
}

// Run delivers one block per period until ctx ends.
func (t *Tone) Run(ctx context.Context, clk clock.WithTicker, sink Sink) error {
	return pace(ctx, clk, t.cfg.Period, media.KindAudio, t, 0, sink)
}
