package source

import (
	"context"

	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/babelcloud/gbox/packages/recorder/internal/media"
	"github.com/babelcloud/gbox/packages/recorder/internal/timecode"
)

// Timecode emits one timecode sample per video frame, counting up from a
// start label.
type Timecode struct {
	format *media.TimecodeFormat
	quanta int
	start  int64
	n      int64
}

// NewTimecode starts counting at start. Drop frame is only honoured for
// NTSC rates with a nominal 30 or 60 fps.
func NewTimecode(rate media.Rational, drop bool, start timecode.Timecode) (*Timecode, error) {
	if !rate.Valid() {
		return nil, errors.Errorf("invalid timecode rate %s", rate)
	}
	quanta := rate.Quanta()
	drop = drop && rate.IsNTSC() && timecode.SupportsDropFrame(quanta)
	start.DropFrame = drop
	if !start.Valid(quanta) {
		return nil, errors.Errorf("start timecode %s is not valid at %s", start, rate)
	}
	return &Timecode{
		format: &media.TimecodeFormat{FrameRate: rate, DropFrame: drop, Source: "tone"},
		quanta: quanta,
		start:  start.Frame(quanta),
	}, nil
}

// Hint describes the stream for writer.Session.SetSourceHints.
func (t *Timecode) Hint() *media.TimecodeFormat {
	f := *t.format
	return &f
}

// Current is the label of the next sample.
func (t *Timecode) Current() timecode.Timecode {
	return timecode.FromFrame(t.start+t.n, t.quanta, t.format.DropFrame)
}

// Next returns the sample of the next frame.
func (t *Timecode) Next() *media.Sample {
	day := timecode.FramesPerDay(t.quanta, t.format.DropFrame)
	frame := (t.start + t.n) % day
	pts := t.format.FrameRate.FrameTime(t.n)
	t.n++
	return &media.Sample{
		Kind:     media.KindTimecode,
		Payload:  timecode.Encode(uint32(frame)),
		Format:   t.format,
		PTS:      pts,
		Duration: t.format.FrameRate.FrameTime(t.n) - pts,
		KeyFrame: true,
	}
}

// Run delivers one sample per frame until ctx ends.
func (t *Timecode) Run(ctx context.Context, clk clock.WithTicker, sink Sink) error {
	return pace(ctx, clk, t.format.FrameRate.FrameDuration(), media.KindTimecode, t, 0, sink)
}
