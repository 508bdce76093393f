package remap

import (
	"github.com/pkg/errors"

	"github.com/babelcloud/gbox/packages/recorder/internal/chanlayout"
	"github.com/babelcloud/gbox/packages/recorder/internal/media"
)

// ErrFormatMismatch is returned when a sample does not match the stream the
// plan was built for.
var ErrFormatMismatch = errors.New("remap: sample format does not match plan")

// Plan is a precomputed remap for one source stream. It is immutable and
// safe for concurrent use.
type Plan struct {
	Mode        Mode
	Permutation Permutation
	Source      media.StreamDescription
	Output      media.StreamDescription
	Layout      chanlayout.Layout

	format *media.AudioFormat
}

// NewPlan builds the plan for src in the given mode. ok is false when no
// remap is possible; callers then pass the audio through untouched or fail
// the track.
func NewPlan(src media.StreamDescription, layout chanlayout.Layout, mode Mode) (*Plan, bool) {
	p, outLayout, ok := derive(src, layout, mode)
	if !ok {
		return nil, false
	}
	out := scaleDescription(src, len(p))
	return &Plan{
		Mode:        mode,
		Permutation: p,
		Source:      src,
		Output:      out,
		Layout:      outLayout,
		format:      &media.AudioFormat{Stream: out, Layout: outLayout},
	}, true
}

// InputChannels is the channel count of samples fed to Apply.
func (p *Plan) InputChannels() int { return p.Source.ChannelCount }

// OutputChannels is the channel count of samples produced by Apply.
func (p *Plan) OutputChannels() int { return p.Output.ChannelCount }

// SampleWidth is the byte width of one channel sample.
func (p *Plan) SampleWidth() int { return p.Source.SampleWidth() }

// Reorders reports whether Apply changes the payload at all. A plan that
// neither moves nor adds channels can be skipped.
func (p *Plan) Reorders() bool {
	if p.OutputChannels() != p.InputChannels() {
		return true
	}
	for i, src := range p.Permutation {
		if src != i {
			return true
		}
	}
	return false
}

// Format returns the format carried by remapped samples. The track must be
// primed with it before the first sample is appended.
func (p *Plan) Format() *media.AudioFormat { return p.format }

// Apply remaps one audio sample into a new sample carrying the primed
// format. The input sample is left untouched.
func (p *Plan) Apply(s *media.Sample) (*media.Sample, error) {
	if s == nil || s.Kind != media.KindAudio {
		return nil, errors.Wrap(ErrFormatMismatch, "not an audio sample")
	}
	if f, ok := s.Format.(*media.AudioFormat); ok {
		if f.Stream.ChannelCount != p.Source.ChannelCount || f.Stream.BitsPerChannel != p.Source.BitsPerChannel {
			return nil, errors.Wrapf(ErrFormatMismatch, "%dch/%dbit sample, plan expects %dch/%dbit",
				f.Stream.ChannelCount, f.Stream.BitsPerChannel, p.Source.ChannelCount, p.Source.BitsPerChannel)
		}
	}
	out, err := RemapBuffer(s.Payload, p.InputChannels(), p.SampleWidth(), p.Permutation, p.OutputChannels())
	if err != nil {
		return nil, err
	}
	return s.WithPayload(out, p.format), nil
}
