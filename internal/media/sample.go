// Package media defines the sample and format types that flow from the
// capture callback into the writer session.
package media

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Kind identifies the media stream a sample belongs to.
type Kind int

const (
	KindVideo Kind = iota
	KindAudio
	KindTimecode
)

// Kinds lists every kind in track order.
var Kinds = []Kind{KindVideo, KindAudio, KindTimecode}

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	case KindTimecode:
		return "timecode"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k >= KindVideo && k <= KindTimecode
}

// Sample is one timestamped unit of captured data. The producer must not
// touch Payload after handing the sample to the writer.
type Sample struct {
	Kind     Kind
	Payload  []byte
	Format   Format
	PTS      time.Duration
	Duration time.Duration
	KeyFrame bool // video sync sample
}

// End returns the presentation time right after the sample.
func (s *Sample) End() time.Duration {
	return s.PTS + s.Duration
}

// WithPayload returns a shallow copy of s carrying a new payload and format.
func (s *Sample) WithPayload(payload []byte, format Format) *Sample {
	out := *s
	out.Payload = payload
	out.Format = format
	return &out
}

// Validate checks the sample fields that every track relies on.
func (s *Sample) Validate() error {
	if s == nil {
		return errors.Errorf("nil sample")
	}
	if !s.Kind.Valid() {
		return errors.Errorf("invalid sample kind %d", int(s.Kind))
	}
	if len(s.Payload) == 0 {
		return errors.Errorf("empty %s payload", s.Kind)
	}
	if s.Duration < 0 {
		return errors.Errorf("negative %s duration %v", s.Kind, s.Duration)
	}
	if s.Format != nil && s.Format.Kind() != s.Kind {
		return errors.Errorf("%s sample carries %s format", s.Kind, s.Format.Kind())
	}
	return nil
}
