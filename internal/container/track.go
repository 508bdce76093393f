package container

import (
	"log/slog"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/babelcloud/gbox/packages/recorder/internal/media"
)

type track struct {
	w      *Writer
	id     int
	spec   TrackSpec
	depth  int32
	logger *slog.Logger

	pending  atomic.Int32
	finished atomic.Bool

	// worker only
	written int
}

func (t *track) Kind() media.Kind { return t.spec.Kind }

func (t *track) ReadyForMoreData() bool {
	return !t.finished.Load() &&
		t.pending.Load() < t.depth &&
		t.w.Status() == StatusWriting
}

func (t *track) Append(s *media.Sample) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if s.Kind != t.spec.Kind {
		return errors.Errorf("%s sample appended to %s track", s.Kind, t.spec.Kind)
	}

	t.w.sendMu.RLock()
	defer t.w.sendMu.RUnlock()
	if st := t.w.Status(); st != StatusWriting || t.w.closed {
		return errors.Wrapf(ErrNotWriting, "status %s", st)
	}
	if t.finished.Load() {
		return ErrTrackFinished
	}
	if t.pending.Add(1) > t.depth {
		t.pending.Add(-1)
		return ErrNotReady
	}
	// Never blocks: the queue holds depth items for every track.
	t.w.work <- item{track: t, sample: s}
	return nil
}

func (t *track) MarkFinished() {
	if t.finished.CompareAndSwap(false, true) {
		t.logger.Debug("Track marked finished", "pending", t.pending.Load())
	}
}
