package container

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/babelcloud/gbox/packages/recorder/internal/media"
)

const (
	DefaultQueueDepth   = 64
	DefaultPartDuration = time.Second
)

// Options tune a Writer. Zero values select the defaults.
type Options struct {
	Logger *slog.Logger
	// QueueDepth is the number of samples each track may have in flight.
	QueueDepth int
	// PartDuration is the amount of media buffered before it is written.
	// The session origin may still move earlier until the first part is
	// released.
	PartDuration time.Duration
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.With("component", "container")
	}
	if o.QueueDepth <= 0 {
		o.QueueDepth = DefaultQueueDepth
	}
	if o.PartDuration <= 0 {
		o.PartDuration = DefaultPartDuration
	}
	return o
}

// backend serialises samples into one container format. All methods run on
// the worker goroutine except addTrack.
type backend interface {
	addTrack(t *track) error
	write(t *track, s *media.Sample, rel time.Duration) error
	// finish flushes everything buffered. end is the session end relative
	// to the origin, or negative when unknown.
	finish(end time.Duration) error
}

type item struct {
	track  *track
	sample *media.Sample
	origin *time.Duration
	end    *time.Duration
}

// Writer writes one container file.
type Writer struct {
	format Format
	opts   Options
	logger *slog.Logger
	sink   io.Writer
	closer io.Closer
	path   string
	be     backend

	tracks []*track

	// sendMu guards closing work against concurrent sends. The worker
	// never takes it.
	sendMu sync.RWMutex
	closed bool
	work   chan item
	done   chan struct{}

	stateMu sync.Mutex
	status  Status
	err     error

	// worker state
	origin    time.Duration
	hasOrigin bool
	frozen    bool
	end       time.Duration
	hasEnd    bool
	preroll   []item
	trimmed   int
}

// Create deletes any file at path and starts a new container there.
func Create(path string, format Format, opts Options) (*Writer, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "failed to remove existing file %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create directory for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %s", path)
	}
	w := New(f, format, opts)
	w.closer = f
	w.path = path
	return w, nil
}

// New writes a container to sink. The sink is not closed by the writer.
func New(sink io.Writer, format Format, opts Options) *Writer {
	opts = opts.withDefaults()
	w := &Writer{
		format: format,
		opts:   opts,
		logger: opts.Logger.With("format", format.String()),
		sink:   sink,
		done:   make(chan struct{}),
	}
	switch format {
	case FormatMatroska:
		w.be = newMKVBackend(w)
	default:
		w.be = newMP4Backend(w)
	}
	return w
}

// Path returns the output file, empty for writers built with New.
func (w *Writer) Path() string { return w.path }

// AddTrack registers a track. Tracks must be added before StartWriting.
func (w *Writer) AddTrack(spec TrackSpec) (Track, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	if w.Status() != StatusUnknown {
		return nil, ErrAlreadyStarted
	}
	t := &track{
		w:      w,
		id:     len(w.tracks) + 1,
		spec:   spec,
		depth:  int32(w.opts.QueueDepth),
		logger: w.logger.With("track", spec.Kind.String()),
	}
	if err := w.be.addTrack(t); err != nil {
		return nil, err
	}
	w.tracks = append(w.tracks, t)
	return t, nil
}

// StartWriting starts the worker. No tracks can be added afterwards.
func (w *Writer) StartWriting() error {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	if w.status != StatusUnknown {
		return errors.Wrapf(ErrAlreadyStarted, "status %s", w.status)
	}
	if len(w.tracks) == 0 {
		return errors.New("no tracks added")
	}

	// Every track can fill its queue without blocking; the slack is for
	// origin and end markers.
	w.work = make(chan item, len(w.tracks)*w.opts.QueueDepth+8)
	w.status = StatusWriting
	go w.run()

	w.logger.Info("🎬 Container writing started", "tracks", len(w.tracks), "path", w.path)
	return nil
}

// StartSession sets the origin of the timeline. Calling it again with an
// earlier instant moves the origin as long as no media has been released
// to the file yet.
func (w *Writer) StartSession(at time.Duration) {
	w.send(item{origin: &at})
}

// EndSession bounds the duration of the last samples.
func (w *Writer) EndSession(at time.Duration) {
	w.send(item{end: &at})
}

func (w *Writer) send(it item) bool {
	w.sendMu.RLock()
	defer w.sendMu.RUnlock()
	if w.Status() != StatusWriting || w.closed {
		return false
	}
	w.work <- it
	return true
}

// Finish drains the queues, finalizes the file and waits for the worker.
// A cancelled ctx stops the wait, not the finalization.
func (w *Writer) Finish(ctx context.Context) error {
	if !w.started() {
		return errors.Wrapf(ErrNotWriting, "status %s", w.Status())
	}
	w.closeQueue()

	select {
	case <-w.done:
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for container to finish")
	}

	if st := w.Status(); st != StatusCompleted {
		if err := w.Err(); err != nil {
			return errors.Wrapf(err, "container finished with status %s", st)
		}
		return errors.Errorf("container finished with status %s", st)
	}
	return nil
}

// Cancel stops writing, discards queued samples and removes the output
// file. It blocks until the worker has stopped.
func (w *Writer) Cancel() {
	w.stateMu.Lock()
	started := w.work != nil
	if w.status == StatusWriting || w.status == StatusUnknown {
		w.status = StatusCancelled
	}
	w.stateMu.Unlock()

	if !started {
		w.closeSink()
		w.removeOutput()
		return
	}
	w.closeQueue()
	<-w.done
}

func (w *Writer) started() bool {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	return w.work != nil
}

func (w *Writer) closeQueue() {
	w.sendMu.Lock()
	defer w.sendMu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.work)
	}
}

// Status returns the current lifecycle state.
func (w *Writer) Status() Status {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	return w.status
}

// Err returns the error that failed the writer, if any.
func (w *Writer) Err() error {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	return w.err
}

func (w *Writer) fail(err error) {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	if w.status != StatusWriting {
		return
	}
	w.status = StatusFailed
	w.err = err
	w.logger.Error("Container writer failed", "error", err)
}

func (w *Writer) run() {
	defer close(w.done)

	for it := range w.work {
		if it.track != nil {
			it.track.pending.Add(-1)
		}
		if w.Status() != StatusWriting {
			continue
		}
		if err := w.handle(it); err != nil {
			w.fail(err)
		}
	}

	if w.Status() == StatusWriting {
		if err := w.finalize(); err != nil {
			w.fail(err)
		}
	}
	if err := w.closeSink(); err != nil {
		w.fail(errors.Wrap(err, "failed to close output"))
	}

	w.stateMu.Lock()
	switch w.status {
	case StatusWriting:
		w.status = StatusCompleted
	case StatusCancelled:
		w.removeOutput()
	}
	status := w.status
	w.stateMu.Unlock()

	w.logger.Info("✅ Container writer stopped", "status", status.String(), "trimmed", w.trimmed)
}

func (w *Writer) handle(it item) error {
	switch {
	case it.origin != nil:
		w.setOrigin(*it.origin)
		return nil
	case it.end != nil:
		w.end, w.hasEnd = *it.end, true
		return nil
	case it.track != nil:
		return w.encode(it.track, it.sample)
	}
	return nil
}

func (w *Writer) setOrigin(at time.Duration) {
	switch {
	case !w.hasOrigin:
		w.origin, w.hasOrigin = at, true
	case at >= w.origin:
	case !w.frozen:
		w.origin = at
	default:
		w.logger.Warn("Session start moved after media was written, keeping origin",
			"origin", w.origin, "requested", at)
	}
}

func (w *Writer) encode(t *track, s *media.Sample) error {
	if t.spec.Encoder == nil {
		return w.release(t, s)
	}
	out, err := t.spec.Encoder.Encode(s)
	if err != nil {
		return errors.Wrapf(err, "%s encoder", t.spec.Kind)
	}
	for _, e := range out {
		if err := w.release(t, e); err != nil {
			return err
		}
	}
	return nil
}

// release holds samples back until PartDuration of media has been seen, so
// that a late StartSession with an earlier origin still applies.
func (w *Writer) release(t *track, s *media.Sample) error {
	if !w.hasOrigin {
		w.origin, w.hasOrigin = s.PTS, true
	}
	if w.frozen {
		return w.write(t, s)
	}
	w.preroll = append(w.preroll, item{track: t, sample: s})
	if s.PTS-w.origin >= w.opts.PartDuration {
		return w.freeze()
	}
	return nil
}

func (w *Writer) freeze() error {
	if w.frozen {
		return nil
	}
	w.frozen = true
	buffered := w.preroll
	w.preroll = nil
	for _, it := range buffered {
		if err := w.write(it.track, it.sample); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) write(t *track, s *media.Sample) error {
	rel := s.PTS - w.origin
	if rel < 0 {
		w.trimmed++
		t.logger.Debug("Dropping sample before session start", "pts", s.PTS, "origin", w.origin)
		return nil
	}
	if err := w.be.write(t, s, rel); err != nil {
		return errors.Wrapf(err, "failed to write %s sample at %v", t.spec.Kind, s.PTS)
	}
	t.written++
	return nil
}

func (w *Writer) finalize() error {
	if err := w.freeze(); err != nil {
		return err
	}
	for _, t := range w.tracks {
		if t.spec.Encoder == nil {
			continue
		}
		out, err := t.spec.Encoder.Flush()
		if err != nil {
			return errors.Wrapf(err, "%s encoder flush", t.spec.Kind)
		}
		for _, s := range out {
			if err := w.release(t, s); err != nil {
				return err
			}
		}
	}
	if err := w.freeze(); err != nil {
		return err
	}

	end := time.Duration(-1)
	if w.hasEnd && w.hasOrigin {
		end = w.end - w.origin
	}
	if err := w.be.finish(end); err != nil {
		return err
	}

	for _, t := range w.tracks {
		w.logger.Info("Track finalized", "track", t.spec.Kind.String(), "samples", t.written)
	}
	return nil
}

func (w *Writer) closeSink() error {
	if w.closer == nil {
		return nil
	}
	err := w.closer.Close()
	w.closer = nil
	return err
}

func (w *Writer) removeOutput() {
	if w.path == "" {
		return
	}
	if err := os.Remove(w.path); err != nil && !os.IsNotExist(err) {
		w.logger.Warn("Failed to remove cancelled output", "path", w.path, "error", err)
	}
}
