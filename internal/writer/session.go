// Package writer records captured samples into one container file per
// session. A Session owns the container writer, its tracks and the shared
// timeline, and serializes every operation on a single goroutine.
package writer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/babelcloud/gbox/packages/recorder/internal/container"
	"github.com/babelcloud/gbox/packages/recorder/internal/media"
	"github.com/babelcloud/gbox/packages/recorder/internal/metrics"
	"github.com/babelcloud/gbox/packages/recorder/internal/remap"
	"github.com/babelcloud/gbox/packages/recorder/internal/timecode"
	"github.com/babelcloud/gbox/packages/recorder/internal/trackconfig"
)

// DefaultVideoPreset is used when the configuration names none.
const DefaultVideoPreset = "1080p29.97"

// State is the lifecycle state of a Session.
type State int

const (
	StateIdle State = iota
	StateOpening
	StateWriting
	StateClosing
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StateWriting:
		return "writing"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Status is a point-in-time view of a Session.
type Status struct {
	ID           string
	State        State
	Path         string
	SessionStart time.Duration
	RunningEnd   time.Duration
	Duration     time.Duration
	Recording    bool
	Err          error
}

// Summary reports the outcome of a closed session.
type Summary struct {
	ID       string
	Path     string
	Duration time.Duration
	Status   container.Status
	Appended map[media.Kind]int
	Dropped  map[media.Kind]int
}

type sessionTrack struct {
	kind     media.Kind
	track    container.Track
	remap    *remap.Plan
	appended int
	dropped  int
}

// teardown is what Close needs to drain a session without the actor.
type teardown struct {
	cw       ContainerWriter
	tracks   []container.Track
	duration time.Duration
	end      time.Duration
}

// Session records one container file. It is single-use: once closed or
// failed, create a new Session to record again.
type Session struct {
	id      string
	cfg     Config
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics

	reqs      chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// snapshot, readable from any goroutine
	mu       sync.RWMutex
	snap     Status
	closing  bool
	teardown teardown

	// owned by the actor goroutine
	state        State
	hints        SourceHints
	cw           ContainerWriter
	path         string
	tracks       map[media.Kind]*sessionTrack
	started      bool
	sessionStart time.Duration
	runningEnd   time.Duration
	duration     time.Duration
	lastErr      error
}

// New creates an idle session and starts its actor goroutine. Call Close
// to release it.
func New(cfg Config, opts Options) *Session {
	opts = opts.withDefaults()
	id := uuid.NewString()
	s := &Session{
		id:      id,
		cfg:     cfg,
		opts:    opts,
		logger:  opts.Logger.With("session", id),
		metrics: opts.Metrics,
		reqs:    make(chan func()),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		tracks:  make(map[media.Kind]*sessionTrack),
	}
	s.snap = Status{ID: id, State: StateIdle}
	go s.run()
	return s
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case req := <-s.reqs:
			req()
		case <-s.quit:
			return
		}
	}
}

// do runs fn on the actor and waits for it. fn keeps running if ctx ends
// first.
func (s *Session) do(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan struct{})
	req := func() {
		defer close(done)
		fn()
	}
	select {
	case s.reqs <- req:
	case <-s.quit:
		return ErrWriterUnavailable
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// publish copies the actor state into the snapshot.
func (s *Session) publish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = Status{
		ID:           s.id,
		State:        s.state,
		Path:         s.path,
		SessionStart: s.sessionStart,
		RunningEnd:   s.runningEnd,
		Duration:     s.duration,
		Recording:    s.state == StateWriting,
		Err:          s.lastErr,
	}
	s.teardown = teardown{}
	if s.cw != nil {
		s.teardown.cw = s.cw
		s.teardown.duration = s.duration
		s.teardown.end = s.runningEnd
		for _, kind := range media.Kinds {
			if st := s.tracks[kind]; st != nil {
				s.teardown.tracks = append(s.teardown.tracks, st.track)
			}
		}
	}
}

// Status returns the latest snapshot without waiting for the actor.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// SetSourceHints records the source formats. Hints must arrive before
// OpenSession.
func (s *Session) SetSourceHints(ctx context.Context, hints SourceHints) error {
	var err error
	if derr := s.do(ctx, func() {
		if s.state != StateIdle {
			err = &Error{Op: "hints", Kind: ErrWriterUnavailable, Err: errors.Wrapf(ErrSessionUsed, "state %s", s.state)}
			return
		}
		s.hints = hints
		s.logger.Debug("Source hints received",
			"audio", hints.Audio != nil, "video", hints.Video != nil, "timecode", hints.Timecode != nil)
	}); derr != nil {
		return &Error{Op: "hints", Kind: ErrWriterUnavailable, Err: derr}
	}
	return err
}

// OpenSession creates the output file and its tracks and starts writing.
func (s *Session) OpenSession(ctx context.Context) error {
	var err error
	if derr := s.do(ctx, func() { err = s.open() }); derr != nil {
		return &Error{Op: "open", Kind: ErrSessionOpenFailed, Err: derr}
	}
	return err
}

func (s *Session) open() error {
	if s.state != StateIdle {
		return &Error{Op: "open", Kind: ErrSessionOpenFailed, Err: errors.Wrapf(ErrSessionUsed, "state %s", s.state)}
	}
	if !s.cfg.RecordVideo && !s.cfg.RecordAudio && !s.cfg.RecordTimecode {
		return s.openFailed(nil, &Error{Op: "open", Kind: ErrSessionOpenFailed, Err: errors.New("no media kind enabled")})
	}
	s.state = StateOpening
	s.path = ResolvePath(s.cfg, s.opts.Clock)
	s.publish()

	cw, err := s.opts.Create(s.path, s.cfg.Format, container.Options{
		Logger:       s.logger.With("component", "container", "format", s.cfg.Format.String()),
		QueueDepth:   s.cfg.QueueDepth,
		PartDuration: s.cfg.PartDuration,
	})
	if err != nil {
		return s.openFailed(nil, &Error{Op: "open", Kind: ErrSessionOpenFailed, Err: err})
	}

	specs, err := s.trackSpecs()
	if err != nil {
		return s.openFailed(cw, err)
	}
	tracks := make(map[media.Kind]*sessionTrack, len(specs))
	for _, spec := range specs {
		t, err := cw.AddTrack(spec)
		if err != nil {
			return s.openFailed(cw, &Error{Op: "open", Kind: invalidSettingsKind(spec.Kind), Track: spec.Kind, Err: err})
		}
		st := &sessionTrack{kind: spec.Kind, track: t}
		if spec.Audio != nil {
			st.remap = spec.Audio.Remap
		}
		tracks[spec.Kind] = st
	}
	if err := cw.StartWriting(); err != nil {
		return s.openFailed(cw, &Error{Op: "open", Kind: ErrSessionOpenFailed, Err: err})
	}

	s.cw = cw
	s.tracks = tracks
	s.state = StateWriting
	s.publish()
	s.metrics.SetRecording(true)
	s.logger.Info("🎬 Recording session opened", "path", s.path, "tracks", len(tracks), "format", s.cfg.Format.String())
	return nil
}

func (s *Session) openFailed(cw ContainerWriter, err error) error {
	if cw != nil {
		cw.Cancel()
	}
	s.state = StateFailed
	s.lastErr = err
	s.publish()
	s.metrics.IncSessions(metrics.ResultOpenFailed)
	s.logger.Error("Failed to open recording session", "path", s.path, "error", err)
	return err
}

// trackSpecs builds the settings of every enabled kind in track order.
func (s *Session) trackSpecs() ([]container.TrackSpec, error) {
	var specs []container.TrackSpec
	var video *trackconfig.VideoSettings

	if s.cfg.RecordVideo {
		spec, err := s.videoSpec()
		if err != nil {
			return nil, &Error{Op: "open", Kind: ErrInvalidVideoSettings, Track: media.KindVideo, Err: err}
		}
		video = spec.Video
		specs = append(specs, spec)
	}
	if s.cfg.RecordAudio {
		spec, err := s.audioSpec()
		if err != nil {
			return nil, &Error{Op: "open", Kind: ErrInvalidAudioSettings, Track: media.KindAudio, Err: err}
		}
		specs = append(specs, spec)
	}
	if s.cfg.RecordTimecode {
		spec, err := s.timecodeSpec(video)
		if err != nil {
			return nil, &Error{Op: "open", Kind: ErrInvalidTimecodeSettings, Track: media.KindTimecode, Err: err}
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func (s *Session) preset() (trackconfig.VideoPreset, error) {
	name := s.cfg.VideoPreset
	if name == "" {
		name = DefaultVideoPreset
	}
	p, ok := trackconfig.LookupPreset(name)
	if !ok {
		return trackconfig.VideoPreset{}, errors.Errorf("unknown video preset %q", name)
	}
	return p, nil
}

func (s *Session) videoSpec() (container.TrackSpec, error) {
	preset, err := s.preset()
	if err != nil {
		return container.TrackSpec{}, err
	}
	var hint media.VideoFormat
	if s.hints.Video != nil {
		hint = *s.hints.Video
	}
	settings, err := trackconfig.BuildVideoOutputSettings(preset, hint, trackconfig.VideoRequest{
		Codec:     s.cfg.VideoCodec,
		Bitrate:   s.cfg.VideoBitrate,
		Timescale: s.cfg.Timescale,
	})
	if err != nil {
		return container.TrackSpec{}, err
	}
	if settings, err = s.cfg.Hooks.ApplyVideo(settings); err != nil {
		return container.TrackSpec{}, err
	}

	spec := container.TrackSpec{Kind: media.KindVideo, Video: &settings}
	if hint.Codec != media.VideoCodecUnknown && hint.Codec != settings.Codec {
		if s.cfg.VideoEncoder == nil {
			return container.TrackSpec{}, errors.Errorf("%s source needs an encoder to record %s", hint.Codec, settings.Codec)
		}
		if spec.Encoder, err = s.cfg.VideoEncoder(settings); err != nil {
			return container.TrackSpec{}, errors.Wrap(err, "failed to create video encoder")
		}
	}
	return spec, nil
}

func (s *Session) audioSpec() (container.TrackSpec, error) {
	if s.hints.Audio == nil {
		return container.TrackSpec{}, ErrMissingSourceHint
	}
	mode, err := s.cfg.remapMode()
	if err != nil {
		return container.TrackSpec{}, err
	}
	src := s.hints.Audio
	var settings trackconfig.AudioSettings
	if mode != nil && s.cfg.AudioCodec.IsLossy() {
		settings, err = trackconfig.BuildAudioOutputSettingsForMode(src.Stream, src.Layout, s.cfg.AudioCodec, s.cfg.AudioBitrate, *mode)
	} else {
		settings, err = trackconfig.BuildAudioOutputSettings(src.Stream, src.Layout, s.cfg.AudioCodec, s.cfg.AudioBitrate)
	}
	if err != nil {
		return container.TrackSpec{}, err
	}
	if settings, err = s.cfg.Hooks.ApplyAudio(settings); err != nil {
		return container.TrackSpec{}, err
	}

	spec := container.TrackSpec{Kind: media.KindAudio, Audio: &settings}
	if settings.Codec.IsLossy() && s.cfg.AudioEncoder != nil {
		if spec.Encoder, err = s.cfg.AudioEncoder(settings); err != nil {
			return container.TrackSpec{}, errors.Wrap(err, "failed to create audio encoder")
		}
	}
	if settings.Remap != nil {
		s.logger.Info("Audio remap enabled",
			"mode", settings.Mode.String(),
			"permutation", fmt.Sprint(settings.Remap.Permutation),
			"layout", fmt.Sprint(settings.Layout))
	}
	return spec, nil
}

func (s *Session) timecodeSpec(video *trackconfig.VideoSettings) (container.TrackSpec, error) {
	var format media.TimecodeFormat
	switch {
	case s.hints.Timecode != nil:
		format = *s.hints.Timecode
	case video != nil:
		format.FrameRate = video.FrameRate
	default:
		preset, err := s.preset()
		if err != nil {
			return container.TrackSpec{}, err
		}
		format.FrameRate = preset.FrameRate
		if s.hints.Video != nil && s.hints.Video.FrameRate.Valid() {
			format.FrameRate = s.hints.Video.FrameRate
		}
	}
	if s.hints.Timecode == nil {
		format.DropFrame = format.FrameRate.IsNTSC() && timecode.SupportsDropFrame(format.FrameRate.Quanta())
	}

	settings, err := trackconfig.BuildTimecodeOutputSettings(format, trackconfig.TimecodeRequest{})
	if err != nil {
		return container.TrackSpec{}, err
	}
	if settings, err = s.cfg.Hooks.ApplyTimecode(settings); err != nil {
		return container.TrackSpec{}, err
	}
	return container.TrackSpec{Kind: media.KindTimecode, Timecode: &settings}, nil
}

// AppendSample hands one captured sample to its track. It never waits for
// the track to become ready: a busy track rejects the sample with
// ErrNotReady and the session carries on.
func (s *Session) AppendSample(ctx context.Context, kind media.Kind, sample *media.Sample) error {
	s.mu.RLock()
	state, closing := s.snap.State, s.closing
	s.mu.RUnlock()
	if state != StateWriting || closing {
		s.metrics.IncDropped(kind.String(), metrics.ReasonUnavailable)
		return &Error{Op: "append", Kind: ErrWriterUnavailable, Track: kind, Err: errors.Errorf("state %s", state)}
	}

	var err error
	if derr := s.do(ctx, func() { err = s.append(kind, sample) }); derr != nil {
		return &Error{Op: "append", Kind: ErrWriterUnavailable, Track: kind, Err: derr}
	}
	return err
}

func (s *Session) append(kind media.Kind, sample *media.Sample) error {
	if !kind.Valid() {
		return &Error{Op: "append", Kind: ErrUnsupportedMediaKind, Track: kind}
	}
	if s.state != StateWriting {
		s.metrics.IncDropped(kind.String(), metrics.ReasonUnavailable)
		return &Error{Op: "append", Kind: ErrWriterUnavailable, Track: kind, Err: errors.Errorf("state %s", s.state)}
	}
	st := s.tracks[kind]
	if st == nil {
		s.metrics.IncDropped(kind.String(), metrics.ReasonNoTrack)
		return &Error{Op: "append", Kind: appendFailedKind(kind), Track: kind, Err: ErrNoTrack}
	}
	fail := func(reason string, err error) error {
		st.dropped++
		s.metrics.IncDropped(kind.String(), reason)
		return &Error{Op: "append", Kind: appendFailedKind(kind), Track: kind, Err: err}
	}
	if sample == nil || sample.Kind != kind {
		return fail(metrics.ReasonAppend, errors.Errorf("sample is not %s", kind))
	}
	if !st.track.ReadyForMoreData() {
		return fail(metrics.ReasonNotReady, ErrNotReady)
	}

	out := sample
	if st.remap != nil {
		remapped, err := st.remap.Apply(sample)
		if err != nil {
			s.logger.Warn("Dropping audio sample, remap failed", "pts", sample.PTS, "error", err)
			return fail(metrics.ReasonRemap, err)
		}
		out = remapped
	}

	if err := st.track.Append(out); err != nil {
		if errors.Is(err, container.ErrNotReady) {
			return fail(metrics.ReasonNotReady, ErrNotReady)
		}
		return fail(metrics.ReasonAppend, err)
	}

	if !s.started || out.PTS < s.sessionStart {
		if s.started {
			s.logger.Debug("Session start moved earlier", "from", s.sessionStart, "to", out.PTS, "kind", kind.String())
		}
		s.sessionStart = out.PTS
		s.cw.StartSession(out.PTS)
	}
	if end := out.End(); !s.started || end > s.runningEnd {
		s.runningEnd = end
	}
	s.started = true
	s.duration = s.runningEnd - s.sessionStart

	st.appended++
	s.metrics.IncAppended(kind.String())
	s.publish()
	return nil
}

// CloseSession finishes the file and waits until it is written. Samples
// appended while the close is in flight are rejected.
func (s *Session) CloseSession(ctx context.Context) (Summary, error) {
	var (
		sum Summary
		err error
	)
	req := func() {
		// Only an accepted close request turns away new samples.
		s.mu.Lock()
		if s.state == StateWriting {
			s.closing = true
		}
		s.mu.Unlock()
		sum, err = s.close()
	}
	if derr := s.do(ctx, req); derr != nil {
		return Summary{}, &Error{Op: "close", Kind: ErrSessionCloseFailed, Err: derr}
	}
	return sum, err
}

func (s *Session) close() (Summary, error) {
	if s.state != StateWriting {
		return Summary{}, &Error{Op: "close", Kind: ErrWriterUnavailable, Err: ErrNoSessionInProgress}
	}
	s.state = StateClosing
	s.publish()

	for _, st := range s.tracks {
		st.track.MarkFinished()
	}
	if s.duration > 0 {
		s.cw.EndSession(s.runningEnd)
	}

	begin := time.Now()
	ferr := s.cw.Finish(context.Background())
	s.metrics.ObserveFinalize(time.Since(begin))

	sum := Summary{
		ID:       s.id,
		Path:     s.path,
		Status:   s.cw.Status(),
		Appended: make(map[media.Kind]int, len(s.tracks)),
		Dropped:  make(map[media.Kind]int, len(s.tracks)),
	}
	if s.started {
		sum.Duration = s.runningEnd - s.sessionStart
	}
	for kind, st := range s.tracks {
		sum.Appended[kind] = st.appended
		sum.Dropped[kind] = st.dropped
	}

	s.started = false
	s.sessionStart, s.runningEnd, s.duration = 0, 0, 0
	s.tracks = make(map[media.Kind]*sessionTrack)
	s.cw = nil
	s.metrics.SetRecording(false)

	if sum.Status != container.StatusCompleted {
		cause := ferr
		if cause == nil {
			cause = errors.Errorf("container finished with status %s", sum.Status)
		}
		s.state = StateFailed
		s.lastErr = &Error{Op: "close", Kind: ErrSessionCloseFailed, Err: cause}
		s.publish()
		s.metrics.IncSessions(metrics.ResultFailed)
		s.logger.Error("Recording session failed to finalize", "path", s.path, "status", sum.Status.String(), "error", cause)
		return sum, s.lastErr
	}

	s.state = StateClosed
	s.publish()
	s.metrics.IncSessions(metrics.ResultCompleted)
	s.logger.Info("✅ Recording session closed", "path", s.path, "duration", sum.Duration, "appended", sum.Appended)
	return sum, nil
}

// Close stops the session. A session that is still writing is drained
// synchronously: tracks are finished and Close blocks until the container
// is written.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closing = true
		s.mu.Unlock()

		close(s.quit)
		<-s.done

		s.mu.RLock()
		td := s.teardown
		s.mu.RUnlock()
		if td.cw == nil {
			return
		}

		s.logger.Info("Draining open session on close", "path", s.path)
		for _, t := range td.tracks {
			t.MarkFinished()
		}
		if td.duration > 0 {
			td.cw.EndSession(td.end)
		}
		err = td.cw.Finish(context.Background())

		// the actor is gone, its state is ours now
		s.cw = nil
		s.state = StateClosed
		if err != nil {
			s.state = StateFailed
			s.lastErr = &Error{Op: "close", Kind: ErrSessionCloseFailed, Err: err}
			err = s.lastErr
		}
		s.publish()
		s.metrics.SetRecording(false)
	})
	return err
}
