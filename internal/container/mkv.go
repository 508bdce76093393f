package container

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/at-wat/ebml-go/mkvcore"
	"github.com/at-wat/ebml-go/webm"
	"github.com/pkg/errors"

	"github.com/babelcloud/gbox/packages/recorder/internal/media"
	"github.com/babelcloud/gbox/packages/recorder/internal/timecode"
)

const (
	mkvTrackTypeVideo    = 1
	mkvTrackTypeAudio    = 2
	mkvTrackTypeSubtitle = 17

	mkvCloseTimeout = 5 * time.Second
)

// writerCloser wraps the sink so that mkvcore can close it once every
// track writer is closed. Close never closes the sink itself.
type writerCloser struct {
	writer io.Writer
	logger *slog.Logger
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

func (wc *writerCloser) Write(p []byte) (n int, err error) {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	if wc.closed {
		return 0, io.ErrClosedPipe
	}

	n, err = wc.writer.Write(p)
	if err != nil {
		wc.logger.Warn("Write error detected, marking writer as closed",
			"error", err,
			"error_type", fmt.Sprintf("%T", err),
			"data_size", len(p),
			"bytes_written", n)
		wc.closed = true
	}
	return n, err
}

func (wc *writerCloser) Close() error {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	if !wc.closed {
		wc.closed = true
	}
	select {
	case <-wc.done:
	default:
		close(wc.done)
	}
	return nil
}

type mkvBlock struct {
	key  bool
	ms   int64
	data []byte
}

type mkvTrack struct {
	t      *track
	entry  webm.TrackEntry
	codec  media.VideoCodec
	params media.ParameterSets
	synced bool
	quanta int
	drop   bool

	bw      webm.BlockWriteCloser
	pending []mkvBlock
}

// mkvBackend writes a Matroska file. The header needs the video codec
// private data, so blocks are buffered until every video track has its
// parameter sets.
type mkvBackend struct {
	w      *Writer
	tracks map[*track]*mkvTrack
	order  []*mkvTrack

	wc     *writerCloser
	opened bool

	fatalMu sync.Mutex
	fatal   error
}

func newMKVBackend(w *Writer) *mkvBackend {
	return &mkvBackend{
		w:      w,
		tracks: make(map[*track]*mkvTrack),
	}
}

func (b *mkvBackend) addTrack(t *track) error {
	n := uint64(t.id)
	mt := &mkvTrack{
		t: t,
		entry: webm.TrackEntry{
			Name:        t.spec.Kind.String(),
			TrackNumber: n,
			TrackUID:    n,
		},
	}

	switch t.spec.Kind {
	case media.KindVideo:
		v := t.spec.Video
		mt.codec = v.Codec
		mt.params = v.Params
		switch v.Codec {
		case media.VideoCodecH264:
			mt.entry.CodecID = "V_MPEG4/ISO/AVC"
		case media.VideoCodecH265:
			mt.entry.CodecID = "V_MPEGH/ISO/HEVC"
		default:
			return errors.Wrapf(ErrUnsupportedTrack, "mkv video codec %s", v.Codec)
		}
		mt.entry.TrackType = mkvTrackTypeVideo
		mt.entry.DefaultDuration = uint64(v.FrameRate.FrameDuration())
		mt.entry.Video = &webm.Video{
			PixelWidth:  uint64(v.Width),
			PixelHeight: uint64(v.Height),
		}

	case media.KindAudio:
		a := t.spec.Audio
		mt.entry.TrackType = mkvTrackTypeAudio
		switch a.Codec {
		case media.AudioCodecLPCM:
			if a.Stream.NonInterleaved {
				return errors.Wrap(ErrUnsupportedTrack, "mkv supports interleaved PCM only")
			}
			switch {
			case a.Stream.Float:
				mt.entry.CodecID = "A_PCM/FLOAT/IEEE"
			case a.Stream.BigEndian:
				mt.entry.CodecID = "A_PCM/INT/BIG"
			default:
				mt.entry.CodecID = "A_PCM/INT/LIT"
			}
			mt.entry.Audio = &webm.Audio{
				SamplingFrequency: float64(a.Stream.SampleRate),
				Channels:          uint64(a.Stream.ChannelCount),
			}
		case media.AudioCodecAAC, media.AudioCodecHEAAC:
			asc := audioSpecificConfig(a.Codec, a.SampleRate, a.Channels)
			private, err := asc.Marshal()
			if err != nil {
				return errors.Wrap(err, "failed to marshal audio specific config")
			}
			mt.entry.CodecID = "A_AAC"
			mt.entry.CodecPrivate = private
			mt.entry.Audio = &webm.Audio{
				SamplingFrequency: float64(a.SampleRate),
				Channels:          uint64(a.Channels),
			}
		default:
			return errors.Wrapf(ErrUnsupportedTrack, "mkv audio codec %s", a.Codec)
		}
		mt.synced = true

	case media.KindTimecode:
		tc := t.spec.Timecode
		mt.entry.CodecID = "S_TEXT/UTF8"
		mt.entry.TrackType = mkvTrackTypeSubtitle
		mt.entry.DefaultDuration = uint64(tc.FrameRate.FrameDuration())
		mt.quanta = tc.Quanta
		mt.drop = tc.DropFrame
		mt.synced = true

	default:
		return errors.Wrapf(ErrUnsupportedTrack, "mkv %s track", t.spec.Kind)
	}

	b.tracks[t] = mt
	b.order = append(b.order, mt)
	return nil
}

func (b *mkvBackend) write(t *track, s *media.Sample, rel time.Duration) error {
	if err := b.fatalErr(); err != nil {
		return err
	}
	mt := b.tracks[t]
	blk := mkvBlock{key: true, ms: rel.Milliseconds(), data: s.Payload}

	switch t.spec.Kind {
	case media.KindVideo:
		avcc, nalus, err := toAVCC(s.Payload)
		if err != nil {
			return err
		}
		if vf, ok := s.Format.(*media.VideoFormat); ok {
			mergeParams(&mt.params, vf.Params)
		}
		extractParams(mt.codec, nalus, &mt.params)

		blk.key = s.KeyFrame || isRandomAccess(mt.codec, nalus)
		if !mt.synced {
			if !blk.key {
				t.logger.Debug("Dropping video sample before first sync sample", "pts", s.PTS)
				return nil
			}
			mt.synced = true
		}
		blk.data = avcc

	case media.KindAudio:
		if t.spec.Audio.Codec.IsLossy() {
			blk.data = stripADTSHeader(s.Payload)
		}

	case media.KindTimecode:
		n, err := timecode.Decode(s.Payload)
		if err != nil {
			return err
		}
		blk.data = []byte(timecode.FromFrame(int64(n), mt.quanta, mt.drop).String())
	}

	if !b.opened {
		mt.pending = append(mt.pending, blk)
		if !b.ready() {
			return nil
		}
		if err := b.open(); err != nil {
			return err
		}
		return b.drain()
	}
	return b.writeBlock(mt, blk)
}

func (b *mkvBackend) ready() bool {
	for _, mt := range b.order {
		if mt.t.spec.Kind == media.KindVideo && !paramsComplete(mt.codec, mt.params) {
			return false
		}
	}
	return true
}

func (b *mkvBackend) open() error {
	entries := make([]webm.TrackEntry, 0, len(b.order))
	for _, mt := range b.order {
		if mt.t.spec.Kind == media.KindVideo {
			switch mt.codec {
			case media.VideoCodecH264:
				mt.entry.CodecPrivate = avcDecoderConfig(mt.params.SPS, mt.params.PPS)
			case media.VideoCodecH265:
				mt.entry.CodecPrivate = hevcDecoderConfig(mt.params.VPS, mt.params.SPS, mt.params.PPS)
			}
			if mt.entry.CodecPrivate == nil {
				return errors.Wrapf(ErrMissingParameters, "malformed %s parameter sets", mt.codec)
			}
		}
		entries = append(entries, mt.entry)
	}

	b.wc = &writerCloser{
		writer: b.w.sink,
		logger: b.w.logger,
		done:   make(chan struct{}),
	}
	writers, err := webm.NewSimpleBlockWriter(b.wc, entries,
		mkvcore.WithEBMLHeader(&webm.EBMLHeader{
			EBMLVersion:        1,
			EBMLReadVersion:    1,
			EBMLMaxIDLength:    4,
			EBMLMaxSizeLength:  8,
			DocType:            "matroska",
			DocTypeVersion:     4,
			DocTypeReadVersion: 2,
		}),
		mkvcore.WithSegmentInfo(&webm.Info{
			TimecodeScale: uint64(time.Millisecond),
			MuxingApp:     "gbox-recorder",
			WritingApp:    "gbox-recorder",
		}),
		mkvcore.WithOnFatalHandler(func(err error) {
			b.w.logger.Warn("Matroska writer error", "error", err)
			b.fatalMu.Lock()
			if b.fatal == nil {
				b.fatal = err
			}
			b.fatalMu.Unlock()
		}),
	)
	if err != nil {
		return errors.Wrap(err, "failed to create matroska writer")
	}
	for i, mt := range b.order {
		mt.bw = writers[i]
	}
	b.opened = true
	b.w.logger.Debug("Matroska header written", "tracks", len(entries))
	return nil
}

// drain writes the blocks buffered before the header, oldest first across
// tracks.
func (b *mkvBackend) drain() error {
	for {
		var next *mkvTrack
		for _, mt := range b.order {
			if len(mt.pending) == 0 {
				continue
			}
			if next == nil || mt.pending[0].ms < next.pending[0].ms {
				next = mt
			}
		}
		if next == nil {
			return nil
		}
		blk := next.pending[0]
		next.pending = next.pending[1:]
		if err := b.writeBlock(next, blk); err != nil {
			return err
		}
	}
}

func (b *mkvBackend) writeBlock(mt *mkvTrack, blk mkvBlock) error {
	if _, err := mt.bw.Write(blk.key, blk.ms, blk.data); err != nil {
		return errors.Wrapf(err, "failed to write %s block", mt.t.spec.Kind)
	}
	return b.fatalErr()
}

func (b *mkvBackend) fatalErr() error {
	b.fatalMu.Lock()
	defer b.fatalMu.Unlock()
	return b.fatal
}

func (b *mkvBackend) finish(time.Duration) error {
	if !b.opened {
		buffered := false
		for _, mt := range b.order {
			buffered = buffered || len(mt.pending) > 0
		}
		if !b.ready() {
			if buffered {
				return ErrMissingParameters
			}
			return nil
		}
		if err := b.open(); err != nil {
			return err
		}
		if err := b.drain(); err != nil {
			return err
		}
	}

	for _, mt := range b.order {
		if err := mt.bw.Close(); err != nil {
			b.w.logger.Warn("Track writer close error", "track", mt.t.spec.Kind.String(), "error", err)
		}
	}
	select {
	case <-b.wc.done:
	case <-time.After(mkvCloseTimeout):
		return errors.New("timed out waiting for matroska writer to close")
	}
	return b.fatalErr()
}
