package container

import (
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"
	"github.com/pkg/errors"

	"github.com/babelcloud/gbox/packages/recorder/internal/media"
)

const defaultVideoTimescale = 90000

// durationToTicks converts a Go duration into track timescale units
// without overflowing for long recordings.
func durationToTicks(d time.Duration, timeScale uint32) int64 {
	secs := d / time.Second
	rem := d % time.Second
	return int64(secs)*int64(timeScale) + int64(rem)*int64(timeScale)/int64(time.Second)
}

// mp4Backend writes a fragmented MP4. Samples are held until the next one
// on the same track arrives so that every sample gets an exact duration,
// and the init segment is written once all parameter sets are known.
type mp4Backend struct {
	w      *Writer
	tracks map[*track]*mp4Track
	order  []*mp4Track

	initWritten bool
	seq         uint32
	partStart   time.Duration
}

type mp4Sample struct {
	*fmp4.Sample
	dts int64
	rel time.Duration
	// dur is the duration the producer declared, used for the last sample.
	dur time.Duration
}

type mp4Track struct {
	t         *track
	timeScale uint32
	codec     media.VideoCodec // video only
	params    media.ParameterSets
	mp4Codec  mp4.Codec // fixed for audio, built at init for video
	synced    bool

	next     *mp4Sample
	samples  []*fmp4.Sample
	baseTime int64
}

func newMP4Backend(w *Writer) *mp4Backend {
	return &mp4Backend{
		w:      w,
		tracks: make(map[*track]*mp4Track),
		seq:    1,
	}
}

func (b *mp4Backend) addTrack(t *track) error {
	mt := &mp4Track{t: t}

	switch t.spec.Kind {
	case media.KindVideo:
		v := t.spec.Video
		mt.codec = v.Codec
		mt.params = v.Params
		mt.timeScale = v.Timescale
		if mt.timeScale == 0 {
			mt.timeScale = defaultVideoTimescale
		}
		if v.Codec != media.VideoCodecH264 && v.Codec != media.VideoCodecH265 {
			return errors.Wrapf(ErrUnsupportedTrack, "mp4 video codec %s", v.Codec)
		}

	case media.KindAudio:
		a := t.spec.Audio
		switch a.Codec {
		case media.AudioCodecLPCM:
			if a.Stream.Float || a.Stream.NonInterleaved {
				return errors.Wrap(ErrUnsupportedTrack, "mp4 supports interleaved integer PCM only")
			}
			mt.timeScale = uint32(a.Stream.SampleRate)
			mt.mp4Codec = &mp4.CodecLPCM{
				LittleEndian: !a.Stream.BigEndian,
				BitDepth:     a.Stream.BitsPerChannel,
				SampleRate:   a.Stream.SampleRate,
				ChannelCount: a.Stream.ChannelCount,
			}
		case media.AudioCodecAAC, media.AudioCodecHEAAC:
			mt.timeScale = uint32(a.SampleRate)
			mt.mp4Codec = &mp4.CodecMPEG4Audio{
				Config: audioSpecificConfig(a.Codec, a.SampleRate, a.Channels),
			}
		default:
			return errors.Wrapf(ErrUnsupportedTrack, "mp4 audio codec %s", a.Codec)
		}
		mt.synced = true

	default:
		return errors.Wrapf(ErrUnsupportedTrack, "mp4 %s track", t.spec.Kind)
	}

	b.tracks[t] = mt
	b.order = append(b.order, mt)
	return nil
}

func (b *mp4Backend) write(t *track, s *media.Sample, rel time.Duration) error {
	mt := b.tracks[t]

	payload := s.Payload
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

		key := s.KeyFrame || isRandomAccess(mt.codec, nalus)
		if !mt.synced {
			if !key {
				t.logger.Debug("Dropping video sample before first sync sample", "pts", s.PTS)
				return nil
			}
			mt.synced = true
		}
		s = s.WithPayload(avcc, s.Format)
		s.KeyFrame = key
		payload = avcc

	case media.KindAudio:
		if t.spec.Audio.Codec.IsLossy() {
			payload = stripADTSHeader(payload)
		}
	}

	cur := &mp4Sample{
		Sample: &fmp4.Sample{
			IsNonSyncSample: t.spec.Kind == media.KindVideo && !s.KeyFrame,
			Payload:         payload,
		},
		dts: durationToTicks(rel, mt.timeScale),
		rel: rel,
		dur: s.Duration,
	}

	if prev := mt.next; prev != nil {
		diff := cur.dts - prev.dts
		if diff <= 0 {
			t.logger.Warn("Dropping sample with non-increasing timestamp",
				"pts", s.PTS, "dts", cur.dts, "previous", prev.dts)
			return nil
		}
		prev.Duration = uint32(diff)
		mt.push(prev)
	}
	mt.next = cur

	if rel-b.partStart >= b.w.opts.PartDuration {
		return b.flush(rel)
	}
	return nil
}

func mergeParams(dst *media.ParameterSets, src media.ParameterSets) {
	if len(dst.VPS) == 0 && len(src.VPS) > 0 {
		dst.VPS = src.VPS
	}
	if len(dst.SPS) == 0 && len(src.SPS) > 0 {
		dst.SPS = src.SPS
	}
	if len(dst.PPS) == 0 && len(src.PPS) > 0 {
		dst.PPS = src.PPS
	}
}

func (mt *mp4Track) push(s *mp4Sample) {
	if len(mt.samples) == 0 {
		mt.baseTime = s.dts
	}
	mt.samples = append(mt.samples, s.Sample)
}

func (b *mp4Backend) ready() bool {
	for _, mt := range b.order {
		if mt.t.spec.Kind == media.KindVideo && !paramsComplete(mt.codec, mt.params) {
			return false
		}
	}
	return true
}

func (b *mp4Backend) writeInit() error {
	init := &fmp4.Init{}
	for _, mt := range b.order {
		if mt.t.spec.Kind == media.KindVideo {
			switch mt.codec {
			case media.VideoCodecH264:
				mt.mp4Codec = &mp4.CodecH264{SPS: mt.params.SPS, PPS: mt.params.PPS}
			case media.VideoCodecH265:
				mt.mp4Codec = &mp4.CodecH265{VPS: mt.params.VPS, SPS: mt.params.SPS, PPS: mt.params.PPS}
			}
		}
		init.Tracks = append(init.Tracks, &fmp4.InitTrack{
			ID:        mt.t.id,
			TimeScale: mt.timeScale,
			Codec:     mt.mp4Codec,
		})
	}

	var buf seekablebuffer.Buffer
	if err := init.Marshal(&buf); err != nil {
		return errors.Wrap(err, "failed to marshal init segment")
	}
	if _, err := b.w.sink.Write(buf.Bytes()); err != nil {
		return errors.Wrap(err, "failed to write init segment")
	}
	b.initWritten = true
	b.w.logger.Debug("fMP4 init segment written", "size", len(buf.Bytes()), "tracks", len(init.Tracks))
	return nil
}

// flush writes the buffered samples as one part. Without complete
// parameter sets it keeps buffering.
func (b *mp4Backend) flush(rel time.Duration) error {
	if !b.ready() {
		return nil
	}
	part := &fmp4.Part{SequenceNumber: b.seq}
	for _, mt := range b.order {
		if len(mt.samples) == 0 {
			continue
		}
		part.Tracks = append(part.Tracks, &fmp4.PartTrack{
			ID:       mt.t.id,
			BaseTime: uint64(mt.baseTime),
			Samples:  mt.samples,
		})
	}
	b.partStart = rel
	if len(part.Tracks) == 0 {
		return nil
	}

	if !b.initWritten {
		if err := b.writeInit(); err != nil {
			return err
		}
	}

	var buf seekablebuffer.Buffer
	if err := part.Marshal(&buf); err != nil {
		return errors.Wrap(err, "failed to marshal part")
	}
	if _, err := b.w.sink.Write(buf.Bytes()); err != nil {
		return errors.Wrap(err, "failed to write part")
	}
	b.w.logger.Debug("fMP4 part written", "sequence", b.seq, "tracks", len(part.Tracks), "size", len(buf.Bytes()))

	b.seq++
	for _, mt := range b.order {
		mt.samples = nil
	}
	return nil
}

func (b *mp4Backend) finish(end time.Duration) error {
	var last time.Duration
	for _, mt := range b.order {
		s := mt.next
		if s == nil {
			continue
		}
		mt.next = nil

		var dur int64
		if end > s.rel {
			dur = durationToTicks(end, mt.timeScale) - s.dts
		}
		if dur <= 0 {
			dur = durationToTicks(s.dur, mt.timeScale)
		}
		if dur <= 0 {
			dur = 1
		}
		s.Duration = uint32(dur)
		mt.push(s)
		if s.rel > last {
			last = s.rel
		}
	}

	pending := false
	for _, mt := range b.order {
		pending = pending || len(mt.samples) > 0
	}
	if !pending {
		if !b.initWritten && b.ready() {
			return b.writeInit()
		}
		return nil
	}
	if !b.ready() {
		return ErrMissingParameters
	}
	return b.flush(last)
}
