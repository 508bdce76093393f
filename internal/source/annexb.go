package source

import (
	"context"
	"os"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h265"
	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/babelcloud/gbox/packages/recorder/internal/media"
)

type accessUnit struct {
	nalus [][]byte
	key   bool
}

// AnnexBFile replays the access units of an H.264 or H.265 elementary
// stream at a fixed frame rate.
type AnnexBFile struct {
	codec  media.VideoCodec
	rate   media.Rational
	units  []accessUnit
	format *media.VideoFormat
	// Loop restarts from the first access unit after the last one.
	Loop bool
	n    int64
}

// OpenAnnexB reads and splits the stream stored at path.
func OpenAnnexB(path string, codec media.VideoCodec, rate media.Rational) (*AnnexBFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	f, err := ParseAnnexB(data, codec, rate)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}
	return f, nil
}

// ParseAnnexB splits data into access units.
func ParseAnnexB(data []byte, codec media.VideoCodec, rate media.Rational) (*AnnexBFile, error) {
	if codec != media.VideoCodecH264 && codec != media.VideoCodecH265 {
		return nil, errors.Errorf("unsupported elementary stream codec %s", codec)
	}
	if !rate.Valid() {
		return nil, errors.Errorf("invalid frame rate %s", rate)
	}
	var nalus h264.AnnexB
	if err := nalus.Unmarshal(data); err != nil {
		return nil, errors.Wrap(err, "invalid Annex-B stream")
	}

	f := &AnnexBFile{
		codec:  codec,
		rate:   rate,
		format: &media.VideoFormat{Codec: codec, FrameRate: rate},
	}
	var cur accessUnit
	vcl := false
	flush := func() {
		if vcl {
			f.units = append(f.units, cur)
		}
		cur, vcl = accessUnit{}, false
	}
	for _, nalu := range nalus {
		if len(nalu) == 0 {
			continue
		}
		info := classify(codec, nalu)
		if info.boundary && vcl {
			flush()
		}
		switch {
		case info.param != nil:
			if p := info.param(&f.format.Params); len(*p) == 0 {
				*p = append([]byte(nil), nalu...)
			}
		case info.vcl:
			vcl = true
			cur.key = cur.key || info.key
		}
		cur.nalus = append(cur.nalus, nalu)
	}
	flush()

	if len(f.units) == 0 {
		return nil, errors.New("no pictures in stream")
	}
	f.format.Width, f.format.Height = dimensions(codec, f.format.Params.SPS)
	return f, nil
}

type naluInfo struct {
	vcl      bool
	key      bool
	boundary bool
	param    func(*media.ParameterSets) *[]byte
}

// classify reports what a NAL unit contributes to access unit grouping. A
// boundary NAL unit starts a new access unit when the current one already
// holds a picture.
func classify(codec media.VideoCodec, nalu []byte) naluInfo {
	if codec == media.VideoCodecH264 {
		typ := h264.NALUType(nalu[0] & 0x1F)
		switch typ {
		case h264.NALUTypeNonIDR, h264.NALUTypeIDR:
			first := len(nalu) > 1 && nalu[1]&0x80 != 0
			return naluInfo{vcl: true, key: typ == h264.NALUTypeIDR, boundary: first}
		case h264.NALUTypeSPS:
			return naluInfo{boundary: true, param: func(p *media.ParameterSets) *[]byte { return &p.SPS }}
		case h264.NALUTypePPS:
			return naluInfo{boundary: true, param: func(p *media.ParameterSets) *[]byte { return &p.PPS }}
		case h264.NALUTypeAccessUnitDelimiter, h264.NALUTypeSEI:
			return naluInfo{boundary: true}
		}
		return naluInfo{}
	}

	typ := h265.NALUType((nalu[0] >> 1) & 0x3F)
	switch {
	case typ < 32:
		first := len(nalu) > 2 && nalu[2]&0x80 != 0
		return naluInfo{vcl: true, key: typ >= 16 && typ <= 21, boundary: first}
	case typ == h265.NALUType_VPS_NUT:
		return naluInfo{boundary: true, param: func(p *media.ParameterSets) *[]byte { return &p.VPS }}
	case typ == h265.NALUType_SPS_NUT:
		return naluInfo{boundary: true, param: func(p *media.ParameterSets) *[]byte { return &p.SPS }}
	case typ == h265.NALUType_PPS_NUT:
		return naluInfo{boundary: true, param: func(p *media.ParameterSets) *[]byte { return &p.PPS }}
	case typ == h265.NALUType_AUD_NUT, typ == h265.NALUType_PREFIX_SEI_NUT:
		return naluInfo{boundary: true}
	}
	return naluInfo{}
}

// dimensions reads the picture size from the SPS, or zero if it cannot be
// parsed.
func dimensions(codec media.VideoCodec, sps []byte) (int, int) {
	if len(sps) == 0 {
		return 0, 0
	}
	switch codec {
	case media.VideoCodecH264:
		var s h264.SPS
		if err := s.Unmarshal(sps); err == nil {
			return s.Width(), s.Height()
		}
	case media.VideoCodecH265:
		var s h265.SPS
		if err := s.Unmarshal(sps); err == nil {
			return s.Width(), s.Height()
		}
	}
	return 0, 0
}

// Hint describes the stream for writer.Session.SetSourceHints.
func (f *AnnexBFile) Hint() *media.VideoFormat {
	v := *f.format
	return &v
}

// Len is the number of access units in the file.
func (f *AnnexBFile) Len() int { return len(f.units) }

// Next returns the next access unit in Annex-B framing, or nil at the end
// of a file that does not loop.
func (f *AnnexBFile) Next() *media.Sample {
	i := int(f.n % int64(len(f.units)))
	if !f.Loop && f.n >= int64(len(f.units)) {
		return nil
	}
	au := f.units[i]
	payload, err := h264.AnnexB(au.nalus).Marshal()
	if err != nil {
		return nil
	}
	pts := f.rate.FrameTime(f.n)
	f.n++
	return &media.Sample{
		Kind:     media.KindVideo,
		Payload:  payload,
		Format:   f.format,
		PTS:      pts,
		Duration: f.rate.FrameTime(f.n) - pts,
		KeyFrame: au.key,
	}
}

// Run delivers one access unit per frame until ctx ends or, without Loop,
// the file is exhausted.
func (f *AnnexBFile) Run(ctx context.Context, clk clock.WithTicker, sink Sink) error {
	return pace(ctx, clk, f.rate.FrameDuration(), media.KindVideo, f, 0, sink)
}
