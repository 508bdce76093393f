package container

import (
	"bytes"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h265"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/pkg/errors"

	"github.com/babelcloud/gbox/packages/recorder/internal/media"
)

// hasStartCode reports whether b begins with an Annex-B start code.
func hasStartCode(b []byte) bool {
	return bytes.HasPrefix(b, []byte{0, 0, 1}) || bytes.HasPrefix(b, []byte{0, 0, 0, 1})
}

// splitAccessUnit returns the NAL units of a video payload, accepting both
// Annex-B and length-prefixed input.
func splitAccessUnit(payload []byte) ([][]byte, error) {
	if hasStartCode(payload) {
		var au h264.AnnexB
		if err := au.Unmarshal(payload); err != nil {
			return nil, errors.Wrap(err, "failed to parse Annex-B access unit")
		}
		return au, nil
	}
	var au h264.AVCC
	if err := au.Unmarshal(payload); err != nil {
		return nil, errors.Wrap(err, "failed to parse AVCC access unit")
	}
	return au, nil
}

// toAVCC converts a video payload into length-prefixed NAL units.
func toAVCC(payload []byte) ([]byte, [][]byte, error) {
	nalus, err := splitAccessUnit(payload)
	if err != nil {
		return nil, nil, err
	}
	out, err := h264.AVCC(nalus).Marshal()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to marshal AVCC")
	}
	return out, nalus, nil
}

// extractParams fills the parameter sets found in nalus that p does not
// have yet. It reports whether anything changed.
func extractParams(codec media.VideoCodec, nalus [][]byte, p *media.ParameterSets) bool {
	changed := false
	set := func(dst *[]byte, nalu []byte) {
		if len(*dst) == 0 {
			*dst = append([]byte(nil), nalu...)
			changed = true
		}
	}
	for _, nalu := range nalus {
		if len(nalu) == 0 {
			continue
		}
		switch codec {
		case media.VideoCodecH264:
			switch h264.NALUType(nalu[0] & 0x1F) {
			case h264.NALUTypeSPS:
				set(&p.SPS, nalu)
			case h264.NALUTypePPS:
				set(&p.PPS, nalu)
			}
		case media.VideoCodecH265:
			switch h265.NALUType((nalu[0] >> 1) & 0x3F) {
			case h265.NALUType_VPS_NUT:
				set(&p.VPS, nalu)
			case h265.NALUType_SPS_NUT:
				set(&p.SPS, nalu)
			case h265.NALUType_PPS_NUT:
				set(&p.PPS, nalu)
			}
		}
	}
	return changed
}

// paramsComplete reports whether p holds every set codec needs.
func paramsComplete(codec media.VideoCodec, p media.ParameterSets) bool {
	switch codec {
	case media.VideoCodecH264:
		return len(p.SPS) > 0 && len(p.PPS) > 0
	case media.VideoCodecH265:
		return len(p.VPS) > 0 && len(p.SPS) > 0 && len(p.PPS) > 0
	}
	return false
}

// isRandomAccess reports whether the access unit starts a decodable
// sequence.
func isRandomAccess(codec media.VideoCodec, nalus [][]byte) bool {
	for _, nalu := range nalus {
		if len(nalu) == 0 {
			continue
		}
		switch codec {
		case media.VideoCodecH264:
			if h264.NALUType(nalu[0]&0x1F) == h264.NALUTypeIDR {
				return true
			}
		case media.VideoCodecH265:
			// IRAP pictures, BLA_W_LP through CRA_NUT
			typ := (nalu[0] >> 1) & 0x3F
			if typ >= 16 && typ <= 21 {
				return true
			}
		}
	}
	return false
}

// stripADTSHeader removes the ADTS header if present and returns the raw
// AAC payload.
func stripADTSHeader(data []byte) []byte {
	if len(data) < 7 {
		return data
	}
	if data[0] == 0xFF && (data[1]&0xF0) == 0xF0 {
		headerLen := 7
		if (data[1] & 0x01) == 0 { // CRC present
			headerLen = 9
		}
		if len(data) > headerLen {
			return data[headerLen:]
		}
	}
	return data
}

// audioSpecificConfig describes an AAC track. HE-AAC is signalled
// explicitly: an AAC-LC core at half the output rate with an SBR extension
// at the output rate.
func audioSpecificConfig(codec media.AudioCodec, sampleRate, channels int) mpeg4audio.AudioSpecificConfig {
	asc := mpeg4audio.AudioSpecificConfig{
		Type:         mpeg4audio.ObjectTypeAACLC,
		SampleRate:   sampleRate,
		ChannelCount: channels,
	}
	if codec == media.AudioCodecHEAAC {
		asc.SampleRate = sampleRate / 2
		asc.ExtensionType = mpeg4audio.ObjectTypeSBR
		asc.ExtensionSampleRate = sampleRate
	}
	return asc
}

// removeEmulationPrevention drops the 0x03 bytes inserted after every
// 0x0000 pair in a NAL unit.
func removeEmulationPrevention(nalu []byte) []byte {
	out := make([]byte, 0, len(nalu))
	zeros := 0
	for _, b := range nalu {
		if zeros >= 2 && b == 0x03 {
			zeros = 0
			continue
		}
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
		out = append(out, b)
	}
	return out
}

// avcDecoderConfig builds an AVCDecoderConfigurationRecord from SPS and
// PPS without start codes.
func avcDecoderConfig(sps, pps []byte) []byte {
	if len(sps) < 4 || len(pps) == 0 {
		return nil
	}
	buf := make([]byte, 0, 11+len(sps)+len(pps))
	buf = append(buf, 1, sps[1], sps[2], sps[3])
	buf = append(buf, 0xFF) // 4-byte lengths
	buf = append(buf, 0xE1) // one SPS
	buf = append(buf, byte(len(sps)>>8), byte(len(sps)))
	buf = append(buf, sps...)
	buf = append(buf, 1)
	buf = append(buf, byte(len(pps)>>8), byte(len(pps)))
	buf = append(buf, pps...)
	return buf
}

// hevcDecoderConfig builds an HEVCDecoderConfigurationRecord. The general
// profile_tier_level fields are copied from the SPS.
func hevcDecoderConfig(vps, sps, pps []byte) []byte {
	raw := removeEmulationPrevention(sps)
	// 2-byte NAL header, 1 byte of ids, then 12 bytes of general PTL
	if len(raw) < 15 || len(vps) == 0 || len(pps) == 0 {
		return nil
	}
	ptl := raw[3:15]

	buf := make([]byte, 0, 23+3*5+len(vps)+len(sps)+len(pps))
	buf = append(buf, 1)
	buf = append(buf, ptl[0])     // profile space, tier, profile idc
	buf = append(buf, ptl[1:5]...) // compatibility flags
	buf = append(buf, ptl[5:11]...)
	buf = append(buf, ptl[11]) // level idc
	buf = append(buf, 0xF0, 0x00, 0xFC, 0xFD, 0xF8, 0xF8, 0x00, 0x00)
	buf = append(buf, 0x0F) // one temporal layer, nested, 4-byte lengths
	buf = append(buf, 3)

	for _, a := range []struct {
		typ  h265.NALUType
		nalu []byte
	}{
		{h265.NALUType_VPS_NUT, vps},
		{h265.NALUType_SPS_NUT, sps},
		{h265.NALUType_PPS_NUT, pps},
	} {
		buf = append(buf, 0x80|byte(a.typ))
		buf = append(buf, 0x00, 0x01)
		buf = append(buf, byte(len(a.nalu)>>8), byte(len(a.nalu)))
		buf = append(buf, a.nalu...)
	}
	return buf
}
