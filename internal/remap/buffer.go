package remap

import (
	"github.com/pkg/errors"
)

var (
	ErrUnsupportedSampleWidth = errors.New("remap: unsupported sample width")
	ErrEmptyInput             = errors.New("remap: empty input")
	ErrMisalignedInput        = errors.New("remap: input is not a whole number of frames")
	ErrInvalidPermutation     = errors.New("remap: invalid permutation")
)

// SupportedSampleWidth reports whether width bytes per sample can be
// remapped (16- and 32-bit integer PCM).
func SupportedSampleWidth(width int) bool {
	return width == 2 || width == 4
}

// RemapBuffer copies every frame of in into a freshly allocated,
// zero-filled buffer of outCh channels, taking output channel i from source
// channel p[i]. Output channels without a source stay silent. The input is
// never modified.
func RemapBuffer(in []byte, inCh, width int, p Permutation, outCh int) ([]byte, error) {
	if !SupportedSampleWidth(width) {
		return nil, errors.Wrapf(ErrUnsupportedSampleWidth, "%d bytes", width)
	}
	if len(in) == 0 {
		return nil, ErrEmptyInput
	}
	if inCh <= 0 || outCh <= 0 || len(p) > outCh || !p.Valid(inCh) {
		return nil, errors.Wrapf(ErrInvalidPermutation, "%v for %d -> %d channels", p, inCh, outCh)
	}
	inFrame := inCh * width
	if len(in)%inFrame != 0 {
		return nil, errors.Wrapf(ErrMisalignedInput, "%d bytes, frame size %d", len(in), inFrame)
	}

	frames := len(in) / inFrame
	outFrame := outCh * width
	out := make([]byte, frames*outFrame)

	for f := 0; f < frames; f++ {
		src := in[f*inFrame : (f+1)*inFrame]
		dst := out[f*outFrame : (f+1)*outFrame]
		for i, from := range p {
			if from == Silence {
				continue
			}
			copy(dst[i*width:(i+1)*width], src[from*width:(from+1)*width])
		}
	}
	return out, nil
}
