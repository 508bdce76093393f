// Package remap reorders interleaved PCM frames from the capture device's
// native channel order into the order expected by perceptual audio codecs.
package remap

import "github.com/babelcloud/gbox/packages/recorder/internal/chanlayout"

// Silence marks an output channel that has no source and stays zero.
const Silence = -1

// Permutation maps output channel i to source channel p[i], or Silence.
type Permutation []int

// Output orders:
//
//	2: L R
//	3: C L R
//	6: C L R Ls Rs LFE
//	8: C Lc Rc L R Ls Rs LFE
var permutations = map[int][2]Permutation{
	2: {{0, 1}, {0, 1}},
	3: {{2, 0, 1}, {3, 0, 1}},
	6: {{2, 0, 1, 4, 5, 3}, {3, 0, 1, 4, 5, 2}},
	8: {{2, 6, 7, 0, 1, 4, 5, 3}, {3, 6, 7, 0, 1, 4, 5, 2}},
}

var outputLabels = map[int]chanlayout.Labels{
	2: {chanlayout.LabelLeft, chanlayout.LabelRight},
	3: {chanlayout.LabelCenter, chanlayout.LabelLeft, chanlayout.LabelRight},
	6: {chanlayout.LabelCenter, chanlayout.LabelLeft, chanlayout.LabelRight,
		chanlayout.LabelLeftSurround, chanlayout.LabelRightSurround, chanlayout.LabelLFEScreen},
	8: {chanlayout.LabelCenter, chanlayout.LabelLeftCenter, chanlayout.LabelRightCenter,
		chanlayout.LabelLeft, chanlayout.LabelRight,
		chanlayout.LabelLeftSurround, chanlayout.LabelRightSurround, chanlayout.LabelLFEScreen},
}

// BuildPermutation returns the fixed table for the given valid channel
// count. Counts other than 2, 3, 6 and 8 yield an empty permutation, which
// means no remap is possible.
func BuildPermutation(valid int, reverse bool) Permutation {
	pair, ok := permutations[valid]
	if !ok {
		return nil
	}
	p := pair[0]
	if reverse {
		p = pair[1]
	}
	return append(Permutation(nil), p...)
}

// Supported reports whether valid has a permutation.
func Supported(valid int) bool {
	_, ok := permutations[valid]
	return ok
}

// Valid reports whether p is non-empty and every source index is in range.
func (p Permutation) Valid(inputChannels int) bool {
	if len(p) == 0 || inputChannels <= 0 {
		return false
	}
	for _, src := range p {
		if src != Silence && (src < 0 || src >= inputChannels) {
			return false
		}
	}
	return true
}

// MaxSource returns the highest source index referenced by p, or -1.
func (p Permutation) MaxSource() int {
	max := -1
	for _, src := range p {
		if src > max {
			max = src
		}
	}
	return max
}

// Widen pads p with Silence up to n entries.
func (p Permutation) Widen(n int) Permutation {
	out := append(Permutation(nil), p...)
	for len(out) < n {
		out = append(out, Silence)
	}
	return out
}

// Identity returns the pass-through permutation for n channels.
func Identity(n int) Permutation {
	out := make(Permutation, n)
	for i := range out {
		out[i] = i
	}
	return out
}
