// Package timecode implements SMPTE timecode values, including drop-frame
// counting for the NTSC rates, and the 4-byte payload carried by timecode
// samples.
package timecode

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrInvalidTimecode = errors.New("invalid timecode")
	ErrInvalidPayload  = errors.New("invalid timecode payload")
)

// PayloadSize is the size of one encoded timecode sample.
const PayloadSize = 4

// Timecode is an HH:MM:SS:FF label. DropFrame selects drop-frame counting,
// which skips frame labels 0 and 1 (0-3 at 60 fps) at the start of every
// minute except each tenth.
type Timecode struct {
	Hours     int
	Minutes   int
	Seconds   int
	Frames    int
	DropFrame bool
}

// dropCount is the number of labels skipped per dropped minute.
func dropCount(quanta int) int {
	return quanta / 15
}

// SupportsDropFrame reports whether drop-frame counting is defined for the
// nominal rate quanta (30 and 60).
func SupportsDropFrame(quanta int) bool {
	return quanta > 0 && quanta%30 == 0
}

// FramesPerDay returns the number of frames in 24 hours of labels.
func FramesPerDay(quanta int, drop bool) int64 {
	if quanta <= 0 {
		return 0
	}
	if drop && SupportsDropFrame(quanta) {
		d := int64(dropCount(quanta))
		per10 := int64(quanta)*600 - d*9
		return per10 * 6 * 24
	}
	return int64(quanta) * 86400
}

// FromFrame converts a frame count since midnight into a timecode. Counts
// past 24 hours wrap.
func FromFrame(n int64, quanta int, drop bool) Timecode {
	drop = drop && SupportsDropFrame(quanta)
	tc := Timecode{DropFrame: drop}
	if quanta <= 0 {
		return tc
	}
	day := FramesPerDay(quanta, drop)
	n %= day
	if n < 0 {
		n += day
	}

	if drop {
		d := int64(dropCount(quanta))
		per10 := int64(quanta)*600 - d*9
		perMin := int64(quanta)*60 - d
		tens := n / per10
		rem := n % per10
		n += d * 9 * tens
		if rem >= d {
			n += d * ((rem - d) / perMin)
		}
	}

	q := int64(quanta)
	tc.Frames = int(n % q)
	tc.Seconds = int((n / q) % 60)
	tc.Minutes = int((n / q / 60) % 60)
	tc.Hours = int((n / q / 3600) % 24)
	return tc
}

// Frame converts tc back into a frame count since midnight.
func (tc Timecode) Frame(quanta int) int64 {
	q := int64(quanta)
	totalMinutes := int64(tc.Hours)*60 + int64(tc.Minutes)
	n := (totalMinutes*60+int64(tc.Seconds))*q + int64(tc.Frames)
	if tc.DropFrame && SupportsDropFrame(quanta) {
		n -= int64(dropCount(quanta)) * (totalMinutes - totalMinutes/10)
	}
	return n
}

// Valid reports whether every field is in range for quanta, including the
// labels that drop-frame counting skips.
func (tc Timecode) Valid(quanta int) bool {
	if quanta <= 0 {
		return false
	}
	if tc.Hours < 0 || tc.Hours > 23 ||
		tc.Minutes < 0 || tc.Minutes > 59 ||
		tc.Seconds < 0 || tc.Seconds > 59 ||
		tc.Frames < 0 || tc.Frames >= quanta {
		return false
	}
	if tc.DropFrame {
		if !SupportsDropFrame(quanta) {
			return false
		}
		if tc.Seconds == 0 && tc.Minutes%10 != 0 && tc.Frames < dropCount(quanta) {
			return false
		}
	}
	return true
}

func (tc Timecode) String() string {
	sep := ':'
	if tc.DropFrame {
		sep = ';'
	}
	return fmt.Sprintf("%02d:%02d:%02d%c%02d", tc.Hours, tc.Minutes, tc.Seconds, sep, tc.Frames)
}

// Parse reads "HH:MM:SS:FF", or "HH:MM:SS;FF" for drop frame. A '.' before
// the frames is accepted as a drop-frame separator too.
func Parse(s string) (Timecode, error) {
	s = strings.TrimSpace(s)
	if len(s) < 11 {
		return Timecode{}, errors.Wrapf(ErrInvalidTimecode, "%q", s)
	}
	i := strings.LastIndexAny(s, ":;.")
	if i < 0 {
		return Timecode{}, errors.Wrapf(ErrInvalidTimecode, "%q", s)
	}
	tc := Timecode{DropFrame: s[i] != ':'}

	head := strings.Split(s[:i], ":")
	if len(head) != 3 {
		return Timecode{}, errors.Wrapf(ErrInvalidTimecode, "%q", s)
	}
	fields := []*int{&tc.Hours, &tc.Minutes, &tc.Seconds}
	for j, part := range head {
		v, err := strconv.Atoi(part)
		if err != nil {
			return Timecode{}, errors.Wrapf(ErrInvalidTimecode, "%q: %v", s, err)
		}
		*fields[j] = v
	}
	frames, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return Timecode{}, errors.Wrapf(ErrInvalidTimecode, "%q: %v", s, err)
	}
	tc.Frames = frames
	return tc, nil
}

// Encode returns the sample payload for frame number n.
func Encode(n uint32) []byte {
	b := make([]byte, PayloadSize)
	binary.BigEndian.PutUint32(b, n)
	return b
}

// Decode reads a sample payload written by Encode.
func Decode(b []byte) (uint32, error) {
	if len(b) != PayloadSize {
		return 0, errors.Wrapf(ErrInvalidPayload, "%d bytes", len(b))
	}
	return binary.BigEndian.Uint32(b), nil
}
