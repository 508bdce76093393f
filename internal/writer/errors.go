package writer

import (
	"errors"
	"fmt"

	"github.com/babelcloud/gbox/packages/recorder/internal/media"
)

// Error kinds reported by a Session. Use errors.Is to test for them.
var (
	ErrUnsupportedMediaKind    = errors.New("unsupported media kind")
	ErrWriterUnavailable       = errors.New("writer unavailable")
	ErrInvalidAudioSettings    = errors.New("invalid audio settings")
	ErrInvalidVideoSettings    = errors.New("invalid video settings")
	ErrInvalidTimecodeSettings = errors.New("invalid timecode settings")
	ErrAudioAppendFailed       = errors.New("audio append failed")
	ErrVideoAppendFailed       = errors.New("video append failed")
	ErrTimecodeAppendFailed    = errors.New("timecode append failed")
	ErrSessionOpenFailed       = errors.New("session open failed")
	ErrSessionCloseFailed      = errors.New("session close failed")
)

// Local conditions, reported as the cause of an Error.
var (
	ErrNoSessionInProgress = errors.New("no session in progress")
	ErrNotReady            = errors.New("track not ready for more data")
	ErrNoTrack             = errors.New("no track for media kind")
	ErrSessionUsed         = errors.New("session already used")
	ErrMissingSourceHint   = errors.New("missing source format hint")
)

// Error describes a failed session operation. It matches both its Kind and
// its cause with errors.Is.
type Error struct {
	Op    string
	Kind  error
	Track media.Kind
	Err   error
}

func (e *Error) Error() string {
	msg := "writer: " + e.Op + ": " + e.Kind.Error()
	if e.Op == "append" {
		msg = fmt.Sprintf("writer: %s %s: %v", e.Op, e.Track, e.Kind)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func appendFailedKind(kind media.Kind) error {
	switch kind {
	case media.KindAudio:
		return ErrAudioAppendFailed
	case media.KindVideo:
		return ErrVideoAppendFailed
	case media.KindTimecode:
		return ErrTimecodeAppendFailed
	}
	return ErrUnsupportedMediaKind
}

func invalidSettingsKind(kind media.Kind) error {
	switch kind {
	case media.KindAudio:
		return ErrInvalidAudioSettings
	case media.KindVideo:
		return ErrInvalidVideoSettings
	case media.KindTimecode:
		return ErrInvalidTimecodeSettings
	}
	return ErrUnsupportedMediaKind
}
