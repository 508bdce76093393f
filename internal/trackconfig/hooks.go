package trackconfig

// Hooks let the caller adjust computed settings before they are applied.
// Each hook receives the computed value and returns the one to use. Nil
// hooks leave the settings alone.
type Hooks struct {
	Audio    func(AudioSettings) AudioSettings
	Video    func(VideoSettings) VideoSettings
	Timecode func(TimecodeSettings) TimecodeSettings
}

// ApplyAudio runs the audio hook and validates its result.
func (h Hooks) ApplyAudio(s AudioSettings) (AudioSettings, error) {
	if h.Audio == nil {
		return s, nil
	}
	out := h.Audio(s)
	return out, out.Validate()
}

// ApplyVideo runs the video hook and validates its result.
func (h Hooks) ApplyVideo(s VideoSettings) (VideoSettings, error) {
	if h.Video == nil {
		return s, nil
	}
	out := h.Video(s)
	return out, out.Validate()
}

// ApplyTimecode runs the timecode hook and validates its result.
func (h Hooks) ApplyTimecode(s TimecodeSettings) (TimecodeSettings, error) {
	if h.Timecode == nil {
		return s, nil
	}
	out := h.Timecode(s)
	return out, out.Validate()
}
