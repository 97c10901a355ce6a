package resampler

// Format describes a 16-bit signed little-endian PCM stream.
type Format struct {
	// SampleRate is the sample rate in Hz (e.g., 16000, 44100).
	SampleRate int

	// Stereo marks interleaved two-channel input. Output is always mono;
	// stereo input is averaged down before resampling.
	Stereo bool
}

func (f Format) frameBytes() int {
	if f.Stereo {
		return 4
	}
	return 2
}
