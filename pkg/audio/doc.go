// Package audio groups the audio handling used by the voice relay.
//
// Sub-packages:
//
//   - pcm: 16-bit PCM formats, sample codecs and linear resampling
//   - wav: RIFF/WAVE parsing and conversion of uploaded chunks to mono PCM
//   - resampler: streaming high-quality resampling (go-audio-resampling)
//   - fbank: log mel filterbank features for speaker embeddings
//
// Example usage:
//
//	import "github.com/haivivi/voicerelay/pkg/audio/wav"
//
//	// Decode an uploaded WAV buffer to 16kHz mono samples
//	samples, err := wav.ToPCM(body, 16000)
package audio
