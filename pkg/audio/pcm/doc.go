// Package pcm provides types and utilities for 16-bit PCM audio.
//
// Key pieces:
//   - Format: sample rate, channels and bit depth of a 16-bit mono stream
//   - DecodeInt16 / EncodeInt16: little-endian byte <-> sample conversion
//   - Resample: ratio-based linear interpolation between sample rates
//
// Example usage:
//
//	// Bytes needed for 20ms of 16kHz mono audio
//	n := pcm.L16Mono16K.BytesInDuration(20 * time.Millisecond)
//
//	// Upsample 8kHz telephony audio to the engine rate
//	out := pcm.Resample(samples, 8000, 16000)
package pcm
