// Package wav converts RIFF/WAVE byte buffers to mono PCM16 samples.
//
// Only uncompressed 16-bit PCM is accepted. Uploaders that stream WAV in
// chunks often write a placeholder data size (0 or 0xFFFFFFFF) or prepend a
// fresh header to every chunk; both are tolerated.
package wav

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/haivivi/voicerelay/pkg/audio/pcm"
	"github.com/haivivi/voicerelay/pkg/audio/resampler"
)

// ErrMalformed is returned when a buffer does not carry valid WAV framing.
var ErrMalformed = errors.New("wav: malformed input")

const (
	formatPCM        = 1
	formatExtensible = 0xFFFE
	streamingSize    = 0xFFFFFFFF
)

// Header is the stream format declared by a WAV fmt chunk.
type Header struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// Encode wraps samples in a canonical 44-byte PCM16 WAV header.
// Multi-channel samples must be interleaved.
func Encode(samples []int16, sampleRate, channels int) []byte {
	data := pcm.EncodeInt16(samples)
	byteRate := sampleRate * channels * 2
	blockAlign := channels * 2

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+len(data)))
	copy(header[8:12], "WAVE")

	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], formatPCM)
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], 16)

	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(len(data)))

	return append(header, data...)
}

// Decode parses b and returns its format and interleaved samples.
// Back-to-back RIFF segments are concatenated if their formats agree.
func Decode(b []byte) (Header, []int16, error) {
	var (
		hdr     Header
		samples []int16
		seen    bool
	)
	for len(b) > 0 {
		if !isRIFF(b) {
			break
		}
		h, s, rest, err := decodeSegment(b[12:])
		if err != nil {
			return Header{}, nil, err
		}
		if seen && h != hdr {
			return Header{}, nil, fmt.Errorf("%w: segment format %+v differs from %+v", ErrMalformed, h, hdr)
		}
		hdr, seen = h, true
		samples = append(samples, s...)
		b = rest
	}
	if !seen {
		return Header{}, nil, fmt.Errorf("%w: missing RIFF/WAVE header", ErrMalformed)
	}
	return hdr, samples, nil
}

func isRIFF(b []byte) bool {
	return len(b) >= 12 && string(b[0:4]) == "RIFF" && string(b[8:12]) == "WAVE"
}

// decodeSegment walks the chunks of one RIFF body until the data chunk and
// returns whatever follows it.
func decodeSegment(b []byte) (Header, []int16, []byte, error) {
	var (
		h       Header
		haveFmt bool
	)
	for len(b) >= 8 {
		id := string(b[0:4])
		size := binary.LittleEndian.Uint32(b[4:8])
		b = b[8:]

		switch id {
		case "fmt ":
			if size < 16 || uint64(size) > uint64(len(b)) {
				return Header{}, nil, nil, fmt.Errorf("%w: short fmt chunk", ErrMalformed)
			}
			format := binary.LittleEndian.Uint16(b[0:2])
			h = Header{
				Channels:      int(binary.LittleEndian.Uint16(b[2:4])),
				SampleRate:    int(binary.LittleEndian.Uint32(b[4:8])),
				BitsPerSample: int(binary.LittleEndian.Uint16(b[14:16])),
			}
			if format != formatPCM && format != formatExtensible {
				return Header{}, nil, nil, fmt.Errorf("%w: unsupported audio format %d", ErrMalformed, format)
			}
			if h.BitsPerSample != 16 {
				return Header{}, nil, nil, fmt.Errorf("%w: unsupported bit depth %d", ErrMalformed, h.BitsPerSample)
			}
			if h.Channels <= 0 || h.SampleRate <= 0 {
				return Header{}, nil, nil, fmt.Errorf("%w: invalid channels=%d rate=%d", ErrMalformed, h.Channels, h.SampleRate)
			}
			haveFmt = true
			b = skip(b, size)

		case "data":
			if !haveFmt {
				return Header{}, nil, nil, fmt.Errorf("%w: data chunk before fmt", ErrMalformed)
			}
			var n int
			var rest []byte
			switch {
			case size == 0 && isRIFF(b):
				n, rest = 0, b
			case size == 0, size == streamingSize, uint64(size) > uint64(len(b)):
				n = len(b)
			default:
				n, rest = int(size), skip(b, size)
			}
			block := h.Channels * 2
			return h, pcm.DecodeInt16(b[:n/block*block]), rest, nil

		default:
			if uint64(size) > uint64(len(b)) {
				return Header{}, nil, nil, fmt.Errorf("%w: truncated %q chunk", ErrMalformed, id)
			}
			b = skip(b, size)
		}
	}
	return Header{}, nil, nil, fmt.Errorf("%w: missing data chunk", ErrMalformed)
}

// skip drops a chunk body plus its pad byte.
func skip(b []byte, size uint32) []byte {
	n := uint64(size) + uint64(size&1)
	if n >= uint64(len(b)) {
		return nil
	}
	return b[n:]
}

// Option configures ToPCM.
type Option func(*options)

type options struct {
	highQuality bool
}

// WithHighQuality resamples through the band-limited resampler instead of
// linear interpolation.
func WithHighQuality() Option {
	return func(o *options) { o.highQuality = true }
}

// ToPCM converts a WAV buffer to mono PCM16 at targetRate. Only the first
// channel of multi-channel input is kept.
func ToPCM(b []byte, targetRate int, opts ...Option) ([]int16, error) {
	if targetRate <= 0 {
		return nil, fmt.Errorf("wav: invalid target rate %d", targetRate)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	h, samples, err := Decode(b)
	if err != nil {
		return nil, err
	}
	mono := firstChannel(samples, h.Channels)
	if h.SampleRate == targetRate {
		return mono, nil
	}
	if o.highQuality {
		return resampler.Samples(mono, h.SampleRate, targetRate)
	}
	return pcm.Resample(mono, h.SampleRate, targetRate), nil
}

func firstChannel(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	out := make([]int16, len(samples)/channels)
	for i := range out {
		out[i] = samples[i*channels]
	}
	return out
}
