package resampler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	resampling "github.com/tphakala/go-audio-resampling"

	"github.com/haivivi/voicerelay/pkg/audio/pcm"
)

// Resampler is a mono PCM16 stream converted to a new sample rate.
// It must be closed with Close() to release the filter state.
type Resampler interface {
	io.ReadCloser
	CloseWithError(error) error
}

// Converter reads PCM16 from src in srcFmt and yields mono PCM16 at the
// destination sample rate.
type Converter struct {
	src    io.Reader
	srcFmt Format
	dstFmt Format
	ratio  float64

	mu       sync.Mutex
	closeErr error
	engine   resampling.Resampler // nil when the rates match
	pending  []byte               // source bytes short of a whole frame
	leftover []byte               // converted bytes not yet returned
	readBuf  []byte
}

// New creates a Resampler converting src from srcFmt to dstFmt. Output is
// always mono; dstFmt.Stereo is ignored.
func New(src io.Reader, srcFmt, dstFmt Format) (Resampler, error) {
	if srcFmt.SampleRate <= 0 || dstFmt.SampleRate <= 0 {
		return nil, fmt.Errorf("resampler: invalid sample rates %d -> %d", srcFmt.SampleRate, dstFmt.SampleRate)
	}
	dstFmt.Stereo = false

	c := &Converter{
		src:    src,
		srcFmt: srcFmt,
		dstFmt: dstFmt,
		ratio:  float64(srcFmt.SampleRate) / float64(dstFmt.SampleRate),
	}
	if srcFmt.SampleRate != dstFmt.SampleRate {
		engine, err := resampling.New(&resampling.Config{
			InputRate:  float64(srcFmt.SampleRate),
			OutputRate: float64(dstFmt.SampleRate),
			Channels:   1,
			Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
		})
		if err != nil {
			return nil, fmt.Errorf("resampler: create: %w", err)
		}
		c.engine = engine
	}
	return c, nil
}

// Read fills p with converted PCM16 bytes. p is truncated to a whole number
// of samples. Not safe for concurrent use with other Read calls.
func (c *Converter) Read(p []byte) (int, error) {
	if len(p) < 2 {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.ErrShortBuffer
	}
	p = p[:len(p)/2*2]

	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		if len(c.leftover) > 0 {
			n := copy(p, c.leftover)
			c.leftover = c.leftover[n:]
			return n, nil
		}
		if c.closeErr != nil {
			return 0, c.closeErr
		}

		samples, srcErr := c.readSource(int(float64(len(p))*c.ratio) + c.srcFmt.frameBytes()*4)
		if len(samples) > 0 {
			out, err := c.convert(samples)
			if err != nil {
				return 0, err
			}
			c.leftover = append(c.leftover, pcm.EncodeInt16(out)...)
		}
		if len(c.leftover) > 0 {
			continue
		}
		if srcErr != nil {
			return 0, srcErr
		}
	}
}

// readSource reads up to want bytes from src and returns whole mono samples.
// Bytes short of a frame are kept for the next call.
func (c *Converter) readSource(want int) ([]int16, error) {
	if cap(c.readBuf) < want {
		c.readBuf = make([]byte, want)
	}
	n, err := c.src.Read(c.readBuf[:want])
	data := append(c.pending, c.readBuf[:n]...)

	fb := c.srcFmt.frameBytes()
	whole := len(data) / fb * fb
	c.pending = append([]byte(nil), data[whole:]...)
	if errors.Is(err, io.EOF) && len(c.pending) > 0 {
		c.pending = nil
		err = io.ErrUnexpectedEOF
	}

	frames := pcm.DecodeInt16(data[:whole])
	if !c.srcFmt.Stereo {
		return frames, err
	}
	mono := make([]int16, len(frames)/2)
	for i := range mono {
		mono[i] = int16((int32(frames[2*i]) + int32(frames[2*i+1])) / 2)
	}
	return mono, err
}

func (c *Converter) convert(samples []int16) ([]int16, error) {
	if c.engine == nil {
		return samples, nil
	}
	in := make([]float64, len(samples))
	for i, s := range samples {
		in[i] = float64(s) / 32768.0
	}
	out, err := c.engine.Process(in)
	if err != nil {
		return nil, fmt.Errorf("resampler: process: %w", err)
	}
	res := make([]int16, len(out))
	for i, v := range out {
		switch {
		case v >= 1.0:
			res[i] = 32767
		case v < -1.0:
			res[i] = -32768
		default:
			res[i] = int16(v * 32767.0)
		}
	}
	return res, nil
}

// Close releases the filter state. Subsequent reads return io.ErrClosedPipe.
func (c *Converter) Close() error {
	return c.CloseWithError(fmt.Errorf("resampler: %w", io.ErrClosedPipe))
}

// CloseWithError releases the filter state; subsequent reads return err.
func (c *Converter) CloseWithError(err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closeErr == nil {
		c.closeErr = err
	}
	c.engine = nil
	return nil
}

// Samples resamples a complete mono buffer. The result length is normalised
// to pcm.ResampledLen so that callers see the same sample count as the
// linear path regardless of the filter's group delay.
func Samples(in []int16, srcRate, dstRate int) ([]int16, error) {
	want := pcm.ResampledLen(len(in), srcRate, dstRate)
	if srcRate == dstRate {
		out := make([]int16, len(in))
		copy(out, in)
		return out, nil
	}
	r, err := New(bytes.NewReader(pcm.EncodeInt16(in)), Format{SampleRate: srcRate}, Format{SampleRate: dstRate})
	if err != nil {
		return nil, err
	}
	defer r.Close()

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	out := pcm.DecodeInt16(raw)
	switch {
	case len(out) > want:
		out = out[:want]
	case len(out) < want:
		out = append(out, make([]int16, want-len(out))...)
	}
	return out, nil
}
