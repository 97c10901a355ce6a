// Package fbank computes log mel filterbank features from PCM16 audio and
// pools them into fixed-size utterance vectors.
//
// Default parameters follow the Kaldi convention for 16 kHz speech:
//
//	SampleRate:  16000
//	WindowSize:  400 (25 ms)
//	HopSize:     160 (10 ms)
//	FFTSize:     512
//	NumMels:     40
//	LowFreq:     20
//	HighFreq:  7600
//	PreEmphasis: 0.97
package fbank

import "math"

// Config controls mel filterbank extraction parameters.
type Config struct {
	SampleRate  int     // audio sample rate in Hz
	WindowSize  int     // window length in samples
	HopSize     int     // hop length in samples
	FFTSize     int     // FFT size, power of two >= WindowSize
	NumMels     int     // number of mel bins
	LowFreq     float64 // lowest mel frequency
	HighFreq    float64 // highest mel frequency
	PreEmphasis float64 // pre-emphasis coefficient
}

// DefaultConfig returns the 16 kHz speech configuration.
func DefaultConfig() Config {
	return Config{
		SampleRate:  16000,
		WindowSize:  400,
		HopSize:     160,
		FFTSize:     512,
		NumMels:     40,
		LowFreq:     20,
		HighFreq:    7600,
		PreEmphasis: 0.97,
	}
}

// Extractor computes mel filterbank features. It holds precomputed tables
// only and is safe for concurrent use.
type Extractor struct {
	cfg    Config
	window []float64
	bank   []melFilter
}

// New creates an Extractor for cfg.
func New(cfg Config) *Extractor {
	return &Extractor{
		cfg:    cfg,
		window: hammingWindow(cfg.WindowSize),
		bank:   melFilterBank(cfg.NumMels, cfg.FFTSize, cfg.SampleRate, cfg.LowFreq, cfg.HighFreq),
	}
}

// Config returns the extractor configuration.
func (e *Extractor) Config() Config { return e.cfg }

// NumFrames returns how many feature frames Extract yields for n samples.
func (e *Extractor) NumFrames(n int) int {
	if n < e.cfg.WindowSize {
		return 0
	}
	return (n-e.cfg.WindowSize)/e.cfg.HopSize + 1
}

// Extract computes a [T][NumMels] log mel matrix from PCM16 samples.
// Returns nil when fewer than WindowSize samples are given.
func (e *Extractor) Extract(samples []int16) [][]float32 {
	cfg := e.cfg
	numFrames := e.NumFrames(len(samples))
	if numFrames == 0 {
		return nil
	}

	features := make([][]float32, numFrames)
	re := make([]float64, cfg.FFTSize)
	im := make([]float64, cfg.FFTSize)
	power := make([]float64, cfg.FFTSize/2+1)

	for t := range features {
		start := t * cfg.HopSize
		prev := 0.0
		if start > 0 {
			prev = float64(samples[start-1]) / 32768.0
		}
		for i := 0; i < cfg.WindowSize; i++ {
			s := float64(samples[start+i]) / 32768.0
			re[i] = (s - cfg.PreEmphasis*prev) * e.window[i]
			prev = s
		}
		clear(re[cfg.WindowSize:])
		clear(im)

		fft(re, im)
		for k := range power {
			power[k] = re[k]*re[k] + im[k]*im[k]
		}

		row := make([]float32, cfg.NumMels)
		for m, f := range e.bank {
			row[m] = float32(math.Log(max(f.apply(power), 1e-10)))
		}
		features[t] = row
	}
	return features
}

// CMVN applies per-dimension mean and variance normalization in place.
func CMVN(features [][]float32) {
	if len(features) == 0 {
		return
	}
	T := float64(len(features))
	for m := range features[0] {
		var sum float64
		for _, f := range features {
			sum += float64(f[m])
		}
		mean := sum / T

		var varSum float64
		for _, f := range features {
			d := float64(f[m]) - mean
			varSum += d * d
		}
		std := max(math.Sqrt(varSum/T), 1e-10)

		for _, f := range features {
			f[m] = float32((float64(f[m]) - mean) / std)
		}
	}
}

// Pool reduces a [T][D] feature matrix to a 2*D statistics vector holding
// the per-dimension mean followed by the standard deviation. Each frame is
// first centred on its own average so that overall loudness does not move
// the result. Returns nil for an empty matrix.
func Pool(features [][]float32) []float32 {
	if len(features) == 0 {
		return nil
	}
	dim := len(features[0])
	mean := make([]float64, dim)
	sq := make([]float64, dim)
	for _, f := range features {
		var avg float64
		for _, v := range f {
			avg += float64(v)
		}
		avg /= float64(dim)
		for m, v := range f {
			d := float64(v) - avg
			mean[m] += d
			sq[m] += d * d
		}
	}

	T := float64(len(features))
	out := make([]float32, 2*dim)
	for m := range dim {
		mu := mean[m] / T
		out[m] = float32(mu)
		out[dim+m] = float32(math.Sqrt(max(sq[m]/T-mu*mu, 0)))
	}
	return out
}
