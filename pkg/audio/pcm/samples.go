package pcm

import (
	"encoding/binary"
	"math"
)

// DecodeInt16 converts little-endian PCM16 bytes to samples. A trailing odd
// byte is ignored.
func DecodeInt16(b []byte) []int16 {
	n := len(b) / 2
	out := make([]int16, n)
	for i := range n {
		out[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
	}
	return out
}

// EncodeInt16 converts samples to little-endian PCM16 bytes.
func EncodeInt16(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

// Resample converts samples from srcRate to dstRate by linear interpolation
// between neighbouring source samples. The output holds
// round(len(samples)*dstRate/srcRate) samples. Equal rates return a copy.
func Resample(samples []int16, srcRate, dstRate int) []int16 {
	if srcRate <= 0 || dstRate <= 0 {
		return nil
	}
	if srcRate == dstRate {
		out := make([]int16, len(samples))
		copy(out, samples)
		return out
	}
	n := ResampledLen(len(samples), srcRate, dstRate)
	out := make([]int16, n)
	if len(samples) == 0 {
		return out
	}
	step := float64(srcRate) / float64(dstRate)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = samples[last]
			continue
		}
		frac := pos - float64(j)
		v := float64(samples[j])*(1-frac) + float64(samples[j+1])*frac
		out[i] = clamp16(v)
	}
	return out
}

// ResampledLen returns the number of samples Resample produces for n input
// samples.
func ResampledLen(n, srcRate, dstRate int) int {
	if srcRate == dstRate {
		return n
	}
	return int(math.Round(float64(n) * float64(dstRate) / float64(srcRate)))
}

func clamp16(v float64) int16 {
	v = math.Round(v)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
