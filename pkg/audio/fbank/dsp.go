package fbank

import "math"

// melFilter is one triangular filter stored as a dense run of weights
// starting at FFT bin lo.
type melFilter struct {
	lo      int
	weights []float64
}

func (f melFilter) apply(power []float64) float64 {
	var sum float64
	for i, w := range f.weights {
		sum += w * power[f.lo+i]
	}
	return sum
}

func hammingWindow(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// hzToMel uses the HTK mel scale.
func hzToMel(hz float64) float64 {
	return 2595.0 * math.Log10(1.0+hz/700.0)
}

func melToHz(mel float64) float64 {
	return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
}

// melFilterBank returns numMels triangular filters over fftSize/2+1 bins.
// Every filter spans at least one bin.
func melFilterBank(numMels, fftSize, sampleRate int, lowFreq, highFreq float64) []melFilter {
	halfFFT := fftSize/2 + 1
	lowMel, highMel := hzToMel(lowFreq), hzToMel(highFreq)
	step := (highMel - lowMel) / float64(numMels+1)

	bins := make([]int, numMels+2)
	for i := range bins {
		hz := melToHz(lowMel + float64(i)*step)
		bins[i] = min(int(math.Round(hz*float64(fftSize)/float64(sampleRate))), halfFFT-1)
		if i > 0 && bins[i] <= bins[i-1] {
			bins[i] = bins[i-1] + 1
		}
	}

	bank := make([]melFilter, numMels)
	for m := range bank {
		last := halfFFT - 1
		left, center, right := min(bins[m], last), min(bins[m+1], last), min(bins[m+2], last)
		f := melFilter{lo: left, weights: make([]float64, right-left+1)}
		for k := left; k <= right; k++ {
			switch {
			case k < center:
				f.weights[k-left] = float64(k-left) / float64(center-left)
			case k > center && right > center:
				f.weights[k-left] = float64(right-k) / float64(right-center)
			case k == center:
				f.weights[k-left] = 1
			}
		}
		bank[m] = f
	}
	return bank
}

// fft is an in-place radix-2 transform; len(re) must be a power of two.
func fft(re, im []float64) {
	n := len(re)
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			re[i], re[j] = re[j], re[i]
			im[i], im[j] = im[j], im[i]
		}
	}
	for size := 2; size <= n; size <<= 1 {
		half := size >> 1
		angle := -2 * math.Pi / float64(size)
		wr, wi := math.Cos(angle), math.Sin(angle)
		for start := 0; start < n; start += size {
			tr, ti := 1.0, 0.0
			for k := range half {
				u, v := start+k, start+k+half
				xr := tr*re[v] - ti*im[v]
				xi := tr*im[v] + ti*re[v]
				re[v], im[v] = re[u]-xr, im[u]-xi
				re[u] += xr
				im[u] += xi
				tr, ti = tr*wr-ti*wi, tr*wi+ti*wr
			}
		}
	}
}
