// Package resampler converts 16-bit PCM between sample rates with the pure
// Go go-audio-resampling library.
//
// It backs the high-quality path of wav.ToPCM. The default path uses
// pcm.Resample, a cheap linear interpolator; this package trades CPU for a
// band-limited result when the relay is configured for it.
//
// Streaming use:
//
//	r, err := resampler.New(src, resampler.Format{SampleRate: 44100}, resampler.Format{SampleRate: 16000})
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//	io.Copy(dst, r)
//
// One-shot use:
//
//	out, err := resampler.Samples(samples, 44100, 16000)
package resampler
