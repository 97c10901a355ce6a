package voiceprint

import (
	"context"
	"math"

	"github.com/haivivi/voicerelay/pkg/audio/wav"
)

// Identifier matches accumulated session audio against enrolled profiles.
//
// Every call converts and scores the whole buffer from the start, so cost
// grows with session length rather than with the newest chunk.
type Identifier struct {
	engine Engine
	opts   options
}

// NewIdentifier creates an Identifier backed by engine.
func NewIdentifier(engine Engine, opts ...Option) *Identifier {
	o := newOptions(opts)
	o.logger = o.logger.With("component", "voiceprint.identifier")
	return &Identifier{engine: engine, opts: o}
}

// Identify returns the identity of the first candidate whose score on some
// frame strictly exceeds the threshold. Frames are scanned in order and the
// first frame that clears the threshold decides; within a frame the
// lowest-index candidate wins a tie.
//
// NaN scores never win a frame. Engine failures, malformed audio and an
// empty candidate set all yield ok == false.
func (id *Identifier) Identify(ctx context.Context, buffer []byte, candidates []Candidate) (string, bool) {
	log := id.opts.logger
	if len(candidates) == 0 {
		return "", false
	}

	samples, err := wav.ToPCM(buffer, id.engine.SampleRate(), id.opts.pcmOptions()...)
	if err != nil {
		log.Warn("unusable audio for identification", "error", err)
		return "", false
	}

	profiles := make([]Profile, len(candidates))
	for i, c := range candidates {
		profiles[i] = c.Profile
	}
	rec, err := id.engine.NewRecognizer(profiles)
	if err != nil {
		log.Warn("recognizer unavailable", "error", err, "candidates", len(candidates))
		return "", false
	}
	defer rec.Close()

	n := rec.FrameLength()
	if n <= 0 {
		log.Warn("recognizer reported invalid frame length", "frame_length", n)
		return "", false
	}
	if rem := len(samples) % n; rem != 0 {
		log.Debug("dropping short trailing frame", "samples", rem, "frame_length", n)
	}

	bestIdx, bestScore := -1, float32(0)
	for off := 0; off+n <= len(samples); off += n {
		if err := ctx.Err(); err != nil {
			return "", false
		}
		scores, err := rec.Process(samples[off : off+n])
		if err != nil {
			log.Warn("scoring failed", "error", err, "offset", off)
			return "", false
		}
		if len(scores) != len(candidates) {
			log.Warn("recognizer returned wrong score count", "got", len(scores), "want", len(candidates))
			return "", false
		}

		top := -1
		for i, s := range scores {
			if math.IsNaN(float64(s)) {
				continue
			}
			if top < 0 || s > scores[top] {
				top = i
			}
		}
		if top < 0 {
			log.Debug("frame has no usable scores", "offset", off)
			continue
		}
		if bestIdx < 0 || scores[top] > bestScore {
			bestIdx, bestScore = top, scores[top]
		}
		if scores[top] > id.opts.threshold {
			log.Debug("speaker identified", "id", candidates[top].ID, "score", scores[top], "offset", off)
			return candidates[top].ID, true
		}
	}

	if bestIdx >= 0 {
		log.Debug("no match", "best", candidates[bestIdx].ID, "score", bestScore, "threshold", id.opts.threshold)
	}
	return "", false
}
