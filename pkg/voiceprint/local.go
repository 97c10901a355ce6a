package voiceprint

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

const profileVersion = 1

// LocalConfig tunes LocalEngine.
type LocalConfig struct {
	// SampleRate of the PCM the engine consumes. Default 16000.
	SampleRate int

	// FrameDuration is the scoring and enrollment frame size. Default 1s.
	FrameDuration time.Duration

	// EnrollDuration is how much voiced audio completes an enrollment.
	// Default 8s.
	EnrollDuration time.Duration

	// SilenceRMS is the normalized RMS below which a frame counts as
	// silence. Default 0.01.
	SilenceRMS float64
}

func (c *LocalConfig) setDefaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.FrameDuration <= 0 {
		c.FrameDuration = time.Second
	}
	if c.EnrollDuration <= 0 {
		c.EnrollDuration = 8 * time.Second
	}
	if c.SilenceRMS <= 0 {
		c.SilenceRMS = 0.01
	}
}

// LocalEngine is an in-process Engine. Frames are embedded with a Model and
// scored by cosine similarity against per-profile centroids; silent frames
// score zero against every profile.
type LocalEngine struct {
	model Model
	cfg   LocalConfig
}

// NewLocalEngine creates a LocalEngine over model.
func NewLocalEngine(model Model, cfg LocalConfig) *LocalEngine {
	cfg.setDefaults()
	return &LocalEngine{model: model, cfg: cfg}
}

func (e *LocalEngine) SampleRate() int { return e.cfg.SampleRate }

func (e *LocalEngine) frameLength() int {
	return int(int64(e.cfg.SampleRate) * int64(e.cfg.FrameDuration) / int64(time.Second))
}

// NewRecognizer decodes every profile up front; one bad profile fails the
// whole recognizer.
func (e *LocalEngine) NewRecognizer(profiles []Profile) (Recognizer, error) {
	if len(profiles) == 0 {
		return nil, fmt.Errorf("%w: no profiles", ErrUnavailable)
	}
	centroids := make([][]float32, len(profiles))
	for i, p := range profiles {
		d, err := DecodeProfile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: profile %d: %v", ErrUnavailable, i, err)
		}
		if len(d.Centroid) != e.model.Dimension() {
			return nil, fmt.Errorf("%w: profile %d has dimension %d, want %d", ErrUnavailable, i, len(d.Centroid), e.model.Dimension())
		}
		centroids[i] = d.Centroid
	}
	return &localRecognizer{engine: e, centroids: centroids}, nil
}

func (e *LocalEngine) NewProfiler() (Profiler, error) {
	return &localProfiler{engine: e, sum: make([]float64, e.model.Dimension())}, nil
}

// embed returns the unit embedding of frame, or nil when it is silent.
func (e *LocalEngine) embed(frame []int16) ([]float32, error) {
	if rms(frame) < e.cfg.SilenceRMS {
		return nil, nil
	}
	v, err := e.model.Extract(frame)
	if err != nil {
		return nil, err
	}
	if !normalize(v) {
		return nil, nil
	}
	return v, nil
}

type localRecognizer struct {
	engine    *LocalEngine
	centroids [][]float32
	closed    bool
}

func (r *localRecognizer) FrameLength() int { return r.engine.frameLength() }

func (r *localRecognizer) Process(frame []int16) ([]float32, error) {
	if r.closed {
		return nil, errors.New("voiceprint: recognizer closed")
	}
	if len(frame) != r.FrameLength() {
		return nil, fmt.Errorf("voiceprint: frame has %d samples, want %d", len(frame), r.FrameLength())
	}
	scores := make([]float32, len(r.centroids))
	emb, err := r.engine.embed(frame)
	if err != nil || emb == nil {
		return scores, err
	}
	for i, c := range r.centroids {
		scores[i] = max(0, min(1, cosine(emb, c)))
	}
	return scores, nil
}

func (r *localRecognizer) Close() error {
	r.closed = true
	return nil
}

type localProfiler struct {
	engine *LocalEngine
	sum    []float64
	voiced int
}

func (p *localProfiler) Enroll(samples []int16) (float32, Feedback, error) {
	n := p.engine.frameLength()
	if len(samples) < n {
		return p.progress(), FeedbackTooShort, nil
	}
	before := p.voiced
	for off := 0; off+n <= len(samples); off += n {
		emb, err := p.engine.embed(samples[off : off+n])
		if err != nil {
			return p.progress(), FeedbackNone, err
		}
		if emb == nil {
			continue
		}
		for i, v := range emb {
			p.sum[i] += float64(v)
		}
		p.voiced++
	}
	if p.voiced == before {
		return p.progress(), FeedbackNoVoice, nil
	}
	return p.progress(), FeedbackGood, nil
}

func (p *localProfiler) progress() float32 {
	heard := time.Duration(p.voiced) * p.engine.cfg.FrameDuration
	return float32(min(100, 100*float64(heard)/float64(p.engine.cfg.EnrollDuration)))
}

func (p *localProfiler) Export() (Profile, error) {
	if p.progress() < 100 {
		return nil, ErrIncomplete
	}
	centroid := make([]float32, len(p.sum))
	for i, v := range p.sum {
		centroid[i] = float32(v / float64(p.voiced))
	}
	normalize(centroid)
	return EncodeProfile(&ProfileData{
		Version:    profileVersion,
		SampleRate: p.engine.cfg.SampleRate,
		Frames:     p.voiced,
		Centroid:   centroid,
	})
}

func (p *localProfiler) Close() error { return nil }

// ProfileData is the decoded form of a LocalEngine profile.
type ProfileData struct {
	Version    int       `msgpack:"v"`
	SampleRate int       `msgpack:"rate"`
	Frames     int       `msgpack:"frames"`
	Centroid   []float32 `msgpack:"centroid"`
}

// EncodeProfile serializes d with msgpack.
func EncodeProfile(d *ProfileData) (Profile, error) {
	b, err := msgpack.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("voiceprint: encode profile: %w", err)
	}
	return Profile(b), nil
}

// DecodeProfile parses a LocalEngine profile.
func DecodeProfile(p Profile) (*ProfileData, error) {
	var d ProfileData
	if err := msgpack.Unmarshal(p, &d); err != nil {
		return nil, fmt.Errorf("voiceprint: decode profile: %w", err)
	}
	if d.Version != profileVersion {
		return nil, fmt.Errorf("voiceprint: unsupported profile version %d", d.Version)
	}
	if len(d.Centroid) == 0 {
		return nil, errors.New("voiceprint: profile has no centroid")
	}
	return &d, nil
}

func rms(frame []int16) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(frame)))
}

// normalize scales v to unit length in place and reports whether v was
// non-zero.
func normalize(v []float32) bool {
	var n float64
	for _, x := range v {
		n += float64(x) * float64(x)
	}
	if n == 0 {
		return false
	}
	inv := float32(1 / math.Sqrt(n))
	for i := range v {
		v[i] *= inv
	}
	return true
}

// cosine of two unit vectors.
func cosine(a, b []float32) float32 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return float32(sum)
}
