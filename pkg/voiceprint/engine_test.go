package voiceprint

import (
	"errors"
	"sync"

	"github.com/haivivi/voicerelay/pkg/audio/wav"
)

// fakeEngine scripts recognizer scores and enrollment progress.
type fakeEngine struct {
	frame int

	mu sync.Mutex

	// scores[i] is returned for the i-th processed frame; frames past the
	// end score zero.
	scores     [][]float32
	recErr     error
	processErr error
	recOpened  int
	recClosed  int
	processed  int

	// progress[i] is returned by the i-th Enroll call; calls past the end
	// repeat the last value.
	progress   []float32
	enrollErr  error
	exportErr  error
	enrolled   []int // sample counts passed to Enroll
	profOpened int
	profClosed int
}

func newFakeEngine() *fakeEngine { return &fakeEngine{frame: 160} }

func (e *fakeEngine) SampleRate() int { return 16000 }

func (e *fakeEngine) NewRecognizer(profiles []Profile) (Recognizer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.recErr != nil {
		return nil, e.recErr
	}
	e.recOpened++
	return &fakeRecognizer{e: e, n: len(profiles)}, nil
}

func (e *fakeEngine) NewProfiler() (Profiler, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profOpened++
	return &fakeProfiler{e: e}, nil
}

type fakeRecognizer struct {
	e *fakeEngine
	n int
}

func (r *fakeRecognizer) FrameLength() int { return r.e.frame }

func (r *fakeRecognizer) Process(frame []int16) ([]float32, error) {
	r.e.mu.Lock()
	defer r.e.mu.Unlock()
	if r.e.processErr != nil {
		return nil, r.e.processErr
	}
	i := r.e.processed
	r.e.processed++
	if i < len(r.e.scores) {
		return append([]float32(nil), r.e.scores[i]...), nil
	}
	return make([]float32, r.n), nil
}

func (r *fakeRecognizer) Close() error {
	r.e.mu.Lock()
	r.e.recClosed++
	r.e.mu.Unlock()
	return nil
}

type fakeProfiler struct {
	e   *fakeEngine
	pct float32
}

func (p *fakeProfiler) Enroll(samples []int16) (float32, Feedback, error) {
	p.e.mu.Lock()
	defer p.e.mu.Unlock()
	if p.e.enrollErr != nil {
		return 0, FeedbackNone, p.e.enrollErr
	}
	i := len(p.e.enrolled)
	p.e.enrolled = append(p.e.enrolled, len(samples))
	switch {
	case len(p.e.progress) == 0:
		p.pct = 0
	case i < len(p.e.progress):
		p.pct = p.e.progress[i]
	default:
		p.pct = p.e.progress[len(p.e.progress)-1]
	}
	return p.pct, FeedbackGood, nil
}

func (p *fakeProfiler) Export() (Profile, error) {
	p.e.mu.Lock()
	defer p.e.mu.Unlock()
	if p.e.exportErr != nil {
		return nil, p.e.exportErr
	}
	if p.pct < 100 {
		return nil, ErrIncomplete
	}
	return Profile("profile"), nil
}

func (p *fakeProfiler) Close() error {
	p.e.mu.Lock()
	p.e.profClosed++
	p.e.mu.Unlock()
	return nil
}

var errBoom = errors.New("boom")

// silentWAV returns a 16 kHz mono WAV of n zero samples.
func silentWAV(n int) []byte {
	return wav.Encode(make([]int16, n), 16000, 1)
}
