package asr

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/haivivi/voicerelay/pkg/audio/pcm"
	"github.com/haivivi/voicerelay/pkg/audio/wav"
	"github.com/haivivi/voicerelay/pkg/buffer"
)

// Transcriber recognizes a complete WAV clip.
type Transcriber interface {
	Transcribe(ctx context.Context, wavData []byte, language string) (string, error)
}

// TranscriberFunc adapts a function to Transcriber.
type TranscriberFunc func(ctx context.Context, wavData []byte, language string) (string, error)

func (f TranscriberFunc) Transcribe(ctx context.Context, wavData []byte, language string) (string, error) {
	return f(ctx, wavData, language)
}

// DefaultSegment is how much audio a Segmenter batches per request.
const DefaultSegment = 5 * time.Second

// Segmenter is a Recognizer that cuts pushed audio into fixed-length
// segments and transcribes them one at a time.
type Segmenter struct {
	t       Transcriber
	segment time.Duration
	logger  *slog.Logger
}

// NewSegmenter creates a Segmenter. A segment <= 0 uses DefaultSegment and a
// nil logger uses slog.Default().
func NewSegmenter(t Transcriber, segment time.Duration, logger *slog.Logger) *Segmenter {
	if segment <= 0 {
		segment = DefaultSegment
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Segmenter{t: t, segment: segment, logger: logger.With("component", "asr")}
}

// Start begins a stream. The stream outlives ctx's cancellation; it ends on
// CloseSend or Close.
func (s *Segmenter) Start(ctx context.Context, cfg StreamConfig) (Stream, error) {
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	st := &segmentStream{
		t:        s.t,
		language: cfg.Language,
		rate:     rate,
		segLen:   int(time.Duration(rate) * s.segment / time.Second),
		logger:   s.logger,
		ctx:      ctx,
		cancel:   cancel,
		work:     buffer.N[[]int16](4),
		results:  buffer.N[Result](4),
	}
	st.wg.Add(1)
	go st.run()
	return st, nil
}

type segmentStream struct {
	t        Transcriber
	language string
	rate     int
	segLen   int
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	pending []int16

	work    *buffer.Buffer[[]int16]
	results *buffer.Buffer[Result]
}

func (s *segmentStream) Write(chunk []byte) error {
	samples, err := wav.ToPCM(chunk, s.rate)
	if errors.Is(err, wav.ErrMalformed) {
		samples = pcm.DecodeInt16(chunk)
	} else if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.pending = append(s.pending, samples...)
	for len(s.pending) >= s.segLen {
		seg := s.pending[:s.segLen:s.segLen]
		s.pending = s.pending[s.segLen:]
		if err := s.work.Add(seg); err != nil {
			return ErrClosed
		}
	}
	return nil
}

func (s *segmentStream) run() {
	defer s.wg.Done()
	defer s.results.CloseWrite()
	for seg := range s.work.All() {
		text, err := s.t.Transcribe(s.ctx, wav.Encode(seg, s.rate, 1), s.language)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Warn("transcribe segment failed", "samples", len(seg), "error", err)
			continue
		}
		if text == "" {
			continue
		}
		if err := s.results.Add(Result{Text: text, Language: s.language}); err != nil {
			return
		}
	}
}

func (s *segmentStream) Next() (Result, error) {
	return s.results.Next()
}

func (s *segmentStream) CloseSend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if len(s.pending) > 0 {
		s.work.Add(s.pending)
		s.pending = nil
	}
	return s.work.CloseWrite()
}

func (s *segmentStream) Close() error {
	s.CloseSend()
	s.cancel()
	s.work.CloseWithError(ErrClosed)
	s.results.CloseWithError(ErrClosed)
	s.wg.Wait()
	return nil
}
