package asr

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/haivivi/voicerelay/pkg/audio/pcm"
	"github.com/haivivi/voicerelay/pkg/audio/wav"
	"github.com/haivivi/voicerelay/pkg/buffer"
)

// clipRecorder transcribes each clip as "seg<N>:<samples>".
type clipRecorder struct {
	mu    sync.Mutex
	clips [][]int16
	langs []string
	fail  map[int]error
	block chan struct{}
}

func (r *clipRecorder) Transcribe(ctx context.Context, data []byte, language string) (string, error) {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	_, samples, err := wav.Decode(data)
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.clips)
	r.clips = append(r.clips, samples)
	r.langs = append(r.langs, language)
	if err := r.fail[n]; err != nil {
		return "", err
	}
	return "seg" + string(rune('0'+n)), nil
}

func drain(t *testing.T, st Stream) []string {
	t.Helper()
	var out []string
	for {
		r, err := st.Next()
		if errors.Is(err, buffer.ErrIteratorDone) {
			return out
		}
		if err != nil {
			t.Fatalf("Next error: %v", err)
		}
		out = append(out, r.Text)
	}
}

func TestSegmenterCutsAndFlushes(t *testing.T) {
	rec := &clipRecorder{}
	// 100ms segments at 8 kHz are 800 samples.
	seg := NewSegmenter(rec, 100*time.Millisecond, nil)
	st, err := seg.Start(context.Background(), StreamConfig{Language: "en-US", SampleRate: 8000})
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	st.Write(wav.Encode(make([]int16, 500), 8000, 1))
	st.Write(pcm.EncodeInt16(make([]int16, 500))) // raw PCM is accepted too
	st.Write(wav.Encode(make([]int16, 900), 8000, 1))
	if err := st.CloseSend(); err != nil {
		t.Fatal(err)
	}
	if err := st.Write(pcm.EncodeInt16(make([]int16, 10))); !errors.Is(err, ErrClosed) {
		t.Fatalf("Write after CloseSend error = %v", err)
	}

	got := drain(t, st)
	if !slices.Equal(got, []string{"seg0", "seg1", "seg2"}) {
		t.Fatalf("results = %v", got)
	}
	var lens []int
	for _, c := range rec.clips {
		lens = append(lens, len(c))
	}
	if !slices.Equal(lens, []int{800, 800, 300}) {
		t.Fatalf("segment lengths = %v", lens)
	}
	if rec.langs[0] != "en-US" {
		t.Errorf("language = %q", rec.langs[0])
	}
}

func TestSegmenterSkipsFailedSegment(t *testing.T) {
	rec := &clipRecorder{fail: map[int]error{0: errors.New("503")}}
	st, _ := NewSegmenter(rec, 100*time.Millisecond, nil).Start(context.Background(), StreamConfig{SampleRate: 8000})
	defer st.Close()

	st.Write(pcm.EncodeInt16(make([]int16, 1600)))
	st.CloseSend()
	if got := drain(t, st); !slices.Equal(got, []string{"seg1"}) {
		t.Fatalf("results = %v", got)
	}
}

func TestSegmenterCloseAbandonsWork(t *testing.T) {
	rec := &clipRecorder{block: make(chan struct{})}
	st, _ := NewSegmenter(rec, 100*time.Millisecond, nil).Start(context.Background(), StreamConfig{SampleRate: 8000})
	st.Write(pcm.EncodeInt16(make([]int16, 800)))

	done := make(chan struct{})
	go func() {
		st.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close blocked on an in-flight transcription")
	}
	if _, err := st.Next(); !errors.Is(err, ErrClosed) {
		t.Fatalf("Next after Close error = %v", err)
	}
}

func TestSegmenterOutlivesStartContext(t *testing.T) {
	rec := &clipRecorder{}
	ctx, cancel := context.WithCancel(context.Background())
	st, _ := NewSegmenter(rec, 100*time.Millisecond, nil).Start(ctx, StreamConfig{SampleRate: 8000})
	defer st.Close()
	cancel()

	st.Write(pcm.EncodeInt16(make([]int16, 800)))
	st.CloseSend()
	if got := drain(t, st); len(got) != 1 {
		t.Fatalf("results = %v", got)
	}
}

func TestNop(t *testing.T) {
	st, err := Nop.Start(context.Background(), StreamConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Write([]byte{1, 2}); err != nil {
		t.Fatal(err)
	}
	st.CloseSend()
	if err := st.Write([]byte{1, 2}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Write after CloseSend error = %v", err)
	}
	if _, err := st.Next(); !errors.Is(err, buffer.ErrIteratorDone) {
		t.Fatalf("Next error = %v", err)
	}
	st.Close()
}

func TestBaseLanguage(t *testing.T) {
	for in, want := range map[string]string{"en-US": "en", "DE": "de", "": "", "zh-Hans-CN": "zh"} {
		if got := BaseLanguage(in); got != want {
			t.Errorf("BaseLanguage(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewOpenAIRequiresKey(t *testing.T) {
	if _, err := NewOpenAI(OpenAIConfig{}); err == nil {
		t.Fatal("expected error")
	}
	o, err := NewOpenAI(OpenAIConfig{APIKey: "sk-test"})
	if err != nil || o.model != DefaultOpenAIModel {
		t.Fatalf("NewOpenAI = (%+v, %v)", o, err)
	}
}
