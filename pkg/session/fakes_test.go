package session

import (
	"context"
	"errors"
	"sync"

	"github.com/haivivi/voicerelay/pkg/asr"
	"github.com/haivivi/voicerelay/pkg/buffer"
	"github.com/haivivi/voicerelay/pkg/voiceprint"
)

// fakeStream emits its scripted texts once CloseSend is called.
type fakeStream struct {
	script []string

	mu        sync.Mutex
	written   [][]byte
	closeSend bool
	closed    bool
	results   *buffer.Buffer[asr.Result]
}

func newFakeStream(script ...string) *fakeStream {
	return &fakeStream{script: script, results: buffer.N[asr.Result](len(script))}
}

func (f *fakeStream) Write(chunk []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closeSend {
		return asr.ErrClosed
	}
	f.written = append(f.written, chunk)
	return nil
}

func (f *fakeStream) Next() (asr.Result, error) { return f.results.Next() }

func (f *fakeStream) CloseSend() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closeSend {
		return nil
	}
	f.closeSend = true
	for _, text := range f.script {
		f.results.Add(asr.Result{Text: text})
	}
	return f.results.CloseWrite()
}

func (f *fakeStream) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return f.results.CloseWithError(asr.ErrClosed)
}

func (f *fakeStream) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeRecognizer struct {
	mu      sync.Mutex
	script  []string
	err     error
	streams []*fakeStream
}

func (r *fakeRecognizer) Start(context.Context, asr.StreamConfig) (asr.Stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	st := newFakeStream(r.script...)
	r.streams = append(r.streams, st)
	return st, nil
}

func (r *fakeRecognizer) last() *fakeStream {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.streams[len(r.streams)-1]
}

// fakeIdentifier matches identity once the buffer reaches minBytes.
type fakeIdentifier struct {
	identity string
	minBytes int

	mu    sync.Mutex
	calls []int
}

func (f *fakeIdentifier) Identify(_ context.Context, buf []byte, _ []voiceprint.Candidate) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, len(buf))
	if f.identity != "" && len(buf) >= f.minBytes {
		return f.identity, true
	}
	return "", false
}

func (f *fakeIdentifier) callLens() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.calls...)
}

type fakeEnroller struct {
	mu     sync.Mutex
	calls  int
	result voiceprint.Enrollment
	during func()
}

func (f *fakeEnroller) Feed(context.Context, string, []byte) voiceprint.Enrollment {
	f.mu.Lock()
	f.calls++
	during := f.during
	f.mu.Unlock()
	if during != nil {
		during()
	}
	return f.result
}

func (f *fakeEnroller) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type chanListener struct {
	msgs  chan Message
	block bool

	mu     sync.Mutex
	closed bool
}

func newListener() *chanListener {
	return &chanListener{msgs: make(chan Message, 8)}
}

func (l *chanListener) Send(ctx context.Context, msg Message) error {
	if l.block {
		<-ctx.Done()
		return ctx.Err()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errors.New("listener closed")
	}
	l.msgs <- msg
	return nil
}

func (l *chanListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *chanListener) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}
