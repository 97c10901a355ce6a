package asr

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/haivivi/voicerelay/pkg/buffer"
)

// Nop is a Recognizer whose streams accept audio and never produce text.
var Nop Recognizer = RecognizerFunc(func(context.Context, StreamConfig) (Stream, error) {
	return &nopStream{done: buffer.N[Result](0)}, nil
})

type nopStream struct {
	closed atomic.Bool
	once   sync.Once
	done   *buffer.Buffer[Result]
}

func (s *nopStream) Write([]byte) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (s *nopStream) Next() (Result, error) { return s.done.Next() }

func (s *nopStream) CloseSend() error {
	s.once.Do(func() {
		s.closed.Store(true)
		s.done.CloseWrite()
	})
	return nil
}

func (s *nopStream) Close() error {
	s.CloseSend()
	return s.done.CloseWithError(ErrClosed)
}
