package buffer

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"sync"
)

// ErrIteratorDone is returned by Next once the buffer is closed for writing
// and fully drained.
var ErrIteratorDone = errors.New("buffer: iterator done")

// Buffer is a thread-safe growable FIFO of T. The zero value is not usable;
// create one with N.
type Buffer[T any] struct {
	writeNotify chan struct{}

	mu         sync.Mutex
	closeWrite bool
	closeErr   error
	buf        []T
}

// N creates a Buffer with an initial capacity hint of n elements.
func N[T any](n int) *Buffer[T] {
	return &Buffer[T]{
		writeNotify: make(chan struct{}, 1),
		buf:         make([]T, 0, n),
	}
}

// notifyLocked wakes at most one blocked reader. Readers re-check state after
// waking, so a dropped signal is harmless.
func (b *Buffer[T]) notifyLocked() {
	select {
	case b.writeNotify <- struct{}{}:
	default:
	}
}

func (b *Buffer[T]) writableLocked() error {
	if b.closeErr != nil {
		return fmt.Errorf("buffer: write to closed buffer: %w", b.closeErr)
	}
	if b.closeWrite {
		return fmt.Errorf("buffer: write to closed buffer: %w", io.ErrClosedPipe)
	}
	return nil
}

// Write appends p to the buffer. It never blocks.
func (b *Buffer[T]) Write(p []T) (n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.writableLocked(); err != nil {
		return 0, err
	}
	b.buf = append(b.buf, p...)
	b.notifyLocked()
	return len(p), nil
}

// Add appends a single element.
func (b *Buffer[T]) Add(t T) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.writableLocked(); err != nil {
		return err
	}
	b.buf = append(b.buf, t)
	b.notifyLocked()
	return nil
}

// waitLocked blocks until data is available or the buffer is closed. It
// returns done=true when the write side is closed and nothing is left.
func (b *Buffer[T]) waitLocked() (done bool, err error) {
	for len(b.buf) == 0 {
		if b.closeErr != nil {
			return false, fmt.Errorf("buffer: read from closed buffer: %w", b.closeErr)
		}
		if b.closeWrite {
			return true, nil
		}
		b.mu.Unlock()
		<-b.writeNotify
		b.mu.Lock()
	}
	if b.closeErr != nil {
		return false, fmt.Errorf("buffer: read from closed buffer: %w", b.closeErr)
	}
	return false, nil
}

// Read copies up to len(p) buffered elements into p, blocking while the
// buffer is empty. It returns io.EOF after CloseWrite once drained.
func (b *Buffer[T]) Read(p []T) (n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	done, err := b.waitLocked()
	if err != nil {
		return 0, err
	}
	if done {
		return 0, io.EOF
	}
	n = copy(p, b.buf)
	b.buf = b.buf[n:]
	return n, nil
}

// Next removes and returns the oldest element, blocking while the buffer is
// empty. It returns ErrIteratorDone after CloseWrite once drained.
func (b *Buffer[T]) Next() (t T, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	done, err := b.waitLocked()
	if err != nil {
		return t, err
	}
	if done {
		return t, ErrIteratorDone
	}
	t = b.buf[0]
	var zero T
	b.buf[0] = zero
	b.buf = b.buf[1:]
	return t, nil
}

// All yields elements in FIFO order until the buffer is drained after
// CloseWrite or closed with an error. Use Error to tell the two apart.
func (b *Buffer[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			t, err := b.Next()
			if err != nil {
				return
			}
			if !yield(t) {
				return
			}
		}
	}
}

// Discard drops up to n elements from the head of the buffer.
func (b *Buffer[T]) Discard(n int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closeErr != nil {
		return fmt.Errorf("buffer: skip from closed buffer: %w", b.closeErr)
	}
	b.buf = b.buf[min(n, len(b.buf)):]
	return nil
}

// CloseWrite closes the write side. Pending elements can still be read.
func (b *Buffer[T]) CloseWrite() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closeWrite {
		return nil
	}
	b.closeWrite = true
	close(b.writeNotify)
	return nil
}

// CloseWithError closes both sides and drops pending data. Blocked and
// subsequent operations fail with err, or io.ErrClosedPipe if err is nil.
func (b *Buffer[T]) CloseWithError(err error) error {
	if err == nil {
		err = io.ErrClosedPipe
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closeErr != nil {
		return nil
	}
	b.closeErr = err
	b.buf = nil
	if !b.closeWrite {
		b.closeWrite = true
		close(b.writeNotify)
	}
	return nil
}

// Close is CloseWithError(io.ErrClosedPipe).
func (b *Buffer[T]) Close() error {
	return b.CloseWithError(io.ErrClosedPipe)
}

// Error returns the error passed to CloseWithError, if any.
func (b *Buffer[T]) Error() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeErr
}

// Len returns the number of buffered elements.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// Snapshot returns a copy of the buffered elements without consuming them.
func (b *Buffer[T]) Snapshot() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]T, len(b.buf))
	copy(out, b.buf)
	return out
}
