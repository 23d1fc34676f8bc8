package transport

import (
	"bytes"

	"github.com/gregLibert/uicc/internal/syncutil"
)

// Mock is a scripted Transport. Each Read consumes the next queued chunk (up to max
// bytes, the rest stays queued); an empty queue behaves like a timed out read.
type Mock struct {
	mu syncutil.Mutex

	chunks   [][]byte
	writes   [][]byte
	reads    []int
	readErr  error
	writeErr error
	closeErr error
	closes   int
}

var _ Transport = (*Mock)(nil)

// NewMock returns a Mock that will answer reads with chunks, in order.
func NewMock(chunks ...[]byte) *Mock {
	m := &Mock{}
	for _, c := range chunks {
		m.QueueRead(c)
	}
	return m
}

// QueueRead appends a chunk to the read script. A nil or empty chunk produces an empty read.
func (m *Mock) QueueRead(chunk []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = append(m.chunks, bytes.Clone(chunk))
}

// FailReads makes every following Read return err.
func (m *Mock) FailReads(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

// FailWrites makes every following Write return err.
func (m *Mock) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// FailClose makes Close return err.
func (m *Mock) FailClose(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeErr = err
}

func (m *Mock) Read(max int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closes > 0 {
		return nil, NewError("read", "mock", ErrClosed)
	}
	m.reads = append(m.reads, max)
	if m.readErr != nil {
		return nil, NewError("read", "mock", m.readErr)
	}
	if len(m.chunks) == 0 {
		return []byte{}, nil
	}

	chunk := m.chunks[0]
	if len(chunk) > max {
		m.chunks[0] = chunk[max:]
		return bytes.Clone(chunk[:max]), nil
	}
	m.chunks = m.chunks[1:]
	if chunk == nil {
		chunk = []byte{}
	}
	return chunk, nil
}

func (m *Mock) Write(p []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closes > 0 {
		return NewError("write", "mock", ErrClosed)
	}
	if m.writeErr != nil {
		return NewError("write", "mock", m.writeErr)
	}
	m.writes = append(m.writes, bytes.Clone(p))
	return nil
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closes++
	if m.closeErr != nil {
		return NewError("close", "mock", m.closeErr)
	}
	return nil
}

// Writes returns a copy of every buffer written so far.
func (m *Mock) Writes() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([][]byte, len(m.writes))
	for i, w := range m.writes {
		out[i] = bytes.Clone(w)
	}
	return out
}

// Reads returns the max argument of every Read call.
func (m *Mock) Reads() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.reads...)
}

// Closed reports whether Close was called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes > 0
}

// Pending returns the number of chunks not yet consumed.
func (m *Mock) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chunks)
}
