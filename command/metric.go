package command

import "sync/atomic"

// SessionMetrics contains atomic counters of a command session.
// They can back prometheus CounterFuncs.
type SessionMetrics struct {
	// RequestCount is the number of requests sent.
	RequestCount atomic.Uint64
	// ErrCount is the number of failed requests.
	ErrCount atomic.Uint64
	// BytesSent is the number of bytes written to the command port.
	BytesSent atomic.Uint64
	// BytesRecv is the number of bytes read from the command port.
	BytesRecv atomic.Uint64
}

func (m *SessionMetrics) incRequestCount() { m.RequestCount.Add(1) }

func (m *SessionMetrics) incErrCount() { m.ErrCount.Add(1) }

func (m *SessionMetrics) addBytesSent(n int) { m.BytesSent.Add(uint64(n)) }

func (m *SessionMetrics) addBytesRecv(n int) { m.BytesRecv.Add(uint64(n)) }
