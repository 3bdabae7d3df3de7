package data

import "sync/atomic"

// ClientMetrics contains atomic counters of a data client.
type ClientMetrics struct {
	// BytesRecv is the number of bytes received.
	BytesRecv atomic.Uint64
	// ReadCount is the number of socket reads.
	ReadCount atomic.Uint64
	// ShortCount is the number of reads that ended before the requested size.
	ShortCount atomic.Uint64
}
