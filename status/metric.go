package status

import "sync/atomic"

// MonitorMetrics contains atomic counters of a status monitor.
type MonitorMetrics struct {
	// RecordCount is the number of parsed records.
	RecordCount atomic.Uint64
	// IgnoredCount is the number of lines that did not parse.
	IgnoredCount atomic.Uint64
	// ArmedEdgeCount is the number of armed edges set.
	ArmedEdgeCount atomic.Uint64
	// StoppedEdgeCount is the number of stopped edges set.
	StoppedEdgeCount atomic.Uint64
}
