// Package status turns the status feed of a unit into an edge-triggered state
// machine with cancelable wait primitives.
//
// The unit pushes one line per internal state update on its status port:
//
//	STATE PRE POST ELAPSED DEMUX
//
// A Feed reads those lines and yields parsed Records. A Monitor consumes a
// Feed in a background goroutine and derives two edges from consecutive
// records:
//
//   - armed:   a transition into ARM.
//   - stopped: a transition from any active state back to IDLE.
//
// Edges are set by the monitor and cleared by the consumer that observes
// them, so a fast ARM -> RUNPRE transition between two polls is never lost.
// WaitArmed and WaitStopped poll the edges at a fixed interval instead of
// blocking, which keeps them cancelable by Quit (permanent) and Break
// (transient, used by shot watchdogs) without touching the connection.
//
// A transition from IDLE straight to a running state means the feed can no
// longer be trusted. The monitor stops, reports *acq.FatalAnomalyError from
// every wait, and invokes the configured anomaly handler.
package status
