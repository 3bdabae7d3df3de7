// Package acq holds the pieces shared by every go-acq package: the error
// taxonomy, the TCP port map of a unit, the injectable Dialer, a goroutine
// TaskManager and the atomic open/close state used by long-lived handles.
//
// The packages built on top of it are:
//   - command: one text session per site, knob discovery and get/set.
//   - status:  status feed parsing and the edge-triggered StatusMonitor.
//   - data:    channel data pulls, streaming and (de)multiplexing.
//   - unit:    a whole instrument composed of sessions and a monitor.
//   - shot:    synchronized arm/trigger/wait/collect over many units.
//
// Error Handling:
//
// Failures are reported as typed errors which unwrap to sentinel values, so
// callers can branch with errors.Is and extract details with errors.As:
//
//	var busy *acq.BusyError
//	if errors.As(err, &busy) {
//	    // clear the busy condition and retry busy.Action
//	}
//	if errors.Is(err, acq.ErrFatalAnomaly) {
//	    // the status feed can no longer be trusted, abandon the run
//	}
package acq
