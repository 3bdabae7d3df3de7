// Package unit represents one networked acquisition unit: a command session
// per site, discovered from the site list knob of site 0, plus a status
// monitor.
//
// A Unit reads channel data with the collection policy of ReadChannels,
// arms and aborts captures, fetches calibration and loads AWG waveforms.
//
// Units are usually opened through a Registry, which reuses an open unit
// for a given host and closes every unit at shutdown.
package unit
