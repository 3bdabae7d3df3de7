// Package data pulls captured samples from the data ports of a unit and
// converts them between the sample-major layout of the bulk port and the
// channel-major layout of the per-channel ports.
//
// A Client owns one data connection. Read accumulates exactly the requested
// number of samples, however the remote side chunks its writes. Stream
// yields fixed length blocks from a live port.
//
// Demux, Interleave and Select are pure functions.
package data
