package data

import (
	"fmt"

	"github.com/arloliu/go-acq/acq"
)

// Demux reshapes a sample-major buffer into nchan channel-major arrays.
// The i-th returned slice holds channel i+1.
func Demux[T any](raw []T, nchan int) ([][]T, error) {
	if nchan < 1 {
		return nil, fmt.Errorf("demux into %d channels: %w", nchan, acq.ErrInvalidChannel)
	}
	if len(raw)%nchan != 0 {
		return nil, fmt.Errorf("demux %d samples: not a multiple of %d channels", len(raw), nchan)
	}

	nsam := len(raw) / nchan
	chans := make([][]T, nchan)
	for ch := range chans {
		chans[ch] = make([]T, nsam)
	}

	for i := range nsam {
		row := raw[i*nchan : (i+1)*nchan]
		for ch, v := range row {
			chans[ch][i] = v
		}
	}

	return chans, nil
}

// Interleave is the inverse of Demux. Every channel must have the same length.
func Interleave[T any](chans [][]T) ([]T, error) {
	if len(chans) == 0 {
		return nil, nil
	}

	nsam := len(chans[0])
	for ch, c := range chans {
		if len(c) != nsam {
			return nil, fmt.Errorf("interleave: channel %d has %d samples, want %d", ch+1, len(c), nsam)
		}
	}

	nchan := len(chans)
	raw := make([]T, nsam*nchan)
	for ch, c := range chans {
		for i, v := range c {
			raw[i*nchan+ch] = v
		}
	}

	return raw, nil
}

// Select returns the channel-major arrays of the given 1-based channels, in
// the order requested.
func Select[T any](chans [][]T, channels []int) ([][]T, error) {
	out := make([][]T, 0, len(channels))
	for _, ch := range channels {
		if ch < 1 || ch > len(chans) {
			return nil, fmt.Errorf("select channel %d of %d: %w", ch, len(chans), acq.ErrInvalidChannel)
		}
		out = append(out, chans[ch-1])
	}

	return out, nil
}
