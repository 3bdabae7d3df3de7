package data

import (
	"fmt"

	"github.com/arloliu/go-acq/internal/util"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes the samples of one channel.
type Summary struct {
	Count  int
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

// String formats the summary for logs.
func (s Summary) String() string {
	return fmt.Sprintf("n=%d mean=%.3f std=%.3f min=%g max=%g", s.Count, s.Mean, s.StdDev, s.Min, s.Max)
}

// Summarize computes the summary of samples. An empty input yields a zero Summary.
func Summarize[T util.Number](samples []T) Summary {
	if len(samples) == 0 {
		return Summary{}
	}

	x := util.ToFloat64(samples)
	mean, std := stat.MeanStdDev(x, nil)
	if len(x) == 1 {
		std = 0
	}

	return Summary{
		Count:  len(x),
		Mean:   mean,
		StdDev: std,
		Min:    floats.Min(x),
		Max:    floats.Max(x),
	}
}

// SummarizeAll summarizes every channel of a channel-major capture.
func SummarizeAll[T util.Number](chans [][]T) []Summary {
	out := make([]Summary, len(chans))
	for i, c := range chans {
		out[i] = Summarize(c)
	}

	return out
}
