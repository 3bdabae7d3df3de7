// Package util holds small generic helpers shared by the go-acq packages.
package util

import (
	"fmt"
	"strconv"
	"strings"
)

// Number is the set of numeric sample types handled by go-acq.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~float32 | ~float64
}

// CloneSlice clones src. If cloneSize is 0 the length of src is used.
func CloneSlice[T any](src []T, cloneSize int) []T {
	if cloneSize == 0 {
		cloneSize = len(src)
	}
	clone := make([]T, cloneSize)
	copy(clone, src)

	return clone
}

// ToFloat64 converts a numeric slice to a new float64 slice.
func ToFloat64[T Number](values []T) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}

	return out
}

// ParseFloats parses the whitespace separated fields of s as float64 values,
// ignoring the first skip fields.
func ParseFloats(s string, skip int) ([]float64, error) {
	fields := strings.Fields(s)
	if skip > len(fields) {
		return nil, nil
	}

	out := make([]float64, 0, len(fields)-skip)
	for _, f := range fields[skip:] {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", f, err)
		}
		out = append(out, v)
	}

	return out, nil
}

// ParseInt parses the first whitespace separated field of s as an integer.
func ParseInt(s string) (int, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, fmt.Errorf("parse int: empty value")
	}

	return strconv.Atoi(fields[0])
}
