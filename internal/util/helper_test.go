package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCloneSlice(t *testing.T) {
	src := []int{1, 2, 3}
	c := CloneSlice(src, 0)
	c[0] = 9
	require.Equal(t, []int{1, 2, 3}, src)
	require.Len(t, CloneSlice(src, 5), 5)
}

func TestToFloat64(t *testing.T) {
	require.Equal(t, []float64{-1, 0, 32767}, ToFloat64([]int16{-1, 0, 32767}))
	require.Empty(t, ToFloat64([]int32{}))
}

func TestParseFloats(t *testing.T) {
	require := require.New(t)

	v, err := ParseFloats("2 16 1 3.05e-4 -3.1e-4 0.5", 3)
	require.NoError(err)
	require.Equal([]float64{3.05e-4, -3.1e-4, 0.5}, v)

	v, err = ParseFloats("1 2", 3)
	require.NoError(err)
	require.Empty(v)

	_, err = ParseFloats("x y", 0)
	require.Error(err)
}

func TestParseInt(t *testing.T) {
	v, err := ParseInt(" 32 \n")
	require.NoError(t, err)
	require.Equal(t, 32, v)

	_, err = ParseInt("")
	require.Error(t, err)
}
