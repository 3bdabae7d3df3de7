package data

import (
	"testing"

	"github.com/arloliu/go-acq/acq"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestDemux_RoundTrip(t *testing.T) {
	for nchan := 1; nchan <= 8; nchan++ {
		for _, nsam := range []int{0, 1, 3, 64} {
			raw := ramp(nchan * nsam)

			chans, err := Demux(raw, nchan)
			require.NoError(t, err)
			require.Len(t, chans, nchan)

			back, err := Interleave(chans)
			require.NoError(t, err)
			if nsam == 0 {
				require.Empty(t, back)
				continue
			}
			require.Empty(t, cmp.Diff(raw, back), "nchan=%d nsam=%d", nchan, nsam)
		}
	}
}

func TestDemux_Layout(t *testing.T) {
	raw := []int16{11, 21, 31, 12, 22, 32}

	chans, err := Demux(raw, 3)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff([][]int16{{11, 12}, {21, 22}, {31, 32}}, chans))

	sel, err := Select(chans, []int{3, 1})
	require.NoError(t, err)
	require.Empty(t, cmp.Diff([][]int16{{31, 32}, {11, 12}}, sel))
}

func TestDemux_Errors(t *testing.T) {
	require := require.New(t)

	_, err := Demux([]int32{1, 2, 3}, 2)
	require.Error(err)

	_, err = Demux([]int32{1, 2}, 0)
	require.ErrorIs(err, acq.ErrInvalidChannel)

	_, err = Interleave([][]int32{{1, 2}, {3}})
	require.Error(err)

	_, err = Select([][]int32{{1}}, []int{2})
	require.ErrorIs(err, acq.ErrInvalidChannel)
}

func TestSummarize(t *testing.T) {
	require := require.New(t)

	s := Summarize([]int16{2, 4, 4, 4, 5, 5, 7, 9})
	require.Equal(8, s.Count)
	require.InDelta(5.0, s.Mean, 1e-9)
	require.InDelta(2.138, s.StdDev, 1e-3)
	require.InDelta(2.0, s.Min, 0)
	require.InDelta(9.0, s.Max, 0)

	require.Equal(Summary{}, Summarize([]float64{}))
	require.Equal(Summary{Count: 1, Mean: 3, Min: 3, Max: 3}, Summarize([]int32{3}))

	all := SummarizeAll([][]int32{{1, 3}, {-1, -1}})
	require.Len(all, 2)
	require.InDelta(2.0, all[0].Mean, 1e-9)
	require.InDelta(0.0, all[1].StdDev, 1e-9)
}
