package command

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	require := require.New(t)

	r := NewRegistry("NCHAN\nSIG.SRC.TRG.0  data32\n\tset_arm\n")
	require.Equal(4, r.Len())
	require.Equal([]string{"NCHAN", "SIG_SRC_TRG_0", "data32", "set_arm"}, r.Names())

	wire, ok := r.Lookup("SIG_SRC_TRG_0")
	require.True(ok)
	require.Equal("SIG.SRC.TRG.0", wire)

	wire, ok = r.Lookup("SIG.SRC.TRG.0")
	require.True(ok)
	require.Equal("SIG.SRC.TRG.0", wire)

	require.True(r.Has("NCHAN"))
	require.False(r.Has("nchan"))
	require.False(r.Has("SIG_SRC_TRG_9"))
}

func TestRegistry_Empty(t *testing.T) {
	r := NewRegistry("   \n")
	require.Zero(t, r.Len())
	require.Empty(t, r.Names())
}

func TestValue(t *testing.T) {
	tests := map[string]string{
		"":                    "",
		"32":                  "32",
		"  1\n":               "1",
		"SIG:SRC:TRG:0 EXT":   "EXT",
		"TRANS_ACT:POST 5000": "5000",
	}
	for in, want := range tests {
		require.Equal(t, want, Value(in), in)
	}
}
