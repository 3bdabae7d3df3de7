package data

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/arloliu/go-acq/acq"
	"github.com/arloliu/go-acq/internal/simunit"
	"github.com/arloliu/go-acq/logger"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.SetLevel(logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	os.Exit(m.Run())
}

// chunkReader returns at most chunk bytes per Read. A zero entry in script
// produces one zero-length read.
type chunkReader struct {
	data   []byte
	chunk  int
	script []int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.script) > 0 {
		n := r.script[0]
		r.script = r.script[1:]
		if n == 0 {
			return 0, nil
		}
		n = min(n, len(p), len(r.data))
		copy(p, r.data[:n])
		r.data = r.data[n:]

		return n, nil
	}

	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := min(r.chunk, len(p), len(r.data))
	copy(p, r.data[:n])
	r.data = r.data[n:]

	return n, nil
}

func (r *chunkReader) Close() error { return nil }

func ramp(n int) []int32 {
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(i - n/2)
	}

	return out
}

func quietConfig(t *testing.T, opts ...ConfigOption) *Config {
	t.Helper()

	cfg, err := NewConfig(append([]ConfigOption{WithLogger(logger.NewDiscard())}, opts...)...)
	require.NoError(t, err)

	return cfg
}

func TestClient_ReadChunked(t *testing.T) {
	for _, ws := range []int{1, 2, 4} {
		for _, count := range []int{1, 5, 7, 100} {
			want := ramp(count)
			raw, err := Encode(want, ws)
			require.NoError(t, err)

			// trailing bytes beyond the request are left unread
			raw = append(raw, bytes.Repeat([]byte{0x7f}, 13)...)

			c := NewClient(&chunkReader{data: raw, chunk: 10}, "chunked", quietConfig(t))
			got, err := c.Read(context.Background(), count, ws)
			require.NoError(t, err)
			require.Len(t, got, count)
			require.Empty(t, cmp.Diff(want, got), "ws=%d count=%d", ws, count)
		}
	}
}

func TestClient_ReadUntilClose(t *testing.T) {
	require := require.New(t)

	want := ramp(33)
	raw, err := Encode(want, 2)
	require.NoError(err)
	raw = append(raw, 0x01) // dangling half word

	c := NewClient(&chunkReader{data: raw, chunk: 10}, "all", quietConfig(t))
	got, err := c.Read(context.Background(), 0, 2)
	require.NoError(err)
	require.Equal(want, got)
	require.Equal(uint64(len(raw)), c.Metrics().BytesRecv.Load())
}

func TestClient_ShortData(t *testing.T) {
	raw, err := Encode(ramp(10), 4)
	require.NoError(t, err)
	raw = raw[:38]

	t.Run("fail", func(t *testing.T) {
		c := NewClient(&chunkReader{data: bytes.Clone(raw), chunk: 10}, "short", quietConfig(t))
		_, err := c.Read(context.Background(), 10, 4)
		require.ErrorIs(t, err, acq.ErrDataUnavailable)

		var dataErr *acq.DataUnavailableError
		require.True(t, errors.As(err, &dataErr))
		require.Equal(t, 40, dataErr.Want)
		require.Equal(t, 38, dataErr.Got)
		require.Equal(t, uint64(1), c.Metrics().ShortCount.Load())
	})

	t.Run("fallback", func(t *testing.T) {
		cfg := quietConfig(t, WithPartialFallback(true))
		c := NewClient(&chunkReader{data: bytes.Clone(raw), chunk: 10}, "short", cfg)
		got, err := c.Read(context.Background(), 10, 4)
		require.NoError(t, err)
		require.Equal(t, ramp(10)[:9], got)
	})
}

func TestClient_InvalidWordSize(t *testing.T) {
	c := NewClient(&chunkReader{}, "ws", quietConfig(t))
	_, err := c.Read(context.Background(), 1, 3)
	require.ErrorIs(t, err, acq.ErrInvalidWordSize)
}

func TestClient_CloseUnblocksRead(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	c := NewClient(pr, "blocked", quietConfig(t))

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Read(context.Background(), 100, 2)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, c.Close())

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, acq.ErrConnClosed)
	case <-time.After(time.Second):
		t.Fatal("read still blocked after Close")
	}
}

func TestClient_ContextCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	c := NewClient(pr, "blocked", quietConfig(t))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.ReadRaw(ctx, 100)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_Stream(t *testing.T) {
	require := require.New(t)

	want := ramp(10)
	raw, err := Encode(want, 2)
	require.NoError(err)

	// 4 samples, 4 samples, then 1 sample and a zero-length read, then 1 left
	r := &chunkReader{data: raw, chunk: 10, script: []int{6, 2, 8, 2, 0}}
	c := NewClient(r, "live", quietConfig(t))

	var blocks [][]int32
	for block, err := range c.Stream(context.Background(), 4, 2) {
		require.NoError(err)
		blocks = append(blocks, block)
	}

	require.Empty(cmp.Diff([][]int32{want[0:4], want[4:8], want[8:9], want[9:10]}, blocks))
}

func TestClient_StreamStopEarly(t *testing.T) {
	raw, err := Encode(ramp(100), 1)
	require.NoError(t, err)

	c := NewClient(&chunkReader{data: raw, chunk: 7}, "live", quietConfig(t))

	n := 0
	for block, err := range c.Stream(context.Background(), 10, 1) {
		require.NoError(t, err)
		require.Len(t, block, 10)
		n++
		if n == 3 {
			break
		}
	}
	require.Equal(t, 3, n)
}

func TestClient_SimulatedPorts(t *testing.T) {
	sim := simunit.New(simunit.Options{PostSamples: 300, DataChunk: 10})
	defer sim.Close()

	cfg := quietConfig(t, WithDialer(sim))

	t.Run("channel", func(t *testing.T) {
		require := require.New(t)

		c, err := Dial(context.Background(), sim.Name(), sim.Ports().Data(3), cfg)
		require.NoError(err)
		defer c.Close()

		got, err := c.Read(context.Background(), sim.Samples(), 2)
		require.NoError(err)
		for i, v := range got {
			require.Equal(sim.Sample(3, i), v)
		}
	})

	t.Run("bulk", func(t *testing.T) {
		require := require.New(t)

		c, err := Dial(context.Background(), sim.Name(), sim.Ports().Data(acq.BulkChannel), cfg)
		require.NoError(err)
		defer c.Close()

		raw, err := c.Read(context.Background(), 0, 2)
		require.NoError(err)
		require.Len(raw, sim.Samples()*sim.NChan())

		chans, err := Demux(raw, sim.NChan())
		require.NoError(err)
		for ch := 1; ch <= sim.NChan(); ch++ {
			require.Equal(sim.Sample(ch, 7), chans[ch-1][7])
		}
	})
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		ws   int
		want []int32
	}{
		{"int8", []byte{0x01, 0xff, 0x80}, 1, []int32{1, -1, -128}},
		{"int16", []byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x80}, 2, []int32{1, -1, -32768}},
		{"int32", []byte{0xfe, 0xff, 0xff, 0xff, 0x00, 0x00, 0x01, 0x00}, 4, []int32{-2, 65536}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.raw, tt.ws)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)

			back, err := Encode(got, tt.ws)
			require.NoError(t, err)
			require.Equal(t, tt.raw, back)
		})
	}

	_, err := Decode([]byte{1, 2, 3}, 2)
	require.Error(t, err)
}
