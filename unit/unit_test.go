package unit

import (
	"bytes"
	"context"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/arloliu/go-acq/acq"
	"github.com/arloliu/go-acq/internal/simunit"
	"github.com/arloliu/go-acq/logger"
	"github.com/arloliu/go-acq/status"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.SetLevel(logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	os.Exit(m.Run())
}

func testConfig(t *testing.T, d acq.Dialer, opts ...ConfigOption) *Config {
	t.Helper()

	base := []ConfigOption{
		WithDialer(d),
		WithPollInterval(5 * time.Millisecond),
		WithConnectTimeout(time.Second),
		WithLogger(logger.NewDiscard()),
	}
	cfg, err := NewConfig(append(base, opts...)...)
	require.NoError(t, err)

	return cfg
}

func openSim(t *testing.T, simOpts simunit.Options, opts ...ConfigOption) (*Unit, *simunit.Unit) {
	t.Helper()

	sim := simunit.New(simOpts)
	t.Cleanup(sim.Close)

	u, err := Open(context.Background(), sim.Name(), testConfig(t, sim, opts...))
	require.NoError(t, err)
	t.Cleanup(func() { _ = u.Close() })

	// edges are relative to the first record
	require.Eventually(t, func() bool {
		_, ok := u.Status()
		return ok
	}, time.Second, time.Millisecond)

	return u, sim
}

// slowDialer never completes dials to one port.
type slowDialer struct {
	*simunit.Unit
	port int
}

func (d slowDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	_, p, _ := net.SplitHostPort(address)
	if port, _ := strconv.Atoi(p); port == d.port {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	return d.Unit.DialContext(ctx, network, address)
}

func TestParseSiteList(t *testing.T) {
	tests := []struct {
		in   string
		want map[int]string
	}{
		{"13,1=430,2=431", map[int]string{1: "430", 2: "431"}},
		{"9,1=ao420,3=dio432 ", map[int]string{1: "ao420", 3: "dio432"}},
		{"SITELIST 13,5=480", map[int]string{5: "480"}},
		{"13", map[int]string{}},
		{"x=1,2=", map[int]string{2: ""}},
		{"", map[int]string{}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			require.Equal(t, tt.want, ParseSiteList(tt.in))
		})
	}
}

func TestOpen_DiscoversSites(t *testing.T) {
	require := require.New(t)

	u, sim := openSim(t, simunit.Options{})
	require.Equal("13,1=430,2=431", sim.Knob(0, "SITELIST"))

	require.Equal([]int{0, 1, 2}, u.Sites())
	require.Equal("430", u.Model(1))
	require.Equal("431", u.Model(2))

	s0, err := u.Site(0)
	require.NoError(err)
	s1, err := u.Site(1)
	require.NoError(err)
	s2, err := u.Site(2)
	require.NoError(err)

	require.True(s0.Knobs().Has("SITELIST"))
	require.False(s0.Knobs().Has("AI_CAL_ESLO"))
	require.True(s1.Knobs().Has("shot"))
	require.True(s2.Knobs().Has("AI_CAL_ESLO"))
	require.False(s2.Knobs().Has("shot"))

	_, err = u.Site(3)
	require.ErrorIs(err, acq.ErrNoSite)

	require.Equal(status.Idle, u.State())
}

func TestOpen_DeadSite(t *testing.T) {
	u, _ := openSim(t, simunit.Options{
		Sites:     map[int]string{1: "430", 2: "431", 3: "430"},
		DeadSites: []int{2},
	})

	require.Equal(t, []int{0, 1, 3}, u.Sites())
}

func TestOpen_SiteJoinTimeout(t *testing.T) {
	require := require.New(t)

	sim := simunit.New(simunit.Options{})
	defer sim.Close()

	d := slowDialer{Unit: sim, port: sim.Ports().Site(2)}
	cfg := testConfig(t, d, WithSiteJoinTimeout(50*time.Millisecond))

	start := time.Now()
	u, err := Open(context.Background(), sim.Name(), cfg)
	require.NoError(err)
	defer u.Close()

	require.Less(time.Since(start), 2*time.Second)
	require.Equal([]int{0, 1}, u.Sites())
}

func TestOpen_Refused(t *testing.T) {
	sim := simunit.New(simunit.Options{})
	sim.Close()

	_, err := Open(context.Background(), sim.Name(), testConfig(t, sim))
	require.ErrorIs(t, err, acq.ErrConnection)
}

func TestUnit_CachedQueries(t *testing.T) {
	require := require.New(t)

	u, sim := openSim(t, simunit.Options{WordSize: 4})
	ctx := context.Background()

	nchan, err := u.NChan(ctx)
	require.NoError(err)
	require.Equal(8, nchan)

	ws, err := u.WordSize(ctx)
	require.NoError(err)
	require.Equal(4, ws)

	// cached: later knob changes are not observed
	sim.SetKnob(0, "NCHAN", "16")
	nchan, err = u.NChan(ctx)
	require.NoError(err)
	require.Equal(8, nchan)

	// not cached
	remote, err := u.RemoteDemux(ctx)
	require.NoError(err)
	require.False(remote)
	sim.SetKnob(0, "data_demux", "1")
	remote, err = u.RemoteDemux(ctx)
	require.NoError(err)
	require.True(remote)
}

func TestUnit_Shot(t *testing.T) {
	require := require.New(t)

	u, sim := openSim(t, simunit.Options{PreSamples: 100, PostSamples: 400})
	ctx := context.Background()

	shot, err := u.ShotNumber(ctx)
	require.NoError(err)
	require.Equal(0, shot)

	require.NoError(u.ArmAndWait(ctx))
	require.Equal(status.Arm, u.State())

	require.NoError(u.SoftTrigger(ctx))
	require.NoError(u.Monitor().WaitStopped(ctx))
	require.Equal(100, u.PreSamples())
	require.Equal(400, u.PostSamples())

	require.Eventually(func() bool {
		n, err := u.ShotNumber(ctx)
		return err == nil && n == 1
	}, time.Second, 5*time.Millisecond)

	// capture length from the status record
	capture, err := u.ReadChannels(ctx, ReadOptions{Channels: []int{2}})
	require.NoError(err)
	require.Len(capture.Channel(2), 500)
	require.Equal(sim.Sample(2, 499), capture.Channel(2)[499])

	require.NoError(u.SetShotNumber(ctx, 42))
	require.Equal("42", sim.Knob(1, "shot"))
}

func TestUnit_Abort(t *testing.T) {
	u, sim := openSim(t, simunit.Options{})
	ctx := context.Background()

	require.NoError(t, u.ArmAndWait(ctx))
	require.NoError(t, u.Abort(ctx))
	require.NoError(t, u.Monitor().WaitStopped(ctx))
	require.Equal(t, 0, sim.State())
}

func TestUnit_ReadChannels(t *testing.T) {
	const nsam = 300

	tests := []struct {
		name        string
		remoteDemux bool
		opts        ReadOptions
		method      CollectMethod
		channels    []int
		bulkPulls   int
	}{
		{"subset remote demux", true, ReadOptions{Channels: []int{3, 6}}, DirectChannels, []int{3, 6}, 0},
		{"all bulk", false, ReadOptions{}, Bulk, []int{1, 2, 3, 4, 5, 6, 7, 8}, 1},
		{"subset local demux", false, ReadOptions{Channels: []int{8, 1}}, BulkDemuxSelect, []int{8, 1}, 1},
		{"all local demux", false, ReadOptions{LocalDemux: true}, BulkDemuxAll, []int{1, 2, 3, 4, 5, 6, 7, 8}, 1},
		{"all remote demux", true, ReadOptions{}, DirectChannels, []int{1, 2, 3, 4, 5, 6, 7, 8}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			u, sim := openSim(t, simunit.Options{PostSamples: nsam, RemoteDemux: tt.remoteDemux, DataChunk: 333})

			opts := tt.opts
			opts.Samples = nsam
			capture, err := u.ReadChannels(context.Background(), opts)
			require.NoError(err)

			require.Equal(tt.method, capture.Method)
			require.Equal(tt.channels, capture.Channels)
			require.Equal(8, capture.NChan)
			require.Equal(tt.bulkPulls, sim.DataPulls(acq.BulkChannel))

			if tt.method == Bulk {
				require.Nil(capture.Data)
				require.Len(capture.Raw, nsam*8)
				require.Equal(sim.Sample(3, 10), capture.Raw[10*8+2])

				return
			}

			require.Len(capture.Data, len(tt.channels))
			for i, ch := range tt.channels {
				want := make([]int32, nsam)
				for j := range want {
					want[j] = sim.Sample(ch, j)
				}
				require.Empty(cmp.Diff(want, capture.Data[i]), "channel %d", ch)

				if tt.method == DirectChannels {
					require.Equal(1, sim.DataPulls(ch))
				} else {
					require.Equal(0, sim.DataPulls(ch))
				}
			}
		})
	}
}

func TestUnit_ReadChannelsErrors(t *testing.T) {
	u, _ := openSim(t, simunit.Options{ShortData: 100})
	ctx := context.Background()

	_, err := u.ReadChannels(ctx, ReadOptions{Channels: []int{9}, Samples: 10})
	require.ErrorIs(t, err, acq.ErrInvalidChannel)

	_, err = u.ReadChannels(ctx, ReadOptions{})
	require.ErrorIs(t, err, acq.ErrDataUnavailable, "no capture length yet")

	_, err = u.ReadChannels(ctx, ReadOptions{Samples: 1000})
	require.ErrorIs(t, err, acq.ErrDataUnavailable)
}

func TestUnit_PartialFallback(t *testing.T) {
	u, sim := openSim(t, simunit.Options{ShortData: 8*2*10 + 3}, WithPartialFallback(true))

	capture, err := u.ReadChannels(context.Background(), ReadOptions{Channels: []int{1}, Samples: 1000})
	require.NoError(t, err)
	require.Len(t, capture.Channel(1), 10)
	require.Equal(t, sim.Sample(1, 9), capture.Channel(1)[9])
}

func TestUnit_ReadChan(t *testing.T) {
	u, sim := openSim(t, simunit.Options{PostSamples: 64})

	got, err := u.ReadChan(context.Background(), 5, 64)
	require.NoError(t, err)
	require.Equal(t, sim.Sample(5, 63), got[63])
	require.Equal(t, 1, sim.DataPulls(5))
}

func TestUnit_Calibration(t *testing.T) {
	require := require.New(t)

	u, _ := openSim(t, simunit.Options{})
	ctx := context.Background()

	cal, err := u.Calibration(ctx)
	require.NoError(err)
	require.Equal(8, cal.NChan())
	for ch := 1; ch <= 8; ch++ {
		require.InDelta(simunit.ESLO(ch), cal.Slope[ch-1], 1e-12)
		require.InDelta(simunit.EOFF(ch), cal.Offset[ch-1], 1e-12)
	}

	again, err := u.Calibration(ctx)
	require.NoError(err)
	require.Same(cal, again)

	volts, err := cal.Volts(2, []int32{0, 1000, -1000})
	require.NoError(err)
	require.InDeltaSlice([]float64{-0.02, 0.58, -0.62}, volts, 1e-9)

	_, err = cal.Volts(9, []int32{1})
	require.ErrorIs(err, acq.ErrInvalidChannel)
}

func TestUnit_LoadAWG(t *testing.T) {
	require := require.New(t)

	u, sim := openSim(t, simunit.Options{})
	ctx := context.Background()

	wave := bytes.Repeat([]byte{0x01, 0x80}, 512)
	require.NoError(u.LoadAWG(ctx, bytes.NewReader(wave)))

	require.Eventually(func() bool {
		return len(sim.AWGUploads()) == 1 && sim.Knob(1, "AWG_ACTIVE") == "1"
	}, time.Second, time.Millisecond)
	require.Equal(wave, sim.AWGUploads()[0])

	err := u.LoadAWG(ctx, bytes.NewReader(wave))
	require.ErrorIs(err, acq.ErrBusy)

	var busy *acq.BusyError
	require.ErrorAs(err, &busy)
	require.Equal("AWG_ACTIVE", busy.Knob)
	require.Equal("1", busy.Value)

	sim.SetKnob(1, "AWG_ACTIVE", "0")
	require.NoError(u.LoadAWG(ctx, bytes.NewReader(wave)))
}

func TestUnit_Close(t *testing.T) {
	require := require.New(t)

	u, _ := openSim(t, simunit.Options{})
	require.NoError(u.Close())
	require.NoError(u.Close())
	require.True(u.IsClosed())

	select {
	case <-u.Monitor().Done():
	case <-time.After(time.Second):
		t.Fatal("monitor still running")
	}

	_, err := u.Site(0)
	require.ErrorIs(err, acq.ErrNoSite)
}

func TestChooseMethod(t *testing.T) {
	require := require.New(t)

	require.Equal(DirectChannels, ChooseMethod(true, true, false))
	require.Equal(Bulk, ChooseMethod(false, false, false))
	require.Equal(BulkDemuxSelect, ChooseMethod(true, false, false))
	require.Equal(BulkDemuxSelect, ChooseMethod(true, false, true))
	require.Equal(BulkDemuxAll, ChooseMethod(false, false, true))
	require.Equal(DirectChannels, ChooseMethod(false, true, true))
	require.Equal("bulk-demux-all", BulkDemuxAll.String())
}

func TestRegistry(t *testing.T) {
	require := require.New(t)

	a := simunit.New(simunit.Options{Name: "acq1001_a"})
	b := simunit.New(simunit.Options{Name: "acq1001_b"})
	bus := simunit.NewNetwork(a, b)
	defer bus.Close()

	reg := NewRegistry(testConfig(t, bus))
	ctx := context.Background()

	ua, err := reg.Open(ctx, "acq1001_a")
	require.NoError(err)
	again, err := reg.Open(ctx, "acq1001_a")
	require.NoError(err)
	require.Same(ua, again)

	_, err = reg.Open(ctx, "acq1001_b")
	require.NoError(err)
	require.Equal([]string{"acq1001_a", "acq1001_b"}, reg.Hosts())
	require.Equal(2, reg.Len())

	got, ok := reg.Get("acq1001_b")
	require.True(ok)
	require.Equal("acq1001_b", got.Host())

	require.NoError(reg.Close("acq1001_a"))
	require.True(ua.IsClosed())
	_, ok = reg.Get("acq1001_a")
	require.False(ok)

	// reopening after close yields a fresh unit
	ua2, err := reg.Open(ctx, "acq1001_a")
	require.NoError(err)
	require.NotSame(ua, ua2)

	require.NoError(reg.CloseAll())
	require.Zero(reg.Len())
	require.True(ua2.IsClosed())

	_, err = reg.Open(ctx, "nosuchhost")
	require.ErrorIs(err, acq.ErrConnection)
}
