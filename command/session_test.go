package command

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/arloliu/go-acq/acq"
	"github.com/arloliu/go-acq/internal/simunit"
	"github.com/arloliu/go-acq/logger"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.SetLevel(logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	os.Exit(m.Run())
}

func dialSim(t *testing.T, sim *simunit.Unit, site int, opts ...ConfigOption) *Session {
	t.Helper()

	opts = append([]ConfigOption{WithDialer(sim), WithSite(site)}, opts...)
	cfg, err := NewConfig(sim.Name(), sim.Ports().Site(site), opts...)
	require.NoError(t, err)

	sess, err := Dial(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })

	return sess
}

func TestSession_DiscoverAndGet(t *testing.T) {
	require := require.New(t)

	sim := simunit.New(simunit.Options{})
	defer sim.Close()

	sess := dialSim(t, sim, 0)
	ctx := context.Background()

	require.True(sess.Knobs().Has("NCHAN"))
	require.True(sess.Knobs().Has("SIG_SRC_TRG_0"))
	require.Equal(0, sess.Site())

	nchan, err := sess.GetInt(ctx, "NCHAN")
	require.NoError(err)
	require.Equal(sim.NChan(), nchan)

	src, err := sess.Get(ctx, "SIG_SRC_TRG_0")
	require.NoError(err)
	require.Equal("EXT", src)

	post, err := sess.GetFloat(ctx, "TRANS_ACT_POST")
	require.NoError(err)
	require.InDelta(1000, post, 0)
}

func TestSession_SetGetRoundTrip(t *testing.T) {
	sim := simunit.New(simunit.Options{})
	defer sim.Close()

	sess := dialSim(t, sim, 0)
	ctx := context.Background()

	values := []any{"INT", 42, 3.5, "a b"}
	for _, v := range values {
		t.Run(fmt.Sprint(v), func(t *testing.T) {
			require := require.New(t)

			_, err := sess.Set(ctx, "SIG_SRC_TRG_1", v)
			require.NoError(err)

			got, err := sess.Get(ctx, "SIG_SRC_TRG_1")
			require.NoError(err)
			require.Equal(fmt.Sprint(v), got)
			require.Equal(fmt.Sprint(v), sim.Knob(0, "SIG.SRC.TRG.1"))
		})
	}
}

func TestSession_FragmentedResponses(t *testing.T) {
	require := require.New(t)

	// three bytes per write forces the prompt to be reassembled across reads
	sim := simunit.New(simunit.Options{CommandChunk: 3})
	defer sim.Close()

	sess := dialSim(t, sim, 1, WithReadBufferSize(2))
	ctx := context.Background()

	for range 5 {
		model, err := sess.Get(ctx, "MODEL")
		require.NoError(err)
		require.Equal("430", model)
	}

	require.Equal(uint64(7), sess.Metrics().RequestCount.Load())
	require.Zero(sess.Metrics().ErrCount.Load())
	require.NotZero(sess.Metrics().BytesRecv.Load())
}

func TestSession_UnknownKnob(t *testing.T) {
	require := require.New(t)

	sim := simunit.New(simunit.Options{})
	defer sim.Close()

	sess := dialSim(t, sim, 0)
	before := sess.Metrics().RequestCount.Load()

	_, err := sess.Get(context.Background(), "NO_SUCH_KNOB")
	require.ErrorIs(err, acq.ErrUnknownKnob)

	_, err = sess.Set(context.Background(), "NO_SUCH_KNOB", 1)
	var unknown *acq.UnknownKnobError
	require.ErrorAs(err, &unknown)
	require.Equal("NO_SUCH_KNOB", unknown.Name)

	// fails fast, nothing is sent
	require.Equal(before, sess.Metrics().RequestCount.Load())
}

func TestSession_Trace(t *testing.T) {
	sim := simunit.New(simunit.Options{})
	defer sim.Close()

	mockLogger := logger.NewMockLogger()
	mockLogger.On("With", "addr", sim.Name(), "site", 0).Return(mockLogger)
	mockLogger.On("Debug", "command session opened", []any{"knobs", 10}).Return()
	mockLogger.On("Debug", "close command session", []any(nil)).Return()
	mockLogger.On("Info", "command trace", []any{"tx", "prompt on", "rx", ""}).Return()
	mockLogger.On("Info", "command trace", []any{"tx", "help", "rx", "NCHAN\nSIG.SRC.TRG.0\nSIG.SRC.TRG.1\nSITELIST\nTRANS_ACT.POST\ndata32\ndata_demux\nset_abort\nset_arm\nsoft_trigger"}).Return()
	mockLogger.On("Info", "command trace", []any{"tx", "NCHAN", "rx", "8"}).Return()

	sess := dialSim(t, sim, 0, WithTrace(true), WithLogger(mockLogger))

	_, err := sess.Get(context.Background(), "NCHAN")
	require.NoError(t, err)
	require.NoError(t, sess.Close())

	mockLogger.AssertExpectations(t)
}

// silentServer accepts requests and never answers with a prompt.
func silentServer(t *testing.T) (host string, port int) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				r := bufio.NewReader(conn)
				for {
					line, err := r.ReadString('\n')
					if err != nil {
						return
					}
					switch strings.TrimSpace(line) {
					case "prompt on":
						_, _ = conn.Write([]byte("acq400.0 1 >"))
					case "help":
						_, _ = conn.Write([]byte("NCHAN\nacq400.0 2 >"))
					default:
						// desync: response without prompt
						_, _ = conn.Write([]byte("32\n"))
					}
				}
			}()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)

	return addr.IP.String(), addr.Port
}

func TestSession_DesyncOnCancel(t *testing.T) {
	require := require.New(t)

	host, port := silentServer(t)
	cfg, err := NewConfig(host, port)
	require.NoError(err)

	sess, err := Dial(context.Background(), cfg)
	require.NoError(err)
	defer sess.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = sess.Get(ctx, "NCHAN")
	require.ErrorIs(err, acq.ErrProtocolDesync)
	require.ErrorIs(err, context.DeadlineExceeded)
	require.Less(time.Since(start), 2*time.Second)

	_, err = sess.Get(context.Background(), "NCHAN")
	require.ErrorIs(err, acq.ErrProtocolDesync)
	require.Equal(uint64(1), sess.Metrics().ErrCount.Load())
}

func TestSession_CloseUnblocksRequest(t *testing.T) {
	require := require.New(t)

	host, port := silentServer(t)
	cfg, err := NewConfig(host, port)
	require.NoError(err)

	sess, err := Dial(context.Background(), cfg)
	require.NoError(err)

	errCh := make(chan error, 1)
	go func() {
		_, err := sess.Get(context.Background(), "NCHAN")
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(sess.Close())
	require.NoError(sess.Close())

	select {
	case err := <-errCh:
		require.ErrorIs(err, acq.ErrConnClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("request still blocked after close")
	}
}

func TestDial_Refused(t *testing.T) {
	sim := simunit.New(simunit.Options{DeadSites: []int{2}})
	defer sim.Close()

	cfg, err := NewConfig(sim.Name(), sim.Ports().Site(2), WithDialer(sim))
	require.NoError(t, err)

	_, err = Dial(context.Background(), cfg)
	require.ErrorIs(t, err, acq.ErrConnection)

	var connErr *acq.ConnectionError
	require.True(t, errors.As(err, &connErr))
}

func TestNewConfig_Validation(t *testing.T) {
	_, err := NewConfig("", 4220)
	require.Error(t, err)

	_, err = NewConfig("uut", 0)
	require.Error(t, err)

	_, err = NewConfig("uut", 4220, WithPrompt("("))
	require.Error(t, err)

	_, err = NewConfig("uut", 4220, WithConnectTimeout(0))
	require.Error(t, err)

	cfg, err := NewConfig("uut", 4221, WithSite(1), WithPromptCommand(""), WithListCommand("knobs"))
	require.NoError(t, err)
	require.Equal(t, 1, cfg.Site())
	require.Equal(t, "uut", cfg.Host())
	require.Equal(t, 4221, cfg.Port())
}
