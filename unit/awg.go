package unit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/arloliu/go-acq/acq"
	"github.com/arloliu/go-acq/command"
)

// LoadAWG streams a waveform to the AWG port of the unit.
//
// It fails with a *acq.BusyError when the unit reports waveform playback in
// progress; the caller may retry after aborting the playback.
func (u *Unit) LoadAWG(ctx context.Context, payload io.Reader) error {
	k := u.cfg.knobs

	s, err := u.Site(k.AWGSite)
	if err != nil {
		return err
	}
	resp, err := s.Get(ctx, k.AWGActive)
	if err != nil {
		return err
	}
	if v := command.Value(resp); v != "" && v != "0" {
		return &acq.BusyError{Action: "load awg", Knob: k.AWGActive, Value: v}
	}

	addr := net.JoinHostPort(u.host, strconv.Itoa(u.cfg.ports.AWG))
	conn, err := acq.Dial(ctx, u.cfg.dialer, u.host, u.cfg.ports.AWG, u.cfg.connectTimeout)
	if err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	n, err := io.Copy(conn, payload)
	if err != nil {
		_ = conn.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("load awg: %w", ctxErr)
		}

		return acq.NewConnectionError("awg", addr, err)
	}

	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return acq.NewConnectionError("awg", addr, err)
	}

	u.logger.Debug("awg loaded", "bytes", n)

	return nil
}
