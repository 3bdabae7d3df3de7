package acq

import (
	"context"
	"net"
	"strconv"
	"time"
)

// BulkChannel is the data channel number of the multiplexed bulk port.
const BulkChannel = 0

// Default TCP ports of a unit.
const (
	DefaultSite0Port  = 4220
	DefaultStatusPort = 2235
	DefaultData0Port  = 53000
	DefaultAWGPort    = 54201
)

// Ports is the TCP port map of a unit.
type Ports struct {
	// Site0 is the command port of site 0. Site N listens on Site0+N.
	Site0 int `yaml:"site0"`
	// Status is the status feed port.
	Status int `yaml:"status"`
	// Data0 is the bulk data port. Channel N streams from Data0+N.
	Data0 int `yaml:"data0"`
	// AWG accepts one waveform upload per connection.
	AWG int `yaml:"awg"`
}

// DefaultPorts returns the factory port map.
func DefaultPorts() Ports {
	return Ports{
		Site0:  DefaultSite0Port,
		Status: DefaultStatusPort,
		Data0:  DefaultData0Port,
		AWG:    DefaultAWGPort,
	}
}

// Site returns the command port of site n.
func (p Ports) Site(n int) int { return p.Site0 + n }

// Data returns the data port of channel ch; BulkChannel yields the bulk port.
func (p Ports) Data(ch int) int { return p.Data0 + ch }

// Merge returns p with every non-zero field of o applied.
func (p Ports) Merge(o Ports) Ports {
	if o.Site0 != 0 {
		p.Site0 = o.Site0
	}
	if o.Status != 0 {
		p.Status = o.Status
	}
	if o.Data0 != 0 {
		p.Data0 = o.Data0
	}
	if o.AWG != 0 {
		p.AWG = o.AWG
	}

	return p
}

// Dialer opens stream connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// DefaultDialer returns a TCP dialer with keepalive enabled.
func DefaultDialer() Dialer {
	return &net.Dialer{KeepAlive: 30 * time.Second}
}

// Dial connects to host:port with the given timeout. Failures are returned as
// *ConnectionError.
func Dial(ctx context.Context, d Dialer, host string, port int, timeout time.Duration) (net.Conn, error) {
	if d == nil {
		d = DefaultDialer()
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))

	dialCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	conn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, NewConnectionError("dial", addr, err)
	}

	return conn, nil
}
