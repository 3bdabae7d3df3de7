package status

import (
	"bufio"
	"context"
	"errors"
	"io"
	"iter"
	"net"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/arloliu/go-acq/acq"
)

// Feed is one persistent connection to a status port.
type Feed struct {
	rc      io.ReadCloser
	reader  *bufio.Reader
	addr    string
	closing atomic.Bool
}

// Dial connects to the status port at host:port.
func Dial(ctx context.Context, host string, port int, cfg *Config) (*Feed, error) {
	if cfg == nil {
		return nil, acq.ErrConfigNil
	}

	conn, err := acq.Dial(ctx, cfg.dialer, host, port, cfg.connectTimeout)
	if err != nil {
		return nil, err
	}

	return NewFeed(conn, net.JoinHostPort(host, strconv.Itoa(port))), nil
}

// NewFeed wraps an already open stream, such as a recorded feed being
// replayed. name identifies the source in errors.
func NewFeed(rc io.ReadCloser, name string) *Feed {
	return &Feed{rc: rc, reader: bufio.NewReader(rc), addr: name}
}

// Addr returns the name of the feed source.
func (f *Feed) Addr() string { return f.addr }

// Poll blocks until one complete line has been received and returns it
// without the line terminator.
//
// After Close it fails with acq.ErrConnClosed; any other failure, including
// the remote side closing the connection, is a *acq.ConnectionError.
func (f *Feed) Poll() (string, error) {
	line, err := f.reader.ReadString('\n')
	if err != nil {
		if f.closing.Load() {
			return "", acq.ErrConnClosed
		}
		if errors.Is(err, io.EOF) && line != "" {
			// last unterminated line before the remote closed
			return strings.TrimRight(line, "\r"), nil
		}

		return "", acq.NewConnectionError("status", f.addr, err)
	}

	return strings.TrimRight(line, "\r\n"), nil
}

// Records returns the lazy, unbounded sequence of parsed records. Lines that
// do not parse are skipped. The sequence ends after yielding the first error.
func (f *Feed) Records() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for {
			line, err := f.Poll()
			if err != nil {
				yield(Record{}, err)
				return
			}

			rec, ok := ParseRecord(line)
			if !ok {
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// Close closes the connection, unblocking a pending Poll.
func (f *Feed) Close() error {
	if !f.closing.CompareAndSwap(false, true) {
		return nil
	}

	err := f.rc.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}

	return err
}
