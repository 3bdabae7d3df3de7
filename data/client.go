package data

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"
	"net"
	"strconv"
	"sync/atomic"

	"github.com/arloliu/go-acq/acq"
	"github.com/arloliu/go-acq/internal/util"
	"github.com/arloliu/go-acq/logger"
)

// Client pulls raw samples from one data port.
//
// A read blocked in one goroutine is released by Close from another, or by
// canceling its context; both end the client.
type Client struct {
	cfg     *Config
	rc      io.ReadCloser
	addr    string
	logger  logger.Logger
	readBuf []byte
	closing atomic.Bool
	metrics ClientMetrics
}

// Dial connects to the data port at host:port.
func Dial(ctx context.Context, host string, port int, cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, acq.ErrConfigNil
	}

	conn, err := acq.Dial(ctx, cfg.dialer, host, port, cfg.connectTimeout)
	if err != nil {
		return nil, err
	}

	return NewClient(conn, net.JoinHostPort(host, strconv.Itoa(port)), cfg), nil
}

// NewClient wraps an open stream, such as a capture file. name identifies the
// source in errors and logs. A nil cfg selects the defaults.
func NewClient(rc io.ReadCloser, name string, cfg *Config) *Client {
	if cfg == nil {
		cfg, _ = NewConfig()
	}

	return &Client{
		cfg:     cfg,
		rc:      rc,
		addr:    name,
		logger:  cfg.logger.With("data", name),
		readBuf: make([]byte, cfg.readBufferSize),
	}
}

// Addr returns the name of the data source.
func (c *Client) Addr() string { return c.addr }

// Metrics returns the client counters.
func (c *Client) Metrics() *ClientMetrics { return &c.metrics }

// Read returns count samples of wordSize bytes each, sign-extended to int32.
//
// If count is zero or negative, Read consumes the port until the remote side
// closes it and decodes every whole sample received.
//
// If the port closes before count samples arrive, Read fails with a
// *acq.DataUnavailableError, or returns the whole samples received when the
// partial fallback is enabled.
func (c *Client) Read(ctx context.Context, count int, wordSize int) ([]int32, error) {
	if !validWordSize(wordSize) {
		return nil, acq.ErrInvalidWordSize
	}

	nbytes := 0
	if count > 0 {
		nbytes = count * wordSize
	}

	raw, err := c.ReadRaw(ctx, nbytes)
	if err != nil {
		return nil, err
	}

	return Decode(raw[:len(raw)/wordSize*wordSize], wordSize)
}

// ReadRaw returns exactly nbytes bytes, or every byte up to the remote close
// when nbytes is zero or negative. Short reads are handled as in Read.
func (c *Client) ReadRaw(ctx context.Context, nbytes int) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() { _ = c.rc.Close() })
	defer stop()

	var buf []byte
	if nbytes > 0 {
		buf = make([]byte, 0, nbytes)
	}

	for nbytes <= 0 || len(buf) < nbytes {
		n, err := c.rc.Read(c.readBuf)
		if n > 0 {
			c.metrics.ReadCount.Add(1)
			c.metrics.BytesRecv.Add(uint64(n))
			buf = append(buf, c.readBuf[:n]...)
		}
		if err == nil {
			continue
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("read %s: %w", c.addr, ctxErr)
		}
		if c.closing.Load() {
			return nil, acq.ErrConnClosed
		}
		if !errors.Is(err, io.EOF) {
			return nil, acq.NewConnectionError("data", c.addr, err)
		}
		if nbytes <= 0 {
			return buf, nil
		}

		return c.short(buf, nbytes)
	}

	return buf[:nbytes], nil
}

func (c *Client) short(buf []byte, nbytes int) ([]byte, error) {
	c.metrics.ShortCount.Add(1)

	if !c.cfg.partialFallback {
		return nil, &acq.DataUnavailableError{Addr: c.addr, Want: nbytes, Got: len(buf)}
	}

	c.logger.Warn("data port closed early, keeping partial data", "want", nbytes, "got", len(buf))

	return util.CloneSlice(buf, 0), nil
}

// Stream returns the lazy sequence of blocks of blockLength samples read from
// a live port. Each element is one fully accumulated block. A zero-length
// read yields the partial block gathered so far and restarts accumulation.
//
// The sequence ends when the remote side closes the port, after yielding the
// trailing partial block if any, or after yielding the first error.
func (c *Client) Stream(ctx context.Context, blockLength int, wordSize int) iter.Seq2[[]int32, error] {
	return func(yield func([]int32, error) bool) {
		if !validWordSize(wordSize) {
			yield(nil, acq.ErrInvalidWordSize)
			return
		}
		if blockLength <= 0 {
			yield(nil, errors.New("block length must be positive"))
			return
		}

		stop := context.AfterFunc(ctx, func() { _ = c.rc.Close() })
		defer stop()

		blockBytes := blockLength * wordSize
		block := make([]byte, 0, blockBytes)

		emit := func() bool {
			whole := len(block) / wordSize * wordSize
			samples, _ := Decode(block[:whole], wordSize)
			block = append(block[:0], block[whole:]...)

			return yield(samples, nil)
		}

		for {
			n, err := c.rc.Read(c.readBuf[:min(len(c.readBuf), blockBytes-len(block))])
			if n > 0 {
				c.metrics.ReadCount.Add(1)
				c.metrics.BytesRecv.Add(uint64(n))
				block = append(block, c.readBuf[:n]...)
			}

			switch {
			case err != nil:
				if errors.Is(err, io.EOF) && !c.closing.Load() && ctx.Err() == nil {
					if len(block) >= wordSize {
						emit()
					}
					return
				}
				yield(nil, c.streamErr(ctx, err))
				return

			case n == 0 && len(block) >= wordSize:
				if !emit() {
					return
				}

			case len(block) == blockBytes:
				if !emit() {
					return
				}
			}
		}
	}
}

func (c *Client) streamErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("stream %s: %w", c.addr, ctxErr)
	}
	if c.closing.Load() {
		return acq.ErrConnClosed
	}

	return acq.NewConnectionError("data", c.addr, err)
}

// Close closes the connection, unblocking a pending read.
func (c *Client) Close() error {
	if !c.closing.CompareAndSwap(false, true) {
		return nil
	}

	if err := c.rc.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}

	return nil
}

// Decode converts little-endian signed words into sign-extended samples.
// The length of raw must be a multiple of wordSize.
func Decode(raw []byte, wordSize int) ([]int32, error) {
	if !validWordSize(wordSize) {
		return nil, acq.ErrInvalidWordSize
	}
	if len(raw)%wordSize != 0 {
		return nil, fmt.Errorf("decode %d bytes: not a multiple of word size %d", len(raw), wordSize)
	}

	out := make([]int32, len(raw)/wordSize)
	for i := range out {
		p := raw[i*wordSize:]
		switch wordSize {
		case 1:
			out[i] = int32(int8(p[0]))
		case 2:
			out[i] = int32(int16(binary.LittleEndian.Uint16(p)))
		case 4:
			out[i] = int32(binary.LittleEndian.Uint32(p))
		}
	}

	return out, nil
}

// Encode is the inverse of Decode. Samples are truncated to wordSize bytes.
func Encode(samples []int32, wordSize int) ([]byte, error) {
	if !validWordSize(wordSize) {
		return nil, acq.ErrInvalidWordSize
	}

	out := make([]byte, len(samples)*wordSize)
	for i, v := range samples {
		p := out[i*wordSize:]
		switch wordSize {
		case 1:
			p[0] = byte(int8(v))
		case 2:
			binary.LittleEndian.PutUint16(p, uint16(int16(v)))
		case 4:
			binary.LittleEndian.PutUint32(p, uint32(v))
		}
	}

	return out, nil
}

func validWordSize(ws int) bool {
	return ws == 1 || ws == 2 || ws == 4
}
