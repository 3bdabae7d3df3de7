package unit

import (
	"context"
	"fmt"
	"slices"

	"github.com/arloliu/go-acq/acq"
	"github.com/arloliu/go-acq/data"
	"golang.org/x/sync/errgroup"
)

// CollectMethod is the way ReadChannels pulls data.
type CollectMethod int

const (
	// DirectChannels pulls each channel from its own data port. The unit
	// has already demultiplexed the data.
	DirectChannels CollectMethod = iota
	// Bulk pulls the bulk port and returns it unshaped.
	Bulk
	// BulkDemuxSelect pulls the bulk port once, demultiplexes it locally and
	// keeps the requested channels.
	BulkDemuxSelect
	// BulkDemuxAll pulls the bulk port once and demultiplexes every channel
	// locally.
	BulkDemuxAll
)

func (m CollectMethod) String() string {
	switch m {
	case DirectChannels:
		return "direct"
	case Bulk:
		return "bulk"
	case BulkDemuxSelect:
		return "bulk-demux-select"
	case BulkDemuxAll:
		return "bulk-demux-all"
	default:
		return fmt.Sprintf("CollectMethod(%d)", int(m))
	}
}

// ChooseMethod returns the collection method for a request. subset is true
// when specific channels are requested rather than all of them.
func ChooseMethod(subset bool, remoteDemux bool, localDemux bool) CollectMethod {
	switch {
	case remoteDemux:
		return DirectChannels
	case subset:
		return BulkDemuxSelect
	case localDemux:
		return BulkDemuxAll
	default:
		return Bulk
	}
}

// ReadOptions selects the data pulled by ReadChannels.
type ReadOptions struct {
	// Channels lists 1-based channel numbers. Empty selects all channels.
	Channels []int
	// LocalDemux demultiplexes a bulk read of all channels on the host.
	LocalDemux bool
	// Samples is the sample count per channel. Zero uses the pre+post length
	// of the last status record.
	Samples int
}

// Capture is the data returned by ReadChannels.
type Capture struct {
	Method CollectMethod
	// Channels holds the channel numbers of Data, in order.
	Channels []int
	// Data holds one array per entry of Channels. It is nil for Bulk.
	Data [][]int32
	// Raw holds the sample-major bulk data for Bulk, nil otherwise.
	Raw []int32
	// NChan is the total channel count of the unit.
	NChan int
}

// Channel returns the samples of channel ch, or nil if it was not collected.
func (c *Capture) Channel(ch int) []int32 {
	i := slices.Index(c.Channels, ch)
	if i < 0 || i >= len(c.Data) {
		return nil
	}

	return c.Data[i]
}

// ReadChannels pulls the channels selected by opts. The remote demux flag is
// read from the unit on every call.
func (u *Unit) ReadChannels(ctx context.Context, opts ReadOptions) (*Capture, error) {
	nchan, err := u.NChan(ctx)
	if err != nil {
		return nil, err
	}
	ws, err := u.WordSize(ctx)
	if err != nil {
		return nil, err
	}
	remote, err := u.RemoteDemux(ctx)
	if err != nil {
		return nil, err
	}

	for _, ch := range opts.Channels {
		if ch < 1 || ch > nchan {
			return nil, fmt.Errorf("%s channel %d of %d: %w", u.host, ch, nchan, acq.ErrInvalidChannel)
		}
	}

	nsam := opts.Samples
	if nsam <= 0 {
		rec, _ := u.monitor.Current()
		nsam = rec.Samples()
	}
	if nsam <= 0 {
		return nil, fmt.Errorf("%s: capture length unknown: %w", u.host, acq.ErrDataUnavailable)
	}

	subset := len(opts.Channels) > 0
	channels := opts.Channels
	if !subset {
		channels = make([]int, nchan)
		for i := range channels {
			channels[i] = i + 1
		}
	}

	method := ChooseMethod(subset, remote, opts.LocalDemux)
	capture := &Capture{Method: method, Channels: slices.Clone(channels), NChan: nchan}

	u.logger.Debug("read channels", "method", method, "channels", channels, "samples", nsam)

	if method == DirectChannels {
		capture.Data, err = u.readDirect(ctx, channels, nsam, ws)
		if err != nil {
			return nil, err
		}

		return capture, nil
	}

	raw, err := u.readPort(ctx, acq.BulkChannel, nsam*nchan, ws)
	if err != nil {
		return nil, err
	}
	// a partial fallback read may end mid-row
	raw = raw[:len(raw)/nchan*nchan]

	if method == Bulk {
		capture.Raw = raw
		return capture, nil
	}

	chans, err := data.Demux(raw, nchan)
	if err != nil {
		return nil, err
	}
	capture.Data, err = data.Select(chans, channels)
	if err != nil {
		return nil, err
	}

	return capture, nil
}

// ReadChan pulls nsam samples of channel ch from its own data port.
func (u *Unit) ReadChan(ctx context.Context, ch int, nsam int) ([]int32, error) {
	ws, err := u.WordSize(ctx)
	if err != nil {
		return nil, err
	}

	return u.readPort(ctx, ch, nsam, ws)
}

func (u *Unit) readDirect(ctx context.Context, channels []int, nsam int, ws int) ([][]int32, error) {
	out := make([][]int32, len(channels))

	g, gctx := errgroup.WithContext(ctx)
	for i, ch := range channels {
		g.Go(func() error {
			samples, err := u.readPort(gctx, ch, nsam, ws)
			if err != nil {
				return fmt.Errorf("channel %d: %w", ch, err)
			}
			out[i] = samples

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}

func (u *Unit) readPort(ctx context.Context, ch int, count int, ws int) ([]int32, error) {
	cfg, err := u.cfg.dataConfig()
	if err != nil {
		return nil, err
	}

	c, err := data.Dial(ctx, u.host, u.cfg.ports.Data(ch), cfg)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	return c.Read(ctx, count, ws)
}
