package unit

import (
	"context"
	"errors"
	"fmt"

	"github.com/arloliu/go-acq/acq"
	"github.com/arloliu/go-acq/internal/util"
	"gonum.org/v1/gonum/floats"
)

// Calibration holds the per-channel volts = raw*slope + offset coefficients
// of a unit, indexed by channel-1.
type Calibration struct {
	Slope  []float64
	Offset []float64
}

// NChan returns the number of calibrated channels.
func (c *Calibration) NChan() int { return min(len(c.Slope), len(c.Offset)) }

// Volts converts raw samples of channel ch to volts.
func (c *Calibration) Volts(ch int, raw []int32) ([]float64, error) {
	if ch < 1 || ch > c.NChan() {
		return nil, fmt.Errorf("calibrate channel %d of %d: %w", ch, c.NChan(), acq.ErrInvalidChannel)
	}

	out := util.ToFloat64(raw)
	floats.Scale(c.Slope[ch-1], out)
	floats.AddConst(c.Offset[ch-1], out)

	return out, nil
}

// Calibration returns the calibration of every site that reports one, in
// site order. It is fetched on first use and cached.
func (u *Unit) Calibration(ctx context.Context) (*Calibration, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.cal != nil {
		return u.cal, nil
	}

	k := u.cfg.knobs
	cal := &Calibration{}
	for _, site := range u.Sites() {
		if site == 0 {
			continue
		}
		s, err := u.Site(site)
		if err != nil {
			return nil, err
		}

		slope, err := s.Get(ctx, k.CalSlope)
		if errors.Is(err, acq.ErrUnknownKnob) {
			// not an input module
			continue
		}
		if err != nil {
			return nil, err
		}
		offset, err := s.Get(ctx, k.CalOffset)
		if err != nil {
			return nil, err
		}

		eslo, err := util.ParseFloats(slope, k.CalHeader)
		if err != nil {
			return nil, fmt.Errorf("site %d %s: %w", site, k.CalSlope, err)
		}
		eoff, err := util.ParseFloats(offset, k.CalHeader)
		if err != nil {
			return nil, fmt.Errorf("site %d %s: %w", site, k.CalOffset, err)
		}
		if len(eslo) != len(eoff) {
			return nil, fmt.Errorf("site %d: %d slopes but %d offsets", site, len(eslo), len(eoff))
		}

		cal.Slope = append(cal.Slope, eslo...)
		cal.Offset = append(cal.Offset, eoff...)
	}

	u.cal = cal
	u.logger.Debug("calibration fetched", "channels", cal.NChan())

	return cal, nil
}
