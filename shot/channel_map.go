package shot

import (
	"fmt"
	"slices"
)

type mapKind int

const (
	kindAll mapKind = iota
	kindSame
	kindPerUnit
)

// ChannelMap selects the channels collected from each unit of a shot. The
// zero value selects all channels.
type ChannelMap struct {
	kind    mapKind
	same    []int
	perUnit [][]int
}

// AllChannels selects every channel of every unit.
func AllChannels() ChannelMap { return ChannelMap{} }

// SameChannels selects the same channels on every unit.
func SameChannels(channels ...int) ChannelMap {
	return ChannelMap{kind: kindSame, same: slices.Clone(channels)}
}

// SingleChannel selects one channel on every unit.
func SingleChannel(ch int) ChannelMap {
	return SameChannels(ch)
}

// PerUnitChannels selects channels per unit, in the order the units were
// given to the controller. An empty entry selects all channels of that unit.
func PerUnitChannels(channels ...[]int) ChannelMap {
	m := ChannelMap{kind: kindPerUnit, perUnit: make([][]int, len(channels))}
	for i, c := range channels {
		m.perUnit[i] = slices.Clone(c)
	}

	return m
}

// IsAll reports whether the map selects all channels of every unit.
func (m ChannelMap) IsAll() bool { return m.kind == kindAll }

// For returns the channels of unit i. A nil result selects all channels.
func (m ChannelMap) For(i int) ([]int, error) {
	switch m.kind {
	case kindSame:
		return m.same, nil
	case kindPerUnit:
		if i < 0 || i >= len(m.perUnit) {
			return nil, fmt.Errorf("channel map has %d entries, no entry for unit %d", len(m.perUnit), i)
		}
		if len(m.perUnit[i]) == 0 {
			return nil, nil
		}

		return m.perUnit[i], nil
	default:
		return nil, nil
	}
}

func (m ChannelMap) String() string {
	switch m.kind {
	case kindSame:
		return fmt.Sprint(m.same)
	case kindPerUnit:
		return fmt.Sprint(m.perUnit)
	default:
		return "all"
	}
}
