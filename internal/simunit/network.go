package simunit

import (
	"context"
	"net"
	"sync"
)

// Network routes dials to simulated units by host name and connects their
// trigger inputs: a soft trigger on any unit triggers every armed unit.
type Network struct {
	mu    sync.RWMutex
	units map[string]*Unit
}

// NewNetwork creates a network of simulated units.
func NewNetwork(units ...*Unit) *Network {
	n := &Network{units: make(map[string]*Unit, len(units))}
	for _, u := range units {
		n.Add(u)
	}

	return n
}

// Add attaches a unit to the network.
func (n *Network) Add(u *Unit) {
	n.mu.Lock()
	defer n.mu.Unlock()

	u.mu.Lock()
	u.network = n
	u.mu.Unlock()
	n.units[u.Name()] = u
}

// Unit returns the unit with the given host name.
func (n *Network) Unit(name string) *Unit {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return n.units[name]
}

// DialContext implements acq.Dialer.
func (n *Network) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}

	u := n.Unit(host)
	if u == nil {
		return nil, &net.OpError{Op: "dial", Net: network, Err: errRefused}
	}

	return u.DialContext(ctx, network, address)
}

// Trigger fires the shared trigger line.
func (n *Network) Trigger() {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for _, u := range n.units {
		u.trigger()
	}
}

// Close closes every unit.
func (n *Network) Close() {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for _, u := range n.units {
		u.Close()
	}
}
