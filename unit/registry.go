package unit

import (
	"context"
	"errors"
	"slices"

	"github.com/puzpuzpuz/xsync/v3"
)

// Registry keeps one open Unit per host.
type Registry struct {
	cfg   *Config
	units *xsync.MapOf[string, *Unit]
}

// NewRegistry creates a registry that opens units with cfg.
func NewRegistry(cfg *Config) *Registry {
	return &Registry{cfg: cfg, units: xsync.NewMapOf[string, *Unit]()}
}

// Open returns the open unit for host, connecting it if needed. Concurrent
// opens of the same host return the same unit.
func (r *Registry) Open(ctx context.Context, host string) (*Unit, error) {
	if u, ok := r.units.Load(host); ok && !u.IsClosed() {
		return u, nil
	}

	u, err := Open(ctx, host, r.cfg)
	if err != nil {
		return nil, err
	}

	actual, _ := r.units.Compute(host, func(old *Unit, loaded bool) (*Unit, bool) {
		if loaded && !old.IsClosed() {
			return old, false
		}

		return u, false
	})
	if actual != u {
		_ = u.Close()
	}

	return actual, nil
}

// Get returns the open unit for host.
func (r *Registry) Get(host string) (*Unit, bool) {
	u, ok := r.units.Load(host)
	if !ok || u.IsClosed() {
		return nil, false
	}

	return u, true
}

// Hosts returns the sorted hosts of the registered units.
func (r *Registry) Hosts() []string {
	hosts := make([]string, 0, r.units.Size())
	r.units.Range(func(host string, _ *Unit) bool {
		hosts = append(hosts, host)
		return true
	})
	slices.Sort(hosts)

	return hosts
}

// Len returns the number of registered units.
func (r *Registry) Len() int { return r.units.Size() }

// Close closes and forgets the unit for host.
func (r *Registry) Close(host string) error {
	u, ok := r.units.LoadAndDelete(host)
	if !ok {
		return nil
	}

	return u.Close()
}

// CloseAll closes and forgets every unit.
func (r *Registry) CloseAll() error {
	var errs []error
	for _, host := range r.Hosts() {
		errs = append(errs, r.Close(host))
	}

	return errors.Join(errs...)
}
