package command

import (
	"slices"
	"strings"
)

const (
	// wireSeparator is reserved by the protocol inside knob names.
	wireSeparator = "."
	// nameSeparator replaces wireSeparator in sanitized names.
	nameSeparator = "_"
)

// Registry maps sanitized knob names to wire names. It is built once per
// session and never modified, so it is safe for concurrent reads.
type Registry struct {
	knobs map[string]string
}

// NewRegistry parses a whitespace separated knob listing.
func NewRegistry(listing string) *Registry {
	fields := strings.Fields(listing)
	r := &Registry{knobs: make(map[string]string, len(fields))}
	for _, wire := range fields {
		r.knobs[Sanitize(wire)] = wire
	}

	return r
}

// Sanitize converts a wire knob name to its sanitized form.
func Sanitize(wire string) string {
	return strings.ReplaceAll(wire, wireSeparator, nameSeparator)
}

// Lookup returns the wire name of a knob. name may be given either sanitized
// or in wire form.
func (r *Registry) Lookup(name string) (string, bool) {
	if wire, ok := r.knobs[name]; ok {
		return wire, true
	}
	wire, ok := r.knobs[Sanitize(name)]

	return wire, ok
}

// Has reports whether the knob exists.
func (r *Registry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Len returns the number of knobs.
func (r *Registry) Len() int { return len(r.knobs) }

// Names returns the sorted sanitized knob names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.knobs))
	for name := range r.knobs {
		names = append(names, name)
	}
	slices.Sort(names)

	return names
}
