// Package simunit provides an in-process simulated unit for tests and examples.
//
// A Unit serves every port of a real unit over net.Pipe connections handed
// out by its DialContext method, so it can be plugged into any go-acq config
// through a WithDialer option. A Network routes several simulated units by
// host name and shares a trigger bus between them.
package simunit

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/arloliu/go-acq/acq"
)

// Options describes a simulated unit.
type Options struct {
	// Name is the host name of the unit.
	Name string
	// Sites maps site numbers (1..) to module model names.
	Sites map[int]string
	// SiteListPrefix is the leading token of the site list knob. Defaults to "13".
	SiteListPrefix string
	// ChannelsPerSite is the channel count of every site. Defaults to 4.
	ChannelsPerSite int
	// WordSize is the sample size in bytes: 2 (default) or 4.
	WordSize int
	// PreSamples and PostSamples size a shot. PostSamples defaults to 1000.
	PreSamples  int
	PostSamples int
	// RemoteDemux reports the unit as demultiplexing data itself.
	RemoteDemux bool
	// DataChunk is the size of each data port write. Defaults to 4096.
	DataChunk int
	// CommandChunk splits command responses into writes of this size. 0 writes whole responses.
	CommandChunk int
	// ShortData closes data ports after this many bytes. 0 disables.
	ShortData int
	// NeverArm makes the unit ignore arm requests.
	NeverArm bool
	// DeadSites are listed in the site list but refuse connections.
	DeadSites []int
	// StepDelay is the delay between capture states. Defaults to 2ms.
	StepDelay time.Duration
	// Ports overrides the port map.
	Ports acq.Ports
}

// Unit is a simulated unit.
type Unit struct {
	opts  Options
	ports acq.Ports

	mu      sync.Mutex
	knobs   map[int]map[string]string
	seq     map[int]int
	status  [5]int
	subs    map[chan string]struct{}
	conns   map[net.Conn]struct{}
	pulls   map[int]int
	awg     [][]byte
	network *Network
	closed  bool
	running bool
}

var errRefused = syscall.ECONNREFUSED

// New creates a simulated unit.
func New(opts Options) *Unit {
	if opts.Name == "" {
		opts.Name = "acq2106_sim"
	}
	if opts.Sites == nil {
		opts.Sites = map[int]string{1: "430", 2: "431"}
	}
	if opts.SiteListPrefix == "" {
		opts.SiteListPrefix = "13"
	}
	if opts.ChannelsPerSite == 0 {
		opts.ChannelsPerSite = 4
	}
	if opts.WordSize == 0 {
		opts.WordSize = 2
	}
	if opts.PostSamples == 0 {
		opts.PostSamples = 1000
	}
	if opts.DataChunk == 0 {
		opts.DataChunk = 4096
	}
	if opts.StepDelay == 0 {
		opts.StepDelay = 2 * time.Millisecond
	}

	u := &Unit{
		opts:  opts,
		ports: acq.DefaultPorts().Merge(opts.Ports),
		knobs: make(map[int]map[string]string),
		seq:   make(map[int]int),
		subs:  make(map[chan string]struct{}),
		conns: make(map[net.Conn]struct{}),
		pulls: make(map[int]int),
	}
	u.status[4] = boolInt(opts.RemoteDemux)
	u.initKnobs()

	return u
}

func (u *Unit) initKnobs() {
	sites := u.SiteNumbers()

	entries := make([]string, 0, len(sites)+1)
	entries = append(entries, u.opts.SiteListPrefix)
	for _, s := range sites {
		entries = append(entries, fmt.Sprintf("%d=%s", s, u.opts.Sites[s]))
	}

	u.knobs[0] = map[string]string{
		"SITELIST":       strings.Join(entries, ","),
		"NCHAN":          strconv.Itoa(u.NChan()),
		"data32":         strconv.Itoa(boolInt(u.opts.WordSize == 4)),
		"data_demux":     strconv.Itoa(boolInt(u.opts.RemoteDemux)),
		"set_arm":        "0",
		"set_abort":      "0",
		"soft_trigger":   "0",
		"SIG.SRC.TRG.0":  "EXT",
		"SIG.SRC.TRG.1":  "STRIG",
		"TRANS_ACT.POST": strconv.Itoa(u.opts.PostSamples),
	}

	for i, s := range sites {
		eslo := []string{"1", "0", "0"}
		eoff := []string{"1", "0", "0"}
		for c := range u.opts.ChannelsPerSite {
			ch := i*u.opts.ChannelsPerSite + c + 1
			eslo = append(eslo, strconv.FormatFloat(ESLO(ch), 'g', -1, 64))
			eoff = append(eoff, strconv.FormatFloat(EOFF(ch), 'g', -1, 64))
		}
		u.knobs[s] = map[string]string{
			"MODEL":       u.opts.Sites[s],
			"AI_CAL_ESLO": strings.Join(eslo, " "),
			"AI_CAL_EOFF": strings.Join(eoff, " "),
		}
		if s == 1 {
			u.knobs[s]["shot"] = "0"
			u.knobs[s]["AWG_ACTIVE"] = "0"
		}
	}
}

// ESLO is the simulated calibration slope of channel ch.
func ESLO(ch int) float64 { return 0.0003 * float64(ch) }

// EOFF is the simulated calibration offset of channel ch.
func EOFF(ch int) float64 { return -0.01 * float64(ch) }

// Name returns the host name of the unit.
func (u *Unit) Name() string { return u.opts.Name }

// Ports returns the port map served by the unit.
func (u *Unit) Ports() acq.Ports { return u.ports }

// NChan returns the number of channels.
func (u *Unit) NChan() int { return len(u.opts.Sites) * u.opts.ChannelsPerSite }

// Samples returns the number of samples per channel of a shot.
func (u *Unit) Samples() int { return u.opts.PreSamples + u.opts.PostSamples }

// SiteNumbers returns the sorted site numbers, excluding site 0.
func (u *Unit) SiteNumbers() []int {
	sites := make([]int, 0, len(u.opts.Sites))
	for s := range u.opts.Sites {
		sites = append(sites, s)
	}
	slices.Sort(sites)

	return sites
}

// Sample returns sample i of channel ch as served on the data ports.
func (u *Unit) Sample(ch, i int) int32 {
	v := int32(ch*1000 + i%1000)
	if i%2 == 1 {
		v = -v
	}
	if u.opts.WordSize == 2 {
		return int32(int16(v))
	}

	return v
}

// Knob returns the current value of a knob.
func (u *Unit) Knob(site int, name string) string {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.knobs[site][name]
}

// SetKnob sets a knob without running its side effects.
func (u *Unit) SetKnob(site int, name, value string) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.knobs[site] == nil {
		u.knobs[site] = make(map[string]string)
	}
	u.knobs[site][name] = value
}

// DataPulls returns how many times the data port of channel ch was opened.
func (u *Unit) DataPulls(ch int) int {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.pulls[ch]
}

// AWGUploads returns the payloads received on the AWG port.
func (u *Unit) AWGUploads() [][]byte {
	u.mu.Lock()
	defer u.mu.Unlock()

	return slices.Clone(u.awg)
}

// State returns the current capture state.
func (u *Unit) State() int {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.status[0]
}

// PushStatus sends a raw line on every status feed connection.
func (u *Unit) PushStatus(line string) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.broadcastLocked(line)
}

// Close closes every connection served by the unit.
func (u *Unit) Close() {
	u.mu.Lock()
	u.closed = true
	conns := make([]net.Conn, 0, len(u.conns))
	for c := range u.conns {
		conns = append(conns, c)
	}
	u.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}

// DialContext implements acq.Dialer. The host part of address is ignored.
func (u *Unit) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	_, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	serve, ok := u.route(port)
	if !ok {
		return nil, &net.OpError{Op: "dial", Net: network, Err: errRefused}
	}

	client, server := net.Pipe()

	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return nil, &net.OpError{Op: "dial", Net: network, Err: errRefused}
	}
	u.conns[server] = struct{}{}
	u.mu.Unlock()

	go func() {
		defer func() {
			_ = server.Close()
			u.mu.Lock()
			delete(u.conns, server)
			u.mu.Unlock()
		}()
		serve(server)
	}()

	return client, nil
}

func (u *Unit) route(port int) (func(net.Conn), bool) {
	switch {
	case port == u.ports.Status:
		return u.serveStatus, true
	case port == u.ports.AWG:
		return u.serveAWG, true
	case port >= u.ports.Data0 && port <= u.ports.Data(u.NChan()):
		ch := port - u.ports.Data0
		return func(c net.Conn) { u.serveData(c, ch) }, true
	case port >= u.ports.Site0 && port < u.ports.Site0+100:
		site := port - u.ports.Site0
		if slices.Contains(u.opts.DeadSites, site) {
			return nil, false
		}
		u.mu.Lock()
		_, ok := u.knobs[site]
		u.mu.Unlock()
		if !ok {
			return nil, false
		}
		return func(c net.Conn) { u.serveCommand(c, site) }, true
	}

	return nil, false
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (u *Unit) encodeSample(buf []byte, v int32) {
	switch u.opts.WordSize {
	case 4:
		binary.LittleEndian.PutUint32(buf, uint32(v))
	default:
		binary.LittleEndian.PutUint16(buf, uint16(int16(v)))
	}
}
