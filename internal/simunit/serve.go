package simunit

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Capture states reported on the status feed.
const (
	stateIdle = iota
	stateArm
	stateRunPre
	stateRunPost
	statePostProcess
	stateCleanup
)

func (u *Unit) serveCommand(c net.Conn, site int) {
	r := bufio.NewReader(c)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}

		resp := u.handleCommand(site, strings.TrimSpace(line))

		u.mu.Lock()
		u.seq[site]++
		seq := u.seq[site]
		u.mu.Unlock()

		out := resp
		if out != "" {
			out += "\n"
		}
		out += fmt.Sprintf("acq400.%d %d >", site, seq)

		if err := writeChunked(c, []byte(out), u.opts.CommandChunk); err != nil {
			return
		}
	}
}

func (u *Unit) handleCommand(site int, line string) string {
	switch line {
	case "prompt on", "prompt off":
		return ""
	case "help":
		u.mu.Lock()
		names := make([]string, 0, len(u.knobs[site]))
		for name := range u.knobs[site] {
			names = append(names, name)
		}
		u.mu.Unlock()
		slices.Sort(names)

		return strings.Join(names, "\n")
	}

	name, value, isSet := strings.Cut(line, "=")

	u.mu.Lock()
	cur, ok := u.knobs[site][name]
	if ok && isSet {
		u.knobs[site][name] = value
	}
	bus := u.network
	u.mu.Unlock()

	if !ok {
		return "ERROR: no such knob " + name
	}
	if !isSet {
		return cur
	}

	if site == 0 && value == "1" {
		switch name {
		case "set_arm":
			u.arm()
		case "soft_trigger":
			if bus != nil {
				bus.Trigger()
			} else {
				u.trigger()
			}
		case "set_abort":
			u.abort()
		}
	}

	return ""
}

func (u *Unit) arm() {
	if u.opts.NeverArm {
		return
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if u.running || u.status[0] == stateArm {
		return
	}
	u.setStatusLocked(stateArm, 0, u.opts.PostSamples, 0)
}

func (u *Unit) trigger() {
	u.mu.Lock()
	if u.status[0] != stateArm {
		u.mu.Unlock()
		return
	}
	u.running = true
	u.mu.Unlock()

	go u.runCapture()
}

func (u *Unit) runCapture() {
	pre, post := u.opts.PreSamples, u.opts.PostSamples
	steps := [][4]int{
		{stateRunPre, pre, post, 0},
		{stateRunPost, pre, post, post / 2},
		{statePostProcess, pre, post, post},
		{stateCleanup, pre, post, post},
		{stateIdle, pre, post, post},
	}

	for _, st := range steps {
		time.Sleep(u.opts.StepDelay)

		u.mu.Lock()
		if u.closed || !u.running {
			u.mu.Unlock()
			return
		}
		u.setStatusLocked(st[0], st[1], st[2], st[3])
		u.mu.Unlock()
	}

	u.mu.Lock()
	u.running = false
	if shot, ok := u.knobs[1]["shot"]; ok {
		n, _ := strconv.Atoi(shot)
		u.knobs[1]["shot"] = strconv.Itoa(n + 1)
	}
	u.mu.Unlock()
}

func (u *Unit) abort() {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.running = false
	if u.status[0] != stateIdle {
		u.setStatusLocked(stateIdle, u.status[1], u.status[2], u.status[3])
	}
}

func (u *Unit) setStatusLocked(state, pre, post, elapsed int) {
	u.status[0], u.status[1], u.status[2], u.status[3] = state, pre, post, elapsed
	u.broadcastLocked(u.statusLineLocked())
}

func (u *Unit) statusLineLocked() string {
	s := u.status
	return fmt.Sprintf("%d %d %d %d %d", s[0], s[1], s[2], s[3], s[4])
}

func (u *Unit) broadcastLocked(line string) {
	for ch := range u.subs {
		select {
		case ch <- line:
		default:
		}
	}
}

func (u *Unit) serveStatus(c net.Conn) {
	ch := make(chan string, 1024)

	u.mu.Lock()
	u.subs[ch] = struct{}{}
	first := u.statusLineLocked()
	u.mu.Unlock()

	defer func() {
		u.mu.Lock()
		delete(u.subs, ch)
		u.mu.Unlock()
	}()

	gone := make(chan struct{})
	go func() {
		_, _ = io.Copy(io.Discard, c)
		close(gone)
	}()

	if _, err := io.WriteString(c, first+"\n"); err != nil {
		return
	}

	for {
		select {
		case <-gone:
			return
		case line := <-ch:
			if _, err := io.WriteString(c, line+"\n"); err != nil {
				return
			}
		}
	}
}

func (u *Unit) serveData(c net.Conn, ch int) {
	u.mu.Lock()
	u.pulls[ch]++
	u.mu.Unlock()

	nsam := u.Samples()
	ws := u.opts.WordSize

	var payload []byte
	if ch == 0 {
		nchan := u.NChan()
		payload = make([]byte, nsam*nchan*ws)
		for i := range nsam {
			for c := 1; c <= nchan; c++ {
				u.encodeSample(payload[(i*nchan+c-1)*ws:], u.Sample(c, i))
			}
		}
	} else {
		payload = make([]byte, nsam*ws)
		for i := range nsam {
			u.encodeSample(payload[i*ws:], u.Sample(ch, i))
		}
	}

	if u.opts.ShortData > 0 && u.opts.ShortData < len(payload) {
		payload = payload[:u.opts.ShortData]
	}

	_ = writeChunked(c, payload, u.opts.DataChunk)
}

func (u *Unit) serveAWG(c net.Conn) {
	payload, err := io.ReadAll(c)
	if err != nil {
		return
	}

	u.mu.Lock()
	u.awg = append(u.awg, payload)
	if u.knobs[1] != nil {
		u.knobs[1]["AWG_ACTIVE"] = "1"
	}
	u.mu.Unlock()
}

func writeChunked(w io.Writer, p []byte, chunk int) error {
	if chunk <= 0 {
		chunk = len(p)
	}
	for len(p) > 0 {
		n := min(chunk, len(p))
		if _, err := w.Write(p[:n]); err != nil {
			return err
		}
		p = p[n:]
	}

	return nil
}
