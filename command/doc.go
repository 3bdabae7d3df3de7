// Package command implements the per-site command session of a unit.
//
// Every site of a unit listens on its own command port and speaks a line
// oriented text protocol:
//
//	client: NAME\n          query a knob
//	client: NAME=VALUE\n    set a knob
//	server: <text> acq400.<site> <seq> >
//
// The server terminates every response with a prompt carrying a sequence
// counter. A Session sends exactly one request at a time and accumulates
// reads until the prompt pattern is found, so a response split across any
// number of TCP segments is reassembled transparently.
//
// At dial time the session enables the prompt, sends the "help" verb and
// builds an immutable Registry mapping sanitized knob names ("SIG_SRC_TRG_0")
// to their wire names ("SIG.SRC.TRG.0").
//
// Example:
//
//	cfg, _ := command.NewConfig("acq2106_001", acq.DefaultPorts().Site(1), command.WithSite(1))
//	sess, err := command.Dial(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer sess.Close()
//
//	nchan, err := sess.GetInt(ctx, "NCHAN")
package command
