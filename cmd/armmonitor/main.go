// Command armmonitor wires the monitoring core together into a runnable
// process: connect, subscribe to events, pre-populate the log panel from
// the router's own log file, and run until interrupted. It reports the
// subscribed and unavailable events and status changes through slog; the
// panel's entries are not printed.
//
// This binary does not implement the control-port wire codec (framing
// request/response lines, parsing event payloads) — that is out of scope
// for this module, per spec.md's stated non-goals — so dialer below is a
// placeholder a real deployment replaces with one that returns a working
// ctlconn.Conn (e.g. backed by a TorCtl-style client dialing 127.0.0.1 and
// authenticating). Argument parsing is likewise out of scope; port and
// pid-file path come from the environment.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/torwatch/armctl/config"
	"github.com/torwatch/armctl/controller"
	"github.com/torwatch/armctl/ctlconn"
	"github.com/torwatch/armctl/event"
	"github.com/torwatch/armctl/logpanel"
	"github.com/torwatch/armctl/prepopulate"
	"github.com/torwatch/armctl/runlevel"
)

func dialer(ctx context.Context) (ctlconn.Conn, error) {
	return nil, errors.New("armmonitor: no control-port client wired; supply a ctlconn.Conn implementation")
}

func main() {
	port := 9051
	if v := os.Getenv("ARMMONITOR_CONTROL_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			port = p
		}
	}

	cfg := config.NewConfig()
	ctl := controller.New(cfg,
		controller.WithControlPort(port),
		controller.WithPidFile(os.Getenv("ARMMONITOR_PID_FILE")),
		controller.WithDialer(dialer),
	)

	loggedEvents, err := runlevel.Expand("N3")
	if err != nil {
		fmt.Fprintf(os.Stderr, "armmonitor: runlevel flags: %v\n", err)
		os.Exit(1)
	}
	loggedEvents["BW"] = true

	panel := logpanel.New(loggedEvents, func() {})
	ctl.AddEventListener(panel)
	ctl.AddTorCtlListener(panel.TorCtlListener())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := ctl.Init(ctx, nil); err != nil {
		fmt.Fprintf(os.Stderr, "armmonitor: connect: %v\n", err)
		os.Exit(1)
	}
	defer ctl.Close()

	accepted := ctl.SetControllerEvents(loggedEvents)
	acceptedSet := make(map[string]bool, len(accepted))
	for _, name := range accepted {
		acceptedSet[name] = true
		slog.Info("event subscribed", "event", name)
	}
	for name := range loggedEvents {
		if !acceptedSet[name] {
			slog.Warn("event unavailable", "event", name)
		}
	}

	prepopulate.Run(ctl, panel, loggedEvents)

	ctl.AddStatusListener(func(c any, status event.Status) {
		slog.Info("status changed", "status", status)
	})

	<-ctx.Done()
}
