package logpanel

import (
	"github.com/torwatch/armctl/event"
)

// Panel implements event.Listener directly, the way the original
// LogMonitor is itself a TorCtl.PostEventListener — gating each event
// kind on whether it's in the subscribed set, formatting it via the
// Format* functions, and feeding the result through RegisterEvent.
var _ event.Listener = (*Panel)(nil)

func (p *Panel) subscribed(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loggedEvents[name]
}

func (p *Panel) CircStatus(e event.CircStatus) {
	if p.subscribed("CIRC") {
		p.RegisterEvent("CIRC", []string{FormatCircStatus(e)}, "yellow")
	}
}

func (p *Panel) StreamStatus(e event.StreamStatus) {
	if p.subscribed("STREAM") {
		p.RegisterEvent("STREAM", []string{FormatStreamStatus(e)}, "white")
	}
}

func (p *Panel) ORConnStatus(e event.ORConnStatus) {
	if p.subscribed("ORCONN") {
		p.RegisterEvent("ORCONN", []string{FormatORConnStatus(e)}, "white")
	}
}

func (p *Panel) StreamBW(e event.StreamBW) {
	if p.subscribed("STREAM_BW") {
		p.RegisterEvent("STREAM_BW", []string{FormatStreamBW(e)}, "white")
	}
}

func (p *Panel) Bandwidth(e event.Bandwidth) {
	// Bandwidth events arrive roughly once a second; the original always
	// updates the heartbeat for them even when BW isn't a subscribed
	// event, so this bypasses the "ARM"-prefix gate RegisterEvent
	// otherwise uses to decide whether to touch the heartbeat.
	p.mu.Lock()
	p.lastHeartbeat = p.now()
	p.mu.Unlock()
	if p.subscribed("BW") {
		p.RegisterEvent("BW", []string{FormatBandwidth(e)}, "cyan")
	}
}

func (p *Panel) NewDesc(e event.NewDesc) {
	if p.subscribed("NEWDESC") {
		p.RegisterEvent("NEWDESC", []string{FormatNewDesc(e)}, "white")
	}
}

func (p *Panel) AddrMap(e event.AddrMap) {
	if p.subscribed("ADDRMAP") {
		p.RegisterEvent("ADDRMAP", []string{FormatAddrMap(e)}, "white")
	}
}

func (p *Panel) NetworkStatus(e event.NetworkStatus) {
	if p.subscribed("NS") {
		p.RegisterEvent("NS", []string{FormatNetworkStatus(e)}, "blue")
	}
}

func (p *Panel) NewConsensus(e event.NewConsensus) {
	if p.subscribed("NEWCONSENSUS") {
		p.RegisterEvent("NEWCONSENSUS", []string{FormatNewConsensus(e)}, "magenta")
	}
}

func (p *Panel) Unknown(e event.Unknown) {
	if p.subscribed("UNKNOWN") {
		p.RegisterEvent("UNKNOWN", []string{FormatUnknown(e)}, "red")
	}
}

// Message handles tor's own runlevel log events.
func (p *Panel) Message(m event.Message) {
	if p.subscribed(string(m.Level)) {
		p.RegisterEvent(string(m.Level), []string{m.Text}, RunlevelColor[m.Level])
	}
}

// HandleMonitorEvent ingests an internal (agent-generated) runlevel
// message, gated on the "ARM_<level>" subscription, matching the
// original's monitor_event.
func (p *Panel) HandleMonitorEvent(level event.Runlevel, msg string) {
	if p.subscribed("ARM_" + string(level)) {
		p.RegisterEvent("ARM-"+string(level), []string{msg}, RunlevelColor[level])
	}
}

// HandleTorCtlEvent ingests a control-library diagnostic line, gated on
// the "TORCTL" subscription, matching the original's tor_ctl_event.
func (p *Panel) HandleTorCtlEvent(level event.Runlevel, msg string) {
	if p.subscribed("TORCTL") {
		p.RegisterEvent("TORCTL-"+string(level), []string{msg}, RunlevelColor[level])
	}
}

// TorCtlListener adapts HandleTorCtlEvent to event.TorCtlListener, for
// registration with Controller.AddTorCtlListener.
func (p *Panel) TorCtlListener() event.TorCtlListener {
	return p.HandleTorCtlEvent
}

