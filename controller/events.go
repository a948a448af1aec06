package controller

import (
	"strings"

	"github.com/torwatch/armctl/cache"
	"github.com/torwatch/armctl/ctlconn"
	"github.com/torwatch/armctl/event"
)

// SetControllerEvents negotiates the subscribed event set: the union of
// events with the required set {NOTICE, NEWDESC, NS, NEWCONSENSUS}, minus
// any event the router has previously rejected (process-wide, via
// failedEvents). If not currently attached, the requested set is recorded
// and returned as-is, to be attempted on the next Init. If attached, the
// accepted subset is returned; events/names is queried first to drop
// known-invalid names up front, and SETEVENTS is retried with a
// progressively smaller set on "Unrecognized event" rejections.
func (c *Controller) SetControllerEvents(events map[string]bool) []string {
	return c.setControllerEvents(stringSet(events))
}

func (c *Controller) setControllerEvents(requested map[string]bool) []string {
	c.lock()
	alive := c.isAliveLocked()
	if !alive {
		c.controllerEvents = requested
		c.unlock()
		return keys(requested)
	}
	conn := c.conn
	c.unlock()

	wanted := keys(requested)
	for name := range requiredEvents {
		wanted = appendUnique(wanted, name)
	}

	c.lock()
	failed := stringSet(c.failedEvents)
	c.unlock()

	unavailable := map[string]bool{}
	wanted = subtract(wanted, failed, unavailable)

	if names, err := c.GetInfo("events/names", "", true); err == nil && names != "" {
		valid := map[string]bool{}
		for _, n := range strings.Fields(names) {
			valid[n] = true
		}
		var kept []string
		for _, n := range wanted {
			if valid[n] {
				kept = append(kept, n)
			} else {
				unavailable[n] = true
			}
		}
		wanted = kept
	}

	set, abandoned := c.negotiate(conn, wanted, unavailable)

	if abandoned {
		return nil
	}

	c.lock()
	for e := range unavailable {
		c.failedEvents[e] = true
	}
	c.controllerEvents = toSet(set)
	c.unlock()

	for e := range unavailable {
		msg := "event not supported by this router version"
		if reason, required := requiredEvents[e]; required {
			c.logger().Error(msg, "event", e, "consequence", reason)
		} else {
			c.logger().Warn(msg, "event", e)
		}
	}

	return set
}

// negotiate performs the SETEVENTS trial-and-error loop: on an
// "Unrecognized event" reply it strips the offending event and retries;
// on any other protocol error it abandons; on a closed connection it
// calls Close and abandons.
func (c *Controller) negotiate(conn ctlconn.Conn, wanted []string, unavailable map[string]bool) ([]string, bool) {
	for {
		err := conn.SetEvents(wanted)
		if err == nil {
			return wanted, false
		}

		var perr *ctlconn.ProtocolError
		if pe, ok := err.(*ctlconn.ProtocolError); ok {
			perr = pe
		}
		if perr != nil {
			if name, ok := unrecognizedEventName(perr.Msg); ok {
				unavailable[name] = true
				wanted = remove(wanted, name)
				continue
			}
			return nil, true
		}

		// Not a protocol error: treat as a closed connection.
		c.Close()
		return nil, true
	}
}

// unrecognizedEventName extracts X from a reply of the shape
// `Unrecognized event "X"`.
func unrecognizedEventName(msg string) (string, bool) {
	const marker = "Unrecognized event"
	if !strings.Contains(msg, marker) {
		return "", false
	}
	start := strings.Index(msg, `event "`)
	if start < 0 {
		return "", false
	}
	start += len(`event "`)
	end := strings.LastIndex(msg, `"`)
	if end <= start {
		return "", false
	}
	return msg[start:end], true
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func toSet(s []string) map[string]bool {
	m := make(map[string]bool, len(s))
	for _, v := range s {
		m[v] = true
	}
	return m
}

func appendUnique(s []string, v string) []string {
	for _, existing := range s {
		if existing == v {
			return s
		}
	}
	return append(s, v)
}

func subtract(s []string, remove map[string]bool, into map[string]bool) []string {
	var out []string
	for _, v := range s {
		if remove[v] {
			into[v] = true
			continue
		}
		out = append(out, v)
	}
	return out
}

func remove(s []string, v string) []string {
	out := s[:0:0]
	for _, existing := range s {
		if existing != v {
			out = append(out, existing)
		}
	}
	return out
}

// The remaining methods implement event.Listener, making the Controller
// itself the first listener attached to any connection it holds.

var _ event.Listener = (*Controller)(nil)

func (c *Controller) updateHeartbeat() {
	c.lock()
	c.lastHeartbeat = c.now()
	c.unlock()
}

func (c *Controller) CircStatus(event.CircStatus)       { c.updateHeartbeat() }
func (c *Controller) StreamStatus(event.StreamStatus)   { c.updateHeartbeat() }
func (c *Controller) ORConnStatus(event.ORConnStatus)   { c.updateHeartbeat() }
func (c *Controller) StreamBW(event.StreamBW)           { c.updateHeartbeat() }
func (c *Controller) Bandwidth(event.Bandwidth)         { c.updateHeartbeat() }
func (c *Controller) AddrMap(event.AddrMap)             { c.updateHeartbeat() }
func (c *Controller) Unknown(event.Unknown)             { c.updateHeartbeat() }

// Message handles runlevel log events, watching for tor's reload-signal
// notice (spec.md §4.1).
func (c *Controller) Message(m event.Message) {
	c.updateHeartbeat()
	if m.Level == event.Notice && strings.HasPrefix(m.Text, "Received reload signal (hup)") {
		c.isReset.Store(true)
		c.lock()
		c.status = event.StatusInit
		c.statusTime = c.now()
		c.unlock()
		c.notifyStatus(event.StatusInit)
	}
}

// NetworkStatus invalidates nsEntry/flags/bwMeasured when this relay's
// fingerprint appears in the update (or unconditionally if the
// fingerprint itself isn't known yet).
func (c *Controller) NetworkStatus(ns event.NetworkStatus) {
	c.updateHeartbeat()

	fp, _ := c.GetInfo("fingerprint", "", true)
	if fp == "" {
		c.invalidateNS()
		return
	}
	for _, entry := range ns.Entries {
		if entry.IDHex == fp {
			c.invalidateNS()
			return
		}
	}
}

func (c *Controller) invalidateNS() {
	c.cache.Invalidate(cache.NSEntry)
	c.cache.Invalidate(cache.Flags)
	c.cache.Invalidate(cache.BWMeasured)
}

// NewConsensus unconditionally invalidates nsEntry/flags/bwMeasured: the
// whole consensus was replaced.
func (c *Controller) NewConsensus(event.NewConsensus) {
	c.updateHeartbeat()
	c.invalidateNS()
}

// NewDesc invalidates descEntry/bwObserved if this relay's fingerprint is
// unknown or appears in the update.
func (c *Controller) NewDesc(nd event.NewDesc) {
	c.updateHeartbeat()

	fp, _ := c.GetInfo("fingerprint", "", true)
	matched := fp == ""
	if !matched {
		for _, id := range nd.IDs {
			if id == fp {
				matched = true
				break
			}
		}
	}
	if matched {
		c.cache.Invalidate(cache.DescEntry)
		c.cache.Invalidate(cache.BWObserved)
	}
}

// HandleTorCtlLog is the entry point the lower-level client uses for its
// own diagnostics (the original's TorCtl.log hook). Every line is
// forwarded to registered torctl listeners; a line reporting that the
// router closed the control connection additionally triggers Close.
func (c *Controller) HandleTorCtlLog(level event.Runlevel, message string) {
	c.lock()
	listeners := append([]event.TorCtlListener(nil), c.torctlListeners...)
	c.unlock()

	for _, l := range listeners {
		l(level, message)
	}

	if strings.Contains(message, "Tor closed control connection. Exiting event thread.") {
		c.Close()
	}
}
