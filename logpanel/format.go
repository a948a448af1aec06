package logpanel

import (
	"fmt"
	"strings"

	"github.com/torwatch/armctl/event"
)

// RunlevelColor maps a runlevel to the colour hint historically used for
// it, grounded on the original's RUNLEVEL_EVENT_COLOR table.
var RunlevelColor = map[event.Runlevel]string{
	event.Debug:  "magenta",
	event.Info:   "blue",
	event.Notice: "green",
	event.Warn:   "yellow",
	event.Err:    "red",
}

// The Format* functions below produce the exact historical message shape
// for each event kind (grounded on LogMonitor's per-event registerEvent
// call sites), so ingestion has real, recognizable text to carry. Per
// spec.md §9's open question about the stream-event formatter's
// type-inspection fallback, FormatStreamStatus does not carry over the
// "except TypeError" string-reflection fallback — it formats directly
// from the typed record.

// FormatCircStatus renders a CIRC event.
func FormatCircStatus(e event.CircStatus) string {
	var extra strings.Builder
	if e.Purpose != "" {
		extra.WriteString(" PURPOSE: " + e.Purpose)
	}
	if e.Reason != "" {
		extra.WriteString(" REASON: " + e.Reason)
	}
	if e.RemoteReason != "" {
		extra.WriteString(" REMOTE_REASON: " + e.RemoteReason)
	}
	return fmt.Sprintf("ID: %-3s STATUS: %-10s PATH: %s%s", e.CircID, e.Status, strings.Join(e.Path, ", "), extra.String())
}

// FormatStreamStatus renders a STREAM event.
func FormatStreamStatus(e event.StreamStatus) string {
	return fmt.Sprintf(
		"ID: %s STATUS: %s CIRC_ID: %s TARGET: %s:%s REASON: %s REMOTE_REASON: %s SOURCE: %s SOURCE_ADDR: %s PURPOSE: %s",
		e.StreamID, e.Status, e.CircID, e.TargetHost, e.TargetPort, e.Reason, e.RemoteReason, e.Source, e.SourceAddr, e.Purpose,
	)
}

// FormatORConnStatus renders an ORCONN event.
func FormatORConnStatus(e event.ORConnStatus) string {
	var extra strings.Builder
	if e.Age != 0 {
		extra.WriteString(fmt.Sprintf(" AGE: %-3d", e.Age))
	}
	if e.ReadBytes != 0 {
		extra.WriteString(fmt.Sprintf(" READ: %-4d", e.ReadBytes))
	}
	if e.WroteBytes != 0 {
		extra.WriteString(fmt.Sprintf(" WRITTEN: %-4d", e.WroteBytes))
	}
	if e.Reason != "" {
		extra.WriteString(fmt.Sprintf(" REASON: %-6s", e.Reason))
	}
	if e.NCircs != 0 {
		extra.WriteString(fmt.Sprintf(" NCIRCS: %d", e.NCircs))
	}
	return fmt.Sprintf("STATUS: %-10s ENDPOINT: %-20s%s", e.Status, e.Endpoint, extra.String())
}

// FormatStreamBW renders a STREAM_BW event.
func FormatStreamBW(e event.StreamBW) string {
	return fmt.Sprintf("ID: %s READ: %d WRITTEN: %d", e.StreamID, e.BytesRead, e.BytesWritten)
}

// FormatBandwidth renders a BW event.
func FormatBandwidth(e event.Bandwidth) string {
	return fmt.Sprintf("READ: %d, WRITTEN: %d", e.Read, e.Written)
}

// FormatNewDesc renders a NEWDESC event.
func FormatNewDesc(e event.NewDesc) string {
	return strings.Join(e.IDs, ", ")
}

// FormatAddrMap renders an ADDRMAP event.
func FormatAddrMap(e event.AddrMap) string {
	return fmt.Sprintf("%s, %s -> %s", e.When, e.From, e.To)
}

// FormatNetworkStatus renders an NS event.
func FormatNetworkStatus(e event.NetworkStatus) string {
	var parts []string
	for _, ns := range e.Entries {
		parts = append(parts, fmt.Sprintf("%s (%s:%d)", ns.Nickname, ns.Address, ns.ORPort))
	}
	return fmt.Sprintf("Listed (%d): %s", len(e.Entries), strings.Join(parts, ", "))
}

// FormatNewConsensus renders a NEWCONSENSUS event.
func FormatNewConsensus(e event.NewConsensus) string {
	var parts []string
	for _, ns := range e.Entries {
		parts = append(parts, fmt.Sprintf("%s (%s:%d)", ns.Nickname, ns.Address, ns.ORPort))
	}
	return fmt.Sprintf("Listed (%d): %s", len(e.Entries), strings.Join(parts, ", "))
}

// FormatUnknown renders an UNKNOWN event.
func FormatUnknown(e event.Unknown) string {
	return e.Raw
}

