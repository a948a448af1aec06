// Package runlevel implements the bidirectional mapping between compact
// event-flag strings (e.g. "inUt") and fully-expanded event-name sets,
// grounded on the original arm source's expandEvents and
// parseRunlevelRanges (original_source/interface/logPanel.py).
package runlevel

import (
	"fmt"
	"strings"

	"github.com/torwatch/armctl/event"
)

// armPrefix marks internal (ARM_*) runlevel event names, as distinct from
// tor's own DEBUG..ERR runlevel events.
const armPrefix = "ARM_"

// singleLetterEvents maps a single flag character to one tor event name.
// This is the non-runlevel, non-special subset of the original's
// TOR_EVENT_TYPES table.
var singleLetterEvents = map[rune]string{
	'd': "DEBUG",
	'a': "ADDRMAP",
	'l': "NEWDESC",
	'v': "AUTHDIR_NEWDESCS",
	'i': "INFO",
	'b': "BW",
	'm': "NS",
	'x': "STATUS_GENERAL",
	'n': "NOTICE",
	'c': "CIRC",
	'o': "ORCONN",
	'y': "STATUS_CLIENT",
	'w': "WARN",
	'f': "DESCCHANGED",
	's': "STREAM",
	'z': "STATUS_SERVER",
	'e': "ERR",
	'g': "GUARD",
	't': "STREAM_BW",
	'k': "NEWCONSENSUS",
	'u': "CLIENTS_SEEN",
}

// allEventNames is the full set of known tor event names expanded by 'A',
// independent of singleLetterEvents so 'A' doesn't depend on map order.
var allEventNames = []string{
	"DEBUG", "INFO", "NOTICE", "WARN", "ERR",
	"ADDRMAP", "NEWDESC", "AUTHDIR_NEWDESCS", "BW", "NS", "STATUS_GENERAL",
	"CIRC", "ORCONN", "STATUS_CLIENT", "DESCCHANGED", "STREAM",
	"STATUS_SERVER", "GUARD", "STREAM_BW", "NEWCONSENSUS", "CLIENTS_SEEN",
}

var armRunlevels = []string{"ARM_DEBUG", "ARM_INFO", "ARM_NOTICE", "ARM_WARN", "ARM_ERR"}

// InvalidFlagsError is raised by [Expand] when one or more characters in the
// input aren't recognized. Chars preserves the offending characters in
// input order, including duplicates.
type InvalidFlagsError struct {
	Chars string
}

func (e *InvalidFlagsError) Error() string {
	return fmt.Sprintf("runlevel: invalid flags: %q", e.Chars)
}

// runlevelOrGreater returns the tor runlevels at or above the given one, in
// ladder order.
func runlevelOrGreater(from event.Runlevel) []string {
	var out []string
	keep := false
	for _, lvl := range event.Ladder {
		if lvl == from {
			keep = true
		}
		if keep {
			out = append(out, string(lvl))
		}
	}
	return out
}

// armRunlevelOrGreater returns the ARM_* runlevels at or above index i
// (0 = ARM_DEBUG .. 4 = ARM_ERR).
func armRunlevelOrGreater(i int) []string {
	if i < 0 || i >= len(armRunlevels) {
		return nil
	}
	return armRunlevels[i:]
}

// Expand maps a compact flag string to the set of event names it requests.
//
// 'A' expands to every known event (tor + ARM_DEBUG..ARM_ERR) and
// terminates the scan: characters after it are never inspected, so they
// cannot make Expand return an error. 'X' expands to the empty set and
// likewise terminates the scan for the same reason. Both behaviors are
// deliberate — see spec.md §8 scenario 3 — not an oversight.
func Expand(flags string) (map[string]bool, error) {
	result := make(map[string]bool)
	var invalid strings.Builder

	for _, r := range flags {
		switch r {
		case 'A':
			for _, name := range allEventNames {
				result[name] = true
			}
			for _, name := range armRunlevels {
				result[name] = true
			}
			return result, nil
		case 'X':
			return map[string]bool{}, nil
		case 'C':
			result["TORCTL"] = true
		case 'U':
			result["UNKNOWN"] = true
		case 'D':
			addAll(result, runlevelOrGreater(event.Debug))
		case 'I':
			addAll(result, runlevelOrGreater(event.Info))
		case 'N':
			addAll(result, runlevelOrGreater(event.Notice))
		case 'W':
			addAll(result, runlevelOrGreater(event.Warn))
		case 'E':
			result["ERR"] = true
		case '1':
			addAll(result, armRunlevelOrGreater(0))
		case '2':
			addAll(result, armRunlevelOrGreater(1))
		case '3':
			addAll(result, armRunlevelOrGreater(2))
		case '4':
			addAll(result, armRunlevelOrGreater(3))
		case '5':
			result["ARM_ERR"] = true
		default:
			if name, ok := singleLetterEvents[r]; ok {
				result[name] = true
			} else {
				invalid.WriteRune(r)
			}
		}
	}

	if invalid.Len() > 0 {
		return nil, &InvalidFlagsError{Chars: invalid.String()}
	}
	return result, nil
}

func addAll(dst map[string]bool, names []string) {
	for _, n := range names {
		dst[n] = true
	}
}

// ParseRunlevelRanges consumes the runlevel ladder DEBUG < INFO < NOTICE <
// WARN < ERR from events (each checked as prefix+level), removing every
// level it finds and returning a compacted label list plus the remaining
// entries: a single matched level yields that level alone; two yield both;
// three or more in a contiguous run yield "FIRST - LAST".
//
// The original mutates its input list by removal; a Go slice can't be
// mutated through reassignment inside a callee, so this returns the
// remaining entries explicitly. Callers that held a reference to events and
// want the "mutated" view use the returned remaining slice in its place.
func ParseRunlevelRanges(events []string, prefix string) (labels []string, remaining []string) {
	set := make(map[string]bool, len(events))
	for _, e := range events {
		set[e] = true
	}

	ladder := append(levelNames(), "")

	start, end := "", ""
	runLen := 0

	flush := func() {
		switch runLen {
		case 0:
			// nothing to flush
		case 1:
			labels = append(labels, start)
		case 2:
			labels = append(labels, start, end)
		default:
			labels = append(labels, start+" - "+end)
		}
		start, end, runLen = "", "", 0
	}

	for _, level := range ladder {
		key := prefix + level
		if level != "" && set[key] {
			delete(set, key)
			if start != "" {
				end = level
				runLen++
			} else {
				start = level
				runLen = 1
			}
		} else if runLen > 0 {
			flush()
		}
	}
	flush()

	for _, e := range events {
		if set[e] {
			remaining = append(remaining, e)
		}
	}
	return labels, remaining
}

func levelNames() []string {
	out := make([]string, len(event.Ladder))
	for i, l := range event.Ladder {
		out[i] = string(l)
	}
	return out
}
