// Package prepopulate seeds a logpanel.Panel with historical entries
// parsed from the router's own on-disk log file, tailing it the way the
// original LogMonitor.__init__ does: locate the log file from GETCONF
// Log, tail it, discard everything before the last "opening log file"
// boundary (prior router instances), parse each remaining line, and
// synthesize it through the panel's regular ingestion path with the
// parsed timestamp overriding the wall clock.
package prepopulate

import (
	"bufio"
	"os/exec"
	"strconv"
	"strings"

	"github.com/torwatch/armctl/event"
	"github.com/torwatch/armctl/logpanel"
)

// MinLimit and MaxLimit bound how many tail lines are read: MinLimit
// applies when DEBUG or INFO is among the subscribed events (since most
// lines matter and verbose logging can be large), MaxLimit otherwise
// (since most lines will be skipped as uninteresting runlevels).
const (
	MinLimit = 1000
	MaxLimit = 5000
)

// OptionReader is the subset of Controller this package depends on:
// GETCONF Log, in the (multiple values, suppressed-error) shape.
type OptionReader interface {
	GetOption(key string, def []string, multiple bool, suppressExc bool) ([]string, error)
}

// FindLogFilePath parses a GETCONF Log response (one entry per configured
// log target, each a whitespace-separated line like "notice file
// /var/log/tor/notices.log") and returns the path of the first entry
// whose second token is "file". Returns ("", false) if none matches.
//
// This is exposed standalone (the original does this inline in
// LogMonitor.__init__) so it's unit-testable apart from the tail/parse
// pipeline.
func FindLogFilePath(logOption []string) (string, bool) {
	for _, entry := range logOption {
		fields := strings.Fields(entry)
		if len(fields) >= 3 && fields[1] == "file" {
			return fields[2], true
		}
	}
	return "", false
}

// Run performs the full pre-population pipeline against conn and panel,
// given the set of currently subscribed event names. Any failure (no Log
// file configured, file unreadable, tail failing) is swallowed — the
// router's operation must not depend on pre-population succeeding. The
// panel is paused for the duration of the batch and restored afterward;
// the event-time override is always cleared on exit.
func Run(conn OptionReader, panel *logpanel.Panel, loggedEvents map[string]bool) {
	defer func() { recover() }() // best-effort: any panic here must not propagate.

	logOption, _ := conn.GetOption("Log", nil, true, true)
	path, ok := FindLogFilePath(logOption)
	if !ok {
		return
	}

	limit := MaxLimit
	if loggedEvents["DEBUG"] || loggedEvents["INFO"] {
		limit = MinLimit
	}

	lines, err := tail(path, limit)
	if err != nil {
		return
	}

	lines = fromLastOpeningMarker(lines)

	wasPaused := panel.IsPaused()
	panel.SetPaused(true)
	defer func() {
		panel.SetPaused(wasPaused)
		panel.ClearEventTimeOverride()
	}()

	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		eventName := strings.ToUpper(strings.Trim(fields[3], "[]"))
		if !loggedEvents[eventName] {
			continue
		}
		hour, min, sec, ok := parseTimeField(fields[2])
		if !ok {
			continue
		}
		panel.SetEventTimeOverride(hour, min, sec)
		panel.RegisterEvent(eventName, []string{strings.Join(fields[4:], " ")}, logpanel.RunlevelColor[event.Runlevel(eventName)])
	}
}

// parseTimeField parses "HH:MM:SS.fff" (fractional part ignored) into
// its three integer components.
func parseTimeField(field string) (hour, min, sec int, ok bool) {
	field = strings.SplitN(field, ".", 2)[0]
	parts := strings.Split(field, ":")
	if len(parts) != 3 {
		return 0, 0, 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	s, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, 0, 0, false
	}
	return h, m, s, true
}

// fromLastOpeningMarker discards every line before the last one
// mentioning "opening log file" (earlier router instances' output),
// keeping the marker line itself, matching the original's
// lines[instanceStart:].
func fromLastOpeningMarker(lines []string) []string {
	last := -1
	for i, l := range lines {
		if strings.Contains(l, "opening log file") {
			last = i
		}
	}
	if last == -1 {
		return lines
	}
	return lines[last:]
}

// tail reads the last n lines of path via the "tail" external command,
// matching the original's shell-out rather than reading and discarding
// the file's head in-process.
func tail(path string, n int) ([]string, error) {
	out, err := exec.Command("tail", "-n", strconv.Itoa(n), path).Output()
	if err != nil {
		return nil, err
	}
	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, nil
}
