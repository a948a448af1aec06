// Package logpanel implements the bounded, time-stamped event log: a
// ring buffer fed from router events, internal runlevel messages,
// control-library diagnostics, and unknown events, with pause/resume,
// regex filtering applied at render time, and scroll-aware line wrapping.
package logpanel

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/torwatch/armctl/runlevel"
)

// MaxEntries bounds the visible and staging buffers (spec.md §3).
const MaxEntries = 1000

// armPrefix marks log entries sourced from the monitoring agent itself
// rather than from the router, per the original's "ARM-%s" % level
// convention for internal runlevel messages. Control-library diagnostics
// are registered as "TORCTL-<level>" and do not carry this prefix.
const armPrefix = "ARM"

// Entry is one rendered log line: the composed "HH:MM:SS [TYPE] message"
// text (or a blank-prefixed continuation line for a multi-line message)
// plus its colour hint.
type Entry struct {
	Text  string
	Color string
}

// Redrawer is notified whenever unpaused ingestion changes the visible
// buffer, so the UI layer (out of scope for this module) knows to
// repaint. A nil Redrawer is fine; ingestion just won't signal anyone.
type Redrawer func()

// Panel is the bounded ring buffer plus its pause/filter/scroll state. A
// single mutex serializes both ingestion (registerEvent, invoked from
// whatever goroutine events arrive on) and render-time reads (draw,
// DisplayLength), per spec.md §5's "any thread may write, only the UI
// thread reads, so both must serialize."
type Panel struct {
	mu sync.Mutex

	visible []Entry
	staging []Entry

	isPaused bool
	filter   *regexp.Regexp
	scroll   int

	eventTimeOverride *[6]int // (0,0,0,H,M,S) per spec.md §4.3; nil means "use wall clock"

	loggedEvents map[string]bool

	lastHeartbeat time.Time
	timeNow       func() time.Time
	localtime     func(time.Time) (hour, min, sec int)

	onRedraw Redrawer
}

// New returns an empty, unpaused Panel subscribed to loggedEvents (a set
// as produced by runlevel.Expand).
func New(loggedEvents map[string]bool, onRedraw Redrawer) *Panel {
	return &Panel{
		loggedEvents: loggedEvents,
		timeNow:      time.Now,
		localtime: func(t time.Time) (int, int, int) {
			return t.Hour(), t.Minute(), t.Second()
		},
		onRedraw: onRedraw,
	}
}

func (p *Panel) now() time.Time {
	if p.timeNow != nil {
		return p.timeNow()
	}
	return time.Now()
}

// SetEventTimeOverride forces subsequent RegisterEvent calls to stamp
// entries with the given hour/min/sec instead of the wall clock, for use
// during pre-population (spec.md §4.3). ClearEventTimeOverride removes it.
func (p *Panel) SetEventTimeOverride(hour, min, sec int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.eventTimeOverride = &[6]int{0, 0, 0, hour, min, sec}
}

// ClearEventTimeOverride restores wall-clock timestamping.
func (p *Panel) ClearEventTimeOverride() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.eventTimeOverride = nil
}

// RegisterEvent ingests one logical event, possibly spanning multiple
// lines. Lines are timestamped, control characters stripped, and
// prepended newest-first to whichever buffer is currently active
// (staging while paused, otherwise visible); the active buffer is then
// truncated to MaxEntries. An unpaused ingestion triggers onRedraw.
func (p *Panel) RegisterEvent(kind string, lines []string, color string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !strings.HasPrefix(kind, armPrefix) {
		p.lastHeartbeat = p.now()
	}

	hour, min, sec := p.effectiveTime()

	toAdd := make([]Entry, 0, len(lines))
	first := true
	for _, line := range lines {
		clean := stripNonPrintable(line)
		header := ""
		if first {
			header = timestampHeader(hour, min, sec, kind)
		}
		toAdd = append(toAdd, Entry{Text: strings.TrimRight(header+" "+clean, " "), Color: color})
		first = false
	}

	// Reverse so the earliest line of this batch ends up innermost
	// (closest to the rest of the buffer) after prepending.
	for i, j := 0, len(toAdd)-1; i < j; i, j = i+1, j-1 {
		toAdd[i], toAdd[j] = toAdd[j], toAdd[i]
	}

	if p.isPaused {
		p.staging = prependTruncated(p.staging, toAdd)
		return
	}
	p.visible = prependTruncated(p.visible, toAdd)
	if p.onRedraw != nil {
		p.onRedraw()
	}
}

func (p *Panel) effectiveTime() (hour, min, sec int) {
	if p.eventTimeOverride != nil {
		o := p.eventTimeOverride
		return o[3], o[4], o[5]
	}
	return p.localtime(p.now())
}

func timestampHeader(hour, min, sec int, kind string) string {
	return fmt.Sprintf("%02d:%02d:%02d [%s]", hour, min, sec, kind)
}

func stripNonPrintable(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 0x20 && r != 0x7f {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func prependTruncated(buf []Entry, newFront []Entry) []Entry {
	combined := make([]Entry, 0, len(newFront)+len(buf))
	combined = append(combined, newFront...)
	combined = append(combined, buf...)
	if len(combined) > MaxEntries {
		combined = combined[:MaxEntries]
	}
	return combined
}

// SetPaused toggles pause state. Pausing clears the staging buffer;
// unpausing prepends the staging buffer onto visible (newest-first,
// since staging entries are themselves already newest-first) and
// truncates. Toggling to the current state is a no-op — in particular,
// pause immediately followed by unpause with nothing ingested in between
// leaves the visible buffer byte-for-byte unchanged.
func (p *Panel) SetPaused(isPaused bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if isPaused == p.isPaused {
		return
	}
	p.isPaused = isPaused
	if isPaused {
		p.staging = nil
		return
	}
	p.visible = prependTruncated(p.visible, p.staging)
	p.staging = nil
	if p.onRedraw != nil {
		p.onRedraw()
	}
}

// IsPaused reports the current pause state.
func (p *Panel) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isPaused
}

// SetFilter installs a compiled regex applied at render time; entries
// whose text doesn't match are skipped without consuming display lines.
// The stored buffer is never mutated by filtering. Pass nil to clear it.
func (p *Panel) SetFilter(re *regexp.Regexp) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filter = re
}

// Heartbeat returns the time elapsed since the last non-internal event,
// as a time.Duration, or zero if no such event has been seen yet.
func (p *Panel) Heartbeat() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastHeartbeat.IsZero() {
		return 0
	}
	return p.now().Sub(p.lastHeartbeat)
}

// Scroll shifts the scroll offset by delta lines, clamped to
// [0, DisplayLength(width) - pageHeight].
func (p *Panel) Scroll(delta, pageHeight, width int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	maxLoc := p.displayLengthLocked(width) - pageHeight
	if maxLoc < 0 {
		maxLoc = 0
	}
	next := p.scroll + delta
	if next < 0 {
		next = 0
	}
	if next > maxLoc {
		next = maxLoc
	}
	p.scroll = next
}

// ScrollOffset returns the current scroll offset in lines.
func (p *Panel) ScrollOffset() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scroll
}

// DisplayLength reports how many lines the visible buffer would occupy
// at the given rendering width: entries failing the filter don't count;
// entries requiring wrap count twice.
func (p *Panel) DisplayLength(width int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.displayLengthLocked(width)
}

func (p *Panel) displayLengthLocked(width int) int {
	n := len(p.visible)
	for _, e := range p.visible {
		if p.filter != nil && !p.filter.MatchString(e.Text) {
			n--
		} else if len(e.Text) >= width {
			n++
		}
	}
	return n
}

// RenderLines returns the display lines, from the current scroll offset,
// for a panel height rows tall whose first row holds the header: at most
// height-1 lines, or height when the last entry shown wraps. The caller's
// rendering layer (curses or otherwise) paints them. Filtered-out entries are skipped
// entirely; entries wider than width are wrapped into two lines via
// SplitLine.
func (p *Panel) RenderLines(width, height int) []Entry {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []Entry
	lineCount := 1 - p.scroll
	for _, e := range p.visible {
		if p.filter != nil && !p.filter.MatchString(e.Text) {
			continue
		}
		if len(e.Text) < width {
			if lineCount >= 1 {
				out = append(out, e)
			}
			lineCount++
		} else {
			l1, l2 := SplitLine(e.Text, width)
			if lineCount >= 1 {
				out = append(out, Entry{Text: l1, Color: e.Color})
			}
			if lineCount >= 0 {
				out = append(out, Entry{Text: l2, Color: e.Color})
			}
			lineCount += 2
		}
		if lineCount >= height {
			break
		}
	}
	return out
}

// Header composes the label row: the subscribed event set with runlevels
// compacted into ranges (tor runlevels unprefixed, internal ARM_
// runlevels under a separate "ARM " sub-label), truncated with an
// ellipsis at the last comma that fits, with a trailing filter
// description appended if space allows.
func (p *Panel) Header(width int) string {
	p.mu.Lock()
	events := make([]string, 0, len(p.loggedEvents))
	for e := range p.loggedEvents {
		events = append(events, e)
	}
	filter := p.filter
	p.mu.Unlock()

	torLabels, events := runlevel.ParseRunlevelRanges(events, "")
	armLabels, events := runlevel.ParseRunlevelRanges(events, "ARM_")

	list := events
	if len(armLabels) > 0 {
		list = append([]string{"ARM " + strings.Join(armLabels, ", ")}, list...)
	}
	if len(torLabels) > 0 {
		list = append([]string{strings.Join(torLabels, ", ")}, list...)
	}

	listing := strings.Join(list, ", ")
	filterLabel := ""
	if filter != nil {
		filterLabel = " - filter: " + filter.String()
	}

	firstLabelLen := strings.Index(listing, ", ")
	if firstLabelLen == -1 {
		firstLabelLen = len(listing)
	} else {
		firstLabelLen += 3
	}

	label := "Events"
	if width > 10+firstLabelLen {
		label += " ("
		switch {
		case len(listing) > width-11:
			brk := strings.LastIndex(listing[:width-12], ", ")
			if brk < 0 {
				brk = len(listing[:width-12])
			}
			label += listing[:brk] + "..."
		case len(listing)+len(filterLabel) > width-11:
			label += listing
		default:
			label += listing + filterLabel
		}
		label += ")"
	}
	return label + ":"
}
