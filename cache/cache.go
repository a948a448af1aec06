// Package cache implements the Controller's query cache: a fixed set of
// keys, each either holding a value, marked undefined ("looked up, no
// answer"), or absent ("not yet looked up"). spec.md §9 calls out that the
// original implementation used the string "UNKNOWN" and the empty string
// for these two states respectively, and that a tagged value is cleaner —
// this package is that tagged value.
package cache

import "sync"

// Key identifies one of the fixed cacheable attributes.
type Key string

const (
	Version         Key = "version"
	ConfigFile      Key = "config-file"
	ExitPolicyDef   Key = "exit-policy/default"
	Fingerprint     Key = "fingerprint"
	ConfigNames     Key = "config/names"
	InfoNames       Key = "info/names"
	FeaturesNames   Key = "features/names"
	EventsNames     Key = "events/names"
	NSEntry         Key = "nsEntry"
	DescEntry       Key = "descEntry"
	BWRate          Key = "bwRate"
	BWBurst         Key = "bwBurst"
	BWObserved      Key = "bwObserved"
	BWMeasured      Key = "bwMeasured"
	Flags           Key = "flags"
	PID             Key = "pid"
)

// Keys lists every fixed cache key, in the order spec.md §3 declares them.
var Keys = []Key{
	Version, ConfigFile, ExitPolicyDef, Fingerprint, ConfigNames, InfoNames,
	FeaturesNames, EventsNames, NSEntry, DescEntry, BWRate, BWBurst,
	BWObserved, BWMeasured, Flags, PID,
}

// state is the tri-state of a single cache slot.
type state int

const (
	stateAbsent state = iota
	statePresent
	stateUndefined
)

// Cache is a mapping from [Key] to (value | undefined | absent). It is safe
// for concurrent use; callers needing an atomic read-then-write across
// multiple keys (as the Controller's relay-attribute resolver does) must
// still hold their own lock around the sequence — Cache only guarantees
// each individual Get/Set/Clear is atomic.
type Cache struct {
	mu   sync.Mutex
	vals map[Key]string
	st   map[Key]state
}

// New creates an empty cache: every key absent.
func New() *Cache {
	return &Cache{
		vals: make(map[Key]string),
		st:   make(map[Key]state),
	}
}

// Get returns (value, true) if present, ("", false) if undefined or absent.
// Undefined returns false the same as absent does — callers that need to
// distinguish "undefined" from "never looked up" use [Cache.Lookup].
func (c *Cache) Get(k Key) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st[k] == statePresent {
		return c.vals[k], true
	}
	return "", false
}

// Lookup reports the full tri-state for a key.
func (c *Cache) Lookup(k Key) (value string, undefined bool, absent bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.st[k] {
	case statePresent:
		return c.vals[k], false, false
	case stateUndefined:
		return "", true, false
	default:
		return "", false, true
	}
}

// Set records a successful lookup's value.
func (c *Cache) Set(k Key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals[k] = value
	c.st[k] = statePresent
}

// SetUndefined marks a key as looked up with no answer, suppressing retries
// until the next Clear.
func (c *Cache) SetUndefined(k Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.vals, k)
	c.st[k] = stateUndefined
}

// Invalidate returns a key to the absent state, forcing the next access to
// perform a fresh lookup. Used by event handlers (ns_event, new_desc_event,
// new_consensus_event) that know a specific cached fact has gone stale.
func (c *Cache) Invalidate(k Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.vals, k)
	delete(c.st, k)
}

// Clear resets every key to absent. Called on any Controller status
// transition (spec.md §3 invariants).
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals = make(map[Key]string)
	c.st = make(map[Key]state)
}
