package controller

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/torwatch/armctl/cache"
	"github.com/torwatch/armctl/ctlconn"
	"github.com/torwatch/armctl/event"
)

// cacheableKeys maps a GETINFO param name to its Cache key, for the subset
// of queries whose answer doesn't change within a status epoch.
var cacheableKeys = map[string]cache.Key{
	string(cache.Version):       cache.Version,
	string(cache.ConfigFile):    cache.ConfigFile,
	string(cache.ExitPolicyDef): cache.ExitPolicyDef,
	string(cache.Fingerprint):   cache.Fingerprint,
	string(cache.ConfigNames):   cache.ConfigNames,
	string(cache.InfoNames):     cache.InfoNames,
	string(cache.FeaturesNames): cache.FeaturesNames,
	string(cache.EventsNames):   cache.EventsNames,
}

// GetInfo issues "GETINFO key", returning default if the query fails and
// suppressExc is true (the default use). If the key is cacheable and
// present, the cached value is returned without a round trip. Successful
// non-empty results for cacheable keys are written back to the cache. A
// closed-connection error additionally triggers Close.
func (c *Controller) GetInfo(key string, def string, suppressExc bool) (string, error) {
	start := c.now()
	c.lock()

	var (
		result    = def
		raised    error
		fromCache bool
		fetched   bool
	)

	if cacheKey, cacheable := cacheableKeys[key]; cacheable {
		if v, ok := c.cache.Get(cacheKey); ok {
			result, fromCache = v, true
		}
	}

	if !fromCache && c.isAliveLocked() {
		conn := c.conn
		v, err := conn.GetInfo(key)
		if err != nil {
			raised = err
			if errors.Is(err, ctlconn.ErrClosed) {
				c.closeLocked()
			}
		} else if v != "" {
			result = v
			fetched = true
		}
	}

	if fetched {
		if cacheKey, cacheable := cacheableKeys[key]; cacheable {
			c.cache.Set(cacheKey, result)
		}
	}

	closedDuringCall := raised != nil && errors.Is(raised, ctlconn.ErrClosed)
	c.unlock()
	if closedDuringCall {
		c.notifyStatus(event.StatusClosed)
	}

	label := fmt.Sprintf("runtime: %s", c.now().Sub(start))
	if fromCache {
		label = "cache fetch"
	}
	c.logger().Log(context.Background(), c.cfg.LogTorGetInfo, "GETINFO", "key", key, "span", newSpanID(), "timing", label)

	if !suppressExc && raised != nil {
		return def, translateErr(raised)
	}
	return result, nil
}

// translateErr maps a ctlconn-level error to the sentinel/typed error a
// non-suppressed caller sees: a closed connection becomes
// ErrConnectionClosed, a control-port error reply becomes a controller.
// ProtocolError carrying the same text, anything else passes through
// unchanged.
func translateErr(err error) error {
	if errors.Is(err, ctlconn.ErrClosed) {
		return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}
	var perr *ctlconn.ProtocolError
	if errors.As(err, &perr) {
		return &ProtocolError{Msg: perr.Msg}
	}
	return err
}

// GetOption issues "GETCONF key". When multiple is true every returned
// value is reported; otherwise only the first. Unlike GetInfo, results
// are never cached — configuration can change without an announcing
// event.
func (c *Controller) GetOption(key string, def []string, multiple bool, suppressExc bool) ([]string, error) {
	start := c.now()
	c.lock()

	var (
		result []string
		raised error
	)

	if c.isAliveLocked() {
		conn := c.conn
		values, err := conn.GetOption(key)
		if err != nil {
			raised = err
			if errors.Is(err, ctlconn.ErrClosed) {
				c.closeLocked()
			}
			result = def
		} else if multiple {
			result = values
		} else if len(values) > 0 {
			result = values[:1]
		}
	}

	closedDuringCall := raised != nil && errors.Is(raised, ctlconn.ErrClosed)
	c.unlock()
	if closedDuringCall {
		c.notifyStatus(event.StatusClosed)
	}

	c.logger().Log(context.Background(), c.cfg.LogTorGetConf, "GETCONF", "key", key, "span", newSpanID(), "runtime", c.now().Sub(start))

	if !suppressExc && raised != nil {
		return def, translateErr(raised)
	}
	if len(result) == 0 {
		return def, nil
	}
	return result, nil
}

// getOptionFirst is a convenience wrapper for the common single-value,
// suppressed-error case used throughout relay-attribute resolution.
func (c *Controller) getOptionFirst(key, def string) string {
	vals, _ := c.GetOption(key, nil, false, true)
	if len(vals) == 0 {
		return def
	}
	return vals[0]
}

// Reload resets tor by sending SIGNAL RELOAD on the control connection
// (default), or by sending the process a SIGHUP via pkill if issueSighup
// is true. Both paths clear the cache on success; both surface failure as
// ErrReloadFailed. The SIGHUP path is a polling workaround kept for
// environments where the control signal is unavailable — prefer the
// default.
//
// The up-to-one-second poll below deliberately does not hold c.mu: isReset
// is only ever set to true by Message, delivered on the event thread via
// its own c.lock()/c.unlock() pair, so holding the lock across the poll
// would deadlock the wait against the write it's waiting for (matching
// original_source/src/util/torTools.py's msg_event, which sets
// self._isReset without acquiring connLock for exactly this reason).
func (c *Controller) Reload(issueSighup bool) error {
	c.lock()
	alive := c.isAliveLocked()
	conn := c.conn
	if !alive {
		c.unlock()
		return nil
	}

	if !issueSighup {
		err := conn.SendSignal("RELOAD")
		c.unlock()
		if err != nil {
			return fmt.Errorf("controller: %w: %v", ErrReloadFailed, err)
		}
		c.cache.Clear()
		return nil
	}
	c.unlock()

	if _, err := exec.LookPath("pkill"); err != nil {
		return fmt.Errorf("controller: %w: pkill unavailable", ErrReloadFailed)
	}

	c.isReset.Store(false)
	out, _ := exec.Command("sh", "-c", "pkill -sighup ^tor$ 2>&1").CombinedOutput()

	deadline := c.now().Add(time.Second)
	for c.now().Before(deadline) {
		if c.isReset.Load() {
			c.cache.Clear()
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	pid, _ := c.pid()
	var errLine string
	if pid != "" {
		for _, line := range strings.Split(string(out), "\n") {
			if strings.HasPrefix(line, "pkill: "+pid+" - ") {
				errLine = line
				break
			}
		}
	}
	if errLine != "" {
		fields := strings.Fields(errLine)
		if len(fields) > 3 {
			return fmt.Errorf("controller: %w: %s", ErrReloadFailed, strings.Join(fields[3:], " "))
		}
	}
	return fmt.Errorf("controller: %w: failed silently", ErrReloadFailed)
}
