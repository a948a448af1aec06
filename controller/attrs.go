package controller

import (
	"strconv"
	"strings"

	"github.com/torwatch/armctl/cache"
)

// relayAttr resolves one of the cache.Key-backed relay-identity facts,
// returning the cached value if present (mapping "looked up, undefined"
// to def), and otherwise computing and caching it. cacheUndefined
// controls whether a failed lookup is remembered as Undefined
// (suppressing retries until the next cache Clear) or left Absent (so the
// next call tries again).
//
// Each sub-computation below issues its own GetInfo/GetOption calls,
// which take and release the controller lock independently — see
// Controller's doc comment on why this module doesn't hold one lock
// across the whole resolution the way the original's connLock does.
func (c *Controller) relayAttr(key cache.Key, def string, cacheUndefined bool) string {
	if v, undefined, absent := c.cache.Lookup(key); !absent {
		if undefined {
			return def
		}
		return v
	}

	result, ok := c.computeRelayAttr(key)
	if ok && result != "" {
		c.cache.Set(key, result)
		return result
	}
	if cacheUndefined {
		c.cache.SetUndefined(key)
	}
	return def
}

func (c *Controller) computeRelayAttr(key cache.Key) (string, bool) {
	switch key {
	case cache.NSEntry, cache.DescEntry:
		fp, _ := c.GetInfo("fingerprint", "", true)
		if fp == "" {
			return "", false
		}
		queryType := "desc"
		if key == cache.NSEntry {
			queryType = "ns"
		}
		v, err := c.GetInfo(queryType+"/id/"+fp, "", true)
		if err != nil || v == "" {
			return "", false
		}
		return v, true

	case cache.BWRate:
		rate, ok := c.parseInt(c.getOptionFirst("BandwidthRate", ""))
		if !ok {
			return "", false
		}
		if relay, ok := c.parseInt(c.getOptionFirst("RelayBandwidthRate", "")); ok && relay != 0 && relay < rate {
			rate = relay
		}
		if max, ok := c.parseInt(c.getOptionFirst("MaxAdvertisedBandwidth", "")); ok && max < rate {
			rate = max
		}
		return strconv.Itoa(rate), true

	case cache.BWBurst:
		burst, ok := c.parseInt(c.getOptionFirst("BandwidthBurst", ""))
		if !ok {
			return "", false
		}
		if relay, ok := c.parseInt(c.getOptionFirst("RelayBandwidthBurst", "")); ok && relay != 0 && relay < burst {
			burst = relay
		}
		return strconv.Itoa(burst), true

	case cache.BWObserved:
		desc := c.relayAttr(cache.DescEntry, "", true)
		for _, line := range strings.Split(desc, "\n") {
			if !strings.HasPrefix(line, "bandwidth") {
				continue
			}
			fields := strings.Fields(line)
			if len(fields) == 4 {
				if n, ok := c.parseInt(fields[3]); ok {
					return strconv.Itoa(n), true
				}
			}
			break
		}
		return "", false

	case cache.BWMeasured:
		ns := c.relayAttr(cache.NSEntry, "", true)
		for _, line := range strings.Split(ns, "\n") {
			if !strings.HasPrefix(line, "w Bandwidth=") {
				continue
			}
			if n, ok := c.parseInt(strings.TrimPrefix(line, "w Bandwidth=")); ok {
				return strconv.Itoa(n), true
			}
			break
		}
		return "", false

	case cache.Flags:
		ns := c.relayAttr(cache.NSEntry, "", true)
		for _, line := range strings.Split(ns, "\n") {
			if strings.HasPrefix(line, "s ") {
				return strings.TrimPrefix(line, "s "), true
			}
		}
		return "", false

	case cache.PID:
		port := c.controlPort
		if p, ok := c.parseInt(c.getOptionFirst("ControlPort", "")); ok {
			port = p
		}
		pidFile := c.getOptionFirst("PidFile", c.pidFilePath)
		pid, ok := findPid(port, pidFile)
		return pid, ok
	}
	return "", false
}

func (c *Controller) parseInt(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return n, true
}

// GetMyNetworkStatus returns this relay's network-status (consensus)
// entry lines, newline-joined, or def if unavailable.
func (c *Controller) GetMyNetworkStatus(def string) string {
	return c.relayAttr(cache.NSEntry, def, true)
}

// GetMyDescriptor returns this relay's descriptor entry lines,
// newline-joined, or def if unavailable.
func (c *Controller) GetMyDescriptor(def string) string {
	return c.relayAttr(cache.DescEntry, def, true)
}

// GetMyBandwidthRate returns the effective relaying bandwidth rate, the
// minimum of BandwidthRate, a nonzero RelayBandwidthRate, and
// MaxAdvertisedBandwidth.
func (c *Controller) GetMyBandwidthRate(def string) string {
	return c.relayAttr(cache.BWRate, def, true)
}

// GetMyBandwidthBurst returns the effective bandwidth burst rate.
func (c *Controller) GetMyBandwidthBurst(def string) string {
	return c.relayAttr(cache.BWBurst, def, true)
}

// GetMyBandwidthObserved returns the relay's self-reported observed
// bandwidth from its descriptor.
func (c *Controller) GetMyBandwidthObserved(def string) string {
	return c.relayAttr(cache.BWObserved, def, true)
}

// GetMyBandwidthMeasured returns the relay's bandwidth as measured by the
// directory authorities, per the consensus entry's "w Bandwidth=" line.
func (c *Controller) GetMyBandwidthMeasured(def string) string {
	return c.relayAttr(cache.BWMeasured, def, true)
}

// GetMyFlags returns the space-separated flags held by this relay in the
// current consensus.
func (c *Controller) GetMyFlags(def string) string {
	return c.relayAttr(cache.Flags, def, true)
}

// GetMyPid returns the attached tor process's pid, or "" if it can't be
// determined.
func (c *Controller) GetMyPid() string {
	return c.relayAttr(cache.PID, "", true)
}
