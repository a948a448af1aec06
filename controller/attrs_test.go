package controller

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torwatch/armctl/config"
)

func TestGetMyBandwidthRateTakesMinimum(t *testing.T) {
	conn := newFakeConn()
	conn.optionAnswers["BandwidthRate"] = []string{"1000000"}
	conn.optionAnswers["RelayBandwidthRate"] = []string{"500000"}
	conn.optionAnswers["MaxAdvertisedBandwidth"] = []string{"2000000"}

	ctl := New(config.NewConfig())
	require.NoError(t, ctl.Init(context.Background(), conn))

	assert.Equal(t, "500000", ctl.GetMyBandwidthRate(""))
}

func TestGetMyBandwidthRateIgnoresZeroRelayOverride(t *testing.T) {
	conn := newFakeConn()
	conn.optionAnswers["BandwidthRate"] = []string{"1000000"}
	conn.optionAnswers["RelayBandwidthRate"] = []string{"0"}
	conn.optionAnswers["MaxAdvertisedBandwidth"] = []string{"2000000"}

	ctl := New(config.NewConfig())
	require.NoError(t, ctl.Init(context.Background(), conn))

	assert.Equal(t, "1000000", ctl.GetMyBandwidthRate(""))
}

func TestGetMyBandwidthObservedParsesDescriptorLine(t *testing.T) {
	conn := newFakeConn()
	conn.infoAnswers["fingerprint"] = "ABCD"
	conn.infoAnswers["desc/id/ABCD"] = "router test 1.2.3.4 9001 0 0\nbandwidth 1000 2000 1500\n"

	ctl := New(config.NewConfig())
	require.NoError(t, ctl.Init(context.Background(), conn))

	assert.Equal(t, "1500", ctl.GetMyBandwidthObserved(""))
}

func TestGetMyBandwidthMeasuredParsesConsensusLine(t *testing.T) {
	conn := newFakeConn()
	conn.infoAnswers["fingerprint"] = "ABCD"
	conn.infoAnswers["ns/id/ABCD"] = "r test ABCD 2026-07-30 1.2.3.4 9001 0\nw Bandwidth=4200\ns Running Valid\n"

	ctl := New(config.NewConfig())
	require.NoError(t, ctl.Init(context.Background(), conn))

	assert.Equal(t, "4200", ctl.GetMyBandwidthMeasured(""))
	assert.Equal(t, "Running Valid", ctl.GetMyFlags(""))
}

func TestGetMyPidQueriesLiveControlPortAndPidFile(t *testing.T) {
	conn := newFakeConn()
	conn.optionAnswers["ControlPort"] = []string{"9151"}
	conn.optionAnswers["PidFile"] = []string{"/var/run/tor.pid"}

	origFindPid := findPid
	defer func() { findPid = origFindPid }()
	var gotPort int
	var gotPath string
	findPid = func(port int, path string) (string, bool) {
		gotPort, gotPath = port, path
		return "4242", true
	}

	ctl := New(config.NewConfig())
	require.NoError(t, ctl.Init(context.Background(), conn))

	assert.Equal(t, "4242", ctl.GetMyPid())
	assert.Equal(t, 9151, gotPort)
	assert.Equal(t, "/var/run/tor.pid", gotPath)
}

func TestRelayAttrCachesUndefinedUntilClear(t *testing.T) {
	conn := newFakeConn() // no fingerprint configured
	ctl := New(config.NewConfig())
	require.NoError(t, ctl.Init(context.Background(), conn))

	assert.Equal(t, "fallback", ctl.GetMyNetworkStatus("fallback"))

	conn.infoAnswers["fingerprint"] = "ABCD"
	conn.infoAnswers["ns/id/ABCD"] = "r test entry\n"
	// still undefined: cached until the next status transition clears it
	assert.Equal(t, "fallback", ctl.GetMyNetworkStatus("fallback"))

	ctl.Close()
	// Close killed conn, so reattach with a fresh connection holding the same answers.
	conn2 := newFakeConn()
	conn2.infoAnswers["fingerprint"] = "ABCD"
	conn2.infoAnswers["ns/id/ABCD"] = "r test entry\n"
	require.NoError(t, ctl.Init(context.Background(), conn2))
	assert.Equal(t, "r test entry\n", ctl.GetMyNetworkStatus("fallback"))
}
