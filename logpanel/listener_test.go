package logpanel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torwatch/armctl/event"
)

func TestCircStatusGatedOnSubscription(t *testing.T) {
	p := New(map[string]bool{}, nil)
	p.CircStatus(event.CircStatus{CircID: "1", Status: "BUILT"})
	assert.Empty(t, p.RenderLines(200, 10))

	p2 := New(map[string]bool{"CIRC": true}, nil)
	p2.CircStatus(event.CircStatus{CircID: "1", Status: "BUILT"})
	lines := p2.RenderLines(200, 10)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0].Text, "BUILT")
}

func TestBandwidthAlwaysUpdatesHeartbeatEvenWhenUnsubscribed(t *testing.T) {
	p := New(map[string]bool{}, nil)
	assert.Equal(t, 0, len(p.RenderLines(200, 10)))
	p.Bandwidth(event.Bandwidth{Read: 10, Written: 20})
	// not subscribed to BW, so nothing rendered, but heartbeat advances
	assert.Empty(t, p.RenderLines(200, 10))
	assert.GreaterOrEqual(t, p.Heartbeat().Seconds(), float64(0))
}

func TestHandleMonitorEventGatedOnArmPrefix(t *testing.T) {
	p := New(map[string]bool{"ARM_NOTICE": true}, nil)
	p.HandleMonitorEvent(event.Notice, "started up")
	lines := p.RenderLines(200, 10)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0].Text, "started up")
}

func TestHandleTorCtlEventGatedOnTorctlSubscription(t *testing.T) {
	p := New(map[string]bool{}, nil)
	p.HandleTorCtlEvent(event.Warn, "connection retry")
	assert.Empty(t, p.RenderLines(200, 10))

	p2 := New(map[string]bool{"TORCTL": true}, nil)
	p2.HandleTorCtlEvent(event.Warn, "connection retry")
	lines := p2.RenderLines(200, 10)
	require.Len(t, lines, 1)
}
