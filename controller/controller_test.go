package controller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torwatch/armctl/config"
	"github.com/torwatch/armctl/ctlconn"
	"github.com/torwatch/armctl/event"
)

// fakeConn is a minimal, test-controlled ctlconn.Conn.
type fakeConn struct {
	mu sync.Mutex

	live bool

	infoAnswers map[string]string
	infoErr     error

	optionAnswers map[string][]string

	setEventsErrs []error // consumed one per SetEvents call
	lastEvents    []string

	signals []string

	closed    bool
	listeners []event.Listener
}

func newFakeConn() *fakeConn {
	return &fakeConn{live: true, infoAnswers: map[string]string{}, optionAnswers: map[string][]string{}}
}

func (f *fakeConn) IsLive() bool { f.mu.Lock(); defer f.mu.Unlock(); return f.live && !f.closed }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.live = false
	return nil
}

func (f *fakeConn) GetInfo(key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.infoErr != nil {
		return "", f.infoErr
	}
	return f.infoAnswers[key], nil
}

func (f *fakeConn) GetOption(key string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.optionAnswers[key], nil
}

func (f *fakeConn) SetEvents(names []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastEvents = names
	if len(f.setEventsErrs) > 0 {
		err := f.setEventsErrs[0]
		f.setEventsErrs = f.setEventsErrs[1:]
		return err
	}
	return nil
}

func (f *fakeConn) SendSignal(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, name)
	return nil
}

func (f *fakeConn) AddEventListener(l event.Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, l)
}

func TestInitAttachesSuppliedConnAndTransitionsToInit(t *testing.T) {
	conn := newFakeConn()
	ctl := New(config.NewConfig())
	require.NoError(t, ctl.Init(context.Background(), conn))

	status, _ := ctl.Status()
	assert.Equal(t, event.StatusInit, status)
	assert.True(t, ctl.IsAlive())
}

func TestInitRejectsDeadConn(t *testing.T) {
	conn := newFakeConn()
	conn.live = false
	ctl := New(config.NewConfig())
	err := ctl.Init(context.Background(), conn)
	require.Error(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	conn := newFakeConn()
	ctl := New(config.NewConfig())
	require.NoError(t, ctl.Init(context.Background(), conn))

	ctl.Close()
	assert.False(t, ctl.IsAlive())
	ctl.Close() // no panic, no second notification required
}

func TestGetInfoCachesCacheableKey(t *testing.T) {
	conn := newFakeConn()
	conn.infoAnswers["version"] = "0.4.8.1"
	ctl := New(config.NewConfig())
	require.NoError(t, ctl.Init(context.Background(), conn))

	v, err := ctl.GetInfo("version", "", false)
	require.NoError(t, err)
	assert.Equal(t, "0.4.8.1", v)

	conn.mu.Lock()
	conn.infoAnswers["version"] = "changed"
	conn.mu.Unlock()

	v2, err := ctl.GetInfo("version", "", false)
	require.NoError(t, err)
	assert.Equal(t, "0.4.8.1", v2, "cached value should be served without a new round trip")
}

func TestGetInfoSurfacesConnectionClosedError(t *testing.T) {
	conn := newFakeConn()
	ctl := New(config.NewConfig())
	require.NoError(t, ctl.Init(context.Background(), conn))

	conn.mu.Lock()
	conn.infoErr = ctlconn.ErrClosed
	conn.mu.Unlock()

	_, err := ctl.GetInfo("version", "", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectionClosed)
	assert.False(t, ctl.IsAlive())
}

func TestGetInfoSurfacesProtocolError(t *testing.T) {
	conn := newFakeConn()
	ctl := New(config.NewConfig())
	require.NoError(t, ctl.Init(context.Background(), conn))

	conn.mu.Lock()
	conn.infoErr = &ctlconn.ProtocolError{Msg: "552 Unrecognized key"}
	conn.mu.Unlock()

	_, err := ctl.GetInfo("bogus-key", "", false)
	require.Error(t, err)
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "552 Unrecognized key", perr.Msg)
}

func TestGetInfoReturnsDefaultWhenNotAlive(t *testing.T) {
	ctl := New(config.NewConfig())
	v, err := ctl.GetInfo("version", "fallback", true)
	require.NoError(t, err)
	assert.Equal(t, "fallback", v)
}

func TestAddStatusListenerAndRemove(t *testing.T) {
	conn := newFakeConn()
	ctl := New(config.NewConfig())

	var mu sync.Mutex
	var seen []event.Status
	id := ctl.AddStatusListener(func(c any, status event.Status) {
		mu.Lock()
		seen = append(seen, status)
		mu.Unlock()
	})

	require.NoError(t, ctl.Init(context.Background(), conn))
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	})

	ctl.RemoveStatusListener(id)
	ctl.Close()
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 1, "listener removed before Close should not observe the CLOSED transition")
}

func TestSetControllerEventsNegotiatesAroundUnrecognizedEvent(t *testing.T) {
	conn := newFakeConn()
	conn.infoAnswers["events/names"] = "CIRC STREAM ORCONN BW NEWDESC NS NEWCONSENSUS NOTICE WARN"
	conn.setEventsErrs = []error{&ctlconn.ProtocolError{Msg: `Unrecognized event "BOGUS"`}}

	ctl := New(config.NewConfig())
	require.NoError(t, ctl.Init(context.Background(), conn))

	accepted := ctl.SetControllerEvents(map[string]bool{"CIRC": true, "BOGUS": true})
	assert.Contains(t, accepted, "CIRC")
	assert.NotContains(t, accepted, "BOGUS")
}

func TestMessageReloadSignalTransitionsToInit(t *testing.T) {
	conn := newFakeConn()
	ctl := New(config.NewConfig())
	require.NoError(t, ctl.Init(context.Background(), conn))

	ctl.Close()
	require.NoError(t, ctl.Init(context.Background(), newFakeConn()))

	ctl.Message(event.Message{Level: event.Notice, Text: "Received reload signal (hup). Reloading config."})
	status, _ := ctl.Status()
	assert.Equal(t, event.StatusInit, status)
}

func TestReloadSighupSucceedsWhenMessageArrivesConcurrently(t *testing.T) {
	conn := newFakeConn()
	ctl := New(config.NewConfig())
	require.NoError(t, ctl.Init(context.Background(), conn))

	errCh := make(chan error, 1)
	start := time.Now()
	go func() { errCh <- ctl.Reload(true) }()

	// Give Reload time to enter its poll loop before delivering the
	// notice; if Reload still held c.mu here, this call would block
	// until the 1s deadline instead of unblocking it.
	time.Sleep(20 * time.Millisecond)
	ctl.Message(event.Message{Level: event.Notice, Text: "Received reload signal (hup). Reloading config."})

	select {
	case err := <-errCh:
		require.NoError(t, err)
		assert.Less(t, time.Since(start), time.Second, "Reload should return as soon as isReset is observed, not wait out the full poll window")
	case <-time.After(2 * time.Second):
		t.Fatal("Reload did not return; c.mu is likely still held across the poll loop")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
