package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/webrtc-echo/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwaitConnected_Connected(t *testing.T) {
	sm := New("s", RoleClient, Hooks{})
	go func() {
		time.Sleep(10 * time.Millisecond)
		sm.RecordOverall(domain.OverallConnecting)
		sm.RecordOverall(domain.OverallConnected)
	}()

	assert.Equal(t, OutcomeConnected, sm.AwaitConnected(context.Background(), time.Second))
	assert.Equal(t, domain.OverallConnected, sm.Snapshot().Overall)
}

func TestAwaitConnected_AlreadyConnected(t *testing.T) {
	sm := New("s", RoleClient, Hooks{})
	sm.RecordOverall(domain.OverallConnected)
	sm.RecordOverall(domain.OverallConnected)

	assert.Equal(t, OutcomeConnected, sm.AwaitConnected(context.Background(), time.Millisecond))
	assert.Equal(t, OutcomeConnected, sm.AwaitConnected(context.Background(), time.Millisecond))
}

func TestAwaitConnected_TimesOut(t *testing.T) {
	sm := New("s", RoleClient, Hooks{})
	sm.RecordOverall(domain.OverallConnecting)

	start := time.Now()
	assert.Equal(t, OutcomeTimedOut, sm.AwaitConnected(context.Background(), 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestAwaitConnected_ContextCancelled(t *testing.T) {
	sm := New("s", RoleClient, Hooks{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, OutcomeTimedOut, sm.AwaitConnected(ctx, 0))
}

func TestRecordOverall_ClientTerminalHookOnce(t *testing.T) {
	var got []domain.OverallState
	sm := New("s", RoleClient, Hooks{
		OnTerminal: func(s domain.OverallState) { got = append(got, s) },
	})

	sm.RecordOverall(domain.OverallConnecting)
	sm.RecordOverall(domain.OverallFailed)
	sm.RecordOverall(domain.OverallClosed)

	assert.Equal(t, []domain.OverallState{domain.OverallFailed}, got)
	assert.Equal(t, domain.OverallFailed, sm.Snapshot().Overall)
}

func TestRecordOverall_NothingAfterConnected(t *testing.T) {
	called := false
	sm := New("s", RoleClient, Hooks{OnTerminal: func(domain.OverallState) { called = true }})

	sm.RecordOverall(domain.OverallConnected)
	sm.RecordOverall(domain.OverallDisconnected)

	assert.False(t, called)
	assert.Equal(t, domain.OverallConnected, sm.Snapshot().Overall)
}

func TestRecordOverall_ServerIgnoresTerminalHook(t *testing.T) {
	called := false
	sm := New("s", RoleServer, Hooks{OnTerminal: func(domain.OverallState) { called = true }})
	sm.RecordOverall(domain.OverallFailed)
	assert.False(t, called)
}

func TestRecordConnectivity_ServerFailedTearsDownOnce(t *testing.T) {
	var calls atomic.Int32
	sm := New("s", RoleServer, Hooks{OnConnectivityFailed: func() { calls.Add(1) }})

	sm.RecordConnectivity(domain.ConnectivityChecking)
	sm.RecordConnectivity(domain.ConnectivityFailed)
	sm.RecordConnectivity(domain.ConnectivityFailed)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, domain.ConnectivityFailed, sm.Snapshot().Connectivity)
}

func TestRecordConnectivity_ClientDoesNotTearDown(t *testing.T) {
	called := false
	sm := New("s", RoleClient, Hooks{OnConnectivityFailed: func() { called = true }})
	sm.RecordConnectivity(domain.ConnectivityFailed)
	assert.False(t, called)
}

func TestRun_PreservesOrder(t *testing.T) {
	var mu sync.Mutex
	var seen []domain.StateEvent
	sm := New("s", RoleServer, Hooks{OnTransition: func(ev domain.StateEvent) {
		mu.Lock()
		seen = append(seen, ev)
		mu.Unlock()
	}})

	events := make(chan domain.StateEvent, 8)
	want := []domain.StateEvent{
		domain.SignalingEvent(domain.SignalingHaveRemoteOffer),
		domain.SignalingEvent(domain.SignalingStable),
		domain.ConnectivityEvent(domain.ConnectivityChecking),
		domain.OverallEvent(domain.OverallConnecting),
		domain.ConnectivityEvent(domain.ConnectivityConnected),
		domain.OverallEvent(domain.OverallConnected),
	}
	for _, ev := range want {
		events <- ev
	}
	close(events)

	sm.Run(context.Background(), events)

	assert.Equal(t, want, seen)
	assert.Equal(t, domain.StateSnapshot{
		Signaling:    domain.SignalingStable,
		Connectivity: domain.ConnectivityConnected,
		Overall:      domain.OverallConnected,
	}, sm.Snapshot())
}

func TestRun_StopsOnContext(t *testing.T) {
	sm := New("s", RoleServer, Hooks{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sm.Run(ctx, make(chan domain.StateEvent))
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestStartDeadline_ForcesFailure(t *testing.T) {
	failed := make(chan struct{})
	sm := New("s", RoleServer, Hooks{OnConnectivityFailed: func() { close(failed) }})
	sm.RecordOverall(domain.OverallConnecting)
	sm.StartDeadline(20 * time.Millisecond)

	select {
	case <-failed:
	case <-time.After(time.Second):
		t.Fatal("deadline did not force failure")
	}
	assert.Equal(t, domain.ConnectivityFailed, sm.Snapshot().Connectivity)
}

func TestStartDeadline_CancelledByConnect(t *testing.T) {
	var calls atomic.Int32
	sm := New("s", RoleServer, Hooks{OnConnectivityFailed: func() { calls.Add(1) }})
	sm.StartDeadline(30 * time.Millisecond)
	sm.RecordOverall(domain.OverallConnected)

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, calls.Load())
}

func TestStartDeadline_OverallFailureBeforeConnect(t *testing.T) {
	failed := make(chan struct{})
	sm := New("s", RoleServer, Hooks{OnConnectivityFailed: func() { close(failed) }})
	sm.StartDeadline(20 * time.Millisecond)
	sm.RecordOverall(domain.OverallConnecting)
	sm.RecordConnectivity(domain.ConnectivityConnected)
	sm.RecordOverall(domain.OverallFailed)

	select {
	case <-failed:
	case <-time.After(time.Second):
		t.Fatal("overall failure cancelled the deadline")
	}
	snap := sm.Snapshot()
	assert.Equal(t, domain.ConnectivityFailed, snap.Connectivity)
	assert.Equal(t, domain.OverallFailed, snap.Overall)
}

func TestStartDeadline_ZeroDisabled(t *testing.T) {
	sm := New("s", RoleServer, Hooks{})
	sm.StartDeadline(0)
	sm.Stop()
	require.Equal(t, domain.ConnectivityNew, sm.Snapshot().Connectivity)
}

func TestRecord_UnknownAxis(t *testing.T) {
	sm := New("s", RoleServer, Hooks{})
	assert.NotPanics(t, func() { sm.Record(domain.StateEvent{Axis: domain.Axis(42), State: "x"}) })
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "connected", OutcomeConnected.String())
	assert.Equal(t, "timed-out", OutcomeTimedOut.String())
}
