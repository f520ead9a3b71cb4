package connectivity

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surge-downloader/loader/internal/engine/types"
)

func TestSwitch_NotifiesOnTransitionOnly(t *testing.T) {
	sw := NewSwitch(true)
	var got []bool
	cancel := sw.Subscribe(func(online bool) { got = append(got, online) })

	sw.SetOnline(true)
	sw.SetOnline(false)
	sw.SetOnline(false)
	sw.SetOnline(true)

	assert.Equal(t, []bool{false, true}, got)

	cancel()
	cancel()
	sw.SetOnline(false)
	assert.Len(t, got, 2)
	assert.Equal(t, 0, sw.Subscribers())
}

func TestSwitch_DeliversInSubscriptionOrder(t *testing.T) {
	sw := NewSwitch(true)
	var order []int
	for i := range 5 {
		sw.Subscribe(func(bool) { order = append(order, i) })
	}
	sw.SetOnline(false)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestSwitch_SubscriberMayUnsubscribeDuringDelivery(t *testing.T) {
	sw := NewSwitch(true)
	var cancel func()
	calls := 0
	cancel = sw.Subscribe(func(bool) {
		calls++
		cancel()
	})
	sw.SetOnline(false)
	sw.SetOnline(true)
	assert.Equal(t, 1, calls)
}

func TestMonitor_AcquireIsIdempotent(t *testing.T) {
	sw := NewSwitch(true)
	var count atomic.Int32
	m := NewMonitor(sw, func(bool) { count.Add(1) })

	m.Acquire()
	m.Acquire()
	assert.True(t, m.Active())
	assert.Equal(t, 1, sw.Subscribers())

	sw.SetOnline(false)
	assert.Equal(t, int32(1), count.Load())

	m.Release()
	assert.False(t, m.Active())
	assert.Equal(t, 0, sw.Subscribers())

	sw.SetOnline(true)
	assert.Equal(t, int32(1), count.Load())

	m.Release()
}

func TestMonitor_ReleaseOnlyRemovesOwnSubscription(t *testing.T) {
	sw := NewSwitch(true)
	a := NewMonitor(sw, func(bool) {})
	b := NewMonitor(sw, func(bool) {})
	a.Acquire()
	b.Acquire()
	require.Equal(t, 2, sw.Subscribers())

	a.Release()
	assert.Equal(t, 1, sw.Subscribers())
	assert.True(t, b.Active())
}

func TestMonitor_NilSource(t *testing.T) {
	m := NewMonitor(nil, func(bool) { t.Fatal("unexpected callback") })
	m.Acquire()
	assert.False(t, m.Active())
	m.Release()

	var nilMonitor *Monitor
	nilMonitor.Acquire()
	nilMonitor.Release()
	assert.False(t, nilMonitor.Active())
}

func TestProber_ReportsTransitions(t *testing.T) {
	var reachable atomic.Bool
	reachable.Store(true)

	dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		if !reachable.Load() {
			return nil, errors.New("unreachable")
		}
		client, server := net.Pipe()
		_ = server.Close()
		return client, nil
	}

	p := NewProber(&types.RuntimeConfig{
		ProbeAddress:  "probe.invalid:443",
		ProbeInterval: 10 * time.Millisecond,
	}).WithDialer(dial)

	var mu sync.Mutex
	var got []bool
	p.Subscribe(func(online bool) {
		mu.Lock()
		got = append(got, online)
		mu.Unlock()
	})

	p.Start(context.Background())
	defer p.Stop()

	reachable.Store(false)
	require.Eventually(t, func() bool { return !p.Online() }, 5*time.Second, 10*time.Millisecond)

	reachable.Store(true)
	require.Eventually(t, func() bool { return p.Online() }, 5*time.Second, 10*time.Millisecond)

	p.Stop()
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{false, true}, got)
}

func TestProber_RealListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	p := NewProber(&types.RuntimeConfig{ProbeAddress: ln.Addr().String(), ProbeInterval: 10 * time.Millisecond})
	p.Start(context.Background())
	p.Start(context.Background())
	defer p.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.True(t, p.Online())

	require.NoError(t, ln.Close())
	require.Eventually(t, func() bool { return !p.Online() }, 5*time.Second, 10*time.Millisecond)
}
