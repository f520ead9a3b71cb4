package connectivity

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/surge-downloader/loader/internal/engine/types"
	"github.com/surge-downloader/loader/internal/utils"
)

// DialFunc opens a connection; it matches (*net.Dialer).DialContext.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Prober is a Source that polls a TCP address and reports reachability
// transitions. It starts out assuming the network is online.
type Prober struct {
	addr     string
	interval time.Duration
	dial     DialFunc

	sw *Switch

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewProber builds a prober for addr ("host:port"). Empty values use the
// defaults from runtime.
func NewProber(runtime *types.RuntimeConfig) *Prober {
	dialer := &net.Dialer{Timeout: types.ProbeDialTimeout}
	return &Prober{
		addr:     runtime.GetProbeAddress(),
		interval: runtime.GetProbeInterval(),
		dial:     dialer.DialContext,
		sw:       NewSwitch(true),
	}
}

// WithDialer replaces the dial function, mainly for tests.
func (p *Prober) WithDialer(dial DialFunc) *Prober {
	p.dial = dial
	return p
}

func (p *Prober) Subscribe(fn func(online bool)) func() {
	return p.sw.Subscribe(fn)
}

// Online reports the last observed state.
func (p *Prober) Online() bool {
	return p.sw.Online()
}

// Start begins polling until ctx is done or Stop is called. Calling Start on
// a running prober is a no-op.
func (p *Prober) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(ctx, p.done)
}

// Stop ends polling and waits for the poll goroutine to exit.
func (p *Prober) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (p *Prober) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.check(ctx)
		}
	}
}

// check probes once and publishes a transition if the state changed.
func (p *Prober) check(ctx context.Context) {
	dialCtx, cancel := context.WithTimeout(ctx, types.ProbeDialTimeout)
	defer cancel()

	conn, err := p.dial(dialCtx, "tcp", p.addr)
	if ctx.Err() != nil {
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	online := err == nil
	if conn != nil {
		_ = conn.Close()
	}

	if online != p.sw.Online() {
		utils.Debug("connectivity: %s reachable=%v", p.addr, online)
	}
	p.sw.SetOnline(online)
}
