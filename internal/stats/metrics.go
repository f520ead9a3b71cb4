// Package stats derives per-transfer performance metrics from loader events.
package stats

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/surge-downloader/loader/internal/engine/events"
	"github.com/surge-downloader/loader/internal/utils"
)

// Metrics collects measurements for one transfer. Feed it with Handle or
// attach it to a bus; read it with Results.
type Metrics struct {
	mu            sync.Mutex
	startTime     time.Time
	firstByteTime time.Time
	endTime       time.Time
	totalBytes    int64
	outcome       events.Code

	bytesReceived  atomic.Int64
	progressEvents atomic.Int64
	errorCount     atomic.Int32
	offlineCount   atomic.Int32
	recoveryCount  atomic.Int32

	startMemAlloc uint64
	peakMemAlloc  uint64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// Attach subscribes m to every event on bus and returns a detach function.
func (m *Metrics) Attach(bus *events.Bus) func() {
	sub := bus.SubscribeAll(m.Handle)
	return func() { bus.Unsubscribe(sub) }
}

// Handle records one event.
func (m *Metrics) Handle(e events.Event) {
	switch e.Code {
	case events.CodeStart:
		m.start(e.Time)
	case events.CodeProgress:
		m.progressEvents.Add(1)
		if e.Loaded > 0 {
			m.recordFirstByte(e.Time)
		}
		m.raise(e.Loaded)
	case events.CodeComplete:
		if e.Loaded > 0 {
			m.recordFirstByte(e.Time)
		}
		m.raise(e.Loaded)
		m.finish(e.Code, e.Time, e.Loaded)
	case events.CodeError:
		m.errorCount.Add(1)
	case events.CodeClose:
		m.finish(e.Code, e.Time, m.bytesReceived.Load())
	case events.CodeNetworkOffline:
		m.offlineCount.Add(1)
	case events.CodeNetworkRecovered:
		m.recoveryCount.Add(1)
	}
}

func (m *Metrics) start(at time.Time) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.startTime = at
	m.firstByteTime = time.Time{}
	m.endTime = time.Time{}
	m.totalBytes = 0
	m.outcome = 0
	m.startMemAlloc = ms.Alloc
	m.peakMemAlloc = ms.Alloc
	m.bytesReceived.Store(0)
	m.progressEvents.Store(0)
	m.errorCount.Store(0)
	m.offlineCount.Store(0)
	m.recoveryCount.Store(0)
}

func (m *Metrics) recordFirstByte(at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.firstByteTime.IsZero() {
		m.firstByteTime = at
	}
}

// raise moves the received counter forward; progress never goes back.
func (m *Metrics) raise(loaded int64) {
	for {
		current := m.bytesReceived.Load()
		if loaded <= current {
			return
		}
		if m.bytesReceived.CompareAndSwap(current, loaded) {
			return
		}
	}
}

func (m *Metrics) finish(outcome events.Code, at time.Time, total int64) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.endTime = at
	m.totalBytes = total
	m.outcome = outcome
	if ms.Alloc > m.peakMemAlloc {
		m.peakMemAlloc = ms.Alloc
	}
}

// Done reports whether the transfer completed or was closed.
func (m *Metrics) Done() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.endTime.IsZero()
}

// Results computes the metrics so far. For an unfinished transfer the
// elapsed time runs until now.
func (m *Metrics) Results() Results {
	m.mu.Lock()
	defer m.mu.Unlock()

	end := m.endTime
	if end.IsZero() {
		end = time.Now()
	}
	total := m.totalBytes
	if m.endTime.IsZero() {
		total = m.bytesReceived.Load()
	}

	r := Results{
		Completed:      m.outcome == events.CodeComplete,
		TotalBytes:     total,
		ProgressEvents: int(m.progressEvents.Load()),
		Errors:         int(m.errorCount.Load()),
		Offline:        int(m.offlineCount.Load()),
		Recoveries:     int(m.recoveryCount.Load()),
	}
	if !m.startTime.IsZero() {
		r.TotalTime = end.Sub(m.startTime)
		if !m.firstByteTime.IsZero() {
			r.TTFB = m.firstByteTime.Sub(m.startTime)
		}
	}
	if secs := r.TotalTime.Seconds(); secs > 0 {
		r.ThroughputMBps = float64(total) / secs / (1024 * 1024)
	}
	if m.peakMemAlloc > m.startMemAlloc {
		r.MemoryUsedMB = float64(m.peakMemAlloc-m.startMemAlloc) / (1024 * 1024)
	}
	return r
}

// Results holds the computed metrics of a transfer.
type Results struct {
	Completed      bool
	TotalTime      time.Duration
	TTFB           time.Duration
	ThroughputMBps float64
	TotalBytes     int64
	ProgressEvents int
	Errors         int
	Offline        int
	Recoveries     int
	MemoryUsedMB   float64
}

func (r Results) String() string {
	return "" +
		"=== Transfer Results ===\n" +
		fmt.Sprintf("Completed:      %t\n", r.Completed) +
		fmt.Sprintf("Throughput:     %.2f MB/s\n", r.ThroughputMBps) +
		fmt.Sprintf("Total Time:     %s\n", r.TotalTime.Round(time.Millisecond)) +
		fmt.Sprintf("TTFB:           %s\n", r.TTFB.Round(time.Millisecond)) +
		fmt.Sprintf("Total Bytes:    %s\n", utils.ConvertBytesToHumanReadable(r.TotalBytes)) +
		fmt.Sprintf("Progress Events:%d\n", r.ProgressEvents) +
		fmt.Sprintf("Errors:         %d\n", r.Errors) +
		fmt.Sprintf("Offline:        %d\n", r.Offline) +
		fmt.Sprintf("Recoveries:     %d\n", r.Recoveries) +
		fmt.Sprintf("Memory Used:    %.2f MB\n", r.MemoryUsedMB)
}
