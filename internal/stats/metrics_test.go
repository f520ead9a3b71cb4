package stats

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surge-downloader/loader/internal/engine/events"
	"github.com/surge-downloader/loader/internal/engine/resumable"
	"github.com/surge-downloader/loader/internal/engine/types"
	"github.com/surge-downloader/loader/internal/testutil"
)

type target string

func (t target) ID() string { return string(t) }

func at(e events.Event, ts time.Time) events.Event {
	e.Time = ts
	return e
}

func TestMetrics_FromEvents(t *testing.T) {
	m := NewMetrics()
	tgt := target("x")
	base := time.Now()

	m.Handle(at(events.Start(tgt, "http://example.com"), base))
	m.Handle(at(events.HTTPStatus(tgt, 200, "OK"), base.Add(50*time.Millisecond)))
	m.Handle(at(events.Progress(tgt, types.ByteCursor{Loaded: 0, Total: 2 * types.MB}), base.Add(60*time.Millisecond)))
	m.Handle(at(events.Progress(tgt, types.ByteCursor{Loaded: types.MB, Total: 2 * types.MB}), base.Add(100*time.Millisecond)))
	m.Handle(at(events.Error(tgt, errors.New("reset"), types.ByteCursor{Loaded: types.MB, Total: 2 * types.MB}), base.Add(200*time.Millisecond)))
	m.Handle(at(events.NetworkOffline(tgt, types.ByteCursor{}), base.Add(300*time.Millisecond)))
	m.Handle(at(events.NetworkRecovered(tgt, types.ByteCursor{}), base.Add(400*time.Millisecond)))
	assert.False(t, m.Done())
	m.Handle(at(events.Complete(tgt, nil, types.ByteCursor{Loaded: 2 * types.MB, Total: 2 * types.MB}), base.Add(time.Second)))
	require.True(t, m.Done())

	r := m.Results()
	assert.True(t, r.Completed)
	assert.Equal(t, time.Second, r.TotalTime)
	assert.Equal(t, 100*time.Millisecond, r.TTFB)
	assert.Equal(t, int64(2*types.MB), r.TotalBytes)
	assert.InDelta(t, 2.0, r.ThroughputMBps, 0.001)
	assert.Equal(t, 2, r.ProgressEvents)
	assert.Equal(t, 1, r.Errors)
	assert.Equal(t, 1, r.Offline)
	assert.Equal(t, 1, r.Recoveries)
}

func TestMetrics_CloseIsNotCompletion(t *testing.T) {
	m := NewMetrics()
	tgt := target("x")
	base := time.Now()

	m.Handle(at(events.Start(tgt, "http://example.com"), base))
	m.Handle(at(events.Progress(tgt, types.ByteCursor{Loaded: 512, Total: 1024}), base.Add(10*time.Millisecond)))
	m.Handle(at(events.Close(tgt), base.Add(20*time.Millisecond)))

	r := m.Results()
	assert.False(t, r.Completed)
	assert.Equal(t, int64(512), r.TotalBytes)
	assert.Equal(t, 20*time.Millisecond, r.TotalTime)
}

func TestMetrics_StartResets(t *testing.T) {
	m := NewMetrics()
	tgt := target("x")
	m.Handle(events.Start(tgt, "a"))
	m.Handle(events.Error(tgt, errors.New("boom"), types.ByteCursor{}))
	m.Handle(events.Start(tgt, "b"))
	assert.Zero(t, m.Results().Errors)
	assert.False(t, m.Done())
}

func TestMetrics_EmptyResults(t *testing.T) {
	r := NewMetrics().Results()
	assert.Zero(t, r.TotalTime)
	assert.Zero(t, r.ThroughputMBps)
	assert.True(t, strings.HasPrefix(r.String(), "=== Transfer Results ==="))
}

func TestMetrics_ResumableTransfer(t *testing.T) {
	server := testutil.NewStreamingMockServerT(t, 300*types.KB)

	l := resumable.New(resumable.WithChunkSize(100 * types.KB))
	m := NewMetrics()
	detach := m.Attach(l.Events())
	defer detach()

	require.NoError(t, l.Load(types.NewRequest(server.URL())))
	require.Eventually(t, m.Done, 10*time.Second, 10*time.Millisecond)

	r := m.Results()
	assert.True(t, r.Completed)
	assert.Equal(t, int64(300*types.KB), r.TotalBytes)
	assert.Positive(t, r.ProgressEvents)
	assert.Zero(t, r.Errors)
	assert.Contains(t, r.String(), "Total Bytes:    300.0 KB")
}
