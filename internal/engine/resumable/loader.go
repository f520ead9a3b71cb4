// Package resumable implements the chunked transfer engine: a resource is
// fetched as a sequence of ranged requests advancing a byte cursor, with
// pause, resume and connectivity-driven recovery.
package resumable

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/surge-downloader/loader/internal/engine/connectivity"
	"github.com/surge-downloader/loader/internal/engine/events"
	"github.com/surge-downloader/loader/internal/engine/transport"
	"github.com/surge-downloader/loader/internal/engine/types"
	"github.com/surge-downloader/loader/internal/utils"
)

// Loader owns one resource transfer at a time. All methods are safe for
// concurrent use; events are delivered outside the loader lock, so listeners
// may call back into the loader.
type Loader struct {
	id         string
	runtime    *types.RuntimeConfig
	client     transport.Doer
	chunkSize  int64
	readBuffer int
	source     connectivity.Source
	bus        *events.Bus
	monitor    *connectivity.Monitor
	log        zerolog.Logger

	mu             sync.Mutex
	state          types.TransferState
	req            *types.Request
	cursor         types.ByteCursor
	reported       int64 // highest loaded value published on a PROGRESS event
	data           []byte
	etag           string
	session        *transport.Session
	operatorPaused bool
	gen            uint64 // bumped on every reset
	ctx            context.Context
	cancel         context.CancelFunc
}

// New creates an idle loader.
func New(opts ...Option) *Loader {
	l := &Loader{
		id:         uuid.New().String(),
		chunkSize:  types.DefaultChunkSize,
		readBuffer: types.ReadBuffer,
		bus:        events.NewBus(),
		state:      types.StateIdle,
		cursor:     types.ByteCursor{},
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.client == nil {
		l.client = transport.NewClient(l.runtime)
	}
	l.monitor = connectivity.NewMonitor(l.source, l.onConnectivity)
	l.log = utils.Logger("resumable").With().Str("loader", l.id).Logger()
	return l
}

func (l *Loader) ID() string {
	return l.id
}

// Events returns the bus the loader publishes on.
func (l *Loader) Events() *events.Bus {
	return l.bus
}

// Load starts a new transfer, discarding any previous one without a CLOSE
// event. Invalid requests fail synchronously with types.ErrInvalidRequest.
func (l *Loader) Load(req *types.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	l.resetLocked()
	l.req = req.Clone()
	l.cursor = types.NewCursor()
	l.ctx, l.cancel = context.WithCancel(context.Background())

	h := &discoveryHandler{l: l}
	s := transport.NewSession(l.client, h)
	h.session = s
	s.SetReadBuffer(l.readBuffer)
	if err := s.Open(l.req.GetMethod(), l.req.URL); err != nil {
		l.resetLocked()
		l.mu.Unlock()
		return err
	}
	applyHeaders(s, l.req)
	if l.req.ContentType != "" {
		_ = s.SetHeader("Content-Type", l.req.ContentType)
	}
	l.session = s
	l.state = types.StateOpened
	if err := s.Send(l.ctx, l.req.Body); err != nil {
		l.resetLocked()
		l.mu.Unlock()
		return err
	}
	l.log.Debug().Str("url", l.req.URL).Str("method", l.req.GetMethod()).Msg("load")
	l.bus.Enqueue(events.Start(l, l.req.URL))
	l.mu.Unlock()

	l.bus.Flush()
	return nil
}

// Pause stops the in-flight chunk. The transfer stays DOWNLOADING with its
// buffer intact and no CLOSE is published. Only valid while DOWNLOADING.
func (l *Loader) Pause() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != types.StateDownloading {
		return fmt.Errorf("%w: pause in state %s", types.ErrInvalidState, l.state)
	}
	if l.operatorPaused {
		return nil
	}
	l.operatorPaused = true
	l.dropSessionLocked()
	l.monitor.Release()
	l.log.Debug().Int64("loaded", l.cursor.Loaded).Msg("paused")
	return nil
}

// Resume issues a chunk at the current offset. Only valid while DOWNLOADING
// with no chunk in flight, after Pause or a failed chunk.
func (l *Loader) Resume() error {
	l.mu.Lock()
	if l.state != types.StateDownloading || l.session != nil {
		st := l.state
		l.mu.Unlock()
		return fmt.Errorf("%w: resume in state %s", types.ErrInvalidState, st)
	}
	l.operatorPaused = false
	l.monitor.Acquire()
	l.log.Debug().Int64("loaded", l.cursor.Loaded).Msg("resume")
	l.issueChunkLocked()
	l.mu.Unlock()

	l.bus.Flush()
	return nil
}

// Close aborts any session, resets the loader to IDLE and publishes CLOSE.
// A paused transfer gets its CLOSE here; Pause itself publishes nothing.
func (l *Loader) Close() {
	l.mu.Lock()
	l.resetLocked()
	l.bus.Enqueue(events.Close(l))
	l.mu.Unlock()

	l.bus.Flush()
}

// State returns the transfer state.
func (l *Loader) State() types.TransferState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Suspended reports whether the transfer is DOWNLOADING with no chunk in
// flight, i.e. waiting for Resume.
func (l *Loader) Suspended() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == types.StateDownloading && l.session == nil
}

// Paused reports whether the operator paused the transfer.
func (l *Loader) Paused() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.operatorPaused
}

// BytesLoaded returns the number of bytes committed to the buffer.
func (l *Loader) BytesLoaded() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursor.Loaded
}

// BytesTotal returns the resource size, or 0 while unknown.
func (l *Loader) BytesTotal() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.cursor.Known() {
		return 0
	}
	return l.cursor.Total
}

// Data returns the assembled buffer so far. Callers must not modify it.
func (l *Loader) Data() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.data[:len(l.data):len(l.data)]
}

// Request returns the request of the current transfer, or nil when idle.
func (l *Loader) Request() *types.Request {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.req.Clone()
}

// resetLocked aborts any session silently and returns every field to IDLE.
func (l *Loader) resetLocked() {
	l.dropSessionLocked()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.monitor.Release()
	l.gen++
	l.state = types.StateIdle
	l.req = nil
	l.cursor = types.ByteCursor{}
	l.reported = 0
	l.data = nil
	l.etag = ""
	l.operatorPaused = false
}

// dropSessionLocked detaches the current session before aborting it, so the
// abort produces no callback into the loader.
func (l *Loader) dropSessionLocked() {
	if l.session == nil {
		return
	}
	s := l.session
	l.session = nil
	s.Detach()
	s.Abort()
}

// startChunksLocked enters DOWNLOADING after header discovery. It reports
// whether a first chunk still has to be issued with next.
func (l *Loader) startChunksLocked(info transport.HeaderInfo) bool {
	l.cursor.Total = info.ContentLength
	l.etag = info.ETag
	l.state = types.StateHeadersReceived
	l.dropSessionLocked()

	l.state = types.StateDownloading
	l.log.Debug().Int64("total", l.cursor.Total).Str("etag", l.etag).Msg("size discovered")
	if l.cursor.Done() {
		l.completeLocked()
		return false
	}
	l.monitor.Acquire()
	return true
}

// next issues the following chunk once the events of the previous step have
// been delivered, so a listener that pauses or closes on a PROGRESS event
// stops the transfer before another request goes out. It does nothing if the
// transfer was reset, paused or already resumed in the meantime.
func (l *Loader) next(gen uint64) {
	l.mu.Lock()
	if l.gen == gen && l.state == types.StateDownloading && l.session == nil && !l.operatorPaused {
		l.issueChunkLocked()
	}
	l.mu.Unlock()

	l.bus.Flush()
}

// issueChunkLocked requests the next window [loaded, loaded+chunk-1].
func (l *Loader) issueChunkLocked() {
	start, end := l.cursor.NextRange(l.chunkSize)

	h := &chunkHandler{l: l, start: start, end: end}
	s := transport.NewSession(l.client, h)
	h.session = s
	s.SetReadBuffer(l.readBuffer)
	_ = s.Open(http.MethodGet, l.req.URL)
	applyHeaders(s, l.req)
	_ = s.SetHeader("Range", fmt.Sprintf("bytes=%d-%d", start, end))
	if l.etag != "" && !strings.HasPrefix(l.etag, "W/") {
		_ = s.SetHeader("If-Range", l.etag)
	}

	l.session = s
	l.log.Debug().Int64("start", start).Int64("end", end).Msg("chunk request")
	if err := s.Send(l.ctx, nil); err != nil {
		l.session = nil
		l.failChunkLocked(err)
	}
}

func (l *Loader) failChunkLocked(err error) {
	l.log.Debug().Err(err).Int64("loaded", l.cursor.Loaded).Msg("chunk failed")
	l.bus.Enqueue(events.Error(l, err, l.cursor))
}

func (l *Loader) completeLocked() {
	l.state = types.StateComplete
	l.monitor.Release()
	if l.data == nil {
		l.data = []byte{}
	}
	l.log.Debug().Int64("bytes", l.cursor.Loaded).Msg("complete")
	l.bus.Enqueue(events.Complete(l, l.data[:len(l.data):len(l.data)], l.cursor))
}

// progressLocked publishes a PROGRESS event for loaded bytes unless it would
// move backwards or past the known total.
func (l *Loader) progressLocked(loaded int64) {
	if !l.cursor.Accepts(loaded) || loaded < l.reported {
		return
	}
	l.reported = loaded
	l.bus.Enqueue(events.Progress(l, types.ByteCursor{Loaded: loaded, Total: l.cursor.Total}))
}

func (l *Loader) onConnectivity(online bool) {
	l.mu.Lock()
	if l.state != types.StateDownloading {
		l.mu.Unlock()
		return
	}
	if !online {
		l.log.Debug().Msg("network offline")
		l.bus.Enqueue(events.NetworkOffline(l, l.cursor))
	} else if l.session == nil && !l.operatorPaused {
		l.log.Debug().Int64("loaded", l.cursor.Loaded).Msg("network recovery")
		l.bus.Enqueue(events.NetworkRecovered(l, l.cursor))
		l.issueChunkLocked()
	}
	l.mu.Unlock()

	l.bus.Flush()
}

func applyHeaders(s *transport.Session, req *types.Request) {
	for _, h := range req.Headers {
		if strings.EqualFold(h.Name, "Range") || strings.EqualFold(h.Name, "If-Range") {
			continue
		}
		_ = s.SetHeader(h.Name, h.Value)
	}
}
