// Package single implements whole-resource loaders: one HTTP exchange, the
// same event surface as the resumable engine, and post-processing of the
// payload according to a DataFormat.
package single

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/surge-downloader/loader/internal/engine/events"
	"github.com/surge-downloader/loader/internal/engine/transport"
	"github.com/surge-downloader/loader/internal/engine/types"
	"github.com/surge-downloader/loader/internal/utils"
)

// Option configures a Loader.
type Option func(*Loader)

// WithRuntime applies the request timeout, read buffer and HTTP client settings.
func WithRuntime(r *types.RuntimeConfig) Option {
	return func(l *Loader) {
		l.client = transport.NewClient(r)
		l.timeout = r.GetRequestTimeout()
		l.readBuffer = r.GetReadBufferSize()
	}
}

func WithClient(d transport.Doer) Option {
	return func(l *Loader) { l.client = d }
}

// WithFormat selects payload post-processing. Invalid formats are ignored;
// use SetFormat to get the error.
func WithFormat(f types.DataFormat) Option {
	return func(l *Loader) {
		if f.Valid() {
			l.format = f
		}
	}
}

// WithTimeout bounds the whole exchange. Zero disables the timeout.
func WithTimeout(d time.Duration) Option {
	return func(l *Loader) { l.timeout = d }
}

func WithBus(bus *events.Bus) Option {
	return func(l *Loader) {
		if bus != nil {
			l.bus = bus
		}
	}
}

func WithID(id string) Option {
	return func(l *Loader) {
		if id != "" {
			l.id = id
		}
	}
}

// Loader fetches a resource in one request.
type Loader struct {
	id         string
	client     transport.Doer
	bus        *events.Bus
	timeout    time.Duration
	readBuffer int
	log        zerolog.Logger

	mu          sync.Mutex
	format      types.DataFormat
	state       types.TransferState
	req         *types.Request
	cursor      types.ByteCursor
	contentType string
	data        []byte
	value       any
	err         error
	session     *transport.Session
	watchdog    *watchdog
	done        chan struct{}
	finished    bool
	gen         uint64
}

func New(opts ...Option) *Loader {
	l := &Loader{
		id:         uuid.New().String(),
		bus:        events.NewBus(),
		readBuffer: types.ReadBuffer,
		format:     types.FormatBinary,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.client == nil {
		l.client = transport.NewClient(nil)
	}
	l.log = utils.Logger("single").With().Str("loader", l.id).Logger()
	return l
}

func (l *Loader) ID() string {
	return l.id
}

func (l *Loader) Events() *events.Bus {
	return l.bus
}

// SetFormat changes the post-processing applied to the next completed load.
func (l *Loader) SetFormat(f types.DataFormat) error {
	if !f.Valid() {
		return fmt.Errorf("%w: %s", types.ErrInvalidFormat, f)
	}
	l.mu.Lock()
	l.format = f
	l.mu.Unlock()
	return nil
}

func (l *Loader) Format() types.DataFormat {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.format
}

// Load starts fetching req, replacing any transfer in progress.
func (l *Loader) Load(req *types.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	l.resetLocked(types.ErrAborted)
	l.req = req.Clone()
	l.cursor = types.NewCursor()
	l.done = make(chan struct{})
	l.finished = false
	gen := l.gen

	ctx, wd := newWatchdog(context.Background(), l.timeout, func() { l.onTimeout(gen) })
	l.watchdog = wd

	h := &handler{l: l, gen: gen}
	s := transport.NewSession(l.client, h)
	s.SetReadBuffer(l.readBuffer)
	_ = s.Open(l.req.GetMethod(), l.req.URL)
	for _, hdr := range l.req.Headers {
		_ = s.SetHeader(hdr.Name, hdr.Value)
	}
	if l.req.ContentType != "" {
		_ = s.SetHeader("Content-Type", l.req.ContentType)
	}
	l.session = s
	if err := s.Send(ctx, l.req.Body); err != nil {
		l.resetLocked(err)
		l.mu.Unlock()
		return err
	}
	l.state = types.StateOpened
	l.log.Debug().Str("url", l.req.URL).Str("format", l.format.String()).Dur("timeout", l.timeout).Msg("load")
	l.bus.Enqueue(events.Start(l, l.req.URL))
	l.mu.Unlock()

	l.bus.Flush()
	return nil
}

// Close aborts any exchange, publishes CLOSE and returns to IDLE. A pending
// Wait returns types.ErrAborted.
func (l *Loader) Close() {
	l.mu.Lock()
	l.resetLocked(types.ErrAborted)
	l.bus.Enqueue(events.Close(l))
	l.mu.Unlock()

	l.bus.Flush()
}

// Wait blocks until the current load finishes and returns its outcome:
// nil on COMPLETE, otherwise the error reported on the ERROR event.
func (l *Loader) Wait(ctx context.Context) error {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()
	if done == nil {
		return fmt.Errorf("%w: nothing loading", types.ErrInvalidState)
	}

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *Loader) State() types.TransferState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Data returns the raw payload once COMPLETE.
func (l *Loader) Data() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.data
}

// Value returns the decoded payload once COMPLETE: []byte, string, the
// generic JSON/YAML value, or *html.Node.
func (l *Loader) Value() any {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value
}

// ContentType returns the response Content-Type of the last load.
func (l *Loader) ContentType() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.contentType
}

func (l *Loader) BytesLoaded() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursor.Loaded
}

// BytesTotal returns the reported size, or 0 while unknown.
func (l *Loader) BytesTotal() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.cursor.Known() {
		return 0
	}
	return l.cursor.Total
}

// resetLocked ends any transfer in progress with cause and clears all state.
func (l *Loader) resetLocked(cause error) {
	if l.session != nil {
		l.session.Detach()
		l.session.Abort()
		l.session = nil
	}
	l.watchdog.Stop()
	l.watchdog = nil
	release(l.finishLocked(cause))

	l.gen++
	l.state = types.StateIdle
	l.req = nil
	l.cursor = types.ByteCursor{}
	l.contentType = ""
	l.data = nil
	l.value = nil
}

// finishLocked records the outcome of the current load. It returns the
// channel that releases Wait, to be closed once the terminal event has been
// delivered, or nil if the outcome was already recorded.
func (l *Loader) finishLocked(err error) chan struct{} {
	if l.done == nil || l.finished {
		return nil
	}
	l.finished = true
	l.err = err
	return l.done
}

func release(done chan struct{}) {
	if done != nil {
		close(done)
	}
}

// failLocked ends the transfer with an ERROR event.
func (l *Loader) failLocked(err error) chan struct{} {
	l.session = nil
	l.watchdog.Stop()
	l.watchdog = nil
	l.state = types.StateIdle
	l.log.Debug().Err(err).Msg("load failed")
	l.bus.Enqueue(events.Error(l, err, l.cursor))
	return l.finishLocked(err)
}

func (l *Loader) onTimeout(gen uint64) {
	l.mu.Lock()
	if l.gen != gen || l.session == nil {
		l.mu.Unlock()
		return
	}
	s := l.session
	s.Detach()
	s.Abort()
	done := l.failLocked(fmt.Errorf("%w after %s", types.ErrTimeout, l.timeout))
	l.mu.Unlock()

	l.bus.Flush()
	release(done)
}

type handler struct {
	l   *Loader
	gen uint64
}

// current reports whether the callback belongs to the live transfer; the
// caller must hold l.mu.
func (h *handler) current() bool {
	return h.l.gen == h.gen && h.l.session != nil
}

func (h *handler) OnStart() {}

func (h *handler) OnHeaders(info transport.HeaderInfo) {
	l := h.l
	l.mu.Lock()
	if !h.current() {
		l.mu.Unlock()
		return
	}
	l.state = types.StateHeadersReceived
	l.cursor.Total = info.ContentLength
	l.contentType = info.ContentType
	l.bus.Enqueue(events.HTTPStatus(l, info.Status, info.StatusText))
	l.mu.Unlock()

	l.bus.Flush()
}

func (h *handler) OnProgress(loaded, total int64) {
	l := h.l
	l.mu.Lock()
	if !h.current() || !l.cursor.Accepts(loaded) || loaded < l.cursor.Loaded {
		l.mu.Unlock()
		return
	}
	l.state = types.StateDownloading
	l.cursor.Loaded = loaded
	l.bus.Enqueue(events.Progress(l, l.cursor))
	l.mu.Unlock()

	l.bus.Flush()
}

func (h *handler) OnLoad(status int, body []byte) {
	l := h.l
	l.mu.Lock()
	if !h.current() {
		l.mu.Unlock()
		return
	}

	value, err := decode(l.format, body, l.contentType)
	if err != nil {
		l.data = body
		done := l.failLocked(err)
		l.mu.Unlock()
		l.bus.Flush()
		release(done)
		return
	}

	l.session = nil
	l.watchdog.Stop()
	l.watchdog = nil
	l.data = body
	l.value = value
	l.cursor.Loaded = int64(len(body))
	if !l.cursor.Known() || l.cursor.Total < l.cursor.Loaded {
		l.cursor.Total = l.cursor.Loaded
	}
	l.state = types.StateComplete
	l.log.Debug().Int("status", status).Int("bytes", len(body)).Msg("complete")
	l.bus.Enqueue(events.Complete(l, body, l.cursor))
	done := l.finishLocked(nil)
	l.mu.Unlock()

	l.bus.Flush()
	release(done)
}

func (h *handler) OnError(err error) {
	l := h.l
	l.mu.Lock()
	if !h.current() {
		l.mu.Unlock()
		return
	}
	done := l.failLocked(err)
	l.mu.Unlock()

	l.bus.Flush()
	release(done)
}

func (h *handler) OnAbort() {}

// Fetch loads req and waits for it, returning the decoded value.
func Fetch(ctx context.Context, req *types.Request, opts ...Option) (any, error) {
	l := New(opts...)
	if err := l.Load(req); err != nil {
		return nil, err
	}
	if err := l.Wait(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			l.Close()
		}
		return nil, err
	}
	return l.Value(), nil
}
