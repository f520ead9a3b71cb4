package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/surge-downloader/loader/internal/engine/types"
)

// ReadyState mirrors the progression of one exchange.
type ReadyState int

const (
	ReadyUnsent ReadyState = iota
	ReadyOpened
	ReadyHeadersReceived
	ReadyLoading
	ReadyDone
)

// maxPrealloc caps the body buffer reserved up front from Content-Length.
const maxPrealloc = 64 * types.MB

// Handler receives the callbacks of one session. Callbacks run on the
// session's goroutine, except OnAbort which runs on the caller of Abort.
// Exactly one of OnLoad, OnError or OnAbort is delivered.
type Handler interface {
	OnStart()
	OnHeaders(info HeaderInfo)
	OnProgress(loaded, total int64)
	OnLoad(status int, body []byte)
	OnError(err error)
	OnAbort()
}

// Session is a single HTTP exchange: open, configure headers, send, and
// receive callbacks until one terminal callback.
type Session struct {
	doer       Doer
	bufferSize int

	mu         sync.Mutex
	handler    Handler
	method     string
	url        string
	header     http.Header
	ready      ReadyState
	sent       bool
	terminated bool
	cancel     context.CancelFunc
}

// NewSession creates an unsent session. A nil doer uses a default Client.
func NewSession(doer Doer, handler Handler) *Session {
	if doer == nil {
		doer = NewClient(nil)
	}
	return &Session{
		doer:       doer,
		bufferSize: types.ReadBuffer,
		handler:    handler,
		header:     make(http.Header),
	}
}

// SetReadBuffer sets the size of each body read, which is also the
// granularity of OnProgress.
func (s *Session) SetReadBuffer(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > 0 {
		s.bufferSize = n
	}
}

// Open sets the method and URL. It may only be called before Send.
func (s *Session) Open(method, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sent {
		return fmt.Errorf("%w: session already sent", types.ErrInvalidState)
	}
	if method == "" {
		method = http.MethodGet
	}
	s.method = method
	s.url = url
	s.ready = ReadyOpened
	return nil
}

// SetHeader sets a request header between Open and Send.
func (s *Session) SetHeader(name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready != ReadyOpened || s.sent {
		return fmt.Errorf("%w: headers can only be set on an opened session", types.ErrInvalidState)
	}
	s.header.Set(name, value)
	return nil
}

// Send starts the exchange in the background and returns immediately.
// Request construction failures are returned synchronously.
func (s *Session) Send(ctx context.Context, body []byte) error {
	s.mu.Lock()
	if s.ready != ReadyOpened || s.sent {
		s.mu.Unlock()
		return fmt.Errorf("%w: session is not open", types.ErrInvalidState)
	}

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, s.method, s.url, reader)
	if err != nil {
		s.mu.Unlock()
		cancel()
		return fmt.Errorf("%w: %v", types.ErrInvalidRequest, err)
	}
	req.Header = s.header.Clone()

	s.sent = true
	s.cancel = cancel
	bufferSize := s.bufferSize
	s.mu.Unlock()

	go s.run(ctx, req, bufferSize)
	return nil
}

// Abort cancels the exchange. If no terminal callback was delivered yet,
// the handler receives OnAbort and is detached.
func (s *Session) Abort() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	if s.terminated {
		s.mu.Unlock()
		return
	}
	s.terminated = true
	s.ready = ReadyDone
	h := s.handler
	s.handler = nil
	s.mu.Unlock()

	if h != nil {
		h.OnAbort()
	}
}

// Detach drops the handler without delivering anything further.
func (s *Session) Detach() {
	s.mu.Lock()
	s.handler = nil
	s.mu.Unlock()
}

// ReadyState reports how far the exchange has progressed.
func (s *Session) ReadyState() ReadyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *Session) run(ctx context.Context, req *http.Request, bufferSize int) {
	defer s.release()

	s.notify(func(h Handler) { h.OnStart() })

	resp, err := s.doer.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.fail(fmt.Errorf("%w: %v", types.ErrNetwork, err))
		return
	}
	defer resp.Body.Close()

	info := ParseHeaderInfo(resp)
	s.setReady(ReadyHeadersReceived)
	s.notify(func(h Handler) { h.OnHeaders(info) })

	if resp.StatusCode >= 400 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*types.KB))
		s.fail(&types.HTTPStatusError{Code: resp.StatusCode, Status: resp.Status})
		return
	}

	s.setReady(ReadyLoading)

	var body []byte
	if n := info.ContentLength; n > 0 {
		body = make([]byte, 0, min(n, maxPrealloc))
	}
	buf := make([]byte, bufferSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			body = append(body, buf[:n]...)
			loaded := int64(len(body))
			s.notify(func(h Handler) { h.OnProgress(loaded, info.ContentLength) })
		}
		if readErr == nil {
			continue
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if ctx.Err() != nil {
			return
		}
		s.fail(fmt.Errorf("%w: %v", types.ErrNetwork, readErr))
		return
	}

	if ctx.Err() != nil {
		return
	}
	if h := s.finish(); h != nil {
		h.OnLoad(resp.StatusCode, body)
	}
}

func (s *Session) release() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Session) setReady(r ReadyState) {
	s.mu.Lock()
	if !s.terminated {
		s.ready = r
	}
	s.mu.Unlock()
}

// notify delivers a non-terminal callback unless the session already ended.
func (s *Session) notify(fn func(Handler)) {
	s.mu.Lock()
	h := s.handler
	if s.terminated {
		h = nil
	}
	s.mu.Unlock()
	if h != nil {
		fn(h)
	}
}

// finish marks the session terminated and hands back the handler for the
// terminal callback, or nil if another terminal already happened.
func (s *Session) finish() Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return nil
	}
	s.terminated = true
	s.ready = ReadyDone
	h := s.handler
	s.handler = nil
	return h
}

func (s *Session) fail(err error) {
	if h := s.finish(); h != nil {
		h.OnError(err)
	}
}
