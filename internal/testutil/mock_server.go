package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// RecordedRequest is what the mock server saw for one request.
type RecordedRequest struct {
	Method  string
	Path    string
	Range   string
	IfRange string
	Header  http.Header
}

type serverConfig struct {
	rangeSupport  bool
	contentLength bool
	latency       time.Duration
	byteLatency   time.Duration // per KB written
	etag          string
	contentType   string
	filename      string
	failures      map[int]int   // request number -> status
	drops         map[int]int64 // request number -> bytes written before the connection is cut
}

// ServerOption configures a MockServer.
type ServerOption func(*serverConfig)

// WithRangeSupport toggles Range handling. Without it every GET returns the
// full body with 200.
func WithRangeSupport(enabled bool) ServerOption {
	return func(c *serverConfig) { c.rangeSupport = enabled }
}

// WithLatency delays every response before headers are written.
func WithLatency(d time.Duration) ServerOption {
	return func(c *serverConfig) { c.latency = d }
}

// WithByteLatency delays each KB of body written.
func WithByteLatency(d time.Duration) ServerOption {
	return func(c *serverConfig) { c.byteLatency = d }
}

// WithoutContentLength streams responses chunked, with no Content-Length.
func WithoutContentLength() ServerOption {
	return func(c *serverConfig) { c.contentLength = false }
}

func WithETag(etag string) ServerOption {
	return func(c *serverConfig) { c.etag = etag }
}

func WithContentType(ct string) ServerOption {
	return func(c *serverConfig) { c.contentType = ct }
}

// WithFilename sends a Content-Disposition attachment header.
func WithFilename(name string) ServerOption {
	return func(c *serverConfig) { c.filename = name }
}

// WithFailure makes the nth request (1-based) answer with status.
func WithFailure(n, status int) ServerOption {
	return func(c *serverConfig) { c.failures[n] = status }
}

// WithDrop makes the nth request (1-based) cut the connection after
// writing the given number of body bytes.
func WithDrop(n int, after int64) ServerOption {
	return func(c *serverConfig) { c.drops[n] = after }
}

// MockServer serves a fixed byte slice with optional range support and
// fault injection, recording every request.
type MockServer struct {
	server *httptest.Server
	data   []byte
	config serverConfig

	mu       sync.Mutex
	requests []RecordedRequest
	failAll  int
}

// NewMockServer starts a server for data. Callers must Close it.
func NewMockServer(data []byte, opts ...ServerOption) *MockServer {
	cfg := serverConfig{
		rangeSupport:  true,
		contentLength: true,
		contentType:   "application/octet-stream",
		failures:      make(map[int]int),
		drops:         make(map[int]int64),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	m := &MockServer{data: data, config: cfg}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// NewMockServerT is NewMockServer with cleanup registered on t.
func NewMockServerT(t testing.TB, data []byte, opts ...ServerOption) *MockServer {
	t.Helper()
	m := NewMockServer(data, opts...)
	t.Cleanup(m.Close)
	return m
}

// NewStreamingMockServerT serves size bytes of PatternData.
func NewStreamingMockServerT(t testing.TB, size int64, opts ...ServerOption) *MockServer {
	t.Helper()
	return NewMockServerT(t, PatternData(size), opts...)
}

// PatternData returns deterministic, non-repeating-per-chunk test content.
func PatternData(size int64) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte((i*7 + i/251) % 256)
	}
	return data
}

// URL returns the resource URL.
func (m *MockServer) URL() string {
	return m.server.URL + "/resource.bin"
}

// Close shuts the server down. Safe to call more than once.
func (m *MockServer) Close() {
	m.server.CloseClientConnections()
	m.server.Close()
}

// Data returns the served content.
func (m *MockServer) Data() []byte {
	return m.data
}

// SetFailStatus makes every following request answer with status; 0 restores
// normal service.
func (m *MockServer) SetFailStatus(status int) {
	m.mu.Lock()
	m.failAll = status
	m.mu.Unlock()
}

// Requests returns a copy of the request log.
func (m *MockServer) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// Ranges returns the Range header of every request that carried one, in order.
func (m *MockServer) Ranges() []string {
	var out []string
	for _, r := range m.Requests() {
		if r.Range != "" {
			out = append(out, r.Range)
		}
	}
	return out
}

// RequestCount returns the number of requests served so far.
func (m *MockServer) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *MockServer) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.requests = append(m.requests, RecordedRequest{
		Method:  r.Method,
		Path:    r.URL.Path,
		Range:   r.Header.Get("Range"),
		IfRange: r.Header.Get("If-Range"),
		Header:  r.Header.Clone(),
	})
	n := len(m.requests)
	status := m.failAll
	if s, ok := m.config.failures[n]; ok {
		status = s
	}
	drop, dropping := m.config.drops[n]
	m.mu.Unlock()

	if m.config.latency > 0 {
		time.Sleep(m.config.latency)
	}

	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}

	size := int64(len(m.data))
	start, end := int64(0), size-1
	code := http.StatusOK

	h := w.Header()
	h.Set("Content-Type", m.config.contentType)
	if m.config.etag != "" {
		h.Set("ETag", m.config.etag)
	}
	if m.config.filename != "" {
		h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", m.config.filename))
	}

	if rng := r.Header.Get("Range"); rng != "" && m.config.rangeSupport && m.ifRangeMatches(r) {
		s, e, ok := parseRange(rng, size)
		if !ok {
			h.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		start, end = s, e
		code = http.StatusPartialContent
		h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	}
	if m.config.rangeSupport {
		h.Set("Accept-Ranges", "bytes")
	}

	body := m.data[start : end+1]
	if m.config.contentLength {
		h.Set("Content-Length", strconv.Itoa(len(body)))
	}
	w.WriteHeader(code)
	if r.Method == http.MethodHead {
		return
	}
	if !m.config.contentLength {
		// Flushing before the body forces chunked encoding.
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}

	if dropping {
		if drop > int64(len(body)) {
			drop = int64(len(body))
		}
		_, _ = w.Write(body[:drop])
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		if hj, ok := w.(http.Hijacker); ok {
			if conn, _, err := hj.Hijack(); err == nil {
				_ = conn.Close()
			}
		}
		return
	}

	m.write(w, body)
}

func (m *MockServer) ifRangeMatches(r *http.Request) bool {
	v := r.Header.Get("If-Range")
	return v == "" || v == m.config.etag
}

func (m *MockServer) write(w http.ResponseWriter, body []byte) {
	if m.config.byteLatency <= 0 {
		_, _ = w.Write(body)
		return
	}
	const step = 1024
	flusher, _ := w.(http.Flusher)
	for off := 0; off < len(body); off += step {
		end := min(off+step, len(body))
		if _, err := w.Write(body[off:end]); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		time.Sleep(m.config.byteLatency)
	}
}

// parseRange handles a single "bytes=start-end" or "bytes=start-" range.
func parseRange(v string, size int64) (int64, int64, bool) {
	spec, ok := strings.CutPrefix(v, "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return 0, 0, false
	}
	first, last, ok := strings.Cut(spec, "-")
	if !ok {
		return 0, 0, false
	}
	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 || start >= size {
		return 0, 0, false
	}
	end := size - 1
	if last != "" {
		e, err := strconv.ParseInt(last, 10, 64)
		if err != nil || e < start {
			return 0, 0, false
		}
		end = min(e, size-1)
	}
	return start, end, true
}
