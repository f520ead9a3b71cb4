package single

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/surge-downloader/loader/internal/engine/events"
	"github.com/surge-downloader/loader/internal/engine/types"
	"github.com/surge-downloader/loader/internal/testutil"
)

type recorded struct {
	mu     sync.Mutex
	events []events.Event
}

func record(l *Loader) *recorded {
	r := &recorded{}
	l.Events().SubscribeAll(func(e events.Event) {
		r.mu.Lock()
		r.events = append(r.events, e)
		r.mu.Unlock()
	})
	return r
}

func (r *recorded) count(code events.Code) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Code == code {
			n++
		}
	}
	return n
}

func (r *recorded) last() events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func serve(t *testing.T, contentType, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestLoader_Binary(t *testing.T) {
	server := testutil.NewStreamingMockServerT(t, 100*types.KB)

	l := New()
	rec := record(l)
	require.NoError(t, l.Load(types.NewRequest(server.URL())))
	require.NoError(t, l.Wait(waitCtx(t)))

	assert.Equal(t, server.Data(), l.Data())
	assert.Equal(t, server.Data(), l.Value())
	assert.Equal(t, types.StateComplete, l.State())
	assert.Equal(t, int64(100*types.KB), l.BytesLoaded())
	assert.Equal(t, int64(100*types.KB), l.BytesTotal())

	assert.Equal(t, 1, rec.count(events.CodeStart))
	assert.Equal(t, 1, rec.count(events.CodeHTTPStatus))
	assert.Equal(t, 1, rec.count(events.CodeComplete))
	assert.Positive(t, rec.count(events.CodeProgress))
	assert.Equal(t, events.CodeComplete, rec.last().Code)
	assert.Equal(t, server.Data(), rec.last().Data)
}

func TestLoader_Text(t *testing.T) {
	// "café" in ISO-8859-1.
	server := serve(t, "text/plain; charset=iso-8859-1", "caf\xe9")

	l := New(WithFormat(types.FormatText))
	require.NoError(t, l.Load(types.NewRequest(server.URL)))
	require.NoError(t, l.Wait(waitCtx(t)))
	assert.Equal(t, "café", l.Value())
	assert.Equal(t, "text/plain; charset=iso-8859-1", l.ContentType())
}

func TestLoader_JSON(t *testing.T) {
	server := serve(t, "application/json", `{"name":"loader","tags":["a","b"],"size":3}`)

	l := New(WithFormat(types.FormatJSON))
	require.NoError(t, l.Load(types.NewRequest(server.URL)))
	require.NoError(t, l.Wait(waitCtx(t)))

	v, ok := l.Value().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "loader", v["name"])
	assert.Equal(t, []any{"a", "b"}, v["tags"])
	assert.Equal(t, float64(3), v["size"])
}

func TestLoader_YAML(t *testing.T) {
	server := serve(t, "application/yaml", "name: loader\nitems:\n  - 1\n  - 2\n")

	l := New(WithFormat(types.FormatYAML))
	require.NoError(t, l.Load(types.NewRequest(server.URL)))
	require.NoError(t, l.Wait(waitCtx(t)))

	v, ok := l.Value().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "loader", v["name"])
	assert.Equal(t, []any{1, 2}, v["items"])
}

func TestLoader_Document(t *testing.T) {
	server := serve(t, "text/html; charset=utf-8", "<html><head><title>Hi</title></head><body><p>x</p></body></html>")

	l := New(WithFormat(types.FormatDocument))
	require.NoError(t, l.Load(types.NewRequest(server.URL)))
	require.NoError(t, l.Wait(waitCtx(t)))

	doc, ok := l.Value().(*html.Node)
	require.True(t, ok)
	assert.Equal(t, html.DocumentNode, doc.Type)
	assert.Equal(t, "Hi", findTitle(doc))
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
		return n.FirstChild.Data
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if title := findTitle(c); title != "" {
			return title
		}
	}
	return ""
}

func TestLoader_MalformedJSON(t *testing.T) {
	server := serve(t, "application/json", `{"name": "loader",`)

	l := New(WithFormat(types.FormatJSON))
	rec := record(l)
	require.NoError(t, l.Load(types.NewRequest(server.URL)))

	err := l.Wait(waitCtx(t))
	require.ErrorIs(t, err, types.ErrParse)
	assert.Equal(t, types.CodeParseError, types.ErrorCode(err))

	assert.Zero(t, rec.count(events.CodeComplete))
	require.Equal(t, 1, rec.count(events.CodeError))
	e := rec.last()
	assert.Equal(t, events.CodeError, e.Code)
	assert.Equal(t, types.CodeParseError, e.ErrorCode)
	assert.Nil(t, l.Value())
	assert.NotEmpty(t, l.Data(), "raw payload is kept for inspection")
}

func TestLoader_MalformedYAML(t *testing.T) {
	server := serve(t, "application/yaml", "key: [unterminated\n")

	l := New(WithFormat(types.FormatYAML))
	require.NoError(t, l.Load(types.NewRequest(server.URL)))
	assert.ErrorIs(t, l.Wait(waitCtx(t)), types.ErrParse)
}

func TestLoader_Timeout(t *testing.T) {
	unblock := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-unblock:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(unblock) })

	l := New(WithTimeout(50 * time.Millisecond))
	rec := record(l)
	require.NoError(t, l.Load(types.NewRequest(server.URL)))

	err := l.Wait(waitCtx(t))
	require.ErrorIs(t, err, types.ErrTimeout)
	assert.Equal(t, types.StateIdle, l.State())

	require.Eventually(t, func() bool { return rec.count(events.CodeError) == 1 }, time.Second, 5*time.Millisecond)
	e := rec.last()
	assert.Equal(t, types.CodeTimeout, e.ErrorCode)
	assert.Zero(t, rec.count(events.CodeComplete))
}

func TestLoader_ZeroTimeoutDisabled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		_, _ = w.Write([]byte("late"))
	}))
	t.Cleanup(server.Close)

	l := New(WithTimeout(0), WithFormat(types.FormatText))
	require.NoError(t, l.Load(types.NewRequest(server.URL)))
	require.NoError(t, l.Wait(waitCtx(t)))
	assert.Equal(t, "late", l.Value())
}

func TestLoader_HTTPError(t *testing.T) {
	server := testutil.NewStreamingMockServerT(t, 10, testutil.WithFailure(1, http.StatusForbidden))

	l := New()
	rec := record(l)
	require.NoError(t, l.Load(types.NewRequest(server.URL())))

	err := l.Wait(waitCtx(t))
	var statusErr *types.HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusForbidden, statusErr.Code)
	assert.Equal(t, 1, rec.count(events.CodeHTTPStatus))
	assert.Equal(t, http.StatusForbidden, rec.last().ErrorCode)
}

func TestLoader_CloseReleasesWait(t *testing.T) {
	server := testutil.NewStreamingMockServerT(t, 256*types.KB, testutil.WithByteLatency(5*time.Millisecond))

	l := New()
	rec := record(l)
	require.NoError(t, l.Load(types.NewRequest(server.URL())))

	errCh := make(chan error, 1)
	go func() { errCh <- l.Wait(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	l.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, types.ErrAborted)
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return after Close")
	}
	assert.Equal(t, types.StateIdle, l.State())
	assert.Zero(t, l.BytesLoaded())
	require.Eventually(t, func() bool { return rec.count(events.CodeClose) == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, rec.count(events.CodeComplete))
}

func TestLoader_PostWithBody(t *testing.T) {
	var gotBody, gotType, gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 64)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		gotType = r.Header.Get("Content-Type")
		gotMethod = r.Method
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(server.Close)

	req := &types.Request{
		URL:         server.URL,
		Method:      "post",
		Body:        []byte(`{"q":1}`),
		ContentType: "application/json",
	}
	v, err := Fetch(waitCtx(t), req, WithFormat(types.FormatJSON))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true}, v)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, `{"q":1}`, gotBody)
	assert.Equal(t, "application/json", gotType)
}

func TestLoader_FormatValidation(t *testing.T) {
	l := New()
	assert.Equal(t, types.FormatBinary, l.Format())
	assert.ErrorIs(t, l.SetFormat(types.DataFormat(99)), types.ErrInvalidFormat)
	assert.Equal(t, types.FormatBinary, l.Format())
	require.NoError(t, l.SetFormat(types.FormatYAML))
	assert.Equal(t, types.FormatYAML, l.Format())

	l = New(WithFormat(types.DataFormat(-1)))
	assert.Equal(t, types.FormatBinary, l.Format())
}

func TestLoader_WaitWithoutLoad(t *testing.T) {
	l := New()
	assert.ErrorIs(t, l.Wait(context.Background()), types.ErrInvalidState)
	assert.ErrorIs(t, l.Load(types.NewRequest("")), types.ErrInvalidRequest)
}
