package resumable

import (
	"fmt"
	"net/http"

	"github.com/surge-downloader/loader/internal/engine/events"
	"github.com/surge-downloader/loader/internal/engine/transport"
	"github.com/surge-downloader/loader/internal/engine/types"
)

// Each handler holds the session it was created for. A callback whose session
// is no longer the loader's current one is stale and is dropped.

type discoveryHandler struct {
	l       *Loader
	session *transport.Session
}

func (h *discoveryHandler) OnStart() {}

func (h *discoveryHandler) OnHeaders(info transport.HeaderInfo) {
	l := h.l
	l.mu.Lock()
	if l.session != h.session || l.state == types.StateDownloading {
		l.mu.Unlock()
		return
	}

	l.bus.Enqueue(events.HTTPStatus(l, info.Status, info.StatusText))
	gen, pending := l.gen, false
	switch {
	case info.Status >= http.StatusBadRequest:
		// OnError follows with the status error.
	case info.ContentLength == types.UnknownSize:
		l.log.Debug().Msg("no content length, chunked transfer impossible")
		l.dropSessionLocked()
		l.bus.Enqueue(events.Error(l, types.ErrUnknownSize, l.cursor))
		l.resetLocked()
	default:
		pending = l.startChunksLocked(info)
	}
	l.mu.Unlock()

	l.bus.Flush()
	if pending {
		l.next(gen)
	}
}

func (h *discoveryHandler) OnProgress(loaded, total int64) {}

func (h *discoveryHandler) OnLoad(status int, body []byte) {}

func (h *discoveryHandler) OnError(err error) {
	l := h.l
	l.mu.Lock()
	if l.session != h.session {
		l.mu.Unlock()
		return
	}
	l.session = nil
	l.log.Debug().Err(err).Msg("header discovery failed")
	l.bus.Enqueue(events.Error(l, err, l.cursor))
	l.resetLocked()
	l.mu.Unlock()

	l.bus.Flush()
}

func (h *discoveryHandler) OnAbort() {}

type chunkHandler struct {
	l          *Loader
	session    *transport.Session
	start, end int64
	fullBody   bool  // server ignored Range and sent the whole resource
	rangeErr   error // 206 for a window other than the one requested
}

func (h *chunkHandler) OnStart() {}

func (h *chunkHandler) OnHeaders(info transport.HeaderInfo) {
	l := h.l
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.session != h.session {
		return
	}
	h.fullBody = info.Status == http.StatusOK
	if info.Status == http.StatusPartialContent && info.RangeStart >= 0 && info.RangeStart != h.start {
		l.log.Warn().Int64("want", h.start).Int64("got", info.RangeStart).Msg("unexpected content range")
		h.rangeErr = fmt.Errorf("%w: server sent range starting at %d, requested %d",
			types.ErrNetwork, info.RangeStart, h.start)
	}
}

func (h *chunkHandler) OnProgress(loaded, total int64) {
	l := h.l
	l.mu.Lock()
	if l.session != h.session || h.fullBody || h.rangeErr != nil {
		l.mu.Unlock()
		return
	}
	l.progressLocked(h.start + loaded)
	l.mu.Unlock()

	l.bus.Flush()
}

func (h *chunkHandler) OnLoad(status int, body []byte) {
	l := h.l
	l.mu.Lock()
	if l.session != h.session {
		l.mu.Unlock()
		return
	}
	l.session = nil

	window, err := h.window(status, body)
	if err != nil {
		l.failChunkLocked(err)
		l.mu.Unlock()
		l.bus.Flush()
		return
	}

	l.data = append(l.data, window...)
	l.cursor.Loaded += int64(len(window))
	l.progressLocked(l.cursor.Loaded)

	gen, done := l.gen, l.cursor.Done()
	if done {
		l.completeLocked()
	}
	l.mu.Unlock()

	l.bus.Flush()
	if !done {
		l.next(gen)
	}
}

// window extracts the bytes for [start, end] from a chunk response.
func (h *chunkHandler) window(status int, body []byte) ([]byte, error) {
	if h.rangeErr != nil {
		return nil, h.rangeErr
	}
	want := h.end - h.start + 1
	if h.fullBody || status == http.StatusOK {
		if int64(len(body)) <= h.start {
			return nil, fmt.Errorf("%w: full response of %d bytes does not reach offset %d",
				types.ErrNetwork, len(body), h.start)
		}
		body = body[h.start:min(int64(len(body)), h.start+want)]
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty chunk at offset %d", types.ErrNetwork, h.start)
	}
	if int64(len(body)) > want {
		body = body[:want]
	}
	return body, nil
}

func (h *chunkHandler) OnError(err error) {
	l := h.l
	l.mu.Lock()
	if l.session != h.session {
		l.mu.Unlock()
		return
	}
	l.session = nil
	l.failChunkLocked(err)
	l.mu.Unlock()

	l.bus.Flush()
}

func (h *chunkHandler) OnAbort() {}
