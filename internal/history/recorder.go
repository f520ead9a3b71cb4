package history

import (
	"sync"

	"github.com/h2non/filetype"
	"github.com/rs/zerolog"

	"github.com/surge-downloader/loader/internal/engine/events"
	"github.com/surge-downloader/loader/internal/utils"
)

// Detect sniffs the content kind of a payload. It returns empty strings when
// the kind is not recognised.
func Detect(data []byte) (ext, mime string) {
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return "", ""
	}
	return kind.Extension, kind.MIME.Value
}

// Recorder turns loader events into ledger records. A transfer is written
// when it completes, fails or is closed; a failed resumable transfer that is
// later resumed overwrites its record with the final outcome.
type Recorder struct {
	save func(*Record) error
	log  zerolog.Logger

	mu   sync.Mutex
	open map[string]*Record // keyed by loader ID
}

func NewRecorder() *Recorder {
	return &Recorder{
		save: Save,
		log:  utils.Logger("history"),
		open: make(map[string]*Record),
	}
}

// Attach subscribes the recorder to bus and returns a function detaching it.
func (r *Recorder) Attach(bus *events.Bus) func() {
	sub := bus.SubscribeAll(r.Handle)
	return func() { bus.Unsubscribe(sub) }
}

// Handle processes one event.
func (r *Recorder) Handle(e events.Event) {
	id := e.TargetID()
	if id == "" {
		return
	}

	r.mu.Lock()
	rec := r.open[id]
	switch e.Code {
	case events.CodeStart:
		r.open[id] = &Record{LoaderID: id, URL: e.Desc, StartedAt: e.Time, Total: e.Total}
		r.mu.Unlock()
		return
	case events.CodeHTTPStatus:
		if rec != nil {
			rec.HTTPStatus = e.HTTPStatus
		}
		r.mu.Unlock()
		return
	case events.CodeProgress:
		if rec != nil {
			rec.Loaded, rec.Total = e.Loaded, e.Total
		}
		r.mu.Unlock()
		return
	case events.CodeComplete, events.CodeError, events.CodeClose:
	default:
		r.mu.Unlock()
		return
	}
	if rec == nil {
		r.mu.Unlock()
		return
	}

	switch e.Code {
	case events.CodeComplete:
		rec.Status = StatusCompleted
		rec.Loaded, rec.Total = e.Loaded, e.Total
		rec.ErrorCode, rec.Error = 0, ""
		rec.Kind, rec.MIME = Detect(e.Data)
		delete(r.open, id)
	case events.CodeError:
		rec.Status = StatusFailed
		rec.Loaded, rec.Total = e.Loaded, e.Total
		rec.ErrorCode = e.ErrorCode
		rec.Error = e.Desc
		if e.HTTPStatus != 0 {
			rec.HTTPStatus = e.HTTPStatus
		}
	case events.CodeClose:
		rec.Status = StatusClosed
		delete(r.open, id)
	}
	rec.FinishedAt = e.Time
	rec.Elapsed = 0
	snapshot := *rec
	r.mu.Unlock()

	if err := r.save(&snapshot); err != nil {
		r.log.Warn().Err(err).Str("url", snapshot.URL).Msg("failed to record transfer")
		return
	}

	r.mu.Lock()
	if open := r.open[id]; open == rec {
		rec.ID = snapshot.ID
	}
	r.mu.Unlock()
}

// Pending returns the number of transfers started but not yet finished.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.open)
}
