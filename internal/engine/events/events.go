// Package events defines the notifications loaders publish while a transfer
// runs and the bus that delivers them.
package events

import (
	"fmt"
	"time"

	"github.com/surge-downloader/loader/internal/engine/types"
	"github.com/surge-downloader/loader/internal/utils"
)

// Code identifies the kind of notification.
type Code int

const (
	CodeStart Code = iota + 1
	CodeProgress
	CodeHTTPStatus
	CodeComplete
	CodeError
	CodeClose
	CodeNetworkOffline
	CodeNetworkRecovered
)

func (c Code) String() string {
	switch c {
	case CodeStart:
		return "start"
	case CodeProgress:
		return "progress"
	case CodeHTTPStatus:
		return "httpStatus"
	case CodeComplete:
		return "complete"
	case CodeError:
		return "error"
	case CodeClose:
		return "close"
	case CodeNetworkOffline:
		return "networkOffline"
	case CodeNetworkRecovered:
		return "networkRecovered"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// Level is the severity of a notification.
type Level int

const (
	LevelStatus Level = iota
	LevelWarning
	LevelError
	LevelCommand
)

func (l Level) String() string {
	switch l {
	case LevelStatus:
		return "status"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	case LevelCommand:
		return "command"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Target is the loader that produced an event.
type Target interface {
	ID() string
}

// Event is one notification. Only the fields relevant to Code are set.
type Event struct {
	Code   Code
	Level  Level
	Target Target

	Loaded     int64
	Total      int64
	Progress   float64 // Loaded/Total in [0, 1]
	Data       []byte
	HTTPStatus int
	ErrorCode  int
	Desc       string
	Message    string
	Err        error
	Time       time.Time
}

// TargetID returns the producing loader's ID, or "" when there is none.
func (e Event) TargetID() string {
	if e.Target == nil {
		return ""
	}
	return e.Target.ID()
}

func Start(t Target, url string) Event {
	return Event{
		Code:    CodeStart,
		Level:   LevelCommand,
		Target:  t,
		Total:   types.UnknownSize,
		Desc:    url,
		Message: "started " + url,
		Time:    time.Now(),
	}
}

func Progress(t Target, c types.ByteCursor) Event {
	msg := utils.ConvertBytesToHumanReadable(c.Loaded)
	if c.Known() {
		msg = fmt.Sprintf("%s / %s", msg, utils.ConvertBytesToHumanReadable(c.Total))
	}
	return Event{
		Code:     CodeProgress,
		Level:    LevelStatus,
		Target:   t,
		Loaded:   c.Loaded,
		Total:    c.Total,
		Progress: c.Fraction(),
		Message:  msg,
		Time:     time.Now(),
	}
}

func HTTPStatus(t Target, status int, desc string) Event {
	return Event{
		Code:       CodeHTTPStatus,
		Level:      LevelStatus,
		Target:     t,
		HTTPStatus: status,
		Desc:       desc,
		Message:    fmt.Sprintf("http status %d", status),
		Time:       time.Now(),
	}
}

func Complete(t Target, data []byte, c types.ByteCursor) Event {
	return Event{
		Code:     CodeComplete,
		Level:    LevelStatus,
		Target:   t,
		Loaded:   c.Loaded,
		Total:    c.Total,
		Progress: 1,
		Data:     data,
		Message:  "completed " + utils.ConvertBytesToHumanReadable(c.Loaded),
		Time:     time.Now(),
	}
}

// Error builds an ERROR event; the numeric code comes from types.ErrorCode.
func Error(t Target, err error, c types.ByteCursor) Event {
	code := types.ErrorCode(err)
	e := Event{
		Code:      CodeError,
		Level:     LevelError,
		Target:    t,
		Loaded:    c.Loaded,
		Total:     c.Total,
		Progress:  c.Fraction(),
		ErrorCode: code,
		Err:       err,
		Time:      time.Now(),
	}
	if code >= 400 && code < 600 {
		e.HTTPStatus = code
	}
	if err != nil {
		e.Desc = err.Error()
		e.Message = fmt.Sprintf("error %d: %v", code, err)
	}
	return e
}

func Close(t Target) Event {
	return Event{
		Code:    CodeClose,
		Level:   LevelCommand,
		Target:  t,
		Message: "closed",
		Time:    time.Now(),
	}
}

func NetworkOffline(t Target, c types.ByteCursor) Event {
	return Event{
		Code:     CodeNetworkOffline,
		Level:    LevelWarning,
		Target:   t,
		Loaded:   c.Loaded,
		Total:    c.Total,
		Progress: c.Fraction(),
		Message:  "network offline",
		Time:     time.Now(),
	}
}

func NetworkRecovered(t Target, c types.ByteCursor) Event {
	return Event{
		Code:     CodeNetworkRecovered,
		Level:    LevelStatus,
		Target:   t,
		Loaded:   c.Loaded,
		Total:    c.Total,
		Progress: c.Fraction(),
		Message:  "network recovery",
		Time:     time.Now(),
	}
}
