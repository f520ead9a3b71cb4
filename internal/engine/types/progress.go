package types

import "fmt"

// TransferState is the lifecycle of one logical transfer.
type TransferState int

const (
	StateIdle TransferState = iota
	StateOpened
	StateHeadersReceived
	StateDownloading
	StateComplete
)

func (s TransferState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpened:
		return "opened"
	case StateHeadersReceived:
		return "headers_received"
	case StateDownloading:
		return "downloading"
	case StateComplete:
		return "complete"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// UnknownSize marks a ByteCursor whose total has not been reported yet.
const UnknownSize int64 = -1

// ByteCursor tracks how much of a resource has been received.
// Once Total is known, 0 <= Loaded <= Total.
type ByteCursor struct {
	Loaded int64
	Total  int64
}

// NewCursor returns an empty cursor with an unknown total.
func NewCursor() ByteCursor {
	return ByteCursor{Total: UnknownSize}
}

func (c ByteCursor) Known() bool {
	return c.Total >= 0
}

// Fraction returns Loaded/Total in [0, 1], or 0 while the total is unknown.
func (c ByteCursor) Fraction() float64 {
	if c.Total <= 0 {
		if c.Total == 0 {
			return 1
		}
		return 0
	}
	f := float64(c.Loaded) / float64(c.Total)
	if f > 1 {
		return 1
	}
	return f
}

// Remaining returns the bytes still to fetch, or UnknownSize.
func (c ByteCursor) Remaining() int64 {
	if !c.Known() {
		return UnknownSize
	}
	if c.Loaded >= c.Total {
		return 0
	}
	return c.Total - c.Loaded
}

// Done reports whether the known total has been reached.
func (c ByteCursor) Done() bool {
	return c.Known() && c.Loaded >= c.Total
}

// Accepts reports whether a progress report of loaded bytes is consistent
// with the cursor: it may not exceed a known total.
func (c ByteCursor) Accepts(loaded int64) bool {
	if loaded < 0 {
		return false
	}
	return !c.Known() || loaded <= c.Total
}

// NextRange returns the inclusive byte range of the next chunk of at most
// size bytes starting at Loaded, clipped to the known total.
func (c ByteCursor) NextRange(size int64) (start, end int64) {
	start = c.Loaded
	end = start + size - 1
	if c.Known() && end > c.Total-1 {
		end = c.Total - 1
	}
	return start, end
}
