package transport

import (
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/vfaronov/httpheader"

	"github.com/surge-downloader/loader/internal/engine/types"
)

// HeaderInfo is what a session learns once response headers arrive.
type HeaderInfo struct {
	Status        int
	StatusText    string
	ContentLength int64 // -1 when absent
	ContentType   string
	ETag          string
	LastModified  string
	AcceptRanges  bool

	// Parsed Content-Range; -1 when absent or unparseable.
	RangeStart     int64
	RangeEnd       int64
	CompleteLength int64

	Filename string
	Header   http.Header
}

// ParseHeaderInfo extracts the fields loaders care about from a response.
func ParseHeaderInfo(resp *http.Response) HeaderInfo {
	info := HeaderInfo{
		Status:         resp.StatusCode,
		StatusText:     resp.Status,
		ContentLength:  resp.ContentLength,
		ContentType:    resp.Header.Get("Content-Type"),
		ETag:           resp.Header.Get("ETag"),
		LastModified:   resp.Header.Get("Last-Modified"),
		AcceptRanges:   strings.EqualFold(resp.Header.Get("Accept-Ranges"), "bytes"),
		RangeStart:     -1,
		RangeEnd:       -1,
		CompleteLength: -1,
		Header:         resp.Header,
	}
	if info.ContentLength < 0 {
		info.ContentLength = types.UnknownSize
	}

	if cr := resp.Header.Get("Content-Range"); cr != "" {
		info.RangeStart, info.RangeEnd, info.CompleteLength = ParseContentRange(cr)
		if info.RangeStart >= 0 {
			info.AcceptRanges = true
		}
	}

	if _, filename, _ := httpheader.ContentDisposition(resp.Header); filename != "" {
		info.Filename = path.Base(strings.ReplaceAll(filename, "\\", "/"))
	} else if resp.Request != nil && resp.Request.URL != nil {
		if base := path.Base(resp.Request.URL.Path); base != "/" && base != "." {
			info.Filename = base
		}
	}
	return info
}

// ParseContentRange parses "bytes start-end/complete" (complete may be "*")
// and "bytes */complete". Missing parts are returned as -1.
func ParseContentRange(v string) (start, end, complete int64) {
	start, end, complete = -1, -1, -1

	v = strings.TrimSpace(v)
	unit, spec, ok := strings.Cut(v, " ")
	if !ok || !strings.EqualFold(unit, "bytes") {
		return
	}
	rng, size, ok := strings.Cut(strings.TrimSpace(spec), "/")
	if !ok {
		return
	}
	if size != "*" {
		if n, err := strconv.ParseInt(size, 10, 64); err == nil && n >= 0 {
			complete = n
		}
	}
	if rng == "*" {
		return
	}
	first, last, ok := strings.Cut(rng, "-")
	if !ok {
		return
	}
	s, err1 := strconv.ParseInt(first, 10, 64)
	e, err2 := strconv.ParseInt(last, 10, 64)
	if err1 != nil || err2 != nil || s < 0 || e < s {
		return -1, -1, complete
	}
	return s, e, complete
}
