package types

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Header is one request header. Requests keep headers as an ordered list so
// they are replayed to the server in the order the caller added them.
type Header struct {
	Name  string
	Value string
}

// Request describes one resource fetch: target URL, method, body and headers.
// Loaders clone the request on Load, so later changes by the caller do not
// affect a running transfer.
type Request struct {
	URL         string
	Method      string
	Headers     []Header
	Body        []byte
	ContentType string
}

// NewRequest returns a GET request for rawURL.
func NewRequest(rawURL string) *Request {
	return &Request{URL: rawURL, Method: http.MethodGet}
}

// AddHeader appends a header, keeping any previous value with the same name.
func (r *Request) AddHeader(name, value string) *Request {
	r.Headers = append(r.Headers, Header{Name: name, Value: value})
	return r
}

// GetMethod returns the method, defaulting to GET.
func (r *Request) GetMethod() string {
	if r == nil || r.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(r.Method)
}

// Validate checks the request can be handed to a loader.
func (r *Request) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil request", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.URL) == "" {
		return fmt.Errorf("%w: empty url", ErrInvalidRequest)
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidRequest, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidRequest)
	}
	if !isToken(r.GetMethod()) {
		return fmt.Errorf("%w: invalid method %q", ErrInvalidRequest, r.Method)
	}
	for _, h := range r.Headers {
		if !isToken(h.Name) {
			return fmt.Errorf("%w: invalid header name %q", ErrInvalidRequest, h.Name)
		}
	}
	return nil
}

// Clone returns a deep copy so the loader owns its request.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	c := *r
	c.Method = r.GetMethod()
	if r.Headers != nil {
		c.Headers = make([]Header, len(r.Headers))
		copy(c.Headers, r.Headers)
	}
	if r.Body != nil {
		c.Body = make([]byte, len(r.Body))
		copy(c.Body, r.Body)
	}
	return &c
}

// isToken reports whether s is a valid RFC 7230 token.
func isToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case strings.IndexByte("!#$%&'*+-.^_`|~", c) >= 0:
		default:
			return false
		}
	}
	return true
}
