// Package transport wraps single bounded HTTP exchanges for the loaders.
package transport

import (
	"net"
	"net/http"
	"net/url"

	"github.com/surge-downloader/loader/internal/engine/types"
	"github.com/surge-downloader/loader/internal/utils"
)

// Doer performs one HTTP round trip. *http.Client and *Client satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is the HTTP client shared by all sessions of a loader.
type Client struct {
	client  *http.Client
	runtime *types.RuntimeConfig
}

// NewClient builds a client tuned for ranged transfers. A nil runtime uses defaults.
func NewClient(runtime *types.RuntimeConfig) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   types.DialTimeout,
			KeepAlive: types.KeepAliveDuration,
		}).DialContext,
		MaxIdleConns:          types.DefaultMaxIdleConns,
		MaxIdleConnsPerHost:   types.DefaultMaxIdleConns,
		IdleConnTimeout:       types.DefaultIdleConnTimeout,
		TLSHandshakeTimeout:   types.DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: types.DefaultResponseHeaderTimeout,
		ExpectContinueTimeout: types.DefaultExpectContinueTimeout,
		// Raw bytes only: transparent gzip would hide Content-Length and break ranges.
		DisableCompression: true,
	}

	if runtime != nil && runtime.ProxyURL != "" {
		if proxyURL, err := url.Parse(runtime.ProxyURL); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		} else {
			utils.Debug("transport: ignoring invalid proxy url %q: %v", runtime.ProxyURL, err)
		}
	}

	return &Client{
		// No overall timeout: chunk sessions are bounded by their range and
		// whole-resource loaders run their own watchdog.
		client:  &http.Client{Transport: transport},
		runtime: runtime,
	}
}

// Do sets the default User-Agent and configured headers, then performs the request.
// Headers already present on the request win.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.runtime.GetUserAgent())
	}
	if c.runtime != nil {
		for k, v := range c.runtime.Headers {
			if req.Header.Get(k) == "" {
				req.Header.Set(k, v)
			}
		}
	}
	return c.client.Do(req)
}
