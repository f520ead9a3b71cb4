package resumable

import (
	"github.com/surge-downloader/loader/internal/engine/connectivity"
	"github.com/surge-downloader/loader/internal/engine/events"
	"github.com/surge-downloader/loader/internal/engine/transport"
	"github.com/surge-downloader/loader/internal/engine/types"
)

// Option configures a Loader.
type Option func(*Loader)

// WithRuntime applies chunk size, read buffer and HTTP client settings.
// Later options override it.
func WithRuntime(r *types.RuntimeConfig) Option {
	return func(l *Loader) {
		l.runtime = r
		l.chunkSize = r.GetChunkSize()
		l.readBuffer = r.GetReadBufferSize()
		l.client = transport.NewClient(r)
	}
}

// WithClient sets the HTTP client used by every session.
func WithClient(d transport.Doer) Option {
	return func(l *Loader) { l.client = d }
}

// WithChunkSize sets the size of each ranged request. Non-positive values
// keep the default.
func WithChunkSize(n int64) Option {
	return func(l *Loader) {
		if n > 0 {
			l.chunkSize = n
		}
	}
}

// WithReadBuffer sets the body read size, which bounds PROGRESS granularity.
func WithReadBuffer(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.readBuffer = n
		}
	}
}

// WithConnectivity enables automatic resume driven by source.
func WithConnectivity(source connectivity.Source) Option {
	return func(l *Loader) { l.source = source }
}

// WithBus publishes events on a shared bus instead of a private one.
func WithBus(bus *events.Bus) Option {
	return func(l *Loader) {
		if bus != nil {
			l.bus = bus
		}
	}
}

// WithID overrides the generated loader ID.
func WithID(id string) Option {
	return func(l *Loader) {
		if id != "" {
			l.id = id
		}
	}
}
