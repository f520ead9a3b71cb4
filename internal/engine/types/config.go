package types

import (
	"time"
)

// Size constants
const (
	KB = 1024
	MB = 1024 * KB
	GB = 1024 * MB

	// Megabyte as float for display calculations
	Megabyte = 1024.0 * 1024.0
)

// Chunk constants for resumable transfers
const (
	DefaultChunkSize = 200 * KB // 204800 bytes per ranged request
	MinChunkSize     = 4 * KB
	MaxChunkSize     = 64 * MB
	ReadBuffer       = 32 * KB // Body read size; one PROGRESS event per read
)

// HTTP Client Tuning
const (
	DefaultMaxIdleConns          = 100
	DefaultIdleConnTimeout       = 90 * time.Second
	DefaultTLSHandshakeTimeout   = 10 * time.Second
	DefaultResponseHeaderTimeout = 15 * time.Second
	DefaultExpectContinueTimeout = 1 * time.Second
	DialTimeout                  = 10 * time.Second
	KeepAliveDuration            = 30 * time.Second
	ProbeTimeout                 = 30 * time.Second
)

// Connectivity defaults
const (
	DefaultProbeAddress  = "1.1.1.1:443"
	DefaultProbeInterval = 2 * time.Second
	ProbeDialTimeout     = 3 * time.Second
)

const defaultUserAgent = "surge-loader/1.0"

// RuntimeConfig holds dynamic settings that can override defaults
type RuntimeConfig struct {
	UserAgent      string
	ProxyURL       string
	ChunkSize      int64
	ReadBufferSize int
	RequestTimeout time.Duration // Whole-resource loaders only; 0 disables
	Headers        map[string]string

	AutoResume    bool
	ProbeAddress  string
	ProbeInterval time.Duration
}

// GetUserAgent returns the configured user agent or the default
func (r *RuntimeConfig) GetUserAgent() string {
	if r == nil || r.UserAgent == "" {
		return defaultUserAgent
	}
	return r.UserAgent
}

// GetChunkSize returns the configured chunk size clamped to [MinChunkSize, MaxChunkSize]
func (r *RuntimeConfig) GetChunkSize() int64 {
	if r == nil || r.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	if r.ChunkSize < MinChunkSize {
		return MinChunkSize
	}
	if r.ChunkSize > MaxChunkSize {
		return MaxChunkSize
	}
	return r.ChunkSize
}

// GetReadBufferSize returns configured value or default
func (r *RuntimeConfig) GetReadBufferSize() int {
	if r == nil || r.ReadBufferSize <= 0 {
		return ReadBuffer
	}
	return r.ReadBufferSize
}

func (r *RuntimeConfig) GetRequestTimeout() time.Duration {
	if r == nil || r.RequestTimeout < 0 {
		return 0
	}
	return r.RequestTimeout
}

func (r *RuntimeConfig) GetAutoResume() bool {
	if r == nil {
		return true
	}
	return r.AutoResume
}

func (r *RuntimeConfig) GetProbeAddress() string {
	if r == nil || r.ProbeAddress == "" {
		return DefaultProbeAddress
	}
	return r.ProbeAddress
}

func (r *RuntimeConfig) GetProbeInterval() time.Duration {
	if r == nil || r.ProbeInterval <= 0 {
		return DefaultProbeInterval
	}
	if r.ProbeInterval < 250*time.Millisecond {
		return 250 * time.Millisecond
	}
	return r.ProbeInterval
}
