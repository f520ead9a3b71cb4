package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransferState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "opened", StateOpened.String())
	assert.Equal(t, "headers_received", StateHeadersReceived.String())
	assert.Equal(t, "downloading", StateDownloading.String())
	assert.Equal(t, "complete", StateComplete.String())
	assert.Equal(t, "state(9)", TransferState(9).String())
}

func TestByteCursor_Unknown(t *testing.T) {
	c := NewCursor()
	assert.False(t, c.Known())
	assert.Equal(t, 0.0, c.Fraction())
	assert.Equal(t, UnknownSize, c.Remaining())
	assert.False(t, c.Done())
	assert.True(t, c.Accepts(1<<40), "any non-negative count is accepted while total is unknown")
	assert.False(t, c.Accepts(-1))
}

func TestByteCursor_Known(t *testing.T) {
	c := ByteCursor{Loaded: 250, Total: 1000}
	assert.True(t, c.Known())
	assert.InDelta(t, 0.25, c.Fraction(), 1e-9)
	assert.Equal(t, int64(750), c.Remaining())
	assert.True(t, c.Accepts(1000))
	assert.False(t, c.Accepts(1001))

	c.Loaded = 1000
	assert.True(t, c.Done())
	assert.Equal(t, int64(0), c.Remaining())
	assert.Equal(t, 1.0, c.Fraction())
}

func TestByteCursor_NextRange(t *testing.T) {
	tests := []struct {
		name      string
		cursor    ByteCursor
		size      int64
		wantStart int64
		wantEnd   int64
	}{
		{"first chunk", ByteCursor{Loaded: 0, Total: 500000}, DefaultChunkSize, 0, 204799},
		{"second chunk", ByteCursor{Loaded: 204800, Total: 500000}, DefaultChunkSize, 204800, 409599},
		{"last chunk clipped", ByteCursor{Loaded: 409600, Total: 500000}, DefaultChunkSize, 409600, 499999},
		{"unknown total not clipped", ByteCursor{Loaded: 10, Total: UnknownSize}, 10, 10, 19},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := tt.cursor.NextRange(tt.size)
			assert.Equal(t, tt.wantStart, start)
			assert.Equal(t, tt.wantEnd, end)
		})
	}
}
