package cmd

import (
	"strings"
	"testing"

	"github.com/surge-downloader/loader/internal/engine/types"
)

func TestRenderBar(t *testing.T) {
	cases := []struct {
		fraction float64
		filled   int
	}{
		{0, 0},
		{0.25, 8}, // cells are rounded, not truncated
		{0.5, barWidth / 2},
		{1, barWidth},
		{1.7, barWidth},
		{-1, 0},
	}
	for _, tc := range cases {
		bar := renderBar(tc.fraction)
		if got := strings.Count(bar, "█"); got != tc.filled {
			t.Errorf("renderBar(%v) filled %d cells, want %d", tc.fraction, got, tc.filled)
		}
		if got := strings.Count(bar, "█") + strings.Count(bar, "░"); got != barWidth {
			t.Errorf("renderBar(%v) has %d cells, want %d", tc.fraction, got, barWidth)
		}
	}
}

func TestRenderProgress(t *testing.T) {
	known := renderProgress(types.ByteCursor{Loaded: 512 * types.KB, Total: types.MB})
	if !strings.Contains(known, "50.0%") || !strings.Contains(known, "512.0 KB / 1.0 MB") {
		t.Errorf("unexpected progress line: %q", known)
	}

	unknown := renderProgress(types.ByteCursor{Loaded: 2048, Total: types.UnknownSize})
	if !strings.Contains(unknown, "2.0 KB") || strings.Contains(unknown, "%") {
		t.Errorf("unexpected progress line: %q", unknown)
	}
}
