package cmd

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/surge-downloader/loader/internal/history"
)

func init() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

func setupHistory(t *testing.T) {
	t.Helper()
	history.CloseDB()
	history.Configure(filepath.Join(t.TempDir(), "history.db"))
	t.Cleanup(history.CloseDB)
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	t.Cleanup(cancel)
	return ctx
}
