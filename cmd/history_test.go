package cmd

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surge-downloader/loader/internal/history"
)

func TestPrintHistory_Empty(t *testing.T) {
	var buf bytes.Buffer
	printHistory(&buf, nil)
	assert.Contains(t, buf.String(), "No transfers recorded.")
}

func TestPrintHistory(t *testing.T) {
	setupHistory(t)
	rec := &history.Record{
		URL:        "https://example.com/archive.zip",
		Status:     history.StatusCompleted,
		Loaded:     2048,
		Total:      2048,
		Kind:       "zip",
		StartedAt:  time.Now().Add(-time.Second),
		FinishedAt: time.Now(),
	}
	require.NoError(t, history.Save(rec))

	recs, err := history.List(10)
	require.NoError(t, err)

	var buf bytes.Buffer
	printHistory(&buf, recs)
	out := buf.String()
	assert.Contains(t, out, rec.ID)
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "2.0 KB")
	assert.Contains(t, out, "zip")
	assert.Contains(t, out, rec.URL)
}

func TestStatusStyle(t *testing.T) {
	assert.Equal(t, doneStyle.Render("x"), statusStyle(history.StatusCompleted).Render("x"))
	assert.Equal(t, errorStyle.Render("x"), statusStyle(history.StatusFailed).Render("x"))
	assert.Equal(t, warnStyle.Render("x"), statusStyle(history.StatusClosed).Render("x"))
}
