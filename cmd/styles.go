package cmd

import (
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/surge-downloader/loader/internal/engine/types"
	"github.com/surge-downloader/loader/internal/utils"
)

var (
	neonCyan   = lipgloss.AdaptiveColor{Light: "#0073a8", Dark: "#8be9fd"}
	neonPink   = lipgloss.AdaptiveColor{Light: "#d10074", Dark: "#ff79c6"}
	lightGray  = lipgloss.AdaptiveColor{Light: "#4a4a4a", Dark: "#a9b1d6"}
	stateError = lipgloss.AdaptiveColor{Light: "#d32f2f", Dark: "#ff5555"}
	statePause = lipgloss.AdaptiveColor{Light: "#f57c00", Dark: "#ffb86c"}
	stateOK    = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#50fa7b"}
	stateDone  = lipgloss.AdaptiveColor{Light: "#7b1fa2", Dark: "#bd93f9"}
)

var (
	errorStyle   = lipgloss.NewStyle().Foreground(stateError).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(statePause)
	successStyle = lipgloss.NewStyle().Foreground(stateOK).Bold(true)
	doneStyle    = lipgloss.NewStyle().Foreground(stateDone)
	urlStyle     = lipgloss.NewStyle().Foreground(neonCyan)
	dimStyle     = lipgloss.NewStyle().Foreground(lightGray)
	headerStyle  = lipgloss.NewStyle().Foreground(neonPink).Bold(true)
)

const barWidth = 30

// renderBar draws a fixed-width progress bar for fraction in [0, 1].
func renderBar(fraction float64) string {
	bar := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(barWidth),
		progress.WithoutPercentage(),
		progress.WithColorProfile(lipgloss.ColorProfile()),
	)
	return bar.ViewAs(min(max(fraction, 0), 1))
}

// renderProgress formats one status line for a transfer.
func renderProgress(c types.ByteCursor) string {
	if !c.Known() {
		return fmt.Sprintf("%s %s", renderBar(0), utils.ConvertBytesToHumanReadable(c.Loaded))
	}
	return fmt.Sprintf("%s %5.1f%% %s / %s",
		renderBar(c.Fraction()), c.Fraction()*100,
		utils.ConvertBytesToHumanReadable(c.Loaded),
		utils.ConvertBytesToHumanReadable(c.Total))
}
