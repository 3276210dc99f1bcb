package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailgrab/internal/theme"
)

// Layout manages the terminal layout dimensions: a one-line header, the
// content area and a one-line status bar.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	StatusBarHeight int
}

// NewLayout creates a Layout with the given terminal dimensions.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		StatusBarHeight: 1,
	}
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the height available for the main content area.
func (l Layout) ContentHeight() int {
	return l.Height - l.HeaderHeight - l.StatusBarHeight
}

// RenderHeader renders the top header bar with a title on the left and the
// sync status on the right.
func (l Layout) RenderHeader(title string, syncStatus string) string {
	left := theme.HeaderStyle.Render(title)
	right := theme.HeaderStyle.Align(lipgloss.Right).Render(syncStatus)
	return joinWithFiller(l.Width, theme.HeaderStyle, left, right)
}

// RenderStatusBar renders the bottom status bar with keyboard hints.
func (l Layout) RenderStatusBar(hints string) string {
	return joinWithFiller(l.Width, theme.StatusBarStyle, theme.StatusBarStyle.Render(hints))
}

// RenderWithFrame composes a full terminal view by vertically joining the
// header, content area and status bar.
func (l Layout) RenderWithFrame(header, content, statusBar string) string {
	return lipgloss.JoinVertical(lipgloss.Left, header, content, statusBar)
}

// joinWithFiller joins the segments horizontally, padding the gap with the
// style's background color so the bar spans the full width.
func joinWithFiller(width int, style lipgloss.Style, segments ...string) string {
	used := 0
	for _, s := range segments {
		used += lipgloss.Width(s)
	}
	gap := width - used
	if gap < 0 {
		gap = 0
	}

	filler := style.Render(
		lipgloss.NewStyle().
			Width(gap).
			Background(style.GetBackground()).
			Render(""),
	)

	parts := make([]string, 0, len(segments)+1)
	parts = append(parts, segments[0], filler)
	parts = append(parts, segments[1:]...)
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}
