package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/nhle/bhconnect/internal/dismiss"
	"github.com/nhle/bhconnect/internal/theme"
)

// Layout manages the terminal frame: navbar on top, status bar at the
// bottom, page content in between.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	StatusBarHeight int
}

// NewLayout creates a Layout with the given terminal dimensions.
// HeaderHeight and StatusBarHeight default to 1.
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

// ContentHeight returns the height available for the main content area,
// accounting for the header and status bar.
func (l Layout) ContentHeight() int {
	h := l.Height - l.HeaderHeight - l.StatusBarHeight
	if h < 0 {
		return 0
	}
	return h
}

// ContentRect returns the cells of the content area.
func (l Layout) ContentRect() dismiss.Rect {
	return dismiss.RectAt(0, l.HeaderHeight, l.Width, l.ContentHeight())
}

// DropdownRect returns where a w-by-h dropdown hanging from the navbar is
// drawn, right-aligned at rightEdge.
func (l Layout) DropdownRect(w, h, rightEdge int) dismiss.Rect {
	x := rightEdge - w
	if x < 0 {
		x = 0
	}
	if h > l.ContentHeight() {
		h = l.ContentHeight()
	}
	return dismiss.RectAt(x, l.HeaderHeight, w, h)
}

// CenteredRect returns where a w-by-h overlay centred in the content area
// is drawn.
func (l Layout) CenteredRect(w, h int) dismiss.Rect {
	x := (l.Width - w) / 2
	if x < 0 {
		x = 0
	}
	y := l.HeaderHeight + (l.ContentHeight()-h)/2
	if y < l.HeaderHeight {
		y = l.HeaderHeight
	}
	return dismiss.RectAt(x, y, w, h)
}

// RenderHeader renders the navbar with a title on the left and the
// session controls on the right.
func (l Layout) RenderHeader(title string, right string) string {
	titleRendered := theme.HeaderStyle.Render(title)

	rightRendered := theme.HeaderStyle.
		Align(lipgloss.Right).
		Render(right)

	gap := l.Width -
		lipgloss.Width(titleRendered) -
		lipgloss.Width(rightRendered)
	if gap < 0 {
		gap = 0
	}

	filler := theme.HeaderStyle.Render(
		lipgloss.NewStyle().
			Width(gap).
			Background(theme.HeaderStyle.GetBackground()).
			Render(""),
	)

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		titleRendered,
		filler,
		rightRendered,
	)
}

// RenderStatusBar renders the bottom status bar with keyboard hints.
func (l Layout) RenderStatusBar(hints string) string {
	rendered := theme.StatusBarStyle.Render(hints)

	gap := l.Width - lipgloss.Width(rendered)
	if gap < 0 {
		gap = 0
	}

	filler := theme.StatusBarStyle.Render(
		lipgloss.NewStyle().
			Width(gap).
			Background(theme.StatusBarStyle.GetBackground()).
			Render(""),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, rendered, filler)
}

// RenderWithFrame composes a full terminal view by vertically joining
// the header, content area, and status bar. Content is padded or cut to
// the content height so overlays land on the rows their rects describe.
func (l Layout) RenderWithFrame(
	header string,
	content string,
	statusBar string,
) string {
	content = lipgloss.NewStyle().
		Height(l.ContentHeight()).
		MaxHeight(l.ContentHeight()).
		Render(content)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		content,
		statusBar,
	)
}

// Overlay draws box over base with its top-left cell at (x, y) of base.
// Cells of base to the left of box keep their styling; the rest of each
// covered line is replaced.
func Overlay(base, box string, x, y int) string {
	baseLines := strings.Split(base, "\n")
	boxLines := strings.Split(box, "\n")

	for i, line := range boxLines {
		row := y + i
		if row < 0 {
			continue
		}
		for row >= len(baseLines) {
			baseLines = append(baseLines, "")
		}

		left := ansi.Truncate(baseLines[row], x, "")
		if pad := x - lipgloss.Width(left); pad > 0 {
			left += strings.Repeat(" ", pad)
		}
		baseLines[row] = left + line
	}
	return strings.Join(baseLines, "\n")
}
