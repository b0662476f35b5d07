package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"

	"lector/tts"
)

const statusBarHeight = 1

var (
	statusBarNoteFg = lipgloss.AdaptiveColor{Light: "#656565", Dark: "#7D7D7D"}
	statusBarBg     = lipgloss.AdaptiveColor{Light: "#E6E6E6", Dark: "#242424"}

	statusBarNoteStyle = lipgloss.NewStyle().
				Foreground(statusBarNoteFg).
				Background(statusBarBg).
				Render

	statusBarHelpStyle = lipgloss.NewStyle().
				Foreground(statusBarNoteFg).
				Background(lipgloss.AdaptiveColor{Light: "#DCDCDC", Dark: "#323232"}).
				Render

	statusBarMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "#89F0CB", Dark: "#89F0CB"}).
				Background(lipgloss.AdaptiveColor{Light: "#1C8760", Dark: "#1C8760"}).
				Render

	statusBarPlayingStyle = lipgloss.NewStyle().
				Foreground(green).
				Background(statusBarBg).
				Render

	statusBarStalledStyle = lipgloss.NewStyle().
				Foreground(red).
				Background(statusBarBg).
				Render

	helpViewStyle = lipgloss.NewStyle().
			Foreground(statusBarNoteFg).
			Background(lipgloss.AdaptiveColor{Light: "#f2f2f2", Dark: "#1B1B1B"}).
			Render
)

// formatDuration renders virtual-clock seconds as m:ss, or h:mm:ss from
// an hour up. Negative values render as zero.
func formatDuration(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	h := total / 3600
	m := total % 3600 / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// stateIcon maps a session snapshot to its one-glyph status.
func stateIcon(snap tts.Snapshot) string {
	switch {
	case snap.Stalled:
		return "✗"
	case snap.PendingPlay:
		return "⟳"
	}
	switch snap.State {
	case tts.StatePlaying:
		return "▶"
	case tts.StatePaused:
		return "⏸"
	default:
		return "■"
	}
}

// playbackStatusView builds the right-hand status segment: state glyph,
// sentence position, voice, rate and clock.
func playbackStatusView(snap tts.Snapshot, voice string) string {
	var parts []string
	if snap.SentenceCount > 0 {
		parts = append(parts, fmt.Sprintf("%s %d/%d", stateIcon(snap), snap.SentenceIndex+1, snap.SentenceCount))
	} else {
		parts = append(parts, stateIcon(snap))
	}
	if voice != "" {
		parts = append(parts, voice)
	}
	parts = append(parts, fmt.Sprintf("%gx", snap.Rate))
	parts = append(parts, formatDuration(snap.Elapsed)+"/"+formatDuration(snap.Total))
	return " " + strings.Join(parts, " · ") + " "
}

func (m readerModel) statusBarView(b *strings.Builder) {
	showStatusMessage := m.state == readerStateStatusMessage

	logo := logoView()

	stat := playbackStatusView(m.snap, m.voiceName)
	switch {
	case showStatusMessage:
		stat = statusBarMessageStyle(stat)
	case m.snap.Stalled:
		stat = statusBarStalledStyle(stat)
	case m.snap.State == tts.StatePlaying:
		stat = statusBarPlayingStyle(stat)
	default:
		stat = statusBarNoteStyle(stat)
	}

	var helpNote string
	if showStatusMessage {
		helpNote = statusBarMessageStyle(" ? Help ")
	} else {
		helpNote = statusBarHelpStyle(" ? Help ")
	}

	var note string
	if showStatusMessage {
		note = m.statusMessage
	} else {
		note = m.bookNote()
	}
	note = truncate.StringWithTail(" "+note+" ", uint(max(0, //nolint:gosec
		m.common.width-
			ansi.PrintableRuneWidth(logo)-
			ansi.PrintableRuneWidth(stat)-
			ansi.PrintableRuneWidth(helpNote),
	)), ellipsis)
	if showStatusMessage {
		note = statusBarMessageStyle(note)
	} else {
		note = statusBarNoteStyle(note)
	}

	padding := max(0,
		m.common.width-
			ansi.PrintableRuneWidth(logo)-
			ansi.PrintableRuneWidth(note)-
			ansi.PrintableRuneWidth(stat)-
			ansi.PrintableRuneWidth(helpNote),
	)
	emptySpace := strings.Repeat(" ", padding)
	if showStatusMessage {
		emptySpace = statusBarMessageStyle(emptySpace)
	} else {
		emptySpace = statusBarNoteStyle(emptySpace)
	}

	fmt.Fprintf(b, "%s%s%s%s%s",
		logo,
		note,
		emptySpace,
		stat,
		helpNote,
	)
}

// bookNote is the status bar's identifying text for the open book.
func (m readerModel) bookNote() string {
	if m.book == nil {
		return ""
	}
	if m.book.Author != "" {
		return m.book.Title + " · " + m.book.Author
	}
	return m.book.Title
}
