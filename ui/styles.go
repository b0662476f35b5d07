package ui

import "github.com/charmbracelet/lipgloss"

// Colors shared across the UI. Adaptive pairs keep the palette readable
// on both light and dark terminals.
var (
	normalFg    = lipgloss.AdaptiveColor{Light: "#1A1A1A", Dark: "#DDDDDD"}
	dimNormalFg = lipgloss.AdaptiveColor{Light: "#A49FA5", Dark: "#777777"}

	brightGrayFg = lipgloss.AdaptiveColor{Light: "#847A85", Dark: "#979797"}

	grayFg = lipgloss.AdaptiveColor{Light: "#909090", Dark: "#626262"}

	fuchsia    = lipgloss.Color("#EE6FF8")
	dimFuchsia = lipgloss.AdaptiveColor{Light: "#F1A8FF", Dark: "#99519E"}

	green        = lipgloss.Color("#04B575")
	semiDimGreen = lipgloss.AdaptiveColor{Light: "#35D79C", Dark: "#036B46"}

	yellowGreen = lipgloss.Color("#ECFD65")
	red         = lipgloss.AdaptiveColor{Light: "#FF4672", Dark: "#ED567A"}
)

var (
	logoStyle = lipgloss.NewStyle().
			Foreground(yellowGreen).
			Background(fuchsia).
			Bold(true)

	selectedStyle = lipgloss.NewStyle().Foreground(fuchsia)
	subtleStyle   = lipgloss.NewStyle().Foreground(grayFg)

	errorTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ECFD65")).
			Background(red)

	// Reader text. The spoken sentence lifts out of the surrounding dim
	// text and the spoken word lifts out of the sentence.
	readerTextStyle      = lipgloss.NewStyle().Foreground(brightGrayFg)
	readerSpokenStyle    = lipgloss.NewStyle().Foreground(dimNormalFg)
	currentSentenceStyle = lipgloss.NewStyle().Foreground(normalFg).Bold(true)
	activeWordStyle      = lipgloss.NewStyle().Foreground(fuchsia).Bold(true).Underline(true)

	timelineLabelStyle = lipgloss.NewStyle().Foreground(grayFg)
)

// logoView renders the program badge shown on the left of status bars.
func logoView() string {
	return logoStyle.Render(" Lector ")
}
