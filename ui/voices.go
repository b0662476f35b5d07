package ui

import (
	"strings"

	"github.com/muesli/reflow/truncate"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"lector/tts"
)

// voicesModel is the voice picker overlaying the reader: the registry's
// voice groups in discovery order, one cursor over the selectable rows,
// and a scroll window for long lists.
type voicesModel struct {
	registry *tts.Registry
	rows     []voiceRow
	cursor   int
	offset   int
	width    int
	height   int
	selected string
}

// voiceRow is one rendered line: a group header or a selectable voice.
type voiceRow struct {
	header bool
	lang   string
	voice  tts.Voice
}

func newVoicesModel(registry *tts.Registry) voicesModel {
	return voicesModel{registry: registry, cursor: -1}
}

func (m *voicesModel) setSize(w, h int) {
	m.width = w
	m.height = h
	m.scrollIntoView()
}

// refresh rebuilds the rows from the registry and parks the cursor on the
// selected voice, or the first voice when nothing is selected.
func (m *voicesModel) refresh() {
	m.rows = m.rows[:0]
	for _, g := range m.registry.Groups() {
		m.rows = append(m.rows, voiceRow{header: true, lang: g.Lang})
		for _, v := range g.Voices {
			m.rows = append(m.rows, voiceRow{lang: g.Lang, voice: v})
		}
	}

	m.cursor = -1
	for i, r := range m.rows {
		if r.header {
			continue
		}
		if m.cursor < 0 {
			m.cursor = i
		}
		if r.voice.URI == m.selected {
			m.cursor = i
			break
		}
	}
	m.offset = 0
	m.scrollIntoView()
}

func (m *voicesModel) moveDown() {
	for i := m.cursor + 1; i < len(m.rows); i++ {
		if m.rows[i].header {
			continue
		}
		m.cursor = i
		break
	}
	m.scrollIntoView()
}

func (m *voicesModel) moveUp() {
	for i := m.cursor - 1; i >= 0; i-- {
		if m.rows[i].header {
			continue
		}
		m.cursor = i
		break
	}
	m.scrollIntoView()
}

// current returns the voice under the cursor.
func (m *voicesModel) current() (tts.Voice, bool) {
	if m.cursor < 0 || m.cursor >= len(m.rows) || m.rows[m.cursor].header {
		return tts.Voice{}, false
	}
	return m.rows[m.cursor].voice, true
}

func (m *voicesModel) visibleRows() int {
	// Leading blank, title, one blank above the list, one below, and the
	// key hint.
	n := m.height - 5
	if n < 1 {
		n = 1
	}
	return n
}

func (m *voicesModel) scrollIntoView() {
	if m.cursor < 0 {
		return
	}
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+m.visibleRows() {
		m.offset = m.cursor - m.visibleRows() + 1
	}
	if m.offset < 0 {
		m.offset = 0
	}
}

func (m voicesModel) view() string {
	var b strings.Builder
	b.WriteString("\n  " + currentSentenceStyle.Render("Voices") + "\n\n")

	switch {
	case !m.registry.Loaded():
		b.WriteString(subtleStyle.Render("  Discovering voices…") + "\n")
	case len(m.rows) == 0:
		b.WriteString(subtleStyle.Render("  No voices available for this language.") + "\n")
	default:
		end := m.offset + m.visibleRows()
		if end > len(m.rows) {
			end = len(m.rows)
		}
		for i := m.offset; i < end; i++ {
			b.WriteString(m.rowView(i) + "\n")
		}
	}

	b.WriteString("\n" + subtleStyle.Render("  ↑/↓ choose · enter select · esc close"))
	return b.String()
}

func (m voicesModel) rowView(i int) string {
	r := m.rows[i]
	if r.header {
		title := r.lang
		if name := langDisplayName(r.lang); name != "" {
			title += " · " + name
		}
		line := "  ── " + title + " "
		if pad := m.width - len([]rune(line)) - 2; pad > 0 {
			line += strings.Repeat("─", pad)
		}
		return subtleStyle.Render(line)
	}

	marker := "  "
	if r.voice.URI == m.selected {
		marker = "● "
	}
	name := r.voice.Name
	if name == "" {
		name = r.voice.URI
	}
	if r.voice.Local {
		name += subtleStyle.Render(" · local")
	}
	line := truncate.StringWithTail("    "+marker+name, uint(max(0, m.width-2)), ellipsis) //nolint:gosec
	if i == m.cursor {
		return selectedStyle.Render(line)
	}
	return line
}

// langDisplayName renders a language tag in its own language, e.g.
// "español (Argentina)" for es-AR. Unparseable tags render as nothing.
func langDisplayName(tag string) string {
	t, err := language.Parse(tag)
	if err != nil {
		return ""
	}
	return display.Self.Name(t)
}
