package ui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	runewidth "github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/termenv"

	"lector/internal/library"
	"lector/tts"
	"lector/tts/sentence"
)

const (
	readerPad          = 2  // left margin, in cells
	readerDefaultWidth = 80 // text column cap when none is configured
	readerTopGap       = 1  // blank line above the first sentence
)

var readerHelpHeight int

type readerState int

const (
	readerStateBrowse readerState = iota
	readerStateStatusMessage
)

// readerModel is the reading view: the book text in a viewport with the
// spoken sentence and word highlighted, a scrubbable timeline, and the
// playback status bar. The voice picker overlays the text when open.
type readerModel struct {
	common   *commonModel
	viewport viewport.Model
	state    readerState

	book      *library.Book
	sentences []sentence.Sentence

	snap      tts.Snapshot
	voiceName string

	// Wrap cache: the unstyled wrapped lines of every sentence, plus
	// where each sentence starts and how many lines it spans. Styling a
	// sentence never changes its wrap, so the cache stays valid while
	// the highlight moves.
	lines     []string
	lineOf    []int
	lineCount []int
	textWidth int

	showHelp   bool
	showVoices bool
	voices     voicesModel
	timeline   timelineModel

	statusMessage      string
	statusMessageTimer *time.Timer

	watcher *fsnotify.Watcher
}

func newReaderModel(common *commonModel) readerModel {
	vp := viewport.New(0, 0)
	vp.YPosition = 0

	m := readerModel{
		common:   common,
		viewport: vp,
		snap:     tts.Snapshot{Highlight: tts.NoHighlight},
		voices:   newVoicesModel(common.registry),
		timeline: newTimelineModel(common.engine),
	}
	m.initWatcher()
	return m
}

func (m *readerModel) setSize(w, h int) {
	m.viewport.Width = w
	m.viewport.Height = h - statusBarHeight - timelineHeight

	if m.showHelp {
		if readerHelpHeight == 0 {
			readerHelpHeight = strings.Count(m.helpView(), "\n")
		}
		m.viewport.Height -= (statusBarHeight + readerHelpHeight)
	}

	m.timeline.setWidth(w)
	m.voices.setSize(w, m.viewport.Height)

	if m.book != nil {
		if m.desiredTextWidth() != m.textWidth {
			m.buildCache()
		}
		m.renderContent()
		m.scrollToCurrent()
	}
}

// setBook adopts the book the engine just loaded. The engine is the
// source of truth for sentences and position; the reader only mirrors it.
func (m *readerModel) setBook(book *library.Book) {
	m.book = book
	m.sentences = m.common.engine.Sentences()
	m.snap = m.common.engine.Snapshot()
	m.refreshVoiceName()
	m.state = readerStateBrowse
	m.statusMessage = ""
	m.showVoices = false
	m.voices.selected = m.snap.VoiceURI
	m.buildCache()
	m.renderContent()
	m.scrollToCurrent()
	m.timeline.setClock(m.snap.Elapsed, m.snap.Total)
}

func (m *readerModel) toggleHelp() {
	m.showHelp = !m.showHelp
	m.setSize(m.common.width, m.common.height)
	if m.viewport.PastBottom() {
		m.viewport.GotoBottom()
	}
}

func (m *readerModel) showStatusMessage(text string) tea.Cmd {
	m.state = readerStateStatusMessage
	m.statusMessage = text
	if m.statusMessageTimer != nil {
		m.statusMessageTimer.Stop()
	}
	m.statusMessageTimer = time.NewTimer(statusMessageTimeout)
	return waitForStatusMessageTimeout(readerContext, m.statusMessageTimer)
}

func (m *readerModel) unload() {
	if m.showHelp {
		m.toggleHelp()
	}
	if m.statusMessageTimer != nil {
		m.statusMessageTimer.Stop()
	}
	if err := m.common.engine.Pause(); err != nil {
		log.Debug("pause on unload", "error", err)
	}
	m.unwatchFile()
	m.state = readerStateBrowse
	m.showVoices = false
	m.book = nil
	m.sentences = nil
	m.lines = nil
	m.lineOf = nil
	m.lineCount = nil
	m.viewport.SetContent("")
	m.viewport.YOffset = 0
}

func (m *readerModel) openVoices() {
	m.voices.selected = m.snap.VoiceURI
	m.voices.setSize(m.common.width, m.viewport.Height)
	m.voices.refresh()
	m.showVoices = true
}

func (m *readerModel) closeVoices() {
	m.showVoices = false
}

// refreshVoiceName resolves the snapshot's voice URI to a display name.
// Before discovery completes the URI itself stands in.
func (m *readerModel) refreshVoiceName() {
	m.voiceName = ""
	if v, ok := m.common.registry.ByURI(m.snap.VoiceURI); ok && v.Name != "" {
		m.voiceName = v.Name
		return
	}
	m.voiceName = m.snap.VoiceURI
}

// syncSnapshot re-reads the engine after a notice. Notices are hints, not
// state: everything shown comes from the snapshot.
func (m *readerModel) syncSnapshot() {
	prev := m.snap
	m.snap = m.common.engine.Snapshot()
	m.timeline.setClock(m.snap.Elapsed, m.snap.Total)

	if m.snap.VoiceURI != prev.VoiceURI {
		m.refreshVoiceName()
		m.voices.selected = m.snap.VoiceURI
	}
	if m.book == nil {
		return
	}
	if m.snap.SentenceIndex != prev.SentenceIndex || m.snap.Highlight != prev.Highlight {
		m.renderContent()
	}
	if m.snap.SentenceIndex != prev.SentenceIndex {
		m.scrollToCurrent()
	}
}

func (m readerModel) update(msg tea.Msg) (readerModel, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.showVoices {
			return m.handleVoicesKey(msg)
		}

		switch msg.String() {
		case "esc":
			if m.state != readerStateBrowse {
				m.state = readerStateBrowse
			}

		case " ", "p":
			if m.snap.State == tts.StatePlaying {
				if err := m.common.engine.Pause(); err != nil {
					log.Warn("pause", "error", err)
				}
			} else if err := m.common.engine.Play(); err != nil {
				cmds = append(cmds, m.showStatusMessage("Can't play: "+err.Error()))
			}

		case "s":
			if err := m.common.engine.Stop(); err != nil {
				log.Warn("stop", "error", err)
			}

		case "left", "h":
			if err := m.common.engine.Seek(tts.SeekBackward); err != nil {
				log.Warn("seek", "error", err)
			}

		case "right", "l":
			if err := m.common.engine.Seek(tts.SeekForward); err != nil {
				log.Warn("seek", "error", err)
			}

		case "+", "=":
			r := m.common.engine.IncreaseRate()
			cmds = append(cmds, m.showStatusMessage(fmt.Sprintf("Rate %gx", r)))

		case "-", "_":
			r := m.common.engine.DecreaseRate()
			cmds = append(cmds, m.showStatusMessage(fmt.Sprintf("Rate %gx", r)))

		case "v":
			m.openVoices()

		case "c":
			if s, ok := m.common.engine.CurrentSentence(); ok {
				// Copy using OSC 52
				termenv.Copy(s.Text)
				// Copy using native system clipboard
				_ = clipboard.WriteAll(s.Text)
				cmds = append(cmds, m.showStatusMessage("Copied sentence"))
			}

		case "e":
			if m.book != nil {
				return m, openEditor(m.book.Path)
			}

		case "r":
			if m.book != nil {
				return m, reloadBook(m.common, m.book.Path)
			}

		case "home", "g":
			m.viewport.GotoTop()

		case "end", "G":
			m.viewport.GotoBottom()

		case "d":
			m.viewport.HalfViewDown()

		case "u":
			m.viewport.HalfViewUp()

		case "?":
			m.toggleHelp()

		default:
			// Anything unhandled scrolls the viewport.
			m.viewport, cmd = m.viewport.Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)

	case tea.MouseMsg:
		if cmd := m.handleMouse(msg); cmd != nil {
			cmds = append(cmds, cmd)
		}

	case tts.StateMsg, tts.ProgressMsg, tts.HighlightMsg, tts.RateMsg:
		m.syncSnapshot()

	case tts.VoicesMsg:
		m.syncSnapshot()
		m.refreshVoiceName()
		if m.showVoices {
			m.voices.refresh()
		}

	case tts.VoiceSelectedMsg:
		m.syncSnapshot()

	// The file was changed on disk and we're reloading it
	case reloadMsg:
		if m.book != nil {
			return m, reloadBook(m.common, m.book.Path)
		}

	// Editing might have changed the book, so load the latest version.
	case editorFinishedMsg:
		if msg.err != nil {
			log.Error("editor", "error", msg.err)
			cmds = append(cmds, m.showStatusMessage("Editor failed"))
			break
		}
		if m.book != nil {
			return m, reloadBook(m.common, m.book.Path)
		}

	case statusMessageTimeoutMsg:
		if applicationContext(msg) == readerContext {
			m.state = readerStateBrowse
		}
	}

	if !m.showVoices {
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m readerModel) handleVoicesKey(msg tea.KeyMsg) (readerModel, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg.String() {
	case "esc", "v", "q":
		m.closeVoices()

	case "j", "down":
		m.voices.moveDown()

	case "k", "up":
		m.voices.moveUp()

	case "enter":
		if v, ok := m.voices.current(); ok {
			if err := m.common.engine.SetVoice(v.URI); err != nil {
				cmds = append(cmds, m.showStatusMessage("Voice failed: "+err.Error()))
			} else {
				name := v.Name
				if name == "" {
					name = v.URI
				}
				cmds = append(cmds, m.showStatusMessage("Voice: "+name))
			}
			m.closeVoices()
		}
	}

	return m, tea.Batch(cmds...)
}

// handleMouse drives the timeline scrub. A press on the timeline row
// starts a gesture; moves and the release may wander anywhere while it is
// active. Everything else falls through to the viewport.
func (m *readerModel) handleMouse(msg tea.MouseMsg) tea.Cmd {
	timelineRow := m.viewport.Height

	switch msg.Action {
	case tea.MouseActionPress:
		if msg.Button == tea.MouseButtonLeft && msg.Y == timelineRow && !m.showVoices {
			m.timeline.scrub.Start(m.timeline.pointerPos(msg.X))
		}
	case tea.MouseActionMotion:
		if m.timeline.scrub.Active() {
			m.timeline.scrub.Move(m.timeline.pointerPos(msg.X))
		}
	case tea.MouseActionRelease:
		if m.timeline.scrub.Active() {
			m.timeline.scrub.End(m.timeline.pointerPos(msg.X))
		}
	}
	return nil
}

func (m readerModel) View() string {
	var b strings.Builder

	if m.showVoices {
		v := m.voices.view()
		lines := strings.Count(v, "\n") + 1
		b.WriteString(v)
		b.WriteString(strings.Repeat("\n", max(0, m.viewport.Height-lines)+1))
	} else {
		fmt.Fprint(&b, m.viewport.View()+"\n")
	}

	b.WriteString(m.timeline.view() + "\n")
	m.statusBarView(&b)

	if m.showHelp {
		fmt.Fprint(&b, "\n"+m.helpView())
	}

	return b.String()
}

func (m readerModel) helpView() (s string) {
	s += "\n"
	s += "k/↑      up                  space    play/pause\n"
	s += "j/↓      down                s        stop\n"
	s += "b/pgup   page up             h/←      seek back\n"
	s += "f/pgdn   page down           l/→      seek ahead\n"
	s += "u        ½ page up           +/-      speaking rate\n"
	s += "d        ½ page down         v        choose voice\n"
	s += "g/home   go to top           c        copy sentence\n"
	s += "G/end    go to bottom        e        edit this book\n"
	s += "?        close help          r        reload this book\n"
	s += "                             esc      back to library\n"
	s += "                             q        quit"

	s = indent(s, 2)

	// Fill up empty cells with spaces for background coloring
	if m.common.width > 0 {
		lines := strings.Split(s, "\n")
		for i := 0; i < len(lines); i++ {
			l := runewidth.StringWidth(lines[i])
			n := max(m.common.width-l, 0)
			lines[i] += strings.Repeat(" ", n)
		}

		s = strings.Join(lines, "\n")
	}

	return helpViewStyle(s)
}

// RENDERING

// desiredTextWidth is the wrap column: the viewport minus margins, capped
// by the configured reader width, or 80 cells by default.
func (m readerModel) desiredTextWidth() int {
	w := m.viewport.Width - readerPad*2
	limit := readerDefaultWidth
	if m.common.cfg.ReaderWidth > 0 {
		limit = int(m.common.cfg.ReaderWidth)
	}
	if w > limit {
		w = limit
	}
	if w < 1 {
		w = 1
	}
	return w
}

// buildCache wraps every sentence at the current text width. Sentences
// are joined from their words so the wrap of the plain cache and of the
// styled render agree on every break.
func (m *readerModel) buildCache() {
	m.textWidth = m.desiredTextWidth()
	m.lines = m.lines[:0]
	m.lineOf = make([]int, len(m.sentences))
	m.lineCount = make([]int, len(m.sentences))

	for i, s := range m.sentences {
		m.lineOf[i] = len(m.lines)
		wrapped := strings.Split(wordwrap.String(strings.Join(s.Words, " "), m.textWidth), "\n")
		m.lineCount[i] = len(wrapped)
		m.lines = append(m.lines, wrapped...)
		if i < len(m.sentences)-1 {
			m.lines = append(m.lines, "")
		}
	}
}

// renderContent styles the wrapped text around the engine position: spoken
// sentences dim, the current sentence bright with its active word marked,
// everything ahead in the ordinary text color.
func (m *readerModel) renderContent() {
	if len(m.sentences) == 0 {
		m.viewport.SetContent("")
		return
	}

	pad := strings.Repeat(" ", readerPad)
	var b strings.Builder
	b.WriteString(strings.Repeat("\n", readerTopGap))

	for i := range m.sentences {
		if i == m.snap.SentenceIndex {
			b.WriteString(m.currentSentenceView(m.sentences[i], pad))
		} else {
			style := readerTextStyle
			if i < m.snap.SentenceIndex {
				style = readerSpokenStyle
			}
			for l := m.lineOf[i]; l < m.lineOf[i]+m.lineCount[i]; l++ {
				b.WriteString(pad + style.Render(m.lines[l]) + "\n")
			}
		}
		if i < len(m.sentences)-1 {
			b.WriteString("\n")
		}
	}

	m.viewport.SetContent(b.String())
}

// currentSentenceView renders the spoken sentence word by word. Each word
// is styled on its own, so the ANSI-aware wrap sees the same widths as the
// plain cache and breaks in the same places.
func (m readerModel) currentSentenceView(s sentence.Sentence, pad string) string {
	word := -1
	if m.snap.Highlight.Sentence == s.Index {
		word = m.snap.Highlight.Word
	}

	parts := make([]string, len(s.Words))
	for i, w := range s.Words {
		if i == word {
			parts[i] = activeWordStyle.Render(w)
		} else {
			parts[i] = currentSentenceStyle.Render(w)
		}
	}

	var b strings.Builder
	wrapped := wordwrap.String(strings.Join(parts, " "), m.textWidth)
	for _, line := range strings.Split(wrapped, "\n") {
		b.WriteString(pad + line + "\n")
	}
	return b.String()
}

// scrollToCurrent centers the spoken sentence in the viewport. SetYOffset
// clamps, so the ends of the book settle against the edges.
func (m *readerModel) scrollToCurrent() {
	i := m.snap.SentenceIndex
	if i < 0 || i >= len(m.lineOf) {
		return
	}
	m.viewport.SetYOffset(readerTopGap + m.lineOf[i] - (m.viewport.Height-m.lineCount[i])/2)
}

// FILE WATCHING

func (m *readerModel) initWatcher() {
	var err error
	m.watcher, err = fsnotify.NewWatcher()
	if err != nil {
		log.Error("error creating fsnotify watcher", "error", err)
	}
}

func (m *readerModel) watchFile() tea.Msg {
	if m.watcher == nil || m.book == nil {
		return nil
	}

	dir := m.localDir()
	path := m.book.Path

	if err := m.watcher.Add(dir); err != nil {
		log.Error("error adding dir to fsnotify watcher", "error", err)
		return nil
	}

	log.Info("fsnotify watching dir", "dir", dir)

	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			log.Debug("fsnotify event", "file", event.Name, "event", event.Op)
			return reloadMsg{}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return nil
			}
			log.Debug("fsnotify error", "dir", dir, "error", err)
		}
	}
}

func (m *readerModel) unwatchFile() {
	if m.watcher == nil || m.book == nil {
		return
	}

	dir := m.localDir()
	err := m.watcher.Remove(dir)
	if err == nil {
		log.Debug("fsnotify dir unwatched", "dir", dir)
	} else {
		log.Error("fsnotify fail to unwatch dir", "dir", dir, "error", err)
	}
}

func (m *readerModel) localDir() string {
	return filepath.Dir(m.book.Path)
}
