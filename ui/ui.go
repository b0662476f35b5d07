// Package ui provides the terminal UI for the lector application.
package ui

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"lector/internal/library"
	"lector/internal/store"
	"lector/tts"
)

const (
	statusMessageTimeout = time.Second * 3 // how long to show status messages like "Copied sentence"
	ellipsis             = "…"

	// noticeBuffer sizes the engine notice queue. Notices past a full
	// queue are dropped; snapshots carry the real state.
	noticeBuffer = 64
)

// Session carries the playback machinery the UI drives. The caller owns
// the lifecycle of all three.
type Session struct {
	Engine   *tts.Engine
	Registry *tts.Registry
	Store    store.Store
}

// NewProgram returns a new Tea program wired to the session.
func NewProgram(cfg Config, s Session) *tea.Program {
	log.Debug("starting lector", "path", cfg.Path, "mouse", cfg.EnableMouse)

	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	m := newModel(cfg, s)
	return tea.NewProgram(m, opts...)
}

// state is the top-level application state.
type state int

const (
	stateShowLibrary state = iota
	stateShowReader
)

func (s state) String() string {
	return map[state]string{
		stateShowLibrary: "showing library",
		stateShowReader:  "showing reader",
	}[s]
}

// Common stuff we'll need to access in all models.
type commonModel struct {
	cfg    Config
	cwd    string
	width  int
	height int

	engine   *tts.Engine
	registry *tts.Registry
	store    store.Store
}

type model struct {
	common   *commonModel
	state    state
	fatalErr error

	// Sub-models
	library libraryModel
	reader  readerModel

	// Whether the program was pointed straight at a book file. An open
	// failure is fatal then, since there is no library to fall back to.
	directOpen bool

	// Channel that receives engine and registry notices
	notices chan tea.Msg

	// Channel that receives paths to book files
	bookFinder <-chan library.Found
}

// closeBook returns from the reader to the library. Playback pauses and
// the resume badges refresh, since progress was just persisted.
func (m *model) closeBook() []tea.Cmd {
	m.state = stateShowLibrary
	m.reader.unload()
	return []tea.Cmd{loadResumeKeys(m.common)}
}

func newModel(cfg Config, s Session) tea.Model {
	notices := make(chan tea.Msg, noticeBuffer)
	notify := func(msg tea.Msg) {
		select {
		case notices <- msg:
		default:
		}
	}
	s.Engine.SetNotifier(notify)
	s.Registry.SetNotifier(notify)

	common := commonModel{
		cfg:      cfg,
		engine:   s.Engine,
		registry: s.Registry,
		store:    s.Store,
	}

	m := model{
		common:  &common,
		state:   stateShowLibrary,
		notices: notices,
	}
	m.library = newLibraryModel(&common)
	m.reader = newReaderModel(&common)

	path := cfg.Path
	if path == "" {
		return m
	}
	info, err := os.Stat(path)
	if err != nil {
		log.Error("unable to stat file", "file", path, "error", err)
		m.fatalErr = err
		return m
	}
	if !info.IsDir() {
		m.state = stateShowReader
		m.directOpen = true
	}
	return m
}

func (m model) Init() tea.Cmd {
	log.Debug("Init() called", "state", m.state)
	cmds := []tea.Cmd{awaitEngineNotice(m.notices)}

	switch m.state {
	case stateShowReader:
		cmds = append(cmds, openBook(m.common, m.common.cfg.Path))
	default:
		cmds = append(cmds,
			m.library.spinner.Tick,
			findBooks(m.common),
			loadResumeKeys(m.common),
		)
	}

	return tea.Batch(cmds...)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// If there's been an error, any key exits
	if m.fatalErr != nil {
		if _, ok := msg.(tea.KeyMsg); ok {
			return m, tea.Quit
		}
	}

	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			if m.state == stateShowReader {
				// The reader owns esc while an overlay or a status
				// message is up.
				if m.reader.showVoices || m.reader.state != readerStateBrowse {
					break
				}
				return m, tea.Batch(m.closeBook()...)
			}

		case "q":
			// Pass through all keys if we're editing the filter
			if m.state == stateShowLibrary && m.library.filterState == filtering {
				break
			}
			// q closes the voice picker before it quits anything
			if m.state == stateShowReader && m.reader.showVoices {
				break
			}
			return m, tea.Quit

		case "ctrl+z":
			return m, tea.Suspend

		// Ctrl+C always quits no matter where in the application you are.
		case "ctrl+c":
			return m, tea.Quit
		}

	// Window size is received when starting up and on every resize
	case tea.WindowSizeMsg:
		m.common.width = msg.Width
		m.common.height = msg.Height
		m.library.setSize(msg.Width, msg.Height)
		m.reader.setSize(msg.Width, msg.Height)

	case initLibraryScanMsg:
		m.common.cwd = msg.cwd
		m.bookFinder = msg.ch
		cmds = append(cmds, findNextBook(m))

	case foundBookMsg:
		newLibraryModel, cmd := m.library.update(msg)
		m.library = newLibraryModel
		cmds = append(cmds, cmd, findNextBook(m))
		return m, tea.Batch(cmds...)

	// Always pass these to the library so it stays current even while
	// the reader is up front.
	case libraryScanFinishedMsg, filteredBooksMsg, resumeKeysMsg, spinner.TickMsg:
		newLibraryModel, cmd := m.library.update(msg)
		m.library = newLibraryModel
		return m, cmd

	case bookOpenedMsg:
		m.state = stateShowReader
		m.reader.setBook(msg.book)
		cmds = append(cmds, m.reader.watchFile)
		return m, tea.Batch(cmds...)

	case bookOpenErrMsg:
		return m.handleOpenError(msg)

	// Engine and registry notices. Re-arm the pump first so the next
	// notice is never stranded.
	case tts.StateMsg, tts.ProgressMsg, tts.HighlightMsg, tts.VoicesMsg, tts.RateMsg, tts.VoiceSelectedMsg:
		cmds = append(cmds, awaitEngineNotice(m.notices))
		newReaderModel, cmd := m.reader.update(msg)
		m.reader = newReaderModel
		cmds = append(cmds, cmd)
		return m, tea.Batch(cmds...)

	case statusMessageTimeoutMsg:
		if applicationContext(msg) == libraryContext {
			newLibraryModel, cmd := m.library.update(msg)
			m.library = newLibraryModel
			return m, cmd
		}
		newReaderModel, cmd := m.reader.update(msg)
		m.reader = newReaderModel
		return m, cmd

	case errMsg:
		m.fatalErr = msg.err
		return m, nil
	}

	// Process the active sub-model
	switch m.state {
	case stateShowLibrary:
		newLibraryModel, cmd := m.library.update(msg)
		m.library = newLibraryModel
		cmds = append(cmds, cmd)

	case stateShowReader:
		newReaderModel, cmd := m.reader.update(msg)
		m.reader = newReaderModel
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m model) handleOpenError(msg bookOpenErrMsg) (tea.Model, tea.Cmd) {
	log.Error("open book", "path", msg.path, "error", msg.err)

	// Opened straight from the command line: nothing to fall back to.
	if m.directOpen && m.reader.book == nil {
		m.fatalErr = msg.err
		return m, nil
	}

	// A reload failure keeps the text already on screen.
	if m.state == stateShowReader && m.reader.book != nil {
		cmd := m.reader.showStatusMessage("Reload failed: " + msg.err.Error())
		return m, cmd
	}

	text := "Couldn't open " + filepath.Base(msg.path)
	if errors.Is(msg.err, tts.ErrNoSentences) {
		text = "Nothing to read in " + filepath.Base(msg.path)
	}
	m.state = stateShowLibrary
	cmd := m.library.showStatusMessage(errorStatusMessage, text)
	return m, cmd
}

func (m model) View() string {
	if m.fatalErr != nil {
		return errorView(m.fatalErr, true)
	}

	switch m.state { //nolint:exhaustive
	case stateShowReader:
		return m.reader.View()
	default:
		return m.library.view()
	}
}

func errorView(err error, fatal bool) string {
	exitMsg := "press any key to "
	if fatal {
		exitMsg += "exit"
	} else {
		exitMsg += "return"
	}
	s := fmt.Sprintf("%s\n\n%v\n\n%s",
		errorTitleStyle.Render("ERROR"),
		err,
		subtleStyle.Render(exitMsg),
	)
	return "\n" + indent(s, 3)
}

// COMMANDS

func findBooks(c *commonModel) tea.Cmd {
	return func() tea.Msg {
		log.Info("findBooks")
		var (
			cwd = c.cfg.Path
			err error
		)

		if cwd == "" {
			cwd, err = os.Getwd()
			if err != nil && c.cfg.HomeDir != "" {
				cwd = c.cfg.HomeDir
				err = nil
			}
		} else {
			var info os.FileInfo
			info, err = os.Stat(cwd)
			if err == nil && info.IsDir() {
				cwd, err = filepath.Abs(cwd)
			}
		}

		// Note that this is one error check for both cases above
		if err != nil {
			log.Error("error finding books", "error", err)
			return errMsg{err}
		}

		log.Debug("library directory is", "cwd", cwd)

		ch, err := library.Scan(cwd, c.cfg.ShowAllFiles)
		if err != nil {
			log.Error("error scanning for books", "error", err)
			return errMsg{err}
		}

		return initLibraryScanMsg{cwd: cwd, ch: ch}
	}
}

func findNextBook(m model) tea.Cmd {
	return func() tea.Msg {
		res, ok := <-m.bookFinder
		if ok {
			// Okay now find the next one
			return foundBookMsg(res)
		}
		// We're done
		log.Debug("book scan finished")
		return libraryScanFinishedMsg{}
	}
}

// ETC

// Lightweight version of reflow's indent function.
func indent(s string, n int) string {
	if n <= 0 || s == "" {
		return s
	}
	l := strings.Split(s, "\n")
	b := strings.Builder{}
	i := strings.Repeat(" ", n)
	for _, v := range l {
		fmt.Fprintf(&b, "%s%s\n", i, v)
	}
	return b.String()
}
