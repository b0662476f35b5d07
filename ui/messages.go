package ui

import (
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/charmbracelet/x/editor"

	"lector/internal/library"
	"lector/internal/store"
	"lector/tts"
)

type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }

type (
	// initLibraryScanMsg carries the channel the book walk streams results
	// through.
	initLibraryScanMsg struct {
		cwd string
		ch  <-chan library.Found
	}

	foundBookMsg            library.Found
	libraryScanFinishedMsg  struct{}
	statusMessageTimeoutMsg applicationContext

	// bookOpenedMsg announces a loaded book whose session is live on the
	// engine. Sent both on first open and on reload.
	bookOpenedMsg struct {
		book *library.Book
	}

	// bookOpenErrMsg announces a failed open or reload.
	bookOpenErrMsg struct {
		path string
		err  error
	}

	editorFinishedMsg struct{ err error }

	// reloadMsg asks the reader to re-read the current book from disk.
	reloadMsg struct{}
)

// applicationContext indicates the area of the application something applies
// to. Occasionally used as an argument to commands and messages.
type applicationContext int

const (
	libraryContext applicationContext = iota
	readerContext
)

// awaitEngineNotice relays the next engine or registry announcement into
// the update loop. The handler re-issues it, one outstanding read at a
// time, the same way the library scan channel is pumped.
func awaitEngineNotice(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

// openBook loads a book from disk, resumes its stored progress and swaps
// it onto the engine.
func openBook(c *commonModel, path string) tea.Cmd {
	return func() tea.Msg {
		bk, err := library.Load(path)
		if err != nil {
			log.Error("unable to load book", "path", path, "error", err)
			return bookOpenErrMsg{path: path, err: err}
		}

		initial := tts.DefaultProgress()
		if tts.ValidRate(c.cfg.Rate) {
			initial.Rate = c.cfg.Rate
		}
		switch p, err := c.store.Load(bk.Key); {
		case err == nil:
			initial = p
		case errors.Is(err, store.ErrNotFound):
			// First open.
		default:
			log.Warn("stored progress unavailable", "book", bk.Key, "error", err)
		}

		if err := c.engine.Load(bk.Key, bk.FullText(), initial); err != nil {
			return bookOpenErrMsg{path: path, err: err}
		}
		return bookOpenedMsg{book: bk}
	}
}

// reloadBook re-reads the current book and re-segments it, keeping the
// session position. Deterministic segmentation clamps the index into the
// new sentence sequence.
func reloadBook(c *commonModel, path string) tea.Cmd {
	return func() tea.Msg {
		bk, err := library.Load(path)
		if err != nil {
			log.Error("unable to reload book", "path", path, "error", err)
			return bookOpenErrMsg{path: path, err: err}
		}

		snap := c.engine.Snapshot()
		current := tts.Progress{
			SentenceIndex: snap.SentenceIndex,
			VoiceURI:      snap.VoiceURI,
			Rate:          snap.Rate,
			Elapsed:       snap.Elapsed,
		}
		if err := c.engine.Load(bk.Key, bk.FullText(), current); err != nil {
			return bookOpenErrMsg{path: path, err: err}
		}
		return bookOpenedMsg{book: bk}
	}
}

// openEditor suspends the TUI and opens the book file in EDITOR.
func openEditor(path string) tea.Cmd {
	cb := func(err error) tea.Msg {
		return editorFinishedMsg{err}
	}
	c, err := editor.Cmd("Lector", path)
	if err != nil {
		return func() tea.Msg { return errMsg{err} }
	}
	return tea.ExecProcess(c, cb)
}

func waitForStatusMessageTimeout(appCtx applicationContext, t *time.Timer) tea.Cmd {
	return func() tea.Msg {
		<-t.C
		return statusMessageTimeoutMsg(appCtx)
	}
}
