package ui

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/charmbracelet/bubbles/paginator"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/truncate"
	"github.com/sahilm/fuzzy"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"lector/internal/library"
)

const (
	libraryTopPadding    = 5 // blank, logo row, blank, header row, blank
	libraryBottomPadding = 3 // paginator, blank, help
	libraryItemHeight    = 3 // title, meta, gap
)

type filterState int

const (
	unfiltered filterState = iota
	filtering
	filterApplied
)

type statusMessageType int

const (
	normalStatusMessage statusMessageType = iota
	errorStatusMessage
)

var (
	libraryStatusStyle    = lipgloss.NewStyle().Foreground(green)
	libraryStatusErrStyle = lipgloss.NewStyle().Foreground(red)
)

// filteredBooksMsg delivers the result of a fuzzy filter pass.
type filteredBooksMsg []*bookItem

// resumeKeysMsg carries the set of book keys that have stored progress.
type resumeKeysMsg map[string]struct{}

// bookItem is one discovered book. Files are not parsed until opened, so
// an item carries only what the directory walk provides.
type bookItem struct {
	path        string
	note        string // path relative to the scan root
	modTime     time.Time
	key         string
	filterValue string
	resume      bool
}

type libraryModel struct {
	common *commonModel

	books    []*bookItem
	filtered []*bookItem
	resume   map[string]struct{}
	loaded   bool

	spinner   spinner.Model
	paginator paginator.Model
	cursor    int

	filterState filterState
	filterInput textinput.Model

	statusMessage      string
	statusMessageKind  statusMessageType
	statusMessageTimer *time.Timer
}

func newLibraryModel(common *commonModel) libraryModel {
	sp := spinner.New()
	sp.Spinner = spinner.Line
	sp.Style = lipgloss.NewStyle().Foreground(brightGrayFg)

	si := textinput.New()
	si.Prompt = "Find: "
	si.PromptStyle = lipgloss.NewStyle().Foreground(fuchsia)
	si.Cursor.Style = lipgloss.NewStyle().Foreground(fuchsia)
	si.Focus()

	p := paginator.New()
	p.Type = paginator.Dots
	p.ActiveDot = lipgloss.NewStyle().Foreground(brightGrayFg).Render("•")
	p.InactiveDot = lipgloss.NewStyle().
		Foreground(lipgloss.AdaptiveColor{Light: "#CACACA", Dark: "#4F4F4F"}).
		Render("•")

	return libraryModel{
		common:      common,
		spinner:     sp,
		filterInput: si,
		paginator:   p,
	}
}

func (m *libraryModel) setSize(width, height int) {
	m.filterInput.Width = width - len(m.filterInput.Prompt) - 4
	m.updatePagination()
}

func (m *libraryModel) updatePagination() {
	available := m.common.height - libraryTopPadding - libraryBottomPadding
	m.paginator.PerPage = max(1, available/libraryItemHeight)

	if n := len(m.visibleBooks()); n < 1 {
		m.paginator.SetTotalPages(1)
	} else {
		m.paginator.SetTotalPages(n)
	}

	// Keep the page in bounds.
	if m.paginator.Page >= m.paginator.TotalPages-1 {
		m.paginator.Page = max(0, m.paginator.TotalPages-1)
	}
}

func (m libraryModel) visibleBooks() []*bookItem {
	if m.filterState != unfiltered {
		return m.filtered
	}
	return m.books
}

func (m libraryModel) selectedIndex() int {
	return m.paginator.Page*m.paginator.PerPage + m.cursor
}

func (m libraryModel) selectedBook() (*bookItem, bool) {
	books := m.visibleBooks()
	i := m.selectedIndex()
	if i < 0 || i >= len(books) {
		return nil, false
	}
	return books[i], true
}

func (m *libraryModel) addBook(f library.Found) {
	note, err := filepath.Rel(m.common.cwd, f.Path)
	if err != nil || strings.HasPrefix(note, "..") {
		note = f.Path
	}
	fv, err := normalize(note)
	if err != nil {
		log.Debug("filter normalization", "note", note, "error", err)
		fv = note
	}
	item := &bookItem{
		path:        f.Path,
		note:        note,
		modTime:     f.ModTime,
		key:         library.KeyFor(f.Path),
		filterValue: fv,
	}
	_, item.resume = m.resume[item.key]
	m.books = append(m.books, item)
	m.updatePagination()
}

func (m *libraryModel) moveCursorUp() {
	m.cursor--
	if m.cursor < 0 && m.paginator.Page == 0 {
		m.cursor = 0
		return
	}
	if m.cursor >= 0 {
		return
	}
	m.paginator.PrevPage()
	m.cursor = m.paginator.ItemsOnPage(len(m.visibleBooks())) - 1
}

func (m *libraryModel) moveCursorDown() {
	itemsOnPage := m.paginator.ItemsOnPage(len(m.visibleBooks()))

	m.cursor++
	if m.cursor < itemsOnPage {
		return
	}
	if !m.paginator.OnLastPage() {
		m.paginator.NextPage()
		m.cursor = 0
		return
	}
	m.cursor = max(0, itemsOnPage-1)
}

func (m *libraryModel) clampCursor() {
	last := m.paginator.ItemsOnPage(len(m.visibleBooks())) - 1
	if m.cursor > last {
		m.cursor = max(0, last)
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *libraryModel) resetFiltering() {
	m.filterState = unfiltered
	m.filterInput.Reset()
	m.filtered = nil
	m.updatePagination()
}

// showStatusMessage sets a transient note in the header row. The returned
// command must run so the note times out.
func (m *libraryModel) showStatusMessage(kind statusMessageType, text string) tea.Cmd {
	if m.statusMessageTimer != nil {
		m.statusMessageTimer.Stop()
	}
	m.statusMessageTimer = time.NewTimer(statusMessageTimeout)
	m.statusMessageKind = kind
	m.statusMessage = text
	return waitForStatusMessageTimeout(libraryContext, m.statusMessageTimer)
}

func (m *libraryModel) hideStatusMessage() {
	m.statusMessage = ""
	if m.statusMessageTimer != nil {
		m.statusMessageTimer.Stop()
	}
}

func (m libraryModel) update(msg tea.Msg) (libraryModel, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case foundBookMsg:
		m.addBook(library.Found(msg))
		if m.filterState != unfiltered {
			cmds = append(cmds, filterBooks(m))
		}

	case libraryScanFinishedMsg:
		m.loaded = true
		sort.SliceStable(m.books, func(i, j int) bool {
			return strings.ToLower(m.books[i].note) < strings.ToLower(m.books[j].note)
		})
		m.updatePagination()

	case resumeKeysMsg:
		m.resume = msg
		for _, bk := range m.books {
			_, bk.resume = m.resume[bk.key]
		}

	case filteredBooksMsg:
		m.filtered = msg
		m.paginator.Page = 0
		m.cursor = 0
		m.updatePagination()

	case statusMessageTimeoutMsg:
		if applicationContext(msg) == libraryContext {
			m.hideStatusMessage()
		}

	case spinner.TickMsg:
		if !m.loaded {
			newSpinner, cmd := m.spinner.Update(msg)
			m.spinner = newSpinner
			cmds = append(cmds, cmd)
		}

	case tea.KeyMsg:
		if m.filterState == filtering {
			return m.handleFiltering(msg)
		}
		return m.handleBrowse(msg)
	}

	return m, tea.Batch(cmds...)
}

func (m libraryModel) handleBrowse(msg tea.KeyMsg) (libraryModel, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg.String() {
	case "k", "up":
		m.moveCursorUp()

	case "j", "down":
		m.moveCursorDown()

	case "h", "left", "pgup":
		m.paginator.PrevPage()
		m.clampCursor()

	case "l", "right", "pgdown":
		m.paginator.NextPage()
		m.clampCursor()

	case "g", "home":
		m.paginator.Page = 0
		m.cursor = 0

	case "G", "end":
		m.paginator.Page = max(0, m.paginator.TotalPages-1)
		m.cursor = max(0, m.paginator.ItemsOnPage(len(m.visibleBooks()))-1)

	case "/":
		m.hideStatusMessage()
		m.filtered = m.books
		m.paginator.Page = 0
		m.cursor = 0
		m.filterState = filtering
		m.filterInput.CursorEnd()
		m.filterInput.Focus()
		cmds = append(cmds, textinput.Blink)

	case "esc":
		if m.filterState == filterApplied {
			m.resetFiltering()
		}

	case "enter":
		m.hideStatusMessage()
		if bk, ok := m.selectedBook(); ok {
			cmds = append(cmds, openBook(m.common, bk.path))
		}

	case "r":
		m.hideStatusMessage()
		m.books = nil
		m.loaded = false
		m.resetFiltering()
		m.paginator.Page = 0
		m.cursor = 0
		cmds = append(cmds,
			findBooks(m.common),
			loadResumeKeys(m.common),
			m.spinner.Tick,
		)
	}

	return m, tea.Batch(cmds...)
}

func (m libraryModel) handleFiltering(msg tea.KeyMsg) (libraryModel, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg.String() {
	case "esc":
		m.resetFiltering()

	case "enter", "tab", "up", "down":
		visible := m.visibleBooks()
		switch {
		case len(m.books) == 0:
			// Nothing to filter.
		case len(visible) == 0:
			m.resetFiltering()
		case len(visible) == 1:
			// A single match may as well open directly.
			path := visible[0].path
			m.resetFiltering()
			cmds = append(cmds, openBook(m.common, path))
		default:
			m.filterInput.Blur()
			m.filterState = filterApplied
			if m.filterInput.Value() == "" {
				m.resetFiltering()
			}
		}
	}

	// Update the filter input and re-filter when its value changed.
	before := m.filterInput.Value()
	newFilterInput, inputCmd := m.filterInput.Update(msg)
	m.filterInput = newFilterInput
	cmds = append(cmds, inputCmd)
	if m.filterInput.Value() != before {
		cmds = append(cmds, filterBooks(m))
	}

	return m, tea.Batch(cmds...)
}

func (m libraryModel) view() string {
	var b strings.Builder
	b.WriteString("\n" + m.logoRow() + "\n\n")
	b.WriteString("  " + m.headerView() + "\n\n")
	b.WriteString(m.itemsView())
	b.WriteString("  " + m.paginatorView() + "\n\n")
	b.WriteString("  " + m.helpRow())
	return b.String()
}

func (m libraryModel) logoRow() string {
	row := "  " + logoView()
	if m.loaded {
		row += "  " + subtleStyle.Render(m.common.cwd)
	} else {
		row += "  " + m.spinner.View() + " " + subtleStyle.Render("Scanning "+m.common.cwd+"…")
	}
	return truncate.StringWithTail(row, uint(max(0, m.common.width)), ellipsis)
}

func (m libraryModel) headerView() string {
	if m.statusMessage != "" {
		if m.statusMessageKind == errorStatusMessage {
			return libraryStatusErrStyle.Render(m.statusMessage)
		}
		return libraryStatusStyle.Render(m.statusMessage)
	}

	switch m.filterState {
	case filtering:
		return m.filterInput.View()
	case filterApplied:
		return lipgloss.NewStyle().Foreground(brightGrayFg).
			Render(fmt.Sprintf("%d of %d %s", len(m.filtered), len(m.books), pluralBooks(len(m.books))))
	}

	if !m.loaded && len(m.books) == 0 {
		return subtleStyle.Render("…")
	}
	return lipgloss.NewStyle().Foreground(brightGrayFg).
		Render(fmt.Sprintf("%d %s", len(m.books), pluralBooks(len(m.books))))
}

func (m libraryModel) itemsView() string {
	books := m.visibleBooks()
	if len(books) == 0 {
		var note string
		switch {
		case !m.loaded:
			note = "Looking around for books…"
		case m.filterState != unfiltered:
			note = "Nothing matched."
		default:
			note = "No books found. Drop some Markdown or text files here and press r."
		}
		return "  " + subtleStyle.Render(note) + "\n\n"
	}

	var b strings.Builder
	start, end := m.paginator.GetSliceBounds(len(books))
	for i, bk := range books[start:end] {
		m.itemView(&b, bk, start+i == m.selectedIndex())
		b.WriteString("\n")
	}

	// Pad so the paginator stays pinned in place.
	if m.paginator.TotalPages > 1 {
		shown := m.paginator.ItemsOnPage(len(books))
		b.WriteString(strings.Repeat("\n", max(0, (m.paginator.PerPage-shown)*libraryItemHeight)))
	}
	return b.String()
}

func (m libraryModel) itemView(out *strings.Builder, bk *bookItem, selected bool) {
	var (
		gutter     = " "
		titleStyle = lipgloss.NewStyle().Foreground(normalFg)
		metaStyle  = lipgloss.NewStyle().Foreground(dimNormalFg)
		matchStyle = lipgloss.NewStyle().Foreground(normalFg).Underline(true)
	)
	if selected && m.filterState != filtering {
		gutter = selectedStyle.Render("│")
		titleStyle = selectedStyle
		metaStyle = lipgloss.NewStyle().Foreground(dimFuchsia)
		matchStyle = lipgloss.NewStyle().Foreground(fuchsia).Underline(true)
	}

	title := truncate.StringWithTail(bk.note, uint(max(0, m.common.width-6)), ellipsis)
	if m.filterState != unfiltered && m.filterInput.Value() != "" {
		title = styleFilteredText(title, m.filterInput.Value(), titleStyle, matchStyle)
	} else {
		title = titleStyle.Render(title)
	}

	meta := relativeTime(bk.modTime)
	if bk.resume {
		meta += " • resume"
	}

	fmt.Fprintf(out, "  %s %s\n  %s %s\n", gutter, title, gutter, metaStyle.Render(meta))
}

func (m libraryModel) paginatorView() string {
	if m.paginator.TotalPages <= 1 {
		return ""
	}
	return m.paginator.View()
}

func (m libraryModel) helpRow() string {
	var h []string
	switch m.filterState {
	case filtering:
		h = []string{"enter: apply", "esc: cancel"}
	case filterApplied:
		h = []string{"↑/↓: move", "enter: read", "/: refine", "esc: clear filter", "q: quit"}
	default:
		h = []string{"↑/↓: move", "enter: read", "/: filter", "r: rescan", "q: quit"}
	}
	return subtleStyle.Render(strings.Join(h, " · "))
}

func pluralBooks(n int) string {
	if n == 1 {
		return "book"
	}
	return "books"
}

// COMMANDS

func filterBooks(m libraryModel) tea.Cmd {
	return func() tea.Msg {
		query := m.filterInput.Value()
		if query == "" || m.filterState == unfiltered {
			return filteredBooksMsg(m.books)
		}

		targets := make([]string, len(m.books))
		for i, bk := range m.books {
			targets[i] = bk.filterValue
		}

		ranks := fuzzy.Find(query, targets)
		sort.SliceStable(ranks, func(i, j int) bool {
			return ranks[i].Score > ranks[j].Score
		})

		filtered := make([]*bookItem, 0, len(ranks))
		for _, r := range ranks {
			filtered = append(filtered, m.books[r.Index])
		}
		return filteredBooksMsg(filtered)
	}
}

func loadResumeKeys(c *commonModel) tea.Cmd {
	return func() tea.Msg {
		keys, err := c.store.Keys()
		if err != nil {
			log.Warn("listing stored progress", "error", err)
			return resumeKeysMsg(nil)
		}
		set := make(map[string]struct{}, len(keys))
		for _, k := range keys {
			set[k] = struct{}{}
		}
		return resumeKeysMsg(set)
	}
}

// ETC

// normalize strips diacritics so filtering matches accented titles with
// plain input.
func normalize(in string) (string, error) {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, in)
	if err != nil {
		return in, fmt.Errorf("normalizing %q: %w", in, err)
	}
	return out, nil
}

// styleFilteredText renders text with the matched filter runes underlined.
func styleFilteredText(haystack, needles string, defaultStyle, matchedStyle lipgloss.Style) string {
	normalized, err := normalize(haystack)
	if err != nil {
		log.Debug("filter match styling", "error", err)
		return defaultStyle.Render(haystack)
	}

	matches := fuzzy.Find(needles, []string{normalized})
	if len(matches) == 0 {
		return defaultStyle.Render(haystack)
	}

	var b strings.Builder
	match := matches[0]
	for i, r := range []rune(haystack) {
		styled := false
		for _, mi := range match.MatchedIndexes {
			if i == mi {
				b.WriteString(matchedStyle.Render(string(r)))
				styled = true
				break
			}
		}
		if !styled {
			b.WriteString(defaultStyle.Render(string(r)))
		}
	}
	return b.String()
}

var magnitudes = []humanize.RelTimeMagnitude{
	{D: time.Second, Format: "now", DivBy: time.Second},
	{D: 2 * time.Second, Format: "1 second %s", DivBy: 1},
	{D: time.Minute, Format: "%d seconds %s", DivBy: time.Second},
	{D: 2 * time.Minute, Format: "1 minute %s", DivBy: 1},
	{D: time.Hour, Format: "%d minutes %s", DivBy: time.Minute},
	{D: 2 * time.Hour, Format: "1 hour %s", DivBy: 1},
	{D: humanize.Day, Format: "%d hours %s", DivBy: time.Hour},
	{D: 2 * humanize.Day, Format: "1 day %s", DivBy: 1},
	{D: humanize.Week, Format: "%d days %s", DivBy: humanize.Day},
	{D: 2 * humanize.Week, Format: "1 week %s", DivBy: 1},
	{D: humanize.Month, Format: "%d weeks %s", DivBy: humanize.Week},
	{D: 2 * humanize.Month, Format: "1 month %s", DivBy: 1},
	{D: humanize.Year, Format: "%d months %s", DivBy: humanize.Month},
	{D: 18 * humanize.Month, Format: "1 year %s", DivBy: 1},
	{D: 2 * humanize.Year, Format: "2 years %s", DivBy: 1},
	{D: humanize.LongTime, Format: "%d years %s", DivBy: humanize.Year},
	{D: math.MaxInt64, Format: "a long while %s", DivBy: 1},
}

func relativeTime(then time.Time) string {
	now := time.Now()
	ago := now.Sub(then)
	if ago < time.Minute {
		return "just now"
	} else if ago < humanize.Week {
		return humanize.CustomRelTime(then, now, "ago", "from now", magnitudes)
	}
	return then.Format("02 Jan 2006 15:04 MST")
}
