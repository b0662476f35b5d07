package ui

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"lector/internal/library"
)

func newTestLibraryModel() libraryModel {
	common := &commonModel{cwd: "/books", width: 80, height: 24}
	return newLibraryModel(common)
}

func stubBook(m *libraryModel, name string) {
	m.addBook(library.Found{Path: "/books/" + name, ModTime: time.Now()})
}

// TestLibraryCursorPaging walks the cursor across page boundaries and
// verifies the selection visits every book exactly once.
func TestLibraryCursorPaging(t *testing.T) {
	m := newTestLibraryModel()
	for i := 0; i < 12; i++ {
		stubBook(&m, fmt.Sprintf("book-%02d.md", i))
	}

	if m.paginator.PerPage != 5 {
		t.Fatalf("PerPage = %d, want 5", m.paginator.PerPage)
	}
	if m.paginator.TotalPages != 3 {
		t.Fatalf("TotalPages = %d, want 3", m.paginator.TotalPages)
	}

	for want := 0; want < 12; want++ {
		if got := m.selectedIndex(); got != want {
			t.Fatalf("selectedIndex = %d, want %d", got, want)
		}
		m.moveCursorDown()
	}
	if got := m.selectedIndex(); got != 11 {
		t.Errorf("selectedIndex after the end = %d, want to stay on 11", got)
	}

	for want := 11; want >= 0; want-- {
		if got := m.selectedIndex(); got != want {
			t.Fatalf("selectedIndex = %d, want %d", got, want)
		}
		m.moveCursorUp()
	}
	if got := m.selectedIndex(); got != 0 {
		t.Errorf("selectedIndex before the start = %d, want to stay on 0", got)
	}
}

func TestLibraryNotesRelativeToCwd(t *testing.T) {
	m := newTestLibraryModel()
	stubBook(&m, "shelf/moby-dick.md")
	m.addBook(library.Found{Path: "/elsewhere/dracula.md", ModTime: time.Now()})

	if got := m.books[0].note; got != "shelf/moby-dick.md" {
		t.Errorf("note = %q, want path relative to the scan root", got)
	}
	if got := m.books[1].note; got != "/elsewhere/dracula.md" {
		t.Errorf("note = %q, want the absolute path outside the scan root", got)
	}
}

func TestFilterBooks(t *testing.T) {
	m := newTestLibraryModel()
	stubBook(&m, "Don Quijote.md")
	stubBook(&m, "Moby Dick.md")
	stubBook(&m, "Canción de Navidad.md")

	m.filterState = filtering
	m.filterInput.SetValue("quij")
	msg := filterBooks(m)()
	filtered, ok := msg.(filteredBooksMsg)
	if !ok {
		t.Fatalf("got %T, want filteredBooksMsg", msg)
	}
	if len(filtered) != 1 || filtered[0].note != "Don Quijote.md" {
		t.Errorf("filter quij matched %d books", len(filtered))
	}

	// Plain input matches the accented title through normalization.
	m.filterInput.SetValue("cancion")
	filtered = filterBooks(m)().(filteredBooksMsg)
	if len(filtered) != 1 || filtered[0].note != "Canción de Navidad.md" {
		t.Errorf("filter cancion matched %d books", len(filtered))
	}

	m.filterInput.SetValue("")
	filtered = filterBooks(m)().(filteredBooksMsg)
	if len(filtered) != 3 {
		t.Errorf("empty filter matched %d books, want all 3", len(filtered))
	}
}

func TestLibraryScanFinishedSorts(t *testing.T) {
	m := newTestLibraryModel()
	stubBook(&m, "b.md")
	stubBook(&m, "A.md")

	m, _ = m.update(libraryScanFinishedMsg{})
	if !m.loaded {
		t.Error("loaded = false after the scan finished")
	}
	if m.books[0].note != "A.md" || m.books[1].note != "b.md" {
		t.Errorf("books sorted as %q, %q", m.books[0].note, m.books[1].note)
	}
}

func TestResumeBadges(t *testing.T) {
	m := newTestLibraryModel()
	stubBook(&m, "a.md")
	stubBook(&m, "b.md")

	keys := resumeKeysMsg{
		library.KeyFor("/books/b.md"): {},
		library.KeyFor("/books/c.md"): {},
	}
	m, _ = m.update(keys)

	if m.books[0].resume {
		t.Error("a.md marked resumable without stored progress")
	}
	if !m.books[1].resume {
		t.Error("b.md not marked resumable")
	}

	// Books found after the keys arrive pick the badge up on add.
	stubBook(&m, "c.md")
	if !m.books[2].resume {
		t.Error("c.md found after the keys arrived lost its badge")
	}
}

func TestNormalize(t *testing.T) {
	got, err := normalize("Canción")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got != "Cancion" {
		t.Errorf("normalize = %q, want Cancion", got)
	}
}

func TestRelativeTime(t *testing.T) {
	now := time.Now()

	if got := relativeTime(now.Add(-30 * time.Second)); got != "just now" {
		t.Errorf("30s ago = %q, want just now", got)
	}
	if got := relativeTime(now.Add(-2 * time.Hour)); got != "2 hours ago" {
		t.Errorf("2h ago = %q", got)
	}
	if got := relativeTime(now.Add(-3 * 24 * time.Hour)); got != "3 days ago" {
		t.Errorf("3d ago = %q", got)
	}

	then := now.Add(-8 * 24 * time.Hour)
	if got := relativeTime(then); got != then.Format("02 Jan 2006 15:04 MST") {
		t.Errorf("8d ago = %q, want the absolute date", got)
	}
}

func TestPluralBooks(t *testing.T) {
	if got := pluralBooks(1); got != "book" {
		t.Errorf("pluralBooks(1) = %q", got)
	}
	if got := pluralBooks(3); got != "books" {
		t.Errorf("pluralBooks(3) = %q", got)
	}
}

// TestLibraryViewScanning verifies the header while the walk is running
// and after it finishes.
func TestLibraryViewScanning(t *testing.T) {
	m := newTestLibraryModel()

	if got := m.view(); !strings.Contains(got, "Scanning") {
		t.Errorf("view missing scan notice:\n%s", got)
	}

	stubBook(&m, "a.md")
	m, _ = m.update(libraryScanFinishedMsg{})
	got := m.view()
	if strings.Contains(got, "Scanning") {
		t.Errorf("view still shows the scan notice:\n%s", got)
	}
	if !strings.Contains(got, "1 book") {
		t.Errorf("view missing book count:\n%s", got)
	}
}
