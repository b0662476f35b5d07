// Package library models the books lector reads: plain text and
// markdown files structured into chapters, each identified by a stable
// key so playback progress survives across sessions.
package library

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Chapter is one titled span of a book.
type Chapter struct {
	ID      int
	Title   string
	Content string
}

// Book is one loaded book file.
type Book struct {
	// Key identifies the book stably across sessions; progress records
	// are stored under it.
	Key string
	// Path is the absolute file path.
	Path     string
	Title    string
	Author   string
	Chapters []Chapter
	ModTime  time.Time
}

// KeyFor derives the identity key for a book file: a name-based UUID
// over the absolute path, so the same file maps to the same progress
// record in every session.
func KeyFor(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+abs)).String()
}

// Load reads and structures the book at path. Markdown files get
// frontmatter metadata and heading chapters; anything else is wrapped
// in a single chapter.
func Load(path string) (*Book, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}

	fallback := strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))
	book := Parse(fallback, data, isMarkdown(abs))
	book.Key = KeyFor(abs)
	book.Path = abs
	book.ModTime = info.ModTime()
	return book, nil
}

// Parse structures raw book data without touching the filesystem, for
// sources that are not files, like a pipe. Key, Path and ModTime are left
// for the caller.
func Parse(name string, data []byte, markdown bool) *Book {
	book := &Book{}
	if markdown {
		parseMarkdown(book, data, name)
	} else {
		parsePlain(book, data, name)
	}
	if book.Title == "" {
		book.Title = name
	}
	return book
}

func isMarkdown(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".mdown", ".mkdn", ".mkd", ".markdown":
		return true
	}
	return false
}

// parsePlain wraps a text file in a single chapter named after the
// file.
func parsePlain(book *Book, data []byte, fallback string) {
	book.Chapters = []Chapter{{
		ID:      0,
		Title:   fallback,
		Content: strings.TrimSpace(string(data)),
	}}
}

// FullText returns the speakable text of the whole book: chapter titles
// and bodies in order, separated by blank lines. A chapter title equal
// to the book title is not repeated.
func (b *Book) FullText() string {
	var sb strings.Builder
	for _, ch := range b.Chapters {
		if ch.Title != "" && ch.Title != b.Title {
			if sb.Len() > 0 {
				sb.WriteString("\n\n")
			}
			sb.WriteString(ch.Title)
		}
		if ch.Content != "" {
			if sb.Len() > 0 {
				sb.WriteString("\n\n")
			}
			sb.WriteString(ch.Content)
		}
	}
	return sb.String()
}
