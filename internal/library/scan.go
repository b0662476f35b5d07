package library

import (
	"time"

	"github.com/muesli/gitcha"
)

// BookExtensions are the glob patterns the library scan matches.
var BookExtensions = []string{
	"*.md", "*.mdown", "*.mkdn", "*.mkd", "*.markdown",
	"*.txt", "*.text",
}

// ignorePatterns keeps the scan out of trees that are never books.
var ignorePatterns = []string{"node_modules", ".*"}

// Found is one scan hit, before the file is loaded.
type Found struct {
	Path    string
	ModTime time.Time
}

// Scan walks dir for book files on a background goroutine, honoring
// gitignore rules unless showAll is set. The returned channel closes
// when the walk finishes.
func Scan(dir string, showAll bool) (<-chan Found, error) {
	var (
		ch  chan gitcha.SearchResult
		err error
	)
	if showAll {
		ch, err = gitcha.FindAllFilesExcept(dir, BookExtensions, nil)
	} else {
		ch, err = gitcha.FindFilesExcept(dir, BookExtensions, ignorePatterns)
	}
	if err != nil {
		return nil, err
	}

	out := make(chan Found)
	go func() {
		defer close(out)
		for res := range ch {
			out <- Found{Path: res.Path, ModTime: res.Info.ModTime()}
		}
	}()
	return out, nil
}
