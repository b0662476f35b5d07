package library

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gtext "github.com/yuin/goldmark/text"
)

// parseMarkdown structures a markdown book: an optional frontmatter
// block supplies title and author, headings at the top two levels start
// chapters, and every other block contributes its plain text. Code and
// raw HTML are not speakable and are skipped.
func parseMarkdown(book *Book, data []byte, fallback string) {
	meta, body := splitFrontmatter(data)
	book.Title = meta["title"]
	book.Author = meta["author"]

	doc := goldmark.New().Parser().Parse(gtext.NewReader(body))

	var chapters []Chapter
	cur := -1
	open := func(title string) {
		chapters = append(chapters, Chapter{ID: len(chapters), Title: title})
		cur = len(chapters) - 1
	}
	add := func(txt string) {
		if txt == "" {
			return
		}
		if cur < 0 {
			open("")
		}
		c := &chapters[cur]
		if c.Content != "" {
			c.Content += "\n\n"
		}
		c.Content += txt
	}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch t := n.(type) {
		case *ast.Heading:
			title := nodeText(t, body)
			if t.Level == 1 && book.Title == "" {
				book.Title = title
			}
			if t.Level <= 2 {
				open(title)
			} else {
				add(title)
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock, *ast.ThematicBreak:
		case *ast.List:
			for item := t.FirstChild(); item != nil; item = item.NextSibling() {
				add(nodeText(item, body))
			}
		default:
			add(nodeText(n, body))
		}
	}

	kept := chapters[:0]
	for _, ch := range chapters {
		if ch.Title == "" && ch.Content == "" {
			continue
		}
		ch.ID = len(kept)
		kept = append(kept, ch)
	}
	if len(kept) == 0 {
		kept = []Chapter{{ID: 0, Title: fallback}}
	}
	book.Chapters = kept
}

// nodeText collects the plain text under n, flattening inline markup
// and joining wrapped lines with spaces.
func nodeText(n ast.Node, src []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			switch c.(type) {
			case *ast.Paragraph, *ast.TextBlock:
				sb.WriteByte(' ')
			}
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}

// splitFrontmatter strips a leading --- delimited metadata block and
// returns its title and author fields, if any. Anything else in the
// block is ignored.
func splitFrontmatter(data []byte) (map[string]string, []byte) {
	meta := map[string]string{}
	nl := bytes.IndexByte(data, '\n')
	if nl < 0 || strings.TrimSpace(string(data[:nl])) != "---" {
		return meta, data
	}
	body := data[nl+1:]
	end := bytes.Index(body, []byte("\n---"))
	if end < 0 {
		return meta, data
	}
	for _, line := range strings.Split(string(body[:end]), "\n") {
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if key != "title" && key != "author" {
			continue
		}
		meta[key] = strings.Trim(strings.TrimSpace(val), `"'`)
	}
	after := body[end+len("\n---"):]
	if nl = bytes.IndexByte(after, '\n'); nl >= 0 {
		after = after[nl+1:]
	} else {
		after = nil
	}
	return meta, after
}
