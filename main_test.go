package main

import (
	"fmt"
	"strings"
	"testing"

	"lector/internal/library"
)

func TestListeningTime(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{10, "a minute"},
		{300, "5min"},
		{3900, "1h 5min"},
	}
	for _, tc := range cases {
		if got := listeningTime(tc.seconds); got != tc.want {
			t.Errorf("listeningTime(%v) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}

func TestBookCard(t *testing.T) {
	book := &library.Book{
		Title:  "Moby Dick",
		Author: "Herman Melville",
		Chapters: []library.Chapter{
			{ID: 0, Title: "Loomings", Content: "Call me Ishmael. Some years ago."},
			{ID: 1, Title: "The Carpet-Bag", Content: "I stuffed a shirt."},
		},
	}

	got := bookCard(book, 1.0)
	for _, want := range []string{
		"# Moby Dick",
		"by Herman Melville",
		"**Chapters:** 2",
		"**Sentences:** 3",
		"**Words:** 13",
		"at 1x",
		"## Chapters",
		"1. Loomings",
		"2. The Carpet-Bag",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("card missing %q:\n%s", want, got)
		}
	}
}

func TestBookCardManyChapters(t *testing.T) {
	book := &library.Book{Title: "Long One"}
	for i := 0; i < 15; i++ {
		book.Chapters = append(book.Chapters, library.Chapter{
			ID:      i,
			Title:   fmt.Sprintf("Part %d", i+1),
			Content: "Words here.",
		})
	}

	got := bookCard(book, 1.0)
	if !strings.Contains(got, "12. Part 12") {
		t.Errorf("card missing the last listed chapter:\n%s", got)
	}
	if strings.Contains(got, "13. Part 13") {
		t.Errorf("card lists chapters past the cut:\n%s", got)
	}
	if !strings.Contains(got, "and 3 more.") {
		t.Errorf("card missing the overflow note:\n%s", got)
	}
}
