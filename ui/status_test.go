package ui

import (
	"strings"
	"testing"

	"lector/tts"
)

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{0, "0:00"},
		{5.4, "0:05"},
		{65, "1:05"},
		{600, "10:00"},
		{3599, "59:59"},
		{3600, "1:00:00"},
		{3725, "1:02:05"},
		{-3, "0:00"},
	}
	for _, tc := range cases {
		if got := formatDuration(tc.seconds); got != tc.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}

func TestStateIcon(t *testing.T) {
	cases := []struct {
		name string
		snap tts.Snapshot
		want string
	}{
		{"stopped", tts.Snapshot{State: tts.StateStopped}, "■"},
		{"playing", tts.Snapshot{State: tts.StatePlaying}, "▶"},
		{"paused", tts.Snapshot{State: tts.StatePaused}, "⏸"},
		{"pending", tts.Snapshot{State: tts.StateStopped, PendingPlay: true}, "⟳"},
		{"stalled beats playing", tts.Snapshot{State: tts.StatePlaying, Stalled: true}, "✗"},
	}
	for _, tc := range cases {
		if got := stateIcon(tc.snap); got != tc.want {
			t.Errorf("%s: stateIcon = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestPlaybackStatusView(t *testing.T) {
	snap := tts.Snapshot{
		State:         tts.StatePlaying,
		SentenceIndex: 2,
		SentenceCount: 10,
		Elapsed:       5,
		Total:         30,
		Rate:          1.25,
	}

	got := playbackStatusView(snap, "Isabela")
	for _, want := range []string{"▶ 3/10", "Isabela", "1.25x", "0:05/0:30"} {
		if !strings.Contains(got, want) {
			t.Errorf("status %q missing %q", got, want)
		}
	}
}

func TestPlaybackStatusViewWithoutVoice(t *testing.T) {
	snap := tts.Snapshot{State: tts.StatePaused, SentenceCount: 4, Rate: 1, Total: 12}

	got := playbackStatusView(snap, "")
	want := " ⏸ 1/4 · 1x · 0:00/0:12 "
	if got != want {
		t.Errorf("status = %q, want %q", got, want)
	}
}

func TestPlaybackStatusViewEmptyBook(t *testing.T) {
	got := playbackStatusView(tts.Snapshot{Rate: 1}, "")
	want := " ■ · 1x · 0:00/0:00 "
	if got != want {
		t.Errorf("status = %q, want %q", got, want)
	}
}
