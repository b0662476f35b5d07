package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/progress"

	"lector/tts"
)

const timelineHeight = 1

// timelineModel renders the virtual clock as a scrubbable bar between an
// elapsed and a total label. Pointer gestures over the track drive the
// engine's scrub controller; the preview and the commit both come back as
// progress notices.
type timelineModel struct {
	bar   progress.Model
	scrub *tts.Scrubber

	elapsed float64
	total   float64

	width      int
	labelWidth int
	trackStart int
	trackWidth int
}

func newTimelineModel(e *tts.Engine) timelineModel {
	bar := progress.New(
		progress.WithSolidFill("#EE6FF8"),
		progress.WithoutPercentage(),
	)
	return timelineModel{bar: bar, scrub: tts.NewScrubber(e)}
}

func (t *timelineModel) setWidth(w int) {
	t.width = w
	t.layout()
}

// setClock updates the labels. A total crossing an hour widens the labels,
// so the layout is redone when the label width changes.
func (t *timelineModel) setClock(elapsed, total float64) {
	t.elapsed = elapsed
	t.total = total
	if len(formatDuration(total)) != t.labelWidth {
		t.layout()
	}
}

func (t *timelineModel) layout() {
	t.labelWidth = len(formatDuration(t.total))
	t.trackStart = t.labelWidth + 2
	t.trackWidth = max(0, t.width-2*(t.labelWidth+2))
	t.bar.Width = t.trackWidth
}

// pointerPos maps a terminal column to a track fraction. Columns outside
// the track land outside [0,1]; the scrub controller clamps.
func (t timelineModel) pointerPos(x int) float64 {
	if t.trackWidth <= 1 {
		return 0
	}
	return float64(x-t.trackStart) / float64(t.trackWidth-1)
}

func (t timelineModel) view() string {
	if t.width <= 0 {
		return ""
	}
	if t.trackWidth == 0 {
		return timelineLabelStyle.Render(fmt.Sprintf(" %s ", formatDuration(t.elapsed)))
	}

	pct := 0.0
	if t.total > 0 {
		pct = t.elapsed / t.total
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 1 {
		pct = 1
	}

	left := fmt.Sprintf(" %*s ", t.labelWidth, formatDuration(t.elapsed))
	right := fmt.Sprintf(" %-*s ", t.labelWidth, formatDuration(t.total))
	return timelineLabelStyle.Render(left) + t.bar.ViewAs(pct) + timelineLabelStyle.Render(right)
}
