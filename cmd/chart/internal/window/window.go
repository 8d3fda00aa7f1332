// Package window computes which slice of a growing series is visible for a
// scroll offset, and the wall-clock labels of that slice.
package window

import "time"

// DefaultWidth is the number of points shown at once.
const DefaultWidth = 50

// Direction of a scroll step: Older moves away from the live edge.
type Direction int

const (
	Newer Direction = -1
	Older Direction = 1
)

// State of the view.
type State int

const (
	Live State = iota
	Scrolled
)

func (s State) String() string {
	if s == Live {
		return "live"
	}
	return "scrolled"
}

// Window is the visible slice [Start, End) of a sequence.
type Window struct {
	Start int
	End   int
}

func (w Window) Len() int { return w.End - w.Start }

// Slice returns seq[w.Start:w.End].
func (w Window) Slice(seq []float64) []float64 { return seq[w.Start:w.End] }

// ComputeWindow derives the visible window for a sequence of length points
// scrolled offset points back from the live edge. An offset past the oldest
// point is absorbed: the window then starts at 0.
func ComputeWindow(length, offset, width int) Window {
	end := max(width, length-offset)
	start := max(0, end-width)
	return Window{Start: min(start, length), End: min(end, length)}
}

// MaxOffset is the largest offset that keeps a full window inside the sequence.
func MaxOffset(length, width int) int {
	return max(0, length-width)
}

// ClampOffset bounds offset to [0, MaxOffset(length, width)].
func ClampOffset(offset, length, width int) int {
	return min(max(offset, 0), MaxOffset(length, width))
}

// AdjustOffset applies one scroll step and clamps the result.
func AdjustOffset(offset int, dir Direction, length, width int) int {
	return ClampOffset(offset+int(dir), length, width)
}

// TrailingTime back-computes the time of the last visible point, walking one
// tick back from watermark for every point right of the window. It counts
// from End, not Start, so the label equals the watermark at offset 0.
func TrailingTime(w Window, length int, watermark time.Time, tick time.Duration) time.Time {
	return watermark.Add(-time.Duration(length-w.End) * tick)
}

// LeadingTime is the time of the first visible point.
func LeadingTime(w Window, length int, watermark time.Time, tick time.Duration) time.Time {
	if w.Len() == 0 {
		return watermark
	}
	return watermark.Add(-time.Duration(length-1-w.Start) * tick)
}

// View holds the scroll offset. It is owned by a single goroutine.
type View struct {
	width  int
	offset int
}

func NewView(width int) *View {
	if width <= 0 {
		width = DefaultWidth
	}
	return &View{width: width}
}

func (v *View) Width() int  { return v.width }
func (v *View) Offset() int { return v.offset }

func (v *View) State() State {
	if v.offset == 0 {
		return Live
	}
	return Scrolled
}

// Scroll moves one step in dir for a sequence of length points.
func (v *View) Scroll(dir Direction, length int) {
	v.offset = AdjustOffset(v.offset, dir, length, v.width)
}

// Reclamp re-bounds the offset after the sequence length changed. Growth
// never resets a scrolled view to live.
func (v *View) Reclamp(length int) {
	v.offset = ClampOffset(v.offset, length, v.width)
}

// Resize changes the window width and re-clamps the offset.
func (v *View) Resize(width, length int) {
	if width > 0 {
		v.width = width
	}
	v.Reclamp(length)
}

func (v *View) Window(length int) Window {
	return ComputeWindow(length, v.offset, v.width)
}

// Label is the time of the last visible point: the watermark itself while
// live, back-computed from the tick interval while scrolled.
func (v *View) Label(length int, watermark time.Time, tick time.Duration) time.Time {
	if v.offset == 0 {
		return watermark
	}
	return TrailingTime(v.Window(length), length, watermark, tick)
}
