package window_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/shubham-shewale/quote-chart/cmd/chart/internal/window"
)

func TestComputeWindow_Scenarios(t *testing.T) {
	cases := []struct {
		name           string
		length, offset int
		want           window.Window
	}{
		{"live edge of 60 points", 60, 0, window.Window{Start: 10, End: 60}},
		{"one step back", 60, 1, window.Window{Start: 9, End: 59}},
		{"shorter than a window", 20, 0, window.Window{Start: 0, End: 20}},
		{"empty", 0, 0, window.Window{Start: 0, End: 0}},
		{"offset past oldest point is absorbed", 60, 30, window.Window{Start: 0, End: 50}},
		{"exact window", 50, 0, window.Window{Start: 0, End: 50}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, window.ComputeWindow(tc.length, tc.offset, 50))
		})
	}
}

func TestAdjustOffset(t *testing.T) {
	assert.Equal(t, 1, window.AdjustOffset(0, window.Older, 60, 50))
	assert.Equal(t, 10, window.AdjustOffset(10, window.Older, 60, 50), "stops at the oldest full window")
	assert.Equal(t, 0, window.AdjustOffset(0, window.Newer, 60, 50), "cannot pass the live edge")
	assert.Equal(t, 0, window.AdjustOffset(0, window.Older, 20, 50), "no scrolling until a full window exists")
}

func TestView_ScrollAndLabel(t *testing.T) {
	const tick = time.Second
	watermark := time.Unix(1_700_000_000, 0)
	v := window.NewView(50)

	assert.Equal(t, window.Live, v.State())
	assert.Equal(t, window.Window{Start: 10, End: 60}, v.Window(60))
	assert.Equal(t, watermark, v.Label(60, watermark, tick))

	v.Scroll(window.Older, 60)
	assert.Equal(t, 1, v.Offset())
	assert.Equal(t, window.Scrolled, v.State())
	assert.Equal(t, window.Window{Start: 9, End: 59}, v.Window(60))
	assert.Equal(t, watermark.Add(-tick), v.Label(60, watermark, tick))

	// new data extends the bound but keeps the view scrolled
	v.Reclamp(80)
	assert.Equal(t, 1, v.Offset())
	assert.Equal(t, window.Scrolled, v.State())

	v.Scroll(window.Newer, 80)
	assert.Equal(t, window.Live, v.State())
}

func TestView_ResizeReclamps(t *testing.T) {
	v := window.NewView(10)
	for i := 0; i < 15; i++ {
		v.Scroll(window.Older, 30)
	}
	assert.Equal(t, 15, v.Offset())

	v.Resize(25, 30)
	assert.Equal(t, 25, v.Width())
	assert.Equal(t, 5, v.Offset())
}

func TestLeadingTime(t *testing.T) {
	watermark := time.Unix(1000, 0)
	w := window.ComputeWindow(60, 0, 50)
	assert.Equal(t, time.Unix(1000-49, 0), window.LeadingTime(w, 60, watermark, time.Second))
	assert.Equal(t, watermark, window.LeadingTime(window.Window{}, 0, watermark, time.Second))
}

func TestComputeWindowProperty_Bounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		length := rapid.IntRange(0, 500).Draw(t, "length")
		offset := rapid.IntRange(-100, 600).Draw(t, "offset")
		width := rapid.IntRange(1, 100).Draw(t, "width")

		w := window.ComputeWindow(length, offset, width)
		if w.Start > w.End {
			t.Fatalf("start %d > end %d", w.Start, w.End)
		}
		if w.End > length {
			t.Fatalf("end %d > length %d", w.End, length)
		}
		if w.Start < 0 || w.Len() > width {
			t.Fatalf("window %+v out of shape for width %d", w, width)
		}
	})
}

func TestAdjustOffsetProperty_Clamped(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		length := rapid.IntRange(0, 500).Draw(t, "length")
		width := rapid.IntRange(1, 100).Draw(t, "width")
		offset := rapid.IntRange(-1000, 1000).Draw(t, "offset")
		dir := rapid.SampledFrom([]window.Direction{window.Older, window.Newer}).Draw(t, "dir")

		got := window.AdjustOffset(offset, dir, length, width)
		if got < 0 || got > max(0, length-width) {
			t.Fatalf("offset %d outside [0, %d]", got, max(0, length-width))
		}
	})
}

func TestLabelProperty_DirectEqualsBackComputedWhenLive(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		length := rapid.IntRange(0, 500).Draw(t, "length")
		width := rapid.IntRange(1, 100).Draw(t, "width")
		tick := time.Duration(rapid.IntRange(1, 60_000).Draw(t, "tick_ms")) * time.Millisecond
		watermark := time.Unix(rapid.Int64Range(0, 2_000_000_000).Draw(t, "watermark"), 0)

		v := window.NewView(width)
		direct := v.Label(length, watermark, tick)
		back := window.TrailingTime(v.Window(length), length, watermark, tick)
		if !direct.Equal(back) {
			t.Fatalf("live label %s != back-computed %s", direct, back)
		}
	})
}
