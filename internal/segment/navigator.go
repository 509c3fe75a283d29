package segment

import (
	"context"
	"fmt"
	"sync"

	"github.com/wsmontes/Document-Reviewer/internal/events"
	"github.com/wsmontes/Document-Reviewer/pkg/models"
)

// View is what a presentation layer should render right now.
type View struct {
	Index    int              `json:"index"`
	Total    int              `json:"total"`
	Combined bool             `json:"combined"`
	Title    string           `json:"title,omitempty"`
	Content  string           `json:"content"`
	Segments []models.Segment `json:"segments,omitempty"`
}

// Navigator holds the display state of one segmented answer. Indices are
// zero-based. It is safe for concurrent use.
type Navigator struct {
	mu       sync.RWMutex
	segs     []models.Segment
	current  int
	combined bool
	sink     events.Sink
}

// NewNavigator creates a navigator showing the first segment.
func NewNavigator(segs []models.Segment, sink events.Sink) *Navigator {
	if sink == nil {
		sink = events.Nop
	}
	return &Navigator{segs: append([]models.Segment(nil), segs...), sink: sink}
}

// Reset replaces the segments and returns to the first one in single view.
func (n *Navigator) Reset(segs []models.Segment) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.segs = append([]models.Segment(nil), segs...)
	n.current = 0
	n.combined = false
}

// Display shows segment i. Out of range indices change nothing and
// report false.
func (n *Navigator) Display(ctx context.Context, i int) bool {
	n.mu.Lock()
	if i < 0 || i >= len(n.segs) {
		n.mu.Unlock()
		return false
	}
	n.current = i
	n.combined = false
	s := n.segs[i]
	n.mu.Unlock()

	n.sink.Emit(ctx, events.New(events.SegmentDisplayed,
		fmt.Sprintf("Segment %d of %d displayed", s.Index, s.Total),
		"index", i, "total", s.Total, "title", s.Title))
	return true
}

// Next moves forward one segment, if there is one.
func (n *Navigator) Next(ctx context.Context) bool {
	n.mu.RLock()
	i := n.current + 1
	n.mu.RUnlock()
	return n.Display(ctx, i)
}

// Prev moves back one segment, if there is one.
func (n *Navigator) Prev(ctx context.Context) bool {
	n.mu.RLock()
	i := n.current - 1
	n.mu.RUnlock()
	return n.Display(ctx, i)
}

// ToggleCombinedView switches between the single segment and the combined
// view. The current index is kept, so two toggles restore the original view.
func (n *Navigator) ToggleCombinedView() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.segs) > 0 {
		n.combined = !n.combined
	}
	return n.combined
}

// Current returns the index of the selected segment.
func (n *Navigator) Current() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.current
}

// Total is the number of segments.
func (n *Navigator) Total() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.segs)
}

// Segments returns a copy of all segments.
func (n *Navigator) Segments() []models.Segment {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]models.Segment(nil), n.segs...)
}

// View returns the content to render.
func (n *Navigator) View() View {
	n.mu.RLock()
	defer n.mu.RUnlock()

	v := View{Index: n.current, Total: len(n.segs), Combined: n.combined}
	if len(n.segs) == 0 {
		return v
	}
	if n.combined {
		v.Content = Combined(n.segs)
		v.Segments = append([]models.Segment(nil), n.segs...)
		return v
	}
	s := n.segs[n.current]
	v.Title = s.Title
	v.Content = s.Content
	return v
}
