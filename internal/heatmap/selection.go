package heatmap

// SelectionState is the phase of an interactive range selection.
type SelectionState int

const (
	SelectionIdle SelectionState = iota
	SelectionDragging
	SelectionSelected
)

func (s SelectionState) String() string {
	switch s {
	case SelectionDragging:
		return "dragging"
	case SelectionSelected:
		return "selected"
	default:
		return "idle"
	}
}

// Selection tracks a contiguous range of display indices on one axis,
// driven by press, drag and release events. The renderer only sees the
// resulting range.
type Selection struct {
	n      int
	state  SelectionState
	anchor int
	first  int
	last   int // exclusive
}

// NewSelection returns an idle selection over n indices.
func NewSelection(n int) *Selection {
	return &Selection{n: n}
}

// State returns the current phase.
func (s *Selection) State() SelectionState { return s.state }

// Press starts a selection at index. Presses outside the axis clear it.
func (s *Selection) Press(index int) {
	if index < 0 || index >= s.n {
		s.Clear()
		return
	}
	s.state = SelectionDragging
	s.anchor = index
	s.first = index
	s.last = index + 1
}

// Drag extends the selection from the anchor to index. Indices beyond the
// axis are clamped.
func (s *Selection) Drag(index int) {
	if s.state != SelectionDragging {
		return
	}
	index = clamp(index, 0, s.n-1)
	if index < s.anchor {
		s.first, s.last = index, s.anchor+1
	} else {
		s.first, s.last = s.anchor, index+1
	}
}

// Release ends a drag, keeping the range.
func (s *Selection) Release() {
	if s.state == SelectionDragging {
		s.state = SelectionSelected
	}
}

// Clear returns to idle.
func (s *Selection) Clear() {
	*s = Selection{n: s.n}
}

// Range returns the selected half-open range.
func (s *Selection) Range() (first, last int, ok bool) {
	if s.state == SelectionIdle {
		return -1, -1, false
	}
	return s.first, s.last, true
}

// Highlight returns the range as renderer input, nil when idle.
func (s *Selection) Highlight() *Span {
	first, last, ok := s.Range()
	if !ok {
		return nil
	}
	return &Span{First: first, Last: last}
}

// Span is a half-open range of display indices.
type Span struct {
	First int `json:"first"`
	Last  int `json:"last"`
}

// Reselect replays sp as a press, drag and release over n indices, giving
// the range an interactive selection would produce: clamped to the axis,
// or nil when sp is empty or starts outside it.
func Reselect(n int, sp *Span) *Span {
	if sp == nil || sp.Last <= sp.First {
		return nil
	}
	sel := NewSelection(n)
	sel.Press(sp.First)
	sel.Drag(sp.Last - 1)
	sel.Release()
	return sel.Highlight()
}
