package heatmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectionLifecycle(t *testing.T) {
	s := NewSelection(10)
	assert.Equal(t, SelectionIdle, s.State())
	assert.Nil(t, s.Highlight())

	s.Press(4)
	assert.Equal(t, SelectionDragging, s.State())
	assert.Equal(t, &Span{First: 4, Last: 5}, s.Highlight())

	s.Drag(1)
	assert.Equal(t, &Span{First: 1, Last: 5}, s.Highlight())

	s.Drag(42)
	assert.Equal(t, &Span{First: 4, Last: 10}, s.Highlight())

	s.Release()
	assert.Equal(t, SelectionSelected, s.State())
	s.Drag(0) // ignored once released
	first, last, ok := s.Range()
	assert.True(t, ok)
	assert.Equal(t, 4, first)
	assert.Equal(t, 10, last)

	s.Press(-1)
	assert.Equal(t, SelectionIdle, s.State())
	assert.Equal(t, "idle", s.State().String())
}

func TestReselect(t *testing.T) {
	assert.Equal(t, &Span{First: 2, Last: 5}, Reselect(10, &Span{First: 2, Last: 5}))
	assert.Equal(t, &Span{First: 8, Last: 10}, Reselect(10, &Span{First: 8, Last: 40}))
	assert.Nil(t, Reselect(10, &Span{First: 12, Last: 14}))
	assert.Nil(t, Reselect(10, &Span{First: 3, Last: 3}))
	assert.Nil(t, Reselect(10, nil))
}
