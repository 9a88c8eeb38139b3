package heatmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotifierOrderAndUnsubscribe(t *testing.T) {
	var n Notifier[int]
	var calls []string

	n.Subscribe(func(v int) { calls = append(calls, "a") })
	stopB := n.Subscribe(func(v int) { calls = append(calls, "b") })
	n.Subscribe(func(v int) { calls = append(calls, "c") })

	n.Notify(1)
	assert.Equal(t, []string{"a", "b", "c"}, calls)

	stopB()
	stopB()
	calls = nil
	n.Notify(2)
	assert.Equal(t, []string{"a", "c"}, calls)
	assert.Equal(t, 2, n.Len())
}

func TestNotifierSubscribeDuringNotify(t *testing.T) {
	var n Notifier[string]
	late := 0
	n.Subscribe(func(string) {
		n.Subscribe(func(string) { late++ })
	})

	n.Notify("x")
	assert.Equal(t, 0, late)
	n.Notify("y")
	assert.Equal(t, 1, late)
}
