package clientsync

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestCallbackList(t *testing.T) {
	callbacks := NewCallbackList[func()]()

	calls := map[int]int{}
	aId := callbacks.Add(func() {
		calls[0] += 1
	})
	callbacks.Add(func() {
		calls[1] += 1
	})

	for _, callback := range callbacks.Get() {
		callback()
	}
	assert.Equal(t, map[int]int{0: 1, 1: 1}, calls)

	callbacks.Remove(aId)
	for _, callback := range callbacks.Get() {
		callback()
	}
	assert.Equal(t, map[int]int{0: 1, 1: 2}, calls)

	// removing an unknown id is a no-op
	callbacks.Remove(100)
	assert.Equal(t, 1, len(callbacks.Get()))
}
