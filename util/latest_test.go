package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func pending[T any](l *Latest[T]) bool {
	select {
	case <-l.Channel():
		return true
	default:
		return false
	}
}

func TestLatestCoalesces(t *testing.T) {
	l := NewLatest[int]()

	l.Set(1)
	l.Set(2)
	l.Set(3)

	assert.True(t, pending(l), "a wakeup is pending after Set")
	assert.Equal(t, 3, l.Get(), "only the most recent value survives")
	assert.False(t, pending(l), "one wakeup covers any number of sets")
}

func TestLatestZeroValueBeforeSet(t *testing.T) {
	l := NewLatest[string]()
	assert.Equal(t, "", l.Get())
	assert.False(t, pending(l))
}

func TestLatestSetNeverBlocks(t *testing.T) {
	l := NewLatest[int]()
	for i := 0; i < 100; i++ {
		l.Set(i)
	}
	assert.Equal(t, 99, l.Get())
}
