package util

import "sync"

// Latest is a one-slot mailbox. Writers overwrite the slot and never
// block; the reader selects on Channel and then fetches whatever is
// newest with Get. A slow reader therefore misses intermediate values
// but always sees the final one, which is exactly what a config-reload
// consumer wants.
type Latest[T any] struct {
	mu     sync.Mutex
	value  T
	notify chan struct{}
}

func NewLatest[T any]() *Latest[T] {
	return &Latest[T]{notify: make(chan struct{}, 1)}
}

// Set overwrites the slot and marks a notification pending. Any number
// of Set calls before the reader wakes up collapse into one wakeup.
func (l *Latest[T]) Set(value T) {
	l.mu.Lock()
	l.value = value
	l.mu.Unlock()

	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// Channel returns the wakeup channel. One receive may stand in for any
// number of Set calls; follow it with Get.
func (l *Latest[T]) Channel() <-chan struct{} {
	return l.notify
}

// Get returns the newest value in the slot.
func (l *Latest[T]) Get() T {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value
}
