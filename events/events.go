package events

import (
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Event is an event of a file change.
type Event struct {
	// This is the file's path.
	File string
	// The kind of change.
	Op fsnotify.Op
	// The timestamp of the file being changed.
	Timestamp time.Time
}

// Flag is the level-triggered "reload requested" signal. It goes from unset to set
// once and never resets. It is safe for concurrent use.
type Flag struct {
	trigger atomic.Pointer[Event]
}

// Set marks the flag and records the event that caused it. Only the first call has
// an effect; it reports whether this call was the one that set the flag.
func (f *Flag) Set(event Event) bool {
	return f.trigger.CompareAndSwap(nil, &event)
}

// IsSet reports whether a reload has been requested.
func (f *Flag) IsSet() bool {
	return f.trigger.Load() != nil
}

// Trigger returns the event that set the flag.
func (f *Flag) Trigger() (Event, bool) {
	event := f.trigger.Load()
	if event == nil {
		return Event{}, false
	}
	return *event, true
}
