package tasks

import (
	"context"
	"fmt"
)

// Kind tags an Event.
type Kind int

const (
	// KindStarted marks the start of work on a task.
	KindStarted Kind = iota
	// KindProgress reports Current of Total units done.
	KindProgress
	// KindCompleted carries the task's Result.
	KindCompleted
	// KindFailed carries the task's Err.
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindStarted:
		return "started"
	case KindProgress:
		return "progress"
	case KindCompleted:
		return "completed"
	case KindFailed:
		return "failed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is one notification about a task. Only the fields that belong to
// its Kind are set.
type Event struct {
	TaskID string
	Kind   Kind

	Current int
	Total   int

	Result any
	Err    error
}

// Started returns a KindStarted event.
func Started(id string) Event {
	return Event{TaskID: id, Kind: KindStarted}
}

// Progress returns a KindProgress event.
func Progress(id string, current, total int) Event {
	return Event{TaskID: id, Kind: KindProgress, Current: current, Total: total}
}

// Completed returns a KindCompleted event carrying result.
func Completed(id string, result any) Event {
	return Event{TaskID: id, Kind: KindCompleted, Result: result}
}

// Failed returns a KindFailed event carrying err.
func Failed(id string, err error) Event {
	return Event{TaskID: id, Kind: KindFailed, Err: err}
}

// Terminal reports whether no further events follow e for its task.
func (e Event) Terminal() bool {
	return e.Kind == KindCompleted || e.Kind == KindFailed
}

func (e Event) String() string {
	switch e.Kind {
	case KindProgress:
		return fmt.Sprintf("%s %s %d/%d", e.TaskID, e.Kind, e.Current, e.Total)
	case KindFailed:
		return fmt.Sprintf("%s %s: %v", e.TaskID, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s %s", e.TaskID, e.Kind)
	}
}

// Send delivers e on ch, giving up when ctx is done. A nil channel drops the
// event. It reports whether the event was delivered.
func Send(ctx context.Context, ch chan<- Event, e Event) bool {
	if ch == nil {
		return false
	}
	select {
	case ch <- e:
		return true
	case <-ctx.Done():
		return false
	}
}

// TrySend delivers e on ch only if the receiver is ready or the buffer has
// room. Progress reporters use it so a slow consumer never stalls the work.
func TrySend(ch chan<- Event, e Event) bool {
	if ch == nil {
		return false
	}
	select {
	case ch <- e:
		return true
	default:
		return false
	}
}
