package saga

import (
	"fmt"
	"strings"
	"sync"
)

// UnwindEventType defines the kinds of events recorded while a saga
// unwinds its ledger.
type UnwindEventType int

const (
	UnwindStarted UnwindEventType = iota
	UnwindSucceeded
	UnwindFailed
)

// String returns the string representation of the UnwindEventType.
func (t UnwindEventType) String() string {
	switch t {
	case UnwindStarted:
		return "started"
	case UnwindSucceeded:
		return "succeeded"
	case UnwindFailed:
		return "failed"
	default:
		return fmt.Sprintf("Unknown UnwindEventType: %d", t)
	}
}

// UnwindEvent is an entry in a saga's unwind log. Position refers to the
// compensation's registration position.
type UnwindEvent struct {
	SagaID   SagaID
	Position int
	Name     string
	Type     UnwindEventType
}

// String implements the fmt.Stringer interface for UnwindEvent.
func (e UnwindEvent) String() string {
	return fmt.Sprintf("C%03d %s %s", e.Position, e.Name, e.Type)
}

// unwindStatus is the per-compensation status derived from recorded events.
type unwindStatus int

const (
	statusNotStarted unwindStatus = iota
	statusRunning
	statusSucceeded
	statusFailed
)

// next returns the status for a compensation after recording the given
// event type.
func (s unwindStatus) next(eventType UnwindEventType) (unwindStatus, error) {
	switch s {
	case statusNotStarted:
		if eventType == UnwindStarted {
			return statusRunning, nil
		}
	case statusRunning:
		switch eventType {
		case UnwindSucceeded:
			return statusSucceeded, nil
		case UnwindFailed:
			return statusFailed, nil
		}
	}

	return statusNotStarted, fmt.Errorf(
		"illegal event type %s for current unwind status %d", eventType, s,
	)
}

// unwindLog is the write log for a single saga's unwind. It is owned
// exclusively by the Saga that created it.
type unwindLog struct {
	mu     sync.Mutex
	sagaID SagaID
	events []UnwindEvent
	status map[int]unwindStatus
}

func newUnwindLog(sagaID SagaID) *unwindLog {
	return &unwindLog{
		sagaID: sagaID,
		events: make([]UnwindEvent, 0),
		status: make(map[int]unwindStatus),
	}
}

// record appends an event, validating that the per-compensation status
// transition is legal. A compensation that already reached a terminal
// status rejects further events.
func (l *unwindLog) record(event UnwindEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next, err := l.status[event.Position].next(event.Type)
	if err != nil {
		return err
	}

	l.status[event.Position] = next
	l.events = append(l.events, event)
	return nil
}

// Events returns a copy of the recorded events in order.
func (l *unwindLog) Events() []UnwindEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]UnwindEvent(nil), l.events...)
}

// String implements the fmt.Stringer interface for unwindLog.
func (l *unwindLog) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var sb strings.Builder
	sb.WriteString("UNWIND LOG:\n")
	sb.WriteString(fmt.Sprintf("saga id: %s\n", l.sagaID))
	sb.WriteString(fmt.Sprintf("events (%d total):\n", len(l.events)))
	for i, event := range l.events {
		sb.WriteString(fmt.Sprintf("%03d %s\n", i+1, event.String()))
	}
	return sb.String()
}
