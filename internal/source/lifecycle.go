package source

import (
	"fmt"

	"github.com/koustreak/rowsource/internal/errs"
)

// State is a source's position in its lifecycle.
type State int

const (
	StateUnopened State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Lifecycle is the Unopened -> Open -> Closed state machine. A closed source
// never reopens.
type Lifecycle struct {
	state State
}

// State returns the current state.
func (l *Lifecycle) State() State { return l.state }

// IsOpen reports whether the source is open.
func (l *Lifecycle) IsOpen() bool { return l.state == StateOpen }

// BeginOpen reports whether an open should proceed. It returns false with a
// nil error when the source is already open.
func (l *Lifecycle) BeginOpen(who string) (bool, error) {
	switch l.state {
	case StateOpen:
		return false, nil
	case StateClosed:
		return false, errs.Newf(errs.ErrKindInvalidState, "%s: cannot reopen a closed source", who)
	}
	return true, nil
}

// Opened records a successful open.
func (l *Lifecycle) Opened() { l.state = StateOpen }

// EnsureOpen fails unless the source is open.
func (l *Lifecycle) EnsureOpen(who, op string) error {
	switch l.state {
	case StateOpen:
		return nil
	case StateClosed:
		return errs.Newf(errs.ErrKindInvalidState, "%s: %s after close", who, op)
	default:
		return errs.Newf(errs.ErrKindInvalidState, "%s: %s before open", who, op)
	}
}

// Closed records that the source released its resource.
func (l *Lifecycle) Closed() { l.state = StateClosed }
