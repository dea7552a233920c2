package lifecycle

import (
	"errors"
	"fmt"
)

// State is the lifecycle position of a content item.
type State string

const (
	StateReceived       State = "received"
	StateModerating     State = "moderating"
	StateModerated      State = "moderated"
	StateAnalyzing      State = "analyzing"
	StateAnalyzed       State = "analyzed"
	StateCaptioning     State = "captioning"
	StateCaptioned      State = "captioned"
	StateValidating     State = "validating"
	StateAwaitingReview State = "awaiting_review"
	StateScheduled      State = "scheduled"
	StatePublishing     State = "publishing"
	StatePublished      State = "published"
	StateRejected       State = "rejected"
	StateFailed         State = "failed"
)

var allStates = []State{
	StateReceived,
	StateModerating,
	StateModerated,
	StateAnalyzing,
	StateAnalyzed,
	StateCaptioning,
	StateCaptioned,
	StateValidating,
	StateAwaitingReview,
	StateScheduled,
	StatePublishing,
	StatePublished,
	StateRejected,
	StateFailed,
}

var stateSet = func() map[State]struct{} {
	set := make(map[State]struct{}, len(allStates))
	for _, s := range allStates {
		set[s] = struct{}{}
	}
	return set
}()

// AllStates returns every known state in pipeline order.
func AllStates() []State {
	out := make([]State, len(allStates))
	copy(out, allStates)
	return out
}

// ParseState validates a raw state string.
func ParseState(raw string) (State, bool) {
	s := State(raw)
	_, ok := stateSet[s]
	return s, ok
}

// IsTerminal reports whether no further stage work may run for the state.
func (s State) IsTerminal() bool {
	switch s {
	case StatePublished, StateRejected, StateFailed:
		return true
	default:
		return false
	}
}

// IsActive reports whether a stage job is expected to be in flight.
func (s State) IsActive() bool {
	switch s {
	case StateModerating, StateAnalyzing, StateCaptioning, StateValidating, StatePublishing:
		return true
	default:
		return false
	}
}

// Event is an input to the state machine.
type Event string

const (
	EventBegin            Event = "begin"
	EventSucceed          Event = "succeed"
	EventReject           Event = "reject"
	EventApprove          Event = "approve"
	EventEdit             Event = "edit"
	EventValidationFailed Event = "validation_failed"
	EventFail             Event = "fail"
)

// ErrForbidden is returned when an event has no edge from the current state.
var ErrForbidden = errors.New("forbidden transition")

type edge struct {
	from  State
	event Event
}

var edges = map[edge]State{
	{StateReceived, EventBegin}:  StateModerating,
	{StateModerated, EventBegin}: StateAnalyzing,
	{StateAnalyzed, EventBegin}:  StateCaptioning,
	{StateCaptioned, EventBegin}: StateValidating,
	{StateScheduled, EventBegin}: StatePublishing,

	{StateModerating, EventSucceed}: StateModerated,
	{StateAnalyzing, EventSucceed}:  StateAnalyzed,
	{StateCaptioning, EventSucceed}: StateCaptioned,
	{StateValidating, EventSucceed}: StateAwaitingReview,
	{StatePublishing, EventSucceed}: StatePublished,

	{StateModerated, EventReject}:      StateRejected,
	{StateAwaitingReview, EventReject}: StateRejected,

	{StateAwaitingReview, EventApprove}: StateScheduled,
	{StateAwaitingReview, EventEdit}:    StateCaptioning,

	{StateValidating, EventValidationFailed}: StateCaptioning,
}

// Next returns the state reached by applying event to state.
func Next(state State, event Event) (State, error) {
	if _, ok := stateSet[state]; !ok {
		return "", fmt.Errorf("%w: unknown state %q", ErrForbidden, state)
	}
	if event == EventFail {
		if state.IsTerminal() {
			return "", fmt.Errorf("%w: %s is terminal", ErrForbidden, state)
		}
		return StateFailed, nil
	}
	next, ok := edges[edge{from: state, event: event}]
	if !ok {
		return "", fmt.Errorf("%w: %s on %s", ErrForbidden, event, state)
	}
	return next, nil
}

// Allowed reports whether an edge exists without constructing an error.
func Allowed(state State, event Event) bool {
	_, err := Next(state, event)
	return err == nil
}
