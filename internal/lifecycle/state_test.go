package lifecycle_test

import (
	"errors"
	"testing"

	"postflow/internal/lifecycle"
)

func TestNextLegalEdges(t *testing.T) {
	tests := []struct {
		from  lifecycle.State
		event lifecycle.Event
		want  lifecycle.State
	}{
		{lifecycle.StateReceived, lifecycle.EventBegin, lifecycle.StateModerating},
		{lifecycle.StateModerating, lifecycle.EventSucceed, lifecycle.StateModerated},
		{lifecycle.StateModerated, lifecycle.EventBegin, lifecycle.StateAnalyzing},
		{lifecycle.StateModerated, lifecycle.EventReject, lifecycle.StateRejected},
		{lifecycle.StateAnalyzing, lifecycle.EventSucceed, lifecycle.StateAnalyzed},
		{lifecycle.StateAnalyzed, lifecycle.EventBegin, lifecycle.StateCaptioning},
		{lifecycle.StateCaptioning, lifecycle.EventSucceed, lifecycle.StateCaptioned},
		{lifecycle.StateCaptioned, lifecycle.EventBegin, lifecycle.StateValidating},
		{lifecycle.StateValidating, lifecycle.EventSucceed, lifecycle.StateAwaitingReview},
		{lifecycle.StateValidating, lifecycle.EventValidationFailed, lifecycle.StateCaptioning},
		{lifecycle.StateAwaitingReview, lifecycle.EventApprove, lifecycle.StateScheduled},
		{lifecycle.StateAwaitingReview, lifecycle.EventReject, lifecycle.StateRejected},
		{lifecycle.StateAwaitingReview, lifecycle.EventEdit, lifecycle.StateCaptioning},
		{lifecycle.StateScheduled, lifecycle.EventBegin, lifecycle.StatePublishing},
		{lifecycle.StatePublishing, lifecycle.EventSucceed, lifecycle.StatePublished},
	}
	for _, tc := range tests {
		got, err := lifecycle.Next(tc.from, tc.event)
		if err != nil {
			t.Fatalf("Next(%s, %s) returned error: %v", tc.from, tc.event, err)
		}
		if got != tc.want {
			t.Fatalf("Next(%s, %s) = %s, want %s", tc.from, tc.event, got, tc.want)
		}
	}
}

func TestFailReachableFromEveryNonTerminalState(t *testing.T) {
	for _, state := range lifecycle.AllStates() {
		got, err := lifecycle.Next(state, lifecycle.EventFail)
		if state.IsTerminal() {
			if !errors.Is(err, lifecycle.ErrForbidden) {
				t.Fatalf("expected fail from terminal %s to be forbidden, got %v", state, err)
			}
			continue
		}
		if err != nil || got != lifecycle.StateFailed {
			t.Fatalf("Next(%s, fail) = %s, %v", state, got, err)
		}
	}
}

func TestNextForbiddenEdges(t *testing.T) {
	tests := []struct {
		from  lifecycle.State
		event lifecycle.Event
	}{
		{lifecycle.StateReceived, lifecycle.EventSucceed},
		{lifecycle.StateReceived, lifecycle.EventApprove},
		{lifecycle.StateModerating, lifecycle.EventReject},
		{lifecycle.StateCaptioned, lifecycle.EventEdit},
		{lifecycle.StateValidating, lifecycle.EventApprove},
		{lifecycle.StateScheduled, lifecycle.EventReject},
		{lifecycle.StatePublished, lifecycle.EventBegin},
		{lifecycle.StateRejected, lifecycle.EventBegin},
		{lifecycle.StateFailed, lifecycle.EventBegin},
		{lifecycle.State("bogus"), lifecycle.EventBegin},
	}
	for _, tc := range tests {
		if _, err := lifecycle.Next(tc.from, tc.event); !errors.Is(err, lifecycle.ErrForbidden) {
			t.Fatalf("Next(%s, %s) expected ErrForbidden, got %v", tc.from, tc.event, err)
		}
	}
}

func TestTerminalStatesHaveNoOutgoingEdges(t *testing.T) {
	events := []lifecycle.Event{
		lifecycle.EventBegin, lifecycle.EventSucceed, lifecycle.EventReject,
		lifecycle.EventApprove, lifecycle.EventEdit, lifecycle.EventValidationFailed, lifecycle.EventFail,
	}
	for _, state := range []lifecycle.State{lifecycle.StatePublished, lifecycle.StateRejected, lifecycle.StateFailed} {
		for _, event := range events {
			if lifecycle.Allowed(state, event) {
				t.Fatalf("terminal %s accepted %s", state, event)
			}
		}
	}
}

func TestStageActiveStateRoundTrip(t *testing.T) {
	for _, stg := range lifecycle.AllStages() {
		state, ok := stg.ActiveState()
		if stg == lifecycle.StageAnalytics {
			if ok {
				t.Fatalf("analytics should have no active state")
			}
			continue
		}
		if !ok {
			t.Fatalf("stage %s has no active state", stg)
		}
		back, ok := lifecycle.StageFor(state)
		if !ok || back != stg {
			t.Fatalf("StageFor(%s) = %s, want %s", state, back, stg)
		}
	}
}
