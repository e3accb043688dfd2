package domain

import "strings"

type State string

const (
	StateScheduled         State = "scheduled"
	StateUploading         State = "uploading"
	StatePendingEvaluation State = "pending_evaluation"
	StateUnderReview       State = "under_review"
	StateEvaluated         State = "evaluated"
	StateClosed            State = "closed"
	StateCancelled         State = "cancelled"
	StateRejected          State = "rejected"
)

var allStates = []State{
	StateScheduled, StateUploading, StatePendingEvaluation, StateUnderReview,
	StateEvaluated, StateClosed, StateCancelled, StateRejected,
}

// ParseState accepts the canonical lower-case name only after trimming.
func ParseState(s string) (State, error) {
	s = strings.TrimSpace(s)
	for _, st := range allStates {
		if string(st) == s {
			return st, nil
		}
	}
	return "", &InvalidStateError{State: s}
}

func (s State) Valid() bool {
	_, err := ParseState(string(s))
	return err == nil
}

func (s State) Terminal() bool {
	return s == StateClosed || s == StateCancelled || s == StateRejected
}

// NonTerminalStates lists the states the scheduled sweep visits.
func NonTerminalStates() []State {
	out := make([]State, 0, len(allStates))
	for _, s := range allStates {
		if !s.Terminal() {
			out = append(out, s)
		}
	}
	return out
}

// edges is the allowed edge set. Forced transitions ignore it.
var edges = map[State][]State{
	StateScheduled:         {StateUploading, StateCancelled},
	StateUploading:         {StatePendingEvaluation, StateCancelled},
	StatePendingEvaluation: {StateUnderReview, StateCancelled},
	StateUnderReview:       {StateEvaluated, StateRejected, StateCancelled},
	StateEvaluated:         {StateClosed, StateCancelled},
}

// CanTransition reports whether from→to is an edge of the lifecycle graph.
func CanTransition(from, to State) bool {
	for _, s := range edges[from] {
		if s == to {
			return true
		}
	}
	return false
}
