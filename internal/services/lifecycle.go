package services

import "fmt"

// ApplicationState is the position of an application on the draft/submit axis.
// Phase assignment is orthogonal and legal in either stored state.
type ApplicationState string

const (
	StateNone      ApplicationState = "NONE"
	StateDraft     ApplicationState = "DRAFT"
	StateSubmitted ApplicationState = "SUBMITTED"
)

func StateOf(a *Application) ApplicationState {
	switch {
	case a == nil:
		return StateNone
	case a.Submitted:
		return StateSubmitted
	default:
		return StateDraft
	}
}

type lifecycleOp string

const (
	opCreate         lifecycleOp = "create"
	opUpsertResponse lifecycleOp = "upsert_response"
	opRequestUpload  lifecycleOp = "request_upload"
	opSubmit         lifecycleOp = "submit"
	opAssignPhase    lifecycleOp = "assign_phase"
)

func isAllowed(state ApplicationState, op lifecycleOp) bool {
	switch op {
	case opCreate:
		return state == StateNone
	case opUpsertResponse, opRequestUpload, opSubmit:
		return state == StateDraft
	case opAssignPhase:
		return state == StateDraft || state == StateSubmitted
	default:
		return false
	}
}

// checkTransition returns the error a caller sees when op is illegal for a.
func checkTransition(a *Application, op lifecycleOp) error {
	state := StateOf(a)
	if isAllowed(state, op) {
		return nil
	}
	switch {
	case state == StateNone:
		return NewNotFoundError("application not found")
	case op == opCreate:
		return NewDuplicateError("application already exists for this cycle")
	case state == StateSubmitted:
		return NewStateError(fmt.Sprintf("application %s is submitted; %s not allowed", a.ID, op))
	default:
		return NewStateError(fmt.Sprintf("%s not allowed in state %s", op, state))
	}
}
