// Package workflow holds the transfer-request lifecycle: the closed set of
// statuses, the actions that move a request between them and the roles that
// may perform each action.
package workflow

import (
	"errors"
	"fmt"
)

type Status string

const (
	StatusDraft                Status = "DRAFT"
	StatusSubmitted            Status = "SUBMITTED"
	StatusSubmittedByApprover  Status = "SUBMITTED_BY_APPROVER"
	StatusRequiresChanges      Status = "REQUIRES_CHANGES"
	StatusApproved             Status = "APPROVED"
	StatusRejectedByCompliance Status = "REJECTED_BY_COMPLIANCE"
	StatusBlocked              Status = "BLOCKED"
	StatusProcessing           Status = "PROCESSING"
	StatusPaid                 Status = "PAID"
	StatusVoided               Status = "VOIDED"
)

var statuses = map[Status]bool{
	StatusDraft:                true,
	StatusSubmitted:            true,
	StatusSubmittedByApprover:  true,
	StatusRequiresChanges:      true,
	StatusApproved:             true,
	StatusRejectedByCompliance: true,
	StatusBlocked:              true,
	StatusProcessing:           true,
	StatusPaid:                 true,
	StatusVoided:               true,
}

func (s Status) Valid() bool {
	return statuses[s]
}

// Terminal reports whether no action can move a request out of s.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusVoided || s == StatusRejectedByCompliance
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

type Role int

const (
	RoleRequester Role = iota + 1
	RoleApprover
	RoleController
	RoleCompliance
	RoleAdmin
)

func (r Role) Valid() bool {
	return r >= RoleRequester && r <= RoleAdmin
}

func (r Role) String() string {
	switch r {
	case RoleRequester:
		return "requester"
	case RoleApprover:
		return "approver"
	case RoleController:
		return "controller"
	case RoleCompliance:
		return "compliance"
	case RoleAdmin:
		return "admin"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

type Action string

const (
	ActionSubmit         Action = "submit"
	ActionEdit           Action = "edit"
	ActionApprove        Action = "approve"
	ActionRequestChanges Action = "request_changes"
	ActionReject         Action = "reject"
	ActionBlock          Action = "block"
	ActionUnblock        Action = "unblock"
	ActionDispatch       Action = "dispatch"
	ActionCancel         Action = "cancel"
	ActionMarkPaid       Action = "mark_paid"
	ActionVoid           Action = "void"
)

var (
	ErrUnknownAction     = errors.New("unknown action")
	ErrForbidden         = errors.New("role is not permitted to perform this action")
	ErrInvalidTransition = errors.New("action is not allowed for the current status")
)

// TransitionError describes a refused transition.
type TransitionError struct {
	Action Action
	From   Status
	Role   Role
	Err    error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s from %s as %s: %v", e.Action, e.From, e.Role, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

type rule struct {
	from   []Status
	roles  []Role
	reason bool
	to     func(from Status, role Role) Status
}

func always(s Status) func(Status, Role) Status {
	return func(Status, Role) Status { return s }
}

// submittedFor is the status a request lands in when role submits it.
func submittedFor(role Role) Status {
	if role == RoleApprover {
		return StatusSubmittedByApprover
	}
	return StatusSubmitted
}

var reviewable = []Status{StatusSubmitted, StatusSubmittedByApprover}

var editable = []Status{StatusSubmitted, StatusRequiresChanges, StatusSubmittedByApprover, StatusBlocked}

var rules = map[Action]rule{
	ActionSubmit: {
		from:  []Status{StatusDraft},
		roles: []Role{RoleRequester, RoleApprover, RoleAdmin},
		to:    func(_ Status, role Role) Status { return submittedFor(role) },
	},
	ActionEdit: {
		from:  editable,
		roles: []Role{RoleRequester, RoleApprover, RoleAdmin},
		to: func(from Status, role Role) Status {
			if from == StatusRequiresChanges {
				return submittedFor(role)
			}
			return from
		},
	},
	ActionApprove: {
		from:  reviewable,
		roles: []Role{RoleApprover, RoleAdmin},
		to:    always(StatusApproved),
	},
	ActionRequestChanges: {
		from:   reviewable,
		roles:  []Role{RoleApprover, RoleAdmin},
		reason: true,
		to:     always(StatusRequiresChanges),
	},
	ActionReject: {
		from:   reviewable,
		roles:  []Role{RoleCompliance, RoleAdmin},
		reason: true,
		to:     always(StatusRejectedByCompliance),
	},
	ActionBlock: {
		from:   []Status{StatusSubmitted, StatusSubmittedByApprover, StatusRequiresChanges, StatusApproved},
		roles:  []Role{RoleCompliance, RoleAdmin},
		reason: true,
		to:     always(StatusBlocked),
	},
	ActionUnblock: {
		from:  []Status{StatusBlocked},
		roles: []Role{RoleCompliance, RoleAdmin},
		to:    always(StatusSubmitted),
	},
	ActionDispatch: {
		from:  []Status{StatusApproved},
		roles: []Role{RoleController, RoleAdmin},
		to:    always(StatusProcessing),
	},
	ActionCancel: {
		from:   []Status{StatusApproved, StatusProcessing},
		roles:  []Role{RoleController, RoleAdmin},
		reason: true,
		to:     always(StatusApproved),
	},
	ActionMarkPaid: {
		from:  []Status{StatusProcessing},
		roles: []Role{RoleController, RoleAdmin},
		to:    always(StatusPaid),
	},
	ActionVoid: {
		from:  []Status{StatusSubmitted, StatusSubmittedByApprover, StatusRequiresChanges, StatusBlocked},
		roles: []Role{RoleRequester, RoleAdmin},
		to:    always(StatusVoided),
	},
}

// Next returns the status a request in from moves to when role performs
// action. The role is checked before the status so an unauthorised actor
// learns nothing about the request's state.
func Next(from Status, action Action, role Role) (Status, error) {
	r, ok := rules[action]
	if !ok {
		return "", &TransitionError{Action: action, From: from, Role: role, Err: ErrUnknownAction}
	}
	if !containsRole(r.roles, role) {
		return "", &TransitionError{Action: action, From: from, Role: role, Err: ErrForbidden}
	}
	if !containsStatus(r.from, from) {
		return "", &TransitionError{Action: action, From: from, Role: role, Err: ErrInvalidTransition}
	}
	return r.to(from, role), nil
}

// Permits reports whether role may perform action on some status.
func Permits(role Role, action Action) bool {
	r, ok := rules[action]
	return ok && containsRole(r.roles, role)
}

// Sources lists the statuses action may start from.
func Sources(action Action) []Status {
	src := rules[action].from
	out := make([]Status, len(src))
	copy(out, src)
	return out
}

// RequiresReason reports whether action must carry an audit note.
func RequiresReason(action Action) bool {
	return rules[action].reason
}

// Deactivates reports whether entering s soft-deletes the request.
func Deactivates(s Status) bool {
	return s == StatusVoided
}

// ReleasesTransfer reports whether entering s must deactivate the request's
// open transfer so it can no longer be dispatched.
func ReleasesTransfer(s Status) bool {
	return s == StatusBlocked || s == StatusVoided
}

func containsRole(roles []Role, role Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func containsStatus(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
