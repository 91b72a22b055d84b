package model

// StepStatus describes where a step instance sits in its approval lifecycle.
// A type declared via "type X string" gives symbolic states better type
// safety than plain strings.
type StepStatus string

const (
	StepPending    StepStatus = "PENDING"
	StepInProgress StepStatus = "IN_PROGRESS"
	StepSubmitted  StepStatus = "SUBMITTED"
	StepApproved   StepStatus = "APPROVED"
	StepRejected   StepStatus = "REJECTED"
	StepSkipped    StepStatus = "SKIPPED"
)

var validStepStatuses = map[StepStatus]bool{
	StepPending:    true,
	StepInProgress: true,
	StepSubmitted:  true,
	StepApproved:   true,
	StepRejected:   true,
	StepSkipped:    true,
}

// terminalStepStatuses lists statuses that accept no further actions.
// REJECTED is deliberately absent: a rejected step returns to IN_PROGRESS on
// resubmission.
var terminalStepStatuses = map[StepStatus]bool{
	StepApproved: true,
	StepSkipped:  true,
}

// IsValid reports whether s names a known step status.
func (s StepStatus) IsValid() bool { return validStepStatuses[s] }

// IsTerminal reports whether no further transitions are allowed from s.
func (s StepStatus) IsTerminal() bool { return terminalStepStatuses[s] }

func (s StepStatus) String() string { return string(s) }

// ProcessState describes the aggregate state of a process instance. It is
// driven by the state machine, never set directly by callers.
type ProcessState string

const (
	ProcessInProgress      ProcessState = "IN_PROGRESS"
	ProcessPendingApproval ProcessState = "PENDING_APPROVAL"
	ProcessApproved        ProcessState = "APPROVED"
	ProcessRejected        ProcessState = "REJECTED"
	ProcessClosed          ProcessState = "CLOSED"
	ProcessArchived        ProcessState = "ARCHIVED"
)

var validProcessStates = map[ProcessState]bool{
	ProcessInProgress:      true,
	ProcessPendingApproval: true,
	ProcessApproved:        true,
	ProcessRejected:        true,
	ProcessClosed:          true,
	ProcessArchived:        true,
}

var terminalProcessStates = map[ProcessState]bool{
	ProcessClosed:   true,
	ProcessArchived: true,
}

// IsValid reports whether p names a known process state.
func (p ProcessState) IsValid() bool { return validProcessStates[p] }

// IsTerminal reports whether the process accepts no further step or process
// transitions.
func (p ProcessState) IsTerminal() bool { return terminalProcessStates[p] }

func (p ProcessState) String() string { return string(p) }

// StepAction is a caller-initiated action on a step instance.
type StepAction string

const (
	ActionUpload  StepAction = "upload"
	ActionSubmit  StepAction = "submit"
	ActionApprove StepAction = "approve"
	ActionReject  StepAction = "reject"
	ActionSkip    StepAction = "skip"
)

var validStepActions = map[StepAction]bool{
	ActionUpload:  true,
	ActionSubmit:  true,
	ActionApprove: true,
	ActionReject:  true,
	ActionSkip:    true,
}

// IsValid reports whether a names a known step action.
func (a StepAction) IsValid() bool { return validStepActions[a] }

func (a StepAction) String() string { return string(a) }
