package workflow

import "github.com/fiecsoft/procflow/internal/model"

// stepTransitions is the step state machine. Absent entries are illegal.
// Uploading while IN_PROGRESS stays IN_PROGRESS (a new artifact version);
// uploading in REJECTED implicitly reopens the step.
var stepTransitions = map[model.StepStatus]map[model.StepAction]model.StepStatus{
	model.StepPending: {
		model.ActionUpload: model.StepInProgress,
		model.ActionSkip:   model.StepSkipped,
	},
	model.StepInProgress: {
		model.ActionUpload: model.StepInProgress,
		model.ActionSubmit: model.StepSubmitted,
		model.ActionSkip:   model.StepSkipped,
	},
	model.StepSubmitted: {
		model.ActionApprove: model.StepApproved,
		model.ActionReject:  model.StepRejected,
	},
	model.StepRejected: {
		model.ActionUpload: model.StepInProgress,
		model.ActionSubmit: model.StepSubmitted,
	},
}

// NextStepStatus resolves the target status for applying action to a step in
// the given status. Skipping a required step fails regardless of status.
func NextStepStatus(step *model.StepInstance, action model.StepAction) (model.StepStatus, error) {
	if action == model.ActionSkip && step.Required {
		return "", &StepTransitionError{StepID: step.ID, From: step.Status, Action: action, reason: ErrSkipRequiredStep}
	}
	next, ok := stepTransitions[step.Status][action]
	if !ok {
		return "", &StepTransitionError{StepID: step.ID, From: step.Status, Action: action, reason: ErrInvalidTransition}
	}
	return next, nil
}

// CloseEligible is the closing precondition used everywhere: every non-SKIPPED
// step must be APPROVED. Skipped steps are excluded from the check.
func CloseEligible(steps []model.StepInstance) bool {
	for _, s := range steps {
		if s.Status == model.StepSkipped {
			continue
		}
		if s.Status != model.StepApproved {
			return false
		}
	}
	return true
}

// requiredApproved reports whether every required step is APPROVED, the gate
// for submitting the whole process for final sign-off.
func requiredApproved(steps []model.StepInstance) bool {
	for _, s := range steps {
		if s.Required && s.Status != model.StepApproved {
			return false
		}
	}
	return true
}
