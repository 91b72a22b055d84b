package workflow

import (
	"errors"
	"testing"

	"github.com/fiecsoft/procflow/internal/model"
)

func TestNextStepStatus(t *testing.T) {
	cases := []struct {
		name    string
		from    model.StepStatus
		action  model.StepAction
		want    model.StepStatus
		wantErr error
	}{
		{"upload from pending", model.StepPending, model.ActionUpload, model.StepInProgress, nil},
		{"skip optional pending", model.StepPending, model.ActionSkip, model.StepSkipped, nil},
		{"reupload in progress", model.StepInProgress, model.ActionUpload, model.StepInProgress, nil},
		{"submit in progress", model.StepInProgress, model.ActionSubmit, model.StepSubmitted, nil},
		{"approve submitted", model.StepSubmitted, model.ActionApprove, model.StepApproved, nil},
		{"reject submitted", model.StepSubmitted, model.ActionReject, model.StepRejected, nil},
		{"reopen rejected with upload", model.StepRejected, model.ActionUpload, model.StepInProgress, nil},
		{"resubmit rejected without upload", model.StepRejected, model.ActionSubmit, model.StepSubmitted, nil},
		{"submit from pending", model.StepPending, model.ActionSubmit, "", ErrInvalidTransition},
		{"approve pending", model.StepPending, model.ActionApprove, "", ErrInvalidTransition},
		{"upload to approved", model.StepApproved, model.ActionUpload, "", ErrInvalidTransition},
		{"skip approved", model.StepApproved, model.ActionSkip, "", ErrInvalidTransition},
		{"skip skipped", model.StepSkipped, model.ActionSkip, "", ErrInvalidTransition},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			step := &model.StepInstance{ID: "s1", Status: tc.from}
			got, err := NextStepStatus(step, tc.action)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestSkipRequiredStepForbidden(t *testing.T) {
	step := &model.StepInstance{ID: "s1", Status: model.StepPending, Required: true}
	_, err := NextStepStatus(step, model.ActionSkip)
	if !errors.Is(err, ErrSkipRequiredStep) {
		t.Fatalf("expected ErrSkipRequiredStep, got %v", err)
	}
	var tErr *StepTransitionError
	if !errors.As(err, &tErr) {
		t.Fatalf("expected StepTransitionError, got %T", err)
	}
	if tErr.Action != model.ActionSkip || tErr.From != model.StepPending {
		t.Fatalf("unexpected error detail: %+v", tErr)
	}
}

func TestCloseEligible(t *testing.T) {
	steps := []model.StepInstance{
		{Status: model.StepApproved},
		{Status: model.StepSkipped},
		{Status: model.StepApproved},
	}
	if !CloseEligible(steps) {
		t.Fatal("expected eligible when non-skipped steps are approved")
	}
	steps[2].Status = model.StepSubmitted
	if CloseEligible(steps) {
		t.Fatal("expected ineligible with a submitted step")
	}
	if !CloseEligible(nil) {
		t.Fatal("expected eligible with no steps")
	}
}

func TestProgressOf(t *testing.T) {
	steps := []model.StepInstance{
		{Status: model.StepApproved},
		{Status: model.StepSkipped},
		{Status: model.StepInProgress},
	}
	p := ProgressOf("i1", steps)
	if p.TotalSteps != 3 || p.CompletedSteps != 1 {
		t.Fatalf("expected 1/3, got %d/%d", p.CompletedSteps, p.TotalSteps)
	}
	// 1/3 rounds to 33, and skipped steps never count as completed.
	if p.ProgressPercent != 33 {
		t.Fatalf("expected 33%%, got %d%%", p.ProgressPercent)
	}

	if got := ProgressOf("i1", nil); got.ProgressPercent != 0 || got.TotalSteps != 0 {
		t.Fatalf("expected zero progress for no steps, got %+v", got)
	}

	all := []model.StepInstance{{Status: model.StepApproved}, {Status: model.StepApproved}}
	if got := ProgressOf("i1", all); got.ProgressPercent != 100 {
		t.Fatalf("expected 100%%, got %d%%", got.ProgressPercent)
	}
}
