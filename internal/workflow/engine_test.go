package workflow_test

import (
	"context"
	"errors"
	"testing"

	"github.com/fiecsoft/procflow/internal/model"
	"github.com/fiecsoft/procflow/internal/store"
	"github.com/fiecsoft/procflow/internal/workflow"
)

const (
	roleCoordinator = "COORDINATOR"
	roleDirector    = "DIRECTOR"
)

type fixture struct {
	store    *store.Memory
	engine   *workflow.Service
	template *model.ProcessTemplate
	user     *model.User
}

// newFixture seeds a published three step template: a required coordinator
// step, an optional coordinator step, and a required director step.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory()

	user := &model.User{ID: "user-1", FullName: "Maria Souza", Email: "maria@example.edu", Active: true}
	if err := st.CreateUser(ctx, user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	pt := &model.ProcessType{ID: "pt-1", Code: "EVAL", Name: "Teacher evaluation", Active: true}
	if err := st.CreateProcessType(ctx, pt); err != nil {
		t.Fatalf("seed process type: %v", err)
	}
	tpl := &model.ProcessTemplate{ID: "tpl-1", ProcessTypeID: pt.ID, Version: 1, Published: true}
	if err := st.CreateTemplate(ctx, tpl); err != nil {
		t.Fatalf("seed template: %v", err)
	}
	steps := []model.StepTemplate{
		{ID: "st-1", TemplateID: tpl.ID, Ord: 1, Title: "Plan", Required: true, ReviewerRole: roleCoordinator},
		{ID: "st-2", TemplateID: tpl.ID, Ord: 2, Title: "Evidence", Required: false, ReviewerRole: roleCoordinator},
		{ID: "st-3", TemplateID: tpl.ID, Ord: 3, Title: "Report", Required: true, ReviewerRole: roleDirector},
	}
	for i := range steps {
		if err := st.CreateStepTemplate(ctx, &steps[i]); err != nil {
			t.Fatalf("seed step template: %v", err)
		}
	}
	return &fixture{
		store:    st,
		engine:   workflow.NewService(st, nil),
		template: tpl,
		user:     user,
	}
}

func (f *fixture) instantiate(t *testing.T) *model.ProcessInstance {
	t.Helper()
	inst, err := f.engine.Instantiate(context.Background(), workflow.InstantiateInput{
		TemplateID:        f.template.ID,
		Year:              2025,
		Month:             3,
		ResponsibleUserID: f.user.ID,
		CreatedBy:         f.user.ID,
	})
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	return inst
}

func (f *fixture) steps(t *testing.T, instanceID string) []model.StepInstance {
	t.Helper()
	steps, err := f.engine.StepsByInstance(context.Background(), instanceID)
	if err != nil {
		t.Fatalf("load steps: %v", err)
	}
	return steps
}

// approveStep drives one step through upload, submit, and approve.
func (f *fixture) approveStep(t *testing.T, actor workflow.Actor, instanceID, stepID string) {
	t.Helper()
	ctx := context.Background()
	for _, action := range []model.StepAction{model.ActionUpload, model.ActionSubmit, model.ActionApprove} {
		if _, err := f.engine.TransitionStep(ctx, actor, instanceID, stepID, action, ""); err != nil {
			t.Fatalf("%s step %s: %v", action, stepID, err)
		}
	}
}

func TestInstantiateSnapshotsTemplate(t *testing.T) {
	f := newFixture(t)
	inst := f.instantiate(t)

	if inst.State != model.ProcessInProgress {
		t.Fatalf("expected IN_PROGRESS, got %s", inst.State)
	}
	if inst.Version != 1 {
		t.Fatalf("expected version 1, got %d", inst.Version)
	}
	steps := f.steps(t, inst.ID)
	if len(steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(steps))
	}
	for i, st := range steps {
		if st.Ord != i+1 {
			t.Fatalf("expected ord %d at position %d, got %d", i+1, i, st.Ord)
		}
		if st.Status != model.StepPending {
			t.Fatalf("expected all steps PENDING, step %d is %s", st.Ord, st.Status)
		}
	}
	if steps[2].ReviewerRole != roleDirector {
		t.Fatalf("expected reviewer role snapshot, got %s", steps[2].ReviewerRole)
	}
}

func TestInstantiatePreconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft := &model.ProcessTemplate{ID: "tpl-draft", ProcessTypeID: "pt-1", Version: 2}
	if err := f.store.CreateTemplate(ctx, draft); err != nil {
		t.Fatalf("seed draft: %v", err)
	}
	_, err := f.engine.Instantiate(ctx, workflow.InstantiateInput{
		TemplateID: draft.ID, Year: 2025, Month: 1, ResponsibleUserID: f.user.ID,
	})
	if !errors.Is(err, workflow.ErrTemplateNotPublished) {
		t.Fatalf("expected ErrTemplateNotPublished, got %v", err)
	}

	inactive := &model.User{ID: "user-2", Email: "gone@example.edu", Active: false}
	if err := f.store.CreateUser(ctx, inactive); err != nil {
		t.Fatalf("seed inactive user: %v", err)
	}
	_, err = f.engine.Instantiate(ctx, workflow.InstantiateInput{
		TemplateID: f.template.ID, Year: 2025, Month: 1, ResponsibleUserID: inactive.ID,
	})
	if !errors.Is(err, workflow.ErrInactiveUser) {
		t.Fatalf("expected ErrInactiveUser, got %v", err)
	}

	_, err = f.engine.Instantiate(ctx, workflow.InstantiateInput{
		TemplateID: f.template.ID, Year: 2025, Month: 13, ResponsibleUserID: f.user.ID,
	})
	var vErr *workflow.ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "month" {
		t.Fatalf("expected month validation error, got %v", err)
	}
}

func TestReviewerAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inst := f.instantiate(t)
	stepID := f.steps(t, inst.ID)[0].ID

	owner := workflow.Actor{ID: f.user.ID}
	if _, err := f.engine.TransitionStep(ctx, owner, inst.ID, stepID, model.ActionUpload, ""); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := f.engine.TransitionStep(ctx, owner, inst.ID, stepID, model.ActionSubmit, ""); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// The responsible user holds no reviewer role, so they cannot approve.
	if _, err := f.engine.TransitionStep(ctx, owner, inst.ID, stepID, model.ActionApprove, ""); !errors.Is(err, workflow.ErrUnauthorizedReviewer) {
		t.Fatalf("expected ErrUnauthorizedReviewer, got %v", err)
	}
	wrongRole := workflow.Actor{ID: "rev-1", Roles: []string{roleDirector}}
	if _, err := f.engine.TransitionStep(ctx, wrongRole, inst.ID, stepID, model.ActionApprove, ""); !errors.Is(err, workflow.ErrUnauthorizedReviewer) {
		t.Fatalf("expected ErrUnauthorizedReviewer for wrong role, got %v", err)
	}
	// Admins may act in place of any reviewer.
	admin := workflow.Actor{ID: "admin-1", Roles: []string{model.RoleAdmin}}
	step, err := f.engine.TransitionStep(ctx, admin, inst.ID, stepID, model.ActionApprove, "looks good")
	if err != nil {
		t.Fatalf("admin approve: %v", err)
	}
	if step.Status != model.StepApproved || step.ReviewedBy != admin.ID {
		t.Fatalf("expected approved by admin, got %s by %s", step.Status, step.ReviewedBy)
	}
}

func TestStepNotPartOfInstance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.instantiate(t)
	second := f.instantiate(t)
	foreignStep := f.steps(t, second.ID)[0].ID

	actor := workflow.Actor{ID: f.user.ID}
	_, err := f.engine.TransitionStep(ctx, actor, first.ID, foreignStep, model.ActionUpload, "")
	if !errors.Is(err, workflow.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFullLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inst := f.instantiate(t)
	steps := f.steps(t, inst.ID)

	owner := workflow.Actor{ID: f.user.ID}
	coordinator := workflow.Actor{ID: "rev-1", Roles: []string{roleCoordinator}}
	director := workflow.Actor{ID: "rev-2", Roles: []string{roleDirector}}
	admin := workflow.Actor{ID: "admin-1", Roles: []string{model.RoleAdmin}}

	progress, err := f.engine.ComputeProgress(ctx, inst.ID)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if progress.ProgressPercent != 0 {
		t.Fatalf("expected 0%% before any work, got %d%%", progress.ProgressPercent)
	}

	// Submitting before required steps are approved must fail.
	if _, err := f.engine.SubmitForApproval(ctx, owner, inst.ID); !errors.Is(err, workflow.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on early submit, got %v", err)
	}

	f.approveStep(t, coordinator, inst.ID, steps[0].ID)
	if _, err := f.engine.TransitionStep(ctx, owner, inst.ID, steps[1].ID, model.ActionSkip, "not needed"); err != nil {
		t.Fatalf("skip optional: %v", err)
	}

	progress, err = f.engine.ComputeProgress(ctx, inst.ID)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if progress.CompletedSteps != 1 || progress.ProgressPercent != 33 {
		t.Fatalf("expected 1 completed / 33%%, got %d / %d%%", progress.CompletedSteps, progress.ProgressPercent)
	}
	// Recomputing is derived, never cached: the same call yields the same result.
	again, _ := f.engine.ComputeProgress(ctx, inst.ID)
	if *again != *progress {
		t.Fatalf("expected identical recomputed progress, got %+v vs %+v", again, progress)
	}

	f.approveStep(t, director, inst.ID, steps[2].ID)

	if _, err := f.engine.SubmitForApproval(ctx, owner, inst.ID); err != nil {
		t.Fatalf("submit for approval: %v", err)
	}
	if _, err := f.engine.ApproveProcess(ctx, director, inst.ID, ""); !errors.Is(err, workflow.ErrUnauthorizedReviewer) {
		t.Fatalf("expected sign-off to require admin, got %v", err)
	}
	if _, err := f.engine.RejectProcess(ctx, admin, inst.ID, "missing annex"); err != nil {
		t.Fatalf("reject process: %v", err)
	}
	// A rejected process can be resubmitted.
	if _, err := f.engine.SubmitForApproval(ctx, owner, inst.ID); err != nil {
		t.Fatalf("resubmit after rejection: %v", err)
	}
	if _, err := f.engine.ApproveProcess(ctx, admin, inst.ID, "ok"); err != nil {
		t.Fatalf("approve process: %v", err)
	}

	closed, err := f.engine.Close(ctx, admin, inst.ID)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.State != model.ProcessClosed || closed.ClosedAt == nil {
		t.Fatalf("expected CLOSED with timestamp, got %s", closed.State)
	}

	// Closed instances reject further work.
	if _, err := f.engine.TransitionStep(ctx, owner, inst.ID, steps[0].ID, model.ActionUpload, ""); !errors.Is(err, workflow.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on closed instance, got %v", err)
	}

	archived, err := f.engine.MarkArchived(ctx, admin, inst.ID)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !archived.Archived || archived.State != model.ProcessArchived {
		t.Fatalf("expected archived instance, got %+v", archived)
	}
	if _, err := f.engine.SubmitForApproval(ctx, owner, inst.ID); !errors.Is(err, workflow.ErrInstanceArchived) {
		t.Fatalf("expected ErrInstanceArchived, got %v", err)
	}
	if _, err := f.engine.CommentStep(ctx, owner, inst.ID, steps[0].ID, "late note"); !errors.Is(err, workflow.ErrInstanceArchived) {
		t.Fatalf("expected ErrInstanceArchived on comment, got %v", err)
	}
}

func TestCloseDirectlyWhenAllApproved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inst := f.instantiate(t)
	steps := f.steps(t, inst.ID)

	owner := workflow.Actor{ID: f.user.ID}
	admin := workflow.Actor{ID: "admin-1", Roles: []string{model.RoleAdmin}}

	// Closing before the steps are resolved must fail.
	if _, err := f.engine.Close(ctx, admin, inst.ID); !errors.Is(err, workflow.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	f.approveStep(t, admin, inst.ID, steps[0].ID)
	if _, err := f.engine.TransitionStep(ctx, owner, inst.ID, steps[1].ID, model.ActionSkip, ""); err != nil {
		t.Fatalf("skip: %v", err)
	}
	f.approveStep(t, admin, inst.ID, steps[2].ID)

	// Every non-skipped step is approved, so closing works without the
	// process-level sign-off round.
	closed, err := f.engine.Close(ctx, admin, inst.ID)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.State != model.ProcessClosed {
		t.Fatalf("expected CLOSED, got %s", closed.State)
	}
}

func TestMarkArchivedRequiresClosed(t *testing.T) {
	f := newFixture(t)
	inst := f.instantiate(t)
	admin := workflow.Actor{ID: "admin-1", Roles: []string{model.RoleAdmin}}
	_, err := f.engine.MarkArchived(context.Background(), admin, inst.ID)
	if !errors.Is(err, workflow.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}
