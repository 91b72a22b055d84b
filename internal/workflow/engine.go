package workflow

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/fiecsoft/procflow/internal/audit"
	"github.com/fiecsoft/procflow/internal/model"
)

// Store is the persistence boundary for instances and their steps. Update
// methods compare the instance's optimistic-lock version and return
// ErrVersionConflict on mismatch; UpdateStep bumps the parent instance
// version in the same operation so two reviewers can never both win.
type Store interface {
	TemplateByID(ctx context.Context, id string) (*model.ProcessTemplate, error)
	StepTemplatesByTemplate(ctx context.Context, templateID string) ([]model.StepTemplate, error)
	UserByID(ctx context.Context, id string) (*model.User, error)

	CreateInstance(ctx context.Context, inst *model.ProcessInstance, steps []model.StepInstance) error
	InstanceByID(ctx context.Context, id string) (*model.ProcessInstance, error)
	StepsByInstance(ctx context.Context, instanceID string) ([]model.StepInstance, error)
	StepByID(ctx context.Context, id string) (*model.StepInstance, error)
	UpdateInstance(ctx context.Context, inst *model.ProcessInstance, expectedVersion int64) error
	UpdateStep(ctx context.Context, step *model.StepInstance, expectedInstanceVersion int64) error
	ListInstances(ctx context.Context, f model.ProcessFilter) ([]model.ProcessInstance, error)
	ListClosed(ctx context.Context, from, to time.Time) ([]model.ProcessInstance, error)
}

// Actor identifies the caller of a transition. The core only checks role
// labels; sessions belong to the auth collaborator.
type Actor struct {
	ID    string
	Roles []string
}

// HasRole reports whether the actor carries the role code.
func (a Actor) HasRole(code string) bool {
	for _, r := range a.Roles {
		if r == code {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the actor may act in place of any reviewer.
func (a Actor) IsAdmin() bool { return a.HasRole(model.RoleAdmin) }

// Service drives instantiation and the step/process lifecycle.
type Service struct {
	store  Store
	events *audit.Bus
	newID  func() string
	now    func() time.Time
}

// NewService constructs the engine. events may be nil when no sinks are
// wired (tests).
func NewService(store Store, events *audit.Bus) *Service {
	return &Service{
		store:  store,
		events: events,
		newID:  uuid.NewString,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// InstantiateInput carries everything needed to materialize a template.
type InstantiateInput struct {
	TemplateID        string
	Year              int
	Month             int
	ResponsibleUserID string
	CreatedBy         string
	Title             string
	Comment           string
	DueAt             *time.Time
	Tags              []string
	Metadata          map[string]string
}

// Instantiate snapshots a published template into a new process instance with
// one PENDING step per step template, preserving order and reviewer roles.
// The instance starts IN_PROGRESS: instantiated processes are immediately
// actionable. Nothing is persisted when any precondition fails.
func (s *Service) Instantiate(ctx context.Context, in InstantiateInput) (*model.ProcessInstance, error) {
	if in.Month < 1 || in.Month > 12 {
		return nil, &ValidationError{Entity: "process_instance", Field: "month", Reason: "must be between 1 and 12"}
	}
	if in.Year <= 0 {
		return nil, &ValidationError{Entity: "process_instance", Field: "year", Reason: "is required"}
	}
	tpl, err := s.store.TemplateByID(ctx, in.TemplateID)
	if err != nil {
		return nil, err
	}
	if !tpl.Published {
		return nil, fmt.Errorf("template %s: %w", tpl.ID, ErrTemplateNotPublished)
	}
	responsible, err := s.store.UserByID(ctx, in.ResponsibleUserID)
	if err != nil {
		return nil, err
	}
	if !responsible.Active {
		return nil, fmt.Errorf("user %s: %w", responsible.ID, ErrInactiveUser)
	}
	stepTpls, err := s.store.StepTemplatesByTemplate(ctx, tpl.ID)
	if err != nil {
		return nil, err
	}
	sort.Slice(stepTpls, func(i, j int) bool { return stepTpls[i].Ord < stepTpls[j].Ord })

	now := s.now()
	inst := &model.ProcessInstance{
		ID:                s.newID(),
		ProcessTypeID:     tpl.ProcessTypeID,
		TemplateID:        tpl.ID,
		Year:              in.Year,
		Month:             in.Month,
		State:             model.ProcessInProgress,
		ResponsibleUserID: in.ResponsibleUserID,
		Title:             in.Title,
		Comment:           in.Comment,
		Tags:              append([]string(nil), in.Tags...),
		Metadata:          copyMetadata(in.Metadata),
		Version:           1,
		DueAt:             in.DueAt,
		CreatedBy:         in.CreatedBy,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	steps := make([]model.StepInstance, 0, len(stepTpls))
	for _, st := range stepTpls {
		steps = append(steps, model.StepInstance{
			ID:                s.newID(),
			ProcessInstanceID: inst.ID,
			StepTemplateID:    st.ID,
			Ord:               st.Ord,
			Title:             st.Title,
			Required:          st.Required,
			Status:            model.StepPending,
			ReviewerRole:      st.ReviewerRole,
			CreatedAt:         now,
			UpdatedAt:         now,
		})
	}
	if err := s.store.CreateInstance(ctx, inst, steps); err != nil {
		return nil, err
	}
	s.emit(model.Event{
		Type:              model.EventInstanceCreated,
		ProcessInstanceID: inst.ID,
		ActorID:           in.CreatedBy,
		Details:           fmt.Sprintf("%d steps created", len(steps)),
	})
	return inst, nil
}

// TransitionStep applies one action to a step. Approve and reject require the
// caller to hold the step's reviewer role (admins always qualify).
func (s *Service) TransitionStep(ctx context.Context, actor Actor, instanceID, stepID string, action model.StepAction, comment string) (*model.StepInstance, error) {
	if !action.IsValid() {
		return nil, &ValidationError{Entity: "step_instance", Field: "action", Reason: "is unknown"}
	}
	inst, err := s.writableInstance(ctx, instanceID, string(action))
	if err != nil {
		return nil, err
	}
	step, err := s.stepOf(ctx, inst, stepID)
	if err != nil {
		return nil, err
	}
	if action == model.ActionApprove || action == model.ActionReject {
		if !actor.IsAdmin() && !actor.HasRole(step.ReviewerRole) {
			return nil, fmt.Errorf("step %s requires role %s: %w", step.ID, step.ReviewerRole, ErrUnauthorizedReviewer)
		}
	}
	next, err := NextStepStatus(step, action)
	if err != nil {
		return nil, err
	}
	prev := step.Status
	step.Status = next
	if action == model.ActionApprove || action == model.ActionReject {
		step.ReviewedBy = actor.ID
	}
	if comment != "" {
		step.Comment = comment
	}
	step.UpdatedAt = s.now()
	if err := s.store.UpdateStep(ctx, step, inst.Version); err != nil {
		return nil, err
	}
	s.emit(model.Event{
		Type:              model.EventStepTransitioned,
		ProcessInstanceID: inst.ID,
		StepInstanceID:    step.ID,
		ActorID:           actor.ID,
		Details:           fmt.Sprintf("%s: %s -> %s", action, prev, next),
	})
	return step, nil
}

// EnsureUploadable checks that an artifact upload would be a legal transition
// without committing anything. The ledger calls this before touching object
// storage.
func (s *Service) EnsureUploadable(ctx context.Context, instanceID, stepID string) error {
	inst, err := s.writableInstance(ctx, instanceID, "upload")
	if err != nil {
		return err
	}
	step, err := s.stepOf(ctx, inst, stepID)
	if err != nil {
		return err
	}
	_, err = NextStepStatus(step, model.ActionUpload)
	return err
}

// CommentStep records an observation on a step. Comments are allowed in any
// step status as long as the instance is not archived or closed.
func (s *Service) CommentStep(ctx context.Context, actor Actor, instanceID, stepID, comment string) (*model.StepInstance, error) {
	if comment == "" {
		return nil, &ValidationError{Entity: "step_instance", Field: "comment", Reason: "is required"}
	}
	inst, err := s.writableInstance(ctx, instanceID, "comment")
	if err != nil {
		return nil, err
	}
	step, err := s.stepOf(ctx, inst, stepID)
	if err != nil {
		return nil, err
	}
	step.Comment = comment
	step.UpdatedAt = s.now()
	if err := s.store.UpdateStep(ctx, step, inst.Version); err != nil {
		return nil, err
	}
	s.emit(model.Event{
		Type:              model.EventStepCommented,
		ProcessInstanceID: inst.ID,
		StepInstanceID:    step.ID,
		ActorID:           actor.ID,
	})
	return step, nil
}

// SubmitForApproval moves the whole process to PENDING_APPROVAL. Allowed only
// when every required step is APPROVED; a rejected process may be resubmitted.
func (s *Service) SubmitForApproval(ctx context.Context, actor Actor, instanceID string) (*model.ProcessInstance, error) {
	inst, err := s.writableInstance(ctx, instanceID, "submit")
	if err != nil {
		return nil, err
	}
	if inst.State != model.ProcessInProgress && inst.State != model.ProcessRejected {
		return nil, &ProcessTransitionError{InstanceID: inst.ID, From: inst.State, Action: "submit", reason: ErrInvalidTransition}
	}
	steps, err := s.store.StepsByInstance(ctx, inst.ID)
	if err != nil {
		return nil, err
	}
	if !requiredApproved(steps) {
		return nil, &ProcessTransitionError{InstanceID: inst.ID, From: inst.State, Action: "submit", reason: ErrInvalidTransition}
	}
	return s.setState(ctx, actor, inst, model.ProcessPendingApproval, "")
}

// ApproveProcess is the top-level sign-off on a PENDING_APPROVAL process.
func (s *Service) ApproveProcess(ctx context.Context, actor Actor, instanceID, comment string) (*model.ProcessInstance, error) {
	return s.review(ctx, actor, instanceID, model.ProcessApproved, comment)
}

// RejectProcess returns a PENDING_APPROVAL process to the responsible user.
func (s *Service) RejectProcess(ctx context.Context, actor Actor, instanceID, comment string) (*model.ProcessInstance, error) {
	return s.review(ctx, actor, instanceID, model.ProcessRejected, comment)
}

func (s *Service) review(ctx context.Context, actor Actor, instanceID string, target model.ProcessState, comment string) (*model.ProcessInstance, error) {
	inst, err := s.writableInstance(ctx, instanceID, "review")
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("process sign-off requires %s: %w", model.RoleAdmin, ErrUnauthorizedReviewer)
	}
	if inst.State != model.ProcessPendingApproval {
		return nil, &ProcessTransitionError{InstanceID: inst.ID, From: inst.State, Action: "review", reason: ErrInvalidTransition}
	}
	return s.setState(ctx, actor, inst, target, comment)
}

// Close makes the instance terminal and read-only for the core. Reachable
// from APPROVED, or directly from any non-terminal state once every
// non-SKIPPED step is APPROVED.
func (s *Service) Close(ctx context.Context, actor Actor, instanceID string) (*model.ProcessInstance, error) {
	inst, err := s.writableInstance(ctx, instanceID, "close")
	if err != nil {
		return nil, err
	}
	if inst.State != model.ProcessApproved {
		steps, err := s.store.StepsByInstance(ctx, inst.ID)
		if err != nil {
			return nil, err
		}
		if !CloseEligible(steps) {
			return nil, &ProcessTransitionError{InstanceID: inst.ID, From: inst.State, Action: "close", reason: ErrInvalidTransition}
		}
	}
	now := s.now()
	inst.ClosedAt = &now
	return s.setState(ctx, actor, inst, model.ProcessClosed, "")
}

// MarkArchived flags a CLOSED instance as archived. Archived instances reject
// every further action. Called by the archival job runner.
func (s *Service) MarkArchived(ctx context.Context, actor Actor, instanceID string) (*model.ProcessInstance, error) {
	inst, err := s.store.InstanceByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst.Archived {
		return nil, fmt.Errorf("instance %s: %w", inst.ID, ErrInstanceArchived)
	}
	if inst.State != model.ProcessClosed {
		return nil, &ProcessTransitionError{InstanceID: inst.ID, From: inst.State, Action: "archive", reason: ErrInvalidTransition}
	}
	inst.Archived = true
	inst.State = model.ProcessArchived
	inst.UpdatedAt = s.now()
	if err := s.store.UpdateInstance(ctx, inst, inst.Version); err != nil {
		return nil, err
	}
	s.emit(model.Event{
		Type:              model.EventInstanceArchived,
		ProcessInstanceID: inst.ID,
		ActorID:           actor.ID,
	})
	return inst, nil
}

// InstanceByID returns one instance.
func (s *Service) InstanceByID(ctx context.Context, id string) (*model.ProcessInstance, error) {
	return s.store.InstanceByID(ctx, id)
}

// StepsByInstance returns an instance's steps in template order.
func (s *Service) StepsByInstance(ctx context.Context, instanceID string) ([]model.StepInstance, error) {
	if _, err := s.store.InstanceByID(ctx, instanceID); err != nil {
		return nil, err
	}
	steps, err := s.store.StepsByInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Ord < steps[j].Ord })
	return steps, nil
}

// ListInstances returns instances matching the filter.
func (s *Service) ListInstances(ctx context.Context, f model.ProcessFilter) ([]model.ProcessInstance, error) {
	return s.store.ListInstances(ctx, f)
}

// ListClosedInstances feeds the archival job runner: closed, not yet archived
// instances whose closing date falls inside [from, to].
func (s *Service) ListClosedInstances(ctx context.Context, from, to time.Time) ([]model.ProcessInstance, error) {
	return s.store.ListClosed(ctx, from, to)
}

func (s *Service) setState(ctx context.Context, actor Actor, inst *model.ProcessInstance, target model.ProcessState, comment string) (*model.ProcessInstance, error) {
	prev := inst.State
	inst.State = target
	if comment != "" {
		inst.Comment = comment
	}
	inst.UpdatedAt = s.now()
	if err := s.store.UpdateInstance(ctx, inst, inst.Version); err != nil {
		return nil, err
	}
	s.emit(model.Event{
		Type:              model.EventProcessStateChanged,
		ProcessInstanceID: inst.ID,
		ActorID:           actor.ID,
		Details:           fmt.Sprintf("%s -> %s", prev, target),
	})
	return inst, nil
}

// writableInstance loads an instance and rejects mutations on archived or
// closed ones. MarkArchived bypasses this because archiving CLOSED instances
// is its whole point.
func (s *Service) writableInstance(ctx context.Context, instanceID, action string) (*model.ProcessInstance, error) {
	inst, err := s.store.InstanceByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst.Archived || inst.State == model.ProcessArchived {
		return nil, fmt.Errorf("instance %s: %w", inst.ID, ErrInstanceArchived)
	}
	if inst.State == model.ProcessClosed {
		return nil, &ProcessTransitionError{InstanceID: inst.ID, From: inst.State, Action: action, reason: ErrInvalidTransition}
	}
	return inst, nil
}

// stepOf loads a step and checks it belongs to the instance; steps of other
// instances are reported as not found rather than leaked.
func (s *Service) stepOf(ctx context.Context, inst *model.ProcessInstance, stepID string) (*model.StepInstance, error) {
	step, err := s.store.StepByID(ctx, stepID)
	if err != nil {
		return nil, err
	}
	if step.ProcessInstanceID != inst.ID {
		return nil, fmt.Errorf("step %s not part of instance %s: %w", stepID, inst.ID, ErrNotFound)
	}
	return step, nil
}

func (s *Service) emit(ev model.Event) {
	if s.events == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = s.now()
	}
	s.events.Publish(ev)
}

func copyMetadata(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
