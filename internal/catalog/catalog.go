// Package catalog manages process types, templates, and step templates: the
// read-mostly definitions the instantiation engine consumes. Mutations
// validate the catalog invariants and fail with workflow.ValidationError
// instead of silently succeeding.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fiecsoft/procflow/internal/audit"
	"github.com/fiecsoft/procflow/internal/model"
	"github.com/fiecsoft/procflow/internal/workflow"
)

// Store is the persistence boundary for catalog rows.
type Store interface {
	CreateProcessType(ctx context.Context, pt *model.ProcessType) error
	ProcessTypeByID(ctx context.Context, id string) (*model.ProcessType, error)
	SaveProcessType(ctx context.Context, pt *model.ProcessType) error
	ListProcessTypes(ctx context.Context, activeOnly bool) ([]model.ProcessType, error)

	CreateTemplate(ctx context.Context, tpl *model.ProcessTemplate) error
	TemplateByID(ctx context.Context, id string) (*model.ProcessTemplate, error)
	SaveTemplate(ctx context.Context, tpl *model.ProcessTemplate) error
	ListTemplates(ctx context.Context, processTypeID string, publishedOnly bool) ([]model.ProcessTemplate, error)

	CreateStepTemplate(ctx context.Context, st *model.StepTemplate) error
	StepTemplatesByTemplate(ctx context.Context, templateID string) ([]model.StepTemplate, error)
}

// Service exposes catalog reads and validated mutations.
type Service struct {
	store  Store
	events *audit.Bus
	newID  func() string
	now    func() time.Time
}

// NewService constructs the catalog service. events may be nil.
func NewService(store Store, events *audit.Bus) *Service {
	return &Service{
		store:  store,
		events: events,
		newID:  uuid.NewString,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateProcessType registers a new institutional category. Codes are
// uppercased and must be unique.
func (s *Service) CreateProcessType(ctx context.Context, code, name, description, createdBy string) (*model.ProcessType, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, &workflow.ValidationError{Entity: "process_type", Field: "code", Reason: "is required"}
	}
	if strings.TrimSpace(name) == "" {
		return nil, &workflow.ValidationError{Entity: "process_type", Field: "name", Reason: "is required"}
	}
	existing, err := s.store.ListProcessTypes(ctx, false)
	if err != nil {
		return nil, err
	}
	for _, pt := range existing {
		if pt.Code == code {
			return nil, &workflow.ValidationError{Entity: "process_type", Field: "code", Reason: "is already in use"}
		}
	}
	pt := &model.ProcessType{
		ID:          s.newID(),
		Code:        code,
		Name:        name,
		Description: description,
		Active:      true,
		CreatedBy:   createdBy,
		CreatedAt:   s.now(),
	}
	if err := s.store.CreateProcessType(ctx, pt); err != nil {
		return nil, err
	}
	s.emit(model.Event{Type: model.EventProcessTypeCreated, ActorID: createdBy, Details: code})
	return pt, nil
}

// SetProcessTypeActive toggles a type. Types are never deleted because
// instances keep referencing them.
func (s *Service) SetProcessTypeActive(ctx context.Context, id string, active bool) (*model.ProcessType, error) {
	pt, err := s.store.ProcessTypeByID(ctx, id)
	if err != nil {
		return nil, err
	}
	pt.Active = active
	if err := s.store.SaveProcessType(ctx, pt); err != nil {
		return nil, err
	}
	return pt, nil
}

// ActiveProcessTypes lists types available for new templates and instances.
func (s *Service) ActiveProcessTypes(ctx context.Context) ([]model.ProcessType, error) {
	return s.store.ListProcessTypes(ctx, true)
}

// CreateTemplate opens a new draft template for a process type. The version
// is one higher than any existing template of that type, so the newest
// version is always unambiguous.
func (s *Service) CreateTemplate(ctx context.Context, processTypeID, description, createdBy string) (*model.ProcessTemplate, error) {
	pt, err := s.store.ProcessTypeByID(ctx, processTypeID)
	if err != nil {
		return nil, err
	}
	siblings, err := s.store.ListTemplates(ctx, pt.ID, false)
	if err != nil {
		return nil, err
	}
	version := 1
	for _, t := range siblings {
		if t.Version >= version {
			version = t.Version + 1
		}
	}
	now := s.now()
	tpl := &model.ProcessTemplate{
		ID:            s.newID(),
		ProcessTypeID: pt.ID,
		Description:   description,
		Version:       version,
		Published:     false,
		CreatedBy:     createdBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateTemplate(ctx, tpl); err != nil {
		return nil, err
	}
	s.emit(model.Event{Type: model.EventTemplateCreated, ActorID: createdBy, Details: fmt.Sprintf("%s v%d", pt.Code, version)})
	return tpl, nil
}

// AddStep appends a step definition to a draft template. Ord 0 means
// "append"; an explicit ord must be the next contiguous position and a
// duplicate ord is rejected.
func (s *Service) AddStep(ctx context.Context, templateID string, ord int, title, description string, required bool, reviewerRole string) (*model.StepTemplate, error) {
	tpl, err := s.store.TemplateByID(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if tpl.Published {
		return nil, &workflow.ValidationError{Entity: "step_template", Field: "template", Reason: "is published and immutable"}
	}
	if strings.TrimSpace(title) == "" {
		return nil, &workflow.ValidationError{Entity: "step_template", Field: "title", Reason: "is required"}
	}
	if strings.TrimSpace(reviewerRole) == "" {
		return nil, &workflow.ValidationError{Entity: "step_template", Field: "reviewerRole", Reason: "is required"}
	}
	existing, err := s.store.StepTemplatesByTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	next := len(existing) + 1
	switch {
	case ord == 0:
		ord = next
	case ord < next:
		return nil, &workflow.ValidationError{Entity: "step_template", Field: "ord", Reason: "is already in use"}
	case ord > next:
		return nil, &workflow.ValidationError{Entity: "step_template", Field: "ord", Reason: fmt.Sprintf("must be contiguous (next is %d)", next)}
	}
	st := &model.StepTemplate{
		ID:           s.newID(),
		TemplateID:   tpl.ID,
		Ord:          ord,
		Title:        title,
		Description:  description,
		Required:     required,
		ReviewerRole: reviewerRole,
		CreatedAt:    s.now(),
	}
	if err := s.store.CreateStepTemplate(ctx, st); err != nil {
		return nil, err
	}
	tpl.UpdatedAt = s.now()
	if err := s.store.SaveTemplate(ctx, tpl); err != nil {
		return nil, err
	}
	return st, nil
}

// PublishTemplate freezes the step list and makes the template instantiable.
// A template needs at least one step, and at least one of them required, to
// be published.
func (s *Service) PublishTemplate(ctx context.Context, templateID, actorID string) (*model.ProcessTemplate, error) {
	tpl, err := s.store.TemplateByID(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if tpl.Published {
		return nil, &workflow.ValidationError{Entity: "process_template", Field: "published", Reason: "is already set"}
	}
	steps, err := s.store.StepTemplatesByTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, &workflow.ValidationError{Entity: "process_template", Field: "steps", Reason: "must contain at least one step"}
	}
	hasRequired := false
	for _, st := range steps {
		if st.Required {
			hasRequired = true
			break
		}
	}
	if !hasRequired {
		return nil, &workflow.ValidationError{Entity: "process_template", Field: "steps", Reason: "must contain at least one required step"}
	}
	tpl.Published = true
	tpl.UpdatedAt = s.now()
	if err := s.store.SaveTemplate(ctx, tpl); err != nil {
		return nil, err
	}
	s.emit(model.Event{Type: model.EventTemplatePublished, ActorID: actorID, Details: fmt.Sprintf("template %s v%d", tpl.ID, tpl.Version)})
	return tpl, nil
}

// PublishedTemplates lists instantiable templates for a process type, newest
// version first.
func (s *Service) PublishedTemplates(ctx context.Context, processTypeID string) ([]model.ProcessTemplate, error) {
	tpls, err := s.store.ListTemplates(ctx, processTypeID, true)
	if err != nil {
		return nil, err
	}
	sort.Slice(tpls, func(i, j int) bool { return tpls[i].Version > tpls[j].Version })
	return tpls, nil
}

// StepTemplates returns a template's steps ordered by ord.
func (s *Service) StepTemplates(ctx context.Context, templateID string) ([]model.StepTemplate, error) {
	if _, err := s.store.TemplateByID(ctx, templateID); err != nil {
		return nil, err
	}
	steps, err := s.store.StepTemplatesByTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Ord < steps[j].Ord })
	return steps, nil
}

func (s *Service) emit(ev model.Event) {
	if s.events == nil {
		return
	}
	ev.At = s.now()
	s.events.Publish(ev)
}
