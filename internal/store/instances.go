package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fiecsoft/procflow/internal/model"
	"github.com/fiecsoft/procflow/internal/workflow"
)

// CreateInstance writes the instance and all its steps under one lock so the
// materialization is atomic: either everything exists or nothing does.
func (m *Memory) CreateInstance(_ context.Context, inst *model.ProcessInstance, steps []model.StepInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.instances[inst.ID]; ok {
		return fmt.Errorf("instance %s already exists", inst.ID)
	}
	cp := cloneInstance(inst)
	m.instances[inst.ID] = cp
	for i := range steps {
		st := steps[i]
		m.steps[st.ID] = &st
	}
	return nil
}

func (m *Memory) InstanceByID(_ context.Context, id string) (*model.ProcessInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[id]
	if !ok {
		return nil, notFound("instance", id)
	}
	return cloneInstance(inst), nil
}

// UpdateInstance persists the instance if expectedVersion still matches,
// bumping the version. A mismatch means another writer got there first.
func (m *Memory) UpdateInstance(_ context.Context, inst *model.ProcessInstance, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.instances[inst.ID]
	if !ok {
		return notFound("instance", inst.ID)
	}
	if cur.Version != expectedVersion {
		return fmt.Errorf("instance %s at version %d, expected %d: %w", inst.ID, cur.Version, expectedVersion, workflow.ErrVersionConflict)
	}
	inst.Version = expectedVersion + 1
	m.instances[inst.ID] = cloneInstance(inst)
	return nil
}

// UpdateStep persists a step and bumps the parent instance version in the
// same critical section, so a concurrent transition on any step of the same
// instance surfaces as ErrVersionConflict instead of a lost update.
func (m *Memory) UpdateStep(_ context.Context, step *model.StepInstance, expectedInstanceVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.steps[step.ID]; !ok {
		return notFound("step", step.ID)
	}
	inst, ok := m.instances[step.ProcessInstanceID]
	if !ok {
		return notFound("instance", step.ProcessInstanceID)
	}
	if inst.Version != expectedInstanceVersion {
		return fmt.Errorf("instance %s at version %d, expected %d: %w", inst.ID, inst.Version, expectedInstanceVersion, workflow.ErrVersionConflict)
	}
	cp := *step
	m.steps[step.ID] = &cp
	inst.Version++
	inst.UpdatedAt = nowUTC()
	return nil
}

func (m *Memory) StepByID(_ context.Context, id string) (*model.StepInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.steps[id]
	if !ok {
		return nil, notFound("step", id)
	}
	cp := *st
	return &cp, nil
}

func (m *Memory) StepsByInstance(_ context.Context, instanceID string) ([]model.StepInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.StepInstance
	for _, st := range m.steps {
		if st.ProcessInstanceID == instanceID {
			out = append(out, *st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ord < out[j].Ord })
	return out, nil
}

func (m *Memory) ListInstances(_ context.Context, f model.ProcessFilter) ([]model.ProcessInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.ProcessInstance
	for _, inst := range m.instances {
		if !matchFilter(inst, f) {
			continue
		}
		out = append(out, *cloneInstance(inst))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) ListClosed(_ context.Context, from, to time.Time) ([]model.ProcessInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.ProcessInstance
	for _, inst := range m.instances {
		if inst.State != model.ProcessClosed || inst.Archived || inst.ClosedAt == nil {
			continue
		}
		closed := *inst.ClosedAt
		if closed.Before(from) || closed.After(to) {
			continue
		}
		out = append(out, *cloneInstance(inst))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClosedAt.Before(*out[j].ClosedAt) })
	return out, nil
}

func matchFilter(inst *model.ProcessInstance, f model.ProcessFilter) bool {
	if f.ProcessTypeID != "" && inst.ProcessTypeID != f.ProcessTypeID {
		return false
	}
	if f.Year != 0 && inst.Year != f.Year {
		return false
	}
	if f.Month != 0 && inst.Month != f.Month {
		return false
	}
	if f.State != "" && inst.State != f.State {
		return false
	}
	if f.ResponsibleUserID != "" && inst.ResponsibleUserID != f.ResponsibleUserID {
		return false
	}
	if f.Archived != nil && inst.Archived != *f.Archived {
		return false
	}
	return true
}

func cloneInstance(inst *model.ProcessInstance) *model.ProcessInstance {
	cp := *inst
	cp.Tags = append([]string(nil), inst.Tags...)
	if inst.Metadata != nil {
		cp.Metadata = make(map[string]string, len(inst.Metadata))
		for k, v := range inst.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
