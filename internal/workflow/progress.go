package workflow

import (
	"context"
	"math"

	"github.com/fiecsoft/procflow/internal/model"
)

// ComputeProgress derives completion for an instance from its current steps.
// SKIPPED steps count toward the total but never toward completed: only
// APPROVED resolves a step. The result is recomputed from the store on every
// call, never cached.
func (s *Service) ComputeProgress(ctx context.Context, instanceID string) (*model.ProcessProgress, error) {
	if _, err := s.store.InstanceByID(ctx, instanceID); err != nil {
		return nil, err
	}
	steps, err := s.store.StepsByInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	return ProgressOf(instanceID, steps), nil
}

// ProgressOf computes progress from an already-loaded step list.
func ProgressOf(instanceID string, steps []model.StepInstance) *model.ProcessProgress {
	p := &model.ProcessProgress{
		ProcessInstanceID: instanceID,
		TotalSteps:        len(steps),
	}
	for _, st := range steps {
		if st.Status == model.StepApproved {
			p.CompletedSteps++
		}
	}
	if p.TotalSteps > 0 {
		p.ProgressPercent = int(math.Round(float64(p.CompletedSteps) / float64(p.TotalSteps) * 100))
	}
	return p
}
