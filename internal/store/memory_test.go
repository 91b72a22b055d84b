package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fiecsoft/procflow/internal/model"
	"github.com/fiecsoft/procflow/internal/workflow"
)

func seedInstance(t *testing.T, m *Memory, id string) *model.ProcessInstance {
	t.Helper()
	inst := &model.ProcessInstance{
		ID:            id,
		ProcessTypeID: "pt-1",
		TemplateID:    "tpl-1",
		Year:          2025,
		Month:         4,
		State:         model.ProcessInProgress,
		Version:       1,
	}
	steps := []model.StepInstance{
		{ID: id + "-s1", ProcessInstanceID: id, Ord: 1, Status: model.StepPending},
		{ID: id + "-s2", ProcessInstanceID: id, Ord: 2, Status: model.StepPending},
	}
	if err := m.CreateInstance(context.Background(), inst, steps); err != nil {
		t.Fatalf("create instance: %v", err)
	}
	return inst
}

func TestUpdateInstanceVersionConflict(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	inst := seedInstance(t, m, "i1")

	if err := m.UpdateInstance(ctx, inst, 1); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if inst.Version != 2 {
		t.Fatalf("expected bumped version 2, got %d", inst.Version)
	}

	stale := *inst
	stale.Version = 1
	if err := m.UpdateInstance(ctx, &stale, 1); !errors.Is(err, workflow.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}

func TestUpdateStepBumpsInstanceVersion(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	inst := seedInstance(t, m, "i1")

	step, err := m.StepByID(ctx, "i1-s1")
	if err != nil {
		t.Fatalf("load step: %v", err)
	}
	step.Status = model.StepInProgress
	if err := m.UpdateStep(ctx, step, inst.Version); err != nil {
		t.Fatalf("update step: %v", err)
	}
	reloaded, err := m.InstanceByID(ctx, inst.ID)
	if err != nil {
		t.Fatalf("reload instance: %v", err)
	}
	if reloaded.Version != inst.Version+1 {
		t.Fatalf("expected instance version %d, got %d", inst.Version+1, reloaded.Version)
	}

	// A writer holding the old version loses.
	other, _ := m.StepByID(ctx, "i1-s2")
	other.Status = model.StepSkipped
	if err := m.UpdateStep(ctx, other, inst.Version); !errors.Is(err, workflow.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}

func TestInstanceReadsReturnCopies(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	inst := seedInstance(t, m, "i1")
	inst.Tags = []string{"audit"}
	if err := m.UpdateInstance(ctx, inst, 1); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := m.InstanceByID(ctx, "i1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got.Tags[0] = "mutated"
	got.State = model.ProcessClosed

	fresh, _ := m.InstanceByID(ctx, "i1")
	if fresh.Tags[0] != "audit" || fresh.State != model.ProcessInProgress {
		t.Fatalf("stored instance was mutated through a read copy: %+v", fresh)
	}
}

func TestListInstancesFilter(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	seedInstance(t, m, "i1")
	other := seedInstance(t, m, "i2")
	other.State = model.ProcessClosed
	if err := m.UpdateInstance(ctx, other, 1); err != nil {
		t.Fatalf("update: %v", err)
	}

	all, err := m.ListInstances(ctx, model.ProcessFilter{Year: 2025})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 instances, got %d", len(all))
	}
	closed, err := m.ListInstances(ctx, model.ProcessFilter{State: model.ProcessClosed})
	if err != nil {
		t.Fatalf("list closed: %v", err)
	}
	if len(closed) != 1 || closed[0].ID != "i2" {
		t.Fatalf("expected only i2, got %+v", closed)
	}
	archived := false
	if got, _ := m.ListInstances(ctx, model.ProcessFilter{Archived: &archived}); len(got) != 2 {
		t.Fatalf("expected 2 unarchived instances, got %d", len(got))
	}
}

func TestListClosedWindow(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	inst := seedInstance(t, m, "i1")
	closedAt := time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC)
	inst.State = model.ProcessClosed
	inst.ClosedAt = &closedAt
	if err := m.UpdateInstance(ctx, inst, 1); err != nil {
		t.Fatalf("update: %v", err)
	}

	from := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 4, 30, 23, 59, 59, 0, time.UTC)
	got, err := m.ListClosed(ctx, from, to)
	if err != nil {
		t.Fatalf("list closed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 instance in window, got %d", len(got))
	}
	if got, _ := m.ListClosed(ctx, to, to.Add(time.Hour)); len(got) != 0 {
		t.Fatalf("expected empty window, got %d", len(got))
	}
}

func TestFileVersionsAppendOnly(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if latest, _ := m.LatestVersion(ctx, "s1"); latest != 0 {
		t.Fatalf("expected version 0 for fresh step, got %d", latest)
	}
	for v := 1; v <= 3; v++ {
		fv := &model.FileVersion{ID: string(rune('a' + v)), StepInstanceID: "s1", Version: v, Filename: "doc.pdf"}
		if err := m.AppendFileVersion(ctx, fv); err != nil {
			t.Fatalf("append v%d: %v", v, err)
		}
	}
	if latest, _ := m.LatestVersion(ctx, "s1"); latest != 3 {
		t.Fatalf("expected latest 3, got %d", latest)
	}
	versions, err := m.FileVersionsByStep(ctx, "s1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(versions) != 3 || versions[0].Version != 1 || versions[2].Version != 3 {
		t.Fatalf("expected ordered versions 1..3, got %+v", versions)
	}

	if err := m.SetFileTextKey(ctx, versions[0].ID, "text/doc.txt"); err != nil {
		t.Fatalf("set text key: %v", err)
	}
	fv, _ := m.FileVersionByID(ctx, versions[0].ID)
	if fv.TextKey == nil || *fv.TextKey != "text/doc.txt" {
		t.Fatalf("expected text key to be set, got %+v", fv.TextKey)
	}
}

func TestListAuditNewestFirst(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		entry := model.AuditEntry{ID: string(rune('a' + i)), Action: "x", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := m.AppendAudit(ctx, entry); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	entries, err := m.ListAudit(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected limit of 2, got %d", len(entries))
	}
	if !entries[0].CreatedAt.After(entries[1].CreatedAt) {
		t.Fatalf("expected newest first, got %+v", entries)
	}
}
