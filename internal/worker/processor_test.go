package worker_test

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/fiecsoft/procflow/internal/model"
	"github.com/fiecsoft/procflow/internal/queue"
	"github.com/fiecsoft/procflow/internal/store"
	"github.com/fiecsoft/procflow/internal/worker"
	"github.com/fiecsoft/procflow/internal/workflow"
)

type fakeObjects struct {
	mu        sync.Mutex
	artifacts map[string][]byte
	processed map[string][]byte
	exports   map[string][]byte
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{
		artifacts: make(map[string][]byte),
		processed: make(map[string][]byte),
		exports:   make(map[string][]byte),
	}
}

func (f *fakeObjects) DownloadArtifact(_ context.Context, objectKey string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.artifacts[objectKey], nil
}

func (f *fakeObjects) UploadProcessed(_ context.Context, objectKey string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed[objectKey] = data
	return nil
}

func (f *fakeObjects) UploadExport(_ context.Context, objectKey string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exports[objectKey] = data
	return nil
}

func task(t *testing.T, taskType string, payload interface{}) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return asynq.NewTask(taskType, data)
}

func seedClosedInstance(t *testing.T, st *store.Memory, id string, closedAt time.Time) {
	t.Helper()
	inst := &model.ProcessInstance{
		ID:            id,
		ProcessTypeID: "pt-1",
		TemplateID:    "tpl-1",
		Year:          closedAt.Year(),
		Month:         int(closedAt.Month()),
		State:         model.ProcessClosed,
		ClosedAt:      &closedAt,
		Version:       1,
	}
	steps := []model.StepInstance{
		{ID: id + "-s1", ProcessInstanceID: id, Ord: 1, Status: model.StepApproved},
		{ID: id + "-s2", ProcessInstanceID: id, Ord: 2, Status: model.StepSkipped},
	}
	if err := st.CreateInstance(context.Background(), inst, steps); err != nil {
		t.Fatalf("seed instance: %v", err)
	}
}

func TestHandleArchive(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	engine := workflow.NewService(st, nil)
	processor := worker.NewProcessor(st, newFakeObjects(), engine, zap.NewNop())

	inRange := time.Date(2025, 4, 15, 10, 0, 0, 0, time.UTC)
	outOfRange := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	seedClosedInstance(t, st, "i1", inRange)
	seedClosedInstance(t, st, "i2", outOfRange)

	op := &model.ArchiveOperation{
		ID:        "op-1",
		UserID:    "admin-1",
		DateFrom:  time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
		DateTo:    time.Date(2025, 4, 30, 23, 59, 59, 0, time.UTC),
		Status:    model.ArchiveInProgress,
		CreatedAt: time.Now().UTC(),
	}
	if err := st.CreateArchiveOperation(ctx, op); err != nil {
		t.Fatalf("seed op: %v", err)
	}

	err := processor.Handler().ProcessTask(ctx, task(t, queue.ArchiveRunTask, queue.ArchivePayload{OperationID: op.ID, ActorID: "admin-1"}))
	if err != nil {
		t.Fatalf("process archive task: %v", err)
	}

	saved, err := st.ArchiveOperationByID(ctx, op.ID)
	if err != nil {
		t.Fatalf("reload op: %v", err)
	}
	if saved.Status != model.ArchiveCompleted || saved.TotalProcesses != 1 || saved.CompletedAt == nil {
		t.Fatalf("unexpected operation state: %+v", saved)
	}
	archived, _ := st.InstanceByID(ctx, "i1")
	if !archived.Archived || archived.State != model.ProcessArchived {
		t.Fatalf("expected i1 archived, got %+v", archived)
	}
	untouched, _ := st.InstanceByID(ctx, "i2")
	if untouched.Archived {
		t.Fatal("expected i2 outside the window to stay unarchived")
	}
}

func TestHandleExport(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	objects := newFakeObjects()
	engine := workflow.NewService(st, nil)
	processor := worker.NewProcessor(st, objects, engine, zap.NewNop())

	seedClosedInstance(t, st, "i1", time.Date(2025, 4, 15, 10, 0, 0, 0, time.UTC))

	payload := queue.ExportPayload{ActorID: "admin-1", Year: 2025, RequestedAt: time.Now().UTC()}
	if err := processor.Handler().ProcessTask(ctx, task(t, queue.ExportCSVTask, payload)); err != nil {
		t.Fatalf("process export task: %v", err)
	}

	if len(objects.exports) != 1 {
		t.Fatalf("expected one export object, got %d", len(objects.exports))
	}
	for _, data := range objects.exports {
		csv := string(data)
		if !strings.HasPrefix(csv, "id,process_type_id,year,month,state,responsible_user_id,archived,progress_percent\n") {
			t.Fatalf("unexpected header: %q", csv)
		}
		// One approved of two steps, with the skipped one in the total: 50%.
		if !strings.Contains(csv, "i1,pt-1,2025,4,CLOSED,") || !strings.Contains(csv, ",50\n") {
			t.Fatalf("unexpected row: %q", csv)
		}
	}
	logs, err := st.ListExportLogs(ctx)
	if err != nil {
		t.Fatalf("list export logs: %v", err)
	}
	if len(logs) != 1 || logs[0].UserID != "admin-1" || logs[0].SizeBytes == 0 {
		t.Fatalf("unexpected export log: %+v", logs)
	}
}

func TestHandleExtractMalformedPDFIsPermanent(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	objects := newFakeObjects()
	objects.artifacts["steps/s1/v1/report.pdf"] = []byte("not a pdf")
	processor := worker.NewProcessor(st, objects, workflow.NewService(st, nil), zap.NewNop())

	payload := queue.ExtractPayload{FileID: "f1", ObjectKey: "steps/s1/v1/report.pdf", Filename: "report.pdf"}
	// Malformed input must not be retried, so the handler reports success.
	if err := processor.Handler().ProcessTask(ctx, task(t, queue.ArtifactExtractTask, payload)); err != nil {
		t.Fatalf("expected permanent failure to be swallowed, got %v", err)
	}
	if len(objects.processed) != 0 {
		t.Fatal("expected no processed object for malformed input")
	}
}

func TestHandleNotify(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	processor := worker.NewProcessor(st, newFakeObjects(), workflow.NewService(st, nil), zap.NewNop())

	closedAt := time.Date(2025, 4, 15, 10, 0, 0, 0, time.UTC)
	seedClosedInstance(t, st, "i1", closedAt)
	inst, _ := st.InstanceByID(ctx, "i1")
	inst.ResponsibleUserID = "user-7"
	if err := st.UpdateInstance(ctx, inst, inst.Version); err != nil {
		t.Fatalf("set responsible: %v", err)
	}

	ev := model.Event{
		Type:              model.EventStepTransitioned,
		ProcessInstanceID: "i1",
		StepInstanceID:    "i1-s1",
		ActorID:           "rev-1",
		Details:           "approve: SUBMITTED -> APPROVED",
		At:                time.Now().UTC(),
	}
	if err := processor.Handler().ProcessTask(ctx, task(t, queue.NotifyEventTask, queue.NotifyPayload{Event: ev})); err != nil {
		t.Fatalf("process notify task: %v", err)
	}

	notifications, err := st.NotificationsByUser(ctx, "user-7")
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(notifications) != 1 {
		t.Fatalf("expected one notification, got %d", len(notifications))
	}
	n := notifications[0]
	if n.Title != "Step updated" || n.ProcessInstanceID != "i1" || n.StepInstanceID != "i1-s1" {
		t.Fatalf("unexpected notification: %+v", n)
	}

	// Events without an instance are ignored.
	if err := processor.Handler().ProcessTask(ctx, task(t, queue.NotifyEventTask, queue.NotifyPayload{Event: model.Event{Type: model.EventTemplatePublished}})); err != nil {
		t.Fatalf("process catalog notify: %v", err)
	}
}
