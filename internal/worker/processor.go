// Package worker runs the long-lived background jobs: date-range archival,
// CSV export, PDF text extraction, and notification delivery.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/fiecsoft/procflow/internal/model"
	pdfutil "github.com/fiecsoft/procflow/internal/pdf"
	"github.com/fiecsoft/procflow/internal/queue"
	"github.com/fiecsoft/procflow/internal/workflow"
)

// Store is the slice of persistence the worker needs beyond the engine.
type Store interface {
	ArchiveOperationByID(ctx context.Context, id string) (*model.ArchiveOperation, error)
	SaveArchiveOperation(ctx context.Context, op *model.ArchiveOperation) error
	AppendExportLog(ctx context.Context, log model.ExportLog) error
	SetFileTextKey(ctx context.Context, fileID, textKey string) error
	AppendNotification(ctx context.Context, n model.Notification) error
	InstanceByID(ctx context.Context, id string) (*model.ProcessInstance, error)
}

// Objects is the object-storage slice used by the jobs.
type Objects interface {
	DownloadArtifact(ctx context.Context, objectKey string) ([]byte, error)
	UploadProcessed(ctx context.Context, objectKey string, data []byte) error
	UploadExport(ctx context.Context, objectKey string, data []byte) error
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	store   Store
	objects Objects
	engine  *workflow.Service
	logger  *zap.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(store Store, objects Objects, engine *workflow.Service, logger *zap.Logger) *Processor {
	return &Processor{store: store, objects: objects, engine: engine, logger: logger}
}

// Handler registers all job handlers.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.ArchiveRunTask, p.handleArchive)
	mux.HandleFunc(queue.ExportCSVTask, p.handleExport)
	mux.HandleFunc(queue.ArtifactExtractTask, p.handleExtract)
	mux.HandleFunc(queue.NotifyEventTask, p.handleNotify)
	return mux
}

func (p *Processor) handleArchive(ctx context.Context, task *asynq.Task) error {
	var payload queue.ArchivePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	op, err := p.store.ArchiveOperationByID(ctx, payload.OperationID)
	if err != nil {
		return err
	}
	if err := p.runArchive(ctx, op, payload.ActorID); err != nil {
		p.logger.Error("archive run failed", zap.String("operation", op.ID), zap.Error(err))
		op.Status = model.ArchiveFailed
		now := time.Now().UTC()
		op.CompletedAt = &now
		_ = p.store.SaveArchiveOperation(ctx, op)
		return err
	}
	return nil
}

// runArchive marks every closed instance inside the operation's date range as
// archived, honoring cancellation between instances.
func (p *Processor) runArchive(ctx context.Context, op *model.ArchiveOperation, actorID string) error {
	instances, err := p.engine.ListClosedInstances(ctx, op.DateFrom, op.DateTo)
	if err != nil {
		return err
	}
	actor := workflow.Actor{ID: actorID}
	archived := 0
	for _, inst := range instances {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := p.engine.MarkArchived(ctx, actor, inst.ID); err != nil {
			return fmt.Errorf("archive instance %s: %w", inst.ID, err)
		}
		archived++
	}
	op.TotalProcesses = archived
	op.Status = model.ArchiveCompleted
	now := time.Now().UTC()
	op.CompletedAt = &now
	if err := p.store.SaveArchiveOperation(ctx, op); err != nil {
		return err
	}
	p.logger.Info("archive run completed", zap.String("operation", op.ID), zap.Int("archived", archived))
	return nil
}

func (p *Processor) handleExport(ctx context.Context, task *asynq.Task) error {
	var payload queue.ExportPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	data, err := p.renderCSV(ctx, payload)
	if err != nil {
		return err
	}
	objectKey := fmt.Sprintf("exports/instances-%s.csv", time.Now().UTC().Format("20060102-150405"))
	if err := p.objects.UploadExport(ctx, objectKey, data); err != nil {
		return err
	}
	log := model.ExportLog{
		ID:        uuid.NewString(),
		UserID:    payload.ActorID,
		ObjectKey: objectKey,
		SizeBytes: int64(len(data)),
		CreatedAt: time.Now().UTC(),
	}
	if err := p.store.AppendExportLog(ctx, log); err != nil {
		return err
	}
	p.logger.Info("export completed", zap.String("object", objectKey), zap.Int("bytes", len(data)))
	return nil
}

func (p *Processor) handleExtract(ctx context.Context, task *asynq.Task) error {
	var payload queue.ExtractPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	data, err := p.objects.DownloadArtifact(ctx, payload.ObjectKey)
	if err != nil {
		return err
	}
	text, err := pdfutil.ExtractText(data)
	if err != nil {
		// A malformed PDF is a permanent failure; retrying will not help.
		p.logger.Warn("text extraction failed", zap.String("file", payload.FileID), zap.Error(err))
		return nil
	}
	textKey := strings.TrimSuffix(payload.ObjectKey, filepath.Ext(payload.ObjectKey)) + ".txt"
	if err := p.objects.UploadProcessed(ctx, textKey, []byte(text)); err != nil {
		return err
	}
	if err := p.store.SetFileTextKey(ctx, payload.FileID, textKey); err != nil {
		return err
	}
	p.logger.Info("artifact text extracted", zap.String("file", payload.FileID), zap.Int("bytes", len(text)))
	return nil
}

func (p *Processor) handleNotify(ctx context.Context, task *asynq.Task) error {
	var payload queue.NotifyPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	ev := payload.Event
	if ev.ProcessInstanceID == "" {
		return nil
	}
	inst, err := p.store.InstanceByID(ctx, ev.ProcessInstanceID)
	if err != nil {
		// The instance may have been archived out from under the queue; a
		// lost notification is acceptable by contract.
		p.logger.Warn("notify: instance lookup failed", zap.Error(err))
		return nil
	}
	n := model.Notification{
		ID:                uuid.NewString(),
		UserID:            inst.ResponsibleUserID,
		Type:              string(ev.Type),
		Title:             notificationTitle(ev),
		Body:              ev.Details,
		ProcessInstanceID: ev.ProcessInstanceID,
		StepInstanceID:    ev.StepInstanceID,
		CreatedAt:         time.Now().UTC(),
	}
	return p.store.AppendNotification(ctx, n)
}

func notificationTitle(ev model.Event) string {
	switch ev.Type {
	case model.EventInstanceCreated:
		return "Process created"
	case model.EventStepTransitioned:
		return "Step updated"
	case model.EventProcessStateChanged:
		return "Process state changed"
	case model.EventArtifactUploaded:
		return "Document uploaded"
	case model.EventInstanceArchived:
		return "Process archived"
	default:
		return string(ev.Type)
	}
}

// renderCSV builds one row per instance matching the payload filter, with the
// progress recomputed live for each.
func (p *Processor) renderCSV(ctx context.Context, payload queue.ExportPayload) ([]byte, error) {
	filter := model.ProcessFilter{
		ProcessTypeID: payload.ProcessTypeID,
		Year:          payload.Year,
		Month:         payload.Month,
	}
	instances, err := p.engine.ListInstances(ctx, filter)
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	b.WriteString("id,process_type_id,year,month,state,responsible_user_id,archived,progress_percent\n")
	for _, inst := range instances {
		progress, err := p.engine.ComputeProgress(ctx, inst.ID)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&b, "%s,%s,%d,%d,%s,%s,%t,%d\n",
			inst.ID, inst.ProcessTypeID, inst.Year, inst.Month, inst.State,
			inst.ResponsibleUserID, inst.Archived, progress.ProgressPercent)
	}
	return []byte(b.String()), nil
}
