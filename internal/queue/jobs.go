// Package queue defines the asynq task types exchanged between the API and
// the worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/fiecsoft/procflow/internal/model"
)

const (
	// ArchiveRunTask archives closed instances inside a date range.
	ArchiveRunTask = "archive:run"
	// ExportCSVTask renders the instance list to CSV in object storage.
	ExportCSVTask = "export:csv"
	// ArtifactExtractTask extracts plain text from an uploaded PDF artifact.
	ArtifactExtractTask = "artifact:extract"
	// NotifyEventTask delivers one core event to the notification sink.
	NotifyEventTask = "notify:event"
)

// ArchivePayload identifies the archive operation driving the run.
type ArchivePayload struct {
	OperationID string `json:"operation_id"`
	ActorID     string `json:"actor_id"`
}

// ExportPayload carries the filter of a requested CSV export.
type ExportPayload struct {
	ActorID       string    `json:"actor_id"`
	ProcessTypeID string    `json:"process_type_id,omitempty"`
	Year          int       `json:"year,omitempty"`
	Month         int       `json:"month,omitempty"`
	RequestedAt   time.Time `json:"requested_at"`
}

// ExtractPayload tells the worker which artifact to pull from object storage.
type ExtractPayload struct {
	FileID    string `json:"file_id"`
	ObjectKey string `json:"object_key"`
	Filename  string `json:"filename"`
}

// NotifyPayload wraps a core event for delivery.
type NotifyPayload struct {
	Event model.Event `json:"event"`
}

// EnqueueArchive schedules an archival run.
func EnqueueArchive(ctx context.Context, client *asynq.Client, payload ArchivePayload) error {
	return enqueue(ctx, client, ArchiveRunTask, payload)
}

// EnqueueExport schedules a CSV export.
func EnqueueExport(ctx context.Context, client *asynq.Client, payload ExportPayload) error {
	return enqueue(ctx, client, ExportCSVTask, payload)
}

// EnqueueExtract schedules text extraction for a PDF artifact.
func EnqueueExtract(ctx context.Context, client *asynq.Client, payload ExtractPayload) error {
	return enqueue(ctx, client, ArtifactExtractTask, payload)
}

// EnqueueNotify schedules notification delivery for one event.
func EnqueueNotify(ctx context.Context, client *asynq.Client, payload NotifyPayload) error {
	return enqueue(ctx, client, NotifyEventTask, payload)
}

func enqueue(ctx context.Context, client *asynq.Client, taskType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(taskType, data)
	if _, err := client.EnqueueContext(ctx, task, asynq.MaxRetry(5)); err != nil {
		return fmt.Errorf("enqueue %s task: %w", taskType, err)
	}
	return nil
}
