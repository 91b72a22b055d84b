// Package ledger records immutable, monotonically versioned artifact uploads
// per step. Uploading never mutates a prior version; it appends a new one and
// drives the owning step's upload transition.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/fiecsoft/procflow/internal/audit"
	"github.com/fiecsoft/procflow/internal/model"
	"github.com/fiecsoft/procflow/internal/workflow"
)

// Store is the persistence boundary for version records.
type Store interface {
	AppendFileVersion(ctx context.Context, fv *model.FileVersion) error
	LatestVersion(ctx context.Context, stepInstanceID string) (int, error)
	FileVersionByID(ctx context.Context, id string) (*model.FileVersion, error)
	FileVersionsByStep(ctx context.Context, stepInstanceID string) ([]model.FileVersion, error)
}

// ObjectStore holds artifact bytes. The ledger owns metadata only.
type ObjectStore interface {
	UploadArtifact(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error
	PresignArtifactURL(ctx context.Context, objectKey string, ttl time.Duration) (string, error)
}

// Service appends version records and streams content to object storage.
type Service struct {
	store   Store
	objects ObjectStore
	engine  *workflow.Service
	events  *audit.Bus
	newID   func() string
	now     func() time.Time
}

// NewService constructs the ledger. events may be nil.
func NewService(store Store, objects ObjectStore, engine *workflow.Service, events *audit.Bus) *Service {
	return &Service{
		store:   store,
		objects: objects,
		engine:  engine,
		events:  events,
		newID:   uuid.NewString,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RecordUpload streams one artifact into object storage, hashing it on the
// way through, and appends the next version record for the step. The step's
// upload transition is validated before any byte is stored and committed
// before the record is appended, so a transition lost to a concurrent writer
// never leaves a version record behind.
func (s *Service) RecordUpload(ctx context.Context, actor workflow.Actor, instanceID, stepID, filename string, size int64, contentType string, reader io.Reader) (*model.FileVersion, error) {
	if filename == "" {
		return nil, &workflow.ValidationError{Entity: "file_version", Field: "filename", Reason: "is required"}
	}
	if size <= 0 {
		return nil, &workflow.ValidationError{Entity: "file_version", Field: "size", Reason: "must be positive"}
	}
	if err := s.engine.EnsureUploadable(ctx, instanceID, stepID); err != nil {
		return nil, err
	}
	latest, err := s.store.LatestVersion(ctx, stepID)
	if err != nil {
		return nil, err
	}
	version := latest + 1
	objectKey := fmt.Sprintf("steps/%s/v%d/%s", stepID, version, filepath.Base(filename))

	h := sha256.New()
	if err := s.objects.UploadArtifact(ctx, objectKey, io.TeeReader(reader, h), size, contentType); err != nil {
		return nil, fmt.Errorf("store artifact: %w", err)
	}
	fv := &model.FileVersion{
		ID:             s.newID(),
		StepInstanceID: stepID,
		Version:        version,
		Filename:       filepath.Base(filename),
		SizeBytes:      size,
		SHA256:         hex.EncodeToString(h.Sum(nil)),
		ObjectKey:      objectKey,
		UploadedBy:     actor.ID,
		UploadedAt:     s.now(),
	}
	if _, err := s.engine.TransitionStep(ctx, actor, instanceID, stepID, model.ActionUpload, ""); err != nil {
		return nil, err
	}
	if err := s.store.AppendFileVersion(ctx, fv); err != nil {
		return nil, err
	}
	if s.events != nil {
		s.events.Publish(model.Event{
			Type:              model.EventArtifactUploaded,
			ProcessInstanceID: instanceID,
			StepInstanceID:    stepID,
			ActorID:           actor.ID,
			Details:           fmt.Sprintf("%s v%d (%d bytes)", fv.Filename, fv.Version, fv.SizeBytes),
			At:                s.now(),
		})
	}
	return fv, nil
}

// Versions returns the full, ordered version history for a step. Prior
// versions stay retrievable forever.
func (s *Service) Versions(ctx context.Context, stepID string) ([]model.FileVersion, error) {
	return s.store.FileVersionsByStep(ctx, stepID)
}

// LatestVersion returns the highest version number for a step, 0 when none.
func (s *Service) LatestVersion(ctx context.Context, stepID string) (int, error) {
	return s.store.LatestVersion(ctx, stepID)
}

// FileByID returns one version record.
func (s *Service) FileByID(ctx context.Context, id string) (*model.FileVersion, error) {
	return s.store.FileVersionByID(ctx, id)
}

// DownloadURL presigns a time-limited GET URL for a version's content.
func (s *Service) DownloadURL(ctx context.Context, fileID string, ttl time.Duration) (string, error) {
	fv, err := s.store.FileVersionByID(ctx, fileID)
	if err != nil {
		return "", err
	}
	return s.objects.PresignArtifactURL(ctx, fv.ObjectKey, ttl)
}
