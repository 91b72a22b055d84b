package store

import (
	"context"
	"sort"

	"github.com/fiecsoft/procflow/internal/model"
)

// --- file versions (append-only) ---

// AppendFileVersion writes a new immutable version record. Prior versions are
// never touched.
func (m *Memory) AppendFileVersion(_ context.Context, fv *model.FileVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *fv
	m.files[fv.ID] = &cp
	return nil
}

// LatestVersion returns the highest version number recorded for a step, 0
// when the step has no uploads yet.
func (m *Memory) LatestVersion(_ context.Context, stepInstanceID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	latest := 0
	for _, fv := range m.files {
		if fv.StepInstanceID == stepInstanceID && fv.Version > latest {
			latest = fv.Version
		}
	}
	return latest, nil
}

func (m *Memory) FileVersionByID(_ context.Context, id string) (*model.FileVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fv, ok := m.files[id]
	if !ok {
		return nil, notFound("file version", id)
	}
	cp := *fv
	return &cp, nil
}

func (m *Memory) FileVersionsByStep(_ context.Context, stepInstanceID string) ([]model.FileVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.FileVersion
	for _, fv := range m.files {
		if fv.StepInstanceID == stepInstanceID {
			out = append(out, *fv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// SetFileTextKey links extracted plain text to a version record. The version
// content itself stays immutable.
func (m *Memory) SetFileTextKey(_ context.Context, fileID, textKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fv, ok := m.files[fileID]
	if !ok {
		return notFound("file version", fileID)
	}
	key := textKey
	fv.TextKey = &key
	return nil
}

// --- audit trail ---

func (m *Memory) AppendAudit(_ context.Context, entry model.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, entry)
	return nil
}

// ListAudit returns the newest entries first, capped at limit (0 = all).
func (m *Memory) ListAudit(_ context.Context, limit int) ([]model.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.AuditEntry, len(m.audits))
	copy(out, m.audits)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- archive operations ---

func (m *Memory) CreateArchiveOperation(_ context.Context, op *model.ArchiveOperation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *op
	m.archiveOps[op.ID] = &cp
	return nil
}

func (m *Memory) ArchiveOperationByID(_ context.Context, id string) (*model.ArchiveOperation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	op, ok := m.archiveOps[id]
	if !ok {
		return nil, notFound("archive operation", id)
	}
	cp := *op
	return &cp, nil
}

func (m *Memory) SaveArchiveOperation(_ context.Context, op *model.ArchiveOperation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.archiveOps[op.ID]; !ok {
		return notFound("archive operation", op.ID)
	}
	cp := *op
	m.archiveOps[op.ID] = &cp
	return nil
}

func (m *Memory) ListArchiveOperations(_ context.Context) ([]model.ArchiveOperation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.ArchiveOperation, 0, len(m.archiveOps))
	for _, op := range m.archiveOps {
		out = append(out, *op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- export logs ---

func (m *Memory) AppendExportLog(_ context.Context, log model.ExportLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exports = append(m.exports, log)
	return nil
}

func (m *Memory) ListExportLogs(_ context.Context) ([]model.ExportLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.ExportLog, len(m.exports))
	copy(out, m.exports)
	return out, nil
}

// --- notifications ---

func (m *Memory) AppendNotification(_ context.Context, n model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, n)
	return nil
}

func (m *Memory) NotificationsByUser(_ context.Context, userID string) ([]model.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Notification
	for _, n := range m.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}
