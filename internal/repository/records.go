package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/fiecsoft/procflow/internal/model"
)

// --- file versions (append-only) ---

func (s *Store) AppendFileVersion(ctx context.Context, fv *model.FileVersion) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO file_versions (id, step_instance_id, version, filename, size_bytes,
			sha256, object_key, text_key, uploaded_by, uploaded_at, comment)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, fv.ID, fv.StepInstanceID, fv.Version, fv.Filename, fv.SizeBytes,
		fv.SHA256, fv.ObjectKey, fv.TextKey, fv.UploadedBy, fv.UploadedAt, fv.Comment)
	if err != nil {
		return fmt.Errorf("insert file version: %w", err)
	}
	return nil
}

func (s *Store) LatestVersion(ctx context.Context, stepInstanceID string) (int, error) {
	var latest int
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM file_versions WHERE step_instance_id=$1`,
		stepInstanceID).Scan(&latest)
	if err != nil {
		return 0, fmt.Errorf("select latest version: %w", err)
	}
	return latest, nil
}

func (s *Store) FileVersionByID(ctx context.Context, id string) (*model.FileVersion, error) {
	var fv model.FileVersion
	err := s.pool.QueryRow(ctx, `
		SELECT id, step_instance_id, version, filename, size_bytes, sha256,
			object_key, text_key, uploaded_by, uploaded_at, comment
		FROM file_versions WHERE id=$1
	`, id).Scan(&fv.ID, &fv.StepInstanceID, &fv.Version, &fv.Filename, &fv.SizeBytes,
		&fv.SHA256, &fv.ObjectKey, &fv.TextKey, &fv.UploadedBy, &fv.UploadedAt, &fv.Comment)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("file version", id)
		}
		return nil, fmt.Errorf("select file version: %w", err)
	}
	return &fv, nil
}

func (s *Store) FileVersionsByStep(ctx context.Context, stepInstanceID string) ([]model.FileVersion, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, step_instance_id, version, filename, size_bytes, sha256,
			object_key, text_key, uploaded_by, uploaded_at, comment
		FROM file_versions WHERE step_instance_id=$1 ORDER BY version
	`, stepInstanceID)
	if err != nil {
		return nil, fmt.Errorf("select file versions: %w", err)
	}
	defer rows.Close()
	var out []model.FileVersion
	for rows.Next() {
		var fv model.FileVersion
		if err := rows.Scan(&fv.ID, &fv.StepInstanceID, &fv.Version, &fv.Filename, &fv.SizeBytes,
			&fv.SHA256, &fv.ObjectKey, &fv.TextKey, &fv.UploadedBy, &fv.UploadedAt, &fv.Comment); err != nil {
			return nil, fmt.Errorf("scan file version: %w", err)
		}
		out = append(out, fv)
	}
	return out, rows.Err()
}

func (s *Store) SetFileTextKey(ctx context.Context, fileID, textKey string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE file_versions SET text_key=$1 WHERE id=$2`, textKey, fileID)
	if err != nil {
		return fmt.Errorf("set text key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("file version", fileID)
	}
	return nil
}

// --- audit trail ---

func (s *Store) AppendAudit(ctx context.Context, entry model.AuditEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_log (id, actor_id, action, entity_type, entity_id, details, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, entry.ID, entry.ActorID, entry.Action, entry.EntityType, entry.EntityID, entry.Details, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *Store) ListAudit(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	query := `SELECT id, actor_id, action, entity_type, entity_id, details, created_at
		FROM audit_log ORDER BY created_at DESC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select audit entries: %w", err)
	}
	defer rows.Close()
	var out []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.EntityType, &e.EntityID, &e.Details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- archive operations ---

func (s *Store) CreateArchiveOperation(ctx context.Context, op *model.ArchiveOperation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO archive_operations (id, user_id, date_from, date_to, total_processes, status, created_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, op.ID, op.UserID, op.DateFrom, op.DateTo, op.TotalProcesses, op.Status, op.CreatedAt, op.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert archive operation: %w", err)
	}
	return nil
}

func (s *Store) ArchiveOperationByID(ctx context.Context, id string) (*model.ArchiveOperation, error) {
	var op model.ArchiveOperation
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, date_from, date_to, total_processes, status, created_at, completed_at
		FROM archive_operations WHERE id=$1
	`, id).Scan(&op.ID, &op.UserID, &op.DateFrom, &op.DateTo, &op.TotalProcesses,
		&op.Status, &op.CreatedAt, &op.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("archive operation", id)
		}
		return nil, fmt.Errorf("select archive operation: %w", err)
	}
	return &op, nil
}

func (s *Store) SaveArchiveOperation(ctx context.Context, op *model.ArchiveOperation) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE archive_operations
		SET total_processes=$1, status=$2, completed_at=$3 WHERE id=$4
	`, op.TotalProcesses, op.Status, op.CompletedAt, op.ID)
	if err != nil {
		return fmt.Errorf("update archive operation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("archive operation", op.ID)
	}
	return nil
}

func (s *Store) ListArchiveOperations(ctx context.Context) ([]model.ArchiveOperation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, date_from, date_to, total_processes, status, created_at, completed_at
		FROM archive_operations ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("select archive operations: %w", err)
	}
	defer rows.Close()
	var out []model.ArchiveOperation
	for rows.Next() {
		var op model.ArchiveOperation
		if err := rows.Scan(&op.ID, &op.UserID, &op.DateFrom, &op.DateTo, &op.TotalProcesses,
			&op.Status, &op.CreatedAt, &op.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan archive operation: %w", err)
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

// --- export logs ---

func (s *Store) AppendExportLog(ctx context.Context, log model.ExportLog) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO export_logs (id, user_id, object_key, size_bytes, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, log.ID, log.UserID, log.ObjectKey, log.SizeBytes, log.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert export log: %w", err)
	}
	return nil
}

func (s *Store) ListExportLogs(ctx context.Context) ([]model.ExportLog, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, object_key, size_bytes, created_at FROM export_logs ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("select export logs: %w", err)
	}
	defer rows.Close()
	var out []model.ExportLog
	for rows.Next() {
		var l model.ExportLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.ObjectKey, &l.SizeBytes, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan export log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// --- notifications ---

func (s *Store) AppendNotification(ctx context.Context, n model.Notification) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (id, user_id, type, title, body, read, process_instance_id, step_instance_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, n.ID, n.UserID, n.Type, n.Title, n.Body, n.Read, n.ProcessInstanceID, n.StepInstanceID, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *Store) NotificationsByUser(ctx context.Context, userID string) ([]model.Notification, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, type, title, body, read, process_instance_id, step_instance_id, created_at
		FROM notifications WHERE user_id=$1 ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("select notifications: %w", err)
	}
	defer rows.Close()
	var out []model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &n.Read,
			&n.ProcessInstanceID, &n.StepInstanceID, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
