package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fiecsoft/procflow/internal/model"
	"github.com/fiecsoft/procflow/internal/workflow"
)

const instanceColumns = `id, process_type_id, template_id, year, month, state, responsible_user_id,
	title, comment, archived, tags, metadata, version, due_at, created_by, created_at, updated_at, closed_at`

// CreateInstance inserts the instance and all its steps in one transaction so
// materialization is all-or-nothing.
func (s *Store) CreateInstance(ctx context.Context, inst *model.ProcessInstance, steps []model.StepInstance) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO process_instances (`+instanceColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	`, inst.ID, inst.ProcessTypeID, inst.TemplateID, inst.Year, inst.Month, inst.State,
		inst.ResponsibleUserID, inst.Title, inst.Comment, inst.Archived, inst.Tags,
		metadataOrEmpty(inst.Metadata), inst.Version, inst.DueAt, inst.CreatedBy,
		inst.CreatedAt, inst.UpdatedAt, inst.ClosedAt)
	if err != nil {
		return fmt.Errorf("insert instance: %w", err)
	}
	for _, st := range steps {
		_, err = tx.Exec(ctx, `
			INSERT INTO step_instances (id, process_instance_id, step_template_id, ord, title, required,
				status, comment, reviewer_role, reviewed_by, due_at, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		`, st.ID, st.ProcessInstanceID, st.StepTemplateID, st.Ord, st.Title, st.Required,
			st.Status, st.Comment, st.ReviewerRole, st.ReviewedBy, st.DueAt, st.CreatedAt, st.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert step: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) InstanceByID(ctx context.Context, id string) (*model.ProcessInstance, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+instanceColumns+` FROM process_instances WHERE id=$1`, id)
	inst, err := scanInstance(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("instance", id)
		}
		return nil, fmt.Errorf("select instance: %w", err)
	}
	return inst, nil
}

// UpdateInstance persists the instance if expectedVersion still matches,
// bumping the version. Zero rows affected with the row present means another
// writer won the race.
func (s *Store) UpdateInstance(ctx context.Context, inst *model.ProcessInstance, expectedVersion int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE process_instances
		SET state=$1, title=$2, comment=$3, archived=$4, tags=$5, metadata=$6,
			due_at=$7, updated_at=$8, closed_at=$9, version=version+1
		WHERE id=$10 AND version=$11
	`, inst.State, inst.Title, inst.Comment, inst.Archived, inst.Tags, metadataOrEmpty(inst.Metadata),
		inst.DueAt, inst.UpdatedAt, inst.ClosedAt, inst.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("update instance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.InstanceByID(ctx, inst.ID); err != nil {
			return err
		}
		return fmt.Errorf("instance %s expected version %d: %w", inst.ID, expectedVersion, workflow.ErrVersionConflict)
	}
	inst.Version = expectedVersion + 1
	return nil
}

// UpdateStep persists a step and bumps the parent instance version in the
// same transaction, surfacing concurrent transitions as ErrVersionConflict.
func (s *Store) UpdateStep(ctx context.Context, step *model.StepInstance, expectedInstanceVersion int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE process_instances SET version=version+1, updated_at=$1
		WHERE id=$2 AND version=$3
	`, time.Now().UTC(), step.ProcessInstanceID, expectedInstanceVersion)
	if err != nil {
		return fmt.Errorf("bump instance version: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.InstanceByID(ctx, step.ProcessInstanceID); err != nil {
			return err
		}
		return fmt.Errorf("instance %s expected version %d: %w", step.ProcessInstanceID, expectedInstanceVersion, workflow.ErrVersionConflict)
	}
	tag, err = tx.Exec(ctx, `
		UPDATE step_instances
		SET status=$1, comment=$2, reviewed_by=$3, due_at=$4, updated_at=$5
		WHERE id=$6
	`, step.Status, step.Comment, step.ReviewedBy, step.DueAt, step.UpdatedAt, step.ID)
	if err != nil {
		return fmt.Errorf("update step: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("step", step.ID)
	}
	return tx.Commit(ctx)
}

func (s *Store) StepByID(ctx context.Context, id string) (*model.StepInstance, error) {
	var st model.StepInstance
	row := s.pool.QueryRow(ctx, `
		SELECT id, process_instance_id, step_template_id, ord, title, required, status,
			comment, reviewer_role, reviewed_by, due_at, created_at, updated_at
		FROM step_instances WHERE id=$1
	`, id)
	if err := row.Scan(&st.ID, &st.ProcessInstanceID, &st.StepTemplateID, &st.Ord, &st.Title,
		&st.Required, &st.Status, &st.Comment, &st.ReviewerRole, &st.ReviewedBy, &st.DueAt,
		&st.CreatedAt, &st.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("step", id)
		}
		return nil, fmt.Errorf("select step: %w", err)
	}
	return &st, nil
}

func (s *Store) StepsByInstance(ctx context.Context, instanceID string) ([]model.StepInstance, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, process_instance_id, step_template_id, ord, title, required, status,
			comment, reviewer_role, reviewed_by, due_at, created_at, updated_at
		FROM step_instances WHERE process_instance_id=$1 ORDER BY ord
	`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("select steps: %w", err)
	}
	defer rows.Close()
	var out []model.StepInstance
	for rows.Next() {
		var st model.StepInstance
		if err := rows.Scan(&st.ID, &st.ProcessInstanceID, &st.StepTemplateID, &st.Ord, &st.Title,
			&st.Required, &st.Status, &st.Comment, &st.ReviewerRole, &st.ReviewedBy, &st.DueAt,
			&st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) ListInstances(ctx context.Context, f model.ProcessFilter) ([]model.ProcessInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM process_instances WHERE 1=1`
	args := []interface{}{}
	add := func(clause string, v interface{}) {
		args = append(args, v)
		query += fmt.Sprintf(clause, len(args))
	}
	if f.ProcessTypeID != "" {
		add(" AND process_type_id=$%d", f.ProcessTypeID)
	}
	if f.Year != 0 {
		add(" AND year=$%d", f.Year)
	}
	if f.Month != 0 {
		add(" AND month=$%d", f.Month)
	}
	if f.State != "" {
		add(" AND state=$%d", f.State)
	}
	if f.ResponsibleUserID != "" {
		add(" AND responsible_user_id=$%d", f.ResponsibleUserID)
	}
	if f.Archived != nil {
		add(" AND archived=$%d", *f.Archived)
	}
	query += " ORDER BY created_at"
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select instances: %w", err)
	}
	defer rows.Close()
	return scanInstances(rows)
}

func (s *Store) ListClosed(ctx context.Context, from, to time.Time) ([]model.ProcessInstance, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+instanceColumns+` FROM process_instances
		WHERE state=$1 AND NOT archived AND closed_at BETWEEN $2 AND $3
		ORDER BY closed_at
	`, model.ProcessClosed, from, to)
	if err != nil {
		return nil, fmt.Errorf("select closed instances: %w", err)
	}
	defer rows.Close()
	return scanInstances(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInstance(row rowScanner) (*model.ProcessInstance, error) {
	var inst model.ProcessInstance
	err := row.Scan(&inst.ID, &inst.ProcessTypeID, &inst.TemplateID, &inst.Year, &inst.Month,
		&inst.State, &inst.ResponsibleUserID, &inst.Title, &inst.Comment, &inst.Archived,
		&inst.Tags, &inst.Metadata, &inst.Version, &inst.DueAt, &inst.CreatedBy,
		&inst.CreatedAt, &inst.UpdatedAt, &inst.ClosedAt)
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

func scanInstances(rows pgx.Rows) ([]model.ProcessInstance, error) {
	var out []model.ProcessInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		out = append(out, *inst)
	}
	return out, rows.Err()
}

func metadataOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
