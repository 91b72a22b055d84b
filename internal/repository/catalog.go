package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/fiecsoft/procflow/internal/model"
)

// CreateProcessType inserts a new institutional category.
func (s *Store) CreateProcessType(ctx context.Context, pt *model.ProcessType) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO process_types (id, code, name, description, active, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, pt.ID, pt.Code, pt.Name, pt.Description, pt.Active, pt.CreatedBy, pt.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert process type: %w", err)
	}
	return nil
}

func (s *Store) ProcessTypeByID(ctx context.Context, id string) (*model.ProcessType, error) {
	var pt model.ProcessType
	row := s.pool.QueryRow(ctx, `
		SELECT id, code, name, description, active, created_by, created_at
		FROM process_types WHERE id=$1
	`, id)
	if err := row.Scan(&pt.ID, &pt.Code, &pt.Name, &pt.Description, &pt.Active, &pt.CreatedBy, &pt.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("process type", id)
		}
		return nil, fmt.Errorf("select process type: %w", err)
	}
	return &pt, nil
}

func (s *Store) SaveProcessType(ctx context.Context, pt *model.ProcessType) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE process_types SET name=$1, description=$2, active=$3 WHERE id=$4
	`, pt.Name, pt.Description, pt.Active, pt.ID)
	if err != nil {
		return fmt.Errorf("update process type: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("process type", pt.ID)
	}
	return nil
}

func (s *Store) ListProcessTypes(ctx context.Context, activeOnly bool) ([]model.ProcessType, error) {
	query := `
		SELECT id, code, name, description, active, created_by, created_at
		FROM process_types`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY code`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select process types: %w", err)
	}
	defer rows.Close()
	var out []model.ProcessType
	for rows.Next() {
		var pt model.ProcessType
		if err := rows.Scan(&pt.ID, &pt.Code, &pt.Name, &pt.Description, &pt.Active, &pt.CreatedBy, &pt.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan process type: %w", err)
		}
		out = append(out, pt)
	}
	return out, rows.Err()
}

// CreateTemplate inserts a draft template.
func (s *Store) CreateTemplate(ctx context.Context, tpl *model.ProcessTemplate) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO process_templates (id, process_type_id, description, version, published, created_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, tpl.ID, tpl.ProcessTypeID, tpl.Description, tpl.Version, tpl.Published, tpl.CreatedBy, tpl.CreatedAt, tpl.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

func (s *Store) TemplateByID(ctx context.Context, id string) (*model.ProcessTemplate, error) {
	var tpl model.ProcessTemplate
	row := s.pool.QueryRow(ctx, `
		SELECT id, process_type_id, description, version, published, created_by, created_at, updated_at
		FROM process_templates WHERE id=$1
	`, id)
	if err := row.Scan(&tpl.ID, &tpl.ProcessTypeID, &tpl.Description, &tpl.Version, &tpl.Published, &tpl.CreatedBy, &tpl.CreatedAt, &tpl.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("template", id)
		}
		return nil, fmt.Errorf("select template: %w", err)
	}
	return &tpl, nil
}

func (s *Store) SaveTemplate(ctx context.Context, tpl *model.ProcessTemplate) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE process_templates SET description=$1, published=$2, updated_at=$3 WHERE id=$4
	`, tpl.Description, tpl.Published, tpl.UpdatedAt, tpl.ID)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("template", tpl.ID)
	}
	return nil
}

func (s *Store) ListTemplates(ctx context.Context, processTypeID string, publishedOnly bool) ([]model.ProcessTemplate, error) {
	query := `
		SELECT id, process_type_id, description, version, published, created_by, created_at, updated_at
		FROM process_templates WHERE 1=1`
	args := []interface{}{}
	if processTypeID != "" {
		args = append(args, processTypeID)
		query += fmt.Sprintf(" AND process_type_id=$%d", len(args))
	}
	if publishedOnly {
		query += " AND published"
	}
	query += " ORDER BY version"
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select templates: %w", err)
	}
	defer rows.Close()
	var out []model.ProcessTemplate
	for rows.Next() {
		var tpl model.ProcessTemplate
		if err := rows.Scan(&tpl.ID, &tpl.ProcessTypeID, &tpl.Description, &tpl.Version, &tpl.Published, &tpl.CreatedBy, &tpl.CreatedAt, &tpl.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, tpl)
	}
	return out, rows.Err()
}

// CreateStepTemplate inserts one step definition.
func (s *Store) CreateStepTemplate(ctx context.Context, st *model.StepTemplate) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO step_templates (id, template_id, ord, title, description, required, reviewer_role, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, st.ID, st.TemplateID, st.Ord, st.Title, st.Description, st.Required, st.ReviewerRole, st.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert step template: %w", err)
	}
	return nil
}

func (s *Store) StepTemplatesByTemplate(ctx context.Context, templateID string) ([]model.StepTemplate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, template_id, ord, title, description, required, reviewer_role, created_at
		FROM step_templates WHERE template_id=$1 ORDER BY ord
	`, templateID)
	if err != nil {
		return nil, fmt.Errorf("select step templates: %w", err)
	}
	defer rows.Close()
	var out []model.StepTemplate
	for rows.Next() {
		var st model.StepTemplate
		if err := rows.Scan(&st.ID, &st.TemplateID, &st.Ord, &st.Title, &st.Description, &st.Required, &st.ReviewerRole, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan step template: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
