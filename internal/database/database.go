package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	return pgxpool.NewWithConfig(ctx, cfg)
}

// EnsureSchema creates all tables if needed. Having the migration in code
// keeps the stack self-contained so docker-compose can bootstrap everything.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	full_name TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	active BOOLEAN NOT NULL,
	roles TEXT[] NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS process_types (
	id TEXT PRIMARY KEY,
	code TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	active BOOLEAN NOT NULL,
	created_by TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS process_templates (
	id TEXT PRIMARY KEY,
	process_type_id TEXT NOT NULL REFERENCES process_types(id),
	description TEXT NOT NULL DEFAULT '',
	version INT NOT NULL,
	published BOOLEAN NOT NULL,
	created_by TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS step_templates (
	id TEXT PRIMARY KEY,
	template_id TEXT NOT NULL REFERENCES process_templates(id),
	ord INT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	required BOOLEAN NOT NULL,
	reviewer_role TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (template_id, ord)
);
CREATE TABLE IF NOT EXISTS process_instances (
	id TEXT PRIMARY KEY,
	process_type_id TEXT NOT NULL,
	template_id TEXT NOT NULL,
	year INT NOT NULL,
	month INT NOT NULL,
	state TEXT NOT NULL,
	responsible_user_id TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	comment TEXT NOT NULL DEFAULT '',
	archived BOOLEAN NOT NULL DEFAULT FALSE,
	tags TEXT[] NOT NULL DEFAULT '{}',
	metadata JSONB NOT NULL DEFAULT '{}',
	version BIGINT NOT NULL,
	due_at TIMESTAMPTZ,
	created_by TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	closed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_instances_state ON process_instances(state);
CREATE INDEX IF NOT EXISTS idx_instances_period ON process_instances(year, month);
CREATE TABLE IF NOT EXISTS step_instances (
	id TEXT PRIMARY KEY,
	process_instance_id TEXT NOT NULL REFERENCES process_instances(id),
	step_template_id TEXT NOT NULL,
	ord INT NOT NULL,
	title TEXT NOT NULL,
	required BOOLEAN NOT NULL,
	status TEXT NOT NULL,
	comment TEXT NOT NULL DEFAULT '',
	reviewer_role TEXT NOT NULL,
	reviewed_by TEXT NOT NULL DEFAULT '',
	due_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_steps_instance ON step_instances(process_instance_id);
CREATE TABLE IF NOT EXISTS file_versions (
	id TEXT PRIMARY KEY,
	step_instance_id TEXT NOT NULL REFERENCES step_instances(id),
	version INT NOT NULL,
	filename TEXT NOT NULL,
	size_bytes BIGINT NOT NULL,
	sha256 TEXT NOT NULL,
	object_key TEXT NOT NULL,
	text_key TEXT,
	uploaded_by TEXT NOT NULL,
	uploaded_at TIMESTAMPTZ NOT NULL,
	comment TEXT NOT NULL DEFAULT '',
	UNIQUE (step_instance_id, version)
);
CREATE TABLE IF NOT EXISTS audit_log (
	id TEXT PRIMARY KEY,
	actor_id TEXT NOT NULL,
	action TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	details TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS archive_operations (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	date_from TIMESTAMPTZ NOT NULL,
	date_to TIMESTAMPTZ NOT NULL,
	total_processes INT NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS export_logs (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	object_key TEXT NOT NULL,
	size_bytes BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS notifications (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	type TEXT NOT NULL,
	title TEXT NOT NULL,
	body TEXT NOT NULL DEFAULT '',
	read BOOLEAN NOT NULL DEFAULT FALSE,
	process_instance_id TEXT NOT NULL DEFAULT '',
	step_instance_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);`
	if _, err := pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
