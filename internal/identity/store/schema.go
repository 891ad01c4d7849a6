package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS identity_records (
		hashed_identifier    TEXT PRIMARY KEY,
		ref_id               TEXT NOT NULL UNIQUE,
		encrypted_identifier TEXT NOT NULL,
		payload              BYTEA NOT NULL,
		payload_hash         TEXT NOT NULL,
		registration_id      TEXT NOT NULL,
		status               TEXT NOT NULL,
		anonymous_profile    TEXT NOT NULL DEFAULT '',
		created_by           TEXT NOT NULL,
		created_at           TIMESTAMPTZ NOT NULL,
		updated_by           TEXT NOT NULL,
		updated_at           TIMESTAMPTZ NOT NULL,
		version              BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS identity_documents (
		record_ref_id TEXT NOT NULL,
		category      TEXT NOT NULL,
		type_code     TEXT NOT NULL DEFAULT '',
		storage_id    TEXT NOT NULL,
		name          TEXT NOT NULL,
		format        TEXT NOT NULL,
		content_hash  TEXT NOT NULL,
		created_by    TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL,
		updated_by    TEXT NOT NULL DEFAULT '',
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (record_ref_id, category)
	)`,
	`CREATE TABLE IF NOT EXISTS identity_biometrics (
		record_ref_id TEXT NOT NULL,
		category      TEXT NOT NULL,
		storage_id    TEXT NOT NULL,
		name          TEXT NOT NULL,
		content_hash  TEXT NOT NULL,
		created_by    TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL,
		updated_by    TEXT NOT NULL DEFAULT '',
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (record_ref_id, category)
	)`,
	`CREATE TABLE IF NOT EXISTS identity_history (
		id                   BIGSERIAL PRIMARY KEY,
		record_ref_id        TEXT NOT NULL,
		at                   TIMESTAMPTZ NOT NULL,
		encrypted_identifier TEXT NOT NULL,
		hashed_identifier    TEXT NOT NULL,
		payload              BYTEA NOT NULL,
		payload_hash         TEXT NOT NULL,
		registration_id      TEXT NOT NULL,
		status               TEXT NOT NULL,
		anonymous_profile    TEXT NOT NULL DEFAULT '',
		created_by           TEXT NOT NULL,
		created_at           TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS document_history (
		id            BIGSERIAL PRIMARY KEY,
		record_ref_id TEXT NOT NULL,
		at            TIMESTAMPTZ NOT NULL,
		category      TEXT NOT NULL,
		type_code     TEXT NOT NULL DEFAULT '',
		storage_id    TEXT NOT NULL,
		name          TEXT NOT NULL,
		format        TEXT NOT NULL,
		content_hash  TEXT NOT NULL,
		created_by    TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS biometric_history (
		id            BIGSERIAL PRIMARY KEY,
		record_ref_id TEXT NOT NULL,
		at            TIMESTAMPTZ NOT NULL,
		category      TEXT NOT NULL,
		storage_id    TEXT NOT NULL,
		name          TEXT NOT NULL,
		content_hash  TEXT NOT NULL,
		created_by    TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS shard_salts (
		shard   BIGINT NOT NULL,
		purpose TEXT NOT NULL,
		salt    TEXT NOT NULL,
		PRIMARY KEY (shard, purpose)
	)`,
	`CREATE TABLE IF NOT EXISTS credential_requests (
		id                   TEXT PRIMARY KEY,
		hashed_identifier    TEXT NOT NULL,
		encrypted_identifier TEXT NOT NULL,
		partner_id           TEXT NOT NULL,
		status               TEXT NOT NULL,
		expiry               TIMESTAMPTZ,
		created_by           TEXT NOT NULL,
		created_at           TIMESTAMPTZ NOT NULL,
		updated_by           TEXT NOT NULL,
		updated_at           TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_credential_requests_record
		ON credential_requests (hashed_identifier)`,
	`CREATE INDEX IF NOT EXISTS idx_identity_history_record
		ON identity_history (record_ref_id, at)`,
}

// EnsureSchema creates the registry tables if they do not exist. Idempotent;
// run at startup before serving.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
