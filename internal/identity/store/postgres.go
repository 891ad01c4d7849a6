package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"idregistry/internal/identity"
	"idregistry/internal/identity/shard"
	pg "idregistry/internal/platform/postgres"
	"idregistry/pkg/platform/sentinel"
)

// Postgres persists records, artifacts and history in PostgreSQL. Field
// encryption of the identifier composite is delegated to the database.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (s *Postgres) q(ctx context.Context) pg.Querier {
	return pg.QuerierFrom(ctx, s.pool)
}

// WithinTx runs fn inside one transaction; store calls made with the
// derived context join it, as do credential store calls on the same pool.
func (s *Postgres) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(pg.WithTx(ctx, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, hashedIdentifier string) (*identity.Record, error) {
	q := s.q(ctx)
	var rec identity.Record
	err := q.QueryRow(ctx, `
		SELECT ref_id, encrypted_identifier, hashed_identifier, payload, payload_hash,
		       registration_id, status, anonymous_profile,
		       created_by, created_at, updated_by, updated_at, version
		FROM identity_records
		WHERE hashed_identifier = $1`, hashedIdentifier).
		Scan(&rec.RefID, &rec.EncryptedIdentifier, &rec.HashedIdentifier, &rec.Payload, &rec.PayloadHash,
			&rec.RegistrationID, &rec.Status, &rec.AnonymousProfile,
			&rec.CreatedBy, &rec.CreatedAt, &rec.UpdatedBy, &rec.UpdatedAt, &rec.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	if rec.Documents, err = s.loadDocuments(ctx, rec.RefID); err != nil {
		return nil, err
	}
	if rec.Biometrics, err = s.loadBiometrics(ctx, rec.RefID); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Postgres) Insert(ctx context.Context, rec *identity.Record) error {
	_, err := s.q(ctx).Exec(ctx, `
		INSERT INTO identity_records
			(ref_id, encrypted_identifier, hashed_identifier, payload, payload_hash,
			 registration_id, status, anonymous_profile,
			 created_by, created_at, updated_by, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rec.RefID, rec.EncryptedIdentifier, rec.HashedIdentifier, rec.Payload, rec.PayloadHash,
		rec.RegistrationID, rec.Status, rec.AnonymousProfile,
		rec.CreatedBy, rec.CreatedAt, rec.UpdatedBy, rec.UpdatedAt, rec.Version)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert record: %w", err)
	}
	return s.saveArtifacts(ctx, rec)
}

// Save writes an updated record guarded by its version; a stale version
// returns sentinel.ErrConflict and nothing is written.
func (s *Postgres) Save(ctx context.Context, rec *identity.Record) error {
	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE identity_records
		SET payload = $1, payload_hash = $2, registration_id = $3, status = $4,
		    anonymous_profile = $5, updated_by = $6, updated_at = $7, version = version + 1
		WHERE hashed_identifier = $8 AND version = $9`,
		rec.Payload, rec.PayloadHash, rec.RegistrationID, rec.Status,
		rec.AnonymousProfile, rec.UpdatedBy, rec.UpdatedAt,
		rec.HashedIdentifier, rec.Version)
	if err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrConflict
	}
	rec.Version++
	return s.saveArtifacts(ctx, rec)
}

func (s *Postgres) saveArtifacts(ctx context.Context, rec *identity.Record) error {
	q := s.q(ctx)
	for _, doc := range rec.Documents {
		_, err := q.Exec(ctx, `
			INSERT INTO identity_documents
				(record_ref_id, category, type_code, storage_id, name, format, content_hash,
				 created_by, created_at, updated_by, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (record_ref_id, category) DO UPDATE SET
				type_code = EXCLUDED.type_code,
				storage_id = EXCLUDED.storage_id,
				name = EXCLUDED.name,
				format = EXCLUDED.format,
				content_hash = EXCLUDED.content_hash,
				updated_by = EXCLUDED.updated_by,
				updated_at = EXCLUDED.updated_at`,
			rec.RefID, doc.Category, doc.TypeCode, doc.StorageID, doc.Name, doc.Format, doc.ContentHash,
			doc.CreatedBy, doc.CreatedAt, doc.UpdatedBy, doc.UpdatedAt)
		if err != nil {
			return fmt.Errorf("save document artifact %s: %w", doc.Category, err)
		}
	}
	for _, bio := range rec.Biometrics {
		_, err := q.Exec(ctx, `
			INSERT INTO identity_biometrics
				(record_ref_id, category, storage_id, name, content_hash,
				 created_by, created_at, updated_by, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (record_ref_id, category) DO UPDATE SET
				storage_id = EXCLUDED.storage_id,
				name = EXCLUDED.name,
				content_hash = EXCLUDED.content_hash,
				updated_by = EXCLUDED.updated_by,
				updated_at = EXCLUDED.updated_at`,
			rec.RefID, bio.Category, bio.StorageID, bio.Name, bio.ContentHash,
			bio.CreatedBy, bio.CreatedAt, bio.UpdatedBy, bio.UpdatedAt)
		if err != nil {
			return fmt.Errorf("save biometric artifact %s: %w", bio.Category, err)
		}
	}
	return nil
}

func (s *Postgres) loadDocuments(ctx context.Context, refID string) ([]identity.DocumentArtifact, error) {
	rows, err := s.q(ctx).Query(ctx, `
		SELECT record_ref_id, category, type_code, storage_id, name, format, content_hash,
		       created_by, created_at, updated_by, updated_at
		FROM identity_documents
		WHERE record_ref_id = $1
		ORDER BY category`, refID)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	defer rows.Close()

	var out []identity.DocumentArtifact
	for rows.Next() {
		var d identity.DocumentArtifact
		if err := rows.Scan(&d.RecordRefID, &d.Category, &d.TypeCode, &d.StorageID, &d.Name, &d.Format,
			&d.ContentHash, &d.CreatedBy, &d.CreatedAt, &d.UpdatedBy, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Postgres) loadBiometrics(ctx context.Context, refID string) ([]identity.BiometricArtifact, error) {
	rows, err := s.q(ctx).Query(ctx, `
		SELECT record_ref_id, category, storage_id, name, content_hash,
		       created_by, created_at, updated_by, updated_at
		FROM identity_biometrics
		WHERE record_ref_id = $1
		ORDER BY category`, refID)
	if err != nil {
		return nil, fmt.Errorf("load biometrics: %w", err)
	}
	defer rows.Close()

	var out []identity.BiometricArtifact
	for rows.Next() {
		var b identity.BiometricArtifact
		if err := rows.Scan(&b.RecordRefID, &b.Category, &b.StorageID, &b.Name, &b.ContentHash,
			&b.CreatedBy, &b.CreatedAt, &b.UpdatedBy, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan biometric: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Postgres) AppendHistory(ctx context.Context, h identity.HistoryRecord) error {
	_, err := s.q(ctx).Exec(ctx, `
		INSERT INTO identity_history
			(record_ref_id, at, encrypted_identifier, hashed_identifier, payload, payload_hash,
			 registration_id, status, anonymous_profile, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		h.RecordRefID, h.At, h.EncryptedIdentifier, h.HashedIdentifier, h.Payload, h.PayloadHash,
		h.RegistrationID, h.Status, h.AnonymousProfile, h.CreatedBy, h.CreatedAt)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func (s *Postgres) AppendDocumentHistory(ctx context.Context, hs []identity.DocumentHistory) error {
	q := s.q(ctx)
	for _, h := range hs {
		_, err := q.Exec(ctx, `
			INSERT INTO document_history
				(record_ref_id, at, category, type_code, storage_id, name, format, content_hash,
				 created_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			h.RecordRefID, h.At, h.Category, h.TypeCode, h.StorageID, h.Name, h.Format, h.ContentHash,
			h.CreatedBy, h.CreatedAt)
		if err != nil {
			return fmt.Errorf("append document history: %w", err)
		}
	}
	return nil
}

func (s *Postgres) AppendBiometricHistory(ctx context.Context, hs []identity.BiometricHistory) error {
	q := s.q(ctx)
	for _, h := range hs {
		_, err := q.Exec(ctx, `
			INSERT INTO biometric_history
				(record_ref_id, at, category, storage_id, name, content_hash, created_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			h.RecordRefID, h.At, h.Category, h.StorageID, h.Name, h.ContentHash, h.CreatedBy, h.CreatedAt)
		if err != nil {
			return fmt.Errorf("append biometric history: %w", err)
		}
	}
	return nil
}

// SaltPostgres reads provisioned shard salts from the shard_salts table.
type SaltPostgres struct {
	pool *pgxpool.Pool
}

func NewSaltPostgres(pool *pgxpool.Pool) *SaltPostgres {
	return &SaltPostgres{pool: pool}
}

func (s *SaltPostgres) SaltFor(ctx context.Context, shardIdx int64, purpose shard.SaltPurpose) (string, error) {
	var salt string
	err := s.pool.QueryRow(ctx,
		`SELECT salt FROM shard_salts WHERE shard = $1 AND purpose = $2`,
		shardIdx, string(purpose)).Scan(&salt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", sentinel.ErrNotFound
		}
		return "", fmt.Errorf("salt lookup: %w", err)
	}
	return salt, nil
}
