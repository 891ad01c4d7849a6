package credential

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	pg "idregistry/internal/platform/postgres"
)

// PostgresStore persists reissue requests in the credential_requests table.
// Calls made inside a record-store transaction join it through the context.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) q(ctx context.Context) pg.Querier {
	return pg.QuerierFrom(ctx, s.pool)
}

func (s *PostgresStore) ListByRecord(ctx context.Context, hashedIdentifier string) ([]ReissueRequest, error) {
	rows, err := s.q(ctx).Query(ctx, `
		SELECT id, hashed_identifier, encrypted_identifier, partner_id, status, expiry,
		       created_by, created_at, updated_by, updated_at
		FROM credential_requests
		WHERE hashed_identifier = $1`, hashedIdentifier)
	if err != nil {
		return nil, fmt.Errorf("query reissue requests: %w", err)
	}
	defer rows.Close()

	var out []ReissueRequest
	for rows.Next() {
		var req ReissueRequest
		if err := rows.Scan(&req.ID, &req.HashedIdentifier, &req.EncryptedIdentifier,
			&req.PartnerID, &req.Status, &req.Expiry,
			&req.CreatedBy, &req.CreatedAt, &req.UpdatedBy, &req.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan reissue request: %w", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reissue requests: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Save(ctx context.Context, req ReissueRequest) error {
	_, err := s.q(ctx).Exec(ctx, `
		INSERT INTO credential_requests
			(id, hashed_identifier, encrypted_identifier, partner_id, status, expiry,
			 created_by, created_at, updated_by, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			expiry = EXCLUDED.expiry,
			updated_by = EXCLUDED.updated_by,
			updated_at = EXCLUDED.updated_at`,
		req.ID, req.HashedIdentifier, req.EncryptedIdentifier, req.PartnerID, req.Status, req.Expiry,
		req.CreatedBy, req.CreatedAt, req.UpdatedBy, req.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save reissue request: %w", err)
	}
	return nil
}
