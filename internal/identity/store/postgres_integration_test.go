//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"idregistry/internal/identity"
	"idregistry/internal/identity/shard"
	"idregistry/internal/identity/store"
	"idregistry/pkg/platform/sentinel"
	"idregistry/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.Require().NoError(store.EnsureSchema(context.Background(), s.postgres.Pool))
	s.store = store.NewPostgres(s.postgres.Pool)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(),
		"identity_records", "identity_documents", "identity_biometrics",
		"identity_history", "document_history", "biometric_history", "shard_salts")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) record() *identity.Record {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &identity.Record{
		RefID:               "ref-1",
		EncryptedIdentifier: "3_1234567890123_salt",
		HashedIdentifier:    "3_abcdef",
		Payload:             []byte(`{"dob":"1990/01/01"}`),
		PayloadHash:         "hash",
		RegistrationID:      "reg-0001",
		Status:              "ACTIVATED",
		CreatedBy:           "registry-processor",
		CreatedAt:           now,
		UpdatedBy:           "registry-processor",
		UpdatedAt:           now,
		Version:             1,
	}
}

func (s *PostgresStoreSuite) TestInsertAndGet() {
	ctx := context.Background()
	rec := s.record()
	rec.Documents = []identity.DocumentArtifact{{
		RecordRefID: rec.RefID, Category: "proofOfAddress", StorageID: "a.pdf",
		Name: "address-scan", Format: "pdf", ContentHash: "h",
		CreatedBy: "registry-processor", CreatedAt: rec.CreatedAt,
		UpdatedBy: "registry-processor", UpdatedAt: rec.CreatedAt,
	}}
	s.Require().NoError(s.store.Insert(ctx, rec))

	got, err := s.store.Get(ctx, rec.HashedIdentifier)
	s.Require().NoError(err)
	s.Equal(rec.RefID, got.RefID)
	s.JSONEq(string(rec.Payload), string(got.Payload))
	s.Require().Len(got.Documents, 1)
	s.Equal("proofOfAddress", got.Documents[0].Category)
}

func (s *PostgresStoreSuite) TestGetMissing() {
	_, err := s.store.Get(context.Background(), "3_missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestDuplicateInsertConflicts() {
	ctx := context.Background()
	s.Require().NoError(s.store.Insert(ctx, s.record()))
	s.ErrorIs(s.store.Insert(ctx, s.record()), sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestSaveVersionGuard() {
	ctx := context.Background()
	s.Require().NoError(s.store.Insert(ctx, s.record()))

	rec, err := s.store.Get(ctx, "3_abcdef")
	s.Require().NoError(err)
	rec.Status = "BLOCKED"
	s.Require().NoError(s.store.Save(ctx, rec))
	s.Equal(int64(2), rec.Version)

	stale := s.record() // still version 1
	stale.Status = "DEACTIVATED"
	s.ErrorIs(s.store.Save(ctx, stale), sentinel.ErrConflict)

	got, err := s.store.Get(ctx, "3_abcdef")
	s.Require().NoError(err)
	s.Equal("BLOCKED", got.Status)
}

func (s *PostgresStoreSuite) TestWithinTxRollsBackOnError() {
	ctx := context.Background()
	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.store.Insert(ctx, s.record()); err != nil {
			return err
		}
		return context.Canceled
	})
	s.Require().Error(err)

	_, err = s.store.Get(ctx, "3_abcdef")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestHistoryAppends() {
	ctx := context.Background()
	rec := s.record()
	s.Require().NoError(s.store.Insert(ctx, rec))

	h := identity.HistoryRecord{
		RecordRefID:         rec.RefID,
		At:                  rec.CreatedAt,
		EncryptedIdentifier: rec.EncryptedIdentifier,
		HashedIdentifier:    rec.HashedIdentifier,
		Payload:             rec.Payload,
		PayloadHash:         rec.PayloadHash,
		RegistrationID:      rec.RegistrationID,
		Status:              rec.Status,
		CreatedBy:           rec.CreatedBy,
		CreatedAt:           rec.CreatedAt,
	}
	s.Require().NoError(s.store.AppendHistory(ctx, h))
	s.Require().NoError(s.store.AppendHistory(ctx, h))

	var count int
	err := s.postgres.Pool.QueryRow(ctx,
		`SELECT count(*) FROM identity_history WHERE record_ref_id = $1`, rec.RefID).Scan(&count)
	s.Require().NoError(err)
	s.Equal(2, count)
}

func (s *PostgresStoreSuite) TestSaltStore() {
	ctx := context.Background()
	_, err := s.postgres.Pool.Exec(ctx,
		`INSERT INTO shard_salts (shard, purpose, salt) VALUES (3, 'hash', 'hash-salt')`)
	s.Require().NoError(err)

	salts := store.NewSaltPostgres(s.postgres.Pool)
	salt, err := salts.SaltFor(ctx, 3, shard.PurposeHash)
	s.Require().NoError(err)
	s.Equal("hash-salt", salt)

	_, err = salts.SaltFor(ctx, 3, shard.PurposeEncrypt)
	s.ErrorIs(err, sentinel.ErrNotFound)
}
