// Package service orchestrates the registry's create, update, and retrieve
// operations: addressing, locking, payload reconciliation, artifact
// ingestion, persistence, history, and the credential reissue trigger.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"idregistry/internal/audit"
	"idregistry/internal/credential"
	"idregistry/internal/identity"
	"idregistry/internal/identity/artifact"
	"idregistry/internal/identity/jsontree"
	"idregistry/internal/identity/merge"
	"idregistry/internal/identity/metrics"
	"idregistry/internal/identity/shard"
	"idregistry/internal/security"
	pkgerrors "idregistry/pkg/errors"
	"idregistry/pkg/platform/sentinel"
	"idregistry/pkg/requestcontext"
)

// updateLockTTL bounds how long a crashed writer can hold a record.
const updateLockTTL = 30 * time.Second

// RecordStore is the persistence contract the orchestrator needs.
type RecordStore interface {
	Get(ctx context.Context, hashedIdentifier string) (*identity.Record, error)
	Insert(ctx context.Context, rec *identity.Record) error
	Save(ctx context.Context, rec *identity.Record) error
	AppendHistory(ctx context.Context, h identity.HistoryRecord) error
	AppendDocumentHistory(ctx context.Context, hs []identity.DocumentHistory) error
	AppendBiometricHistory(ctx context.Context, hs []identity.BiometricHistory) error
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Locker serializes writers per record.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// View is what transports render for a record. The plaintext identifier is
// never part of it.
type View struct {
	RefID          string                       `json:"refId"`
	Status         string                       `json:"status"`
	RegistrationID string                       `json:"registrationId"`
	Identity       json.RawMessage              `json:"identity"`
	Documents      []identity.DocumentArtifact  `json:"documents,omitempty"`
	Biometrics     []identity.BiometricArtifact `json:"biometrics,omitempty"`
	CreatedAt      time.Time                    `json:"createdAt"`
	UpdatedAt      time.Time                    `json:"updatedAt"`
	Version        int64                        `json:"version"`
}

// Service is the reconciliation engine's entry point.
type Service struct {
	records       RecordStore
	addresser     *shard.Addresser
	ingestor      *artifact.Ingestor
	trigger       *credential.Trigger
	locker        Locker
	events        *audit.Service
	metrics       *metrics.Metrics
	logger        *slog.Logger
	tracer        trace.Tracer
	hasher        security.Hasher
	defaultStatus string
}

func New(records RecordStore, addresser *shard.Addresser, ingestor *artifact.Ingestor,
	trigger *credential.Trigger, locker Locker, events *audit.Service,
	m *metrics.Metrics, logger *slog.Logger, defaultStatus string) *Service {
	return &Service{
		records:       records,
		addresser:     addresser,
		ingestor:      ingestor,
		trigger:       trigger,
		locker:        locker,
		events:        events,
		metrics:       m,
		logger:        logger,
		tracer:        otel.Tracer("idregistry/identity"),
		defaultStatus: defaultStatus,
	}
}

// Create registers a new canonical record.
func (s *Service) Create(ctx context.Context, req identity.Request) (*View, error) {
	ctx, span := s.tracer.Start(ctx, "identity.Create")
	defer span.End()
	start := time.Now()

	payload, err := decodePayload(req.Identity)
	if err != nil {
		return nil, err
	}
	addr, err := s.addresser.Address(ctx, req.Identifier)
	if err != nil {
		return nil, err
	}

	status := req.Status
	if status == "" {
		status = s.defaultStatus
	}
	actor, now := requestcontext.Actor(ctx), requestcontext.Now(ctx)
	encoded, err := payload.Encode()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProcessingFailed, "encode canonical payload", err)
	}

	rec := &identity.Record{
		RefID:               uuid.NewString(),
		EncryptedIdentifier: addr.EncryptionComposite,
		HashedIdentifier:    addr.Hashed,
		Payload:             encoded,
		PayloadHash:         s.hasher.Hash(encoded),
		RegistrationID:      req.RegistrationID,
		Status:              status,
		AnonymousProfile:    string(req.AnonymousProfile),
		CreatedBy:           actor,
		CreatedAt:           now,
		UpdatedBy:           actor,
		UpdatedAt:           now,
		Version:             1,
	}

	ingested, err := s.ingestor.Ingest(ctx, addr.HashOnly, payload, req.Documents, rec.RefID, req.Draft)
	if err != nil {
		return nil, err
	}
	rec.Documents = ingested.Documents
	rec.Biometrics = ingested.Biometrics

	var moved map[string]int
	err = s.records.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.records.Insert(ctx, rec); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return pkgerrors.New(pkgerrors.CodeConflict, "record already exists for identifier")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, "insert record", err)
		}
		if req.Draft {
			return nil
		}
		if err := s.appendHistory(ctx, rec, ingested); err != nil {
			return err
		}
		var err error
		if moved, err = s.trigger.Sync(ctx, rec.HashedIdentifier, rec.EncryptedIdentifier, rec.Status); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, "sync reissue requests", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterWrite(ctx, rec, ingested, moved, audit.ActionIdentityCreated)
	s.metrics.RecordsCreated.Inc()
	s.metrics.ObserveOperation("create", start)
	s.logger.InfoContext(ctx, "record created", "ref_id", rec.RefID, "shard", addr.Shard, "status", rec.Status)
	return viewOf(rec), nil
}

// Update reconciles a partial submission into the stored record. The write
// is serialized per record and guarded by the record version; a lost race
// surfaces as a conflict for the caller to retry.
func (s *Service) Update(ctx context.Context, req identity.Request) (*View, error) {
	ctx, span := s.tracer.Start(ctx, "identity.Update")
	defer span.End()
	start := time.Now()

	addr, err := s.addresser.Address(ctx, req.Identifier)
	if err != nil {
		return nil, err
	}
	release, err := s.locker.Lock(ctx, "update:"+addr.Hashed, updateLockTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, "acquire update lock", err)
	}
	defer release()

	rec, err := s.records.Get(ctx, addr.Hashed)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeRecordNotFound, "no record for identifier")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, "load record", err)
	}

	if req.RegistrationID != "" {
		rec.RegistrationID = req.RegistrationID
	}
	if req.Status != "" {
		rec.Status = req.Status
	}
	if len(req.AnonymousProfile) > 0 {
		if err := s.reconcileProfile(rec, req.AnonymousProfile); err != nil {
			return nil, err
		}
	}

	var ingested artifact.Result
	if len(req.Identity) > 0 {
		input, err := decodePayload(req.Identity)
		if err != nil {
			return nil, err
		}
		stored, err := jsontree.Decode(rec.Payload)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeProcessingFailed, "stored payload is corrupt", err)
		}
		outcome, err := merge.Reconcile(input, stored)
		if err != nil {
			return nil, err
		}
		s.metrics.MergePasses.Observe(float64(outcome.Passes))
		if outcome.Residual {
			s.metrics.MergeResiduals.Inc()
			s.logger.WarnContext(ctx, "merge left a residual diff", "ref_id", rec.RefID, "passes", outcome.Passes)
		}
		if outcome.Changed {
			encoded, err := stored.Encode()
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeProcessingFailed, "encode canonical payload", err)
			}
			rec.Payload = encoded
			rec.PayloadHash = s.hasher.Hash(encoded)
		}

		if len(req.Documents) > 0 {
			if err := s.ingestor.ResyncContainers(ctx, addr.HashOnly, rec, input, req.Documents); err != nil {
				return nil, err
			}
			ingested, err = s.ingestor.Ingest(ctx, addr.HashOnly, input, req.Documents, rec.RefID, req.Draft)
			if err != nil {
				return nil, err
			}
		}
	}

	actor, now := requestcontext.Actor(ctx), requestcontext.Now(ctx)
	rec.UpdatedBy = actor
	rec.UpdatedAt = now
	artifact.MergeIntoRecord(rec, ingested, actor)

	var moved map[string]int
	err = s.records.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.records.Save(ctx, rec); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				s.metrics.UpdateConflicts.Inc()
				return pkgerrors.New(pkgerrors.CodeConflict, "record changed concurrently")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, "save record", err)
		}
		if req.Draft {
			return nil
		}
		// History is written for every committed update, even when the
		// merge was a no-op.
		if err := s.appendHistory(ctx, rec, ingested); err != nil {
			return err
		}
		var err error
		if moved, err = s.trigger.Sync(ctx, rec.HashedIdentifier, rec.EncryptedIdentifier, rec.Status); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, "sync reissue requests", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterWrite(ctx, rec, ingested, moved, audit.ActionIdentityUpdated)
	s.metrics.RecordsUpdated.Inc()
	s.metrics.ObserveOperation("update", start)
	s.logger.InfoContext(ctx, "record updated", "ref_id", rec.RefID, "version", rec.Version, "status", rec.Status)
	return viewOf(rec), nil
}

// Retrieve returns the canonical view for an identifier.
func (s *Service) Retrieve(ctx context.Context, identifier string) (*View, error) {
	ctx, span := s.tracer.Start(ctx, "identity.Retrieve")
	defer span.End()
	start := time.Now()

	addr, err := s.addresser.Address(ctx, identifier)
	if err != nil {
		return nil, err
	}
	rec, err := s.records.Get(ctx, addr.Hashed)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeRecordNotFound, "no record for identifier")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, "load record", err)
	}

	if err := s.events.Emit(ctx, audit.Event{
		Action:           audit.ActionIdentityRetrieved,
		HashedIdentifier: rec.HashedIdentifier,
		RecordRefID:      rec.RefID,
		Status:           rec.Status,
	}); err != nil {
		s.logger.WarnContext(ctx, "emit trail event", "error", err)
	}
	s.metrics.ObserveOperation("retrieve", start)
	return viewOf(rec), nil
}

// reconcileProfile merges a submitted anonymous profile with the same
// semantics as the payload merge.
func (s *Service) reconcileProfile(rec *identity.Record, submitted json.RawMessage) error {
	if rec.AnonymousProfile == "" {
		rec.AnonymousProfile = string(submitted)
		return nil
	}
	input, err := jsontree.Decode(submitted)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInvalidInput, "anonymous profile is not valid JSON", err).
			WithPath("anonymousProfile")
	}
	stored, err := jsontree.Decode([]byte(rec.AnonymousProfile))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeProcessingFailed, "stored anonymous profile is corrupt", err)
	}
	outcome, err := merge.Reconcile(input, stored)
	if err != nil {
		return err
	}
	if outcome.Changed {
		encoded, err := stored.Encode()
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeProcessingFailed, "encode anonymous profile", err)
		}
		rec.AnonymousProfile = string(encoded)
	}
	return nil
}

func (s *Service) appendHistory(ctx context.Context, rec *identity.Record, ingested artifact.Result) error {
	now := requestcontext.Now(ctx)
	h := identity.HistoryRecord{
		RecordRefID:         rec.RefID,
		At:                  now,
		EncryptedIdentifier: rec.EncryptedIdentifier,
		HashedIdentifier:    rec.HashedIdentifier,
		Payload:             rec.Payload,
		PayloadHash:         rec.PayloadHash,
		RegistrationID:      rec.RegistrationID,
		Status:              rec.Status,
		AnonymousProfile:    rec.AnonymousProfile,
		CreatedBy:           rec.UpdatedBy,
		CreatedAt:           now,
	}
	if err := s.records.AppendHistory(ctx, h); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, "append history", err)
	}
	if len(ingested.DocumentHistory) > 0 {
		if err := s.records.AppendDocumentHistory(ctx, ingested.DocumentHistory); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, "append document history", err)
		}
	}
	if len(ingested.BiometricHistory) > 0 {
		if err := s.records.AppendBiometricHistory(ctx, ingested.BiometricHistory); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, "append biometric history", err)
		}
	}
	return nil
}

// afterWrite records the post-commit bookkeeping: metrics and the trail
// event. The event is best-effort; a failure is logged, never bubbled into
// the already committed write.
func (s *Service) afterWrite(ctx context.Context, rec *identity.Record, ingested artifact.Result, moved map[string]int, action string) {
	for status, n := range moved {
		s.metrics.ReissueRequests.WithLabelValues(status).Add(float64(n))
	}
	s.metrics.IncrementArtifacts("document", len(ingested.Documents))
	s.metrics.IncrementArtifacts("biometric", len(ingested.Biometrics))
	if err := s.events.Emit(ctx, audit.Event{
		Action:           action,
		HashedIdentifier: rec.HashedIdentifier,
		RecordRefID:      rec.RefID,
		Status:           rec.Status,
	}); err != nil {
		s.logger.WarnContext(ctx, "emit trail event", "error", err)
	}
}

func decodePayload(raw json.RawMessage) (*jsontree.Value, error) {
	if len(raw) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidInput, "identity payload is required").WithPath("identity")
	}
	payload, err := jsontree.Decode(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInvalidInput, "identity payload is not valid JSON", err).
			WithPath("identity")
	}
	if payload.Kind() != jsontree.Object {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidInput, "identity payload must be a JSON object").
			WithPath("identity")
	}
	return payload, nil
}

func viewOf(rec *identity.Record) *View {
	return &View{
		RefID:          rec.RefID,
		Status:         rec.Status,
		RegistrationID: rec.RegistrationID,
		Identity:       json.RawMessage(rec.Payload),
		Documents:      rec.Documents,
		Biometrics:     rec.Biometrics,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
		Version:        rec.Version,
	}
}
