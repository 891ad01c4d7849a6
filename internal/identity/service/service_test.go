package service_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"idregistry/internal/audit"
	"idregistry/internal/biometric"
	"idregistry/internal/blob"
	"idregistry/internal/credential"
	"idregistry/internal/identity"
	"idregistry/internal/identity/artifact"
	"idregistry/internal/identity/lock"
	"idregistry/internal/identity/metrics"
	"idregistry/internal/identity/service"
	"idregistry/internal/identity/shard"
	identitystore "idregistry/internal/identity/store"
	"idregistry/internal/security"
	pkgerrors "idregistry/pkg/errors"
	"idregistry/pkg/requestcontext"
)

const (
	activated  = "ACTIVATED"
	identifier = "1234567890123"
	partner    = "online-verification-partner"
)

// Prometheus collectors register globally, so the suite shares one set.
var testMetrics = metrics.New()

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	svc     *service.Service
	records *identitystore.Memory
	blobs   *blob.MemoryStore
	creds   *credential.MemoryStore
	trail   *audit.MemoryStore
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	salts := identitystore.NewSaltMemory()
	for i := int64(0); i < 10; i++ {
		salts.Seed(i, shard.PurposeHash, "hash-salt")
		salts.Seed(i, shard.PurposeEncrypt, "encrypt-salt")
	}

	hasher := security.Hasher{}
	s.records = identitystore.NewMemory()
	s.blobs = blob.NewMemoryStore()
	s.creds = credential.NewMemoryStore()
	s.trail = audit.NewMemoryStore()

	s.svc = service.New(
		s.records,
		shard.NewAddresser(10, salts, hasher),
		artifact.NewIngestor(s.blobs, biometric.NewCodec(), hasher, []string{"individualBiometrics"}),
		credential.NewTrigger(s.creds, partner, activated, logger),
		lock.NewKeyed(),
		audit.NewService(s.trail),
		testMetrics,
		logger,
		activated,
	)

	ctx := requestcontext.WithActor(context.Background(), "registry-processor")
	s.ctx = requestcontext.WithTime(ctx, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
}

func (s *ServiceSuite) createRequest() identity.Request {
	return identity.Request{
		Identifier:     identifier,
		RegistrationID: "reg-0001",
		Identity: json.RawMessage(`{
			"fullName":[{"language":"eng","value":"Ann"}],
			"dob":"1990/01/01"
		}`),
	}
}

func (s *ServiceSuite) TestCreateRegistersRecord() {
	view, err := s.svc.Create(s.ctx, s.createRequest())
	s.Require().NoError(err)

	s.NotEmpty(view.RefID)
	s.Equal(activated, view.Status, "create defaults to the active status")
	s.Equal(int64(1), view.Version)

	history := s.records.History()
	s.Require().Len(history, 1, "create writes one history snapshot")
	s.Equal(view.RefID, history[0].RecordRefID)

	reqs, err := s.creds.ListByRecord(s.ctx, history[0].HashedIdentifier)
	s.Require().NoError(err)
	s.Require().Len(reqs, 1, "an active record raises one reissue request")
	s.Equal(credential.StatusNew, reqs[0].Status)
	s.Equal("3_"+identifier+"_encrypt-salt", reqs[0].EncryptedIdentifier,
		"the partner gets the encrypted reference, never the plaintext identifier")
	s.Nil(reqs[0].Expiry)

	events := s.trail.Events()
	s.Require().Len(events, 1)
	s.Equal(audit.ActionIdentityCreated, events[0].Action)
}

func (s *ServiceSuite) TestCreateDuplicateIsConflict() {
	_, err := s.svc.Create(s.ctx, s.createRequest())
	s.Require().NoError(err)

	_, err = s.svc.Create(s.ctx, s.createRequest())
	s.Require().Error(err)
	s.Equal(pkgerrors.CodeConflict, pkgerrors.CodeOf(err))
}

func (s *ServiceSuite) TestCreateRejectsMalformedPayload() {
	req := s.createRequest()
	req.Identity = json.RawMessage(`"just a string"`)

	_, err := s.svc.Create(s.ctx, req)
	s.Require().Error(err)
	s.Equal(pkgerrors.CodeInvalidInput, pkgerrors.CodeOf(err))
}

func (s *ServiceSuite) TestUpdateMergesPayload() {
	_, err := s.svc.Create(s.ctx, s.createRequest())
	s.Require().NoError(err)

	view, err := s.svc.Update(s.ctx, identity.Request{
		Identifier: identifier,
		Identity: json.RawMessage(`{
			"fullName":[{"language":"fra","value":"Anne"}],
			"email":"ann@example.org"
		}`),
	})
	s.Require().NoError(err)
	s.Equal(int64(2), view.Version)

	var payload struct {
		FullName []map[string]string `json:"fullName"`
		DOB      string              `json:"dob"`
		Email    string              `json:"email"`
	}
	s.Require().NoError(json.Unmarshal(view.Identity, &payload))
	s.Equal("1990/01/01", payload.DOB, "stored fields survive a partial update")
	s.Equal("ann@example.org", payload.Email)
	s.Len(payload.FullName, 2, "locale variants from both sides survive")

	s.Len(s.records.History(), 2)
}

func (s *ServiceSuite) TestUpdateUnknownIdentifierIsNotFound() {
	_, err := s.svc.Update(s.ctx, identity.Request{
		Identifier: "9999999999999",
		Identity:   json.RawMessage(`{"dob":"1990/01/01"}`),
	})
	s.Require().Error(err)
	s.Equal(pkgerrors.CodeRecordNotFound, pkgerrors.CodeOf(err))
}

func (s *ServiceSuite) TestUpdateNoOpStillAppendsHistory() {
	_, err := s.svc.Create(s.ctx, s.createRequest())
	s.Require().NoError(err)

	_, err = s.svc.Update(s.ctx, identity.Request{
		Identifier: identifier,
		Identity:   json.RawMessage(`{"dob":"1990/01/01"}`),
	})
	s.Require().NoError(err)

	s.Len(s.records.History(), 2, "history records the update even when nothing changed")
}

func (s *ServiceSuite) TestUpdateStatusChangeDeletesReissueRequests() {
	_, err := s.svc.Create(s.ctx, s.createRequest())
	s.Require().NoError(err)
	hashed := s.records.History()[0].HashedIdentifier

	_, err = s.svc.Update(s.ctx, identity.Request{
		Identifier: identifier,
		Status:     "BLOCKED",
		Identity:   json.RawMessage(`{"dob":"1990/01/01"}`),
	})
	s.Require().NoError(err)

	reqs, err := s.creds.ListByRecord(s.ctx, hashed)
	s.Require().NoError(err)
	s.Require().Len(reqs, 1)
	s.Equal(credential.StatusDeleted, reqs[0].Status)
}

func (s *ServiceSuite) TestUpdateRegistrationID() {
	_, err := s.svc.Create(s.ctx, s.createRequest())
	s.Require().NoError(err)

	view, err := s.svc.Update(s.ctx, identity.Request{
		Identifier:     identifier,
		RegistrationID: "reg-0002",
		Identity:       json.RawMessage(`{"dob":"1990/01/01"}`),
	})
	s.Require().NoError(err)
	s.Equal("reg-0002", view.RegistrationID)
}

func (s *ServiceSuite) TestUpdateIngestsDocuments() {
	_, err := s.svc.Create(s.ctx, s.createRequest())
	s.Require().NoError(err)

	view, err := s.svc.Update(s.ctx, identity.Request{
		Identifier: identifier,
		Identity: json.RawMessage(`{
			"proofOfAddress":{"value":"address-scan","format":"pdf","type":"RENTAL"}
		}`),
		Documents: []identity.Document{{
			Category: "proofOfAddress",
			Value:    base64.StdEncoding.EncodeToString([]byte("%PDF-fake")),
		}},
	})
	s.Require().NoError(err)

	s.Require().Len(view.Documents, 1)
	s.Equal("proofOfAddress", view.Documents[0].Category)
	s.Equal(1, s.blobs.Len(), "artifact bytes land in the blob store")
	s.Len(s.records.DocumentHistoryTrail(), 1)
}

func (s *ServiceSuite) TestDraftCreateSkipsHistoryAndReissue() {
	req := s.createRequest()
	req.Draft = true

	view, err := s.svc.Create(s.ctx, req)
	s.Require().NoError(err)

	s.Empty(s.records.History(), "drafts leave no history")
	reqs, err := s.creds.ListByRecord(s.ctx, "")
	s.Require().NoError(err)
	s.Empty(reqs)
	_ = view
}

func (s *ServiceSuite) TestRetrieve() {
	created, err := s.svc.Create(s.ctx, s.createRequest())
	s.Require().NoError(err)

	view, err := s.svc.Retrieve(s.ctx, identifier)
	s.Require().NoError(err)
	s.Equal(created.RefID, view.RefID)
	s.JSONEq(string(created.Identity), string(view.Identity))

	events := s.trail.Events()
	s.Require().Len(events, 2)
	s.Equal(audit.ActionIdentityRetrieved, events[1].Action)
}

func (s *ServiceSuite) TestConcurrentVersionConflict() {
	_, err := s.svc.Create(s.ctx, s.createRequest())
	s.Require().NoError(err)

	// Simulate a writer that loaded the record before another update
	// committed: bump the stored version behind the service's back.
	hashed := s.records.History()[0].HashedIdentifier
	rec, err := s.records.Get(s.ctx, hashed)
	s.Require().NoError(err)
	s.Require().NoError(s.records.Save(s.ctx, rec))

	stale := rec.Clone()
	stale.Version = 1
	err = s.records.Save(s.ctx, stale)
	s.Require().Error(err)
}
