package credential_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"idregistry/internal/credential"
	"idregistry/internal/credential/mocks"
	"idregistry/pkg/requestcontext"
)

const (
	testPartner = "online-verification-partner"
	activated   = "ACTIVATED"
	hashedID    = "42_abcdef"
	encryptedID = "42_1234567890123_encrypt-salt"
)

type TriggerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	store   *mocks.MockStore
	trigger *credential.Trigger
	ctx     context.Context
}

func TestTriggerSuite(t *testing.T) {
	suite.Run(t, new(TriggerSuite))
}

func (s *TriggerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = mocks.NewMockStore(s.ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.trigger = credential.NewTrigger(s.store, testPartner, activated, logger)
	s.ctx = requestcontext.WithActor(context.Background(), "registry-processor")
	s.ctx = requestcontext.WithTime(s.ctx, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
}

func (s *TriggerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *TriggerSuite) TestActiveRecordWithoutRequestsRaisesNew() {
	s.store.EXPECT().ListByRecord(gomock.Any(), hashedID).Return(nil, nil)
	s.store.EXPECT().Save(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req credential.ReissueRequest) error {
			s.Equal(credential.StatusNew, req.Status)
			s.Equal(testPartner, req.PartnerID)
			s.Equal(hashedID, req.HashedIdentifier)
			s.Equal(encryptedID, req.EncryptedIdentifier,
				"the raised request carries the encrypted reference for the partner")
			s.Nil(req.Expiry, "a fresh request carries no expiry")
			s.NotEmpty(req.ID)
			s.Equal("registry-processor", req.CreatedBy)
			return nil
		})

	moved, err := s.trigger.Sync(s.ctx, hashedID, encryptedID, activated)
	s.Require().NoError(err)
	s.Equal(map[string]int{credential.StatusNew: 1}, moved)
}

func (s *TriggerSuite) TestActiveRecordWithRequestsMovesAllToNew() {
	existing := []credential.ReissueRequest{
		{ID: "req-1", HashedIdentifier: hashedID, Status: credential.StatusIssued},
		{ID: "req-2", HashedIdentifier: hashedID, Status: credential.StatusDeleted},
	}
	s.store.EXPECT().ListByRecord(gomock.Any(), hashedID).Return(existing, nil)
	for range existing {
		s.store.EXPECT().Save(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, req credential.ReissueRequest) error {
				s.Equal(credential.StatusNew, req.Status)
				return nil
			})
	}

	moved, err := s.trigger.Sync(s.ctx, hashedID, encryptedID, activated)
	s.Require().NoError(err)
	s.Equal(map[string]int{credential.StatusNew: 2}, moved)
}

func (s *TriggerSuite) TestInactiveRecordWithRequestsMovesAllToDeleted() {
	existing := []credential.ReissueRequest{
		{ID: "req-1", HashedIdentifier: hashedID, Status: credential.StatusNew},
	}
	s.store.EXPECT().ListByRecord(gomock.Any(), hashedID).Return(existing, nil)
	s.store.EXPECT().Save(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req credential.ReissueRequest) error {
			s.Equal(credential.StatusDeleted, req.Status)
			s.Equal("req-1", req.ID)
			return nil
		})

	moved, err := s.trigger.Sync(s.ctx, hashedID, encryptedID, "BLOCKED")
	s.Require().NoError(err)
	s.Equal(map[string]int{credential.StatusDeleted: 1}, moved)
}

func (s *TriggerSuite) TestInactiveRecordWithoutRequestsIsNoOp() {
	s.store.EXPECT().ListByRecord(gomock.Any(), hashedID).Return(nil, nil)

	moved, err := s.trigger.Sync(s.ctx, hashedID, encryptedID, "BLOCKED")
	s.Require().NoError(err)
	s.Empty(moved)
}

func (s *TriggerSuite) TestListFailurePropagates() {
	s.store.EXPECT().ListByRecord(gomock.Any(), hashedID).Return(nil, context.DeadlineExceeded)

	_, err := s.trigger.Sync(s.ctx, hashedID, encryptedID, activated)
	s.Require().Error(err)
	s.ErrorIs(err, context.DeadlineExceeded)
}
