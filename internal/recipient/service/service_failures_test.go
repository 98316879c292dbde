package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"aidreg/internal/recipient/models"
	"aidreg/internal/recipient/service/mocks"
	id "aidreg/pkg/domain"
	dErrors "aidreg/pkg/domain-errors"
	"aidreg/pkg/platform/audit"
	"aidreg/pkg/platform/sentinel"
)

// =============================================================================
// Store and publisher failure handling
// =============================================================================
// These cases need a store that fails on demand, which the in-memory backend
// cannot do, so the collaborators are mocked.

type FailureSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	recipients *mocks.MockRecipientStore
	admins     *mocks.MockAdminStore
	publisher  *mocks.MockAuditPublisher
	service    *Service
}

func TestFailureSuite(t *testing.T) {
	suite.Run(t, new(FailureSuite))
}

func (s *FailureSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.recipients = mocks.NewMockRecipientStore(s.ctrl)
	s.admins = mocks.NewMockAdminStore(s.ctrl)
	s.publisher = mocks.NewMockAuditPublisher(s.ctrl)
	s.service = New(s.recipients, s.admins, WithAuditPublisher(s.publisher))
}

func (s *FailureSuite) TearDownTest() {
	s.ctrl.Finish()
}

var (
	errBackend = errors.New("connection reset")
	fixedTime  = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
)

func (s *FailureSuite) TestAdminStoreFailureIsInternal() {
	ctx := context.Background()
	s.admins.EXPECT().Admin(gomock.Any()).Return(id.Principal(""), errBackend)

	err := s.service.Register(ctx, deployer, johnDoe())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.ErrorIs(err, errBackend)
}

func (s *FailureSuite) TestUninitializedAdminRejectsMutations() {
	ctx := context.Background()
	s.admins.EXPECT().Admin(gomock.Any()).Return(id.Principal(""), sentinel.ErrNotInitialized)

	err := s.service.TransferAdmin(ctx, deployer, successor)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *FailureSuite) TestCreateFailureIsNotReportedAsDuplicate() {
	ctx := context.Background()
	s.admins.EXPECT().Admin(gomock.Any()).Return(deployer, nil)
	s.recipients.EXPECT().CreateIfAbsent(gomock.Any(), gomock.Any()).Return(errBackend)

	err := s.service.Register(ctx, deployer, johnDoe())
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	_, ok := models.ResultCode(err)
	s.False(ok)
}

func (s *FailureSuite) TestStoreDuplicateMapsToConflict() {
	ctx := context.Background()
	s.admins.EXPECT().Admin(gomock.Any()).Return(deployer, nil)
	s.recipients.EXPECT().CreateIfAbsent(gomock.Any(), gomock.Any()).
		Return(errors.Join(errors.New("recipient-001"), sentinel.ErrAlreadyUsed))
	s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e audit.Event) error {
		s.Equal(string(audit.EventDuplicateRejected), e.Action)
		s.Equal(id.RecipientID("recipient-001"), e.RecipientID)
		return nil
	})

	err := s.service.Register(ctx, deployer, johnDoe())
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *FailureSuite) TestAuditFailureDoesNotFailTheOperation() {
	ctx := context.Background()
	s.admins.EXPECT().Admin(gomock.Any()).Return(deployer, nil)
	s.recipients.EXPECT().CreateIfAbsent(gomock.Any(), gomock.Any()).Return(nil)
	s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("kafka down"))

	s.NoError(s.service.Register(ctx, deployer, johnDoe()))
}

func (s *FailureSuite) TestVerifyUpdateRace() {
	ctx := context.Background()
	r, err := models.NewRecipient("recipient-001", "John Doe", "Camp", "Food", 1, fixedTime)
	s.Require().NoError(err)
	s.admins.EXPECT().Admin(gomock.Any()).Return(deployer, nil)
	s.recipients.EXPECT().FindByID(gomock.Any(), id.RecipientID("recipient-001")).Return(r, nil)
	s.recipients.EXPECT().Update(gomock.Any(), gomock.Any()).Return(sentinel.ErrNotFound)

	err = s.service.Verify(ctx, deployer, "recipient-001")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *FailureSuite) TestReadFailures() {
	ctx := context.Background()

	s.Run("getDetails surfaces backend errors", func() {
		s.recipients.EXPECT().FindByID(gomock.Any(), id.RecipientID("recipient-001")).Return(nil, errBackend)
		_, found, err := s.service.GetDetails(ctx, "recipient-001")
		s.False(found)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("statuses surface backend errors", func() {
		s.recipients.EXPECT().FindMany(gomock.Any(), []id.RecipientID{"a"}).Return(nil, errBackend)
		_, err := s.service.VerificationStatuses(ctx, []id.RecipientID{"a"})
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("list passes a normalized query", func() {
		s.recipients.EXPECT().List(gomock.Any(), models.ListQuery{Limit: models.DefaultPageSize}).
			Return(&models.RecipientPage{Recipients: []*models.Recipient{}}, nil)
		page, err := s.service.List(ctx, models.ListQuery{})
		s.Require().NoError(err)
		s.Empty(page.Recipients)
	})
}

func (s *FailureSuite) TestDeployRace() {
	ctx := context.Background()
	s.admins.EXPECT().Admin(gomock.Any()).Return(id.Principal(""), sentinel.ErrNotInitialized)
	s.admins.EXPECT().InitAdmin(gomock.Any(), outsider).Return(deployer, nil)

	admin, err := s.service.Deploy(ctx, outsider)
	s.Require().NoError(err)
	s.Equal(deployer, admin, "the stored admin wins")
}
