package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"aidreg/internal/recipient/handler/mocks"
	"aidreg/internal/recipient/models"
	"aidreg/internal/recipient/service"
	id "aidreg/pkg/domain"
	dErrors "aidreg/pkg/domain-errors"
	"aidreg/pkg/testutil"
)

const (
	admin    = "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM"
	newAdmin = "ST2CY5V39NHDPWSXMW9QDT3HC3GD6Q6XX4CFRK9AG"
)

type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	router  http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	r := chi.NewRouter()
	New(s.service, logger).Register(r)
	s.router = r
}

func (s *HandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *HandlerSuite) do(req *http.Request) *httptest.ResponseRecorder {
	return testutil.DoRequest(s.router, testutil.WithCaller(req, admin))
}

func (s *HandlerSuite) TestRegister() {
	body := RegisterRequest{ID: "recipient-001", Name: "John Doe", Location: "Refugee Camp A", NeedsAssessment: "Needs food and shelter"}

	s.Run("created", func() {
		s.service.EXPECT().Register(gomock.Any(), id.Principal(admin), service.RegisterCommand{
			ID: "recipient-001", Name: "John Doe", Location: "Refugee Camp A", NeedsAssessment: "Needs food and shelter",
		}).Return(nil)

		rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/recipients", body))
		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		testutil.AssertOK(s.T(), rr, true)
	})

	s.Run("duplicate renders err 100", func() {
		s.service.EXPECT().Register(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(dErrors.New(dErrors.CodeConflict, "recipient id already registered"))

		rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/recipients", body))
		testutil.AssertStatus(s.T(), rr, http.StatusConflict)
		testutil.AssertResultCode(s.T(), rr, models.ResultDuplicateID)
	})

	s.Run("unauthorized renders err 403", func() {
		s.service.EXPECT().Register(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(dErrors.New(dErrors.CodeForbidden, "caller is not the registry admin"))

		rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/recipients", body))
		testutil.AssertStatus(s.T(), rr, http.StatusForbidden)
		testutil.AssertResultCode(s.T(), rr, models.ResultUnauthorized)
	})

	s.Run("oversized fields from a non-admin still render err 403", func() {
		long := body
		long.NeedsAssessment = strings.Repeat("x", models.MaxNeedsAssessmentLength+1)
		long.ID = strings.Repeat("r", id.MaxRecipientIDLength+1)
		s.service.EXPECT().Register(gomock.Any(), id.Principal(admin), service.RegisterCommand{
			ID:              id.RecipientID(long.ID),
			Name:            long.Name,
			Location:        long.Location,
			NeedsAssessment: long.NeedsAssessment,
		}).Return(dErrors.New(dErrors.CodeForbidden, "caller is not the registry admin"))

		rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/recipients", long))
		testutil.AssertStatus(s.T(), rr, http.StatusForbidden)
		testutil.AssertResultCode(s.T(), rr, models.ResultUnauthorized)
	})

	s.Run("blank id is trimmed and left to the service", func() {
		noID := body
		noID.ID = "  "
		s.service.EXPECT().Register(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, _ id.Principal, cmd service.RegisterCommand) error {
				s.Empty(cmd.ID)
				return dErrors.New(dErrors.CodeValidation, "recipient id must be 1 to 64 printable bytes")
			})

		rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/recipients", noID))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("unknown fields are rejected", func() {
		rr := s.do(testutil.NewRequestWithBody(s.T(), http.MethodPost, "/recipients", `{"id":"x","admin":"me"}`))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})
}

func (s *HandlerSuite) TestVerify() {
	s.Run("ok", func() {
		s.service.EXPECT().Verify(gomock.Any(), id.Principal(admin), id.RecipientID("recipient-001")).Return(nil)
		rr := s.do(testutil.NewRequest(s.T(), http.MethodPost, "/recipients/recipient-001/verify"))
		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertOK(s.T(), rr, true)
	})

	s.Run("not found renders err 404", func() {
		s.service.EXPECT().Verify(gomock.Any(), gomock.Any(), id.RecipientID("missing")).
			Return(dErrors.New(dErrors.CodeNotFound, "recipient not found"))
		rr := s.do(testutil.NewRequest(s.T(), http.MethodPost, "/recipients/missing/verify"))
		testutil.AssertStatus(s.T(), rr, http.StatusNotFound)
		testutil.AssertResultCode(s.T(), rr, models.ResultNotFound)
	})
}

func (s *HandlerSuite) TestIsVerified() {
	s.service.EXPECT().IsVerified(gomock.Any(), id.RecipientID("recipient-001")).Return(true, nil)
	rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/recipients/recipient-001/verified"))
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertOK(s.T(), rr, true)

	s.service.EXPECT().IsVerified(gomock.Any(), id.RecipientID("missing")).
		Return(false, dErrors.New(dErrors.CodeNotFound, "recipient not found"))
	rr = s.do(testutil.NewRequest(s.T(), http.MethodGet, "/recipients/missing/verified"))
	testutil.AssertResultCode(s.T(), rr, models.ResultNotFound)

	tooLong := strings.Repeat("r", id.MaxRecipientIDLength+1)
	s.service.EXPECT().IsVerified(gomock.Any(), id.RecipientID(tooLong)).
		Return(false, dErrors.New(dErrors.CodeNotFound, "recipient not found"))
	rr = s.do(testutil.NewRequest(s.T(), http.MethodGet, "/recipients/"+tooLong+"/verified"))
	testutil.AssertStatus(s.T(), rr, http.StatusNotFound)
	testutil.AssertResultCode(s.T(), rr, models.ResultNotFound)
}

func (s *HandlerSuite) TestGetDetails() {
	s.Run("present", func() {
		rec := &models.Recipient{ID: "recipient-001", Name: "John Doe", LastVerified: 100, RegisteredAt: time.Now()}
		s.service.EXPECT().GetDetails(gomock.Any(), id.RecipientID("recipient-001")).Return(rec, true, nil)

		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/recipients/recipient-001"))
		testutil.AssertStatusOK(s.T(), rr)
		resp := testutil.UnmarshalResponse[RecipientDetailsResponse](s.T(), rr)
		s.Require().NotNil(resp.Recipient)
		s.Equal("John Doe", resp.Recipient.Name)
		s.False(resp.Recipient.Verified)
		s.Equal(uint64(100), resp.Recipient.LastVerified)
	})

	s.Run("absent is a null recipient", func() {
		s.service.EXPECT().GetDetails(gomock.Any(), id.RecipientID("missing")).Return(nil, false, nil)

		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/recipients/missing"))
		testutil.AssertStatusOK(s.T(), rr)
		s.JSONEq(`{"recipient":null}`, rr.Body.String())
	})

	s.Run("over-long id reaches the service and reads as absent", func() {
		tooLong := strings.Repeat("r", id.MaxRecipientIDLength+1)
		s.service.EXPECT().GetDetails(gomock.Any(), id.RecipientID(tooLong)).Return(nil, false, nil)

		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/recipients/"+tooLong))
		testutil.AssertStatusOK(s.T(), rr)
		s.JSONEq(`{"recipient":null}`, rr.Body.String())
	})

	s.Run("backend failure does not leak details", func() {
		s.service.EXPECT().GetDetails(gomock.Any(), gomock.Any()).
			Return(nil, false, dErrors.Wrap(errors.New("dial tcp"), dErrors.CodeInternal, "failed to load recipient"))

		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/recipients/recipient-001"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusInternalServerError, "internal_error")
	})
}

func (s *HandlerSuite) TestList() {
	s.Run("parses query", func() {
		verified := true
		s.service.EXPECT().List(gomock.Any(), models.ListQuery{After: "r-1", Limit: 2, Verified: &verified}).
			Return(&models.RecipientPage{
				Recipients: []*models.Recipient{{ID: "r-2", Verified: true}, {ID: "r-3", Verified: true}},
				NextAfter:  "r-3",
			}, nil)

		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/recipients?after=r-1&limit=2&verified=true"))
		testutil.AssertStatusOK(s.T(), rr)
		resp := testutil.UnmarshalResponse[RecipientListResponse](s.T(), rr)
		s.Len(resp.Recipients, 2)
		s.Equal("r-3", resp.NextAfter)
	})

	s.Run("rejects bad query values", func() {
		for _, q := range []string{"limit=0", "limit=201", "limit=abc", "verified=maybe"} {
			rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/recipients?"+q))
			testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
		}
	})
}

func (s *HandlerSuite) TestVerificationStatuses() {
	s.service.EXPECT().VerificationStatuses(gomock.Any(), []id.RecipientID{"a", "b"}).
		Return(map[id.RecipientID]bool{"a": true}, nil)

	rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/recipients/verified", VerificationStatusesRequest{IDs: []string{"a", "b"}}))
	testutil.AssertStatusOK(s.T(), rr)
	s.JSONEq(`{"results":{"a":{"ok":true},"b":{"err":404}}}`, rr.Body.String())

	s.service.EXPECT().VerificationStatuses(gomock.Any(), []id.RecipientID{"a", "b"}).
		Return(map[id.RecipientID]bool{}, nil)
	rr = s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/recipients/verified", VerificationStatusesRequest{IDs: []string{" a", "a", "", "b "}}))
	testutil.AssertStatusOK(s.T(), rr)
	s.JSONEq(`{"results":{"a":{"err":404},"b":{"err":404}}}`, rr.Body.String())

	rr = s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/recipients/verified", VerificationStatusesRequest{}))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
}

func (s *HandlerSuite) TestAdmin() {
	s.Run("transfer", func() {
		s.service.EXPECT().TransferAdmin(gomock.Any(), id.Principal(admin), id.Principal(newAdmin)).Return(nil)
		rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/admin/transfer", TransferAdminRequest{NewAdmin: newAdmin}))
		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertOK(s.T(), rr, true)
	})

	s.Run("non-admin gets err 403 whatever new_admin holds", func() {
		s.service.EXPECT().TransferAdmin(gomock.Any(), id.Principal(admin), id.Principal("")).
			Return(dErrors.New(dErrors.CodeForbidden, "caller is not the registry admin"))
		rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/admin/transfer", TransferAdminRequest{}))
		testutil.AssertStatus(s.T(), rr, http.StatusForbidden)
		testutil.AssertResultCode(s.T(), rr, models.ResultUnauthorized)
	})

	s.Run("read", func() {
		s.service.EXPECT().Admin(gomock.Any()).Return(id.Principal(admin), nil)
		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/admin"))
		testutil.AssertStatusOK(s.T(), rr)
		s.JSONEq(`{"admin":"`+admin+`"}`, rr.Body.String())
	})
}
