package httpapi

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"evalplatform/internal/apierrors"
	"evalplatform/internal/auth"
	"evalplatform/internal/core"
	"evalplatform/internal/meta"
)

// SuiteHandler and TestHandler share the same request/response shape as
// TemplateHandler closely enough to live in one file rather than two
// near-identical ones.
type SuiteHandler struct{ svc *core.Services }

func NewSuiteHandler(svc *core.Services) *SuiteHandler { return &SuiteHandler{svc: svc} }

type createSuiteRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Visibility  meta.Visibility `json:"visibility" binding:"required"`
}

// Create handles POST /api/v1/suites.
func (h *SuiteHandler) Create(c *gin.Context) {
	var req createSuiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apierrors.BadRequest(err.Error()))
		return
	}
	principal := auth.Principal(c)

	suite := meta.TestSuite{
		ID:          uuid.New(),
		Name:        req.Name,
		Description: req.Description,
		Owner:       principal.UserID,
		Visibility:  req.Visibility,
	}
	err := h.svc.Router.WithMeta(c.Request.Context(), func(ctx context.Context, tx pgx.Tx) error {
		return meta.InsertTestSuite(ctx, tx, suite)
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(201, suite)
}

type TestHandler struct{ svc *core.Services }

func NewTestHandler(svc *core.Services) *TestHandler { return &TestHandler{svc: svc} }

type createTestRequest struct {
	Name              string          `json:"name" binding:"required"`
	Prompt            string          `json:"prompt" binding:"required"`
	Type              meta.TestType   `json:"type" binding:"required"`
	ExpectedOutput    map[string]any  `json:"expected_output" binding:"required"`
	TemplateRef       uuid.UUID       `json:"template_ref" binding:"required"`
	ImpersonateUserID *uuid.UUID      `json:"impersonate_user_id"`
	TestSuiteID       *uuid.UUID      `json:"test_suite_id"`
}

// Create handles POST /api/v1/tests. When test_suite_id is present the
// new test is immediately linked via a test_memberships row.
func (h *TestHandler) Create(c *gin.Context) {
	var req createTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apierrors.BadRequest(err.Error()))
		return
	}
	principal := auth.Principal(c)

	test := meta.Test{
		ID:                uuid.New(),
		Name:              req.Name,
		Prompt:            req.Prompt,
		Type:              req.Type,
		ExpectedOutput:    req.ExpectedOutput,
		TemplateRef:       req.TemplateRef,
		ImpersonateUserID: req.ImpersonateUserID,
		Owner:             principal.UserID,
	}
	err := h.svc.Router.WithMeta(c.Request.Context(), func(ctx context.Context, tx pgx.Tx) error {
		if err := meta.InsertTest(ctx, tx, test); err != nil {
			return err
		}
		if req.TestSuiteID != nil {
			return meta.AddTestMembership(ctx, tx, meta.TestMembership{
				ID:          uuid.New(),
				TestID:      test.ID,
				TestSuiteID: *req.TestSuiteID,
			})
		}
		return nil
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(201, test)
}
