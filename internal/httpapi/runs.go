package httpapi

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"evalplatform/internal/apierrors"
	"evalplatform/internal/auth"
	"evalplatform/internal/core"
	"evalplatform/internal/isolation"
	"evalplatform/internal/meta"
	"evalplatform/internal/run"
)

type RunHandler struct {
	svc *core.Services
}

func NewRunHandler(svc *core.Services) *RunHandler {
	return &RunHandler{svc: svc}
}

type startRunRequest struct {
	EnvironmentID uuid.UUID  `json:"environment_id" binding:"required"`
	TestID        uuid.UUID  `json:"test_id" binding:"required"`
	TestSuiteID   *uuid.UUID `json:"test_suite_id"`
}

// Start handles POST /api/v1/runs/start.
func (h *RunHandler) Start(c *gin.Context) {
	var req startRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apierrors.BadRequest(err.Error()))
		return
	}
	principal := auth.Principal(c)

	var result *run.StartResult
	err := h.svc.Router.WithTenant(c.Request.Context(), req.EnvironmentID, func(ctx context.Context, tx pgx.Tx) error {
		schemaName, err := isolation.GetSchemaForEnvironment(ctx, tx, req.EnvironmentID)
		if err != nil {
			return err
		}
		r, err := run.StartRun(ctx, tx, req.EnvironmentID, req.TestID, req.TestSuiteID, schemaName, principal)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(201, result)
}

// End handles POST /api/v1/runs/:id/end.
func (h *RunHandler) End(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		fail(c, apierrors.BadRequest("invalid run id"))
		return
	}
	principal := auth.Principal(c)

	var envID uuid.UUID
	err = h.svc.Router.WithMeta(c.Request.Context(), func(ctx context.Context, tx pgx.Tx) error {
		tr, err := meta.GetTestRun(ctx, tx, runID)
		if err != nil {
			return err
		}
		envID = tr.EnvironmentID
		return nil
	})
	if err != nil {
		fail(c, err)
		return
	}

	var result *run.EndResult
	err = h.svc.Router.WithTenant(c.Request.Context(), envID, func(ctx context.Context, tx pgx.Tx) error {
		schemaName, err := isolation.GetSchemaForEnvironment(ctx, tx, envID)
		if err != nil {
			return err
		}
		r, err := run.EndRun(ctx, tx, runID, schemaName, principal)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(200, result)
}

// Get handles GET /api/v1/runs/:id.
func (h *RunHandler) Get(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		fail(c, apierrors.BadRequest("invalid run id"))
		return
	}

	var tr *meta.TestRun
	err = h.svc.Router.WithMeta(c.Request.Context(), func(ctx context.Context, tx pgx.Tx) error {
		r, err := meta.GetTestRun(ctx, tx, runID)
		if err != nil {
			return err
		}
		tr = r
		return nil
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(200, tr)
}
