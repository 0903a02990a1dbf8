package httpapi

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"evalplatform/internal/apierrors"
	"evalplatform/internal/auth"
	"evalplatform/internal/core"
	"evalplatform/internal/isolation"
	"evalplatform/internal/meta"
)

type EnvironmentHandler struct {
	svc *core.Services
}

func NewEnvironmentHandler(svc *core.Services) *EnvironmentHandler {
	return &EnvironmentHandler{svc: svc}
}

type createEnvironmentRequest struct {
	TemplateID        uuid.UUID  `json:"template_id" binding:"required"`
	TTLSeconds        int        `json:"ttl_seconds" binding:"required"`
	ImpersonateUserID *uuid.UUID `json:"impersonate_user_id"`
	ImpersonateEmail  *string    `json:"impersonate_email"`
}

// Create handles POST /api/v1/environments.
func (h *EnvironmentHandler) Create(c *gin.Context) {
	var req createEnvironmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apierrors.BadRequest(err.Error()))
		return
	}

	principal := auth.Principal(c)
	var handle *isolation.EnvironmentHandle
	err := h.svc.Router.WithMeta(c.Request.Context(), func(ctx context.Context, tx pgx.Tx) error {
		h2, err := isolation.CreateEnvironment(
			ctx, tx, req.TemplateID,
			time.Duration(req.TTLSeconds)*time.Second,
			principal.UserID, req.ImpersonateUserID, req.ImpersonateEmail,
		)
		if err != nil {
			return err
		}
		handle = h2
		return nil
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(201, handle)
}

// Get handles GET /api/v1/environments/:id.
func (h *EnvironmentHandler) Get(c *gin.Context) {
	envID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		fail(c, apierrors.BadRequest("invalid environment id"))
		return
	}

	var rte *meta.RuntimeEnvironment
	err = h.svc.Router.WithMeta(c.Request.Context(), func(ctx context.Context, tx pgx.Tx) error {
		r, err := meta.GetRuntimeEnvironment(ctx, tx, envID)
		if err != nil {
			return err
		}
		rte = r
		return nil
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(200, rte)
}
