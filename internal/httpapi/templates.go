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

type TemplateHandler struct {
	svc *core.Services
}

func NewTemplateHandler(svc *core.Services) *TemplateHandler {
	return &TemplateHandler{svc: svc}
}

type registerTemplateRequest struct {
	Service     string            `json:"service" binding:"required"`
	OwnerScope  meta.OwnerScope   `json:"owner_scope" binding:"required"`
	OwnerOrgID  *uuid.UUID        `json:"owner_org_id"`
	OwnerUserID *uuid.UUID        `json:"owner_user_id"`
	Name        string            `json:"name" binding:"required"`
	Version     int               `json:"version" binding:"required"`
	Kind        meta.TemplateKind `json:"kind" binding:"required"`
	Location    string            `json:"location" binding:"required"`
	Description string            `json:"description"`
}

// Register handles POST /api/v1/templates.
func (h *TemplateHandler) Register(c *gin.Context) {
	var req registerTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apierrors.BadRequest(err.Error()))
		return
	}

	principal := auth.Principal(c)
	if req.OwnerScope == meta.ScopeOrg && req.OwnerOrgID == nil {
		req.OwnerOrgID = principal.OrgID
	}
	if req.OwnerScope == meta.ScopeUser && req.OwnerUserID == nil {
		req.OwnerUserID = &principal.UserID
	}

	tmpl := meta.Template{
		ID:          uuid.New(),
		Service:     req.Service,
		OwnerScope:  req.OwnerScope,
		OwnerOrgID:  req.OwnerOrgID,
		OwnerUserID: req.OwnerUserID,
		Name:        req.Name,
		Version:     req.Version,
		Kind:        req.Kind,
		Location:    req.Location,
		Description: req.Description,
	}

	err := h.svc.Router.WithMeta(c.Request.Context(), func(ctx context.Context, tx pgx.Tx) error {
		return meta.InsertTemplate(ctx, tx, tmpl)
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(201, tmpl)
}

// List handles GET /api/v1/templates, filtered by optional service and
// owner_scope query parameters and by the caller's visibility.
func (h *TemplateHandler) List(c *gin.Context) {
	service := c.Query("service")
	ownerScope := c.Query("owner_scope")
	principal := auth.Principal(c)

	var out []meta.Template
	err := h.svc.Router.WithMeta(c.Request.Context(), func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, service, owner_scope, owner_org_id, owner_user_id, name, version, kind, location, description, created_at
			FROM templates
			WHERE ($1 = '' OR service = $1)
			  AND ($4 = '' OR owner_scope = $4)
			  AND (owner_scope = 'public'
			       OR (owner_scope = 'org' AND owner_org_id = $2)
			       OR (owner_scope = 'user' AND owner_user_id = $3))
			ORDER BY service, name, version DESC
		`, service, principal.OrgID, principal.UserID, ownerScope)
		if err != nil {
			return apierrors.Internal(err.Error())
		}
		defer rows.Close()
		for rows.Next() {
			var t meta.Template
			if err := rows.Scan(&t.ID, &t.Service, &t.OwnerScope, &t.OwnerOrgID, &t.OwnerUserID, &t.Name, &t.Version, &t.Kind, &t.Location, &t.Description, &t.CreatedAt); err != nil {
				return apierrors.Internal(err.Error())
			}
			out = append(out, t)
		}
		return rows.Err()
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(200, gin.H{"templates": out})
}
