// Package isolation implements the Isolation Engine: the orchestration
// layer that turns a registered template into a fresh, disposable tenant
// schema and back again. It composes internal/schema (the DDL/data
// primitives) with internal/meta (the catalog) inside a single
// transaction supplied by internal/session, mirroring how
// services/deal-service/cmd/server wires its tenant provisioning path
// through one Executor rather than juggling a pool and a tx separately.
package isolation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"evalplatform/internal/apierrors"
	"evalplatform/internal/db"
	"evalplatform/internal/meta"
	"evalplatform/internal/schema"
)

// EnvironmentHandle is the public result of createEnvironment.
type EnvironmentHandle struct {
	EnvironmentID     uuid.UUID
	Schema            string
	ExpiresAt         time.Time
	ImpersonateUserID *uuid.UUID
	ImpersonateEmail  *string
}

// schemaName produces the platform's tenant schema naming convention,
// state_<32-hex>, from a fresh environment id with its dashes stripped.
func schemaName(envID uuid.UUID) string {
	return "state_" + strings.ReplaceAll(envID.String(), "-", "")
}

// CreateEnvironment runs the full createSchema -> cloneStructure ->
// cloneData -> bindRuntimeEnvironment pipeline against q, which callers
// are expected to supply as a single transaction (via session.Router) so
// any failure leaves no partially-populated tenant behind.
func CreateEnvironment(
	ctx context.Context,
	q db.Querier,
	templateID uuid.UUID,
	ttl time.Duration,
	createdBy uuid.UUID,
	impersonateUserID *uuid.UUID,
	impersonateEmail *string,
) (*EnvironmentHandle, error) {
	tmpl, err := meta.GetTemplate(ctx, q, templateID)
	if err != nil {
		if apierrors.Is(err, apierrors.KindNotFound) {
			return nil, apierrors.NotFound(fmt.Sprintf("template_schema_not_registered: %s", templateID))
		}
		return nil, err
	}
	exists, err := schema.Exists(ctx, q, tmpl.Location)
	if err != nil {
		if apierrors.Is(err, apierrors.KindBadRequest) {
			return nil, apierrors.BadRequest(fmt.Sprintf("template_location_unrecognized: %s", tmpl.Location))
		}
		return nil, err
	}
	if !exists {
		return nil, apierrors.NotFound(fmt.Sprintf("template_schema_not_registered: %s", tmpl.Location))
	}

	envID := uuid.New()
	target := schemaName(envID)

	if err := schema.Create(ctx, q, target); err != nil {
		return nil, err
	}
	if err := schema.CloneStructure(ctx, q, tmpl.Location, target); err != nil {
		return nil, err
	}
	if err := schema.CloneData(ctx, q, tmpl.Location, target); err != nil {
		return nil, err
	}

	expiresAt := time.Now().Add(ttl)
	rte := meta.RuntimeEnvironment{
		ID:                envID,
		TemplateID:        &templateID,
		Schema:            target,
		Status:            meta.StatusReady,
		ExpiresAt:         &expiresAt,
		LastUsedAt:        nil,
		CreatedBy:         createdBy,
		ImpersonateUserID: impersonateUserID,
		ImpersonateEmail:  impersonateEmail,
	}
	if err := meta.InsertRuntimeEnvironment(ctx, q, rte); err != nil {
		return nil, err
	}

	return &EnvironmentHandle{
		EnvironmentID:     envID,
		Schema:            target,
		ExpiresAt:         expiresAt,
		ImpersonateUserID: impersonateUserID,
		ImpersonateEmail:  impersonateEmail,
	}, nil
}

// GetSchemaForEnvironment is a plain catalog lookup, distinct from
// session.Router.WithTenant's ResolveAndTouch in that it does not
// require the environment to be ready and does not bump last_used_at.
func GetSchemaForEnvironment(ctx context.Context, q db.Querier, envID uuid.UUID) (string, error) {
	rte, err := meta.GetRuntimeEnvironment(ctx, q, envID)
	if err != nil {
		return "", err
	}
	return rte.Schema, nil
}

// CreateTemplateFromEnvironmentParams bundles createTemplateFromEnvironment's
// inputs; it has enough optional fields that positional arguments would
// be unreadable at call sites.
type CreateTemplateFromEnvironmentParams struct {
	EnvironmentID uuid.UUID
	Service       string
	Name          string
	Description   string
	OwnerScope    meta.OwnerScope
	OwnerUserID   *uuid.UUID
	OwnerOrgID    *uuid.UUID
	Version       int
	Caller        meta.Principal
}

// CreateTemplateFromEnvironment registers a live tenant's current schema
// as a new immutable template and retires the RTE that produced it. The
// schema is adopted as-is as the template's location: no further copy is
// made, so the environment that sourced the template must not be reused
// afterward (its status flips to deleted).
func CreateTemplateFromEnvironment(ctx context.Context, q db.Querier, p CreateTemplateFromEnvironmentParams) (*meta.Template, error) {
	if p.OwnerScope == meta.ScopeOrg && p.OwnerOrgID == nil {
		orgID, err := meta.SoleOrganization(ctx, q, p.Caller.UserID)
		if err != nil {
			return nil, err
		}
		p.OwnerOrgID = &orgID
	}

	rte, err := meta.GetRuntimeEnvironment(ctx, q, p.EnvironmentID)
	if err != nil {
		return nil, err
	}

	tmpl := meta.Template{
		ID:          uuid.New(),
		Service:     p.Service,
		OwnerScope:  p.OwnerScope,
		OwnerOrgID:  p.OwnerOrgID,
		OwnerUserID: p.OwnerUserID,
		Name:        p.Name,
		Version:     p.Version,
		Kind:        meta.KindSchemaDump,
		Location:    rte.Schema,
		Description: p.Description,
	}
	if err := meta.InsertTemplate(ctx, q, tmpl); err != nil {
		return nil, err
	}
	if err := meta.MarkEnvironmentStatus(ctx, q, p.EnvironmentID, meta.StatusDeleted); err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// DestroyEnvironment drops the tenant schema and marks the RTE deleted.
// dropSchema is idempotent, so this is safe to retry.
func DestroyEnvironment(ctx context.Context, q db.Querier, envID uuid.UUID) error {
	rte, err := meta.GetRuntimeEnvironment(ctx, q, envID)
	if err != nil {
		return err
	}
	if err := schema.Drop(ctx, q, rte.Schema); err != nil {
		return err
	}
	return meta.MarkEnvironmentStatus(ctx, q, envID, meta.StatusDeleted)
}
