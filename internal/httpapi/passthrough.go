package httpapi

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"evalplatform/internal/apierrors"
	"evalplatform/internal/core"
	"evalplatform/internal/dsl"
)

// EnvironmentMiddleware resolves :envId, opens a tenant session for the
// lifetime of the request, and stores the transaction on the Gin
// context under "tx" so downstream handlers under the /api/env/:envId
// prefix read and write the tenant schema directly. It commits on a
// clean handler chain and rolls back if any handler recorded a gin
// error, mirroring the teacher's IsolationMiddleware role without the
// teacher's own tenant-id-from-header scheme — here the tenant comes
// from the URL, not a header, since callers address a specific
// environment rather than "the current tenant".
func EnvironmentMiddleware(svc *core.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		envID, err := uuid.Parse(c.Param("envId"))
		if err != nil {
			fail(c, apierrors.BadRequest("invalid environment id"))
			return
		}

		txErr := svc.Router.WithTenant(c.Request.Context(), envID, func(ctx context.Context, tx pgx.Tx) error {
			c.Set("tx", tx)
			c.Set("ctx", ctx)
			c.Set("envId", envID)
			c.Next()
			if len(c.Errors) > 0 {
				return c.Errors.Last().Err
			}
			return nil
		})
		if txErr != nil && !c.IsAborted() {
			fail(c, txErr)
		}
	}
}

func txFrom(c *gin.Context) pgx.Tx  { return c.MustGet("tx").(pgx.Tx) }
func ctxFrom(c *gin.Context) context.Context { return c.MustGet("ctx").(context.Context) }

// TenantTableHandler is a minimal generic read/write surface over the
// tenant schema, standing in for the service-specific handlers the
// original platform's emulated backends expose. It is addressed by
// table name rather than a domain-specific route, deliberately: this
// platform's job is to isolate and diff an arbitrary service's schema,
// not to reimplement that service.
type TenantTableHandler struct{}

func NewTenantTableHandler() *TenantTableHandler { return &TenantTableHandler{} }

// List handles GET /api/env/:envId/tables/:table.
func (h *TenantTableHandler) List(c *gin.Context) {
	table := c.Param("table")
	tx, ctx := txFrom(c), ctxFrom(c)

	rows, err := tx.Query(ctx, fmt.Sprintf(`SELECT * FROM %q`, table))
	if err != nil {
		c.Error(apierrors.BadRequest(fmt.Sprintf("query table %s: %v", table, err)))
		return
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []map[string]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			c.Error(apierrors.Internal(err.Error()))
			return
		}
		row := make(map[string]any, len(fields))
		for i, f := range fields {
			row[string(f.Name)] = dsl.FromAny(vals[i]).Raw()
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		c.Error(apierrors.Internal(err.Error()))
		return
	}
	c.JSON(200, gin.H{"table": table, "rows": out})
}

// Insert handles POST /api/env/:envId/tables/:table. The JSON body's
// top-level keys are bound positionally as column=value pairs; this is
// intentionally permissive since the tenant schema's shape is whatever
// the template defined, not something this platform's Go types know
// about ahead of time.
func (h *TenantTableHandler) Insert(c *gin.Context) {
	table := c.Param("table")
	tx, ctx := txFrom(c), ctxFrom(c)

	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		c.Error(apierrors.BadRequest(err.Error()))
		return
	}
	if len(body) == 0 {
		c.Error(apierrors.BadRequest("request body must be a non-empty JSON object"))
		return
	}

	cols := make([]string, 0, len(body))
	placeholders := make([]string, 0, len(body))
	args := make([]any, 0, len(body))
	i := 1
	for col, val := range body {
		cols = append(cols, fmt.Sprintf("%q", col))
		placeholders = append(placeholders, fmt.Sprintf("$%d", i))
		args = append(args, val)
		i++
	}

	sql := fmt.Sprintf(`INSERT INTO %q (%s) VALUES (%s)`, table, joinComma(cols), joinComma(placeholders))
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		c.Error(apierrors.BadRequest(fmt.Sprintf("insert into %s: %v", table, err)))
		return
	}
	c.JSON(201, gin.H{"table": table, "inserted": true})
}

func joinComma(items []string) string {
	out := ""
	for i, item := range items {
		if i > 0 {
			out += ", "
		}
		out += item
	}
	return out
}
