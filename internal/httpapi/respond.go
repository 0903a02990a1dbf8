// Package httpapi implements the Gin handlers for the meta/control plane
// and the tenant-scoped passthrough prefix. Grounded on
// services/deal-service/internal/handlers' gin.H-response style and
// cmd/server/main.go's setupRoutes grouping convention.
package httpapi

import (
	"github.com/gin-gonic/gin"

	"evalplatform/internal/apierrors"
)

// statusFor maps an apierrors.Kind to the HTTP status the boundary
// responds with, per the taxonomy's documented kind -> status table.
func statusFor(kind apierrors.Kind) int {
	switch kind {
	case apierrors.KindNotFound:
		return 404
	case apierrors.KindUnauthorized:
		return 401
	case apierrors.KindBadRequest:
		return 400
	case apierrors.KindConflict, apierrors.KindStateError:
		return 409
	default:
		return 500
	}
}

// fail writes a JSON error body and aborts, choosing the status from
// err's taxonomy kind.
func fail(c *gin.Context, err error) {
	c.JSON(statusFor(apierrors.KindOf(err)), gin.H{"error": err.Error()})
	c.Abort()
}
