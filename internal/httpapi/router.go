package httpapi

import (
	"github.com/gin-gonic/gin"

	"evalplatform/internal/auth"
	"evalplatform/internal/core"
)

// NewRouter builds the Gin engine with the mandated middleware order:
// auth first (resolves the principal for every route), then — only for
// the /api/env/:envId passthrough group — the environment-resolution
// middleware that opens the tenant session for the request's duration.
func NewRouter(svc *core.Services) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(auth.Middleware(svc.Config))

	router.GET("/health", func(c *gin.Context) {
		status := svc.Pool.HealthCheck(c.Request.Context())
		code := 200
		if !status.Healthy {
			code = 503
		}
		c.JSON(code, status)
	})

	templates := NewTemplateHandler(svc)
	environments := NewEnvironmentHandler(svc)
	runs := NewRunHandler(svc)
	suites := NewSuiteHandler(svc)
	tests := NewTestHandler(svc)
	tables := NewTenantTableHandler()

	v1 := router.Group("/api/v1")
	{
		v1.POST("/templates", templates.Register)
		v1.GET("/templates", templates.List)
		v1.POST("/environments", environments.Create)
		v1.GET("/environments/:id", environments.Get)
		v1.POST("/runs/start", runs.Start)
		v1.POST("/runs/:id/end", runs.End)
		v1.GET("/runs/:id", runs.Get)
		v1.POST("/suites", suites.Create)
		v1.POST("/tests", tests.Create)
	}

	env := router.Group("/api/env/:envId")
	env.Use(EnvironmentMiddleware(svc))
	{
		env.GET("/tables/:table", tables.List)
		env.POST("/tables/:table", tables.Insert)
	}

	return router
}
