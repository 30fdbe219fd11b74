// Package auth provides the authentication and account management module.
package auth

import (
	"assessportal/internal/auth/handler"
	"assessportal/internal/auth/repository"
	"assessportal/internal/auth/service"
	apphttp "assessportal/internal/http"
	"assessportal/platform/config"
	"assessportal/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the auth domain module
type Module struct {
	handler *handler.Handler
	svc     *service.Service
}

// NewModule creates a new auth module with all dependencies wired
func NewModule(pool *pgxpool.Pool, cfg config.AuthServiceConfig, val *validator.Validator) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, cfg)
	h := handler.New(svc, val)

	return &Module{handler: h, svc: svc}
}

// Service exposes the auth service for cross-module wiring.
func (m *Module) Service() *service.Service {
	return m.svc
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "auth"
}

// RegisterRoutes registers signin on the public group (behind the stricter
// auth rate limiter), profile routes on the protected group and account
// management under admin.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	public := ctx.V1.Group("/auth")
	public.Use(ctx.AuthRateLimiter.RateLimit())
	m.handler.RegisterPublicRoutes(public)

	protected := ctx.Protected.Group("/auth")
	m.handler.RegisterProtectedRoutes(protected)

	m.handler.RegisterAdminRoutes(ctx.Admin)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
