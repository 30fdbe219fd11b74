// Package roster provides the client and service catalog plus the onboarding
// flow that opens new engagements.
package roster

import (
	"assessportal/internal/events"
	apphttp "assessportal/internal/http"
	"assessportal/internal/roster/handler"
	"assessportal/internal/roster/repository"
	"assessportal/internal/roster/service"
	"assessportal/platform/logger"
	"assessportal/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the roster domain module
type Module struct {
	handler *handler.Handler
	Service *service.Service
}

// NewModule creates a new roster module with all dependencies wired
func NewModule(pool *pgxpool.Pool, val *validator.Validator, eventBus events.Bus, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, eventBus, log)
	h := handler.New(svc, val)

	return &Module{
		handler: h,
		Service: svc,
	}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "roster"
}

// RegisterRoutes registers the module's routes
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/roster"))
	m.handler.RegisterAdminRoutes(ctx.Admin.Group("/roster"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
