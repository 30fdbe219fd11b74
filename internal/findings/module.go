// Package findings tracks security findings recorded during task execution.
// Findings sit alongside the delivery timeline and never gate it.
package findings

import (
	"assessportal/internal/events"
	"assessportal/internal/findings/handler"
	"assessportal/internal/findings/repository"
	"assessportal/internal/findings/service"
	apphttp "assessportal/internal/http"
	"assessportal/platform/logger"
	"assessportal/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the findings domain module
type Module struct {
	handler *handler.Handler
	Service *service.Service
}

// NewModule creates a new findings module with all dependencies wired
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
	return "findings"
}

// RegisterRoutes registers the module's routes
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/findings"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
