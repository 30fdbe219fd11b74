// Package workflow provides the assessment delivery workflow module: the
// stage pipeline, review checkpoints and the transition API.
package workflow

import (
	"assessportal/internal/adapters/storage"
	"assessportal/internal/events"
	"assessportal/internal/workflow/engine"
	"assessportal/internal/workflow/handler"
	"assessportal/internal/workflow/repository"
	"assessportal/internal/workflow/service"
	apphttp "assessportal/internal/http"
	"assessportal/platform/logger"
	"assessportal/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the workflow domain module
type Module struct {
	handler *handler.Handler
	Service *service.Service
}

// NewModule creates a new workflow module with all dependencies wired
func NewModule(pool *pgxpool.Pool, val *validator.Validator, eventBus events.Bus, storageSvc storage.StorageService, bucket string, log *logger.Logger) *Module {
	store := engine.NewStore()

	var repo service.TimelineRepository
	if pool != nil {
		repo = repository.New(pool)
	}

	svc := service.New(store, repo, eventBus, storageSvc, bucket, log)
	h := handler.New(svc, val)

	return &Module{
		handler: h,
		Service: svc,
	}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "workflow"
}

// RegisterRoutes registers the module's routes under /api/v1/timelines.
// Per-action authorization lives in the engine's gate checks.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	timelines := ctx.Protected.Group("/timelines")
	m.handler.RegisterRoutes(timelines)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
