package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"assessportal/internal/workflow/engine"
	"assessportal/internal/workflow/service"
	"assessportal/internal/workflow/transport"
	"assessportal/platform/httpkit"
	"assessportal/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Handler handles HTTP requests for workflow timelines
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new workflow handler
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes registers the timeline routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/progress", h.ProgressOverview)
	rg.GET("/:clientId/:serviceId", h.Get)
	rg.GET("/:clientId/:serviceId/approvals", h.ApprovalHistory)
	rg.POST("/:clientId/:serviceId/feedback", h.ClientFeedback)
	rg.POST("/:clientId/:serviceId/reassign", h.Reassign)

	stages := rg.Group("/:clientId/:serviceId/stages/:stageId")
	stages.POST("/start", h.StartStage)
	stages.POST("/complete", h.CompleteStage)
	stages.POST("/block", h.BlockStage)
	stages.POST("/progress", h.SetProgress)
	stages.POST("/submit", h.SubmitReport)
	stages.POST("/approve", h.Approve)
	stages.POST("/reject", h.Reject)
	stages.POST("/comments", h.AddComment)
	stages.POST("/attachments/presign", h.PresignAttachment)
	stages.POST("/attachments", h.RegisterAttachment)
	stages.GET("/attachments/:attachmentId/download", h.DownloadAttachment)
}

func actorFrom(identity httpkit.Identity) engine.Actor {
	return engine.Actor{
		ID:   identity.UserID(),
		Role: engine.Role(identity.Role()),
	}
}

// timelineKey parses the clientId/serviceId path pair. Aborts with 400 on a
// malformed UUID.
func timelineKey(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	clientID, err := uuid.Parse(c.Param("clientId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid client ID", nil)
		return uuid.UUID{}, uuid.UUID{}, false
	}
	serviceID, err := uuid.Parse(c.Param("serviceId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid service ID", nil)
		return uuid.UUID{}, uuid.UUID{}, false
	}
	return clientID, serviceID, true
}

func stageID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("stageId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid stage ID", nil)
		return 0, false
	}
	return id, true
}

// Create handles POST /api/v1/timelines. Timelines are normally created by
// the roster onboarding event; the direct endpoint is for operators.
func (h *Handler) Create(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	if identity.Role() != "admin" && identity.Role() != "manager" {
		httpkit.Error(c, http.StatusForbidden, "insufficient role", nil)
		return
	}

	var req transport.CreateTimelineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	t, err := h.svc.CreateTimeline(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, t)
}

// List handles GET /api/v1/timelines
func (h *Handler) List(c *gin.Context) {
	var req transport.ListTimelinesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.List(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// ProgressOverview handles GET /api/v1/timelines/progress
func (h *Handler) ProgressOverview(c *gin.Context) {
	httpkit.OK(c, h.svc.ProgressOverview(c.Request.Context()))
}

// Get handles GET /api/v1/timelines/:clientId/:serviceId
func (h *Handler) Get(c *gin.Context) {
	clientID, serviceID, ok := timelineKey(c)
	if !ok {
		return
	}

	t, err := h.svc.Get(c.Request.Context(), clientID, serviceID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, t)
}

// ApprovalHistory handles GET /api/v1/timelines/:clientId/:serviceId/approvals
func (h *Handler) ApprovalHistory(c *gin.Context) {
	clientID, serviceID, ok := timelineKey(c)
	if !ok {
		return
	}

	history, err := h.svc.ApprovalHistory(c.Request.Context(), clientID, serviceID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, history)
}

// StartStage handles POST .../stages/:stageId/start
func (h *Handler) StartStage(c *gin.Context) {
	clientID, serviceID, ok := timelineKey(c)
	if !ok {
		return
	}
	stage, ok := stageID(c)
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req transport.StartStageRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}

	resp, err := h.svc.StartStage(c.Request.Context(), clientID, serviceID, stage, actorFrom(identity), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

// CompleteStage handles POST .../stages/:stageId/complete
func (h *Handler) CompleteStage(c *gin.Context) {
	clientID, serviceID, ok := timelineKey(c)
	if !ok {
		return
	}
	stage, ok := stageID(c)
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req transport.CompleteStageRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}

	resp, err := h.svc.CompleteStage(c.Request.Context(), clientID, serviceID, stage, actorFrom(identity), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

// BlockStage handles POST .../stages/:stageId/block
func (h *Handler) BlockStage(c *gin.Context) {
	clientID, serviceID, ok := timelineKey(c)
	if !ok {
		return
	}
	stage, ok := stageID(c)
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req transport.ExceptionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}

	resp, err := h.svc.BlockStage(c.Request.Context(), clientID, serviceID, stage, actorFrom(identity), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

// SetProgress handles POST .../stages/:stageId/progress
func (h *Handler) SetProgress(c *gin.Context) {
	clientID, serviceID, ok := timelineKey(c)
	if !ok {
		return
	}
	stage, ok := stageID(c)
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req transport.SetProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	resp, err := h.svc.SetProgress(c.Request.Context(), clientID, serviceID, stage, actorFrom(identity), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

// SubmitReport handles POST .../stages/:stageId/submit
func (h *Handler) SubmitReport(c *gin.Context) {
	clientID, serviceID, ok := timelineKey(c)
	if !ok {
		return
	}
	stage, ok := stageID(c)
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req transport.SubmitReportRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}

	resp, err := h.svc.SubmitReport(c.Request.Context(), clientID, serviceID, stage, actorFrom(identity), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

// Approve handles POST .../stages/:stageId/approve
func (h *Handler) Approve(c *gin.Context) {
	clientID, serviceID, ok := timelineKey(c)
	if !ok {
		return
	}
	stage, ok := stageID(c)
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req transport.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}

	resp, err := h.svc.Approve(c.Request.Context(), clientID, serviceID, stage, actorFrom(identity), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

// Reject handles POST .../stages/:stageId/reject
func (h *Handler) Reject(c *gin.Context) {
	clientID, serviceID, ok := timelineKey(c)
	if !ok {
		return
	}
	stage, ok := stageID(c)
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req transport.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}

	resp, err := h.svc.Reject(c.Request.Context(), clientID, serviceID, stage, actorFrom(identity), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

// ClientFeedback handles POST /api/v1/timelines/:clientId/:serviceId/feedback
func (h *Handler) ClientFeedback(c *gin.Context) {
	clientID, serviceID, ok := timelineKey(c)
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req transport.ClientFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	resp, err := h.svc.ClientFeedback(c.Request.Context(), clientID, serviceID, actorFrom(identity), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

// Reassign handles POST /api/v1/timelines/:clientId/:serviceId/reassign
func (h *Handler) Reassign(c *gin.Context) {
	clientID, serviceID, ok := timelineKey(c)
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req transport.ReassignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	resp, err := h.svc.Reassign(c.Request.Context(), clientID, serviceID, actorFrom(identity), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

// AddComment handles POST .../stages/:stageId/comments
func (h *Handler) AddComment(c *gin.Context) {
	clientID, serviceID, ok := timelineKey(c)
	if !ok {
		return
	}
	stage, ok := stageID(c)
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req transport.AddCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	resp, err := h.svc.AddComment(c.Request.Context(), clientID, serviceID, stage, actorFrom(identity), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

// PresignAttachment handles POST .../stages/:stageId/attachments/presign
func (h *Handler) PresignAttachment(c *gin.Context) {
	clientID, serviceID, ok := timelineKey(c)
	if !ok {
		return
	}
	stage, ok := stageID(c)
	if !ok {
		return
	}

	var req transport.PresignUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	ticket, err := h.svc.PresignAttachmentUpload(c.Request.Context(), clientID, serviceID, stage, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, ticket)
}

// RegisterAttachment handles POST .../stages/:stageId/attachments
func (h *Handler) RegisterAttachment(c *gin.Context) {
	clientID, serviceID, ok := timelineKey(c)
	if !ok {
		return
	}
	stage, ok := stageID(c)
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req transport.RegisterAttachmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	resp, err := h.svc.RegisterAttachment(c.Request.Context(), clientID, serviceID, stage, actorFrom(identity), req.ObjectKey, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, resp)
}

// DownloadAttachment handles GET .../stages/:stageId/attachments/:attachmentId/download
func (h *Handler) DownloadAttachment(c *gin.Context) {
	clientID, serviceID, ok := timelineKey(c)
	if !ok {
		return
	}
	stage, ok := stageID(c)
	if !ok {
		return
	}
	attachmentID, err := uuid.Parse(c.Param("attachmentId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid attachment ID", nil)
		return
	}

	ticket, err := h.svc.PresignAttachmentDownload(c.Request.Context(), clientID, serviceID, stage, attachmentID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, ticket)
}
