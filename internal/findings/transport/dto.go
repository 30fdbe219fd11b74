package transport

import (
	"time"

	"github.com/google/uuid"
)

// RecordFindingRequest logs a finding against an engagement.
type RecordFindingRequest struct {
	ClientID    uuid.UUID `json:"clientId" validate:"required"`
	ServiceID   uuid.UUID `json:"serviceId" validate:"required"`
	Title       string    `json:"title" validate:"required,min=3,max=300"`
	Description string    `json:"description" validate:"max=10000"`
	Severity    string    `json:"severity" validate:"required,oneof=critical high medium low info"`
	EvidenceKey string    `json:"evidenceKey" validate:"max=500"`
}

// UpdateStatusRequest moves a finding through triage.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=open confirmed false-positive resolved accepted-risk"`
}

// ListFindingsRequest filters the findings list.
type ListFindingsRequest struct {
	ClientID  *uuid.UUID `form:"clientId"`
	ServiceID *uuid.UUID `form:"serviceId"`
	Severity  string     `form:"severity" validate:"omitempty,oneof=critical high medium low info"`
	Status    string     `form:"status" validate:"omitempty,oneof=open confirmed false-positive resolved accepted-risk"`
}

// FindingResponse is the public view of a finding.
type FindingResponse struct {
	ID          uuid.UUID `json:"id"`
	ClientID    uuid.UUID `json:"clientId"`
	ServiceID   uuid.UUID `json:"serviceId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Severity    string    `json:"severity"`
	Status      string    `json:"status"`
	EvidenceKey string    `json:"evidenceKey,omitempty"`
	RecordedBy  uuid.UUID `json:"recordedBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// SeveritySummary counts findings per severity for one engagement.
type SeveritySummary struct {
	ClientID  uuid.UUID      `json:"clientId"`
	ServiceID uuid.UUID      `json:"serviceId"`
	Total     int            `json:"total"`
	BySeverity map[string]int `json:"bySeverity"`
}
