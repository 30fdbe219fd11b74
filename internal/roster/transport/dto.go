package transport

import (
	"time"

	"github.com/google/uuid"
)

// CreateClientRequest registers a client organization.
type CreateClientRequest struct {
	Name         string `json:"name" validate:"required,min=2,max=200"`
	ContactEmail string `json:"contactEmail" validate:"required,email"`
}

// CreateServiceRequest registers an assessment service definition.
type CreateServiceRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=200"`
	Description string `json:"description" validate:"max=2000"`
}

// OnboardRequest links a client to a purchased service and staffs the
// engagement.
type OnboardRequest struct {
	ClientID        uuid.UUID `json:"clientId" validate:"required"`
	ServiceID       uuid.UUID `json:"serviceId" validate:"required"`
	AssignedManager uuid.UUID `json:"assignedManager" validate:"required"`
	AssignedTester  uuid.UUID `json:"assignedTester" validate:"required"`
}

// ClientResponse is the public view of a client organization.
type ClientResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	ContactEmail string    `json:"contactEmail"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ServiceResponse is the public view of a service definition.
type ServiceResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// EngagementResponse is the public view of an onboarded pair.
type EngagementResponse struct {
	ClientID        uuid.UUID `json:"clientId"`
	ServiceID       uuid.UUID `json:"serviceId"`
	AssignedManager uuid.UUID `json:"assignedManager"`
	AssignedTester  uuid.UUID `json:"assignedTester"`
	OnboardedAt     time.Time `json:"onboardedAt"`
}
