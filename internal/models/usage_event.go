package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageEventType represents the kind of significant licensing occurrence being
// recorded for audit and compliance reporting.
type UsageEventType string

const (
	UsageEventLimitExceeded      UsageEventType = "LIMIT_EXCEEDED"
	UsageEventCreated            UsageEventType = "CREATED"
	UsageEventRenewed            UsageEventType = "RENEWED"
	UsageEventExpired            UsageEventType = "EXPIRED"
	UsageEventSuspended          UsageEventType = "SUSPENDED"
	UsageEventActivated          UsageEventType = "ACTIVATED"
	UsageEventPlanChanged        UsageEventType = "PLAN_CHANGED"
	UsageEventGracePeriodEntered UsageEventType = "GRACE_PERIOD_ENTERED"
	UsageEventGracePeriodExpired UsageEventType = "GRACE_PERIOD_EXPIRED"
	UsageEventValidationFailed   UsageEventType = "VALIDATION_FAILED"
	UsageEventFeatureDenied      UsageEventType = "FEATURE_ACCESS_DENIED"
)

// UsageEvent is an audit-style record of a licensing occurrence, distinct from
// the ephemeral APICallRecord. LIMIT_EXCEEDED events are written by the limit
// evaluator; the remaining types come from the tenant-management collaborators.
type UsageEvent struct {
	ID        uuid.UUID      `json:"id"`
	LicenseID uuid.UUID      `json:"license_id"`
	EventType UsageEventType `json:"event_type"`
	Details   map[string]any `json:"details,omitempty"`
	ActorID   *uuid.UUID     `json:"actor_id,omitempty"`
	IPAddress string         `json:"ip_address,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewUsageEvent creates a UsageEvent with the given details payload.
func NewUsageEvent(licenseID uuid.UUID, eventType UsageEventType, details map[string]any) *UsageEvent {
	return &UsageEvent{
		ID:        uuid.New(),
		LicenseID: licenseID,
		EventType: eventType,
		Details:   details,
		CreatedAt: time.Now(),
	}
}
