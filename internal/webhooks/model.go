package webhooks

import (
	"time"

	"github.com/google/uuid"
)

// Event types dispatched by the system.
const (
	EventVerificationInvalid = "verification.invalid"
	EventHealthDegraded      = "health.degraded"
	EventHealthRecovered     = "health.recovered"
)

// EventTypes lists every event a subscription may listen for.
var EventTypes = []string{EventVerificationInvalid, EventHealthDegraded, EventHealthRecovered}

// Subscription is an endpoint registered by an administrator.
type Subscription struct {
	ID        uuid.UUID `json:"id"`
	URL       string    `json:"url"`
	Events    []string  `json:"events"`
	Secret    string    `json:"-"` // never returned after creation
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s *Subscription) listensFor(eventType string) bool {
	for _, e := range s.Events {
		if e == eventType {
			return true
		}
	}
	return false
}

// Event is the JSON body posted to subscribers.
type Event struct {
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   map[string]string `json:"payload"`
}

// Delivery records the outcome of one delivery attempt.
type Delivery struct {
	ID             uuid.UUID `json:"id"`
	SubscriptionID uuid.UUID `json:"subscriptionId"`
	EventType      string    `json:"eventType"`
	StatusCode     int       `json:"statusCode"`
	Attempt        int       `json:"attempt"`
	Success        bool      `json:"success"`
	ErrorMessage   string    `json:"errorMessage,omitempty"`
	DeliveredAt    time.Time `json:"deliveredAt"`
}

// CreateSubscriptionRequest is the payload for POST /webhooks.
type CreateSubscriptionRequest struct {
	URL    string   `json:"url"    binding:"required,url"`
	Events []string `json:"events" binding:"required,min=1"`
}
