// Package notification holds the wire contract between the booking service and
// the delivery service.
package notification

import "time"

const (
	TopicRequested = "notification.requested.v1"
	TopicSent      = "notification.sent.v1"
	TopicFailed    = "notification.failed.v1"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleOperator Role = "operator"
)

// Request asks for one message to be rendered and delivered. Templates are
// rendered by the delivery side; Variables carry preformatted values.
type Request struct {
	Role          Role              `json:"role"`
	Address       string            `json:"address"`
	Template      string            `json:"template"`
	Variables     map[string]string `json:"variables"`
	DedupeKey     string            `json:"dedupe_key"`
	AppointmentID string            `json:"appointment_id"`
	RequestedAt   time.Time         `json:"requested_at"`
}

// Outcome is published after each delivery attempt.
type Outcome struct {
	DedupeKey     string    `json:"dedupe_key"`
	AppointmentID string    `json:"appointment_id"`
	Channel       string    `json:"channel"`
	Template      string    `json:"template"`
	Status        string    `json:"status"`
	Error         string    `json:"error,omitempty"`
	At            time.Time `json:"at"`
}
