// Package queue defines the events published to RabbitMQ, the publisher
// that sends them and the consumer that turns them into notifications.
package queue

// Queue names double as routing keys on the default exchange.
const (
	QueueObjectionSubmitted     = "objection.submitted"
	QueueObjectionStatusChanged = "objection.status_changed"
	QueuePasswordReset          = "farmer.password_reset"
)

// Queues lists every queue the service declares.
var Queues = []string{QueueObjectionSubmitted, QueueObjectionStatusChanged, QueuePasswordReset}

// ObjectionSubmittedEvent is published after a farmer's objection has been
// stored with status pending.
type ObjectionSubmittedEvent struct {
	ObjectionID       uint64 `json:"objection_id"`
	FarmerID          uint64 `json:"farmer_id"`
	Code              string `json:"code"`
	TransactionNumber string `json:"transaction_number"`
	SubmittedAt       string `json:"submitted_at"`
}

// ObjectionStatusChangedEvent is published after an admin reviews or
// resolves an objection.
type ObjectionStatusChangedEvent struct {
	ObjectionID uint64 `json:"objection_id"`
	FarmerID    uint64 `json:"farmer_id"`
	Code        string `json:"code"`
	From        string `json:"from"`
	To          string `json:"to"`
	ChangedAt   string `json:"changed_at"`
}

// PasswordResetRequestedEvent carries the verification code to the
// notification worker, which is the only place the plain code goes.
type PasswordResetRequestedEvent struct {
	FarmerID    uint64 `json:"farmer_id"`
	NationalID  string `json:"national_id"`
	Phone       string `json:"phone"`
	Code        string `json:"code"`
	ExpiresAt   string `json:"expires_at"`
	RequestedAt string `json:"requested_at"`
}
