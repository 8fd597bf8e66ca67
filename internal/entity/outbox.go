package entity

const (
	OutboxPending = "PENDING"
	OutboxSent    = "SENT"
	OutboxFailed  = "FAILED"
)

// OutboxMessage is written in the same transaction as the state change it
// announces. A background job publishes pending rows to the broker.
type OutboxMessage struct {
	Base

	Topic      string
	Key        string
	Payload    []byte `gorm:"type:blob"`
	Status     string `gorm:"index;default:PENDING"`
	RetryCount int
}
