// Package events defines the activity event payloads and their publishers.
package events

import (
	"context"
	"time"
)

const (
	TypeActivityLogged  = "activity.logged"
	TypeActivityPlanned = "activity.planned"
	TypePlansCleared    = "activity.plans_cleared"
)

// DefaultTopic is the Kafka topic used when none is configured.
const DefaultTopic = "activity_events"

// Envelope wraps every payload written to the broker.
type Envelope struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// ActivityRecorded is emitted after an activity row is inserted.
type ActivityRecorded struct {
	RowID    int64   `json:"row_id"`
	UserID   string  `json:"userid"`
	Activity string  `json:"activity"`
	Date     int64   `json:"date"`
	Amount   float64 `json:"amount"`
}

// PlansCleared is emitted when planned rows are deleted from a date range.
type PlansCleared struct {
	UserID  string `json:"userid"`
	From    int64  `json:"from"`
	To      int64  `json:"to"`
	Removed int64  `json:"removed"`
}

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish implements the publisher contract without side effects.
func (NopPublisher) Publish(context.Context, string, string, any) error {
	return nil
}
