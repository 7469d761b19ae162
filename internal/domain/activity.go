package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Activity is a row of ActivityTable as seen by callers.
type Activity struct {
	ID     int64   `json:"rowIdNum"`
	Type   string  `json:"activity"`
	Date   int64   `json:"date"`
	Amount float64 `json:"amount"`
	UserID string  `json:"userid,omitempty"`
}

// Planned reports whether the row marks an activity that has not been performed yet.
// Non-positive amounts are planned; the sign convention is not enforced by the store.
func (a Activity) Planned() bool {
	return a.Amount <= 0
}

// Time returns the activity date as a time in the local zone.
func (a Activity) Time() time.Time {
	return time.UnixMilli(a.Date)
}

// ActivityInput is the payload accepted when recording an activity.
type ActivityInput struct {
	Activity string  `json:"activity"`
	Date     int64   `json:"date"`
	Scalar   float64 `json:"scalar"`
}

// Validate checks the payload before it reaches the store.
func (in ActivityInput) Validate() error {
	if strings.TrimSpace(in.Activity) == "" {
		return fmt.Errorf("%w: activity type is required", ErrInvalidActivity)
	}
	if in.Date <= 0 {
		return fmt.Errorf("%w: date must be milliseconds since the epoch", ErrInvalidActivity)
	}
	if math.IsNaN(in.Scalar) || math.IsInf(in.Scalar, 0) {
		return fmt.Errorf("%w: scalar must be a finite number", ErrInvalidActivity)
	}
	return nil
}

// Profile is a row of the Profile table.
type Profile struct {
	ID        int64  `json:"rowIdNum"`
	UserID    string `json:"userid"`
	FirstName string `json:"firstName"`
}

// LocalDay truncates t to midnight of its calendar day and returns epoch milliseconds.
func LocalDay(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location()).UnixMilli()
}

// DayRange returns the inclusive [start, end] millisecond bounds of the calendar day containing t.
func DayRange(t time.Time) (int64, int64) {
	y, m, d := t.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return start.UnixMilli(), start.AddDate(0, 0, 1).UnixMilli() - 1
}
