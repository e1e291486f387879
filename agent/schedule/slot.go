// Package schedule owns the bookable-slot model: availability resolution with
// nearest-alternative search, and the atomic booking commit.
package schedule

import (
	"context"
	"time"

	contractx "github.com/cobsystems/careflow/agent/contract"
)

const (
	// DatetimeLayout is the store's local wall-clock convention. Datetimes are
	// opaque local strings; lexicographic order equals chronological order.
	DatetimeLayout = "2006-01-02 15:04:05"
	DateLayout     = "2006-01-02"
	TimeLayout     = "15:04:05"
)

// Slot is one bookable (resource, datetime) unit. Identity is
// (ResourceID, Datetime); rows are pre-provisioned and only ever flipped from
// available to booked.
type Slot struct {
	ResourceID   string           `json:"resource_id"`
	ResourceName string           `json:"resource_name"`
	Category     string           `json:"category,omitempty"`
	Domain       contractx.Domain `json:"domain"`
	Datetime     string           `json:"datetime"`
	Available    bool             `json:"available"`
	BookingID    string           `json:"booking_id,omitempty"`
}

// At returns the slot's wall-clock instant in the store's local convention.
func (s Slot) At() (time.Time, error) {
	return time.Parse(DatetimeLayout, s.Datetime)
}

// TimeOfDay returns the HH:MM:SS portion of the slot datetime.
func (s Slot) TimeOfDay() string {
	if len(s.Datetime) < len(DatetimeLayout) {
		return ""
	}
	return s.Datetime[len(DateLayout)+1:]
}

// Query filters an availability listing. Zero-valued filters are ignored.
type Query struct {
	Domain       contractx.Domain
	Date         string // YYYY-MM-DD, required
	ResourceName string // substring match, case-insensitive
	Category     string // substring match, case-insensitive
	StartTime    string // HH:MM:SS inclusive lower bound
	EndTime      string // HH:MM:SS inclusive upper bound
}

// BookingFields is the customer data attached to a slot on commit.
type BookingFields struct {
	BookingID    string
	CustomerID   string
	CustomerName string
	ContactEmail string
}

// Ticket is a persisted escalation handoff record.
type Ticket struct {
	ID        string
	SessionID string
	CreatedAt time.Time
	Status    string
	History   string
}

// Store is the persistent slot store contract. ConditionalBook must be atomic:
// it flips a slot to booked only when it is still available, and reports the
// number of rows affected so the caller can detect lost races.
type Store interface {
	ListAvailable(ctx context.Context, q Query) ([]Slot, error)
	ConditionalBook(ctx context.Context, resourceID, datetime string, b BookingFields) (int64, error)
	SaveTicket(ctx context.Context, t Ticket) error
}
