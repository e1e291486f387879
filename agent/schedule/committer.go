package schedule

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	contractx "github.com/cobsystems/careflow/agent/contract"
)

// Outcome discriminates the result of a booking commit.
type Outcome int

const (
	// OutcomeBooked: exactly one row flipped; the booking is ours.
	OutcomeBooked Outcome = iota
	// OutcomeConflict: zero rows flipped; the slot was taken between match
	// and commit. The caller re-runs the alternative search.
	OutcomeConflict
	// OutcomeError: the commit failed or violated store integrity.
	OutcomeError
)

// CommitResult is the discriminated result of Committer.Commit.
type CommitResult struct {
	Outcome   Outcome
	BookingID string
	Err       error
}

// Committer performs the atomic booking write. The conditional update with an
// affected-row check is the sole concurrency control for booking; no external
// locking is layered on top.
type Committer struct {
	store Store
	newID func() string
}

func NewCommitter(store Store) *Committer {
	return &Committer{
		store: store,
		newID: func() string { return uuid.NewString() },
	}
}

// Commit flips slot to booked with fresh booking and customer ids, scoped by
// resource identity, exact datetime, and available=true.
func (c *Committer) Commit(ctx context.Context, slot Slot, customerName, contactEmail string) CommitResult {
	if strings.TrimSpace(slot.ResourceID) == "" || strings.TrimSpace(slot.Datetime) == "" {
		return CommitResult{
			Outcome: OutcomeError,
			Err:     fmt.Errorf("%w: slot identity is incomplete", contractx.ErrValidation),
		}
	}

	fields := BookingFields{
		BookingID:    c.newID(),
		CustomerID:   c.newID(),
		CustomerName: customerName,
		ContactEmail: contactEmail,
	}

	rows, err := c.store.ConditionalBook(ctx, slot.ResourceID, slot.Datetime, fields)
	if err != nil {
		return CommitResult{Outcome: OutcomeError, Err: err}
	}

	switch {
	case rows == 0:
		return CommitResult{Outcome: OutcomeConflict, Err: contractx.ErrBookingConflict}
	case rows == 1:
		return CommitResult{Outcome: OutcomeBooked, BookingID: fields.BookingID}
	default:
		// The (resource, datetime) key should make this impossible.
		return CommitResult{
			Outcome: OutcomeError,
			Err:     fmt.Errorf("%w: %d rows affected for %s@%s", contractx.ErrStoreIntegrity, rows, slot.ResourceID, slot.Datetime),
		}
	}
}
