package contract

import "errors"

var (
	// ErrExtractionParse marks oracle output that is not parseable JSON or a
	// known label. Callers fail soft: empty fields, GENERAL intent.
	ErrExtractionParse = errors.New("oracle output not parseable")

	// ErrAvailabilityQuery marks a slot store query failure. Surfaced to the
	// user as "no availability found", never as the raw error.
	ErrAvailabilityQuery = errors.New("availability query failed")

	// ErrBookingConflict marks a conditional booking that affected zero rows:
	// the slot was taken between match and commit.
	ErrBookingConflict = errors.New("slot already booked")

	// ErrStoreIntegrity marks a conditional booking that affected more than
	// one row. Fatal; the booking flow must abort.
	ErrStoreIntegrity = errors.New("slot store integrity violation")

	// ErrEscalationPersist marks a failed escalation ticket write. Fatal for
	// that escalation attempt, never silently dropped.
	ErrEscalationPersist = errors.New("escalation ticket persist failed")

	// ErrValidation marks invalid caller input.
	ErrValidation = errors.New("validation failed")
)
