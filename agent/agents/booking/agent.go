// Package booking implements the domain agent driving the slot-filling state
// machine for one booking domain. Clinical and marketing share the machine;
// only the field schema and reply wording differ.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/cobsystems/careflow/agent/contract"
	schedulex "github.com/cobsystems/careflow/agent/schedule"
	statex "github.com/cobsystems/careflow/agent/state"
	"github.com/cobsystems/careflow/pkg/metrics"
)

const contextTurns = 10

// Scripted replies; raw internal errors never reach these.
const (
	replyEditPrompt    = "Let's make changes. What would you like to change?"
	replyInternalError = "Sorry, something went wrong on our side while booking. Please try again in a moment."
	replyQueryFailed   = "Sorry, I couldn't find any availability right now. Please try again or pick another date."
	replyChooseOne     = "Please choose one by replying with the time (e.g., '09:30 AM')."
)

var rangeHints = []string{"between", "from", "after", "before", "until"}

// Agent handles one booking domain's turns.
type Agent struct {
	domain    contractx.Domain
	oracle    contractx.Oracle
	resolver  *schedulex.Resolver
	committer *schedulex.Committer
}

func New(domain contractx.Domain, oracle contractx.Oracle, resolver *schedulex.Resolver, committer *schedulex.Committer) (*Agent, error) {
	if domain != contractx.DomainClinical && domain != contractx.DomainMarketing {
		return nil, fmt.Errorf("%w: unknown domain %q", contractx.ErrValidation, domain)
	}
	if oracle == nil {
		return nil, errors.New("booking: oracle is required")
	}
	if resolver == nil {
		return nil, errors.New("booking: resolver is required")
	}
	if committer == nil {
		return nil, errors.New("booking: committer is required")
	}
	return &Agent{
		domain:    domain,
		oracle:    oracle,
		resolver:  resolver,
		committer: committer,
	}, nil
}

func (a *Agent) Domain() contractx.Domain { return a.domain }

// Handle processes one turn for this domain. The returned error, when
// non-nil, marks an operational fault for logging; the reply is always a
// user-safe scripted message.
func (a *Agent) Handle(ctx context.Context, sess *statex.Session, input string) (string, error) {
	draft := sess.Draft(a.domain)

	if sess.PendingConfirmation && sess.PendingDomain == a.domain {
		switch {
		case contractx.IsYes(input):
			return a.completeBooking(ctx, sess, draft)
		case contractx.IsNo(input):
			sess.ClearPending()
			draft.SetState(statex.StateCollecting)
			return replyEditPrompt, nil
		default:
			// A field edit invalidates the matched slot; re-match below.
			sess.ClearPending()
			draft.SetState(statex.StateCollecting)
		}
	}

	fields, err := a.oracle.Extract(ctx, a.schema(), sess.ContextTurns(contextTurns), input)
	if err != nil {
		// Fail soft: the draft is untouched for this turn.
		metrics.OracleFailuresTotal.WithLabelValues("extract").Inc()
		log.Warn().Err(err).Str("domain", string(a.domain)).Msg("field extraction failed")
		fields = nil
	}
	draft.Merge(fields)

	if hintsTimeRange(input) {
		if r, err := a.oracle.ExtractTimeRange(ctx, input); err == nil && !r.IsZero() {
			draft.SetTimeRange(r)
		} else if err != nil {
			metrics.OracleFailuresTotal.WithLabelValues("time_range").Inc()
			log.Warn().Err(err).Str("domain", string(a.domain)).Msg("time range extraction failed")
		}
	}

	if missing := draft.Missing(); len(missing) > 0 {
		draft.SetState(statex.StateCollecting)
		return a.promptMissing(missing), nil
	}
	return a.match(ctx, sess, draft)
}

// match runs exact-time availability and either arms the confirmation gate or
// offers the nearest alternatives.
func (a *Agent) match(ctx context.Context, sess *statex.Session, draft statex.Draft) (string, error) {
	draft.SetState(statex.StateMatching)
	_, timeOfDay := draft.When()

	exact, err := a.resolver.FindExact(ctx, draft.Query(), timeOfDay)
	if err != nil {
		log.Warn().Err(err).Str("domain", string(a.domain)).Msg("availability query failed")
		draft.SetState(statex.StateCollecting)
		return replyQueryFailed, nil
	}
	if exact != nil {
		draft.CaptureMatch(*exact)
		draft.SetState(statex.StateConfirming)
		sess.SetPending(a.domain, *exact)
		return a.confirmation(draft, *exact), nil
	}

	return a.offerAlternatives(ctx, draft, timeOfDay, fmt.Sprintf("Sorry, %s is not available.", timeOfDay))
}

func (a *Agent) offerAlternatives(ctx context.Context, draft statex.Draft, timeOfDay, lead string) (string, error) {
	date, _ := draft.When()
	alts, err := a.resolver.FindAlternatives(ctx, draft.Query(), timeOfDay)
	if err != nil {
		log.Warn().Err(err).Str("domain", string(a.domain)).Msg("alternative search failed")
		draft.SetState(statex.StateCollecting)
		return replyQueryFailed, nil
	}
	if len(alts) == 0 {
		draft.SetState(statex.StateCollecting)
		return fmt.Sprintf("No available %s slots found on %s. Please choose another date.", a.noun(), date), nil
	}

	draft.SetState(statex.StateAlternativesOffered)
	lines := []string{lead + " Here are nearby options:"}
	for _, alt := range alts {
		lines = append(lines, "- "+a.describeSlot(alt))
	}
	lines = append(lines, "", replyChooseOne)
	return strings.Join(lines, "\n"), nil
}

// completeBooking commits the tentatively matched slot after a "yes".
func (a *Agent) completeBooking(ctx context.Context, sess *statex.Session, draft statex.Draft) (string, error) {
	slot := sess.PendingSlot
	if slot == nil {
		sess.ClearPending()
		draft.SetState(statex.StateCollecting)
		return replyQueryFailed, nil
	}

	name, email := draft.Customer()
	res := a.committer.Commit(ctx, *slot, name, email)
	switch res.Outcome {
	case schedulex.OutcomeBooked:
		metrics.BookingsTotal.WithLabelValues(string(a.domain)).Inc()
		draft.SetState(statex.StateBooked)
		sess.ClearDraft(a.domain)
		return fmt.Sprintf("Your %s is booked. Booking ID: %s. Is there anything else I can help with?", a.noun(), res.BookingID), nil

	case schedulex.OutcomeConflict:
		// Lost the race; immediately re-run the alternative search.
		metrics.BookingConflictsTotal.WithLabelValues(string(a.domain)).Inc()
		_, timeOfDay := draft.When()
		sess.ClearPending()
		return a.offerAlternatives(ctx, draft, timeOfDay, "Sorry, that time was just taken.")

	default:
		sess.ClearPending()
		if errors.Is(res.Err, contractx.ErrStoreIntegrity) {
			log.Error().Err(res.Err).Str("domain", string(a.domain)).Msg("slot store integrity violation on commit")
			return replyInternalError, res.Err
		}
		log.Error().Err(res.Err).Str("domain", string(a.domain)).Msg("booking commit failed")
		return replyInternalError, res.Err
	}
}

func (a *Agent) confirmation(draft statex.Draft, slot schedulex.Slot) string {
	var lines []string
	switch d := draft.(type) {
	case *statex.ClinicalDraft:
		doctor := d.DoctorName
		if doctor == "" {
			doctor = "Any available"
		}
		lines = []string{
			"Please confirm your appointment:",
			"Name: " + d.CustomerName,
			"Email: " + d.ContactEmail,
			"Date: " + d.Date,
			"Time: " + d.Time,
			"Doctor: " + doctor,
		}
	case *statex.MarketingDraft:
		interest := d.ProductInterest
		if interest == "" {
			interest = "General"
		}
		lines = []string{
			"Please confirm your marketing meeting:",
			"Name: " + d.CustomerName,
			"Email: " + d.ContactEmail,
			"Date: " + d.Date + " at " + d.Time,
			"Product Interest: " + interest,
			"Marketer: " + slot.ResourceName,
		}
	}
	lines = append(lines, "", "Reply 'YES' to confirm or 'NO' to make changes.")
	return strings.Join(lines, "\n")
}

func (a *Agent) promptMissing(missing []string) string {
	phrases := make([]string, 0, len(missing))
	for _, f := range missing {
		switch f {
		case statex.FieldCustomerName:
			phrases = append(phrases, "your name")
		case statex.FieldContactEmail:
			phrases = append(phrases, "your email")
		case statex.FieldDate:
			phrases = append(phrases, "a date")
		case statex.FieldTime:
			phrases = append(phrases, "a time")
		default:
			phrases = append(phrases, f)
		}
	}
	return fmt.Sprintf("I need more information to book your %s. Please provide: %s.", a.noun(), strings.Join(phrases, ", "))
}

func (a *Agent) describeSlot(s schedulex.Slot) string {
	clock := s.TimeOfDay()
	if at, err := s.At(); err == nil {
		clock = at.Format("03:04 PM")
	}
	if a.domain == contractx.DomainClinical {
		return fmt.Sprintf("Dr. %s at %s", s.ResourceName, clock)
	}
	return fmt.Sprintf("%s at %s", s.ResourceName, clock)
}

func (a *Agent) schema() []string {
	if a.domain == contractx.DomainMarketing {
		return statex.MarketingSchema
	}
	return statex.ClinicalSchema
}

func (a *Agent) noun() string {
	if a.domain == contractx.DomainMarketing {
		return "marketing meeting"
	}
	return "appointment"
}

func hintsTimeRange(input string) bool {
	lowered := strings.ToLower(input)
	for _, hint := range rangeHints {
		if strings.Contains(lowered, hint) {
			return true
		}
	}
	return false
}
