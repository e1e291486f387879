package booking

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	contractx "github.com/cobsystems/careflow/agent/contract"
	schedulex "github.com/cobsystems/careflow/agent/schedule"
	statex "github.com/cobsystems/careflow/agent/state"
)

type fakeOracle struct {
	fields     map[string]string
	extractErr error
	timeRange  contractx.TimeRange
	rangeErr   error
	rangeCalls int
}

func (f *fakeOracle) Classify(context.Context, []contractx.Turn, string) (contractx.Intent, error) {
	return contractx.IntentGeneral, nil
}

func (f *fakeOracle) Extract(context.Context, []string, []contractx.Turn, string) (map[string]string, error) {
	if f.extractErr != nil {
		return nil, f.extractErr
	}
	return f.fields, nil
}

func (f *fakeOracle) ExtractTimeRange(context.Context, string) (contractx.TimeRange, error) {
	f.rangeCalls++
	if f.rangeErr != nil {
		return contractx.TimeRange{}, f.rangeErr
	}
	return f.timeRange, nil
}

type fakeSlotStore struct {
	mu      sync.Mutex
	slots   []schedulex.Slot
	listErr error
	rows    int64
	bookErr error
	booked  int
}

func (f *fakeSlotStore) ListAvailable(_ context.Context, q schedulex.Query) ([]schedulex.Slot, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []schedulex.Slot
	for _, s := range f.slots {
		if q.StartTime != "" && s.TimeOfDay() < q.StartTime {
			continue
		}
		if q.EndTime != "" && s.TimeOfDay() > q.EndTime {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeSlotStore) ConditionalBook(_ context.Context, _, _ string, _ schedulex.BookingFields) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bookErr != nil {
		return 0, f.bookErr
	}
	f.booked++
	return f.rows, nil
}

func (f *fakeSlotStore) SaveTicket(context.Context, schedulex.Ticket) error { return nil }

func newTestAgent(t *testing.T, domain contractx.Domain, oracle contractx.Oracle, store schedulex.Store) *Agent {
	t.Helper()
	a, err := New(domain, oracle, schedulex.NewResolver(store), schedulex.NewCommitter(store))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return a
}

func clinicalSlot(clock string) schedulex.Slot {
	return schedulex.Slot{
		ResourceID:   "D1",
		ResourceName: "Smith",
		Domain:       contractx.DomainClinical,
		Datetime:     "2025-07-01 " + clock,
		Available:    true,
	}
}

func completeFields() map[string]string {
	return map[string]string{
		statex.FieldCustomerName: "Alice",
		statex.FieldContactEmail: "alice@example.com",
		statex.FieldDate:         "2025-07-01",
		statex.FieldTime:         "09:00:00",
	}
}

func TestHandlePromptsForMissingFields(t *testing.T) {
	t.Parallel()

	oracle := &fakeOracle{fields: map[string]string{statex.FieldDate: "2025-07-01"}}
	a := newTestAgent(t, contractx.DomainClinical, oracle, &fakeSlotStore{})
	sess := statex.NewSession("s1", time.Now())

	reply, err := a.Handle(context.Background(), sess, "book me tomorrow")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, phrase := range []string{"your name", "your email", "a time"} {
		if !strings.Contains(reply, phrase) {
			t.Fatalf("expected prompt for %q, got %q", phrase, reply)
		}
	}
	if strings.Contains(reply, "a date") {
		t.Fatalf("date already captured, got %q", reply)
	}
	if sess.Clinical.State() != statex.StateCollecting {
		t.Fatalf("expected COLLECTING, got %s", sess.Clinical.State())
	}
}

func TestHandleExtractionFailureIsSoft(t *testing.T) {
	t.Parallel()

	oracle := &fakeOracle{extractErr: errors.New("model timeout")}
	a := newTestAgent(t, contractx.DomainClinical, oracle, &fakeSlotStore{})
	sess := statex.NewSession("s1", time.Now())
	sess.Draft(contractx.DomainClinical).Merge(map[string]string{statex.FieldCustomerName: "Alice"})

	reply, err := a.Handle(context.Background(), sess, "book me")
	if err != nil {
		t.Fatalf("expected soft failure, got %v", err)
	}
	if sess.Clinical.CustomerName != "Alice" {
		t.Fatal("extraction failure must not erase captured fields")
	}
	if !strings.Contains(reply, "your email") {
		t.Fatalf("expected the missing-field prompt, got %q", reply)
	}
}

func TestHandleExactMatchArmsConfirmation(t *testing.T) {
	t.Parallel()

	oracle := &fakeOracle{fields: completeFields()}
	store := &fakeSlotStore{slots: []schedulex.Slot{clinicalSlot("09:00:00")}}
	a := newTestAgent(t, contractx.DomainClinical, oracle, store)
	sess := statex.NewSession("s1", time.Now())

	reply, err := a.Handle(context.Background(), sess, "book me at 9am on July 1st, I'm Alice, alice@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sess.PendingConfirmation || sess.PendingDomain != contractx.DomainClinical {
		t.Fatal("expected confirmation gate armed")
	}
	if sess.PendingSlot == nil || sess.PendingSlot.ResourceID != "D1" {
		t.Fatalf("expected the matched slot pending, got %+v", sess.PendingSlot)
	}
	if sess.Clinical.State() != statex.StateConfirming {
		t.Fatalf("expected CONFIRMING, got %s", sess.Clinical.State())
	}
	for _, phrase := range []string{"Please confirm your appointment", "Alice", "Smith", "YES", "NO"} {
		if !strings.Contains(reply, phrase) {
			t.Fatalf("expected %q in confirmation, got %q", phrase, reply)
		}
	}
}

func TestHandleYesCommitsBooking(t *testing.T) {
	t.Parallel()

	oracle := &fakeOracle{fields: completeFields()}
	store := &fakeSlotStore{slots: []schedulex.Slot{clinicalSlot("09:00:00")}, rows: 1}
	a := newTestAgent(t, contractx.DomainClinical, oracle, store)
	sess := statex.NewSession("s1", time.Now())

	if _, err := a.Handle(context.Background(), sess, "book me"); err != nil {
		t.Fatalf("match turn failed: %v", err)
	}
	reply, err := a.Handle(context.Background(), sess, "yes")
	if err != nil {
		t.Fatalf("confirm turn failed: %v", err)
	}
	if !strings.Contains(reply, "Booking ID:") {
		t.Fatalf("expected booking id in reply, got %q", reply)
	}
	if store.booked != 1 {
		t.Fatalf("expected one commit, got %d", store.booked)
	}
	if sess.HasDraft(contractx.DomainClinical) || sess.PendingConfirmation {
		t.Fatal("expected draft and gate cleared after booking")
	}
}

func TestHandleNoKeepsFieldsAndReopensEditing(t *testing.T) {
	t.Parallel()

	oracle := &fakeOracle{fields: completeFields()}
	store := &fakeSlotStore{slots: []schedulex.Slot{clinicalSlot("09:00:00")}, rows: 1}
	a := newTestAgent(t, contractx.DomainClinical, oracle, store)
	sess := statex.NewSession("s1", time.Now())

	if _, err := a.Handle(context.Background(), sess, "book me"); err != nil {
		t.Fatalf("match turn failed: %v", err)
	}
	reply, err := a.Handle(context.Background(), sess, "no")
	if err != nil {
		t.Fatalf("decline turn failed: %v", err)
	}
	if reply != replyEditPrompt {
		t.Fatalf("expected edit prompt, got %q", reply)
	}
	if sess.PendingConfirmation {
		t.Fatal("expected the gate disarmed")
	}
	if sess.Clinical.CustomerName != "Alice" || sess.Clinical.Date != "2025-07-01" {
		t.Fatal("declining must keep captured fields")
	}
	if store.booked != 0 {
		t.Fatalf("expected no commit, got %d", store.booked)
	}
}

func TestHandleEditWhilePendingRematches(t *testing.T) {
	t.Parallel()

	oracle := &fakeOracle{fields: completeFields()}
	store := &fakeSlotStore{slots: []schedulex.Slot{clinicalSlot("09:00:00")}, rows: 1}
	a := newTestAgent(t, contractx.DomainClinical, oracle, store)
	sess := statex.NewSession("s1", time.Now())

	if _, err := a.Handle(context.Background(), sess, "book me"); err != nil {
		t.Fatalf("match turn failed: %v", err)
	}
	// Neither yes nor no: treated as an edit, the slot is re-matched.
	oracle.fields = map[string]string{statex.FieldTime: "09:00:00"}
	reply, err := a.Handle(context.Background(), sess, "actually make it 9am")
	if err != nil {
		t.Fatalf("edit turn failed: %v", err)
	}
	if store.booked != 0 {
		t.Fatal("an edit must not commit")
	}
	if !sess.PendingConfirmation {
		t.Fatalf("expected re-armed confirmation, got reply %q", reply)
	}
}

func TestHandleConflictOffersAlternatives(t *testing.T) {
	t.Parallel()

	oracle := &fakeOracle{fields: completeFields()}
	store := &fakeSlotStore{
		slots: []schedulex.Slot{clinicalSlot("09:00:00"), clinicalSlot("10:30:00")},
		rows:  0, // lose the race on commit
	}
	a := newTestAgent(t, contractx.DomainClinical, oracle, store)
	sess := statex.NewSession("s1", time.Now())

	if _, err := a.Handle(context.Background(), sess, "book me"); err != nil {
		t.Fatalf("match turn failed: %v", err)
	}
	reply, err := a.Handle(context.Background(), sess, "yes")
	if err != nil {
		t.Fatalf("conflict turn failed: %v", err)
	}
	if !strings.Contains(reply, "just taken") {
		t.Fatalf("expected conflict lead-in, got %q", reply)
	}
	if !strings.Contains(reply, "10:30 AM") {
		t.Fatalf("expected the surviving alternative, got %q", reply)
	}
	if sess.PendingConfirmation {
		t.Fatal("expected the gate disarmed after losing the slot")
	}
	if sess.Clinical.State() != statex.StateAlternativesOffered {
		t.Fatalf("expected ALTERNATIVES_OFFERED, got %s", sess.Clinical.State())
	}
}

func TestHandleNoExactMatchOffersNearest(t *testing.T) {
	t.Parallel()

	fields := completeFields()
	fields[statex.FieldTime] = "13:00:00"
	oracle := &fakeOracle{fields: fields}
	store := &fakeSlotStore{slots: []schedulex.Slot{
		clinicalSlot("12:00:00"),
		clinicalSlot("14:00:00"),
	}}
	a := newTestAgent(t, contractx.DomainClinical, oracle, store)
	sess := statex.NewSession("s1", time.Now())

	reply, err := a.Handle(context.Background(), sess, "book me at 1pm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(reply, "13:00:00 is not available") {
		t.Fatalf("expected unavailability notice, got %q", reply)
	}
	if !strings.Contains(reply, "Dr. Smith at 12:00 PM") || !strings.Contains(reply, "Dr. Smith at 02:00 PM") {
		t.Fatalf("expected both nearby slots, got %q", reply)
	}
}

func TestHandleNoAvailabilityAsksAnotherDate(t *testing.T) {
	t.Parallel()

	oracle := &fakeOracle{fields: completeFields()}
	a := newTestAgent(t, contractx.DomainClinical, oracle, &fakeSlotStore{})
	sess := statex.NewSession("s1", time.Now())

	reply, err := a.Handle(context.Background(), sess, "book me")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(reply, "another date") {
		t.Fatalf("expected another-date prompt, got %q", reply)
	}
}

func TestHandleIntegrityViolationSurfacesError(t *testing.T) {
	t.Parallel()

	oracle := &fakeOracle{fields: completeFields()}
	store := &fakeSlotStore{slots: []schedulex.Slot{clinicalSlot("09:00:00")}, rows: 2}
	a := newTestAgent(t, contractx.DomainClinical, oracle, store)
	sess := statex.NewSession("s1", time.Now())

	if _, err := a.Handle(context.Background(), sess, "book me"); err != nil {
		t.Fatalf("match turn failed: %v", err)
	}
	reply, err := a.Handle(context.Background(), sess, "yes")
	if !errors.Is(err, contractx.ErrStoreIntegrity) {
		t.Fatalf("expected ErrStoreIntegrity, got %v", err)
	}
	if reply != replyInternalError {
		t.Fatalf("expected the scripted apology, got %q", reply)
	}
}

func TestHandleTimeRangeHint(t *testing.T) {
	t.Parallel()

	oracle := &fakeOracle{
		fields:    map[string]string{statex.FieldDate: "2025-07-01"},
		timeRange: contractx.TimeRange{Start: "14:00:00", End: "17:00:00"},
	}
	a := newTestAgent(t, contractx.DomainClinical, oracle, &fakeSlotStore{})
	sess := statex.NewSession("s1", time.Now())

	if _, err := a.Handle(context.Background(), sess, "between 2pm and 5pm please"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if oracle.rangeCalls != 1 {
		t.Fatalf("expected one range extraction, got %d", oracle.rangeCalls)
	}
	if sess.Clinical.StartTime != "14:00:00" || sess.Clinical.EndTime != "17:00:00" {
		t.Fatalf("expected range captured, got %+v", sess.Clinical)
	}

	if _, err := a.Handle(context.Background(), sess, "my name is Alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if oracle.rangeCalls != 1 {
		t.Fatal("range extraction must only run on range-like input")
	}
}

func TestHandleMarketingConfirmationWording(t *testing.T) {
	t.Parallel()

	fields := completeFields()
	fields[statex.FieldProductInterest] = "CRM Suite"
	oracle := &fakeOracle{fields: fields}
	store := &fakeSlotStore{slots: []schedulex.Slot{{
		ResourceID:   "M1",
		ResourceName: "Dana",
		Domain:       contractx.DomainMarketing,
		Datetime:     "2025-07-01 09:00:00",
		Available:    true,
	}}}
	a := newTestAgent(t, contractx.DomainMarketing, oracle, store)
	sess := statex.NewSession("s1", time.Now())

	reply, err := a.Handle(context.Background(), sess, "book a marketing meeting")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, phrase := range []string{"marketing meeting", "CRM Suite", "Dana"} {
		if !strings.Contains(reply, phrase) {
			t.Fatalf("expected %q in confirmation, got %q", phrase, reply)
		}
	}
}

func TestNewRejectsUnknownDomain(t *testing.T) {
	t.Parallel()

	store := &fakeSlotStore{}
	_, err := New("billing", &fakeOracle{}, schedulex.NewResolver(store), schedulex.NewCommitter(store))
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
