package state

import (
	contractx "github.com/cobsystems/careflow/agent/contract"
	schedulex "github.com/cobsystems/careflow/agent/schedule"
)

// DraftState tracks the slot-filling state machine of one booking draft.
// Booked and Abandoned are terminal; a new draft restarts at StateNew.
type DraftState string

const (
	StateNew                 DraftState = "NEW"
	StateCollecting          DraftState = "COLLECTING"
	StateMatching            DraftState = "MATCHING"
	StateAlternativesOffered DraftState = "ALTERNATIVES_OFFERED"
	StateConfirming          DraftState = "CONFIRMING"
	StateBooked              DraftState = "BOOKED"
	StateAbandoned           DraftState = "ABANDONED"
)

// Extraction field names shared with the oracle schema.
const (
	FieldCustomerName    = "customer_name"
	FieldContactEmail    = "contact_email"
	FieldDate            = "date"
	FieldTime            = "time"
	FieldSpecialty       = "specialty"
	FieldDoctorName      = "doctor_name"
	FieldProductInterest = "product_interest"
)

// Draft is the accumulating, partially-filled request for one in-progress
// booking. Merge rules are explicit per domain; see the concrete types.
type Draft interface {
	Domain() contractx.Domain
	State() DraftState
	SetState(DraftState)

	// Merge folds extracted fields into the draft, last-mention-wins; fields
	// absent from the map leave existing values untouched.
	Merge(fields map[string]string)

	// Missing lists required fields not yet filled, in schema order.
	Missing() []string

	// SetTimeRange stores an extracted time window alongside the draft.
	SetTimeRange(r contractx.TimeRange)

	// When returns the requested date (YYYY-MM-DD) and time of day (HH:MM:SS).
	When() (date, timeOfDay string)

	// Query builds the availability query for the draft's filters.
	Query() schedulex.Query

	// CaptureMatch records resource identity from a matched slot.
	CaptureMatch(slot schedulex.Slot)

	// Customer returns the name and contact email for the booking commit.
	Customer() (name, email string)
}

// ClinicalDraft is the appointment request for the clinical domain. Every
// mergeable field is listed explicitly; the rule for all of them is
// overwrite-on-non-empty.
type ClinicalDraft struct {
	DraftState DraftState `json:"state"`

	CustomerName string `json:"customer_name,omitempty"`
	ContactEmail string `json:"contact_email,omitempty"`
	Date         string `json:"date,omitempty"`
	Time         string `json:"time,omitempty"`
	Specialty    string `json:"specialty,omitempty"`
	DoctorName   string `json:"doctor_name,omitempty"`
	ClinicID     string `json:"clinic_id,omitempty"`
	DoctorID     string `json:"doctor_id,omitempty"`
	StartTime    string `json:"start_time,omitempty"`
	EndTime      string `json:"end_time,omitempty"`
}

// ClinicalSchema is the extraction schema for clinical requests.
var ClinicalSchema = []string{
	FieldCustomerName, FieldContactEmail, FieldDate, FieldTime,
	FieldSpecialty, FieldDoctorName,
}

func (d *ClinicalDraft) Domain() contractx.Domain { return contractx.DomainClinical }
func (d *ClinicalDraft) State() DraftState        { return d.DraftState }
func (d *ClinicalDraft) SetState(st DraftState)   { d.DraftState = st }

func (d *ClinicalDraft) Merge(fields map[string]string) {
	overwrite(&d.CustomerName, fields, FieldCustomerName)
	overwrite(&d.ContactEmail, fields, FieldContactEmail)
	overwrite(&d.Date, fields, FieldDate)
	overwriteClock(&d.Time, fields, FieldTime)
	overwrite(&d.Specialty, fields, FieldSpecialty)
	overwrite(&d.DoctorName, fields, FieldDoctorName)
}

func (d *ClinicalDraft) When() (string, string) { return d.Date, d.Time }

func (d *ClinicalDraft) Missing() []string {
	return missingOf([]requiredField{
		{FieldCustomerName, d.CustomerName},
		{FieldContactEmail, d.ContactEmail},
		{FieldDate, d.Date},
		{FieldTime, d.Time},
	})
}

func (d *ClinicalDraft) SetTimeRange(r contractx.TimeRange) {
	if r.Start != "" {
		d.StartTime = r.Start
	}
	if r.End != "" {
		d.EndTime = r.End
	}
}

func (d *ClinicalDraft) Query() schedulex.Query {
	return schedulex.Query{
		Domain:       contractx.DomainClinical,
		Date:         d.Date,
		ResourceName: d.DoctorName,
		Category:     d.Specialty,
		StartTime:    d.StartTime,
		EndTime:      d.EndTime,
	}
}

func (d *ClinicalDraft) CaptureMatch(slot schedulex.Slot) {
	d.DoctorID = slot.ResourceID
	d.ClinicID = slot.ResourceID
	if slot.ResourceName != "" {
		d.DoctorName = slot.ResourceName
	}
}

func (d *ClinicalDraft) Customer() (string, string) {
	return d.CustomerName, d.ContactEmail
}

// MarketingDraft is the meeting request for the marketing domain.
type MarketingDraft struct {
	DraftState DraftState `json:"state"`

	CustomerName    string `json:"customer_name,omitempty"`
	ContactEmail    string `json:"contact_email,omitempty"`
	Date            string `json:"date,omitempty"`
	Time            string `json:"time,omitempty"`
	ProductInterest string `json:"product_interest,omitempty"`
	MarketerID      string `json:"marketer_id,omitempty"`
	StartTime       string `json:"start_time,omitempty"`
	EndTime         string `json:"end_time,omitempty"`
}

// MarketingSchema is the extraction schema for marketing requests.
var MarketingSchema = []string{
	FieldCustomerName, FieldContactEmail, FieldDate, FieldTime,
	FieldProductInterest,
}

func (d *MarketingDraft) Domain() contractx.Domain { return contractx.DomainMarketing }
func (d *MarketingDraft) State() DraftState        { return d.DraftState }
func (d *MarketingDraft) SetState(st DraftState)   { d.DraftState = st }

func (d *MarketingDraft) Merge(fields map[string]string) {
	overwrite(&d.CustomerName, fields, FieldCustomerName)
	overwrite(&d.ContactEmail, fields, FieldContactEmail)
	overwrite(&d.Date, fields, FieldDate)
	overwriteClock(&d.Time, fields, FieldTime)
	overwrite(&d.ProductInterest, fields, FieldProductInterest)
}

func (d *MarketingDraft) When() (string, string) { return d.Date, d.Time }

func (d *MarketingDraft) Missing() []string {
	return missingOf([]requiredField{
		{FieldCustomerName, d.CustomerName},
		{FieldContactEmail, d.ContactEmail},
		{FieldDate, d.Date},
		{FieldTime, d.Time},
	})
}

func (d *MarketingDraft) SetTimeRange(r contractx.TimeRange) {
	if r.Start != "" {
		d.StartTime = r.Start
	}
	if r.End != "" {
		d.EndTime = r.End
	}
}

func (d *MarketingDraft) Query() schedulex.Query {
	return schedulex.Query{
		Domain:    contractx.DomainMarketing,
		Date:      d.Date,
		StartTime: d.StartTime,
		EndTime:   d.EndTime,
	}
}

func (d *MarketingDraft) CaptureMatch(slot schedulex.Slot) {
	d.MarketerID = slot.ResourceID
}

func (d *MarketingDraft) Customer() (string, string) {
	return d.CustomerName, d.ContactEmail
}

type requiredField struct {
	name  string
	value string
}

func missingOf(fields []requiredField) []string {
	var missing []string
	for _, f := range fields {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

func overwrite(dst *string, fields map[string]string, key string) {
	if v, ok := fields[key]; ok && v != "" {
		*dst = v
	}
}

// overwriteClock widens HH:MM values to HH:MM:SS so draft times line up with
// slot time-of-day strings.
func overwriteClock(dst *string, fields map[string]string, key string) {
	v, ok := fields[key]
	if !ok || v == "" {
		return
	}
	if len(v) == len("15:04") {
		v += ":00"
	}
	*dst = v
}
