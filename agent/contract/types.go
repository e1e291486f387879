package contract

import "strings"

// Domain identifies a booking domain.
type Domain string

const (
	DomainClinical  Domain = "clinical"
	DomainMarketing Domain = "marketing"
)

// Intent is the resolved intent of a single conversation turn.
type Intent string

const (
	IntentConfirmation Intent = "CONFIRMATION"
	IntentEscalate     Intent = "ESCALATE"
	IntentKnowledge    Intent = "KNOWLEDGE"
	IntentMarketing    Intent = "MARKETING"
	IntentClinical     Intent = "CLINICAL"
	IntentGeneral      Intent = "GENERAL"
)

// ClassifyLabels is the label set handed to the oracle for intent
// classification. CONFIRMATION and ESCALATE are resolved locally and never
// asked of the oracle.
var ClassifyLabels = []Intent{
	IntentKnowledge,
	IntentMarketing,
	IntentClinical,
	IntentGeneral,
}

// Turn is one prior conversation message passed to the oracle as context.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TimeRange holds an extracted time window. Either bound may be empty when the
// user gave a single-bound phrase such as "after 3pm".
type TimeRange struct {
	Start string `json:"start_time"`
	End   string `json:"end_time"`
}

// IsZero reports whether neither bound is set.
func (r TimeRange) IsZero() bool {
	return r.Start == "" && r.End == ""
}

// Snippet is one knowledge retrieval result, content bounded for display.
type Snippet struct {
	Source  string `json:"source"`
	Content string `json:"content"`
}

// NormalizeReply canonicalizes a user reply for yes/no matching.
func NormalizeReply(s string) string {
	return strings.Trim(strings.ToLower(strings.TrimSpace(s)), ".!")
}

// IsYes reports whether the normalized reply affirms a pending confirmation.
func IsYes(s string) bool {
	n := NormalizeReply(s)
	return n == "yes" || n == "y"
}

// IsNo reports whether the normalized reply rejects a pending confirmation.
func IsNo(s string) bool {
	n := NormalizeReply(s)
	return n == "no" || n == "n"
}
