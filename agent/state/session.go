// Package state holds per-session mutable conversation state: bounded history,
// in-progress booking drafts, and the confirmation gate.
package state

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/cobsystems/careflow/agent/contract"
	schedulex "github.com/cobsystems/careflow/agent/schedule"
)

// MaxHistory bounds retained history to the most recent N messages, user and
// assistant counted alike; oldest evicted first.
const MaxHistory = 20

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one history entry. Seq is the ordering key; Timestamp is kept for
// transcripts and display only, since two messages may share a timestamp.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Seq       int       `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the per-session state. It is owned exclusively by the
// orchestrator/agent pair processing it; turns for one session are serialized
// by the orchestrator.
type Session struct {
	ID      string    `json:"id"`
	History []Message `json:"history,omitempty"`
	NextSeq int       `json:"next_seq"`

	Clinical  *ClinicalDraft  `json:"clinical_draft,omitempty"`
	Marketing *MarketingDraft `json:"marketing_draft,omitempty"`

	PendingConfirmation bool             `json:"pending_confirmation"`
	PendingDomain       contractx.Domain `json:"pending_domain,omitempty"`
	PendingSlot         *schedulex.Slot  `json:"pending_slot,omitempty"`

	Escalated    bool `json:"escalated"`
	FailureCount int  `json:"failure_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append records a message with the next sequence number, evicting the oldest
// entries beyond MaxHistory.
func (s *Session) Append(role Role, content string, now time.Time) {
	s.History = append(s.History, Message{
		Role:      role,
		Content:   content,
		Seq:       s.NextSeq,
		Timestamp: now,
	})
	s.NextSeq++
	if overflow := len(s.History) - MaxHistory; overflow > 0 {
		s.History = append([]Message(nil), s.History[overflow:]...)
	}
	s.UpdatedAt = now
}

// ContextTurns returns the most recent n messages as oracle context, oldest
// first.
func (s *Session) ContextTurns(n int) []contractx.Turn {
	msgs := s.History
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	turns := make([]contractx.Turn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, contractx.Turn{Role: string(m.Role), Content: m.Content})
	}
	return turns
}

// Transcript renders the retained history for escalation tickets.
func (s *Session) Transcript() string {
	var b strings.Builder
	for i, m := range s.History {
		if i > 0 {
			b.WriteByte('\n')
		}
		role := string(m.Role)
		if role != "" {
			role = strings.ToUpper(role[:1]) + role[1:]
		}
		fmt.Fprintf(&b, "%s: %s", role, m.Content)
	}
	return b.String()
}

// Draft returns the live draft for domain, creating it lazily on first use.
func (s *Session) Draft(domain contractx.Domain) Draft {
	switch domain {
	case contractx.DomainMarketing:
		if s.Marketing == nil {
			s.Marketing = &MarketingDraft{DraftState: StateNew}
		}
		return s.Marketing
	default:
		if s.Clinical == nil {
			s.Clinical = &ClinicalDraft{DraftState: StateNew}
		}
		return s.Clinical
	}
}

// HasDraft reports whether a draft exists for domain without creating one.
func (s *Session) HasDraft(domain contractx.Domain) bool {
	if domain == contractx.DomainMarketing {
		return s.Marketing != nil
	}
	return s.Clinical != nil
}

// ClearDraft discards the draft for domain and resolves any pending
// confirmation held by it.
func (s *Session) ClearDraft(domain contractx.Domain) {
	if domain == contractx.DomainMarketing {
		s.Marketing = nil
	} else {
		s.Clinical = nil
	}
	if s.PendingDomain == domain {
		s.PendingConfirmation = false
		s.PendingDomain = ""
		s.PendingSlot = nil
	}
}

// SetPending arms the confirmation gate for domain on the matched slot.
func (s *Session) SetPending(domain contractx.Domain, slot schedulex.Slot) {
	s.PendingConfirmation = true
	s.PendingDomain = domain
	s.PendingSlot = &slot
}

// ClearPending disarms the confirmation gate, leaving drafts intact.
func (s *Session) ClearPending() {
	s.PendingConfirmation = false
	s.PendingDomain = ""
	s.PendingSlot = nil
}
