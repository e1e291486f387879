// Package orchestrator is the dialogue entry point: it classifies each turn,
// routes it to a domain agent or a built-in handler, and owns session
// persistence and escalation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/cobsystems/careflow/agent/agents/booking"
	contractx "github.com/cobsystems/careflow/agent/contract"
	schedulex "github.com/cobsystems/careflow/agent/schedule"
	statex "github.com/cobsystems/careflow/agent/state"
	"github.com/cobsystems/careflow/pkg/metrics"
)

const (
	classifyContextTurns = 10
	escalationThreshold  = 3
)

const (
	replyEscalated = "I'm connecting you with a human agent. Your ticket ID is %s. Someone will follow up with you shortly."
	replyGeneral   = "I can help you book a clinical appointment or a marketing meeting, and answer questions about our services. What would you like to do?"
	replyNoAnswer  = "I don't have an answer for that right now, but I can connect you with a human agent if you'd like."
	replyFinishUp  = "Please reply 'YES' to confirm your pending booking or 'NO' to make changes before we move on."
)

// Phrases and words that force escalation regardless of classification.
var (
	escalationPhrases = []string{"human", "agent", "representative", "talk to person"}
	frustrationWords  = []string{"frustrated", "angry", "annoyed", "not helping", "useless"}
)

// TicketStore persists escalation tickets.
type TicketStore interface {
	SaveTicket(ctx context.Context, t schedulex.Ticket) error
}

// Orchestrator routes turns. Turns for the same session are serialized; turns
// for different sessions run concurrently.
type Orchestrator struct {
	sessions statex.Store
	oracle   contractx.Oracle
	knowl    contractx.Retriever
	tickets  TicketStore
	agents   map[contractx.Domain]*booking.Agent

	locks sync.Map // session id -> *sync.Mutex
	now   func() time.Time
}

func New(sessions statex.Store, oracle contractx.Oracle, knowl contractx.Retriever, tickets TicketStore, agents ...*booking.Agent) (*Orchestrator, error) {
	if sessions == nil {
		return nil, errors.New("orchestrator: session store is required")
	}
	if oracle == nil {
		return nil, errors.New("orchestrator: oracle is required")
	}
	if tickets == nil {
		return nil, errors.New("orchestrator: ticket store is required")
	}
	byDomain := make(map[contractx.Domain]*booking.Agent, len(agents))
	for _, a := range agents {
		if a == nil {
			continue
		}
		byDomain[a.Domain()] = a
	}
	if len(byDomain) == 0 {
		return nil, errors.New("orchestrator: at least one domain agent is required")
	}
	return &Orchestrator{
		sessions: sessions,
		oracle:   oracle,
		knowl:    knowl,
		tickets:  tickets,
		agents:   byDomain,
		now:      time.Now,
	}, nil
}

// ProcessMessage handles one user turn end to end. The reply is always safe to
// show the user; escalated reports whether this turn raised a ticket. A
// non-nil error marks an operational fault that was already folded into the
// reply.
func (o *Orchestrator) ProcessMessage(ctx context.Context, sessionID, text string) (reply string, escalated bool, err error) {
	text = strings.TrimSpace(text)
	if sessionID == "" || text == "" {
		return "", false, fmt.Errorf("%w: session id and text are required", contractx.ErrValidation)
	}

	mu := o.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	sess, err := o.sessions.Load(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, statex.ErrSessionNotFound) {
			return "", false, err
		}
		sess = statex.NewSession(sessionID, o.now())
	}

	sess.Append(statex.RoleUser, text, o.now())

	intent := o.classify(ctx, sess, text)
	metrics.TurnsTotal.WithLabelValues(string(intent)).Inc()
	log.Debug().Str("session_id", sessionID).Str("intent", string(intent)).Msg("turn classified")

	var turnErr error
	switch intent {
	case contractx.IntentConfirmation:
		reply, turnErr = o.route(ctx, sess, sess.PendingDomain, text)
	case contractx.IntentEscalate:
		reply, escalated, turnErr = o.escalate(ctx, sess)
	case contractx.IntentClinical:
		reply, turnErr = o.route(ctx, sess, contractx.DomainClinical, text)
	case contractx.IntentMarketing:
		reply, turnErr = o.route(ctx, sess, contractx.DomainMarketing, text)
	case contractx.IntentKnowledge:
		reply = o.answerKnowledge(ctx, text)
	default:
		reply = o.handleGeneral(sess, text)
	}

	sess.Append(statex.RoleAssistant, reply, o.now())

	if saveErr := o.sessions.Save(ctx, sess); saveErr != nil {
		log.Error().Err(saveErr).Str("session_id", sessionID).Msg("session save failed")
		if turnErr == nil {
			turnErr = saveErr
		}
	}
	return reply, escalated, turnErr
}

// ResetSession discards all state for the session.
func (o *Orchestrator) ResetSession(ctx context.Context, sessionID string) error {
	mu := o.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()
	return o.sessions.Delete(ctx, sessionID)
}

// classify applies the precedence ladder: the armed confirmation gate first,
// then forced escalation triggers, then the oracle.
func (o *Orchestrator) classify(ctx context.Context, sess *statex.Session, text string) contractx.Intent {
	if sess.PendingConfirmation && (contractx.IsYes(text) || contractx.IsNo(text)) {
		return contractx.IntentConfirmation
	}
	if forcesEscalation(text) || sess.FailureCount >= escalationThreshold {
		return contractx.IntentEscalate
	}

	label, err := o.oracle.Classify(ctx, sess.ContextTurns(classifyContextTurns), text)
	if err != nil {
		metrics.OracleFailuresTotal.WithLabelValues("classify").Inc()
		log.Warn().Err(err).Str("session_id", sess.ID).Msg("classification failed")
		return contractx.IntentGeneral
	}
	return label
}

// route dispatches to a domain agent. When the other domain holds an armed
// confirmation, the switch is deferred until that gate resolves.
func (o *Orchestrator) route(ctx context.Context, sess *statex.Session, domain contractx.Domain, text string) (string, error) {
	if sess.PendingConfirmation && sess.PendingDomain != domain {
		return replyFinishUp, nil
	}
	agent, ok := o.agents[domain]
	if !ok {
		return replyGeneral, nil
	}
	return agent.Handle(ctx, sess, text)
}

// escalate raises a ticket carrying the transcript. The failure counter resets
// first so a persistence failure cannot re-trigger on the next turn.
func (o *Orchestrator) escalate(ctx context.Context, sess *statex.Session) (string, bool, error) {
	sess.FailureCount = 0

	ticket := schedulex.Ticket{
		ID:        newTicketID(),
		SessionID: sess.ID,
		CreatedAt: o.now(),
		Status:    "open",
		History:   sess.Transcript(),
	}
	if err := o.tickets.SaveTicket(ctx, ticket); err != nil {
		log.Error().Err(err).Str("session_id", sess.ID).Msg("ticket persist failed")
		return "Sorry, I couldn't reach a human agent right now. Please try again shortly.",
			false, fmt.Errorf("%w: %v", contractx.ErrEscalationPersist, err)
	}

	sess.Escalated = true
	metrics.EscalationsTotal.Inc()
	log.Info().Str("session_id", sess.ID).Str("ticket_id", ticket.ID).Msg("session escalated")
	return fmt.Sprintf(replyEscalated, ticket.ID), true, nil
}

func (o *Orchestrator) answerKnowledge(ctx context.Context, text string) string {
	if o.knowl == nil {
		return replyNoAnswer
	}
	snippets, err := o.knowl.Query(ctx, text)
	if err != nil {
		log.Warn().Err(err).Msg("knowledge query failed")
		return replyNoAnswer
	}
	if len(snippets) == 0 {
		return replyNoAnswer
	}

	var b strings.Builder
	b.WriteString("Here's what I found:")
	for _, s := range snippets {
		fmt.Fprintf(&b, "\n\n%s\n(Source: %s)", s.Content, s.Source)
	}
	return b.String()
}

// handleGeneral serves small talk. An unanswered question counts toward the
// escalation threshold.
func (o *Orchestrator) handleGeneral(sess *statex.Session, text string) string {
	if strings.Contains(text, "?") {
		sess.FailureCount++
	}
	return replyGeneral
}

func (o *Orchestrator) sessionLock(sessionID string) *sync.Mutex {
	v, _ := o.locks.LoadOrStore(sessionID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func forcesEscalation(text string) bool {
	lowered := strings.ToLower(text)
	for _, p := range escalationPhrases {
		if strings.Contains(lowered, p) {
			return true
		}
	}
	for _, w := range frustrationWords {
		if strings.Contains(lowered, w) {
			return true
		}
	}
	return false
}

// newTicketID mints ids shaped TKT-XXXXXXXX from the first eight hex digits
// of a fresh uuid.
func newTicketID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "TKT-" + strings.ToUpper(raw[:8])
}
