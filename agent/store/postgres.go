// Package store implements the persistent slot store on Postgres via bun.
// Slot rows are pre-provisioned by an external process; this package only
// queries them and performs the conditional booking flip.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	contractx "github.com/cobsystems/careflow/agent/contract"
	schedulex "github.com/cobsystems/careflow/agent/schedule"
)

type Config struct {
	DSN          string        `envconfig:"DSN" split_words:"true" required:"true"`
	MaxOpenConns int           `envconfig:"MAX_OPEN_CONNS" split_words:"true" default:"8"`
	Timeout      time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

type slotRow struct {
	bun.BaseModel `bun:"table:slots,alias:s"`

	ResourceID   string `bun:"resource_id,pk"`
	SlotDatetime string `bun:"slot_datetime,pk"`
	ResourceName string `bun:"resource_name"`
	Category     string `bun:"category,nullzero"`
	Domain       string `bun:"domain"`
	Available    bool   `bun:"available"`
	BookingID    string `bun:"booking_id,nullzero"`
	CustomerID   string `bun:"customer_id,nullzero"`
	CustomerName string `bun:"customer_name,nullzero"`
	ContactEmail string `bun:"contact_email,nullzero"`
}

type ticketRow struct {
	bun.BaseModel `bun:"table:escalation_tickets,alias:t"`

	TicketID  string    `bun:"ticket_id,pk"`
	SessionID string    `bun:"session_id"`
	CreatedAt time.Time `bun:"created_at"`
	Status    string    `bun:"status"`
	History   string    `bun:"conversation_history"`
}

// SlotStore is the Postgres-backed schedule store.
type SlotStore struct {
	db *bun.DB
}

var _ schedulex.Store = (*SlotStore)(nil)

func Open(cfg Config) (*SlotStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("%w: database dsn is required", contractx.ErrValidation)
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(dsn),
		pgdriver.WithTimeout(cfg.Timeout),
	))
	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	return &SlotStore{db: bun.NewDB(sqldb, pgdialect.New())}, nil
}

func MustOpen(cfg Config) *SlotStore {
	s, err := Open(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *SlotStore) Close() error {
	return s.db.Close()
}

// ListAvailable returns available slots for the query's date and filters,
// ordered by datetime ascending. Datetimes are stored as local-convention
// text, so lexicographic range predicates are chronological.
func (s *SlotStore) ListAvailable(ctx context.Context, q schedulex.Query) ([]schedulex.Slot, error) {
	if strings.TrimSpace(q.Date) == "" {
		return nil, fmt.Errorf("%w: query date is required", contractx.ErrValidation)
	}

	var rows []slotRow
	sel := s.db.NewSelect().
		Model(&rows).
		Where("s.domain = ?", string(q.Domain)).
		Where("s.available = TRUE").
		Where("s.slot_datetime LIKE ?", q.Date+"%")

	if q.ResourceName != "" {
		sel = sel.Where("s.resource_name ILIKE ?", "%"+q.ResourceName+"%")
	}
	if q.Category != "" {
		sel = sel.Where("s.category ILIKE ?", "%"+q.Category+"%")
	}
	if q.StartTime != "" {
		sel = sel.Where("s.slot_datetime >= ?", q.Date+" "+q.StartTime)
	}
	if q.EndTime != "" {
		sel = sel.Where("s.slot_datetime <= ?", q.Date+" "+q.EndTime)
	}

	if err := sel.Order("slot_datetime ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list available slots: %w", err)
	}

	slots := make([]schedulex.Slot, 0, len(rows))
	for _, r := range rows {
		slots = append(slots, schedulex.Slot{
			ResourceID:   r.ResourceID,
			ResourceName: r.ResourceName,
			Category:     r.Category,
			Domain:       contractx.Domain(r.Domain),
			Datetime:     r.SlotDatetime,
			Available:    r.Available,
			BookingID:    r.BookingID,
		})
	}
	return slots, nil
}

// ConditionalBook flips one slot to booked, guarded by available=TRUE, and
// reports the number of rows affected. Zero means the slot was taken first.
func (s *SlotStore) ConditionalBook(ctx context.Context, resourceID, datetime string, b schedulex.BookingFields) (int64, error) {
	res, err := s.db.NewUpdate().
		Model((*slotRow)(nil)).
		Set("available = FALSE").
		Set("booking_id = ?", b.BookingID).
		Set("customer_id = ?", b.CustomerID).
		Set("customer_name = ?", b.CustomerName).
		Set("contact_email = ?", b.ContactEmail).
		Where("resource_id = ?", resourceID).
		Where("slot_datetime = ?", datetime).
		Where("available = TRUE").
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("conditional book %s@%s: %w", resourceID, datetime, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("conditional book rows affected: %w", err)
	}
	return rows, nil
}

// SaveTicket persists an escalation ticket.
func (s *SlotStore) SaveTicket(ctx context.Context, t schedulex.Ticket) error {
	row := ticketRow{
		TicketID:  t.ID,
		SessionID: t.SessionID,
		CreatedAt: t.CreatedAt,
		Status:    t.Status,
		History:   t.History,
	}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("save escalation ticket %s: %w", t.ID, err)
	}
	return nil
}
