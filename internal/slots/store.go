package slots

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store persists slots.
type Store struct {
	db DB
}

// NewStore creates a slot store.
func NewStore(db DB) *Store {
	if db == nil {
		panic("slots: db required")
	}
	return &Store{db: db}
}

const slotColumns = `id, provider_id, start_time, end_time, duration_minutes, appointment_type, is_available, external_event_id, created_at, updated_at`

// BulkInsert persists candidates as available slots. The unique constraint
// on (provider_id, start_time) makes re-runs over the same range no-ops;
// the number of rows actually inserted is returned.
func (s *Store) BulkInsert(ctx context.Context, providerID uuid.UUID, appointmentType string, durationMinutes int, candidates []Candidate) (int, error) {
	inserted := 0
	now := time.Now().UTC()
	for _, c := range candidates {
		ct, err := s.db.Exec(ctx, `
			INSERT INTO slots (id, provider_id, start_time, end_time, duration_minutes, appointment_type, is_available, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, true, $7, $7)
			ON CONFLICT (provider_id, start_time) DO NOTHING`,
			uuid.New(), providerID, c.Start, c.End, durationMinutes, appointmentType, now)
		if err != nil {
			return inserted, fmt.Errorf("slots: insert: %w", err)
		}
		inserted += int(ct.RowsAffected())
	}
	return inserted, nil
}

// GetByID loads one slot.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+slotColumns+` FROM slots WHERE id = $1`, id)
	slot, err := scanSlot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("slots: get: %w", err)
	}
	return slot, nil
}

// ListInRange returns every slot for the provider intersecting [from, to).
func (s *Store) ListInRange(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Slot, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+slotColumns+` FROM slots
		WHERE provider_id = $1 AND start_time < $3 AND end_time > $2
		ORDER BY start_time ASC`, providerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("slots: list in range: %w", err)
	}
	defer rows.Close()
	return scanSlots(rows)
}

// ListAvailable returns bookable slots, optionally filtered by type.
func (s *Store) ListAvailable(ctx context.Context, providerID uuid.UUID, from, to time.Time, appointmentType string) ([]Slot, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if appointmentType != "" {
		rows, err = s.db.Query(ctx, `
			SELECT `+slotColumns+` FROM slots
			WHERE provider_id = $1 AND is_available AND start_time >= $2 AND start_time < $3 AND appointment_type = $4
			ORDER BY start_time ASC`, providerID, from, to, appointmentType)
	} else {
		rows, err = s.db.Query(ctx, `
			SELECT `+slotColumns+` FROM slots
			WHERE provider_id = $1 AND is_available AND start_time >= $2 AND start_time < $3
			ORDER BY start_time ASC`, providerID, from, to)
	}
	if err != nil {
		return nil, fmt.Errorf("slots: list available: %w", err)
	}
	defer rows.Close()
	return scanSlots(rows)
}

// Claim atomically flips an available slot to unavailable. Exactly one of
// any number of concurrent claims on the same slot succeeds.
func (s *Store) Claim(ctx context.Context, id uuid.UUID) error {
	ct, err := s.db.Exec(ctx, `
		UPDATE slots SET is_available = false, updated_at = $2
		WHERE id = $1 AND is_available`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("slots: claim: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotAvailable
	}
	return nil
}

// Release makes a slot bookable again and clears its mirrored event id.
func (s *Store) Release(ctx context.Context, id uuid.UUID) error {
	ct, err := s.db.Exec(ctx, `
		UPDATE slots SET is_available = true, external_event_id = NULL, updated_at = $2
		WHERE id = $1`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("slots: release: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TransferClaim moves occupancy from one slot to another in a single
// transaction: the new slot is claimed first, then the old one freed, so
// there is no observable moment with both slots available.
func (s *Store) TransferClaim(ctx context.Context, oldID, newID uuid.UUID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("slots: begin transfer: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	ct, err := tx.Exec(ctx, `
		UPDATE slots SET is_available = false, updated_at = $2
		WHERE id = $1 AND is_available`, newID, now)
	if err != nil {
		return fmt.Errorf("slots: claim new: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotAvailable
	}

	ct, err = tx.Exec(ctx, `
		UPDATE slots SET is_available = true, external_event_id = NULL, updated_at = $2
		WHERE id = $1`, oldID, now)
	if err != nil {
		return fmt.Errorf("slots: release old: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("slots: commit transfer: %w", err)
	}
	return nil
}

// SetExternalEventID records the mirrored calendar event for a slot.
func (s *Store) SetExternalEventID(ctx context.Context, id uuid.UUID, eventID string) error {
	ct, err := s.db.Exec(ctx, `
		UPDATE slots SET external_event_id = $2, updated_at = $3
		WHERE id = $1`, id, eventID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("slots: set external event: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// BlockOverlapping marks available slots intersecting [start, end) as
// unavailable and tags them with the external event that occupies them.
// Used by reconciliation when an event appears directly in the provider's
// calendar.
func (s *Store) BlockOverlapping(ctx context.Context, providerID uuid.UUID, start, end time.Time, externalEventID string) (int, error) {
	ct, err := s.db.Exec(ctx, `
		UPDATE slots SET is_available = false, external_event_id = $4, updated_at = $5
		WHERE provider_id = $1 AND is_available AND start_time < $3 AND end_time > $2`,
		providerID, start, end, externalEventID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("slots: block overlapping: %w", err)
	}
	return int(ct.RowsAffected()), nil
}

// ReleaseByExternalEvent frees slots held by an external calendar event
// that was removed. Slots owned by an appointment are left untouched.
func (s *Store) ReleaseByExternalEvent(ctx context.Context, providerID uuid.UUID, externalEventID string) (int, error) {
	ct, err := s.db.Exec(ctx, `
		UPDATE slots SET is_available = true, external_event_id = NULL, updated_at = $3
		WHERE provider_id = $1 AND external_event_id = $2
		  AND NOT EXISTS (
			SELECT 1 FROM appointments a
			WHERE a.slot_id = slots.id AND a.status = 'scheduled'
		  )`, providerID, externalEventID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("slots: release by external event: %w", err)
	}
	return int(ct.RowsAffected()), nil
}

// DeleteAllForProvider removes every slot, as part of a calendar clear.
func (s *Store) DeleteAllForProvider(ctx context.Context, providerID uuid.UUID) (int, error) {
	ct, err := s.db.Exec(ctx, `DELETE FROM slots WHERE provider_id = $1`, providerID)
	if err != nil {
		return 0, fmt.Errorf("slots: delete all: %w", err)
	}
	return int(ct.RowsAffected()), nil
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	err := row.Scan(
		&s.ID,
		&s.ProviderID,
		&s.StartTime,
		&s.EndTime,
		&s.DurationMinutes,
		&s.AppointmentType,
		&s.IsAvailable,
		&s.ExternalEventID,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func scanSlots(rows pgx.Rows) ([]Slot, error) {
	var out []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("slots: scan: %w", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("slots: rows: %w", err)
	}
	return out, nil
}
