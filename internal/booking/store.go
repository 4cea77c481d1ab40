package booking

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

// Store persists appointments and their audit history.
type Store struct {
	db DB
}

// NewStore creates an appointment store.
func NewStore(db DB) *Store {
	if db == nil {
		panic("booking: db required")
	}
	return &Store{db: db}
}

const apptColumns = `id, slot_id, provider_id, client_id, patient_name, patient_email, patient_phone, reason_for_visit, status, external_event_id, cancelled_by, cancellation_reason, cancelled_at, created_at, updated_at`

// Create inserts an appointment and its first history entry atomically.
func (s *Store) Create(ctx context.Context, a *Appointment, firstAction, performedBy string) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.Status == "" {
		a.Status = StatusScheduled
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("booking: begin create: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO appointments (id, slot_id, provider_id, client_id, patient_name, patient_email, patient_phone, reason_for_visit, status, external_event_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`,
		a.ID, a.SlotID, a.ProviderID, a.ClientID, a.PatientName, a.PatientEmail, a.PatientPhone,
		a.ReasonForVisit, string(a.Status), a.ExternalEventID, now)
	if err != nil {
		return fmt.Errorf("booking: insert appointment: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO appointment_history (appointment_id, action, performed_by, notes, created_at)
		VALUES ($1, $2, $3, '', $4)`,
		a.ID, firstAction, performedBy, now)
	if err != nil {
		return fmt.Errorf("booking: insert history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("booking: commit create: %w", err)
	}
	return nil
}

// GetByID loads an appointment without its history.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+apptColumns+` FROM appointments WHERE id = $1`, id)
	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("booking: get: %w", err)
	}
	return a, nil
}

// GetWithHistory loads an appointment plus its audit log. Related data is
// fetched explicitly; callers asking for history get exactly that, no
// implicit traversal.
func (s *Store) GetWithHistory(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, `
		SELECT action, performed_by, notes, created_at
		FROM appointment_history
		WHERE appointment_id = $1
		ORDER BY created_at ASC, id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("booking: load history: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.Action, &h.PerformedBy, &h.Notes, &h.Timestamp); err != nil {
			return nil, fmt.Errorf("booking: scan history: %w", err)
		}
		a.History = append(a.History, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("booking: history rows: %w", err)
	}
	return a, nil
}

// GetByExternalEventID resolves the scheduled appointment mirrored by a
// calendar event.
func (s *Store) GetByExternalEventID(ctx context.Context, providerID uuid.UUID, eventID string) (*Appointment, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+apptColumns+` FROM appointments
		WHERE provider_id = $1 AND external_event_id = $2 AND status = 'scheduled'`,
		providerID, eventID)
	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("booking: get by external event: %w", err)
	}
	return a, nil
}

// ListByProvider returns a provider's appointments in a time window,
// joined against slots for the interval. Newest first.
func (s *Store) ListByProvider(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT a.id, a.slot_id, a.provider_id, a.client_id, a.patient_name, a.patient_email, a.patient_phone, a.reason_for_visit, a.status, a.external_event_id, a.cancelled_by, a.cancellation_reason, a.cancelled_at, a.created_at, a.updated_at
		FROM appointments a
		JOIN slots s ON s.id = a.slot_id
		WHERE a.provider_id = $1 AND s.start_time >= $2 AND s.start_time < $3
		ORDER BY s.start_time DESC`, providerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("booking: list by provider: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("booking: scan: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("booking: rows: %w", err)
	}
	return out, nil
}

// CountScheduledOnDay counts active appointments whose slot starts within
// [dayStart, dayEnd). Backs the max-appointments-per-day policy.
func (s *Store) CountScheduledOnDay(ctx context.Context, providerID uuid.UUID, dayStart, dayEnd time.Time) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM appointments a
		JOIN slots s ON s.id = a.slot_id
		WHERE a.provider_id = $1 AND a.status = 'scheduled'
		  AND s.start_time >= $2 AND s.start_time < $3`,
		providerID, dayStart, dayEnd).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("booking: count scheduled: %w", err)
	}
	return count, nil
}

// MarkCancelled transitions an appointment to cancelled and records who
// did it and why.
func (s *Store) MarkCancelled(ctx context.Context, id uuid.UUID, by, reason string) error {
	now := time.Now().UTC()
	ct, err := s.db.Exec(ctx, `
		UPDATE appointments
		SET status = 'cancelled', cancelled_by = $2, cancellation_reason = $3, cancelled_at = $4, updated_at = $4
		WHERE id = $1 AND status = 'scheduled'`, id, by, reason, now)
	if err != nil {
		return fmt.Errorf("booking: mark cancelled: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// MarkRescheduled closes an appointment superseded by a new one. The row
// is kept for audit.
func (s *Store) MarkRescheduled(ctx context.Context, id uuid.UUID) error {
	ct, err := s.db.Exec(ctx, `
		UPDATE appointments SET status = 'rescheduled', updated_at = $2
		WHERE id = $1 AND status = 'scheduled'`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("booking: mark rescheduled: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// MarkCompleted transitions a scheduled appointment to completed.
func (s *Store) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	ct, err := s.db.Exec(ctx, `
		UPDATE appointments SET status = 'completed', updated_at = $2
		WHERE id = $1 AND status = 'scheduled'`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("booking: mark completed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// SetExternalEventID records the mirrored calendar event id.
func (s *Store) SetExternalEventID(ctx context.Context, id uuid.UUID, eventID string) error {
	ct, err := s.db.Exec(ctx, `
		UPDATE appointments SET external_event_id = $2, updated_at = $3
		WHERE id = $1`, id, eventID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("booking: set external event: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendHistory writes one audit log entry.
func (s *Store) AppendHistory(ctx context.Context, id uuid.UUID, entry HistoryEntry) error {
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO appointment_history (appointment_id, action, performed_by, notes, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		id, entry.Action, entry.PerformedBy, entry.Notes, ts)
	if err != nil {
		return fmt.Errorf("booking: append history: %w", err)
	}
	return nil
}

// DeleteAllForProvider removes appointments and their history as part of
// a provider-initiated calendar clear.
func (s *Store) DeleteAllForProvider(ctx context.Context, providerID uuid.UUID) (int, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("booking: begin clear: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		DELETE FROM appointment_history
		WHERE appointment_id IN (SELECT id FROM appointments WHERE provider_id = $1)`, providerID)
	if err != nil {
		return 0, fmt.Errorf("booking: clear history: %w", err)
	}
	ct, err := tx.Exec(ctx, `DELETE FROM appointments WHERE provider_id = $1`, providerID)
	if err != nil {
		return 0, fmt.Errorf("booking: clear appointments: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("booking: commit clear: %w", err)
	}
	return int(ct.RowsAffected()), nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a      Appointment
		status string
	)
	err := row.Scan(
		&a.ID,
		&a.SlotID,
		&a.ProviderID,
		&a.ClientID,
		&a.PatientName,
		&a.PatientEmail,
		&a.PatientPhone,
		&a.ReasonForVisit,
		&status,
		&a.ExternalEventID,
		&a.CancelledBy,
		&a.CancellationReason,
		&a.CancelledAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = Status(status)
	return &a, nil
}
