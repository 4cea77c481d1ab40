package availability

import (
	"context"
	"encoding/json"
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

// Store persists availability rules per provider.
type Store struct {
	db DB
}

// NewStore creates an availability store.
func NewStore(db DB) *Store {
	if db == nil {
		panic("availability: db required")
	}
	return &Store{db: db}
}

const ruleColumns = `provider_id, weekly_template, appointment_types, blocked_intervals, policy, created_at, updated_at`

// GetRules loads a provider's rules. Returns ErrNotConfigured when the
// provider has no stored rules yet.
func (s *Store) GetRules(ctx context.Context, providerID uuid.UUID) (*Rule, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+ruleColumns+`
		FROM availability_rules
		WHERE provider_id = $1`, providerID)
	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotConfigured
		}
		return nil, fmt.Errorf("availability: get rules: %w", err)
	}
	return rule, nil
}

// UpsertRules validates and writes a provider's full rule document.
func (s *Store) UpsertRules(ctx context.Context, rule *Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	template, types, blocked, policy, err := marshalRule(rule)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = s.db.Exec(ctx, `
		INSERT INTO availability_rules (provider_id, weekly_template, appointment_types, blocked_intervals, policy, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (provider_id) DO UPDATE SET
			weekly_template = EXCLUDED.weekly_template,
			appointment_types = EXCLUDED.appointment_types,
			blocked_intervals = EXCLUDED.blocked_intervals,
			policy = EXCLUDED.policy,
			updated_at = EXCLUDED.updated_at`,
		rule.ProviderID, template, types, blocked, policy, now)
	if err != nil {
		return fmt.Errorf("availability: upsert rules: %w", err)
	}
	return nil
}

// EnsureRules returns the provider's rules, creating the default
// configuration on first use.
func (s *Store) EnsureRules(ctx context.Context, providerID uuid.UUID) (*Rule, error) {
	rule, err := s.GetRules(ctx, providerID)
	if err == nil {
		return rule, nil
	}
	if !errors.Is(err, ErrNotConfigured) {
		return nil, err
	}
	def := DefaultRule(providerID)
	if err := s.UpsertRules(ctx, def); err != nil {
		return nil, err
	}
	return s.GetRules(ctx, providerID)
}

// AddBlockedInterval appends a blocked interval to the provider's rules.
func (s *Store) AddBlockedInterval(ctx context.Context, providerID uuid.UUID, interval BlockedInterval) (*BlockedInterval, error) {
	if !interval.StartTime.Before(interval.EndTime) {
		return nil, fmt.Errorf("%w: blocked interval start not before end", ErrInvalidRule)
	}
	if interval.ID == uuid.Nil {
		interval.ID = uuid.New()
	}
	err := s.mutateBlockedIntervals(ctx, providerID, func(intervals []BlockedInterval) ([]BlockedInterval, error) {
		return append(intervals, interval), nil
	})
	if err != nil {
		return nil, err
	}
	return &interval, nil
}

// RemoveBlockedInterval deletes one interval by id.
func (s *Store) RemoveBlockedInterval(ctx context.Context, providerID, intervalID uuid.UUID) error {
	return s.mutateBlockedIntervals(ctx, providerID, func(intervals []BlockedInterval) ([]BlockedInterval, error) {
		out := intervals[:0]
		found := false
		for _, b := range intervals {
			if b.ID == intervalID {
				found = true
				continue
			}
			out = append(out, b)
		}
		if !found {
			return nil, ErrBlockedIntervalNotFound
		}
		return out, nil
	})
}

// ClearBlockedIntervals removes every blocked interval for the provider.
func (s *Store) ClearBlockedIntervals(ctx context.Context, providerID uuid.UUID) error {
	ct, err := s.db.Exec(ctx, `
		UPDATE availability_rules
		SET blocked_intervals = '[]'::jsonb, updated_at = $2
		WHERE provider_id = $1`, providerID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("availability: clear blocked intervals: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotConfigured
	}
	return nil
}

// mutateBlockedIntervals applies fn to the interval list under a row lock
// so concurrent edits from the provider do not lose writes.
func (s *Store) mutateBlockedIntervals(ctx context.Context, providerID uuid.UUID, fn func([]BlockedInterval) ([]BlockedInterval, error)) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("availability: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var raw []byte
	err = tx.QueryRow(ctx, `
		SELECT blocked_intervals FROM availability_rules
		WHERE provider_id = $1
		FOR UPDATE`, providerID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotConfigured
		}
		return fmt.Errorf("availability: lock rules: %w", err)
	}

	var intervals []BlockedInterval
	if err := json.Unmarshal(raw, &intervals); err != nil {
		return fmt.Errorf("availability: decode blocked intervals: %w", err)
	}

	updated, err := fn(intervals)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(updated)
	if err != nil {
		return fmt.Errorf("availability: encode blocked intervals: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE availability_rules
		SET blocked_intervals = $2, updated_at = $3
		WHERE provider_id = $1`, providerID, encoded, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("availability: update blocked intervals: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("availability: commit: %w", err)
	}
	return nil
}

func marshalRule(rule *Rule) (template, types, blocked, policy []byte, err error) {
	if template, err = json.Marshal(rule.WeeklyTemplate); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("availability: encode template: %w", err)
	}
	if types, err = json.Marshal(rule.AppointmentTypes); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("availability: encode types: %w", err)
	}
	if rule.BlockedIntervals == nil {
		rule.BlockedIntervals = []BlockedInterval{}
	}
	if blocked, err = json.Marshal(rule.BlockedIntervals); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("availability: encode blocked intervals: %w", err)
	}
	if policy, err = json.Marshal(rule.Policy); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("availability: encode policy: %w", err)
	}
	return template, types, blocked, policy, nil
}

func scanRule(row pgx.Row) (*Rule, error) {
	var (
		rule                            Rule
		template, types, blocked, policy []byte
	)
	if err := row.Scan(&rule.ProviderID, &template, &types, &blocked, &policy, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(template, &rule.WeeklyTemplate); err != nil {
		return nil, fmt.Errorf("decode template: %w", err)
	}
	if err := json.Unmarshal(types, &rule.AppointmentTypes); err != nil {
		return nil, fmt.Errorf("decode types: %w", err)
	}
	if err := json.Unmarshal(blocked, &rule.BlockedIntervals); err != nil {
		return nil, fmt.Errorf("decode blocked intervals: %w", err)
	}
	if err := json.Unmarshal(policy, &rule.Policy); err != nil {
		return nil, fmt.Errorf("decode policy: %w", err)
	}
	return &rule, nil
}
