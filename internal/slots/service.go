package slots

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicflow/schedcore/internal/availability"
	"github.com/clinicflow/schedcore/pkg/logging"
)

// RuleSource loads a provider's availability configuration.
type RuleSource interface {
	EnsureRules(ctx context.Context, providerID uuid.UUID) (*availability.Rule, error)
}

// SlotWriter is the subset of the store the generator service needs.
type SlotWriter interface {
	ListInRange(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Slot, error)
	BulkInsert(ctx context.Context, providerID uuid.UUID, appointmentType string, durationMinutes int, candidates []Candidate) (int, error)
}

// Service expands availability rules into persisted slots.
type Service struct {
	rules  RuleSource
	store  SlotWriter
	logger *logging.Logger
}

// NewService creates a slot generation service.
func NewService(rules RuleSource, store SlotWriter, logger *logging.Logger) *Service {
	if rules == nil {
		panic("slots: rule source required")
	}
	if store == nil {
		panic("slots: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{rules: rules, store: store, logger: logger}
}

// GenerateAndPersist runs the generator for a range and stores the
// accepted candidates. Re-running over an already processed range inserts
// nothing: candidates overlapping persisted slots are discarded before
// insert and the unique constraint suppresses exact duplicates that race
// past that check.
func (s *Service) GenerateAndPersist(ctx context.Context, providerID uuid.UUID, opts GenerateOptions) (int, error) {
	// A zero Now collapses the advance-booking horizon to year one and
	// disables today handling; anchor it to the wall clock.
	if opts.Now.IsZero() {
		opts.Now = time.Now().UTC()
	}

	rule, err := s.rules.EnsureRules(ctx, providerID)
	if err != nil {
		return 0, err
	}

	apptType := rule.AppointmentType(opts.AppointmentType)
	if apptType == nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownAppointmentType, opts.AppointmentType)
	}

	existing, err := s.store.ListInRange(ctx, providerID, startOfDay(opts.From), startOfDay(opts.To).AddDate(0, 0, 1))
	if err != nil {
		return 0, err
	}

	candidates, err := Generate(rule, existing, opts)
	if err != nil {
		return 0, err
	}

	inserted, err := s.store.BulkInsert(ctx, providerID, apptType.Name, apptType.DurationMinutes, candidates)
	if err != nil {
		return inserted, err
	}

	s.logger.Info("slots generated",
		"provider_id", providerID,
		"appointment_type", apptType.Name,
		"candidates", len(candidates),
		"inserted", inserted,
	)
	return inserted, nil
}
