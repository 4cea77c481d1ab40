// Command seed populates a development database with providers,
// availability rules, generated slots, and a handful of bookings.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/clinicflow/schedcore/internal/availability"
	"github.com/clinicflow/schedcore/internal/booking"
	"github.com/clinicflow/schedcore/internal/slots"
	"github.com/clinicflow/schedcore/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	providers := flag.Int("providers", 3, "number of providers to seed")
	days := flag.Int("days", 14, "days of slots to generate per provider")
	bookings := flag.Int("bookings", 5, "appointments to book per provider")
	seed := flag.Uint64("seed", 1, "faker seed for reproducible data")
	flag.Parse()

	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		log.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("ping db: %v", err)
	}

	logger := logging.New("info", "text")
	faker := gofakeit.New(*seed)

	ruleStore := availability.NewStore(pool)
	slotStore := slots.NewStore(pool)
	apptStore := booking.NewStore(pool)
	slotService := slots.NewService(ruleStore, slotStore, logger)
	ledger := booking.NewLedger(apptStore, slotStore, ruleStore, nil, nil, nil, logger)

	now := time.Now().UTC()

	for i := 0; i < *providers; i++ {
		providerID := uuid.New()

		rule, err := ruleStore.EnsureRules(ctx, providerID)
		if err != nil {
			log.Fatalf("ensure rules for %s: %v", providerID, err)
		}

		count, err := slotService.GenerateAndPersist(ctx, providerID, slots.GenerateOptions{
			From: now,
			To:   now.AddDate(0, 0, *days),
			Now:  now,
		})
		if err != nil {
			log.Fatalf("generate slots for %s: %v", providerID, err)
		}
		logger.Info("seeded provider", "provider_id", providerID, "slots", count, "types", len(rule.AppointmentTypes))

		booked := 0
		available, err := slotStore.ListAvailable(ctx, providerID, now, now.AddDate(0, 0, *days), "")
		if err != nil {
			log.Fatalf("list slots for %s: %v", providerID, err)
		}
		for _, slot := range available {
			if booked >= *bookings {
				break
			}
			patient := booking.Principal{ID: uuid.New(), Role: booking.RolePatient}
			appt, err := ledger.Book(ctx, patient, slot.ID, booking.PatientInfo{
				Name:           faker.Name(),
				Email:          faker.Email(),
				Phone:          faker.Phone(),
				ReasonForVisit: faker.Sentence(6),
			})
			if err != nil {
				// Lead-time and day-cap rejections are expected for
				// near-term slots; move on to the next one.
				continue
			}
			logger.Info("booked appointment", "appointment_id", appt.ID, "start", slot.StartTime)
			booked++
		}
	}

	logger.Info("seeding complete", "providers", *providers)
}
