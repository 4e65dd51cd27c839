package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"servio/internal/config"
	"servio/internal/database"
	"servio/internal/domain"
	"servio/internal/repository"
	"servio/internal/schedule"
)

// Seeds a demo marketplace: a few accounts, listings with weekly templates,
// a recurring weekly appointment with one cancelled occurrence, and the
// slot grid for the coming two weeks.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("SERVIO_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}

	db, err := database.Connect(cfg.Database, log)
	if err != nil {
		log.Fatal("db connect failed", zap.Error(err))
	}
	if err := repository.Migrate(db); err != nil {
		log.Fatal("migrate failed", zap.Error(err))
	}

	log.Info("cleaning old data")
	db.Exec("DELETE FROM recurrence_exceptions")
	db.Exec("DELETE FROM appointments")
	db.Exec("DELETE FROM provider_slots")
	db.Exec("DELETE FROM provider_availability")
	db.Exec("DELETE FROM listings")
	db.Exec("DELETE FROM refresh_tokens")
	db.Exec("DELETE FROM users")

	ctx := context.Background()
	users := repository.NewUserRepository(db)
	listings := repository.NewListingRepository(db)
	rules := repository.NewAvailabilityRepository(db)
	slots := repository.NewSlotRepository(db)
	appts := repository.NewAppointmentRepository(db)
	exceptions := repository.NewRecurrenceExceptionRepository(db)

	mustUser := func(email, name, role, address string) *domain.User {
		hash, _ := bcrypt.GenerateFromPassword([]byte("demo123"), bcrypt.DefaultCost)
		u := &domain.User{
			Email:        email,
			PasswordHash: string(hash),
			Name:         name,
			Role:         domain.UserRole(role),
			Address:      address,
		}
		if err := users.Create(ctx, u); err != nil {
			log.Fatal("seed user failed", zap.String("email", email), zap.Error(err))
		}
		return u
	}

	log.Info("creating users")
	mustUser("admin@servio.app", "Admin", "admin", "")
	provider := mustUser("maria@servio.app", "Maria Santos", "provider", "")
	client := mustUser("dana@servio.app", "Dana Lee", "client", "12 Elm Street")

	log.Info("creating listings")
	tpl, _ := json.Marshal(domain.DefaultWeeklyTemplate())
	listing := &domain.Listing{
		ProviderID:      provider.ID,
		Title:           "Standard home cleaning",
		Description:     "Two-hour visit, supplies included",
		DurationMinutes: 120,
		PricePerVisit:   90,
		WeeklyTemplate:  tpl,
		IsActive:        true,
	}
	if err := listings.Create(ctx, listing); err != nil {
		log.Fatal("seed listing failed", zap.Error(err))
	}

	log.Info("creating availability rows")
	for day := 1; day <= 5; day++ {
		rule := &domain.AvailabilityRule{
			ProviderID: provider.ID,
			DayOfWeek:  day,
			StartTime:  "09:00",
			EndTime:    "17:00",
			IsActive:   true,
		}
		if err := rules.Save(ctx, rule); err != nil {
			log.Fatal("seed availability failed", zap.Error(err))
		}
	}

	log.Info("creating recurring appointment")
	anchor := nextWeekday(time.Now().UTC(), time.Tuesday)
	start := anchor.Add(10 * time.Hour)
	dow := int(time.Tuesday)
	base := &domain.Appointment{
		ProviderID:      provider.ID,
		ClientID:        client.ID,
		ListingID:       listing.ID,
		StartTime:       start,
		EndTime:         start.Add(2 * time.Hour),
		Status:          domain.AppointmentConfirmed,
		RecurrenceType:  domain.RecurrenceWeekly,
		DayOfWeek:       &dow,
		AnchorStartDate: anchor,
		SeriesActive:    true,
		ClientName:      client.Name,
		ServiceName:     listing.Title,
		Address:         client.Address,
	}
	if err := appts.Create(ctx, base); err != nil {
		log.Fatal("seed appointment failed", zap.Error(err))
	}

	// Skip the third occurrence so the demo calendar shows a gap.
	skipped := anchor.AddDate(0, 0, 14)
	err = exceptions.Upsert(ctx, &domain.RecurrenceException{
		RuleID:         base.ID,
		OccurrenceDate: skipped,
		ActionType:     domain.ExceptionCancelled,
		Notes:          "client away",
	})
	if err != nil {
		log.Fatal("seed exception failed", zap.Error(err))
	}

	log.Info("materializing slot grid")
	generator := schedule.NewGenerator(log)
	from := schedule.DateOnly(time.Now().UTC())
	to := from.AddDate(0, 0, 14)
	rows, err := rules.ListForProvider(ctx, provider.ID)
	if err != nil {
		log.Fatal("load availability failed", zap.Error(err))
	}
	implied := generator.GenerateRange(provider.ID, listing.ID, from, to, func(w time.Weekday) []schedule.Window {
		return schedule.WindowsFromRows(rows, int(w))
	})
	inserted, err := slots.InsertMissing(ctx, implied)
	if err != nil {
		log.Fatal("seed slots failed", zap.Error(err))
	}

	log.Info("seed complete",
		zap.Int64("provider_id", provider.ID),
		zap.Int64("listing_id", listing.ID),
		zap.Int64("rule_id", base.ID),
		zap.Int("slots", inserted))
}

func nextWeekday(after time.Time, day time.Weekday) time.Time {
	d := schedule.DateOnly(after).AddDate(0, 0, 1)
	for d.Weekday() != day {
		d = d.AddDate(0, 0, 1)
	}
	return d
}
