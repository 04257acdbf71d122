package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Settings carries every knob the automation engine reads. Values come from
// env (godotenv loads .env first) and are validated once at startup.
type Settings struct {
	// Tick of the scheduler loop.
	TickInterval time.Duration `validate:"gt=0"`
	// How often the workflow-job poll runs.
	WorkflowPollInterval time.Duration `validate:"gte=30s"`
	// How often the calendar sync runs.
	CalendarSyncInterval time.Duration `validate:"gte=5m"`
	// Daily jobs run once per calendar day at or after this hour.
	DailyRunHour int `validate:"gte=0,lte=23"`
	// IANA timezone the daily gate is evaluated in.
	Timezone string `validate:"required"`
	// Notification inbox retention window.
	RetentionDays int `validate:"gte=1,lte=3650"`
	// Public URL embedded in tenant-facing message bodies.
	AppPublicURL string `validate:"required,url"`
}

func LoadSettings() (Settings, error) {
	godotenv.Load()

	s := Settings{
		TickInterval:         durationFromEnv("SCHEDULER_TICK_SECONDS", 15*time.Second),
		WorkflowPollInterval: durationFromEnv("WORKFLOW_POLL_INTERVAL_SECONDS", 60*time.Second),
		CalendarSyncInterval: minutesFromEnv("CALENDAR_SYNC_INTERVAL_MINUTES", 30*time.Minute),
		DailyRunHour:         intFromEnv("DAILY_RUN_HOUR", 5),
		Timezone:             stringFromEnv("SCHEDULER_TIMEZONE", "UTC"),
		RetentionDays:        intFromEnv("NOTIFICATION_RETENTION_DAYS", 90),
		AppPublicURL:         stringFromEnv("APP_PUBLIC_URL", "https://app.casaora.example"),
	}

	if err := validator.New().Struct(s); err != nil {
		return Settings{}, fmt.Errorf("invalid engine settings: %w", err)
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return Settings{}, fmt.Errorf("invalid SCHEDULER_TIMEZONE %q: %w", s.Timezone, err)
	}
	return s, nil
}

// Location resolves the configured timezone. Settings are validated at load,
// so failure here falls back to UTC instead of erroring again.
func (s Settings) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func stringFromEnv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func durationFromEnv(key string, def time.Duration) time.Duration {
	n := intFromEnv(key, -1)
	if n <= 0 {
		return def
	}
	return time.Duration(n) * time.Second
}

func minutesFromEnv(key string, def time.Duration) time.Duration {
	n := intFromEnv(key, -1)
	if n <= 0 {
		return def
	}
	return time.Duration(n) * time.Minute
}
