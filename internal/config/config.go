package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Port        string
	DatabaseURL string
	StoreDriver string

	Timezone     string
	TicketPrefix string
	TicketPad    int
	PreviewSize  int

	JWTSecret    string
	TokenTTL     time.Duration
	CookieSecure bool

	BootstrapAdminEmail    string
	BootstrapAdminPassword string

	RateLimitPerMinute      int
	RateLimitBurst          int
	StaffRateLimitPerMinute int
	StaffRateLimitBurst     int

	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
}

// LoadEnvFile reads key=value pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("env file not found path=%s", path)
			return nil
		}
		return err
	}
	return nil
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		Port:                    port,
		DatabaseURL:             os.Getenv("DB_DSN"),
		StoreDriver:             readString("STORE_DRIVER", DriverPostgres),
		Timezone:                readString("SERVICE_TIMEZONE", "UTC"),
		TicketPrefix:            readString("TICKET_PREFIX", "A"),
		TicketPad:               readInt("TICKET_PAD", 3),
		PreviewSize:             readInt("BOARD_PREVIEW_SIZE", 3),
		JWTSecret:               os.Getenv("JWT_SECRET"),
		TokenTTL:                readDurationSeconds("JWT_TTL_SECONDS", 8*60*60),
		CookieSecure:            readBool("COOKIE_SECURE", false),
		BootstrapAdminEmail:     os.Getenv("BOOTSTRAP_ADMIN_EMAIL"),
		BootstrapAdminPassword:  os.Getenv("BOOTSTRAP_ADMIN_PASSWORD"),
		RateLimitPerMinute:      readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:          readInt("RATE_LIMIT_BURST", 30),
		StaffRateLimitPerMinute: readInt("STAFF_RATE_LIMIT_PER_MIN", 600),
		StaffRateLimitBurst:     readInt("STAFF_RATE_LIMIT_BURST", 120),
		LogFile:                 os.Getenv("LOG_FILE"),
		LogMaxSizeMB:            readInt("LOG_MAX_SIZE_MB", 50),
		LogMaxBackups:           readInt("LOG_MAX_BACKUPS", 5),
	}
}

func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DB_DSN is required for the postgres store")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.TicketPad <= 0 {
		return errors.New("TICKET_PAD must be positive")
	}
	if strings.TrimSpace(c.TicketPrefix) == "" {
		return errors.New("TICKET_PREFIX is required")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("SERVICE_TIMEZONE: %w", err)
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	return nil
}

func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func readString(key, fallback string) string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	return raw
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}
