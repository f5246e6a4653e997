package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// MailProfile describes one named SMTP transport. The profile is chosen
// once at startup; handlers never select a transport per request.
type MailProfile struct {
	Name string
	Host string
	Port int
	// SSL selects implicit TLS (SMTPS). All built-in profiles use port 465
	// with implicit TLS, matching the providers they point at.
	SSL bool
}

// Built-in transport profiles. "qq" is the default when MAIL_PROFILE is unset.
var mailProfiles = map[string]MailProfile{
	"qq":    {Name: "qq", Host: "smtp.qq.com", Port: 465, SSL: true},
	"gmail": {Name: "gmail", Host: "smtp.gmail.com", Port: 465, SSL: true},
	"163":   {Name: "163", Host: "smtp.163.com", Port: 465, SSL: true},
}

// Config holds all configuration for the application. By centralizing these
// settings, we make the application easier to manage and deploy.
type Config struct {
	// --- Server & Paths ---
	ServerAddr  string
	DataPath    string
	DbPath      string
	FrontendURL string

	// In production mode the delivery-failure detail is withheld from
	// API responses and only logged server-side.
	Production bool

	// --- Security ---
	JwtSecret string

	// --- Mail account & transport ---
	MailUser     string
	MailPassword string
	MailSender   string
	MailProfile  MailProfile
	MailTimeout  time.Duration

	// --- Mail retry & rate limiting ---
	MailMaxAttempts   int
	MailBaseDelay     time.Duration
	RateLimitWindow   time.Duration
	RateLimitMaxSends int

	// --- Bootstrap admin (optional, seeded once into an empty store) ---
	AdminUser     string
	AdminPassword string
}

// New creates a new Config instance by loading values from environment
// variables. It validates that critical variables are present and returns an
// error if the configuration is invalid, preventing the server from starting.
// A missing mail credential is a configuration error, distinct from any
// runtime delivery failure.
func New() (*Config, error) {
	cfg := &Config{
		ServerAddr:    os.Getenv("SERVER_ADDR"),
		DataPath:      os.Getenv("DATA_PATH"),
		FrontendURL:   os.Getenv("FRONTEND_URL"),
		JwtSecret:     os.Getenv("JWT_SECRET"),
		MailUser:      os.Getenv("MAIL_USER"),
		MailPassword:  os.Getenv("MAIL_PASSWORD"),
		MailSender:    os.Getenv("MAIL_SENDER"),
		AdminUser:     os.Getenv("ADMIN_USER"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		Production:    os.Getenv("APP_ENV") == "production",
	}

	// --- Provide sensible defaults for non-critical values ---
	if cfg.ServerAddr == "" {
		cfg.ServerAddr = ":8080"
	}
	if cfg.DataPath == "" {
		cfg.DataPath = "./data"
	}
	if cfg.MailSender == "" {
		cfg.MailSender = cfg.MailUser
	}

	// --- Validate critical required values ---
	// The application will "fail fast" if these are not set.
	if cfg.JwtSecret == "" {
		return nil, errors.New("FATAL: JWT_SECRET environment variable is not set")
	}
	if cfg.MailUser == "" || cfg.MailPassword == "" {
		return nil, errors.New("FATAL: MAIL_USER and MAIL_PASSWORD environment variables are required")
	}

	// --- Transport profile selection ---
	profile, err := resolveMailProfile()
	if err != nil {
		return nil, err
	}
	cfg.MailProfile = profile

	// --- Tunables with defaults ---
	cfg.MailTimeout, err = durationEnv("MAIL_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.MailMaxAttempts, err = intEnv("MAIL_MAX_ATTEMPTS", 3)
	if err != nil {
		return nil, err
	}
	cfg.MailBaseDelay, err = durationEnv("MAIL_BASE_DELAY", time.Second)
	if err != nil {
		return nil, err
	}
	cfg.RateLimitWindow, err = durationEnv("RATE_LIMIT_WINDOW", time.Hour)
	if err != nil {
		return nil, err
	}
	cfg.RateLimitMaxSends, err = intEnv("RATE_LIMIT_MAX_SENDS", 10)
	if err != nil {
		return nil, err
	}

	cfg.DbPath = filepath.Join(cfg.DataPath, "databases")

	return cfg, nil
}

// resolveMailProfile picks the SMTP transport from MAIL_PROFILE. An unknown
// profile name is a configuration error rather than a silent fallback.
// The "custom" profile reads MAIL_HOST and MAIL_PORT directly.
func resolveMailProfile() (MailProfile, error) {
	name := os.Getenv("MAIL_PROFILE")
	if name == "" {
		name = "qq"
	}

	if name == "custom" {
		host := os.Getenv("MAIL_HOST")
		if host == "" {
			return MailProfile{}, errors.New("FATAL: MAIL_PROFILE=custom requires MAIL_HOST")
		}
		port, err := strconv.Atoi(os.Getenv("MAIL_PORT"))
		if err != nil || port <= 0 {
			return MailProfile{}, errors.New("FATAL: MAIL_PROFILE=custom requires a numeric MAIL_PORT")
		}
		return MailProfile{Name: "custom", Host: host, Port: port, SSL: port == 465}, nil
	}

	profile, ok := mailProfiles[name]
	if !ok {
		return MailProfile{}, fmt.Errorf("FATAL: unknown MAIL_PROFILE %q", name)
	}
	return profile, nil
}

func intEnv(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("FATAL: %s must be a positive integer, got %q", key, raw)
	}
	return v, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("FATAL: %s must be a positive duration, got %q", key, raw)
	}
	return v, nil
}
