package main

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jackyqyz/gameinvite/internal/api"
	"github.com/jackyqyz/gameinvite/internal/auth"
	"github.com/jackyqyz/gameinvite/internal/config"
	"github.com/jackyqyz/gameinvite/internal/invite"
	"github.com/jackyqyz/gameinvite/internal/realtime"
	"github.com/jackyqyz/gameinvite/internal/store"
)

// main is the entry point for the game-invite backend server.
func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// --- 1. Load Configuration ---
	// A .env file is convenient during development; in production these are
	// set as actual environment variables.
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found, using environment variables from the system")
	}

	cfg, err := config.New()
	if err != nil {
		// A valid configuration is required to run, so we exit if it fails.
		// This includes the mail credentials: a missing MAIL_USER or
		// MAIL_PASSWORD stops the server before it accepts any request.
		log.Fatal().Err(err).Msg("failed to load application configuration")
	}

	// --- 2. Ensure Required Directories Exist ---
	if err := os.MkdirAll(cfg.DbPath, 0755); err != nil {
		log.Fatal().Err(err).Str("path", cfg.DbPath).Msg("failed to create database directory")
	}

	// --- 3. Initialize the State Container ---
	dbFullPath := filepath.Join(cfg.DbPath, "gameinvite.db")
	stateStore, err := store.NewService(dbFullPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize store")
	}
	defer stateStore.Close()

	if err := stateStore.InitSchema(); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database schema")
	}

	// Seed the default game list and, when configured, the bootstrap admin.
	var adminPasswordHash string
	if cfg.AdminUser != "" && cfg.AdminPassword != "" {
		if adminPasswordHash, err = auth.HashCredential(cfg.AdminPassword); err != nil {
			log.Fatal().Err(err).Msg("failed to hash bootstrap admin password")
		}
	}
	if err := stateStore.Seed(cfg.AdminUser, adminPasswordHash, cfg.MailUser); err != nil {
		log.Fatal().Err(err).Msg("failed to seed store")
	}

	log.Info().Str("db", dbFullPath).Msg("store initialized")

	// --- 4. Wire the Invite Components ---
	limiter := invite.NewRateLimiter(cfg.RateLimitWindow, cfg.RateLimitMaxSends)

	transport := invite.NewSMTPTransport(invite.SMTPConfig{
		Host:     cfg.MailProfile.Host,
		Port:     cfg.MailProfile.Port,
		Username: cfg.MailUser,
		Password: cfg.MailPassword,
		Sender:   cfg.MailSender,
		SSL:      cfg.MailProfile.SSL,
		Timeout:  cfg.MailTimeout,
	})

	dispatcher := invite.NewDispatcher(transport, limiter, cfg.MailMaxAttempts, cfg.MailBaseDelay)
	coordinator := invite.NewCoordinator(stateStore, dispatcher)
	inbox := invite.NewInbox(stateStore)
	broker := realtime.NewBroker()

	log.Info().
		Str("profile", cfg.MailProfile.Name).
		Str("host", cfg.MailProfile.Host).
		Int("port", cfg.MailProfile.Port).
		Msg("mail dispatcher initialized")

	// --- 5. Set Up API Server and Routes ---
	serverAPI := api.NewServer(cfg, stateStore, broker, dispatcher, coordinator, inbox)

	router := chi.NewRouter()
	serverAPI.RegisterRoutes(router)

	// --- 6. Start the HTTP Server ---
	log.Info().Str("addr", cfg.ServerAddr).Msg("game-invite server starting")

	if err := http.ListenAndServe(cfg.ServerAddr, router); err != nil {
		log.Fatal().Err(err).Msg("failed to start server")
	}
}
