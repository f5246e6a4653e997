package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	_ "modernc.org/sqlite" // The pure Go SQLite driver
)

// Sentinel errors surfaced by store operations. Callers are expected to
// branch on these with errors.Is.
var (
	// ErrNotFound is returned when a looked-up record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyHandled is returned when responding to a notification that
	// has already received a decision. The rejection is deliberate and
	// surfaced to the caller so a UI cannot double-count an accept.
	ErrAlreadyHandled = errors.New("notification already handled")
	// ErrDuplicate is returned when a uniqueness constraint would be
	// violated (username or game name already taken).
	ErrDuplicate = errors.New("record already exists")
)

// Service is the application state container. It owns the users, games,
// game_stats, and notifications tables and is the only code that mutates
// them. Writes are serialized through a mutex-protected transaction helper.
type Service struct {
	db      *sql.DB
	writeMu sync.Mutex
}

// NewService opens the SQLite database at dbPath and verifies the connection.
func NewService(dbPath string) (*Service, error) {
	// The foreign_keys pragma is crucial: user deletion cascades to
	// notifications and per-user game records through foreign keys. It is
	// set through the DSN so every pooled connection gets it, not just one.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", dbPath, err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to %s: %w", dbPath, err)
	}

	return &Service{db: db}, nil
}

// WriteTx executes a write operation (INSERT, UPDATE, DELETE) within a
// transaction, protected by a mutex to ensure serial access to the single
// database file.
func (s *Service) WriteTx(writeFunc func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	// Execute the provided function. If it returns an error, rollback the transaction.
	if err := writeFunc(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %v, rollback error: %v", err, rbErr)
		}
		return err
	}

	return tx.Commit()
}

// DB provides a direct connection for read-only queries.
func (s *Service) DB() *sql.DB {
	return s.db
}

// Close closes the database connection when the application shuts down.
func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close database")
		return
	}
	log.Info().Msg("database connection closed")
}

// InitSchema sets up the schema if the tables don't exist.
// This is idempotent and safe to run on every application start.
func (s *Service) InitSchema() error {
	return s.WriteTx(func(tx *sql.Tx) error {
		// Users table
		_, err := tx.Exec(`
			CREATE TABLE IF NOT EXISTS users (
				id INTEGER PRIMARY KEY,
				username TEXT UNIQUE NOT NULL,
				password_hash TEXT NOT NULL,
				email TEXT,
				is_admin BOOLEAN NOT NULL DEFAULT 0,
				birthday TEXT,
				security_question TEXT,
				security_answer_hash TEXT,
				register_time DATETIME DEFAULT CURRENT_TIMESTAMP
			);`)
		if err != nil {
			return err
		}

		// Active game list
		_, err = tx.Exec(`
			CREATE TABLE IF NOT EXISTS games (
				name TEXT PRIMARY KEY
			);`)
		if err != nil {
			return err
		}

		// Aggregate invite counters, keyed by game name
		_, err = tx.Exec(`
			CREATE TABLE IF NOT EXISTS game_stats (
				game TEXT PRIMARY KEY,
				invite_count INTEGER NOT NULL DEFAULT 0
			);`)
		if err != nil {
			return err
		}

		// Per-user accepted-invite counters
		_, err = tx.Exec(`
			CREATE TABLE IF NOT EXISTS user_game_records (
				user_id INTEGER NOT NULL,
				game TEXT NOT NULL,
				accepted_count INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (user_id, game),
				FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
			);`)
		if err != nil {
			return err
		}

		// Notifications table. Deleting a user removes every notification
		// they sent or received.
		_, err = tx.Exec(`
			CREATE TABLE IF NOT EXISTS notifications (
				id INTEGER PRIMARY KEY,
				sender_id INTEGER NOT NULL,
				sender_name TEXT NOT NULL,
				recipient_id INTEGER NOT NULL,
				recipient_name TEXT NOT NULL,
				game TEXT NOT NULL,
				game_time TEXT NOT NULL,
				message TEXT,
				handled BOOLEAN NOT NULL DEFAULT 0,
				accepted BOOLEAN,
				create_time DATETIME DEFAULT CURRENT_TIMESTAMP,
				FOREIGN KEY (sender_id) REFERENCES users (id) ON DELETE CASCADE,
				FOREIGN KEY (recipient_id) REFERENCES users (id) ON DELETE CASCADE
			);`)
		return err
	})
}

// defaultGames is the game list a fresh install starts with.
var defaultGames = []string{"PUBG", "王者荣耀", "永劫无间", "CSGO"}

// Seed populates an empty store with the default game list and, when
// credentials are configured, a bootstrap admin account. Running it against
// a non-empty store is a no-op.
func (s *Service) Seed(adminUser, adminPasswordHash, adminEmail string) error {
	return s.WriteTx(func(tx *sql.Tx) error {
		var gameCount int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM games;`).Scan(&gameCount); err != nil {
			return err
		}
		if gameCount == 0 {
			for _, game := range defaultGames {
				if _, err := tx.Exec(`INSERT INTO games (name) VALUES (?);`, game); err != nil {
					return err
				}
			}
			log.Info().Int("games", len(defaultGames)).Msg("seeded default game list")
		}

		if adminUser == "" || adminPasswordHash == "" {
			return nil
		}

		var userCount int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM users;`).Scan(&userCount); err != nil {
			return err
		}
		if userCount == 0 {
			_, err := tx.Exec(
				`INSERT INTO users (username, password_hash, email, is_admin) VALUES (?, ?, ?, 1);`,
				adminUser, adminPasswordHash, nullable(adminEmail),
			)
			if err != nil {
				return err
			}
			log.Info().Str("username", adminUser).Msg("seeded bootstrap admin account")
		}

		return nil
	})
}

// nullable maps an empty string to NULL for optional text columns.
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
