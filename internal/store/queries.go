package store

import (
	"database/sql"
	"errors"
)

// DBorTx allows functions to accept either a `*sql.DB` for single queries
// or a `*sql.Tx` for operations within a transaction.
type DBorTx interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	QueryRow(query string, args ...interface{}) *sql.Row
	Query(query string, args ...interface{}) (*sql.Rows, error)
}

const userColumns = `id, username, password_hash, email, is_admin, birthday, security_question, security_answer_hash, register_time`

func scanUser(row *sql.Row) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.Email,
		&user.IsAdmin,
		&user.Birthday,
		&user.SecurityQuestion,
		&user.SecurityAnswerHash,
		&user.RegisterTime,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// --- User queries ---

// NewUserParams carries the fields needed to create a user. The credential
// fields must already be hashed; the store never sees a plain-text secret.
type NewUserParams struct {
	Username           string
	PasswordHash       string
	Email              string
	Birthday           string
	SecurityQuestion   string
	SecurityAnswerHash string
	IsAdmin            bool
}

func (s *Service) CreateUser(tx DBorTx, params NewUserParams) (*User, error) {
	// Pre-check the username so callers get ErrDuplicate instead of a raw
	// constraint violation. Safe because writes are serialized by WriteTx.
	var existing int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM users WHERE username = ?;`, params.Username).Scan(&existing); err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, ErrDuplicate
	}

	query := `INSERT INTO users (username, password_hash, email, birthday, security_question, security_answer_hash, is_admin)
		VALUES (?, ?, ?, ?, ?, ?, ?);`
	res, err := tx.Exec(query,
		params.Username,
		params.PasswordHash,
		nullable(params.Email),
		nullable(params.Birthday),
		nullable(params.SecurityQuestion),
		nullable(params.SecurityAnswerHash),
		params.IsAdmin,
	)
	if err != nil {
		return nil, err
	}
	id, _ := res.LastInsertId()
	return s.GetUserByID(tx, id)
}

func (s *Service) GetUserByID(db DBorTx, id int64) (*User, error) {
	return scanUser(db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?;`, id))
}

func (s *Service) GetUserByUsername(db DBorTx, username string) (*User, error) {
	return scanUser(db.QueryRow(`SELECT `+userColumns+` FROM users WHERE username = ?;`, username))
}

// ListUsers returns every user ordered by id. Password and security-answer
// hashes ride along internally; the API layer strips them via its DTOs.
func (s *Service) ListUsers(db DBorTx) ([]User, error) {
	rows, err := db.Query(`SELECT ` + userColumns + ` FROM users ORDER BY id;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var user User
		if err := rows.Scan(
			&user.ID,
			&user.Username,
			&user.PasswordHash,
			&user.Email,
			&user.IsAdmin,
			&user.Birthday,
			&user.SecurityQuestion,
			&user.SecurityAnswerHash,
			&user.RegisterTime,
		); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// UpdateUserPassword replaces a user's password hash (recovery flow).
func (s *Service) UpdateUserPassword(tx DBorTx, userID int64, passwordHash string) error {
	res, err := tx.Exec(`UPDATE users SET password_hash = ? WHERE id = ?;`, passwordHash, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateUserProfile applies an admin edit: email and admin flag.
func (s *Service) UpdateUserProfile(tx DBorTx, userID int64, email string, isAdmin bool) error {
	res, err := tx.Exec(`UPDATE users SET email = ?, is_admin = ? WHERE id = ?;`, nullable(email), isAdmin, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteUser removes a user. The foreign keys cascade the deletion to every
// notification where the user is sender or recipient, and to their game records.
func (s *Service) DeleteUser(tx DBorTx, userID int64) error {
	res, err := tx.Exec(`DELETE FROM users WHERE id = ?;`, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UserGameRecords loads the accepted-invite counters for one user.
func (s *Service) UserGameRecords(db DBorTx, userID int64) (map[string]int, error) {
	rows, err := db.Query(`SELECT game, accepted_count FROM user_game_records WHERE user_id = ?;`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make(map[string]int)
	for rows.Next() {
		var game string
		var count int
		if err := rows.Scan(&game, &count); err != nil {
			return nil, err
		}
		records[game] = count
	}
	return records, rows.Err()
}

// IncrementUserGameRecord bumps a user's accepted-invite counter for a game.
func (s *Service) IncrementUserGameRecord(tx DBorTx, userID int64, game string) error {
	_, err := tx.Exec(`
		INSERT INTO user_game_records (user_id, game, accepted_count) VALUES (?, ?, 1)
		ON CONFLICT (user_id, game) DO UPDATE SET accepted_count = accepted_count + 1;`,
		userID, game)
	return err
}

// --- Game queries ---

func (s *Service) ListGames(db DBorTx) ([]string, error) {
	rows, err := db.Query(`SELECT name FROM games ORDER BY rowid;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var games []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		games = append(games, name)
	}
	return games, rows.Err()
}

func (s *Service) CreateGame(tx DBorTx, name string) error {
	var existing int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM games WHERE name = ?;`, name).Scan(&existing); err != nil {
		return err
	}
	if existing > 0 {
		return ErrDuplicate
	}
	_, err := tx.Exec(`INSERT INTO games (name) VALUES (?);`, name)
	return err
}

// RenameGame renames a game in the active list and moves its aggregate
// stats counter to the new key. Per-user game records keep the old key:
// rename propagates to the stats key and to no other stored structure.
func (s *Service) RenameGame(tx DBorTx, oldName, newName string) error {
	var existing int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM games WHERE name = ?;`, newName).Scan(&existing); err != nil {
		return err
	}
	if existing > 0 {
		return ErrDuplicate
	}

	res, err := tx.Exec(`UPDATE games SET name = ? WHERE name = ?;`, newName, oldName)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	// Move the accumulated counter under the new name; the old key disappears.
	_, err = tx.Exec(`UPDATE game_stats SET game = ? WHERE game = ?;`, newName, oldName)
	return err
}

// DeleteGame removes a game from the active list, drops its stats counter,
// and deletes the game's key from every user's game records.
func (s *Service) DeleteGame(tx DBorTx, name string) error {
	res, err := tx.Exec(`DELETE FROM games WHERE name = ?;`, name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	if _, err := tx.Exec(`DELETE FROM game_stats WHERE game = ?;`, name); err != nil {
		return err
	}
	_, err = tx.Exec(`DELETE FROM user_game_records WHERE game = ?;`, name)
	return err
}

// --- Game stats queries ---

func (s *Service) ListGameStats(db DBorTx) ([]GameStat, error) {
	rows, err := db.Query(`SELECT game, invite_count FROM game_stats ORDER BY game;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []GameStat
	for rows.Next() {
		var stat GameStat
		if err := rows.Scan(&stat.Game, &stat.InviteCount); err != nil {
			return nil, err
		}
		stats = append(stats, stat)
	}
	return stats, rows.Err()
}

// IncrementGameStat bumps the total-invites counter for a game by one.
// The coordinator calls this once per recipient.
func (s *Service) IncrementGameStat(tx DBorTx, game string) error {
	_, err := tx.Exec(`
		INSERT INTO game_stats (game, invite_count) VALUES (?, 1)
		ON CONFLICT (game) DO UPDATE SET invite_count = invite_count + 1;`,
		game)
	return err
}

// --- Notification queries ---

// AppendNotification inserts a new unhandled notification and returns it
// with its assigned id and creation time.
func (s *Service) AppendNotification(tx DBorTx, n *Notification) (*Notification, error) {
	query := `INSERT INTO notifications (sender_id, sender_name, recipient_id, recipient_name, game, game_time, message)
		VALUES (?, ?, ?, ?, ?, ?, ?);`
	res, err := tx.Exec(query,
		n.SenderID, n.SenderName, n.RecipientID, n.RecipientName,
		n.Game, n.GameTime, nullable(n.Message.String),
	)
	if err != nil {
		return nil, err
	}
	id, _ := res.LastInsertId()
	return s.GetNotificationByID(tx, id)
}

const notificationColumns = `id, sender_id, sender_name, recipient_id, recipient_name, game, game_time, message, handled, accepted, create_time`

func scanNotification(row *sql.Row) (*Notification, error) {
	n := &Notification{}
	err := row.Scan(
		&n.ID, &n.SenderID, &n.SenderName, &n.RecipientID, &n.RecipientName,
		&n.Game, &n.GameTime, &n.Message, &n.Handled, &n.Accepted, &n.CreateTime,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (s *Service) GetNotificationByID(db DBorTx, id int64) (*Notification, error) {
	return scanNotification(db.QueryRow(`SELECT `+notificationColumns+` FROM notifications WHERE id = ?;`, id))
}

// PendingNotificationsForUser returns the unhandled notifications addressed
// to a user, in ascending id (creation) order.
func (s *Service) PendingNotificationsForUser(db DBorTx, userID int64) ([]Notification, error) {
	rows, err := db.Query(`SELECT `+notificationColumns+` FROM notifications
		WHERE recipient_id = ? AND handled = 0 ORDER BY id;`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(
			&n.ID, &n.SenderID, &n.SenderName, &n.RecipientID, &n.RecipientName,
			&n.Game, &n.GameTime, &n.Message, &n.Handled, &n.Accepted, &n.CreateTime,
		); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// RespondToNotification applies the single allowed mutation to a
// notification: handled flips false→true together with accepted being set.
// On accept it also increments the recipient's accepted-invite counter for
// the game, inside the same transaction so an accept can never double-count.
func (s *Service) RespondToNotification(id int64, accept bool) (*Notification, error) {
	var updated *Notification
	err := s.WriteTx(func(tx *sql.Tx) error {
		n, err := s.GetNotificationByID(tx, id)
		if err != nil {
			return err
		}
		if n.Handled {
			return ErrAlreadyHandled
		}

		if _, err := tx.Exec(`UPDATE notifications SET handled = 1, accepted = ? WHERE id = ?;`, accept, id); err != nil {
			return err
		}

		if accept {
			if err := s.IncrementUserGameRecord(tx, n.RecipientID, n.Game); err != nil {
				return err
			}
		}

		updated, err = s.GetNotificationByID(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
