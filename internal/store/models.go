package store

import (
	"database/sql"
	"time"
)

// User represents a record in the 'users' table.
// It uses `sql.NullString` for fields that can be NULL in the database,
// such as the optional email and the security-question recovery fields.
type User struct {
	ID                 int64          `json:"id"`
	Username           string         `json:"username"`
	PasswordHash       string         `json:"-"` // Omit from JSON responses for security
	Email              sql.NullString `json:"email"`
	IsAdmin            bool           `json:"isAdmin"`
	Birthday           sql.NullString `json:"birthday"`
	SecurityQuestion   sql.NullString `json:"securityQuestion"`
	SecurityAnswerHash sql.NullString `json:"-"`
	RegisterTime       time.Time      `json:"registerTime"`

	// GameRecords maps a game name to the user's accepted-invite count.
	// It lives in the 'user_game_records' table and is populated by
	// UserGameRecords, not by the user row scan itself.
	GameRecords map[string]int `json:"gameRecords,omitempty"`
}

// Notification represents one invite directed at one recipient, a record in
// the 'notifications' table.
//
// Invariant: Handled == false implies Accepted is NULL; Handled == true
// implies Accepted is set. The transition happens exactly once, inside
// RespondToNotification.
type Notification struct {
	ID            int64          `json:"id"`
	SenderID      int64          `json:"senderId"`
	SenderName    string         `json:"senderName"`
	RecipientID   int64          `json:"recipientId"`
	RecipientName string         `json:"recipientName"`
	Game          string         `json:"game"`
	// GameTime is the scheduled event time as supplied by the sender,
	// distinct from CreateTime.
	GameTime   string         `json:"time"`
	Message    sql.NullString `json:"message"`
	Handled    bool           `json:"handled"`
	Accepted   sql.NullBool   `json:"accepted"`
	CreateTime time.Time      `json:"createTime"`
}

// GameStat is one row of the aggregate invite counters: total invites
// *created* (not accepted) for a game.
type GameStat struct {
	Game        string `json:"game"`
	InviteCount int    `json:"inviteCount"`
}
