package api

import (
	"time"

	"github.com/jackyqyz/gameinvite/internal/store"
)

// UserResponse is the DTO for a user profile. It is carefully structured to
// only expose safe and necessary data; credential hashes never leave the
// store layer.
type UserResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	// Optional fields use pointers so they serialize as `null` when unset.
	Email        *string        `json:"email"`
	IsAdmin      bool           `json:"isAdmin"`
	Birthday     *string        `json:"birthday"`
	RegisterTime time.Time      `json:"registerTime"`
	GameRecords  map[string]int `json:"gameRecords,omitempty"`
}

// toUserResponse converts the internal store model into the public-facing DTO.
func toUserResponse(user *store.User) UserResponse {
	var email *string
	if user.Email.Valid {
		email = &user.Email.String
	}
	var birthday *string
	if user.Birthday.Valid {
		birthday = &user.Birthday.String
	}

	return UserResponse{
		ID:           user.ID,
		Username:     user.Username,
		Email:        email,
		IsAdmin:      user.IsAdmin,
		Birthday:     birthday,
		RegisterTime: user.RegisterTime,
		GameRecords:  user.GameRecords,
	}
}

// toUserResponseList is a helper to convert a slice of store users.
func toUserResponseList(users []store.User) []UserResponse {
	responseList := make([]UserResponse, len(users))
	for i, user := range users {
		responseList[i] = toUserResponse(&user)
	}
	return responseList
}

// NotificationResponse is the DTO for one invite notification.
type NotificationResponse struct {
	ID            int64     `json:"id"`
	SenderID      int64     `json:"senderId"`
	SenderName    string    `json:"senderName"`
	RecipientID   int64     `json:"recipientId"`
	RecipientName string    `json:"recipientName"`
	Game          string    `json:"game"`
	Time          string    `json:"time"`
	Message       *string   `json:"message"`
	Handled       bool      `json:"handled"`
	Accepted      *bool     `json:"accepted"`
	CreateTime    time.Time `json:"createTime"`
}

func toNotificationResponse(n *store.Notification) NotificationResponse {
	var message *string
	if n.Message.Valid {
		message = &n.Message.String
	}
	var accepted *bool
	if n.Accepted.Valid {
		accepted = &n.Accepted.Bool
	}

	return NotificationResponse{
		ID:            n.ID,
		SenderID:      n.SenderID,
		SenderName:    n.SenderName,
		RecipientID:   n.RecipientID,
		RecipientName: n.RecipientName,
		Game:          n.Game,
		Time:          n.GameTime,
		Message:       message,
		Handled:       n.Handled,
		Accepted:      accepted,
		CreateTime:    n.CreateTime,
	}
}

func toNotificationResponseList(notifications []store.Notification) []NotificationResponse {
	responseList := make([]NotificationResponse, len(notifications))
	for i := range notifications {
		responseList[i] = toNotificationResponse(&notifications[i])
	}
	return responseList
}

// GameStatResponse is one row of the admin stats view: the raw invite count
// plus this game's share of all invites.
type GameStatResponse struct {
	Game        string  `json:"game"`
	InviteCount int     `json:"inviteCount"`
	Share       float64 `json:"share"`
}

// UserRecordsResponse is the per-user rollup feeding the admin charts.
type UserRecordsResponse struct {
	Username string         `json:"username"`
	Records  map[string]int `json:"records"`
	Total    int            `json:"total"`
}
