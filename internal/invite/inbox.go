package invite

import (
	"github.com/jackyqyz/gameinvite/internal/store"
)

// Decision is a user's response to a pending notification.
type Decision string

const (
	Accept  Decision = "accept"
	Decline Decision = "decline"
)

// InboxStore is the slice of the state container the inbox reads and
// mutates. Satisfied by *store.Service.
type InboxStore interface {
	// PendingNotifications returns the unhandled notifications addressed to
	// a user in ascending id order.
	PendingNotifications(userID int64) ([]store.Notification, error)
	// RespondToNotification flips handled and sets accepted, incrementing
	// the recipient's game record on accept. Returns store.ErrNotFound or
	// store.ErrAlreadyHandled.
	RespondToNotification(id int64, accept bool) (*store.Notification, error)
}

// Inbox is the per-user view over the notification set. It holds no state of
// its own beyond the store handle.
type Inbox struct {
	store InboxStore
}

// NewInbox creates an inbox over the given store.
func NewInbox(s InboxStore) *Inbox {
	return &Inbox{store: s}
}

// Pending lists the notifications addressed to the user that have not yet
// received a decision, oldest first.
func (i *Inbox) Pending(userID int64) ([]store.Notification, error) {
	return i.store.PendingNotifications(userID)
}

// Respond applies an accept/decline decision. A second response to the same
// notification fails with store.ErrAlreadyHandled rather than silently
// succeeding, so a client can never double-count an accept.
func (i *Inbox) Respond(notificationID int64, decision Decision) (*store.Notification, error) {
	return i.store.RespondToNotification(notificationID, decision == Accept)
}
