package store

import (
	"database/sql"
)

// This file exposes the domain-facing operations the invite components are
// wired to. They wrap the transactional queries so callers outside the store
// never handle a *sql.Tx.

// ResolveRecipient looks up an invite recipient by id.
// Returns ErrNotFound for an unknown id.
func (s *Service) ResolveRecipient(id int64) (*User, error) {
	return s.GetUserByID(s.db, id)
}

// RecordInvite appends a notification record and increments the aggregate
// invite counter for its game, atomically. The counter moves once per
// recipient: a three-recipient invite for one game bumps it three times.
func (s *Service) RecordInvite(n *Notification) (*Notification, error) {
	var created *Notification
	err := s.WriteTx(func(tx *sql.Tx) error {
		var txErr error
		created, txErr = s.AppendNotification(tx, n)
		if txErr != nil {
			return txErr
		}
		return s.IncrementGameStat(tx, n.Game)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// PendingNotifications returns the unhandled notifications addressed to a
// user, oldest first.
func (s *Service) PendingNotifications(userID int64) ([]Notification, error) {
	return s.PendingNotificationsForUser(s.db, userID)
}
