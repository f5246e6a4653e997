package invite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackyqyz/gameinvite/internal/store"
	"github.com/rs/zerolog/log"
)

// Outcome classifies what happened to one recipient of an invite batch.
type Outcome string

const (
	// OutcomeSent: notification created and email delivered.
	OutcomeSent Outcome = "sent"
	// OutcomeSkipped: notification created; email not requested or the
	// recipient has no address.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeRecipientNotFound: no such user; nothing was created.
	OutcomeRecipientNotFound Outcome = "recipient_not_found"
	// OutcomeValidationFailed: notification created, email payload invalid.
	OutcomeValidationFailed Outcome = "validation_failed"
	// OutcomeRateLimited: notification created, recipient's window is full.
	OutcomeRateLimited Outcome = "rate_limited"
	// OutcomeDeliveryFailed: the transport exhausted its retries, or a
	// storage fault stopped this recipient; Detail carries the error.
	OutcomeDeliveryFailed Outcome = "delivery_failed"
)

// RecipientOutcome is the per-recipient result of SendInvites. Failures are
// data, not raised errors, so a caller can present partial success.
type RecipientOutcome struct {
	RecipientID   int64               `json:"recipientId"`
	RecipientName string              `json:"recipientName,omitempty"`
	Outcome       Outcome             `json:"outcome"`
	Detail        string              `json:"detail,omitempty"`
	Notification  *store.Notification `json:"notification,omitempty"`
}

// Details carries the invite parameters shared by every recipient of a batch.
// Time is the scheduled event time as a display string.
type Details struct {
	Game    string
	Time    string
	Message string
}

// Directory is the slice of the state container the coordinator needs:
// recipient resolution and atomic recording of one invite.
type Directory interface {
	// ResolveRecipient returns store.ErrNotFound for an unknown id.
	ResolveRecipient(id int64) (*store.User, error)
	// RecordInvite appends the notification and increments the game's
	// invite counter in one transaction, returning the stored record with
	// its assigned id. The counter moves once per recipient.
	RecordInvite(n *store.Notification) (*store.Notification, error)
}

// Mailer is the dispatch seam; satisfied by *Dispatcher.
type Mailer interface {
	Send(ctx context.Context, p EmailPayload) error
}

// Coordinator runs the invite flow: one notification per recipient, one
// stats increment per recipient, and optionally one email per recipient.
type Coordinator struct {
	dir    Directory
	mailer Mailer
}

// NewCoordinator creates a coordinator over the given directory and mailer.
func NewCoordinator(dir Directory, mailer Mailer) *Coordinator {
	return &Coordinator{dir: dir, mailer: mailer}
}

// SendInvites processes recipients in the order supplied and returns one
// outcome per recipient. It returns ErrInvalidRequest, before any side
// effect, when recipientIDs is empty or details lacks a game or time.
// Individual recipient failures never abort the batch; once started, the
// batch runs to completion over the whole list.
func (c *Coordinator) SendInvites(ctx context.Context, sender *store.User, recipientIDs []int64, details Details, notifyByEmail bool) ([]RecipientOutcome, error) {
	if len(recipientIDs) == 0 || details.Game == "" || details.Time == "" {
		return nil, ErrInvalidRequest
	}

	outcomes := make([]RecipientOutcome, 0, len(recipientIDs))
	for _, recipientID := range recipientIDs {
		outcomes = append(outcomes, c.inviteOne(ctx, sender, recipientID, details, notifyByEmail))
	}
	return outcomes, nil
}

func (c *Coordinator) inviteOne(ctx context.Context, sender *store.User, recipientID int64, details Details, notifyByEmail bool) RecipientOutcome {
	recipient, err := c.dir.ResolveRecipient(recipientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return RecipientOutcome{
				RecipientID: recipientID,
				Outcome:     OutcomeRecipientNotFound,
			}
		}
		// A storage fault is not a miss; report it with detail and let the
		// rest of the batch continue.
		log.Error().Err(err).Int64("recipient", recipientID).Msg("recipient lookup failed")
		return RecipientOutcome{
			RecipientID: recipientID,
			Outcome:     OutcomeDeliveryFailed,
			Detail:      err.Error(),
		}
	}

	notification, err := c.dir.RecordInvite(&store.Notification{
		SenderID:      sender.ID,
		SenderName:    sender.Username,
		RecipientID:   recipient.ID,
		RecipientName: recipient.Username,
		Game:          details.Game,
		GameTime:      details.Time,
		Message:       sql.NullString{String: details.Message, Valid: details.Message != ""},
	})
	if err != nil {
		// A storage fault while recording has no better classification than
		// delivery_failed.
		log.Error().Err(err).Int64("recipient", recipientID).Msg("failed to record invite")
		return RecipientOutcome{
			RecipientID:   recipientID,
			RecipientName: recipient.Username,
			Outcome:       OutcomeDeliveryFailed,
			Detail:        err.Error(),
		}
	}

	out := RecipientOutcome{
		RecipientID:   recipient.ID,
		RecipientName: recipient.Username,
		Notification:  notification,
	}

	if !notifyByEmail || !recipient.Email.Valid || recipient.Email.String == "" {
		out.Outcome = OutcomeSkipped
		return out
	}

	err = c.mailer.Send(ctx, EmailPayload{
		ToEmail:  recipient.Email.String,
		ToName:   recipient.Username,
		FromName: sender.Username,
		GameName: details.Game,
		GameTime: details.Time,
		Message:  details.Message,
	})
	out.Outcome, out.Detail = classifyMailError(err)
	return out
}

// classifyMailError maps the dispatcher's error taxonomy onto outcomes.
func classifyMailError(err error) (Outcome, string) {
	if err == nil {
		return OutcomeSent, ""
	}

	var validation *ValidationError
	var limited *RateLimitedError
	switch {
	case errors.As(err, &validation):
		return OutcomeValidationFailed, err.Error()
	case errors.As(err, &limited):
		return OutcomeRateLimited, err.Error()
	default:
		return OutcomeDeliveryFailed, err.Error()
	}
}
