package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/jackyqyz/gameinvite/internal/invite"
	"github.com/jackyqyz/gameinvite/internal/realtime"
	"github.com/jackyqyz/gameinvite/internal/store"
)

// sendInvitesPayload defines the JSON body for creating an invite batch.
type sendInvitesPayload struct {
	RecipientIDs  []int64 `json:"recipientIds"`
	Game          string  `json:"game"`
	Time          string  `json:"time"`
	Message       string  `json:"message"`
	NotifyByEmail bool    `json:"notifyByEmail"`
}

// sendEmailPayload matches the request shape of the standalone email
// dispatch endpoint.
type sendEmailPayload struct {
	ToEmail  string `json:"to_email"`
	ToName   string `json:"to_name"`
	FromName string `json:"from_name"`
	GameName string `json:"game_name"`
	GameTime string `json:"game_time"`
	Message  string `json:"message"`
}

// handleSendInvites creates one notification per recipient, optionally
// sending an email to each, and reports the per-recipient outcomes so the
// client can present partial success ("N succeeded, M failed").
func (s *Server) handleSendInvites(w http.ResponseWriter, r *http.Request) {
	userID, err := s.getUserIDFromContext(r)
	if err != nil {
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}

	sender, err := s.store.GetUserByID(s.store.DB(), userID)
	if err != nil {
		s.errorJSON(w, errors.New("sender not found"), http.StatusNotFound)
		return
	}

	var payload sendInvitesPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.errorJSON(w, errors.New("bad request: could not decode JSON"), http.StatusBadRequest)
		return
	}

	outcomes, err := s.coordinator.SendInvites(r.Context(), sender, payload.RecipientIDs,
		invite.Details{Game: payload.Game, Time: payload.Time, Message: payload.Message},
		payload.NotifyByEmail)
	if err != nil {
		if errors.Is(err, invite.ErrInvalidRequest) {
			s.errorJSON(w, errors.New("at least one recipient and a game and time are required"), http.StatusBadRequest)
			return
		}
		s.errorJSON(w, errors.New("could not send invites"), http.StatusInternalServerError)
		return
	}

	// Push each created notification to its recipient's event stream, so a
	// connected client sees the invite without polling.
	succeeded, failed := 0, 0
	for _, outcome := range outcomes {
		if outcome.Notification != nil {
			s.broker.NotifyUser(outcome.RecipientID, realtime.Message{
				Type:    "new_invitation",
				Payload: toNotificationResponse(outcome.Notification),
			})
		}
		switch outcome.Outcome {
		case invite.OutcomeSent, invite.OutcomeSkipped:
			succeeded++
		default:
			failed++
		}
	}

	s.writeJSON(w, http.StatusOK, envelope{
		"outcomes":  outcomes,
		"succeeded": succeeded,
		"failed":    failed,
	})
}

// handleSendEmail is the standalone email dispatch endpoint. It maps the
// dispatcher's error taxonomy onto the response contract: 400 for a missing
// required field, 429 when the recipient's window is full, 500 when every
// transport attempt failed. The underlying delivery error detail is included
// only outside production mode.
func (s *Server) handleSendEmail(w http.ResponseWriter, r *http.Request) {
	var payload sendEmailPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.errorJSON(w, errors.New("bad request: could not decode JSON"), http.StatusBadRequest)
		return
	}

	err := s.dispatcher.Send(r.Context(), invite.EmailPayload{
		ToEmail:  payload.ToEmail,
		ToName:   payload.ToName,
		FromName: payload.FromName,
		GameName: payload.GameName,
		GameTime: payload.GameTime,
		Message:  payload.Message,
	})
	if err == nil {
		s.writeJSON(w, http.StatusOK, envelope{"success": true, "message": "email sent successfully"})
		return
	}

	var validation *invite.ValidationError
	var limited *invite.RateLimitedError
	switch {
	case errors.As(err, &validation):
		s.errorJSON(w, err, http.StatusBadRequest)
	case errors.As(err, &limited):
		s.errorJSON(w, errors.New("too many emails sent to this recipient, try again later"), http.StatusTooManyRequests)
	default:
		log.Error().Err(err).Str("recipient", payload.ToEmail).Msg("email delivery failed")
		response := envelope{"success": false, "error": "email delivery failed, try again later"}
		if !s.config.Production {
			response["detail"] = err.Error()
		}
		s.writeJSON(w, http.StatusInternalServerError, response)
	}
}

// handleGetMyNotifications returns the authenticated user's pending inbox.
func (s *Server) handleGetMyNotifications(w http.ResponseWriter, r *http.Request) {
	userID, err := s.getUserIDFromContext(r)
	if err != nil {
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}

	notifications, err := s.inbox.Pending(userID)
	if err != nil {
		s.errorJSON(w, errors.New("could not load notifications"), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, envelope{"notifications": toNotificationResponseList(notifications)})
}

// handleAcceptNotification records an accept decision.
func (s *Server) handleAcceptNotification(w http.ResponseWriter, r *http.Request) {
	s.respondToNotification(w, r, invite.Accept)
}

// handleDeclineNotification records a decline decision.
func (s *Server) handleDeclineNotification(w http.ResponseWriter, r *http.Request) {
	s.respondToNotification(w, r, invite.Decline)
}

// respondToNotification applies an accept/decline decision on behalf of the
// authenticated recipient. A repeated decision returns 409 so the client
// cannot double-count it.
func (s *Server) respondToNotification(w http.ResponseWriter, r *http.Request, decision invite.Decision) {
	userID, err := s.getUserIDFromContext(r)
	if err != nil {
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}

	notificationID, err := strconv.ParseInt(chi.URLParam(r, "notificationID"), 10, 64)
	if err != nil {
		s.errorJSON(w, errors.New("invalid notification ID"), http.StatusBadRequest)
		return
	}

	// Only the addressee may respond. Checked before the mutation so a
	// foreign notification is never flipped.
	existing, err := s.store.GetNotificationByID(s.store.DB(), notificationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.errorJSON(w, errors.New("notification not found"), http.StatusNotFound)
			return
		}
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}
	if existing.RecipientID != userID {
		s.errorJSON(w, errors.New("forbidden: not the recipient of this notification"), http.StatusForbidden)
		return
	}

	updated, err := s.inbox.Respond(notificationID, decision)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			s.errorJSON(w, errors.New("notification not found"), http.StatusNotFound)
		case errors.Is(err, store.ErrAlreadyHandled):
			s.errorJSON(w, errors.New("notification has already been handled"), http.StatusConflict)
		default:
			s.errorJSON(w, errors.New("could not update notification"), http.StatusInternalServerError)
		}
		return
	}

	s.writeJSON(w, http.StatusOK, envelope{"notification": toNotificationResponse(updated)})
}
