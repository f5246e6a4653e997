package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jackyqyz/gameinvite/internal/store"
)

// handleGetMyProfile retrieves the profile of the currently logged-in user,
// including their accepted-invite game records.
func (s *Server) handleGetMyProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := s.getUserIDFromContext(r)
	if err != nil {
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}

	user, err := s.store.GetUserByID(s.store.DB(), userID)
	if err != nil {
		// A valid token for a user who has since been deleted.
		if errors.Is(err, store.ErrNotFound) {
			s.errorJSON(w, errors.New("user not found"), http.StatusNotFound)
			return
		}
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}

	user.GameRecords, err = s.store.UserGameRecords(s.store.DB(), user.ID)
	if err != nil {
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, envelope{"user": toUserResponse(user)})
}

// handleListUsers lists every account so the invite page can offer
// recipients to pick from.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(s.store.DB())
	if err != nil {
		s.errorJSON(w, errors.New("could not list users"), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, envelope{"users": toUserResponseList(users)})
}

// --- Admin user management ---

// handleAdminListUsers lists every account with game records attached, for
// the admin user-management tab.
func (s *Server) handleAdminListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(s.store.DB())
	if err != nil {
		s.errorJSON(w, errors.New("could not list users"), http.StatusInternalServerError)
		return
	}

	for i := range users {
		users[i].GameRecords, err = s.store.UserGameRecords(s.store.DB(), users[i].ID)
		if err != nil {
			s.errorJSON(w, errors.New("could not load game records"), http.StatusInternalServerError)
			return
		}
	}

	s.writeJSON(w, http.StatusOK, envelope{"users": toUserResponseList(users)})
}

// handleAdminGetUser returns one user's full details (the admin detail dialog).
func (s *Server) handleAdminGetUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		s.errorJSON(w, errors.New("invalid user ID"), http.StatusBadRequest)
		return
	}

	user, err := s.store.GetUserByID(s.store.DB(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.errorJSON(w, errors.New("user not found"), http.StatusNotFound)
			return
		}
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}

	user.GameRecords, err = s.store.UserGameRecords(s.store.DB(), user.ID)
	if err != nil {
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, envelope{"user": toUserResponse(user)})
}

// handleAdminUpdateUser applies an admin edit to a user's email and admin flag.
func (s *Server) handleAdminUpdateUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		s.errorJSON(w, errors.New("invalid user ID"), http.StatusBadRequest)
		return
	}

	var payload struct {
		Email   *string `json:"email"`
		IsAdmin *bool   `json:"isAdmin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.errorJSON(w, errors.New("bad request: could not decode JSON"), http.StatusBadRequest)
		return
	}
	if payload.Email == nil && payload.IsAdmin == nil {
		s.errorJSON(w, errors.New("no changes provided"), http.StatusBadRequest)
		return
	}

	user, err := s.store.GetUserByID(s.store.DB(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.errorJSON(w, errors.New("user not found"), http.StatusNotFound)
			return
		}
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}

	// Unchanged fields keep their current values.
	email := user.Email.String
	if payload.Email != nil {
		email = *payload.Email
	}
	isAdmin := user.IsAdmin
	if payload.IsAdmin != nil {
		isAdmin = *payload.IsAdmin
	}

	err = s.store.WriteTx(func(tx *sql.Tx) error {
		return s.store.UpdateUserProfile(tx, userID, email, isAdmin)
	})
	if err != nil {
		s.errorJSON(w, errors.New("could not update user"), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, envelope{"message": "user updated successfully"})
}

// handleAdminDeleteUser removes a user. The store's foreign keys cascade the
// deletion to every notification where the user is sender or recipient.
func (s *Server) handleAdminDeleteUser(w http.ResponseWriter, r *http.Request) {
	adminID, err := s.getUserIDFromContext(r)
	if err != nil {
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}

	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		s.errorJSON(w, errors.New("invalid user ID"), http.StatusBadRequest)
		return
	}

	if userID == adminID {
		s.errorJSON(w, errors.New("admins cannot delete their own account"), http.StatusBadRequest)
		return
	}

	err = s.store.WriteTx(func(tx *sql.Tx) error {
		return s.store.DeleteUser(tx, userID)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.errorJSON(w, errors.New("user not found"), http.StatusNotFound)
			return
		}
		s.errorJSON(w, errors.New("could not delete user"), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, envelope{"message": "user deleted successfully"})
}
