package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jackyqyz/gameinvite/internal/auth"
	"github.com/jackyqyz/gameinvite/internal/store"
)

// --- Structs for JSON Payloads ---

// registerUserPayload defines the JSON body expected for user registration.
// The security question and answer are optional; without them the account
// simply has no self-service recovery path.
type registerUserPayload struct {
	Username         string `json:"username"`
	Password         string `json:"password"`
	Email            string `json:"email"`
	Birthday         string `json:"birthday"`
	SecurityQuestion string `json:"securityQuestion"`
	SecurityAnswer   string `json:"securityAnswer"`
}

// loginUserPayload defines the JSON body expected for user login.
type loginUserPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// recoverPasswordPayload defines the JSON body for the forgot-password flow:
// verify the security answer and set a new password in one step.
type recoverPasswordPayload struct {
	Username       string `json:"username"`
	SecurityAnswer string `json:"securityAnswer"`
	NewPassword    string `json:"newPassword"`
}

// handleRegisterUser handles creation of a new user account.
func (s *Server) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	var payload registerUserPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.errorJSON(w, errors.New("bad request: could not decode JSON"), http.StatusBadRequest)
		return
	}

	if len(payload.Username) < 3 {
		s.errorJSON(w, errors.New("username must be at least 3 characters long"), http.StatusBadRequest)
		return
	}
	if len(payload.Password) < 6 {
		s.errorJSON(w, errors.New("password must be at least 6 characters long"), http.StatusBadRequest)
		return
	}
	if payload.Email == "" {
		s.errorJSON(w, errors.New("email is required"), http.StatusBadRequest)
		return
	}
	if (payload.SecurityQuestion == "") != (payload.SecurityAnswer == "") {
		s.errorJSON(w, errors.New("security question and answer must be set together"), http.StatusBadRequest)
		return
	}

	passwordHash, err := auth.HashCredential(payload.Password)
	if err != nil {
		s.errorJSON(w, errors.New("internal server error"), http.StatusInternalServerError)
		return
	}

	var answerHash string
	if payload.SecurityAnswer != "" {
		if answerHash, err = auth.HashCredential(payload.SecurityAnswer); err != nil {
			s.errorJSON(w, errors.New("internal server error"), http.StatusInternalServerError)
			return
		}
	}

	var created *store.User
	err = s.store.WriteTx(func(tx *sql.Tx) error {
		var txErr error
		created, txErr = s.store.CreateUser(tx, store.NewUserParams{
			Username:           payload.Username,
			PasswordHash:       passwordHash,
			Email:              payload.Email,
			Birthday:           payload.Birthday,
			SecurityQuestion:   payload.SecurityQuestion,
			SecurityAnswerHash: answerHash,
		})
		return txErr
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			s.errorJSON(w, errors.New("a user with this username already exists"), http.StatusConflict)
			return
		}
		s.errorJSON(w, errors.New("could not create user"), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusCreated, envelope{"user": toUserResponse(created)})
}

// handleLoginUser handles authentication for an existing user.
func (s *Server) handleLoginUser(w http.ResponseWriter, r *http.Request) {
	var payload loginUserPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.errorJSON(w, errors.New("bad request: could not decode JSON"), http.StatusBadRequest)
		return
	}

	if payload.Username == "" || payload.Password == "" {
		s.errorJSON(w, errors.New("username and password are required"), http.StatusBadRequest)
		return
	}

	user, err := s.store.GetUserByUsername(s.store.DB(), payload.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.errorJSON(w, errors.New("invalid username or password"), http.StatusUnauthorized)
			return
		}
		s.errorJSON(w, errors.New("internal server error"), http.StatusInternalServerError)
		return
	}

	if !auth.CheckCredential(payload.Password, user.PasswordHash) {
		s.errorJSON(w, errors.New("invalid username or password"), http.StatusUnauthorized)
		return
	}

	tokenString, err := auth.GenerateJWT(user.ID, user.IsAdmin, s.config.JwtSecret)
	if err != nil {
		s.errorJSON(w, errors.New("could not generate token"), http.StatusInternalServerError)
		return
	}

	user.GameRecords, err = s.store.UserGameRecords(s.store.DB(), user.ID)
	if err != nil {
		s.errorJSON(w, errors.New("internal server error"), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, envelope{
		"token": tokenString,
		"user":  toUserResponse(user),
	})
}

// handleGetSecurityQuestion is the first step of the forgot-password flow:
// it returns the user's security question so the client can prompt for the
// answer. Accounts without a configured question cannot be recovered this way.
func (s *Server) handleGetSecurityQuestion(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	user, err := s.store.GetUserByUsername(s.store.DB(), username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.errorJSON(w, errors.New("user not found"), http.StatusNotFound)
			return
		}
		s.errorJSON(w, errors.New("internal server error"), http.StatusInternalServerError)
		return
	}

	if !user.SecurityQuestion.Valid {
		s.errorJSON(w, errors.New("no security question is configured for this account"), http.StatusNotFound)
		return
	}

	s.writeJSON(w, http.StatusOK, envelope{"securityQuestion": user.SecurityQuestion.String})
}

// handleRecoverPassword verifies the security answer and resets the password.
func (s *Server) handleRecoverPassword(w http.ResponseWriter, r *http.Request) {
	var payload recoverPasswordPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.errorJSON(w, errors.New("bad request: could not decode JSON"), http.StatusBadRequest)
		return
	}

	if payload.Username == "" || payload.SecurityAnswer == "" {
		s.errorJSON(w, errors.New("username and security answer are required"), http.StatusBadRequest)
		return
	}
	if len(payload.NewPassword) < 6 {
		s.errorJSON(w, errors.New("new password must be at least 6 characters long"), http.StatusBadRequest)
		return
	}

	user, err := s.store.GetUserByUsername(s.store.DB(), payload.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.errorJSON(w, errors.New("user not found"), http.StatusNotFound)
			return
		}
		s.errorJSON(w, errors.New("internal server error"), http.StatusInternalServerError)
		return
	}

	if !user.SecurityAnswerHash.Valid || !auth.CheckCredential(payload.SecurityAnswer, user.SecurityAnswerHash.String) {
		s.errorJSON(w, errors.New("security answer is incorrect"), http.StatusUnauthorized)
		return
	}

	passwordHash, err := auth.HashCredential(payload.NewPassword)
	if err != nil {
		s.errorJSON(w, errors.New("internal server error"), http.StatusInternalServerError)
		return
	}

	err = s.store.WriteTx(func(tx *sql.Tx) error {
		return s.store.UpdateUserPassword(tx, user.ID, passwordHash)
	})
	if err != nil {
		s.errorJSON(w, errors.New("could not reset password"), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, envelope{"success": true, "message": "password reset, please log in with the new password"})
}
