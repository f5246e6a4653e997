package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jackyqyz/gameinvite/internal/store"
)

// handleListGames returns the active game list for the invite form.
func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	games, err := s.store.ListGames(s.store.DB())
	if err != nil {
		s.errorJSON(w, errors.New("could not list games"), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, envelope{"games": games})
}

// handleAdminCreateGame adds a game to the active list.
func (s *Server) handleAdminCreateGame(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.errorJSON(w, errors.New("bad request: could not decode JSON"), http.StatusBadRequest)
		return
	}

	name := strings.TrimSpace(payload.Name)
	if name == "" {
		s.errorJSON(w, errors.New("game name is required"), http.StatusBadRequest)
		return
	}

	err := s.store.WriteTx(func(tx *sql.Tx) error {
		return s.store.CreateGame(tx, name)
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			s.errorJSON(w, errors.New("a game with this name already exists"), http.StatusConflict)
			return
		}
		s.errorJSON(w, errors.New("could not create game"), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusCreated, envelope{"message": "game added successfully"})
}

// handleAdminRenameGame renames a game. Its accumulated invite counter moves
// to the new name and the old key disappears.
func (s *Server) handleAdminRenameGame(w http.ResponseWriter, r *http.Request) {
	oldName := chi.URLParam(r, "gameName")

	var payload struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.errorJSON(w, errors.New("bad request: could not decode JSON"), http.StatusBadRequest)
		return
	}

	newName := strings.TrimSpace(payload.Name)
	if newName == "" {
		s.errorJSON(w, errors.New("game name is required"), http.StatusBadRequest)
		return
	}
	if newName == oldName {
		s.writeJSON(w, http.StatusOK, envelope{"message": "game unchanged"})
		return
	}

	err := s.store.WriteTx(func(tx *sql.Tx) error {
		return s.store.RenameGame(tx, oldName, newName)
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			s.errorJSON(w, errors.New("game not found"), http.StatusNotFound)
		case errors.Is(err, store.ErrDuplicate):
			s.errorJSON(w, errors.New("a game with this name already exists"), http.StatusConflict)
		default:
			s.errorJSON(w, errors.New("could not rename game"), http.StatusInternalServerError)
		}
		return
	}

	s.writeJSON(w, http.StatusOK, envelope{"message": "game renamed successfully"})
}

// handleAdminDeleteGame removes a game from the active list, dropping its
// stats counter and the game's key from every user's records.
func (s *Server) handleAdminDeleteGame(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "gameName")

	err := s.store.WriteTx(func(tx *sql.Tx) error {
		return s.store.DeleteGame(tx, name)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.errorJSON(w, errors.New("game not found"), http.StatusNotFound)
			return
		}
		s.errorJSON(w, errors.New("could not delete game"), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, envelope{"message": "game deleted successfully"})
}

// handleAdminGetStats builds the admin statistics view: per-game invite
// totals with each game's share of the total, and the per-user
// accepted-invite rollups that feed the charts. Only games still on the
// active list count toward the shares.
func (s *Server) handleAdminGetStats(w http.ResponseWriter, r *http.Request) {
	games, err := s.store.ListGames(s.store.DB())
	if err != nil {
		s.errorJSON(w, errors.New("could not list games"), http.StatusInternalServerError)
		return
	}

	stats, err := s.store.ListGameStats(s.store.DB())
	if err != nil {
		s.errorJSON(w, errors.New("could not load game stats"), http.StatusInternalServerError)
		return
	}

	counts := make(map[string]int, len(stats))
	for _, stat := range stats {
		counts[stat.Game] = stat.InviteCount
	}

	total := 0
	for _, game := range games {
		total += counts[game]
	}

	gameStats := make([]GameStatResponse, len(games))
	for i, game := range games {
		share := 0.0
		if total > 0 {
			share = float64(counts[game]) / float64(total) * 100
		}
		gameStats[i] = GameStatResponse{
			Game:        game,
			InviteCount: counts[game],
			Share:       share,
		}
	}

	users, err := s.store.ListUsers(s.store.DB())
	if err != nil {
		s.errorJSON(w, errors.New("could not list users"), http.StatusInternalServerError)
		return
	}

	userRecords := make([]UserRecordsResponse, len(users))
	for i, user := range users {
		records, err := s.store.UserGameRecords(s.store.DB(), user.ID)
		if err != nil {
			s.errorJSON(w, errors.New("could not load game records"), http.StatusInternalServerError)
			return
		}
		userTotal := 0
		for _, count := range records {
			userTotal += count
		}
		userRecords[i] = UserRecordsResponse{
			Username: user.Username,
			Records:  records,
			Total:    userTotal,
		}
	}

	s.writeJSON(w, http.StatusOK, envelope{
		"totalInvites": total,
		"gameStats":    gameStats,
		"userRecords":  userRecords,
	})
}
