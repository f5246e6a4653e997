package api

import (
	"encoding/json"
	"net/http"

	"github.com/jackyqyz/gameinvite/internal/config"
	"github.com/jackyqyz/gameinvite/internal/invite"
	"github.com/jackyqyz/gameinvite/internal/realtime"
	"github.com/jackyqyz/gameinvite/internal/store"
)

// Server is the main struct for the API. It holds all dependencies required
// by the HTTP handlers: the application configuration, the state container,
// the invite components, and the SSE broker. Dependencies are injected so
// handlers can be exercised with fakes in tests.
type Server struct {
	config      *config.Config
	store       *store.Service
	broker      *realtime.Broker
	dispatcher  invite.Mailer
	coordinator *invite.Coordinator
	inbox       *invite.Inbox
}

// NewServer wires the handler dependencies into a new Server instance.
func NewServer(cfg *config.Config, st *store.Service, broker *realtime.Broker, dispatcher invite.Mailer, coordinator *invite.Coordinator, inbox *invite.Inbox) *Server {
	return &Server{
		config:      cfg,
		store:       st,
		broker:      broker,
		dispatcher:  dispatcher,
		coordinator: coordinator,
		inbox:       inbox,
	}
}

// envelope is a custom map type used for creating structured JSON responses,
// e.g. `envelope{"user": userObject}`.
type envelope map[string]interface{}

// writeJSON is a helper method for sending JSON responses. It takes the
// destination http.ResponseWriter, an HTTP status code, the data to be
// encoded, and optional headers. This centralizes response logic and keeps
// all JSON responses consistent.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}, headers ...http.Header) {
	// Pretty-printed output is helpful for debugging and cheap at this scale.
	js, err := json.MarshalIndent(data, "", "\t")
	if err != nil {
		// If marshaling fails we send a plain text error response, because
		// we can't be sure our JSON error format is valid.
		http.Error(w, "Internal Server Error: Failed to marshal JSON", http.StatusInternalServerError)
		return
	}

	if len(headers) > 0 {
		for key, value := range headers[0] {
			w.Header()[key] = value
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(js)
}

// errorJSON sends a standardized JSON error response of the form
// `{"success": false, "error": "message"}`, defaulting to 500 when no
// status is provided.
func (s *Server) errorJSON(w http.ResponseWriter, err error, status ...int) {
	statusCode := http.StatusInternalServerError
	if len(status) > 0 {
		statusCode = status[0]
	}

	s.writeJSON(w, statusCode, envelope{"success": false, "error": err.Error()})
}
