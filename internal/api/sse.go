package api

import (
	"fmt"
	"net/http"
)

// handleSSE is the handler for Server-Sent Events. Connected clients receive
// new invite notifications as they are created, without polling the inbox.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	userID, err := s.getUserIDFromContext(r)
	if err != nil {
		s.errorJSON(w, err, http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	if s.config.FrontendURL != "" {
		w.Header().Set("Access-Control-Allow-Origin", s.config.FrontendURL)
	}

	// Flusher is needed to push data to the client as it becomes available.
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.errorJSON(w, fmt.Errorf("streaming unsupported"), http.StatusInternalServerError)
		return
	}

	clientChan := s.broker.AddClient(userID)
	defer s.broker.RemoveClient(userID)

	for {
		select {
		case message, open := <-clientChan:
			if !open {
				// The channel was closed by the broker.
				return
			}
			// Format the message according to the SSE spec: "data: {...}\n\n"
			fmt.Fprintf(w, "data: %s\n\n", message)
			flusher.Flush()
		case <-r.Context().Done():
			// The client has disconnected; the deferred removal cleans up.
			return
		}
	}
}
