package realtime

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"
)

// Message is the shape of one server-pushed event, e.g. a freshly created
// game invite for the connected recipient.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Broker is the central hub for managing SSE client connections.
type Broker struct {
	// A map of client channels, keyed by user ID.
	// Each user gets a channel where messages are sent.
	clients map[int64]chan []byte
	// A mutex to protect concurrent access to the clients map.
	mu sync.RWMutex
}

// NewBroker creates a new Broker instance.
func NewBroker() *Broker {
	return &Broker{
		clients: make(map[int64]chan []byte),
	}
}

// AddClient registers a new client (a user's connection) with the broker.
// If the user already has an active connection (e.g., from another tab) the
// old channel is overwritten; the stale connection eventually times out.
func (b *Broker) AddClient(userID int64) chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan []byte, 10) // Buffered channel
	b.clients[userID] = ch
	log.Info().Int64("user", userID).Msg("SSE client connected")
	return ch
}

// RemoveClient unregisters a client from the broker.
func (b *Broker) RemoveClient(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.clients[userID]; ok {
		delete(b.clients, userID)
		close(ch)
		log.Info().Int64("user", userID).Msg("SSE client disconnected")
	}
}

// NotifyUser sends a message to a specific user if they are connected.
// Disconnected users simply miss the push; their pending notifications are
// still served by the inbox query.
func (b *Broker) NotifyUser(userID int64, message Message) {
	b.mu.RLock()
	clientChan, ok := b.clients[userID]
	b.mu.RUnlock()

	if !ok {
		return
	}

	jsonMsg, err := json.Marshal(message)
	if err != nil {
		log.Error().Err(err).Int64("user", userID).Msg("could not marshal SSE message")
		return
	}

	// Non-blocking send so a slow client cannot stall the invite flow.
	select {
	case clientChan <- jsonMsg:
	default:
		log.Warn().Int64("user", userID).Msg("SSE channel full, dropping message")
	}
}
