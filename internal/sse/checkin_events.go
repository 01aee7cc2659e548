package sse

import (
	"context"
	"sync"

	"airline-booking/internal/models"
)

// CheckInEventEmitter fans check-in updates out to SSE clients watching a booking.
type CheckInEventEmitter struct {
	// key: bookingID, value: subscribed client channels
	clients     map[string][]chan models.CheckInUpdate
	clientMutex sync.RWMutex
}

func NewCheckInEventEmitter() *CheckInEventEmitter {
	return &CheckInEventEmitter{
		clients: make(map[string][]chan models.CheckInUpdate),
	}
}

// Subscribe registers a client for bookingID. The channel is closed once ctx is done.
func (e *CheckInEventEmitter) Subscribe(ctx context.Context, bookingID string) <-chan models.CheckInUpdate {
	clientChan := make(chan models.CheckInUpdate, 10)

	e.clientMutex.Lock()
	e.clients[bookingID] = append(e.clients[bookingID], clientChan)
	e.clientMutex.Unlock()

	go func() {
		<-ctx.Done()
		e.removeClient(bookingID, clientChan)
	}()

	return clientChan
}

// Emit never blocks: a client whose buffer is full misses the update.
func (e *CheckInEventEmitter) Emit(update models.CheckInUpdate) {
	// sends happen under the read lock so removeClient cannot close a channel mid-send
	e.clientMutex.RLock()
	defer e.clientMutex.RUnlock()

	for _, clientChan := range e.clients[update.BookingID] {
		select {
		case clientChan <- update:
		default:
		}
	}
}

func (e *CheckInEventEmitter) removeClient(bookingID string, clientChan chan models.CheckInUpdate) {
	e.clientMutex.Lock()
	defer e.clientMutex.Unlock()

	clients := e.clients[bookingID]
	for i, ch := range clients {
		if ch == clientChan {
			e.clients[bookingID] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}

	if len(e.clients[bookingID]) == 0 {
		delete(e.clients, bookingID)
	}
}

// ClientCount returns the number of clients currently watching bookingID
func (e *CheckInEventEmitter) ClientCount(bookingID string) int {
	e.clientMutex.RLock()
	defer e.clientMutex.RUnlock()
	return len(e.clients[bookingID])
}
