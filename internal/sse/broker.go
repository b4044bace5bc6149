// Package sse is the notification surface: a Server-Sent Events broker that
// streams notices and rule outcomes to connected editors.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/tally/internal/models"
)

// NoticeTitle heads every notice shown to the user.
const NoticeTitle = "Counter"

// Event types.
const (
	EventNotice     = "notice"
	EventOutcome    = "outcome"
	EventLastUpdate = "status.last-update"
	EventConfig     = "config.updated"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Notice is the payload of a notice event.
type Notice struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Outcome is the payload of an outcome event.
type Outcome struct {
	Key      string        `json:"key"`
	Path     string        `json:"path"`
	Status   models.Status `json:"status"`
	OldValue string        `json:"old_value,omitempty"`
	NewValue string        `json:"new_value,omitempty"`
}

// Broker manages SSE client connections and broadcasts events.
//
// A single internal event loop owns the client set and the status throttle
// timestamp. Public methods talk to it over channels.
type Broker struct {
	statusMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	outcomeCh     chan []models.UpdateOutcome
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that emits at most one last-update status event
// per statusThrottle.
func NewBroker(statusThrottle time.Duration) *Broker {
	if statusThrottle <= 0 {
		statusThrottle = time.Second
	}

	b := &Broker{
		statusMin:     statusThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		outcomeCh:     make(chan []models.UpdateOutcome, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var lastStatus time.Time

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Slow client; drop rather than stall the loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case outcomes := <-b.outcomeCh:
			var last *models.UpdateOutcome
			for i, o := range outcomes {
				broadcast(Event{Type: EventOutcome, Data: Outcome{
					Key:      o.Key,
					Path:     o.Path,
					Status:   o.Status,
					OldValue: o.OldValue,
					NewValue: o.NewValue,
				}})
				if o.Success() {
					last = &outcomes[i]
				}
			}
			if last == nil {
				continue
			}
			now := time.Now()
			if now.Sub(lastStatus) >= b.statusMin {
				lastStatus = now
				broadcast(Event{Type: EventLastUpdate, Data: map[string]string{"key": last.Key, "path": last.Path}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// Show publishes a notice titled NoticeTitle. It satisfies the dispatcher's
// notification surface.
func (b *Broker) Show(message string) {
	b.Publish(Event{Type: EventNotice, Data: Notice{Title: NoticeTitle, Message: message}})
}

// PublishConfig announces a configuration change.
func (b *Broker) PublishConfig(cfg *models.Configuration) {
	b.Publish(Event{Type: EventConfig, Data: cfg})
}

// PublishOutcomes streams one outcome event per rule application, followed
// by a throttled last-update status event when any of them succeeded.
func (b *Broker) PublishOutcomes(outcomes []models.UpdateOutcome) {
	if b.closed.Load() || len(outcomes) == 0 {
		return
	}
	select {
	case b.outcomeCh <- outcomes:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
