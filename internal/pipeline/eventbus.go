package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EventHandler is a function that handles mining events
type EventHandler func(ctx context.Context, event *MiningEvent) error

// Subscription represents an event subscription
type Subscription struct {
	ID         string
	EventTypes []EventType
	Handler    EventHandler
}

// EventBus fans mining events out to subscribers. Publishing never blocks the
// pipeline: when the buffer is full the event is dropped and counted.
type EventBus struct {
	mu            sync.RWMutex
	subscriptions map[string]*Subscription

	eventBuffer chan *MiningEvent
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	statsMu sync.RWMutex
	stats   EventBusStats
}

// EventBusStats tracks event bus statistics
type EventBusStats struct {
	EventsPublished   int64 `json:"events_published"`
	EventsDelivered   int64 `json:"events_delivered"`
	EventsDropped     int64 `json:"events_dropped"`
	EventsFailed      int64 `json:"events_failed"`
	ActiveSubscribers int64 `json:"active_subscribers"`
}

// NewEventBus creates an event bus with the given buffer size and delivery
// workers.
func NewEventBus(bufferSize, workers int) *EventBus {
	ctx, cancel := context.WithCancel(context.Background())

	eb := &EventBus{
		subscriptions: make(map[string]*Subscription),
		eventBuffer:   make(chan *MiningEvent, bufferSize),
		ctx:           ctx,
		cancel:        cancel,
	}

	for i := 0; i < workers; i++ {
		eb.wg.Add(1)
		go eb.worker(i)
	}

	log.Debug().
		Int("buffer_size", bufferSize).
		Int("workers", workers).
		Msg("Event bus started")

	return eb
}

// Publish queues an event for delivery to all matching subscribers
func (eb *EventBus) Publish(event *MiningEvent) {
	select {
	case eb.eventBuffer <- event:
		eb.statsMu.Lock()
		eb.stats.EventsPublished++
		eb.statsMu.Unlock()
	case <-eb.ctx.Done():
	default:
		eb.statsMu.Lock()
		eb.stats.EventsDropped++
		eb.statsMu.Unlock()
		log.Warn().
			Str("event_id", event.ID).
			Str("event_type", string(event.Type)).
			Msg("Event dropped due to full buffer")
	}
}

// Subscribe registers a handler for specific event types
func (eb *EventBus) Subscribe(eventTypes []EventType, handler EventHandler) *Subscription {
	sub := &Subscription{
		ID:         fmt.Sprintf("sub_%s", uuid.New().String()),
		EventTypes: eventTypes,
		Handler:    handler,
	}

	eb.mu.Lock()
	eb.subscriptions[sub.ID] = sub
	eb.mu.Unlock()

	eb.statsMu.Lock()
	eb.stats.ActiveSubscribers++
	eb.statsMu.Unlock()

	log.Debug().
		Str("subscription_id", sub.ID).
		Interface("event_types", eventTypes).
		Msg("Subscription created")

	return sub
}

// Unsubscribe removes a subscription
func (eb *EventBus) Unsubscribe(subscriptionID string) error {
	eb.mu.Lock()
	_, exists := eb.subscriptions[subscriptionID]
	if !exists {
		eb.mu.Unlock()
		return fmt.Errorf("subscription not found: %s", subscriptionID)
	}
	delete(eb.subscriptions, subscriptionID)
	eb.mu.Unlock()

	eb.statsMu.Lock()
	eb.stats.ActiveSubscribers--
	eb.statsMu.Unlock()

	return nil
}

// Close shuts down the event bus. Buffered but undelivered events are
// discarded.
func (eb *EventBus) Close() {
	eb.cancel()
	eb.wg.Wait()

	log.Debug().Msg("Event bus shut down")
}

// Stats returns current event bus statistics
func (eb *EventBus) Stats() EventBusStats {
	eb.statsMu.RLock()
	defer eb.statsMu.RUnlock()
	return eb.stats
}

// worker delivers events from the buffer to matching subscribers
func (eb *EventBus) worker(workerID int) {
	defer eb.wg.Done()

	for {
		select {
		case event := <-eb.eventBuffer:
			eb.deliverEvent(event)
		case <-eb.ctx.Done():
			log.Debug().Int("worker_id", workerID).Msg("Event bus worker stopping")
			return
		}
	}
}

func (eb *EventBus) deliverEvent(event *MiningEvent) {
	eb.mu.RLock()
	matching := make([]*Subscription, 0, len(eb.subscriptions))
	for _, sub := range eb.subscriptions {
		if eventMatches(event, sub) {
			matching = append(matching, sub)
		}
	}
	eb.mu.RUnlock()

	for _, sub := range matching {
		ctx, cancel := context.WithTimeout(eb.ctx, 5*time.Second)
		err := sub.Handler(ctx, event)
		cancel()

		eb.statsMu.Lock()
		if err != nil {
			eb.stats.EventsFailed++
		} else {
			eb.stats.EventsDelivered++
		}
		eb.statsMu.Unlock()

		if err != nil {
			log.Error().
				Err(err).
				Str("subscription_id", sub.ID).
				Str("event_id", event.ID).
				Msg("Event handler failed")
		}
	}
}

func eventMatches(event *MiningEvent, sub *Subscription) bool {
	for _, eventType := range sub.EventTypes {
		if event.Type == eventType {
			return true
		}
	}
	return false
}
