package events

import (
	"context"
	"log"
	"time"

	"github.com/lib/pq"
)

// channels this engine publishes to, via pg_notify in internal/storage.
var channels = []string{
	"trade_executed",
	"tick_completed",
}

// Listener listens for Postgres NOTIFY events and forwards them to a
// Broadcaster. Optional: only started when a DatabaseURL is configured.
type Listener struct {
	dbURL       string
	logger      *log.Logger
	broadcaster *Broadcaster
	shutdown    chan struct{}
}

// NewListener creates a new Listener.
func NewListener(dbURL string, broadcaster *Broadcaster, logger *log.Logger) *Listener {
	return &Listener{
		dbURL:       dbURL,
		logger:      logger,
		broadcaster: broadcaster,
		shutdown:    make(chan struct{}),
	}
}

// Start begins listening for database notifications in the background.
func (el *Listener) Start(ctx context.Context) {
	go el.listenLoop(ctx)
}

func (el *Listener) listenLoop(ctx context.Context) {
	defer el.logger.Println("event listener: shutting down")

	minRetryDelay := 100 * time.Millisecond
	maxRetryDelay := 10 * time.Second
	retryDelay := minRetryDelay

	for {
		select {
		case <-ctx.Done():
			return
		case <-el.shutdown:
			return
		default:
		}

		listener := pq.NewListener(el.dbURL, minRetryDelay, maxRetryDelay, func(ev pq.ListenerEventType, err error) {
			if err != nil {
				el.logger.Printf("event listener: %v", err)
			}
		})

		if err := el.setupListeners(listener); err != nil {
			el.logger.Printf("event listener: failed to setup listeners: %v", err)
			listener.Close()
			retryDelay = maxRetryDelay
			time.Sleep(retryDelay)
			continue
		}

		retryDelay = minRetryDelay

		if err := el.handleNotifications(ctx, listener); err != nil {
			el.logger.Printf("event listener: %v", err)
		}

		listener.Close()

		select {
		case <-ctx.Done():
			return
		case <-el.shutdown:
			return
		default:
			time.Sleep(retryDelay)
		}
	}
}

func (el *Listener) setupListeners(listener *pq.Listener) error {
	for _, channel := range channels {
		if err := listener.Listen(channel); err != nil {
			return err
		}
		el.logger.Printf("event listener: listening on channel '%s'", channel)
	}
	return nil
}

func (el *Listener) handleNotifications(ctx context.Context, listener *pq.Listener) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-el.shutdown:
			return nil

		case notification := <-listener.Notify:
			if notification == nil {
				return nil
			}

			el.logger.Printf("event listener: received notification on channel '%s': %s", notification.Channel, notification.Extra)

			msg := WebSocketMessage{
				Type: notification.Channel,
				Data: map[string]interface{}{
					"event": notification.Extra,
				},
				Timestamp: time.Now().Format(time.RFC3339),
			}

			el.broadcaster.Broadcast(msg)
		}
	}
}

// Stop stops the event listener.
func (el *Listener) Stop() {
	close(el.shutdown)
}
