// Package worker consumes sensor triggers from Pub/Sub.
package worker

import (
	"time"
)

// Message types accepted on the trigger subscription.
const (
	MessageStateChanged = "state_changed"
	MessageRefresh      = "refresh"
)

// Config holds configuration for the Pub/Sub trigger consumer.
type Config struct {
	ProjectID        string
	SubscriptionName string

	// MaxOutstandingMessages caps unacknowledged messages in flight.
	// Default: 10
	MaxOutstandingMessages int

	// MaxExtension caps how long a message lease is extended.
	// Default: 2 minutes
	MaxExtension time.Duration

	// HandleTimeout bounds the handling of a single message.
	// Default: 30 seconds
	HandleTimeout time.Duration
}

// DefaultConfig returns the default consumer configuration.
func DefaultConfig() Config {
	return Config{
		MaxOutstandingMessages: 10,
		MaxExtension:           2 * time.Minute,
		HandleTimeout:          30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxOutstandingMessages <= 0 {
		c.MaxOutstandingMessages = d.MaxOutstandingMessages
	}
	if c.MaxExtension <= 0 {
		c.MaxExtension = d.MaxExtension
	}
	if c.HandleTimeout <= 0 {
		c.HandleTimeout = d.HandleTimeout
	}
	return c
}
