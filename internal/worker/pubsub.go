package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/tohomedistance/tohomedistance/internal/homeassistant"
)

// Errors returned by Handle. Both are permanent: the message is acked.
var (
	ErrMalformedMessage = errors.New("malformed trigger message")
	ErrUnknownMessage   = errors.New("unknown trigger message type")
)

// Dispatcher receives triggers decoded from messages.
type Dispatcher interface {
	Dispatch(change homeassistant.StateChange) int
	RequestRefresh(entryID string) error
}

// Message is a trigger published to the subscription.
//
//	{"type":"state_changed","entity_id":"device_tracker.phone","new_state":{...}}
//	{"type":"refresh","entry_id":"ent_..."}
type Message struct {
	Type     string                `json:"type"`
	EntityID string                `json:"entity_id,omitempty"`
	OldState *homeassistant.Entity `json:"old_state,omitempty"`
	NewState *homeassistant.Entity `json:"new_state,omitempty"`
	EntryID  string                `json:"entry_id,omitempty"`
}

// Handler turns trigger messages into sensor triggers.
type Handler struct {
	dispatcher Dispatcher
	logger     zerolog.Logger
}

// NewHandler creates a handler forwarding to d.
func NewHandler(d Dispatcher, logger zerolog.Logger) *Handler {
	return &Handler{dispatcher: d, logger: logger}
}

// Handle decodes and applies one message.
func (h *Handler) Handle(_ context.Context, data []byte) error {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	switch msg.Type {
	case MessageStateChanged:
		if msg.EntityID == "" && msg.NewState != nil {
			msg.EntityID = msg.NewState.EntityID
		}
		if msg.EntityID == "" {
			return fmt.Errorf("%w: state change without entity_id", ErrMalformedMessage)
		}
		n := h.dispatcher.Dispatch(homeassistant.StateChange{
			EntityID: msg.EntityID,
			OldState: msg.OldState,
			NewState: msg.NewState,
		})
		h.logger.Debug().Str("entity_id", msg.EntityID).Int("sensors", n).Msg("state change dispatched")
		return nil

	case MessageRefresh:
		if msg.EntryID == "" {
			return fmt.Errorf("%w: refresh without entry_id", ErrMalformedMessage)
		}
		return h.dispatcher.RequestRefresh(msg.EntryID)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}
}

// PubSubConsumer receives trigger messages from a Pub/Sub subscription.
type PubSubConsumer struct {
	client     *pubsub.Client
	subscriber *pubsub.Subscriber
	cfg        Config
	handler    *Handler
	logger     zerolog.Logger
}

// NewPubSubConsumer creates a consumer for cfg.SubscriptionName.
func NewPubSubConsumer(ctx context.Context, cfg Config, handler *Handler, logger zerolog.Logger) (*PubSubConsumer, error) {
	cfg = cfg.withDefaults()

	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)
	subscriber.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstandingMessages
	subscriber.ReceiveSettings.MaxExtension = cfg.MaxExtension

	return &PubSubConsumer{
		client:     client,
		subscriber: subscriber,
		cfg:        cfg,
		handler:    handler,
		logger:     logger,
	}, nil
}

// Start receives messages until ctx is canceled.
func (c *PubSubConsumer) Start(ctx context.Context) error {
	c.logger.Info().
		Str("subscription", c.cfg.SubscriptionName).
		Msg("starting pubsub consumer")

	return c.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		c.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (c *PubSubConsumer) Close() error {
	return c.client.Close()
}

func (c *PubSubConsumer) handleMessage(ctx context.Context, msg *pubsub.Message) {
	startTime := time.Now()

	logger := c.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.HandleTimeout)
	defer cancel()

	if err := c.handler.Handle(ctx, msg.Data); err != nil {
		if ctx.Err() != nil {
			logger.Warn().Err(err).Msg("message interrupted, requesting redelivery")
			msg.Nack()
			return
		}
		// Redelivery cannot fix a bad message or an unknown entry.
		logger.Warn().Err(err).Msg("discarding trigger message")
		msg.Ack()
		return
	}

	logger.Debug().Dur("duration", time.Since(startTime)).Msg("trigger message handled")
	msg.Ack()
}
