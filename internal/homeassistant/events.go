package homeassistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/net/websocket"
)

// Message types of the WebSocket API.
const (
	msgAuthRequired    = "auth_required"
	msgAuth            = "auth"
	msgAuthOK          = "auth_ok"
	msgAuthInvalid     = "auth_invalid"
	msgSubscribeEvents = "subscribe_events"
	msgResult          = "result"
	msgEvent           = "event"

	// EventStateChanged is the event type carrying entity state changes.
	EventStateChanged = "state_changed"
)

// EventStreamConfig holds configuration for the event stream.
type EventStreamConfig struct {
	// BaseURL is the Home Assistant URL; the WebSocket URL is derived from it (required).
	BaseURL string

	// Token is a long-lived access token (required).
	Token string

	// InitialBackoff is the first reconnect delay (default: 1s).
	InitialBackoff time.Duration

	// MaxBackoff caps the reconnect delay (default: 1m).
	MaxBackoff time.Duration

	// Logger for stream operations.
	Logger zerolog.Logger
}

// EventHandler receives state changes in arrival order.
type EventHandler func(ctx context.Context, change StateChange)

// EventStream subscribes to state_changed events and reconnects on failure.
type EventStream struct {
	wsURL          string
	origin         string
	token          string
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         zerolog.Logger
}

type wsMessage struct {
	ID          int      `json:"id,omitempty"`
	Type        string   `json:"type"`
	AccessToken string   `json:"access_token,omitempty"`
	EventType   string   `json:"event_type,omitempty"`
	Success     *bool    `json:"success,omitempty"`
	Message     string   `json:"message,omitempty"`
	Event       *wsEvent `json:"event,omitempty"`
	Error       *wsError `json:"error,omitempty"`
}

type wsEvent struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
}

type wsError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewEventStream creates an event stream for the instance at cfg.BaseURL.
func NewEventStream(cfg EventStreamConfig) (*EventStream, error) {
	wsURL, origin, err := websocketURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	initial := cfg.InitialBackoff
	if initial == 0 {
		initial = time.Second
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff == 0 {
		maxBackoff = time.Minute
	}

	return &EventStream{
		wsURL:          wsURL,
		origin:         origin,
		token:          cfg.Token,
		initialBackoff: initial,
		maxBackoff:     maxBackoff,
		logger:         cfg.Logger,
	}, nil
}

// URL returns the WebSocket endpoint.
func (s *EventStream) URL() string {
	return s.wsURL
}

// Run delivers state changes to handle until ctx is canceled or the token is
// rejected. Dropped connections are re-established with exponential backoff.
func (s *EventStream) Run(ctx context.Context, handle EventHandler) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.initialBackoff
	bo.MaxInterval = s.maxBackoff
	bo.MaxElapsedTime = 0

	for {
		subscribed, err := s.session(ctx, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrUnauthorized) {
			return err
		}
		if subscribed {
			bo.Reset()
		}

		wait := bo.NextBackOff()
		s.logger.Warn().Err(err).
			Dur("retry_in", wait).
			Str("url", s.wsURL).
			Msg("home assistant event stream disconnected")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// session runs one connection; subscribed reports whether the subscription was acknowledged.
func (s *EventStream) session(ctx context.Context, handle EventHandler) (subscribed bool, err error) {
	wsCfg, err := websocket.NewConfig(s.wsURL, s.origin)
	if err != nil {
		return false, fmt.Errorf("configuring websocket: %w", err)
	}

	conn, err := wsCfg.DialContext(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: dialing %s: %w", ErrUnavailable, s.wsURL, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := s.authenticate(conn); err != nil {
		return false, err
	}

	const subscriptionID = 1
	if err := websocket.JSON.Send(conn, wsMessage{ID: subscriptionID, Type: msgSubscribeEvents, EventType: EventStateChanged}); err != nil {
		return false, fmt.Errorf("sending subscription: %w", err)
	}

	for {
		var msg wsMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			return subscribed, fmt.Errorf("receiving message: %w", err)
		}

		switch msg.Type {
		case msgResult:
			if msg.ID != subscriptionID {
				continue
			}
			if msg.Success == nil || !*msg.Success {
				return false, fmt.Errorf("subscription refused: %s", errorMessage(msg))
			}
			subscribed = true
			s.logger.Info().Str("url", s.wsURL).Msg("subscribed to home assistant state changes")
		case msgEvent:
			if msg.Event == nil || msg.Event.EventType != EventStateChanged {
				continue
			}
			var change StateChange
			if err := json.Unmarshal(msg.Event.Data, &change); err != nil {
				s.logger.Warn().Err(err).Msg("dropping undecodable state_changed event")
				continue
			}
			handle(ctx, change)
		}
	}
}

func (s *EventStream) authenticate(conn *websocket.Conn) error {
	var msg wsMessage
	if err := websocket.JSON.Receive(conn, &msg); err != nil {
		return fmt.Errorf("waiting for auth request: %w", err)
	}
	if msg.Type != msgAuthRequired {
		return fmt.Errorf("unexpected first message %q", msg.Type)
	}

	if err := websocket.JSON.Send(conn, wsMessage{Type: msgAuth, AccessToken: s.token}); err != nil {
		return fmt.Errorf("sending auth: %w", err)
	}

	msg = wsMessage{}
	if err := websocket.JSON.Receive(conn, &msg); err != nil {
		return fmt.Errorf("waiting for auth result: %w", err)
	}

	switch msg.Type {
	case msgAuthOK:
		return nil
	case msgAuthInvalid:
		return fmt.Errorf("%w: %s", ErrUnauthorized, msg.Message)
	default:
		return fmt.Errorf("unexpected auth reply %q", msg.Type)
	}
}

func errorMessage(msg wsMessage) string {
	if msg.Error != nil {
		return msg.Error.Code + ": " + msg.Error.Message
	}
	return "no reason given"
}

// websocketURL maps http(s)://host[:port][/path] to ws(s)://host[:port][/path]/api/websocket.
func websocketURL(baseURL string) (wsURL, origin string, err error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", "", fmt.Errorf("parsing home assistant url: %w", err)
	}

	switch u.Scheme {
	case "http":
		origin = u.String()
		u.Scheme = "ws"
	case "https":
		origin = u.String()
		u.Scheme = "wss"
	case "ws", "wss":
		origin = strings.Replace(u.String(), "ws", "http", 1)
	default:
		return "", "", fmt.Errorf("unsupported home assistant url scheme %q", u.Scheme)
	}

	if !strings.HasSuffix(u.Path, "/api/websocket") {
		u.Path += "/api/websocket"
	}
	return u.String(), origin, nil
}
