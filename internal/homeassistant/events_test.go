package homeassistant

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

// fakeHomeAssistant speaks the auth and subscribe handshake and then sends events.
func fakeHomeAssistant(t *testing.T, token string, events ...map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(websocket.Handler(func(ws *websocket.Conn) {
		_ = websocket.JSON.Send(ws, map[string]any{"type": "auth_required", "ha_version": "2024.6.0"})

		var auth map[string]any
		if err := websocket.JSON.Receive(ws, &auth); err != nil {
			return
		}
		if auth["type"] != "auth" || auth["access_token"] != token {
			_ = websocket.JSON.Send(ws, map[string]any{"type": "auth_invalid", "message": "Invalid access token or password"})
			return
		}
		_ = websocket.JSON.Send(ws, map[string]any{"type": "auth_ok"})

		var sub map[string]any
		if err := websocket.JSON.Receive(ws, &sub); err != nil {
			return
		}
		if sub["type"] != "subscribe_events" || sub["event_type"] != EventStateChanged {
			return
		}
		_ = websocket.JSON.Send(ws, map[string]any{"id": sub["id"], "type": "result", "success": true, "result": nil})

		for _, ev := range events {
			_ = websocket.JSON.Send(ws, map[string]any{"id": sub["id"], "type": "event", "event": ev})
		}

		var discard map[string]any
		_ = websocket.JSON.Receive(ws, &discard)
	}))
}

func TestEventStream_DeliversStateChanges(t *testing.T) {
	server := fakeHomeAssistant(t, "secret",
		map[string]any{"event_type": "call_service", "data": map[string]any{}},
		map[string]any{
			"event_type": EventStateChanged,
			"data": map[string]any{
				"entity_id": "device_tracker.phone",
				"old_state": map[string]any{"entity_id": "device_tracker.phone", "state": "not_home"},
				"new_state": map[string]any{
					"entity_id":  "device_tracker.phone",
					"state":      "home",
					"attributes": map[string]any{"longitude": 116.407417, "latitude": 39.90403},
				},
			},
		},
	)
	defer server.Close()

	stream, err := NewEventStream(EventStreamConfig{BaseURL: server.URL, Token: "secret", Logger: zerolog.Nop()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan StateChange, 1)
	done := make(chan error, 1)
	go func() {
		done <- stream.Run(ctx, func(_ context.Context, change StateChange) {
			changes <- change
		})
	}()

	select {
	case change := <-changes:
		assert.Equal(t, "device_tracker.phone", change.EntityID)
		require.NotNil(t, change.NewState)
		assert.Equal(t, StateHome, change.NewState.State)
		require.NotNil(t, change.OldState)
		assert.Equal(t, "not_home", change.OldState.State)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for state change")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not stop after cancel")
	}
}

func TestEventStream_InvalidTokenStops(t *testing.T) {
	server := fakeHomeAssistant(t, "secret")
	defer server.Close()

	stream, err := NewEventStream(EventStreamConfig{BaseURL: server.URL, Token: "wrong", Logger: zerolog.Nop()})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = stream.Run(ctx, func(context.Context, StateChange) {})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestEventStream_ReconnectsAfterFailure(t *testing.T) {
	server := httptest.NewServer(nil)
	baseURL := server.URL
	server.Close()

	stream, err := NewEventStream(EventStreamConfig{
		BaseURL:        baseURL,
		Token:          "secret",
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     20 * time.Millisecond,
		Logger:         zerolog.Nop(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err = stream.Run(ctx, func(context.Context, StateChange) {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWebsocketURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "http://homeassistant.local:8123", want: "ws://homeassistant.local:8123/api/websocket"},
		{in: "https://ha.example.com/", want: "wss://ha.example.com/api/websocket"},
		{in: "wss://ha.example.com/api/websocket", want: "wss://ha.example.com/api/websocket"},
		{in: "ftp://ha.example.com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, _, err := websocketURL(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
