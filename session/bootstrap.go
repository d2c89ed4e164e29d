package session

import (
	"context"
	"encoding/json"
)

const (
	// DefaultWelcomeMessage is the human-readable text of the welcome notification.
	DefaultWelcomeMessage = "Connected to WebSocket server."

	// SystemMethod marks server-originated notifications.
	SystemMethod = "system"
)

// Notification is a structured server-originated event.
type Notification struct {
	ServerMethod string           `json:"server_method"`
	Data         NotificationData `json:"data"`
}

// NotificationData is the payload of a Notification.
type NotificationData struct {
	Message string `json:"message"`
}

// Welcome returns the text message sent once at the start of every session.
func Welcome(text string) (Message, error) {
	data, err := json.Marshal(Notification{
		ServerMethod: SystemMethod,
		Data:         NotificationData{Message: text},
	})
	if err != nil {
		return Message{}, err
	}
	return Text(string(data)), nil
}

// start sends the welcome notification. A failed send is logged and the
// session continues to the receive loop.
func (s *Session) start(ctx context.Context) {
	s.setState(StateStarting)

	msg, err := Welcome(s.welcome)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to encode welcome notification")
		return
	}
	if err := s.out.Send(ctx, msg); err != nil {
		s.log.Warn().Err(err).Msg("Failed to send welcome notification")
		return
	}
	s.sent++
}
