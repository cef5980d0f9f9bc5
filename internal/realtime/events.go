package realtime

import (
	"encoding/json"

	"github.com/example/ride-client/internal/models"
)

// Events received from the backend.
const (
	EventNewRide        = "new-ride"
	EventRideConfirmed  = "ride-confirmed"
	EventReceiveMessage = "receive-message"
	EventRideEnded      = "ride-ended"
	EventRegistered     = "registered"
)

// Events emitted by the client.
const (
	EventRegisterSocket = "register-socket"
	EventJoinRoom       = "join-room"
	EventSendMessage    = "send-message"
)

// Envelope is the wire frame for both transports.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type RegisterPayload struct {
	UserID string      `json:"userId"`
	Role   models.Role `json:"role"`
}

type JoinPayload struct {
	RideID string `json:"rideId"`
}

// MessagePayload is the body of send-message and receive-message. FromID
// and ToID are the socket ids the backend assigned to each participant.
type MessagePayload struct {
	RideID  string `json:"rideId"`
	FromID  string `json:"fromId"`
	ToID    string `json:"toId"`
	Message string `json:"message"`
}

// RegisteredPayload acknowledges register-socket.
type RegisteredPayload struct {
	SocketID string `json:"socketId"`
	UserID   string `json:"userId"`
}

// DecodeRide reads a ride out of an event body.
func DecodeRide(data json.RawMessage) (models.Ride, error) {
	var r models.Ride
	err := json.Unmarshal(data, &r)
	return r, err
}
