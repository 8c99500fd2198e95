package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageType names the payload carried by a stream message
type MessageType string

const (
	MessageTypeReading   MessageType = "reading"
	MessageTypeBatch     MessageType = "batch"
	MessageTypeHeartbeat MessageType = "heartbeat"
	MessageTypeMarket    MessageType = "market"

	// replies
	MessageTypeAck   MessageType = "ack"
	MessageTypeError MessageType = "error"
)

// IsReply reports whether t is only sent by the server
func (t MessageType) IsReply() bool {
	return t == MessageTypeAck || t == MessageTypeError
}

// Error codes carried by ErrorMessage
const (
	CodeMalformed   = "malformed"    // payload did not decode
	CodeInvalid     = "invalid"      // decoded but failed validation
	CodeUnknownType = "unknown_type" // no handler for the message type
)

// Message is the envelope for everything sent over the ingestion stream.
// Every client message gets exactly one reply whose ReplyTo is the
// client message's ID.
type Message struct {
	ID        string          `json:"id"`
	ReplyTo   string          `json:"reply_to,omitempty"`
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage wraps payload in an envelope with a fresh ID
func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", msgType, err)
	}
	return &Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewReply builds the reply to req
func NewReply(req *Message, msgType MessageType, payload interface{}) (*Message, error) {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		return nil, err
	}
	if req != nil {
		msg.ReplyTo = req.ID
	}
	return msg, nil
}

// UnmarshalPayload unmarshals the message payload into v
func (m *Message) UnmarshalPayload(v interface{}) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s message has no payload", m.Type)
	}
	return json.Unmarshal(m.Payload, v)
}

// DecodePayload is the typed form of UnmarshalPayload
func DecodePayload[T any](m *Message) (T, error) {
	var v T
	err := m.UnmarshalPayload(&v)
	return v, err
}

// ReadingMessage is the payload for MessageTypeReading
type ReadingMessage struct {
	Timestamp   time.Time `json:"timestamp"`
	SensorID    string    `json:"sensor_id"`
	Humidity    float64   `json:"humidity"`
	Temperature float64   `json:"temperature"`
}

// NewReadingMessage copies the measured fields of r. The risk level is not
// sent: the server assigns it.
func NewReadingMessage(r *Reading) ReadingMessage {
	return ReadingMessage{
		Timestamp:   r.Timestamp,
		SensorID:    r.SensorID,
		Humidity:    r.Humidity,
		Temperature: r.Temperature,
	}
}

// Reading converts the payload back into a reading
func (rm ReadingMessage) Reading() Reading {
	return Reading{
		SensorID:    rm.SensorID,
		Timestamp:   rm.Timestamp,
		Humidity:    rm.Humidity,
		Temperature: rm.Temperature,
	}
}

// BatchMessage is the payload for MessageTypeBatch
type BatchMessage struct {
	Readings []Reading `json:"readings"`
	Count    int       `json:"count"`
}

// HeartbeatMessage is the payload for MessageTypeHeartbeat. SensorID names
// the client for the server's connection list.
type HeartbeatMessage struct {
	SensorID   string `json:"sensor_id"`
	Uptime     int64  `json:"uptime"`
	BufferSize int    `json:"buffer_size"`
}

// MarketMessage is the payload for MessageTypeMarket. It carries a full
// market snapshot for one crop and replaces any previous snapshot.
type MarketMessage struct {
	MarketData
}

// AckMessage is the payload for MessageTypeAck. RiskLevel is set for
// readings and batches; for a batch it is the worst accepted level.
type AckMessage struct {
	MessageID string    `json:"message_id"`
	Status    string    `json:"status"`
	RiskLevel RiskLevel `json:"risk_level,omitempty"`
	Accepted  int       `json:"accepted,omitempty"`
	Rejected  int       `json:"rejected,omitempty"`
}

// ErrorMessage is the payload for MessageTypeError
type ErrorMessage struct {
	MessageID string `json:"message_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}
