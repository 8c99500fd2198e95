package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestNewMessage_AssignsIdentity(t *testing.T) {
	a, err := NewMessage(MessageTypeHeartbeat, HeartbeatMessage{SensorID: "feeder"})
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}
	b, err := NewMessage(MessageTypeHeartbeat, HeartbeatMessage{SensorID: "feeder"})
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}

	if a.ID == "" || a.ID == b.ID {
		t.Errorf("ids = %q, %q, want distinct non-empty ids", a.ID, b.ID)
	}
	if a.ReplyTo != "" || a.Timestamp.IsZero() || a.Timestamp.Location() != time.UTC {
		t.Errorf("envelope = %+v", a)
	}
}

func TestNewMessage_UnencodablePayload(t *testing.T) {
	_, err := NewMessage(MessageTypeReading, map[string]interface{}{"bad": make(chan int)})
	if err == nil || !strings.Contains(err.Error(), "reading") {
		t.Errorf("error = %v, want a marshal error naming the type", err)
	}
}

func TestNewReply(t *testing.T) {
	req, _ := NewMessage(MessageTypeMarket, MarketMessage{MarketData{CropID: "onion", CurrentPrice: 1800}})

	reply, err := NewReply(req, MessageTypeAck, AckMessage{MessageID: req.ID, Status: "ok"})
	if err != nil {
		t.Fatalf("NewReply failed: %v", err)
	}
	if reply.ReplyTo != req.ID || reply.ID == req.ID {
		t.Errorf("reply = %+v for request %s", reply, req.ID)
	}

	orphan, err := NewReply(nil, MessageTypeError, ErrorMessage{Code: CodeMalformed})
	if err != nil || orphan.ReplyTo != "" {
		t.Errorf("reply to an undecodable frame = %+v, %v", orphan, err)
	}
}

func TestMessageType_IsReply(t *testing.T) {
	tests := []struct {
		t    MessageType
		want bool
	}{
		{MessageTypeReading, false},
		{MessageTypeBatch, false},
		{MessageTypeHeartbeat, false},
		{MessageTypeMarket, false},
		{MessageTypeAck, true},
		{MessageTypeError, true},
	}
	for _, tt := range tests {
		if got := tt.t.IsReply(); got != tt.want {
			t.Errorf("%s.IsReply() = %v, want %v", tt.t, got, tt.want)
		}
	}
}

func TestReadingMessage_DropsRiskLevel(t *testing.T) {
	r := &Reading{
		SensorID:    "silo-01",
		Timestamp:   time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		Temperature: 41,
		Humidity:    88,
		RiskLevel:   RiskGreen,
	}

	msg, err := NewMessage(MessageTypeReading, NewReadingMessage(r))
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}
	if strings.Contains(string(msg.Payload), "risk_level") {
		t.Errorf("payload %s should not carry a client risk level", msg.Payload)
	}

	rm, err := DecodePayload[ReadingMessage](msg)
	if err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	got := rm.Reading()
	if got.SensorID != r.SensorID || got.Temperature != 41 || !got.Timestamp.Equal(r.Timestamp) || got.RiskLevel != "" {
		t.Errorf("Reading() = %+v", got)
	}
}

func TestDecodePayload_Errors(t *testing.T) {
	empty := &Message{ID: "x", Type: MessageTypeBatch}
	if _, err := DecodePayload[BatchMessage](empty); err == nil || !strings.Contains(err.Error(), "no payload") {
		t.Errorf("empty payload error = %v", err)
	}

	wrong := &Message{ID: "y", Type: MessageTypeBatch, Payload: json.RawMessage(`{"readings":"nope"}`)}
	if _, err := DecodePayload[BatchMessage](wrong); err == nil {
		t.Error("mistyped payload should fail to decode")
	}
}

func TestMarketMessage_FlattensSnapshot(t *testing.T) {
	msg, err := NewMessage(MessageTypeMarket, MarketMessage{MarketData{
		CropID:       "tomato",
		CurrentPrice: 1800,
		Source:       SourceAuthoritative,
	}})
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(msg.Payload, &fields); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if fields["crop_id"] != "tomato" || fields["current_price"] != 1800.0 {
		t.Errorf("payload fields = %v, want the snapshot at top level", fields)
	}
}
