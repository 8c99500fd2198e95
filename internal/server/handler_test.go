package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/afroash/agristore/internal/models"
	"github.com/afroash/agristore/internal/risk"
)

const testToken = "test-token-123"

type fakeWriter struct {
	mu       sync.Mutex
	readings []*models.Reading
}

func (f *fakeWriter) Write(r *models.Reading) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readings = append(f.readings, r)
	return true
}

func (f *fakeWriter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.readings)
}

func (f *fakeWriter) first() *models.Reading {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readings[0]
}

type fakePersister struct {
	mu     sync.Mutex
	stored []*models.MarketData
	err    error
}

func (f *fakePersister) UpsertMarketData(m *models.MarketData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = append(f.stored, m)
	return f.err
}

func (f *fakePersister) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stored)
}

type streamFixture struct {
	handler   *Handler
	engine    *risk.Engine
	markets   *MarketStore
	writer    *fakeWriter
	persister *fakePersister
	server    *httptest.Server
}

func newStreamFixture(t *testing.T, origins ...string) *streamFixture {
	t.Helper()
	f := &streamFixture{
		engine:    risk.NewEngine(risk.DefaultThresholds(), zerolog.Nop()),
		markets:   NewMarketStore(),
		writer:    &fakeWriter{},
		persister: &fakePersister{},
	}
	f.handler = NewHandler(testToken, f.engine, f.markets, zerolog.Nop(), origins...)
	f.handler.SetDBWriter(f.writer)
	f.handler.SetMarketPersister(f.persister)
	f.server = httptest.NewServer(f.handler)
	t.Cleanup(f.server.Close)
	return f
}

func (f *streamFixture) dial(t *testing.T, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	return websocket.DefaultDialer.Dial(url, header)
}

func (f *streamFixture) connect(t *testing.T) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	header.Set("Authorization", "Bearer "+testToken)
	conn, _, err := f.dial(t, header)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// roundTrip sends one message and returns the server's reply, checking
// that the reply references it.
func roundTrip(t *testing.T, conn *websocket.Conn, msgType models.MessageType, payload interface{}) models.Message {
	t.Helper()
	msg, err := models.NewMessage(msgType, payload)
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var reply models.Message
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if reply.ReplyTo != msg.ID {
		t.Fatalf("reply_to = %q, want %q", reply.ReplyTo, msg.ID)
	}
	return reply
}

// errorCode returns the code of an error reply
func errorCode(t *testing.T, reply models.Message) string {
	t.Helper()
	if reply.Type != models.MessageTypeError {
		t.Fatalf("reply type = %s, want error", reply.Type)
	}
	e, err := models.DecodePayload[models.ErrorMessage](&reply)
	if err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	if e.Message == "" {
		t.Error("error reply has no message")
	}
	return e.Code
}

func TestHandler_RejectsBadToken(t *testing.T) {
	f := newStreamFixture(t)

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Basic " + testToken},
		{"wrong token", "Bearer nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.header != "" {
				header.Set("Authorization", tt.header)
			}
			_, resp, err := f.dial(t, header)
			if err == nil {
				t.Fatal("dial should fail")
			}
			if resp == nil || resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("expected 401, got %v", resp)
			}
		})
	}
}

func TestHandler_CheckOrigin(t *testing.T) {
	f := newStreamFixture(t, "https://dashboard.example")

	header := http.Header{}
	header.Set("Authorization", "Bearer "+testToken)
	header.Set("Origin", "https://evil.example")
	if _, _, err := f.dial(t, header); err == nil {
		t.Error("dial from a foreign origin should fail")
	}

	header.Set("Origin", "https://dashboard.example")
	conn, _, err := f.dial(t, header)
	if err != nil {
		t.Fatalf("dial from an allowed origin failed: %v", err)
	}
	conn.Close()
}

func TestHandler_ReadingAckCarriesRiskLevel(t *testing.T) {
	f := newStreamFixture(t)
	conn := f.connect(t)

	tests := []struct {
		name string
		temp float64
		hum  float64
		want models.RiskLevel
	}{
		{"optimal", 20, 50, models.RiskGreen},
		{"hot and humid", 45, 95, models.RiskRed},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := roundTrip(t, conn, models.MessageTypeReading, models.ReadingMessage{
				SensorID:    "silo-01",
				Timestamp:   time.Now().Add(time.Duration(i) * time.Second),
				Temperature: tt.temp,
				Humidity:    tt.hum,
			})
			if reply.Type != models.MessageTypeAck {
				t.Fatalf("reply type = %s, want ack", reply.Type)
			}
			var ack models.AckMessage
			if err := reply.UnmarshalPayload(&ack); err != nil {
				t.Fatalf("UnmarshalPayload failed: %v", err)
			}
			if ack.Status != "ok" || ack.RiskLevel != tt.want {
				t.Errorf("ack = %+v, want risk %s", ack, tt.want)
			}
		})
	}

	current, ok := f.engine.Current("silo-01")
	if !ok || current.RiskLevel != models.RiskRed {
		t.Errorf("engine current = %+v", current)
	}
	if f.writer.count() != 2 {
		t.Errorf("writer got %d readings, want 2", f.writer.count())
	}
	if level := f.writer.first().RiskLevel; level != models.RiskGreen {
		t.Errorf("persisted reading risk = %s, want GREEN", level)
	}
}

func TestHandler_InvalidReadingRejected(t *testing.T) {
	f := newStreamFixture(t)
	conn := f.connect(t)

	reply := roundTrip(t, conn, models.MessageTypeReading, models.ReadingMessage{
		SensorID:    "silo-01",
		Timestamp:   time.Now(),
		Temperature: 99,
		Humidity:    50,
	})
	if code := errorCode(t, reply); code != models.CodeInvalid {
		t.Errorf("code = %q, want %q", code, models.CodeInvalid)
	}
	if f.writer.count() != 0 || len(f.engine.SensorIDs()) != 0 {
		t.Error("invalid reading should not be ingested")
	}
}

func TestHandler_Batch(t *testing.T) {
	f := newStreamFixture(t)
	conn := f.connect(t)

	now := time.Now()
	batch := models.BatchMessage{
		Readings: []models.Reading{
			{SensorID: "shed-02", Timestamp: now.Add(-2 * time.Minute), Temperature: 20, Humidity: 50, RiskLevel: models.RiskRed},
			{SensorID: "shed-02", Timestamp: now.Add(-time.Minute), Temperature: 30, Humidity: 75},
			{SensorID: "", Timestamp: now, Temperature: 20, Humidity: 50},
		},
		Count: 3,
	}
	reply := roundTrip(t, conn, models.MessageTypeBatch, batch)

	var ack models.AckMessage
	if err := reply.UnmarshalPayload(&ack); err != nil {
		t.Fatalf("UnmarshalPayload failed: %v", err)
	}
	if ack.RiskLevel == models.RiskGreen || ack.RiskLevel == "" {
		t.Errorf("batch ack risk = %q, want the worst accepted level", ack.RiskLevel)
	}
	if ack.Accepted != 2 || ack.Rejected != 1 || ack.MessageID != reply.ReplyTo {
		t.Errorf("ack = %+v, want 2 accepted and 1 rejected", ack)
	}
	if f.writer.count() != 2 {
		t.Errorf("writer got %d readings, want 2 valid ones", f.writer.count())
	}
	history := f.engine.History("shed-02")
	if len(history) != 2 || history[0].RiskLevel != models.RiskGreen {
		t.Errorf("supplied risk level should be recomputed, history = %+v", history)
	}
}

func TestHandler_MarketMessage(t *testing.T) {
	f := newStreamFixture(t)
	conn := f.connect(t)

	reply := roundTrip(t, conn, models.MessageTypeMarket, models.MarketMessage{
		MarketData: models.MarketData{CropID: "wheat", CurrentPrice: 2500},
	})
	if reply.Type != models.MessageTypeAck {
		t.Fatalf("reply type = %s, want ack", reply.Type)
	}

	got := f.markets.Get("wheat")
	if got == nil || got.CurrentPrice != 2500 || got.Source != models.SourceAuthoritative || got.LastUpdated.IsZero() {
		t.Fatalf("stored market = %+v", got)
	}
	if n := f.persister.count(); n != 1 {
		t.Errorf("persisted %d snapshots, want 1", n)
	}

	reply = roundTrip(t, conn, models.MessageTypeMarket, models.MarketMessage{
		MarketData: models.MarketData{CropID: "wheat", CurrentPrice: 0},
	})
	if code := errorCode(t, reply); code != models.CodeInvalid {
		t.Errorf("zero price code = %q, want %q", code, models.CodeInvalid)
	}
}

func TestHandler_PersistFailureStillAcks(t *testing.T) {
	f := newStreamFixture(t)
	f.persister.mu.Lock()
	f.persister.err = errors.New("db down")
	f.persister.mu.Unlock()
	conn := f.connect(t)

	reply := roundTrip(t, conn, models.MessageTypeMarket, models.MarketMessage{
		MarketData: models.MarketData{CropID: "rice", CurrentPrice: 3000},
	})
	if reply.Type != models.MessageTypeAck || f.markets.Get("rice") == nil {
		t.Error("market snapshot should be kept in memory when persistence fails")
	}
}

func TestHandler_BatchWithNothingValid(t *testing.T) {
	f := newStreamFixture(t)
	conn := f.connect(t)

	reply := roundTrip(t, conn, models.MessageTypeBatch, models.BatchMessage{
		Readings: []models.Reading{{SensorID: "shed-02", Timestamp: time.Now(), Temperature: 20, Humidity: 150}},
		Count:    1,
	})
	if code := errorCode(t, reply); code != models.CodeInvalid {
		t.Errorf("code = %q, want %q", code, models.CodeInvalid)
	}
}

func TestHandler_MalformedPayload(t *testing.T) {
	f := newStreamFixture(t)
	conn := f.connect(t)

	reply := roundTrip(t, conn, models.MessageTypeReading, map[string]string{"temperature": "warm"})
	if code := errorCode(t, reply); code != models.CodeMalformed {
		t.Errorf("code = %q, want %q", code, models.CodeMalformed)
	}

	reply = roundTrip(t, conn, models.MessageTypeHeartbeat, models.HeartbeatMessage{SensorID: "silo-01"})
	if reply.Type != models.MessageTypeAck {
		t.Errorf("connection should stay usable after a malformed payload, got %s", reply.Type)
	}
}

func TestHandler_HeartbeatAndActiveSensors(t *testing.T) {
	f := newStreamFixture(t)
	conn := f.connect(t)

	roundTrip(t, conn, models.MessageTypeHeartbeat, models.HeartbeatMessage{SensorID: "silo-07", Uptime: 42})

	active := f.handler.GetActiveSensors()
	if len(active) != 1 || active[0].SensorID != "silo-07" {
		t.Fatalf("active sensors = %+v", active)
	}

	reply := roundTrip(t, conn, models.MessageType("bogus"), struct{}{})
	if code := errorCode(t, reply); code != models.CodeUnknownType {
		t.Errorf("unknown type code = %q, want %q", code, models.CodeUnknownType)
	}

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for len(f.handler.GetActiveSensors()) != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := len(f.handler.GetActiveSensors()); n != 0 {
		t.Errorf("active sensors after close = %d, want 0", n)
	}
}

func TestWorseLevel(t *testing.T) {
	tests := []struct {
		a, b, want models.RiskLevel
	}{
		{"", models.RiskGreen, models.RiskGreen},
		{models.RiskGreen, models.RiskYellow, models.RiskYellow},
		{models.RiskRed, models.RiskYellow, models.RiskRed},
		{models.RiskYellow, "", models.RiskYellow},
	}
	for _, tt := range tests {
		if got := worseLevel(tt.a, tt.b); got != tt.want {
			t.Errorf("worseLevel(%q, %q) = %q, want %q", tt.a, tt.b, got, tt.want)
		}
	}
}
