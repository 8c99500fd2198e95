package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/afroash/agristore/internal/models"
)

// Constants for WebSocket timeouts
const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
)

// Handler manages the ingestion stream: sensors push readings and
// market feeds push price snapshots over one WebSocket endpoint.
type Handler struct {
	upgrader       websocket.Upgrader
	authToken      string
	recorder       ReadingRecorder
	markets        *MarketStore
	writer         ReadingWriter
	persister      MarketPersister
	logger         zerolog.Logger
	activeSensors  map[string]*SensorConnection
	connToSensorID map[string]string // Maps conn.RemoteAddr().String() to actual sensor ID
	allowedOrigins []string
	mutex          sync.RWMutex
	now            func() time.Time
}

// SensorConnection represents an active stream connection
type SensorConnection struct {
	SensorID    string          `json:"sensor_id"`
	Conn        *websocket.Conn `json:"-"`
	LastSeen    time.Time       `json:"last_seen"`
	ConnectedAt time.Time       `json:"connected_at"`
	Messages    int64           `json:"messages"`
}

// NewHandler creates a new WebSocket handler
func NewHandler(authToken string, recorder ReadingRecorder, markets *MarketStore, logger zerolog.Logger, allowedOrigins ...string) *Handler {
	h := &Handler{
		authToken:      authToken,
		recorder:       recorder,
		markets:        markets,
		logger:         logger,
		activeSensors:  make(map[string]*SensorConnection),
		connToSensorID: make(map[string]string),
		allowedOrigins: allowedOrigins,
		now:            time.Now,
	}

	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}

	return h
}

// SetDBWriter enables persistence of ingested readings
func (h *Handler) SetDBWriter(w ReadingWriter) {
	h.writer = w
}

// SetMarketPersister enables persistence of market snapshots
func (h *Handler) SetMarketPersister(p MarketPersister) {
	h.persister = p
}

// checkOrigin validates the incoming request's Origin against the configured allowlist
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	// No Origin header means same-origin request
	if origin == "" {
		return true
	}

	for _, allowed := range h.allowedOrigins {
		if origin == allowed {
			return true
		}
	}

	h.logger.Warn().Str("origin", origin).Msg("Rejected WebSocket connection: origin not in allowlist")
	return false
}

// ServeHTTP handles WebSocket connection requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Expected format: "Bearer <token>"
	if !h.validateToken(r.Header.Get("Authorization")) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	h.handleConnection(conn)
}

// validateToken checks if the auth token is valid
func (h *Handler) validateToken(authHeader string) bool {
	token, ok := strings.CutPrefix(authHeader, "Bearer ")
	return ok && token != "" && token == h.authToken
}

// handleConnection manages a single WebSocket connection
func (h *Handler) handleConnection(conn *websocket.Conn) {
	connKey := conn.RemoteAddr().String()
	now := h.now()
	sensorConn := &SensorConnection{
		SensorID:    connKey, // replaced once a message names the sensor
		Conn:        conn,
		LastSeen:    now,
		ConnectedAt: now,
	}

	h.mutex.Lock()
	h.activeSensors[connKey] = sensorConn
	h.mutex.Unlock()

	defer conn.Close()
	defer h.removeSensor(connKey)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg models.Message
		err := conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		h.handleMessage(conn, connKey, &msg)
	}
}

// streamError is a rejected message with the code sent back to the client
type streamError struct {
	code string
	err  error
}

func (e *streamError) Error() string { return e.err.Error() }
func (e *streamError) Unwrap() error { return e.err }

func malformed(msgType models.MessageType, err error) error {
	return &streamError{code: models.CodeMalformed, err: fmt.Errorf("failed to decode %s: %w", msgType, err)}
}

func invalid(format string, args ...interface{}) error {
	return &streamError{code: models.CodeInvalid, err: fmt.Errorf(format, args...)}
}

// handleMessage processes a single message and answers with exactly one
// ack or error reply referencing the message's ID.
func (h *Handler) handleMessage(conn *websocket.Conn, connKey string, msg *models.Message) {
	h.logger.Debug().Str("type", string(msg.Type)).Str("id", msg.ID).Msg("Received message")
	h.touch(connKey, "")

	var (
		ack models.AckMessage
		err error
	)
	switch msg.Type {
	case models.MessageTypeReading:
		ack, err = h.handleReading(connKey, msg)
	case models.MessageTypeBatch:
		ack, err = h.handleBatch(connKey, msg)
	case models.MessageTypeHeartbeat:
		err = h.handleHeartbeat(connKey, msg)
	case models.MessageTypeMarket:
		err = h.handleMarket(msg)
	default:
		err = &streamError{code: models.CodeUnknownType, err: fmt.Errorf("unknown message type %q", msg.Type)}
	}

	if err != nil {
		code := models.CodeInvalid
		var serr *streamError
		if errors.As(err, &serr) {
			code = serr.code
		}
		h.logger.Warn().Err(err).Str("type", string(msg.Type)).Str("code", code).Msg("Message rejected")
		h.reply(conn, msg, models.MessageTypeError, models.ErrorMessage{MessageID: msg.ID, Code: code, Message: err.Error()})
		return
	}
	ack.MessageID = msg.ID
	ack.Status = "ok"
	h.reply(conn, msg, models.MessageTypeAck, ack)
}

// handleReading processes a single reading
func (h *Handler) handleReading(connKey string, msg *models.Message) (models.AckMessage, error) {
	rm, err := models.DecodePayload[models.ReadingMessage](msg)
	if err != nil {
		return models.AckMessage{}, malformed(msg.Type, err)
	}
	reading := rm.Reading()
	if err := reading.Validate(); err != nil {
		return models.AckMessage{}, &streamError{code: models.CodeInvalid, err: err}
	}

	level := h.ingest(reading)
	h.touch(connKey, reading.SensorID)
	h.logger.Info().
		Str("sensor_id", reading.SensorID).
		Float64("temp", reading.Temperature).
		Float64("humidity", reading.Humidity).
		Str("risk_level", string(level)).
		Msg("Reading stored")
	return models.AckMessage{RiskLevel: level, Accepted: 1}, nil
}

// handleBatch processes a batch of readings. Invalid entries are skipped
// and counted; the ack carries the worst risk level among the accepted
// ones. A batch with nothing valid in it is rejected.
func (h *Handler) handleBatch(connKey string, msg *models.Message) (models.AckMessage, error) {
	batch, err := models.DecodePayload[models.BatchMessage](msg)
	if err != nil {
		return models.AckMessage{}, malformed(msg.Type, err)
	}

	var ack models.AckMessage
	for _, reading := range batch.Readings {
		if !reading.IsValid() {
			ack.Rejected++
			continue
		}
		ack.RiskLevel = worseLevel(ack.RiskLevel, h.ingest(reading))
		h.touch(connKey, reading.SensorID)
		ack.Accepted++
	}
	if ack.Accepted == 0 && ack.Rejected > 0 {
		return models.AckMessage{}, invalid("none of %d readings in the batch are valid", ack.Rejected)
	}
	h.logger.Info().Int("accepted", ack.Accepted).Int("rejected", ack.Rejected).Msg("Batch stored")
	return ack, nil
}

// ingest records the reading with a recomputed risk level and queues it
// for persistence.
func (h *Handler) ingest(reading models.Reading) models.RiskLevel {
	reading.RiskLevel = h.recorder.Record(reading)
	if h.writer != nil {
		h.writer.Write(&reading)
	}
	return reading.RiskLevel
}

// handleHeartbeat processes a heartbeat message
func (h *Handler) handleHeartbeat(connKey string, msg *models.Message) error {
	heartbeat, err := models.DecodePayload[models.HeartbeatMessage](msg)
	if err != nil {
		return malformed(msg.Type, err)
	}
	h.touch(connKey, heartbeat.SensorID)
	h.logger.Debug().Str("sensor_id", heartbeat.SensorID).Int64("uptime", heartbeat.Uptime).Int("buffered", heartbeat.BufferSize).Msg("Heartbeat received")
	return nil
}

// handleMarket replaces the market snapshot for one crop
func (h *Handler) handleMarket(msg *models.Message) error {
	market, err := models.DecodePayload[models.MarketMessage](msg)
	if err != nil {
		return malformed(msg.Type, err)
	}
	data := market.MarketData
	if err := prepareMarketData(&data, h.now()); err != nil {
		return &streamError{code: models.CodeInvalid, err: err}
	}

	h.markets.Set(&data)
	if h.persister != nil {
		if err := h.persister.UpsertMarketData(h.markets.Get(data.CropID)); err != nil {
			h.logger.Error().Err(err).Str("crop", data.CropID).Msg("Failed to persist market data")
		}
	}
	h.logger.Info().Str("crop", data.CropID).Float64("price", data.CurrentPrice).Msg("Market data updated")
	return nil
}

// prepareMarketData checks a pushed snapshot and fills its defaults
func prepareMarketData(m *models.MarketData, now time.Time) error {
	if m.CropID == "" {
		return fmt.Errorf("market data has no crop_id")
	}
	if !(m.CurrentPrice > 0) {
		return fmt.Errorf("market price for %q must be greater than 0", m.CropID)
	}
	if m.LastUpdated.IsZero() {
		m.LastUpdated = now
	}
	if m.Source == "" {
		m.Source = models.SourceAuthoritative
	}
	return nil
}

// reply writes the answer to req
func (h *Handler) reply(conn *websocket.Conn, req *models.Message, msgType models.MessageType, payload interface{}) {
	msg, err := models.NewReply(req, msgType, payload)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to create reply")
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to send reply")
	}
}

// touch updates the last seen time and, when known, the sensor ID of a connection
func (h *Handler) touch(connKey, sensorID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	sensor, exists := h.activeSensors[connKey]
	if !exists {
		return
	}
	if sensorID != "" {
		h.connToSensorID[connKey] = sensorID
		sensor.SensorID = sensorID
	} else {
		sensor.Messages++
	}
	sensor.LastSeen = h.now()
}

// removeSensor removes a sensor from the active sensors map
func (h *Handler) removeSensor(connKey string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	sensorID := connKey
	if realID, exists := h.connToSensorID[connKey]; exists {
		sensorID = realID
	}
	delete(h.activeSensors, connKey)
	delete(h.connToSensorID, connKey)
	h.logger.Info().Str("sensor_id", sensorID).Msg("Sensor disconnected")
}

// GetActiveSensors returns a list of currently connected sensors
func (h *Handler) GetActiveSensors() []SensorConnection {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	sensors := make([]SensorConnection, 0, len(h.activeSensors))
	for _, sensor := range h.activeSensors {
		sensors = append(sensors, *sensor)
	}
	return sensors
}

var levelRank = map[models.RiskLevel]int{
	models.RiskGreen:  1,
	models.RiskYellow: 2,
	models.RiskRed:    3,
}

func worseLevel(a, b models.RiskLevel) models.RiskLevel {
	if levelRank[b] > levelRank[a] {
		return b
	}
	return a
}
