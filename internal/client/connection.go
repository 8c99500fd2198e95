// Package client publishes readings and market snapshots to the ingestion
// stream and waits for the server's reply to each message.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/afroash/agristore/internal/buffer"
	"github.com/afroash/agristore/internal/models"
)

// ErrNotConnected is returned when sending without an open connection
var ErrNotConnected = errors.New("not connected")

// ServerError is an error reply from the ingestion stream
type ServerError struct {
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server rejected message (%s): %s", e.Code, e.Message)
}

// ConnectionState represents the current state of the connection
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (cs ConnectionState) String() string {
	switch cs {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Connection manages the WebSocket connection to the ingestion stream
type Connection struct {
	URL                      string
	AuthToken                string
	clientID                 string
	conn                     *websocket.Conn
	state                    ConnectionState
	stateMutex               sync.RWMutex
	sendMutex                sync.Mutex
	logger                   zerolog.Logger
	reconnectInterval        time.Duration
	maxReconnectInterval     time.Duration
	currentReconnectInterval time.Duration
	replyTimeout             time.Duration
	pending                  *buffer.Ring[models.Reading]
	pendingMutex             sync.Mutex
	startedAt                time.Time
}

// ConnectionConfig holds configuration for the connection
type ConnectionConfig struct {
	URL                  string
	AuthToken            string
	ClientID             string
	ReconnectInterval    time.Duration
	MaxReconnectInterval time.Duration
	ReplyTimeout         time.Duration
	BufferSize           int // readings kept while disconnected
}

// NewConnection creates a new connection manager
func NewConnection(config ConnectionConfig, logger zerolog.Logger) *Connection {
	if config.ReconnectInterval <= 0 {
		config.ReconnectInterval = time.Second
	}
	if config.MaxReconnectInterval < config.ReconnectInterval {
		config.MaxReconnectInterval = 30 * time.Second
	}
	if config.ReplyTimeout <= 0 {
		config.ReplyTimeout = 10 * time.Second
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 500
	}

	return &Connection{
		URL:                      config.URL,
		AuthToken:                config.AuthToken,
		clientID:                 config.ClientID,
		state:                    StateDisconnected,
		logger:                   logger,
		reconnectInterval:        config.ReconnectInterval,
		maxReconnectInterval:     config.MaxReconnectInterval,
		currentReconnectInterval: config.ReconnectInterval,
		replyTimeout:             config.ReplyTimeout,
		pending:                  buffer.NewRing[models.Reading](config.BufferSize),
		startedAt:                time.Now(),
	}
}

// setState safely updates the connection state
func (c *Connection) setState(state ConnectionState) {
	c.stateMutex.Lock()
	defer c.stateMutex.Unlock()
	c.state = state
	c.logger.Debug().Str("state", state.String()).Msg("Connection state updated")
}

// State returns the current connection state
func (c *Connection) State() ConnectionState {
	c.stateMutex.RLock()
	defer c.stateMutex.RUnlock()
	return c.state
}

// IsConnected returns true if currently connected
func (c *Connection) IsConnected() bool {
	return c.State() == StateConnected
}

// Connect establishes a WebSocket connection and announces the client
// with a heartbeat
func (c *Connection) Connect(ctx context.Context) error {
	c.setState(StateConnecting)
	c.logger.Info().Str("url", c.URL).Msg("Connecting to server...")

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.AuthToken)

	conn, resp, err := dialer.DialContext(ctx, c.URL, header)
	if err != nil {
		c.setState(StateDisconnected)
		if resp != nil {
			return fmt.Errorf("dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("dial failed: %w", err)
	}
	resp.Body.Close()

	c.stateMutex.Lock()
	c.conn = conn
	c.stateMutex.Unlock()
	c.setState(StateConnected)
	c.currentReconnectInterval = c.reconnectInterval // reset backoff
	c.logger.Info().Msg("Connected to server")

	if err := c.SendHeartbeat(); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to send registration")
		return err
	}
	return nil
}

// ConnectWithRetry keeps connecting with exponential backoff until it
// succeeds, attempts run out (0 means unlimited) or ctx is cancelled
func (c *Connection) ConnectWithRetry(ctx context.Context, attempts int) error {
	for i := 1; ; i++ {
		err := c.Connect(ctx)
		if err == nil {
			return nil
		}
		c.logger.Warn().Err(err).Int("attempt", i).Msg("Connection failed")
		if attempts > 0 && i >= attempts {
			return err
		}
		if err := c.waitBeforeReconnect(ctx); err != nil {
			return err
		}
	}
}

// waitBeforeReconnect waits before next reconnection attempt with exponential backoff
func (c *Connection) waitBeforeReconnect(ctx context.Context) error {
	c.logger.Info().Dur("delay", c.currentReconnectInterval).Msg("Waiting before reconnect")
	select {
	case <-time.After(c.currentReconnectInterval):
	case <-ctx.Done():
		return ctx.Err()
	}
	c.currentReconnectInterval *= 2
	if c.currentReconnectInterval > c.maxReconnectInterval {
		c.currentReconnectInterval = c.maxReconnectInterval
	}
	return nil
}

// request sends one message and waits for the ack. A transport failure
// drops the connection.
func (c *Connection) request(msgType models.MessageType, payload interface{}) (models.AckMessage, error) {
	if !c.IsConnected() {
		return models.AckMessage{}, ErrNotConnected
	}
	msg, err := models.NewMessage(msgType, payload)
	if err != nil {
		return models.AckMessage{}, fmt.Errorf("failed to create message: %w", err)
	}

	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.replyTimeout))
	if err := c.conn.WriteJSON(msg); err != nil {
		c.disconnect()
		return models.AckMessage{}, fmt.Errorf("write failed: %w", err)
	}

	c.conn.SetReadDeadline(time.Now().Add(c.replyTimeout))
	var reply models.Message
	if err := c.conn.ReadJSON(&reply); err != nil {
		c.disconnect()
		return models.AckMessage{}, fmt.Errorf("read failed: %w", err)
	}
	if reply.ReplyTo != msg.ID {
		c.disconnect()
		return models.AckMessage{}, fmt.Errorf("reply %q does not answer message %s", reply.ReplyTo, msg.ID)
	}

	switch reply.Type {
	case models.MessageTypeAck:
		ack, err := models.DecodePayload[models.AckMessage](&reply)
		if err != nil {
			return models.AckMessage{}, fmt.Errorf("failed to unmarshal ack: %w", err)
		}
		return ack, nil
	case models.MessageTypeError:
		errMsg, err := models.DecodePayload[models.ErrorMessage](&reply)
		if err != nil {
			return models.AckMessage{}, fmt.Errorf("failed to unmarshal error: %w", err)
		}
		return models.AckMessage{}, &ServerError{Code: errMsg.Code, Message: errMsg.Message}
	default:
		return models.AckMessage{}, fmt.Errorf("unexpected reply type %q", reply.Type)
	}
}

// SendReading sends a single reading and returns the risk level the server
// assigned. While disconnected the reading is buffered for Flush.
func (c *Connection) SendReading(reading *models.Reading) (models.RiskLevel, error) {
	if !c.IsConnected() {
		c.bufferReading(reading)
		return "", ErrNotConnected
	}
	ack, err := c.request(models.MessageTypeReading, models.NewReadingMessage(reading))
	if err != nil {
		var serr *ServerError
		if !errors.As(err, &serr) {
			c.bufferReading(reading)
		}
		return "", err
	}
	return ack.RiskLevel, nil
}

// SendBatch sends multiple readings in one message and returns the worst
// risk level among those the server accepted
func (c *Connection) SendBatch(readings []*models.Reading) (models.RiskLevel, error) {
	if len(readings) == 0 {
		return "", nil
	}

	batch := models.BatchMessage{
		Readings: make([]models.Reading, len(readings)),
		Count:    len(readings),
	}
	for i, r := range readings {
		batch.Readings[i] = *r
	}

	ack, err := c.request(models.MessageTypeBatch, batch)
	if err != nil {
		return "", err
	}
	c.logger.Info().Int("accepted", ack.Accepted).Int("rejected", ack.Rejected).Msg("Sent batch of readings")
	return ack.RiskLevel, nil
}

// SendMarket publishes a market snapshot for one crop
func (c *Connection) SendMarket(m *models.MarketData) error {
	if _, err := c.request(models.MessageTypeMarket, models.MarketMessage{MarketData: *m}); err != nil {
		return err
	}
	c.logger.Info().Str("crop", m.CropID).Float64("price", m.CurrentPrice).Msg("Sent market data")
	return nil
}

// SendHeartbeat announces the client to the server
func (c *Connection) SendHeartbeat() error {
	_, err := c.request(models.MessageTypeHeartbeat, models.HeartbeatMessage{
		SensorID:   c.clientID,
		Uptime:     int64(time.Since(c.startedAt).Seconds()),
		BufferSize: c.Pending(),
	})
	return err
}

// Flush sends every buffered reading as one batch
func (c *Connection) Flush() (int, error) {
	c.pendingMutex.Lock()
	defer c.pendingMutex.Unlock()

	items := c.pending.Items()
	if len(items) == 0 {
		return 0, nil
	}
	readings := make([]*models.Reading, len(items))
	for i := range items {
		readings[i] = &items[i]
	}
	if _, err := c.SendBatch(readings); err != nil {
		return 0, err
	}
	c.pending.Reset()
	return len(readings), nil
}

// Pending returns the number of buffered readings
func (c *Connection) Pending() int {
	c.pendingMutex.Lock()
	defer c.pendingMutex.Unlock()
	return c.pending.Len()
}

func (c *Connection) bufferReading(r *models.Reading) {
	c.pendingMutex.Lock()
	defer c.pendingMutex.Unlock()
	if c.pending.Push(*r) {
		c.logger.Warn().Str("sensor_id", r.SensorID).Msg("Send buffer full, dropped oldest reading")
	}
}

// disconnect closes the WebSocket connection
func (c *Connection) disconnect() {
	c.stateMutex.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.state = StateDisconnected
	c.stateMutex.Unlock()
	c.logger.Info().Msg("Connection disconnected")
}

// Close gracefully shuts down the connection
func (c *Connection) Close() error {
	c.logger.Info().Msg("Closing connection")

	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()

	c.stateMutex.Lock()
	defer c.stateMutex.Unlock()
	if c.conn != nil {
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.conn.Close()
		c.conn = nil
	}
	c.state = StateDisconnected
	return nil
}
