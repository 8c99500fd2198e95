// Command feeder replays a YAML file of market snapshots and readings into
// the ingestion stream.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/afroash/agristore/internal/client"
	"github.com/afroash/agristore/internal/models"
)

const version = "v0.1.0"

// feedFile is the replay file layout
type feedFile struct {
	Markets  []models.MarketData `yaml:"markets"`
	Readings []feedReading       `yaml:"readings"`
}

type feedReading struct {
	SensorID    string    `yaml:"sensor_id"`
	Timestamp   time.Time `yaml:"timestamp"`
	Temperature float64   `yaml:"temperature"`
	Humidity    float64   `yaml:"humidity"`
}

// summary is what one replay delivered
type summary struct {
	Markets   int
	Readings  int
	WorstRisk models.RiskLevel
}

func main() {
	url := flag.String("url", "ws://localhost:8080/sensor-stream", "ingestion stream URL")
	token := flag.String("token", os.Getenv("AGRISTORE_AUTH_TOKEN"), "bearer token (default $AGRISTORE_AUTH_TOKEN)")
	file := flag.String("file", "configs/feed.yaml", "feed file to replay")
	clientID := flag.String("id", "feeder", "client id announced in heartbeats")
	attempts := flag.Int("attempts", 5, "connection attempts, 0 for unlimited")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Str("component", "feeder").Logger()

	feed, err := loadFeed(*file, time.Now())
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load feed")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	conn := client.NewConnection(client.ConnectionConfig{
		URL:       *url,
		AuthToken: *token,
		ClientID:  *clientID,
	}, logger)
	defer conn.Close()

	logger.Info().Str("version", version).Str("file", *file).Msg("Starting feeder")
	if err := conn.ConnectWithRetry(ctx, *attempts); err != nil {
		logger.Fatal().Err(err).Msg("Could not connect")
	}

	sum, err := publish(conn, feed, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Replay failed")
	}
	logger.Info().
		Int("markets", sum.Markets).
		Int("readings", sum.Readings).
		Str("worst_risk", string(sum.WorstRisk)).
		Msg("Replay complete")
}

// loadFeed parses a feed file. Entries without a timestamp are stamped
// with now.
func loadFeed(path string, now time.Time) (*feedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed: %w", err)
	}
	var feed feedFile
	if err := yaml.Unmarshal(data, &feed); err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}
	if len(feed.Markets) == 0 && len(feed.Readings) == 0 {
		return nil, fmt.Errorf("feed %s is empty", path)
	}
	for i := range feed.Markets {
		if feed.Markets[i].LastUpdated.IsZero() {
			feed.Markets[i].LastUpdated = now
		}
	}
	for i := range feed.Readings {
		if feed.Readings[i].Timestamp.IsZero() {
			feed.Readings[i].Timestamp = now
		}
	}
	return &feed, nil
}

// publish sends markets one by one, then every reading as one batch
func publish(conn *client.Connection, feed *feedFile, logger zerolog.Logger) (summary, error) {
	var sum summary
	for i := range feed.Markets {
		m := feed.Markets[i]
		if err := conn.SendMarket(&m); err != nil {
			return sum, fmt.Errorf("market %s: %w", m.CropID, err)
		}
		sum.Markets++
	}

	if len(feed.Readings) == 0 {
		return sum, nil
	}
	readings := make([]*models.Reading, len(feed.Readings))
	for i, r := range feed.Readings {
		readings[i] = &models.Reading{
			SensorID:    r.SensorID,
			Timestamp:   r.Timestamp,
			Temperature: r.Temperature,
			Humidity:    r.Humidity,
		}
	}
	level, err := conn.SendBatch(readings)
	if err != nil {
		return sum, fmt.Errorf("readings: %w", err)
	}
	sum.Readings = len(readings)
	sum.WorstRisk = level
	logger.Debug().Str("risk", string(level)).Msg("Batch acknowledged")
	return sum, nil
}
