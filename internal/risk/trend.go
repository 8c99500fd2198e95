package risk

import "time"

// DefaultTrendWindow is the window used when RiskTrend gets a zero window.
const DefaultTrendWindow = 24 * time.Hour

// trendThreshold is the change in mean risk needed to call a direction.
const trendThreshold = 0.1

// Direction is the direction of a risk trend.
type Direction string

const (
	TrendImproving Direction = "improving"
	TrendStable    Direction = "stable"
	TrendWorsening Direction = "worsening"
)

// Trend summarizes how risk moved over a window of history.
type Trend struct {
	SensorID          string        `json:"sensor_id"`
	Window            time.Duration `json:"window"`
	Direction         Direction     `json:"direction"`
	DataPoints        int           `json:"data_points"`
	AverageRisk       float64       `json:"average_risk"`
	FirstHalfAverage  float64       `json:"first_half_average"`
	SecondHalfAverage float64       `json:"second_half_average"`
	Change            float64       `json:"change"`
}

// RiskTrend compares the mean risk of the older half of the window with the
// newer half. With fewer than two readings it reports stable and zeroed
// statistics rather than guessing.
func (e *Engine) RiskTrend(sensorID string, window time.Duration) Trend {
	if window <= 0 {
		window = DefaultTrendWindow
	}
	cutoff := e.now().Add(-window)

	var scores []float64
	for _, r := range e.History(sensorID) {
		if r.Timestamp.Before(cutoff) {
			continue
		}
		avg := (e.RiskScore(Temperature, r.Temperature) + e.RiskScore(Humidity, r.Humidity)) / 2
		scores = append(scores, avg)
	}

	trend := Trend{
		SensorID:   sensorID,
		Window:     window,
		Direction:  TrendStable,
		DataPoints: len(scores),
	}
	if len(scores) < 2 {
		return trend
	}

	half := len(scores) / 2
	trend.AverageRisk = mean(scores)
	trend.FirstHalfAverage = mean(scores[:half])
	trend.SecondHalfAverage = mean(scores[half:])
	trend.Change = trend.SecondHalfAverage - trend.FirstHalfAverage

	switch {
	case trend.Change > trendThreshold:
		trend.Direction = TrendWorsening
	case trend.Change < -trendThreshold:
		trend.Direction = TrendImproving
	}
	return trend
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}
