package risk

import "fmt"

// Quantity is a measured environmental quantity.
type Quantity string

const (
	Temperature Quantity = "temperature"
	Humidity    Quantity = "humidity"
)

// Band is a closed numeric range.
type Band struct {
	Min float64 `yaml:"min" toml:"min" json:"min"`
	Max float64 `yaml:"max" toml:"max" json:"max"`
}

// Contains reports whether v lies within [Min, Max].
func (b Band) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

func (b Band) String() string {
	return fmt.Sprintf("[%g-%g]", b.Min, b.Max)
}

// QuantityThresholds holds the three bands for one quantity.
type QuantityThresholds struct {
	Optimal  Band `yaml:"optimal" json:"optimal"`
	Warning  Band `yaml:"warning" json:"warning"`
	Critical Band `yaml:"critical" json:"critical"`
}

// Thresholds is the full threshold table.
type Thresholds struct {
	Temperature QuantityThresholds `yaml:"temperature" json:"temperature"`
	Humidity    QuantityThresholds `yaml:"humidity" json:"humidity"`
}

// DefaultThresholds returns the stock threshold table.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Temperature: QuantityThresholds{
			Optimal:  Band{Min: 15, Max: 25},
			Warning:  Band{Min: 10, Max: 35},
			Critical: Band{Min: 0, Max: 45},
		},
		Humidity: QuantityThresholds{
			Optimal:  Band{Min: 40, Max: 60},
			Warning:  Band{Min: 20, Max: 80},
			Critical: Band{Min: 0, Max: 100},
		},
	}
}

// For returns the bands of quantity q.
func (t Thresholds) For(q Quantity) QuantityThresholds {
	if q == Humidity {
		return t.Humidity
	}
	return t.Temperature
}

// Validate checks that every band is ordered.
func (t Thresholds) Validate() error {
	for _, q := range []Quantity{Temperature, Humidity} {
		qt := t.For(q)
		for name, b := range map[string]Band{"optimal": qt.Optimal, "warning": qt.Warning, "critical": qt.Critical} {
			if b.Min > b.Max {
				return fmt.Errorf("%s %s band min %g exceeds max %g", q, name, b.Min, b.Max)
			}
		}
	}
	return nil
}

// BandOverrides replaces individual bands of one quantity. Nil bands keep
// the default.
type BandOverrides struct {
	Optimal  *Band `yaml:"optimal" toml:"optimal"`
	Warning  *Band `yaml:"warning" toml:"warning"`
	Critical *Band `yaml:"critical" toml:"critical"`
}

// Overrides is the caller-supplied partial threshold table.
type Overrides struct {
	Temperature BandOverrides `yaml:"temperature" toml:"temperature"`
	Humidity    BandOverrides `yaml:"humidity" toml:"humidity"`
}

// MergeThresholds applies overrides on top of the defaults, per quantity.
func MergeThresholds(o Overrides) Thresholds {
	t := DefaultThresholds()
	t.Temperature = o.Temperature.apply(t.Temperature)
	t.Humidity = o.Humidity.apply(t.Humidity)
	return t
}

func (o BandOverrides) apply(qt QuantityThresholds) QuantityThresholds {
	if o.Optimal != nil {
		qt.Optimal = *o.Optimal
	}
	if o.Warning != nil {
		qt.Warning = *o.Warning
	}
	if o.Critical != nil {
		qt.Critical = *o.Critical
	}
	return qt
}
