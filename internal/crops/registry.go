package crops

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/afroash/agristore/internal/models"
)

// DefaultCropID is returned by Get when an identifier is unknown.
const DefaultCropID = "wheat"

// Registry is a read-only crop catalog. It is safe for concurrent use
// because nothing mutates it after construction.
type Registry struct {
	crops     map[string]models.Crop
	defaultID string
}

// NewRegistry builds a registry from the given crops. defaultID must name
// one of them.
func NewRegistry(catalog []models.Crop, defaultID string) (*Registry, error) {
	if len(catalog) == 0 {
		return nil, fmt.Errorf("crop catalog is empty")
	}
	r := &Registry{
		crops:     make(map[string]models.Crop, len(catalog)),
		defaultID: defaultID,
	}
	for _, c := range catalog {
		if c.ID == "" {
			return nil, fmt.Errorf("crop %q has no id", c.Name)
		}
		if c.Perishability < 1 || c.Perishability > 10 {
			return nil, fmt.Errorf("crop %q perishability %d outside 1-10", c.ID, c.Perishability)
		}
		if _, dup := r.crops[c.ID]; dup {
			return nil, fmt.Errorf("duplicate crop id %q", c.ID)
		}
		c.Seasonal.PeakMonths = append([]time.Month(nil), c.Seasonal.PeakMonths...)
		c.Seasonal.OffMonths = append([]time.Month(nil), c.Seasonal.OffMonths...)
		r.crops[c.ID] = c
	}
	if _, ok := r.crops[defaultID]; !ok {
		return nil, fmt.Errorf("default crop %q not in catalog", defaultID)
	}
	return r, nil
}

// Default returns the registry backed by the built-in catalog.
func Default() *Registry {
	r, err := NewRegistry(DefaultCatalog(), DefaultCropID)
	if err != nil {
		panic(err)
	}
	return r
}

type catalogFile struct {
	Default string        `yaml:"default"`
	Crops   []models.Crop `yaml:"crops"`
}

// LoadRegistry reads a YAML catalog file.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read crop catalog: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse crop catalog: %w", err)
	}
	if file.Default == "" {
		file.Default = DefaultCropID
	}
	return NewRegistry(file.Crops, file.Default)
}

// Lookup returns the crop with the given id.
func (r *Registry) Lookup(id string) (*models.Crop, bool) {
	c, ok := r.crops[id]
	if !ok {
		return nil, false
	}
	return &c, true
}

// Get returns the crop with the given id, or the default crop when the id
// is unknown. The second return value reports whether the fallback was used.
func (r *Registry) Get(id string) (*models.Crop, bool) {
	if c, ok := r.Lookup(id); ok {
		return c, false
	}
	c := r.crops[r.defaultID]
	return &c, true
}

// List returns every crop sorted by id.
func (r *Registry) List() []models.Crop {
	out := make([]models.Crop, 0, len(r.crops))
	for _, c := range r.crops {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the catalog size.
func (r *Registry) Len() int {
	return len(r.crops)
}

// SeasonalMultiplier is the crop's price multiplier in peak months, its
// inverse in off months and 1 otherwise.
func (r *Registry) SeasonalMultiplier(id string, month time.Month) float64 {
	c, _ := r.Get(id)
	m := c.Seasonal.PriceMultiplier
	if m <= 0 {
		return 1
	}
	switch {
	case c.IsPeakMonth(month):
		return m
	case c.IsOffMonth(month):
		return 1 / m
	default:
		return 1
	}
}

// EstimatedPrice is the base price adjusted for the season of t.
func (r *Registry) EstimatedPrice(id string, t time.Time) float64 {
	c, _ := r.Get(id)
	return c.BasePrice * r.SeasonalMultiplier(id, t.Month())
}

// FallbackMarketData synthesizes market data from the catalog for callers
// whose market collaborator signalled unavailability.
func (r *Registry) FallbackMarketData(id string, now time.Time) *models.MarketData {
	c, _ := r.Get(id)
	price := r.EstimatedPrice(c.ID, now)
	return &models.MarketData{
		CropID:       c.ID,
		CurrentPrice: price,
		History: []models.PricePoint{
			{Date: now, Price: price},
		},
		LastUpdated: now,
		Source:      models.SourceFallback,
	}
}
