package server

import (
	"sort"
	"sync"
	"time"

	"github.com/afroash/agristore/internal/models"
)

// maxPriceHistory bounds the derived price history kept per crop.
const maxPriceHistory = 30

// MarketStore keeps the latest market snapshot per crop in memory
type MarketStore struct {
	data         map[string]*models.MarketData
	mutex        sync.RWMutex
	totalUpdates int64
}

// MarketStats contains statistics about the market store
type MarketStats struct {
	TotalUpdates int64     `json:"total_updates"`
	Crops        int       `json:"crops"`
	OldestUpdate time.Time `json:"oldest_update,omitempty"`
	NewestUpdate time.Time `json:"newest_update,omitempty"`
}

// NewMarketStore creates an empty market store
func NewMarketStore() *MarketStore {
	return &MarketStore{
		data: make(map[string]*models.MarketData),
	}
}

// Set replaces the snapshot for m.CropID. A snapshot without history
// extends the previous history with its own price point.
func (ms *MarketStore) Set(m *models.MarketData) {
	snap := m.Copy()

	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	if len(snap.History) == 0 {
		var history []models.PricePoint
		if prev, ok := ms.data[snap.CropID]; ok {
			history = append(history, prev.History...)
		}
		history = append(history, models.PricePoint{Date: snap.LastUpdated, Price: snap.CurrentPrice})
		if len(history) > maxPriceHistory {
			history = history[len(history)-maxPriceHistory:]
		}
		snap.History = history
	}
	ms.data[snap.CropID] = snap
	ms.totalUpdates++
}

// Load seeds the store with persisted snapshots without counting updates
func (ms *MarketStore) Load(items []*models.MarketData) {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	for _, m := range items {
		ms.data[m.CropID] = m.Copy()
	}
}

// Get returns a copy of the snapshot for a crop, or nil
func (ms *MarketStore) Get(cropID string) *models.MarketData {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	return ms.data[cropID].Copy()
}

// GetAll returns copies of every snapshot ordered by crop id
func (ms *MarketStore) GetAll() []*models.MarketData {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	result := make([]*models.MarketData, 0, len(ms.data))
	for _, m := range ms.data {
		result = append(result, m.Copy())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CropID < result[j].CropID })
	return result
}

// CropIDs returns the crops with a snapshot, sorted
func (ms *MarketStore) CropIDs() []string {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	keys := make([]string, 0, len(ms.data))
	for key := range ms.data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Stats returns statistics about the store
func (ms *MarketStore) Stats() MarketStats {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	stats := MarketStats{
		TotalUpdates: ms.totalUpdates,
		Crops:        len(ms.data),
	}
	for _, m := range ms.data {
		if stats.OldestUpdate.IsZero() || m.LastUpdated.Before(stats.OldestUpdate) {
			stats.OldestUpdate = m.LastUpdated
		}
		if m.LastUpdated.After(stats.NewestUpdate) {
			stats.NewestUpdate = m.LastUpdated
		}
	}
	return stats
}

// Clear removes all snapshots
func (ms *MarketStore) Clear() {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	ms.data = make(map[string]*models.MarketData)
	ms.totalUpdates = 0
}
