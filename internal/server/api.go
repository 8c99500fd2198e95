package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/afroash/agristore/internal/crops"
	"github.com/afroash/agristore/internal/decision"
	"github.com/afroash/agristore/internal/models"
	"github.com/afroash/agristore/internal/report"
	"github.com/afroash/agristore/internal/risk"
	"github.com/afroash/agristore/internal/storage"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
	defaultVerdictLimit = 50
	maxExportVerdicts   = 5000
)

// Services are the collaborators the API serves from
type Services struct {
	Risk      *risk.Engine
	Crops     *crops.Registry
	Decisions *decision.Engine
	Markets   *MarketStore
}

// APIHandler handles the HTTP API
type APIHandler struct {
	risk      *risk.Engine
	crops     *crops.Registry
	decisions *decision.Engine
	markets   *MarketStore
	history   HistoricalStore
	resolver  *Resolver
	logger    zerolog.Logger
	version   string
	now       func() time.Time
	sources   map[string]func() interface{}
}

// NewAPIHandler creates an API handler backed by in-memory state only
func NewAPIHandler(svc Services, version string, logger zerolog.Logger) *APIHandler {
	return NewAPIHandlerWithHistory(svc, nil, version, logger)
}

// NewAPIHandlerWithHistory creates an API handler that also serves
// persisted readings, market data and verdicts
func NewAPIHandlerWithHistory(svc Services, history HistoricalStore, version string, logger zerolog.Logger) *APIHandler {
	return &APIHandler{
		risk:      svc.Risk,
		crops:     svc.Crops,
		decisions: svc.Decisions,
		markets:   svc.Markets,
		history:   history,
		resolver:  NewResolver(svc.Crops, svc.Risk, svc.Markets, history, svc.Decisions.Params(), logger),
		logger:    logger,
		version:   version,
		now:       time.Now,
		sources:   make(map[string]func() interface{}),
	}
}

// AddStatsSource includes fn's result under name in GET /stats. Used for
// background workers such as the DB writer and the retention cleaner.
func (api *APIHandler) AddStatsSource(name string, fn func() interface{}) {
	api.sources[name] = fn
}

// RegisterRoutes registers the API routes on the group
func (api *APIHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/health", api.HandleHealth)
	router.GET("/stats", api.HandleStats)

	router.GET("/crops", api.HandleCrops)
	router.GET("/crops/:id", api.HandleCrop)

	router.GET("/sensors", api.HandleSensors)
	router.GET("/sensors/:id/current", api.HandleCurrent)
	router.GET("/sensors/:id/history", api.HandleHistory)
	router.GET("/sensors/:id/risk", api.HandleRisk)
	router.GET("/sensors/:id/trend", api.HandleTrend)
	router.GET("/sensors/:id/daily", api.HandleDailyStats)

	router.GET("/market", api.HandleMarketList)
	router.GET("/market/:crop", api.HandleGetMarket)
	router.PUT("/market/:crop", api.HandlePutMarket)

	router.POST("/recommendations", api.HandleRecommend)
	router.POST("/recommendations/evaluate", api.HandleEvaluate)

	router.GET("/verdicts", api.HandleVerdicts)
	router.GET("/verdicts/export", api.HandleExport)
	router.GET("/verdicts/:id", api.HandleVerdict)
}

func errorJSON(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

func (api *APIHandler) requireHistory(c *gin.Context) bool {
	if api.history == nil {
		errorJSON(c, http.StatusServiceUnavailable, "storage is disabled")
		return false
	}
	return true
}

// queryInt parses an optional positive integer query parameter
func queryInt(c *gin.Context, key string, def, max int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v <= 0 {
		return def
	}
	if max > 0 && v > max {
		return max
	}
	return v
}

// queryTime parses an optional RFC3339 query parameter
func queryTime(c *gin.Context, key string) (time.Time, bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return t, true, nil
}

// HandleHealth reports liveness and a summary of in-memory state
func (api *APIHandler) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"version":         api.version,
		"sensors":         len(api.risk.SensorIDs()),
		"market_crops":    api.markets.Stats().Crops,
		"storage_enabled": api.history != nil,
	})
}

// HandleStats returns market and storage statistics
func (api *APIHandler) HandleStats(c *gin.Context) {
	body := gin.H{"market": api.markets.Stats()}
	for name, fn := range api.sources {
		body[name] = fn()
	}
	if api.history != nil {
		stats, err := api.history.GetStorageStats()
		if err != nil {
			api.logger.Error().Err(err).Msg("Failed to get storage stats")
			errorJSON(c, http.StatusInternalServerError, "failed to get storage stats")
			return
		}
		body["storage"] = stats
	}
	c.JSON(http.StatusOK, body)
}

// HandleCrops lists the crop catalog
func (api *APIHandler) HandleCrops(c *gin.Context) {
	c.JSON(http.StatusOK, api.crops.List())
}

// HandleCrop returns one crop with its current seasonal price estimate
func (api *APIHandler) HandleCrop(c *gin.Context) {
	crop, ok := api.crops.Lookup(c.Param("id"))
	if !ok {
		errorJSON(c, http.StatusNotFound, "unknown crop")
		return
	}
	now := api.now()
	c.JSON(http.StatusOK, gin.H{
		"crop":                crop,
		"seasonal_multiplier": api.crops.SeasonalMultiplier(crop.ID, now.Month()),
		"estimated_price":     api.crops.EstimatedPrice(crop.ID, now),
	})
}

// HandleSensors lists every sensor known in memory or in storage
func (api *APIHandler) HandleSensors(c *gin.Context) {
	seen := make(map[string]bool)
	ids := make([]string, 0)
	for _, id := range api.risk.SensorIDs() {
		seen[id] = true
		ids = append(ids, id)
	}
	if api.history != nil {
		stored, err := api.history.GetSensorIDs()
		if err != nil {
			api.logger.Error().Err(err).Msg("Failed to get sensor IDs")
			errorJSON(c, http.StatusInternalServerError, "failed to list sensors")
			return
		}
		for _, id := range stored {
			if !seen[id] {
				ids = append(ids, id)
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"sensors": ids})
}

// currentReading returns the latest reading from memory, then storage
func (api *APIHandler) currentReading(sensorID string) (*models.Reading, error) {
	if r, ok := api.risk.Current(sensorID); ok {
		return &r, nil
	}
	if api.history == nil {
		return nil, nil
	}
	return api.history.GetLatestReading(sensorID)
}

// HandleCurrent returns the current reading for a sensor
func (api *APIHandler) HandleCurrent(c *gin.Context) {
	reading, err := api.currentReading(c.Param("id"))
	if err != nil {
		api.logger.Error().Err(err).Msg("Failed to get latest reading")
		errorJSON(c, http.StatusInternalServerError, "failed to get reading")
		return
	}
	if reading == nil {
		errorJSON(c, http.StatusNotFound, "no readings available")
		return
	}
	c.JSON(http.StatusOK, reading)
}

// HandleHistory returns readings for a sensor, newest first. Without time
// parameters it serves the in-memory history; start/end or before query
// the database.
func (api *APIHandler) HandleHistory(c *gin.Context) {
	sensorID := c.Param("id")
	limit := queryInt(c, "limit", defaultHistoryLimit, maxHistoryLimit)

	start, hasStart, err := queryTime(c, "start")
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}
	end, hasEnd, err := queryTime(c, "end")
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}
	before, hasBefore, err := queryTime(c, "before")
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}

	if !hasStart && !hasEnd && !hasBefore {
		readings := api.risk.Latest(sensorID, limit)
		if readings == nil {
			readings = []models.Reading{}
		}
		c.JSON(http.StatusOK, readings)
		return
	}
	if !api.requireHistory(c) {
		return
	}

	var readings []*models.Reading
	if hasBefore {
		readings, err = api.history.GetReadingsBefore(sensorID, before, limit)
	} else {
		if !hasEnd {
			end = api.now()
		}
		if !hasStart {
			start = end.Add(-risk.DefaultTrendWindow)
		}
		readings, err = api.history.GetReadingsInRange(sensorID, start, end, limit)
	}
	if err != nil {
		api.logger.Error().Err(err).Msg("Failed to query readings")
		errorJSON(c, http.StatusInternalServerError, "failed to query readings")
		return
	}
	if readings == nil {
		readings = []*models.Reading{}
	}
	c.JSON(http.StatusOK, readings)
}

// HandleRisk returns a detailed risk analysis of the sensor's latest
// reading for a crop
func (api *APIHandler) HandleRisk(c *gin.Context) {
	reading, err := api.currentReading(c.Param("id"))
	if err != nil {
		api.logger.Error().Err(err).Msg("Failed to get latest reading")
		errorJSON(c, http.StatusInternalServerError, "failed to get reading")
		return
	}
	if reading == nil {
		errorJSON(c, http.StatusNotFound, "no readings available")
		return
	}

	crop, fallback := api.crops.Get(c.Query("crop"))
	c.JSON(http.StatusOK, gin.H{
		"reading":       reading,
		"crop_id":       crop.ID,
		"crop_fallback": fallback,
		"analysis":      api.risk.DetailedRiskAnalysis(*reading, crop),
	})
}

// HandleTrend returns the risk trend of a sensor over a window
func (api *APIHandler) HandleTrend(c *gin.Context) {
	window := risk.DefaultTrendWindow
	if raw := c.Query("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			errorJSON(c, http.StatusBadRequest, "invalid window")
			return
		}
		window = d
	}
	c.JSON(http.StatusOK, api.risk.RiskTrend(c.Param("id"), window))
}

// HandleDailyStats returns daily aggregates for a sensor over the last days
func (api *APIHandler) HandleDailyStats(c *gin.Context) {
	if !api.requireHistory(c) {
		return
	}
	days := queryInt(c, "days", 7, 365)
	end := api.now()
	start := end.AddDate(0, 0, -days)

	stats, err := api.history.GetDailyStats(c.Param("id"), start, end)
	if err != nil {
		api.logger.Error().Err(err).Msg("Failed to get daily stats")
		errorJSON(c, http.StatusInternalServerError, "failed to get daily stats")
		return
	}
	if stats == nil {
		stats = []storage.DailyStat{}
	}
	c.JSON(http.StatusOK, stats)
}

// HandleMarketList returns every market snapshot held in memory
func (api *APIHandler) HandleMarketList(c *gin.Context) {
	c.JSON(http.StatusOK, api.markets.GetAll())
}

// HandleGetMarket returns the market snapshot for a crop
func (api *APIHandler) HandleGetMarket(c *gin.Context) {
	cropID := c.Param("crop")
	if m := api.markets.Get(cropID); m != nil {
		c.JSON(http.StatusOK, m)
		return
	}
	if api.history != nil {
		m, err := api.history.GetMarketData(cropID)
		if err != nil {
			api.logger.Error().Err(err).Msg("Failed to get market data")
			errorJSON(c, http.StatusInternalServerError, "failed to get market data")
			return
		}
		if m != nil {
			c.JSON(http.StatusOK, m)
			return
		}
	}
	errorJSON(c, http.StatusNotFound, "no market data for crop")
}

// HandlePutMarket replaces the market snapshot for a crop
func (api *APIHandler) HandlePutMarket(c *gin.Context) {
	cropID := c.Param("crop")
	if _, ok := api.crops.Lookup(cropID); !ok {
		errorJSON(c, http.StatusNotFound, "unknown crop")
		return
	}

	var m models.MarketData
	if err := c.ShouldBindJSON(&m); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid market data")
		return
	}
	m.CropID = cropID
	if err := prepareMarketData(&m, api.now()); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}

	api.markets.Set(&m)
	stored := api.markets.Get(cropID)
	if api.history != nil {
		if err := api.history.UpsertMarketData(stored); err != nil {
			api.logger.Error().Err(err).Str("crop", cropID).Msg("Failed to persist market data")
			errorJSON(c, http.StatusInternalServerError, "failed to persist market data")
			return
		}
	}
	api.logger.Info().Str("crop", cropID).Float64("price", m.CurrentPrice).Msg("Market data updated")
	c.JSON(http.StatusOK, stored)
}

// RecommendationResponse is a verdict plus the provenance of its inputs
type RecommendationResponse struct {
	Verdict       *models.EconomicVerdict `json:"verdict"`
	CropFallback  bool                    `json:"crop_fallback"`
	ReadingSource string                  `json:"reading_source,omitempty"`
	MarketSource  string                  `json:"market_source,omitempty"`
}

// EvaluationResponse lists every option the engine considered
type EvaluationResponse struct {
	Options  []models.StorageOption `json:"options"`
	Excluded []decision.Exclusion   `json:"excluded"`
	Warnings []string               `json:"warnings"`
}

// resolve binds the request body and builds its decision context
func (api *APIHandler) resolve(c *gin.Context) (Resolution, bool) {
	var req RecommendationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid request body")
		return Resolution{}, false
	}
	res, err := api.resolver.Resolve(req)
	if err != nil {
		api.logger.Error().Err(err).Msg("Failed to resolve recommendation inputs")
		errorJSON(c, http.StatusInternalServerError, "failed to load inputs")
		return Resolution{}, false
	}
	return res, true
}

// decisionError maps decision engine errors to responses
func (api *APIHandler) decisionError(c *gin.Context, err error) {
	var verr *decision.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":      "validation failed",
			"violations": verr.Violations,
		})
	case errors.Is(err, decision.ErrNoOptionsAvailable):
		errorJSON(c, http.StatusConflict, err.Error())
	default:
		api.logger.Error().Err(err).Msg("Recommendation failed")
		errorJSON(c, http.StatusInternalServerError, "recommendation failed")
	}
}

// HandleRecommend runs a full decision flow and records the verdict
func (api *APIHandler) HandleRecommend(c *gin.Context) {
	res, ok := api.resolve(c)
	if !ok {
		return
	}

	verdict, err := api.decisions.GenerateRecommendation(res.Context)
	if err != nil {
		api.decisionError(c, err)
		return
	}

	if api.history != nil {
		if err := api.history.InsertVerdict(verdict); err != nil {
			api.logger.Error().Err(err).Str("verdict_id", verdict.ID).Msg("Failed to record verdict")
		}
	}

	c.JSON(http.StatusOK, RecommendationResponse{
		Verdict:       verdict,
		CropFallback:  res.CropFallback,
		ReadingSource: res.ReadingSource,
		MarketSource:  res.MarketSource,
	})
}

// HandleEvaluate runs the strategies without selecting a winner
func (api *APIHandler) HandleEvaluate(c *gin.Context) {
	res, ok := api.resolve(c)
	if !ok {
		return
	}

	ev, err := api.decisions.Evaluate(res.Context)
	if err != nil {
		api.decisionError(c, err)
		return
	}

	resp := EvaluationResponse{
		Options:  ev.Options,
		Excluded: ev.Excluded,
		Warnings: make([]string, 0, len(ev.Warnings)),
	}
	if resp.Options == nil {
		resp.Options = []models.StorageOption{}
	}
	if resp.Excluded == nil {
		resp.Excluded = []decision.Exclusion{}
	}
	for _, w := range ev.Warnings {
		resp.Warnings = append(resp.Warnings, w.Error())
	}
	c.JSON(http.StatusOK, resp)
}

// HandleVerdicts lists the most recent recorded verdicts
func (api *APIHandler) HandleVerdicts(c *gin.Context) {
	if !api.requireHistory(c) {
		return
	}
	records, err := api.history.ListVerdicts(queryInt(c, "limit", defaultVerdictLimit, maxExportVerdicts))
	if err != nil {
		api.logger.Error().Err(err).Msg("Failed to list verdicts")
		errorJSON(c, http.StatusInternalServerError, "failed to list verdicts")
		return
	}
	c.JSON(http.StatusOK, records)
}

// HandleVerdict returns one recorded verdict
func (api *APIHandler) HandleVerdict(c *gin.Context) {
	if !api.requireHistory(c) {
		return
	}
	record, err := api.history.GetVerdict(c.Param("id"))
	if err != nil {
		api.logger.Error().Err(err).Msg("Failed to get verdict")
		errorJSON(c, http.StatusInternalServerError, "failed to get verdict")
		return
	}
	if record == nil {
		errorJSON(c, http.StatusNotFound, "verdict not found")
		return
	}
	c.JSON(http.StatusOK, record)
}

// HandleExport downloads recorded verdicts as an xlsx workbook
func (api *APIHandler) HandleExport(c *gin.Context) {
	if !api.requireHistory(c) {
		return
	}
	records, err := api.history.ListVerdicts(queryInt(c, "limit", maxExportVerdicts, maxExportVerdicts))
	if err != nil {
		api.logger.Error().Err(err).Msg("Failed to list verdicts")
		errorJSON(c, http.StatusInternalServerError, "failed to list verdicts")
		return
	}

	verdicts := make([]models.EconomicVerdict, 0, len(records))
	for _, r := range records {
		verdicts = append(verdicts, r.Verdict())
	}

	filename := fmt.Sprintf("verdicts-%s.xlsx", api.now().UTC().Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	c.Header("Content-Type", report.ContentType)
	if err := report.Write(c.Writer, verdicts); err != nil {
		api.logger.Error().Err(err).Msg("Failed to write verdict export")
		c.Status(http.StatusInternalServerError)
	}
}
