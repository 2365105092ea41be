// Package api provides the REST control API for ratiokeys
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/james-see/ratiokeys/pkg/engine"
	"github.com/james-see/ratiokeys/pkg/ratio"
	"github.com/james-see/ratiokeys/pkg/registry"
	"github.com/james-see/ratiokeys/pkg/voice"
)

// @title ratiokeys API
// @version 1.0
// @description Play and inspect a just-intonation keyboard synthesizer
// @host localhost:8080
// @BasePath /api/v1

// Server exposes a registry over HTTP
type Server struct {
	reg      *registry.Registry
	analyzer *engine.Analyzer
	logger   *slog.Logger
	// background operations such as settle outlive their request
	ctx context.Context
}

// NewServer creates a server. analyzer may be nil.
func NewServer(ctx context.Context, reg *registry.Registry, analyzer *engine.Analyzer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &Server{reg: reg, analyzer: analyzer, logger: logger, ctx: ctx}
}

// Router builds the gin engine with every route attached
func (s *Server) Router() *gin.Engine {
	r := gin.Default()

	// CORS middleware
	r.Use(corsMiddleware())

	// Health check
	r.GET("/health", healthCheck)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.GET("/voices", s.listVoices)
		v1.GET("/sounding", s.listSounding)
		v1.GET("/pitch", s.getPitch)
		v1.GET("/table", s.getTable)
		v1.GET("/analysis", s.getAnalysis)
		v1.POST("/keys/:key/press", s.pressKey)
		v1.POST("/keys/:key/release", s.releaseKey)
		v1.POST("/reset", s.reset)
		v1.POST("/panic", s.panicAll)
		v1.POST("/settle", s.settle)
	}

	// Swagger docs
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}

// Run serves on port until the listener fails
func (s *Server) Run(port int) error {
	return s.Router().Run(fmt.Sprintf(":%d", port))
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// abortWithError maps registry errors onto status codes
func abortWithError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, registry.ErrSettling):
		status = http.StatusConflict
	case errors.Is(err, registry.ErrNoSettle):
		status = http.StatusNotImplemented
	case errors.Is(err, voice.ErrBackend):
		status = http.StatusBadGateway
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// healthCheck godoc
// @Summary Health check endpoint
// @Description Returns the health status of the API
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "ratiokeys",
	})
}

// listVoices godoc
// @Summary List voices
// @Description Returns the status of every voice in table order
// @Tags voices
// @Produce json
// @Success 200 {object} map[string][]voice.Status
// @Router /api/v1/voices [get]
func (s *Server) listVoices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"voices": s.reg.Snapshot()})
}

// listSounding godoc
// @Summary Sounding log
// @Description Returns the frequencies currently sounding, oldest first
// @Tags voices
// @Produce json
// @Success 200 {object} map[string][]registry.Sounding
// @Router /api/v1/sounding [get]
func (s *Server) listSounding(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sounding": s.reg.Sounding()})
}

// getPitch godoc
// @Summary Current pitch
// @Tags pitch
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/v1/pitch [get]
func (s *Server) getPitch(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"hz":        s.reg.Pitch(),
		"reference": s.reg.Reference(),
		"settling":  s.reg.Settling(),
	})
}

type tableEntry struct {
	Key      string         `json:"key"`
	Label    string         `json:"label"`
	Ratio    string         `json:"ratio"`
	Distance float64        `json:"distance"`
	Waveform ratio.Waveform `json:"waveform"`
}

// getTable godoc
// @Summary Key table
// @Description Returns the key to ratio table, in table order or sorted by interval size
// @Tags table
// @Produce json
// @Param sort query string false "distance"
// @Success 200 {object} map[string][]tableEntry
// @Failure 400 {object} map[string]string
// @Router /api/v1/table [get]
func (s *Server) getTable(c *gin.Context) {
	var entries []ratio.Entry
	switch c.Query("sort") {
	case "":
		entries = s.reg.Table().Entries()
	case "distance":
		entries = s.reg.Table().SortedByDistance()
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "sort must be empty or distance"})
		return
	}
	out := make([]tableEntry, len(entries))
	for i, e := range entries {
		out[i] = tableEntry{
			Key:      e.Key,
			Label:    e.Label,
			Ratio:    e.Ratio.String(),
			Distance: e.Ratio.Distance(),
			Waveform: e.Waveform,
		}
	}
	c.JSON(http.StatusOK, gin.H{"keys": out})
}

// getAnalysis godoc
// @Summary Output analysis
// @Description Returns the RMS level and loudest frequency of the recent output
// @Tags analysis
// @Produce json
// @Success 200 {object} map[string]float64
// @Failure 404 {object} map[string]string
// @Router /api/v1/analysis [get]
func (s *Server) getAnalysis(c *gin.Context) {
	if s.analyzer == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no analyzer attached"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"level":   s.analyzer.Level(),
		"peak_hz": s.analyzer.PeakFrequency(),
	})
}

// pressKey godoc
// @Summary Press a key
// @Description Presses the voice bound to key; unknown keys are ignored
// @Tags keys
// @Produce json
// @Param key path string true "Key code, e.g. KeyQ"
// @Success 200 {object} map[string]any
// @Failure 409 {object} map[string]string
// @Failure 502 {object} map[string]string
// @Router /api/v1/keys/{key}/press [post]
func (s *Server) pressKey(c *gin.Context) {
	key := c.Param("key")
	if err := s.reg.DispatchPress(key); err != nil {
		abortWithError(c, err)
		return
	}
	_, known := s.reg.Table().Lookup(key)
	c.JSON(http.StatusOK, gin.H{"key": key, "known": known, "hz": s.reg.Pitch()})
}

// releaseKey godoc
// @Summary Release a key
// @Tags keys
// @Produce json
// @Param key path string true "Key code, e.g. KeyQ"
// @Success 200 {object} map[string]any
// @Failure 409 {object} map[string]string
// @Router /api/v1/keys/{key}/release [post]
func (s *Server) releaseKey(c *gin.Context) {
	key := c.Param("key")
	if err := s.reg.DispatchRelease(key); err != nil {
		abortWithError(c, err)
		return
	}
	_, known := s.reg.Table().Lookup(key)
	c.JSON(http.StatusOK, gin.H{"key": key, "known": known})
}

// reset godoc
// @Summary Reset pitch
// @Description Returns the pitch accumulator to the reference without silencing voices
// @Tags pitch
// @Produce json
// @Success 200 {object} map[string]float64
// @Failure 409 {object} map[string]string
// @Router /api/v1/reset [post]
func (s *Server) reset(c *gin.Context) {
	if err := s.reg.ResetAccumulator(); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hz": s.reg.Pitch()})
}

// panicAll godoc
// @Summary Release every voice
// @Tags voices
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /api/v1/panic [post]
func (s *Server) panicAll(c *gin.Context) {
	if err := s.reg.Panic(); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "released"})
}

// settle godoc
// @Summary Run the settle sequence
// @Description Starts the settle sequence in the background, or waits for it with wait=true
// @Tags pitch
// @Produce json
// @Param wait query bool false "block until the sequence ends"
// @Success 200 {object} map[string]any
// @Success 202 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /api/v1/settle [post]
func (s *Server) settle(c *gin.Context) {
	if c.Query("wait") == "true" {
		if err := s.reg.Settle(c.Request.Context()); err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "settled", "hz": s.reg.Pitch()})
		return
	}

	done, err := s.reg.StartSettle(s.ctx)
	if err != nil {
		abortWithError(c, err)
		return
	}
	go func() {
		if err := <-done; err != nil {
			s.logger.Warn("settle failed", "error", err)
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "settling"})
}
