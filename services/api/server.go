// Package api exposes backtest runs over a small REST surface: trigger a
// run with parameter overrides, fetch its stored result, health and
// Prometheus metrics. The server never touches the pipeline directly; it
// drives an injected runner so tests can swap the engine out.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/mrhb33/quantsim/proto"
	"github.com/mrhb33/quantsim/services/engine"
)

// Runner executes one backtest for a fully resolved configuration.
type Runner func(ctx context.Context, cfg engine.Config) (*engine.Result, error)

// RunRequest carries per-request overrides on top of the server's base
// configuration. Absent fields keep the base value.
type RunRequest struct {
	Symbol          string   `json:"symbol"`
	TrendThreshold  *float64 `json:"trend_threshold"`
	MaxPositionSize *float64 `json:"max_position_size"`
	LatencyMs       *int64   `json:"latency_ms"`
}

// Server holds completed run results in memory, keyed by job id.
type Server struct {
	base engine.Config
	run  Runner
	log  *logrus.Entry

	mu   sync.RWMutex
	runs map[string]*proto.RunResult
}

func NewServer(base engine.Config, run Runner) *Server {
	return &Server{
		base: base,
		run:  run,
		log:  logrus.WithField("component", "api"),
		runs: make(map[string]*proto.RunResult),
	}
}

// Router builds the gin handler tree.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	v1 := r.Group("/api/v1")
	{
		v1.POST("/backtest", s.handleRun)
		v1.GET("/backtest/:job_id", s.handleResult)
		v1.GET("/health", s.handleHealth)
		v1.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
	return r
}

func (s *Server) handleRun(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg := s.base
	if req.Symbol != "" {
		cfg.Symbol = req.Symbol
	}
	if req.TrendThreshold != nil {
		cfg.Regime.TrendThreshold = *req.TrendThreshold
	}
	if req.MaxPositionSize != nil {
		cfg.Risk.Limits.MaxPositionSize = *req.MaxPositionSize
	}
	if req.LatencyMs != nil {
		cfg.Lob.LatencyMs = *req.LatencyMs
	}

	res, err := s.run(c.Request.Context(), cfg)
	if err != nil {
		s.log.WithError(err).Error("backtest request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	s.runs[res.Run.JobID] = res.Run
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"job_id": res.Run.JobID,
		"symbol": cfg.Symbol,
		"trades": res.Summary.TotalTrades,
	}).Info("backtest served")
	c.JSON(http.StatusOK, res.Run)
}

func (s *Server) handleResult(c *gin.Context) {
	jobID := c.Param("job_id")

	s.mu.RLock()
	run, ok := s.runs[jobID]
	s.mu.RUnlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown job id", "job_id": jobID})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"version":   engine.EngineVersion,
	})
}
