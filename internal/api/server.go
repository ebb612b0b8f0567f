// Package api exposes the control surface: recent decisions, pending
// approvals, the emergency-shutdown switch and a live decision stream.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"crypto-decision-engine/internal/audit"
	"crypto-decision-engine/internal/autonomy"
	"crypto-decision-engine/internal/risk"
)

type Config struct {
	Addr           string   `json:"addr"`
	AllowedOrigins []string `json:"allowed_origins"`
}

func DefaultConfig() Config {
	return Config{Addr: ":8080", AllowedOrigins: []string{"*"}}
}

type Server struct {
	cfg        Config
	recorder   audit.Recorder
	controller *autonomy.Controller
	riskMgr    *risk.Manager
	accountID  string
	hub        *StreamHub
	logger     zerolog.Logger
	httpServer *http.Server
}

func NewServer(cfg Config, recorder audit.Recorder, controller *autonomy.Controller, riskMgr *risk.Manager, accountID string, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:        cfg,
		recorder:   recorder,
		controller: controller,
		riskMgr:    riskMgr,
		accountID:  accountID,
		hub:        NewStreamHub(logger),
		logger:     logger.With().Str("component", "api").Logger(),
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	s.routes(router)
	s.httpServer = &http.Server{Addr: cfg.Addr, Handler: router}
	return s
}

// Hub returns the websocket broadcast hub; the engine publishes cycle
// results into it.
func (s *Server) Hub() *StreamHub { return s.hub }

func (s *Server) routes(r *gin.Engine) {
	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws/decisions", s.hub.HandleWS)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/decisions", s.handleDecisions)
		v1.GET("/approvals", s.handleApprovals)
		v1.POST("/approvals/:id/confirm", s.handleConfirm)
		v1.POST("/approvals/:id/cancel", s.handleCancel)
		v1.GET("/risk/state", s.handleRiskState)
		v1.POST("/risk/emergency/trigger", s.handleEmergencyTrigger)
		v1.POST("/risk/emergency/reset", s.handleEmergencyReset)
	}
}

// Start serves until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("api server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

func (s *Server) handleDecisions(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	records, err := s.recorder.Recent(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("list decisions failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load decisions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": records})
}

func (s *Server) handleApprovals(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"approvals": s.controller.Pending()})
}

func (s *Server) handleConfirm(c *gin.Context) {
	id := c.Param("id")
	outcome, err := s.controller.Confirm(c.Request.Context(), id)
	if errors.Is(err, autonomy.ErrApprovalNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "approval not found, expired or already resolved"})
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("approval_id", id).Msg("confirm failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "execution failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": outcome.Status})
}

func (s *Server) handleCancel(c *gin.Context) {
	id := c.Param("id")
	if err := s.controller.Cancel(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "approval not found or already resolved"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": autonomy.StatusCancelled})
}

func (s *Server) handleRiskState(c *gin.Context) {
	state, err := s.riskMgr.Store().Snapshot(c.Request.Context(), s.accountID, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load risk state"})
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) handleEmergencyTrigger(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "manual"
	}
	if err := s.riskMgr.TriggerEmergency(c.Request.Context(), s.accountID, req.Reason); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to trigger emergency shutdown"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"emergency_shutdown": true})
}

func (s *Server) handleEmergencyReset(c *gin.Context) {
	if err := s.riskMgr.ResetEmergency(c.Request.Context(), s.accountID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reset emergency shutdown"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"emergency_shutdown": false})
}
