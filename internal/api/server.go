// Package api exposes the watchtower's audit engine over HTTP, grounded on
// the reference implementation's gin-based agent API server: request-scoped
// logging and recovery, an optional API-key gate, and a small set of
// resource-oriented routes over internal/engine and internal/jobstore.
package api

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/watchy-labs/watchy/internal/chains"
	"github.com/watchy-labs/watchy/internal/config"
	"github.com/watchy-labs/watchy/internal/engine"
	"github.com/watchy-labs/watchy/internal/explorer"
	"github.com/watchy-labs/watchy/internal/jobstore"
	"github.com/watchy-labs/watchy/internal/narrative"
	"github.com/watchy-labs/watchy/internal/signer"
)

// Server hosts the watchtower's HTTP surface.
type Server struct {
	cfg        *config.AppConfig
	engine     *engine.Engine
	store      jobstore.Store
	signer     signer.Signer
	explorer   *explorer.Store
	narrator   *narrative.Client
	hub        *Hub
	logger     *logrus.Logger
	router     *gin.Engine
	httpServer *http.Server
}

// New builds a Server. explorerStore and narrator are optional: a nil
// explorerStore skips audit-history recording, and a nil narrator makes
// ?narrative=true on the report endpoint a no-op.
func New(cfg *config.AppConfig, eng *engine.Engine, store jobstore.Store, s signer.Signer, explorerStore *explorer.Store, narrator *narrative.Client, logger *logrus.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), requestIDMiddleware(), ginLogger(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "X-API-Key"},
		MaxAge:       12 * time.Hour,
	}))

	srv := &Server{
		cfg:      cfg,
		engine:   eng,
		store:    store,
		signer:   s,
		explorer: explorerStore,
		narrator: narrator,
		hub:      newHub(),
		logger:   logger,
		router:   router,
	}

	router.Use(apiKeyMiddleware(cfg.Server.APIKey))
	srv.registerRoutes()
	go srv.hub.run()

	return srv
}

// Notify implements engine.Notifier, fanning a job's terminal or in-progress
// state out to any open websocket subscribers and, for terminal states, to
// the job's configured webhook.
func (s *Server) Notify(job *jobstore.Job) {
	s.hub.broadcast(job)
	if !job.Terminal() {
		return
	}
	if job.CallbackURL != "" {
		go deliverWebhook(context.Background(), s.logger, s.cfg.Server.WebhookSecret, job)
	}
	if s.explorer != nil {
		go s.recordExplorerHistory(job)
	}
}

func (s *Server) recordExplorerHistory(job *jobstore.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec := explorer.AuditRecord{
		AuditID:   job.ID,
		ChainID:   job.ChainID,
		AgentID:   job.AgentID,
		Status:    string(job.Status),
		CreatedAt: time.Unix(job.CreatedAt, 0).UTC(),
	}
	if job.CompletedAt != nil {
		t := time.Unix(*job.CompletedAt, 0).UTC()
		rec.CompletedAt = &t
	}
	if job.Result != nil {
		score := job.Result.Scores.Overall
		rec.OverallScore = &score
		rec.ReportCID = job.Result.ReportCID
	}
	if err := s.explorer.RecordAudit(ctx, rec); err != nil {
		s.logger.WithField("audit_id", job.ID).Warnf("explorer: record audit: %v", err)
	}
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.getHealth)
	s.router.POST("/audit", s.submitAudit)
	s.router.GET("/audit/:audit_id", s.getAuditStatus)
	s.router.GET("/audit/:audit_id/report", s.getAuditReport)
	s.router.GET("/agents/:registry/:agent_id/audits", s.listAgentAudits)
	s.router.GET("/ws/audit/:audit_id", s.serveWebSocket)
}

// Start launches the HTTP server in the background.
func (s *Server) Start() {
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler: s.router,
	}
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("api: server error: %v", err)
		}
	}()
}

// ProgressSink exposes the server's websocket hub as an
// internal/logging.ProgressSink, so the process logger can fan correlated
// log lines out to open audit subscribers.
func (s *Server) ProgressSink() *Hub { return s.hub }

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.close()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set("X-Request-ID", id)
		c.Next()
	}
}

func ginLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"request_id": c.GetString("request_id"),
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
		}).Infof("%s %s", c.Request.Method, c.Request.URL.Path)
	}
}

// apiKeyMiddleware enforces X-API-Key when configuredKey is non-empty;
// absence of configuration disables the check entirely, per spec.
func apiKeyMiddleware(configuredKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if configuredKey == "" {
			c.Next()
			return
		}
		got := c.GetHeader("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(got), []byte(configuredKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_api_key"})
			return
		}
		c.Next()
	}
}

func walletMode(cfg config.SignerConfig) string {
	switch {
	case cfg.KeyMode == "mnemonic" || (cfg.KeyMode == "" && cfg.Mnemonic != ""):
		return "mnemonic"
	case cfg.KeyMode == "private_key" || (cfg.KeyMode == "" && cfg.PrivateKey != ""):
		return "private_key"
	default:
		return "none"
	}
}

func storageMode(cfg config.StoreConfig) string {
	if cfg.RedisURL != "" {
		return "durable"
	}
	return "memory"
}

func supportedChainNames() []string {
	names := make([]string, 0, len(chains.SupportedChainIDs()))
	for _, id := range chains.SupportedChainIDs() {
		if c, ok := chains.Get(id); ok && c.HasRegistry() {
			names = append(names, c.Name)
		}
	}
	return names
}
