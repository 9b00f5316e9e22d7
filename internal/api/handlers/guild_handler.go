package handlers

import (
	"context"
	"net/http"
	"strconv"

	"example.com/flightguild/bot/internal/audit"
	"example.com/flightguild/bot/internal/models"
	"example.com/flightguild/bot/internal/netstatus"
	"example.com/flightguild/bot/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// BanLister lists the bans in force
type BanLister interface {
	List(ctx context.Context) ([]models.BanRecord, error)
}

// StatusSource provides the latest network snapshot
type StatusSource interface {
	Latest(ctx context.Context) (*netstatus.Snapshot, bool)
}

// AuditSearcher looks up audit entries for a member
type AuditSearcher interface {
	SearchBySubject(ctx context.Context, subjectID string, size int) ([]audit.Entry, error)
}

// GuildHandler serves read-only views of the bot state
type GuildHandler struct {
	bans   BanLister
	status StatusSource
	audit  AuditSearcher
	tracer tracing.Tracer
}

// NewGuildHandler creates a new guild handler; status and audit may be nil
func NewGuildHandler(bans BanLister, status StatusSource, searcher AuditSearcher, tracer tracing.Tracer) *GuildHandler {
	return &GuildHandler{
		bans:   bans,
		status: status,
		audit:  searcher,
		tracer: tracer,
	}
}

// HandleAlive answers the hosting platform's keep-alive ping
func (h *GuildHandler) HandleAlive(c *gin.Context) {
	c.String(http.StatusOK, "Bot is alive!")
}

// HandleListBans returns the bans in force
func (h *GuildHandler) HandleListBans(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-list-bans")
	defer h.tracer.EndTransaction(txn)

	bans, err := h.bans.List(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list bans")
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list bans"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": len(bans), "bans": bans})
}

// HandleGetStatus returns the latest network snapshot
func (h *GuildHandler) HandleGetStatus(c *gin.Context) {
	if h.status == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "network status is disabled"})
		return
	}
	snapshot, ok := h.status.Latest(c.Request.Context())
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no snapshot yet"})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// HandleGetAudit returns recent audit entries for a member
func (h *GuildHandler) HandleGetAudit(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-get-audit")
	defer h.tracer.EndTransaction(txn)

	size, err := strconv.Atoi(c.DefaultQuery("size", "20"))
	if err != nil || size <= 0 || size > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "size must be between 1 and 100"})
		return
	}

	subjectID := c.Param("subject")
	entries, err := h.audit.SearchBySubject(c.Request.Context(), subjectID, size)
	if err != nil {
		log.Error().Err(err).Str("subject_id", subjectID).Msg("Failed to search audit entries")
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "audit search failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subject_id": subjectID, "entries": entries})
}

// RegisterRoutes registers the handler's routes
func (h *GuildHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/", h.HandleAlive)
	router.GET("/bans", h.HandleListBans)
	router.GET("/status", h.HandleGetStatus)
	if h.audit != nil {
		router.GET("/audit/:subject", h.HandleGetAudit)
	}
}
