package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/certguard/certguard/internal/certledger"
	"github.com/certguard/certguard/internal/identity"
	"github.com/certguard/certguard/internal/users"
)

// LedgerHandler exposes the administrative ledger endpoints.
type LedgerHandler struct {
	ledger certledger.Ledger
	tokens *identity.TokenIssuer // nil = open mode
	logger *zap.Logger
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(ledger certledger.Ledger, tokens *identity.TokenIssuer, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{ledger: ledger, tokens: tokens, logger: logger}
}

// Register mounts the ledger routes on the given router group.
func (h *LedgerHandler) Register(rg *gin.RouterGroup) {
	l := rg.Group("/ledger", requireRoles(h.tokens, users.RoleAdmin))
	{
		l.GET("", h.Overview)
		l.GET("/records", h.List)
		l.GET("/verify", h.Verify)
		l.POST("/tamper", h.Tamper)
		l.POST("/reset", h.Reset)
	}
}

// Overview handles GET /ledger and returns the chain length and root hash.
func (h *LedgerHandler) Overview(c *gin.Context) {
	ctx := c.Request.Context()

	count, err := h.ledger.Len(ctx)
	if err != nil {
		h.logger.Error("ledger Len", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query ledger"})
		return
	}

	root, err := h.ledger.Root(ctx)
	if err != nil {
		h.logger.Error("ledger Root", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query ledger root"})
		return
	}
	SetLedgerRecords(count)

	c.JSON(http.StatusOK, gin.H{
		"entries": count,
		"root":    root,
	})
}

// List handles GET /ledger/records.
func (h *LedgerHandler) List(c *gin.Context) {
	records, err := h.ledger.List(c.Request.Context())
	if err != nil {
		h.logger.Error("ledger List", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query ledger"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}

// Verify handles GET /ledger/verify. A broken chain is reported in the body
// with a 200 status.
func (h *LedgerHandler) Verify(c *gin.Context) {
	report, err := h.ledger.VerifyIntegrity(c.Request.Context())
	if err != nil {
		h.logger.Error("ledger integrity walk", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify ledger"})
		return
	}
	RecordIntegrityCheck(report.IsValid)
	if !report.IsValid {
		h.logger.Warn("ledger integrity check failed", zap.Int("failures", len(report.Failures)))
	}
	c.JSON(http.StatusOK, report)
}

// Tamper handles POST /ledger/tamper.
func (h *LedgerHandler) Tamper(c *gin.Context) {
	res, err := h.ledger.TamperRandom(c.Request.Context())
	if err != nil {
		if errors.Is(err, certledger.ErrNotEnoughRecords) {
			c.JSON(http.StatusConflict, gin.H{"error": "Not enough records to tamper."})
			return
		}
		h.logger.Error("ledger tamper", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to tamper ledger"})
		return
	}
	h.logger.Warn("ledger record tampered on request",
		zap.Int("seq", res.Seq),
		zap.String("cert_id", res.CertificateID),
	)
	c.JSON(http.StatusOK, res)
}

// Reset handles POST /ledger/reset.
func (h *LedgerHandler) Reset(c *gin.Context) {
	ctx := c.Request.Context()

	count, err := h.ledger.Len(ctx)
	if err != nil {
		h.logger.Error("ledger Len", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query ledger"})
		return
	}
	if err := h.ledger.Reset(ctx); err != nil {
		h.logger.Error("ledger reset", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reset ledger"})
		return
	}
	SetLedgerRecords(1)

	msg := "Certificate chain has been reset to its genesis state."
	if count == 0 {
		msg = "Chain was already empty. Initialized genesis block."
	}
	h.logger.Warn("ledger reset", zap.Int("previous_entries", count))
	c.JSON(http.StatusOK, gin.H{"message": msg})
}
