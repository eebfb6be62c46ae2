package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/certguard/certguard/internal/verification"
	"github.com/certguard/certguard/internal/watermark"
)

// maxBatch bounds the number of certificates in one batch request.
const maxBatch = 100

// verifier is the interface expected by VerifyHandler, satisfied by *verification.Engine.
type verifier interface {
	Verify(ctx context.Context, req verification.Request) (*verification.Result, error)
	VerifyBatch(ctx context.Context, reqs []verification.Request) ([]*verification.Result, error)
}

// VerifyHandler exposes the public verification endpoints. Every verdict,
// including Invalid, is a 200 response.
type VerifyHandler struct {
	engine verifier
	logger *zap.Logger
}

// NewVerifyHandler creates a VerifyHandler.
func NewVerifyHandler(engine verifier, logger *zap.Logger) *VerifyHandler {
	return &VerifyHandler{engine: engine, logger: logger}
}

// Register mounts the verification routes on the given router group.
func (h *VerifyHandler) Register(rg *gin.RouterGroup) {
	v := rg.Group("/verify")
	{
		v.POST("", h.Verify)
		v.POST("/batch", h.VerifyBatch)
	}
}

type verifyRequest struct {
	QRDataURI       string `json:"qrDataUri"`
	DocumentDataURI string `json:"documentDataUri,omitempty"`
}

func (r verifyRequest) toEngine() (verification.Request, error) {
	req := verification.Request{QRPayload: r.QRDataURI}
	if r.DocumentDataURI != "" {
		doc, err := watermark.DecodeDataURI(r.DocumentDataURI)
		if err != nil {
			return req, errors.New("documentDataUri is not a valid data URI")
		}
		req.Document = doc
	}
	return req, nil
}

// Verify handles POST /verify.
func (h *VerifyHandler) Verify(c *gin.Context) {
	var body verifyRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	req, err := body.toEngine()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.engine.Verify(c.Request.Context(), req)
	if err != nil {
		h.logger.Error("verify certificate", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verification could not be completed"})
		return
	}
	RecordVerification(string(res.Status))
	c.JSON(http.StatusOK, res)
}

type batchRequest struct {
	Certificates []verifyRequest `json:"certificates" binding:"required"`
}

// VerifyBatch handles POST /verify/batch.
func (h *VerifyHandler) VerifyBatch(c *gin.Context) {
	var body batchRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "certificates is required"})
		return
	}
	if len(body.Certificates) > maxBatch {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("at most %d certificates per batch", maxBatch)})
		return
	}

	reqs := make([]verification.Request, len(body.Certificates))
	for i, b := range body.Certificates {
		req, err := b.toEngine()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("certificates[%d]: %v", i, err)})
			return
		}
		reqs[i] = req
	}

	results, err := h.engine.VerifyBatch(c.Request.Context(), reqs)
	if err != nil {
		h.logger.Error("verify batch", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verification could not be completed"})
		return
	}
	for _, r := range results {
		RecordVerification(string(r.Status))
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
}
