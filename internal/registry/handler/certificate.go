package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/certguard/certguard/internal/canonical"
	"github.com/certguard/certguard/internal/certledger"
	"github.com/certguard/certguard/internal/identity"
	"github.com/certguard/certguard/internal/issuance"
	"github.com/certguard/certguard/internal/users"
	"github.com/certguard/certguard/internal/watermark"
)

// issuer is the interface expected by CertificateHandler, satisfied by *issuance.Service.
type issuer interface {
	Preview(input map[string]any) issuance.Preview
	Issue(ctx context.Context, req issuance.Request) (*issuance.Certificate, error)
	Suggest(ctx context.Context, document []byte, mime string) (*issuance.Suggestion, error)
}

// recordLookup resolves certificates by id, satisfied by certledger.Ledger.
type recordLookup interface {
	GetByID(ctx context.Context, id string) (*certledger.Record, error)
}

// CertificateHandler handles issuance, preview, suggestion and lookup.
type CertificateHandler struct {
	svc     issuer
	records recordLookup
	tokens  *identity.TokenIssuer // nil = open mode
	logger  *zap.Logger
}

// NewCertificateHandler creates a CertificateHandler.
func NewCertificateHandler(svc issuer, records recordLookup, tokens *identity.TokenIssuer, logger *zap.Logger) *CertificateHandler {
	return &CertificateHandler{svc: svc, records: records, tokens: tokens, logger: logger}
}

// Register mounts the certificate routes on the given router group.
func (h *CertificateHandler) Register(rg *gin.RouterGroup) {
	issuers := requireRoles(h.tokens, users.RoleInstitution, users.RoleAdmin)
	certs := rg.Group("/certificates")
	{
		certs.POST("", issuers, h.Issue)
		certs.POST("/preview", issuers, h.Preview)
		certs.POST("/suggest", issuers, h.Suggest)
		certs.GET("/:id", requireRoles(h.tokens, users.RoleAdmin, users.RoleInstitution), h.Get)
	}
}

// imageKey is the request field carrying the optional certificate image.
const imageKey = "imageDataUri"

type issueResponse struct {
	Certificate        *certledger.Record `json:"certificate"`
	QRPayload          string             `json:"qrPayload"`
	QRImage            string             `json:"qrImage,omitempty"`
	WatermarkedImage   string             `json:"watermarkedImage,omitempty"`
	WatermarkTruncated bool               `json:"watermarkTruncated"`
}

// Issue handles POST /certificates. The body carries the identity fields and
// an optional imageDataUri to watermark.
func (h *CertificateHandler) Issue(c *gin.Context) {
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	req := issuance.Request{Fields: canonical.FromMap(body)}
	if uri, _ := body[imageKey].(string); uri != "" {
		img, err := watermark.DecodeDataURI(uri)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": imageKey + " is not a valid data URI"})
			return
		}
		req.Image = img
	}

	cert, err := h.svc.Issue(c.Request.Context(), req)
	if err != nil {
		h.issueError(c, err)
		return
	}
	RecordIssuance()

	resp := issueResponse{
		Certificate:        cert.Record,
		QRPayload:          cert.QRPayload,
		WatermarkTruncated: cert.WatermarkTruncated,
	}
	if len(cert.QRImage) > 0 {
		resp.QRImage = watermark.EncodeDataURI("image/png", cert.QRImage)
	}
	if len(cert.WatermarkedImage) > 0 {
		resp.WatermarkedImage = watermark.EncodeDataURI("image/png", cert.WatermarkedImage)
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *CertificateHandler) issueError(c *gin.Context, err error) {
	var verr *issuance.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "missing": verr.Missing})
	case errors.Is(err, issuance.ErrInvalidImage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, issuance.ErrImageTooSmall):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, certledger.ErrDuplicateID):
		c.JSON(http.StatusConflict, gin.H{"error": "A certificate with this ID already exists."})
	default:
		h.logger.Error("issue certificate", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to write the certificate to the registry. Please retry.",
		})
	}
}

// Preview handles POST /certificates/preview. Nothing is persisted.
func (h *CertificateHandler) Preview(c *gin.Context) {
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	delete(body, imageKey)
	c.JSON(http.StatusOK, h.svc.Preview(body))
}

type suggestRequest struct {
	DocumentDataURI string `json:"documentDataUri" binding:"required"`
}

// Suggest handles POST /certificates/suggest.
func (h *CertificateHandler) Suggest(c *gin.Context) {
	var req suggestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "documentDataUri is required"})
		return
	}
	doc, err := watermark.DecodeDataURI(req.DocumentDataURI)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "documentDataUri is not a valid data URI"})
		return
	}

	s, err := h.svc.Suggest(c.Request.Context(), doc, dataURIMime(req.DocumentDataURI))
	if err != nil {
		if errors.Is(err, issuance.ErrNoSuggester) {
			c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
			return
		}
		h.logger.Warn("field suggestion failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "field suggestion failed"})
		return
	}
	c.JSON(http.StatusOK, s)
}

// Get handles GET /certificates/:id.
func (h *CertificateHandler) Get(c *gin.Context) {
	rec, err := h.records.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, certledger.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "certificate not found"})
			return
		}
		h.logger.Error("get certificate", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query registry"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// dataURIMime returns the MIME type of a data URI, or
// application/octet-stream when none is declared.
func dataURIMime(uri string) string {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "application/octet-stream"
	}
	mime, _, _ := strings.Cut(rest, ";")
	if mime == "" || strings.Contains(mime, ",") {
		return "application/octet-stream"
	}
	return mime
}
