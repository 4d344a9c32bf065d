package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vivenzalife/vivenza/internal/apperr"
	"github.com/vivenzalife/vivenza/internal/catalog"
	"github.com/vivenzalife/vivenza/pkg/i18n"
)

// IntegrationHandler serves partner systems authenticated by a shared API key
// rather than a user token.
type IntegrationHandler struct {
	catalog *catalog.Service
	apiKey  string
}

func NewIntegrationHandler(catalogSvc *catalog.Service, apiKey string) *IntegrationHandler {
	return &IntegrationHandler{catalog: catalogSvc, apiKey: apiKey}
}

// APIKeyMiddleware compares the x-api-key header in constant time. An empty
// configured key rejects everything.
func (h *IntegrationHandler) APIKeyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader("x-api-key")
		if h.apiKey == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(h.apiKey)) != 1 {
			abortWithError(c, apperr.New(apperr.Unauthorized, "invalid api key"))
			return
		}
		c.Next()
	}
}

func (h *IntegrationHandler) GetBookings(c *gin.Context) {
	bookings, err := h.catalog.AllBookings(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": bookings})
}

func (h *IntegrationHandler) CreateEstablishment(c *gin.Context) {
	var req catalog.EstablishmentInput
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c)
		return
	}

	establishment, err := h.catalog.CreateEstablishment(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": i18n.Translate("establishment created"),
		"data":    establishment,
	})
}

func (h *IntegrationHandler) CreateProduct(c *gin.Context) {
	var req catalog.ProductInput
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c)
		return
	}

	product, err := h.catalog.CreateProduct(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": i18n.Translate("product created"),
		"data":    product,
	})
}
