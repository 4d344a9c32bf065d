package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vivenzalife/vivenza/internal/catalog"
)

type CatalogHandler struct {
	catalog *catalog.Service
}

func NewCatalogHandler(catalogSvc *catalog.Service) *CatalogHandler {
	return &CatalogHandler{catalog: catalogSvc}
}

type CreateBookingRequest struct {
	ServiceID       string    `json:"service_id" binding:"required"`
	EstablishmentID string    `json:"establishment_id" binding:"required"`
	Date            time.Time `json:"date"`
}

func (h *CatalogHandler) GetEstablishments(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"establishments": h.catalog.ListEstablishments(c.Request.Context())})
}

func (h *CatalogHandler) GetEstablishment(c *gin.Context) {
	establishment, err := h.catalog.GetEstablishment(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, establishment)
}

func (h *CatalogHandler) GetProducts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"products": h.catalog.ListProducts(c.Request.Context())})
}

func (h *CatalogHandler) GetBookings(c *gin.Context) {
	bookings, err := h.catalog.ListBookings(c.Request.Context(), callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings})
}

func (h *CatalogHandler) CreateBooking(c *gin.Context) {
	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c)
		return
	}

	booking, err := h.catalog.CreateBooking(c.Request.Context(), callerID(c), req.ServiceID, req.EstablishmentID, req.Date)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, booking)
}

func (h *CatalogHandler) CancelBooking(c *gin.Context) {
	if err := h.catalog.CancelBooking(c.Request.Context(), callerID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}
