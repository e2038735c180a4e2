package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ticketi/ticketi/internal/helpers"
	"github.com/ticketi/ticketi/internal/middleware"
	"github.com/ticketi/ticketi/internal/models"
	"github.com/ticketi/ticketi/internal/services"
)

type EventHandler struct {
	events *services.EventService
}

func NewEventHandler(events *services.EventService) *EventHandler {
	return &EventHandler{events: events}
}

type CreateEventRequest struct {
	Name        string          `json:"name" binding:"required"`
	Location    string          `json:"location" binding:"required"`
	LocationLat *float64        `json:"location_lat"`
	LocationLng *float64        `json:"location_lng"`
	Description string          `json:"description" binding:"required"`
	Date        time.Time       `json:"date" binding:"required"`
	Price       decimal.Decimal `json:"price"`
	Capacity    int             `json:"capacity" binding:"required"`
	Image       string          `json:"image"`
}

type UpdateEventRequest struct {
	Name        *string          `json:"name"`
	Location    *string          `json:"location"`
	LocationLat *float64         `json:"location_lat"`
	LocationLng *float64         `json:"location_lng"`
	Description *string          `json:"description"`
	Date        *time.Time       `json:"date"`
	Price       *decimal.Decimal `json:"price"`
	Image       *string          `json:"image"`
	Status      *string          `json:"status"`
}

func (h *EventHandler) CreateEvent(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	var req CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	event, err := h.events.Create(c.Request.Context(), userID, services.CreateEventInput{
		Name:        req.Name,
		Location:    req.Location,
		LocationLat: req.LocationLat,
		LocationLng: req.LocationLng,
		Description: req.Description,
		Date:        req.Date,
		Price:       req.Price,
		Capacity:    req.Capacity,
		Image:       req.Image,
	})
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, event)
}

func (h *EventHandler) GetEvent(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid event ID.")
		return
	}

	event, err := h.events.Get(c.Request.Context(), eventID)
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, event)
}

func (h *EventHandler) ListEvents(c *gin.Context) {
	search := c.Query("search")
	status := c.DefaultQuery("status", models.EventStatusUpcoming)

	events, err := h.events.List(c.Request.Context(), search, status)
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, events)
}

func (h *EventHandler) ListMyEvents(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	events, err := h.events.ListByOwner(c.Request.Context(), userID)
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, events)
}

func (h *EventHandler) UpdateEvent(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid event ID.")
		return
	}

	var req UpdateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	event, err := h.events.Update(c.Request.Context(), eventID, userID, services.EventPatch{
		Name:        req.Name,
		Location:    req.Location,
		LocationLat: req.LocationLat,
		LocationLng: req.LocationLng,
		Description: req.Description,
		Date:        req.Date,
		Price:       req.Price,
		Image:       req.Image,
		Status:      req.Status,
	})
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Event updated successfully.",
		"event":   event,
	})
}

func (h *EventHandler) DeleteEvent(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid event ID.")
		return
	}

	if err := h.events.Delete(c.Request.Context(), eventID, userID); err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Event deleted successfully.",
	})
}
