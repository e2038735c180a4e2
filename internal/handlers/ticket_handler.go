package handlers

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"

	"github.com/ticketi/ticketi/internal/helpers"
	"github.com/ticketi/ticketi/internal/middleware"
	"github.com/ticketi/ticketi/internal/models"
	"github.com/ticketi/ticketi/internal/services"
)

type TicketHandler struct {
	tickets *services.TicketService
}

func NewTicketHandler(tickets *services.TicketService) *TicketHandler {
	return &TicketHandler{tickets: tickets}
}

type ResellRequest struct {
	Price decimal.Decimal `json:"price"`
}

func (h *TicketHandler) GetAvailable(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("eventId"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid event ID.")
		return
	}

	event, count, err := h.tickets.AvailableCount(c.Request.Context(), eventID)
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"event":             event,
		"available_tickets": count,
	})
}

func (h *TicketHandler) PurchasePrimary(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	eventID, err := uuid.Parse(c.Param("eventId"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid event ID.")
		return
	}

	result, err := h.tickets.PurchasePrimary(c.Request.Context(), eventID, userID)
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":        "Ticket purchased successfully.",
		"ticket_id":      result.Ticket.ID,
		"transaction_id": result.Transaction.ID,
	})
}

func (h *TicketHandler) MyTickets(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	tickets, err := h.tickets.ListByOwner(c.Request.Context(), userID)
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, tickets)
}

func (h *TicketHandler) Resell(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	ticketID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid ticket ID.")
		return
	}

	var req ResellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid resale price.")
		return
	}

	ticket, err := h.tickets.ListForResale(c.Request.Context(), ticketID, userID, req.Price)
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "Ticket listed for resale.",
		"ticket_id":    ticket.ID,
		"resale_price": ticket.ResalePrice,
	})
}

func (h *TicketHandler) CancelResale(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	ticketID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid ticket ID.")
		return
	}

	ticket, err := h.tickets.CancelResale(c.Request.Context(), ticketID, userID)
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "Resale listing cancelled successfully.",
		"ticket_id": ticket.ID,
	})
}

func (h *TicketHandler) ListResale(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("eventId"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid event ID.")
		return
	}

	listings, err := h.tickets.ListResale(c.Request.Context(), eventID)
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, listings)
}

func (h *TicketHandler) PurchaseResale(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	ticketID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid ticket ID.")
		return
	}

	result, err := h.tickets.PurchaseResale(c.Request.Context(), ticketID, userID)
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":        "Resale ticket purchased successfully.",
		"ticket_id":      result.Ticket.ID,
		"transaction_id": result.Transaction.ID,
	})
}

// TicketQR renders a signed QR code for a ticket the caller holds. Only
// tickets that have been sold (or are listed for resale by the holder) have
// a QR code.
func (h *TicketHandler) TicketQR(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	ticketID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid ticket ID.")
		return
	}

	ticket, err := h.tickets.Get(c.Request.Context(), ticketID)
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}
	if ticket.UserID == nil || *ticket.UserID != userID {
		helpers.RespondWithError(c, http.StatusForbidden, "You don't have permission to generate a QR code for this ticket.")
		return
	}
	if ticket.Status == models.TicketStatusAvailable {
		helpers.RespondWithError(c, http.StatusConflict, "Ticket has not been sold yet.")
		return
	}

	qrData := helpers.TicketQRData(ticket.ID, ticket.EventID, userID, os.Getenv("JWT_SECRET"))
	qrImage, err := qrcode.Encode(qrData, qrcode.Medium, 256)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to generate QR code.")
		return
	}

	c.Data(http.StatusOK, "image/png", qrImage)
}

type ValidateTicketRequest struct {
	QRData string `json:"qr_data" binding:"required"`
}

// ValidateTicket lets an event organizer check a scanned QR payload at the
// door: the signature must match the ticket's current holder and the caller
// must own the event.
func (h *TicketHandler) ValidateTicket(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	var req ValidateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "QR data is required.")
		return
	}

	ticketID, eventID, signature, err := helpers.ParseTicketQRData(req.QRData)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid QR code format.")
		return
	}

	ticket, event, err := h.tickets.GetWithEvent(c.Request.Context(), ticketID)
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}
	if event.UserID != userID {
		helpers.RespondWithError(c, http.StatusForbidden, "You don't have permission to validate tickets for this event.")
		return
	}
	if event.ID != eventID {
		helpers.RespondWithError(c, http.StatusBadRequest, "QR code does not belong to this ticket's event.")
		return
	}
	if ticket.UserID == nil {
		helpers.RespondWithError(c, http.StatusConflict, "Ticket has not been sold yet.")
		return
	}
	if !helpers.VerifyTicketSignature(ticket.ID, event.ID, *ticket.UserID, os.Getenv("JWT_SECRET"), signature) {
		helpers.RespondWithError(c, http.StatusForbidden, "Invalid QR code signature.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":     true,
		"ticket_id": ticket.ID,
		"event_id":  event.ID,
		"status":    ticket.Status,
	})
}
