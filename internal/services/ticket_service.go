package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ticketi/ticketi/internal/apperr"
	"github.com/ticketi/ticketi/internal/models"
	"github.com/ticketi/ticketi/internal/monitoring"
)

// TicketService owns the inventory state machine
// (available → sold ⇄ resale) and the transaction ledger. Every transition
// is a status-guarded update inside one database transaction together with
// its ledger append, so a ticket can never be sold twice and no partial
// state is ever committed.
type TicketService struct {
	db *gorm.DB
}

func NewTicketService(db *gorm.DB) *TicketService {
	return &TicketService{db: db}
}

// PurchaseResult is what a completed purchase hands back to the API layer.
type PurchaseResult struct {
	Ticket      models.Ticket      `json:"ticket"`
	Transaction models.Transaction `json:"transaction"`
}

// OwnedTicket is a ticket joined with the event fields a ticket holder
// cares about.
type OwnedTicket struct {
	TicketID      uuid.UUID        `gorm:"column:ticket_id" json:"ticket_id"`
	EventID       uuid.UUID        `gorm:"column:event_id" json:"event_id"`
	EventName     string           `gorm:"column:event_name" json:"event_name"`
	EventDate     time.Time        `gorm:"column:event_date" json:"event_date"`
	EventLocation string           `gorm:"column:event_location" json:"event_location"`
	Status        string           `gorm:"column:status" json:"status"`
	Price         decimal.Decimal  `gorm:"column:price" json:"price"`
	ResalePrice   *decimal.Decimal `gorm:"column:resale_price" json:"resale_price,omitempty"`
	PurchaseDate  *time.Time       `gorm:"column:purchase_date" json:"purchase_date,omitempty"`
}

// ResaleListing is one ticket currently listed for resale.
type ResaleListing struct {
	TicketID      uuid.UUID       `gorm:"column:ticket_id" json:"ticket_id"`
	OriginalPrice decimal.Decimal `gorm:"column:original_price" json:"original_price"`
	ResalePrice   decimal.Decimal `gorm:"column:resale_price" json:"resale_price"`
	Seller        string          `gorm:"column:seller" json:"seller"`
}

// The resale transition guards revalidate everything read earlier in the
// transaction, owner and listed price included, so a commit that slips in
// between the read and the write can never relist, delist, or transfer a
// ticket that has meanwhile changed hands.

func markListedForResale(tx *gorm.DB, ticketID, ownerID uuid.UUID, price decimal.Decimal) (int64, error) {
	res := tx.Model(&models.Ticket{}).
		Where("id = ? AND status = ? AND user_id = ?", ticketID, models.TicketStatusSold, ownerID).
		Updates(map[string]interface{}{
			"status":       models.TicketStatusResale,
			"resale_price": price,
		})
	return res.RowsAffected, res.Error
}

func markListingCancelled(tx *gorm.DB, ticketID, ownerID uuid.UUID) (int64, error) {
	res := tx.Model(&models.Ticket{}).
		Where("id = ? AND status = ? AND user_id = ?", ticketID, models.TicketStatusResale, ownerID).
		Updates(map[string]interface{}{
			"status":       models.TicketStatusSold,
			"resale_price": nil,
		})
	return res.RowsAffected, res.Error
}

func transferResaleTicket(tx *gorm.DB, ticketID, sellerID uuid.UUID, price decimal.Decimal, buyerID uuid.UUID, now time.Time) (int64, error) {
	res := tx.Model(&models.Ticket{}).
		Where("id = ? AND status = ? AND user_id = ? AND resale_price = ?",
			ticketID, models.TicketStatusResale, sellerID, price).
		Updates(map[string]interface{}{
			"status":        models.TicketStatusSold,
			"user_id":       buyerID,
			"purchase_date": now,
			"resale_price":  nil,
		})
	return res.RowsAffected, res.Error
}

// appendLedger is the ledger's only write path. No update or delete exists.
func appendLedger(tx *gorm.DB, ticketID, sellerID, buyerID uuid.UUID, price decimal.Decimal, txnType string) (*models.Transaction, error) {
	txn := models.Transaction{
		TicketID: ticketID,
		SellerID: sellerID,
		BuyerID:  buyerID,
		Price:    price,
		Type:     txnType,
		Status:   models.TransactionStatusCompleted,
	}
	if err := tx.Create(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

// AvailableCount returns the event and how many of its tickets are still
// available for primary sale.
func (s *TicketService) AvailableCount(ctx context.Context, eventID uuid.UUID) (*models.Event, int64, error) {
	db := s.db.WithContext(ctx)

	var event models.Event
	if err := db.Where("id = ?", eventID).First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, apperr.NotFound("event not found")
		}
		return nil, 0, err
	}

	var count int64
	if err := db.Model(&models.Ticket{}).
		Where("event_id = ? AND status = ?", eventID, models.TicketStatusAvailable).
		Count(&count).Error; err != nil {
		return nil, 0, err
	}
	return &event, count, nil
}

// PurchasePrimary sells one available ticket of the event to the buyer.
// Selection is the oldest available ticket, ties broken by id, so the pick
// is deterministic. The status-guarded update is the race arbiter: a
// contender that loses the guard gets ErrUnavailable immediately rather
// than queuing.
func (s *TicketService) PurchasePrimary(ctx context.Context, eventID, buyerID uuid.UUID) (*PurchaseResult, error) {
	var result PurchaseResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var event models.Event
		if err := tx.Where("id = ?", eventID).First(&event).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("event not found")
			}
			return err
		}
		if !event.Date.After(time.Now()) {
			return apperr.Validation("event has already taken place")
		}

		var ticket models.Ticket
		err := tx.Where("event_id = ? AND status = ?", eventID, models.TicketStatusAvailable).
			Order("created_at, id").
			First(&ticket).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.Unavailable("no tickets available")
			}
			return err
		}

		now := time.Now().UTC()
		claim := tx.Model(&models.Ticket{}).
			Where("id = ? AND status = ?", ticket.ID, models.TicketStatusAvailable).
			Updates(map[string]interface{}{
				"status":        models.TicketStatusSold,
				"user_id":       buyerID,
				"purchase_date": now,
			})
		if claim.Error != nil {
			return claim.Error
		}
		if claim.RowsAffected == 0 {
			return apperr.Unavailable("ticket no longer available")
		}

		counter := tx.Model(&models.Event{}).
			Where("id = ? AND tickets_sold < capacity", eventID).
			UpdateColumn("tickets_sold", gorm.Expr("tickets_sold + 1"))
		if counter.Error != nil {
			return counter.Error
		}
		if counter.RowsAffected == 0 {
			return apperr.Unavailable("no tickets available")
		}

		txn, err := appendLedger(tx, ticket.ID, event.UserID, buyerID, ticket.Price, models.TransactionTypePrimary)
		if err != nil {
			return err
		}

		ticket.Status = models.TicketStatusSold
		ticket.UserID = &buyerID
		ticket.PurchaseDate = &now
		result.Ticket = ticket
		result.Transaction = *txn
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindUnknown {
			logger.Error().Err(err).Str("event_id", eventID.String()).Msg("primary purchase failed")
		}
		return nil, err
	}

	monitoring.TicketSold(models.TransactionTypePrimary)
	return &result, nil
}

// ListForResale puts a sold ticket the caller owns up for resale at the
// given price.
func (s *TicketService) ListForResale(ctx context.Context, ticketID, ownerID uuid.UUID, price decimal.Decimal) (*models.Ticket, error) {
	if price.IsNegative() {
		return nil, apperr.Validation("invalid resale price")
	}

	var ticket models.Ticket
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := loadTicketForOwner(tx, ticketID, ownerID, &ticket); err != nil {
			return err
		}
		if ticket.Status != models.TicketStatusSold {
			return apperr.Unavailable("ticket cannot be resold in its current state")
		}
		if err := requireUpcomingEvent(tx, ticket.EventID); err != nil {
			return err
		}

		affected, err := markListedForResale(tx, ticketID, ownerID, price)
		if err != nil {
			return err
		}
		if affected == 0 {
			return apperr.Unavailable("ticket cannot be resold in its current state")
		}

		ticket.Status = models.TicketStatusResale
		ticket.ResalePrice = &price
		return nil
	})
	if err != nil {
		return nil, err
	}

	monitoring.ResaleListed()
	return &ticket, nil
}

// CancelResale takes the caller's resale listing down, returning the ticket
// to the plain sold state.
func (s *TicketService) CancelResale(ctx context.Context, ticketID, ownerID uuid.UUID) (*models.Ticket, error) {
	var ticket models.Ticket
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := loadTicketForOwner(tx, ticketID, ownerID, &ticket); err != nil {
			return err
		}
		if ticket.Status != models.TicketStatusResale {
			return apperr.Unavailable("ticket is not listed for resale")
		}

		affected, err := markListingCancelled(tx, ticketID, ownerID)
		if err != nil {
			return err
		}
		if affected == 0 {
			return apperr.Unavailable("ticket is not listed for resale")
		}

		ticket.Status = models.TicketStatusSold
		ticket.ResalePrice = nil
		return nil
	})
	if err != nil {
		return nil, err
	}

	monitoring.ResaleCancelled()
	return &ticket, nil
}

// PurchaseResale transfers a listed ticket from its current owner to the
// buyer at the listed price, recording a resale ledger entry in the same
// transaction.
func (s *TicketService) PurchaseResale(ctx context.Context, ticketID, buyerID uuid.UUID) (*PurchaseResult, error) {
	var result PurchaseResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ticket models.Ticket
		if err := tx.Where("id = ?", ticketID).First(&ticket).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("ticket not found")
			}
			return err
		}
		if ticket.Status != models.TicketStatusResale || ticket.UserID == nil || ticket.ResalePrice == nil {
			return apperr.Unavailable("ticket is not available for resale")
		}
		if *ticket.UserID == buyerID {
			return apperr.Validation("cannot purchase your own ticket")
		}
		if err := requireUpcomingEvent(tx, ticket.EventID); err != nil {
			return err
		}

		sellerID := *ticket.UserID
		price := *ticket.ResalePrice

		now := time.Now().UTC()
		affected, err := transferResaleTicket(tx, ticketID, sellerID, price, buyerID, now)
		if err != nil {
			return err
		}
		if affected == 0 {
			return apperr.Unavailable("ticket no longer available")
		}

		txn, err := appendLedger(tx, ticketID, sellerID, buyerID, price, models.TransactionTypeResale)
		if err != nil {
			return err
		}

		ticket.Status = models.TicketStatusSold
		ticket.UserID = &buyerID
		ticket.PurchaseDate = &now
		ticket.ResalePrice = nil
		result.Ticket = ticket
		result.Transaction = *txn
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindUnknown {
			logger.Error().Err(err).Str("ticket_id", ticketID.String()).Msg("resale purchase failed")
		}
		return nil, err
	}

	monitoring.TicketSold(models.TransactionTypeResale)
	return &result, nil
}

// ListByOwner returns the caller's tickets joined with their event details.
func (s *TicketService) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]OwnedTicket, error) {
	var tickets []OwnedTicket
	err := s.db.WithContext(ctx).
		Table("tickets").
		Select("tickets.id AS ticket_id, tickets.event_id, events.name AS event_name, events.date AS event_date, events.location AS event_location, tickets.status, tickets.price, tickets.resale_price, tickets.purchase_date").
		Joins("JOIN events ON events.id = tickets.event_id").
		Where("tickets.user_id = ?", ownerID).
		Order("tickets.purchase_date").
		Scan(&tickets).Error
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

// ListResale returns the event's tickets currently listed for resale,
// including the seller's username.
func (s *TicketService) ListResale(ctx context.Context, eventID uuid.UUID) ([]ResaleListing, error) {
	var listings []ResaleListing
	err := s.db.WithContext(ctx).
		Table("tickets").
		Select("tickets.id AS ticket_id, tickets.price AS original_price, tickets.resale_price, users.username AS seller").
		Joins("JOIN users ON users.id = tickets.user_id").
		Where("tickets.event_id = ? AND tickets.status = ?", eventID, models.TicketStatusResale).
		Order("tickets.created_at, tickets.id").
		Scan(&listings).Error
	if err != nil {
		return nil, err
	}
	return listings, nil
}

// Get returns a ticket by id.
func (s *TicketService) Get(ctx context.Context, ticketID uuid.UUID) (*models.Ticket, error) {
	var ticket models.Ticket
	if err := s.db.WithContext(ctx).Where("id = ?", ticketID).First(&ticket).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("ticket not found")
		}
		return nil, err
	}
	return &ticket, nil
}

// GetWithEvent returns a ticket together with its event.
func (s *TicketService) GetWithEvent(ctx context.Context, ticketID uuid.UUID) (*models.Ticket, *models.Event, error) {
	db := s.db.WithContext(ctx)

	var ticket models.Ticket
	if err := db.Where("id = ?", ticketID).First(&ticket).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperr.NotFound("ticket not found")
		}
		return nil, nil, err
	}

	var event models.Event
	if err := db.Where("id = ?", ticket.EventID).First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperr.NotFound("event not found")
		}
		return nil, nil, err
	}
	return &ticket, &event, nil
}

func loadTicketForOwner(tx *gorm.DB, ticketID, ownerID uuid.UUID, ticket *models.Ticket) error {
	if err := tx.Where("id = ?", ticketID).First(ticket).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("ticket not found")
		}
		return err
	}
	if ticket.UserID == nil || *ticket.UserID != ownerID {
		return apperr.Authorization("you do not own this ticket")
	}
	return nil
}

func requireUpcomingEvent(tx *gorm.DB, eventID uuid.UUID) error {
	var event models.Event
	if err := tx.Where("id = ?", eventID).First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("event not found")
		}
		return err
	}
	if !event.Date.After(time.Now()) {
		return apperr.Validation("event has already taken place")
	}
	return nil
}
