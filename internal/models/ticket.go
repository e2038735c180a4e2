package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	TicketStatusAvailable = "available"
	TicketStatusSold      = "sold"
	TicketStatusResale    = "resale"
)

// Ticket is one sellable seat. ResalePrice is set only while the ticket is
// listed for resale; PurchaseDate is set on first sale and kept through
// subsequent resales.
type Ticket struct {
	ID           uuid.UUID        `gorm:"type:uuid;primary_key" json:"id"`
	EventID      uuid.UUID        `gorm:"type:uuid;not null;index" json:"event_id"`
	UserID       *uuid.UUID       `gorm:"type:uuid;index" json:"user_id,omitempty"`
	Price        decimal.Decimal  `gorm:"type:numeric(10,2);not null" json:"price"`
	ResalePrice  *decimal.Decimal `gorm:"type:numeric(10,2)" json:"resale_price,omitempty"`
	Status       string           `gorm:"not null;default:'available';index" json:"status"`
	PurchaseDate *time.Time       `json:"purchase_date,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

func (ticket *Ticket) BeforeCreate(tx *gorm.DB) (err error) {
	if ticket.ID == uuid.Nil {
		ticket.ID = uuid.New()
	}
	return
}
