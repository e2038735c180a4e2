package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	TransactionTypePrimary = "primary"
	TransactionTypeResale  = "resale"

	TransactionStatusCompleted = "completed"
)

// Transaction is an append-only ledger entry recording one ownership
// transfer. Rows are never updated or deleted and outlive the ticket they
// reference.
type Transaction struct {
	ID       uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	TicketID uuid.UUID       `gorm:"type:uuid;not null;index" json:"ticket_id"`
	SellerID uuid.UUID       `gorm:"type:uuid;not null;index" json:"seller_id"`
	BuyerID  uuid.UUID       `gorm:"type:uuid;not null;index" json:"buyer_id"`
	Price    decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"price"`
	Type     string          `gorm:"not null" json:"transaction_type"`
	Status   string          `gorm:"not null;default:'completed'" json:"status"`

	CreatedAt time.Time `json:"timestamp"`
}

func (txn *Transaction) BeforeCreate(tx *gorm.DB) (err error) {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	return
}
