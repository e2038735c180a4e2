package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	EventStatusUpcoming  = "upcoming"
	EventStatusOngoing   = "ongoing"
	EventStatusCompleted = "completed"
)

// ValidEventStatus reports whether s is one of the three event states.
func ValidEventStatus(s string) bool {
	return s == EventStatusUpcoming || s == EventStatusOngoing || s == EventStatusCompleted
}

type Event struct {
	ID          uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	Name        string          `gorm:"not null" json:"name"`
	Location    string          `gorm:"not null" json:"location"`
	LocationLat *float64        `json:"location_lat,omitempty"`
	LocationLng *float64        `json:"location_lng,omitempty"`
	Description string          `gorm:"not null" json:"description"`
	Date        time.Time       `gorm:"not null" json:"date"`
	Price       decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"price"`
	Image       string          `json:"image,omitempty"`
	Capacity    int             `gorm:"not null" json:"capacity"`
	TicketsSold int             `gorm:"not null;default:0" json:"tickets_sold"`
	Status      string          `gorm:"not null;default:'upcoming'" json:"status"`
	UserID      uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (event *Event) BeforeCreate(tx *gorm.DB) (err error) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	return
}
