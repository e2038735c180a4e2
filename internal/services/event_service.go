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

type EventService struct {
	db *gorm.DB
}

func NewEventService(db *gorm.DB) *EventService {
	return &EventService{db: db}
}

type CreateEventInput struct {
	Name        string
	Location    string
	LocationLat *float64
	LocationLng *float64
	Description string
	Date        time.Time
	Price       decimal.Decimal
	Capacity    int
	Image       string
}

// EventPatch carries updatable event fields; nil means "leave as is".
type EventPatch struct {
	Name        *string
	Location    *string
	LocationLat *float64
	LocationLng *float64
	Description *string
	Date        *time.Time
	Price       *decimal.Decimal
	Image       *string
	Status      *string
}

// Create persists the event and materializes exactly Capacity available
// tickets in the same transaction. Tickets are never created or destroyed
// afterwards; only their state changes.
func (s *EventService) Create(ctx context.Context, ownerID uuid.UUID, input CreateEventInput) (*models.Event, error) {
	if !input.Date.After(time.Now()) {
		return nil, apperr.Validation("event date must be in the future")
	}
	if input.Price.IsNegative() {
		return nil, apperr.Validation("price cannot be negative")
	}
	if input.Capacity <= 0 {
		return nil, apperr.Validation("capacity must be greater than 0")
	}

	event := models.Event{
		Name:        input.Name,
		Location:    input.Location,
		LocationLat: input.LocationLat,
		LocationLng: input.LocationLng,
		Description: input.Description,
		Date:        input.Date,
		Price:       input.Price,
		Image:       input.Image,
		Capacity:    input.Capacity,
		Status:      models.EventStatusUpcoming,
		UserID:      ownerID,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&event).Error; err != nil {
			return err
		}

		tickets := make([]models.Ticket, event.Capacity)
		for i := range tickets {
			tickets[i] = models.Ticket{
				EventID: event.ID,
				Price:   event.Price,
				Status:  models.TicketStatusAvailable,
			}
		}
		return tx.Create(&tickets).Error
	})
	if err != nil {
		logger.Error().Err(err).Str("name", input.Name).Msg("failed to create event")
		return nil, err
	}

	monitoring.EventCreated()
	return &event, nil
}

func (s *EventService) Get(ctx context.Context, eventID uuid.UUID) (*models.Event, error) {
	var event models.Event
	if err := s.db.WithContext(ctx).Where("id = ?", eventID).First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("event not found")
		}
		return nil, err
	}
	return &event, nil
}

// List returns events matching the search term (case-insensitive substring
// over name, description and location) and the status filter. Status
// defaults to upcoming at the API layer; an empty status means no filter.
func (s *EventService) List(ctx context.Context, search, status string) ([]models.Event, error) {
	query := s.db.WithContext(ctx).Model(&models.Event{})

	if search != "" {
		pattern := "%" + search + "%"
		query = query.Where(
			"LOWER(name) LIKE LOWER(?) OR LOWER(description) LIKE LOWER(?) OR LOWER(location) LIKE LOWER(?)",
			pattern, pattern, pattern,
		)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var events []models.Event
	if err := query.Order("created_at").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (s *EventService) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Event, error) {
	var events []models.Event
	if err := s.db.WithContext(ctx).Where("user_id = ?", ownerID).Order("created_at").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (s *EventService) Update(ctx context.Context, eventID, ownerID uuid.UUID, patch EventPatch) (*models.Event, error) {
	db := s.db.WithContext(ctx)

	var event models.Event
	if err := db.Where("id = ?", eventID).First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("event not found")
		}
		return nil, err
	}
	if event.UserID != ownerID {
		return nil, apperr.Authorization("you do not own this event")
	}

	// Only the patched columns are written. The sold counter belongs to the
	// purchase path; writing the whole row back would overwrite increments
	// committed between this read and the update.
	updates := map[string]interface{}{}
	if patch.Name != nil {
		updates["name"] = *patch.Name
	}
	if patch.Location != nil {
		updates["location"] = *patch.Location
	}
	if patch.LocationLat != nil {
		updates["location_lat"] = *patch.LocationLat
	}
	if patch.LocationLng != nil {
		updates["location_lng"] = *patch.LocationLng
	}
	if patch.Description != nil {
		updates["description"] = *patch.Description
	}
	if patch.Date != nil {
		if !patch.Date.After(time.Now()) {
			return nil, apperr.Validation("event date must be in the future")
		}
		updates["date"] = *patch.Date
	}
	if patch.Price != nil {
		if patch.Price.IsNegative() {
			return nil, apperr.Validation("price cannot be negative")
		}
		updates["price"] = *patch.Price
	}
	if patch.Image != nil {
		updates["image"] = *patch.Image
	}
	if patch.Status != nil {
		if !models.ValidEventStatus(*patch.Status) {
			return nil, apperr.Validation("invalid status")
		}
		updates["status"] = *patch.Status
	}

	if len(updates) == 0 {
		return &event, nil
	}

	res := db.Model(&models.Event{}).
		Where("id = ? AND user_id = ?", eventID, ownerID).
		Updates(updates)
	if res.Error != nil {
		logger.Error().Err(res.Error).Str("event_id", eventID.String()).Msg("failed to update event")
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, apperr.NotFound("event not found")
	}

	if err := db.Where("id = ?", eventID).First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// Delete removes the event and all of its tickets in one transaction.
// Ledger rows referencing the deleted tickets are kept as historical record.
// A purchase racing the deletion loses: its event lookup or its guarded
// status update finds nothing once this transaction commits.
func (s *EventService) Delete(ctx context.Context, eventID, ownerID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var event models.Event
		if err := tx.Where("id = ?", eventID).First(&event).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("event not found")
			}
			return err
		}
		if event.UserID != ownerID {
			return apperr.Authorization("you do not own this event")
		}

		if err := tx.Where("event_id = ?", eventID).Delete(&models.Ticket{}).Error; err != nil {
			return err
		}
		return tx.Delete(&event).Error
	})
}
