package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ticketi/ticketi/internal/models"
)

// newTestDB opens a named in-memory sqlite database capped at a single
// connection, so concurrent transactions serialize on the pool instead of
// hitting sqlite's writer lock.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Event{},
		&models.Ticket{},
		&models.Transaction{},
	))
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	user := models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "$2a$10$irrelevant.for.these.tests",
	}
	require.NoError(t, db.Create(&user).Error)
	return &user
}

func futureEventInput(capacity int, price float64) CreateEventInput {
	return CreateEventInput{
		Name:        "Sauti Fest",
		Location:    "Uhuru Gardens",
		Description: "Open air concert",
		Date:        time.Now().Add(48 * time.Hour),
		Price:       decimal.NewFromFloat(price),
		Capacity:    capacity,
	}
}

func createTestEvent(t *testing.T, db *gorm.DB, ownerID uuid.UUID, capacity int, price float64) *models.Event {
	t.Helper()
	event, err := NewEventService(db).Create(context.Background(), ownerID, futureEventInput(capacity, price))
	require.NoError(t, err)
	return event
}
