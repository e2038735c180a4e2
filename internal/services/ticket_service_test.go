package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ticketi/ticketi/internal/apperr"
	"github.com/ticketi/ticketi/internal/models"
)

// assertInventoryInvariants checks the always-true properties of an event's
// inventory: the sold counter stays within capacity and matches the sold and
// resale ticket rows, resale_price is set exactly while listed, and
// purchase_date is set exactly once a ticket has an owner.
func assertInventoryInvariants(t *testing.T, db *gorm.DB, eventID uuid.UUID) {
	t.Helper()

	var event models.Event
	require.NoError(t, db.Where("id = ?", eventID).First(&event).Error)
	assert.GreaterOrEqual(t, event.TicketsSold, 0)
	assert.LessOrEqual(t, event.TicketsSold, event.Capacity)

	var sold int64
	require.NoError(t, db.Model(&models.Ticket{}).
		Where("event_id = ? AND status IN ?", eventID, []string{models.TicketStatusSold, models.TicketStatusResale}).
		Count(&sold).Error)
	assert.EqualValues(t, event.TicketsSold, sold)

	var tickets []models.Ticket
	require.NoError(t, db.Where("event_id = ?", eventID).Find(&tickets).Error)
	assert.Len(t, tickets, event.Capacity)
	for _, ticket := range tickets {
		if ticket.Status == models.TicketStatusResale {
			assert.NotNil(t, ticket.ResalePrice)
		} else {
			assert.Nil(t, ticket.ResalePrice)
		}
		if ticket.Status == models.TicketStatusAvailable {
			assert.Nil(t, ticket.PurchaseDate)
			assert.Nil(t, ticket.UserID)
		} else {
			assert.NotNil(t, ticket.PurchaseDate)
			assert.NotNil(t, ticket.UserID)
		}
	}
}

func TestPurchasePrimary(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "organizer")
	buyer := createTestUser(t, db, "buyer")
	svc := NewTicketService(db)
	ctx := context.Background()

	event := createTestEvent(t, db, owner.ID, 3, 20)

	result, err := svc.PurchasePrimary(ctx, event.ID, buyer.ID)
	require.NoError(t, err)

	assert.Equal(t, models.TicketStatusSold, result.Ticket.Status)
	require.NotNil(t, result.Ticket.UserID)
	assert.Equal(t, buyer.ID, *result.Ticket.UserID)
	assert.NotNil(t, result.Ticket.PurchaseDate)

	assert.Equal(t, models.TransactionTypePrimary, result.Transaction.Type)
	assert.Equal(t, models.TransactionStatusCompleted, result.Transaction.Status)
	assert.Equal(t, owner.ID, result.Transaction.SellerID)
	assert.Equal(t, buyer.ID, result.Transaction.BuyerID)
	assert.True(t, result.Transaction.Price.Equal(decimal.NewFromInt(20)))

	var event2 models.Event
	require.NoError(t, db.Where("id = ?", event.ID).First(&event2).Error)
	assert.Equal(t, 1, event2.TicketsSold)

	assertInventoryInvariants(t, db, event.ID)
}

func TestPurchasePrimaryDistinctTickets(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "organizer")
	first := createTestUser(t, db, "first")
	second := createTestUser(t, db, "second")
	svc := NewTicketService(db)
	ctx := context.Background()

	event := createTestEvent(t, db, owner.ID, 2, 10)

	a, err := svc.PurchasePrimary(ctx, event.ID, first.ID)
	require.NoError(t, err)
	b, err := svc.PurchasePrimary(ctx, event.ID, second.ID)
	require.NoError(t, err)

	assert.NotEqual(t, a.Ticket.ID, b.Ticket.ID)
	assertInventoryInvariants(t, db, event.ID)
}

func TestPurchasePastEventLeavesStateUnchanged(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "organizer")
	buyer := createTestUser(t, db, "buyer")
	svc := NewTicketService(db)
	ctx := context.Background()

	event := createTestEvent(t, db, owner.ID, 2, 10)
	require.NoError(t, db.Model(&models.Event{}).Where("id = ?", event.ID).
		UpdateColumn("date", time.Now().Add(-time.Hour)).Error)

	_, err := svc.PurchasePrimary(ctx, event.ID, buyer.ID)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	var available int64
	require.NoError(t, db.Model(&models.Ticket{}).
		Where("event_id = ? AND status = ?", event.ID, models.TicketStatusAvailable).
		Count(&available).Error)
	assert.EqualValues(t, 2, available)

	var event2 models.Event
	require.NoError(t, db.Where("id = ?", event.ID).First(&event2).Error)
	assert.Equal(t, 0, event2.TicketsSold)

	var txns int64
	require.NoError(t, db.Model(&models.Transaction{}).Count(&txns).Error)
	assert.EqualValues(t, 0, txns)
}

func TestPurchaseUnknownEvent(t *testing.T) {
	db := newTestDB(t)
	buyer := createTestUser(t, db, "buyer")
	svc := NewTicketService(db)

	_, err := svc.PurchasePrimary(context.Background(), uuid.New(), buyer.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestPurchaseExhaustedEvent(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "organizer")
	first := createTestUser(t, db, "first")
	second := createTestUser(t, db, "second")
	svc := NewTicketService(db)
	ctx := context.Background()

	event := createTestEvent(t, db, owner.ID, 1, 10)

	_, err := svc.PurchasePrimary(ctx, event.ID, first.ID)
	require.NoError(t, err)

	_, err = svc.PurchasePrimary(ctx, event.ID, second.ID)
	assert.True(t, apperr.Is(err, apperr.KindUnavailable))
	assertInventoryInvariants(t, db, event.ID)
}

// TestResaleLifecycle walks a ticket through primary sale, resale listing,
// resale purchase and event exhaustion.
func TestResaleLifecycle(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "organizer")
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	carol := createTestUser(t, db, "carol")
	svc := NewTicketService(db)
	ctx := context.Background()

	event := createTestEvent(t, db, owner.ID, 2, 10)

	aliceBuy, err := svc.PurchasePrimary(ctx, event.ID, alice.ID)
	require.NoError(t, err)
	_, err = svc.PurchasePrimary(ctx, event.ID, bob.ID)
	require.NoError(t, err)

	// alice lists her ticket at a markup
	listed, err := svc.ListForResale(ctx, aliceBuy.Ticket.ID, alice.ID, decimal.NewFromFloat(15.00))
	require.NoError(t, err)
	assert.Equal(t, models.TicketStatusResale, listed.Status)
	require.NotNil(t, listed.ResalePrice)
	assert.True(t, listed.ResalePrice.Equal(decimal.NewFromFloat(15.00)))
	assertInventoryInvariants(t, db, event.ID)

	// it shows up on the resale board with her name on it
	listings, err := svc.ListResale(ctx, event.ID)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, "alice", listings[0].Seller)
	assert.True(t, listings[0].OriginalPrice.Equal(decimal.NewFromInt(10)))
	assert.True(t, listings[0].ResalePrice.Equal(decimal.NewFromFloat(15.00)))

	// carol buys the listing
	resale, err := svc.PurchaseResale(ctx, aliceBuy.Ticket.ID, carol.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketStatusSold, resale.Ticket.Status)
	require.NotNil(t, resale.Ticket.UserID)
	assert.Equal(t, carol.ID, *resale.Ticket.UserID)
	assert.Nil(t, resale.Ticket.ResalePrice)

	assert.Equal(t, models.TransactionTypeResale, resale.Transaction.Type)
	assert.Equal(t, alice.ID, resale.Transaction.SellerID)
	assert.Equal(t, carol.ID, resale.Transaction.BuyerID)
	assert.True(t, resale.Transaction.Price.Equal(decimal.NewFromFloat(15.00)))

	// two transfers, two ledger entries
	var txns []models.Transaction
	require.NoError(t, db.Where("ticket_id = ?", aliceBuy.Ticket.ID).Order("created_at").Find(&txns).Error)
	assert.Len(t, txns, 2)

	// counter is unchanged by resale: still 2 of 2 sold
	var event2 models.Event
	require.NoError(t, db.Where("id = ?", event.ID).First(&event2).Error)
	assert.Equal(t, 2, event2.TicketsSold)
	assertInventoryInvariants(t, db, event.ID)

	// the event is exhausted for primary sales
	_, err = svc.PurchasePrimary(ctx, event.ID, carol.ID)
	assert.True(t, apperr.Is(err, apperr.KindUnavailable))
}

func TestListForResaleRules(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "organizer")
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	svc := NewTicketService(db)
	ctx := context.Background()

	event := createTestEvent(t, db, owner.ID, 2, 10)
	bought, err := svc.PurchasePrimary(ctx, event.ID, alice.ID)
	require.NoError(t, err)

	// negative price
	_, err = svc.ListForResale(ctx, bought.Ticket.ID, alice.ID, decimal.NewFromInt(-1))
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	// not the owner
	_, err = svc.ListForResale(ctx, bought.Ticket.ID, bob.ID, decimal.NewFromInt(15))
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	// an available ticket has no owner, so nobody can list it
	var available models.Ticket
	require.NoError(t, db.Where("event_id = ? AND status = ?", event.ID, models.TicketStatusAvailable).First(&available).Error)
	_, err = svc.ListForResale(ctx, available.ID, alice.ID, decimal.NewFromInt(15))
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	// double listing
	_, err = svc.ListForResale(ctx, bought.Ticket.ID, alice.ID, decimal.NewFromInt(15))
	require.NoError(t, err)
	_, err = svc.ListForResale(ctx, bought.Ticket.ID, alice.ID, decimal.NewFromInt(18))
	assert.True(t, apperr.Is(err, apperr.KindUnavailable))

	// past event blocks new listings
	cancelled, err := svc.CancelResale(ctx, bought.Ticket.ID, alice.ID)
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.Event{}).Where("id = ?", event.ID).
		UpdateColumn("date", time.Now().Add(-time.Hour)).Error)
	_, err = svc.ListForResale(ctx, cancelled.ID, alice.ID, decimal.NewFromInt(15))
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestCancelResale(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "organizer")
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	svc := NewTicketService(db)
	ctx := context.Background()

	event := createTestEvent(t, db, owner.ID, 1, 10)
	bought, err := svc.PurchasePrimary(ctx, event.ID, alice.ID)
	require.NoError(t, err)

	// cancelling a ticket that is not listed
	_, err = svc.CancelResale(ctx, bought.Ticket.ID, alice.ID)
	assert.True(t, apperr.Is(err, apperr.KindUnavailable))

	_, err = svc.ListForResale(ctx, bought.Ticket.ID, alice.ID, decimal.NewFromInt(15))
	require.NoError(t, err)

	// only the owner may cancel
	_, err = svc.CancelResale(ctx, bought.Ticket.ID, bob.ID)
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	ticket, err := svc.CancelResale(ctx, bought.Ticket.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketStatusSold, ticket.Status)
	assert.Nil(t, ticket.ResalePrice)
	assertInventoryInvariants(t, db, event.ID)
}

func TestPurchaseResaleRules(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "organizer")
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	svc := NewTicketService(db)
	ctx := context.Background()

	event := createTestEvent(t, db, owner.ID, 1, 10)
	bought, err := svc.PurchasePrimary(ctx, event.ID, alice.ID)
	require.NoError(t, err)

	// not listed yet
	_, err = svc.PurchaseResale(ctx, bought.Ticket.ID, bob.ID)
	assert.True(t, apperr.Is(err, apperr.KindUnavailable))

	_, err = svc.ListForResale(ctx, bought.Ticket.ID, alice.ID, decimal.NewFromInt(15))
	require.NoError(t, err)

	// sellers cannot buy their own listing
	_, err = svc.PurchaseResale(ctx, bought.Ticket.ID, alice.ID)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	// unknown ticket
	_, err = svc.PurchaseResale(ctx, uuid.New(), bob.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	// past event blocks the transfer
	require.NoError(t, db.Model(&models.Event{}).Where("id = ?", event.ID).
		UpdateColumn("date", time.Now().Add(-time.Hour)).Error)
	_, err = svc.PurchaseResale(ctx, bought.Ticket.ID, bob.ID)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assertInventoryInvariants(t, db, event.ID)
}

// TestResaleGuardsRevalidateOwnerAndPrice drives the guarded transitions
// with preconditions read before the ticket changed hands. A guard keyed to
// a stale owner or a stale listed price must match zero rows, otherwise a
// transaction committed between a service's read and its write could relist,
// delist or transfer a ticket that now belongs to someone else.
func TestResaleGuardsRevalidateOwnerAndPrice(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "organizer")
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	carol := createTestUser(t, db, "carol")
	svc := NewTicketService(db)
	ctx := context.Background()

	event := createTestEvent(t, db, owner.ID, 1, 10)

	bought, err := svc.PurchasePrimary(ctx, event.ID, alice.ID)
	require.NoError(t, err)
	ticketID := bought.Ticket.ID

	_, err = svc.ListForResale(ctx, ticketID, alice.ID, decimal.NewFromInt(15))
	require.NoError(t, err)
	_, err = svc.PurchaseResale(ctx, ticketID, bob.ID)
	require.NoError(t, err)

	// alice's view of the ticket is stale: it is sold to bob now
	affected, err := markListedForResale(db, ticketID, alice.ID, decimal.NewFromInt(15))
	require.NoError(t, err)
	assert.EqualValues(t, 0, affected)

	_, err = svc.ListForResale(ctx, ticketID, bob.ID, decimal.NewFromInt(20))
	require.NoError(t, err)

	affected, err = markListingCancelled(db, ticketID, alice.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, affected)

	// a transfer keyed to the old seller or the old price must not fire
	now := time.Now().UTC()
	affected, err = transferResaleTicket(db, ticketID, alice.ID, decimal.NewFromInt(15), carol.ID, now)
	require.NoError(t, err)
	assert.EqualValues(t, 0, affected)
	affected, err = transferResaleTicket(db, ticketID, bob.ID, decimal.NewFromInt(15), carol.ID, now)
	require.NoError(t, err)
	assert.EqualValues(t, 0, affected)

	// the current owner at the current price goes through
	affected, err = transferResaleTicket(db, ticketID, bob.ID, decimal.NewFromInt(20), carol.ID, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)
	assertInventoryInvariants(t, db, event.ID)
}

// TestConcurrentPrimaryPurchases races more buyers than there are tickets:
// exactly capacity purchases succeed, every loser gets the unavailable
// outcome, and no ticket ends up with two owners.
func TestConcurrentPrimaryPurchases(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "organizer")
	svc := NewTicketService(db)
	ctx := context.Background()

	const buyers = 8
	const capacity = 3

	event := createTestEvent(t, db, owner.ID, capacity, 10)

	buyerIDs := make([]uuid.UUID, buyers)
	for i := range buyerIDs {
		buyerIDs[i] = uuid.New()
	}

	results := make([]error, buyers)
	var wg sync.WaitGroup
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.PurchasePrimary(ctx, event.ID, buyerIDs[i])
			results[i] = err
		}(i)
	}
	wg.Wait()

	var succeeded, unavailable int
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case apperr.Is(err, apperr.KindUnavailable):
			unavailable++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, capacity, succeeded)
	assert.Equal(t, buyers-capacity, unavailable)

	// every sold ticket has exactly one owner and one ledger entry
	var tickets []models.Ticket
	require.NoError(t, db.Where("event_id = ? AND status = ?", event.ID, models.TicketStatusSold).Find(&tickets).Error)
	require.Len(t, tickets, capacity)
	seen := make(map[uuid.UUID]bool)
	for _, ticket := range tickets {
		require.NotNil(t, ticket.UserID)
		assert.False(t, seen[*ticket.UserID], "buyer assigned two tickets from one purchase each")
		seen[*ticket.UserID] = true

		var entries int64
		require.NoError(t, db.Model(&models.Transaction{}).Where("ticket_id = ?", ticket.ID).Count(&entries).Error)
		assert.EqualValues(t, 1, entries)
	}
	assertInventoryInvariants(t, db, event.ID)
}

func TestAvailableCount(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "organizer")
	buyer := createTestUser(t, db, "buyer")
	svc := NewTicketService(db)
	ctx := context.Background()

	event := createTestEvent(t, db, owner.ID, 3, 10)

	got, count, err := svc.AvailableCount(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, event.ID, got.ID)
	assert.EqualValues(t, 3, count)

	_, err = svc.PurchasePrimary(ctx, event.ID, buyer.ID)
	require.NoError(t, err)

	_, count, err = svc.AvailableCount(ctx, event.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	_, _, err = svc.AvailableCount(ctx, uuid.New())
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestListByOwnerJoinsEvent(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "organizer")
	buyer := createTestUser(t, db, "buyer")
	svc := NewTicketService(db)
	ctx := context.Background()

	event := createTestEvent(t, db, owner.ID, 2, 10)
	bought, err := svc.PurchasePrimary(ctx, event.ID, buyer.ID)
	require.NoError(t, err)

	owned, err := svc.ListByOwner(ctx, buyer.ID)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, bought.Ticket.ID, owned[0].TicketID)
	assert.Equal(t, event.ID, owned[0].EventID)
	assert.Equal(t, event.Name, owned[0].EventName)
	assert.Equal(t, models.TicketStatusSold, owned[0].Status)
	assert.NotNil(t, owned[0].PurchaseDate)
}
