package helpers

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTicketSignatureRoundTrip(t *testing.T) {
	ticketID := uuid.New()
	eventID := uuid.New()
	holderID := uuid.New()

	sig := TicketSignature(ticketID, eventID, holderID, "secret")
	assert.True(t, VerifyTicketSignature(ticketID, eventID, holderID, "secret", sig))

	// any changed input breaks the signature
	assert.False(t, VerifyTicketSignature(uuid.New(), eventID, holderID, "secret", sig))
	assert.False(t, VerifyTicketSignature(ticketID, eventID, uuid.New(), "secret", sig))
	assert.False(t, VerifyTicketSignature(ticketID, eventID, holderID, "other-secret", sig))
}

func TestTicketQRDataEmbedsSignature(t *testing.T) {
	ticketID := uuid.New()
	eventID := uuid.New()
	holderID := uuid.New()

	data := TicketQRData(ticketID, eventID, holderID, "secret")
	assert.Contains(t, data, "ticket:"+ticketID.String())
	assert.Contains(t, data, "event:"+eventID.String())
	assert.Contains(t, data, "signature:"+TicketSignature(ticketID, eventID, holderID, "secret"))
}

func TestParseTicketQRData(t *testing.T) {
	ticketID := uuid.New()
	eventID := uuid.New()
	holderID := uuid.New()

	data := TicketQRData(ticketID, eventID, holderID, "secret")
	gotTicket, gotEvent, signature, err := ParseTicketQRData(data)
	require.NoError(t, err)
	assert.Equal(t, ticketID, gotTicket)
	assert.Equal(t, eventID, gotEvent)
	assert.True(t, VerifyTicketSignature(gotTicket, gotEvent, holderID, "secret", signature))

	for _, bad := range []string{
		"",
		"ticket:abc",
		"ticket:abc;event:def;signature:ghi",
		"event:" + eventID.String() + ";ticket:" + ticketID.String() + ";signature:x",
		data + ";extra:field",
	} {
		_, _, _, err := ParseTicketQRData(bad)
		assert.Error(t, err, "payload %q should not parse", bad)
	}
}
