package helpers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// TicketQRData builds the payload encoded into a ticket's QR code. The HMAC
// binds ticket, event and holder together so a scanned code can be verified
// offline against the shared secret.
func TicketQRData(ticketID, eventID, holderID uuid.UUID, secret string) string {
	signature := TicketSignature(ticketID, eventID, holderID, secret)
	return fmt.Sprintf("ticket:%s;event:%s;signature:%s", ticketID, eventID, signature)
}

func TicketSignature(ticketID, eventID, holderID uuid.UUID, secret string) string {
	data := fmt.Sprintf("%s:%s:%s", ticketID, eventID, holderID)
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyTicketSignature checks a signature produced by TicketSignature.
func VerifyTicketSignature(ticketID, eventID, holderID uuid.UUID, secret, signature string) bool {
	expected := TicketSignature(ticketID, eventID, holderID, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ParseTicketQRData splits a scanned payload back into its parts.
func ParseTicketQRData(data string) (ticketID, eventID uuid.UUID, signature string, err error) {
	parts := strings.Split(data, ";")
	if len(parts) != 3 ||
		!strings.HasPrefix(parts[0], "ticket:") ||
		!strings.HasPrefix(parts[1], "event:") ||
		!strings.HasPrefix(parts[2], "signature:") {
		return uuid.Nil, uuid.Nil, "", errors.New("malformed QR payload")
	}
	ticketID, err = uuid.Parse(strings.TrimPrefix(parts[0], "ticket:"))
	if err != nil {
		return uuid.Nil, uuid.Nil, "", errors.New("malformed QR payload")
	}
	eventID, err = uuid.Parse(strings.TrimPrefix(parts[1], "event:"))
	if err != nil {
		return uuid.Nil, uuid.Nil, "", errors.New("malformed QR payload")
	}
	return ticketID, eventID, strings.TrimPrefix(parts[2], "signature:"), nil
}
