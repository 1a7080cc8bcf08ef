// Package token implements the meetup-token codec: the bearer
// credential a seller shows as a QR code to prove that a specific
// counterparty may confirm receipt of a specific listing.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// KindMeetupConfirmation is the discriminator a meetup token must
// carry. Payloads with any other kind are rejected outright.
const KindMeetupConfirmation = "meetupConfirmation"

// ErrMalformed is returned by Decode when the payload is not a valid
// signed token, is signed with an unexpected method, or does not carry
// the meetup-confirmation kind.
var ErrMalformed = errors.New("malformed meetup token")

// MeetupClaims is the structured payload of a meetup token. The claims
// are informational for the consuming side: holders of the token are
// not trusted, and the coordinator re-validates every field against the
// live listing before acting on a scan.
type MeetupClaims struct {
	ListingID      string `json:"listing_id"`
	SellerID       string `json:"seller_id"`
	CounterpartyID string `json:"counterparty_id"`
	Kind           string `json:"kind"`
	jwt.RegisteredClaims
}

// MeetupCodec encodes and decodes meetup tokens with an HMAC secret.
// The signature stops casual tampering; it is not what makes the token
// safe, since a token has no expiry and stays valid for however long
// the underlying reservation does.
type MeetupCodec struct {
	secret []byte
}

// NewMeetupCodec returns a codec signing with the given secret.
func NewMeetupCodec(secret string) *MeetupCodec {
	return &MeetupCodec{secret: []byte(secret)}
}

// Encode produces a signed meetup token for the listing/seller/
// counterparty triple.
func (c *MeetupCodec) Encode(listingID, sellerID, counterpartyID string) (string, error) {
	claims := MeetupClaims{
		ListingID:      listingID,
		SellerID:       sellerID,
		CounterpartyID: counterpartyID,
		Kind:           KindMeetupConfirmation,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now().UTC()),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(c.secret)
}

// Decode parses and validates a raw token string. ErrMalformed covers
// every structural failure; identity checks against the scanner and the
// live listing are the caller's responsibility.
func (c *MeetupCodec) Decode(raw string) (MeetupClaims, error) {
	tok, err := jwt.ParseWithClaims(raw, &MeetupClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrMalformed
		}
		return c.secret, nil
	})
	if err != nil || !tok.Valid {
		return MeetupClaims{}, ErrMalformed
	}
	claims, ok := tok.Claims.(*MeetupClaims)
	if !ok || claims.Kind != KindMeetupConfirmation {
		return MeetupClaims{}, ErrMalformed
	}
	if claims.ListingID == "" || claims.SellerID == "" || claims.CounterpartyID == "" {
		return MeetupClaims{}, ErrMalformed
	}
	return *claims, nil
}
