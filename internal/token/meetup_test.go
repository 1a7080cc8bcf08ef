package token

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c := NewMeetupCodec("secret-a")

	raw, err := c.Encode("listing-1", "seller-1", "buyer-1")
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	claims, err := c.Decode(raw)
	require.NoError(t, err)
	require.Equal(t, "listing-1", claims.ListingID)
	require.Equal(t, "seller-1", claims.SellerID)
	require.Equal(t, "buyer-1", claims.CounterpartyID)
	require.Equal(t, KindMeetupConfirmation, claims.Kind)
}

func TestDecodeRejectsWrongSecret(t *testing.T) {
	raw, err := NewMeetupCodec("secret-a").Encode("l", "s", "b")
	require.NoError(t, err)

	_, err = NewMeetupCodec("secret-b").Decode(raw)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "not.a.jwt", "abc"} {
		_, err := NewMeetupCodec("secret").Decode(raw)
		require.ErrorIs(t, err, ErrMalformed)
	}
}

func TestDecodeRejectsWrongKind(t *testing.T) {
	secret := []byte("secret")
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, MeetupClaims{
		ListingID: "l", SellerID: "s", CounterpartyID: "b",
		Kind: "somethingElse",
	})
	raw, err := tok.SignedString(secret)
	require.NoError(t, err)

	_, err = NewMeetupCodec("secret").Decode(raw)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeRejectsMissingFields(t *testing.T) {
	secret := []byte("secret")
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, MeetupClaims{
		ListingID: "l", Kind: KindMeetupConfirmation,
	})
	raw, err := tok.SignedString(secret)
	require.NoError(t, err)

	_, err = NewMeetupCodec("secret").Decode(raw)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeRejectsUnsignedToken(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodNone, MeetupClaims{
		ListingID: "l", SellerID: "s", CounterpartyID: "b",
		Kind: KindMeetupConfirmation,
	})
	raw, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewMeetupCodec("secret").Decode(raw)
	require.ErrorIs(t, err, ErrMalformed)
}
