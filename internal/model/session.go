package model

import "time"

// TransactionSession binds one listing to the exact pair of
// participants conducting its exchange.  It is persisted when the owner
// reserves the listing and removed when the reservation is cancelled,
// so that "who is the other party" is never reconstructed from request
// parameters.
//
// Fields:
//  ListingID – listing under transaction (primary key).
//  SellerID  – listing owner.
//  BuyerID   – reserved counterparty.
//  ChannelID – opaque id of the chat thread the pair communicates on.
//  CreatedAt – when the session was established.
type TransactionSession struct {
	ListingID string    `json:"listing_id"`
	SellerID  string    `json:"seller_id"`
	BuyerID   string    `json:"buyer_id"`
	ChannelID string    `json:"channel_id"`
	CreatedAt time.Time `json:"created_at"`
}
