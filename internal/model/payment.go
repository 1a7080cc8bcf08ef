package model

import "time"

// PaymentStatusSuccess is the only status the coordinator writes on the
// happy path.  Payments are recorded once per listing and never mutated.
const PaymentStatusSuccess = "success"

// Payment is the durable record of a completed monetary transfer for a
// listing.  At most one payment row exists per listing.
//
// Fields:
//  ListingID   – listing the payment settles (primary key).
//  SellerID    – listing owner receiving the funds.
//  BuyerID     – reserved counterparty who paid.
//  AmountCents – amount captured, in cents.
//  Status      – always "success"; failed captures never produce a row.
//  CreatedAt   – when the capture was confirmed.
type Payment struct {
	ListingID   string    `json:"listing_id"`
	SellerID    string    `json:"seller_id"`
	BuyerID     string    `json:"buyer_id"`
	AmountCents int64     `json:"amount_cents"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}
