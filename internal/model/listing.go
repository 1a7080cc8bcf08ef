package model

import "time"

// Transaction modes supported for a listing.  The mode decides which
// price field applies when the transaction reaches checkout.
const (
	ModeSell   = "sell"
	ModeRent   = "rent"
	ModeDonate = "donate"
)

// Listing statuses.  A listing starts life as available and is only
// mutated by coordinator transitions from there on.
const (
	StatusAvailable = "available"
	StatusReserved  = "reserved"
	StatusExchanged = "exchanged"
	StatusUnpaid    = "unpaid"
	StatusCompleted = "completed"
)

// Listing represents an item offered by an owner for sale, rent or
// donation.  The reservation fields track the single counterparty a
// listing is claimed by while a transaction is in flight.
//
// Fields:
//  ID                – primary key (UUID string).
//  OwnerID           – user who created the listing.
//  Title             – short item title.
//  Description       – free-form item description.
//  Mode              – one of sell, rent, donate.
//  SellingPriceCents – asking price when Mode is sell.
//  RentalPriceCents  – recurring rent when Mode is rent (informational).
//  DepositCents      – deposit collected at handoff when Mode is rent.
//  Status            – one of available, reserved, exchanged, unpaid,
//                      completed.
//  ReservedFor       – counterparty holding the reservation (nullable;
//                      set exactly when Status is not available).
//  ReservedAt        – when the reservation was made (nullable).
//  CompletedAt       – when the meetup was confirmed (nullable).
//  CreatedAt         – creation timestamp.
//  UpdatedAt         – last update timestamp.
type Listing struct {
	ID                string     `json:"id"`
	OwnerID           string     `json:"owner_id"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	Mode              string     `json:"mode"`
	SellingPriceCents int64      `json:"selling_price_cents"`
	RentalPriceCents  int64      `json:"rental_price_cents"`
	DepositCents      int64      `json:"deposit_cents"`
	Status            string     `json:"status"`
	ReservedFor       *string    `json:"reserved_for,omitempty"`
	ReservedAt        *time.Time `json:"reserved_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// PriceCents resolves the amount due at checkout for the listing's mode:
// the selling price for sell, the deposit for rent, zero for donate.
func (l Listing) PriceCents() int64 {
	switch l.Mode {
	case ModeSell:
		return l.SellingPriceCents
	case ModeRent:
		return l.DepositCents
	default:
		return 0
	}
}

// IsFree reports whether confirming the meetup should finish the
// transaction without a payment step.  Donations are always free; a
// rental with no deposit is treated as free as well.
func (l Listing) IsFree() bool {
	return l.PriceCents() == 0
}

// ValidMode reports whether s is a recognized transaction mode.
func ValidMode(s string) bool {
	return s == ModeSell || s == ModeRent || s == ModeDonate
}
