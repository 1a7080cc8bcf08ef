// Package queue defines message payloads exchanged over the message broker.
package queue

// ListingReservedEvent is published when an owner reserves a listing
// for a counterparty. Downstream consumers use it to notify the buyer
// without querying the primary database.
type ListingReservedEvent struct {
	ListingID  string `json:"listing_id"`
	Title      string `json:"title"`
	SellerID   string `json:"seller_id"`
	BuyerID    string `json:"buyer_id"`
	ChannelID  string `json:"channel_id"`
	ReservedAt string `json:"reserved_at"`
}

// TransactionCompletedEvent is published when a listing reaches the
// completed state, either straight from a free meetup confirmation or
// after a successful payment capture.
type TransactionCompletedEvent struct {
	ListingID   string `json:"listing_id"`
	Title       string `json:"title"`
	Mode        string `json:"mode"`
	SellerID    string `json:"seller_id"`
	BuyerID     string `json:"buyer_id"`
	AmountCents int64  `json:"amount_cents"`
	Paid        bool   `json:"paid"`
	CompletedAt string `json:"completed_at"`
}
