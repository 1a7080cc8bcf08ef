package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/unithrift/marketplace-api/internal/model"
)

// PaymentRepo persists payment records. The listing id is the primary
// key, so the table itself enforces the at-most-one-payment-per-listing
// rule on top of the coordinator's status guard.
type PaymentRepo struct {
	db *sql.DB
}

// NewPaymentRepo returns a PaymentRepo bound to the given database.
func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

// Create inserts a payment record. ErrDuplicate is returned when a row
// for the listing already exists; rows are never updated afterwards.
func (r *PaymentRepo) Create(ctx context.Context, p model.Payment) error {
	const q = `INSERT INTO payments (listing_id, seller_id, buyer_id, amount_cents, status)
		VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q, p.ListingID, p.SellerID, p.BuyerID, p.AmountCents, p.Status)
	if err != nil {
		// MySQL duplicate-key error code.
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetByListing returns the payment recorded for a listing, or
// ErrNotFound when the transaction never reached a successful capture.
func (r *PaymentRepo) GetByListing(ctx context.Context, listingID string) (model.Payment, error) {
	const q = `SELECT listing_id, seller_id, buyer_id, amount_cents, status, created_at
		FROM payments WHERE listing_id = ?`
	var p model.Payment
	err := r.db.QueryRowContext(ctx, q, listingID).Scan(
		&p.ListingID, &p.SellerID, &p.BuyerID, &p.AmountCents, &p.Status, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return model.Payment{}, ErrNotFound
	}
	if err != nil {
		return model.Payment{}, err
	}
	return p, nil
}
