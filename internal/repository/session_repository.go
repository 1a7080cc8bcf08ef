package repository

import (
	"context"
	"database/sql"

	"github.com/unithrift/marketplace-api/internal/model"
)

// SessionRepo persists transaction sessions: the binding between one
// listing and the exact pair of users exchanging it. A session exists
// from reservation until the reservation is cancelled; completed
// transactions keep theirs for history.
type SessionRepo struct {
	db *sql.DB
}

// NewSessionRepo returns a SessionRepo bound to the given database.
func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{db: db} }

// Upsert writes the session for a listing, replacing any previous pair.
// A listing holds at most one session at a time.
func (r *SessionRepo) Upsert(ctx context.Context, s model.TransactionSession) error {
	const q = `INSERT INTO transaction_sessions (listing_id, seller_id, buyer_id, channel_id)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE seller_id = VALUES(seller_id), buyer_id = VALUES(buyer_id), channel_id = VALUES(channel_id)`
	_, err := r.db.ExecContext(ctx, q, s.ListingID, s.SellerID, s.BuyerID, s.ChannelID)
	return err
}

// GetByListing returns the session for a listing or ErrNotFound.
func (r *SessionRepo) GetByListing(ctx context.Context, listingID string) (model.TransactionSession, error) {
	const q = `SELECT listing_id, seller_id, buyer_id, channel_id, created_at
		FROM transaction_sessions WHERE listing_id = ?`
	var s model.TransactionSession
	err := r.db.QueryRowContext(ctx, q, listingID).Scan(
		&s.ListingID, &s.SellerID, &s.BuyerID, &s.ChannelID, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return model.TransactionSession{}, ErrNotFound
	}
	if err != nil {
		return model.TransactionSession{}, err
	}
	return s, nil
}

// Delete removes the session for a listing. Deleting a session that
// does not exist is not an error.
func (r *SessionRepo) Delete(ctx context.Context, listingID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM transaction_sessions WHERE listing_id = ?`, listingID)
	return err
}
