package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/unithrift/marketplace-api/internal/model"
)

// ListingRepo provides persistence for listings. Status transitions are
// expressed as conditional updates keyed on the expected prior status
// (and, where a reservation is involved, on the expected counterparty),
// so concurrent writers can never clobber each other: the loser of a
// race matches zero rows and receives ErrStale.
type ListingRepo struct {
	db *sql.DB
}

// NewListingRepo returns a ListingRepo bound to the given database.
func NewListingRepo(db *sql.DB) *ListingRepo { return &ListingRepo{db: db} }

const listingColumns = `id, owner_id, title, description, mode,
	selling_price_cents, rental_price_cents, deposit_cents,
	status, reserved_for, reserved_at, completed_at, created_at, updated_at`

func scanListing(row *sql.Row) (model.Listing, error) {
	var l model.Listing
	var reservedFor sql.NullString
	var reservedAt, completedAt sql.NullTime
	err := row.Scan(
		&l.ID, &l.OwnerID, &l.Title, &l.Description, &l.Mode,
		&l.SellingPriceCents, &l.RentalPriceCents, &l.DepositCents,
		&l.Status, &reservedFor, &reservedAt, &completedAt, &l.CreatedAt, &l.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return model.Listing{}, ErrNotFound
	}
	if err != nil {
		return model.Listing{}, err
	}
	if reservedFor.Valid {
		v := reservedFor.String
		l.ReservedFor = &v
	}
	if reservedAt.Valid {
		t := reservedAt.Time
		l.ReservedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		l.CompletedAt = &t
	}
	return l, nil
}

// Create inserts a new listing with status available.
func (r *ListingRepo) Create(ctx context.Context, l model.Listing) error {
	const q = `INSERT INTO listings
		(id, owner_id, title, description, mode, selling_price_cents, rental_price_cents, deposit_cents, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q,
		l.ID, l.OwnerID, l.Title, l.Description, l.Mode,
		l.SellingPriceCents, l.RentalPriceCents, l.DepositCents, model.StatusAvailable)
	return err
}

// GetByID fetches one listing. ErrNotFound is returned when no row
// exists.
func (r *ListingRepo) GetByID(ctx context.Context, id string) (model.Listing, error) {
	const q = `SELECT ` + listingColumns + ` FROM listings WHERE id = ?`
	return scanListing(r.db.QueryRowContext(ctx, q, id))
}

// ListAvailable returns listings currently open for reservation, newest
// first. Used by the public browse endpoints.
func (r *ListingRepo) ListAvailable(ctx context.Context) ([]model.Listing, error) {
	const q = `SELECT ` + listingColumns + ` FROM listings WHERE status = ? ORDER BY created_at DESC`
	return r.list(ctx, q, model.StatusAvailable)
}

// ListByOwner returns every listing created by the given owner, newest
// first.
func (r *ListingRepo) ListByOwner(ctx context.Context, ownerID string) ([]model.Listing, error) {
	const q = `SELECT ` + listingColumns + ` FROM listings WHERE owner_id = ? ORDER BY created_at DESC`
	return r.list(ctx, q, ownerID)
}

func (r *ListingRepo) list(ctx context.Context, q string, args ...interface{}) ([]model.Listing, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Listing, 0)
	for rows.Next() {
		var l model.Listing
		var reservedFor sql.NullString
		var reservedAt, completedAt sql.NullTime
		if err := rows.Scan(
			&l.ID, &l.OwnerID, &l.Title, &l.Description, &l.Mode,
			&l.SellingPriceCents, &l.RentalPriceCents, &l.DepositCents,
			&l.Status, &reservedFor, &reservedAt, &completedAt, &l.CreatedAt, &l.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if reservedFor.Valid {
			v := reservedFor.String
			l.ReservedFor = &v
		}
		if reservedAt.Valid {
			t := reservedAt.Time
			l.ReservedAt = &t
		}
		if completedAt.Valid {
			t := completedAt.Time
			l.CompletedAt = &t
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Reserve claims the listing for counterpartyID. The update only
// matches when the listing is still available, which makes two
// concurrent reservation attempts resolve to exactly one winner.
func (r *ListingRepo) Reserve(ctx context.Context, listingID, counterpartyID string, at time.Time) error {
	const q = `UPDATE listings
		SET status = ?, reserved_for = ?, reserved_at = ?
		WHERE id = ? AND status = ?`
	return r.conditional(ctx, listingID, q,
		model.StatusReserved, counterpartyID, at.UTC(), listingID, model.StatusAvailable)
}

// Release cancels a reservation, clearing the counterparty fields. Only
// valid while the listing is still reserved.
func (r *ListingRepo) Release(ctx context.Context, listingID string) error {
	const q = `UPDATE listings
		SET status = ?, reserved_for = NULL, reserved_at = NULL
		WHERE id = ? AND status = ?`
	return r.conditional(ctx, listingID, q,
		model.StatusAvailable, listingID, model.StatusReserved)
}

// ConfirmMeetup advances a reserved listing to the given terminal-or-
// payment state (completed for free modes, exchanged for priced ones)
// and stamps completed_at. The reserved counterparty is part of the
// precondition so a stale token for a re-reserved listing cannot match.
func (r *ListingRepo) ConfirmMeetup(ctx context.Context, listingID, counterpartyID, toStatus string, at time.Time) error {
	const q = `UPDATE listings
		SET status = ?, completed_at = ?
		WHERE id = ? AND status = ? AND reserved_for = ?`
	return r.conditional(ctx, listingID, q,
		toStatus, at.UTC(), listingID, model.StatusReserved, counterpartyID)
}

// MarkUnpaid records a failed or cancelled payment capture. Accepts the
// exchanged state and, idempotently, the unpaid state itself so a
// repeated failure report does not surface as a conflict.
func (r *ListingRepo) MarkUnpaid(ctx context.Context, listingID, counterpartyID string) error {
	const q = `UPDATE listings
		SET status = ?
		WHERE id = ? AND status IN (?, ?) AND reserved_for = ?`
	return r.conditional(ctx, listingID, q,
		model.StatusUnpaid, listingID, model.StatusExchanged, model.StatusUnpaid, counterpartyID)
}

// Complete finishes a priced transaction after a successful capture.
// Valid from exchanged or from unpaid (payment retry).
func (r *ListingRepo) Complete(ctx context.Context, listingID, counterpartyID string) error {
	const q = `UPDATE listings
		SET status = ?
		WHERE id = ? AND status IN (?, ?) AND reserved_for = ?`
	return r.conditional(ctx, listingID, q,
		model.StatusCompleted, listingID, model.StatusExchanged, model.StatusUnpaid, counterpartyID)
}

// Delete removes a listing, permitted only to its owner and only while
// it is available. A listing with a pending transaction never matches
// the condition.
func (r *ListingRepo) Delete(ctx context.Context, listingID, ownerID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM listings WHERE id = ? AND owner_id = ? AND status = ?`,
		listingID, ownerID, model.StatusAvailable)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish a nonexistent listing, someone else's listing and
		// one whose state moved on.
		l, gerr := r.GetByID(ctx, listingID)
		if gerr != nil {
			return gerr
		}
		if l.OwnerID != ownerID {
			return ErrNotOwner
		}
		return ErrStale
	}
	return nil
}

// conditional executes a guarded UPDATE and maps "no rows matched" to
// ErrStale (or ErrNotFound when the listing is gone entirely).
func (r *ListingRepo) conditional(ctx context.Context, listingID, q string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, gerr := r.GetByID(ctx, listingID); gerr != nil {
			return gerr
		}
		return ErrStale
	}
	return nil
}
