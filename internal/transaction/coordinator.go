package transaction

import (
	"context"
	"errors"
	"time"

	"github.com/unithrift/marketplace-api/internal/model"
	"github.com/unithrift/marketplace-api/internal/repository"
	"github.com/unithrift/marketplace-api/internal/token"
)

// ListingStore is the persistence contract the coordinator requires
// from the listing repository. Every mutation is a conditional write
// keyed on the expected prior status; repository.ErrStale reports a
// lost race.
type ListingStore interface {
	GetByID(ctx context.Context, id string) (model.Listing, error)
	Reserve(ctx context.Context, listingID, counterpartyID string, at time.Time) error
	Release(ctx context.Context, listingID string) error
	ConfirmMeetup(ctx context.Context, listingID, counterpartyID, toStatus string, at time.Time) error
	MarkUnpaid(ctx context.Context, listingID, counterpartyID string) error
	Complete(ctx context.Context, listingID, counterpartyID string) error
}

// SessionStore persists the listing/participant binding created at
// reservation time.
type SessionStore interface {
	Upsert(ctx context.Context, s model.TransactionSession) error
	GetByListing(ctx context.Context, listingID string) (model.TransactionSession, error)
	Delete(ctx context.Context, listingID string) error
}

// PaymentStore records completed captures. Create must reject a second
// row for the same listing.
type PaymentStore interface {
	Create(ctx context.Context, p model.Payment) error
}

// PaymentProvider is the external payment collaborator. CreateIntent
// mirrors createPaymentIntent(amount) -> {clientSecret} | {error}; the
// card-present capture itself happens on the counterparty's device.
type PaymentProvider interface {
	CreateIntent(ctx context.Context, amountCents int64) (clientSecret string, err error)
}

// Coordinator owns the transaction lifecycle of listings. It holds no
// per-listing state of its own: every operation reads the current
// record, checks the guard for the acting identity, and applies a
// conditional write, so a failed call can always be retried once the
// caller has refreshed.
type Coordinator struct {
	listings ListingStore
	sessions SessionStore
	payments PaymentStore
	provider PaymentProvider
	codec    *token.MeetupCodec
	now      func() time.Time
}

// New constructs a Coordinator. The provider may be nil when the
// deployment only handles free transactions; priced checkouts then fail
// with ErrPaymentFailed.
func New(listings ListingStore, sessions SessionStore, payments PaymentStore, provider PaymentProvider, codec *token.MeetupCodec) *Coordinator {
	if listings == nil || sessions == nil || payments == nil || codec == nil {
		panic("nil dependency passed to transaction.New")
	}
	return &Coordinator{
		listings: listings,
		sessions: sessions,
		payments: payments,
		provider: provider,
		codec:    codec,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ConfirmOutcome reports where a confirmed meetup routed the listing:
// straight to completed for free modes, or to exchanged with the amount
// still owed for priced ones.
type ConfirmOutcome struct {
	ListingID   string `json:"listing_id"`
	Status      string `json:"status"`
	AmountCents int64  `json:"amount_cents"`
}

// CheckoutIntent carries the payment collaborator's client secret back
// to the counterparty's device for capture.
type CheckoutIntent struct {
	ClientSecret string `json:"client_secret"`
	AmountCents  int64  `json:"amount_cents"`
}

// Reserve claims an available listing for the given counterparty on
// behalf of the owner, and persists the transaction session binding the
// pair. channelID identifies the chat thread the two communicate on.
func (co *Coordinator) Reserve(ctx context.Context, actor, listingID, counterpartyID, channelID string) (model.TransactionSession, error) {
	if counterpartyID == "" || counterpartyID == actor {
		return model.TransactionSession{}, ErrInvalidCounterparty
	}
	l, err := co.listings.GetByID(ctx, listingID)
	if err != nil {
		return model.TransactionSession{}, mapStoreErr(err)
	}
	if l.OwnerID != actor {
		return model.TransactionSession{}, ErrUnauthorized
	}
	if l.Status != model.StatusAvailable {
		return model.TransactionSession{}, ErrStaleState
	}
	if err := co.listings.Reserve(ctx, listingID, counterpartyID, co.now()); err != nil {
		return model.TransactionSession{}, mapStoreErr(err)
	}
	s := model.TransactionSession{
		ListingID: listingID,
		SellerID:  actor,
		BuyerID:   counterpartyID,
		ChannelID: channelID,
	}
	if err := co.sessions.Upsert(ctx, s); err != nil {
		return model.TransactionSession{}, mapStoreErr(err)
	}
	return s, nil
}

// Cancel releases the owner's reservation, returning the listing to
// available and removing the session.
func (co *Coordinator) Cancel(ctx context.Context, actor, listingID string) error {
	l, err := co.listings.GetByID(ctx, listingID)
	if err != nil {
		return mapStoreErr(err)
	}
	if l.OwnerID != actor {
		return ErrUnauthorized
	}
	if l.Status != model.StatusReserved {
		return ErrStaleState
	}
	if err := co.listings.Release(ctx, listingID); err != nil {
		return mapStoreErr(err)
	}
	return mapStoreErr(co.sessions.Delete(ctx, listingID))
}

// IssueMeetupToken returns the bearer credential the owner presents (as
// a QR code) to the reserved counterparty at the meetup. Only valid
// while the reservation is live; the token itself carries no expiry and
// stays valid exactly as long as the reservation does, because every
// scan re-validates against the live listing.
func (co *Coordinator) IssueMeetupToken(ctx context.Context, actor, listingID string) (string, error) {
	l, err := co.listings.GetByID(ctx, listingID)
	if err != nil {
		return "", mapStoreErr(err)
	}
	if l.OwnerID != actor {
		return "", ErrUnauthorized
	}
	if l.Status != model.StatusReserved || l.ReservedFor == nil {
		return "", ErrStaleState
	}
	return co.codec.Encode(listingID, l.OwnerID, *l.ReservedFor)
}

// ConfirmMeetup consumes a scanned meetup token on behalf of the
// counterparty. The token's claims are never trusted at face value:
// each one is re-checked against the live listing, so forwarded or
// stale tokens cannot replay. Free modes complete immediately; priced
// modes move to exchanged and hand off to checkout.
func (co *Coordinator) ConfirmMeetup(ctx context.Context, actor, rawToken string) (ConfirmOutcome, error) {
	claims, err := co.codec.Decode(rawToken)
	if err != nil {
		return ConfirmOutcome{}, ErrInvalidToken
	}
	if claims.CounterpartyID != actor {
		return ConfirmOutcome{}, ErrTokenMismatch
	}
	l, err := co.listings.GetByID(ctx, claims.ListingID)
	if err != nil {
		return ConfirmOutcome{}, mapStoreErr(err)
	}
	if l.OwnerID != claims.SellerID {
		return ConfirmOutcome{}, ErrTokenMismatch
	}
	if l.Status != model.StatusReserved {
		return ConfirmOutcome{}, ErrStaleState
	}
	if l.ReservedFor == nil || *l.ReservedFor != actor {
		return ConfirmOutcome{}, ErrTokenMismatch
	}
	to := model.StatusExchanged
	if l.IsFree() {
		to = model.StatusCompleted
	}
	if err := co.listings.ConfirmMeetup(ctx, l.ID, actor, to, co.now()); err != nil {
		return ConfirmOutcome{}, mapStoreErr(err)
	}
	return ConfirmOutcome{ListingID: l.ID, Status: to, AmountCents: l.PriceCents()}, nil
}

// BeginCheckout asks the payment collaborator for a payment intent
// covering the listing's resolved price. Valid from exchanged and, for
// retries, from unpaid.
func (co *Coordinator) BeginCheckout(ctx context.Context, actor, listingID string) (CheckoutIntent, error) {
	l, err := co.checkoutListing(ctx, actor, listingID)
	if err != nil {
		return CheckoutIntent{}, err
	}
	if co.provider == nil {
		return CheckoutIntent{}, ErrPaymentFailed
	}
	secret, err := co.provider.CreateIntent(ctx, l.PriceCents())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return CheckoutIntent{}, ErrTimeout
		}
		return CheckoutIntent{}, errors.Join(ErrPaymentFailed, err)
	}
	return CheckoutIntent{ClientSecret: secret, AmountCents: l.PriceCents()}, nil
}

// CompletePayment records a successful capture reported by the
// counterparty's device: the listing completes and exactly one payment
// record is written. The amount must match the listing's resolved
// price.
func (co *Coordinator) CompletePayment(ctx context.Context, actor, listingID string, amountCents int64) (model.Payment, error) {
	l, err := co.checkoutListing(ctx, actor, listingID)
	if err != nil {
		return model.Payment{}, err
	}
	if amountCents != l.PriceCents() {
		return model.Payment{}, errors.Join(ErrPaymentFailed, errors.New("amount does not match listing price"))
	}
	p := model.Payment{
		ListingID:   listingID,
		SellerID:    l.OwnerID,
		BuyerID:     actor,
		AmountCents: amountCents,
		Status:      model.PaymentStatusSuccess,
	}
	// The payment row is written before the status advances, so a
	// failure on either write leaves the listing in exchanged/unpaid
	// and the whole call can be retried. A row already present means an
	// earlier attempt got this far; the transition below decides the
	// winner.
	if err := co.payments.Create(ctx, p); err != nil {
		if !errors.Is(err, repository.ErrDuplicate) {
			return model.Payment{}, mapStoreErr(err)
		}
	}
	// Conditional write: a concurrent duplicate report loses the race
	// here and surfaces as stale, with exactly one payment row behind.
	if err := co.listings.Complete(ctx, listingID, actor); err != nil {
		return model.Payment{}, mapStoreErr(err)
	}
	return p, nil
}

// FailPayment records a failed or cancelled capture: the listing parks
// in unpaid, no payment record is written, and the counterparty may
// retry checkout later.
func (co *Coordinator) FailPayment(ctx context.Context, actor, listingID string) error {
	if _, err := co.checkoutListing(ctx, actor, listingID); err != nil {
		return err
	}
	return mapStoreErr(co.listings.MarkUnpaid(ctx, listingID, actor))
}

// Session returns the persisted participant binding for a listing,
// restricted to the two participants themselves.
func (co *Coordinator) Session(ctx context.Context, actor, listingID string) (model.TransactionSession, error) {
	s, err := co.sessions.GetByListing(ctx, listingID)
	if err != nil {
		return model.TransactionSession{}, mapStoreErr(err)
	}
	if s.SellerID != actor && s.BuyerID != actor {
		return model.TransactionSession{}, ErrUnauthorized
	}
	return s, nil
}

// checkoutListing loads a listing and verifies the payment-phase guard:
// the actor is the reserved counterparty and the status is exchanged or
// unpaid.
func (co *Coordinator) checkoutListing(ctx context.Context, actor, listingID string) (model.Listing, error) {
	l, err := co.listings.GetByID(ctx, listingID)
	if err != nil {
		return model.Listing{}, mapStoreErr(err)
	}
	if l.ReservedFor == nil || *l.ReservedFor != actor {
		return model.Listing{}, ErrUnauthorized
	}
	if l.Status != model.StatusExchanged && l.Status != model.StatusUnpaid {
		return model.Listing{}, ErrStaleState
	}
	return l, nil
}

// mapStoreErr folds repository and context errors into the coordinator
// taxonomy.
func mapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return ErrListingNotFound
	case errors.Is(err, repository.ErrStale):
		return ErrStaleState
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	default:
		return err
	}
}
