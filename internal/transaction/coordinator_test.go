package transaction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unithrift/marketplace-api/internal/model"
	"github.com/unithrift/marketplace-api/internal/repository"
	"github.com/unithrift/marketplace-api/internal/token"
)

// fakeListingStore reproduces the repository's conditional-write
// semantics in memory so races can be exercised without a database.
type fakeListingStore struct {
	mu       sync.Mutex
	listings map[string]*model.Listing
}

func newFakeListingStore(ls ...model.Listing) *fakeListingStore {
	s := &fakeListingStore{listings: make(map[string]*model.Listing)}
	for _, l := range ls {
		cp := l
		s.listings[l.ID] = &cp
	}
	return s
}

func (s *fakeListingStore) get(id string) (*model.Listing, error) {
	l, ok := s.listings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return l, nil
}

func (s *fakeListingStore) GetByID(_ context.Context, id string) (model.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.get(id)
	if err != nil {
		return model.Listing{}, err
	}
	return *l, nil
}

func (s *fakeListingStore) Reserve(_ context.Context, listingID, counterpartyID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.get(listingID)
	if err != nil {
		return err
	}
	if l.Status != model.StatusAvailable {
		return repository.ErrStale
	}
	l.Status = model.StatusReserved
	l.ReservedFor = &counterpartyID
	l.ReservedAt = &at
	return nil
}

func (s *fakeListingStore) Release(_ context.Context, listingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.get(listingID)
	if err != nil {
		return err
	}
	if l.Status != model.StatusReserved {
		return repository.ErrStale
	}
	l.Status = model.StatusAvailable
	l.ReservedFor = nil
	l.ReservedAt = nil
	return nil
}

func (s *fakeListingStore) ConfirmMeetup(_ context.Context, listingID, counterpartyID, toStatus string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.get(listingID)
	if err != nil {
		return err
	}
	if l.Status != model.StatusReserved || l.ReservedFor == nil || *l.ReservedFor != counterpartyID {
		return repository.ErrStale
	}
	l.Status = toStatus
	l.CompletedAt = &at
	return nil
}

func (s *fakeListingStore) MarkUnpaid(_ context.Context, listingID, counterpartyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.get(listingID)
	if err != nil {
		return err
	}
	if (l.Status != model.StatusExchanged && l.Status != model.StatusUnpaid) ||
		l.ReservedFor == nil || *l.ReservedFor != counterpartyID {
		return repository.ErrStale
	}
	l.Status = model.StatusUnpaid
	return nil
}

func (s *fakeListingStore) Complete(_ context.Context, listingID, counterpartyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.get(listingID)
	if err != nil {
		return err
	}
	if (l.Status != model.StatusExchanged && l.Status != model.StatusUnpaid) ||
		l.ReservedFor == nil || *l.ReservedFor != counterpartyID {
		return repository.ErrStale
	}
	l.Status = model.StatusCompleted
	return nil
}

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]model.TransactionSession
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[string]model.TransactionSession)}
}

func (s *fakeSessionStore) Upsert(_ context.Context, sess model.TransactionSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ListingID] = sess
	return nil
}

func (s *fakeSessionStore) GetByListing(_ context.Context, listingID string) (model.TransactionSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[listingID]
	if !ok {
		return model.TransactionSession{}, repository.ErrNotFound
	}
	return sess, nil
}

func (s *fakeSessionStore) Delete(_ context.Context, listingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, listingID)
	return nil
}

// fakePaymentStore rejects a second payment for the same listing, like
// the primary-key constraint does. failNext simulates one transient
// insert failure.
type fakePaymentStore struct {
	mu       sync.Mutex
	payments map[string]model.Payment
	failNext error
}

func newFakePaymentStore() *fakePaymentStore {
	return &fakePaymentStore{payments: make(map[string]model.Payment)}
}

func (s *fakePaymentStore) Create(_ context.Context, p model.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}
	if _, ok := s.payments[p.ListingID]; ok {
		return repository.ErrDuplicate
	}
	s.payments[p.ListingID] = p
	return nil
}

func (s *fakePaymentStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payments)
}

type fakeProvider struct {
	secret string
	err    error
}

func (p *fakeProvider) CreateIntent(_ context.Context, _ int64) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return p.secret, nil
}

const (
	seller = "seller-1"
	buyer  = "buyer-1"
	other  = "buyer-2"
)

func sellListing(id string, priceCents int64) model.Listing {
	return model.Listing{
		ID: id, OwnerID: seller, Title: "desk lamp",
		Mode: model.ModeSell, SellingPriceCents: priceCents,
		Status: model.StatusAvailable,
	}
}

func donateListing(id string) model.Listing {
	return model.Listing{
		ID: id, OwnerID: seller, Title: "old textbooks",
		Mode: model.ModeDonate, Status: model.StatusAvailable,
	}
}

type fixture struct {
	listings *fakeListingStore
	sessions *fakeSessionStore
	payments *fakePaymentStore
	provider *fakeProvider
	co       *Coordinator
}

func newFixture(t *testing.T, ls ...model.Listing) *fixture {
	t.Helper()
	f := &fixture{
		listings: newFakeListingStore(ls...),
		sessions: newFakeSessionStore(),
		payments: newFakePaymentStore(),
		provider: &fakeProvider{secret: "pi_secret_123"},
	}
	f.co = New(f.listings, f.sessions, f.payments, f.provider, token.NewMeetupCodec("test-secret"))
	return f
}

func (f *fixture) status(t *testing.T, id string) string {
	t.Helper()
	l, err := f.listings.GetByID(context.Background(), id)
	require.NoError(t, err)
	return l.Status
}

func TestReserveCreatesSession(t *testing.T) {
	f := newFixture(t, sellListing("l1", 2500))
	ctx := context.Background()

	s, err := f.co.Reserve(ctx, seller, "l1", buyer, "chat-9")
	require.NoError(t, err)
	require.Equal(t, seller, s.SellerID)
	require.Equal(t, buyer, s.BuyerID)
	require.Equal(t, "chat-9", s.ChannelID)
	require.Equal(t, model.StatusReserved, f.status(t, "l1"))

	got, err := f.co.Session(ctx, buyer, "l1")
	require.NoError(t, err)
	require.Equal(t, s, got)
}

func TestReserveGuards(t *testing.T) {
	tests := []struct {
		name         string
		actor        string
		counterparty string
		wantErr      error
	}{
		{"not_owner", buyer, other, ErrUnauthorized},
		{"self_counterparty", seller, seller, ErrInvalidCounterparty},
		{"empty_counterparty", seller, "", ErrInvalidCounterparty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, sellListing("l1", 2500))
			_, err := f.co.Reserve(context.Background(), tt.actor, "l1", tt.counterparty, "")
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("missing_listing", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.co.Reserve(context.Background(), seller, "nope", buyer, "")
		require.ErrorIs(t, err, ErrListingNotFound)
	})
}

// Two concurrent reservation attempts must resolve to exactly one
// winner; the loser sees a stale-state conflict.
func TestReserveConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t, sellListing("l1", 2500))
	ctx := context.Background()

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, cp := range []string{buyer, other} {
		wg.Add(1)
		go func(cp string) {
			defer wg.Done()
			_, err := f.co.Reserve(ctx, seller, "l1", cp, "")
			errs <- err
		}(cp)
	}
	wg.Wait()
	close(errs)

	var ok, stale int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		default:
			require.ErrorIs(t, err, ErrStaleState)
			stale++
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, stale)

	l, err := f.listings.GetByID(ctx, "l1")
	require.NoError(t, err)
	require.Equal(t, model.StatusReserved, l.Status)
	require.NotNil(t, l.ReservedFor)
	// The session must match whichever counterparty won.
	s, err := f.sessions.GetByListing(ctx, "l1")
	require.NoError(t, err)
	require.Equal(t, *l.ReservedFor, s.BuyerID)
}

func TestCancelReturnsToAvailable(t *testing.T) {
	f := newFixture(t, sellListing("l1", 2500))
	ctx := context.Background()

	_, err := f.co.Reserve(ctx, seller, "l1", buyer, "")
	require.NoError(t, err)

	require.ErrorIs(t, f.co.Cancel(ctx, buyer, "l1"), ErrUnauthorized)
	require.NoError(t, f.co.Cancel(ctx, seller, "l1"))

	l, err := f.listings.GetByID(ctx, "l1")
	require.NoError(t, err)
	require.Equal(t, model.StatusAvailable, l.Status)
	require.Nil(t, l.ReservedFor)
	require.Nil(t, l.ReservedAt)

	_, err = f.co.Session(ctx, buyer, "l1")
	require.ErrorIs(t, err, ErrListingNotFound)

	// Cancelling twice is a conflict, not a silent no-op.
	require.ErrorIs(t, f.co.Cancel(ctx, seller, "l1"), ErrStaleState)
}

func TestIssueMeetupTokenGuards(t *testing.T) {
	f := newFixture(t, sellListing("l1", 2500))
	ctx := context.Background()

	_, err := f.co.IssueMeetupToken(ctx, seller, "l1")
	require.ErrorIs(t, err, ErrStaleState, "no token before reservation")

	_, err = f.co.Reserve(ctx, seller, "l1", buyer, "")
	require.NoError(t, err)

	_, err = f.co.IssueMeetupToken(ctx, buyer, "l1")
	require.ErrorIs(t, err, ErrUnauthorized, "only the owner issues tokens")

	tok, err := f.co.IssueMeetupToken(ctx, seller, "l1")
	require.NoError(t, err)
	require.NotEmpty(t, tok)
}

func TestConfirmMeetupFreeCompletes(t *testing.T) {
	f := newFixture(t, donateListing("l1"))
	ctx := context.Background()

	_, err := f.co.Reserve(ctx, seller, "l1", buyer, "")
	require.NoError(t, err)
	tok, err := f.co.IssueMeetupToken(ctx, seller, "l1")
	require.NoError(t, err)

	out, err := f.co.ConfirmMeetup(ctx, buyer, tok)
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, out.Status)
	require.Zero(t, out.AmountCents)
	require.Equal(t, model.StatusCompleted, f.status(t, "l1"))
	require.Zero(t, f.payments.count(), "free transactions write no payment")
}

func TestConfirmMeetupZeroDepositRentIsFree(t *testing.T) {
	f := newFixture(t, model.Listing{
		ID: "l1", OwnerID: seller, Mode: model.ModeRent,
		RentalPriceCents: 1500, DepositCents: 0,
		Status: model.StatusAvailable,
	})
	ctx := context.Background()

	_, err := f.co.Reserve(ctx, seller, "l1", buyer, "")
	require.NoError(t, err)
	tok, err := f.co.IssueMeetupToken(ctx, seller, "l1")
	require.NoError(t, err)

	out, err := f.co.ConfirmMeetup(ctx, buyer, tok)
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, out.Status, "rent collects only the deposit up front")
}

func TestConfirmMeetupPricedMovesToExchanged(t *testing.T) {
	f := newFixture(t, sellListing("l1", 2500))
	ctx := context.Background()

	_, err := f.co.Reserve(ctx, seller, "l1", buyer, "")
	require.NoError(t, err)
	tok, err := f.co.IssueMeetupToken(ctx, seller, "l1")
	require.NoError(t, err)

	out, err := f.co.ConfirmMeetup(ctx, buyer, tok)
	require.NoError(t, err)
	require.Equal(t, model.StatusExchanged, out.Status)
	require.Equal(t, int64(2500), out.AmountCents)

	// A second scan of the same token finds the reservation gone.
	_, err = f.co.ConfirmMeetup(ctx, buyer, tok)
	require.ErrorIs(t, err, ErrStaleState)
}

func TestConfirmMeetupTokenChecks(t *testing.T) {
	f := newFixture(t, sellListing("l1", 2500))
	ctx := context.Background()

	_, err := f.co.Reserve(ctx, seller, "l1", buyer, "")
	require.NoError(t, err)
	tok, err := f.co.IssueMeetupToken(ctx, seller, "l1")
	require.NoError(t, err)

	_, err = f.co.ConfirmMeetup(ctx, buyer, "not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)

	// A forwarded token is useless to anyone but the reserved
	// counterparty.
	_, err = f.co.ConfirmMeetup(ctx, other, tok)
	require.ErrorIs(t, err, ErrTokenMismatch)

	// Signed with a different secret.
	foreign, err := token.NewMeetupCodec("another-secret").Encode("l1", seller, buyer)
	require.NoError(t, err)
	_, err = f.co.ConfirmMeetup(ctx, buyer, foreign)
	require.ErrorIs(t, err, ErrInvalidToken)
}

// A token issued for an earlier reservation must not confirm after the
// listing was cancelled and re-reserved for someone else.
func TestConfirmMeetupStaleTokenAfterReReserve(t *testing.T) {
	f := newFixture(t, sellListing("l1", 2500))
	ctx := context.Background()

	_, err := f.co.Reserve(ctx, seller, "l1", buyer, "")
	require.NoError(t, err)
	oldTok, err := f.co.IssueMeetupToken(ctx, seller, "l1")
	require.NoError(t, err)

	require.NoError(t, f.co.Cancel(ctx, seller, "l1"))
	_, err = f.co.Reserve(ctx, seller, "l1", other, "")
	require.NoError(t, err)

	_, err = f.co.ConfirmMeetup(ctx, buyer, oldTok)
	require.ErrorIs(t, err, ErrTokenMismatch)
	require.Equal(t, model.StatusReserved, f.status(t, "l1"))
}

func exchangedFixture(t *testing.T, priceCents int64) *fixture {
	t.Helper()
	f := newFixture(t, sellListing("l1", priceCents))
	ctx := context.Background()
	_, err := f.co.Reserve(ctx, seller, "l1", buyer, "")
	require.NoError(t, err)
	tok, err := f.co.IssueMeetupToken(ctx, seller, "l1")
	require.NoError(t, err)
	_, err = f.co.ConfirmMeetup(ctx, buyer, tok)
	require.NoError(t, err)
	return f
}

func TestBeginCheckout(t *testing.T) {
	f := exchangedFixture(t, 2500)
	ctx := context.Background()

	_, err := f.co.BeginCheckout(ctx, seller, "l1")
	require.ErrorIs(t, err, ErrUnauthorized, "only the counterparty pays")

	intent, err := f.co.BeginCheckout(ctx, buyer, "l1")
	require.NoError(t, err)
	require.Equal(t, "pi_secret_123", intent.ClientSecret)
	require.Equal(t, int64(2500), intent.AmountCents)
}

func TestBeginCheckoutProviderErrors(t *testing.T) {
	f := exchangedFixture(t, 2500)
	ctx := context.Background()

	f.provider.err = context.DeadlineExceeded
	_, err := f.co.BeginCheckout(ctx, buyer, "l1")
	require.ErrorIs(t, err, ErrTimeout)

	f.provider.err = errors.New("card network down")
	_, err = f.co.BeginCheckout(ctx, buyer, "l1")
	require.ErrorIs(t, err, ErrPaymentFailed)
}

func TestCompletePayment(t *testing.T) {
	f := exchangedFixture(t, 2500)
	ctx := context.Background()

	_, err := f.co.CompletePayment(ctx, buyer, "l1", 999)
	require.ErrorIs(t, err, ErrPaymentFailed, "amount must match the resolved price")

	p, err := f.co.CompletePayment(ctx, buyer, "l1", 2500)
	require.NoError(t, err)
	require.Equal(t, int64(2500), p.AmountCents)
	require.Equal(t, seller, p.SellerID)
	require.Equal(t, buyer, p.BuyerID)
	require.Equal(t, model.StatusCompleted, f.status(t, "l1"))
	require.Equal(t, 1, f.payments.count())

	// A duplicate report loses the conditional write.
	_, err = f.co.CompletePayment(ctx, buyer, "l1", 2500)
	require.ErrorIs(t, err, ErrStaleState)
	require.Equal(t, 1, f.payments.count())
}

// A transient failure writing the payment row must leave the listing
// retryable: the status only advances after the record is in place, so
// reporting success again completes with exactly one payment row.
func TestCompletePaymentTransientInsertFailureIsRetryable(t *testing.T) {
	f := exchangedFixture(t, 2500)
	ctx := context.Background()

	f.payments.failNext = errors.New("connection reset")
	_, err := f.co.CompletePayment(ctx, buyer, "l1", 2500)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrStaleState)
	require.Equal(t, model.StatusExchanged, f.status(t, "l1"))
	require.Zero(t, f.payments.count())

	p, err := f.co.CompletePayment(ctx, buyer, "l1", 2500)
	require.NoError(t, err)
	require.Equal(t, int64(2500), p.AmountCents)
	require.Equal(t, model.StatusCompleted, f.status(t, "l1"))
	require.Equal(t, 1, f.payments.count())
}

// The inverse partial state: the payment row committed but the status
// transition did not (e.g. the process died in between). The retry must
// tolerate the existing row and finish the transition.
func TestCompletePaymentRetryAfterRowAlreadyWritten(t *testing.T) {
	f := exchangedFixture(t, 2500)
	ctx := context.Background()

	require.NoError(t, f.payments.Create(ctx, model.Payment{
		ListingID: "l1", SellerID: seller, BuyerID: buyer,
		AmountCents: 2500, Status: model.PaymentStatusSuccess,
	}))

	_, err := f.co.CompletePayment(ctx, buyer, "l1", 2500)
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, f.status(t, "l1"))
	require.Equal(t, 1, f.payments.count())
}

func TestFailPaymentThenRetry(t *testing.T) {
	f := exchangedFixture(t, 2500)
	ctx := context.Background()

	require.NoError(t, f.co.FailPayment(ctx, buyer, "l1"))
	require.Equal(t, model.StatusUnpaid, f.status(t, "l1"))

	// Reporting the failure again is idempotent.
	require.NoError(t, f.co.FailPayment(ctx, buyer, "l1"))

	// Retry from unpaid: new intent, then success.
	_, err := f.co.BeginCheckout(ctx, buyer, "l1")
	require.NoError(t, err)
	_, err = f.co.CompletePayment(ctx, buyer, "l1", 2500)
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, f.status(t, "l1"))
	require.Equal(t, 1, f.payments.count())
}

func TestCompletePaymentBeforeExchangeIsStale(t *testing.T) {
	f := newFixture(t, sellListing("l1", 2500))
	ctx := context.Background()

	_, err := f.co.Reserve(ctx, seller, "l1", buyer, "")
	require.NoError(t, err)

	// Payment is only reachable after the meetup confirmation.
	_, err = f.co.CompletePayment(ctx, buyer, "l1", 2500)
	require.ErrorIs(t, err, ErrStaleState)
}

func TestSessionVisibility(t *testing.T) {
	f := newFixture(t, sellListing("l1", 2500))
	ctx := context.Background()

	_, err := f.co.Reserve(ctx, seller, "l1", buyer, "chat-1")
	require.NoError(t, err)

	for _, actor := range []string{seller, buyer} {
		s, err := f.co.Session(ctx, actor, "l1")
		require.NoError(t, err)
		require.Equal(t, "chat-1", s.ChannelID)
	}
	_, err = f.co.Session(ctx, other, "l1")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestNilProviderFailsPricedCheckout(t *testing.T) {
	f := newFixture(t, sellListing("l1", 2500))
	f.co = New(f.listings, f.sessions, f.payments, nil, token.NewMeetupCodec("test-secret"))
	ctx := context.Background()

	_, err := f.co.Reserve(ctx, seller, "l1", buyer, "")
	require.NoError(t, err)
	tok, err := f.co.IssueMeetupToken(ctx, seller, "l1")
	require.NoError(t, err)
	_, err = f.co.ConfirmMeetup(ctx, buyer, tok)
	require.NoError(t, err)

	_, err = f.co.BeginCheckout(ctx, buyer, "l1")
	require.ErrorIs(t, err, ErrPaymentFailed)
}
