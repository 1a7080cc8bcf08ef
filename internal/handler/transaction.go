package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/unithrift/marketplace-api/internal/config"
	"github.com/unithrift/marketplace-api/internal/model"
	"github.com/unithrift/marketplace-api/internal/queue"
	"github.com/unithrift/marketplace-api/internal/repository"
	queue_publisher "github.com/unithrift/marketplace-api/internal/service"
	"github.com/unithrift/marketplace-api/internal/transaction"
)

// TransactionHandler exposes the transaction lifecycle of a listing
// over HTTP: reserve, cancel, meetup token issue/confirm, checkout and
// payment result reporting. All state decisions live in the
// coordinator; this layer binds requests, resolves the acting identity
// and maps the error taxonomy onto status codes.
type TransactionHandler struct {
	Cfg      config.Config
	Coord    *transaction.Coordinator
	Listings *repository.ListingRepo
	Payments *repository.PaymentRepo
}

func NewTransactionHandler(cfg config.Config, coord *transaction.Coordinator, listings *repository.ListingRepo, payments *repository.PaymentRepo) *TransactionHandler {
	if coord == nil || listings == nil || payments == nil {
		panic("nil dependency passed to NewTransactionHandler")
	}
	return &TransactionHandler{Cfg: cfg, Coord: coord, Listings: listings, Payments: payments}
}

func (h *TransactionHandler) opCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), time.Duration(h.Cfg.RequestTTLSec)*time.Second)
}

// txError maps coordinator errors onto HTTP responses. Unknown errors
// become a generic 500 without leaking internals.
func txError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, transaction.ErrListingNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "listing not found"})
	case errors.Is(err, transaction.ErrUnauthorized):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not allowed for this listing"})
	case errors.Is(err, transaction.ErrInvalidCounterparty):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid counterparty"})
	case errors.Is(err, transaction.ErrInvalidToken):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "invalid meetup token"})
	case errors.Is(err, transaction.ErrTokenMismatch):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "token was not issued for you"})
	case errors.Is(err, transaction.ErrStaleState):
		return c.JSON(http.StatusConflict, echo.Map{"error": "listing state changed, refresh and retry"})
	case errors.Is(err, transaction.ErrPaymentFailed):
		return c.JSON(http.StatusPaymentRequired, echo.Map{"error": "payment failed"})
	case errors.Is(err, transaction.ErrTimeout):
		return c.JSON(http.StatusGatewayTimeout, echo.Map{"error": "operation timed out"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}

type reserveReq struct {
	CounterpartyID string `json:"counterparty_id"`
	ChannelID      string `json:"channel_id"`
}

// Reserve handles POST /v1/listings/:id/reserve. The seller reserves
// their own listing for a chosen counterparty.
func (h *TransactionHandler) Reserve(c echo.Context) error {
	actor, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req reserveReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.CounterpartyID = strings.TrimSpace(req.CounterpartyID)

	ctx, cancel := h.opCtx(c)
	defer cancel()

	s, err := h.Coord.Reserve(ctx, actor, c.Param("id"), req.CounterpartyID, strings.TrimSpace(req.ChannelID))
	if err != nil {
		return txError(c, err)
	}
	h.publishReserved(s)
	return c.JSON(http.StatusOK, s)
}

// CancelReservation handles POST /v1/listings/:id/cancel-reservation.
func (h *TransactionHandler) CancelReservation(c echo.Context) error {
	actor, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := h.opCtx(c)
	defer cancel()

	if err := h.Coord.Cancel(ctx, actor, c.Param("id")); err != nil {
		return txError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// MeetupToken handles POST /v1/listings/:id/meetup-token. The seller
// renders the returned token as a QR code for the counterparty to scan.
func (h *TransactionHandler) MeetupToken(c echo.Context) error {
	actor, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := h.opCtx(c)
	defer cancel()

	tok, err := h.Coord.IssueMeetupToken(ctx, actor, c.Param("id"))
	if err != nil {
		return txError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"token": tok})
}

type confirmReq struct {
	Token string `json:"token"`
}

// ConfirmMeetup handles POST /v1/meetup/confirm: the counterparty
// submits the scanned token. Free transactions complete here; priced
// ones move on to checkout.
func (h *TransactionHandler) ConfirmMeetup(c echo.Context) error {
	actor, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req confirmReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token required"})
	}
	ctx, cancel := h.opCtx(c)
	defer cancel()

	out, err := h.Coord.ConfirmMeetup(ctx, actor, strings.TrimSpace(req.Token))
	if err != nil {
		return txError(c, err)
	}
	if out.Status == model.StatusCompleted {
		h.publishCompleted(ctx, actor, out.ListingID, 0, false)
	}
	return c.JSON(http.StatusOK, out)
}

// BeginCheckout handles POST /v1/listings/:id/checkout and returns the
// payment intent's client secret for capture on the device.
func (h *TransactionHandler) BeginCheckout(c echo.Context) error {
	actor, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := h.opCtx(c)
	defer cancel()

	intent, err := h.Coord.BeginCheckout(ctx, actor, c.Param("id"))
	if err != nil {
		return txError(c, err)
	}
	return c.JSON(http.StatusOK, intent)
}

type paymentResultReq struct {
	Status      string `json:"status"` // success | failed
	AmountCents int64  `json:"amount_cents"`
}

// PaymentResult handles POST /v1/listings/:id/payment-result: the
// counterparty's device reports how the capture ended. Success
// completes the transaction; failure parks it in unpaid for a retry.
func (h *TransactionHandler) PaymentResult(c echo.Context) error {
	actor, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req paymentResultReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := h.opCtx(c)
	defer cancel()

	listingID := c.Param("id")
	switch strings.ToLower(strings.TrimSpace(req.Status)) {
	case "success":
		p, err := h.Coord.CompletePayment(ctx, actor, listingID, req.AmountCents)
		if err != nil {
			return txError(c, err)
		}
		h.publishCompleted(ctx, actor, listingID, p.AmountCents, true)
		return c.JSON(http.StatusOK, p)
	case "failed", "cancelled":
		if err := h.Coord.FailPayment(ctx, actor, listingID); err != nil {
			return txError(c, err)
		}
		return c.JSON(http.StatusOK, echo.Map{"listing_id": listingID, "status": model.StatusUnpaid})
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "status must be success or failed"})
	}
}

// Session handles GET /v1/listings/:id/session, visible to the two
// participants only. Once a capture succeeded the payment receipt is
// included alongside the session.
func (h *TransactionHandler) Session(c echo.Context) error {
	actor, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := h.opCtx(c)
	defer cancel()

	s, err := h.Coord.Session(ctx, actor, c.Param("id"))
	if err != nil {
		if errors.Is(err, transaction.ErrListingNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "no session for listing"})
		}
		return txError(c, err)
	}
	resp := echo.Map{"session": s}
	if p, err := h.Payments.GetByListing(ctx, s.ListingID); err == nil {
		resp["payment"] = p
	}
	return c.JSON(http.StatusOK, resp)
}

// publishReserved emits the reservation event. Broker failures are
// logged by the publisher and never fail the request: the transition
// has already committed.
func (h *TransactionHandler) publishReserved(s model.TransactionSession) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		l, _ := h.Listings.GetByID(ctx, s.ListingID)
		_ = queue_publisher.PublishListingReserved(ctx, queue.ListingReservedEvent{
			ListingID:  s.ListingID,
			Title:      l.Title,
			SellerID:   s.SellerID,
			BuyerID:    s.BuyerID,
			ChannelID:  s.ChannelID,
			ReservedAt: time.Now().UTC().Format(time.RFC3339),
		})
	}()
}

// publishCompleted emits the completion event for both free and paid
// outcomes.
func (h *TransactionHandler) publishCompleted(ctx context.Context, buyerID, listingID string, amountCents int64, paid bool) {
	s, err := h.Coord.Session(ctx, buyerID, listingID)
	if err != nil {
		s = model.TransactionSession{ListingID: listingID, BuyerID: buyerID}
	}
	go func() {
		pctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		l, _ := h.Listings.GetByID(pctx, listingID)
		_ = queue_publisher.PublishTransactionCompleted(pctx, queue.TransactionCompletedEvent{
			ListingID:   listingID,
			Title:       l.Title,
			Mode:        l.Mode,
			SellerID:    s.SellerID,
			BuyerID:     s.BuyerID,
			AmountCents: amountCents,
			Paid:        paid,
			CompletedAt: time.Now().UTC().Format(time.RFC3339),
		})
	}()
}
