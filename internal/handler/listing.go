package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/unithrift/marketplace-api/internal/model"
	"github.com/unithrift/marketplace-api/internal/repository"
)

// ListingHandler bundles dependencies for listing CRUD endpoints.
type ListingHandler struct {
	Listings *repository.ListingRepo
}

func NewListingHandler(listings *repository.ListingRepo) *ListingHandler {
	if listings == nil {
		panic("nil repository passed to NewListingHandler")
	}
	return &ListingHandler{Listings: listings}
}

// getUserID extracts the authenticated user's ID from echo.Context. The
// JWT middleware stores it as a string UUID.
func getUserID(c echo.Context) (string, error) {
	if s, ok := c.Get("user_id").(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("invalid user_id in context")
}

type createListingReq struct {
	Title             string `json:"title"`
	Description       string `json:"description"`
	Mode              string `json:"mode"` // sell | rent | donate
	SellingPriceCents int64  `json:"selling_price_cents"`
	RentalPriceCents  int64  `json:"rental_price_cents"`
	DepositCents      int64  `json:"deposit_cents"`
}

// Create handles POST /v1/listings.
func (h *ListingHandler) Create(c echo.Context) error {
	ownerID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req createListingReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "title is required"})
	}
	mode := strings.ToLower(strings.TrimSpace(req.Mode))
	if !model.ValidMode(mode) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "mode must be sell, rent or donate"})
	}
	if req.SellingPriceCents < 0 || req.RentalPriceCents < 0 || req.DepositCents < 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "prices must not be negative"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	l := model.Listing{
		ID:                uuid.NewString(),
		OwnerID:           ownerID,
		Title:             title,
		Description:       strings.TrimSpace(req.Description),
		Mode:              mode,
		SellingPriceCents: req.SellingPriceCents,
		RentalPriceCents:  req.RentalPriceCents,
		DepositCents:      req.DepositCents,
		Status:            model.StatusAvailable,
	}
	if err := h.Listings.Create(ctx, l); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create listing"})
	}
	created, err := h.Listings.GetByID(ctx, l.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not load listing"})
	}
	return c.JSON(http.StatusCreated, created)
}

// Get handles GET /v1/listings/:id. Public: anyone can view a listing,
// whatever its state.
func (h *ListingHandler) Get(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	l, err := h.Listings.GetByID(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "listing not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	return c.JSON(http.StatusOK, l)
}

// Browse handles GET /v1/listings and returns available listings,
// newest first.
func (h *ListingHandler) Browse(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Listings.ListAvailable(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Mine handles GET /v1/my-listings and returns every listing the
// authenticated user created, in any state.
func (h *ListingHandler) Mine(c echo.Context) error {
	ownerID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Listings.ListByOwner(ctx, ownerID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Delete handles DELETE /v1/listings/:id. Only the owner may delete,
// and only while the listing is still available; anything mid-
// transaction is protected.
func (h *ListingHandler) Delete(c echo.Context) error {
	ownerID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Listings.Delete(ctx, c.Param("id"), ownerID); err != nil {
		status, msg := deleteFailure(err)
		return c.JSON(status, echo.Map{"error": msg})
	}
	return c.NoContent(http.StatusNoContent)
}

// deleteFailure maps a listing delete error onto its HTTP response.
func deleteFailure(err error) (int, string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "listing not found"
	case errors.Is(err, repository.ErrNotOwner):
		return http.StatusForbidden, "not your listing"
	case errors.Is(err, repository.ErrStale):
		return http.StatusConflict, "listing has an active transaction"
	default:
		return http.StatusInternalServerError, "delete failed"
	}
}
