// Package transaction implements the listing transaction coordinator:
// the state machine that moves a listing through reservation, meetup
// confirmation and payment, acting on behalf of an explicit identity
// and never assuming it is the only writer.
package transaction

import "errors"

// Coordinator failure conditions. Handlers translate these into
// role-appropriate HTTP responses; none of them is fatal to the process
// and every one leaves the listing unchanged (MarkUnpaid excepted,
// which is itself the recorded failure outcome).
var (
	// ErrUnauthorized means the acting identity does not hold the role
	// the attempted transition requires.
	ErrUnauthorized = errors.New("not permitted for this transition")

	// ErrInvalidToken means the meetup token is structurally invalid or
	// carries the wrong kind discriminator.
	ErrInvalidToken = errors.New("invalid meetup token")

	// ErrTokenMismatch means the token decoded correctly but its claims
	// do not match the scanning identity or the live listing record.
	ErrTokenMismatch = errors.New("meetup token does not match")

	// ErrStaleState means the transition guard no longer holds because
	// another party already advanced the listing. Refresh and re-present
	// current state; do not retry blindly.
	ErrStaleState = errors.New("listing state has moved on")

	// ErrPaymentFailed wraps payment collaborator failures and amount
	// mismatches. Retryable by re-invoking the payment transition.
	ErrPaymentFailed = errors.New("payment failed")

	// ErrTimeout marks a transient network failure; the attempted
	// transition had no effect and may be retried as-is.
	ErrTimeout = errors.New("operation timed out")

	// ErrListingNotFound means the referenced listing does not exist.
	ErrListingNotFound = errors.New("listing not found")

	// ErrInvalidCounterparty rejects a reservation naming the owner
	// themselves (or nobody) as the counterparty.
	ErrInvalidCounterparty = errors.New("invalid counterparty")
)
