// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// transaction coordinator to distinguish between failure scenarios
// without inspecting driver-specific errors. ErrStale in particular is
// how a conditional status update reports that the guard no longer held
// at write time.
package repository

import "errors"

// ErrNotFound is returned when a listing, session or payment row does
// not exist.
var ErrNotFound = errors.New("not found")

// ErrStale is returned when a conditional write matched zero rows
// because another writer already advanced the record. Callers should
// re-read and re-present current state rather than retry blindly.
var ErrStale = errors.New("stale state")

// ErrDuplicate is returned when an insert violates a uniqueness
// constraint, such as writing a second payment for the same listing.
var ErrDuplicate = errors.New("duplicate record")

// ErrNotOwner is returned when a write restricted to the record's owner
// was attempted by someone else.
var ErrNotOwner = errors.New("not the owner")
