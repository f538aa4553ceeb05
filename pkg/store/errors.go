package store

import "errors"

// Sentinel errors for pool store operations.
var (
	// ErrEmpty indicates the freelist has no items to borrow. The message is
	// part of the wire contract; clients match on it.
	ErrEmpty = errors.New("No items available in the freelist")

	// ErrUnauthorized indicates the presented borrow token does not match
	// the one recorded in the ledger for the item.
	ErrUnauthorized = errors.New("borrow token does not match")

	// ErrNotFound indicates the item has no ledger entry (or, for admin
	// deletes, is absent from the targeted set).
	ErrNotFound = errors.New("item not found")
)
