package models

import "errors"

var (
	// Identity or store not initialized yet. Callers wait and retry.
	ErrNotReady = errors.New("session not ready")

	ErrEmptyCart = errors.New("cart is empty")

	// Another submission of the same cart has not finished yet.
	ErrCheckoutInProgress = errors.New("checkout already in progress")

	// Submission or status write rejected by the store.
	ErrWriteFailed = errors.New("write failed")

	ErrNotFound = errors.New("order not found")

	// Transport error from the store subscription.
	ErrSubscriptionFailed = errors.New("subscription failed")

	ErrInvalidStatus = errors.New("invalid order status")
)
