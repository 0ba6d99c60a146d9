package ledger

import "errors"

var (
	// ErrInsufficientBalance is returned when a redemption exceeds the
	// user's balance. Nothing is written.
	ErrInsufficientBalance = errors.New("insufficient points")

	// ErrRewardNotFound is returned when a reward is absent or unavailable.
	ErrRewardNotFound = errors.New("reward not found")

	// ErrUserNotFound is returned when the user document does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidAmount is returned for non-positive amounts.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrTransactionFailed is returned when a balance update kept
	// conflicting after every retry.
	ErrTransactionFailed = errors.New("points transaction failed")
)
