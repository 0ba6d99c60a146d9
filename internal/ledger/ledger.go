// Package ledger maintains user point balances.
//
// Every balance change runs in one remote transaction that reads the user,
// computes max(0, balance+delta), writes the user, and appends exactly one
// PointHistory record. Conflicting transactions are retried a bounded number
// of times; a rejected redemption never writes anything.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"time"

	"github.com/fanscout/scout/internal/model"
	"github.com/fanscout/scout/internal/remote"
)

// Config controls retry behavior.
type Config struct {
	// MaxAttempts bounds how often a conflicting transaction is run
	MaxAttempts int
	// Backoff is the base delay between attempts; it doubles per attempt
	// and is jittered
	Backoff time.Duration
}

// DefaultConfig returns the default retry settings.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 5,
		Backoff:     10 * time.Millisecond,
	}
}

// Event describes a committed balance change.
type Event struct {
	UserID      string          `json:"userId"`
	Delta       int             `json:"delta"`
	Balance     int             `json:"balance"`
	Type        model.PointType `json:"type"`
	Description string          `json:"description"`
	At          time.Time       `json:"at"`
}

// Notifier receives an Event after each committed balance change.
type Notifier interface {
	PointsChanged(ev Event)
}

// Ledger applies point awards and redemptions against the remote store.
type Ledger struct {
	store    remote.Store
	cfg      Config
	logger   *log.Logger
	notifier Notifier
	now      func() time.Time
}

// New creates a Ledger.
//
// If logger is nil, a default logger writing to stderr is used.
func New(store remote.Store, cfg Config, logger *log.Logger) *Ledger {
	if logger == nil {
		logger = log.New(os.Stderr, "[ledger] ", log.LstdFlags)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultConfig().Backoff
	}
	return &Ledger{
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// SetNotifier registers n to receive committed balance changes.
func (l *Ledger) SetNotifier(n Notifier) {
	l.notifier = n
}

// Emit forwards ev to the notifier, if any. Callers that commit AwardTx in
// their own transaction call this after the commit succeeds.
func (l *Ledger) Emit(ev Event) {
	if l.notifier != nil {
		l.notifier.PointsChanged(ev)
	}
}

// Award adds amount points to the user and returns the new balance.
func (l *Ledger) Award(ctx context.Context, userID string, amount int, typ model.PointType, description string, relatedID *string) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w (got %d)", ErrInvalidAmount, amount)
	}

	var ev Event
	err := l.transact(ctx, "award", func(tx remote.Tx) error {
		var err error
		ev, err = l.AwardTx(tx, userID, amount, typ, description, relatedID)
		return err
	})
	if err != nil {
		return 0, err
	}

	l.Emit(ev)
	return ev.Balance, nil
}

// AwardTx performs the body of Award inside the caller's transaction.
// The returned Event should be passed to Emit once the transaction commits.
func (l *Ledger) AwardTx(tx remote.Tx, userID string, amount int, typ model.PointType, description string, relatedID *string) (Event, error) {
	if amount <= 0 {
		return Event{}, fmt.Errorf("%w (got %d)", ErrInvalidAmount, amount)
	}
	if !typ.IsValid() {
		return Event{}, fmt.Errorf("invalid point type: %q", typ)
	}

	user, err := readUser(tx, userID)
	if err != nil {
		return Event{}, err
	}
	return l.apply(tx, user, amount, typ, description, relatedID)
}

// Redeem deducts amount points and returns the new balance.
// Returns ErrInsufficientBalance, with nothing written, if the balance is short.
func (l *Ledger) Redeem(ctx context.Context, userID string, amount int, description string) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w (got %d)", ErrInvalidAmount, amount)
	}

	var ev Event
	err := l.transact(ctx, "redeem", func(tx remote.Tx) error {
		var err error
		ev, err = l.redeemTx(tx, userID, amount, description, nil)
		return err
	})
	if err != nil {
		return 0, err
	}

	l.Emit(ev)
	return ev.Balance, nil
}

// RedeemReward exchanges the reward's point cost for a completed
// redemption. The redemption, the history record and the balance change
// are committed together or not at all.
func (l *Ledger) RedeemReward(ctx context.Context, userID, rewardID string) (*model.RewardRedemption, error) {
	var redemption model.RewardRedemption
	var ev Event

	err := l.transact(ctx, "redeem reward", func(tx remote.Tx) error {
		doc, err := tx.Get(model.CollectionRewardItems, rewardID)
		if errors.Is(err, remote.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrRewardNotFound, rewardID)
		}
		if err != nil {
			return fmt.Errorf("failed to read reward %s: %w", rewardID, err)
		}
		var item model.RewardItem
		if err := remote.Decode(doc, &item); err != nil {
			return err
		}
		if !item.IsAvailable {
			return fmt.Errorf("%w: %s is unavailable", ErrRewardNotFound, rewardID)
		}

		now := l.now().UTC()
		code := redemptionCode()
		redemption = model.RewardRedemption{
			ID:             model.NewID(),
			UserID:         userID,
			RewardID:       item.ID,
			PointsUsed:     item.PointCost,
			Status:         model.RedemptionCompleted,
			RedemptionCode: &code,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		ev, err = l.redeemTx(tx, userID, item.PointCost, "Redeemed: "+item.Name, &redemption.ID)
		if err != nil {
			return err
		}

		rdoc, err := remote.Encode(redemption)
		if err != nil {
			return err
		}
		return tx.Set(model.CollectionRedemptions, redemption.ID, rdoc)
	})
	if err != nil {
		return nil, err
	}

	l.Emit(ev)
	return &redemption, nil
}

// Balance returns the user's current point balance.
func (l *Ledger) Balance(ctx context.Context, userID string) (int, error) {
	doc, err := l.store.Get(ctx, model.CollectionUsers, userID)
	if errors.Is(err, remote.ErrNotFound) {
		return 0, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read user %s: %w", userID, err)
	}
	var user model.User
	if err := remote.Decode(doc, &user); err != nil {
		return 0, err
	}
	return user.Points, nil
}

// History returns the user's point history, newest first.
func (l *Ledger) History(ctx context.Context, userID string) ([]model.PointHistory, error) {
	docs, err := l.store.Query(ctx, model.CollectionPointHistory, remote.Query{
		Filters: []remote.Filter{remote.Where("userId", remote.OpEq, userID)},
		OrderBy: "createdAt",
		Desc:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch point history: %w", err)
	}
	return remote.DecodeAll[model.PointHistory](docs)
}

func (l *Ledger) redeemTx(tx remote.Tx, userID string, amount int, description string, relatedID *string) (Event, error) {
	user, err := readUser(tx, userID)
	if err != nil {
		return Event{}, err
	}
	if user.Points < amount {
		return Event{}, fmt.Errorf("%w: balance %d, need %d", ErrInsufficientBalance, user.Points, amount)
	}
	return l.apply(tx, user, -amount, model.PointsRedeemed, description, relatedID)
}

// apply writes the floored balance and its history record.
func (l *Ledger) apply(tx remote.Tx, user model.User, delta int, typ model.PointType, description string, relatedID *string) (Event, error) {
	now := l.now().UTC()
	balance := max(0, user.Points+delta)

	entry := model.PointHistory{
		ID:          model.NewID(),
		UserID:      user.ID,
		Amount:      delta,
		Type:        typ,
		Description: description,
		RelatedID:   relatedID,
		CreatedAt:   now,
	}
	doc, err := remote.Encode(entry)
	if err != nil {
		return Event{}, err
	}

	if err := tx.Update(model.CollectionUsers, user.ID, remote.Document{
		"points":    balance,
		"updatedAt": now.Format(time.RFC3339Nano),
	}); err != nil {
		return Event{}, fmt.Errorf("failed to update balance: %w", err)
	}
	if err := tx.Set(model.CollectionPointHistory, entry.ID, doc); err != nil {
		return Event{}, fmt.Errorf("failed to append history: %w", err)
	}

	return Event{
		UserID:      user.ID,
		Delta:       delta,
		Balance:     balance,
		Type:        typ,
		Description: description,
		At:          now,
	}, nil
}

const maxBackoffShift = 6

// transact runs fn in a store transaction, retrying conflicts with
// jittered exponential backoff.
func (l *Ledger) transact(ctx context.Context, op string, fn func(tx remote.Tx) error) error {
	var lastErr error
	for attempt := 1; attempt <= l.cfg.MaxAttempts; attempt++ {
		err := l.store.Transaction(ctx, fn)
		if err == nil {
			return nil
		}
		if !remote.IsRetryable(err) {
			return err
		}
		lastErr = err

		if attempt == l.cfg.MaxAttempts {
			break
		}
		l.logger.Printf("Retrying %s (attempt %d/%d): %v", op, attempt, l.cfg.MaxAttempts, err)

		delay := l.cfg.Backoff << min(attempt-1, maxBackoffShift)
		delay += rand.N(delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %w", ErrTransactionFailed, op, ctx.Err())
		}
	}
	return fmt.Errorf("%w: %s after %d attempts: %w", ErrTransactionFailed, op, l.cfg.MaxAttempts, lastErr)
}

func readUser(tx remote.Tx, userID string) (model.User, error) {
	doc, err := tx.Get(model.CollectionUsers, userID)
	if errors.Is(err, remote.ErrNotFound) {
		return model.User{}, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("failed to read user %s: %w", userID, err)
	}
	var user model.User
	if err := remote.Decode(doc, &user); err != nil {
		return model.User{}, err
	}
	return user, nil
}

// redemptionCode returns a code of the form REWARD-NNNNN.
func redemptionCode() string {
	return fmt.Sprintf("REWARD-%05d", 10000+rand.IntN(90000))
}
