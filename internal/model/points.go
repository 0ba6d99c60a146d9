package model

import (
	"fmt"
	"time"
)

// PointType classifies a PointHistory record.
type PointType string

const (
	PointsEarned   PointType = "earned"
	PointsRedeemed PointType = "redeemed"
	PointsExpired  PointType = "expired"
)

// IsValid reports whether t is a known point type.
func (t PointType) IsValid() bool {
	switch t {
	case PointsEarned, PointsRedeemed, PointsExpired:
		return true
	}
	return false
}

// PointHistory is an immutable signed delta applied to a user's balance.
type PointHistory struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Amount      int       `json:"amount"`
	Type        PointType `json:"type"`
	Description string    `json:"description"`
	RelatedID   *string   `json:"relatedId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// EntityID implements Entity.
func (h PointHistory) EntityID() string { return h.ID }

// Validate checks if the PointHistory has valid field values.
func (h PointHistory) Validate() error {
	if h.ID == "" {
		return fmt.Errorf("id is required")
	}
	if h.UserID == "" {
		return fmt.Errorf("userId is required")
	}
	if !h.Type.IsValid() {
		return fmt.Errorf("invalid point type: %q", h.Type)
	}
	if h.Amount == 0 {
		return fmt.Errorf("amount must not be zero")
	}
	if h.CreatedAt.IsZero() {
		return fmt.Errorf("createdAt is required")
	}
	return nil
}
