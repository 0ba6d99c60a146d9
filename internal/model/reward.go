package model

import (
	"fmt"
	"time"
)

// RewardCategory groups catalogue items.
type RewardCategory string

const (
	RewardTicket      RewardCategory = "ticket"
	RewardMerchandise RewardCategory = "merchandise"
	RewardExperience  RewardCategory = "experience"
	RewardDiscount    RewardCategory = "discount"
)

// IsValid reports whether c is a known reward category.
func (c RewardCategory) IsValid() bool {
	switch c {
	case RewardTicket, RewardMerchandise, RewardExperience, RewardDiscount:
		return true
	}
	return false
}

// RewardItem is a catalogue entry redeemable for points.
type RewardItem struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	PointCost   int            `json:"pointCost"`
	ImageURL    *string        `json:"imageUrl,omitempty"`
	Category    RewardCategory `json:"category"`
	IsAvailable bool           `json:"isAvailable"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// EntityID implements Entity.
func (r RewardItem) EntityID() string { return r.ID }

// Validate checks if the RewardItem has valid field values.
func (r RewardItem) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("id is required")
	}
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	if r.PointCost <= 0 {
		return fmt.Errorf("pointCost must be positive (got %d)", r.PointCost)
	}
	if !r.Category.IsValid() {
		return fmt.Errorf("invalid reward category: %q", r.Category)
	}
	return nil
}

// RedemptionStatus is the state of a RewardRedemption.
type RedemptionStatus string

const (
	RedemptionPending   RedemptionStatus = "pending"
	RedemptionCompleted RedemptionStatus = "completed"
	RedemptionCancelled RedemptionStatus = "cancelled"
)

// RewardRedemption records points exchanged for a reward.
type RewardRedemption struct {
	ID             string           `json:"id"`
	UserID         string           `json:"userId"`
	RewardID       string           `json:"rewardId"`
	PointsUsed     int              `json:"pointsUsed"`
	Status         RedemptionStatus `json:"status"`
	RedemptionCode *string          `json:"redemptionCode,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// EntityID implements Entity.
func (r RewardRedemption) EntityID() string { return r.ID }

// Validate checks if the RewardRedemption has valid field values.
func (r RewardRedemption) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("id is required")
	}
	if r.UserID == "" || r.RewardID == "" {
		return fmt.Errorf("userId and rewardId are required")
	}
	if r.PointsUsed <= 0 {
		return fmt.Errorf("pointsUsed must be positive (got %d)", r.PointsUsed)
	}
	return nil
}
