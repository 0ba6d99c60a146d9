package model

import (
	"fmt"
	"time"
)

// User is a fan (or club staff member) with a point balance.
type User struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	Username        string    `json:"username"`
	FavoriteClub    *string   `json:"favoriteClub,omitempty"`
	Region          *string   `json:"region,omitempty"`
	Bio             *string   `json:"bio,omitempty"`
	ProfileImageURL *string   `json:"profileImageUrl,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
	IsClubUser      bool      `json:"isClubUser"`
	Points          int       `json:"points"`
}

// EntityID implements Entity.
func (u User) EntityID() string { return u.ID }

// Validate checks if the User has valid field values.
func (u User) Validate() error {
	if u.ID == "" {
		return fmt.Errorf("id is required")
	}
	if u.Email == "" {
		return fmt.Errorf("email is required")
	}
	if u.Points < 0 {
		return fmt.Errorf("points must not be negative (got %d)", u.Points)
	}
	return nil
}
