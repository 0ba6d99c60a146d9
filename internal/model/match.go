package model

import (
	"fmt"
	"time"
)

// MatchStatus is the state of a scheduled match.
type MatchStatus string

const (
	MatchScheduled MatchStatus = "scheduled"
	MatchLive      MatchStatus = "live"
	MatchCompleted MatchStatus = "completed"
	MatchCancelled MatchStatus = "cancelled"
)

// IsValid reports whether s is a known match status.
func (s MatchStatus) IsValid() bool {
	switch s {
	case MatchScheduled, MatchLive, MatchCompleted, MatchCancelled:
		return true
	}
	return false
}

// Club is a team that publishes report templates and reviews reports.
type Club struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	LogoURL     *string   `json:"logoUrl,omitempty"`
	Description *string   `json:"description,omitempty"`
	Category    string    `json:"category"` // J1, J2, J3, JFL, university...
	Region      string    `json:"region"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// EntityID implements Entity.
func (c Club) EntityID() string { return c.ID }

// Validate checks if the Club has valid field values.
func (c Club) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required")
	}
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// Match is a fixture fans can attend and scout.
type Match struct {
	ID              string      `json:"id"`
	HomeTeamID      string      `json:"homeTeamId"`
	AwayTeamID      string      `json:"awayTeamId"`
	Date            time.Time   `json:"date"`
	Venue           string      `json:"venue"`
	Category        string      `json:"category"`
	Region          string      `json:"region,omitempty"`
	Status          MatchStatus `json:"status"`
	InterestedClubs []string    `json:"interestedClubs"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// EntityID implements Entity.
func (m Match) EntityID() string { return m.ID }

// Validate checks if the Match has valid field values.
func (m Match) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("id is required")
	}
	if m.HomeTeamID == "" || m.AwayTeamID == "" {
		return fmt.Errorf("home and away teams are required")
	}
	if m.Date.IsZero() {
		return fmt.Errorf("date is required")
	}
	if !m.Status.IsValid() {
		return fmt.Errorf("invalid match status: %q", m.Status)
	}
	return nil
}
