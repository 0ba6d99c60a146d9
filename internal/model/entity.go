package model

import (
	"fmt"

	"github.com/google/uuid"
)

// Collection names used by the remote store and the local cache.
const (
	CollectionUsers           = "users"
	CollectionClubs           = "clubs"
	CollectionMatches         = "matches"
	CollectionReportTemplates = "reportTemplates"
	CollectionReports         = "reports"
	CollectionPointHistory    = "pointHistory"
	CollectionRewardItems     = "rewardItems"
	CollectionRedemptions     = "redemptions"
)

// Entity is implemented by every record that can be stored by ID.
type Entity interface {
	EntityID() string
	Validate() error
}

// NewID returns a fresh random identifier.
func NewID() string {
	return uuid.NewString()
}

// Filename returns the canonical record filename for an entity ID: {id}.json
func Filename(id string) string {
	return fmt.Sprintf("%s.json", id)
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the value behind p, or "" when p is nil.
func Deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
