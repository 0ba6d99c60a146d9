package model

import (
	"fmt"
	"time"
)

// ReportStatus is the lifecycle state of a ScoutingReport.
type ReportStatus string

const (
	ReportDraft     ReportStatus = "draft"
	ReportSubmitted ReportStatus = "submitted"
	ReportReviewed  ReportStatus = "reviewed"
)

// IsValid reports whether s is a known report status.
func (s ReportStatus) IsValid() bool {
	switch s {
	case ReportDraft, ReportSubmitted, ReportReviewed:
		return true
	}
	return false
}

// CanTransition reports whether a report may move from s to next.
// Transitions are one-directional: draft -> submitted -> reviewed.
func (s ReportStatus) CanTransition(next ReportStatus) bool {
	switch s {
	case ReportDraft:
		return next == ReportSubmitted
	case ReportSubmitted:
		return next == ReportReviewed
	}
	return false
}

// Evaluation is a single rating embedded in a ScoutingReport.
type Evaluation struct {
	ID      string  `json:"id"`
	ItemID  string  `json:"itemId"`
	Rating  int     `json:"rating"`
	Comment *string `json:"comment,omitempty"`
}

// ScoutingReport is a fan's evaluation of a player in a match, addressed to a club.
type ScoutingReport struct {
	ID             string       `json:"id"`
	UserID         string       `json:"userId"`
	ClubID         string       `json:"clubId"`
	PlayerID       string       `json:"playerId"`
	MatchID        string       `json:"matchId"`
	TemplateID     string       `json:"templateId"`
	Status         ReportStatus `json:"status"`
	Evaluations    []Evaluation `json:"evaluations"`
	OverallComment *string      `json:"overallComment,omitempty"`
	MediaURLs      []string     `json:"mediaUrls"`
	Likes          int          `json:"likes"`
	Feedback       *string      `json:"feedback,omitempty"`
	PointsAwarded  int          `json:"pointsAwarded"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// EntityID implements Entity.
func (r ScoutingReport) EntityID() string { return r.ID }

// Validate checks if the ScoutingReport has valid field values.
func (r ScoutingReport) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("id is required")
	}
	if r.UserID == "" {
		return fmt.Errorf("userId is required")
	}
	if r.ClubID == "" {
		return fmt.Errorf("clubId is required")
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("invalid report status: %q", r.Status)
	}
	if r.Likes < 0 {
		return fmt.Errorf("likes must not be negative (got %d)", r.Likes)
	}
	if r.PointsAwarded < 0 {
		return fmt.Errorf("pointsAwarded must not be negative (got %d)", r.PointsAwarded)
	}
	for _, e := range r.Evaluations {
		if e.ItemID == "" {
			return fmt.Errorf("evaluation %s: itemId is required", e.ID)
		}
		if e.Rating < 0 {
			return fmt.Errorf("evaluation %s: rating must not be negative", e.ID)
		}
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (r *ScoutingReport) SetDefaults() {
	if r.ID == "" {
		r.ID = NewID()
	}
	if r.Status == "" {
		r.Status = ReportDraft
	}
	if r.Evaluations == nil {
		r.Evaluations = []Evaluation{}
	}
	if r.MediaURLs == nil {
		r.MediaURLs = []string{}
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = now
	}
}

// EvaluationItem is one rated criterion of a ReportTemplate.
type EvaluationItem struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	MaxRating   int     `json:"maxRating"`
}

// ReportTemplate is a club-defined list of evaluation criteria.
type ReportTemplate struct {
	ID              string           `json:"id"`
	ClubID          string           `json:"clubId"`
	Name            string           `json:"name"`
	Description     *string          `json:"description,omitempty"`
	EvaluationItems []EvaluationItem `json:"evaluationItems"`
	IsActive        bool             `json:"isActive"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

// EntityID implements Entity.
func (t ReportTemplate) EntityID() string { return t.ID }

// Validate checks if the ReportTemplate has valid field values.
func (t ReportTemplate) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if t.ClubID == "" {
		return fmt.Errorf("clubId is required")
	}
	for _, item := range t.EvaluationItems {
		if item.MaxRating <= 0 {
			return fmt.Errorf("item %s: maxRating must be positive", item.ID)
		}
	}
	return nil
}

// Item returns the evaluation item with the given ID.
func (t ReportTemplate) Item(id string) (EvaluationItem, bool) {
	for _, item := range t.EvaluationItems {
		if item.ID == id {
			return item, true
		}
	}
	return EvaluationItem{}, false
}

// DefaultMaxRating is used when a template item omits maxRating.
const DefaultMaxRating = 5
