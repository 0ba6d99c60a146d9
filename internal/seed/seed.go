// Package seed loads fixture data (users, clubs, matches, rewards and
// report templates) from YAML and writes it to the remote store.
package seed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fanscout/scout/internal/model"
	"github.com/fanscout/scout/internal/remote"
)

// Document is the parsed content of a seed file.
//
// Records use the same field names as the stored documents:
//
//	users:
//	  - id: u1
//	    email: fan@example.com
//	    points: 250
//	reward_items:
//	  - id: scarf
//	    name: Club scarf
//	    pointCost: 100
//	    category: merchandise
type Document struct {
	Users           []model.User           `json:"users"`
	Clubs           []model.Club           `json:"clubs"`
	Matches         []model.Match          `json:"matches"`
	RewardItems     []model.RewardItem     `json:"reward_items"`
	ReportTemplates []model.ReportTemplate `json:"report_templates"`
}

// Options controls Apply.
type Options struct {
	DryRun bool // Validate and count without writing
}

// Result contains statistics about an Apply run.
type Result struct {
	Written map[string]int
	Errors  []string
}

// Total returns the number of records written (or that would be).
func (r *Result) Total() int {
	n := 0
	for _, c := range r.Written {
		n += c
	}
	return n
}

// Load reads and parses a seed file.
func Load(path string) (*Document, error) {
	// #nosec G304 - controlled path from CLI
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return Parse(data)
}

// defaultTrue lists boolean fields that default to true when omitted.
var defaultTrue = map[string]string{
	"reward_items":     "isAvailable",
	"report_templates": "isActive",
}

// Parse decodes YAML seed data and fills defaults.
func Parse(data []byte) (*Document, error) {
	var raw map[string][]map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid seed YAML: %w", err)
	}
	for section, field := range defaultTrue {
		for _, rec := range raw[section] {
			if _, ok := rec[field]; !ok {
				rec[field] = true
			}
		}
	}

	// Round-trip through JSON so the model's field tags apply
	js, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to convert seed data: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(js))
	dec.DisallowUnknownFields()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid seed data: %w", err)
	}

	doc.setDefaults(time.Now().UTC())
	return &doc, nil
}

func (d *Document) setDefaults(now time.Time) {
	stamp := func(created, updated *time.Time) {
		if created.IsZero() {
			*created = now
		}
		if updated.IsZero() {
			*updated = *created
		}
	}
	for i := range d.Users {
		stamp(&d.Users[i].CreatedAt, &d.Users[i].UpdatedAt)
	}
	for i := range d.Clubs {
		stamp(&d.Clubs[i].CreatedAt, &d.Clubs[i].UpdatedAt)
	}
	for i := range d.Matches {
		m := &d.Matches[i]
		stamp(&m.CreatedAt, &m.UpdatedAt)
		if m.Status == "" {
			m.Status = model.MatchScheduled
		}
		if m.InterestedClubs == nil {
			m.InterestedClubs = []string{}
		}
	}
	for i := range d.RewardItems {
		stamp(&d.RewardItems[i].CreatedAt, &d.RewardItems[i].UpdatedAt)
	}
	for i := range d.ReportTemplates {
		t := &d.ReportTemplates[i]
		stamp(&t.CreatedAt, &t.UpdatedAt)
		for j := range t.EvaluationItems {
			if t.EvaluationItems[j].MaxRating == 0 {
				t.EvaluationItems[j].MaxRating = model.DefaultMaxRating
			}
		}
	}
}

// Apply validates every record and upserts the valid ones. Invalid records
// are reported in Result.Errors and skipped.
func Apply(ctx context.Context, store remote.Store, doc *Document, opts Options) (*Result, error) {
	result := &Result{Written: make(map[string]int)}

	steps := []struct {
		collection string
		records    []model.Entity
	}{
		{model.CollectionUsers, entities(doc.Users)},
		{model.CollectionClubs, entities(doc.Clubs)},
		{model.CollectionMatches, entities(doc.Matches)},
		{model.CollectionRewardItems, entities(doc.RewardItems)},
		{model.CollectionReportTemplates, entities(doc.ReportTemplates)},
	}

	for _, step := range steps {
		for _, rec := range step.records {
			if err := rec.Validate(); err != nil {
				result.Errors = append(result.Errors,
					fmt.Sprintf("invalid %s record %q: %v", step.collection, rec.EntityID(), err))
				continue
			}
			if opts.DryRun {
				result.Written[step.collection]++
				continue
			}

			data, err := remote.Encode(rec)
			if err != nil {
				result.Errors = append(result.Errors,
					fmt.Sprintf("failed to encode %s/%s: %v", step.collection, rec.EntityID(), err))
				continue
			}
			if err := store.Set(ctx, step.collection, rec.EntityID(), data); err != nil {
				return result, fmt.Errorf("failed to write %s/%s: %w", step.collection, rec.EntityID(), err)
			}
			result.Written[step.collection]++
		}
	}

	return result, nil
}

func entities[T model.Entity](records []T) []model.Entity {
	out := make([]model.Entity, len(records))
	for i, r := range records {
		out[i] = r
	}
	return out
}
