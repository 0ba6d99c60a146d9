// Package schedule lists matches fans can attend, with calendar and
// natural-language date filters.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"slices"
	"time"

	"github.com/fanscout/scout/internal/cache"
	"github.com/fanscout/scout/internal/model"
	"github.com/fanscout/scout/internal/remote"
)

// ErrMatchNotFound is returned when a match does not exist.
var ErrMatchNotFound = errors.New("match not found")

// Service is the schedule façade.
type Service struct {
	remote remote.Store
	cache  *cache.Store
	logger *log.Logger
	now    func() time.Time
}

// New creates a Service. Date windows are computed in the local time zone.
//
// If logger is nil, a default logger writing to stderr is used.
func New(store remote.Store, local *cache.Store, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(os.Stderr, "[schedule] ", log.LstdFlags)
	}
	return &Service{remote: store, cache: local, logger: logger, now: time.Now}
}

// Window resolves the date part of f. ok is false when f has no date.
func (s *Service) Window(f Filter) (w Window, ok bool, err error) {
	now := s.now()
	switch {
	case f.Phrase != "":
		w, err = PhraseRange(f.Phrase, now)
	case f.Date != "":
		w, err = f.Date.Range(now)
	default:
		return Window{}, false, nil
	}
	if err != nil {
		return Window{}, false, err
	}
	return w, true, nil
}

// Matches returns matches satisfying f, ordered by kick-off.
func (s *Service) Matches(ctx context.Context, f Filter) ([]model.Match, error) {
	w, dated, err := s.Window(f)
	if err != nil {
		return nil, err
	}

	var q remote.Query
	q.OrderBy = "date"
	if f.Region != "" {
		q.Filters = append(q.Filters, remote.Where("region", remote.OpEq, f.Region))
	}
	if f.Category != "" {
		q.Filters = append(q.Filters, remote.Where("category", remote.OpEq, f.Category))
	}
	if dated {
		q.Filters = append(q.Filters,
			remote.Where("date", remote.OpGte, w.Start),
			remote.Where("date", remote.OpLt, w.End))
	}

	matches, err := s.query(ctx, q)
	if remote.IsRetryable(err) {
		s.logger.Printf("WARNING: Listing cached matches, remote unavailable: %v", err)
		return s.cached(func(m model.Match) bool {
			return (f.Region == "" || m.Region == f.Region) &&
				(f.Category == "" || m.Category == f.Category) &&
				(!dated || w.Contains(m.Date))
		})
	}
	return matches, err
}

// Match returns one match.
func (s *Service) Match(ctx context.Context, id string) (model.Match, error) {
	doc, err := s.remote.Get(ctx, model.CollectionMatches, id)
	switch {
	case errors.Is(err, remote.ErrNotFound):
		return model.Match{}, fmt.Errorf("%w: %s", ErrMatchNotFound, id)
	case remote.IsRetryable(err):
		m, ok, cerr := s.cache.Matches.Get(id)
		if cerr != nil || !ok {
			return model.Match{}, fmt.Errorf("failed to fetch match %s: %w", id, err)
		}
		return m, nil
	case err != nil:
		return model.Match{}, fmt.Errorf("failed to fetch match %s: %w", id, err)
	}

	var m model.Match
	if err := remote.Decode(doc, &m); err != nil {
		return model.Match{}, err
	}
	s.store([]model.Match{m})
	return m, nil
}

// InterestedClubMatches returns the matches a club has flagged, ordered by
// kick-off.
func (s *Service) InterestedClubMatches(ctx context.Context, clubID string) ([]model.Match, error) {
	matches, err := s.query(ctx, remote.Query{
		Filters: []remote.Filter{remote.Where("interestedClubs", remote.OpContains, clubID)},
		OrderBy: "date",
	})
	if remote.IsRetryable(err) {
		return s.cached(func(m model.Match) bool { return slices.Contains(m.InterestedClubs, clubID) })
	}
	return matches, err
}

func (s *Service) query(ctx context.Context, q remote.Query) ([]model.Match, error) {
	docs, err := s.remote.Query(ctx, model.CollectionMatches, q)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch matches: %w", err)
	}
	matches, err := remote.DecodeAll[model.Match](docs)
	if err != nil {
		return nil, err
	}
	s.store(matches)
	return matches, nil
}

func (s *Service) store(matches []model.Match) {
	for _, m := range matches {
		if err := s.cache.Matches.Put(m); err != nil {
			s.logger.Printf("WARNING: Failed to cache match %s: %v", m.ID, err)
			return
		}
	}
}

func (s *Service) cached(keep func(m model.Match) bool) ([]model.Match, error) {
	matches, err := s.cache.Matches.List()
	if err != nil {
		return nil, fmt.Errorf("failed to read cached matches: %w", err)
	}
	matches = slices.DeleteFunc(matches, func(m model.Match) bool { return !keep(m) })
	slices.SortStableFunc(matches, func(a, b model.Match) int { return a.Date.Compare(b.Date) })
	return matches, nil
}
