// Package report implements scouting report authoring and review.
//
// Reports move one way through draft -> submitted -> reviewed. Drafts are
// edited locally and can be created offline; submission writes through to
// the remote store when it is reachable and otherwise leaves the report in
// the unsynced set for the next push. Review (AddFeedback) is remote-only
// and awards the owner's points in the same transaction.
package report

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"slices"
	"time"

	"github.com/fanscout/scout/internal/cache"
	"github.com/fanscout/scout/internal/ledger"
	"github.com/fanscout/scout/internal/model"
	"github.com/fanscout/scout/internal/remote"
)

// FeedbackDescription labels point history entries created by AddFeedback.
const FeedbackDescription = "Report feedback reward"

const maxAttempts = 3

// Draft holds the author-supplied fields of a new report.
type Draft struct {
	UserID         string
	ClubID         string
	PlayerID       string
	MatchID        string
	TemplateID     string
	Evaluations    []model.Evaluation
	OverallComment string
	MediaURLs      []string
}

// Service is the report façade.
type Service struct {
	remote remote.Store
	cache  *cache.Store
	ledger *ledger.Ledger
	logger *log.Logger
	now    func() time.Time
}

// New creates a Service.
//
// If logger is nil, a default logger writing to stderr is used.
func New(store remote.Store, local *cache.Store, l *ledger.Ledger, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(os.Stderr, "[report] ", log.LstdFlags)
	}
	return &Service{
		remote: store,
		cache:  local,
		ledger: l,
		logger: logger,
		now:    time.Now,
	}
}

// CreateDraft saves a new draft locally, marked unsynced.
func (s *Service) CreateDraft(ctx context.Context, d Draft) (model.ScoutingReport, error) {
	r := model.ScoutingReport{
		UserID:         d.UserID,
		ClubID:         d.ClubID,
		PlayerID:       d.PlayerID,
		MatchID:        d.MatchID,
		TemplateID:     d.TemplateID,
		Status:         model.ReportDraft,
		Evaluations:    d.Evaluations,
		OverallComment: model.StringPtr(d.OverallComment),
		MediaURLs:      d.MediaURLs,
	}
	r.SetDefaults()
	for i := range r.Evaluations {
		if r.Evaluations[i].ID == "" {
			r.Evaluations[i].ID = model.NewID()
		}
	}

	if err := s.checkRatings(ctx, r); err != nil {
		return model.ScoutingReport{}, err
	}
	if err := r.Validate(); err != nil {
		return model.ScoutingReport{}, fmt.Errorf("invalid report: %w", err)
	}
	if err := s.cache.PutReport(r, false); err != nil {
		return model.ScoutingReport{}, fmt.Errorf("failed to save draft: %w", err)
	}
	return r, nil
}

// UpdateDraft applies edit to a draft owned by userID. Only drafts are
// editable; identity, status and review fields are preserved.
func (s *Service) UpdateDraft(ctx context.Context, userID, reportID string, edit func(r *model.ScoutingReport)) (model.ScoutingReport, error) {
	current, err := s.Get(ctx, reportID)
	if err != nil {
		return model.ScoutingReport{}, err
	}
	if current.UserID != userID {
		return model.ScoutingReport{}, fmt.Errorf("%w: %s", ErrNotOwner, reportID)
	}
	if current.Status != model.ReportDraft {
		return model.ScoutingReport{}, fmt.Errorf("%w: %s is %s", ErrReportLocked, reportID, current.Status)
	}

	next := current
	next.Evaluations = slices.Clone(current.Evaluations)
	next.MediaURLs = slices.Clone(current.MediaURLs)
	edit(&next)

	next.ID = current.ID
	next.UserID = current.UserID
	next.Status = current.Status
	next.Likes = current.Likes
	next.Feedback = current.Feedback
	next.PointsAwarded = current.PointsAwarded
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = s.now().UTC()

	if err := s.checkRatings(ctx, next); err != nil {
		return model.ScoutingReport{}, err
	}
	if err := next.Validate(); err != nil {
		return model.ScoutingReport{}, fmt.Errorf("invalid report: %w", err)
	}
	if err := s.cache.PutReport(next, false); err != nil {
		return model.ScoutingReport{}, fmt.Errorf("failed to save draft: %w", err)
	}
	return next, nil
}

// Submit moves a draft to submitted. The report is written to the remote
// store when possible; otherwise it stays unsynced for the next push.
func (s *Service) Submit(ctx context.Context, userID, reportID string) (model.ScoutingReport, error) {
	r, err := s.Get(ctx, reportID)
	if err != nil {
		return model.ScoutingReport{}, err
	}
	if r.UserID != userID {
		return model.ScoutingReport{}, fmt.Errorf("%w: %s", ErrNotOwner, reportID)
	}
	if !r.Status.CanTransition(model.ReportSubmitted) {
		return model.ScoutingReport{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, model.ReportSubmitted)
	}
	if err := s.checkRatings(ctx, r); err != nil {
		return model.ScoutingReport{}, err
	}

	r.Status = model.ReportSubmitted
	r.UpdatedAt = s.now().UTC()

	synced := true
	if err := s.pushReport(ctx, r); err != nil {
		s.logger.Printf("WARNING: Report %s submitted offline, will push later: %v", r.ID, err)
		synced = false
	}
	if err := s.cache.PutReport(r, synced); err != nil {
		return model.ScoutingReport{}, fmt.Errorf("failed to save report: %w", err)
	}
	return r, nil
}

// Like increments a report's like count and returns the new count.
func (s *Service) Like(ctx context.Context, reportID string) (int, error) {
	var likes int
	err := s.transact(ctx, func(tx remote.Tx) error {
		r, err := getReportTx(tx, reportID)
		if err != nil {
			return err
		}
		likes = r.Likes + 1
		return tx.Update(model.CollectionReports, reportID, remote.Document{"likes": likes})
	})
	if err != nil {
		return 0, err
	}

	s.refreshCached(reportID, func(r *model.ScoutingReport) { r.Likes = likes })
	return likes, nil
}

// AddFeedback reviews a submitted report: it records the feedback, sets
// the status to reviewed, and awards points to the owner, all in one
// transaction. A report can be reviewed only once.
func (s *Service) AddFeedback(ctx context.Context, reportID, feedback string, points int) (model.ScoutingReport, error) {
	if points < 0 {
		return model.ScoutingReport{}, fmt.Errorf("%w (got %d)", ledger.ErrInvalidAmount, points)
	}

	var reviewed model.ScoutingReport
	var ev ledger.Event
	err := s.transact(ctx, func(tx remote.Tx) error {
		r, err := getReportTx(tx, reportID)
		if err != nil {
			return err
		}
		if !r.Status.CanTransition(model.ReportReviewed) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, model.ReportReviewed)
		}

		now := s.now().UTC()
		r.Status = model.ReportReviewed
		r.Feedback = &feedback
		r.PointsAwarded = points
		r.UpdatedAt = now

		if err := tx.Update(model.CollectionReports, reportID, remote.Document{
			"status":        string(r.Status),
			"feedback":      feedback,
			"pointsAwarded": points,
			"updatedAt":     now.Format(time.RFC3339Nano),
		}); err != nil {
			return err
		}

		ev = ledger.Event{}
		if points > 0 {
			ev, err = s.ledger.AwardTx(tx, r.UserID, points, model.PointsEarned, FeedbackDescription, &reportID)
			if err != nil {
				return err
			}
		}
		reviewed = r
		return nil
	})
	if err != nil {
		return model.ScoutingReport{}, err
	}

	if points > 0 {
		s.ledger.Emit(ev)
	}
	s.refreshCached(reportID, func(r *model.ScoutingReport) { *r = reviewed })
	return reviewed, nil
}

// Get returns a report. Local unpushed edits take precedence; otherwise
// the remote copy is used, falling back to the cache when offline.
func (s *Service) Get(ctx context.Context, reportID string) (model.ScoutingReport, error) {
	if slices.Contains(s.cache.UnsyncedIDs(), reportID) {
		if r, ok, err := s.cache.Reports.Get(reportID); err == nil && ok {
			return r, nil
		}
	}

	doc, err := s.remote.Get(ctx, model.CollectionReports, reportID)
	switch {
	case errors.Is(err, remote.ErrNotFound):
		return model.ScoutingReport{}, fmt.Errorf("%w: %s", ErrReportNotFound, reportID)
	case remote.IsRetryable(err):
		r, ok, cerr := s.cache.Reports.Get(reportID)
		if cerr != nil || !ok {
			return model.ScoutingReport{}, fmt.Errorf("failed to fetch report %s: %w", reportID, err)
		}
		return r, nil
	case err != nil:
		return model.ScoutingReport{}, fmt.Errorf("failed to fetch report %s: %w", reportID, err)
	}

	var r model.ScoutingReport
	if err := remote.Decode(doc, &r); err != nil {
		return model.ScoutingReport{}, err
	}
	return r, nil
}

// ListByUser returns the user's reports, newest first, optionally
// filtered by status. Unpushed local reports are included.
func (s *Service) ListByUser(ctx context.Context, userID string, status *model.ReportStatus) ([]model.ScoutingReport, error) {
	q := remote.Query{
		Filters: []remote.Filter{remote.Where("userId", remote.OpEq, userID)},
		OrderBy: "createdAt",
		Desc:    true,
	}
	if status != nil {
		q.Filters = append(q.Filters, remote.Where("status", remote.OpEq, string(*status)))
	}

	reports, err := s.query(ctx, q)
	if remote.IsRetryable(err) {
		s.logger.Printf("WARNING: Listing cached reports, remote unavailable: %v", err)
		reports, err = s.cache.Reports.List()
		reports = slices.DeleteFunc(reports, func(r model.ScoutingReport) bool { return r.UserID != userID })
	}
	if err != nil {
		return nil, err
	}

	// Overlay unpushed local versions
	local, err := s.cache.ListUnsynced()
	if err != nil {
		return nil, err
	}
	for _, lr := range local {
		if lr.UserID != userID {
			continue
		}
		if i := slices.IndexFunc(reports, func(r model.ScoutingReport) bool { return r.ID == lr.ID }); i >= 0 {
			reports[i] = lr
		} else {
			reports = append(reports, lr)
		}
	}

	if status != nil {
		reports = slices.DeleteFunc(reports, func(r model.ScoutingReport) bool { return r.Status != *status })
	}
	slices.SortStableFunc(reports, func(a, b model.ScoutingReport) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return reports, nil
}

// ListByClub returns submitted reports addressed to a club, newest first.
func (s *Service) ListByClub(ctx context.Context, clubID string) ([]model.ScoutingReport, error) {
	return s.query(ctx, remote.Query{
		Filters: []remote.Filter{
			remote.Where("clubId", remote.OpEq, clubID),
			remote.Where("status", remote.OpEq, string(model.ReportSubmitted)),
		},
		OrderBy: "createdAt",
		Desc:    true,
	})
}

// Templates returns a club's active report templates and caches them.
// When the remote store is unreachable the cached templates are used.
func (s *Service) Templates(ctx context.Context, clubID string) ([]model.ReportTemplate, error) {
	docs, err := s.remote.Query(ctx, model.CollectionReportTemplates, remote.Query{
		Filters: []remote.Filter{
			remote.Where("clubId", remote.OpEq, clubID),
			remote.Where("isActive", remote.OpEq, true),
		},
		OrderBy: "name",
	})
	if remote.IsRetryable(err) {
		cached, cerr := s.cache.Templates.List()
		if cerr != nil {
			return nil, cerr
		}
		return slices.DeleteFunc(cached, func(t model.ReportTemplate) bool {
			return t.ClubID != clubID || !t.IsActive
		}), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch templates: %w", err)
	}

	templates, err := remote.DecodeAll[model.ReportTemplate](docs)
	if err != nil {
		return nil, err
	}
	for _, t := range templates {
		if err := s.cache.Templates.Put(t); err != nil {
			s.logger.Printf("WARNING: Failed to cache template %s: %v", t.ID, err)
		}
	}
	return templates, nil
}

// template looks a template up in the cache, then the remote store.
// found is false when it could not be determined (e.g. offline).
func (s *Service) template(ctx context.Context, id string) (t model.ReportTemplate, found bool, err error) {
	if t, ok, err := s.cache.Templates.Get(id); err == nil && ok {
		return t, true, nil
	}

	doc, err := s.remote.Get(ctx, model.CollectionReportTemplates, id)
	switch {
	case errors.Is(err, remote.ErrNotFound):
		return model.ReportTemplate{}, false, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	case remote.IsRetryable(err):
		return model.ReportTemplate{}, false, nil
	case err != nil:
		return model.ReportTemplate{}, false, err
	}
	if err := remote.Decode(doc, &t); err != nil {
		return model.ReportTemplate{}, false, err
	}
	if err := s.cache.Templates.Put(t); err != nil {
		s.logger.Printf("WARNING: Failed to cache template %s: %v", t.ID, err)
	}
	return t, true, nil
}

// checkRatings validates evaluations against the report's template.
// Without a reachable template only the lower bound is enforced.
func (s *Service) checkRatings(ctx context.Context, r model.ScoutingReport) error {
	if r.TemplateID == "" {
		return nil
	}
	t, found, err := s.template(ctx, r.TemplateID)
	if err != nil {
		return err
	}

	for _, e := range r.Evaluations {
		if e.Rating < 0 {
			return fmt.Errorf("%w: %s rated %d", ErrInvalidRating, e.ItemID, e.Rating)
		}
		if !found {
			continue
		}
		item, ok := t.Item(e.ItemID)
		if !ok {
			return fmt.Errorf("%w: item %s is not in template %s", ErrInvalidRating, e.ItemID, t.ID)
		}
		maxRating := item.MaxRating
		if maxRating <= 0 {
			maxRating = model.DefaultMaxRating
		}
		if e.Rating > maxRating {
			return fmt.Errorf("%w: %s rated %d, max %d", ErrInvalidRating, e.ItemID, e.Rating, maxRating)
		}
	}
	return nil
}

func (s *Service) pushReport(ctx context.Context, r model.ScoutingReport) error {
	doc, err := remote.Encode(r)
	if err != nil {
		return err
	}
	return s.remote.Set(ctx, model.CollectionReports, r.ID, doc)
}

func (s *Service) query(ctx context.Context, q remote.Query) ([]model.ScoutingReport, error) {
	docs, err := s.remote.Query(ctx, model.CollectionReports, q)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch reports: %w", err)
	}
	return remote.DecodeAll[model.ScoutingReport](docs)
}

// refreshCached applies fn to the cached copy, if there is one, keeping
// its sync state.
func (s *Service) refreshCached(reportID string, fn func(r *model.ScoutingReport)) {
	r, ok, err := s.cache.Reports.Get(reportID)
	if err != nil || !ok {
		return
	}
	fn(&r)
	if err := s.cache.Reports.Put(r); err != nil {
		s.logger.Printf("WARNING: Failed to refresh cached report %s: %v", reportID, err)
	}
}

func (s *Service) transact(ctx context.Context, fn func(tx remote.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = s.remote.Transaction(ctx, fn)
		if err == nil || !errors.Is(err, remote.ErrConflict) {
			return err
		}
		s.logger.Printf("Retrying report transaction (attempt %d/%d): %v", attempt, maxAttempts, err)
	}
	return fmt.Errorf("%w: %w", ledger.ErrTransactionFailed, err)
}

func getReportTx(tx remote.Tx, reportID string) (model.ScoutingReport, error) {
	doc, err := tx.Get(model.CollectionReports, reportID)
	if errors.Is(err, remote.ErrNotFound) {
		return model.ScoutingReport{}, fmt.Errorf("%w: %s", ErrReportNotFound, reportID)
	}
	if err != nil {
		return model.ScoutingReport{}, fmt.Errorf("failed to read report %s: %w", reportID, err)
	}
	var r model.ScoutingReport
	if err := remote.Decode(doc, &r); err != nil {
		return model.ScoutingReport{}, err
	}
	return r, nil
}
