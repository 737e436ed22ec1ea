package process

import (
	"context"
	"math"
	"slices"
	"strconv"
)

// Category groups stages for funnel reporting.
type Category string

const (
	CategoryPending      Category = "pending"
	CategoryInReview     Category = "in_review"
	CategoryInterviewing Category = "interviewing"
	CategoryPassed       Category = "passed"
	CategoryFailed       Category = "failed"
)

// CategoryMap assigns stages to categories. Stages absent from the map are
// counted in Total only.
type CategoryMap map[Stage]Category

// earlyStages have not yet cleared document screening.
var earlyStages = []Stage{StageApplied, StageDocumentReview}

// ApplicantCategories is the default map for per-applicant statistics.
var ApplicantCategories = buildCategories(CategoryInReview)

// PostingCategories is the default map for per-posting statistics.
var PostingCategories = buildCategories(CategoryInterviewing)

func buildCategories(mid Category) CategoryMap {
	m := make(CategoryMap, len(pipeline))
	for _, d := range pipeline {
		switch {
		case d.outcome == outcomePass:
			m[d.stage] = CategoryPassed
		case d.outcome == outcomeFail:
			m[d.stage] = CategoryFailed
		case slices.Contains(earlyStages, d.stage):
			m[d.stage] = CategoryPending
		default:
			m[d.stage] = mid
		}
	}
	return m
}

// Stats summarises instances by funnel category.
type Stats struct {
	Total        int64   `json:"total"`
	Pending      int64   `json:"pending"`
	InReview     int64   `json:"inReview"`
	Interviewing int64   `json:"interviewing"`
	Passed       int64   `json:"passed"`
	Failed       int64   `json:"failed"`
	PassRate     float64 `json:"passRate"`
}

// Summarize folds per-stage counts into categories using cats.
func Summarize(counts map[Stage]int64, cats CategoryMap) *Stats {
	st := &Stats{}
	for stage, n := range counts {
		st.Total += n
		switch cats[stage] {
		case CategoryPending:
			st.Pending += n
		case CategoryInReview:
			st.InReview += n
		case CategoryInterviewing:
			st.Interviewing += n
		case CategoryPassed:
			st.Passed += n
		case CategoryFailed:
			st.Failed += n
		}
	}
	st.PassRate = PassRate(st.Passed, st.Failed)
	return st
}

// PassRate returns passed / (passed + failed) as a percentage rounded to one
// decimal place, or 0 when no instance has finished.
func PassRate(passed, failed int64) float64 {
	if passed+failed == 0 {
		return 0
	}
	return math.Round(float64(passed)/float64(passed+failed)*1000) / 10
}

// ─── Aggregator ──────────────────────────────────────────────────────────────

// Aggregator computes read-only funnel statistics. It never takes locks:
// counts may trail in-flight transitions.
type Aggregator struct {
	store     Store
	cache     StatsCache
	applicant CategoryMap
	posting   CategoryMap
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithAggregatorCache enables read-through caching of applicant and posting stats.
func WithAggregatorCache(c StatsCache) AggregatorOption {
	return func(a *Aggregator) { a.cache = c }
}

// WithCategories replaces the default applicant and posting category maps.
func WithCategories(applicant, posting CategoryMap) AggregatorOption {
	return func(a *Aggregator) {
		if applicant != nil {
			a.applicant = applicant
		}
		if posting != nil {
			a.posting = posting
		}
	}
}

// NewAggregator returns an Aggregator reading from store.
func NewAggregator(store Store, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{store: store, applicant: ApplicantCategories, posting: PostingCategories}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ApplicantStats summarises every instance of one applicant.
func (a *Aggregator) ApplicantStats(ctx context.Context, applicantID int64) (*Stats, error) {
	return a.cached(ctx, ApplicantStatsKey(applicantID), func() (*Stats, error) {
		return a.Compute(ctx, CountFilter{ApplicantID: &applicantID}, a.applicant)
	})
}

// PostingStats summarises every instance of one posting.
func (a *Aggregator) PostingStats(ctx context.Context, postingID int64) (*Stats, error) {
	return a.cached(ctx, PostingStatsKey(postingID), func() (*Stats, error) {
		return a.Compute(ctx, CountFilter{PostingIDs: []int64{postingID}}, a.posting)
	})
}

// PostingSetStats summarises the union of several postings. An empty set
// yields zero stats without touching the store.
func (a *Aggregator) PostingSetStats(ctx context.Context, postingIDs []int64) (*Stats, error) {
	ids := slices.Clone(postingIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	if len(ids) == 0 {
		return &Stats{}, nil
	}
	return a.Compute(ctx, CountFilter{PostingIDs: ids}, a.posting)
}

// Compute runs one grouped count and folds it with cats.
func (a *Aggregator) Compute(ctx context.Context, f CountFilter, cats CategoryMap) (*Stats, error) {
	counts, err := a.store.CountByStage(ctx, f)
	if err != nil {
		return nil, err
	}
	return Summarize(counts, cats), nil
}

func (a *Aggregator) cached(ctx context.Context, key string, compute func() (*Stats, error)) (*Stats, error) {
	if a.cache != nil {
		if st, ok := a.cache.Get(ctx, key); ok {
			return st, nil
		}
	}
	st, err := compute()
	if err != nil {
		return nil, err
	}
	if a.cache != nil {
		a.cache.Set(ctx, key, st)
	}
	return st, nil
}

// ApplicantStatsKey is the cache key of an applicant's stats.
func ApplicantStatsKey(applicantID int64) string {
	return "stats:applicant:" + strconv.FormatInt(applicantID, 10)
}

// PostingStatsKey is the cache key of a posting's stats.
func PostingStatsKey(postingID int64) string {
	return "stats:posting:" + strconv.FormatInt(postingID, 10)
}
