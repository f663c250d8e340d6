// Package scoring ranks search hits against the entities of the current
// turn and tops up thin result sets with alternatives.
package scoring

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"retail-chat-workers/internal/chat/intent"
	"retail-chat-workers/internal/chat/search"
	"retail-chat-workers/internal/common/config"
	"retail-chat-workers/internal/common/logger"
	"retail-chat-workers/internal/models"
)

const maxReasonFragments = 3

// Searcher is satisfied by *search.Gateway.
type Searcher interface {
	Search(ctx context.Context, query string, filter *models.SearchFilter, maxResults int) (search.Result, error)
}

type Config struct {
	Weights               config.ScoringWeights
	Threshold             float64
	AlternativePenalty    float64
	MaxAlternativeQueries int
	MaxRecommendations    int
	AlternativeResults    int
}

// Outcome is the ranked list plus what it took to build it.
type Outcome struct {
	Recommendations    []models.Recommendation
	AlternativeQueries []string
	// SearchDegraded is set when an alternative query was served from the catalog.
	SearchDegraded bool
}

type Scorer struct {
	searcher Searcher
	config   Config
	logger   logger.Logger
}

// NewScorer builds a scorer. searcher may be nil to disable alternatives.
func NewScorer(searcher Searcher, cfg Config, log logger.Logger) *Scorer {
	if cfg.MaxRecommendations <= 0 {
		cfg.MaxRecommendations = 3
	}
	if cfg.AlternativeResults <= 0 {
		cfg.AlternativeResults = 5
	}
	if cfg.MaxAlternativeQueries > 3 {
		cfg.MaxAlternativeQueries = 3
	}
	return &Scorer{
		searcher: searcher,
		config:   cfg,
		logger:   log.WithFields(map[string]interface{}{"component": "scoring"}),
	}
}

// Score ranks hits descending by relevance and drops anything under the
// threshold. It has no side effects.
func (s *Scorer) Score(hits []models.ProductHit, e models.Entities) []models.Recommendation {
	recs := make([]models.Recommendation, 0, len(hits))
	for _, h := range hits {
		score, reason := Relevance(h, e, s.config.Weights)
		if score < s.config.Threshold {
			continue
		}
		recs = append(recs, models.Recommendation{Product: h, RelevanceScore: score, Reason: reason})
	}
	sortRecommendations(recs)
	return recs
}

// Recommend scores hits and, when fewer than MaxRecommendations clear the
// threshold, runs broadened queries for alternatives.
func (s *Scorer) Recommend(ctx context.Context, hits []models.ProductHit, e models.Entities) Outcome {
	primary := s.Score(hits, e)
	if len(primary) > s.config.MaxRecommendations {
		primary = primary[:s.config.MaxRecommendations]
	}

	out := Outcome{Recommendations: primary}
	missing := s.config.MaxRecommendations - len(primary)
	if missing <= 0 || s.searcher == nil || s.config.MaxAlternativeQueries <= 0 {
		return out
	}

	queries := BroadenedQueries(e, s.config.MaxAlternativeQueries)
	if len(queries) == 0 {
		return out
	}
	out.AlternativeQueries = queries

	results := make([]search.Result, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			res, err := s.searcher.Search(gctx, q, nil, s.config.AlternativeResults)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Warn("alternative search rejected", map[string]interface{}{"error": err.Error()})
		return out
	}

	seen := make(map[string]bool, len(hits))
	for _, r := range primary {
		seen[r.Product.ID] = true
	}
	var alternatives []models.Recommendation
	for _, res := range results {
		if res.Degraded() {
			out.SearchDegraded = true
		}
		for _, h := range res.Hits {
			if seen[h.ID] {
				continue
			}
			seen[h.ID] = true
			score, reason := Relevance(h, e, s.config.Weights)
			score *= s.config.AlternativePenalty
			if score < s.config.Threshold {
				continue
			}
			alternatives = append(alternatives, models.Recommendation{
				Product:        h,
				RelevanceScore: score,
				Reason:         reason,
				IsAlternative:  true,
			})
		}
	}
	sortRecommendations(alternatives)
	if len(alternatives) > missing {
		alternatives = alternatives[:missing]
	}

	out.Recommendations = append(out.Recommendations, alternatives...)
	sortRecommendations(out.Recommendations)
	return out
}

// Relevance is the weighted sum of every matching criterion, clamped to
// [0,1], and up to three reason fragments for the criteria that matched.
func Relevance(h models.ProductHit, e models.Entities, w config.ScoringWeights) (float64, string) {
	var reasons []string
	score := w.Similarity * clamp01(h.SimilarityScore)

	// a product categorised by flower type counts as a flower match
	flowers := append([]string{h.Category}, h.Flowers...)
	if m := firstShared(e.Flowers, productValues(h, intent.ClassFlower, flowers)); m != "" {
		score += w.Category
		reasons = append(reasons, m)
	}
	if m := firstShared(e.Colors, productValues(h, intent.ClassColor, h.Colors)); m != "" {
		score += w.Color
		reasons = append(reasons, m)
	}
	if m := firstShared(e.Occasions, productValues(h, intent.ClassOccasion, h.Occasions)); m != "" {
		score += w.Occasion
		reasons = append(reasons, "for "+strings.ReplaceAll(m, "_", " "))
	}
	if b := e.Budget; b != nil {
		switch {
		case b.Contains(h.Price):
			score += w.BudgetContained
			reasons = append(reasons, "within budget")
		case b.Under(h.Price):
			score += w.BudgetUnder
			reasons = append(reasons, "under budget")
		}
	}
	if m := firstShared(e.Styles, productValues(h, intent.ClassStyle, h.Styles)); m != "" {
		score += w.Style
		reasons = append(reasons, m+" style")
	}
	if h.Available {
		score += w.Available
	} else {
		score += w.Unavailable
	}

	if len(reasons) > maxReasonFragments {
		reasons = reasons[:maxReasonFragments]
	}
	reason := strings.Join(reasons, ", ")
	if reason == "" {
		reason = "close match"
	}
	return clamp01(score), reason
}

// BroadenedQueries derives up to n looser queries from related flowers,
// related colors and the occasion alone.
func BroadenedQueries(e models.Entities, n int) []string {
	var out []string
	seen := map[string]bool{strings.Join(append(append([]string{}, e.Flowers...), e.Colors...), " "): true}
	add := func(parts ...string) {
		q := strings.TrimSpace(strings.Join(parts, " "))
		if q == "" || seen[q] || len(out) >= n {
			return
		}
		seen[q] = true
		out = append(out, q)
	}

	color := first(e.Colors)
	if flower := first(e.Flowers); flower != "" {
		for _, alt := range intent.Related(intent.ClassFlower, flower) {
			add(alt, color)
		}
	}
	if color != "" {
		for _, alt := range intent.Related(intent.ClassColor, color) {
			add(first(e.Flowers), alt)
		}
	}
	if occasion := first(e.Occasions); occasion != "" {
		add(strings.ReplaceAll(occasion, "_", " "))
		for _, alt := range intent.Related(intent.ClassOccasion, occasion) {
			add(strings.ReplaceAll(alt, "_", " "))
		}
	}
	for _, style := range e.Styles {
		add(style)
	}
	return out
}

func productValues(h models.ProductHit, class intent.Class, listed []string) []string {
	values := intent.CanonicalizeAll(class, listed)
	return append(values, intent.Find(class, h.Name)...)
}

func firstShared(wanted, have []string) string {
	for _, w := range wanted {
		if containsFold(have, w) {
			return w
		}
	}
	return ""
}

func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func sortRecommendations(recs []models.Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].RelevanceScore != recs[j].RelevanceScore {
			return recs[i].RelevanceScore > recs[j].RelevanceScore
		}
		return recs[i].Product.Price < recs[j].Product.Price
	})
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
