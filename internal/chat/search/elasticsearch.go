package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"retail-chat-workers/internal/models"
)

var searchFields = []string{"name^3", "flowers^2", "category^2", "colors", "occasions", "styles", "description"}

// ElasticsearchBackend runs semantic product queries against one index.
type ElasticsearchBackend struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticsearchBackend(client *elasticsearch.Client, index string) *ElasticsearchBackend {
	return &ElasticsearchBackend{client: client, index: index}
}

func (b *ElasticsearchBackend) Search(ctx context.Context, query string, filter *models.SearchFilter, limit int) ([]models.ProductHit, error) {
	body, err := json.Marshal(buildQuery(query, filter, limit))
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{b.index},
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, b.client)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch search failed: %s", res.Status())
	}

	var r struct {
		Hits struct {
			MaxScore *float64 `json:"max_score"`
			Hits     []struct {
				ID     string            `json:"_id"`
				Score  *float64          `json:"_score"`
				Source models.ProductHit `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	maxScore := 0.0
	if r.Hits.MaxScore != nil {
		maxScore = *r.Hits.MaxScore
	}
	hits := make([]models.ProductHit, 0, len(r.Hits.Hits))
	for _, h := range r.Hits.Hits {
		p := h.Source
		if p.ID == "" {
			p.ID = h.ID
		}
		p.SimilarityScore = 0
		if h.Score != nil && maxScore > 0 {
			p.SimilarityScore = *h.Score / maxScore
		}
		hits = append(hits, p)
	}
	return hits, nil
}

func buildQuery(query string, filter *models.SearchFilter, limit int) map[string]interface{} {
	var must interface{}
	if q := strings.TrimSpace(query); q != "" {
		must = map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":     q,
				"fields":    searchFields,
				"fuzziness": "AUTO",
			},
		}
	} else {
		must = map[string]interface{}{"match_all": map[string]interface{}{}}
	}

	var filters []interface{}
	if filter != nil {
		if filter.Category != "" {
			c := strings.ToLower(filter.Category)
			filters = append(filters, map[string]interface{}{
				"bool": map[string]interface{}{
					"should": []interface{}{
						map[string]interface{}{"term": map[string]interface{}{"category.keyword": c}},
						map[string]interface{}{"term": map[string]interface{}{"flowers.keyword": c}},
					},
					"minimum_should_match": 1,
				},
			})
		}
		if filter.Color != "" {
			filters = append(filters, map[string]interface{}{
				"term": map[string]interface{}{"colors.keyword": strings.ToLower(filter.Color)},
			})
		}
		if filter.HasPriceRange() {
			rng := map[string]interface{}{}
			if filter.PriceMin != nil {
				rng["gte"] = *filter.PriceMin
			}
			if filter.PriceMax != nil {
				rng["lte"] = *filter.PriceMax
			}
			filters = append(filters, map[string]interface{}{"range": map[string]interface{}{"price": rng}})
		}
	}

	boolQuery := map[string]interface{}{"must": []interface{}{must}}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}
	return map[string]interface{}{
		"size":  limit,
		"query": map[string]interface{}{"bool": boolQuery},
	}
}
