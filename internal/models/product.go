package models

import (
	"errors"
	"strings"
)

var ErrInvertedPriceRange = errors.New("price_min must not exceed price_max")

// ProductHit is one result returned by the search gateway.
type ProductHit struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Price           float64  `json:"price"`
	Category        string   `json:"category"`
	Description     string   `json:"description"`
	Flowers         []string `json:"flowers,omitempty"`
	Colors          []string `json:"colors,omitempty"`
	Occasions       []string `json:"occasions,omitempty"`
	Styles          []string `json:"styles,omitempty"`
	Available       bool     `json:"availability"`
	SimilarityScore float64  `json:"similarityScore"`
}

// SearchFilter narrows a product search. Unset fields do not constrain.
type SearchFilter struct {
	PriceMin *float64 `json:"priceMin,omitempty"`
	PriceMax *float64 `json:"priceMax,omitempty"`
	Category string   `json:"category,omitempty"`
	Color    string   `json:"color,omitempty"`
}

// Validate checks the price window.
func (f *SearchFilter) Validate() error {
	if f == nil {
		return nil
	}
	if f.PriceMin != nil && f.PriceMax != nil && *f.PriceMin > *f.PriceMax {
		return ErrInvertedPriceRange
	}
	return nil
}

// HasPriceRange reports whether a price bound is set.
func (f *SearchFilter) HasPriceRange() bool {
	return f != nil && (f.PriceMin != nil || f.PriceMax != nil)
}

// MatchesPrice reports whether price lies in the filter's window.
func (f *SearchFilter) MatchesPrice(price float64) bool {
	if f == nil {
		return true
	}
	if f.PriceMin != nil && price < *f.PriceMin {
		return false
	}
	if f.PriceMax != nil && price > *f.PriceMax {
		return false
	}
	return true
}

// Matches applies every set predicate to hit.
func (f *SearchFilter) Matches(hit ProductHit) bool {
	if f == nil {
		return true
	}
	if !f.MatchesPrice(hit.Price) {
		return false
	}
	if f.Category != "" && !strings.EqualFold(f.Category, hit.Category) && !containsFold(hit.Flowers, f.Category) {
		return false
	}
	if f.Color != "" && !containsFold(hit.Colors, f.Color) {
		return false
	}
	return true
}

func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}

// Recommendation is a scored product for the current turn.
type Recommendation struct {
	Product        ProductHit `json:"product"`
	RelevanceScore float64    `json:"relevanceScore"`
	Reason         string     `json:"reason"`
	IsAlternative  bool       `json:"isAlternative"`
}
