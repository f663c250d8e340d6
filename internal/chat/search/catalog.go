package search

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/lib/pq"

	"retail-chat-workers/internal/chat/intent"
	apperrors "retail-chat-workers/internal/common/errors"
	"retail-chat-workers/internal/models"
	"retail-chat-workers/pkg/catalog"
)

// Catalog hits are reported with a reduced similarity.
const catalogSimilarityScale = 0.7

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "for": true, "my": true, "and": true, "or": true, "of": true, "to": true,
	"in": true, "with": true, "under": true, "over": true, "please": true, "i": true, "want": true, "need": true,
	"some": true, "me": true, "is": true, "are": true, "do": true, "you": true, "have": true, "any": true,
	"de": true, "la": true, "el": true, "los": true, "las": true, "para": true, "mi": true, "un": true,
	"una": true, "y": true, "con": true, "por": true, "quiero": true,
}

type catalogEntry struct {
	product models.ProductHit
	terms   map[string]bool
}

// Catalog is the in-process product snapshot scanned when the search
// service is unavailable. It is read-only after construction.
type Catalog struct {
	entries []catalogEntry
}

func NewCatalog(products []models.ProductHit) *Catalog {
	c := &Catalog{entries: make([]catalogEntry, 0, len(products))}
	for _, p := range products {
		c.entries = append(c.entries, catalogEntry{product: p, terms: productTerms(p)})
	}
	return c
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// Scan ranks products by keyword overlap with query. Products sharing no
// term with the query are left out.
func (c *Catalog) Scan(query string, filter *models.SearchFilter, limit int) []models.ProductHit {
	if c == nil || limit <= 0 {
		return nil
	}
	terms := queryTerms(query)
	if len(terms) == 0 {
		return nil
	}

	type scored struct {
		hit     models.ProductHit
		overlap float64
	}
	var matches []scored
	for _, e := range c.entries {
		if !filter.Matches(e.product) {
			continue
		}
		n := 0
		for _, t := range terms {
			if e.terms[t] {
				n++
			}
		}
		if n == 0 {
			continue
		}
		matches = append(matches, scored{hit: e.product, overlap: float64(n) / float64(len(terms))})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.overlap != b.overlap {
			return a.overlap > b.overlap
		}
		if a.hit.Available != b.hit.Available {
			return a.hit.Available
		}
		if a.hit.Price != b.hit.Price {
			return a.hit.Price < b.hit.Price
		}
		return a.hit.ID < b.hit.ID
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	out := make([]models.ProductHit, len(matches))
	for i, m := range matches {
		out[i] = m.hit
		out[i].SimilarityScore = m.overlap * catalogSimilarityScale
	}
	return out
}

func queryTerms(query string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(t string) {
		if t == "" || seen[t] || stopWords[t] || isNumber(t) {
			return
		}
		seen[t] = true
		out = append(out, t)
	}
	canon := intent.Terms(query)
	for _, t := range canon {
		add(t)
	}
	// raw words already covered by a canonical token would double count
	for _, w := range intent.Tokens(query) {
		if len(canon) > 0 && isSynonymVariant(w) {
			continue
		}
		add(w)
	}
	return out
}

func productTerms(p models.ProductHit) map[string]bool {
	terms := make(map[string]bool)
	text := strings.Join([]string{p.Name, p.Category, p.Description}, " ")
	for _, w := range intent.Tokens(text) {
		terms[w] = true
	}
	for _, t := range intent.Terms(text) {
		terms[t] = true
	}
	for _, list := range [][]string{p.Flowers, p.Colors, p.Occasions, p.Styles} {
		for _, v := range list {
			terms[strings.ToLower(v)] = true
		}
	}
	return terms
}

func isSynonymVariant(w string) bool {
	for _, class := range []intent.Class{intent.ClassFlower, intent.ClassColor, intent.ClassOccasion, intent.ClassStyle} {
		if _, ok := intent.Canonical(class, w); ok {
			return true
		}
	}
	return false
}

func isNumber(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ==========================
// Snapshot sources
// ==========================

// LoadCatalogFromFile reads a JSON snapshot written by the catalog tools.
func LoadCatalogFromFile(path string) (*Catalog, error) {
	snap, err := catalog.LoadSnapshot(path)
	if err != nil {
		return nil, apperrors.NewCatalogLoadFailedError(path, err)
	}
	products := make([]models.ProductHit, 0, len(snap.Products))
	for _, p := range snap.Products {
		products = append(products, FromCatalogProduct(p))
	}
	return NewCatalog(products), nil
}

// LoadCatalogFromDB reads every product row from table once.
func LoadCatalogFromDB(ctx context.Context, db *sql.DB, table string) (*Catalog, error) {
	if !tableNameRe.MatchString(table) {
		return nil, apperrors.NewCatalogLoadFailedError("postgres", fmt.Errorf("invalid table name %q", table))
	}

	query := `SELECT id, name, price, category, description, flowers, colors, occasions, styles, available
	          FROM ` + table + ` ORDER BY id`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.NewCatalogLoadFailedError("postgres", err)
	}
	defer rows.Close()

	var products []models.ProductHit
	for rows.Next() {
		var p models.ProductHit
		var description sql.NullString
		var flowers, colors, occasions, styles pq.StringArray
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Category, &description,
			&flowers, &colors, &occasions, &styles, &p.Available); err != nil {
			return nil, apperrors.NewCatalogLoadFailedError("postgres", err)
		}
		p.Description = description.String
		p.Flowers = intent.CanonicalizeAll(intent.ClassFlower, flowers)
		p.Colors = intent.CanonicalizeAll(intent.ClassColor, colors)
		p.Occasions = intent.CanonicalizeAll(intent.ClassOccasion, occasions)
		p.Styles = intent.CanonicalizeAll(intent.ClassStyle, styles)
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewCatalogLoadFailedError("postgres", err)
	}
	return NewCatalog(products), nil
}

// FromCatalogProduct converts a snapshot record into a search hit.
func FromCatalogProduct(p catalog.Product) models.ProductHit {
	return models.ProductHit{
		ID:          p.ID,
		Name:        p.Name,
		Price:       p.Price,
		Category:    p.Category,
		Description: p.Description,
		Flowers:     intent.CanonicalizeAll(intent.ClassFlower, p.Flowers),
		Colors:      intent.CanonicalizeAll(intent.ClassColor, p.Colors),
		Occasions:   intent.CanonicalizeAll(intent.ClassOccasion, p.Occasions),
		Styles:      intent.CanonicalizeAll(intent.ClassStyle, p.Styles),
		Available:   p.Available,
	}
}

// ToCatalogProduct is the inverse of FromCatalogProduct.
func ToCatalogProduct(h models.ProductHit) catalog.Product {
	return catalog.Product{
		ID:          h.ID,
		Name:        h.Name,
		Price:       h.Price,
		Category:    h.Category,
		Description: h.Description,
		Flowers:     h.Flowers,
		Colors:      h.Colors,
		Occasions:   h.Occasions,
		Styles:      h.Styles,
		Available:   h.Available,
	}
}

// Products returns a copy of every product in the snapshot.
func (c *Catalog) Products() []models.ProductHit {
	if c == nil {
		return nil
	}
	out := make([]models.ProductHit, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.product
	}
	return out
}
