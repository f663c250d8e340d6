package search

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "retail-chat-workers/internal/common/errors"
	"retail-chat-workers/internal/models"
	"retail-chat-workers/pkg/catalog"
)

var productColumns = []string{"id", "name", "price", "category", "description", "flowers", "colors", "occasions", "styles", "available"}

func TestCatalog_Scan(t *testing.T) {
	c := NewCatalog([]models.ProductHit{
		{ID: "a", Name: "Red Rose Dozen", Price: 600, Flowers: []string{"rose"}, Colors: []string{"red"}, Available: true},
		{ID: "b", Name: "Pink Rose Box", Price: 400, Flowers: []string{"rose"}, Colors: []string{"pink"}, Available: true},
		{ID: "c", Name: "Red Rose Petite", Price: 350, Flowers: []string{"rose"}, Colors: []string{"red"}, Available: false},
		{ID: "d", Name: "Sunflower Basket", Price: 500, Flowers: []string{"sunflower"}, Available: true},
	})

	hits := c.Scan("red roses", nil, 10)
	require.Len(t, hits, 3)
	// full overlap first, available before unavailable, then partial overlap
	assert.Equal(t, []string{"a", "c", "b"}, []string{hits[0].ID, hits[1].ID, hits[2].ID})
	assert.InDelta(t, catalogSimilarityScale, hits[0].SimilarityScore, 1e-9)
	assert.InDelta(t, catalogSimilarityScale/2, hits[2].SimilarityScore, 1e-9)

	t.Run("synonyms across languages", func(t *testing.T) {
		hits := c.Scan("rosas rojas", nil, 10)
		require.NotEmpty(t, hits)
		assert.Equal(t, "a", hits[0].ID)

		hits = c.Scan("ดอกทานตะวัน", nil, 10)
		require.Len(t, hits, 1)
		assert.Equal(t, "d", hits[0].ID)
	})

	t.Run("filter and limit", func(t *testing.T) {
		maxPrice := 450.0
		hits := c.Scan("red roses", &models.SearchFilter{PriceMax: &maxPrice}, 1)
		require.Len(t, hits, 1)
		assert.Equal(t, "c", hits[0].ID)
	})

	t.Run("no overlap", func(t *testing.T) {
		assert.Empty(t, c.Scan("opening hours", nil, 10))
		assert.Empty(t, c.Scan("for my", nil, 10))
	})

	t.Run("nil catalog", func(t *testing.T) {
		var nilCatalog *Catalog
		assert.Nil(t, nilCatalog.Scan("roses", nil, 3))
		assert.Equal(t, 0, nilCatalog.Len())
	})
}

func TestLoadCatalogFromDB(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, price, category, description, flowers, colors, occasions, styles, available")).
		WillReturnRows(sqlmock.NewRows(productColumns).
			AddRow("p1", "Red Rose Bouquet", 450.0, "bouquet", "Twelve red roses", "{Roses}", "{rojo}", "{valentine}", "{romantic}", true).
			AddRow("p2", "Lily Vase", 900.0, "arrangement", nil, "{lily}", "{white}", "{}", "{}", false))

	c, err := LoadCatalogFromDB(context.Background(), db, "products")
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())

	products := c.Products()
	assert.Equal(t, []string{"rose"}, products[0].Flowers)
	assert.Equal(t, []string{"red"}, products[0].Colors)
	assert.Equal(t, "", products[1].Description)
	assert.False(t, products[1].Available)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadCatalogFromDB_Errors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = LoadCatalogFromDB(context.Background(), db, "products; DROP TABLE x")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeCatalogLoadFailed))

	mock.ExpectQuery("SELECT").WillReturnError(errors.New("connection refused"))
	_, err = LoadCatalogFromDB(context.Background(), db, "shop.products")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeCatalogLoadFailed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadCatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, catalog.SaveSnapshot(path, &catalog.Snapshot{
		Version: "1",
		Products: []catalog.Product{
			ToCatalogProduct(models.ProductHit{ID: "p1", Name: "Tulip Bunch", Price: 350, Flowers: []string{"Tulipanes"}, Available: true}),
		},
	}))

	c, err := LoadCatalogFromFile(path)
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())
	assert.Equal(t, []string{"tulip"}, c.Products()[0].Flowers)

	_, err = LoadCatalogFromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeCatalogLoadFailed))
}
