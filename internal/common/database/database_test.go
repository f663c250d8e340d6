package database

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retail-chat-workers/internal/common/config"
	"retail-chat-workers/pkg/catalog"
)

var testProducts = []catalog.Product{
	{ID: "p1", Name: "Red Rose Bouquet", Price: 450, Category: "rose", Flowers: []string{"rose"}, Colors: []string{"red"}, Available: true},
	{ID: "p2", Name: "White Lily Spray", Price: 900, Category: "lily", Flowers: []string{"lily"}, Colors: []string{"white"}},
}

// ==========================
// Postgres
// ==========================

func TestPostgres_UpsertProducts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	client := &PostgresClient{DB: db}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO products")
	prep.ExpectExec().WithArgs("p1", "Red Rose Bouquet", 450.0, "rose", "", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs("p2", "White Lily Spray", 900.0, "lily", "", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := client.UpsertProducts(context.Background(), "products", testProducts)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpsertProducts_RollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	client := &PostgresClient{DB: db}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO products")
	prep.ExpectExec().WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err = client.UpsertProducts(context.Background(), "products", testProducts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert p1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_EnsureCatalogTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	client := &PostgresClient{DB: db}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS products").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, client.EnsureCatalogTable(context.Background(), "products"))

	assert.Error(t, client.EnsureCatalogTable(context.Background(), "products; DROP TABLE x"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresConfig_DSN(t *testing.T) {
	cfg := config.PostgresConfig{Host: "db", Port: 5432, User: "shop", Password: "pw", Database: "catalog", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=shop password=pw dbname=catalog sslmode=disable", cfg.GetDSN())
}

// ==========================
// Elasticsearch
// ==========================

func newTestES(t *testing.T, handler http.HandlerFunc) *ElasticsearchClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return &ElasticsearchClient{Client: es}
}

func TestElasticsearch_EnsureIndex(t *testing.T) {
	tests := []struct {
		name       string
		existsCode int
		wantCreate bool
	}{
		{"already exists", http.StatusOK, false},
		{"missing", http.StatusNotFound, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			created := false
			client := newTestES(t, func(w http.ResponseWriter, r *http.Request) {
				switch r.Method {
				case http.MethodHead:
					w.WriteHeader(tt.existsCode)
				case http.MethodPut:
					created = true
					body, _ := io.ReadAll(r.Body)
					assert.Contains(t, string(body), `"flowers"`)
					_, _ = w.Write([]byte(`{"acknowledged":true}`))
				}
			})

			require.NoError(t, client.EnsureIndex(context.Background(), "products"))
			assert.Equal(t, tt.wantCreate, created)
		})
	}
}

func TestElasticsearch_BulkIndex(t *testing.T) {
	var lines []string
	client := newTestES(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/_bulk"))
		body, _ := io.ReadAll(r.Body)
		lines = strings.Split(strings.TrimSpace(string(body)), "\n")
		_, _ = w.Write([]byte(`{"errors":true,"items":[{"index":{"status":201}},{"index":{"status":400}}]}`))
	})

	failed, err := client.BulkIndex(context.Background(), "products", testProducts)
	require.NoError(t, err)
	assert.Equal(t, 1, failed)
	require.Len(t, lines, 4)

	var meta map[string]map[string]string
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &meta))
	assert.Equal(t, "p1", meta["index"]["_id"])
	assert.Contains(t, lines[1], `"availability":true`)
}

func TestElasticsearch_BulkIndexEmpty(t *testing.T) {
	client := newTestES(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	failed, err := client.BulkIndex(context.Background(), "products", nil)
	assert.NoError(t, err)
	assert.Zero(t, failed)
}

// ==========================
// Redis
// ==========================

func TestRedis_Ping(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewRedis(config.RedisConfig{Address: mr.Addr()})
	defer client.Close()

	require.NoError(t, client.Ping(context.Background()))

	mr.Close()
	assert.Error(t, client.Ping(context.Background()))
}
