package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retail-chat-workers/pkg/catalog"
)

func TestCheckProducts(t *testing.T) {
	rose := catalog.Product{ID: "p1", Name: "Red Rose Bouquet", Price: 450, Category: "rose"}

	tests := []struct {
		name     string
		products []catalog.Product
		wantErr  string
	}{
		{"valid", []catalog.Product{rose}, ""},
		{"empty", nil, "no products"},
		{"duplicate", []catalog.Product{rose, rose}, "duplicate product ID: p1"},
		{"negative price", []catalog.Product{{ID: "p2", Name: "x", Price: -1, Category: "rose"}}, "negative price"},
		{"untagged", []catalog.Product{{ID: "p3", Name: "x", Price: 10}}, "category or a flower list"},
		{"flowers without category", []catalog.Product{{ID: "p4", Name: "x", Price: 10, Flowers: []string{"tulip"}}}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkProducts(tt.products)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, catalog.SaveSnapshot(path, &catalog.Snapshot{
		Version:  "1",
		Products: []catalog.Product{{ID: "p1", Name: "Red Rose Bouquet", Price: 450, Category: "rose"}},
	}))

	assert.NoError(t, validateSnapshot(path))
	assert.Error(t, validateSnapshot(filepath.Join(t.TempDir(), "missing.json")))
}
