// pkg/catalog/snapshot.go
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

const snapshotSchema = `{
  "type": "object",
  "required": ["products"],
  "properties": {
    "version": {"type": "string"},
    "lastUpdated": {"type": "string"},
    "products": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "name", "price"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "name": {"type": "string", "minLength": 1},
          "price": {"type": "number", "minimum": 0},
          "category": {"type": "string"},
          "flowers": {"type": "array", "items": {"type": "string"}},
          "colors": {"type": "array", "items": {"type": "string"}},
          "occasions": {"type": "array", "items": {"type": "string"}},
          "styles": {"type": "array", "items": {"type": "string"}},
          "availability": {"type": "boolean"}
        }
      }
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(snapshotSchema)

func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("validate snapshot %s: %w", path, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("snapshot %s: %s", path, strings.Join(msgs, "; "))
	}
	return &snap, nil
}

func SaveSnapshot(path string, snap *Snapshot) error {
	if snap.LastUpdated == "" {
		snap.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	}
	if snap.Products == nil {
		snap.Products = []Product{}
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
