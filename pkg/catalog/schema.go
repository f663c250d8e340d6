// pkg/catalog/schema.go
package catalog

type Snapshot struct {
	Version     string    `json:"version"`
	LastUpdated string    `json:"lastUpdated"`
	Products    []Product `json:"products"`
}

type Product struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Price       float64  `json:"price"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Flowers     []string `json:"flowers,omitempty"`
	Colors      []string `json:"colors,omitempty"`
	Occasions   []string `json:"occasions,omitempty"`
	Styles      []string `json:"styles,omitempty"`
	Available   bool     `json:"availability"`
}
