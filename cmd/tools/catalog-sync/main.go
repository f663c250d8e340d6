// cmd/tools/catalog-sync/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"retail-chat-workers/internal/chat/search"
	"retail-chat-workers/internal/common/config"
	"retail-chat-workers/internal/common/database"
	"retail-chat-workers/pkg/catalog"
)

func main() {
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)
	importCmd := flag.NewFlagSet("import", flag.ExitOnError)

	validatePath := validateCmd.String("path", "configs/catalog.json", "Path to snapshot file")

	exportPath := exportCmd.String("path", "configs/catalog.json", "Snapshot file to write")
	exportConfig := exportCmd.String("config", "", "Config file (defaults to configs/config.yaml)")

	importPath := importCmd.String("path", "configs/catalog.json", "Snapshot file to read")
	importConfig := importCmd.String("config", "", "Config file (defaults to configs/config.yaml)")
	importTargets := importCmd.String("to", "postgres,elasticsearch", "Comma-separated targets")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "validate":
		validateCmd.Parse(os.Args[2:])
		err = validateSnapshot(*validatePath)

	case "export":
		exportCmd.Parse(os.Args[2:])
		err = exportSnapshot(ctx, *exportConfig, *exportPath)

	case "import":
		importCmd.Parse(os.Args[2:])
		err = importSnapshot(ctx, *importConfig, *importPath, strings.Split(*importTargets, ","))

	case "help":
		help()
		return
	default:
		help()
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("%s failed: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func validateSnapshot(path string) error {
	snap, err := catalog.LoadSnapshot(path)
	if err != nil {
		return err
	}
	if err := checkProducts(snap.Products); err != nil {
		return err
	}
	fmt.Printf("Snapshot validation passed. Found %d products.\n", len(snap.Products))
	return nil
}

// checkProducts enforces what the search index and scorer rely on beyond
// the schema check done at load time.
func checkProducts(products []catalog.Product) error {
	if len(products) == 0 {
		return fmt.Errorf("snapshot contains no products")
	}
	ids := make(map[string]bool, len(products))
	for _, p := range products {
		if ids[p.ID] {
			return fmt.Errorf("duplicate product ID: %s", p.ID)
		}
		ids[p.ID] = true
		if p.Price < 0 {
			return fmt.Errorf("product %s has a negative price", p.ID)
		}
		if p.Category == "" && len(p.Flowers) == 0 {
			return fmt.Errorf("product %s needs a category or a flower list", p.ID)
		}
	}
	return nil
}

func exportSnapshot(ctx context.Context, configPath, path string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		return err
	}
	defer pg.Close()

	cat, err := search.LoadCatalogFromDB(ctx, pg.DB, cfg.Catalog.Table)
	if err != nil {
		return err
	}

	products := make([]catalog.Product, 0, cat.Len())
	for _, h := range cat.Products() {
		products = append(products, search.ToCatalogProduct(h))
	}
	snap := &catalog.Snapshot{
		Version:     cfg.App.Version,
		LastUpdated: time.Now().UTC().Format(time.RFC3339),
		Products:    products,
	}
	if err := catalog.SaveSnapshot(path, snap); err != nil {
		return err
	}
	fmt.Printf("Exported %d products to %s\n", len(products), path)
	return nil
}

func importSnapshot(ctx context.Context, configPath, path string, targets []string) error {
	snap, err := catalog.LoadSnapshot(path)
	if err != nil {
		return err
	}
	if err := checkProducts(snap.Products); err != nil {
		return err
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	for _, target := range targets {
		switch strings.TrimSpace(target) {
		case "postgres":
			pg, err := database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			defer pg.Close()
			if err := pg.EnsureCatalogTable(ctx, cfg.Catalog.Table); err != nil {
				return err
			}
			n, err := pg.UpsertProducts(ctx, cfg.Catalog.Table, snap.Products)
			if err != nil {
				return err
			}
			fmt.Printf("Wrote %d products to postgres table %s\n", n, cfg.Catalog.Table)

		case "elasticsearch":
			es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			index := cfg.Database.Elasticsearch.Index
			if err := es.EnsureIndex(ctx, index); err != nil {
				return err
			}
			failed, err := es.BulkIndex(ctx, index, snap.Products)
			if err != nil {
				return err
			}
			fmt.Printf("Indexed %d products into %s (%d rejected)\n", len(snap.Products)-failed, index, failed)
			if failed > 0 {
				return fmt.Errorf("%d products were rejected by elasticsearch", failed)
			}

		case "":
		default:
			return fmt.Errorf("unknown target %q", target)
		}
	}
	return nil
}

func help() {
	fmt.Print(`
Usage: catalog-sync <command> [flags]

Commands:
  validate  Check a catalog snapshot file
  export    Write the Postgres catalog table to a snapshot file
  import    Load a snapshot file into Postgres and the search index
  help      Show this help message

Examples:
  catalog-sync validate -path configs/catalog.json
  catalog-sync export -path configs/catalog.json
  catalog-sync import -path configs/catalog.json -to postgres,elasticsearch

Use 'catalog-sync <command> -h' for more information about a command.
` + "\n")
}
