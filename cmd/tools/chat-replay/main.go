// cmd/tools/chat-replay/main.go
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	"retail-chat-workers/internal/bootstrap"
	"retail-chat-workers/internal/common/config"
	"retail-chat-workers/internal/common/database"
	"retail-chat-workers/internal/common/logger"
	"retail-chat-workers/internal/common/observability"
	"retail-chat-workers/internal/models"
)

var cli struct {
	Config     string   `help:"Config file; defaults to configs/config.yaml plus the environment overlay" default:""`
	User       string   `help:"User id the messages are sent as" default:"replay-user"`
	Platform   string   `help:"Platform recorded on each message" default:"cli"`
	FormatHint string   `help:"Reply format hint (plain, markdown, rich)" default:"plain" enum:"plain,markdown,rich"`
	Snapshot   string   `help:"Catalog snapshot file; forces the file catalog source" default:""`
	Offline    bool     `help:"Do not connect to Redis, Elasticsearch or Postgres"`
	LogLevel   string   `help:"Log level for pipeline logs on stderr" default:"warn"`
	Messages   []string `arg:"" optional:"" help:"Messages to replay in order; read from stdin when empty"`
}

func main() {
	_ = kong.Parse(&cli,
		kong.Name("chat-replay"),
		kong.Description("Replay customer messages through a locally built chat pipeline and print each result as JSON."),
	)

	cfg, err := loadConfig(cli.Config)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cli.Snapshot != "" {
		cfg.Catalog.Source = config.CatalogSourceFile
		cfg.Catalog.SnapshotPath = cli.Snapshot
	}

	zapLog := logger.New(cli.LogLevel, "console")
	defer zapLog.Sync()
	appLog := logger.NewZapAdapter(zapLog)

	ctx := context.Background()
	infra := bootstrap.Infra{}
	if !cli.Offline {
		infra = connect(ctx, cfg, appLog)
	}

	container, err := bootstrap.Build(ctx, cfg, infra, observability.NewNoop("chat-replay"), appLog)
	if err != nil {
		log.Fatalf("pipeline: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	err = replay(ctx, container.Orchestrator, messages(cli.Messages, os.Stdin), enc)
	if err != nil {
		log.Fatalf("replay: %v", err)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// connect opens whatever infrastructure answers within a short deadline.
func connect(ctx context.Context, cfg *config.Config, log logger.Logger) bootstrap.Infra {
	infra := bootstrap.Infra{}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rdb := database.NewRedis(cfg.Database.Redis)
	if err := rdb.Ping(pingCtx); err != nil {
		log.Warn("redis unavailable", map[string]interface{}{"error": err.Error()})
	} else {
		infra.Redis = rdb.Client
	}

	if len(cfg.Database.Elasticsearch.Addresses) == 0 {
		return connectCatalog(pingCtx, cfg, infra, log)
	}
	if es, err := database.NewElasticsearch(cfg.Database.Elasticsearch); err == nil {
		if err := es.Ping(pingCtx); err != nil {
			log.Warn("elasticsearch unavailable", map[string]interface{}{"error": err.Error()})
		} else {
			infra.Elasticsearch = es.Client
		}
	}
	return connectCatalog(pingCtx, cfg, infra, log)
}

func connectCatalog(ctx context.Context, cfg *config.Config, infra bootstrap.Infra, log logger.Logger) bootstrap.Infra {
	if cfg.Catalog.Source == config.CatalogSourcePostgres {
		if pg, err := database.NewPostgres(cfg.Database.Postgres); err == nil {
			if err := pg.Ping(ctx); err != nil {
				log.Warn("postgres unavailable", map[string]interface{}{"error": err.Error()})
			} else {
				infra.Postgres = pg.DB
			}
		}
	}
	return infra
}

type turnHandler interface {
	HandleTurn(ctx context.Context, msg models.InboundMessage) models.PipelineResult
}

type encoder interface {
	Encode(v interface{}) error
}

func replay(ctx context.Context, pipeline turnHandler, texts <-chan string, out encoder) error {
	for text := range texts {
		res := pipeline.HandleTurn(ctx, models.InboundMessage{
			Text:       text,
			UserID:     cli.User,
			Platform:   cli.Platform,
			FormatHint: cli.FormatHint,
			ReceivedAt: time.Now().UTC(),
		})
		if err := out.Encode(res); err != nil {
			return err
		}
	}
	return nil
}

// messages yields args, or one message per non-blank line of r.
func messages(args []string, r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		if len(args) > 0 {
			for _, a := range args {
				ch <- a
			}
			return
		}
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				ch <- line
			}
		}
		if err := scanner.Err(); err != nil {
			fmt.Fprintf(os.Stderr, "read stdin: %v\n", err)
		}
	}()
	return ch
}
