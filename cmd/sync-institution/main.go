// Command sync-institution ingests every author affiliated with one
// institution, identified by its ROR id, into the store and the vector
// index.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/scholarmatch/scholarmatch/internal/config"
	"github.com/scholarmatch/scholarmatch/internal/index"
	logpkg "github.com/scholarmatch/scholarmatch/internal/logger"
	"github.com/scholarmatch/scholarmatch/internal/metrics"
	advisorrepo "github.com/scholarmatch/scholarmatch/internal/repository/advisor"
	institutionrepo "github.com/scholarmatch/scholarmatch/internal/repository/institution"
	"github.com/scholarmatch/scholarmatch/internal/store"
	openaiEmb "github.com/scholarmatch/scholarmatch/internal/transport/openai"
	"github.com/scholarmatch/scholarmatch/internal/transport/openalex"
	syncuc "github.com/scholarmatch/scholarmatch/internal/usecase/sync"
)

func main() {
	var ror string
	flag.StringVar(&ror, "ror", "", "institution ROR id (required)")
	flag.Parse()

	if ror == "" {
		fmt.Fprintln(os.Stderr, "usage: sync-institution -ror <ror-id>")
		os.Exit(2)
	}

	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to create logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterSyncMetrics()

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sync-institution:", err)
		os.Exit(1)
	}
	defer st.Close()

	embedder := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Logger:     logger,
	})

	feed := openalex.NewClient(openalex.Config{
		BaseURL:  cfg.Feed.BaseURL,
		Mailto:   cfg.Feed.Mailto,
		PageSize: cfg.Feed.PageSize,
		Timeout:  time.Duration(cfg.Feed.TimeoutSec) * time.Second,
	})

	// Extend an existing snapshot instead of replacing it, so repeated
	// runs across institutions accumulate. An unreadable snapshot degrades
	// to an empty index; rebuild-index restores the rest from the store.
	idx := index.LoadOrEmpty(cfg.Embedding.Dimensions, cfg.Index.VectorPath, cfg.Index.MappingPath, logger)

	svc := syncuc.New(feed, advisorrepo.New(st.DB()), institutionrepo.New(st.DB()),
		idx, embedder, syncuc.Config{
			PageDelay:   time.Duration(cfg.Feed.PageDelayMS) * time.Millisecond,
			VectorPath:  cfg.Index.VectorPath,
			MappingPath: cfg.Index.MappingPath,
		}, logger)

	report, err := svc.SyncInstitution(context.Background(), ror)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sync-institution:", err)
		os.Exit(1)
	}

	fmt.Printf("sync complete: %d created, %d updated, %d failed across %d pages\n",
		report.Created, report.Updated, report.Failed, report.Pages)
}
