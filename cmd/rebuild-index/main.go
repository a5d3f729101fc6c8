// Command rebuild-index regenerates the vector index snapshot from every
// advisor row that carries an embedding.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/scholarmatch/scholarmatch/internal/config"
	"github.com/scholarmatch/scholarmatch/internal/index"
	logpkg "github.com/scholarmatch/scholarmatch/internal/logger"
	advisorrepo "github.com/scholarmatch/scholarmatch/internal/repository/advisor"
	"github.com/scholarmatch/scholarmatch/internal/store"
	syncuc "github.com/scholarmatch/scholarmatch/internal/usecase/sync"
)

func main() {
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

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "rebuild-index:", err)
		os.Exit(1)
	}
	defer st.Close()

	idx := index.New(cfg.Embedding.Dimensions)
	svc := syncuc.New(nil, advisorrepo.New(st.DB()), nil, idx, nil, syncuc.Config{
		VectorPath:  cfg.Index.VectorPath,
		MappingPath: cfg.Index.MappingPath,
	}, logger)

	count, err := svc.RebuildFromStore(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "rebuild-index:", err)
		os.Exit(1)
	}

	fmt.Printf("index rebuilt: %d vectors -> %s\n", count, cfg.Index.VectorPath)
}
