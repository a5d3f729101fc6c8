// Command init-schema creates the SQLite database and applies the schema.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/scholarmatch/scholarmatch/internal/config"
	"github.com/scholarmatch/scholarmatch/internal/store"
)

func main() {
	var dbPath string
	flag.StringVar(&dbPath, "db", "", "database path (default from config)")
	flag.Parse()

	cfg, err := config.Load(config.GetEnv())
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}
	if dbPath == "" {
		dbPath = cfg.Database.Path
	}

	st, err := store.Open(dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "init-schema:", err)
		os.Exit(1)
	}
	defer st.Close()

	fmt.Println("schema applied:", dbPath)
}
