// Command keygen issues a site key directly against the hub's store.
// Intended for operators bootstrapping a new agent site.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/syndilab/hub/internal/keys"
	"github.com/syndilab/hub/internal/sqlstore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		databaseURL string
		siteName    string
		list        bool
	)

	flag.StringVar(&databaseURL, "db", envOrDefault("DATABASE_URL", "hub.db"), "Database URL or SQLite path")
	flag.StringVar(&siteName, "site", "", "Site label for the new key")
	flag.BoolVar(&list, "list", false, "List existing keys instead of generating one")
	flag.Parse()

	if !list && siteName == "" {
		return fmt.Errorf("--site is required (or use --list)")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	store, err := sqlstore.Open(databaseURL)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	ctx, cancelFn := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelFn()

	registry := keys.NewRegistry(store, nil, logger)

	if list {
		existing, err := registry.List(ctx)
		if err != nil {
			return fmt.Errorf("list keys: %w", err)
		}
		for _, k := range existing {
			lastSeen := "never"
			if k.LastSeen != nil {
				lastSeen = k.LastSeen.UTC().Format(time.RFC3339)
			}
			fmt.Printf("%d\t%s\t%s\t%s\tlast seen %s\n", k.ID, k.Value, k.SiteName, k.Status, lastSeen)
		}
		return nil
	}

	key, err := registry.Generate(ctx, siteName)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	fmt.Printf("Site key for %q (ID %d):\n%s\n", key.SiteName, key.ID, key.Value)
	return nil
}

func envOrDefault(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
