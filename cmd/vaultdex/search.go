package main

import (
	"flag"
	"os"

	"github.com/vaultdex/vaultdex/internal/core"
)

func runSearch(args []string) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	vault := fs.String("vault", ".", "vault root directory")
	query := fs.String("query", "", "search query")
	scope := fs.String("scope", "all", "search scope (all, path, title, content)")
	limit := fs.Int("limit", 50, "maximum results (capped at 50)")
	format := fs.String("format", "text", "output format (json or text)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := validateFormat(*format); err != nil {
		return err
	}

	eng := openEngine(*vault)
	defer eng.Close()

	hits, err := eng.IndexSearch(cliVaultID, *query, core.SearchScope(*scope), *limit)
	if err != nil {
		return err
	}
	if *format == "json" {
		return printHitsJSON(os.Stdout, hits)
	}
	return printHitsText(os.Stdout, hits)
}
