package main

import (
	"flag"
	"os"
)

func runSuggest(args []string) error {
	fs := flag.NewFlagSet("suggest", flag.ContinueOnError)
	vault := fs.String("vault", ".", "vault root directory")
	query := fs.String("query", "", "suggestion prefix")
	limit := fs.Int("limit", 15, "maximum results")
	format := fs.String("format", "text", "output format (json or text)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := validateFormat(*format); err != nil {
		return err
	}

	eng := openEngine(*vault)
	defer eng.Close()

	hits, err := eng.IndexSuggest(cliVaultID, *query, *limit)
	if err != nil {
		return err
	}
	if *format == "json" {
		return printSuggestJSON(os.Stdout, hits)
	}
	return printSuggestText(os.Stdout, hits)
}

func runSuggestPlanned(args []string) error {
	fs := flag.NewFlagSet("suggest-planned", flag.ContinueOnError)
	vault := fs.String("vault", ".", "vault root directory")
	query := fs.String("query", "", "suggestion substring")
	limit := fs.Int("limit", 15, "maximum results")
	format := fs.String("format", "text", "output format (json or text)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := validateFormat(*format); err != nil {
		return err
	}

	eng := openEngine(*vault)
	defer eng.Close()

	hits, err := eng.IndexSuggestPlanned(cliVaultID, *query, *limit)
	if err != nil {
		return err
	}
	if *format == "json" {
		return printPlannedJSON(os.Stdout, hits)
	}
	return printPlannedText(os.Stdout, hits)
}
