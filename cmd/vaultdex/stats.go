package main

import (
	"flag"
	"os"
)

func runStats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	vault := fs.String("vault", ".", "vault root directory")
	format := fs.String("format", "text", "output format (json or text)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := validateFormat(*format); err != nil {
		return err
	}

	eng := openEngine(*vault)
	defer eng.Close()

	stats, err := eng.IndexStats(cliVaultID)
	if err != nil {
		return err
	}
	if *format == "json" {
		return printStatsJSON(os.Stdout, stats)
	}
	return printStatsText(os.Stdout, stats)
}
