package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/vaultdex/vaultdex/internal/core"
)

func runLinksSnapshot(args []string) error {
	fs := flag.NewFlagSet("links-snapshot", flag.ContinueOnError)
	vault := fs.String("vault", ".", "vault root directory")
	path := fs.String("path", "", "vault-relative note path")
	format := fs.String("format", "text", "output format (json or text)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return fmt.Errorf("--path is required")
	}
	if err := validateFormat(*format); err != nil {
		return err
	}

	eng := openEngine(*vault)
	defer eng.Close()

	snap, err := eng.IndexNoteLinksSnapshot(cliVaultID, *path)
	if err != nil {
		return err
	}
	if *format == "json" {
		return printSnapshotJSON(os.Stdout, snap)
	}
	return printSnapshotText(os.Stdout, snap)
}

func runExtractLinks(args []string) error {
	fs := flag.NewFlagSet("extract-links", flag.ContinueOnError)
	vault := fs.String("vault", ".", "vault root directory")
	source := fs.String("source", "", "vault-relative source note path")
	file := fs.String("file", "", "markdown file to read (defaults to --source under --vault)")
	format := fs.String("format", "text", "output format (json or text)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *source == "" {
		return fmt.Errorf("--source is required")
	}
	if err := validateFormat(*format); err != nil {
		return err
	}

	markdown, err := readMarkdownInput(*vault, *source, *file)
	if err != nil {
		return err
	}

	snap := core.ExtractLocalLinks(markdown, *source)
	if *format == "json" {
		return printLocalLinksJSON(os.Stdout, snap)
	}
	return printLocalLinksText(os.Stdout, snap)
}

func runRewriteLinks(args []string) error {
	fs := flag.NewFlagSet("rewrite-links", flag.ContinueOnError)
	vault := fs.String("vault", ".", "vault root directory")
	from := fs.String("from", "", "note's old source path")
	to := fs.String("to", "", "note's new source path (defaults to --from)")
	file := fs.String("file", "", "markdown file to read (defaults to --from under --vault)")
	write := fs.Bool("write", false, "persist the rewritten body back to --to")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *from == "" {
		return fmt.Errorf("--from is required")
	}
	newPath := *to
	if newPath == "" {
		newPath = *from
	}

	markdown, err := readMarkdownInput(*vault, *from, *file)
	if err != nil {
		return err
	}

	rewritten, changed := core.RewriteLinksForMove(markdown, *from, newPath, nil)
	if !*write {
		fmt.Fprint(os.Stdout, rewritten)
		return nil
	}
	if !changed {
		return nil
	}
	return core.ApplyBodyRewrites(*vault, map[string]string{newPath: rewritten})
}

func runResolveLink(args []string) error {
	fs := flag.NewFlagSet("resolve-link", flag.ContinueOnError)
	source := fs.String("source", "", "vault-relative source note path")
	target := fs.String("target", "", "raw link target text")
	checkExists := fs.Bool("check-exists", false, "also report whether the resolved path is an indexed note (opens --vault)")
	vault := fs.String("vault", ".", "vault root directory (only read with --check-exists)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *source == "" || *target == "" {
		return fmt.Errorf("--source and --target are required")
	}

	if !*checkExists {
		resolved, ok := core.ResolveLocalLink(*source, *target)
		if !ok {
			fmt.Fprintln(os.Stderr, "unresolved")
			os.Exit(1)
		}
		fmt.Fprintln(os.Stdout, resolved)
		return nil
	}

	eng := openEngine(*vault)
	defer eng.Close()

	resolved, exists, err := eng.ResolveNoteLinkExistence(cliVaultID, *source, *target)
	if err != nil {
		return err
	}
	if resolved == "" {
		fmt.Fprintln(os.Stderr, "unresolved")
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, "%s\texists=%t\n", resolved, exists)
	return nil
}

func readMarkdownInput(vault, sourcePath, file string) (string, error) {
	target := file
	if target == "" {
		target = vault + "/" + sourcePath
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
