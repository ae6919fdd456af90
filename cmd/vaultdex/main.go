package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime/debug"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "build":
		err = runBuild(os.Args[2:])
	case "rebuild":
		err = runRebuild(os.Args[2:])
	case "cancel":
		err = runCancel(os.Args[2:])
	case "search":
		err = runSearch(os.Args[2:])
	case "suggest":
		err = runSuggest(os.Args[2:])
	case "suggest-planned":
		err = runSuggestPlanned(os.Args[2:])
	case "upsert":
		err = runUpsert(os.Args[2:])
	case "remove":
		err = runRemove(os.Args[2:])
	case "remove-prefix":
		err = runRemovePrefix(os.Args[2:])
	case "rename-note":
		err = runRenameNote(os.Args[2:])
	case "rename-folder":
		err = runRenameFolder(os.Args[2:])
	case "links-snapshot":
		err = runLinksSnapshot(os.Args[2:])
	case "extract-links":
		err = runExtractLinks(os.Args[2:])
	case "rewrite-links":
		err = runRewriteLinks(os.Args[2:])
	case "resolve-link":
		err = runResolveLink(os.Args[2:])
	case "stats":
		err = runStats(os.Args[2:])
	case "--version":
		printVersion(os.Stdout)
		return
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printVersion(w io.Writer) {
	v := version
	if v == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			v = info.Main.Version
		}
	}
	fmt.Fprintf(w, "vaultdex version %s\n", v)
}

func printUsage() {
	fmt.Fprint(os.Stderr, `Usage: vaultdex <command> [options]

Index Commands:
  build            Incrementally sync the index against the vault on disk
  rebuild          Wipe and re-walk the whole vault from scratch
  cancel           Cancel a running build/rebuild
  upsert           (Re)index one note
  remove           Remove one or more notes from the index
  remove-prefix    Remove every note under a folder prefix
  rename-note      Rename one note's indexed path
  rename-folder    Rename every indexed path under a folder prefix
  stats            Report aggregate counts for the index (notes, outlinks, orphans)

Query Commands:
  search           Full text search
  suggest          Prefix-match title/name/path suggestions
  suggest-planned  Suggest orphan link targets (notes not yet created)
  links-snapshot    Show a note's backlinks, outlinks, and orphan links
  extract-links     Extract the local links a markdown body contains
  rewrite-links     Rewrite a markdown body's links for a note or target move
  resolve-link      Resolve a single raw link target from a source path

Run 'vaultdex <command> --help' for command-specific help.
Use 'vaultdex --version' for version information.
`)
}
