package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/vaultdex/vaultdex/internal/core"
)

// cliVaultID is the fixed vault_id the CLI uses when talking to core.Engine:
// a single process, single vault, acting as its own host (SPEC_FULL.md §6).
const cliVaultID = "default"

func openEngine(vault string) *core.Engine {
	return core.NewEngine(core.SingleVaultResolver{Root: vault})
}

// watchProgress drains vaultID's progress channel to stderr until a
// terminal phase (completed or failed) arrives, so build/rebuild report how
// far they got even when cancelled mid-run.
func watchProgress(eng *core.Engine, vault string) error {
	ch, err := eng.Progress(vault)
	if err != nil {
		return err
	}
	for p := range ch {
		switch p.Phase {
		case core.ProgressStarted:
			fmt.Fprintf(os.Stderr, "run %s: started\n", p.RunID)
		case core.ProgressUpdate:
			fmt.Fprintf(os.Stderr, "run %s: %s / %s notes\n", p.RunID, humanize.Comma(int64(p.Processed)), humanize.Comma(int64(p.Total)))
		case core.ProgressCompleted:
			fmt.Fprintf(os.Stderr, "run %s: completed (%s notes)\n", p.RunID, humanize.Comma(int64(p.Processed)))
			return nil
		case core.ProgressFailed:
			fmt.Fprintf(os.Stderr, "run %s: failed: %v\n", p.RunID, p.Err)
			return p.Err
		}
	}
	return nil
}
