package main

import "flag"

// runCancel requests cancellation of a running build/rebuild. In a one-shot
// CLI invocation there is nothing else running in this process to cancel;
// the subcommand exists for parity with the engine's index_cancel operation
// and for a long-running host embedding the same package.
func runCancel(args []string) error {
	fs := flag.NewFlagSet("cancel", flag.ContinueOnError)
	vault := fs.String("vault", ".", "vault root directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	eng := openEngine(*vault)
	defer eng.Close()
	return eng.IndexCancel(cliVaultID)
}
