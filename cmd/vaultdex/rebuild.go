package main

import "flag"

func runRebuild(args []string) error {
	fs := flag.NewFlagSet("rebuild", flag.ContinueOnError)
	vault := fs.String("vault", ".", "vault root directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	eng := openEngine(*vault)
	defer eng.Close()

	done := make(chan error, 1)
	go func() { done <- eng.IndexRebuild(cliVaultID) }()
	watchProgress(eng, cliVaultID)
	return <-done
}
