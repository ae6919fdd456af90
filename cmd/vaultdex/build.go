package main

import "flag"

func runBuild(args []string) error {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	vault := fs.String("vault", ".", "vault root directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	eng := openEngine(*vault)
	defer eng.Close()

	done := make(chan error, 1)
	go func() { done <- eng.IndexBuild(cliVaultID) }()
	watchProgress(eng, cliVaultID)
	return <-done
}
