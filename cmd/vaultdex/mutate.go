package main

import (
	"flag"
	"fmt"
)

func runUpsert(args []string) error {
	fs := flag.NewFlagSet("upsert", flag.ContinueOnError)
	vault := fs.String("vault", ".", "vault root directory")
	path := fs.String("path", "", "vault-relative note path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return fmt.Errorf("--path is required")
	}

	eng := openEngine(*vault)
	defer eng.Close()
	return eng.IndexUpsertNote(cliVaultID, *path)
}

func runRemove(args []string) error {
	fs := flag.NewFlagSet("remove", flag.ContinueOnError)
	vault := fs.String("vault", ".", "vault root directory")
	var paths multiString
	fs.Var(&paths, "path", "vault-relative note path (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("at least one --path is required")
	}

	eng := openEngine(*vault)
	defer eng.Close()
	if len(paths) == 1 {
		return eng.IndexRemoveNote(cliVaultID, paths[0])
	}
	return eng.IndexRemoveNotes(cliVaultID, paths)
}

func runRemovePrefix(args []string) error {
	fs := flag.NewFlagSet("remove-prefix", flag.ContinueOnError)
	vault := fs.String("vault", ".", "vault root directory")
	prefix := fs.String("prefix", "", "vault-relative folder prefix")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *prefix == "" {
		return fmt.Errorf("--prefix is required")
	}

	eng := openEngine(*vault)
	defer eng.Close()
	return eng.IndexRemoveNotesByPrefix(cliVaultID, *prefix)
}

func runRenameNote(args []string) error {
	fs := flag.NewFlagSet("rename-note", flag.ContinueOnError)
	vault := fs.String("vault", ".", "vault root directory")
	from := fs.String("from", "", "current indexed path")
	to := fs.String("to", "", "new indexed path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *from == "" || *to == "" {
		return fmt.Errorf("--from and --to are required")
	}

	eng := openEngine(*vault)
	defer eng.Close()
	return eng.IndexRenameNote(cliVaultID, *from, *to)
}

func runRenameFolder(args []string) error {
	fs := flag.NewFlagSet("rename-folder", flag.ContinueOnError)
	vault := fs.String("vault", ".", "vault root directory")
	from := fs.String("from", "", "current indexed folder prefix")
	to := fs.String("to", "", "new indexed folder prefix")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *from == "" || *to == "" {
		return fmt.Errorf("--from and --to are required")
	}

	eng := openEngine(*vault)
	defer eng.Close()
	return eng.IndexRenameFolder(cliVaultID, *from, *to)
}
