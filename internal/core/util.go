package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// dataDirName is the vault-relative directory holding the engine's database
// and excluded from every tree walk, same as a version-control directory.
const dataDirName = ".vaultdex"

// excludedDirs are leaf directory names skipped entirely during tree walks.
var excludedDirs = map[string]bool{
	dataDirName: true,
	".git":      true,
}

// IsExcludedDir reports whether dirName (a leaf directory name, not a path)
// should be skipped by tree traversals.
func IsExcludedDir(dirName string) bool {
	return excludedDirs[dirName]
}

// NormalizePath cleans a vault-relative path to forward slashes with no
// leading "./".
func NormalizePath(path string) string {
	clean := filepath.ToSlash(filepath.Clean(path))
	clean = strings.TrimPrefix(clean, "./")
	if clean == "." {
		return ""
	}
	return clean
}

// basenameNoExt returns the file stem (basename without extension).
func basenameNoExt(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// hasIllegalComponent reports whether a vault-relative path is empty or
// absolute (including a leading "/"), or whether any "/"-delimited segment
// is empty, ".", or "..". Volume names and UNC prefixes are caught only
// where filepath.IsAbs reports them. A path accepted here still must pass SafeVaultAbs's
// containment check — this only rejects components that could never be
// part of a normalized relative path.
func hasIllegalComponent(relPath string) bool {
	if relPath == "" {
		return true
	}
	if filepath.IsAbs(relPath) || strings.HasPrefix(relPath, "/") {
		return true
	}
	for _, seg := range strings.Split(filepath.ToSlash(relPath), "/") {
		switch seg {
		case "", ".", "..":
			return true
		}
	}
	return false
}

// nearestExistingAncestor walks upward from abs until it finds a path that
// exists on disk, returning that ancestor and the suffix (vault-relative
// to the ancestor, slash-separated) that does not yet exist.
func nearestExistingAncestor(abs string) (ancestor string, suffix []string, err error) {
	cur := abs
	var pending []string
	for {
		if _, statErr := os.Stat(cur); statErr == nil {
			return cur, pending, nil
		} else if !os.IsNotExist(statErr) {
			return "", nil, statErr
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", nil, fmt.Errorf("no existing ancestor for %s", abs)
		}
		pending = append([]string{filepath.Base(cur)}, pending...)
		cur = parent
	}
}

// safeVaultAbsImpl canonicalizes vaultRoot, joins noteRel, walks up to the
// nearest existing ancestor, canonicalizes that ancestor, and reattaches the
// non-existent suffix. It rejects a result that escapes the canonical root.
func safeVaultAbsImpl(vaultRoot, noteRel string) (string, error) {
	if hasIllegalComponent(noteRel) {
		return "", fmt.Errorf("%w: illegal path component in %q", ErrPathUnsafe, noteRel)
	}

	rootCanon, err := filepath.EvalSymlinks(vaultRoot)
	if err != nil {
		return "", fmt.Errorf("%w: vault root: %v", ErrPathUnsafe, err)
	}

	candidate := filepath.Join(rootCanon, filepath.FromSlash(noteRel))

	ancestor, suffix, err := nearestExistingAncestor(candidate)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPathUnsafe, err)
	}
	ancestorCanon, err := filepath.EvalSymlinks(ancestor)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPathUnsafe, err)
	}

	resolved := ancestorCanon
	if len(suffix) > 0 {
		resolved = filepath.Join(append([]string{ancestorCanon}, suffix...)...)
	}

	if resolved != rootCanon && !strings.HasPrefix(resolved, rootCanon+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes vault root", ErrPathUnsafe, noteRel)
	}
	return resolved, nil
}

// SafeVaultAbs resolves a vault-relative path for reading: it must not
// escape the vault root, but existing symlink components along the way are
// tolerated (the caller only observes the file, it does not write through
// the link).
func SafeVaultAbs(vaultRoot, noteRel string) (string, error) {
	return safeVaultAbsImpl(vaultRoot, noteRel)
}

// reject SymlinkComponents walks rel's components from root and fails if
// any existing component is itself a symbolic link.
func rejectSymlinkComponents(root string, relSlash string) error {
	current := root
	for _, seg := range strings.Split(relSlash, "/") {
		if seg == "" {
			continue
		}
		current = filepath.Join(current, seg)
		info, err := os.Lstat(current)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("%w: path contains symlink component: %s", ErrPathUnsafe, current)
		}
	}
	return nil
}

// SafeVaultAbsForWrite resolves a vault-relative path for writing. In
// addition to SafeVaultAbs's containment check, every existing path
// component is rejected if it is a symbolic link, so a write can never be
// redirected outside the vault through a link planted on disk.
func SafeVaultAbsForWrite(vaultRoot, noteRel string) (string, error) {
	rootCanon, err := filepath.EvalSymlinks(vaultRoot)
	if err != nil {
		return "", fmt.Errorf("%w: vault root: %v", ErrPathUnsafe, err)
	}
	if err := rejectSymlinkComponents(rootCanon, filepath.ToSlash(noteRel)); err != nil {
		return "", err
	}
	return safeVaultAbsImpl(vaultRoot, noteRel)
}

// SafeVaultRenameTargetAbs resolves a rename destination: the parent
// directory is validated exactly as SafeVaultAbsForWrite would, but the
// leaf component itself is not required to be absent, so a case-only
// rename on a case-insensitive filesystem is accepted (see DESIGN.md /
// SPEC_FULL.md §9 for the open question this resolves).
func SafeVaultRenameTargetAbs(vaultRoot, noteRel string) (string, error) {
	rel := NormalizePath(noteRel)
	dir := filepath.ToSlash(filepath.Dir(rel))
	leaf := filepath.Base(rel)
	if dir == "." {
		dir = ""
	}

	var parentAbs string
	var err error
	if dir == "" {
		parentAbs, err = filepath.EvalSymlinks(vaultRoot)
	} else {
		parentAbs, err = SafeVaultAbsForWrite(vaultRoot, dir)
	}
	if err != nil {
		return "", err
	}
	return filepath.Join(parentAbs, leaf), nil
}
