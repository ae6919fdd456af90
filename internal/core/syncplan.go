package core

import (
	"os"
	"path/filepath"
)

// SyncAction classifies how one on-disk path compares against the
// manifest (SPEC_FULL.md §4.5).
type SyncAction int

const (
	SyncUnchanged SyncAction = iota
	SyncAdded
	SyncModified
	SyncRemoved
)

// SyncEntry is one path's comparison result.
type SyncEntry struct {
	Path    string
	Action  SyncAction
	MTimeMs int64
	Size    int64
}

// DiskEntry is a single markdown file found on disk during a walk.
type DiskEntry struct {
	Path    string // vault-relative, forward-slashed
	MTimeMs int64
	Size    int64
}

// WalkMarkdownFiles walks vaultRoot depth-first, skipping excluded
// directories and symlinks, returning every ".md" file found with its
// vault-relative path, mtime in milliseconds, and size in bytes.
func WalkMarkdownFiles(vaultRoot string) ([]DiskEntry, error) {
	var entries []DiskEntry
	err := filepath.Walk(vaultRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == vaultRoot {
			return nil
		}
		if info.Mode()&os.ModeSymlink != 0 {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			if IsExcludedDir(info.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(info.Name()) != ".md" {
			return nil
		}
		rel, err := filepath.Rel(vaultRoot, path)
		if err != nil {
			return err
		}
		entries = append(entries, DiskEntry{
			Path:    NormalizePath(rel),
			MTimeMs: info.ModTime().UnixMilli(),
			Size:    info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// PlanSync diffs a fresh disk listing against the persisted manifest,
// producing one SyncEntry per path that needs attention plus unchanged
// paths, per SPEC_FULL.md §4.5. Order is: added/modified in disk-walk
// order, then removed in manifest iteration order (callers that need a
// stable removal order should sort).
func PlanSync(disk []DiskEntry, manifest map[string]ManifestEntry) []SyncEntry {
	seen := make(map[string]bool, len(disk))
	var plan []SyncEntry

	for _, d := range disk {
		seen[d.Path] = true
		existing, ok := manifest[d.Path]
		switch {
		case !ok:
			plan = append(plan, SyncEntry{Path: d.Path, Action: SyncAdded, MTimeMs: d.MTimeMs, Size: d.Size})
		case existing.MTimeMs != d.MTimeMs || existing.SizeBytes != d.Size:
			plan = append(plan, SyncEntry{Path: d.Path, Action: SyncModified, MTimeMs: d.MTimeMs, Size: d.Size})
		default:
			plan = append(plan, SyncEntry{Path: d.Path, Action: SyncUnchanged, MTimeMs: d.MTimeMs, Size: d.Size})
		}
	}

	for path, entry := range manifest {
		if seen[path] {
			continue
		}
		plan = append(plan, SyncEntry{Path: path, Action: SyncRemoved, MTimeMs: entry.MTimeMs, Size: entry.SizeBytes})
	}

	return plan
}
