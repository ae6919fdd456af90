package core

import (
	"testing"
)

// TestRebuildMinimalVault exercises SPEC_FULL.md §8 scenario 1: two notes,
// one outlink between them, one search hit on the linking note's title.
func TestRebuildMinimalVault(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore(dir)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	tx, err := store.writeDB.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := upsertNote(tx, NoteMeta{Path: "a.md", Title: "Alpha", Name: "a"}, "# Alpha\n[B](b.md)"); err != nil {
		t.Fatalf("upsertNote a.md: %v", err)
	}
	if err := upsertNote(tx, NoteMeta{Path: "b.md", Title: "Beta", Name: "b"}, "# Beta"); err != nil {
		t.Fatalf("upsertNote b.md: %v", err)
	}
	if err := setOutlinks(tx, "a.md", []string{"b.md"}); err != nil {
		t.Fatalf("setOutlinks: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	manifest, err := getManifest(store.writeDB)
	if err != nil {
		t.Fatalf("getManifest: %v", err)
	}
	if len(manifest) != 2 {
		t.Fatalf("manifest has %d entries, want 2", len(manifest))
	}

	outlinks, err := getOutlinks(store.writeDB, "a.md")
	if err != nil {
		t.Fatalf("getOutlinks: %v", err)
	}
	if len(outlinks) != 1 || outlinks[0].Path != "b.md" {
		t.Fatalf("getOutlinks(a.md) = %+v, want exactly [b.md]", outlinks)
	}

	hits, err := search(store.writeDB, "Alpha", ScopeAll, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].Meta.Path != "a.md" {
		t.Fatalf("search(Alpha) = %+v, want a single hit on a.md", hits)
	}
}

// TestRenameFolderPaths_PrefixRewrite exercises SPEC_FULL.md §8 scenario 3.
func TestRenameFolderPaths_PrefixRewrite(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore(dir)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	tx, err := store.writeDB.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := upsertNote(tx, NoteMeta{Path: "docs/a.md", Title: "A", Name: "a"}, "[[b]]"); err != nil {
		t.Fatalf("upsertNote docs/a.md: %v", err)
	}
	if err := upsertNote(tx, NoteMeta{Path: "docs/b.md", Title: "B", Name: "b"}, "no links"); err != nil {
		t.Fatalf("upsertNote docs/b.md: %v", err)
	}
	if err := setOutlinks(tx, "docs/a.md", []string{"docs/b.md"}); err != nil {
		t.Fatalf("setOutlinks: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	count, err := renameFolderPaths(store.writeDB, "docs/", "archive/")
	if err != nil {
		t.Fatalf("renameFolderPaths: %v", err)
	}
	if count != 2 {
		t.Fatalf("renameFolderPaths count = %d, want 2", count)
	}

	outlinks, err := getOutlinks(store.writeDB, "archive/a.md")
	if err != nil {
		t.Fatalf("getOutlinks: %v", err)
	}
	if len(outlinks) != 1 || outlinks[0].Path != "archive/b.md" {
		t.Fatalf("getOutlinks(archive/a.md) = %+v, want exactly [archive/b.md]", outlinks)
	}

	manifest, err := getManifest(store.writeDB)
	if err != nil {
		t.Fatalf("getManifest: %v", err)
	}
	if _, ok := manifest["docs/a.md"]; ok {
		t.Errorf("manifest still has docs/a.md after rename")
	}
	if _, ok := manifest["archive/a.md"]; !ok {
		t.Errorf("manifest missing archive/a.md after rename")
	}
}

// TestSuggestPlanned_OrphanDetection exercises SPEC_FULL.md §8 scenario 4.
func TestSuggestPlanned_OrphanDetection(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore(dir)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	tx, err := store.writeDB.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := upsertNote(tx, NoteMeta{Path: "src.md", Title: "Src", Name: "src"}, "[[planned/idea]]"); err != nil {
		t.Fatalf("upsertNote: %v", err)
	}
	if err := setOutlinks(tx, "src.md", []string{"planned/idea.md"}); err != nil {
		t.Fatalf("setOutlinks: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	planned, err := suggestPlanned(store.writeDB, "idea", 10)
	if err != nil {
		t.Fatalf("suggestPlanned: %v", err)
	}
	want := []PlannedSuggestion{{TargetPath: "planned/idea.md", RefCount: 1}}
	if len(planned) != 1 || planned[0] != want[0] {
		t.Fatalf("suggestPlanned(idea) = %+v, want %+v", planned, want)
	}
}

// TestRemoveNotesByPrefix_LikeEscape exercises SPEC_FULL.md §8 scenario 6: a
// literal '%' in the prefix must not behave as a LIKE wildcard.
func TestRemoveNotesByPrefix_LikeEscape(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore(dir)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	tx, err := store.writeDB.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := upsertNote(tx, NoteMeta{Path: "p50%/a.md", Title: "A", Name: "a"}, "x"); err != nil {
		t.Fatalf("upsertNote p50%%/a.md: %v", err)
	}
	if err := upsertNote(tx, NoteMeta{Path: "p500/a.md", Title: "A", Name: "a"}, "x"); err != nil {
		t.Fatalf("upsertNote p500/a.md: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	count, err := removeNotesByPrefix(store.writeDB, "p50%/")
	if err != nil {
		t.Fatalf("removeNotesByPrefix: %v", err)
	}
	if count != 1 {
		t.Fatalf("removeNotesByPrefix(p50%%/) removed %d rows, want 1", count)
	}

	manifest, err := getManifest(store.writeDB)
	if err != nil {
		t.Fatalf("getManifest: %v", err)
	}
	if _, ok := manifest["p50%/a.md"]; ok {
		t.Errorf("p50%%/a.md still present after removeNotesByPrefix")
	}
	if _, ok := manifest["p500/a.md"]; !ok {
		t.Errorf("p500/a.md was wrongly removed by removeNotesByPrefix(p50%%/)")
	}
}

// TestGetNoteMeta_HitAndMiss grounds the resolver fast-path's DAO fallback.
func TestGetNoteMeta_HitAndMiss(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore(dir)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	tx, err := store.writeDB.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := upsertNote(tx, NoteMeta{Path: "a.md", Title: "Alpha", Name: "a", MTimeMs: 42, SizeBytes: 7}, "# Alpha"); err != nil {
		t.Fatalf("upsertNote: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	meta, ok, err := getNoteMeta(store.writeDB, "a.md")
	if err != nil {
		t.Fatalf("getNoteMeta: %v", err)
	}
	if !ok || meta.Title != "Alpha" || meta.MTimeMs != 42 || meta.SizeBytes != 7 {
		t.Fatalf("getNoteMeta(a.md) = %+v, %v, want Alpha/42/7 found", meta, ok)
	}

	_, ok, err = getNoteMeta(store.writeDB, "missing.md")
	if err != nil {
		t.Fatalf("getNoteMeta: %v", err)
	}
	if ok {
		t.Errorf("getNoteMeta(missing.md) reported found, want not found")
	}
}

func TestAllNoteMetas(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore(dir)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	tx, err := store.writeDB.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := upsertNote(tx, NoteMeta{Path: "a.md", Title: "A", Name: "a"}, "x"); err != nil {
		t.Fatalf("upsertNote: %v", err)
	}
	if err := upsertNote(tx, NoteMeta{Path: "b.md", Title: "B", Name: "b"}, "y"); err != nil {
		t.Fatalf("upsertNote: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	metas, err := allNoteMetas(store.writeDB)
	if err != nil {
		t.Fatalf("allNoteMetas: %v", err)
	}
	if len(metas) != 2 {
		t.Fatalf("allNoteMetas returned %d entries, want 2", len(metas))
	}
}
