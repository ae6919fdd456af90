package core

import (
	"database/sql"
	"fmt"
	"os"
	"sync"
)

// VaultResolver maps a vault_id to its on-disk root. It is supplied by the
// host process's vault registry, which owns vault lifecycle and naming; the
// engine only ever asks it "where does this vault live" (SPEC_FULL.md §6,
// "External collaborators' contracts").
type VaultResolver interface {
	ResolveVaultRoot(vaultID string) (string, error)
}

// SingleVaultResolver resolves every vault_id to the same fixed root. It is
// the resolver the cmd/vaultdex CLI uses to play the part of the host
// process for manual, single-vault operation and scripting (SPEC_FULL.md
// §6).
type SingleVaultResolver struct {
	Root string
}

func (r SingleVaultResolver) ResolveVaultRoot(string) (string, error) {
	return r.Root, nil
}

// ChangeWatcher is a minimal interface for a filesystem watcher's coarse
// change events. Nothing in this package implements it or accepts one: an
// Engine is built from a VaultResolver alone. The watcher itself —
// debouncing, fsnotify plumbing, event coalescing — is out of this
// engine's scope; SPEC_FULL.md §6 places it in the editor/host layer.
type ChangeWatcher interface {
	OnNoteAdded(vaultID, path string)
	OnNoteRemoved(vaultID, path string)
	OnNoteChanged(vaultID, path string)
}

const (
	defaultSearchLimit  = 50
	defaultSuggestLimit = 15
)

// NoteLinksSnapshot is the combined backlink/outlink/orphan view returned by
// index_note_links_snapshot (SPEC_FULL.md §6).
type NoteLinksSnapshot struct {
	Backlinks   []NoteMeta
	Outlinks    []NoteMeta
	OrphanLinks []PlannedSuggestion
}

// vaultHandle bundles one open vault's store, worker, and progress channel.
type vaultHandle struct {
	root     string
	store    *Store
	worker   *Worker
	progress chan Progress
}

// Engine is the facade implementing every operation in SPEC_FULL.md §6. It
// lazily opens a Store+Worker pair per vault_id the first time that vault is
// touched, and keeps it open for the engine's lifetime — the same
// one-handle-per-resource pattern the teacher lineage uses for its graph
// store, generalized to many vaults behind a resolver instead of one fixed
// vault root.
type Engine struct {
	resolver VaultResolver

	mu     sync.Mutex
	vaults map[string]*vaultHandle
}

// NewEngine constructs an Engine bound to a VaultResolver. The resolver is
// consulted the first time each vault_id is used; after that the engine
// keeps its own store/worker pair open.
func NewEngine(resolver VaultResolver) *Engine {
	return &Engine{resolver: resolver, vaults: make(map[string]*vaultHandle)}
}

// Close shuts down every open vault's worker and database handle.
func (e *Engine) Close() error {
	e.mu.Lock()
	handles := e.vaults
	e.vaults = make(map[string]*vaultHandle)
	e.mu.Unlock()

	var firstErr error
	for _, h := range handles {
		h.worker.Shutdown()
		if err := h.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (e *Engine) openVault(vaultID string) (*vaultHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if h, ok := e.vaults[vaultID]; ok {
		return h, nil
	}

	root, err := e.resolver.ResolveVaultRoot(vaultID)
	if err != nil {
		return nil, fmt.Errorf("%w: vault %q: %v", ErrNotFound, vaultID, err)
	}

	store, err := OpenStore(root)
	if err != nil {
		return nil, fmt.Errorf("open vault %q: %w", vaultID, err)
	}

	cfg, err := LoadConfig(root)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("load config for vault %q: %w", vaultID, err)
	}

	progress := make(chan Progress, 64)
	worker, err := NewWorker(root, store, progress, cfg.Build.ExcludePaths)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("start worker for vault %q: %w", vaultID, err)
	}

	h := &vaultHandle{root: root, store: store, worker: worker, progress: progress}
	e.vaults[vaultID] = h
	return h, nil
}

// Progress returns the channel on which vaultID's rebuild/sync events are
// delivered. The channel is created when the vault is first opened and
// lives for the engine's lifetime.
func (e *Engine) Progress(vaultID string) (<-chan Progress, error) {
	h, err := e.openVault(vaultID)
	if err != nil {
		return nil, err
	}
	return h.progress, nil
}

// IndexBuild implements index_build: an incremental reconciliation against
// the on-disk manifest (SPEC_FULL.md §6).
func (e *Engine) IndexBuild(vaultID string) error {
	h, err := e.openVault(vaultID)
	if err != nil {
		return err
	}
	return h.worker.Sync()
}

// IndexRebuild implements index_rebuild: wipe and re-walk the vault from
// scratch.
func (e *Engine) IndexRebuild(vaultID string) error {
	h, err := e.openVault(vaultID)
	if err != nil {
		return err
	}
	return h.worker.Rebuild()
}

// IndexCancel implements index_cancel: request the currently running
// rebuild or sync stop at its next batch boundary. A no-op if nothing is
// running.
func (e *Engine) IndexCancel(vaultID string) error {
	h, err := e.openVault(vaultID)
	if err != nil {
		return err
	}
	h.worker.Cancel()
	return nil
}

// IndexSearch implements index_search: BM25-ranked full text search,
// clamped to the spec's 50-result limit.
func (e *Engine) IndexSearch(vaultID, query string, scope SearchScope, limit int) ([]Hit, error) {
	h, err := e.openVault(vaultID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > defaultSearchLimit {
		limit = defaultSearchLimit
	}
	var hits []Hit
	err = h.store.WithReadConn(func(db *sql.DB) error {
		result, err := search(db, query, scope, limit)
		hits = result
		return err
	})
	return hits, err
}

// IndexSuggest implements index_suggest: a prefix-match title/name/path
// lookup over the live index. A non-positive limit becomes the 15-result
// default; a positive limit is passed through unchanged.
func (e *Engine) IndexSuggest(vaultID, query string, limit int) ([]SuggestHit, error) {
	h, err := e.openVault(vaultID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultSuggestLimit
	}
	var hits []SuggestHit
	err = h.store.WithReadConn(func(db *sql.DB) error {
		result, err := suggest(db, query, limit)
		hits = result
		return err
	})
	return hits, err
}

// IndexSuggestPlanned implements index_suggest_planned: orphan outlink
// targets matching query, each with how many notes already reference it —
// the "note you haven't created yet" suggestion surface.
func (e *Engine) IndexSuggestPlanned(vaultID, query string, limit int) ([]PlannedSuggestion, error) {
	h, err := e.openVault(vaultID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultSuggestLimit
	}
	var hits []PlannedSuggestion
	err = h.store.WithReadConn(func(db *sql.DB) error {
		result, err := suggestPlanned(db, query, limit)
		hits = result
		return err
	})
	return hits, err
}

// IndexUpsertNote implements index_upsert_note: read notePath off disk and
// (re)index it. A missing file is treated as a delete, not an error
// (SPEC_FULL.md §7).
func (e *Engine) IndexUpsertNote(vaultID, notePath string) error {
	h, err := e.openVault(vaultID)
	if err != nil {
		return err
	}

	abs, err := SafeVaultAbs(h.root, notePath)
	if err != nil {
		return err
	}
	info, statErr := os.Stat(abs)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return h.worker.RemoveNote(notePath)
		}
		return statErr
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return err
	}

	meta := NoteMeta{
		Path:      notePath,
		Title:     ExtractTitle(data, basenameNoExt(notePath)),
		Name:      basenameNoExt(notePath),
		MTimeMs:   info.ModTime().UnixMilli(),
		SizeBytes: info.Size(),
	}
	snapshot := ExtractLocalLinks(string(data), notePath)
	return h.worker.UpsertNote(notePath, meta, string(data), snapshot.OutlinkPaths)
}

// IndexRemoveNote implements index_remove_note.
func (e *Engine) IndexRemoveNote(vaultID, notePath string) error {
	h, err := e.openVault(vaultID)
	if err != nil {
		return err
	}
	return h.worker.RemoveNote(notePath)
}

// IndexRemoveNotes implements index_remove_notes.
func (e *Engine) IndexRemoveNotes(vaultID string, notePaths []string) error {
	h, err := e.openVault(vaultID)
	if err != nil {
		return err
	}
	return h.worker.RemoveNotes(notePaths)
}

// IndexRemoveNotesByPrefix implements index_remove_notes_by_prefix (a
// deleted folder).
func (e *Engine) IndexRemoveNotesByPrefix(vaultID, prefix string) error {
	h, err := e.openVault(vaultID)
	if err != nil {
		return err
	}
	return h.worker.RemoveNotesByPrefix(prefix)
}

// IndexRenameNote implements index_rename_note: a pure database-row rename.
// The engine never touches the note's own body or any other note's body —
// rewriting the notes that link to it is a separate, explicit step the
// caller drives via RewriteNoteLinks (SPEC_FULL.md §6, "the engine reads
// note bodies but never writes them").
func (e *Engine) IndexRenameNote(vaultID, oldPath, newPath string) error {
	h, err := e.openVault(vaultID)
	if err != nil {
		return err
	}
	return h.worker.RenameNotePath(oldPath, newPath)
}

// IndexRenameFolder implements index_rename_folder: a prefix rewrite across
// every path in the store (notes, FTS mirror, both sides of outlinks).
func (e *Engine) IndexRenameFolder(vaultID, oldPrefix, newPrefix string) error {
	h, err := e.openVault(vaultID)
	if err != nil {
		return err
	}
	return h.worker.RenameFolderPaths(oldPrefix, newPrefix)
}

// IndexNoteLinksSnapshot implements index_note_links_snapshot: a note's
// resolved backlinks, resolved outlinks, and outlinks that point at paths
// with no matching note (orphan links), read under one hold of the shared
// read connection's lock. The three reads are separate statements outside
// any transaction, so a write committed between them can show in the later
// reads and not in the earlier ones.
func (e *Engine) IndexNoteLinksSnapshot(vaultID, notePath string) (NoteLinksSnapshot, error) {
	h, err := e.openVault(vaultID)
	if err != nil {
		return NoteLinksSnapshot{}, err
	}
	var snap NoteLinksSnapshot
	err = h.store.WithReadConn(func(db *sql.DB) error {
		var err error
		if snap.Backlinks, err = getBacklinks(db, notePath); err != nil {
			return err
		}
		if snap.Outlinks, err = getOutlinks(db, notePath); err != nil {
			return err
		}
		snap.OrphanLinks, err = getOrphanOutlinks(db, notePath)
		return err
	})
	return snap, err
}

// IndexExtractLocalNoteLinks implements index_extract_local_note_links. It
// is pure path algebra over markdown text and needs no vault context beyond
// the note's own path, so it does not consult the index at all.
func (e *Engine) IndexExtractLocalNoteLinks(sourcePath, markdown string) LocalLinksSnapshot {
	return ExtractLocalLinks(markdown, sourcePath)
}

// RewriteNoteLinks implements rewrite_note_links: re-bases every internal
// link in markdown from oldSourcePath to newSourcePath, redirecting any
// target present in targetMap to its mapped new path. It returns the
// rewritten body and whether anything changed; the engine never writes the
// result to disk itself — the caller (the editor, acting as the host
// process) persists it (SPEC_FULL.md §6).
func (e *Engine) RewriteNoteLinks(markdown, oldSourcePath, newSourcePath string, targetMap map[string]string) (string, bool) {
	return RewriteLinksForMove(markdown, oldSourcePath, newSourcePath, targetMap)
}

// ResolveNoteLink implements resolve_note_link: resolve a raw link target
// (wiki or markdown form) against sourcePath, returning the vault-relative
// path it points at, or false if the raw target has no internal resolution
// (an external URL, or a non-link-shaped string).
func (e *Engine) ResolveNoteLink(sourcePath, rawTarget string) (string, bool) {
	return ResolveLocalLink(sourcePath, rawTarget)
}

// GetNoteMeta looks up one note's metadata by path. The worker's in-memory
// cache is consulted first since it is authoritative for already-indexed
// notes and is kept in lockstep with every write (SPEC_FULL.md §4.6); a
// miss falls back to the DAO, which also covers the narrow window right
// after OpenStore before the cache has been primed or touched for path.
func (e *Engine) GetNoteMeta(vaultID, path string) (NoteMeta, bool, error) {
	h, err := e.openVault(vaultID)
	if err != nil {
		return NoteMeta{}, false, err
	}
	if meta, ok := h.worker.CachedMeta(path); ok {
		return meta, true, nil
	}
	var meta NoteMeta
	var found bool
	err = h.store.WithReadConn(func(db *sql.DB) error {
		var err error
		meta, found, err = getNoteMeta(db, path)
		return err
	})
	return meta, found, err
}

// ResolveNoteLinkExistence resolves rawTarget the same way ResolveNoteLink
// does, then additionally reports whether the resolved path is an indexed
// note — the cache-accelerated resolver fast-path a host can use to render
// a link as resolved vs. phantom without round-tripping the database for
// every link on a page (SPEC_FULL.md §4.6).
func (e *Engine) ResolveNoteLinkExistence(vaultID, sourcePath, rawTarget string) (path string, exists bool, err error) {
	resolved, ok := ResolveLocalLink(sourcePath, rawTarget)
	if !ok {
		return "", false, nil
	}
	_, found, err := e.GetNoteMeta(vaultID, resolved)
	if err != nil {
		return resolved, false, err
	}
	return resolved, found, nil
}

// ResolveLocalLink is the pure form of resolve_note_link: it needs no open
// vault, only sourcePath and the raw target text.
func ResolveLocalLink(sourcePath, rawTarget string) (string, bool) {
	if href, ok := parseInternalMarkdownTarget(rawTarget); ok {
		if resolved, err := ResolveMarkdownTarget(sourcePath, href); err == nil {
			return resolved, true
		}
		return "", false
	}
	if target, _, ok := parseWikiLinkTarget(rawTarget); ok {
		if resolved, err := ResolveWikiTarget(sourcePath, target); err == nil {
			return resolved, true
		}
	}
	return "", false
}
