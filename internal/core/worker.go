package core

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// batchSize is the number of notes committed per transaction during a
// rebuild or sync (SPEC_FULL.md §4.6).
const batchSize = 100

// ProgressPhase names one point in a run's lifecycle.
type ProgressPhase int

const (
	ProgressStarted ProgressPhase = iota
	ProgressUpdate
	ProgressCompleted
	ProgressFailed
)

// Progress is one event emitted during a Rebuild or Sync run. RunID
// correlates every event from the same run (SPEC_FULL.md, SUPPLEMENTED
// FEATURES: correlation IDs).
type Progress struct {
	RunID     string
	Phase     ProgressPhase
	Processed int
	Total     int
	Err       error
}

// commandKind distinguishes immediate mutations from run commands.
type commandKind int

const (
	cmdUpsertNote commandKind = iota
	cmdRemoveNote
	cmdRemoveNotes
	cmdRemoveNotesByPrefix
	cmdRenameNotePath
	cmdRenameFolderPaths
	cmdRebuild
	cmdSync
	cmdShutdown
)

func (k commandKind) isRun() bool {
	return k == cmdRebuild || k == cmdSync
}

func (k commandKind) isDeferrable() bool {
	return k == cmdRebuild || k == cmdSync || k == cmdShutdown
}

type command struct {
	kind commandKind

	path      string
	paths     []string
	prefix    string
	oldPath   string
	newPath   string
	oldPrefix string
	newPrefix string
	body      string
	meta      NoteMeta
	outlinks  []string

	reply chan error
}

// Worker is the single-writer indexer for one vault: a command-channel
// goroutine owning the write connection, modeled on the doneCh-guarded
// goroutine shape of a ticker-driven sync worker but driven by an explicit
// command queue instead of a timer (SPEC_FULL.md §5).
type Worker struct {
	vaultRoot    string
	store        *Store
	cache        *metaCache
	progress     chan<- Progress
	excludePaths []string

	cmdCh  chan command
	doneCh chan struct{}

	mu                     sync.Mutex
	cancel                 *atomic.Bool
	runActive              bool
	deferred               []command
	queuedSyncFromMutation bool
	runDone                chan struct{}
}

// NewWorker constructs a worker bound to one vault's store. progress may be
// nil if the caller does not want run events. excludePaths are the
// configured build-exclude globs (vaultdex.yaml's build.exclude_paths),
// applied to every disk walk before notes are read and indexed.
func NewWorker(vaultRoot string, store *Store, progress chan<- Progress, excludePaths []string) (*Worker, error) {
	cache, err := newMetaCache(defaultCacheSize)
	if err != nil {
		return nil, err
	}
	w := &Worker{
		vaultRoot:    vaultRoot,
		store:        store,
		cache:        cache,
		progress:     progress,
		excludePaths: excludePaths,
		cmdCh:        make(chan command, 16),
		doneCh:       make(chan struct{}),
		cancel:       new(atomic.Bool),
		runDone:      make(chan struct{}, 1),
	}
	metas, err := allNoteMetas(store.writeDB)
	if err != nil {
		return nil, err
	}
	for _, m := range metas {
		cache.put(m.Path, m)
	}
	go w.loop()
	return w, nil
}

// CachedMeta returns path's metadata from the in-memory cache without
// touching the database, the resolver fast-path the cache exists for
// (SPEC_FULL.md §4.6). A miss does not imply the note is unindexed — the
// cache may simply not have been primed or touched for that path yet; a
// caller needing a definitive answer should fall back to the DAO.
func (w *Worker) CachedMeta(path string) (NoteMeta, bool) {
	return w.cache.get(path)
}

// Shutdown stops the worker, waiting for any in-flight run to observe
// cancellation and exit.
func (w *Worker) Shutdown() {
	reply := make(chan error, 1)
	select {
	case w.cmdCh <- command{kind: cmdShutdown, reply: reply}:
		<-reply
	case <-w.doneCh:
	}
	<-w.doneCh
}

func (w *Worker) send(cmd command) error {
	reply := make(chan error, 1)
	cmd.reply = reply
	select {
	case w.cmdCh <- cmd:
	case <-w.doneCh:
		return fmt.Errorf("worker stopped")
	}
	return <-reply
}

// UpsertNote indexes one note's metadata, body, and outlinks in a single
// transaction: outlinks is the note's fully resolved, deduplicated outlink
// list (e.g. from ExtractLocalLinks), replacing whatever it previously had.
func (w *Worker) UpsertNote(path string, meta NoteMeta, body string, outlinks []string) error {
	meta.Path = path
	return w.send(command{kind: cmdUpsertNote, path: path, meta: meta, body: body, outlinks: outlinks})
}

func (w *Worker) RemoveNote(path string) error {
	return w.send(command{kind: cmdRemoveNote, path: path})
}

func (w *Worker) RemoveNotes(paths []string) error {
	return w.send(command{kind: cmdRemoveNotes, paths: paths})
}

func (w *Worker) RemoveNotesByPrefix(prefix string) error {
	return w.send(command{kind: cmdRemoveNotesByPrefix, prefix: prefix})
}

func (w *Worker) RenameNotePath(oldPath, newPath string) error {
	return w.send(command{kind: cmdRenameNotePath, oldPath: oldPath, newPath: newPath})
}

func (w *Worker) RenameFolderPaths(oldPrefix, newPrefix string) error {
	return w.send(command{kind: cmdRenameFolderPaths, oldPrefix: oldPrefix, newPrefix: newPrefix})
}

// Rebuild enqueues a full reindex, wiping and re-walking the vault.
func (w *Worker) Rebuild() error {
	return w.send(command{kind: cmdRebuild})
}

// Sync enqueues an incremental reconciliation against the manifest.
func (w *Worker) Sync() error {
	return w.send(command{kind: cmdSync})
}

// Cancel requests the currently running Rebuild or Sync stop at its next
// batch boundary. It is a no-op if nothing is running.
func (w *Worker) Cancel() {
	w.mu.Lock()
	token := w.cancel
	w.mu.Unlock()
	token.Store(true)
}

// loop is the worker's single goroutine. Mutations (Upsert/Remove/Rename)
// run inline, since each is one short transaction, so they are never stuck
// behind a long rebuild. A Rebuild or Sync instead runs in its own
// goroutine while loop keeps consuming cmdCh for further mutations; any
// Rebuild, Sync, or Shutdown that arrives while one is already running is
// buffered in deferred and replayed FIFO once runDone fires
// (SPEC_FULL.md §5).
func (w *Worker) loop() {
	defer close(w.doneCh)
	for {
		select {
		case cmd := <-w.cmdCh:
			if w.handleIncoming(cmd) {
				return
			}
		case <-w.runDone:
			w.mu.Lock()
			w.runActive = false
			w.mu.Unlock()
			if w.startNextDeferred() {
				return
			}
		}
	}
}

// handleIncoming processes one freshly received command. It returns true
// if the worker should stop (a Shutdown was handled directly, with no run
// active and nothing ahead of it in the queue).
func (w *Worker) handleIncoming(cmd command) bool {
	w.mu.Lock()
	active := w.runActive
	w.mu.Unlock()

	if active && cmd.kind.isDeferrable() {
		w.preemptActiveRun()
		w.mu.Lock()
		w.deferred = append(w.deferred, cmd)
		w.mu.Unlock()
		return false
	}

	switch cmd.kind {
	case cmdShutdown:
		w.rejectDeferred()
		cmd.reply <- nil
		return true
	case cmdRebuild, cmdSync:
		w.startRun(cmd)
		return false
	default:
		if active {
			w.preemptActiveRun()
		}
		w.runMutation(cmd, active)
		return false
	}
}

// preemptActiveRun raises the currently running Rebuild/Sync's cancel
// token so it stops at its next batch boundary, either instead of racing an
// incoming mutation on the write connection (SPEC_FULL.md §4.6 step 4) or
// to make way for a Rebuild, Sync, or Shutdown deferred behind it.
func (w *Worker) preemptActiveRun() {
	w.mu.Lock()
	token := w.cancel
	w.mu.Unlock()
	token.Store(true)
}

// startNextDeferred pops and starts the next buffered Rebuild/Sync, or
// finishes a buffered Shutdown. Returns true once the worker should stop.
func (w *Worker) startNextDeferred() bool {
	w.mu.Lock()
	if len(w.deferred) == 0 {
		w.mu.Unlock()
		return false
	}
	next := w.deferred[0]
	w.deferred = w.deferred[1:]
	if next.kind == cmdSync {
		w.queuedSyncFromMutation = false
	}
	w.mu.Unlock()

	if next.kind == cmdShutdown {
		w.rejectDeferred()
		next.reply <- nil
		return true
	}
	w.startRun(next)
	return false
}

// runMutation executes an immediate mutation command synchronously. If it
// preempted an active Rebuild/Sync, it queues exactly one follow-up Sync
// behind that run so the index re-converges to the filesystem once the
// preempted run finishes (SPEC_FULL.md §4.6 step 4, scenario 2). A
// mutation that preempted nothing triggers no sync of its own.
func (w *Worker) runMutation(cmd command, preempted bool) {
	var err error
	switch cmd.kind {
	case cmdUpsertNote:
		err = w.doUpsert(cmd.path, cmd.meta, cmd.body, cmd.outlinks)
	case cmdRemoveNote:
		err = w.doRemove(cmd.path)
	case cmdRemoveNotes:
		err = w.doRemoveMany(cmd.paths)
	case cmdRemoveNotesByPrefix:
		err = w.doRemoveByPrefix(cmd.prefix)
	case cmdRenameNotePath:
		err = w.doRenameNote(cmd.oldPath, cmd.newPath)
	case cmdRenameFolderPaths:
		err = w.doRenameFolder(cmd.oldPrefix, cmd.newPrefix)
	}
	cmd.reply <- err
	if preempted {
		w.queueFollowupSync()
	}
}

// startRun marks a Rebuild/Sync active, installs a fresh cancellation token
// (swapped in, never reused, per SPEC_FULL.md §5), and runs it on its own
// goroutine so loop keeps servicing mutations concurrently.
func (w *Worker) startRun(cmd command) {
	token := new(atomic.Bool)
	w.mu.Lock()
	w.cancel = token
	w.runActive = true
	w.queuedSyncFromMutation = false
	w.mu.Unlock()

	go func() {
		var err error
		if cmd.kind == cmdRebuild {
			err = w.doRebuild()
		} else {
			err = w.doSync()
		}
		cmd.reply <- err
		w.runDone <- struct{}{}
	}()
}

// queueFollowupSync defers exactly one Sync behind the run a mutation just
// preempted, guarding against every further preempting mutation queuing its
// own redundant sync behind the same run (SPEC_FULL.md §4.6 step 4). The
// queued command carries no cancel token of its own — startRun installs a
// fresh one when it actually starts running, per the cancellation token
// swap in SPEC_FULL.md §9.
func (w *Worker) queueFollowupSync() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.queuedSyncFromMutation {
		return
	}
	w.queuedSyncFromMutation = true
	w.deferred = append(w.deferred, command{kind: cmdSync, reply: make(chan error, 1)})
}

func (w *Worker) rejectDeferred() {
	w.mu.Lock()
	pending := w.deferred
	w.deferred = nil
	w.mu.Unlock()
	for _, c := range pending {
		if c.reply != nil {
			c.reply <- fmt.Errorf("worker shutting down")
		}
	}
}

func (w *Worker) emit(p Progress) {
	if w.progress == nil {
		return
	}
	select {
	case w.progress <- p:
	default:
	}
}

func (w *Worker) doUpsert(path string, meta NoteMeta, body string, outlinks []string) error {
	tx, err := w.store.writeDB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := upsertNote(tx, meta, body); err != nil {
		return err
	}
	if err := setOutlinks(tx, path, outlinks); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	w.cache.put(path, meta)
	return nil
}

func (w *Worker) doRemove(path string) error {
	tx, err := w.store.writeDB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := removeNote(tx, path); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	w.cache.remove(path)
	return nil
}

func (w *Worker) doRemoveMany(paths []string) error {
	tx, err := w.store.writeDB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := removeNotes(tx, paths); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	for _, p := range paths {
		w.cache.remove(p)
	}
	return nil
}

func (w *Worker) doRemoveByPrefix(prefix string) error {
	_, err := removeNotesByPrefix(w.store.writeDB, prefix)
	if err != nil {
		return err
	}
	w.cache.purgePrefix(prefix)
	return nil
}

func (w *Worker) doRenameNote(oldPath, newPath string) error {
	if err := renameNotePath(w.store.writeDB, oldPath, newPath); err != nil {
		return err
	}
	w.cache.rename(oldPath, newPath)
	return nil
}

func (w *Worker) doRenameFolder(oldPrefix, newPrefix string) error {
	if _, err := renameFolderPaths(w.store.writeDB, oldPrefix, newPrefix); err != nil {
		return err
	}
	for _, key := range w.cache.lru.Keys() {
		if len(key) >= len(oldPrefix) && key[:len(oldPrefix)] == oldPrefix {
			w.cache.rename(key, newPrefix+key[len(oldPrefix):])
		}
	}
	return nil
}

// doRebuild wipes the index and re-walks the vault from scratch, reading
// and upserting every markdown file that survives the build excludes in
// batches of batchSize (SPEC_FULL.md §4.6); runBatches resolves each
// note's outlinks from its own path.
func (w *Worker) doRebuild() error {
	runID := uuid.NewString()
	w.emit(Progress{RunID: runID, Phase: ProgressStarted})

	tx, err := w.store.writeDB.Begin()
	if err != nil {
		w.emit(Progress{RunID: runID, Phase: ProgressFailed, Err: err})
		return err
	}
	if err := wipeAll(tx); err != nil {
		tx.Rollback()
		w.emit(Progress{RunID: runID, Phase: ProgressFailed, Err: err})
		return err
	}
	if err := tx.Commit(); err != nil {
		w.emit(Progress{RunID: runID, Phase: ProgressFailed, Err: err})
		return err
	}
	w.cache.purgeAll()

	disk, err := WalkMarkdownFiles(w.vaultRoot)
	if err != nil {
		w.emit(Progress{RunID: runID, Phase: ProgressFailed, Err: err})
		return err
	}
	disk = FilterBuildExcludes(disk, w.excludePaths)
	sort.Slice(disk, func(i, j int) bool { return disk[i].Path < disk[j].Path })

	return w.runBatches(runID, disk)
}

// doSync diffs the manifest against a fresh disk walk and applies only the
// added/modified/removed paths in batches, per SPEC_FULL.md §4.5/§4.6.
func (w *Worker) doSync() error {
	runID := uuid.NewString()
	w.emit(Progress{RunID: runID, Phase: ProgressStarted})

	// Read the manifest off the write connection: the worker is the sole
	// writer and no batch mutation has started yet, so this is consistent
	// without needing the shared read connection.
	manifest, err := getManifest(w.store.writeDB)
	if err != nil {
		w.emit(Progress{RunID: runID, Phase: ProgressFailed, Err: err})
		return err
	}

	disk, err := WalkMarkdownFiles(w.vaultRoot)
	if err != nil {
		w.emit(Progress{RunID: runID, Phase: ProgressFailed, Err: err})
		return err
	}
	disk = FilterBuildExcludes(disk, w.excludePaths)

	plan := PlanSync(disk, manifest)
	sort.Slice(plan, func(i, j int) bool { return plan[i].Path < plan[j].Path })

	var toIndex []DiskEntry
	var toRemove []string
	for _, e := range plan {
		switch e.Action {
		case SyncAdded, SyncModified:
			toIndex = append(toIndex, DiskEntry{Path: e.Path, MTimeMs: e.MTimeMs, Size: e.Size})
		case SyncRemoved:
			toRemove = append(toRemove, e.Path)
		}
	}

	if len(toRemove) > 0 {
		tx, err := w.store.writeDB.Begin()
		if err != nil {
			w.emit(Progress{RunID: runID, Phase: ProgressFailed, Err: err})
			return err
		}
		if err := removeNotes(tx, toRemove); err != nil {
			tx.Rollback()
			w.emit(Progress{RunID: runID, Phase: ProgressFailed, Err: err})
			return err
		}
		if err := tx.Commit(); err != nil {
			w.emit(Progress{RunID: runID, Phase: ProgressFailed, Err: err})
			return err
		}
		for _, p := range toRemove {
			w.cache.remove(p)
		}
	}

	return w.runBatches(runID, toIndex)
}

// runBatches processes entries in fixed-size transactional batches,
// checking for cancellation between batches. A cancelled run stops before
// its next batch and reports Completed with the count processed so far,
// returning nil; already committed batches stay indexed. Outlinks are resolved
// structurally by ExtractLocalLinks (pure path algebra against the
// source's own location), so no cross-batch manifest state is needed.
func (w *Worker) runBatches(runID string, entries []DiskEntry) error {
	w.mu.Lock()
	token := w.cancel
	w.mu.Unlock()

	total := len(entries)
	processed := 0

	for start := 0; start < total; start += batchSize {
		if token.Load() {
			w.emit(Progress{RunID: runID, Phase: ProgressCompleted, Processed: processed, Total: total})
			return nil
		}

		end := start + batchSize
		if end > total {
			end = total
		}
		batch := entries[start:end]

		tx, err := w.store.writeDB.Begin()
		if err != nil {
			w.emit(Progress{RunID: runID, Phase: ProgressFailed, Processed: processed, Total: total, Err: err})
			return err
		}

		for _, entry := range batch {
			meta, body, err := w.readNote(entry)
			if err != nil {
				log.Printf("vaultdex: skip %s: %v", entry.Path, err)
				continue
			}
			if err := upsertNote(tx, meta, body); err != nil {
				tx.Rollback()
				w.emit(Progress{RunID: runID, Phase: ProgressFailed, Processed: processed, Total: total, Err: err})
				return err
			}
			snapshot := ExtractLocalLinks(body, entry.Path)
			if err := setOutlinks(tx, entry.Path, snapshot.OutlinkPaths); err != nil {
				tx.Rollback()
				w.emit(Progress{RunID: runID, Phase: ProgressFailed, Processed: processed, Total: total, Err: err})
				return err
			}
			w.cache.put(entry.Path, meta)
		}

		if err := tx.Commit(); err != nil {
			w.emit(Progress{RunID: runID, Phase: ProgressFailed, Processed: processed, Total: total, Err: err})
			return err
		}

		processed = end
		w.emit(Progress{RunID: runID, Phase: ProgressUpdate, Processed: processed, Total: total})
	}

	w.emit(Progress{RunID: runID, Phase: ProgressCompleted, Processed: processed, Total: total})
	return nil
}

func (w *Worker) readNote(entry DiskEntry) (NoteMeta, string, error) {
	abs, err := SafeVaultAbs(w.vaultRoot, entry.Path)
	if err != nil {
		return NoteMeta{}, "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return NoteMeta{}, "", err
	}
	body := string(data)
	title := ExtractTitle(data, basenameNoExt(entry.Path))
	meta := NoteMeta{
		Path:      entry.Path,
		Title:     title,
		Name:      basenameNoExt(entry.Path),
		MTimeMs:   entry.MTimeMs,
		SizeBytes: entry.Size,
	}
	return meta, body, nil
}

// RunWithContext wraps Rebuild/Sync with ctx-driven cancellation: if ctx is
// done before the run completes, Cancel is requested.
func (w *Worker) RunWithContext(ctx context.Context, run func() error) error {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			w.Cancel()
		case <-done:
		}
	}()
	err := run()
	close(done)
	return err
}
