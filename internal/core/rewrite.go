package core

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// rewriteBackup holds a note's original content so a failed batch write can
// be rolled back, the same phased-write/rollback shape the teacher lineage
// uses for its own link rewriter.
type rewriteBackup struct {
	path    string
	content []byte
	perm    os.FileMode
}

func writeFilePreservePerm(path string, data []byte, perm os.FileMode) error {
	if err := os.WriteFile(path, data, perm); err != nil {
		return err
	}
	return os.Chmod(path, perm)
}

// computeRelativePath is the inverse of ResolveRelative: given a source
// directory and a target path (both vault-relative, slash-separated), it
// returns the "../"-prefixed path from the former to the latter.
func computeRelativePath(sourceDir, target string) string {
	var srcSegs []string
	if sourceDir != "" {
		srcSegs = strings.Split(sourceDir, "/")
	}
	tgtSegs := strings.Split(target, "/")

	common := 0
	for common < len(srcSegs) && common < len(tgtSegs)-1 && srcSegs[common] == tgtSegs[common] {
		common++
	}

	ups := len(srcSegs) - common
	var parts []string
	for i := 0; i < ups; i++ {
		parts = append(parts, "..")
	}
	parts = append(parts, tgtSegs[common:]...)
	if len(parts) == 0 {
		return "."
	}
	return strings.Join(parts, "/")
}

func splitHrefSuffix(href string) (path, suffix string) {
	if i := strings.IndexAny(href, "#?"); i >= 0 {
		return href[:i], href[i:]
	}
	return href, ""
}

// reshapeMarkdownHref recomputes a markdown link's href against newTarget,
// keeping the "./"/"../" explicit-relative style of the original href (or
// its bare form) and any fragment/query suffix untouched.
func reshapeMarkdownHref(origHref, sourcePath, newTarget string) string {
	decoded := decodePercentSequences(strings.TrimSpace(origHref))
	path, suffix := splitHrefSuffix(decoded)
	hadDotPrefix := strings.HasPrefix(path, "./") || strings.HasPrefix(path, "../")

	rel := computeRelativePath(sourceDirOf(sourcePath), newTarget)
	if hadDotPrefix && !strings.HasPrefix(rel, "..") {
		rel = "./" + rel
	}
	return rel + suffix
}

// reshapeWikiTarget recomputes a wiki-link target against newTarget,
// preserving a vault-absolute leading "/", an explicit "./"/"../" prefix,
// or the bare note-relative form, plus whether the original spelled out a
// ".md" suffix (SPEC_FULL.md §4.7, "Link-style preservation").
func reshapeWikiTarget(origTarget, sourcePath, newTarget string) string {
	trimmed := strings.TrimSpace(origTarget)
	isRootAbs := strings.HasPrefix(trimmed, "/")
	hadDotPrefix := strings.HasPrefix(trimmed, "./") || strings.HasPrefix(trimmed, "../")
	hadMDSuffix := hasMDSuffix(trimmed)

	var rel string
	if isRootAbs {
		rel = newTarget
	} else {
		rel = computeRelativePath(sourceDirOf(sourcePath), newTarget)
	}
	stem := strings.TrimSuffix(rel, ".md")

	var out string
	switch {
	case isRootAbs:
		out = "/" + stem
	case hadDotPrefix && !strings.HasPrefix(stem, ".."):
		out = "./" + stem
	default:
		out = stem
	}
	if hadMDSuffix {
		out += ".md"
	}
	return out
}

// RewriteLinksForRename rewrites every link in body whose resolved target
// equals oldTarget to point at newTarget instead, preserving each link's
// original style captured at scan time — vault-relative vs note-relative,
// wikilink vs markdown link, alias text, and ".md" suffix handling.
func RewriteLinksForRename(body, sourcePath, oldTarget, newTarget string) (string, bool) {
	spans := scanLinks(body)
	if len(spans) == 0 {
		return body, false
	}

	type edit struct {
		start, end int
		text       string
	}
	var edits []edit

	for _, span := range spans {
		switch span.kind {
		case "md":
			href, ok := parseInternalMarkdownTarget(span.url)
			if !ok {
				continue
			}
			resolved, err := ResolveMarkdownTarget(sourcePath, href)
			if err != nil || resolved != oldTarget {
				continue
			}
			newHref := reshapeMarkdownHref(span.url, sourcePath, newTarget)
			edits = append(edits, edit{span.start, span.end, "[" + span.text + "](" + newHref + ")"})
		case "wiki":
			if span.isEmbed {
				continue
			}
			target, fragment, ok := parseWikiLinkTarget(span.url)
			if !ok {
				continue
			}
			resolved, err := ResolveWikiTarget(sourcePath, target)
			if err != nil || resolved != oldTarget {
				continue
			}
			newTargetText := reshapeWikiTarget(span.url, sourcePath, newTarget)
			inner := newTargetText
			if fragment != "" {
				inner += "#" + fragment
			}
			if span.hasAlias {
				inner += "|" + span.text
			}
			edits = append(edits, edit{span.start, span.end, "[[" + inner + "]]"})
		}
	}

	if len(edits) == 0 {
		return body, false
	}

	sort.Slice(edits, func(i, j int) bool { return edits[i].start < edits[j].start })
	var b strings.Builder
	cursor := 0
	for _, e := range edits {
		b.WriteString(body[cursor:e.start])
		b.WriteString(e.text)
		cursor = e.end
	}
	b.WriteString(body[cursor:])
	return b.String(), true
}

// RewriteLinksForMove rewrites every link in body, re-based from
// oldSourcePath to newSourcePath: each link's resolved target is looked up
// in targetMap (the target itself may also have moved) and the link is
// re-serialized relative to newSourcePath, preserving its original style,
// whether or not its target or its source directory actually changed. The
// bool result reports whether the returned body differs from body. This
// is the engine's rewrite_note_links primitive (SPEC_FULL.md §6).
func RewriteLinksForMove(body, oldSourcePath, newSourcePath string, targetMap map[string]string) (string, bool) {
	spans := scanLinks(body)
	if len(spans) == 0 {
		return body, false
	}

	type edit struct {
		start, end int
		text       string
	}
	var edits []edit

	for _, span := range spans {
		switch span.kind {
		case "md":
			href, ok := parseInternalMarkdownTarget(span.url)
			if !ok {
				continue
			}
			resolved, err := ResolveMarkdownTarget(oldSourcePath, href)
			if err != nil {
				continue
			}
			newTarget := resolved
			if mapped, ok := targetMap[resolved]; ok {
				newTarget = mapped
			}
			newHref := reshapeMarkdownHref(span.url, newSourcePath, newTarget)
			if newHref == href && oldSourcePath == newSourcePath {
				continue
			}
			text := "[" + span.text + "](" + newHref + ")"
			if text == body[span.start:span.end] {
				continue
			}
			edits = append(edits, edit{span.start, span.end, text})
		case "wiki":
			if span.isEmbed {
				continue
			}
			target, fragment, ok := parseWikiLinkTarget(span.url)
			if !ok {
				continue
			}
			resolved, err := ResolveWikiTarget(oldSourcePath, target)
			if err != nil {
				continue
			}
			newTarget := resolved
			if mapped, ok := targetMap[resolved]; ok {
				newTarget = mapped
			}
			newTargetText := reshapeWikiTarget(span.url, newSourcePath, newTarget)
			if newTargetText == target && oldSourcePath == newSourcePath {
				continue
			}
			inner := newTargetText
			if fragment != "" {
				inner += "#" + fragment
			}
			if span.hasAlias {
				inner += "|" + span.text
			}
			text := "[[" + inner + "]]"
			if text == body[span.start:span.end] {
				continue
			}
			edits = append(edits, edit{span.start, span.end, text})
		}
	}

	if len(edits) == 0 {
		return body, false
	}

	sort.Slice(edits, func(i, j int) bool { return edits[i].start < edits[j].start })
	var b strings.Builder
	cursor := 0
	for _, e := range edits {
		b.WriteString(body[cursor:e.start])
		b.WriteString(e.text)
		cursor = e.end
	}
	b.WriteString(body[cursor:])
	return b.String(), true
}

// RewriteLinksForRenames applies a whole batch of old->new target renames
// to one note's body (e.g. a folder rename moves many notes at once).
func RewriteLinksForRenames(body, sourcePath string, renames map[string]string) (string, bool) {
	current := body
	changedAny := false
	for oldTarget, newTarget := range renames {
		updated, changed := RewriteLinksForRename(current, sourcePath, oldTarget, newTarget)
		if changed {
			current = updated
			changedAny = true
		}
	}
	return current, changedAny
}

// ApplyBodyRewrites writes each path -> newBody pair to disk under
// vaultRoot, recording a backup of each original before it is overwritten
// so a mid-batch failure can be rolled back (grounded on the teacher's
// phased-write/rollback rewrite pattern).
func ApplyBodyRewrites(vaultRoot string, newBodies map[string]string) error {
	var backups []rewriteBackup
	restore := func() {
		for _, b := range backups {
			_ = writeFilePreservePerm(filepath.Join(vaultRoot, b.path), b.content, b.perm)
		}
	}

	for path, newBody := range newBodies {
		abs, err := SafeVaultAbsForWrite(vaultRoot, path)
		if err != nil {
			restore()
			return err
		}
		info, err := os.Stat(abs)
		if err != nil {
			restore()
			return err
		}
		original, err := os.ReadFile(abs)
		if err != nil {
			restore()
			return err
		}
		backups = append(backups, rewriteBackup{path: path, content: original, perm: info.Mode().Perm()})
		if err := writeFilePreservePerm(abs, []byte(newBody), info.Mode().Perm()); err != nil {
			restore()
			return err
		}
	}
	return nil
}
