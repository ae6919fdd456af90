package core

import (
	"fmt"
	"strings"
)

// ResolveRelative implements the link resolver of SPEC_FULL.md §4.3: split
// sourceDir by "/", then walk target's "/"-delimited segments treating "."
// and "" as no-ops, ".." as a pop (failing when the stack is already at the
// vault root), and anything else as a push. The result is the joined,
// vault-relative path, or an error wrapping ErrVaultEscape if the walk
// underflows.
func ResolveRelative(sourceDir, target string) (string, error) {
	var segments []string
	if sourceDir != "" {
		segments = strings.Split(sourceDir, "/")
	}

	for _, part := range strings.Split(target, "/") {
		switch part {
		case ".", "":
			// no-op
		case "..":
			if len(segments) == 0 {
				return "", fmt.Errorf("%w: %q pops above vault root", ErrVaultEscape, target)
			}
			segments = segments[:len(segments)-1]
		default:
			segments = append(segments, part)
		}
	}

	joined := strings.Join(segments, "/")
	if joined == "" {
		return "", fmt.Errorf("%w: %q resolves to the vault root itself", ErrVaultEscape, target)
	}
	return joined, nil
}

// sourceDirOf returns the directory portion of a vault-relative note path
// ("" for a root-level note), the same split ResolveRelative expects.
func sourceDirOf(sourcePath string) string {
	if i := strings.LastIndexByte(sourcePath, '/'); i >= 0 {
		return sourcePath[:i]
	}
	return ""
}

// ensureMDSuffix appends ".md" unless value already ends with it
// (case-insensitive).
func ensureMDSuffix(value string) string {
	if strings.HasSuffix(strings.ToLower(value), ".md") {
		return value
	}
	return value + ".md"
}

// hasMDSuffix reports a case-insensitive ".md" suffix match.
func hasMDSuffix(value string) bool {
	return strings.HasSuffix(strings.ToLower(value), ".md")
}

// ResolveWikiTarget resolves a wiki-link's already trimmed, percent-decoded,
// fragment-stripped target against sourcePath, per SPEC_FULL.md §4.2/§4.3:
// a leading "/" makes it vault-absolute (resolved against the empty source
// directory); otherwise it resolves relative to the source's directory. The
// target is given a ".md" suffix first if it lacks one.
func ResolveWikiTarget(sourcePath, rawTarget string) (string, error) {
	if strings.HasPrefix(rawTarget, "/") {
		stripped := strings.TrimPrefix(rawTarget, "/")
		if stripped == "" {
			return "", fmt.Errorf("%w: empty vault-absolute wiki target", ErrVaultEscape)
		}
		return ResolveRelative("", ensureMDSuffix(stripped))
	}
	return ResolveRelative(sourceDirOf(sourcePath), ensureMDSuffix(rawTarget))
}

// ResolveMarkdownTarget resolves an internal markdown link's href (already
// trimmed, percent-decoded, fragment/query-stripped) against sourcePath. A
// non-".md" href is not an internal note link and is rejected.
func ResolveMarkdownTarget(sourcePath, href string) (string, error) {
	if !hasMDSuffix(href) {
		return "", fmt.Errorf("%w: %q is not a markdown link target", ErrVaultEscape, href)
	}
	return ResolveRelative(sourceDirOf(sourcePath), href)
}
