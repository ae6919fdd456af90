package core

import (
	"net/url"
	"strings"
)

// ExternalLink is a non-internal (http/https) link reference captured by
// the extractor.
type ExternalLink struct {
	URL  string
	Text string
}

// LocalLinksSnapshot is the deduplicated, self-reference-free view of one
// note body's internal outlinks and external URL references (SPEC_FULL.md
// §3, "Local-links snapshot").
type LocalLinksSnapshot struct {
	OutlinkPaths  []string
	ExternalLinks []ExternalLink
}

type linkStyle int

const (
	styleVaultRelative linkStyle = iota
	styleNoteRelative
)

// linkSpan is one parsed link or wiki-link occurrence within a markdown
// body, in byte offsets into the original string. It is the shared unit
// produced by the extractor's scan and consumed by both ExtractLocalLinks
// and the rewriter. The style recorded here at parse time is not read by
// the rewriter, which re-derives each link's style from its text when it
// re-serializes it (see SPEC_FULL.md §9, "Link-style preservation").
type linkSpan struct {
	kind     string // "md" or "wiki"
	start    int
	end      int
	isEmbed  bool // wiki embed form ![[...]]; never emitted as an outlink
	url      string
	text     string // markdown link text, or wiki alias (after '|')
	hasAlias bool
	style    linkStyle
}

// No example repository in this codebase's lineage imports a CommonMark/GFM
// AST library (goldmark, blackfriday, comrak-equivalents), and wiki-links
// are not a CommonMark primitive regardless. In keeping with the prescan
// approach this design calls for when a chosen parser lacks native
// wiki-link support, scanLinks is a single hand-rolled pass per line:
// fenced code blocks are tracked and skipped wholesale, inline code spans
// are masked in place (same byte length, so offsets stay valid against the
// original line), and link/wiki-link spans are recovered with simple
// bracket-depth matching.
func scanLinks(markdown string) []linkSpan {
	var spans []linkSpan
	inFence := false
	offset := 0
	for _, rawLine := range strings.SplitAfter(markdown, "\n") {
		if rawLine == "" {
			continue
		}
		lineLen := len(rawLine)
		line := strings.TrimRight(rawLine, "\n")
		line = strings.TrimSuffix(line, "\r")
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			offset += lineLen
			continue
		}
		if inFence {
			offset += lineLen
			continue
		}
		masked := maskInlineCode(line)
		spans = append(spans, scanLineLinks(line, masked, offset)...)
		offset += lineLen
	}
	return spans
}

// maskInlineCode replaces backtick-delimited code spans with spaces of
// identical byte length, so link scanning never fires inside one, while
// keeping every other byte offset stable for slicing the original line.
func maskInlineCode(line string) string {
	b := []byte(line)
	i := 0
	for i < len(b) {
		if b[i] != '`' {
			i++
			continue
		}
		j := i
		for j < len(b) && b[j] == '`' {
			j++
		}
		tickLen := j - i
		k := j
		closeStart := -1
		for k < len(b) {
			if b[k] != '`' {
				k++
				continue
			}
			m := k
			for m < len(b) && b[m] == '`' {
				m++
			}
			if m-k == tickLen {
				closeStart = k
				break
			}
			k = m
		}
		if closeStart < 0 {
			i++
			continue
		}
		end := closeStart + tickLen
		for x := i; x < end; x++ {
			b[x] = ' '
		}
		i = end
	}
	return string(b)
}

// endsWithUnescapedBang reports whether s ends in "!" preceded by an even
// number of backslashes (i.e. the bang itself is not escaped). A trailing
// "\!" therefore does not count, matching the embed-detection rule in
// SPEC_FULL.md §4.2.
func endsWithUnescapedBang(s string) bool {
	if !strings.HasSuffix(s, "!") {
		return false
	}
	n := 0
	i := len(s) - 2
	for i >= 0 && s[i] == '\\' {
		n++
		i--
	}
	return n%2 == 0
}

// matchBracket finds the index of the closing byte that balances an
// opening byte already present at s[open], honoring nesting depth.
func matchBracket(s string, open int, openCh, closeCh byte) (int, bool) {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case openCh:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return -1, false
}

func splitWikiAlias(content string) (target, alias string, hasAlias bool) {
	if i := strings.IndexByte(content, '|'); i >= 0 {
		return content[:i], content[i+1:], true
	}
	return content, "", false
}

func classifyStyle(target string) linkStyle {
	if strings.HasPrefix(target, "./") || strings.HasPrefix(target, "../") {
		return styleNoteRelative
	}
	return styleVaultRelative
}

func scanLineLinks(line, masked string, base int) []linkSpan {
	var out []linkSpan
	i := 0
	n := len(masked)
	for i < n {
		switch {
		case masked[i] == '!' && i+2 < n && masked[i+1] == '[' && masked[i+2] == '[':
			if endsWithUnescapedBang(masked[:i+1]) {
				close := strings.Index(masked[i+3:], "]]")
				if close < 0 {
					i++
					continue
				}
				end := i + 3 + close + 2
				out = append(out, linkSpan{kind: "wiki", start: base + i, end: base + end, isEmbed: true})
				i = end
				continue
			}
			i++
		case masked[i] == '[' && i+1 < n && masked[i+1] == '[':
			close := strings.Index(masked[i+2:], "]]")
			if close < 0 {
				i++
				continue
			}
			end := i + 2 + close + 2
			content := line[i+2 : i+2+close]
			target, alias, hasAlias := splitWikiAlias(content)
			out = append(out, linkSpan{
				kind: "wiki", start: base + i, end: base + end,
				url: target, text: alias, hasAlias: hasAlias, style: classifyStyle(target),
			})
			i = end
			continue
		case masked[i] == '!' && i+1 < n && masked[i+1] == '[':
			if endsWithUnescapedBang(masked[:i+1]) {
				if j, ok := matchBracket(masked, i+1, '[', ']'); ok {
					if j+1 < n && masked[j+1] == '(' {
						if k, ok2 := matchBracket(masked, j+1, '(', ')'); ok2 {
							i = k + 1
							continue
						}
					}
					i = j + 1
					continue
				}
			}
			i++
		case masked[i] == '[':
			if j, ok := matchBracket(masked, i, '[', ']'); ok {
				if j+1 < n && masked[j+1] == '(' {
					if k, ok2 := matchBracket(masked, j+1, '(', ')'); ok2 {
						text := line[i+1 : j]
						href := line[j+2 : k]
						out = append(out, linkSpan{
							kind: "md", start: base + i, end: base + k + 1,
							url: href, text: text, style: classifyStyle(strings.TrimSpace(href)),
						})
						i = k + 1
						continue
					}
				}
			}
			i++
		default:
			i++
		}
	}
	return out
}

func isExternalURL(value string) bool {
	lower := strings.ToLower(value)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// decodePercentSequences percent-decodes a link target; a malformed escape
// is left as-is rather than rejecting the whole link (SPEC_FULL.md §7,
// parser failures never propagate as errors).
func decodePercentSequences(value string) string {
	if decoded, err := url.PathUnescape(value); err == nil {
		return decoded
	}
	return value
}

func stripFragmentAndQuery(href string) string {
	if i := strings.IndexByte(href, '#'); i >= 0 {
		href = href[:i]
	}
	if i := strings.IndexByte(href, '?'); i >= 0 {
		href = href[:i]
	}
	return href
}

func parseInternalMarkdownTarget(rawHref string) (string, bool) {
	trimmed := strings.TrimSpace(rawHref)
	if trimmed == "" || isExternalURL(trimmed) {
		return "", false
	}
	href := decodePercentSequences(trimmed)
	href = strings.TrimSpace(stripFragmentAndQuery(href))
	if href == "" || !hasMDSuffix(href) {
		return "", false
	}
	return href, true
}

func parseWikiLinkTarget(rawTarget string) (target, fragment string, ok bool) {
	trimmed := strings.TrimSpace(rawTarget)
	if trimmed == "" {
		return "", "", false
	}
	before, frag, _ := strings.Cut(trimmed, "#")
	before = strings.TrimSpace(before)
	if before == "" {
		return "", "", false
	}
	decoded := decodePercentSequences(before)
	if decoded == "" || isExternalURL(decoded) {
		return "", "", false
	}
	return decoded, frag, true
}

func parseAllLinks(markdown, sourcePath string) (mdTargets, wikiTargets []string, external []ExternalLink) {
	for _, span := range scanLinks(markdown) {
		switch span.kind {
		case "md":
			target, ok := parseInternalMarkdownTarget(span.url)
			if !ok {
				trimmedURL := strings.TrimSpace(span.url)
				if isExternalURL(trimmedURL) {
					text := strings.TrimSpace(span.text)
					if text == "" {
						text = trimmedURL
					}
					external = append(external, ExternalLink{URL: trimmedURL, Text: text})
				}
				continue
			}
			resolved, err := ResolveMarkdownTarget(sourcePath, target)
			if err != nil {
				continue
			}
			mdTargets = append(mdTargets, resolved)
		case "wiki":
			if span.isEmbed {
				continue
			}
			target, _, ok := parseWikiLinkTarget(span.url)
			if !ok {
				continue
			}
			resolved, err := ResolveWikiTarget(sourcePath, target)
			if err != nil {
				continue
			}
			wikiTargets = append(wikiTargets, resolved)
		}
	}
	return mdTargets, wikiTargets, external
}

// ExtractLocalLinks implements SPEC_FULL.md §4.2/§6's
// index_extract_local_note_links: the ordered, deduplicated, self-reference
// -free outlink list and the deduplicated external-link list for one note
// body.
func ExtractLocalLinks(markdown, sourcePath string) LocalLinksSnapshot {
	mdTargets, wikiTargets, external := parseAllLinks(markdown, sourcePath)

	var outlinks []string
	seen := make(map[string]bool, len(mdTargets)+len(wikiTargets))
	for _, p := range mdTargets {
		if p == sourcePath || seen[p] {
			continue
		}
		seen[p] = true
		outlinks = append(outlinks, p)
	}
	for _, p := range wikiTargets {
		if p == sourcePath || seen[p] {
			continue
		}
		seen[p] = true
		outlinks = append(outlinks, p)
	}

	var ext []ExternalLink
	seenURL := make(map[string]bool, len(external))
	for _, e := range external {
		if seenURL[e.URL] {
			continue
		}
		seenURL[e.URL] = true
		ext = append(ext, e)
	}

	return LocalLinksSnapshot{OutlinkPaths: outlinks, ExternalLinks: ext}
}

// ExtractTitle derives a note's title from its first 8 KiB (see
// SPEC_FULL.md §9, "Open question: body size" — resolved): the first
// non-empty line, with a leading "# " stripped, or the file stem if no
// such line appears in that window.
func ExtractTitle(head []byte, stem string) string {
	const window = 8 * 1024
	if len(head) > window {
		head = head[:window]
	}
	for _, line := range strings.Split(string(head), "\n") {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		return strings.TrimPrefix(trimmed, "# ")
	}
	return stem
}
