package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/vaultdex/vaultdex/internal/core"
)

// validateFormat checks that format is "json" or "text".
func validateFormat(format string) error {
	if format != "json" && format != "text" {
		return fmt.Errorf("invalid format: %q (must be json or text)", format)
	}
	return nil
}

// --- Hit output (search) ---

type hitJSON struct {
	Path    string  `json:"path"`
	Title   string  `json:"title"`
	Score   float64 `json:"score"`
	Snippet string  `json:"snippet"`
}

func printHitsJSON(w io.Writer, hits []core.Hit) error {
	out := make([]hitJSON, len(hits))
	for i, h := range hits {
		out[i] = hitJSON{Path: h.Meta.Path, Title: h.Meta.Title, Score: h.Score, Snippet: h.Snippet}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printHitsText(w io.Writer, hits []core.Hit) error {
	for _, h := range hits {
		fmt.Fprintf(w, "%s  %s  (score %.3f)\n", h.Meta.Path, h.Meta.Title, h.Score)
		if h.Snippet != "" {
			fmt.Fprintf(w, "  %s\n", h.Snippet)
		}
	}
	return nil
}

// --- SuggestHit output (suggest) ---

type suggestJSON struct {
	Path  string  `json:"path"`
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

func printSuggestJSON(w io.Writer, hits []core.SuggestHit) error {
	out := make([]suggestJSON, len(hits))
	for i, h := range hits {
		out[i] = suggestJSON{Path: h.Meta.Path, Title: h.Meta.Title, Score: h.Score}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printSuggestText(w io.Writer, hits []core.SuggestHit) error {
	for _, h := range hits {
		fmt.Fprintf(w, "%s  %s\n", h.Meta.Path, h.Meta.Title)
	}
	return nil
}

// --- PlannedSuggestion output (suggest-planned) ---

type plannedJSON struct {
	TargetPath string `json:"target_path"`
	RefCount   int    `json:"ref_count"`
}

func printPlannedJSON(w io.Writer, hits []core.PlannedSuggestion) error {
	out := make([]plannedJSON, len(hits))
	for i, h := range hits {
		out[i] = plannedJSON{TargetPath: h.TargetPath, RefCount: h.RefCount}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printPlannedText(w io.Writer, hits []core.PlannedSuggestion) error {
	for _, h := range hits {
		fmt.Fprintf(w, "%s  (%d references)\n", h.TargetPath, h.RefCount)
	}
	return nil
}

// --- NoteLinksSnapshot output (links-snapshot) ---

type metaJSON struct {
	Path  string `json:"path"`
	Title string `json:"title"`
}

type snapshotJSON struct {
	Backlinks   []metaJSON    `json:"backlinks"`
	Outlinks    []metaJSON    `json:"outlinks"`
	OrphanLinks []plannedJSON `json:"orphan_links"`
}

func toMetaJSON(notes []core.NoteMeta) []metaJSON {
	out := make([]metaJSON, len(notes))
	for i, n := range notes {
		out[i] = metaJSON{Path: n.Path, Title: n.Title}
	}
	return out
}

func toPlannedJSON(orphans []core.PlannedSuggestion) []plannedJSON {
	out := make([]plannedJSON, len(orphans))
	for i, o := range orphans {
		out[i] = plannedJSON{TargetPath: o.TargetPath, RefCount: o.RefCount}
	}
	return out
}

func printSnapshotJSON(w io.Writer, snap core.NoteLinksSnapshot) error {
	out := snapshotJSON{
		Backlinks:   toMetaJSON(snap.Backlinks),
		Outlinks:    toMetaJSON(snap.Outlinks),
		OrphanLinks: toPlannedJSON(snap.OrphanLinks),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printSnapshotText(w io.Writer, snap core.NoteLinksSnapshot) error {
	fmt.Fprintln(w, "backlinks:")
	for _, n := range snap.Backlinks {
		fmt.Fprintf(w, "- %s  %s\n", n.Path, n.Title)
	}
	fmt.Fprintln(w, "outlinks:")
	for _, n := range snap.Outlinks {
		fmt.Fprintf(w, "- %s  %s\n", n.Path, n.Title)
	}
	fmt.Fprintln(w, "orphan_links:")
	for _, o := range snap.OrphanLinks {
		fmt.Fprintf(w, "- %s  (%d references)\n", o.TargetPath, o.RefCount)
	}
	return nil
}

// --- LocalLinksSnapshot output (extract-links) ---

type externalLinkJSON struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

type localLinksJSON struct {
	OutlinkPaths  []string           `json:"outlink_paths"`
	ExternalLinks []externalLinkJSON `json:"external_links"`
}

func printLocalLinksJSON(w io.Writer, snap core.LocalLinksSnapshot) error {
	out := localLinksJSON{OutlinkPaths: snap.OutlinkPaths}
	for _, e := range snap.ExternalLinks {
		out.ExternalLinks = append(out.ExternalLinks, externalLinkJSON{URL: e.URL, Text: e.Text})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printLocalLinksText(w io.Writer, snap core.LocalLinksSnapshot) error {
	fmt.Fprintln(w, "outlink_paths:")
	for _, p := range snap.OutlinkPaths {
		fmt.Fprintf(w, "- %s\n", p)
	}
	fmt.Fprintln(w, "external_links:")
	for _, e := range snap.ExternalLinks {
		fmt.Fprintf(w, "- %s  %s\n", e.URL, e.Text)
	}
	return nil
}

// --- StatsResult output (stats) ---

type statsJSON struct {
	NotesTotal    int `json:"notes_total"`
	OutlinksTotal int `json:"outlinks_total"`
	OrphanLinks   int `json:"orphan_links"`
}

func printStatsJSON(w io.Writer, stats core.StatsResult) error {
	out := statsJSON{
		NotesTotal:    stats.NotesTotal,
		OutlinksTotal: stats.OutlinksTotal,
		OrphanLinks:   stats.OrphanLinks,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printStatsText(w io.Writer, stats core.StatsResult) error {
	fmt.Fprintf(w, "notes_total: %d\n", stats.NotesTotal)
	fmt.Fprintf(w, "outlinks_total: %d\n", stats.OutlinksTotal)
	fmt.Fprintf(w, "orphan_links: %d\n", stats.OrphanLinks)
	return nil
}
