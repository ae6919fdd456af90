package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the vaultdex.yaml configuration file.
type Config struct {
	Build   BuildConfig   `yaml:"build"`
	Exclude ExcludeConfig `yaml:"exclude"`
}

// BuildConfig holds build-time settings.
type BuildConfig struct {
	ExcludePaths []string `yaml:"exclude_paths"`
}

// ExcludeConfig holds path exclusion glob patterns from the config file.
type ExcludeConfig struct {
	Paths []string `yaml:"paths"`
}

// ExcludeFilter holds compiled path exclusion globs for query filtering.
// A nil *ExcludeFilter means no exclusion.
type ExcludeFilter struct {
	PathGlobs []string // SQLite GLOB patterns (case-sensitive)
}

// LoadConfig reads vaultdex.yaml from the vault root. Returns a zero Config
// and nil error if the file does not exist.
func LoadConfig(vaultPath string) (Config, error) {
	p := filepath.Join(vaultPath, "vaultdex.yaml")
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("vaultdex.yaml: %w", err)
	}
	return cfg, nil
}

// validateGlobPatterns checks that none of the patterns use unsupported
// character classes.
func validateGlobPatterns(patterns []string) error {
	for _, p := range patterns {
		if strings.Contains(p, "[") {
			return fmt.Errorf("unsupported glob pattern (character class): %s", p)
		}
	}
	return nil
}

// FilterBuildExcludes removes files matching any of the given glob patterns.
// The worker applies it to the result of each disk walk, before planning a
// sync or indexing a rebuild (SPEC_FULL.md §4.5).
func FilterBuildExcludes(files []DiskEntry, patterns []string) []DiskEntry {
	if len(patterns) == 0 {
		return files
	}
	result := make([]DiskEntry, 0, len(files))
	for _, f := range files {
		excluded := false
		for _, p := range patterns {
			if globMatch(p, f.Path) {
				excluded = true
				break
			}
		}
		if !excluded {
			result = append(result, f)
		}
	}
	return result
}

// NewExcludeFilter merges config and CLI path exclusions into an
// ExcludeFilter. Returns nil if there are no exclusions.
func NewExcludeFilter(cfg ExcludeConfig, cliPaths []string) (*ExcludeFilter, error) {
	paths := make([]string, 0, len(cfg.Paths)+len(cliPaths))
	paths = append(paths, cfg.Paths...)
	paths = append(paths, cliPaths...)

	if err := validateGlobPatterns(paths); err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, nil
	}
	return &ExcludeFilter{PathGlobs: paths}, nil
}

// PathExcludeSQL returns a SQL fragment and args for excluding paths.
// alias is the column expression for path (e.g. "n.path").
func (ef *ExcludeFilter) PathExcludeSQL(alias string) (string, []any) {
	if ef == nil || len(ef.PathGlobs) == 0 {
		return "", nil
	}
	var parts []string
	var args []any
	for _, g := range ef.PathGlobs {
		parts = append(parts, alias+" GLOB ?")
		args = append(args, g)
	}
	return fmt.Sprintf(" AND NOT (%s)", strings.Join(parts, " OR ")), args
}

// IsPathExcluded reports whether path matches any configured exclusion glob.
func (ef *ExcludeFilter) IsPathExcluded(path string) bool {
	if ef == nil {
		return false
	}
	for _, g := range ef.PathGlobs {
		if globMatch(g, path) {
			return true
		}
	}
	return false
}

// globMatch implements SQLite GLOB semantics in Go.
// '*' matches any sequence of characters (including '/').
// '?' matches exactly one character.
// '[' is treated as a literal character (character classes not supported).
func globMatch(pattern, s string) bool {
	return globMatchImpl([]rune(pattern), []rune(s))
}

func globMatchImpl(pattern, s []rune) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			for len(pattern) > 0 && pattern[0] == '*' {
				pattern = pattern[1:]
			}
			if len(pattern) == 0 {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if globMatchImpl(pattern, s[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(s) == 0 {
				return false
			}
			pattern = pattern[1:]
			s = s[1:]
		default:
			if len(s) == 0 || pattern[0] != s[0] {
				return false
			}
			pattern = pattern[1:]
			s = s[1:]
		}
	}
	return len(s) == 0
}
