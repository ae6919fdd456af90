package core

import "errors"

// Sentinel errors for the semantic kinds named in SPEC_FULL.md §7. Callers
// use errors.Is against these; concrete errors returned by the engine wrap
// one of these with %w plus context.
var (
	// ErrPathUnsafe marks a path-safety violation: the candidate escapes
	// the vault, contains an illegal component, or traverses a symlink on
	// a write path.
	ErrPathUnsafe = errors.New("path safety violation")

	// ErrNotFound marks an unknown vault ID or a reference to a note that
	// does not exist where existence was required.
	ErrNotFound = errors.New("not found")

	// ErrVaultEscape marks a link resolution that would leave the vault
	// root (the resolver's segment-stack algorithm underflowed, or pushed
	// past an absolute root).
	ErrVaultEscape = errors.New("link escapes vault")

	// ErrInvalidScope marks a search/suggest call rejected for an
	// unsupported scope value.
	ErrInvalidScope = errors.New("invalid search scope")
)
