package rcmodel

import "strings"

// NormalizePath implements the glossary's "normalized path": trailing
// separators stripped, forward separators converted to backward separators,
// case preserved. Callers that need equality should compare with
// strings.EqualFold, mirroring the teacher's samePath helper
// (internal/maintenance/delete.go) generalized from filepath.Abs+EqualFold
// to a pure string transform (the planner and profiler normalize paths that
// may not exist locally yet, e.g. snapshot-relative rewrites, so they
// cannot round-trip through filepath.Abs).
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "/", "\\")
	for len(p) > 3 && strings.HasSuffix(p, "\\") {
		p = p[:len(p)-1]
	}
	return p
}

// SamePath reports whether two paths are equal once normalized, compared
// case-insensitively per the glossary's normalized-path definition.
func SamePath(a, b string) bool {
	return strings.EqualFold(NormalizePath(a), NormalizePath(b))
}
