package planner

import (
	"strings"

	"robocurse/internal/rcmodel"
)

// MapDest computes the destination path for src relative to sourceRoot,
// joined under destRoot (spec §4.2's destination mapping).
//
// This generalizes the teacher's backupDestPath/buildBackupPath (paths.go):
// same "strip root, preserve relative structure, join under new root" shape,
// but operating on normalized strings instead of filepath.Rel, since the
// source tree may live on a different OS than this process (the copy tool's
// own path grammar, not Go's local filepath package).
//
// src is always produced by the profiler's own tree walk, so src is always
// under sourceRoot by construction; an src that isn't is a planner bug, not
// a runtime condition, and panics rather than returning ErrPathEscapesRoot
// the way the teacher's backupDestPath does for untrusted input.
func MapDest(src, sourceRoot, destRoot string) string {
	normSrc := rcmodel.NormalizePath(src)
	normRoot := rcmodel.NormalizePath(sourceRoot)

	if rcmodel.SamePath(normSrc, normRoot) {
		return destRoot
	}

	if len(normSrc) <= len(normRoot) || !strings.EqualFold(normSrc[:len(normRoot)], normRoot) {
		panic("planner: MapDest src is not under sourceRoot: " + src + " / " + sourceRoot)
	}

	remainder := normSrc[len(normRoot):]
	remainder = strings.TrimPrefix(remainder, `\`)

	if destRoot == "" {
		return remainder
	}
	if strings.HasSuffix(destRoot, `\`) {
		return destRoot + remainder
	}
	return destRoot + `\` + remainder
}
