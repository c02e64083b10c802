package profiler

import (
	"strconv"
	"strings"
)

// listResult accumulates the output of a single copy-tool list-only
// invocation (spec §4.1's output parser).
type listResult struct {
	TotalSize int64
	FileCount int64
	DirCount  int64
}

// parseListOutput scans line-oriented copy-tool list output, matching
// `^\s+<size:decimal>\s+<path>$` on each line. A directory line has size 0
// and a trailing path separator; anything else with a parseable leading
// size is a file line. Lines that don't match are skipped silently.
// Whitespace inside the path itself is preserved verbatim — only the
// delimiting run of leading whitespace before the size, and the single run
// between size and path, are consumed.
//
// This is a direct generalization of the teacher's line-scanning shape in
// internal/config/config.go's parseIniSections: trim, classify, accumulate
// into a result struct — but the grammar and the result type are entirely
// different (no sections, no key=value pairs, no comments).
func parseListOutput(output string) listResult {
	var res listResult
	for _, line := range strings.Split(output, "\n") {
		size, path, ok := splitSizeAndPath(line)
		if !ok {
			continue
		}
		if size == 0 && hasTrailingSeparator(path) {
			res.DirCount++
			continue
		}
		res.TotalSize += size
		res.FileCount++
	}
	return res
}

// splitSizeAndPath extracts the leading decimal size and the remaining path
// from one output line, requiring at least one leading whitespace char and
// at least one whitespace char separating size from path.
func splitSizeAndPath(line string) (size int64, path string, ok bool) {
	i := 0
	for i < len(line) && isSpace(line[i]) {
		i++
	}
	if i == 0 {
		return 0, "", false // no leading whitespace: header/footer line
	}
	start := i
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == start {
		return 0, "", false // no digits
	}
	n, err := strconv.ParseInt(line[start:i], 10, 64)
	if err != nil {
		return 0, "", false
	}
	sepStart := i
	for i < len(line) && isSpace(line[i]) {
		i++
	}
	if i == sepStart {
		return 0, "", false // no separating whitespace
	}
	rest := line[i:]
	if rest == "" {
		return 0, "", false
	}
	return n, rest, true
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' || b == '\r' }

func hasTrailingSeparator(path string) bool {
	if path == "" {
		return false
	}
	last := path[len(path)-1]
	return last == '\\' || last == '/'
}

// childDirsFromOutput extracts the immediate subdirectory names of root from
// a list-only invocation of root. Only directories whose parent is root are
// kept, so a recursive listing (the form Profile needs for its totals)
// yields the direct children and nothing deeper. Matches the same
// size==0-plus-trailing-separator rule as parseListOutput.
func childDirsFromOutput(root string, output string) []string {
	var dirs []string
	for _, line := range strings.Split(output, "\n") {
		size, path, ok := splitSizeAndPath(line)
		if !ok || size != 0 || !hasTrailingSeparator(path) {
			continue
		}
		name := strings.TrimSuffix(strings.TrimSuffix(path, "/"), "\\")
		if name == "" || rcmodelSamePathTrim(name, root) || !rcmodelSamePathTrim(parentDir(name), root) {
			continue
		}
		dirs = append(dirs, name)
	}
	return dirs
}

// filesAtLevelFromOutput extracts file entries (non-directory lines) from a
// list-only invocation of root, keeping only files whose parent is root.
func filesAtLevelFromOutput(root string, output string) []FileInfo {
	var files []FileInfo
	for _, line := range strings.Split(output, "\n") {
		size, path, ok := splitSizeAndPath(line)
		if !ok || hasTrailingSeparator(path) || !rcmodelSamePathTrim(parentDir(path), root) {
			continue
		}
		files = append(files, FileInfo{Name: path, Size: size})
	}
	return files
}

// rcmodelSamePathTrim guards against a list tool echoing the scanned root
// itself as a zero-size directory line (some tools emit a header entry for
// the path they were given).
func rcmodelSamePathTrim(candidate, root string) bool {
	c := strings.TrimSuffix(strings.TrimSuffix(candidate, "/"), "\\")
	r := strings.TrimSuffix(strings.TrimSuffix(root, "/"), "\\")
	return strings.EqualFold(c, r)
}

// parentDir returns path with its last separator-delimited component
// removed, or "" if path has no separator.
func parentDir(path string) string {
	i := strings.LastIndexAny(path, `\/`)
	if i < 0 {
		return ""
	}
	return path[:i]
}
