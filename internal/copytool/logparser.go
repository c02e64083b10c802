package copytool

import (
	"strconv"
	"strings"
)

// parseSummary scans a copy-tool log for its end-of-run totals block:
//
//	   Files :       120       118         2         0         0         0
//	   Bytes :    123456    120000      3456         0         0         0
//
// columns are Total/Copied/Skipped/Mismatch/Failed/Extras. Values are read
// only as plain decimal integers, the form the copy tool writes for the
// Bytes row when run with /BYTES; unit-suffixed values ("1.5 g") are not
// decoded.
//
// Any row that doesn't parse cleanly is skipped; a summary block with no
// parseable Files/Bytes row yields ParseSuccess=false rather than a
// zero-value success, so callers don't mistake "couldn't find the block"
// for "zero files copied".
func parseSummary(log string) Stats {
	var stats Stats
	foundFiles, foundBytes := false, false

	for _, line := range strings.Split(log, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "Files :"):
			cols := numericColumns(trimmed[len("Files :"):])
			if len(cols) >= 3 {
				stats.FilesCopied = cols[1]
				stats.FilesSkipped = cols[2]
				foundFiles = true
			}
		case strings.HasPrefix(trimmed, "Bytes :"):
			cols := numericColumns(trimmed[len("Bytes :"):])
			if len(cols) >= 2 {
				stats.BytesCopied = cols[1]
				foundBytes = true
			}
		}
	}

	stats.ParseSuccess = foundFiles && foundBytes
	return stats
}

// numericColumns splits a whitespace-separated run of decimal columns into
// int64s. It returns nil if any column isn't a clean decimal integer, so a
// row with unit-suffixed values is skipped rather than read with its
// columns shifted.
func numericColumns(s string) []int64 {
	var out []int64
	for _, field := range strings.Fields(s) {
		n, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil
		}
		out = append(out, n)
	}
	return out
}
