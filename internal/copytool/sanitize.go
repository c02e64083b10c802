package copytool

import "strings"

// whitelistedPrefixes are copy-tool switches recognized as safe to pass
// through verbatim when they carry a parameter (e.g. "/R:3"). Exact-match
// switches (no parameter) live in whitelistedExact.
//
// Destructive switches — anything that purges extra files/dirs at the
// destination — are intentionally excluded (spec §4.4): a chunk's
// destination subtree is never supposed to be made to exactly mirror the
// source by deleting things the source doesn't have.
var whitelistedPrefixes = []string{
	"/COPY:",
	"/DCOPY:",
	"/R:",
	"/W:",
	"/MIN:",
	"/MAX:",
	"/LEV:",
	"/XA:",
	"/MT:",
}

var whitelistedExact = map[string]bool{
	"/E":       true,
	"/S":       true,
	"/B":       true,
	"/ZB":      true,
	"/XO":      true,
	"/SEC":     true,
	"/COPYALL": true,
	"/SJ":      true,
	"/NP":      true,
	"/NFL":     true,
	"/NDL":     true,
	"/NJH":     true,
	"/NJS":     true,
}

// Sanitize validates args against the closed switch whitelist, returning an
// error naming the first rejected argument. Callers must not launch a
// subprocess with any argument that fails this check (spec §4.4).
func Sanitize(args []string) error {
	for _, a := range args {
		if !isWhitelisted(a) {
			return &RejectedArgError{Arg: a}
		}
	}
	return nil
}

func isWhitelisted(arg string) bool {
	if whitelistedExact[arg] {
		return true
	}
	for _, prefix := range whitelistedPrefixes {
		if strings.HasPrefix(arg, prefix) {
			return true
		}
	}
	return false
}

// RejectedArgError reports a copy-tool argument that failed whitelist
// validation; StartChunkJob treats this as a launch failure.
type RejectedArgError struct {
	Arg string
}

func (e *RejectedArgError) Error() string {
	return "copy-tool argument rejected by whitelist: " + e.Arg
}
