package remote

import "strings"

// keySanitizer replaces the characters the tree store forbids in path keys.
var keySanitizer = strings.NewReplacer(
	".", "_",
	"#", "_",
	"$", "_",
	"[", "_",
	"]", "_",
	"/", "_",
)

// SanitizeKey makes a string safe for use as a tree path segment. Applied
// everywhere a cns becomes a path key; idempotent, since the replacement
// character is itself legal.
func SanitizeKey(raw string) string {
	return keySanitizer.Replace(raw)
}
