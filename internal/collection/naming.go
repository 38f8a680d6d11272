// Package collection owns the naming, lifecycle, and integrity policy over
// vector-store collections: the per-(repo, branch) collection scheme,
// existence/health verification, and validation-recreate/wipe-recovery
// cycles (spec §4.3).
package collection

import (
	"regexp"

	"github.com/cespare/xxhash/v2"
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// Sanitize replaces any character outside [a-zA-Z0-9_] with an underscore.
func Sanitize(s string) string {
	return unsafeChars.ReplaceAllString(s, "_")
}

// Name computes the collection name for a (repository, branch) pair:
// "{prefix}_{sanitize(repo)}_br_{first 8 hex chars of hash(branch)}".
func Name(prefix, repo, branch string) string {
	sum := xxhash.Sum64String(branch)
	hexDigest := toHex(sum)[:8]
	return prefix + "_" + Sanitize(repo) + "_br_" + hexDigest
}

func toHex(v uint64) string {
	const digits = "0123456789abcdef"
	buf := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		buf[i] = digits[v&0xf]
		v >>= 4
	}
	return string(buf)
}
