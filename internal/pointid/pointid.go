// Package pointid derives the stable vector-store point id for a chunk.
//
// The id is a deterministic function of the (repository, branch, file path,
// line range, content) tuple: the same logical chunk at the same location
// with unchanged content always yields the same id, and any content change
// yields a different one. It is distinct from the chunker's own internal
// cache key (see internal/chunk's generateChunkID) which only needs to be
// stable across re-chunks of a single process run.
package pointid

import (
	"encoding/hex"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Derive computes the point id for a chunk at (repo, branch, filePath,
// startLine, endLine) with the given content. The result is a 32-hex-char
// (128-bit) lowercase string built from two chained xxhash sums, since
// xxhash/v2 itself only produces a 64-bit digest.
func Derive(repo, branch, filePath string, startLine, endLine int, content string) string {
	contentSum := xxhash.Sum64String(content)

	keyHigh := fmt.Sprintf("%s\x00%s\x00%s\x00%d\x00%d\x00%x", repo, branch, filePath, startLine, endLine, contentSum)
	keyLow := keyHigh + "\x00low"

	high := xxhash.Sum64String(keyHigh)
	low := xxhash.Sum64String(keyLow)

	var buf [16]byte
	putUint64(buf[0:8], high)
	putUint64(buf[8:16], low)
	return hex.EncodeToString(buf[:])
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (56 - 8*i))
	}
}
