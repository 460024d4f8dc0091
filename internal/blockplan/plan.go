// Package blockplan computes how a payload is sliced into Azure block-blob
// blocks (C4, §4.4): block count, per-block byte ranges, and the
// deterministic block ids that order correctly both lexically and
// numerically.
package blockplan

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"

	"github.com/rescale-labs/abfs/internal/constants"
)

// ErrPayloadTooLarge is returned when no block count up to MaxBlocks can
// hold the payload within MaxBlock bytes each.
var ErrPayloadTooLarge = errors.New("blockplan: payload exceeds MaxBlocks blocks of MaxBlock bytes")

// Range is one block's byte span within the payload, [Offset, Offset+Size).
type Range struct {
	Offset int64
	Size   int64
}

// Plan is the §3 Block Plan: block count, the byte range of each block, and
// the block id for each, already in the order the commit document must
// list them.
type Plan struct {
	BlockCount int
	Ranges     []Range
	BlockIDs   []string
}

// Plan implements §4.4's algorithm. nBytes may be 0 (a zero-byte write is
// handled by the caller's single-block fast path, not here). maxBytesPerBlock
// of 0 means "use constants.MaxBlock".
func Plan(nThreads int, nBytes int64, maxBytesPerBlock int64) (Plan, error) {
	if nThreads < 1 {
		nThreads = 1
	}
	if maxBytesPerBlock <= 0 || maxBytesPerBlock > constants.MaxBlock {
		maxBytesPerBlock = constants.MaxBlock
	}
	if nBytes < 0 {
		return Plan{}, fmt.Errorf("blockplan: negative payload size %d", nBytes)
	}
	if nBytes == 0 {
		nBytes = 1 // a single, empty-ish block; caller's fast path handles true zero-byte writes
	}

	n := int(ceilDiv(nBytes, maxBytesPerBlock))
	if n < 1 {
		n = 1
	}

	if n < nThreads {
		n = int(ceilDiv(nBytes, constants.MinBlock))
		n = clamp(n, 1, nThreads)
	}

	if n > constants.MaxBlocks {
		return Plan{}, ErrPayloadTooLarge
	}

	base := nBytes / int64(n)
	remainder := nBytes % int64(n)

	ranges := make([]Range, n)
	var offset int64
	for i := 0; i < n; i++ {
		size := base
		if int64(i) < remainder {
			size++
		}
		ranges[i] = Range{Offset: offset, Size: size}
		offset += size
	}

	ids := make([]string, n)
	width := digitWidth(n)
	for i := 0; i < n; i++ {
		ids[i] = BlockID(i, width)
	}

	return Plan{BlockCount: n, Ranges: ranges, BlockIDs: ids}, nil
}

// BlockID returns the Base64 encoding of i's decimal string, zero-padded to
// width digits, per §3: "padded to ceil(log10(N)) digits so that lexical
// ordering matches numeric ordering".
func BlockID(i, width int) string {
	return base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%0*d", width, i)))
}

// digitWidth returns ceil(log10(n)) with a floor of 1 digit, so a plan of
// a single block still gets a valid (if trivial) padded id.
func digitWidth(n int) int {
	if n <= 1 {
		return 1
	}
	return int(math.Ceil(math.Log10(float64(n))))
}

func ceilDiv(a, b int64) int64 {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
