// Package buffers pools large byte slices sized to half of
// constants.DefaultCopyBufferSize, the same sync.Pool-backed reuse strategy
// the teacher uses for its chunk buffers. The copy pipeline (C7) allocates
// its own double-buffer halves and does not draw from this pool.
package buffers

import (
	"sync"

	"github.com/rescale-labs/abfs/internal/constants"
)

// HalfSize is the size of one half of a DefaultCopyBufferSize double buffer.
const HalfSize = constants.DefaultCopyBufferSize / 2

var halfPool = &sync.Pool{
	New: func() any {
		buf := make([]byte, HalfSize)
		return &buf
	},
}

// Get retrieves a HalfSize buffer from the pool. It must be returned with
// Put once the caller is done with it.
func Get() *[]byte {
	return halfPool.Get().(*[]byte)
}

// Put returns a buffer to the pool. Only HalfSize buffers are pooled; any
// other size is dropped so a caller can't poison the pool.
func Put(buf *[]byte) {
	if buf != nil && len(*buf) == HalfSize {
		halfPool.Put(buf)
	}
}
