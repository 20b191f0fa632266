// Package chunk owns payload fragmentation and in-order reassembly.
//
// Chunks are raw payload slices with no per-chunk header; position on the
// wire is implicit in notification order.
package chunk

import (
	"fmt"

	"github.com/wardlink/signover/internal/protocol"
)

// Split fragments payload into consecutive non-overlapping slices of
// maxChunkBytes, the last holding the remainder. A zero-length payload
// yields zero chunks. Each returned chunk is its own copy so the caller may
// release or mutate payload afterwards.
func Split(payload []byte, maxChunkBytes int) ([][]byte, error) {
	if maxChunkBytes <= 0 {
		return nil, fmt.Errorf("%w: max chunk bytes must be > 0", protocol.ErrConfiguration)
	}
	if len(payload) == 0 {
		return [][]byte{}, nil
	}
	count := (len(payload) + maxChunkBytes - 1) / maxChunkBytes
	chunks := make([][]byte, 0, count)
	for off := 0; off < len(payload); off += maxChunkBytes {
		end := off + maxChunkBytes
		if end > len(payload) {
			end = len(payload)
		}
		c := make([]byte, end-off)
		copy(c, payload[off:end])
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// Count returns the number of chunks Split would produce.
func Count(payloadLen int, maxChunkBytes int) int {
	if maxChunkBytes <= 0 || payloadLen <= 0 {
		return 0
	}
	return (payloadLen + maxChunkBytes - 1) / maxChunkBytes
}

// Reassembler accumulates chunks delivered strictly in index order and
// rebuilds the original payload. It does not validate byte-level integrity;
// truncation is detected by comparing accumulated length against the
// declared total at finalize time.
type Reassembler struct {
	expectTotal  uint64
	expectChunks uint32

	buf      []byte
	received uint32
}

func NewReassembler(meta protocol.Metadata) *Reassembler {
	return &Reassembler{
		expectTotal:  meta.TotalBytes,
		expectChunks: meta.ChunkCount,
		buf:          make([]byte, 0, meta.TotalBytes),
	}
}

// Add appends the next chunk in arrival order. It rejects chunks past the
// declared count or past the declared byte length, which only a misbehaving
// adapter can produce.
func (r *Reassembler) Add(c []byte) error {
	if r.received >= r.expectChunks {
		return fmt.Errorf("%w: chunk %d past declared count %d", protocol.ErrTransport, r.received+1, r.expectChunks)
	}
	if uint64(len(r.buf))+uint64(len(c)) > r.expectTotal {
		return fmt.Errorf("%w: payload exceeds declared %d bytes", protocol.ErrTransport, r.expectTotal)
	}
	r.buf = append(r.buf, c...)
	r.received++
	return nil
}

// Received reports how many chunks have been accumulated.
func (r *Reassembler) Received() uint32 {
	return r.received
}

// IsComplete reports whether the declared chunk count has been accumulated.
func (r *Reassembler) IsComplete() bool {
	return r.received == r.expectChunks
}

// Finalize returns the reassembled payload. Calling it before completion, or
// after a short delivery, fails with the incomplete-transfer error.
func (r *Reassembler) Finalize() ([]byte, error) {
	if !r.IsComplete() {
		return nil, fmt.Errorf("%w: have %d of %d chunks", protocol.ErrIncompleteTransfer, r.received, r.expectChunks)
	}
	if uint64(len(r.buf)) != r.expectTotal {
		return nil, fmt.Errorf("%w: have %d of %d bytes", protocol.ErrIncompleteTransfer, len(r.buf), r.expectTotal)
	}
	out := make([]byte, len(r.buf))
	copy(out, r.buf)
	return out, nil
}
