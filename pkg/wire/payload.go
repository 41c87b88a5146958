package wire

import (
	"io"
	"iter"
)

// blockSize is the staging buffer used for byte-wise payloads so the
// transport sees one write per block rather than one per byte.
const blockSize = 512

// Payload is a pull-based stream of upload bytes. The engine consumes it
// without knowing where the data comes from. A Payload is either byte-wise
// or chunk-wise; build it with Bytes, Chunks, FromBytes, or FromReader.
type Payload struct {
	bytes  iter.Seq[byte]
	chunks iter.Seq[[]byte]
}

// Bytes wraps a byte-at-a-time source. The engine stages bytes into
// 512-byte blocks before writing.
func Bytes(seq iter.Seq[byte]) Payload {
	return Payload{bytes: seq}
}

// Chunks wraps a chunk source. Each chunk is written as-is.
func Chunks(seq iter.Seq[[]byte]) Payload {
	return Payload{chunks: seq}
}

// FromBytes streams an in-memory buffer byte by byte.
func FromBytes(data []byte) Payload {
	return Bytes(func(yield func(byte) bool) {
		for _, b := range data {
			if !yield(b) {
				return
			}
		}
	})
}

// FromReader streams r in chunks of up to size bytes. The stream stops at
// the first read error, including io.EOF.
func FromReader(r io.Reader, size int) Payload {
	if size <= 0 {
		size = blockSize
	}
	return Chunks(func(yield func([]byte) bool) {
		buf := make([]byte, size)
		for {
			n, err := r.Read(buf)
			if n > 0 && !yield(buf[:n]) {
				return
			}
			if err != nil {
				return
			}
		}
	})
}

// writeTo streams the payload into w and returns the number of bytes written.
func (p Payload) writeTo(w io.Writer) (int, error) {
	var total int

	if p.chunks != nil {
		var werr error
		for chunk := range p.chunks {
			n, err := w.Write(chunk)
			total += n
			if err != nil {
				werr = err
				break
			}
		}
		return total, werr
	}

	if p.bytes == nil {
		return 0, nil
	}

	var (
		block [blockSize]byte
		count int
		werr  error
	)
	for b := range p.bytes {
		block[count] = b
		count++
		if count == blockSize {
			n, err := w.Write(block[:])
			total += n
			count = 0
			if err != nil {
				werr = err
				break
			}
		}
	}
	if werr == nil && count > 0 {
		n, err := w.Write(block[:count])
		total += n
		werr = err
	}
	return total, werr
}
