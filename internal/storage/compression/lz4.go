package compression

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pierrec/lz4"
)

// Frame tags.
const (
	tagRaw byte = 0
	tagLZ4 byte = 1
)

// maxFrameSize bounds the decoded size a frame may claim.
const maxFrameSize = 64 << 20

var ErrCorruptFrame = errors.New("corrupt compressed frame")

// NoCompressor stores data as a raw frame.
type NoCompressor struct{}

func (NoCompressor) Name() string { return "none" }

func (NoCompressor) Compress(data []byte) ([]byte, error) {
	return rawFrame(data), nil
}

func (NoCompressor) Decompress(frame []byte) ([]byte, error) {
	return decode(frame)
}

// LZ4Compressor stores lz4 blocks prefixed with the decoded length. Data
// lz4 cannot shrink is kept raw.
type LZ4Compressor struct{}

func (LZ4Compressor) Name() string { return "lz4" }

func (LZ4Compressor) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return rawFrame(data), nil
	}

	header := make([]byte, 1+binary.MaxVarintLen64)
	header[0] = tagLZ4
	n := 1 + binary.PutUvarint(header[1:], uint64(len(data)))

	out := make([]byte, n+lz4.CompressBlockBound(len(data)))
	copy(out, header[:n])
	size, err := lz4.CompressBlock(data, out[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compression failed: %w", err)
	}
	if size == 0 || n+size >= 1+len(data) {
		return rawFrame(data), nil
	}
	return out[:n+size], nil
}

func (LZ4Compressor) Decompress(frame []byte) ([]byte, error) {
	return decode(frame)
}

func rawFrame(data []byte) []byte {
	out := make([]byte, 1+len(data))
	out[0] = tagRaw
	copy(out[1:], data)
	return out
}

// decode reads any frame regardless of the compressor that wrote it, so the
// configured codec can change between runs.
func decode(frame []byte) ([]byte, error) {
	if len(frame) == 0 {
		return nil, ErrCorruptFrame
	}
	switch frame[0] {
	case tagRaw:
		out := make([]byte, len(frame)-1)
		copy(out, frame[1:])
		return out, nil
	case tagLZ4:
		size, n := binary.Uvarint(frame[1:])
		if n <= 0 || size == 0 || size > maxFrameSize {
			return nil, ErrCorruptFrame
		}
		out := make([]byte, size)
		got, err := lz4.UncompressBlock(frame[1+n:], out)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptFrame, err)
		}
		if uint64(got) != size {
			return nil, ErrCorruptFrame
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: tag %d", ErrCorruptFrame, frame[0])
	}
}
