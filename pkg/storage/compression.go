package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"
)

// ErrUnknownEncoding is returned for a column tagged with an encoding this
// build does not know.
var ErrUnknownEncoding = errors.New("unknown column encoding")

// Compressor encodes record columns for snapshots
type Compressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewCompressor creates a new compressor. Levels run from 1 (fastest) to 4 (best).
func NewCompressor(level int) (*Compressor, error) {
	encLevel := zstd.SpeedDefault
	switch level {
	case 1:
		encLevel = zstd.SpeedFastest
	case 2:
		encLevel = zstd.SpeedDefault
	case 3:
		encLevel = zstd.SpeedBetterCompression
	case 4:
		encLevel = zstd.SpeedBestCompression
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(encLevel))
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	return &Compressor{
		encoder: encoder,
		decoder: decoder,
	}, nil
}

// IntEncoding selects how an integer column is laid out before zstd. It is
// stored as the first byte of the compressed column.
type IntEncoding byte

const (
	// IntRaw stores values as they are, for small unordered counts
	IntRaw IntEncoding = iota + 1
	// IntDelta stores differences between neighbours, for sequences and cycles
	IntDelta
	// IntDeltaOfDelta stores changes in the step, for near-regular timestamps
	IntDeltaOfDelta
)

func (e IntEncoding) String() string {
	switch e {
	case IntRaw:
		return "raw"
	case IntDelta:
		return "delta"
	case IntDeltaOfDelta:
		return "delta-of-delta"
	}
	return fmt.Sprintf("IntEncoding(%d)", byte(e))
}

// CompressInts writes column as zigzag varints under enc, then zstd
func (c *Compressor) CompressInts(column []int64, enc IntEncoding) ([]byte, error) {
	if len(column) == 0 {
		return nil, nil
	}

	buf := make([]byte, 0, len(column)*2)
	switch enc {
	case IntRaw:
		for _, v := range column {
			buf = binary.AppendVarint(buf, v)
		}
	case IntDelta:
		var prev int64
		for _, v := range column {
			buf = binary.AppendVarint(buf, v-prev)
			prev = v
		}
	case IntDeltaOfDelta:
		buf = binary.AppendVarint(buf, column[0])
		var prevDelta int64
		for i := 1; i < len(column); i++ {
			delta := column[i] - column[i-1]
			buf = binary.AppendVarint(buf, delta-prevDelta)
			prevDelta = delta
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEncoding, enc)
	}

	out := []byte{byte(enc)}
	return c.encoder.EncodeAll(buf, out), nil
}

// DecompressInts reverses CompressInts
func (c *Compressor) DecompressInts(data []byte, count int) ([]int64, error) {
	if len(data) == 0 || count == 0 {
		return nil, nil
	}

	enc := IntEncoding(data[0])
	raw, err := c.decoder.DecodeAll(data[1:], nil)
	if err != nil {
		return nil, fmt.Errorf("decompression failed: %w", err)
	}

	values := make([]int64, count)
	for i := range values {
		v, n := binary.Varint(raw)
		if n <= 0 {
			return nil, fmt.Errorf("column truncated at value %d of %d", i, count)
		}
		values[i] = v
		raw = raw[n:]
	}
	if len(raw) != 0 {
		return nil, fmt.Errorf("column has %d trailing bytes", len(raw))
	}

	switch enc {
	case IntRaw:
	case IntDelta:
		for i := 1; i < count; i++ {
			values[i] += values[i-1]
		}
	case IntDeltaOfDelta:
		var delta int64
		for i := 1; i < count; i++ {
			delta += values[i]
			values[i] = values[i-1] + delta
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEncoding, enc)
	}
	return values, nil
}

// CompressFloats compresses a float column by XOR with the previous value,
// then zstd. Repeated values become zero words.
func (c *Compressor) CompressFloats(column []float64) ([]byte, error) {
	if len(column) == 0 {
		return nil, nil
	}

	buf := make([]byte, 0, len(column)*8)
	var prev uint64
	for _, v := range column {
		bits := math.Float64bits(v)
		buf = binary.LittleEndian.AppendUint64(buf, bits^prev)
		prev = bits
	}
	return c.encoder.EncodeAll(buf, make([]byte, 0, len(buf)/2)), nil
}

// DecompressFloats reverses CompressFloats
func (c *Compressor) DecompressFloats(data []byte, count int) ([]float64, error) {
	if len(data) == 0 || count == 0 {
		return nil, nil
	}

	raw, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompression failed: %w", err)
	}
	if len(raw) != count*8 {
		return nil, fmt.Errorf("column has %d bytes, want %d", len(raw), count*8)
	}

	column := make([]float64, count)
	var prev uint64
	for i := range column {
		prev ^= binary.LittleEndian.Uint64(raw[i*8:])
		column[i] = math.Float64frombits(prev)
	}
	return column, nil
}

// Close releases the encoder and decoder
func (c *Compressor) Close() {
	if c.encoder != nil {
		c.encoder.Close()
	}
	if c.decoder != nil {
		c.decoder.Close()
	}
}
