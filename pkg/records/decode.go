package records

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/vjranagit/sleepfilter/pkg/types"
)

// Decode reads a JSON array of raw entries
func Decode(r io.Reader) ([]types.RawEntry, error) {
	var entries []types.RawEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode entries: %w", err)
	}
	return entries, nil
}

// ReadFile reads a dataset file and returns its decompressed bytes.
// Files ending in .zst are zstd compressed.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}

	if !strings.HasSuffix(path, ".zst") {
		return data, nil
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	defer dec.Close()

	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompression failed: %w", err)
	}
	return out, nil
}

// LoadFile reads, decodes and loads a dataset file. The returned checksum
// identifies the decompressed source bytes.
func LoadFile(path string, opts ...Option) (*Store, *LoadReport, uint64, error) {
	data, err := ReadFile(path)
	if err != nil {
		return nil, nil, 0, err
	}

	entries, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, nil, 0, err
	}

	store, report := Load(entries, opts...)
	return store, report, Checksum(data), nil
}

// Checksum hashes dataset source bytes
func Checksum(data []byte) uint64 {
	return xxhash.Sum64(data)
}
