package archive

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/jonathan/story-archiver/internal/story"
)

// Entry blobs are msgpack-encoded meta, deflated when that saves space.
// The first byte records which form follows.
const (
	entryRaw      = 0x00
	entryDeflated = 0x01
)

// compressFloor is the msgpack size below which deflate is not attempted.
const compressFloor = 256

// encodeEntry re-encodes parsed meta into a compact blob for backend
// storage.
func encodeEntry(meta story.Meta) ([]byte, error) {
	packed, err := msgpack.Marshal(map[string]any(meta))
	if err != nil {
		return nil, fmt.Errorf("msgpack encode: %w", err)
	}

	if len(packed) < compressFloor {
		return append([]byte{entryRaw}, packed...), nil
	}

	var buf bytes.Buffer
	buf.WriteByte(entryDeflated)
	zw, err := flate.NewWriter(&buf, flate.BestSpeed)
	if err != nil {
		return nil, fmt.Errorf("deflate init: %w", err)
	}
	if _, err := zw.Write(packed); err != nil {
		return nil, fmt.Errorf("deflate write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("deflate close: %w", err)
	}

	if buf.Len() >= len(packed)+1 {
		return append([]byte{entryRaw}, packed...), nil
	}
	return buf.Bytes(), nil
}

// decodeEntry reverses encodeEntry. Every call returns a freshly
// allocated meta, so callers own their copy.
func decodeEntry(blob []byte) (story.Meta, error) {
	if len(blob) < 2 {
		return nil, fmt.Errorf("entry blob too short: %d bytes", len(blob))
	}

	packed := blob[1:]
	switch blob[0] {
	case entryRaw:
	case entryDeflated:
		zr := flate.NewReader(bytes.NewReader(packed))
		inflated, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("inflate entry: %w", err)
		}
		if err := zr.Close(); err != nil {
			return nil, fmt.Errorf("inflate close: %w", err)
		}
		packed = inflated
	default:
		return nil, fmt.Errorf("unknown entry marker 0x%02x", blob[0])
	}

	var meta map[string]any
	if err := msgpack.Unmarshal(packed, &meta); err != nil {
		return nil, fmt.Errorf("msgpack decode: %w", err)
	}
	return story.Meta(meta), nil
}
