// Copyright 2026 The Gatebox Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/gatebox/gatebox/lib/codec"
)

// segmentHeaderSize is 1 byte of compression tag plus 4 bytes of
// big-endian uncompressed payload size.
const segmentHeaderSize = 5

// minCompressSize is the payload size below which compression is
// skipped: the tag and size header already cost 5 bytes and tiny CBOR
// rarely shrinks.
const minCompressSize = 256

// WriteSegment encodes records as a deterministic CBOR sequence and
// writes one framed segment to w. Payloads under minCompressSize, and
// payloads the algorithm cannot shrink, are stored uncompressed.
func WriteSegment(w io.Writer, records []Record, tag CompressionTag) error {
	var payload bytes.Buffer
	encoder := codec.NewEncoder(&payload)
	for i := range records {
		if err := encoder.Encode(&records[i]); err != nil {
			return fmt.Errorf("encoding audit record %d: %w", i, err)
		}
	}

	raw := payload.Bytes()
	if len(raw) < minCompressSize {
		tag = CompressionNone
	}

	compressed, err := compress(raw, tag)
	if errors.Is(err, errIncompressible) {
		tag = CompressionNone
		compressed = raw
	} else if err != nil {
		return fmt.Errorf("compressing audit segment: %w", err)
	}

	var header [segmentHeaderSize]byte
	header[0] = byte(tag)
	binary.BigEndian.PutUint32(header[1:], uint32(len(raw)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("writing segment header: %w", err)
	}
	if _, err := w.Write(compressed); err != nil {
		return fmt.Errorf("writing segment payload: %w", err)
	}
	return nil
}

// ReadSegment decodes one framed segment from r.
func ReadSegment(r io.Reader) ([]Record, error) {
	var header [segmentHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("reading segment header: %w", err)
	}
	tag := CompressionTag(header[0])
	uncompressedSize := int(binary.BigEndian.Uint32(header[1:]))

	compressed, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading segment payload: %w", err)
	}

	raw, err := decompress(compressed, tag, uncompressedSize)
	if err != nil {
		return nil, fmt.Errorf("decompressing audit segment: %w", err)
	}

	var records []Record
	decoder := codec.NewDecoder(bytes.NewReader(raw))
	for {
		var record Record
		if err := decoder.Decode(&record); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decoding audit record %d: %w", len(records), err)
		}
		records = append(records, record)
	}
	return records, nil
}
