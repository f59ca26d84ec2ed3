// Copyright 2026 The Gatebox Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// SegmentExtension is the filename suffix of audit segment files.
const SegmentExtension = ".audit"

// LogConfig holds configuration for a Log.
type LogConfig struct {
	// Dir is the segment directory. Required; created if missing.
	Dir string

	// Compression selects the segment compression by name: "zstd",
	// "lz4", or "none". Empty means zstd.
	Compression string

	// FlushEvery flushes automatically once this many records are
	// pending. Zero means flush only on explicit Flush or Close.
	FlushEvery int

	// Logger for log operations.
	Logger *slog.Logger
}

// Log is an append-only audit trail backed by a directory of segment
// files. Appends accumulate in memory; Flush writes one segment named
// by its flush timestamp. Safe for concurrent use.
type Log struct {
	dir         string
	compression CompressionTag
	flushEvery  int
	logger      *slog.Logger

	mu      sync.Mutex
	pending []Record
	seq     int
}

// NewLog opens (and creates if needed) the audit log directory.
func NewLog(config LogConfig) (*Log, error) {
	if config.Dir == "" {
		return nil, fmt.Errorf("audit log dir is required")
	}
	if err := os.MkdirAll(config.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating audit log dir: %w", err)
	}
	compression := CompressionZstd
	if config.Compression != "" {
		tag, err := ParseCompressionTag(config.Compression)
		if err != nil {
			return nil, err
		}
		compression = tag
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{
		dir:         config.Dir,
		compression: compression,
		flushEvery:  config.FlushEvery,
		logger:      logger,
	}, nil
}

// Append queues a record. The record's Time is set to now if zero.
func (l *Log) Append(record Record) error {
	if record.Time.IsZero() {
		record.Time = time.Now().UTC()
	}

	l.mu.Lock()
	l.pending = append(l.pending, record)
	shouldFlush := l.flushEvery > 0 && len(l.pending) >= l.flushEvery
	l.mu.Unlock()

	if shouldFlush {
		return l.Flush()
	}
	return nil
}

// Flush writes all pending records as one segment. A flush with
// nothing pending is a no-op.
func (l *Log) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.pending) == 0 {
		return nil
	}

	// Timestamp plus sequence keeps names unique and sortable even
	// for flushes within the same nanosecond tick.
	l.seq++
	name := fmt.Sprintf("%s-%06d%s",
		time.Now().UTC().Format("20060102T150405.000000000"), l.seq, SegmentExtension)
	path := filepath.Join(l.dir, name)

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("creating audit segment: %w", err)
	}
	if err := WriteSegment(file, l.pending, l.compression); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing audit segment: %w", err)
	}

	l.logger.Debug("flushed audit segment",
		"path", path,
		"records", len(l.pending),
	)
	l.pending = nil
	return nil
}

// Close flushes any pending records.
func (l *Log) Close() error {
	return l.Flush()
}

// ReadDir decodes every segment in dir, oldest first, into one record
// stream.
func ReadDir(dir string) ([]Record, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading audit log dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), SegmentExtension) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var records []Record
	for _, name := range names {
		file, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("opening audit segment %s: %w", name, err)
		}
		segment, err := ReadSegment(file)
		file.Close()
		if err != nil {
			return nil, fmt.Errorf("segment %s: %w", name, err)
		}
		records = append(records, segment...)
	}
	return records, nil
}
