// Copyright 2026 The Gatebox Authors
// SPDX-License-Identifier: Apache-2.0

package binhash

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// Digest is a 32-byte BLAKE3 keyed digest.
type Digest [32]byte

// binaryDomainKey is the fixed domain-separation key for binary
// digests. Changing it invalidates every recorded digest. The byte
// values are the ASCII domain name, zero-padded to 32 bytes, so the
// key is inspectable in hex dumps.
var binaryDomainKey = [32]byte{
	'g', 'a', 't', 'e', 'b', 'o', 'x', '.', 'b', 'i', 'n', 'a', 'r', 'y',
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// HashFile computes the digest of the file at path. The file is
// streamed through the hash function so memory usage stays constant
// regardless of file size.
func HashFile(path string) (Digest, error) {
	file, err := os.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()

	hasher := newKeyedHasher()
	if _, err := io.Copy(hasher, file); err != nil {
		return Digest{}, fmt.Errorf("hashing %s: %w", path, err)
	}

	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest, nil
}

// HashBytes computes the digest of data in memory.
func HashBytes(data []byte) Digest {
	hasher := newKeyedHasher()
	hasher.Write(data)
	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest
}

// FormatDigest returns the hex-encoded string representation of a
// digest. This is the canonical format used in audit records and log
// output.
func FormatDigest(digest Digest) string {
	return hex.EncodeToString(digest[:])
}

// ParseDigest parses a hex-encoded digest string. Returns an error if
// the string is not a valid 64-character hex encoding of 32 bytes.
func ParseDigest(hexString string) (Digest, error) {
	var digest Digest
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return digest, fmt.Errorf("parsing binary digest: %w", err)
	}
	if len(decoded) != 32 {
		return digest, fmt.Errorf("binary digest is %d bytes, want 32", len(decoded))
	}
	copy(digest[:], decoded)
	return digest, nil
}

func newKeyedHasher() *blake3.Hasher {
	// NewKeyed requires exactly 32 bytes, which the fixed-size key
	// guarantees; it cannot fail here.
	hasher, err := blake3.NewKeyed(binaryDomainKey[:])
	if err != nil {
		panic("binhash: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	return hasher
}
