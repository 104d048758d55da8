// Package integrity computes the content hashes the registry relies on:
// prompt hashes for no-op version detection, tamper-evident hashes for
// change-ledger entries, and a Merkle root over a ledger. All functions are
// pure and deterministic.
package integrity

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"strings"
	"time"

	"github.com/ashita-ai/automata/internal/model"
)

// hashV1Prefix tags every hash produced here so the encoding can evolve
// without invalidating stored values.
const hashV1Prefix = "v1:"

// ComputePromptHash returns the versioned SHA-256 digest of a system prompt.
// The prompt is hashed byte-for-byte: two prompts that differ only in
// whitespace are different versions.
func ComputePromptHash(prompt string) string {
	h := sha256.New()
	writeField(h, prompt)
	return hashV1Prefix + hex.EncodeToString(h.Sum(nil))
}

// VerifyPromptHash reports whether stored is the hash of prompt.
func VerifyPromptHash(stored, prompt string) bool {
	return strings.HasPrefix(stored, hashV1Prefix) && stored == ComputePromptHash(prompt)
}

// ComputeChangeHash returns the digest of every field of c except
// ContentHash itself. Before/After snapshots are canonicalized first so the
// hash survives storage engines that reformat JSON.
func ComputeChangeHash(c model.Change) string {
	h := sha256.New()
	writeField(h, c.ID.String())
	writeField(h, c.AutomatonID.String())
	writeField(h, string(c.ChangeType))
	writeField(h, c.Description)
	writeField(h, string(model.CanonicalJSON(c.Before)))
	writeField(h, string(model.CanonicalJSON(c.After)))
	writeField(h, c.Actor)
	writeField(h, c.CreatedAt.UTC().Format(time.RFC3339Nano))
	return hashV1Prefix + hex.EncodeToString(h.Sum(nil))
}

// VerifyChangeHash reports whether c.ContentHash matches its fields.
func VerifyChangeHash(c model.Change) bool {
	return c.ContentHash != "" && c.ContentHash == ComputeChangeHash(c)
}

// writeField encodes s as a 4-byte big-endian length followed by its bytes,
// so free text containing separators cannot collide across fields.
func writeField(h hash.Hash, s string) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s))) //nolint:gosec // fields are bounded by model length limits
	h.Write(lenBuf[:])
	h.Write([]byte(s))
}

// hashPair produces SHA-256(0x01 || a || b) as a hex string.
// The 0x01 prefix separates internal Merkle nodes from leaves (RFC 6962).
func hashPair(a, b string) string {
	h := sha256.New()
	h.Write([]byte{0x01})
	h.Write([]byte(a))
	h.Write([]byte(b))
	return hex.EncodeToString(h.Sum(nil))
}

// BuildMerkleRoot builds a Merkle tree over leaves in the given order and
// returns its root. Empty input yields "", a single leaf is its own root, and
// an odd node at any level is hashed with itself.
func BuildMerkleRoot(leaves []string) string {
	if len(leaves) == 0 {
		return ""
	}
	if len(leaves) == 1 {
		return leaves[0]
	}

	level := make([]string, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		next := make([]string, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, hashPair(level[i], level[i+1]))
			} else {
				next = append(next, hashPair(level[i], level[i]))
			}
		}
		level = next
	}
	return level[0]
}
