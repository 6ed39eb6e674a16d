package audit

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"
)

// hashPair and BuildMerkleRoot form a second, independent tamper-evidence
// layer on top of the per-entry hash chain, giving a single root hash
// that attests to a whole batch of entries at once — useful for
// anchoring a window of the chain externally without re-walking every
// entry.
func hashPair(a, b string) string {
	h := sha256.New()
	h.Write([]byte{0x01})
	aBytes := []byte(a)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(aBytes))) //nolint:gosec // hash inputs are bounded-length hex strings
	h.Write(lenBuf[:])
	h.Write(aBytes)
	h.Write([]byte(b))
	return hex.EncodeToString(h.Sum(nil))
}

// BuildMerkleRoot constructs a Merkle tree from leaf hashes (sorted by
// the caller for determinism) and returns the root. Odd-length levels
// hash the last node with itself.
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
		var next []string
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

// BatchProof is a Merkle root over one window of chain entries,
// identified by the current_hash of its first and last member.
type BatchProof struct {
	FirstHash string
	LastHash  string
	Count     int
	Root      string
}

// BuildBatchProof computes a BatchProof over hashes, which the caller
// collects from a contiguous window of the chain (e.g. once per N
// entries or once per retention period). The root package's
// App.batchProofLoop calls it periodically over the chain's tail.
func BuildBatchProof(hashes []string) BatchProof {
	if len(hashes) == 0 {
		return BatchProof{}
	}
	sorted := append([]string(nil), hashes...)
	sort.Strings(sorted)
	return BatchProof{
		FirstHash: hashes[0],
		LastHash:  hashes[len(hashes)-1],
		Count:     len(hashes),
		Root:      BuildMerkleRoot(sorted),
	}
}
