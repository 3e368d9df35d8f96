package pool

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
)

// Draw returns a permutation of [0, n) derived from seed by Fisher–Yates.
// Step i swaps with j = keccak256(seed ‖ i) mod (i+1), so the same seed
// always yields the same draw.
func Draw(seed []byte, n int) []int {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}

	var idx [8]byte
	mod := new(big.Int)
	for i := n - 1; i > 0; i-- {
		binary.BigEndian.PutUint64(idx[:], uint64(i))
		h := new(big.Int).SetBytes(crypto.Keccak256(seed, idx[:]))
		j := int(h.Mod(h, mod.SetInt64(int64(i+1))).Int64())
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm
}
