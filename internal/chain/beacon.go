package chain

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
)

// ClockBeacon derives the draw seed from the wall clock and the pool ID,
// the off-chain analogue of hashing block timestamp and prevrandao.
// Anyone who can choose when to trigger the draw can grind it.
type ClockBeacon struct {
	Now func() time.Time
}

func (b ClockBeacon) Seed(_ context.Context, poolID uint64) ([]byte, error) {
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(now().UnixNano()))
	binary.BigEndian.PutUint64(buf[8:], poolID)
	return crypto.Keccak256(buf[:]), nil
}

// FixedBeacon always returns the same seed. Useful for replaying a draw.
type FixedBeacon []byte

func (b FixedBeacon) Seed(context.Context, uint64) ([]byte, error) {
	return append([]byte(nil), b...), nil
}
