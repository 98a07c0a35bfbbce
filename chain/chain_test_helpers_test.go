package chain

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"lumen.dev/node/internal/bitcoinmath"
)

// easyParams is a regtest-shaped profile with the easiest PoW limit
// (0x207fffff): about half of all header hashes meet it, so tests can build
// valid headers with a few nonce tries instead of real mining.
var easyParams = Params{
	Name:                     "test",
	PowLimitBits:             0x207fffff,
	TargetTimespan:           14 * 24 * time.Hour,
	TargetSpacing:            10 * time.Minute,
	AllowMinDifficultyBlocks: true,
	NoRetargeting:            true,
}

func mkHeader(prev chainhash.Hash, ts time.Time, nonce uint32) Header {
	return Header{
		Version:    1,
		PrevBlock:  prev,
		MerkleRoot: chainhash.Hash{},
		Timestamp:  ts,
		Bits:       easyParams.PowLimitBits,
		Nonce:      nonce,
	}
}

// chainFrom builds n connected headers starting after root, each one
// minute apart. Nonces start at nonceBase and each header's nonce is
// advanced until its hash meets the easy target, so every header passes
// the proof-of-work check.
func chainFrom(root chainhash.Hash, startTS time.Time, n int, nonceBase uint32) []Header {
	out := make([]Header, n)
	prev := root
	ts := startTS
	nonce := nonceBase
	target := bitcoinmath.CompactToBig(easyParams.PowLimitBits)
	for i := 0; i < n; i++ {
		h := mkHeader(prev, ts, nonce)
		for !bitcoinmath.HashMeetsTarget(HeaderHash(&h), target) {
			h.Nonce++
		}
		nonce = h.Nonce + 1
		out[i] = h
		prev = HeaderHash(&h)
		ts = ts.Add(time.Minute)
	}
	return out
}
