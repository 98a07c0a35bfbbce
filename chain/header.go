package chain

import (
	"math/big"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Header is a Bitcoin block header. We reuse wire.BlockHeader's field
// layout and (de)serialization instead of hand-rolling one, since the wire
// encoding is exactly what btcd/wire already implements correctly.
type Header = wire.BlockHeader

// HeaderHash returns the double-SHA256 block hash of h, as the network
// computes it (proof-of-work is checked against this value).
func HeaderHash(h *Header) chainhash.Hash {
	return h.BlockHash()
}

// Entry is one link in the header chain: the header itself plus the data
// the chain needs to validate and index it (height, cumulative work).
type Entry struct {
	Header         Header
	Hash           chainhash.Hash
	Height         int32
	CumulativeWork *big.Int
}
