package chain

import (
	"github.com/btcsuite/btcd/btcutil/gcs"
	"github.com/btcsuite/btcd/btcutil/gcs/builder"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// BIP 158 basic filter parameters.
const (
	FilterP = uint8(19)
	FilterM = uint64(784931)
)

// FilterKey derives the SipHash key a block's basic filter is built and
// matched with: the first 16 bytes of the block hash, byte order unchanged.
func FilterKey(blockHash chainhash.Hash) [gcs.KeySize]byte {
	return builder.DeriveKey(&blockHash)
}

// ParseFilter decodes a BIP 158 wire filter blob (N-prefixed GCS-encoded
// set) received in a cfilter message.
func ParseFilter(data []byte) (*gcs.Filter, error) {
	return gcs.FromNBytes(FilterP, FilterM, data)
}

// FilterHash returns the double-SHA256 commitment of a filter's raw bytes,
// used to verify against the peer-attested entry in the filter header
// chain (filterHash, not filterHeaderHash).
func FilterHash(data []byte) chainhash.Hash {
	return chainhash.DoubleHashH(data)
}

// MatchesAny reports whether filter (keyed to blockHash) matches any of
// the watched items (each a raw scriptPubKey or outpoint encoding).
func MatchesAny(filter *gcs.Filter, blockHash chainhash.Hash, items [][]byte) (bool, error) {
	if len(items) == 0 {
		return false, nil
	}
	key := FilterKey(blockHash)
	return filter.MatchAny(key, items)
}

// FilterCheck is the result of evaluating one block's filter against the
// current watch list: whether the matching block must now be fetched in
// full, and whether this was the last filter expected in its batch (so the
// caller can decide whether to request the next window or declare the
// filters-synced state reached).
type FilterCheck struct {
	BlockHash     chainhash.Hash
	Height        int32
	NeedsRequest  bool
	LastInBatch   bool
}

// CheckFilter evaluates a single decoded filter against the watch list and
// reports the outcome for the sync loop to act on.
func CheckFilter(filter *gcs.Filter, blockHash chainhash.Hash, height int32, watched [][]byte, lastInBatch bool) (FilterCheck, error) {
	match, err := MatchesAny(filter, blockHash, watched)
	if err != nil {
		return FilterCheck{}, err
	}
	return FilterCheck{
		BlockHash:    blockHash,
		Height:       height,
		NeedsRequest: match,
		LastInBatch:  lastInBatch,
	}, nil
}
