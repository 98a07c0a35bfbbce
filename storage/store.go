// Package storage defines the persistence capabilities the node
// coordinator consumes (header and peer-address storage) and provides
// bbolt-backed reference implementations of each.
package storage

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"lumen.dev/node/chain"
)

// HeaderStore persists the main header chain so a restart doesn't have to
// resync from a checkpoint.
type HeaderStore interface {
	// SaveHeader appends or overwrites the header at height.
	SaveHeader(height int32, hdr chain.Header) error
	// LoadHeaders returns every stored header from fromHeight onward, in
	// ascending height order.
	LoadHeaders(fromHeight int32) ([]chain.Header, error)
	// Tip returns the highest stored height and its hash.
	Tip() (int32, chainhash.Hash, error)
	// Prune removes every stored header above height (used to persist a
	// reorg's rewind).
	Prune(aboveHeight int32) error
	Close() error
}

// PeerStore persists the address book: known addresses and ban state.
type PeerStore interface {
	SaveAddr(addr string) error
	LoadAddrs() ([]string, error)
	MarkBanned(addr string, until time.Time) error
	IsBanned(addr string) (bool, time.Time, error)
	Close() error
}
