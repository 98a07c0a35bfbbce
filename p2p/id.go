package p2p

import "sync/atomic"

// PeerID identifies one peer connection for the lifetime of the process.
type PeerID uint64

var nextPeerID uint64

// NewPeerID returns a fresh, process-unique peer identifier.
func NewPeerID() PeerID {
	return PeerID(atomic.AddUint64(&nextPeerID, 1))
}
