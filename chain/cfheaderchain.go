package chain

import (
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// CFOutcome classifies the result of processing a compact-filter-header
// batch from a peer.
type CFOutcome int

const (
	// CFCommitted means the batch extended (or matched) the already
	// committed filter-header chain; no further quorum was needed.
	CFCommitted CFOutcome = iota
	// CFPendingQuorum means the batch was recorded as an attestation for
	// an as-yet-unconfirmed window; more peers must agree before it is
	// committed.
	CFPendingQuorum
	// CFConflict means this peer's claim disagrees with either the
	// committed chain or the window's current majority; BannedPeers
	// names who should be penalized.
	CFConflict
	// CFTieNeedsAdjudication means at least quorumSize peers have reported
	// for a window but no single hash has quorumSize attestations, or two
	// (or more) hashes share the highest count; the caller must download
	// the disputed block(s), build the filter locally, and call
	// ResolveWindow.
	CFTieNeedsAdjudication
)

// CFHeaderResult is returned by ProcessCFHeaders.
type CFHeaderResult struct {
	Outcome      CFOutcome
	BannedPeers  []uint64
	NewTipHeight int32
	NewTipHash   chainhash.Hash
}

// cfClaim is one peer's attestation for a window.
type cfClaim struct {
	peerID  uint64
	headers []chainhash.Hash // computed per-height filter header hashes
}

// cfWindow tracks the outstanding claims for a not-yet-committed range of
// heights [startHeight, startHeight+len(claims[i].headers)-1].
type cfWindow struct {
	startHeight int32
	claims      []cfClaim
}

// CFHeaderChain is the compact-filter-header analogue of HeaderChain: a
// parallel chain of chained filter-header hashes, committed only once a
// quorum of independent peers agree, per the multi-peer audit this client
// requires before trusting a filter header (a single peer can lie about a
// filter's contents since filters are never covered by proof-of-work).
type CFHeaderChain struct {
	mu sync.Mutex

	filterType uint8
	quorumSize int

	committed map[int32]chainhash.Hash // height -> filter header hash
	tipHeight int32
	tipHash   chainhash.Hash

	pending map[int32]*cfWindow // keyed by startHeight
}

// NewCFHeaderChain roots a filter-header chain at (genesisHeight-1, zero
// hash), so genesisHeight is the first height a peer's batch can commit —
// the network convention that the filter header before the first block is
// the all-zero hash.
func NewCFHeaderChain(filterType uint8, genesisHeight int32, quorumSize int) *CFHeaderChain {
	if quorumSize < 1 {
		quorumSize = 1
	}
	c := &CFHeaderChain{
		filterType: filterType,
		quorumSize: quorumSize,
		committed:  make(map[int32]chainhash.Hash),
		tipHeight:  genesisHeight - 1,
		tipHash:    chainhash.Hash{},
		pending:    make(map[int32]*cfWindow),
	}
	c.committed[c.tipHeight] = c.tipHash
	return c
}

// Tip returns the committed filter-header chain's current tip.
func (c *CFHeaderChain) Tip() (int32, chainhash.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tipHeight, c.tipHash
}

// HashAtHeight returns the committed filter header hash at height.
func (c *CFHeaderChain) HashAtHeight(height int32) (chainhash.Hash, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.committed[height]
	return h, ok
}

// chainFilterHeaders computes the per-height filter header hash chain for
// a run of filter hashes starting after prev: h[i] = dsha256(filterHash[i]
// || h[i-1]), with h[-1] = prev.
func chainFilterHeaders(prev chainhash.Hash, filterHashes []chainhash.Hash) []chainhash.Hash {
	out := make([]chainhash.Hash, len(filterHashes))
	running := prev
	for i, fh := range filterHashes {
		buf := make([]byte, 0, 64)
		buf = append(buf, fh[:]...)
		buf = append(buf, running[:]...)
		running = chainhash.DoubleHashH(buf)
		out[i] = running
	}
	return out
}

// ProcessCFHeaders records peerID's attestation for the filter-header
// window [startHeight, startHeight+len(filterHashes)-1], anchored on
// prevFilterHeader (the peer's claimed filter header at startHeight-1).
func (c *CFHeaderChain) ProcessCFHeaders(peerID uint64, startHeight int32, prevFilterHeader chainhash.Hash, filterHashes []chainhash.Hash) (CFHeaderResult, error) {
	if len(filterHashes) == 0 {
		return CFHeaderResult{}, validationErr(ErrEmptyBatch, "empty cfheaders batch")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if known, ok := c.committed[startHeight-1]; ok && known != prevFilterHeader {
		return CFHeaderResult{Outcome: CFConflict, BannedPeers: []uint64{peerID}},
			validationErr(ErrLinkageInvalid, "claimed previous filter header does not match the committed chain")
	}

	headers := chainFilterHeaders(prevFilterHeader, filterHashes)
	endHeight := startHeight + int32(len(headers)) - 1

	// Already fully committed: just check consistency.
	if endHeight <= c.tipHeight {
		for i, h := range headers {
			if existing, ok := c.committed[startHeight+int32(i)]; ok && existing != h {
				return CFHeaderResult{Outcome: CFConflict, BannedPeers: []uint64{peerID}},
					validationErr(ErrCheckpointMismatch, "filter header conflicts with committed chain")
			}
		}
		return CFHeaderResult{Outcome: CFCommitted, NewTipHeight: c.tipHeight, NewTipHash: c.tipHash}, nil
	}

	w, ok := c.pending[startHeight]
	if !ok {
		w = &cfWindow{startHeight: startHeight}
		c.pending[startHeight] = w
	}

	// Replace any earlier claim from the same peer for this window.
	replaced := false
	for i := range w.claims {
		if w.claims[i].peerID == peerID {
			w.claims[i].headers = headers
			replaced = true
			break
		}
	}
	if !replaced {
		w.claims = append(w.claims, cfClaim{peerID: peerID, headers: headers})
	}

	return c.evaluateWindow(w)
}

// evaluateWindow tallies a window's claims by their final (stop-height)
// hash and commits the chain once a quorum agrees, bans the minority once
// a majority exists, and reports a tie when the window cannot resolve
// without a local adjudication.
func (c *CFHeaderChain) evaluateWindow(w *cfWindow) (CFHeaderResult, error) {
	if len(w.claims) < c.quorumSize {
		return CFHeaderResult{Outcome: CFPendingQuorum}, nil
	}

	groups := make(map[chainhash.Hash][]uint64)
	last := len(w.claims[0].headers) - 1
	for _, cl := range w.claims {
		final := cl.headers[last]
		groups[final] = append(groups[final], cl.peerID)
	}

	var bestHash chainhash.Hash
	bestCount := 0
	tie := false
	for h, peers := range groups {
		switch {
		case len(peers) > bestCount:
			bestHash, bestCount = h, len(peers)
			tie = false
		case len(peers) == bestCount && bestCount > 0:
			tie = true
		}
	}

	if bestCount < c.quorumSize || tie {
		return CFHeaderResult{Outcome: CFTieNeedsAdjudication}, nil
	}

	var winner *cfClaim
	for i := range w.claims {
		if w.claims[i].headers[last] == bestHash {
			winner = &w.claims[i]
			break
		}
	}
	var banned []uint64
	for h, peers := range groups {
		if h != bestHash {
			banned = append(banned, peers...)
		}
	}

	c.commitWindow(w.startHeight, winner.headers)
	delete(c.pending, w.startHeight)

	outcome := CFCommitted
	if len(banned) > 0 {
		outcome = CFConflict
	}
	return CFHeaderResult{
		Outcome:      outcome,
		BannedPeers:  banned,
		NewTipHeight: c.tipHeight,
		NewTipHash:   c.tipHash,
	}, nil
}

// ResolveWindow lets the caller adjudicate a CFTieNeedsAdjudication window
// by supplying the chain it built itself from a downloaded block (or
// blocks), committing it and banning every peer whose attestation
// disagreed with it.
func (c *CFHeaderChain) ResolveWindow(startHeight int32, correctHeaders []chainhash.Hash) []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.pending[startHeight]
	if !ok || len(correctHeaders) == 0 {
		return nil
	}
	last := len(correctHeaders) - 1
	var banned []uint64
	for _, cl := range w.claims {
		if len(cl.headers) != len(correctHeaders) || cl.headers[last] != correctHeaders[last] {
			banned = append(banned, cl.peerID)
		}
	}
	c.commitWindow(startHeight, correctHeaders)
	delete(c.pending, startHeight)
	return banned
}

func (c *CFHeaderChain) commitWindow(startHeight int32, headers []chainhash.Hash) {
	for i, h := range headers {
		c.committed[startHeight+int32(i)] = h
	}
	endHeight := startHeight + int32(len(headers)) - 1
	if endHeight > c.tipHeight {
		c.tipHeight = endHeight
		c.tipHash = headers[len(headers)-1]
	}
}
