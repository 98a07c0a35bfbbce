package chain

import (
	"math/big"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"lumen.dev/node/internal/bitcoinmath"
)

// Outcome classifies the result of applying a header batch: it either
// extends the main chain, starts or extends a candidate fork, triggers a
// reorg onto a fork with more cumulative work, repeats headers already
// known, or arrives empty.
type Outcome int

const (
	OutcomeExtended Outcome = iota
	OutcomeForkAdded
	OutcomeReorg
	OutcomeDuplicate
	OutcomeEmpty
)

func (o Outcome) String() string {
	switch o {
	case OutcomeExtended:
		return "Extended"
	case OutcomeForkAdded:
		return "ForkAdded"
	case OutcomeReorg:
		return "Reorg"
	case OutcomeDuplicate:
		return "Duplicate"
	case OutcomeEmpty:
		return "Empty"
	default:
		return "Unknown"
	}
}

// ProcessResult is returned by HeaderChain.ProcessHeaders.
type ProcessResult struct {
	Outcome Outcome

	// Valid when Outcome == OutcomeReorg: the height of the first orphaned
	// block and the orphaned hashes in descending-height order.
	ForkHeight     int32
	OrphanedHashes []chainhash.Hash

	NewTipHash   chainhash.Hash
	NewTipHeight int32
}

// chainEntry is one header stored in the tree (main chain or a candidate
// fork); every header this client has ever seen lives in byHash so that a
// later batch can re-anchor to it.
type chainEntry struct {
	header Header
	hash   chainhash.Hash
	height int32
	work   *big.Int // cumulative work from the checkpoint through this entry
}

// HeaderChain is the in-memory fork-aware header index. Persistence is
// delegated to storage.HeaderStore; HeaderChain itself only holds what is
// needed to validate and select the best chain, keeping every header it has
// ever seen available as a possible fork anchor.
type HeaderChain struct {
	mu     sync.Mutex
	params Params

	checkpointHeight int32
	checkpointHash   chainhash.Hash

	byHash      map[chainhash.Hash]*chainEntry
	heightIndex map[int32]chainhash.Hash // main chain only

	tipHash   chainhash.Hash
	tipHeight int32
	tipWork   *big.Int
}

// NewHeaderChain roots a header chain at checkpoint. Checkpoint is trusted;
// history before it is not validated.
func NewHeaderChain(params Params, checkpoint HeaderCheckpoint) *HeaderChain {
	c := &HeaderChain{
		params:           params,
		checkpointHeight: checkpoint.Height,
		checkpointHash:   checkpoint.Hash,
		byHash:           make(map[chainhash.Hash]*chainEntry),
		heightIndex:      make(map[int32]chainhash.Hash),
		tipHash:          checkpoint.Hash,
		tipHeight:        checkpoint.Height,
		tipWork:          big.NewInt(0),
	}
	c.heightIndex[checkpoint.Height] = checkpoint.Hash
	c.byHash[checkpoint.Hash] = &chainEntry{
		hash:   checkpoint.Hash,
		height: checkpoint.Height,
		work:   big.NewInt(0),
	}
	return c
}

// Tip returns the current best chain's tip hash, height and cumulative work.
func (c *HeaderChain) Tip() (chainhash.Hash, int32, *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tipHash, c.tipHeight, new(big.Int).Set(c.tipWork)
}

// HashAtHeight returns the main-chain hash at height, if known.
func (c *HeaderChain) HashAtHeight(height int32) (chainhash.Hash, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.heightIndex[height]
	return h, ok
}

// HeaderAt returns the main-chain header at height, if known.
func (c *HeaderChain) HeaderAt(height int32) (Header, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.heightIndex[height]
	if !ok {
		return Header{}, false
	}
	e := c.byHash[h]
	return e.header, true
}

// Locator builds a sparse list of main-chain hashes, tip-to-checkpoint, for
// use in a getheaders request: the first 12 heights are linear, then the
// spacing doubles each step, always including the root.
func (c *HeaderChain) Locator() []chainhash.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()

	heights := make([]int32, 0, 32)
	tip := c.tipHeight
	for i := int32(0); i < 12 && tip-i >= c.checkpointHeight; i++ {
		heights = append(heights, tip-i)
	}
	step := int32(1)
	offset := int32(12)
	for {
		h := tip - offset
		if h < c.checkpointHeight {
			break
		}
		heights = append(heights, h)
		offset += step
		step *= 2
	}
	if heights[len(heights)-1] != c.checkpointHeight {
		heights = append(heights, c.checkpointHeight)
	}

	out := make([]chainhash.Hash, 0, len(heights))
	for _, h := range heights {
		if hash, ok := c.heightIndex[h]; ok {
			out = append(out, hash)
		}
	}
	return out
}

// ProcessHeaders validates and applies a batch of headers. The batch must
// be internally connected (each header's prev equals the hash of the
// previous header in the slice); this holds for any well-formed `headers`
// message.
func (c *HeaderChain) ProcessHeaders(headers []Header) (ProcessResult, error) {
	if len(headers) == 0 {
		return ProcessResult{Outcome: OutcomeEmpty}, nil
	}
	if len(headers) > 2000 {
		return ProcessResult{}, validationErr(ErrBatchTooLarge, "batch exceeds 2000 headers")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	anchorHash := headers[0].PrevBlock
	anchor, ok := c.byHash[anchorHash]
	if !ok {
		return ProcessResult{}, validationErr(ErrUnknownAnchor, "prev_block does not match any known header")
	}

	// Internal connectivity (i>1) plus individual PoW plus difficulty
	// transition, accumulating cumulative work as we go.
	entries := make([]*chainEntry, 0, len(headers))
	prevHash := anchorHash
	height := anchor.height
	work := new(big.Int).Set(anchor.work)

	for i := range headers {
		hdr := headers[i]
		if hdr.PrevBlock != prevHash {
			return ProcessResult{}, validationErr(ErrLinkageInvalid, "header batch is not internally connected")
		}

		hash := HeaderHash(&hdr)
		target := bitcoinmath.CompactToBig(hdr.Bits)
		if target.Sign() <= 0 || target.Cmp(bitcoinmath.CompactToBig(c.params.PowLimitBits)) > 0 {
			return ProcessResult{}, validationErr(ErrTargetInvalid, "target exceeds network PoW limit")
		}
		if !bitcoinmath.HashMeetsTarget(hash, target) {
			return ProcessResult{}, validationErr(ErrPOWInvalid, "hash does not meet its own target")
		}

		nextHeight := height + 1
		if err := c.validateTransitionAt(nextHeight, &hdr, entries, prevHash); err != nil {
			return ProcessResult{}, err
		}

		entryWork := bitcoinmath.Work(hdr.Bits)
		work = new(big.Int).Add(work, entryWork)

		entries = append(entries, &chainEntry{
			header: hdr,
			hash:   hash,
			height: nextHeight,
			work:   new(big.Int).Set(work),
		})
		prevHash = hash
		height = nextHeight
	}

	// Duplicate: every header in the batch is already known at the same
	// height with the same hash.
	allKnown := true
	for _, e := range entries {
		existing, ok := c.byHash[e.hash]
		if !ok || existing.height != e.height {
			allKnown = false
			break
		}
	}
	if allKnown {
		return ProcessResult{Outcome: OutcomeDuplicate, NewTipHash: c.tipHash, NewTipHeight: c.tipHeight}, nil
	}

	// Checkpoint validation against this candidate chain.
	if err := matchesCheckpoints(c.params.Checkpoints, func(h int32) (chainhash.Hash, bool) {
		if h <= anchor.height {
			if hash, ok := c.heightIndex[h]; ok {
				return hash, true
			}
			return chainhash.Hash{}, false
		}
		for _, e := range entries {
			if e.height == h {
				return e.hash, true
			}
		}
		return chainhash.Hash{}, false
	}); err != nil {
		return ProcessResult{}, err
	}

	// Record every new entry regardless of outcome (ForkAdded keeps it as
	// a candidate; Extended/Reorg promote it).
	for _, e := range entries {
		c.byHash[e.hash] = e
	}

	candidateTipWork := entries[len(entries)-1].work
	candidateTipHash := entries[len(entries)-1].hash
	candidateTipHeight := entries[len(entries)-1].height

	switch {
	case anchorHash == c.tipHash:
		// Extends the current main chain directly.
		c.promote(entries)
		return ProcessResult{
			Outcome:      OutcomeExtended,
			NewTipHash:   candidateTipHash,
			NewTipHeight: candidateTipHeight,
		}, nil

	case candidateTipWork.Cmp(c.tipWork) > 0:
		// Strictly more work than the current main chain: reorg.
		forkHeight := anchor.height + 1
		orphaned := c.mainChainHashesFrom(forkHeight)
		c.rewindTo(anchor.height)
		c.promote(entries)
		return ProcessResult{
			Outcome:        OutcomeReorg,
			ForkHeight:     forkHeight,
			OrphanedHashes: orphaned,
			NewTipHash:     candidateTipHash,
			NewTipHeight:   candidateTipHeight,
		}, nil

	default:
		// Less or equal work: kept as a candidate fork, not promoted.
		return ProcessResult{Outcome: OutcomeForkAdded, NewTipHash: c.tipHash, NewTipHeight: c.tipHeight}, nil
	}
}

// validateTransitionAt checks the difficulty transition for a header being
// appended at height, using whatever ancestry this chain happens to have
// on hand (main chain or, for a fork, the entries walked so far this call).
func (c *HeaderChain) validateTransitionAt(height int32, hdr *Header, batch []*chainEntry, prevHash chainhash.Hash) error {
	prevEntry, ok := c.byHash[prevHash]
	if !ok && len(batch) > 0 && batch[len(batch)-1].hash == prevHash {
		prevEntry, ok = batch[len(batch)-1], true
	}
	if !ok {
		return nil // no ancestry yet; defer transition validation
	}
	prevHeader := prevEntry.header
	if height == c.checkpointHeight+1 && prevEntry.height == c.checkpointHeight {
		// Prev header for the checkpoint root itself is unknown; skip.
		return nil
	}

	var firstInWindow *Header
	if height%c.params.RetargetInterval() == 0 {
		windowStartHeight := height - c.params.RetargetInterval()
		if hash, ok := c.heightIndex[windowStartHeight]; ok {
			if e, ok := c.byHash[hash]; ok {
				h := e.header
				firstInWindow = &h
			}
		}
	}
	return validateBits(c.params, height, hdr, &prevHeader, firstInWindow)
}

// mainChainHashesFrom returns main-chain hashes at height and above, in
// descending-height order (tip-first).
func (c *HeaderChain) mainChainHashesFrom(height int32) []chainhash.Hash {
	out := make([]chainhash.Hash, 0, c.tipHeight-height+1)
	for h := c.tipHeight; h >= height; h-- {
		if hash, ok := c.heightIndex[h]; ok {
			out = append(out, hash)
		}
	}
	return out
}

// rewindTo drops the main-chain height index above height and resets the
// cached tip to height (the entries themselves remain in byHash so a later
// batch could re-extend them).
func (c *HeaderChain) rewindTo(height int32) {
	for h := c.tipHeight; h > height; h-- {
		delete(c.heightIndex, h)
	}
	hash := c.heightIndex[height]
	entry := c.byHash[hash]
	c.tipHash = hash
	c.tipHeight = height
	c.tipWork = new(big.Int).Set(entry.work)
}

// promote installs entries (already connected to the current tip) as the
// new main chain.
func (c *HeaderChain) promote(entries []*chainEntry) {
	for _, e := range entries {
		c.heightIndex[e.height] = e.hash
	}
	last := entries[len(entries)-1]
	c.tipHash = last.hash
	c.tipHeight = last.height
	c.tipWork = new(big.Int).Set(last.work)
}
