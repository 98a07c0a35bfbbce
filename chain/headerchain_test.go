package chain

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

func TestHeaderChainExtend(t *testing.T) {
	root := chainhash.Hash{}
	c := NewHeaderChain(easyParams, HeaderCheckpoint{Height: 0, Hash: root})

	hdrs := chainFrom(root, time.Unix(1700000000, 0), 3, 1)
	res, err := c.ProcessHeaders(hdrs)
	if err != nil {
		t.Fatalf("ProcessHeaders: %v", err)
	}
	if res.Outcome != OutcomeExtended {
		t.Fatalf("outcome = %v, want Extended", res.Outcome)
	}
	if res.NewTipHeight != 3 {
		t.Fatalf("tip height = %d, want 3", res.NewTipHeight)
	}

	tipHash, tipHeight, _ := c.Tip()
	if tipHeight != 3 || tipHash != res.NewTipHash {
		t.Fatalf("Tip() = (%s, %d), want (%s, 3)", tipHash, tipHeight, res.NewTipHash)
	}
}

func TestHeaderChainRejectsUnknownAnchor(t *testing.T) {
	root := chainhash.Hash{}
	c := NewHeaderChain(easyParams, HeaderCheckpoint{Height: 0, Hash: root})

	var stray chainhash.Hash
	stray[0] = 0xAB
	hdrs := chainFrom(stray, time.Unix(1700000000, 0), 1, 1)

	_, err := c.ProcessHeaders(hdrs)
	if err == nil {
		t.Fatalf("expected an error for an unanchored batch")
	}
	ve, ok := err.(*ValidationError)
	if !ok || ve.Code != ErrUnknownAnchor {
		t.Fatalf("err = %v, want ErrUnknownAnchor", err)
	}
}

func TestHeaderChainRejectsBrokenLinkage(t *testing.T) {
	root := chainhash.Hash{}
	c := NewHeaderChain(easyParams, HeaderCheckpoint{Height: 0, Hash: root})

	hdrs := chainFrom(root, time.Unix(1700000000, 0), 2, 1)
	hdrs[1].PrevBlock = chainhash.Hash{0xFF} // break internal linkage

	_, err := c.ProcessHeaders(hdrs)
	if err == nil {
		t.Fatalf("expected a linkage error")
	}
	ve, ok := err.(*ValidationError)
	if !ok || ve.Code != ErrLinkageInvalid {
		t.Fatalf("err = %v, want ErrLinkageInvalid", err)
	}
}

func TestHeaderChainDuplicateBatch(t *testing.T) {
	root := chainhash.Hash{}
	c := NewHeaderChain(easyParams, HeaderCheckpoint{Height: 0, Hash: root})

	hdrs := chainFrom(root, time.Unix(1700000000, 0), 2, 1)
	if _, err := c.ProcessHeaders(hdrs); err != nil {
		t.Fatalf("first ProcessHeaders: %v", err)
	}

	res, err := c.ProcessHeaders(hdrs)
	if err != nil {
		t.Fatalf("second ProcessHeaders: %v", err)
	}
	if res.Outcome != OutcomeDuplicate {
		t.Fatalf("outcome = %v, want Duplicate", res.Outcome)
	}
}

func TestHeaderChainForkThenReorg(t *testing.T) {
	root := chainhash.Hash{}
	c := NewHeaderChain(easyParams, HeaderCheckpoint{Height: 0, Hash: root})

	base := time.Unix(1700000000, 0)
	main := chainFrom(root, base, 2, 1)
	if res, err := c.ProcessHeaders(main); err != nil || res.Outcome != OutcomeExtended {
		t.Fatalf("main chain extend: res=%+v err=%v", res, err)
	}

	// A competing, longer fork also anchored at the checkpoint root.
	fork := chainFrom(root, base, 3, 100)
	res, err := c.ProcessHeaders(fork)
	if err != nil {
		t.Fatalf("fork ProcessHeaders: %v", err)
	}
	if res.Outcome != OutcomeReorg {
		t.Fatalf("outcome = %v, want Reorg", res.Outcome)
	}
	if res.ForkHeight != 1 {
		t.Fatalf("fork height = %d, want 1", res.ForkHeight)
	}
	if len(res.OrphanedHashes) != 2 {
		t.Fatalf("orphaned hashes = %d, want 2", len(res.OrphanedHashes))
	}
	if res.NewTipHeight != 3 {
		t.Fatalf("new tip height = %d, want 3", res.NewTipHeight)
	}

	tipHash, tipHeight, _ := c.Tip()
	if tipHeight != 3 || tipHash != res.NewTipHash {
		t.Fatalf("Tip() after reorg = (%s, %d)", tipHash, tipHeight)
	}
}

func TestHeaderChainShorterForkIsNotPromoted(t *testing.T) {
	root := chainhash.Hash{}
	c := NewHeaderChain(easyParams, HeaderCheckpoint{Height: 0, Hash: root})

	base := time.Unix(1700000000, 0)
	main := chainFrom(root, base, 3, 1)
	if _, err := c.ProcessHeaders(main); err != nil {
		t.Fatalf("main chain extend: %v", err)
	}

	shortFork := chainFrom(root, base, 2, 100)
	res, err := c.ProcessHeaders(shortFork)
	if err != nil {
		t.Fatalf("fork ProcessHeaders: %v", err)
	}
	if res.Outcome != OutcomeForkAdded {
		t.Fatalf("outcome = %v, want ForkAdded", res.Outcome)
	}

	_, tipHeight, _ := c.Tip()
	if tipHeight != 3 {
		t.Fatalf("tip height changed to %d, want unchanged 3", tipHeight)
	}
}

func TestHeaderChainEmptyBatch(t *testing.T) {
	root := chainhash.Hash{}
	c := NewHeaderChain(easyParams, HeaderCheckpoint{Height: 0, Hash: root})

	res, err := c.ProcessHeaders(nil)
	if err != nil {
		t.Fatalf("ProcessHeaders(nil): %v", err)
	}
	if res.Outcome != OutcomeEmpty {
		t.Fatalf("outcome = %v, want Empty", res.Outcome)
	}
}

func TestHeaderChainLocatorIncludesCheckpoint(t *testing.T) {
	root := chainhash.Hash{}
	c := NewHeaderChain(easyParams, HeaderCheckpoint{Height: 0, Hash: root})

	hdrs := chainFrom(root, time.Unix(1700000000, 0), 20, 1)
	if _, err := c.ProcessHeaders(hdrs); err != nil {
		t.Fatalf("ProcessHeaders: %v", err)
	}

	loc := c.Locator()
	if len(loc) == 0 {
		t.Fatalf("expected a non-empty locator")
	}
	if loc[len(loc)-1] != root {
		t.Fatalf("locator does not end at the checkpoint root")
	}
	if tip, _ := c.HashAtHeight(20); loc[0] != tip {
		t.Fatalf("locator does not start at the tip")
	}
}
