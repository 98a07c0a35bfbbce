package chain

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

func mkFilterHashes(n int, seed byte) []chainhash.Hash {
	out := make([]chainhash.Hash, n)
	for i := range out {
		out[i][0] = seed
		out[i][1] = byte(i)
	}
	return out
}

func TestCFHeaderChainCommitsOnQuorum(t *testing.T) {
	c := NewCFHeaderChain(0, 1, 2)

	hashes := mkFilterHashes(5, 0x01)
	zero := chainhash.Hash{}

	res, err := c.ProcessCFHeaders(1, 1, zero, hashes)
	if err != nil {
		t.Fatalf("peer 1: %v", err)
	}
	if res.Outcome != CFPendingQuorum {
		t.Fatalf("after first peer, outcome = %v, want PendingQuorum", res.Outcome)
	}

	res, err = c.ProcessCFHeaders(2, 1, zero, hashes)
	if err != nil {
		t.Fatalf("peer 2: %v", err)
	}
	if res.Outcome != CFCommitted {
		t.Fatalf("after second matching peer, outcome = %v, want Committed", res.Outcome)
	}
	if res.NewTipHeight != 5 {
		t.Fatalf("tip height = %d, want 5", res.NewTipHeight)
	}

	tipHeight, tipHash := c.Tip()
	if tipHeight != 5 || tipHash != res.NewTipHash {
		t.Fatalf("Tip() = (%d, %s)", tipHeight, tipHash)
	}
}

func TestCFHeaderChainBansMinorityOnMajority(t *testing.T) {
	c := NewCFHeaderChain(0, 1, 2)
	zero := chainhash.Hash{}

	honest := mkFilterHashes(3, 0x01)
	lying := mkFilterHashes(3, 0x02)

	if _, err := c.ProcessCFHeaders(1, 1, zero, honest); err != nil {
		t.Fatalf("peer 1: %v", err)
	}
	if _, err := c.ProcessCFHeaders(2, 1, zero, honest); err != nil {
		t.Fatalf("peer 2: %v", err)
	}
	// Third peer disagrees, but a quorum was already reached honestly
	// before this claim arrived — the window was committed on peer 2's
	// message, so peer 3 is now checked straight against the committed
	// chain and flagged individually.
	res, err := c.ProcessCFHeaders(3, 1, zero, lying)
	if err == nil {
		t.Fatalf("expected an error from a peer conflicting with the committed chain")
	}
	if res.Outcome != CFConflict || len(res.BannedPeers) != 1 || res.BannedPeers[0] != 3 {
		t.Fatalf("res = %+v, want Conflict banning peer 3", res)
	}
}

func TestCFHeaderChainTieRequiresAdjudication(t *testing.T) {
	c := NewCFHeaderChain(0, 1, 2)
	zero := chainhash.Hash{}

	a := mkFilterHashes(3, 0x01)
	b := mkFilterHashes(3, 0x02)

	res, err := c.ProcessCFHeaders(1, 1, zero, a)
	if err != nil {
		t.Fatalf("peer 1: %v", err)
	}
	if res.Outcome != CFPendingQuorum {
		t.Fatalf("outcome = %v, want PendingQuorum", res.Outcome)
	}

	res, err = c.ProcessCFHeaders(2, 1, zero, b)
	if err != nil {
		t.Fatalf("peer 2: %v", err)
	}
	if res.Outcome != CFTieNeedsAdjudication {
		t.Fatalf("outcome = %v, want TieNeedsAdjudication", res.Outcome)
	}

	correct := chainFilterHeaders(zero, a)
	banned := c.ResolveWindow(1, correct)
	if len(banned) != 1 || banned[0] != 2 {
		t.Fatalf("banned = %v, want [2]", banned)
	}

	tipHeight, tipHash := c.Tip()
	if tipHeight != 3 || tipHash != correct[2] {
		t.Fatalf("Tip() after adjudication = (%d, %s)", tipHeight, tipHash)
	}
}

func TestCFHeaderChainRejectsBadPrevLinkage(t *testing.T) {
	c := NewCFHeaderChain(0, 1, 2)
	zero := chainhash.Hash{}
	hashes := mkFilterHashes(2, 0x01)

	if _, err := c.ProcessCFHeaders(1, 1, zero, hashes); err != nil {
		t.Fatalf("peer 1: %v", err)
	}
	if _, err := c.ProcessCFHeaders(2, 1, zero, hashes); err != nil {
		t.Fatalf("peer 2: %v", err)
	}

	var wrongPrev chainhash.Hash
	wrongPrev[0] = 0xEE
	res, err := c.ProcessCFHeaders(3, 3, wrongPrev, mkFilterHashes(1, 0x03))
	if err == nil {
		t.Fatalf("expected a linkage error")
	}
	if res.Outcome != CFConflict || len(res.BannedPeers) != 1 {
		t.Fatalf("res = %+v", res)
	}
}
