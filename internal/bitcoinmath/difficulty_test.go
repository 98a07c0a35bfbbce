package bitcoinmath

import (
	"math/big"
	"testing"
)

func TestCompactToBigRoundTrip(t *testing.T) {
	cases := []uint32{0x1d00ffff, 0x1b0404cb, 0x207fffff, 0x1d00dead}
	for _, c := range cases {
		n := CompactToBig(c)
		got := BigToCompact(n)
		if got != c {
			t.Fatalf("round trip mismatch: in=%08x out=%08x (n=%s)", c, got, n.String())
		}
	}
}

func TestHashMeetsTarget(t *testing.T) {
	target := big.NewInt(0x1000)

	var lowHash [32]byte
	lowHash[0] = 0x01 // little-endian: small integer
	if !HashMeetsTarget(lowHash, target) {
		t.Fatalf("expected low hash to meet target")
	}

	var highHash [32]byte
	highHash[31] = 0xff // big-endian top byte set: huge integer
	if HashMeetsTarget(highHash, target) {
		t.Fatalf("expected high hash to exceed target")
	}
}

func TestHashMeetsTargetRejectsNonPositiveTarget(t *testing.T) {
	var hash [32]byte
	if HashMeetsTarget(hash, big.NewInt(0)) {
		t.Fatalf("zero target should never be met")
	}
	if HashMeetsTarget(hash, big.NewInt(-1)) {
		t.Fatalf("negative target should never be met")
	}
}

func TestWorkIsMonotonicInDifficulty(t *testing.T) {
	easy := Work(0x207fffff)
	hard := Work(0x1d00ffff)
	if hard.Cmp(easy) <= 0 {
		t.Fatalf("expected a smaller target to represent more work: easy=%s hard=%s", easy, hard)
	}
}
