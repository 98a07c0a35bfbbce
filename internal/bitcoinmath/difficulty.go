// Package bitcoinmath holds the compact-target / proof-of-work arithmetic
// shared by the chain package and its tests.
package bitcoinmath

import "math/big"

// maxTargetBits is the compact PoW limit reported by MaxTargetBits; it
// starts at Bitcoin's difficulty-1 target and chain's package init sets it
// to MainNetParams.PowLimitBits.
var maxTargetBits uint32 = 0x1d00ffff

// CompactToBig expands Bitcoin's compact "nBits" target encoding into a
// big.Int.
func CompactToBig(compact uint32) *big.Int {
	mantissa := compact & 0x007fffff
	exponent := uint(compact >> 24)

	var bn *big.Int
	if exponent <= 3 {
		mantissa >>= 8 * (3 - exponent)
		bn = big.NewInt(int64(mantissa))
	} else {
		bn = big.NewInt(int64(mantissa))
		bn.Lsh(bn, 8*(exponent-3))
	}

	if compact&0x00800000 != 0 {
		bn = bn.Neg(bn)
	}
	return bn
}

// BigToCompact does the reverse of CompactToBig.
func BigToCompact(n *big.Int) uint32 {
	if n.Sign() == 0 {
		return 0
	}

	var mantissa uint32
	exponent := uint(len(n.Bytes()))

	if exponent <= 3 {
		mantissa = uint32(n.Bits()[0])
		mantissa <<= 8 * (3 - exponent)
	} else {
		tn := new(big.Int).Set(n)
		mantissa = uint32(tn.Rsh(tn, 8*(exponent-3)).Bits()[0])
	}

	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		exponent++
	}

	compact := uint32(exponent<<24) | mantissa
	if n.Sign() < 0 {
		compact |= 0x00800000
	}
	return compact
}

// TargetFromBits is CompactToBig with a friendlier name for call sites that
// are reading a header's nBits field rather than doing raw arithmetic.
func TargetFromBits(bits uint32) *big.Int {
	return CompactToBig(bits)
}

// HashMeetsTarget reports whether hash, interpreted as a little-endian
// 256-bit unsigned integer (the Bitcoin convention), is <= target.
func HashMeetsTarget(hashLE [32]byte, target *big.Int) bool {
	if target.Sign() <= 0 {
		return false
	}
	h := new(big.Int)
	// Bitcoin hashes are displayed/stored little-endian; big.Int wants
	// big-endian bytes, so reverse.
	var be [32]byte
	for i := 0; i < 32; i++ {
		be[i] = hashLE[31-i]
	}
	h.SetBytes(be[:])
	return h.Cmp(target) <= 0
}

// Work returns the expected number of hashes (2^256 / (target+1)) a target
// represents, for cumulative-work comparisons during reorg arbitration.
func Work(bits uint32) *big.Int {
	target := CompactToBig(bits)
	if target.Sign() <= 0 {
		return big.NewInt(0)
	}
	// work = 2^256 / (target + 1)
	denom := new(big.Int).Add(target, big.NewInt(1))
	numerator := new(big.Int).Lsh(big.NewInt(1), 256)
	return new(big.Int).Quo(numerator, denom)
}

// MaxTargetBits returns the network's minimum-difficulty (maximum target)
// compact encoding as last set by SetMaxTargetBits. The min-difficulty
// exception in package chain reads Params.PowLimitBits, not this value.
func MaxTargetBits() uint32 { return maxTargetBits }

// SetMaxTargetBits lets network params override the PoW limit (e.g. for a
// regtest/signet profile with an easier minimum difficulty).
func SetMaxTargetBits(bits uint32) { maxTargetBits = bits }
