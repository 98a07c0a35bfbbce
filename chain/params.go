package chain

import (
	"time"

	"lumen.dev/node/internal/bitcoinmath"
)

// Params bundles the network-specific constants difficulty transition and
// checkpoint validation need. Mirrors the shape of btcd's chaincfg.Params,
// trimmed to what this light client actually consults.
type Params struct {
	Name string

	// PowLimitBits is the compact encoding of the network's easiest
	// allowed target (used both as a ceiling on retargets and as the
	// min-difficulty-blocks fallback target).
	PowLimitBits uint32

	// TargetTimespan is the retarget window's intended wall-clock
	// duration (2 weeks on mainnet).
	TargetTimespan time.Duration

	// TargetSpacing is the intended time between blocks (10 minutes on
	// mainnet); RetargetInterval = TargetTimespan / TargetSpacing.
	TargetSpacing time.Duration

	// AllowMinDifficultyBlocks is the testnet exception: if the block
	// time exceeds 2*TargetSpacing since the previous block, the next
	// block may use PowLimitBits directly.
	AllowMinDifficultyBlocks bool

	// NoRetargeting disables difficulty transitions entirely (regtest).
	NoRetargeting bool

	Checkpoints []HeaderCheckpoint
}

// RetargetInterval is the number of blocks between difficulty transitions.
func (p Params) RetargetInterval() int32 {
	return int32(p.TargetTimespan / p.TargetSpacing)
}

// MainNetParams mirrors Bitcoin mainnet's consensus constants.
var MainNetParams = Params{
	Name:                     "mainnet",
	PowLimitBits:             0x1d00ffff,
	TargetTimespan:           14 * 24 * time.Hour,
	TargetSpacing:            10 * time.Minute,
	AllowMinDifficultyBlocks: false,
	NoRetargeting:            false,
	Checkpoints: []HeaderCheckpoint{
		{Height: 800000, Hash: mustHashHex("00000000000000000002a7c4c1e48d76c5a37902165a270156b7a8d72728a6e")},
	},
}

// TestNetParams relaxes the difficulty with the standard "20 minute gap"
// minimum-difficulty exception.
var TestNetParams = Params{
	Name:                     "testnet",
	PowLimitBits:             0x1d00ffff,
	TargetTimespan:           14 * 24 * time.Hour,
	TargetSpacing:            10 * time.Minute,
	AllowMinDifficultyBlocks: true,
	NoRetargeting:            false,
}

// RegTestParams disables retargeting entirely, for local development and
// deterministic tests.
var RegTestParams = Params{
	Name:                     "regtest",
	PowLimitBits:             0x207fffff,
	TargetTimespan:           14 * 24 * time.Hour,
	TargetSpacing:            10 * time.Minute,
	AllowMinDifficultyBlocks: true,
	NoRetargeting:            true,
}

func init() {
	bitcoinmath.SetMaxTargetBits(MainNetParams.PowLimitBits)
}
