package chain

import "github.com/btcsuite/btcd/chaincfg/chainhash"

// HeaderCheckpoint is a (height, hash) trust anchor. The chain is rooted at
// one such checkpoint; history before it is trusted without replay.
type HeaderCheckpoint struct {
	Height int32
	Hash   chainhash.Hash
}

func mustHashHex(s string) chainhash.Hash {
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		panic("chain: invalid checkpoint hash literal: " + err.Error())
	}
	return *h
}

// matchesCheckpoints reports whether every configured checkpoint reachable
// through hashAtHeight is present in the chain at the expected hash. A
// height that hashAtHeight cannot resolve yet is skipped rather than
// treated as a mismatch.
func matchesCheckpoints(checkpoints []HeaderCheckpoint, hashAtHeight func(int32) (chainhash.Hash, bool)) error {
	for _, cp := range checkpoints {
		got, ok := hashAtHeight(cp.Height)
		if !ok {
			continue // haven't reached that height yet
		}
		if got != cp.Hash {
			return &CheckpointMismatchError{Height: cp.Height, Want: cp.Hash, Got: got}
		}
	}
	return nil
}
